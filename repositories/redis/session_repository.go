package redis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/repositories"
	"go.uber.org/zap"
)

// Session hash layout: user_id, user_agent, created_at and expires_at (unix ms),
// is_active ("1"/"0") and client_key, the name of the active index key of its client.

const createSessionScript = `
if redis.call("EXISTS", KEYS[1]) == 1 then
  return -1
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return 0
end
redis.call("HSET", KEYS[1],
  "user_id", ARGV[2], "user_agent", ARGV[3],
  "created_at", ARGV[4], "expires_at", ARGV[5],
  "is_active", "1", "client_key", KEYS[2])
redis.call("PEXPIREAT", KEYS[1], ARGV[6])
redis.call("SET", KEYS[2], ARGV[1])
redis.call("PEXPIREAT", KEYS[2], ARGV[6])
redis.call("SADD", KEYS[3], ARGV[1])
return 1
`

var createSessionLua = goredis.NewScript(createSessionScript)

const rotateSessionScript = `
if redis.call("HGET", KEYS[1], "is_active") ~= "1" then
  return 0
end
if redis.call("EXISTS", KEYS[2]) == 1 then
  return -1
end
local holder = redis.call("GET", KEYS[3])
if holder and holder ~= ARGV[1] then
  return -2
end

local old_client = redis.call("HGET", KEYS[1], "client_key")
redis.call("HSET", KEYS[1], "is_active", "0")
if old_client and redis.call("GET", old_client) == ARGV[1] then
  redis.call("DEL", old_client)
end

redis.call("HSET", KEYS[2],
  "user_id", ARGV[3], "user_agent", ARGV[4],
  "created_at", ARGV[5], "expires_at", ARGV[6],
  "is_active", "1", "client_key", KEYS[3])
redis.call("PEXPIREAT", KEYS[2], ARGV[7])
redis.call("SET", KEYS[3], ARGV[2])
redis.call("PEXPIREAT", KEYS[3], ARGV[7])
redis.call("SADD", KEYS[4], ARGV[2])
return 1
`

var rotateSessionLua = goredis.NewScript(rotateSessionScript)

const revokeSessionScript = `
local state = redis.call("HGET", KEYS[1], "is_active")
if not state then
  return -1
end
if state ~= "1" then
  return 0
end
redis.call("HSET", KEYS[1], "is_active", "0")
local client = redis.call("HGET", KEYS[1], "client_key")
if client and redis.call("GET", client) == ARGV[1] then
  redis.call("DEL", client)
end
return 1
`

var revokeSessionLua = goredis.NewScript(revokeSessionScript)

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// SessionRepository implements repositories.SessionRepository on Redis.
// Every state change runs as one script so the compare and the write are atomic on the server.
type SessionRepository struct {
	client    goredis.UniversalClient
	prefix    string
	retention time.Duration
	logger    *zap.Logger
}

// NewSessionRepository creates a store namespaced under prefix. Session keys expire
// retention after the session itself does.
func NewSessionRepository(client goredis.UniversalClient, prefix string, retention time.Duration, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		client:    client,
		prefix:    prefix,
		retention: retention,
		logger:    logger,
	}
}

func (r *SessionRepository) sessionKey(id string) string {
	return r.prefix + ":session:" + id
}

func (r *SessionRepository) clientKey(userID int64, userAgent string) string {
	sum := sha256.Sum256([]byte(userAgent))
	return r.prefix + ":active:" + strconv.FormatInt(userID, 10) + ":" + hex.EncodeToString(sum[:])
}

func (r *SessionRepository) userKey(userID int64) string {
	return r.prefix + ":user:" + strconv.FormatInt(userID, 10)
}

func (r *SessionRepository) sessionArgs(s *models.Session) []interface{} {
	return []interface{}{
		strconv.FormatInt(s.UserID, 10),
		s.UserAgent,
		strconv.FormatInt(s.CreatedAt.UnixMilli(), 10),
		strconv.FormatInt(s.ExpiresAt.UnixMilli(), 10),
		strconv.FormatInt(s.ExpiresAt.Add(r.retention).UnixMilli(), 10),
	}
}

// Create stores an active session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	keys := []string{
		r.sessionKey(session.ID),
		r.clientKey(session.UserID, session.UserAgent),
		r.userKey(session.UserID),
	}
	args := append([]interface{}{session.ID}, r.sessionArgs(session)...)

	status, err := createSessionLua.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return unavailable("create session", err)
	}
	switch status {
	case 1:
		r.logger.Debug("session created",
			zap.String("session_id", session.ID),
			zap.Int64("user_id", session.UserID))
		return nil
	case 0:
		return fmt.Errorf("%w: user %d", repositories.ErrDuplicateSession, session.UserID)
	default:
		return fmt.Errorf("session id %s already used", session.ID)
	}
}

// GetByID reads the session hash
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	fields, err := r.client.HGetAll(ctx, r.sessionKey(id)).Result()
	if err != nil {
		return nil, unavailable("get session", err)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: session %s", repositories.ErrNotFound, id)
	}
	return decodeSession(id, fields)
}

// FindActive follows the client index to the active session
func (r *SessionRepository) FindActive(ctx context.Context, userID int64, userAgent string) (*models.Session, error) {
	id, err := r.client.Get(ctx, r.clientKey(userID, userAgent)).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, fmt.Errorf("%w: no active session", repositories.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("find active session", err)
	}
	return r.GetByID(ctx, id)
}

// Rotate revokes oldID and stores next in one script
func (r *SessionRepository) Rotate(ctx context.Context, oldID string, next *models.Session) error {
	keys := []string{
		r.sessionKey(oldID),
		r.sessionKey(next.ID),
		r.clientKey(next.UserID, next.UserAgent),
		r.userKey(next.UserID),
	}
	args := append([]interface{}{oldID, next.ID}, r.sessionArgs(next)...)

	status, err := rotateSessionLua.Run(ctx, r.client, keys, args...).Int64()
	if err != nil {
		return unavailable("rotate session", err)
	}
	switch status {
	case 1:
		r.logger.Debug("session rotated",
			zap.String("old_session_id", oldID),
			zap.String("session_id", next.ID))
		return nil
	case 0:
		return fmt.Errorf("%w: %s", repositories.ErrStaleSession, oldID)
	case -2:
		return fmt.Errorf("%w: user %d", repositories.ErrDuplicateSession, next.UserID)
	default:
		return fmt.Errorf("session id %s already used", next.ID)
	}
}

// Revoke deactivates the session if active
func (r *SessionRepository) Revoke(ctx context.Context, id string) (bool, error) {
	status, err := r.revoke(ctx, id)
	if err != nil {
		return false, err
	}
	return status == 1, nil
}

func (r *SessionRepository) revoke(ctx context.Context, id string) (int64, error) {
	status, err := revokeSessionLua.Run(ctx, r.client, []string{r.sessionKey(id)}, id).Int64()
	if err != nil {
		return 0, unavailable("revoke session", err)
	}
	return status, nil
}

// RevokeAllForUser revokes each member of the user's set. Members whose hash has
// already expired are pruned from the set.
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	userKey := r.userKey(userID)
	ids, err := r.client.SMembers(ctx, userKey).Result()
	if err != nil {
		return 0, unavailable("list user sessions", err)
	}

	revoked := 0
	for _, id := range ids {
		status, err := r.revoke(ctx, id)
		if err != nil {
			return revoked, err
		}
		switch status {
		case 1:
			revoked++
		case -1:
			if err := r.client.SRem(ctx, userKey, id).Err(); err != nil {
				r.logger.Warn("failed to prune session index", zap.String("session_id", id), zap.Error(err))
			}
		}
	}
	return revoked, nil
}

// Ping reports whether the server answers
func (r *SessionRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

func decodeSession(id string, fields map[string]string) (*models.Session, error) {
	userID, err := strconv.ParseInt(fields["user_id"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: user_id: %w", id, err)
	}
	createdMs, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: created_at: %w", id, err)
	}
	expiresMs, err := strconv.ParseInt(fields["expires_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("corrupt session %s: expires_at: %w", id, err)
	}
	return &models.Session{
		ID:        id,
		UserID:    userID,
		UserAgent: fields["user_agent"],
		CreatedAt: time.UnixMilli(createdMs).UTC(),
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
		IsActive:  fields["is_active"] == "1",
	}, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", repositories.ErrStoreUnavailable, op, err)
}
