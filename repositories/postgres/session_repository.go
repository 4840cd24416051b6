package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/repositories"
	"go.uber.org/zap"
)

const sessionColumns = `id, user_id, user_agent, created_at, expires_at, is_active`

var _ repositories.SessionRepository = (*SessionRepository)(nil)

// SessionRepository implements repositories.SessionRepository on user_sessions.
// The partial unique index on (user_id, user_agent) WHERE is_active backs ErrDuplicateSession.
type SessionRepository struct {
	db     *DB
	tm     *TransactionManager
	logger *zap.Logger
}

// NewSessionRepository creates a new session repository
func NewSessionRepository(db *DB, logger *zap.Logger) *SessionRepository {
	return &SessionRepository{
		db:     db,
		tm:     NewTransactionManager(db, logger),
		logger: logger,
	}
}

// Create inserts an active session
func (r *SessionRepository) Create(ctx context.Context, session *models.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	if err := r.insert(ctx, session); err != nil {
		return err
	}
	r.logger.Debug("session created",
		zap.String("session_id", session.ID),
		zap.Int64("user_id", session.UserID))
	return nil
}

func (r *SessionRepository) insert(ctx context.Context, session *models.Session) error {
	query := `
		INSERT INTO user_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := GetExecutor(ctx, r.db).ExecContext(ctx, query,
		session.ID,
		session.UserID,
		session.UserAgent,
		session.CreatedAt,
		session.ExpiresAt,
		session.IsActive,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: user %d", repositories.ErrDuplicateSession, session.UserID)
		}
		return unavailable("insert session", err)
	}
	return nil
}

// GetByID retrieves a session by ID
func (r *SessionRepository) GetByID(ctx context.Context, id string) (*models.Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM user_sessions WHERE id = $1`
	return r.getOne(ctx, "get session", query, id)
}

// FindActive returns the newest active session for the user and client
func (r *SessionRepository) FindActive(ctx context.Context, userID int64, userAgent string) (*models.Session, error) {
	query := `
		SELECT ` + sessionColumns + `
		FROM user_sessions
		WHERE user_id = $1 AND user_agent = $2 AND is_active
		ORDER BY created_at DESC
		LIMIT 1
	`
	return r.getOne(ctx, "find active session", query, userID, userAgent)
}

func (r *SessionRepository) getOne(ctx context.Context, op, query string, args ...interface{}) (*models.Session, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	s := &models.Session{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, args...).Scan(
		&s.ID,
		&s.UserID,
		&s.UserAgent,
		&s.CreatedAt,
		&s.ExpiresAt,
		&s.IsActive,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: session", repositories.ErrNotFound)
		}
		return nil, unavailable(op, err)
	}
	return s, nil
}

// Rotate deactivates oldID and inserts next in one transaction. The UPDATE's
// "AND is_active" predicate is the compare: a concurrent rotation that committed
// first leaves zero rows for this one.
func (r *SessionRepository) Rotate(ctx context.Context, oldID string, next *models.Session) error {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := r.tm.InTransaction(ctx, func(txCtx context.Context, _ repositories.Transaction) error {
		changed, err := r.deactivate(txCtx, oldID)
		if err != nil {
			return err
		}
		if !changed {
			return fmt.Errorf("%w: %s", repositories.ErrStaleSession, oldID)
		}
		return r.insert(txCtx, next)
	})
	if err != nil {
		return err
	}

	r.logger.Debug("session rotated",
		zap.String("old_session_id", oldID),
		zap.String("new_session_id", next.ID))
	return nil
}

// Revoke deactivates the session if it is still active
func (r *SessionRepository) Revoke(ctx context.Context, id string) (bool, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()
	return r.deactivate(ctx, id)
}

func (r *SessionRepository) deactivate(ctx context.Context, id string) (bool, error) {
	query := `UPDATE user_sessions SET is_active = false WHERE id = $1 AND is_active`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return false, unavailable("revoke session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, unavailable("revoke session", err)
	}
	return n == 1, nil
}

// RevokeAllForUser deactivates every active session of the user
func (r *SessionRepository) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	query := `UPDATE user_sessions SET is_active = false WHERE user_id = $1 AND is_active`
	res, err := GetExecutor(ctx, r.db).ExecContext(ctx, query, userID)
	if err != nil {
		return 0, unavailable("revoke user sessions", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, unavailable("revoke user sessions", err)
	}
	return int(n), nil
}
