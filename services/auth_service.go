package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/sessionauth/config"
	"github.com/upb/sessionauth/internal/observability"
	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/repositories"
	"github.com/upb/sessionauth/tokens"
	"go.uber.org/zap"
)

// Operation names used for metrics and logs
const (
	OpLogin        = "login"
	OpIssue        = "issue"
	OpAuthenticate = "authenticate"
	OpRefresh      = "refresh"
	OpLogout       = "logout"
	OpRevokeAll    = "revoke_all"
)

// TokenPair is what a successful issue or refresh hands back to the transport layer
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	SessionID        string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// AuthService owns the session state machine: issue, authenticate, rotate, revoke.
// All shared state lives in the session store.
type AuthService struct {
	cfg       config.AuthConfig
	users     repositories.UserRepository
	sessions  repositories.SessionRepository
	codec     *tokens.Codec
	validator *tokens.ClaimValidator
	metrics   observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
	newID     func() string
}

// Option customizes an AuthService
type Option func(*AuthService)

// WithClock replaces time.Now for tokens and session timestamps
func WithClock(now func() time.Time) Option {
	return func(s *AuthService) { s.now = now }
}

// WithIDGenerator replaces the random session id source
func WithIDGenerator(newID func() string) Option {
	return func(s *AuthService) { s.newID = newID }
}

// WithMetrics records every operation outcome
func WithMetrics(m observability.Metrics) Option {
	return func(s *AuthService) { s.metrics = m }
}

// NewAuthService creates a new AuthService instance. cfg is copied and never read from the environment again.
func NewAuthService(cfg config.AuthConfig, repos repositories.Repositories, logger *zap.Logger, opts ...Option) (*AuthService, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid auth config: %w", err)
	}
	if repos.Users == nil || repos.Sessions == nil {
		return nil, fmt.Errorf("user and session repositories are required")
	}

	s := &AuthService{
		cfg:      cfg,
		users:    repos.Users,
		sessions: repos.Sessions,
		metrics:  observability.NopMetrics{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	codec, err := tokens.NewCodec(cfg, s.now)
	if err != nil {
		return nil, err
	}
	s.codec = codec
	s.validator = tokens.NewClaimValidator(cfg.Issuer, cfg.Audience, cfg.ClockSkew, s.now)
	return s, nil
}

// Login resolves the principal by external id and issues a token pair for the client
func (s *AuthService) Login(ctx context.Context, telegramID int64, userAgent string) (user *models.User, pair *TokenPair, err error) {
	defer s.observe(OpLogin, time.Now(), &err)

	if telegramID <= 0 {
		return nil, nil, ErrInvalidInput.Wrap(nil).WithDetail("field", "telegram_id")
	}
	user, err = s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, ErrUserNotFound.Wrap(err)
		}
		return nil, nil, storeError(err)
	}

	pair, err = s.issue(ctx, user, userAgent)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Info("user logged in",
		zap.Int64("user_id", user.ID),
		zap.String("session_id", pair.SessionID))
	return user, pair, nil
}

// Issue binds a fresh token pair to the client's active session, creating one if needed.
// Two issues from the same client share one session id.
func (s *AuthService) Issue(ctx context.Context, user *models.User, userAgent string) (pair *TokenPair, err error) {
	defer s.observe(OpIssue, time.Now(), &err)
	if user == nil {
		return nil, ErrInvalidInput.Wrap(errors.New("nil principal"))
	}
	return s.issue(ctx, user, userAgent)
}

func (s *AuthService) issue(ctx context.Context, user *models.User, userAgent string) (*TokenPair, error) {
	now := s.now()

	session, err := s.sessions.FindActive(ctx, user.ID, userAgent)
	switch {
	case err == nil && session.IsExpired(now):
		// an active row past expires_at must not be handed out again
		if _, err := s.sessions.Revoke(ctx, session.ID); err != nil {
			return nil, storeError(err)
		}
		s.logger.Debug("revoked expired session before issue", zap.String("session_id", session.ID))
		session = nil
	case err == nil:
	case errors.Is(err, repositories.ErrNotFound):
		session = nil
	default:
		return nil, storeError(err)
	}

	if session == nil {
		session = s.newSession(user.ID, userAgent, now)
		if err := s.sessions.Create(ctx, session); err != nil {
			if !errors.Is(err, repositories.ErrDuplicateSession) {
				return nil, storeError(err)
			}
			// a concurrent login from the same client won the insert
			session, err = s.sessions.FindActive(ctx, user.ID, userAgent)
			if err != nil {
				return nil, storeError(err)
			}
		}
		s.logger.Debug("session created",
			zap.String("session_id", session.ID),
			zap.Int64("user_id", user.ID))
	}

	return s.mintPair(user, session.ID, now)
}

// Authenticate verifies an access token against its session and returns the principal.
// Nothing is written.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (user *models.User, err error) {
	defer s.observe(OpAuthenticate, time.Now(), &err)

	claims, err := s.verify(accessToken, tokens.KindAccess)
	if err != nil {
		return nil, err
	}
	_, user, err = s.loadSession(ctx, claims)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// Refresh rotates the session behind a refresh token. The old session is revoked
// and the new one created in a single store operation, so a refresh token rotates at most once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (pair *TokenPair, err error) {
	defer s.observe(OpRefresh, time.Now(), &err)

	claims, err := s.verify(refreshToken, tokens.KindRefresh)
	if err != nil {
		return nil, err
	}
	session, user, err := s.loadSession(ctx, claims)
	if err != nil {
		if errors.Is(err, ErrSessionRevoked) {
			s.logger.Warn("refresh with revoked session rejected", zap.String("session_id", claims.SessionID))
		}
		return nil, err
	}

	now := s.now()
	if session.IsExpired(now) {
		if _, rerr := s.sessions.Revoke(ctx, session.ID); rerr != nil {
			s.logger.Warn("failed to revoke expired session",
				zap.String("session_id", session.ID),
				zap.Error(rerr))
		}
		return nil, ErrSessionExpired.Wrap(nil).WithDetail("session_id", session.ID)
	}

	next := s.newSession(user.ID, session.UserAgent, now)
	if err := s.sessions.Rotate(ctx, session.ID, next); err != nil {
		if errors.Is(err, repositories.ErrStaleSession) {
			s.logger.Warn("refresh token replay rejected", zap.String("session_id", session.ID))
			return nil, ErrSessionRevoked.Wrap(err)
		}
		return nil, storeError(err)
	}

	s.logger.Info("session rotated",
		zap.String("old_session_id", session.ID),
		zap.String("session_id", next.ID),
		zap.Int64("user_id", user.ID))
	return s.mintPair(user, next.ID, now)
}

// Logout revokes the session behind an access token. An expired access token is
// accepted. Missing, foreign or already revoked sessions are not an error.
func (s *AuthService) Logout(ctx context.Context, accessToken string) (err error) {
	defer s.observe(OpLogout, time.Now(), &err)

	if accessToken == "" {
		return ErrTokenAbsent
	}
	claims, err := s.codec.DecodeIgnoringExpiry(accessToken)
	if err != nil {
		return ErrTokenMalformed.Wrap(err)
	}
	if claims.SessionID == "" || claims.Subject == "" || claims.Kind != tokens.KindAccess {
		return ErrInvalidClaims.Wrap(fmt.Errorf("logout requires an access token with sid and sub"))
	}

	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if errors.Is(err, repositories.ErrNotFound) {
		return nil
	}
	if err != nil {
		return storeError(err)
	}

	user, err := s.principal(ctx, claims.Subject)
	if errors.Is(err, ErrPrincipalNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.UserID != user.ID {
		s.logger.Warn("logout for foreign session ignored",
			zap.String("session_id", session.ID),
			zap.Int64("user_id", user.ID))
		return nil
	}

	revoked, err := s.sessions.Revoke(ctx, session.ID)
	if err != nil {
		return storeError(err)
	}
	if revoked {
		s.logger.Info("session revoked", zap.String("session_id", session.ID), zap.Int64("user_id", user.ID))
	}
	return nil
}

// RevokeAll signs a user out of every client and reports how many sessions were active
func (s *AuthService) RevokeAll(ctx context.Context, telegramID int64) (count int, err error) {
	defer s.observe(OpRevokeAll, time.Now(), &err)

	if telegramID <= 0 {
		return 0, ErrInvalidInput.Wrap(nil).WithDetail("field", "telegram_id")
	}
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return 0, ErrUserNotFound.Wrap(err)
		}
		return 0, storeError(err)
	}

	count, err = s.sessions.RevokeAllForUser(ctx, user.ID)
	if err != nil {
		return count, storeError(err)
	}
	s.logger.Info("revoked all sessions", zap.Int64("user_id", user.ID), zap.Int("count", count))
	return count, nil
}

// verify decodes and validates a token of the expected kind
func (s *AuthService) verify(token string, kind tokens.Kind) (*tokens.Claims, error) {
	if token == "" {
		return nil, ErrTokenAbsent
	}
	claims, err := s.codec.Decode(token)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return nil, ErrTokenExpired.Wrap(err)
		}
		return nil, ErrTokenMalformed.Wrap(err)
	}
	claims, err = s.validator.Validate(claims, kind)
	if err != nil {
		if errors.Is(err, tokens.ErrExpired) {
			return nil, ErrTokenExpired.Wrap(err)
		}
		return nil, ErrInvalidClaims.Wrap(err)
	}
	return claims, nil
}

// loadSession resolves the session and principal a verified token points at
func (s *AuthService) loadSession(ctx context.Context, claims *tokens.Claims) (*models.Session, *models.User, error) {
	session, err := s.sessions.GetByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, nil, ErrSessionNotFound.Wrap(err).WithDetail("session_id", claims.SessionID)
		}
		return nil, nil, storeError(err)
	}
	if !session.IsActive {
		return nil, nil, ErrSessionRevoked.Wrap(nil).WithDetail("session_id", session.ID)
	}

	user, err := s.principal(ctx, claims.Subject)
	if err != nil {
		return nil, nil, err
	}
	if session.UserID != user.ID {
		return nil, nil, ErrSessionMismatch.Wrap(nil).WithDetail("session_id", session.ID)
	}
	return session, user, nil
}

func (s *AuthService) principal(ctx context.Context, subject string) (*models.User, error) {
	telegramID, err := models.ParseSubject(subject)
	if err != nil {
		return nil, ErrPrincipalNotFound.Wrap(err)
	}
	user, err := s.users.GetByTelegramID(ctx, telegramID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrPrincipalNotFound.Wrap(err)
		}
		return nil, storeError(err)
	}
	return user, nil
}

func (s *AuthService) newSession(userID int64, userAgent string, now time.Time) *models.Session {
	session := models.NewSession(userID, userAgent, now, s.cfg.RefreshTokenTTL)
	if s.newID != nil {
		session.ID = s.newID()
	}
	return session
}

func (s *AuthService) mintPair(user *models.User, sessionID string, now time.Time) (*TokenPair, error) {
	access, err := s.codec.Encode(user.Subject(), sessionID, tokens.KindAccess, s.cfg.AccessTokenTTL)
	if err != nil {
		return nil, WrapInternal("failed to sign access token", err)
	}
	refresh, err := s.codec.Encode(user.Subject(), sessionID, tokens.KindRefresh, s.cfg.RefreshTokenTTL)
	if err != nil {
		return nil, WrapInternal("failed to sign refresh token", err)
	}
	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		SessionID:        sessionID,
		AccessExpiresAt:  now.Add(s.cfg.AccessTokenTTL),
		RefreshExpiresAt: now.Add(s.cfg.RefreshTokenTTL),
	}, nil
}

func (s *AuthService) observe(op string, start time.Time, errp *error) {
	outcome := observability.OutcomeOK
	if *errp != nil {
		if outcome = GetErrorCode(*errp); outcome == "" {
			outcome = ErrInternal.Code
		}
	}
	s.metrics.ObserveOperation(op, outcome, time.Since(start))
}

// storeError maps repository failures that are not domain outcomes
func storeError(err error) error {
	switch {
	case errors.Is(err, repositories.ErrStoreUnavailable):
		return ErrStoreUnavailable.Wrap(err)
	case errors.Is(err, repositories.ErrNotFound):
		return ErrSessionNotFound.Wrap(err)
	default:
		return WrapInternal("session store error", err)
	}
}
