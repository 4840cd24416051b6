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

const userColumns = `id, telegram_id, username, is_admin, created_at, updated_at`

var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository implements repositories.UserRepository
type UserRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *DB, logger *zap.Logger) *UserRepository {
	return &UserRepository{db: db, logger: logger}
}

// Create inserts the user and sets its generated ID
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (telegram_id, username, is_admin, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query,
		user.TelegramID,
		user.Username,
		user.IsAdmin,
		user.CreatedAt,
		user.UpdatedAt,
	).Scan(&user.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: telegram_id %d", repositories.ErrDuplicateUser, user.TelegramID)
		}
		return unavailable("create user", err)
	}

	r.logger.Debug("user created", zap.Int64("id", user.ID), zap.Int64("telegram_id", user.TelegramID))
	return nil
}

// GetByID retrieves a user by internal ID
func (r *UserRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, "get user by id", query, id)
}

// GetByTelegramID retrieves a user by external identity
func (r *UserRepository) GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE telegram_id = $1`
	return r.getOne(ctx, "get user by telegram id", query, telegramID)
}

func (r *UserRepository) getOne(ctx context.Context, op, query string, arg interface{}) (*models.User, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	user := &models.User{}
	err := GetExecutor(ctx, r.db).QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.TelegramID,
		&user.Username,
		&user.IsAdmin,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: user %v", repositories.ErrNotFound, arg)
		}
		return nil, unavailable(op, err)
	}
	return user, nil
}
