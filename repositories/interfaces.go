package repositories

import (
	"context"
	"errors"

	"github.com/upb/sessionauth/models"
)

var (
	// ErrNotFound is returned when a lookup matches no row
	ErrNotFound = errors.New("record not found")

	// ErrDuplicateSession is returned when an active session already exists for the same user and client
	ErrDuplicateSession = errors.New("active session already exists for client")

	// ErrStaleSession is returned by Rotate when the old session was no longer active
	ErrStaleSession = errors.New("session no longer active")

	// ErrDuplicateUser is returned when the external identity is already registered
	ErrDuplicateUser = errors.New("user already exists")

	// ErrStoreUnavailable wraps every backend failure (network, timeout, driver)
	ErrStoreUnavailable = errors.New("session store unavailable")
)

// TransactionManager manages database transactions
type TransactionManager interface {
	// Begin starts a new transaction
	Begin(ctx context.Context) (Transaction, error)

	// InTransaction executes fn within a transaction carried by the context handed to fn.
	// Commits if fn succeeds, rolls back on error.
	InTransaction(ctx context.Context, fn func(ctx context.Context, tx Transaction) error) error
}

// Transaction represents a database transaction
type Transaction interface {
	Commit() error
	Rollback() error
	Context() context.Context
}

// UserRepository is the principal lookup used by the auth service
type UserRepository interface {
	// Create inserts the user and fills in its ID; ErrDuplicateUser on a taken telegram id
	Create(ctx context.Context, user *models.User) error

	// GetByID retrieves a user by internal ID
	GetByID(ctx context.Context, id int64) (*models.User, error)

	// GetByTelegramID retrieves a user by external identity
	GetByTelegramID(ctx context.Context, telegramID int64) (*models.User, error)
}

// SessionRepository is the durable session store. Implementations must make Create,
// Rotate and Revoke atomic with respect to each other.
type SessionRepository interface {
	// Create stores a new active session; ErrDuplicateSession when the client already has one
	Create(ctx context.Context, session *models.Session) error

	// GetByID retrieves a session regardless of state; ErrNotFound when absent
	GetByID(ctx context.Context, id string) (*models.Session, error)

	// FindActive returns the active session for (user, client); ErrNotFound when none
	FindActive(ctx context.Context, userID int64, userAgent string) (*models.Session, error)

	// Rotate revokes oldID and stores next in one step, only if oldID is still active.
	// ErrStaleSession when the compare fails; nothing is written in that case.
	Rotate(ctx context.Context, oldID string, next *models.Session) error

	// Revoke deactivates the session if active. Reports whether this call changed it.
	Revoke(ctx context.Context, id string) (bool, error)

	// RevokeAllForUser deactivates every active session of the user and returns how many changed
	RevokeAllForUser(ctx context.Context, userID int64) (int, error)
}

// Repositories aggregates the repositories the service is built from
type Repositories struct {
	Users    UserRepository
	Sessions SessionRepository
}
