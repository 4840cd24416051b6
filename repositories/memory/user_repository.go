package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/upb/sessionauth/models"
	"github.com/upb/sessionauth/repositories"
)

var _ repositories.UserRepository = (*UserRepository)(nil)

// UserRepository is an in-memory principal store
type UserRepository struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]*models.User
}

// NewUserRepository creates an empty store
func NewUserRepository() *UserRepository {
	return &UserRepository{byID: make(map[int64]*models.User)}
}

// Create assigns the next ID and stores a copy
func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, u := range r.byID {
		if u.TelegramID == user.TelegramID {
			return fmt.Errorf("%w: telegram_id %d", repositories.ErrDuplicateUser, user.TelegramID)
		}
	}
	r.nextID++
	user.ID = r.nextID
	cp := *user
	r.byID[user.ID] = &cp
	return nil
}

// Delete removes a user; sessions referencing it are left to fail principal lookup
func (r *UserRepository) Delete(id int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byID, id)
}

// GetByID returns a copy of the user
func (r *UserRepository) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", repositories.ErrNotFound, id)
	}
	cp := *u
	return &cp, nil
}

// GetByTelegramID returns a copy of the user with that external identity
func (r *UserRepository) GetByTelegramID(_ context.Context, telegramID int64) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, u := range r.byID {
		if u.TelegramID == telegramID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%w: telegram_id %d", repositories.ErrNotFound, telegramID)
}
