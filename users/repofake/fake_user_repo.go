package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/go-task-auth/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

type FakeUserRepo struct {
	users    map[uuid.UUID]*users.User
	emailIds map[string]uuid.UUID // email to user id
	lock     sync.RWMutex

	// FailWith, when set, is returned from every call to simulate a store outage.
	FailWith error
	// FailWrites, when set, is returned from the update methods only.
	FailWrites error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users:    make(map[uuid.UUID]*users.User),
		emailIds: make(map[string]uuid.UUID),
	}
}

// Upsert seeds a user. The auth core never creates users; tests and the dev bootstrap do.
func (ur *FakeUserRepo) Upsert(user *users.User) {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	ur.users[user.ID] = &stored
	if user.Email != "" {
		ur.emailIds[user.Email] = user.ID
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if err := ur.writeErr(); err != nil {
		return err
	}
	if _, exists := ur.emailIds[user.Email]; exists {
		return users.ErrEmailTaken
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	stored := *user
	ur.users[user.ID] = &stored
	ur.emailIds[user.Email] = user.ID
	return nil
}

func (ur *FakeUserRepo) GetByID(_ context.Context, id uuid.UUID) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	if ur.FailWith != nil {
		return nil, ur.FailWith
	}

	user, ok := ur.users[id]
	if !ok {
		return nil, users.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (ur *FakeUserRepo) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	ur.lock.RLock()
	id, ok := ur.emailIds[email]
	ur.lock.RUnlock()
	if !ok {
		return nil, users.ErrNotFound
	}
	return ur.GetByID(ctx, id)
}

func (ur *FakeUserRepo) UpdateLastAuthenticated(_ context.Context, id uuid.UUID, at time.Time) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if err := ur.writeErr(); err != nil {
		return err
	}

	user, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	user.LastAuthenticatedAt = &at
	return nil
}

func (ur *FakeUserRepo) SetEncryptedCredential(_ context.Context, id uuid.UUID, encrypted string) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if err := ur.writeErr(); err != nil {
		return err
	}

	user, ok := ur.users[id]
	if !ok {
		return users.ErrNotFound
	}
	user.EncryptedCredential = encrypted
	return nil
}

// SetWhitelisted flips the whitelist gate for a user.
func (ur *FakeUserRepo) SetWhitelisted(id uuid.UUID, whitelisted bool) {
	ur.lock.Lock()
	defer ur.lock.Unlock()
	if user, ok := ur.users[id]; ok {
		user.IsWhitelisted = whitelisted
	}
}

func (ur *FakeUserRepo) writeErr() error {
	if ur.FailWith != nil {
		return ur.FailWith
	}
	return ur.FailWrites
}
