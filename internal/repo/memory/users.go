package memory

import (
	"context"
	"sync"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/user"
	"github.com/geocoder89/scribe/internal/domain/verification"
	"github.com/google/uuid"
)

// UsersRepo is an in-process credential store with the same contract as the
// postgres one.
type UsersRepo struct {
	mu      sync.RWMutex
	byID    map[string]user.User
	byEmail map[string]string // email -> id
	codes   []verification.Code
	nextID  int64
}

func NewUsersRepo() *UsersRepo {
	return &UsersRepo{
		byID:    make(map[string]user.User),
		byEmail: make(map[string]string),
	}
}

func (r *UsersRepo) Exists(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	_, ok := r.byEmail[email]
	r.mu.RUnlock()

	return ok, nil
}

func (r *UsersRepo) Insert(_ context.Context, email, passwordHash string, at time.Time) (user.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byEmail[email]; ok {
		return user.User{}, apperr.ErrConflict
	}

	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Tier:         user.TierFree,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	r.byID[u.ID] = u
	r.byEmail[email] = u.ID

	return u, nil
}

func (r *UsersRepo) FindByEmail(_ context.Context, email string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byEmail[email]
	if !ok {
		return user.User{}, apperr.ErrNotFoundOrForbidden
	}
	return r.byID[id], nil
}

func (r *UsersRepo) Get(_ context.Context, userID string) (user.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.byID[userID]
	if !ok {
		return user.User{}, apperr.ErrNotFoundOrForbidden
	}
	return u, nil
}

func (r *UsersRepo) UpdatePasswordHash(_ context.Context, userID, passwordHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return apperr.ErrNotFoundOrForbidden
	}
	u.PasswordHash = passwordHash
	u.UpdatedAt = at
	r.byID[userID] = u

	return nil
}

func (r *UsersRepo) UpdateEmail(_ context.Context, userID, email string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.byID[userID]
	if !ok {
		return apperr.ErrNotFoundOrForbidden
	}
	if owner, taken := r.byEmail[email]; taken && owner != userID {
		return apperr.ErrConflict
	}

	delete(r.byEmail, u.Email)
	u.Email = email
	u.Verified = false
	u.UpdatedAt = at
	r.byID[userID] = u
	r.byEmail[email] = userID

	return nil
}

func (r *UsersRepo) InsertCode(_ context.Context, c verification.Code) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	c.ID = r.nextID
	r.codes = append(r.codes, c)

	return nil
}

func (r *UsersRepo) ConsumeCode(_ context.Context, userID, code string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.codes {
		c := &r.codes[i]
		if c.UserID != userID || c.Code != code || !c.Usable(at) {
			continue
		}

		consumed := at
		c.ConsumedAt = &consumed

		if u, ok := r.byID[userID]; ok {
			u.Verified = true
			u.UpdatedAt = at
			r.byID[userID] = u
		}
		return true, nil
	}

	return false, nil
}

func (r *UsersRepo) DeleteStaleCodes(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	kept := r.codes[:0]
	var deleted int64

	for _, c := range r.codes {
		if c.ConsumedAt != nil || c.ExpiresAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	r.codes = kept

	return deleted, nil
}

func (r *UsersRepo) Ping(context.Context) error {
	return nil
}
