// Package accounts implements registration, login and account mutations.
package accounts

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/user"
	"github.com/geocoder89/scribe/internal/security"
	"github.com/go-playground/validator/v10"
)

type Store interface {
	Insert(ctx context.Context, email, passwordHash string, at time.Time) (user.User, error)
	FindByEmail(ctx context.Context, email string) (user.User, error)
	Get(ctx context.Context, userID string) (user.User, error)
	UpdatePasswordHash(ctx context.Context, userID, passwordHash string, at time.Time) error
	UpdateEmail(ctx context.Context, userID, email string, at time.Time) error
}

// TokenIssuer is satisfied by *auth.Manager.
type TokenIssuer interface {
	Issue(userID string) (string, time.Time, error)
}

type Service struct {
	store    Store
	hasher   security.Hasher
	tokens   TokenIssuer
	validate *validator.Validate
	log      *slog.Logger
	now      func() time.Time
}

func New(store Store, hasher security.Hasher, tokens TokenIssuer, log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		validate: validator.New(),
		log:      log,
		now:      time.Now,
	}
}

func (s *Service) checkEmail(email string) error {
	if err := s.validate.Var(email, "required,email,max=254"); err != nil {
		return apperr.Validation("email is not a valid address")
	}
	return nil
}

func checkPassword(password string) error {
	switch {
	case len(password) < user.MinPasswordLen:
		return apperr.Validation("password must be at least 8 characters")
	case len(password) > user.MaxPasswordLen:
		return apperr.Validation("password must be at most 72 bytes")
	}
	return nil
}

// Register creates an unverified free-tier account and issues a session.
func (s *Service) Register(ctx context.Context, email, password string) (user.User, string, error) {
	email = user.NormalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return user.User{}, "", err
	}
	if err := checkPassword(password); err != nil {
		return user.User{}, "", err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return user.User{}, "", err
	}

	u, err := s.store.Insert(ctx, email, hash, s.now().UTC())
	if err != nil {
		return user.User{}, "", err
	}

	token, _, err := s.tokens.Issue(u.ID)
	if err != nil {
		return user.User{}, "", err
	}

	s.log.InfoContext(ctx, "user registered", "user_id", u.ID)
	return u, token, nil
}

// Login never reveals whether the email exists.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	email = user.NormalizeEmail(email)

	u, err := s.store.FindByEmail(ctx, email)
	if errors.Is(err, apperr.ErrNotFoundOrForbidden) {
		s.hasher.CompareDummy(password)
		return "", apperr.ErrInvalidCredential
	}
	if err != nil {
		return "", err
	}

	if err := s.hasher.Compare(u.PasswordHash, password); err != nil {
		if !errors.Is(err, security.ErrPasswordMismatch) {
			s.log.ErrorContext(ctx, "password compare failed", "user_id", u.ID, "err", err)
		}
		return "", apperr.ErrInvalidCredential
	}

	token, _, err := s.tokens.Issue(u.ID)
	if err != nil {
		return "", err
	}
	return token, nil
}

func (s *Service) Account(ctx context.Context, userID string) (user.Account, error) {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return user.Account{}, err
	}
	return u.Account(), nil
}

// ChangeEmail resets the verified flag. Setting the current address again is
// a no-op and keeps the flag.
func (s *Service) ChangeEmail(ctx context.Context, userID, email string) error {
	email = user.NormalizeEmail(email)
	if err := s.checkEmail(email); err != nil {
		return err
	}

	current, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}
	if current.Email == email {
		return nil
	}

	if err := s.store.UpdateEmail(ctx, userID, email, s.now().UTC()); err != nil {
		return err
	}

	s.log.InfoContext(ctx, "email changed", "user_id", userID)
	return nil
}

func (s *Service) ChangePassword(ctx context.Context, userID, password string) error {
	if err := checkPassword(password); err != nil {
		return err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}

	return s.store.UpdatePasswordHash(ctx, userID, hash, s.now().UTC())
}
