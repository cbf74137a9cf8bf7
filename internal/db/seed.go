package db

import (
	"context"
	"errors"
	"log/slog"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/user"
)

// Registrar is the slice of the account service the seeder needs.
type Registrar interface {
	Register(ctx context.Context, email, password string) (user.User, string, error)
}

// EnsureSeedUser creates a local account for development when SEED_EMAIL and
// SEED_PASSWORD are set. An existing account is left untouched.
func EnsureSeedUser(ctx context.Context, accounts Registrar, log *slog.Logger, email, password string) error {
	if email == "" || password == "" {
		return nil
	}

	_, _, err := accounts.Register(ctx, email, password)

	if errors.Is(err, apperr.ErrConflict) {
		return nil
	}

	if err != nil {
		return err
	}

	log.InfoContext(ctx, "seed user created", "email", user.NormalizeEmail(email))
	return nil
}
