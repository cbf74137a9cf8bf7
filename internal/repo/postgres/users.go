package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/user"
	"github.com/geocoder89/scribe/internal/domain/verification"
	"github.com/geocoder89/scribe/internal/observability"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UsersRepo is the credential store: user rows and their verification codes.
type UsersRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewUsersRepo(pool *pgxpool.Pool, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{pool: pool, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

const userColumns = `id::text, email, password_hash, is_verified, tier, created_at, updated_at`

func scanUser(row pgx.Row) (user.User, error) {
	var u user.User
	var tier string

	err := row.Scan(
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.Verified,
		&tier,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	u.Tier = user.Tier(tier)
	return u, err
}

func (r *UsersRepo) Exists(ctx context.Context, email string) (bool, error) {
	var exists bool

	err := r.observe("users.exists", func() error {
		return r.pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM users WHERE email = $1)`,
			email,
		).Scan(&exists)
	})
	if err != nil {
		return false, apperr.Storage("users.exists", err)
	}
	return exists, nil
}

func (r *UsersRepo) Insert(ctx context.Context, email, passwordHash string, at time.Time) (user.User, error) {
	u := user.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: passwordHash,
		Tier:         user.TierFree,
		CreatedAt:    at,
		UpdatedAt:    at,
	}

	err := r.observe("users.insert", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO users (id, email, password_hash, is_verified, tier, created_at, updated_at)
			VALUES ($1, $2, $3, false, $4, $5, $6)
		`, u.ID, u.Email, u.PasswordHash, string(u.Tier), u.CreatedAt, u.UpdatedAt)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return user.User{}, apperr.ErrConflict
		}
		return user.User{}, apperr.Storage("users.insert", err)
	}
	return u, nil
}

func (r *UsersRepo) FindByEmail(ctx context.Context, email string) (user.User, error) {
	var u user.User

	err := r.observe("users.find_by_email", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE email = $1`, email))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, apperr.ErrNotFoundOrForbidden
		}
		return user.User{}, apperr.Storage("users.find_by_email", err)
	}
	return u, nil
}

func (r *UsersRepo) Get(ctx context.Context, userID string) (user.User, error) {
	var u user.User

	err := r.observe("users.get", func() error {
		var err error
		u, err = scanUser(r.pool.QueryRow(ctx,
			`SELECT `+userColumns+` FROM users WHERE id = $1::uuid`, userID))
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return user.User{}, apperr.ErrNotFoundOrForbidden
		}
		return user.User{}, apperr.Storage("users.get", err)
	}
	return u, nil
}

func (r *UsersRepo) UpdatePasswordHash(ctx context.Context, userID, passwordHash string, at time.Time) error {
	var tag pgconn.CommandTag

	err := r.observe("users.update_password", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
			UPDATE users
			SET password_hash = $2, updated_at = $3
			WHERE id = $1::uuid
		`, userID, passwordHash, at)
		return err
	})
	if err != nil {
		return apperr.Storage("users.update_password", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFoundOrForbidden
	}
	return nil
}

// UpdateEmail replaces the identity and drops the verified flag in the same
// statement.
func (r *UsersRepo) UpdateEmail(ctx context.Context, userID, email string, at time.Time) error {
	var tag pgconn.CommandTag

	err := r.observe("users.update_email", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
			UPDATE users
			SET email = $2, is_verified = false, updated_at = $3
			WHERE id = $1::uuid
		`, userID, email, at)
		return err
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return apperr.ErrConflict
		}
		return apperr.Storage("users.update_email", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFoundOrForbidden
	}
	return nil
}

func (r *UsersRepo) InsertCode(ctx context.Context, c verification.Code) error {
	err := r.observe("codes.insert", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO verification_codes (user_id, code, expires_at, created_at)
			VALUES ($1::uuid, $2, $3, $4)
		`, c.UserID, c.Code, c.ExpiresAt, c.CreatedAt)
		return err
	})
	if err != nil {
		return apperr.Storage("codes.insert", err)
	}
	return nil
}

// ConsumeCode redeems one matching unexpired code and marks the user verified
// in a single transaction. It reports false when nothing matched.
func (r *UsersRepo) ConsumeCode(ctx context.Context, userID, code string, at time.Time) (ok bool, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, apperr.Storage("codes.consume.begin", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id int64
	err = r.observe("codes.consume", func() error {
		return tx.QueryRow(ctx, `
			UPDATE verification_codes
			SET consumed_at = $3
			WHERE id = (
				SELECT id FROM verification_codes
				WHERE user_id = $1::uuid
				  AND code = $2
				  AND consumed_at IS NULL
				  AND expires_at > $3
				ORDER BY expires_at DESC
				LIMIT 1
				FOR UPDATE SKIP LOCKED
			)
			RETURNING id
		`, userID, code, at).Scan(&id)
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, apperr.Storage("codes.consume", err)
	}

	err = r.observe("users.mark_verified", func() error {
		_, err := tx.Exec(ctx, `
			UPDATE users SET is_verified = true, updated_at = $2 WHERE id = $1::uuid
		`, userID, at)
		return err
	})
	if err != nil {
		return false, apperr.Storage("users.mark_verified", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return false, apperr.Storage("codes.consume.commit", err)
	}
	return true, nil
}

// DeleteStaleCodes removes consumed codes and codes that expired before cutoff.
func (r *UsersRepo) DeleteStaleCodes(ctx context.Context, cutoff time.Time) (int64, error) {
	var tag pgconn.CommandTag

	err := r.observe("codes.delete_stale", func() error {
		var err error
		tag, err = r.pool.Exec(ctx, `
			DELETE FROM verification_codes
			WHERE consumed_at IS NOT NULL OR expires_at < $1
		`, cutoff)
		return err
	})
	if err != nil {
		return 0, apperr.Storage("codes.delete_stale", err)
	}
	return tag.RowsAffected(), nil
}

func (r *UsersRepo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError

	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return true
	}
	return false
}
