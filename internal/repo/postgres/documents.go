package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/document"
	"github.com/geocoder89/scribe/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DocumentsRepo stores document rows. Every statement filters on user_id as
// well as doc_id.
type DocumentsRepo struct {
	pool *pgxpool.Pool
	prom *observability.Prom
}

func NewDocumentsRepo(pool *pgxpool.Pool, prom *observability.Prom) *DocumentsRepo {
	return &DocumentsRepo{pool: pool, prom: prom}
}

func (r *DocumentsRepo) observe(op string, fn func() error) error {
	return r.prom.ObserveDB(op, fn)
}

func (r *DocumentsRepo) Insert(ctx context.Context, ownerID, docID string, body json.RawMessage, at time.Time) (document.Document, error) {
	d := document.Document{
		DocID:      docID,
		OwnerID:    ownerID,
		Body:       body,
		CreatedAt:  at,
		ModifiedAt: at,
	}

	err := r.observe("documents.insert", func() error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO documents (doc_id, user_id, title, body, in_trash, created_at, modified_at)
			VALUES ($1::uuid, $2::uuid, '', $3::jsonb, false, $4, $4)
		`, docID, ownerID, string(body), at)
		return err
	})
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == "documents_doc_id_uniq" {
			return document.Document{}, document.ErrDuplicateID
		}
		return document.Document{}, apperr.Storage("documents.insert", err)
	}
	return d, nil
}

func (r *DocumentsRepo) Get(ctx context.Context, ownerID, docID string) (document.Document, error) {
	var d document.Document
	var body []byte

	err := r.observe("documents.get", func() error {
		return r.pool.QueryRow(ctx, `
			SELECT doc_id::text, user_id::text, title, body, in_trash, created_at, modified_at
			FROM documents
			WHERE user_id = $1::uuid AND doc_id = $2::uuid
		`, ownerID, docID).Scan(
			&d.DocID,
			&d.OwnerID,
			&d.Title,
			&body,
			&d.InTrash,
			&d.CreatedAt,
			&d.ModifiedAt,
		)
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return document.Document{}, apperr.ErrNotFoundOrForbidden
		}
		return document.Document{}, apperr.Storage("documents.get", err)
	}

	d.Body = json.RawMessage(body)
	return d, nil
}

func (r *DocumentsRepo) ListActive(ctx context.Context, ownerID string) ([]document.Summary, error) {
	return r.list(ctx, "documents.list_active", `
		SELECT doc_id::text, title, in_trash, modified_at
		FROM documents
		WHERE user_id = $1::uuid AND in_trash = false
		ORDER BY modified_at DESC, id DESC
	`, ownerID)
}

func (r *DocumentsRepo) ListTrashed(ctx context.Context, ownerID string) ([]document.Summary, error) {
	return r.list(ctx, "documents.list_trashed", `
		SELECT doc_id::text, title, in_trash, modified_at
		FROM documents
		WHERE user_id = $1::uuid AND in_trash = true
		ORDER BY modified_at DESC, id DESC
	`, ownerID)
}

func (r *DocumentsRepo) SearchActive(ctx context.Context, ownerID, substr string) ([]document.Summary, error) {
	return r.list(ctx, "documents.search_active", `
		SELECT doc_id::text, title, in_trash, modified_at
		FROM documents
		WHERE user_id = $1::uuid
		  AND in_trash = false
		  AND title ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY modified_at DESC, id DESC
	`, ownerID, escapeLike(substr))
}

func (r *DocumentsRepo) list(ctx context.Context, op, query string, args ...any) ([]document.Summary, error) {
	out := make([]document.Summary, 0)

	err := r.observe(op, func() error {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			var s document.Summary
			if err := rows.Scan(&s.DocID, &s.Title, &s.InTrash, &s.ModifiedAt); err != nil {
				return err
			}
			out = append(out, s)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, apperr.Storage(op, err)
	}
	return out, nil
}

// UpdateBody replaces the body and bumps modified_at.
func (r *DocumentsRepo) UpdateBody(ctx context.Context, ownerID, docID string, body json.RawMessage, at time.Time) error {
	return r.execOne(ctx, "documents.update_body", `
		UPDATE documents SET body = $3::jsonb, modified_at = $4
		WHERE user_id = $1::uuid AND doc_id = $2::uuid
	`, ownerID, docID, string(body), at)
}

func (r *DocumentsRepo) UpdateTitle(ctx context.Context, ownerID, docID, title string) error {
	return r.execOne(ctx, "documents.update_title", `
		UPDATE documents SET title = $3
		WHERE user_id = $1::uuid AND doc_id = $2::uuid
	`, ownerID, docID, title)
}

func (r *DocumentsRepo) TouchModified(ctx context.Context, ownerID, docID string, at time.Time) error {
	return r.execOne(ctx, "documents.touch_modified", `
		UPDATE documents SET modified_at = $3
		WHERE user_id = $1::uuid AND doc_id = $2::uuid
	`, ownerID, docID, at)
}

func (r *DocumentsRepo) SetTrash(ctx context.Context, ownerID, docID string, inTrash bool) error {
	return r.execOne(ctx, "documents.set_trash", `
		UPDATE documents SET in_trash = $3
		WHERE user_id = $1::uuid AND doc_id = $2::uuid
	`, ownerID, docID, inTrash)
}

// Restore moves the caller's trashed documents among ids back to active and
// reports how many rows changed.
func (r *DocumentsRepo) Restore(ctx context.Context, ownerID string, docIDs []string) (int, error) {
	return r.execMany(ctx, "documents.restore", `
		UPDATE documents SET in_trash = false
		WHERE user_id = $1::uuid AND doc_id = ANY($2::uuid[]) AND in_trash = true
	`, ownerID, docIDs)
}

// Purge hard-deletes the caller's trashed documents among ids. Active rows
// are never matched.
func (r *DocumentsRepo) Purge(ctx context.Context, ownerID string, docIDs []string) (int, error) {
	return r.execMany(ctx, "documents.purge", `
		DELETE FROM documents
		WHERE user_id = $1::uuid AND doc_id = ANY($2::uuid[]) AND in_trash = true
	`, ownerID, docIDs)
}

func (r *DocumentsRepo) execOne(ctx context.Context, op, query string, args ...any) error {
	var tag pgconn.CommandTag

	err := r.observe(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, query, args...)
		return err
	})
	if err != nil {
		return apperr.Storage(op, err)
	}

	// no row for this owner: absent or someone else's
	if tag.RowsAffected() == 0 {
		return apperr.ErrNotFoundOrForbidden
	}
	return nil
}

func (r *DocumentsRepo) execMany(ctx context.Context, op, query string, ownerID string, docIDs []string) (int, error) {
	if len(docIDs) == 0 {
		return 0, nil
	}

	var tag pgconn.CommandTag

	err := r.observe(op, func() error {
		var err error
		tag, err = r.pool.Exec(ctx, query, ownerID, docIDs)
		return err
	})
	if err != nil {
		return 0, apperr.Storage(op, err)
	}
	return int(tag.RowsAffected()), nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
