// Package documents is the document lifecycle manager: ownership checks, the
// active/trashed/purged state machine, batch recovery and purge, and search.
package documents

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/document"
	"github.com/google/uuid"
)

// Store is the document repository the manager depends on. Every call is
// scoped to an owner; absent and foreign documents are indistinguishable.
type Store interface {
	Insert(ctx context.Context, ownerID, docID string, body json.RawMessage, at time.Time) (document.Document, error)
	Get(ctx context.Context, ownerID, docID string) (document.Document, error)
	ListActive(ctx context.Context, ownerID string) ([]document.Summary, error)
	ListTrashed(ctx context.Context, ownerID string) ([]document.Summary, error)
	SearchActive(ctx context.Context, ownerID, substr string) ([]document.Summary, error)
	UpdateBody(ctx context.Context, ownerID, docID string, body json.RawMessage, at time.Time) error
	UpdateTitle(ctx context.Context, ownerID, docID, title string) error
	TouchModified(ctx context.Context, ownerID, docID string, at time.Time) error
	SetTrash(ctx context.Context, ownerID, docID string, inTrash bool) error
	Restore(ctx context.Context, ownerID string, docIDs []string) (int, error)
	Purge(ctx context.Context, ownerID string, docIDs []string) (int, error)
}

// createAttempts bounds id regeneration on a collision.
const createAttempts = 3

var ErrIDExhausted = errors.New("documents: could not allocate a unique id")

type Service struct {
	store Store
	log   *slog.Logger
	now   func() time.Time
	newID func() string
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDGenerator(fn func() string) Option {
	return func(s *Service) { s.newID = fn }
}

func New(store Store, log *slog.Logger, opts ...Option) *Service {
	if log == nil {
		log = slog.Default()
	}
	s := &Service{
		store: store,
		log:   log,
		now:   time.Now,
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) Create(ctx context.Context, ownerID string) (document.Document, error) {
	for attempt := 1; attempt <= createAttempts; attempt++ {
		d, err := s.store.Insert(ctx, ownerID, s.newID(), document.EmptyBody, s.now().UTC())
		if err == nil {
			return d, nil
		}
		if !errors.Is(err, document.ErrDuplicateID) {
			return document.Document{}, err
		}
		s.log.WarnContext(ctx, "document id collision, regenerating", "attempt", attempt)
	}
	return document.Document{}, apperr.Storage("documents.create", ErrIDExhausted)
}

func (s *Service) Get(ctx context.Context, ownerID, docID string) (document.Document, error) {
	id, ok := canonicalID(docID)
	if !ok {
		return document.Document{}, apperr.ErrNotFoundOrForbidden
	}
	return s.store.Get(ctx, ownerID, id)
}

func (s *Service) Rename(ctx context.Context, ownerID, docID, title string) error {
	id, ok := canonicalID(docID)
	if !ok {
		return apperr.ErrNotFoundOrForbidden
	}

	title = strings.TrimSpace(title)
	if utf8.RuneCountInString(title) > document.MaxTitleLen {
		return apperr.Validation("title is too long")
	}
	if !utf8.ValidString(title) {
		return apperr.Validation("title is not valid utf-8")
	}

	return s.store.UpdateTitle(ctx, ownerID, id, title)
}

func (s *Service) TouchModified(ctx context.Context, ownerID, docID string) error {
	id, ok := canonicalID(docID)
	if !ok {
		return apperr.ErrNotFoundOrForbidden
	}
	return s.store.TouchModified(ctx, ownerID, id, s.now().UTC())
}

// SaveBody replaces the body and bumps modified_at. The auto-save
// coordinator writes through here.
func (s *Service) SaveBody(ctx context.Context, ownerID, docID string, body json.RawMessage) error {
	id, ok := canonicalID(docID)
	if !ok {
		return apperr.ErrNotFoundOrForbidden
	}
	if len(body) == 0 || !json.Valid(body) {
		return apperr.Validation("body must be a JSON document")
	}
	return s.store.UpdateBody(ctx, ownerID, id, body, s.now().UTC())
}

// Trash moves a document to the trash. Trashing a trashed document succeeds.
func (s *Service) Trash(ctx context.Context, ownerID, docID string) error {
	id, ok := canonicalID(docID)
	if !ok {
		return apperr.ErrNotFoundOrForbidden
	}
	return s.store.SetTrash(ctx, ownerID, id, true)
}

func (s *Service) Recover(ctx context.Context, ownerID string, docIDs []string) (int, error) {
	ids, err := batchIDs(docIDs)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	return s.store.Restore(ctx, ownerID, ids)
}

// Purge permanently removes trashed documents. Active ids are skipped.
func (s *Service) Purge(ctx context.Context, ownerID string, docIDs []string) (int, error) {
	ids, err := batchIDs(docIDs)
	if err != nil || len(ids) == 0 {
		return 0, err
	}

	n, err := s.store.Purge(ctx, ownerID, ids)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.log.InfoContext(ctx, "documents purged", "user_id", ownerID, "count", n)
	}
	return n, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]document.Summary, error) {
	return s.store.ListActive(ctx, ownerID)
}

func (s *Service) ListTrashed(ctx context.Context, ownerID string) ([]document.Summary, error) {
	return s.store.ListTrashed(ctx, ownerID)
}

// Search matches the query, spaces included, as a case-insensitive title
// substring. A blank query lists.
func (s *Service) Search(ctx context.Context, ownerID, query string) ([]document.Summary, error) {
	if strings.TrimSpace(query) == "" {
		return s.List(ctx, ownerID)
	}
	if utf8.RuneCountInString(query) > document.MaxTitleLen {
		return []document.Summary{}, nil
	}
	return s.store.SearchActive(ctx, ownerID, query)
}

func canonicalID(raw string) (string, bool) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", false
	}
	return u.String(), true
}

// batchIDs drops malformed and repeated ids.
func batchIDs(raw []string) ([]string, error) {
	if len(raw) > document.MaxBatch {
		return nil, apperr.Validation("too many ids in one request")
	}

	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		id, ok := canonicalID(r)
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}
