package memory

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/document"
)

type docRow struct {
	seq int64
	doc document.Document
}

// DocumentsRepo keeps documents in a map keyed by external id. Lookups check
// the owner exactly like the SQL WHERE clauses do.
type DocumentsRepo struct {
	mu    sync.RWMutex
	items map[string]*docRow
	seq   int64
}

func NewDocumentsRepo() *DocumentsRepo {
	return &DocumentsRepo{
		items: make(map[string]*docRow),
	}
}

func (r *DocumentsRepo) Insert(_ context.Context, ownerID, docID string, body json.RawMessage, at time.Time) (document.Document, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[docID]; ok {
		return document.Document{}, document.ErrDuplicateID
	}

	r.seq++
	d := document.Document{
		DocID:      docID,
		OwnerID:    ownerID,
		Body:       cloneRaw(body),
		CreatedAt:  at,
		ModifiedAt: at,
	}
	r.items[docID] = &docRow{seq: r.seq, doc: d}

	return d, nil
}

// owned must be called with r.mu held.
func (r *DocumentsRepo) owned(ownerID, docID string) (*docRow, bool) {
	row, ok := r.items[docID]
	if !ok || row.doc.OwnerID != ownerID {
		return nil, false
	}
	return row, true
}

func (r *DocumentsRepo) Get(_ context.Context, ownerID, docID string) (document.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	row, ok := r.owned(ownerID, docID)
	if !ok {
		return document.Document{}, apperr.ErrNotFoundOrForbidden
	}

	d := row.doc
	d.Body = cloneRaw(d.Body)
	return d, nil
}

func (r *DocumentsRepo) ListActive(_ context.Context, ownerID string) ([]document.Summary, error) {
	return r.list(func(d document.Document) bool {
		return d.OwnerID == ownerID && !d.InTrash
	}), nil
}

func (r *DocumentsRepo) ListTrashed(_ context.Context, ownerID string) ([]document.Summary, error) {
	return r.list(func(d document.Document) bool {
		return d.OwnerID == ownerID && d.InTrash
	}), nil
}

func (r *DocumentsRepo) SearchActive(_ context.Context, ownerID, substr string) ([]document.Summary, error) {
	needle := strings.ToLower(substr)

	return r.list(func(d document.Document) bool {
		return d.OwnerID == ownerID && !d.InTrash && strings.Contains(strings.ToLower(d.Title), needle)
	}), nil
}

// listed is a copy taken under the read lock; rows keep changing after it.
type listed struct {
	seq int64
	sum document.Summary
}

func (r *DocumentsRepo) list(keep func(document.Document) bool) []document.Summary {
	r.mu.RLock()
	hits := make([]listed, 0, len(r.items))
	for _, row := range r.items {
		if keep(row.doc) {
			hits = append(hits, listed{seq: row.seq, sum: row.doc.Summary()})
		}
	}
	r.mu.RUnlock()

	// modified_at DESC, id DESC
	sort.Slice(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if !a.sum.ModifiedAt.Equal(b.sum.ModifiedAt) {
			return a.sum.ModifiedAt.After(b.sum.ModifiedAt)
		}
		return a.seq > b.seq
	})

	out := make([]document.Summary, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.sum)
	}
	return out
}

func (r *DocumentsRepo) UpdateBody(_ context.Context, ownerID, docID string, body json.RawMessage, at time.Time) error {
	return r.update(ownerID, docID, func(d *document.Document) {
		d.Body = cloneRaw(body)
		d.ModifiedAt = at
	})
}

func (r *DocumentsRepo) UpdateTitle(_ context.Context, ownerID, docID, title string) error {
	return r.update(ownerID, docID, func(d *document.Document) {
		d.Title = title
	})
}

func (r *DocumentsRepo) TouchModified(_ context.Context, ownerID, docID string, at time.Time) error {
	return r.update(ownerID, docID, func(d *document.Document) {
		d.ModifiedAt = at
	})
}

func (r *DocumentsRepo) SetTrash(_ context.Context, ownerID, docID string, inTrash bool) error {
	return r.update(ownerID, docID, func(d *document.Document) {
		d.InTrash = inTrash
	})
}

func (r *DocumentsRepo) update(ownerID, docID string, fn func(*document.Document)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.owned(ownerID, docID)
	if !ok {
		return apperr.ErrNotFoundOrForbidden
	}
	fn(&row.doc)

	return nil
}

func (r *DocumentsRepo) Restore(_ context.Context, ownerID string, docIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range dedupe(docIDs) {
		row, ok := r.owned(ownerID, id)
		if !ok || !row.doc.InTrash {
			continue
		}
		row.doc.InTrash = false
		n++
	}
	return n, nil
}

func (r *DocumentsRepo) Purge(_ context.Context, ownerID string, docIDs []string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0
	for _, id := range dedupe(docIDs) {
		row, ok := r.owned(ownerID, id)
		if !ok || !row.doc.InTrash {
			continue
		}
		delete(r.items, id)
		n++
	}
	return n, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func cloneRaw(b json.RawMessage) json.RawMessage {
	if b == nil {
		return nil
	}
	return append(json.RawMessage(nil), b...)
}
