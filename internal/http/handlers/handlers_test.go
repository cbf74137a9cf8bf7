package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/autosave"
	"github.com/geocoder89/scribe/internal/domain/document"
	"github.com/geocoder89/scribe/internal/http/handlers"
	"github.com/geocoder89/scribe/internal/http/middlewares"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Make sure Gin does not spam the console during the test
func init() {
	gin.SetMode(gin.TestMode)
}

// asUser stands in for RequireAuth.
func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middlewares.CtxUserID, id)
		c.Next()
	}
}

type fakeDocs struct {
	createFn  func(ctx context.Context, ownerID string) (document.Document, error)
	getFn     func(ctx context.Context, ownerID, docID string) (document.Document, error)
	renameFn  func(ctx context.Context, ownerID, docID, title string) error
	purgeFn   func(ctx context.Context, ownerID string, ids []string) (int, error)
	searchFn  func(ctx context.Context, ownerID, query string) ([]document.Summary, error)
	saveFn    func(ctx context.Context, ownerID, docID string, body json.RawMessage) error
	trashedFn func(ctx context.Context, ownerID string) ([]document.Summary, error)
}

func (f *fakeDocs) Create(ctx context.Context, ownerID string) (document.Document, error) {
	if f.createFn != nil {
		return f.createFn(ctx, ownerID)
	}
	return document.Document{}, nil
}

func (f *fakeDocs) Get(ctx context.Context, ownerID, docID string) (document.Document, error) {
	if f.getFn != nil {
		return f.getFn(ctx, ownerID, docID)
	}
	return document.Document{}, nil
}

func (f *fakeDocs) Rename(ctx context.Context, ownerID, docID, title string) error {
	if f.renameFn != nil {
		return f.renameFn(ctx, ownerID, docID, title)
	}
	return nil
}

func (f *fakeDocs) TouchModified(ctx context.Context, ownerID, docID string) error { return nil }

func (f *fakeDocs) SaveBody(ctx context.Context, ownerID, docID string, body json.RawMessage) error {
	if f.saveFn != nil {
		return f.saveFn(ctx, ownerID, docID, body)
	}
	return nil
}

func (f *fakeDocs) Trash(ctx context.Context, ownerID, docID string) error { return nil }

func (f *fakeDocs) Recover(ctx context.Context, ownerID string, ids []string) (int, error) {
	return len(ids), nil
}

func (f *fakeDocs) Purge(ctx context.Context, ownerID string, ids []string) (int, error) {
	if f.purgeFn != nil {
		return f.purgeFn(ctx, ownerID, ids)
	}
	return 0, nil
}

func (f *fakeDocs) ListTrashed(ctx context.Context, ownerID string) ([]document.Summary, error) {
	if f.trashedFn != nil {
		return f.trashedFn(ctx, ownerID)
	}
	return []document.Summary{}, nil
}

func (f *fakeDocs) Search(ctx context.Context, ownerID, query string) ([]document.Summary, error) {
	if f.searchFn != nil {
		return f.searchFn(ctx, ownerID, query)
	}
	return []document.Summary{}, nil
}

func newDocsRouter(docs handlers.DocumentService, userID string) *gin.Engine {
	h := handlers.NewDocumentsHandler(docs)

	r := gin.New()
	r.Use(middlewares.RequestID())
	if userID != "" {
		r.Use(asUser(userID))
	}
	r.GET("/documents", h.List)
	r.GET("/documents/trash", h.ListTrashed)
	r.POST("/documents", h.Create)
	r.POST("/documents/purge", h.Purge)
	r.GET("/documents/:id", h.Get)
	r.PATCH("/documents/:id/title", h.Rename)
	r.PUT("/documents/:id/body", h.SaveBody)
	return r
}

func doJSON(r http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestDocuments_NoUserIs401(t *testing.T) {
	r := newDocsRouter(&fakeDocs{}, "")

	w := doJSON(r, http.MethodGet, "/documents", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestDocuments_CreateUsesAuthenticatedOwner(t *testing.T) {
	var gotOwner string
	docs := &fakeDocs{createFn: func(ctx context.Context, ownerID string) (document.Document, error) {
		gotOwner = ownerID
		return document.Document{DocID: "d1", Body: document.EmptyBody}, nil
	}}
	r := newDocsRouter(docs, "alice")

	w := doJSON(r, http.MethodPost, "/documents", "", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d (%s)", w.Code, w.Body.String())
	}
	if gotOwner != "alice" {
		t.Fatalf("expected owner alice, got %q", gotOwner)
	}
	if w.Header().Get("Location") != "/api/private/documents/d1" {
		t.Fatalf("unexpected Location %q", w.Header().Get("Location"))
	}
}

func TestDocuments_GetNotFoundOrForbidden(t *testing.T) {
	docs := &fakeDocs{getFn: func(ctx context.Context, ownerID, docID string) (document.Document, error) {
		return document.Document{}, apperr.ErrNotFoundOrForbidden
	}}
	r := newDocsRouter(docs, "bob")

	w := doJSON(r, http.MethodGet, "/documents/"+uuid.NewString(), "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}

	var resp struct {
		Error handlers.APIError `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != "not_found" || resp.Error.RequestID == "" {
		t.Fatalf("unexpected envelope %+v", resp.Error)
	}
}

func TestDocuments_GetETag(t *testing.T) {
	doc := document.Document{DocID: "d1", Title: "t", Body: document.EmptyBody, ModifiedAt: time.Unix(100, 0).UTC()}
	docs := &fakeDocs{getFn: func(ctx context.Context, ownerID, docID string) (document.Document, error) {
		return doc, nil
	}}
	r := newDocsRouter(docs, "alice")

	w := doJSON(r, http.MethodGet, "/documents/d1", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	etag := w.Header().Get("ETag")
	if etag == "" {
		t.Fatalf("expected ETag header")
	}

	w = doJSON(r, http.MethodGet, "/documents/d1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304, got %d", w.Code)
	}

	w = doJSON(r, http.MethodGet, "/documents/d1", "", map[string]string{"If-None-Match": `"stale", W/` + etag})
	if w.Code != http.StatusNotModified {
		t.Fatalf("expected 304 for weak match in a list, got %d", w.Code)
	}

	doc.ModifiedAt = doc.ModifiedAt.Add(time.Second)
	w = doJSON(r, http.MethodGet, "/documents/d1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after change, got %d", w.Code)
	}
	etag = w.Header().Get("ETag")

	// rename leaves modified_at alone
	doc.Title = "renamed"
	w = doJSON(r, http.MethodGet, "/documents/d1", "", map[string]string{"If-None-Match": etag})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 after rename, got %d", w.Code)
	}
}

func TestDocuments_RenameValidation(t *testing.T) {
	docs := &fakeDocs{renameFn: func(ctx context.Context, ownerID, docID, title string) error {
		return apperr.Validation("title is too long")
	}}
	r := newDocsRouter(docs, "alice")

	w := doJSON(r, http.MethodPatch, "/documents/d1/title", `{"title":"x"}`, nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}

	var resp struct {
		Error handlers.APIError `json:"error"`
	}
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error.Message != "title is too long" {
		t.Fatalf("expected reason in message, got %q", resp.Error.Message)
	}
}

func TestDocuments_PurgeReturnsCount(t *testing.T) {
	docs := &fakeDocs{purgeFn: func(ctx context.Context, ownerID string, ids []string) (int, error) {
		return 3, nil
	}}
	r := newDocsRouter(docs, "alice")

	w := doJSON(r, http.MethodPost, "/documents/purge", `{"ids":["a","b","c","d","e"]}`, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var res document.BatchResult
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if res.Count != 3 {
		t.Fatalf("expected count 3, got %d", res.Count)
	}
}

func TestDocuments_ListPassesQuery(t *testing.T) {
	var gotQuery string
	docs := &fakeDocs{searchFn: func(ctx context.Context, ownerID, query string) ([]document.Summary, error) {
		gotQuery = query
		return []document.Summary{{DocID: "d1"}}, nil
	}}
	r := newDocsRouter(docs, "alice")

	w := doJSON(r, http.MethodGet, "/documents?q=notes", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if gotQuery != "notes" {
		t.Fatalf("expected query to be passed, got %q", gotQuery)
	}
}

func TestDocuments_StorageFailureIs503(t *testing.T) {
	docs := &fakeDocs{trashedFn: func(ctx context.Context, ownerID string) ([]document.Summary, error) {
		return nil, apperr.Storage("documents.list_trashed", errors.New("connection reset"))
	}}
	r := newDocsRouter(docs, "alice")

	w := doJSON(r, http.MethodGet, "/documents/trash", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}

type fakeCoordinator struct {
	editFn  func(ctx context.Context, ownerID, docID, sessionID string, body json.RawMessage) (autosave.Status, error)
	closeFn func(ctx context.Context, ownerID, docID, sessionID string) error
}

func (f *fakeCoordinator) Open(ctx context.Context, ownerID, docID string) (autosave.Status, error) {
	return autosave.Status{SessionID: "s1", DocID: docID}, nil
}

func (f *fakeCoordinator) Edit(ctx context.Context, ownerID, docID, sessionID string, body json.RawMessage) (autosave.Status, error) {
	return f.editFn(ctx, ownerID, docID, sessionID, body)
}

func (f *fakeCoordinator) Status(ctx context.Context, ownerID, docID, sessionID string) (autosave.Status, error) {
	return autosave.Status{SessionID: sessionID, DocID: docID}, nil
}

func (f *fakeCoordinator) Close(ctx context.Context, ownerID, docID, sessionID string) error {
	return f.closeFn(ctx, ownerID, docID, sessionID)
}

func TestAutosave_EditReportsPendingFailure(t *testing.T) {
	coord := &fakeCoordinator{
		editFn: func(ctx context.Context, ownerID, docID, sessionID string, body json.RawMessage) (autosave.Status, error) {
			return autosave.Status{SessionID: sessionID, Dirty: true, LastError: "db down"},
				apperr.Storage("documents.update_body", errors.New("db down"))
		},
		closeFn: func(ctx context.Context, ownerID, docID, sessionID string) error {
			return apperr.ErrNotFoundOrForbidden
		},
	}
	h := handlers.NewAutosaveHandler(coord)

	r := gin.New()
	r.Use(asUser("alice"))
	r.PATCH("/documents/:id/sessions/:sid", h.Edit)
	r.DELETE("/documents/:id/sessions/:sid", h.Close)

	w := doJSON(r, http.MethodPatch, "/documents/d1/sessions/s1", `{"body":{"type":"doc"}}`, nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}

	var resp struct {
		Error struct {
			Code    string          `json:"code"`
			Details autosave.Status `json:"details"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Error.Code != "save_failed" || !resp.Error.Details.Dirty {
		t.Fatalf("unexpected response %s", w.Body.String())
	}

	w = doJSON(r, http.MethodDelete, "/documents/d1/sessions/s1", "", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestAutosave_PassesPathDocument(t *testing.T) {
	var gotEdit, gotClose string
	coord := &fakeCoordinator{
		editFn: func(ctx context.Context, ownerID, docID, sessionID string, body json.RawMessage) (autosave.Status, error) {
			gotEdit = docID + "/" + sessionID
			return autosave.Status{SessionID: sessionID, DocID: docID}, nil
		},
		closeFn: func(ctx context.Context, ownerID, docID, sessionID string) error {
			gotClose = docID + "/" + sessionID
			return nil
		},
	}
	h := handlers.NewAutosaveHandler(coord)

	r := gin.New()
	r.Use(asUser("alice"))
	r.PATCH("/documents/:id/sessions/:sid", h.Edit)
	r.DELETE("/documents/:id/sessions/:sid", h.Close)

	w := doJSON(r, http.MethodPatch, "/documents/d2/sessions/s1", `{"body":{"type":"doc"}}`, nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", w.Code)
	}
	w = doJSON(r, http.MethodDelete, "/documents/d2/sessions/s1", "", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}

	if gotEdit != "d2/s1" || gotClose != "d2/s1" {
		t.Fatalf("path document not forwarded: edit=%q close=%q", gotEdit, gotClose)
	}
}
