// Package autosave buffers editor changes per editing session and writes the
// latest body once the session has been quiet for the debounce window.
package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/document"
	"github.com/geocoder89/scribe/internal/observability"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultWindow       = 2 * time.Second
	DefaultIdleTimeout  = 30 * time.Minute
	DefaultWriteTimeout = 3 * time.Second
)

var ErrShuttingDown = errors.New("autosave: coordinator is shutting down")

// Store persists bodies. *documents.Service satisfies it.
type Store interface {
	Get(ctx context.Context, ownerID, docID string) (document.Document, error)
	SaveBody(ctx context.Context, ownerID, docID string, body json.RawMessage) error
}

type Config struct {
	Window       time.Duration
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
	Backoff      func(attempt int) time.Duration
}

type Coordinator struct {
	store  Store
	cfg    Config
	log    *slog.Logger
	prom   *observability.Prom
	tracer trace.Tracer

	mu       sync.Mutex
	sessions map[string]*Session
	closing  bool

	wg sync.WaitGroup
}

func New(store Store, cfg Config, prom *observability.Prom, log *slog.Logger) *Coordinator {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Backoff == nil {
		cfg.Backoff = ExponentialBackoff
	}
	if log == nil {
		log = slog.Default()
	}

	return &Coordinator{
		store:    store,
		cfg:      cfg,
		log:      log.With("component", "autosave"),
		prom:     prom,
		tracer:   otel.Tracer("scribe/autosave"),
		sessions: make(map[string]*Session),
	}
}

// Open starts an editing session on a document the owner can read. Every
// editing surface gets its own session.
func (c *Coordinator) Open(ctx context.Context, ownerID, docID string) (Status, error) {
	doc, err := c.store.Get(ctx, ownerID, docID)
	if err != nil {
		return Status{}, err
	}

	s := newSession(c, uuid.NewString(), ownerID, doc.DocID)

	c.mu.Lock()
	if c.closing {
		c.mu.Unlock()
		return Status{}, apperr.Storage("autosave.open", ErrShuttingDown)
	}
	c.sessions[s.id] = s
	c.wg.Add(1)
	c.mu.Unlock()

	c.sessionsGauge(1)
	go s.run()

	c.log.DebugContext(ctx, "session opened", "session_id", s.id, "doc_id", s.docID, "user_id", ownerID)
	return s.status(), nil
}

// Edit buffers the full body and returns immediately; the write happens once
// the session has been quiet for the window. When the previous write failed
// the edit is still buffered and the failure is returned alongside the status.
func (c *Coordinator) Edit(ctx context.Context, ownerID, docID, sessionID string, body json.RawMessage) (Status, error) {
	if len(body) == 0 || !json.Valid(body) {
		return Status{}, apperr.Validation("body must be a JSON document")
	}

	s, err := c.lookup(ownerID, docID, sessionID)
	if err != nil {
		return Status{}, err
	}

	if !s.buffer(body) {
		return Status{}, apperr.ErrNotFoundOrForbidden
	}
	if c.prom != nil {
		c.prom.AutosaveEdits.Inc()
	}

	st := s.status()
	return st, s.failure()
}

// Status reports the session's save state and its last unresolved failure.
func (c *Coordinator) Status(ctx context.Context, ownerID, docID, sessionID string) (Status, error) {
	s, err := c.lookup(ownerID, docID, sessionID)
	if err != nil {
		return Status{}, err
	}
	return s.status(), s.failure()
}

// Close writes any unsaved edit synchronously and ends the session. When the
// write fails the session stays open, keeps retrying, and the error is
// returned so the caller can try again.
func (c *Coordinator) Close(ctx context.Context, ownerID, docID, sessionID string) error {
	s, err := c.lookup(ownerID, docID, sessionID)
	if err != nil {
		return err
	}
	return s.requestClose(ctx, triggerClose, false)
}

// Shutdown flushes and ends every session. Sessions whose final write fails
// are ended anyway; the failure is logged.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closing = true
	open := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		open = append(open, s)
	}
	c.mu.Unlock()

	for _, s := range open {
		if err := s.requestClose(ctx, triggerShutdown, true); err != nil {
			c.log.ErrorContext(ctx, "final flush failed", "session_id", s.id, "doc_id", s.docID, "err", err)
		}
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Len reports the number of open sessions.
func (c *Coordinator) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions)
}

// lookup finds a session the owner opened on docID. A session id presented
// under another document is treated as unknown.
func (c *Coordinator) lookup(ownerID, docID, sessionID string) (*Session, error) {
	c.mu.Lock()
	s, ok := c.sessions[sessionID]
	c.mu.Unlock()

	if !ok || s.ownerID != ownerID || !strings.EqualFold(s.docID, docID) {
		return nil, apperr.ErrNotFoundOrForbidden
	}
	return s, nil
}

func (c *Coordinator) remove(s *Session) {
	c.mu.Lock()
	_, ok := c.sessions[s.id]
	delete(c.sessions, s.id)
	c.mu.Unlock()

	if ok {
		c.sessionsGauge(-1)
	}
}

func (c *Coordinator) sessionsGauge(delta float64) {
	if c.prom != nil {
		c.prom.AutosaveSessions.Add(delta)
	}
}

func (c *Coordinator) observeFlush(trigger string, d time.Duration, err error) {
	if c.prom == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	c.prom.AutosaveFlushes.WithLabelValues(trigger, result).Inc()
	c.prom.AutosaveFlushTime.Observe(d.Seconds())
}
