package autosave

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const (
	triggerDebounce = "debounce"
	triggerRetry    = "retry"
	triggerClose    = "close"
	triggerIdle     = "idle"
	triggerShutdown = "shutdown"
)

// Status is the client visible state of an editing session.
type Status struct {
	SessionID   string     `json:"sessionId"`
	DocID       string     `json:"docId"`
	Dirty       bool       `json:"dirty"`
	LastSavedAt *time.Time `json:"lastSavedAt,omitempty"`
	LastError   string     `json:"lastError,omitempty"`
}

type closeRequest struct {
	ctx     context.Context
	trigger string
	force   bool
	reply   chan error
}

// Session owns one debounce timer. All writes for a session happen on its
// run goroutine, so they reach the store in edit order.
type Session struct {
	c       *Coordinator
	id      string
	ownerID string
	docID   string

	kick   chan struct{}
	closeC chan closeRequest
	done   chan struct{}

	// guarded by mu
	mu        sync.Mutex
	body      json.RawMessage
	seq       uint64
	savedSeq  uint64
	lastErr   error
	lastSaved time.Time
	ended     bool
}

func newSession(c *Coordinator, id, ownerID, docID string) *Session {
	return &Session{
		c:       c,
		id:      id,
		ownerID: ownerID,
		docID:   docID,
		kick:    make(chan struct{}, 1),
		closeC:  make(chan closeRequest),
		done:    make(chan struct{}),
	}
}

func (s *Session) buffer(body json.RawMessage) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return false
	}
	s.body = append(json.RawMessage(nil), body...)
	s.seq++
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
	return true
}

func (s *Session) status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		SessionID: s.id,
		DocID:     s.docID,
		Dirty:     s.seq != s.savedSeq,
	}
	if !s.lastSaved.IsZero() {
		t := s.lastSaved
		st.LastSavedAt = &t
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	return st
}

func (s *Session) failure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Session) requestClose(ctx context.Context, trigger string, force bool) error {
	req := closeRequest{ctx: ctx, trigger: trigger, force: force, reply: make(chan error, 1)}

	select {
	case s.closeC <- req:
	case <-s.done:
		return s.failure()
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) run() {
	defer s.c.wg.Done()
	defer close(s.done)

	cfg := s.c.cfg

	debounce := time.NewTimer(cfg.Window)
	debounce.Stop()
	var debounceC <-chan time.Time

	idle := time.NewTimer(cfg.IdleTimeout)
	defer idle.Stop()

	trigger := triggerDebounce
	attempt := 0

	// retry schedules the next write after a failure that may go away.
	retry := func() {
		debounce.Reset(cfg.Backoff(attempt))
		debounceC = debounce.C
		trigger = triggerRetry
		attempt++
	}

	for {
		select {
		case <-s.kick:
			debounce.Reset(cfg.Window)
			debounceC = debounce.C
			trigger = triggerDebounce
			attempt = 0
			idle.Reset(cfg.IdleTimeout)

		case <-debounceC:
			debounceC = nil
			err := s.flush(context.Background(), trigger)
			switch {
			case err == nil:
				attempt = 0
			case permanent(err):
				s.end()
				return
			default:
				retry()
			}

		case <-idle.C:
			if err := s.finish(context.Background(), triggerIdle); err != nil {
				s.c.log.Error("idle flush failed, dropping session", "session_id", s.id, "doc_id", s.docID, "err", err)
			}
			s.end()
			return

		case req := <-s.closeC:
			err := s.finish(req.ctx, req.trigger)
			if err == nil || req.force || permanent(err) {
				s.end()
				req.reply <- err
				return
			}
			req.reply <- err
			if debounceC == nil {
				retry()
			}
		}
	}
}

// finish writes until nothing is pending and marks the session ended in the
// same critical section that saw it clean. An edit accepted while a final
// write was in flight is written by the next pass; later edits are refused.
func (s *Session) finish(ctx context.Context, trigger string) error {
	for {
		if err := s.flush(ctx, trigger); err != nil {
			return err
		}

		s.mu.Lock()
		if s.seq == s.savedSeq {
			s.ended = true
			s.mu.Unlock()
			return nil
		}
		s.mu.Unlock()
	}
}

func (s *Session) end() {
	s.mu.Lock()
	s.ended = true
	s.mu.Unlock()

	s.c.remove(s)
}

// flush writes the latest buffered body if there is one.
func (s *Session) flush(ctx context.Context, trigger string) error {
	s.mu.Lock()
	if s.seq == s.savedSeq {
		s.mu.Unlock()
		return nil
	}
	body := s.body
	seq := s.seq
	s.mu.Unlock()

	ctx, span := s.c.tracer.Start(ctx, "autosave.flush")
	defer span.End()
	span.SetAttributes(
		attribute.String("autosave.session_id", s.id),
		attribute.String("autosave.doc_id", s.docID),
		attribute.String("autosave.trigger", trigger),
		attribute.Int("autosave.body_bytes", len(body)),
	)

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.c.cfg.WriteTimeout)
	defer cancel()

	start := time.Now()
	err := s.c.store.SaveBody(writeCtx, s.ownerID, s.docID, body)
	s.c.observeFlush(trigger, time.Since(start), err)

	s.mu.Lock()
	switch {
	case err == nil:
		s.savedSeq = seq
		s.lastErr = nil
		s.lastSaved = time.Now().UTC()
	case permanent(err):
		// the document is gone or the body can never be stored
		s.savedSeq = s.seq
		s.lastErr = err
	default:
		s.lastErr = err
	}
	s.mu.Unlock()

	if err == nil {
		return nil
	}

	span.RecordError(err)
	span.SetStatus(codes.Error, "flush failed")
	s.c.log.WarnContext(ctx, "autosave flush failed",
		"session_id", s.id,
		"doc_id", s.docID,
		"trigger", trigger,
		"err", err,
	)
	return err
}

func permanent(err error) bool {
	return errors.Is(err, apperr.ErrNotFoundOrForbidden) || errors.Is(err, apperr.ErrValidation)
}
