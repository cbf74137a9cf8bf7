// Package verification issues and redeems the 6-digit email verification
// codes.
package verification

import (
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/geocoder89/scribe/internal/domain/user"
	"github.com/geocoder89/scribe/internal/domain/verification"
	"github.com/geocoder89/scribe/internal/notifications"
	"github.com/geocoder89/scribe/internal/observability"
)

type Store interface {
	Get(ctx context.Context, userID string) (user.User, error)
	InsertCode(ctx context.Context, c verification.Code) error
	ConsumeCode(ctx context.Context, userID, code string, at time.Time) (bool, error)
}

type Config struct {
	TTL         time.Duration
	SendTimeout time.Duration
}

type Service struct {
	store    Store
	notifier notifications.Notifier
	log      *slog.Logger
	prom     *observability.Prom
	cfg      Config

	now     func() time.Time
	entropy io.Reader

	sends sync.WaitGroup
}

func New(store Store, notifier notifications.Notifier, prom *observability.Prom, log *slog.Logger, cfg Config) *Service {
	if cfg.TTL <= 0 {
		cfg.TTL = verification.DefaultTTL
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		log:      log,
		prom:     prom,
		cfg:      cfg,
		now:      time.Now,
		entropy:  rand.Reader,
	}
}

// RequestCode stores a fresh code and mails it in the background. Earlier
// codes stay valid until they expire. Delivery failures are logged only.
func (s *Service) RequestCode(ctx context.Context, userID string) error {
	u, err := s.store.Get(ctx, userID)
	if err != nil {
		return err
	}

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("verification: generate code: %w", err)
	}

	now := s.now().UTC()
	err = s.store.InsertCode(ctx, verification.Code{
		UserID:    u.ID,
		Code:      code,
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
	})
	if err != nil {
		return err
	}

	msg := notifications.Message{
		To:      u.Email,
		Subject: "Your Scribe verification code",
		Text: fmt.Sprintf("Your verification code is %s.\nIt expires in %d minutes.",
			code, int(s.cfg.TTL.Minutes())),
	}

	sendCtx := context.WithoutCancel(ctx)
	s.sends.Add(1)
	go func() {
		defer s.sends.Done()
		s.deliver(sendCtx, u.ID, msg)
	}()

	return nil
}

func (s *Service) deliver(ctx context.Context, userID string, msg notifications.Message) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()

	result := "ok"
	if err := s.notifier.Send(ctx, msg); err != nil {
		result = "error"
		s.log.WarnContext(ctx, "verification mail failed", "user_id", userID, "err", err)
	}

	if s.prom != nil {
		s.prom.MailsTotal.WithLabelValues(result).Inc()
	}
}

// SubmitCode consumes a matching unexpired code and marks the user verified.
func (s *Service) SubmitCode(ctx context.Context, userID, code string) error {
	if !wellFormed(code) {
		return apperr.Validation("code must be exactly 6 digits")
	}

	ok, err := s.store.ConsumeCode(ctx, userID, code, s.now().UTC())
	if err != nil {
		return err
	}
	if !ok {
		return apperr.ErrInvalidCode
	}

	s.log.InfoContext(ctx, "user verified", "user_id", userID)
	return nil
}

// Wait blocks until background deliveries have finished.
func (s *Service) Wait() {
	s.sends.Wait()
}

func (s *Service) generate() (string, error) {
	n, err := rand.Int(s.entropy, big.NewInt(verification.CodeSpace))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", verification.CodeDigits, n.Int64()), nil
}

func wellFormed(code string) bool {
	if len(code) != verification.CodeDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
