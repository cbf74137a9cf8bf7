package notifications

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/smtp"
	"strings"
	"testing"
	"time"
)

type fakeNotifier struct {
	calls int
	err   error
}

func (f *fakeNotifier) Send(ctx context.Context, msg Message) error {
	f.calls++
	return f.err
}

func TestProtectedNotifier_OpensAndRecovers(t *testing.T) {
	inner := &fakeNotifier{err: errors.New("relay down")}
	n := NewProtectedNotifier(inner, ProtectedNotifierConfig{FailureThreshold: 2, Cooldown: time.Minute})

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return now }

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := n.Send(ctx, Message{To: "a@example.com"}); err == nil {
			t.Fatalf("expected inner error")
		}
	}

	if err := n.Send(ctx, Message{}); !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}
	if inner.calls != 2 {
		t.Fatalf("expected 2 inner calls, got %d", inner.calls)
	}

	now = now.Add(time.Minute)
	inner.err = nil

	if err := n.Send(ctx, Message{}); err != nil {
		t.Fatalf("half-open trial should succeed: %v", err)
	}
	if n.state != stateClosed {
		t.Fatalf("expected closed after success, got %s", n.state)
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	n := NewLogNotifier(slog.New(slog.NewJSONHandler(&buf, nil)))

	if err := n.Send(context.Background(), Message{To: "a@example.com", Subject: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(buf.String(), "a@example.com") {
		t.Fatalf("expected recipient in log, got %s", buf.String())
	}

	n.Fail = true
	if err := n.Send(context.Background(), Message{}); !errors.Is(err, ErrSimulatedOutage) {
		t.Fatalf("expected simulated outage, got %v", err)
	}
}

func TestSMTPNotifier(t *testing.T) {
	var gotAddr string
	var gotMsg []byte

	n := NewSMTPNotifier(SMTPConfig{Host: "mail.local", Port: 2525, From: "noreply@scribe.test"})
	n.send = func(addr string, a smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr = addr
		gotMsg = msg
		return nil
	}

	err := n.Send(context.Background(), Message{To: "a@example.com", Subject: "Code", Text: "123456"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotAddr != "mail.local:2525" {
		t.Fatalf("unexpected addr %q", gotAddr)
	}
	if !strings.Contains(string(gotMsg), "Subject: Code\r\n") {
		t.Fatalf("missing subject header: %q", gotMsg)
	}

	err = n.Send(context.Background(), Message{To: "a@example.com\r\nBcc: x@evil.test"})
	if err == nil {
		t.Fatalf("expected header injection to be rejected")
	}
}
