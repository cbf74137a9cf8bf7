package notifications

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

var ErrSimulatedOutage = errors.New("provider down (simulated)")

// LogNotifier writes messages to the log instead of delivering them. It is the
// default sink in dev and the fallback when no SMTP host is configured.
type LogNotifier struct {
	log *slog.Logger

	// Optional: simulate a slow or failing provider.
	Delay time.Duration
	Fail  bool
}

func NewLogNotifier(log *slog.Logger) *LogNotifier {
	if log == nil {
		log = slog.Default()
	}
	return &LogNotifier{log: log}
}

func (n *LogNotifier) Send(ctx context.Context, msg Message) error {
	if n.Delay > 0 {
		select {
		case <-time.After(n.Delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if n.Fail {
		return ErrSimulatedOutage
	}

	n.log.InfoContext(ctx, "notification.email",
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
	)
	return nil
}
