package notifications

import "context"

// Message is one outbound email.
type Message struct {
	To      string
	Subject string
	Text    string
}

type Notifier interface {
	Send(ctx context.Context, msg Message) error
}
