package verification

import (
	"time"
)

const (
	// Codes are uniform over [0, CodeSpace) and rendered zero padded.
	CodeSpace  = 1_000_000
	CodeDigits = 6

	DefaultTTL = 10 * time.Minute
)

type Code struct {
	ID         int64
	UserID     string
	Code       string
	ExpiresAt  time.Time
	ConsumedAt *time.Time
	CreatedAt  time.Time
}

// Usable reports whether the code can still be redeemed at now.
func (c Code) Usable(now time.Time) bool {
	return c.ConsumedAt == nil && now.Before(c.ExpiresAt)
}

type SubmitRequest struct {
	Code string `json:"code" binding:"required,len=6,numeric"`
}
