package user

import (
	"strings"
	"time"
)

type Tier string

const (
	TierFree Tier = "free"
	TierPaid Tier = "paid"
)

func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPaid:
		return true
	default:
		return false
	}
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // never expose hash in JSON
	Verified     bool      `json:"verified"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// Account is the public view returned by the account endpoint.
type Account struct {
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Tier     Tier   `json:"tier"`
}

func (u User) Account() Account {
	return Account{Email: u.Email, Verified: u.Verified, Tier: u.Tier}
}

// Password limits. bcrypt ignores everything past 72 bytes.
const (
	MinPasswordLen = 8
	MaxPasswordLen = 72
)

type RegisterRequest struct {
	Email    string `json:"email" binding:"required,email,max=254"`
	Password string `json:"password" binding:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type ChangeEmailRequest struct {
	Email string `json:"email" binding:"required,email,max=254"`
}

type ChangePasswordRequest struct {
	Password string `json:"password" binding:"required,min=8,max=72"`
}

// NormalizeEmail is applied before every lookup and write so that the unique
// constraint on users.email is case-insensitive in practice.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
