package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/scribe/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const sessionTokenType = "session"

// DefaultSessionTTL is the lifetime of an issued session token.
const DefaultSessionTTL = time.Hour

type Claims struct {
	UserID    string `json:"sub"`
	TokenType string `json:"typ"`
	JTI       string `json:"jti"`
	jwt.RegisteredClaims
}

// Manager issues and verifies session tokens. It keeps no state besides the
// signing key, so a token stays valid until it expires. Logout is the client
// dropping its cookie; there is no revocation list.
type Manager struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewManager(secret string, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &Manager{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// TTL reports how long issued tokens live. Handlers use it for cookie max-age.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func (m *Manager) Issue(userID string) (token string, expiresAt time.Time, err error) {
	if strings.TrimSpace(userID) == "" {
		return "", time.Time{}, errors.New("auth: empty user id")
	}

	now := m.now().UTC()
	expiresAt = now.Add(m.ttl)

	claims := Claims{
		UserID:    userID,
		TokenType: sessionTokenType,
		JTI:       uuid.NewString(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Subject:   userID,
		},
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign session: %w", err)
	}
	return token, expiresAt, nil
}

// Verify returns the user id bound to a valid token. Every failure maps to
// apperr.ErrUnauthenticated; the underlying reason is kept for logs.
func (m *Manager) Verify(tokenStr string) (string, error) {
	if strings.TrimSpace(tokenStr) == "" {
		return "", fmt.Errorf("%w: missing token", apperr.ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		// Enforce HS256
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return m.secret, nil
	},
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperr.ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: invalid token", apperr.ErrUnauthenticated)
	}
	if claims.TokenType != sessionTokenType {
		return "", fmt.Errorf("%w: invalid token type", apperr.ErrUnauthenticated)
	}
	if claims.UserID == "" {
		return "", fmt.Errorf("%w: missing subject", apperr.ErrUnauthenticated)
	}

	return claims.UserID, nil
}
