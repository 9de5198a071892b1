// Package auth signs the action tokens carried in notification data. A
// token binds a notification id to its exercise and count, so an action
// posted back after the notification is gone can still be trusted.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"time"

	"fitremind/internal/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/hkdf"
)

// MinSecretLength is the shortest accepted ACTION_TOKEN_SECRET.
const MinSecretLength = 32

const (
	issuer    = "fitremind"
	tokenType = "action"
	keyInfo   = "fitremind notification action token v1"
)

var (
	ErrInvalidToken = errors.New("invalid action token")
	ErrWeakSecret   = fmt.Errorf("action token secret must be at least %d characters", MinSecretLength)
)

type ActionClaims struct {
	Exercise  string `json:"exercise"`
	Count     int    `json:"count"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// NotificationID is the id the token was issued for.
func (c *ActionClaims) NotificationID() string {
	return c.ID
}

type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

// NewSigner derives the signing key from secret with HKDF-SHA256, so the raw
// secret can be shared with other uses without reusing it as a MAC key.
func NewSigner(secret string, ttl time.Duration) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("derive action key: %w", err)
	}
	return newSigner(key, ttl), nil
}

// NewEphemeralSigner uses a random key. Tokens do not survive a restart and
// cannot be checked by another process.
func NewEphemeralSigner(ttl time.Duration) (*Signer, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate action key: %w", err)
	}
	return newSigner(key, ttl), nil
}

func newSigner(key []byte, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Signer{key: key, ttl: ttl, now: time.Now}
}

// WithClock replaces the time source used for issuing and validating.
func (s *Signer) WithClock(now func() time.Time) *Signer {
	s.now = now
	return s
}

func (s *Signer) Issue(n models.DeliveredNotification) (string, error) {
	now := s.now()
	claims := ActionClaims{
		Exercise:  n.Exercise,
		Count:     n.Count,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        n.ID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Validate checks the signature, expiry and that the token was issued for
// notificationID.
func (s *Signer) Validate(tokenString, notificationID string) (*ActionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ActionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.key, nil
	}, jwt.WithIssuer(issuer), jwt.WithTimeFunc(s.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*ActionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: wrong token type", ErrInvalidToken)
	}
	if claims.ID != notificationID {
		return nil, fmt.Errorf("%w: issued for another notification", ErrInvalidToken)
	}
	return claims, nil
}

// Notification rebuilds the delivered notification the token describes.
func (c *ActionClaims) Notification() models.DeliveredNotification {
	n := models.DeliveredNotification{ID: c.ID, Exercise: c.Exercise, Count: c.Count}
	if c.IssuedAt != nil {
		n.CreatedAt = c.IssuedAt.Time
	}
	return n
}
