// Package visitor gives browsers an anonymous, signed visitor id.
//
// The id is an xid stored as the subject of an HS256 JWT in the bd_visitor
// cookie. It carries no personal data and grants nothing; it only lets the
// registration processor group submissions from the same browser.
package visitor

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/xid"
)

const (
	issuer = "bookdigest"

	// DefaultLifetime is how long a visitor cookie stays valid.
	DefaultLifetime = 365 * 24 * time.Hour
)

// ErrInvalid is returned for tokens that fail verification.
var ErrInvalid = errors.New("visitor: invalid token")

// Signer issues and verifies visitor tokens.
type Signer struct {
	secret   []byte
	lifetime time.Duration
	now      func() time.Time
}

// NewSigner rejects secrets shorter than 16 bytes.
func NewSigner(secret string) (*Signer, error) {
	if len(secret) < 16 {
		return nil, errors.New("visitor: secret must be at least 16 characters")
	}
	return &Signer{secret: []byte(secret), lifetime: DefaultLifetime, now: time.Now}, nil
}

// NewID returns a fresh visitor id.
func NewID() string {
	return xid.New().String()
}

// Issue signs a token for id that expires after the signer's lifetime.
func (s *Signer) Issue(id string) (string, error) {
	return s.issue(id, s.lifetime)
}

func (s *Signer) issue(id string, d time.Duration) (string, error) {
	if id == "" {
		return "", errors.New("visitor: empty id")
	}
	now := s.now()
	c := jwt.RegisteredClaims{
		Subject:   id,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(d)),
		Issuer:    issuer,
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("visitor: signing token: %w", err)
	}
	return signed, nil
}

// Verify returns the visitor id carried by token.
func (s *Signer) Verify(token string) (string, error) {
	var c jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &c,
		func(t *jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	if !parsed.Valid {
		return "", ErrInvalid
	}
	if _, err := xid.FromString(c.Subject); err != nil {
		return "", fmt.Errorf("%w: subject is not a visitor id", ErrInvalid)
	}
	return c.Subject, nil
}
