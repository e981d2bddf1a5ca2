// Package auth maps bearer tokens to custody principals. Tokens are
// HS256 JWTs whose subject is the principal identifier.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/Tessera-Labs/coffer/pkg/campaign"
)

var (
	ErrInvalidToken = errors.New("auth: invalid token")
	ErrNoSubject    = errors.New("auth: token subject is required")
)

// Claims are the JWT claims coffer issues and accepts.
type Claims struct {
	jwt.RegisteredClaims
}

// Verifier validates tokens against a shared HMAC secret.
type Verifier struct {
	secret []byte
}

// NewVerifier returns a verifier for the given secret.
func NewVerifier(secret []byte) (*Verifier, error) {
	if len(secret) == 0 {
		return nil, errors.New("auth: secret must not be empty")
	}
	return &Verifier{secret: secret}, nil
}

// Verify parses the token and returns the principal it names.
func (v *Verifier) Verify(tokenStr string) (campaign.Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return "", ErrInvalidToken
	}
	if claims.Subject == "" {
		return "", ErrNoSubject
	}
	return campaign.Principal(claims.Subject), nil
}

// Issue mints a token for a principal, valid for ttl from now.
func (v *Verifier) Issue(principal campaign.Principal, ttl time.Duration, now time.Time) (string, error) {
	if principal.IsZero() {
		return "", ErrNoSubject
	}
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   string(principal),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    "coffer",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(v.secret)
	if err != nil {
		return "", fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, nil
}
