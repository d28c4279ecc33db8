package identity

import (
	"fmt"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const resetPurpose = "password_reset"

// ResetLinkBuilder mints signed password-reset links. The token is an HS256
// JWT carrying the email and a purpose claim so the frontend's reset page
// can hand it straight back to the auth backend.
type ResetLinkBuilder struct {
	secret  []byte
	ttl     time.Duration
	baseURL string
}

func NewResetLinkBuilder(secret string, ttl time.Duration, baseURL string) *ResetLinkBuilder {
	return &ResetLinkBuilder{secret: []byte(secret), ttl: ttl, baseURL: baseURL}
}

// Build returns a full reset URL valid for the configured TTL from now.
func (b *ResetLinkBuilder) Build(email string, now time.Time) (string, error) {
	claims := jwt.MapClaims{
		"sub":     email,
		"purpose": resetPurpose,
		"iat":     now.Unix(),
		"exp":     now.Add(b.ttl).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(b.secret)
	if err != nil {
		return "", fmt.Errorf("sign reset token: %w", err)
	}
	return fmt.Sprintf("%s/reset-password?token=%s", b.baseURL, url.QueryEscape(token)), nil
}

// VerifyToken checks signature, expiry and purpose, returning the email.
// The serving frontend calls the auth backend for the actual reset; this
// verification exists for the provider implementations and tests.
func (b *ResetLinkBuilder) VerifyToken(raw string) (string, error) {
	token, err := jwt.Parse(raw, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return b.secret, nil
	})
	if err != nil {
		return "", fmt.Errorf("parse reset token: %w", err)
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("unexpected claims type")
	}
	if purpose, _ := claims["purpose"].(string); purpose != resetPurpose {
		return "", fmt.Errorf("unexpected token purpose")
	}
	email, _ := claims["sub"].(string)
	if email == "" {
		return "", fmt.Errorf("reset token missing subject")
	}
	return email, nil
}
