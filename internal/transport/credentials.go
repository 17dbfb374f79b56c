package transport

import (
	"context"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/TI-Wegen/crmApi-front-sub000/internal/model"
)

// CredentialProvider supplies a bearer token for each connection attempt.
type CredentialProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider serves a fixed token, rejecting it once expired.
type StaticTokenProvider struct {
	token string
}

// NewStaticTokenProvider creates a provider around a pre-issued token.
func NewStaticTokenProvider(token string) *StaticTokenProvider {
	return &StaticTokenProvider{token: token}
}

// Token returns the configured token after checking it has not expired.
// Opaque (non-JWT) tokens are passed through untouched.
func (p *StaticTokenProvider) Token(ctx context.Context) (string, error) {
	if p.token == "" {
		return "", &model.AuthenticationError{Reason: "no credential configured"}
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(p.token, claims); err != nil {
		return p.token, nil
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return p.token, nil
	}
	if time.Now().After(exp.Time) {
		return "", &model.AuthenticationError{Reason: "credential expired"}
	}

	return p.token, nil
}
