// Package auth turns an opaque sign-in credential into an Identity.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OCAP2/placefinder/internal/config"
	"github.com/OCAP2/placefinder/pkg/core"
	"github.com/dgrijalva/jwt-go"
)

// Provider authenticates a credential.
type Provider interface {
	Authenticate(ctx context.Context, credential string) (core.Identity, error)
}

// JWTProvider accepts HMAC-signed tokens carrying sub, name and picture claims.
type JWTProvider struct {
	key    []byte
	issuer string
	now    func() time.Time
}

// NewJWTProvider creates a provider from the auth configuration.
func NewJWTProvider(cfg config.AuthConfig) (*JWTProvider, error) {
	if cfg.SigningKey == "" {
		return nil, errors.New("auth.signingKey is empty")
	}
	return &JWTProvider{
		key:    []byte(cfg.SigningKey),
		issuer: cfg.Issuer,
		now:    time.Now,
	}, nil
}

// Authenticate validates credential and returns the identity it names.
// Every failure wraps core.ErrAuthFailed.
func (p *JWTProvider) Authenticate(_ context.Context, credential string) (core.Identity, error) {
	if credential == "" {
		return core.Identity{}, fmt.Errorf("%w: empty credential", core.ErrAuthFailed)
	}

	token, err := jwt.Parse(credential, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return p.key, nil
	})
	if err != nil {
		return core.Identity{}, fmt.Errorf("%w: %v", core.ErrAuthFailed, err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return core.Identity{}, fmt.Errorf("%w: invalid token", core.ErrAuthFailed)
	}
	if p.issuer != "" && !claims.VerifyIssuer(p.issuer, true) {
		return core.Identity{}, fmt.Errorf("%w: unexpected issuer", core.ErrAuthFailed)
	}

	id := core.Identity{
		Subject:     stringClaim(claims, "sub"),
		DisplayName: stringClaim(claims, "name"),
		AvatarRef:   stringClaim(claims, "picture"),
	}
	if id.Key() == "" {
		return core.Identity{}, fmt.Errorf("%w: token names no user", core.ErrAuthFailed)
	}
	return id, nil
}

// Issue signs a token for id that expires after ttl.
func (p *JWTProvider) Issue(id core.Identity, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub":  id.Subject,
		"name": id.DisplayName,
		"exp":  p.now().Add(ttl).Unix(),
	}
	if id.AvatarRef != "" {
		claims["picture"] = id.AvatarRef
	}
	if p.issuer != "" {
		claims["iss"] = p.issuer
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(p.key)
}

func stringClaim(claims jwt.MapClaims, name string) string {
	s, _ := claims[name].(string)
	return s
}
