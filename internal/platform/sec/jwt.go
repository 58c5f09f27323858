// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing,
// token-shape discrimination) from the domain logic. It acts as an
// Infrastructure service injected into the Application layer.
//
// # Two Authorities, Two Secrets
//
// Locally-issued and federated tokens use disjoint claim vocabularies and are
// signed with different secrets. The codec is pure: signing and verification
// are deterministic given inputs and secret, with no I/O.
package sec

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/parley/internal/platform/apperr"
)

// AuthClaims represents the payload embedded inside a bearer access token.
//
// The two token shapes share one struct: locally-issued tokens carry `uid`
// and `rol`, federated tokens carry `sid` and `typ`. The presence of `sid`
// is the discriminating claim — it never appears in local tokens.
type AuthClaims struct {
	jwt.RegisteredClaims

	// Custom application claims are abbreviated to keep the payload small.

	// UserID is the canonical identity id. Locally-issued tokens only.
	UserID string `json:"uid,omitempty"`
	// FederatedID is the remote authority's subject id. Federated tokens only.
	FederatedID string `json:"sid,omitempty"`
	// Email is carried by both shapes.
	Email string `json:"eml"`
	// Verified mirrors the identity's email verification flag.
	Verified bool `json:"vrf"`
	// Role is the canonical role. Locally-issued tokens only.
	Role string `json:"rol,omitempty"`
	// AccountType is the authority's account-type claim. Federated tokens only.
	AccountType string `json:"typ,omitempty"`
}

// Provider reports which authority's shape these claims follow.
func (c *AuthClaims) Provider() Provider {
	if c.FederatedID != "" {
		return ProviderFederated
	}
	return ProviderLocal
}

// EffectiveRole normalizes both shapes to the canonical role set.
func (c *AuthClaims) EffectiveRole() UserRole {
	if c.Provider() == ProviderFederated {
		return RoleFromAccountType(c.AccountType)
	}
	if c.Role == string(RoleAdmin) {
		return RoleAdmin
	}
	return RoleUser
}

// PrincipalID returns the identifying claim for the token's shape.
func (c *AuthClaims) PrincipalID() string {
	if c.Provider() == ProviderFederated {
		return c.FederatedID
	}
	return c.UserID
}

// TokenService signs and verifies bearer tokens using HS256 with one secret
// per authority.
type TokenService struct {
	localSecret     []byte
	federatedSecret []byte
	issuer          string
	delegated       bool
}

// NewTokenService creates a new TokenService.
//
// The federated secret may be empty when delegated mode is off; attempting a
// federated operation without it is an error.
func NewTokenService(localSecret, federatedSecret, issuer string, delegated bool) (*TokenService, error) {
	if localSecret == "" {
		return nil, fmt.Errorf("sec: local token secret must not be empty")
	}
	if delegated && federatedSecret == "" {
		return nil, fmt.Errorf("sec: delegated mode requires a federated token secret")
	}

	return &TokenService{
		localSecret:     []byte(localSecret),
		federatedSecret: []byte(federatedSecret),
		issuer:          issuer,
		delegated:       delegated,
	}, nil
}

// Delegated reports whether federated tokens are accepted at all.
func (service *TokenService) Delegated() bool { return service.delegated }

// LocalSecret exposes the local signing secret for cookie MACs.
func (service *TokenService) LocalSecret() []byte { return service.localSecret }

// Sign produces a signed bearer token whose claim set matches the target
// authority's shape.
//
// The discriminating claims are checked against the requested provider so a
// local token can never accidentally carry the federated subject id.
func (service *TokenService) Sign(claims AuthClaims, provider Provider, timeToLive time.Duration) (string, error) {
	secret, err := service.secretFor(provider)
	if err != nil {
		return "", err
	}

	switch provider {
	case ProviderLocal:
		if claims.UserID == "" || claims.FederatedID != "" {
			return "", fmt.Errorf("sec: claims do not match the local token shape")
		}
	case ProviderFederated:
		if claims.FederatedID == "" || claims.UserID != "" {
			return "", fmt.Errorf("sec: claims do not match the federated token shape")
		}
	}

	currentTime := time.Now()
	claims.RegisteredClaims = jwt.RegisteredClaims{
		Subject:   claims.PrincipalID(),
		Issuer:    service.issuer,
		IssuedAt:  jwt.NewNumericDate(currentTime),
		ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

// VerifyAs checks the signature and validity of a token against one
// authority's secret. There is no retry with the other secret.
func (service *TokenService) VerifyAs(tokenString string, provider Provider) (*AuthClaims, error) {
	secret, err := service.secretFor(provider)
	if err != nil {
		return nil, err
	}
	return verify(tokenString, secret)
}

// secretFor selects the signing secret for an authority.
func (service *TokenService) secretFor(provider Provider) ([]byte, error) {
	switch provider {
	case ProviderLocal:
		return service.localSecret, nil
	case ProviderFederated:
		if len(service.federatedSecret) == 0 {
			return nil, fmt.Errorf("sec: federated token secret is not configured")
		}
		return service.federatedSecret, nil
	default:
		return nil, fmt.Errorf("sec: unknown provider %q", provider)
	}
}

// verify parses and validates a token with a single fixed secret, mapping
// jwt/v5 failures onto the platform error taxonomy.
func verify(tokenString string, secret []byte) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("sec: unexpected signing method: %v", token.Header["alg"])
		}
		return secret, nil
	})

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, apperr.TokenExpired()
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, apperr.TokenInvalidSignature()
		case errors.Is(err, jwt.ErrTokenMalformed):
			return nil, apperr.TokenMalformed()
		default:
			return nil, apperr.TokenMalformed()
		}
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, apperr.TokenMalformed()
	}

	return claims, nil
}
