// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec

import (
	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/parley/internal/platform/apperr"
)

// # Token Discrimination
//
// A single fixed secret cannot serve both authorities, so verification is a
// two-phase decode: peek at the unverified claims to select a secret, then
// verify with that secret only. Trial-and-error across secrets would open a
// secret-confusion hole, so a failed verification is terminal.

// Discriminate decodes a raw token WITHOUT verifying its signature and
// classifies it by shape.
//
// The federated subject-id claim never appears in locally-issued tokens, so
// its presence (combined with delegated mode being enabled) selects the
// federated secret. Unverified claims are trusted for nothing beyond this
// secret selection.
func (service *TokenService) Discriminate(tokenString string) (Provider, error) {
	parser := jwt.NewParser()

	claims := &AuthClaims{}
	if _, _, err := parser.ParseUnverified(tokenString, claims); err != nil {
		return "", apperr.TokenMalformed()
	}

	if claims.FederatedID != "" && service.delegated {
		return ProviderFederated, nil
	}
	return ProviderLocal, nil
}

// VerifyBearer classifies a raw bearer token and verifies it with the
// selected authority's secret.
//
// If classification succeeds but verification fails, the request is
// unauthenticated; the other secret is never tried.
func (service *TokenService) VerifyBearer(tokenString string) (*AuthClaims, error) {
	provider, err := service.Discriminate(tokenString)
	if err != nil {
		return nil, err
	}
	return service.VerifyAs(tokenString, provider)
}
