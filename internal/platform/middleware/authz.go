// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/constants"
	"github.com/taibuivan/parley/internal/platform/ctxutil"
	"github.com/taibuivan/parley/internal/platform/respond"
	"github.com/taibuivan/parley/internal/platform/sec"
)

// BearerVerifier defines the interface needed to verify bearer tokens in
// middleware.
//
// # Why an interface?
//
// Defining BearerVerifier here decouples the middleware from the concrete
// [sec.TokenService], allowing us to easily inject mocks during unit testing.
type BearerVerifier interface {
	// VerifyBearer classifies a raw token by shape and verifies it with the
	// selected authority's secret only.
	VerifyBearer(tokenString string) (*sec.AuthClaims, error)

	// VerifyAs verifies a raw token against one named authority's secret.
	VerifyAs(tokenString string, provider sec.Provider) (*sec.AuthClaims, error)
}

// Authenticate extracts and verifies the bearer token from the Authorization
// header.
//
// # Flow
//  1. Check for 'Authorization: Bearer <token>' header.
//  2. If absent, request proceeds as anonymous.
//  3. If a provider-tag cookie accompanies the request, verify against that
//     authority's secret directly; otherwise discriminate from the token shape.
//  4. Inject [*sec.AuthClaims] into the request context for downstream use.
//
// A token that fails verification after classification is rejected outright;
// the other authority's secret is never tried.
func Authenticate(verifier BearerVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			authHeader := request.Header.Get(constants.HeaderAuthorization)

			// ── 1. Anonymous Access ───────────────────────────────────────────
			if authHeader == "" {
				next.ServeHTTP(writer, request)
				return
			}

			// ── 2. Format Validation ──────────────────────────────────────────
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				respond.Error(writer, request, apperr.Unauthorized("Invalid authorization format"))
				return
			}
			tokenStr := parts[1]

			// ── 3. Token Verification ─────────────────────────────────────────
			var claims *sec.AuthClaims
			var err error

			if provider := providerFromCookie(request); provider.Valid() {
				claims, err = verifier.VerifyAs(tokenStr, provider)
			} else {
				claims, err = verifier.VerifyBearer(tokenStr)
			}

			if err != nil {
				// The token and the provider tag are both client-supplied;
				// whatever went wrong, the answer is 401, never a 5xx. A
				// forged provider cookie lands here too.
				appError := &apperr.AppError{}
				if !errors.As(err, &appError) {
					err = apperr.Unauthorized("Invalid or expired token")
				}
				respond.Error(writer, request, err)
				return
			}

			// ── 4. Context Injection ──────────────────────────────────────────
			ctx := ctxutil.WithPrincipal(request.Context(), claims)
			next.ServeHTTP(writer, request.WithContext(ctx))
		})
	}
}

// providerFromCookie reads the provider-tag cookie set at login so repeat
// requests skip the unverified-claims peek.
func providerFromCookie(request *http.Request) sec.Provider {
	cookie, err := request.Cookie(constants.ProviderCookieName)
	if err != nil || cookie.Value == "" {
		return ""
	}
	return sec.Provider(cookie.Value)
}

// RequireAuth blocks requests that are not authenticated.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate].
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		claims := ctxutil.GetPrincipal(request.Context())
		if claims == nil {
			respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
			return
		}
		next.ServeHTTP(writer, request)
	})
}

// RequireRole blocks requests if the authenticated principal doesn't hold the
// required role.
//
// # Usage
//
// Must be registered in the router AFTER [Authenticate]. It automatically
// implies [RequireAuth] so you don't need to mount both.
func RequireRole(role sec.UserRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			claims := ctxutil.GetPrincipal(request.Context())

			// ── 1. Authentication Check ───────────────────────────────────────
			if claims == nil {
				respond.Error(writer, request, apperr.Unauthorized("Authentication required"))
				return
			}

			// ── 2. Authorization Check ────────────────────────────────────────
			if !claims.EffectiveRole().AtLeast(role) {
				respond.Error(writer, request, apperr.AuthorizationDenied())
				return
			}

			next.ServeHTTP(writer, request)
		})
	}
}
