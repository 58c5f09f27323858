// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/constants"
	"github.com/taibuivan/parley/internal/platform/ctxutil"
	"github.com/taibuivan/parley/internal/platform/middleware"
	"github.com/taibuivan/parley/internal/platform/sec"
)

const (
	testLocalSecret = "local-secret-for-tests-0123456789"
	testIssuer      = "parley.chat"
)

// echoPrincipal terminates the middleware chain and records the principal
// the chain injected, if any.
func echoPrincipal(claims **sec.AuthClaims) http.Handler {
	return http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		*claims = ctxutil.GetPrincipal(request.Context())
		writer.WriteHeader(http.StatusOK)
	})
}

func serveAuthenticated(codec *sec.TokenService, request *http.Request) (*httptest.ResponseRecorder, *sec.AuthClaims) {
	var claims *sec.AuthClaims
	recorder := httptest.NewRecorder()
	middleware.Authenticate(codec)(echoPrincipal(&claims)).ServeHTTP(recorder, request)
	return recorder, claims
}

/*
TestAuthenticate_LocalBearer covers the happy path: a locally-signed bearer
token passes the gate and its claims reach the downstream handler.
*/
func TestAuthenticate_LocalBearer(t *testing.T) {
	// 1. Setup.
	codec, err := sec.NewTokenService(testLocalSecret, "", testIssuer, false)
	require.NoError(t, err)

	token, err := codec.Sign(sec.AuthClaims{UserID: "user-1", Email: "tai@parley.chat"}, sec.ProviderLocal, time.Minute)
	require.NoError(t, err)

	// 2. A valid bearer is injected as the principal.
	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	request.Header.Set(constants.HeaderAuthorization, "Bearer "+token)

	recorder, claims := serveAuthenticated(codec, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.UserID)

	// 3. No header at all passes through anonymous.
	recorder, claims = serveAuthenticated(codec, httptest.NewRequest(http.MethodGet, "/me", nil))
	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Nil(t, claims)
}

/*
TestAuthenticate_ForgedProviderCookie verifies that a client tagging its
request with an authority the deployment does not carry a secret for is
refused with a plain 401, never a server error.
*/
func TestAuthenticate_ForgedProviderCookie(t *testing.T) {
	// 1. Local-only deployment: no federated secret configured.
	codec, err := sec.NewTokenService(testLocalSecret, "", testIssuer, false)
	require.NoError(t, err)

	token, err := codec.Sign(sec.AuthClaims{UserID: "user-1", Email: "tai@parley.chat"}, sec.ProviderLocal, time.Minute)
	require.NoError(t, err)

	// 2. The same valid bearer plus a forged provider tag.
	request := httptest.NewRequest(http.MethodGet, "/me", nil)
	request.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	request.AddCookie(&http.Cookie{Name: constants.ProviderCookieName, Value: string(sec.ProviderFederated)})

	recorder, claims := serveAuthenticated(codec, request)
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	assert.Nil(t, claims)

	body := map[string]any{}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	assert.Equal(t, apperr.CodeUnauthorized, body["code"])

	// 3. An unrecognized provider value falls back to shape discrimination
	// and the local token still passes.
	request = httptest.NewRequest(http.MethodGet, "/me", nil)
	request.Header.Set(constants.HeaderAuthorization, "Bearer "+token)
	request.AddCookie(&http.Cookie{Name: constants.ProviderCookieName, Value: "github"})

	recorder, claims = serveAuthenticated(codec, request)
	assert.Equal(t, http.StatusOK, recorder.Code)
	require.NotNil(t, claims)
	assert.Equal(t, "user-1", claims.UserID)
}

/*
TestAuthenticate_MalformedHeader verifies header-format rejections stay 401.
*/
func TestAuthenticate_MalformedHeader(t *testing.T) {
	codec, err := sec.NewTokenService(testLocalSecret, "", testIssuer, false)
	require.NoError(t, err)

	for _, header := range []string{"Basic abc", "Bearer", "Bearer a b"} {
		request := httptest.NewRequest(http.MethodGet, "/me", nil)
		request.Header.Set(constants.HeaderAuthorization, header)

		recorder, claims := serveAuthenticated(codec, request)
		assert.Equal(t, http.StatusUnauthorized, recorder.Code, header)
		assert.Nil(t, claims)
	}
}
