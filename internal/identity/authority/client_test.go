// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package authority_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/parley/internal/identity"
	"github.com/taibuivan/parley/internal/identity/authority"
)

/*
TestClient_Login_Success decodes a full delegation payload.
*/
func TestClient_Login_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, http.MethodPost, request.Method)
		assert.Equal(t, "/v1/sessions", request.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(request.Body).Decode(&body))
		assert.Equal(t, "tai@parley.chat", body["email"])

		json.NewEncoder(writer).Encode(map[string]any{
			"subject_id":     "remote-7",
			"email":          "tai@parley.chat",
			"name":           "Tai",
			"account_type":   "member",
			"email_verified": true,
			"token":          "remote.jwt.token",
		})
	}))
	defer server.Close()

	client := authority.NewClient(authority.Config{BaseURL: server.URL})

	delegation, err := client.Login(context.Background(), "tai@parley.chat", "secret")
	require.NoError(t, err)

	assert.Equal(t, "remote-7", delegation.SubjectID)
	assert.Equal(t, "Tai", delegation.Name)
	assert.True(t, delegation.EmailVerified)
	assert.Equal(t, "remote.jwt.token", delegation.Token)
}

/*
TestClient_Login_Rejection maps a 4xx answer to AuthorityRejection.
*/
func TestClient_Login_Rejection(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(writer).Encode(map[string]string{"code": "BAD_CREDENTIALS"})
	}))
	defer server.Close()

	client := authority.NewClient(authority.Config{BaseURL: server.URL})

	_, err := client.Login(context.Background(), "tai@parley.chat", "wrong")
	require.Error(t, err)

	rejection := &identity.AuthorityRejection{}
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, http.StatusUnauthorized, rejection.StatusCode)
	assert.Equal(t, "BAD_CREDENTIALS", rejection.Code)
	assert.False(t, errors.Is(err, identity.ErrAuthorityUnavailable))
}

/*
TestClient_Login_ServerError maps 5xx answers to ErrAuthorityUnavailable.
*/
func TestClient_Login_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := authority.NewClient(authority.Config{BaseURL: server.URL})

	_, err := client.Login(context.Background(), "tai@parley.chat", "secret")
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrAuthorityUnavailable))
}

/*
TestClient_Login_TransportFailure treats an unreachable host as unavailability.
*/
func TestClient_Login_TransportFailure(t *testing.T) {
	// A server that is already closed refuses connections.
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client := authority.NewClient(authority.Config{BaseURL: server.URL})

	_, err := client.Login(context.Background(), "tai@parley.chat", "secret")
	require.Error(t, err)
	assert.True(t, errors.Is(err, identity.ErrAuthorityUnavailable))
}

/*
TestClient_ResetEndpoints exercises the two password-reset calls.
*/
func TestClient_ResetEndpoints(t *testing.T) {
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		paths = append(paths, request.URL.Path)
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := authority.NewClient(authority.Config{BaseURL: server.URL})

	require.NoError(t, client.RequestPasswordReset(context.Background(), "tai@parley.chat"))
	require.NoError(t, client.ResetPassword(context.Background(), "remote-token", "new-password"))

	assert.Equal(t, []string{"/v1/password-resets", "/v1/password-resets/complete"}, paths)
}

/*
TestClient_APIKeyHeader forwards the configured key as a bearer header.
*/
func TestClient_APIKeyHeader(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "Bearer shared-key", request.Header.Get("Authorization"))
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := authority.NewClient(authority.Config{BaseURL: server.URL, APIKey: "shared-key"})
	require.NoError(t, client.RequestPasswordReset(context.Background(), "tai@parley.chat"))
}
