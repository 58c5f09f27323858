// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package authority talks to the remote account authority that Parley
// delegates credential decisions to. The remote system owns passwords and
// password-reset flows for federated accounts; this client wraps its HTTP
// surface and implements the domain's Authority interface, classifying
// failures so callers can tell "the authority said no" apart from "the
// authority could not be reached".
package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/taibuivan/parley/internal/identity"
	"github.com/taibuivan/parley/internal/platform/constants"
)

// Config holds the client settings. BaseURL is overridable for tests.
type Config struct {
	BaseURL string
	APIKey  string
}

// Client is an HTTP client for the remote account authority.
type Client struct {
	config Config
	http   *http.Client
}

// NewClient creates a Client with a bounded per-call timeout.
func NewClient(config Config) *Client {
	return &Client{
		config: config,
		http:   &http.Client{Timeout: constants.RemoteCallTimeout},
	}
}

// loginResponse mirrors the authority's session endpoint payload.
type loginResponse struct {
	SubjectID     string `json:"subject_id"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	AccountType   string `json:"account_type"`
	EmailVerified bool   `json:"email_verified"`
	Token         string `json:"token"`
}

/*
Login verifies the given credentials against the remote authority.

Parameters:
  - context: context.Context
  - email: string
  - password: string

Returns:
  - *identity.LoginDelegation: Subject profile and the authority-issued token
  - error: *identity.AuthorityRejection for definitive denials,
    identity.ErrAuthorityUnavailable otherwise
*/
func (client *Client) Login(context context.Context, email, password string) (*identity.LoginDelegation, error) {
	payload := map[string]string{"email": email, "password": password}

	response := &loginResponse{}
	if err := client.post(context, "/v1/sessions", payload, response); err != nil {
		return nil, err
	}

	return &identity.LoginDelegation{
		SubjectID:     response.SubjectID,
		Email:         response.Email,
		Name:          response.Name,
		AccountType:   response.AccountType,
		EmailVerified: response.EmailVerified,
		Token:         response.Token,
	}, nil
}

/*
RequestPasswordReset asks the authority to start its own reset flow.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - error: *identity.AuthorityRejection or identity.ErrAuthorityUnavailable
*/
func (client *Client) RequestPasswordReset(context context.Context, email string) error {
	payload := map[string]string{"email": email}
	return client.post(context, "/v1/password-resets", payload, nil)
}

/*
ResetPassword completes an authority-issued reset flow.

Parameters:
  - context: context.Context
  - token: string
  - newPassword: string

Returns:
  - error: *identity.AuthorityRejection or identity.ErrAuthorityUnavailable
*/
func (client *Client) ResetPassword(context context.Context, token, newPassword string) error {
	payload := map[string]string{"token": token, "password": newPassword}
	return client.post(context, "/v1/password-resets/complete", payload, nil)
}

// post sends a JSON request and classifies the outcome. 4xx responses become
// AuthorityRejection, everything else that is not a 2xx is unavailability.
func (client *Client) post(context context.Context, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("authority_marshal_failed: %w", err)
	}

	request, err := http.NewRequestWithContext(context, http.MethodPost, client.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("authority_request_build_failed: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	if client.config.APIKey != "" {
		request.Header.Set("Authorization", "Bearer "+client.config.APIKey)
	}

	response, err := client.http.Do(request)
	if err != nil {
		return fmt.Errorf("%w: %v", identity.ErrAuthorityUnavailable, err)
	}
	defer response.Body.Close()

	switch {
	case response.StatusCode >= 200 && response.StatusCode < 300:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(response.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: malformed response: %v", identity.ErrAuthorityUnavailable, err)
		}
		return nil

	case response.StatusCode >= 400 && response.StatusCode < 500:
		return &identity.AuthorityRejection{StatusCode: response.StatusCode, Code: decodeErrorCode(response.Body)}

	default:
		return fmt.Errorf("%w: status %d", identity.ErrAuthorityUnavailable, response.StatusCode)
	}
}

// decodeErrorCode pulls the machine code out of an authority error body.
func decodeErrorCode(body io.Reader) string {
	var envelope struct {
		Code string `json:"code"`
	}
	if err := json.NewDecoder(body).Decode(&envelope); err != nil || envelope.Code == "" {
		return "REJECTED"
	}
	return envelope.Code
}
