// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

/*
Package identity implements the federated-identity front door of the Parley
chat platform.

It authenticates users against the local credential store or the remote
identity authority, normalizes both into one canonical identity, issues and
verifies access/refresh token pairs, manages session lifecycle, and drives
the email-verification and password-reset flows with fallback when the
remote authority is unreachable.

# Architecture

This layer is the "Truth" of the system. Entities defined here have no
transport dependencies and encapsulate all business rules related to user
identity.
*/
package identity

import (
	"time"

	"github.com/taibuivan/parley/internal/platform/sec"
)

// # Domain Entities

// Identity is the canonical user record, regardless of which authority
// authenticated it.
type Identity struct {
	ID            string       `json:"id"`
	Email         string       `json:"email"`
	EmailVerified bool         `json:"email_verified"`
	Name          string       `json:"name"`
	Username      string       `json:"username"`
	Role          sec.UserRole `json:"role"`
	Provider      sec.Provider `json:"provider"`

	// FederatedID is the remote authority's subject id. Empty for local identities.
	FederatedID string `json:"-"`

	// PasswordHash is present only for local-authority identities.
	PasswordHash string `json:"-"` // Explicitly omitted from JSON for security.

	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LockedAt         *time.Time `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// FederatedToken carries the authority-signed bearer token after a
	// delegated login so it can be reused verbatim instead of re-signing.
	// In-memory only, never persisted.
	FederatedToken string `json:"-"`
}

// Locked reports whether the account is administratively locked.
func (i *Identity) Locked() bool { return i.LockedAt != nil }

// Session represents one authenticated device/browser, backed by a rotatable
// refresh token.
//
// # State Machine
//
// Created → Active → {Rotated → Active | Revoked | Expired}. Revoked and
// Expired are terminal; a revoked session can never become active again.
type Session struct {
	ID         string `json:"id"`
	IdentityID string `json:"identity_id"`

	// TokenHash is the SHA-256 digest of the current refresh token.
	// Rotation replaces only this field; id and expiry are stable.
	TokenHash string `json:"-"`

	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	IsRevoked bool       `json:"is_revoked"`
	RevokedAt *time.Time `json:"-"`

	// RevokeReason records why the session ended (logout, expired, ...).
	RevokeReason string `json:"-"`
}

// Active reports whether the session can still mint access tokens.
func (s *Session) Active(now time.Time) bool {
	return !s.IsRevoked && now.Before(s.ExpiresAt)
}

// PendingLogin is a half-finished login waiting on a second factor. It lives
// in the volatile store under the temp token, never in PostgreSQL.
type PendingLogin struct {
	IdentityID string `json:"identity_id"`
	CodeHash   string `json:"code_hash"`
}

// # One-Time Token Purposes

// Purpose distinguishes the two one-time token flows. Each identity holds at
// most one live token per purpose; issuing a new one supersedes the old.
type Purpose string

const (
	PurposeVerifyEmail   Purpose = "verify"
	PurposePasswordReset Purpose = "reset"
)

// # Field Identifiers

// Global field names for validation and identity mapping in the identity domain.
const (
	FieldEmail       = "email"
	FieldPassword    = "password"
	FieldName        = "name"
	FieldUsername    = "username"
	FieldToken       = "token"
	FieldTempToken   = "temp_token"
	FieldCode        = "code"
	FieldUserID      = "user_id"
	FieldMessage     = "message"
	FieldAccessToken = "access_token"
)
