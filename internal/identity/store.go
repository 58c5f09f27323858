// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"time"
)

// # Identity Data Access

// IdentityRepository defines the data access contract for canonical identities.
type IdentityRepository interface {

	/*
		FindByID returns the identity with the given ID.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByID(context context.Context, id string) (*Identity, error)

	/*
		FindByEmail returns the identity with the given email. Email is unique
		across both authorities.

		Parameters:
		  - context: context.Context
		  - email: string

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByEmail(context context.Context, email string) (*Identity, error)

	/*
		FindByFederatedID returns the identity linked to a remote subject id.

		Parameters:
		  - context: context.Context
		  - federatedID: string

		Returns:
		  - *Identity: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByFederatedID(context context.Context, federatedID string) (*Identity, error)

	/*
		Create persists a brand-new identity.

		Parameters:
		  - context: context.Context
		  - identity: *Identity

		Returns:
		  - error: Unique-constraint violations or persistence failures
	*/
	Create(context context.Context, identity *Identity) error

	/*
		Delete hard-deletes an identity. Used only as registration
		compensation; deletion cascades to sessions.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, id string) error

	/*
		UpdatePassword replaces only the identity's password hash.

		Parameters:
		  - context: context.Context
		  - id: string
		  - newHash: string

		Returns:
		  - error: Persistence failures
	*/
	UpdatePassword(context context.Context, id, newHash string) error

	/*
		MarkVerified flips emailverified to true.

		Parameters:
		  - context: context.Context
		  - id: string

		Returns:
		  - error: Persistence failures
	*/
	MarkVerified(context context.Context, id string) error

	/*
		SetLocked locks or unlocks the identity.

		Parameters:
		  - context: context.Context
		  - id: string
		  - locked: bool

		Returns:
		  - error: Persistence failures
	*/
	SetLocked(context context.Context, id string, locked bool) error

	/*
		Count returns the total number of identities. Used to grant the
		first-ever registrant the elevated role.

		Parameters:
		  - context: context.Context

		Returns:
		  - int64: Identity count
		  - error: Retrieval failures
	*/
	Count(context context.Context) (int64, error)
}

// # Session Data Access

// SessionRepository defines the data access contract for refresh-token sessions.
type SessionRepository interface {

	/*
		Create persists a new session for an authenticated login.

		Parameters:
		  - context: context.Context
		  - session: *Session

		Returns:
		  - error: Persistence failures
	*/
	Create(context context.Context, session *Session) error

	/*
		FindByTokenHash returns the active session matching the given token hash.

		Parameters:
		  - context: context.Context
		  - tokenHash: string

		Returns:
		  - *Session: Hydrated entity
		  - error: Database retrieval failures
	*/
	FindByTokenHash(context context.Context, tokenHash string) (*Session, error)

	/*
		Rotate swaps the session's refresh-token identifier in place. The
		session id and absolute expiry are untouched.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - newTokenHash: string

		Returns:
		  - error: Persistence failures
	*/
	Rotate(context context.Context, sessionID, newTokenHash string) error

	/*
		Revoke marks a session as permanently invalidated. Idempotent:
		revoking an already-revoked or nonexistent session is a no-op success.

		Parameters:
		  - context: context.Context
		  - sessionID: string
		  - reason: string

		Returns:
		  - error: Persistence failures only (never "already revoked")
	*/
	Revoke(context context.Context, sessionID, reason string) error

	/*
		RevokeAllForIdentity revokes every active session belonging to the
		identity. Same idempotence guarantee as Revoke.

		Parameters:
		  - context: context.Context
		  - identityID: string
		  - reason: string

		Returns:
		  - error: Persistence failures
	*/
	RevokeAllForIdentity(context context.Context, identityID, reason string) error

	/*
		RevokeExpired flags expired-but-still-active rows as revoked. Active,
		unexpired rows are never touched.

		Parameters:
		  - context: context.Context

		Returns:
		  - int64: Number of rows flagged
		  - error: Persistence failures
	*/
	RevokeExpired(context context.Context) (int64, error)

	/*
		DeleteOlderThan hard-deletes sessions whose expiry is before cutoff.

		Parameters:
		  - context: context.Context
		  - cutoff: time.Time

		Returns:
		  - int64: Number of rows removed
		  - error: Persistence failures
	*/
	DeleteOlderThan(context context.Context, cutoff time.Time) (int64, error)
}

// # Volatile Data Access

// OneTimeTokenRepository stores the salted hashes of one-time token secrets.
//
// The plaintext secret is never persisted — only its hash — and each identity
// holds at most one live token per purpose: issuing a new one overwrites the
// previous entry.
type OneTimeTokenRepository interface {

	/*
		Put stores the hash of a freshly generated secret, superseding any
		live token of the same purpose for the identity.

		Parameters:
		  - context: context.Context
		  - purpose: Purpose
		  - identityID: string
		  - secretHash: string
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	Put(context context.Context, purpose Purpose, identityID, secretHash string, ttl time.Duration) error

	/*
		Get retrieves the stored hash for the identity's live token.

		Parameters:
		  - context: context.Context
		  - purpose: Purpose
		  - identityID: string

		Returns:
		  - string: Stored secret hash
		  - error: apperr.NotFound when absent or expired
	*/
	Get(context context.Context, purpose Purpose, identityID string) (string, error)

	/*
		Delete consumes the identity's live token for a purpose. Deleting an
		absent token is a no-op success.

		Parameters:
		  - context: context.Context
		  - purpose: Purpose
		  - identityID: string

		Returns:
		  - error: Persistence failures
	*/
	Delete(context context.Context, purpose Purpose, identityID string) error

	/*
		PutPendingLogin stores a half-finished second-factor login under the
		temp token's digest.

		Parameters:
		  - context: context.Context
		  - tempToken: string
		  - pending: PendingLogin
		  - ttl: time.Duration

		Returns:
		  - error: Persistence failures
	*/
	PutPendingLogin(context context.Context, tempToken string, pending PendingLogin, ttl time.Duration) error

	/*
		GetPendingLogin resolves a temp token into its pending login.

		Parameters:
		  - context: context.Context
		  - tempToken: string

		Returns:
		  - *PendingLogin: The stored pending login
		  - error: apperr.NotFound when absent or expired
	*/
	GetPendingLogin(context context.Context, tempToken string) (*PendingLogin, error)

	/*
		DeletePendingLogin consumes a pending login.

		Parameters:
		  - context: context.Context
		  - tempToken: string

		Returns:
		  - error: Persistence failures
	*/
	DeletePendingLogin(context context.Context, tempToken string) error
}
