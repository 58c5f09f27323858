// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/dberr"
)

// # Identity Repository

// PostgresIdentityRepository implements the IdentityRepository interface using pgx.
type PostgresIdentityRepository struct {
	pool *pgxpool.Pool
}

// NewIdentityRepository creates a new PostgreSQL implementation of the IdentityRepository.
func NewIdentityRepository(pool *pgxpool.Pool) *PostgresIdentityRepository {
	return &PostgresIdentityRepository{pool: pool}
}

const identityColumns = `
	id, email, emailverified, name, username, role, provider, federatedid,
	passwordhash, twofactorenabled, lockedat, createdat, updatedat`

func scanIdentity(row pgx.Row) (*Identity, error) {
	identity := &Identity{}
	err := row.Scan(
		&identity.ID,
		&identity.Email,
		&identity.EmailVerified,
		&identity.Name,
		&identity.Username,
		&identity.Role,
		&identity.Provider,
		&identity.FederatedID,
		&identity.PasswordHash,
		&identity.TwoFactorEnabled,
		&identity.LockedAt,
		&identity.CreatedAt,
		&identity.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return identity, nil
}

/*
Create persists a new identity record into the users.identity table.

Description: Initializes timestamps when absent and maps unique-constraint
violations (email, username, federatedid) to apperr.Conflict.

Parameters:
  - context: context.Context
  - identity: *Identity (Entity to persist)

Returns:
  - error: apperr.Conflict or database errors
*/
func (repository *PostgresIdentityRepository) Create(context context.Context, identity *Identity) error {
	const query = `
		INSERT INTO users.identity (
			id, email, emailverified, name, username, role, provider, federatedid,
			passwordhash, twofactorenabled, lockedat, createdat, updatedat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	now := time.Now()
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = now
	}
	identity.UpdatedAt = now

	_, err := repository.pool.Exec(context, query,
		identity.ID,
		identity.Email,
		identity.EmailVerified,
		identity.Name,
		identity.Username,
		identity.Role,
		identity.Provider,
		identity.FederatedID,
		identity.PasswordHash,
		identity.TwoFactorEnabled,
		identity.LockedAt,
		identity.CreatedAt,
		identity.UpdatedAt,
	)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return apperr.Conflict("An account with this email or username already exists")
		}
		return fmt.Errorf("postgres_identity_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByID retrieves an identity record by its primary key.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIdentityRepository) FindByID(context context.Context, id string) (*Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM users.identity
		WHERE id = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Identity")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_id_failed: %w", err)
	}

	return identity, nil
}

/*
FindByEmail retrieves an identity record by its unique email address.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIdentityRepository) FindByEmail(context context.Context, email string) (*Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM users.identity
		WHERE email = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Identity")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_email_failed: %w", err)
	}

	return identity, nil
}

/*
FindByFederatedID retrieves the identity linked to a remote authority subject.

Parameters:
  - context: context.Context
  - federatedID: string

Returns:
  - *Identity: Hydrated entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIdentityRepository) FindByFederatedID(context context.Context, federatedID string) (*Identity, error) {
	const query = `
		SELECT ` + identityColumns + `
		FROM users.identity
		WHERE federatedid = $1`

	identity, err := scanIdentity(repository.pool.QueryRow(context, query, federatedID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Identity")
		}
		return nil, fmt.Errorf("postgres_identity_repo_find_by_federated_id_failed: %w", err)
	}

	return identity, nil
}

/*
Delete hard-deletes an identity. Session rows cascade via foreign key.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: Database errors
*/
func (repository *PostgresIdentityRepository) Delete(context context.Context, id string) error {
	const query = `DELETE FROM users.identity WHERE id = $1`

	if _, err := repository.pool.Exec(context, query, id); err != nil {
		return fmt.Errorf("postgres_identity_repo_delete_failed: %w", err)
	}

	return nil
}

/*
UpdatePassword replaces the identity's password hash.

Parameters:
  - context: context.Context
  - id: string
  - newHash: string

Returns:
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIdentityRepository) UpdatePassword(context context.Context, id, newHash string) error {
	const query = `
		UPDATE users.identity
		SET passwordhash = $2, updatedat = NOW()
		WHERE id = $1`

	tag, err := repository.pool.Exec(context, query, id, newHash)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_update_password_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Identity")
	}

	return nil
}

/*
MarkVerified flags the identity's email address as verified.

Parameters:
  - context: context.Context
  - id: string

Returns:
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresIdentityRepository) MarkVerified(context context.Context, id string) error {
	const query = `
		UPDATE users.identity
		SET emailverified = TRUE, updatedat = NOW()
		WHERE id = $1`

	tag, err := repository.pool.Exec(context, query, id)
	if err != nil {
		return fmt.Errorf("postgres_identity_repo_mark_verified_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Identity")
	}

	return nil
}

/*
SetLocked locks or unlocks the identity.

Parameters:
  - context: context.Context
  - id: string
  - locked: bool

Returns:
  - error: Database errors
*/
func (repository *PostgresIdentityRepository) SetLocked(context context.Context, id string, locked bool) error {
	const query = `
		UPDATE users.identity
		SET lockedat = CASE WHEN $2 THEN NOW() ELSE NULL END, updatedat = NOW()
		WHERE id = $1`

	if _, err := repository.pool.Exec(context, query, id, locked); err != nil {
		return fmt.Errorf("postgres_identity_repo_set_locked_failed: %w", err)
	}

	return nil
}

/*
Count returns the total number of identities.

Parameters:
  - context: context.Context

Returns:
  - int64: Identity count
  - error: Database errors
*/
func (repository *PostgresIdentityRepository) Count(context context.Context) (int64, error) {
	const query = `SELECT COUNT(*) FROM users.identity`

	var count int64
	if err := repository.pool.QueryRow(context, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres_identity_repo_count_failed: %w", err)
	}

	return count, nil
}

// # Session Repository

// PostgresSessionRepository implements the SessionRepository interface using pgx.
type PostgresSessionRepository struct {
	pool *pgxpool.Pool
}

// NewSessionRepository creates a new PostgreSQL implementation of the SessionRepository.
func NewSessionRepository(pool *pgxpool.Pool) *PostgresSessionRepository {
	return &PostgresSessionRepository{pool: pool}
}

/*
Create persists a new session row into the users.session table.

Parameters:
  - context: context.Context
  - session: *Session

Returns:
  - error: Database errors
*/
func (repository *PostgresSessionRepository) Create(context context.Context, session *Session) error {
	const query = `
		INSERT INTO users.session (
			id, identityid, tokenhash, createdat, expiresat, isrevoked
		) VALUES ($1, $2, $3, $4, $5, $6)`

	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}

	_, err := repository.pool.Exec(context, query,
		session.ID,
		session.IdentityID,
		session.TokenHash,
		session.CreatedAt,
		session.ExpiresAt,
		session.IsRevoked,
	)

	if err != nil {
		return fmt.Errorf("postgres_session_repo_create_failed: %w", err)
	}

	return nil
}

/*
FindByTokenHash retrieves a session by the digest of its refresh token.

Description: Returns the row regardless of revocation or expiry; the caller
decides how expired or revoked sessions are handled.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *Session: Hydrated entity
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresSessionRepository) FindByTokenHash(context context.Context, tokenHash string) (*Session, error) {
	const query = `
		SELECT id, identityid, tokenhash, createdat, expiresat, isrevoked, revokedat, revokereason
		FROM users.session
		WHERE tokenhash = $1`

	session := &Session{}
	err := repository.pool.QueryRow(context, query, tokenHash).Scan(
		&session.ID,
		&session.IdentityID,
		&session.TokenHash,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.IsRevoked,
		&session.RevokedAt,
		&session.RevokeReason,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperr.NotFound("Session")
		}
		return nil, fmt.Errorf("postgres_session_repo_find_by_token_hash_failed: %w", err)
	}

	return session, nil
}

/*
Rotate replaces the session's token hash in place.

Description: Only active, unexpired sessions rotate. The session keeps its id
and absolute expiry, so rotation never extends a session's lifetime.

Parameters:
  - context: context.Context
  - sessionID: string
  - newTokenHash: string

Returns:
  - error: apperr.NotFound when the session is missing, revoked or expired
*/
func (repository *PostgresSessionRepository) Rotate(context context.Context, sessionID, newTokenHash string) error {
	const query = `
		UPDATE users.session
		SET tokenhash = $2
		WHERE id = $1 AND isrevoked = FALSE AND expiresat > NOW()`

	tag, err := repository.pool.Exec(context, query, sessionID, newTokenHash)
	if err != nil {
		return fmt.Errorf("postgres_session_repo_rotate_failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("Active session")
	}

	return nil
}

/*
Revoke marks a session as permanently invalidated.

Description: Idempotent. Revoking an already-revoked or nonexistent session
returns success so callers never learn whether the row existed.

Parameters:
  - context: context.Context
  - sessionID: string
  - reason: string

Returns:
  - error: Database errors only
*/
func (repository *PostgresSessionRepository) Revoke(context context.Context, sessionID, reason string) error {
	const query = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = NOW(), revokereason = $2
		WHERE id = $1 AND isrevoked = FALSE`

	if _, err := repository.pool.Exec(context, query, sessionID, reason); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_failed: %w", err)
	}

	return nil
}

/*
RevokeAllForIdentity revokes every active session for an identity.

Parameters:
  - context: context.Context
  - identityID: string
  - reason: string

Returns:
  - error: Database errors only
*/
func (repository *PostgresSessionRepository) RevokeAllForIdentity(context context.Context, identityID, reason string) error {
	const query = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = NOW(), revokereason = $2
		WHERE identityid = $1 AND isrevoked = FALSE`

	if _, err := repository.pool.Exec(context, query, identityID, reason); err != nil {
		return fmt.Errorf("postgres_session_repo_revoke_all_failed: %w", err)
	}

	return nil
}

/*
RevokeExpired flags expired-but-active sessions as revoked.

Parameters:
  - context: context.Context

Returns:
  - int64: Number of rows flagged
  - error: Database errors
*/
func (repository *PostgresSessionRepository) RevokeExpired(context context.Context) (int64, error) {
	const query = `
		UPDATE users.session
		SET isrevoked = TRUE, revokedat = NOW(), revokereason = $1
		WHERE isrevoked = FALSE AND expiresat <= NOW()`

	tag, err := repository.pool.Exec(context, query, RevokeReasonExpired)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_revoke_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

/*
DeleteOlderThan hard-deletes sessions whose expiry is before cutoff.

Parameters:
  - context: context.Context
  - cutoff: time.Time

Returns:
  - int64: Number of rows removed
  - error: Database errors
*/
func (repository *PostgresSessionRepository) DeleteOlderThan(context context.Context, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM users.session WHERE expiresat < $1`

	tag, err := repository.pool.Exec(context, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres_session_repo_delete_older_than_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}
