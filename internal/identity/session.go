// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/sec"
	"github.com/taibuivan/parley/pkg/uuidv7"
)

/*
CreateSession opens a new session for an authenticated identity.

Description: Generates a random refresh token, persists only its digest, and
hands the plaintext back exactly once.

Parameters:
  - context: context.Context
  - identity: *Identity

Returns:
  - *Session: Persisted session row
  - string: Plaintext refresh token, never stored
  - error: apperr taxonomy errors
*/
func (service *Service) CreateSession(context context.Context, identity *Identity) (*Session, string, error) {
	refreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, "", apperr.Internal(err)
	}

	now := service.now()
	session := &Session{
		ID:         uuidv7.New(),
		IdentityID: identity.ID,
		TokenHash:  sec.HashToken(refreshToken),
		CreatedAt:  now,
		ExpiresAt:  now.Add(SessionTTL),
	}

	if err := service.sessions.Create(context, session); err != nil {
		return nil, "", apperr.StorageFailure(err)
	}

	return session, refreshToken, nil
}

/*
Refresh exchanges a valid refresh token for a fresh token pair.

Description: Rotation is in place: the session keeps its id and absolute
expiry, only the refresh-token digest is replaced. A revoked or expired
session yields a generic 401 regardless of which condition failed.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - *LoginResult: New access and refresh tokens
  - error: apperr taxonomy errors
*/
func (service *Service) Refresh(context context.Context, refreshToken string) (*LoginResult, error) {
	session, err := service.sessions.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.Unauthorized("Session is invalid or expired")
		}
		return nil, apperr.StorageFailure(err)
	}

	if !session.Active(service.now()) {
		return nil, apperr.Unauthorized("Session is invalid or expired")
	}

	identity, err := service.identities.FindByID(context, session.IdentityID)
	if err != nil {
		return nil, apperr.Unauthorized("Session is invalid or expired")
	}
	if identity.Locked() {
		return nil, apperr.Forbidden("This account has been locked")
	}

	newRefreshToken, err := sec.GenerateSecureToken(RefreshTokenLength)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	if err := service.sessions.Rotate(context, session.ID, sec.HashToken(newRefreshToken)); err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			// Lost a race against revocation or expiry between read and write.
			return nil, apperr.Unauthorized("Session is invalid or expired")
		}
		return nil, apperr.StorageFailure(err)
	}

	accessToken, err := service.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}

	return &LoginResult{
		Identity:         identity,
		AccessToken:      accessToken,
		RefreshToken:     newRefreshToken,
		Provider:         identity.Provider,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

/*
IssueAccessToken mints a short-lived bearer token for an identity.

Description: When federated token reuse is on and the login carried an
authority-signed token, that token is served verbatim rather than re-signed.
Otherwise the codec signs a token in the shape of the identity's provider.

Parameters:
  - identity: *Identity

Returns:
  - string: Signed bearer token
  - error: apperr taxonomy errors
*/
func (service *Service) IssueAccessToken(identity *Identity) (string, error) {
	if service.options.ReuseFederatedTokens && identity.FederatedToken != "" {
		return identity.FederatedToken, nil
	}

	token, err := service.codec.Sign(claimsFor(identity), identity.Provider, AccessTokenTTL)
	if err != nil {
		return "", apperr.Internal(err)
	}

	return token, nil
}

/*
Logout revokes the session behind a refresh token.

Description: Fully idempotent. Unknown, already-revoked and expired tokens
all succeed, so logout can never fail from the client's point of view.

Parameters:
  - context: context.Context
  - refreshToken: string

Returns:
  - error: Storage failures only
*/
func (service *Service) Logout(context context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}

	session, err := service.sessions.FindByTokenHash(context, sec.HashToken(refreshToken))
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil
		}
		return apperr.StorageFailure(err)
	}

	if err := service.sessions.Revoke(context, session.ID, RevokeReasonLogout); err != nil {
		return apperr.StorageFailure(err)
	}

	service.metrics.RecordSessionRevoked(RevokeReasonLogout)
	return nil
}

/*
RevokeAllSessions terminates every active session an identity holds.

Parameters:
  - context: context.Context
  - identityID: string
  - reason: string

Returns:
  - error: Storage failures
*/
func (service *Service) RevokeAllSessions(context context.Context, identityID, reason string) error {
	if err := service.sessions.RevokeAllForIdentity(context, identityID, reason); err != nil {
		return apperr.StorageFailure(err)
	}

	service.metrics.RecordSessionRevoked(reason)
	return nil
}
