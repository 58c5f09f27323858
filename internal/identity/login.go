// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/mail"
	"github.com/taibuivan/parley/internal/platform/sec"
	"github.com/taibuivan/parley/pkg/username"
	"github.com/taibuivan/parley/pkg/uuidv7"
)

// dummyPasswordHash keeps the password check on the "unknown email" path as
// expensive as a real comparison, so the two rejections are indistinguishable
// by timing. bcrypt hash of an unguessable sentinel.
const dummyPasswordHash = "$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy"

// LoginResult is the outcome of a successful or half-finished login.
type LoginResult struct {
	Identity     *Identity
	AccessToken  string
	RefreshToken string
	Provider     sec.Provider

	// SessionExpiresAt is the session's absolute expiry. Cookies share it,
	// so a rotation never extends their lifetime past the session's.
	SessionExpiresAt time.Time

	// TwoFactorRequired signals that the caller must complete the second
	// factor before any tokens are issued. TempToken identifies the pending
	// login; AccessToken and RefreshToken are empty.
	TwoFactorRequired bool
	TempToken         string
}

/*
Login authenticates an email/password pair.

Description: Routes through the remote authority in delegated mode, with
automatic fallback to the local credential store when the authority is
unreachable. Absent accounts and wrong passwords produce byte-identical
generic failures.

Parameters:
  - context: context.Context
  - email: string
  - password: string

Returns:
  - *LoginResult: Tokens, or a two-factor challenge
  - error: apperr taxonomy errors
*/
func (service *Service) Login(context context.Context, email, password string) (*LoginResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	if service.options.Delegated {
		return service.delegatedLogin(context, email, password)
	}
	return service.localLogin(context, email, password)
}

// localLogin checks credentials against the local store.
func (service *Service) localLogin(context context.Context, email, password string) (*LoginResult, error) {
	identity, err := service.identities.FindByEmail(context, email)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			// Burn a comparison so timing matches the wrong-password path.
			sec.CheckPasswordHash(password, dummyPasswordHash)
			service.metrics.RecordLogin("failure", string(sec.ProviderLocal))
			return nil, apperr.InvalidCredentials()
		}
		return nil, apperr.StorageFailure(err)
	}

	if identity.PasswordHash == "" || !sec.CheckPasswordHash(password, identity.PasswordHash) {
		service.metrics.RecordLogin("failure", string(sec.ProviderLocal))
		return nil, apperr.InvalidCredentials()
	}

	return service.admitLocal(context, identity)
}

// admitLocal runs the post-credential gates (lock, verification, second
// factor) and finishes the login for a locally-authenticated identity.
func (service *Service) admitLocal(context context.Context, identity *Identity) (*LoginResult, error) {
	if identity.Locked() {
		service.metrics.RecordLogin("locked", string(sec.ProviderLocal))
		return nil, apperr.Forbidden("This account has been locked")
	}

	if !identity.EmailVerified {
		if service.legacyAutoVerify(context, identity) {
			identity.EmailVerified = true
		} else if !service.options.AllowUnverifiedLogin {
			service.metrics.RecordLogin("unverified", string(sec.ProviderLocal))
			return nil, apperr.EmailNotVerified()
		}
	}

	if identity.TwoFactorEnabled {
		return service.startTwoFactor(context, identity)
	}

	return service.finishLogin(context, identity, sec.ProviderLocal)
}

// legacyAutoVerify grandfathers accounts that predate the verification
// requirement. Only applies while mail delivery is disabled, since such
// accounts never received a verification email.
func (service *Service) legacyAutoVerify(context context.Context, identity *Identity) bool {
	if service.sender.Enabled() {
		return false
	}
	if !identity.CreatedAt.Before(legacyVerificationCutover) {
		return false
	}

	if err := service.identities.MarkVerified(context, identity.ID); err != nil {
		service.log.ErrorContext(context, "legacy auto-verify failed", "identity_id", identity.ID, "error", err)
		return false
	}

	service.log.InfoContext(context, "legacy identity auto-verified on login", "identity_id", identity.ID)
	return true
}

// delegatedLogin asks the remote authority first and falls back to the local
// store when the authority cannot answer.
func (service *Service) delegatedLogin(context context.Context, email, password string) (*LoginResult, error) {
	delegation, err := service.authority.Login(context, email, password)
	if err != nil {
		rejection := &AuthorityRejection{}
		switch {
		case errors.Is(err, ErrAuthorityUnavailable):
			service.metrics.RecordDelegationFallback("login")
			service.log.WarnContext(context, "authority unreachable, falling back to local login", "error", err)
			return service.localLogin(context, email, password)

		case errors.As(err, &rejection):
			if service.options.FallbackOnRemoteRejection {
				service.metrics.RecordDelegationFallback("login")
				return service.localLogin(context, email, password)
			}
			service.metrics.RecordLogin("failure", string(sec.ProviderFederated))
			return nil, apperr.InvalidCredentials()

		default:
			// Unclassified failures get the same generic rejection; a login
			// attempt never answers with a 5xx.
			service.log.ErrorContext(context, "delegated login failed", "error", err)
			service.metrics.RecordLogin("failure", string(sec.ProviderFederated))
			return nil, apperr.InvalidCredentials()
		}
	}

	identity, err := service.materializeFederated(context, delegation)
	if err != nil {
		return nil, err
	}

	if identity.Locked() {
		service.metrics.RecordLogin("locked", string(sec.ProviderFederated))
		return nil, apperr.Forbidden("This account has been locked")
	}

	if service.options.ReuseFederatedTokens {
		identity.FederatedToken = delegation.Token
	}

	if identity.TwoFactorEnabled {
		return service.startTwoFactor(context, identity)
	}

	return service.finishLogin(context, identity, sec.ProviderFederated)
}

// materializeFederated resolves the authority subject into a canonical
// identity, creating one on first federated login.
func (service *Service) materializeFederated(context context.Context, delegation *LoginDelegation) (*Identity, error) {
	identity, err := service.identities.FindByFederatedID(context, delegation.SubjectID)
	if err == nil {
		return identity, nil
	}
	if !apperr.IsCode(err, apperr.CodeNotFound) {
		return nil, apperr.StorageFailure(err)
	}

	identity = &Identity{
		ID:            uuidv7.New(),
		Email:         delegation.Email,
		EmailVerified: delegation.EmailVerified,
		Name:          delegation.Name,
		Username:      username.Normalize(localPart(delegation.Email)),
		Role:          sec.RoleFromAccountType(delegation.AccountType),
		Provider:      sec.ProviderFederated,
		FederatedID:   delegation.SubjectID,
	}

	if err := service.identities.Create(context, identity); err != nil {
		if !apperr.IsCode(err, apperr.CodeConflict) {
			return nil, apperr.StorageFailure(err)
		}

		// A concurrent first login may have won the race; fetch its row.
		if existing, findErr := service.identities.FindByFederatedID(context, delegation.SubjectID); findErr == nil {
			return existing, nil
		}

		// No row for the subject, so the derived username is taken by some
		// other account.
		identity.Username = suffixedHandle(identity.Username)
		if err := service.identities.Create(context, identity); err != nil {
			if apperr.IsCode(err, apperr.CodeConflict) {
				return nil, err
			}
			return nil, apperr.StorageFailure(err)
		}
	}

	service.log.InfoContext(context, "federated identity materialized",
		"identity_id", identity.ID,
		"subject_id", delegation.SubjectID,
	)

	return identity, nil
}

// startTwoFactor parks the login behind a second-factor challenge. The
// one-time code travels by mail; only its hash is stored.
func (service *Service) startTwoFactor(context context.Context, identity *Identity) (*LoginResult, error) {
	tempToken, err := sec.GenerateSecureToken(OneTimeTokenLength)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	code, err := sec.GenerateSecureToken(4)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	codeHash, err := sec.HashOneTimeSecret(code)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	pending := PendingLogin{IdentityID: identity.ID, CodeHash: codeHash}
	if err := service.tokens.PutPendingLogin(context, tempToken, pending, TwoFactorTTL); err != nil {
		return nil, apperr.StorageFailure(err)
	}

	if err := service.sender.Send(context, identity.Email, mail.TemplateTwoFactorCode, map[string]string{
		"Name": identity.Name,
		"Code": code,
	}); err != nil {
		service.log.ErrorContext(context, "two-factor code delivery failed", "identity_id", identity.ID, "error", err)
	}

	return &LoginResult{
		Identity:          identity,
		Provider:          identity.Provider,
		TwoFactorRequired: true,
		TempToken:         tempToken,
	}, nil
}

/*
CompleteTwoFactor finishes a login that was parked behind a second factor.

Description: The temp token is single-use. Wrong codes consume nothing, so a
user can retry until the challenge expires.

Parameters:
  - context: context.Context
  - tempToken: string
  - code: string

Returns:
  - *LoginResult: Tokens for the now fully-authenticated identity
  - error: apperr taxonomy errors
*/
func (service *Service) CompleteTwoFactor(context context.Context, tempToken, code string) (*LoginResult, error) {
	pending, err := service.tokens.GetPendingLogin(context, tempToken)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return nil, apperr.TokenExpired()
		}
		return nil, apperr.StorageFailure(err)
	}

	if !sec.CheckOneTimeSecret(code, pending.CodeHash) {
		return nil, apperr.InvalidCredentials()
	}

	if err := service.tokens.DeletePendingLogin(context, tempToken); err != nil {
		return nil, apperr.StorageFailure(err)
	}

	identity, err := service.identities.FindByID(context, pending.IdentityID)
	if err != nil {
		return nil, apperr.InvalidCredentials()
	}

	return service.finishLogin(context, identity, identity.Provider)
}

// finishLogin mints the session and access token for an authenticated identity.
func (service *Service) finishLogin(context context.Context, identity *Identity, provider sec.Provider) (*LoginResult, error) {
	session, refreshToken, err := service.CreateSession(context, identity)
	if err != nil {
		return nil, err
	}

	accessToken, err := service.IssueAccessToken(identity)
	if err != nil {
		return nil, err
	}

	service.metrics.RecordLogin("success", string(provider))
	service.log.InfoContext(context, "login succeeded", "identity_id", identity.ID, "provider", provider)

	return &LoginResult{
		Identity:         identity,
		AccessToken:      accessToken,
		RefreshToken:     refreshToken,
		Provider:         provider,
		SessionExpiresAt: session.ExpiresAt,
	}, nil
}

// suffixedHandle disambiguates a taken username with a random tail.
func suffixedHandle(handle string) string {
	return handle + "-" + uuidv7.New()[:8]
}

// localPart extracts the mailbox portion of an email address.
func localPart(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}
