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

// RegisterInput carries the validated fields of a registration request.
type RegisterInput struct {
	Email    string
	Password string
	Name     string
	Username string
}

/*
Register creates a new local identity.

Description: Blocked email domains are rejected outright. A duplicate email
produces the same nil result a fresh registration does, padded by the
enumeration-masking delay, so the endpoint never discloses whether an
account exists. The very first identity in the system is granted the admin
role.

Parameters:
  - context: context.Context
  - input: RegisterInput

Returns:
  - *Identity: The created identity, or nil when masked as a duplicate
  - error: apperr taxonomy errors
*/
func (service *Service) Register(context context.Context, input RegisterInput) (*Identity, error) {
	email := strings.ToLower(strings.TrimSpace(input.Email))

	if service.domainBlocked(email) {
		return nil, apperr.Forbidden("Registration is not available for this email domain")
	}

	passwordHash, err := sec.HashPassword(input.Password)
	if err != nil {
		return nil, apperr.Internal(err)
	}

	role := sec.RoleUser
	count, err := service.identities.Count(context)
	if err != nil {
		return nil, apperr.StorageFailure(err)
	}
	if count == 0 {
		role = sec.RoleAdmin
	}

	handle := input.Username
	if handle == "" {
		handle = localPart(email)
	}

	identity := &Identity{
		ID:           uuidv7.New(),
		Email:        email,
		Name:         input.Name,
		Username:     username.Normalize(handle),
		Role:         role,
		Provider:     sec.ProviderLocal,
		PasswordHash: passwordHash,
	}

	if !service.sender.Enabled() {
		// No way to deliver a verification email, so the account starts verified.
		identity.EmailVerified = true
	}

	if err := service.identities.Create(context, identity); err != nil {
		if !apperr.IsCode(err, apperr.CodeConflict) {
			return nil, apperr.StorageFailure(err)
		}

		// Only a duplicate email is masked. When the email is free the
		// conflict is on the derived username, so a fresh email must still
		// get its account.
		if _, lookupErr := service.identities.FindByEmail(context, email); lookupErr == nil {
			service.maskEnumeration(context)
			service.log.InfoContext(context, "duplicate registration masked")
			return nil, nil
		}

		identity.Username = suffixedHandle(identity.Username)
		if err := service.identities.Create(context, identity); err != nil {
			if apperr.IsCode(err, apperr.CodeConflict) {
				// A concurrent registration won the email in the meantime.
				service.maskEnumeration(context)
				service.log.InfoContext(context, "duplicate registration masked")
				return nil, nil
			}
			return nil, apperr.StorageFailure(err)
		}
	}

	if service.sender.Enabled() {
		if err := service.sendVerification(context, identity); err != nil {
			// Roll the half-created identity back so the email can retry.
			if deleteErr := service.identities.Delete(context, identity.ID); deleteErr != nil {
				service.log.ErrorContext(context, "registration compensation failed",
					"identity_id", identity.ID, "error", deleteErr)
			}
			return nil, err
		}
	}

	service.log.InfoContext(context, "identity registered", "identity_id", identity.ID, "role", role)
	return identity, nil
}

// domainBlocked reports whether the email's domain is on the block list.
func (service *Service) domainBlocked(email string) bool {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return false
	}
	domain := email[at+1:]

	for _, blocked := range service.options.BlockedEmailDomains {
		if strings.EqualFold(domain, blocked) {
			return true
		}
	}
	return false
}

// sendVerification issues a fresh verification token and mails its link.
func (service *Service) sendVerification(context context.Context, identity *Identity) error {
	secret, err := service.issueOneTimeToken(context, PurposeVerifyEmail, identity.ID, VerificationTokenTTL)
	if err != nil {
		return err
	}

	link := service.options.PublicBaseURL + "/auth/verify-email?uid=" + identity.ID + "&token=" + secret
	if err := service.sender.Send(context, identity.Email, mail.TemplateVerifyEmail, map[string]string{
		"Name": identity.Name,
		"Link": link,
		"TTL":  VerificationTokenTTL.String(),
	}); err != nil {
		return apperr.Internal(err)
	}

	return nil
}

// issueOneTimeToken generates a secret, stores its hash under the purpose key
// and returns the plaintext. Issuing supersedes any live token of the same
// purpose for the identity.
func (service *Service) issueOneTimeToken(context context.Context, purpose Purpose, identityID string, ttl time.Duration) (string, error) {
	secret, err := sec.GenerateSecureToken(OneTimeTokenLength)
	if err != nil {
		return "", apperr.Internal(err)
	}

	secretHash, err := sec.HashOneTimeSecret(secret)
	if err != nil {
		return "", apperr.Internal(err)
	}

	if err := service.tokens.Put(context, purpose, identityID, secretHash, ttl); err != nil {
		return "", apperr.StorageFailure(err)
	}

	return secret, nil
}

// consumeOneTimeToken verifies a secret against the stored hash and deletes
// it on success. Wrong secrets consume nothing.
func (service *Service) consumeOneTimeToken(context context.Context, purpose Purpose, identityID, secret string) error {
	secretHash, err := service.tokens.Get(context, purpose, identityID)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return apperr.TokenExpired()
		}
		return apperr.StorageFailure(err)
	}

	if !sec.CheckOneTimeSecret(secret, secretHash) {
		return apperr.TokenExpired()
	}

	if err := service.tokens.Delete(context, purpose, identityID); err != nil {
		return apperr.StorageFailure(err)
	}

	return nil
}

/*
VerifyEmail consumes a verification token and marks the identity verified.

Description: Already-verified identities short-circuit to success without
touching the token, so a double-clicked link never shows an error.

Parameters:
  - context: context.Context
  - identityID: string
  - token: string

Returns:
  - error: apperr.NotFound for unknown identities, apperr.TokenExpired for
    bad or spent tokens
*/
func (service *Service) VerifyEmail(context context.Context, identityID, token string) error {
	identity, err := service.identities.FindByID(context, identityID)
	if err != nil {
		return err
	}

	if identity.EmailVerified {
		return nil
	}

	if err := service.consumeOneTimeToken(context, PurposeVerifyEmail, identity.ID, token); err != nil {
		return err
	}

	if err := service.identities.MarkVerified(context, identity.ID); err != nil {
		return apperr.StorageFailure(err)
	}

	service.log.InfoContext(context, "email verified", "identity_id", identity.ID)
	return nil
}

// ResetDirective tells the HTTP layer how the generic reset response should
// be decorated. Link is only set when mail is disabled and the caller has to
// surface the reset link directly.
type ResetDirective struct {
	Link string
}

/*
RequestPasswordReset starts a password reset for an email address.

Description: Always resolves to the same generic outcome regardless of
whether the account exists, which authority owns it, or whether the remote
authority answered. In delegated mode the request is forwarded to the remote
authority first and falls back to the local flow when it cannot answer.

Parameters:
  - context: context.Context
  - email: string

Returns:
  - *ResetDirective: Optional direct-link decoration, never nil
  - error: Always nil; failures are logged, never surfaced in a way that
    would disclose account existence
*/
func (service *Service) RequestPasswordReset(context context.Context, email string) (*ResetDirective, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	directive := &ResetDirective{}

	err := service.delegateWithFallback(context, "password_reset_request",
		func() error {
			return service.authority.RequestPasswordReset(context, email)
		},
		func() error {
			return service.localResetRequest(context, email, directive)
		},
	)
	if err != nil {
		// Reported generically; the caller still gets the standard sentence.
		service.log.ErrorContext(context, "password reset request failed", "error", err)
	}

	service.maskEnumeration(context)
	return directive, nil
}

// localResetRequest runs the local half of the forgot-password flow.
func (service *Service) localResetRequest(context context.Context, email string, directive *ResetDirective) error {
	identity, err := service.identities.FindByEmail(context, email)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			// Unknown accounts still get the generic response.
			return nil
		}
		return err
	}

	secret, err := service.issueOneTimeToken(context, PurposePasswordReset, identity.ID, ResetTokenTTL)
	if err != nil {
		return err
	}

	link := service.options.PublicBaseURL + "/auth/reset-password?uid=" + identity.ID + "&token=" + secret

	if !service.sender.Enabled() {
		directive.Link = link
		return nil
	}

	if err := service.sender.Send(context, identity.Email, mail.TemplatePasswordReset, map[string]string{
		"Link": link,
		"TTL":  ResetTokenTTL.String(),
	}); err != nil {
		return apperr.Internal(err)
	}

	return nil
}

// ResetInput carries the fields of a reset-completion request. IdentityID is
// empty when the token was issued by the remote authority.
type ResetInput struct {
	IdentityID  string
	Token       string
	NewPassword string
}

/*
ResetPassword completes a password reset.

Description: Without an identity id in delegated mode the token is assumed
to be authority-issued and forwarded. The local path verifies the one-time
token, persists the new password hash, removes any sibling tokens and
revokes every session the identity holds.

Parameters:
  - context: context.Context
  - input: ResetInput

Returns:
  - error: apperr.TokenExpired for bad tokens, apperr taxonomy otherwise
*/
func (service *Service) ResetPassword(context context.Context, input ResetInput) error {
	if input.IdentityID == "" && service.options.Delegated {
		return service.remoteReset(context, input)
	}

	if err := service.consumeOneTimeToken(context, PurposePasswordReset, input.IdentityID, input.Token); err != nil {
		return err
	}

	newHash, err := sec.HashPassword(input.NewPassword)
	if err != nil {
		return apperr.Internal(err)
	}

	if err := service.identities.UpdatePassword(context, input.IdentityID, newHash); err != nil {
		return err
	}

	// A reset token doubles as email-ownership proof, so any pending
	// verification token is cleared too.
	if err := service.tokens.Delete(context, PurposeVerifyEmail, input.IdentityID); err != nil {
		service.log.ErrorContext(context, "sibling token cleanup failed", "identity_id", input.IdentityID, "error", err)
	}

	if err := service.RevokeAllSessions(context, input.IdentityID, RevokeReasonPasswordReset); err != nil {
		return err
	}

	if identity, findErr := service.identities.FindByID(context, input.IdentityID); findErr == nil {
		if sendErr := service.sender.Send(context, identity.Email, mail.TemplatePasswordChanged, nil); sendErr != nil {
			service.log.ErrorContext(context, "password change notification failed", "identity_id", identity.ID, "error", sendErr)
		}
	}

	service.log.InfoContext(context, "password reset completed", "identity_id", input.IdentityID)
	return nil
}

// remoteReset forwards an authority-issued reset token. Every failure,
// outage or rejection alike, surfaces as the same generic token error; a
// password reset never answers with a 5xx. The cause stays in the logs.
func (service *Service) remoteReset(context context.Context, input ResetInput) error {
	err := service.authority.ResetPassword(context, input.Token, input.NewPassword)
	if err == nil {
		return nil
	}

	rejection := &AuthorityRejection{}
	if !errors.As(err, &rejection) {
		service.log.ErrorContext(context, "remote password reset failed", "error", err)
	}

	return apperr.TokenExpired()
}

// delegateWithFallback runs the remote call in delegated mode and falls back
// to the local implementation when the authority cannot answer. Definitive
// remote rejections fall back only when the policy switch allows it.
func (service *Service) delegateWithFallback(context context.Context, flow string, remote, local func() error) error {
	if !service.options.Delegated {
		return local()
	}

	err := remote()
	if err == nil {
		return nil
	}

	rejection := &AuthorityRejection{}
	switch {
	case errors.Is(err, ErrAuthorityUnavailable):
		service.metrics.RecordDelegationFallback(flow)
		service.log.WarnContext(context, "authority unreachable, using local fallback", "flow", flow, "error", err)
		return local()

	case errors.As(err, &rejection):
		if service.options.FallbackOnRemoteRejection {
			service.metrics.RecordDelegationFallback(flow)
			return local()
		}
		return err

	default:
		return err
	}
}
