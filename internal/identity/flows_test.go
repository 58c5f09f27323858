// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/mail"
	"github.com/taibuivan/parley/internal/platform/sec"
)

// linkToken pulls the uid and token out of a verification or reset link.
func linkToken(t *testing.T, link string) (string, string) {
	t.Helper()
	parsed, err := url.Parse(link)
	require.NoError(t, err)
	return parsed.Query().Get("uid"), parsed.Query().Get("token")
}

/*
TestRegister_FirstRegistrantIsAdmin verifies the very first identity gets the
admin role and everyone after it is a regular user.
*/
func TestRegister_FirstRegistrantIsAdmin(t *testing.T) {
	// 1. Setup: empty store, mail disabled so accounts start verified.
	env := newTestEnv(Options{})

	// 2. First registration.
	first, err := env.service.Register(context.Background(), RegisterInput{
		Email:    "founder@example.com",
		Password: "a long enough password",
		Name:     "Founder",
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, sec.RoleAdmin, first.Role)
	assert.True(t, first.EmailVerified)

	// 3. Second registration.
	second, err := env.service.Register(context.Background(), RegisterInput{
		Email:    "second@example.com",
		Password: "a long enough password",
		Name:     "Second",
	})
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, sec.RoleUser, second.Role)
}

/*
TestRegister_DuplicateMasked verifies a duplicate registration leaves exactly
one identity and resolves to the same nil outcome a fresh registration would
mask to, so the endpoint discloses nothing.
*/
func TestRegister_DuplicateMasked(t *testing.T) {
	// 1. Setup.
	env := newTestEnv(Options{})
	input := RegisterInput{
		Email:    "alice@example.com",
		Password: "a long enough password",
		Name:     "Alice",
		Username: "alice",
	}

	first, err := env.service.Register(context.Background(), input)
	require.NoError(t, err)
	require.NotNil(t, first)

	// 2. Same email again.
	duplicate, err := env.service.Register(context.Background(), input)

	// 3. Masked: no error, no identity, nothing new in the store.
	require.NoError(t, err)
	assert.Nil(t, duplicate)

	count, err := env.identities.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	// 4. The original record is untouched.
	stored, err := env.identities.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Equal(t, first.ID, stored.ID)
}

/*
TestRegister_SharedLocalPart verifies two different emails with the same
mailbox name both get accounts: only a duplicate email is masked, a taken
derived username is disambiguated instead.
*/
func TestRegister_SharedLocalPart(t *testing.T) {
	// 1. Setup.
	env := newTestEnv(Options{})

	first, err := env.service.Register(context.Background(), RegisterInput{
		Email:    "alice@gmail.com",
		Password: "a long enough password",
		Name:     "Alice G",
	})
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "alice", first.Username)

	// 2. A different email deriving the same handle.
	second, err := env.service.Register(context.Background(), RegisterInput{
		Email:    "alice@yahoo.com",
		Password: "a long enough password",
		Name:     "Alice Y",
	})

	// 3. Not masked: the account exists under a disambiguated handle.
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.True(t, strings.HasPrefix(second.Username, "alice-"))
	assert.NotEqual(t, first.Username, second.Username)

	stored, err := env.identities.FindByEmail(context.Background(), "alice@yahoo.com")
	require.NoError(t, err)
	assert.Equal(t, second.ID, stored.ID)

	count, err := env.identities.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)
}

/*
TestRegister_BlockedDomain verifies registrations from a blocked email domain
are refused outright, case-insensitively.
*/
func TestRegister_BlockedDomain(t *testing.T) {
	// 1. Setup.
	env := newTestEnv(Options{BlockedEmailDomains: []string{"mailinator.com"}})

	// 2. Execute.
	_, err := env.service.Register(context.Background(), RegisterInput{
		Email:    "throwaway@Mailinator.COM",
		Password: "a long enough password",
		Name:     "Nobody",
	})

	// 3. Assert.
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeForbidden))

	count, countErr := env.identities.Count(context.Background())
	require.NoError(t, countErr)
	assert.Zero(t, count)
}

/*
TestRegister_SendsVerification verifies that with mail enabled the account
starts unverified and the verification link in the mail completes the flow.
*/
func TestRegister_SendsVerification(t *testing.T) {
	// 1. Setup.
	env := newTestEnv(Options{PublicBaseURL: "https://parley.chat"})
	env.sender.enabled = true

	// 2. Register.
	identity, err := env.service.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "a long enough password",
		Name:     "Alice",
	})
	require.NoError(t, err)
	require.NotNil(t, identity)
	assert.False(t, identity.EmailVerified)

	// 3. The mail carries a link into our own verify endpoint.
	delivered := env.sender.last()
	require.NotNil(t, delivered)
	assert.Equal(t, mail.TemplateVerifyEmail, delivered.Template)
	assert.True(t, strings.HasPrefix(delivered.Data["Link"], "https://parley.chat/auth/verify-email?"))

	// 4. Following the link verifies the account.
	uid, token := linkToken(t, delivered.Data["Link"])
	require.NoError(t, env.service.VerifyEmail(context.Background(), uid, token))

	stored, err := env.identities.FindByID(context.Background(), identity.ID)
	require.NoError(t, err)
	assert.True(t, stored.EmailVerified)
}

/*
TestRegister_CompensatesOnMailFailure verifies a failed verification mail
rolls the half-created identity back so the user can retry.
*/
func TestRegister_CompensatesOnMailFailure(t *testing.T) {
	// 1. Setup: sender accepts nothing.
	env := newTestEnv(Options{})
	env.sender.enabled = true
	env.sender.fail = errors.New("smtp: connection refused")

	// 2. Execute.
	_, err := env.service.Register(context.Background(), RegisterInput{
		Email:    "alice@example.com",
		Password: "a long enough password",
		Name:     "Alice",
	})

	// 3. The registration fails and leaves no orphan behind.
	require.Error(t, err)

	count, countErr := env.identities.Count(context.Background())
	require.NoError(t, countErr)
	assert.Zero(t, count)
	assert.NotEmpty(t, env.identities.deletedIDs)
}

/*
TestVerifyEmail_TokenLifecycle verifies a verification token is single-use,
a reissued token supersedes the old one, and an already-verified identity
short-circuits to success.
*/
func TestVerifyEmail_TokenLifecycle(t *testing.T) {
	// 1. Setup: unverified identity with a live token.
	env := newTestEnv(Options{})
	env.sender.enabled = true
	identity := env.seedLocal("user-1", "alice@example.com", "correct horse battery")
	identity.EmailVerified = false
	env.identities.add(identity)

	firstSecret, err := env.service.issueOneTimeToken(context.Background(), PurposeVerifyEmail, identity.ID, VerificationTokenTTL)
	require.NoError(t, err)

	// 2. Reissuing supersedes: the first secret no longer verifies.
	secondSecret, err := env.service.issueOneTimeToken(context.Background(), PurposeVerifyEmail, identity.ID, VerificationTokenTTL)
	require.NoError(t, err)

	err = env.service.VerifyEmail(context.Background(), identity.ID, firstSecret)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))

	// 3. The live secret verifies exactly once.
	require.NoError(t, env.service.VerifyEmail(context.Background(), identity.ID, secondSecret))

	// 4. A double-clicked link stays a success because the identity is
	// already verified, even though the token is spent.
	require.NoError(t, env.service.VerifyEmail(context.Background(), identity.ID, secondSecret))

	// 5. Unknown identities get a 404, not a token error.
	err = env.service.VerifyEmail(context.Background(), "ghost", secondSecret)
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

/*
TestRequestPasswordReset_Generic verifies known and unknown emails resolve to
the same generic success, with the reset link surfacing only while mail is
disabled.
*/
func TestRequestPasswordReset_Generic(t *testing.T) {
	// 1. Setup: mail disabled, one known account.
	env := newTestEnv(Options{PublicBaseURL: "https://parley.chat"})
	env.seedLocal("user-1", "alice@example.com", "correct horse battery")

	// 2. Known email: generic success with a direct link.
	directive, err := env.service.RequestPasswordReset(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, directive)
	assert.True(t, strings.HasPrefix(directive.Link, "https://parley.chat/auth/reset-password?"))

	// 3. Unknown email: the same generic success, no link.
	directive, err = env.service.RequestPasswordReset(context.Background(), "ghost@example.com")
	require.NoError(t, err)
	require.NotNil(t, directive)
	assert.Empty(t, directive.Link)

	// 4. With mail enabled the link travels by mail instead.
	mailed := newTestEnv(Options{PublicBaseURL: "https://parley.chat"})
	mailed.sender.enabled = true
	mailed.seedLocal("user-1", "alice@example.com", "correct horse battery")

	directive, err = mailed.service.RequestPasswordReset(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, directive.Link)

	delivered := mailed.sender.last()
	require.NotNil(t, delivered)
	assert.Equal(t, mail.TemplatePasswordReset, delivered.Template)
}

/*
TestResetPassword_Local verifies a local reset consumes the token, replaces
the password hash, clears any pending verification token and revokes every
session the identity holds.
*/
func TestResetPassword_Local(t *testing.T) {
	// 1. Setup: identity with a live session, a reset token and a stale
	// verification token.
	env := newTestEnv(Options{PublicBaseURL: "https://parley.chat"})
	identity := env.seedLocal("user-1", "alice@example.com", "old password")

	session, _, err := env.service.CreateSession(context.Background(), identity)
	require.NoError(t, err)

	_, err = env.service.issueOneTimeToken(context.Background(), PurposeVerifyEmail, identity.ID, VerificationTokenTTL)
	require.NoError(t, err)

	directive, err := env.service.RequestPasswordReset(context.Background(), "alice@example.com")
	require.NoError(t, err)
	uid, token := linkToken(t, directive.Link)

	// 2. Execute.
	err = env.service.ResetPassword(context.Background(), ResetInput{
		IdentityID:  uid,
		Token:       token,
		NewPassword: "brand new password",
	})
	require.NoError(t, err)

	// 3. Only the new password works now.
	_, err = env.service.Login(context.Background(), "alice@example.com", "old password")
	require.Error(t, err)
	result, err := env.service.Login(context.Background(), "alice@example.com", "brand new password")
	require.NoError(t, err)
	assert.NotEmpty(t, result.AccessToken)

	// 4. Every pre-reset session is gone and the sibling token is cleared.
	assert.True(t, env.sessions.get(session.ID).IsRevoked)
	assert.Equal(t, RevokeReasonPasswordReset, env.sessions.get(session.ID).RevokeReason)
	_, err = env.tokens.Get(context.Background(), PurposeVerifyEmail, identity.ID)
	require.Error(t, err)

	// 5. The reset token is spent.
	err = env.service.ResetPassword(context.Background(), ResetInput{
		IdentityID:  uid,
		Token:       token,
		NewPassword: "yet another password",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))
}

/*
TestResetPassword_BadToken verifies wrong and absent tokens both surface the
same token-expired error.
*/
func TestResetPassword_BadToken(t *testing.T) {
	// 1. Setup.
	env := newTestEnv(Options{})
	identity := env.seedLocal("user-1", "alice@example.com", "old password")

	_, err := env.service.issueOneTimeToken(context.Background(), PurposePasswordReset, identity.ID, ResetTokenTTL)
	require.NoError(t, err)

	// 2. Wrong secret.
	err = env.service.ResetPassword(context.Background(), ResetInput{
		IdentityID:  identity.ID,
		Token:       "guessed",
		NewPassword: "brand new password",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))

	// 3. A wrong guess never consumes the live token.
	_, err = env.tokens.Get(context.Background(), PurposePasswordReset, identity.ID)
	require.NoError(t, err)

	// 4. An identity without any token gets the same answer.
	err = env.service.ResetPassword(context.Background(), ResetInput{
		IdentityID:  "ghost",
		Token:       "anything",
		NewPassword: "brand new password",
	})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))
}

/*
TestResetPassword_Delegated verifies an authority-issued token (no identity
id) is forwarded to the authority and its answers map onto the local error
taxonomy.
*/
func TestResetPassword_Delegated(t *testing.T) {
	// 1. Accepted remotely.
	env := newTestEnv(Options{Delegated: true})
	var forwardedToken, forwardedPassword string
	env.authority.resetFunc = func(_ context.Context, token, newPassword string) error {
		forwardedToken, forwardedPassword = token, newPassword
		return nil
	}

	err := env.service.ResetPassword(context.Background(), ResetInput{
		Token:       "authority-token",
		NewPassword: "brand new password",
	})
	require.NoError(t, err)
	assert.Equal(t, "authority-token", forwardedToken)
	assert.Equal(t, "brand new password", forwardedPassword)

	// 2. Rejected remotely: surfaces as an expired token.
	env.authority.resetFunc = func(_ context.Context, _, _ string) error {
		return &AuthorityRejection{StatusCode: 400, Code: "TOKEN_EXPIRED"}
	}
	err = env.service.ResetPassword(context.Background(), ResetInput{Token: "stale", NewPassword: "pw longer than eight"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))

	// 3. Authority down: the caller still sees the generic token error, never
	// a 5xx, and never a silent local fallback for a token we cannot
	// validate.
	env.authority.resetFunc = func(_ context.Context, _, _ string) error {
		return ErrAuthorityUnavailable
	}
	err = env.service.ResetPassword(context.Background(), ResetInput{Token: "stale", NewPassword: "pw longer than eight"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))

	// 4. An unclassified authority failure gets the same generic answer.
	env.authority.resetFunc = func(_ context.Context, _, _ string) error {
		return errors.New("tls: handshake failure")
	}
	err = env.service.ResetPassword(context.Background(), ResetInput{Token: "stale", NewPassword: "pw longer than eight"})
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeTokenExpired))
}

/*
TestRequestPasswordReset_DelegatedFallback verifies the forgot-password flow
falls back to the local store when the authority is unreachable.
*/
func TestRequestPasswordReset_DelegatedFallback(t *testing.T) {
	// 1. Setup: authority down, local account present, mail disabled.
	env := newTestEnv(Options{Delegated: true, PublicBaseURL: "https://parley.chat"})
	env.seedLocal("user-1", "alice@example.com", "correct horse battery")
	env.authority.requestResetFunc = func(_ context.Context, _ string) error {
		return ErrAuthorityUnavailable
	}

	// 2. Execute.
	directive, err := env.service.RequestPasswordReset(context.Background(), "alice@example.com")

	// 3. The local flow produced a usable reset link.
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(directive.Link, "https://parley.chat/auth/reset-password?"))

	// 4. When the authority answered, the local flow never ran.
	env.authority.requestResetFunc = func(_ context.Context, _ string) error { return nil }
	directive, err = env.service.RequestPasswordReset(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.Empty(t, directive.Link)
}
