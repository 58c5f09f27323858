// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import "time"

// # Authentication Constraints

const (
	// AccessTokenTTL is the duration a bearer access token remains valid.
	// We keep it short (15m) to minimize the impact of a leaked token.
	AccessTokenTTL = 15 * time.Minute

	// SessionTTL is the duration a session/refresh token remains valid.
	// Rotation reissues the refresh-token identifier without extending this
	// absolute expiry.
	SessionTTL = 7 * 24 * time.Hour

	// SessionRetention is how long revoked/expired session rows are kept
	// before the sweep hard-deletes them.
	SessionRetention = 30 * 24 * time.Hour

	// SweepInterval is the fixed schedule of the background session sweep.
	SweepInterval = 1 * time.Hour

	// RefreshTokenLength is the byte length of the random refresh token.
	RefreshTokenLength = 32

	// ResetTokenTTL is the duration a password reset token remains valid.
	// Short-lived (1 hour) for security.
	ResetTokenTTL = 1 * time.Hour

	// VerificationTokenTTL is the duration an email verification token remains
	// valid. Long-lived (24 hours) as users might not check email immediately.
	VerificationTokenTTL = 24 * time.Hour

	// OneTimeTokenLength is the byte length of one-time token secrets.
	OneTimeTokenLength = 32

	// TwoFactorTTL is how long a pending second-factor login stays valid.
	TwoFactorTTL = 5 * time.Minute

	// EnumerationMaskDelay pads duplicate-registration responses so their
	// latency is comparable to the hash-and-insert path.
	EnumerationMaskDelay = 400 * time.Millisecond
)

// legacyVerificationCutover is the instant the email-verification requirement
// shipped. Identities created before it are auto-marked verified on their
// first login attempt while mail sending is disabled, so pre-existing users
// are not locked out retroactively.
var legacyVerificationCutover = time.Date(2025, time.November, 1, 0, 0, 0, 0, time.UTC)

// # Session Revocation Reasons

const (
	RevokeReasonLogout        = "logout"
	RevokeReasonExpired       = "expired"
	RevokeReasonPasswordReset = "password_reset"
	RevokeReasonAccountLocked = "account_locked"
	RevokeReasonAdmin         = "admin"
)
