// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/mail"
	"github.com/taibuivan/parley/internal/platform/metrics"
	"github.com/taibuivan/parley/internal/platform/sec"
)

// # Dependencies

// Authority is the slice of the remote account authority the service needs.
// The concrete HTTP client lives in the authority subpackage.
type Authority interface {
	Login(ctx context.Context, email, password string) (*LoginDelegation, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, token, newPassword string) error
}

// LoginDelegation is the authority's answer to a delegated credential check.
type LoginDelegation struct {
	SubjectID     string
	Email         string
	Name          string
	AccountType   string
	EmailVerified bool
	Token         string
}

// ErrAuthorityUnavailable reports that the authority could not produce a
// decision: connection failures, timeouts and 5xx responses all collapse
// into it. It is the trigger for local fallback.
var ErrAuthorityUnavailable = errors.New("remote authority unavailable")

// AuthorityRejection is a definitive negative answer from the authority.
// It is not an outage and by default does not trigger fallback.
type AuthorityRejection struct {
	StatusCode int
	Code       string
}

func (rejection *AuthorityRejection) Error() string {
	return fmt.Sprintf("remote authority rejected the request: status=%d code=%s", rejection.StatusCode, rejection.Code)
}

// Options bundles the behavioral switches the service reads at runtime.
type Options struct {
	// Delegated routes credential decisions through the remote authority.
	Delegated bool

	// AllowUnverifiedLogin skips the email-verification gate entirely.
	AllowUnverifiedLogin bool

	// FallbackOnRemoteRejection extends the local fallback to definitive
	// authority denials, not only unavailability. Off by default: a remote
	// "wrong password" should normally stay a wrong password.
	FallbackOnRemoteRejection bool

	// ReuseFederatedTokens serves the authority-signed token verbatim after
	// a delegated login instead of minting a local one.
	ReuseFederatedTokens bool

	// BlockedEmailDomains rejects registrations from these domains outright.
	BlockedEmailDomains []string

	// PublicBaseURL prefixes links embedded in outbound mail.
	PublicBaseURL string

	// EnumerationDelay pads responses on paths that would otherwise reveal
	// account existence through timing.
	EnumerationDelay time.Duration
}

// # Service

// Service orchestrates every identity operation: login, registration,
// sessions, email verification and password resets.
type Service struct {
	identities IdentityRepository
	sessions   SessionRepository
	tokens     OneTimeTokenRepository
	codec      *sec.TokenService
	authority  Authority
	sender     mail.Sender
	metrics    metrics.Collector
	log        *slog.Logger
	options    Options

	// now is swappable in tests.
	now func() time.Time
}

/*
NewService wires the identity service.

Parameters:
  - identities: IdentityRepository
  - sessions: SessionRepository
  - tokens: OneTimeTokenRepository
  - codec: *sec.TokenService
  - authority: Authority (may be nil when options.Delegated is false)
  - sender: mail.Sender
  - collector: metrics.Collector
  - log: *slog.Logger
  - options: Options

Returns:
  - *Service: Ready-to-use orchestrator
*/
func NewService(
	identities IdentityRepository,
	sessions SessionRepository,
	tokens OneTimeTokenRepository,
	codec *sec.TokenService,
	authority Authority,
	sender mail.Sender,
	collector metrics.Collector,
	log *slog.Logger,
	options Options,
) *Service {
	if collector == nil {
		collector = metrics.Noop{}
	}
	if options.EnumerationDelay == 0 {
		options.EnumerationDelay = EnumerationMaskDelay
	}

	return &Service{
		identities: identities,
		sessions:   sessions,
		tokens:     tokens,
		codec:      codec,
		authority:  authority,
		sender:     sender,
		metrics:    collector,
		log:        log,
		options:    options,
		now:        time.Now,
	}
}

/*
Resolve maps verified bearer claims onto the canonical identity record.

Description: Local claims resolve through the user id, federated claims
through the remote subject id. A verified token whose subject no longer
exists locally yields apperr.NotFound.

Parameters:
  - context: context.Context
  - claims: *sec.AuthClaims

Returns:
  - *Identity: Canonical identity for the principal
  - error: apperr.NotFound or storage failures
*/
func (service *Service) Resolve(context context.Context, claims *sec.AuthClaims) (*Identity, error) {
	if claims == nil {
		return nil, apperr.Unauthorized("No authenticated principal")
	}

	if claims.Provider() == sec.ProviderFederated {
		return service.identities.FindByFederatedID(context, claims.FederatedID)
	}
	return service.identities.FindByID(context, claims.UserID)
}

// maskEnumeration sleeps for the configured delay unless the request context
// ends first. Paths that answer "account exists" faster than "account does
// not" call this before returning the generic success.
func (service *Service) maskEnumeration(context context.Context) {
	timer := time.NewTimer(service.options.EnumerationDelay)
	defer timer.Stop()

	select {
	case <-timer.C:
	case <-context.Done():
	}
}

// claimsFor builds the token claims describing an identity.
func claimsFor(identity *Identity) sec.AuthClaims {
	claims := sec.AuthClaims{
		Email:    identity.Email,
		Verified: identity.EmailVerified,
	}
	if identity.Provider == sec.ProviderFederated {
		claims.FederatedID = identity.FederatedID
		claims.AccountType = string(identity.Role)
	} else {
		claims.UserID = identity.ID
		claims.Role = string(identity.Role)
	}
	return claims
}
