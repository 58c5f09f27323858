// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/sec"
)

/*
TestDiscriminate_Shapes classifies tokens by the presence of the federated
subject-id claim.
*/
func TestDiscriminate_Shapes(t *testing.T) {
	codec := newCodec(t, true)

	localToken, err := codec.Sign(sec.AuthClaims{UserID: "user-1"}, sec.ProviderLocal, time.Minute)
	require.NoError(t, err)

	federatedToken, err := codec.Sign(sec.AuthClaims{FederatedID: "remote-7"}, sec.ProviderFederated, time.Minute)
	require.NoError(t, err)

	// 1. Local shape
	provider, err := codec.Discriminate(localToken)
	require.NoError(t, err)
	assert.Equal(t, sec.ProviderLocal, provider)

	// 2. Federated shape
	provider, err = codec.Discriminate(federatedToken)
	require.NoError(t, err)
	assert.Equal(t, sec.ProviderFederated, provider)

	// 3. Garbage
	_, err = codec.Discriminate("garbage")
	assert.Error(t, err)
}

/*
TestDiscriminate_DelegatedModeOff forces every token onto the local secret
when federation is disabled, even if the token carries a federated shape.
*/
func TestDiscriminate_DelegatedModeOff(t *testing.T) {
	delegatedCodec := newCodec(t, true)
	localOnlyCodec := newCodec(t, false)

	federatedToken, err := delegatedCodec.Sign(sec.AuthClaims{FederatedID: "remote-7"}, sec.ProviderFederated, time.Minute)
	require.NoError(t, err)

	provider, err := localOnlyCodec.Discriminate(federatedToken)
	require.NoError(t, err)
	assert.Equal(t, sec.ProviderLocal, provider)

	// Verification then fails on the local secret; the federated secret is
	// never consulted.
	_, err = localOnlyCodec.VerifyBearer(federatedToken)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTokenInvalidSignature, apperr.As(err).Code)
}

/*
TestVerifyBearer_NoCrossSecretRetry proves a failed verification is terminal:
a token signed with the wrong secret for its shape is rejected outright.
*/
func TestVerifyBearer_NoCrossSecretRetry(t *testing.T) {
	codec := newCodec(t, true)

	// Forge a federated-shaped token signed with a different secret. If the
	// verifier fell back to trying the local secret it would still fail, but
	// the error must be a signature failure from the federated secret only.
	otherCodec, err := sec.NewTokenService(testLocalSecret, "some-entirely-different-secret!!", testIssuer, true)
	require.NoError(t, err)

	forged, err := otherCodec.Sign(sec.AuthClaims{FederatedID: "remote-7"}, sec.ProviderFederated, time.Minute)
	require.NoError(t, err)

	_, err = codec.VerifyBearer(forged)
	require.Error(t, err)
	assert.Equal(t, apperr.CodeTokenInvalidSignature, apperr.As(err).Code)
}

/*
TestVerifyBearer_RoundTrip accepts both shapes through the single entry point.
*/
func TestVerifyBearer_RoundTrip(t *testing.T) {
	codec := newCodec(t, true)

	localToken, err := codec.Sign(sec.AuthClaims{UserID: "user-1"}, sec.ProviderLocal, time.Minute)
	require.NoError(t, err)

	federatedToken, err := codec.Sign(sec.AuthClaims{FederatedID: "remote-7"}, sec.ProviderFederated, time.Minute)
	require.NoError(t, err)

	claims, err := codec.VerifyBearer(localToken)
	require.NoError(t, err)
	assert.Equal(t, sec.ProviderLocal, claims.Provider())

	claims, err = codec.VerifyBearer(federatedToken)
	require.NoError(t, err)
	assert.Equal(t, sec.ProviderFederated, claims.Provider())
}
