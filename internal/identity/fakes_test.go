// Copyright (c) 2026 Parley. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/taibuivan/parley/internal/platform/apperr"
	"github.com/taibuivan/parley/internal/platform/metrics"
	"github.com/taibuivan/parley/internal/platform/sec"
)

// # In-Memory Repositories

type fakeIdentityRepo struct {
	mu         sync.Mutex
	byID       map[string]*Identity
	deletedIDs []string
}

func newFakeIdentityRepo() *fakeIdentityRepo {
	return &fakeIdentityRepo{byID: map[string]*Identity{}}
}

func (repo *fakeIdentityRepo) add(identity *Identity) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	clone := *identity
	repo.byID[identity.ID] = &clone
}

func (repo *fakeIdentityRepo) FindByID(_ context.Context, id string) (*Identity, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if identity, ok := repo.byID[id]; ok {
		clone := *identity
		return &clone, nil
	}
	return nil, apperr.NotFound("Identity")
}

func (repo *fakeIdentityRepo) FindByEmail(_ context.Context, email string) (*Identity, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, identity := range repo.byID {
		if identity.Email == email {
			clone := *identity
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Identity")
}

func (repo *fakeIdentityRepo) FindByFederatedID(_ context.Context, federatedID string) (*Identity, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, identity := range repo.byID {
		if identity.FederatedID == federatedID && federatedID != "" {
			clone := *identity
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Identity")
}

func (repo *fakeIdentityRepo) Create(_ context.Context, identity *Identity) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	for _, existing := range repo.byID {
		if existing.Email == identity.Email || existing.Username == identity.Username {
			return apperr.Conflict("An account with this email or username already exists")
		}
	}
	if identity.CreatedAt.IsZero() {
		identity.CreatedAt = time.Now()
	}
	clone := *identity
	repo.byID[identity.ID] = &clone
	return nil
}

func (repo *fakeIdentityRepo) Delete(_ context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	delete(repo.byID, id)
	repo.deletedIDs = append(repo.deletedIDs, id)
	return nil
}

func (repo *fakeIdentityRepo) UpdatePassword(_ context.Context, id, newHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	identity, ok := repo.byID[id]
	if !ok {
		return apperr.NotFound("Identity")
	}
	identity.PasswordHash = newHash
	return nil
}

func (repo *fakeIdentityRepo) MarkVerified(_ context.Context, id string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	identity, ok := repo.byID[id]
	if !ok {
		return apperr.NotFound("Identity")
	}
	identity.EmailVerified = true
	return nil
}

func (repo *fakeIdentityRepo) SetLocked(_ context.Context, id string, locked bool) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	identity, ok := repo.byID[id]
	if !ok {
		return apperr.NotFound("Identity")
	}
	if locked {
		now := time.Now()
		identity.LockedAt = &now
	} else {
		identity.LockedAt = nil
	}
	return nil
}

func (repo *fakeIdentityRepo) Count(_ context.Context) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	return int64(len(repo.byID)), nil
}

type fakeSessionRepo struct {
	mu   sync.Mutex
	byID map[string]*Session

	// findErr, when set, is returned by FindByTokenHash to simulate a
	// storage outage.
	findErr error
}

func newFakeSessionRepo() *fakeSessionRepo {
	return &fakeSessionRepo{byID: map[string]*Session{}}
}

func (repo *fakeSessionRepo) Create(_ context.Context, session *Session) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	clone := *session
	repo.byID[session.ID] = &clone
	return nil
}

func (repo *fakeSessionRepo) FindByTokenHash(_ context.Context, tokenHash string) (*Session, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if repo.findErr != nil {
		return nil, repo.findErr
	}
	for _, session := range repo.byID {
		if session.TokenHash == tokenHash {
			clone := *session
			return &clone, nil
		}
	}
	return nil, apperr.NotFound("Session")
}

func (repo *fakeSessionRepo) Rotate(_ context.Context, sessionID, newTokenHash string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	session, ok := repo.byID[sessionID]
	if !ok || session.IsRevoked || !time.Now().Before(session.ExpiresAt) {
		return apperr.NotFound("Active session")
	}
	session.TokenHash = newTokenHash
	return nil
}

func (repo *fakeSessionRepo) Revoke(_ context.Context, sessionID, reason string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	session, ok := repo.byID[sessionID]
	if !ok || session.IsRevoked {
		return nil
	}
	now := time.Now()
	session.IsRevoked = true
	session.RevokedAt = &now
	session.RevokeReason = reason
	return nil
}

func (repo *fakeSessionRepo) RevokeAllForIdentity(_ context.Context, identityID, reason string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	now := time.Now()
	for _, session := range repo.byID {
		if session.IdentityID == identityID && !session.IsRevoked {
			session.IsRevoked = true
			session.RevokedAt = &now
			session.RevokeReason = reason
		}
	}
	return nil
}

func (repo *fakeSessionRepo) RevokeExpired(_ context.Context) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	now := time.Now()
	var count int64
	for _, session := range repo.byID {
		if !session.IsRevoked && !now.Before(session.ExpiresAt) {
			session.IsRevoked = true
			session.RevokedAt = &now
			session.RevokeReason = RevokeReasonExpired
			count++
		}
	}
	return count, nil
}

func (repo *fakeSessionRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	var count int64
	for id, session := range repo.byID {
		if session.ExpiresAt.Before(cutoff) {
			delete(repo.byID, id)
			count++
		}
	}
	return count, nil
}

func (repo *fakeSessionRepo) get(id string) *Session {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if session, ok := repo.byID[id]; ok {
		clone := *session
		return &clone
	}
	return nil
}

type fakeTokenRepo struct {
	mu       sync.Mutex
	tokens   map[string]string
	pendings map[string]PendingLogin
}

func newFakeTokenRepo() *fakeTokenRepo {
	return &fakeTokenRepo{tokens: map[string]string{}, pendings: map[string]PendingLogin{}}
}

func tokenKey(purpose Purpose, identityID string) string {
	return string(purpose) + ":" + identityID
}

func (repo *fakeTokenRepo) Put(_ context.Context, purpose Purpose, identityID, secretHash string, _ time.Duration) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.tokens[tokenKey(purpose, identityID)] = secretHash
	return nil
}

func (repo *fakeTokenRepo) Get(_ context.Context, purpose Purpose, identityID string) (string, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if hash, ok := repo.tokens[tokenKey(purpose, identityID)]; ok {
		return hash, nil
	}
	return "", apperr.NotFound("Token")
}

func (repo *fakeTokenRepo) Delete(_ context.Context, purpose Purpose, identityID string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	delete(repo.tokens, tokenKey(purpose, identityID))
	return nil
}

func (repo *fakeTokenRepo) PutPendingLogin(_ context.Context, tempToken string, pending PendingLogin, _ time.Duration) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	repo.pendings[sec.HashToken(tempToken)] = pending
	return nil
}

func (repo *fakeTokenRepo) GetPendingLogin(_ context.Context, tempToken string) (*PendingLogin, error) {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	if pending, ok := repo.pendings[sec.HashToken(tempToken)]; ok {
		clone := pending
		return &clone, nil
	}
	return nil, apperr.NotFound("Login challenge")
}

func (repo *fakeTokenRepo) DeletePendingLogin(_ context.Context, tempToken string) error {
	repo.mu.Lock()
	defer repo.mu.Unlock()
	delete(repo.pendings, sec.HashToken(tempToken))
	return nil
}

// # Collaborator Fakes

type fakeAuthority struct {
	loginFunc        func(ctx context.Context, email, password string) (*LoginDelegation, error)
	requestResetFunc func(ctx context.Context, email string) error
	resetFunc        func(ctx context.Context, token, newPassword string) error
}

func (authority *fakeAuthority) Login(ctx context.Context, email, password string) (*LoginDelegation, error) {
	return authority.loginFunc(ctx, email, password)
}

func (authority *fakeAuthority) RequestPasswordReset(ctx context.Context, email string) error {
	if authority.requestResetFunc == nil {
		return nil
	}
	return authority.requestResetFunc(ctx, email)
}

func (authority *fakeAuthority) ResetPassword(ctx context.Context, token, newPassword string) error {
	if authority.resetFunc == nil {
		return nil
	}
	return authority.resetFunc(ctx, token, newPassword)
}

type sentMail struct {
	To       string
	Template string
	Data     map[string]string
}

type fakeSender struct {
	mu      sync.Mutex
	enabled bool
	fail    error
	sent    []sentMail
}

func (sender *fakeSender) Enabled() bool { return sender.enabled }

func (sender *fakeSender) Send(_ context.Context, to, templateName string, data map[string]string) error {
	if sender.fail != nil {
		return sender.fail
	}
	sender.mu.Lock()
	defer sender.mu.Unlock()
	sender.sent = append(sender.sent, sentMail{To: to, Template: templateName, Data: data})
	return nil
}

func (sender *fakeSender) last() *sentMail {
	sender.mu.Lock()
	defer sender.mu.Unlock()
	if len(sender.sent) == 0 {
		return nil
	}
	return &sender.sent[len(sender.sent)-1]
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// # Test Harness

type testEnv struct {
	service    *Service
	identities *fakeIdentityRepo
	sessions   *fakeSessionRepo
	tokens     *fakeTokenRepo
	authority  *fakeAuthority
	sender     *fakeSender
	codec      *sec.TokenService
}

func newTestEnv(options Options) *testEnv {
	codec, err := sec.NewTokenService("local-test-secret-0123456789abcd", "federated-test-secret-0123456789", "parley.chat", true)
	if err != nil {
		panic(err)
	}

	// Keep the masking delay out of the test's critical path.
	if options.EnumerationDelay == 0 {
		options.EnumerationDelay = time.Millisecond
	}

	env := &testEnv{
		identities: newFakeIdentityRepo(),
		sessions:   newFakeSessionRepo(),
		tokens:     newFakeTokenRepo(),
		authority:  &fakeAuthority{},
		sender:     &fakeSender{},
		codec:      codec,
	}

	env.service = NewService(
		env.identities,
		env.sessions,
		env.tokens,
		codec,
		env.authority,
		env.sender,
		metrics.Noop{},
		discardLogger(),
		options,
	)

	return env
}

// seedLocal adds a verified local identity with the given password.
func (env *testEnv) seedLocal(id, email, password string) *Identity {
	hash, err := sec.HashPassword(password)
	if err != nil {
		panic(err)
	}
	identity := &Identity{
		ID:            id,
		Email:         email,
		EmailVerified: true,
		Name:          "Test User",
		Username:      "test-" + id,
		Role:          sec.RoleUser,
		Provider:      sec.ProviderLocal,
		PasswordHash:  hash,
		CreatedAt:     time.Now(),
	}
	env.identities.add(identity)
	return identity
}
