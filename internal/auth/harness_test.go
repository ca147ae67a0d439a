// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/auth"
	"github.com/holomush/holoauth/internal/auth/memory"
)

// fakeClock is a settable time source shared by services under test.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type sentMail struct {
	kind  string // "code" or "reset"
	to    string
	value string
}

// outbox records mail instead of delivering it.
type outbox struct {
	mu    sync.Mutex
	mails []sentMail
	err   error
}

func (o *outbox) SendVerificationCode(_ context.Context, to, code string) error {
	return o.add(sentMail{kind: "code", to: to, value: code})
}

func (o *outbox) SendPasswordReset(_ context.Context, to, token string) error {
	return o.add(sentMail{kind: "reset", to: to, value: token})
}

func (o *outbox) add(m sentMail) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.err != nil {
		return o.err
	}
	o.mails = append(o.mails, m)
	return nil
}

func (o *outbox) count() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.mails)
}

func (o *outbox) last(t *testing.T) sentMail {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	require.NotEmpty(t, o.mails, "no mail sent")
	return o.mails[len(o.mails)-1]
}

// flowRecorder collects "flow:outcome" pairs.
type flowRecorder struct {
	mu    sync.Mutex
	flows []string
}

func (r *flowRecorder) RecordFlow(flow, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flows = append(r.flows, flow+":"+outcome)
}

func (r *flowRecorder) recorded() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.flows...)
}

type harness struct {
	store   *memory.Store
	clock   *fakeClock
	mail    *outbox
	metrics *flowRecorder
	deps    auth.Deps
	cfg     auth.Config

	sessions *auth.SessionService
	signups  *auth.SignupService
	resets   *auth.PasswordResetService
	verify   *auth.EmailVerificationService
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	h := &harness{
		store:   memory.New(),
		clock:   newFakeClock(),
		mail:    &outbox{},
		metrics: &flowRecorder{},
		cfg:     auth.DefaultConfig(),
	}

	h.deps = h.store.Deps()
	h.deps.Passwords = newFastHasher(t)
	h.deps.Secrets = newTestSecretHasher(t)
	h.deps.Email = h.mail
	h.deps.Metrics = h.metrics
	h.deps.Clock = h.clock.Now

	var err error
	h.sessions, err = auth.NewSessionService(h.deps, h.cfg)
	require.NoError(t, err)
	h.signups, err = auth.NewSignupService(h.deps, h.cfg, h.sessions)
	require.NoError(t, err)
	h.resets, err = auth.NewPasswordResetService(h.deps, h.cfg)
	require.NoError(t, err)
	h.verify, err = auth.NewEmailVerificationService(h.deps, h.cfg)
	require.NoError(t, err)
	return h
}

// createUser stores a verified user with a password credential.
func (h *harness) createUser(t *testing.T, email, password string) *auth.User {
	t.Helper()

	now := h.clock.Now()
	user := &auth.User{
		ID:            auth.UserID(ulid.Make()),
		Email:         email,
		EmailVerified: true,
		Name:          "Test User",
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	cred := &auth.UserCredential{UserID: user.ID, CreatedAt: now, UpdatedAt: now}
	if password != "" {
		hash, err := h.deps.Passwords.Hash(password)
		require.NoError(t, err)
		cred.PasswordHash = &hash
	}
	require.NoError(t, h.store.Users().Create(context.Background(), user, cred, nil))
	return user
}

// failOnce returns err the first time it is called and nil afterwards.
type failOnce struct {
	mu  sync.Mutex
	err error
}

func (f *failOnce) next() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.err
	f.err = nil
	return err
}

// failingUsers fails the first Create or MarkEmailVerified.
type failingUsers struct {
	auth.UserRepository
	fail failOnce
}

func (r *failingUsers) Create(ctx context.Context, user *auth.User, cred *auth.UserCredential, account *auth.OAuthAccount) error {
	if err := r.fail.next(); err != nil {
		return err
	}
	return r.UserRepository.Create(ctx, user, cred, account)
}

func (r *failingUsers) MarkEmailVerified(ctx context.Context, id auth.UserID, email string) error {
	if err := r.fail.next(); err != nil {
		return err
	}
	return r.UserRepository.MarkEmailVerified(ctx, id, email)
}

// failingCredentials fails the first UpdatePassword.
type failingCredentials struct {
	auth.CredentialRepository
	fail failOnce
}

func (r *failingCredentials) UpdatePassword(ctx context.Context, userID auth.UserID, passwordHash string) error {
	if err := r.fail.next(); err != nil {
		return err
	}
	return r.CredentialRepository.UpdatePassword(ctx, userID, passwordHash)
}

// failingAccounts fails the first Create.
type failingAccounts struct {
	auth.OAuthAccountRepository
	fail failOnce
}

func (r *failingAccounts) Create(ctx context.Context, account *auth.OAuthAccount) error {
	if err := r.fail.next(); err != nil {
		return err
	}
	return r.OAuthAccountRepository.Create(ctx, account)
}

// failingLoginSessions fails every ClearFresh with clearErr.
type failingLoginSessions struct {
	auth.LoginSessionRepository
	clearErr error
}

func (r *failingLoginSessions) ClearFresh(context.Context, auth.LoginSessionID) error {
	return r.clearErr
}
