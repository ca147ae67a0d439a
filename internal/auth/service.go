// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// Config holds lifetimes of the credentials issued by the services.
type Config struct {
	LoginSessionTTL     time.Duration
	LoginRenewWindow    time.Duration // 0 disables sliding renewal
	SignupSessionTTL    time.Duration
	PasswordResetTTL    time.Duration
	AssociationTTL      time.Duration
	VerificationCodeTTL time.Duration
	OAuthStateTTL       time.Duration
}

// DefaultConfig returns the default credential lifetimes.
func DefaultConfig() Config {
	return Config{
		LoginSessionTTL:     30 * 24 * time.Hour,
		LoginRenewWindow:    15 * 24 * time.Hour,
		SignupSessionTTL:    time.Hour,
		PasswordResetTTL:    time.Hour,
		AssociationTTL:      10 * time.Minute,
		VerificationCodeTTL: VerificationCodeExpiry,
		OAuthStateTTL:       10 * time.Minute,
	}
}

// Validate checks that every lifetime is positive.
func (c Config) Validate() error {
	ttls := map[string]time.Duration{
		"login_session_ttl":     c.LoginSessionTTL,
		"signup_session_ttl":    c.SignupSessionTTL,
		"password_reset_ttl":    c.PasswordResetTTL,
		"association_ttl":       c.AssociationTTL,
		"verification_code_ttl": c.VerificationCodeTTL,
		"oauth_state_ttl":       c.OAuthStateTTL,
	}
	for name, ttl := range ttls {
		if ttl <= 0 {
			return oops.Code("CONFIG_INVALID").With("field", name).Errorf("%s must be positive", name)
		}
	}
	if c.LoginRenewWindow < 0 || c.LoginRenewWindow >= c.LoginSessionTTL {
		return oops.Code("CONFIG_INVALID").
			With("field", "login_renew_window").
			Errorf("login_renew_window must be in [0, login_session_ttl)")
	}
	return nil
}

// FlowRecorder observes the outcome of each credential flow.
type FlowRecorder interface {
	RecordFlow(flow, outcome string)
}

// Deps are the collaborators shared by the services. Each constructor
// checks only the fields it uses.
type Deps struct {
	Users               UserRepository
	Credentials         CredentialRepository
	OAuthAccounts       OAuthAccountRepository
	LoginSessions       LoginSessionRepository
	SignupSessions      SignupSessionRepository
	ResetSessions       PasswordResetSessionRepository
	AssociationSessions AssociationSessionRepository
	Codes               VerificationCodeRepository

	Passwords PasswordHasher
	Secrets   *SecretHasher
	Random    *Random
	Email     EmailSender

	// Optional.
	Logger  *slog.Logger
	Metrics FlowRecorder
	Clock   func() time.Time
}

// dependency pairs a constructor argument name with its value.
type dependency struct {
	name  string
	value any
}

// checkDeps returns an error naming the first missing dependency. Values are
// interfaces, so a nil interface converts to a nil any.
func checkDeps(deps ...dependency) error {
	for _, d := range deps {
		if d.value == nil {
			return oops.Code("AUTH_DEPENDENCY_MISSING").
				With("dependency", d.name).
				Errorf("%s is required", d.name)
		}
	}
	return nil
}

// base carries the plumbing every service shares.
type base struct {
	secrets *SecretHasher
	random  *Random
	logger  *slog.Logger
	metrics FlowRecorder
	clock   func() time.Time
	cfg     Config
}

func newBase(d Deps, cfg Config) (base, error) {
	if d.Secrets == nil {
		return base{}, oops.Code("AUTH_DEPENDENCY_MISSING").
			With("dependency", "secret hasher").
			Errorf("secret hasher is required")
	}
	if err := cfg.Validate(); err != nil {
		return base{}, err
	}
	b := base{
		secrets: d.Secrets,
		random:  d.Random,
		logger:  d.Logger,
		metrics: d.Metrics,
		clock:   d.Clock,
		cfg:     cfg,
	}
	if b.random == nil {
		b.random = NewRandom()
	}
	if b.logger == nil {
		b.logger = slog.Default()
	}
	if b.clock == nil {
		b.clock = time.Now
	}
	return b, nil
}

func (b *base) now() time.Time {
	return b.clock().UTC()
}

// record reports the outcome of a flow to the metrics recorder.
func (b *base) record(flow string, err error) {
	if b.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if code := ErrorCode(err); code != "" {
			outcome = strings.ToLower(code)
		}
	}
	b.metrics.RecordFlow(flow, outcome)
}

// credential is a freshly minted session identity. secret is only held in
// memory until it is encoded into the client's token.
type credential struct {
	id     ulid.ULID
	secret []byte
	hash   string
}

func (c credential) token() (string, error) {
	return EncodeToken(c.id, c.secret)
}

func (b *base) mint(now time.Time) (credential, error) {
	id, err := b.random.NewID(now)
	if err != nil {
		return credential{}, err
	}
	secret, err := b.secrets.Generate()
	if err != nil {
		return credential{}, err
	}
	return credential{id: id, secret: secret, hash: b.secrets.Hash(secret)}, nil
}

// issue mints a credential and hands it to persist. An ID collision is
// retried once with a new credential; a second collision fails DUPLICATE_ID.
func (b *base) issue(ctx context.Context, kind string, now time.Time, persist func(context.Context, credential) error) (string, error) {
	for attempt := 1; attempt <= 2; attempt++ {
		cred, err := b.mint(now)
		if err != nil {
			return "", err
		}
		err = persist(ctx, cred)
		if err == nil {
			return cred.token()
		}
		if !errors.Is(err, ErrDuplicate) {
			return "", err
		}
		b.logger.WarnContext(ctx, "session id collision",
			"kind", kind,
			"attempt", attempt)
	}
	return "", oops.Code(CodeDuplicateID).With("kind", kind).Errorf("session id collided twice")
}

// restore puts back a record consumed by a flow whose follow-up write
// failed, so the same token or code can be retried. It runs detached from
// ctx cancellation; a failed restore is logged and the caller still
// returns the original error.
func (b *base) restore(ctx context.Context, kind, id string, put func(context.Context) error) {
	if err := put(context.WithoutCancel(ctx)); err != nil {
		b.logger.ErrorContext(ctx, "failed to restore consumed record",
			"kind", kind,
			"id", id,
			"error", err)
		return
	}
	b.logger.InfoContext(ctx, "restored consumed record", "kind", kind, "id", id)
}

// Rejection reasons attached to NOT_FOUND_OR_EXPIRED for logs.
const (
	reasonNotFound = "not_found"
	reasonExpired  = "expired"
)

// rejectionReason returns the reason recorded by lookup, if any.
func rejectionReason(err error) string {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return ""
	}
	reason, _ := oopsErr.Context()["reason"].(string)
	return reason
}

// sessionRecord is implemented by every session kind.
type sessionRecord interface {
	secretDigest() string
	expiry() time.Time
}

// lookup decodes token, fetches the record, and applies expiry and secret
// checks. Expired records are deleted on the way out.
func lookup[T sessionRecord](
	ctx context.Context,
	b *base,
	kind, token string,
	get func(context.Context, ulid.ULID) (T, error),
	del func(context.Context, ulid.ULID) (bool, error),
) (T, error) {
	var zero T

	parts, err := DecodeToken(token)
	if err != nil {
		return zero, err
	}

	rec, err := get(ctx, parts.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			b.logger.DebugContext(ctx, "session rejected", "kind", kind, "reason", reasonNotFound)
			return zero, oops.Code(CodeNotFoundOrExpired).
				With("kind", kind).
				With("reason", reasonNotFound).
				Errorf("session not found or expired")
		}
		return zero, oops.Code("SESSION_LOOKUP_FAILED").
			With("operation", "get "+kind).
			With("id", parts.ID.String()).
			Wrap(err)
	}

	if !b.now().Before(rec.expiry()) {
		if _, delErr := del(ctx, parts.ID); delErr != nil {
			b.logger.WarnContext(ctx, "failed to delete expired session",
				"kind", kind,
				"id", parts.ID.String(),
				"error", delErr)
		}
		b.logger.DebugContext(ctx, "session rejected", "kind", kind, "reason", reasonExpired)
		return zero, oops.Code(CodeNotFoundOrExpired).
			With("kind", kind).
			With("reason", reasonExpired).
			Errorf("session not found or expired")
	}

	if !b.secrets.Verify(parts.Secret, rec.secretDigest()) {
		b.logger.DebugContext(ctx, "session rejected", "kind", kind, "reason", "secret_mismatch")
		return zero, oops.Code(CodeSecretMismatch).With("kind", kind).Errorf("session secret mismatch")
	}

	return rec, nil
}
