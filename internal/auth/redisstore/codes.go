// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package redisstore keeps email verification codes in Redis. Records carry a
// TTL matching their expiry, so Redis drops them without a sweep.
package redisstore

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/holomush/holoauth/internal/auth"
)

// DefaultKeyPrefix namespaces verification code keys.
const DefaultKeyPrefix = "holoauth:vcode"

// consumeRetries bounds optimistic transaction retries under contention.
const consumeRetries = 4

type codeRecord struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// VerificationCodeRepository implements auth.VerificationCodeRepository on
// Redis, one key per user.
type VerificationCodeRepository struct {
	client redis.UniversalClient
	prefix string
	clock  func() time.Time
}

// Option configures a VerificationCodeRepository.
type Option func(*VerificationCodeRepository)

// WithKeyPrefix overrides DefaultKeyPrefix.
func WithKeyPrefix(prefix string) Option {
	return func(r *VerificationCodeRepository) {
		if prefix != "" {
			r.prefix = prefix
		}
	}
}

// WithClock overrides the time source used to compute key TTLs.
func WithClock(clock func() time.Time) Option {
	return func(r *VerificationCodeRepository) {
		if clock != nil {
			r.clock = clock
		}
	}
}

// NewVerificationCodeRepository creates a repository over client.
func NewVerificationCodeRepository(client redis.UniversalClient, opts ...Option) *VerificationCodeRepository {
	r := &VerificationCodeRepository{client: client, prefix: DefaultKeyPrefix, clock: time.Now}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *VerificationCodeRepository) key(userID auth.UserID) string {
	return r.prefix + ":" + userID.String()
}

// Replace stores code as the only code of its user. An already expired code
// just clears the key.
func (r *VerificationCodeRepository) Replace(ctx context.Context, code *auth.EmailVerificationCode) error {
	key := r.key(code.UserID)
	ttl := code.ExpiresAt.Sub(r.clock())
	if ttl <= 0 {
		if err := r.client.Del(ctx, key).Err(); err != nil {
			return oops.Code("VERIFICATION_CODE_SAVE_FAILED").With("user_id", code.UserID.String()).Wrap(err)
		}
		return nil
	}

	data, err := encode(code)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, key, data, ttl).Err(); err != nil {
		return oops.Code("VERIFICATION_CODE_SAVE_FAILED").
			With("operation", "set code").
			With("user_id", code.UserID.String()).
			Wrap(err)
	}
	return nil
}

// Restore stores code with SET NX if its user has no code. An expired code
// is never stored.
func (r *VerificationCodeRepository) Restore(ctx context.Context, code *auth.EmailVerificationCode) (bool, error) {
	ttl := code.ExpiresAt.Sub(r.clock())
	if ttl <= 0 {
		return false, nil
	}
	data, err := encode(code)
	if err != nil {
		return false, err
	}
	stored, err := r.client.SetNX(ctx, r.key(code.UserID), data, ttl).Result()
	if err != nil {
		return false, oops.Code("VERIFICATION_CODE_SAVE_FAILED").
			With("operation", "restore code").
			With("user_id", code.UserID.String()).
			Wrap(err)
	}
	return stored, nil
}

// GetByUser retrieves the active code of a user.
func (r *VerificationCodeRepository) GetByUser(ctx context.Context, userID auth.UserID) (*auth.EmailVerificationCode, error) {
	data, err := r.client.Get(ctx, r.key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("VERIFICATION_CODE_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("VERIFICATION_CODE_GET_FAILED").
			With("operation", "get code").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return decode(data, userID)
}

// errNoMatch ends a consume transaction without deleting the key.
var errNoMatch = errors.New("verification code does not match")

// Consume deletes and returns the user's code under WATCH, so a concurrent
// consumer either aborts the transaction or finds the key gone.
func (r *VerificationCodeRepository) Consume(ctx context.Context, userID auth.UserID, code string, now time.Time) (*auth.EmailVerificationCode, error) {
	key := r.key(userID)

	for range consumeRetries {
		var matched *auth.EmailVerificationCode

		err := r.client.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			record, err := decode(data, userID)
			if err != nil {
				return err
			}
			if record.IsExpiredAt(now) || subtle.ConstantTimeCompare([]byte(record.Code), []byte(code)) != 1 {
				return errNoMatch
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key)
				return nil
			})
			if err != nil {
				return err
			}
			matched = record
			return nil
		}, key)

		switch {
		case errors.Is(err, redis.TxFailedErr):
			continue
		case errors.Is(err, redis.Nil), errors.Is(err, errNoMatch):
			return nil, oops.Code("VERIFICATION_CODE_NOT_FOUND").With("user_id", userID.String()).Wrap(auth.ErrNotFound)
		case err != nil:
			return nil, oops.Code("VERIFICATION_CODE_CONSUME_FAILED").
				With("operation", "consume code").
				With("user_id", userID.String()).
				Wrap(err)
		}
		return matched, nil
	}

	return nil, oops.Code("VERIFICATION_CODE_NOT_FOUND").
		With("user_id", userID.String()).
		With("reason", "contention").
		Wrap(auth.ErrNotFound)
}

// DeleteByUser removes the code of a user.
func (r *VerificationCodeRepository) DeleteByUser(ctx context.Context, userID auth.UserID) error {
	if err := r.client.Del(ctx, r.key(userID)).Err(); err != nil {
		return oops.Code("VERIFICATION_CODE_DELETE_FAILED").With("user_id", userID.String()).Wrap(err)
	}
	return nil
}

// DeleteExpired is a no-op; Redis expires keys itself.
func (r *VerificationCodeRepository) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func encode(code *auth.EmailVerificationCode) ([]byte, error) {
	data, err := json.Marshal(codeRecord{
		ID:        code.ID.String(),
		Email:     code.Email,
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt.UTC(),
		CreatedAt: code.CreatedAt.UTC(),
	})
	if err != nil {
		return nil, oops.Code("VERIFICATION_CODE_SAVE_FAILED").With("operation", "encode code").Wrap(err)
	}
	return data, nil
}

func decode(data []byte, userID auth.UserID) (*auth.EmailVerificationCode, error) {
	var rec codeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, oops.Code("VERIFICATION_CODE_CORRUPT").With("user_id", userID.String()).Wrap(err)
	}
	id, err := auth.ParseID[auth.VerificationCodeID](rec.ID)
	if err != nil {
		return nil, oops.Code("VERIFICATION_CODE_CORRUPT").With("user_id", userID.String()).Wrap(err)
	}
	return &auth.EmailVerificationCode{
		ID:        id,
		UserID:    userID,
		Email:     rec.Email,
		Code:      rec.Code,
		ExpiresAt: rec.ExpiresAt,
		CreatedAt: rec.CreatedAt,
	}, nil
}

var _ auth.VerificationCodeRepository = (*VerificationCodeRepository)(nil)
