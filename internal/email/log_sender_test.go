// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package email_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/email"
	"github.com/holomush/holoauth/pkg/errutil"
)

func newSender(t *testing.T) (*email.LogSender, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	return email.NewLogSender(logger), &buf
}

func TestLogSender_SendVerificationCode(t *testing.T) {
	sender, buf := newSender(t)

	require.NoError(t, sender.SendVerificationCode(context.Background(), "ada@example.com", "ABCD1234"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "verification code email", entry["msg"])
	assert.Equal(t, "ada@example.com", entry["to"])
	assert.Equal(t, "ABCD1234", entry["code"])
	assert.Equal(t, "email", entry["component"])
}

func TestLogSender_SendPasswordReset(t *testing.T) {
	sender, buf := newSender(t)

	require.NoError(t, sender.SendPasswordReset(context.Background(), "ada@example.com", "tok"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "password reset email", entry["msg"])
	assert.Equal(t, "tok", entry["token"])
}

func TestLogSender_EmptyRecipient(t *testing.T) {
	sender, buf := newSender(t)

	err := sender.SendVerificationCode(context.Background(), " ", "ABCD1234")
	errutil.AssertErrorCode(t, err, "EMAIL_RECIPIENT_MISSING")
	errutil.AssertErrorContext(t, err, "kind", "verification_code")

	err = sender.SendPasswordReset(context.Background(), "", "tok")
	errutil.AssertErrorCode(t, err, "EMAIL_RECIPIENT_MISSING")
	assert.Empty(t, buf.String())
}

func TestNewLogSender_NilLogger(t *testing.T) {
	assert.NotNil(t, email.NewLogSender(nil))
}
