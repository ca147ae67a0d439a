// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/holomush/holoauth/internal/store"
	"github.com/holomush/holoauth/pkg/errutil"
)

const secretsConfig = `
secrets:
  session_key: ` + testSecret + `
  oauth_state_key: ` + testSecret + `
`

const providerConfig = secretsConfig + `
oauth_providers:
  - name: github
    client_id: id
    client_secret: secret
    auth_url: https://github.com/login/oauth/authorize
    token_url: https://github.com/login/oauth/access_token
    userinfo_url: https://api.github.com/user
    redirect_url: https://auth.example.com/oauth/github/callback
`

func runCheckCmd(t *testing.T, deps *Deps, configYAML string) (string, error) {
	t.Helper()
	path := writeConfig(t, configYAML)
	out, _, err := execute(context.Background(), deps, "check", "--config", path, "--database-url", testDatabaseURL)
	return out, err
}

func TestCheck_Ready(t *testing.T) {
	migrator := &fakeMigrator{}
	pool := &fakePool{}

	out, err := runCheckCmd(t, testDeps(pool, migrator), providerConfig)

	require.NoError(t, err)
	assert.Contains(t, out, "Database: ok")
	assert.Contains(t, out, "Verification codes: postgres")
	assert.Contains(t, out, "Schema: current")
	assert.Contains(t, out, "OAuth providers: github")
	assert.Contains(t, out, "Services: ready")
	assert.True(t, migrator.closed)
	assert.True(t, pool.isClosed())
}

func TestCheck_NoProviders(t *testing.T) {
	out, err := runCheckCmd(t, testDeps(&fakePool{}, &fakeMigrator{}), secretsConfig)

	require.NoError(t, err)
	assert.Contains(t, out, "OAuth providers: none")
}

func TestCheck_MissingSecrets(t *testing.T) {
	pool := &fakePool{}

	_, err := runCheckCmd(t, testDeps(pool, &fakeMigrator{}), "log:\n  level: warn\n")

	errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	errutil.AssertErrorContext(t, err, "field", "secrets.session_key")
	assert.False(t, pool.isClosed(), "no connection is opened")
}

func TestCheck_SchemaProblems(t *testing.T) {
	tests := []struct {
		name   string
		status *store.Status
		code   string
	}{
		{"pending", &store.Status{Version: 2, Name: "000002_sessions", Pending: []uint{3}}, "SCHEMA_OUTDATED"},
		{"dirty", &store.Status{Version: 3, Name: "000003_verification_codes", Dirty: true}, "SCHEMA_DIRTY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runCheckCmd(t, testDeps(&fakePool{}, &fakeMigrator{status: tt.status}), secretsConfig)
			errutil.AssertErrorCode(t, err, tt.code)
		})
	}
}

func TestCheck_PingFailure(t *testing.T) {
	pool := &fakePool{pingErr: errors.New("connection refused")}

	_, err := runCheckCmd(t, testDeps(pool, &fakeMigrator{}), secretsConfig)

	errutil.AssertErrorCode(t, err, "DB_PING_FAILED")
	assert.True(t, pool.isClosed())
}

func TestCheck_InvalidProvider(t *testing.T) {
	_, err := runCheckCmd(t, testDeps(&fakePool{}, &fakeMigrator{}), secretsConfig+`
oauth_providers:
  - name: github
`)

	errutil.AssertErrorCode(t, err, "OAUTH_PROVIDER_CONFIG_INVALID")
}
