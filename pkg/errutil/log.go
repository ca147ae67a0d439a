// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package errutil bridges oops errors to slog and to tests.
package errutil

import (
	"context"
	"log/slog"

	"github.com/samber/oops"
)

// LogError logs err at error level. Oops errors contribute their code and
// context as separate attributes; a stack trace is attached when the logger
// has debug enabled. A nil logger uses slog.Default().
func LogError(ctx context.Context, logger *slog.Logger, msg string, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		logger.ErrorContext(ctx, msg, "error", err)
		return
	}

	attrs := []any{"error", oopsErr.Error()}
	if code := oopsErr.Code(); code != nil {
		attrs = append(attrs, "code", code)
	}
	if kv := oopsErr.Context(); len(kv) > 0 {
		attrs = append(attrs, "context", kv)
	}
	if logger.Enabled(ctx, slog.LevelDebug) {
		attrs = append(attrs, "stacktrace", oopsErr.Stacktrace())
	}
	logger.ErrorContext(ctx, msg, attrs...)
}
