// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"
)

// DefaultSweepInterval is how often the sweeper runs by default.
const DefaultSweepInterval = 15 * time.Minute

// ExpiredDeleter is implemented by every store holding expiring records.
type ExpiredDeleter interface {
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// SweepTarget names a store for logs and metrics.
type SweepTarget struct {
	Name  string
	Store ExpiredDeleter
}

// SweepRecorder observes the result of sweeping one target.
type SweepRecorder interface {
	RecordSweep(target string, removed int64, err error)
}

// SweepTargets returns a target for every expiring store set in d.
func SweepTargets(d Deps) []SweepTarget {
	candidates := []struct {
		name  string
		store ExpiredDeleter
	}{
		{"login_sessions", d.LoginSessions},
		{"signup_sessions", d.SignupSessions},
		{"password_reset_sessions", d.ResetSessions},
		{"association_sessions", d.AssociationSessions},
		{"verification_codes", d.Codes},
	}
	targets := make([]SweepTarget, 0, len(candidates))
	for _, c := range candidates {
		if c.store != nil {
			targets = append(targets, SweepTarget{Name: c.name, Store: c.store})
		}
	}
	return targets
}

// Sweeper periodically removes expired records. Lookups already treat them
// as absent, so sweeping only reclaims space.
type Sweeper struct {
	targets  []SweepTarget
	interval time.Duration
	logger   *slog.Logger
	metrics  SweepRecorder
	clock    func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// SweeperOption configures a Sweeper.
type SweeperOption func(*Sweeper)

// WithSweepLogger sets the sweeper logger.
func WithSweepLogger(logger *slog.Logger) SweeperOption {
	return func(s *Sweeper) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithSweepRecorder sets the sweep metrics recorder.
func WithSweepRecorder(r SweepRecorder) SweeperOption {
	return func(s *Sweeper) { s.metrics = r }
}

// WithSweepClock overrides the time source.
func WithSweepClock(clock func() time.Time) SweeperOption {
	return func(s *Sweeper) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewSweeper creates a sweeper over targets running every interval.
func NewSweeper(interval time.Duration, targets []SweepTarget, opts ...SweeperOption) (*Sweeper, error) {
	if interval <= 0 {
		return nil, oops.Code("SWEEPER_INVALID_INTERVAL").
			With("interval", interval.String()).
			Errorf("sweep interval must be positive")
	}
	for _, t := range targets {
		if t.Name == "" || t.Store == nil {
			return nil, oops.Code("SWEEPER_INVALID_TARGET").Errorf("sweep target needs a name and a store")
		}
	}
	s := &Sweeper{
		targets:  targets,
		interval: interval,
		logger:   slog.Default(),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// RunOnce sweeps every target once. All targets are attempted even if
// earlier ones fail; errors are combined. It returns the number of records
// removed per target.
func (s *Sweeper) RunOnce(ctx context.Context) (map[string]int64, error) {
	now := s.clock().UTC()
	removed := make(map[string]int64, len(s.targets))
	var errs []error

	for _, t := range s.targets {
		n, err := t.Store.DeleteExpired(ctx, now)
		if s.metrics != nil {
			s.metrics.RecordSweep(t.Name, n, err)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "sweep failed", "target", t.Name, "error", err)
			errs = append(errs, oops.Code("SWEEP_FAILED").With("target", t.Name).Wrap(err))
			continue
		}
		removed[t.Name] = n
		if n > 0 {
			s.logger.InfoContext(ctx, "swept expired records", "target", t.Name, "count", n)
		}
	}

	return removed, errors.Join(errs...)
}

// Start begins periodic sweeping. The first sweep runs immediately.
func (s *Sweeper) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.run(ctx)
}

// Stop stops the sweeper and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

func (s *Sweeper) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil {
				s.logger.ErrorContext(ctx, "sweep cycle failed", "error", err)
			}
		}
	}
}
