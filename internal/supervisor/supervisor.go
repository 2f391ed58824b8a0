// Copyright (C) 2025-2026 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cardinalhq/cliprunner/internal/healthcheck"
)

// ErrWatcherStopped is returned when the watcher exits cleanly while the
// pipeline is still meant to be running.
var ErrWatcherStopped = errors.New("watcher stopped unexpectedly")

const DefaultShutdownTimeout = 30 * time.Second

// Watcher is the event loop the supervisor owns.
type Watcher interface {
	Run(ctx context.Context) error
	Ready() <-chan struct{}
	Wait(ctx context.Context) error
}

type Supervisor struct {
	watcher         Watcher
	health          *healthcheck.Server
	shutdownTimeout time.Duration
}

type Option func(*Supervisor)

// WithHealthServer runs hs alongside the watcher.
func WithHealthServer(hs *healthcheck.Server) Option {
	return func(s *Supervisor) { s.health = hs }
}

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.shutdownTimeout = d
		}
	}
}

func New(w Watcher, opts ...Option) *Supervisor {
	s := &Supervisor{watcher: w, shutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run blocks until ctx is cancelled or the watcher fails, then drains
// in-flight clips for up to the shutdown timeout. An external stop yields
// nil; a watcher failure is returned.
func (s *Supervisor) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := s.watcher.Run(gctx)
		if err != nil {
			return fmt.Errorf("watcher failed: %w", err)
		}
		if ctx.Err() == nil && gctx.Err() == nil {
			return ErrWatcherStopped
		}
		return nil
	})

	if s.health != nil {
		g.Go(func() error {
			select {
			case <-s.watcher.Ready():
				s.health.SetReady(true)
				s.health.SetStatus(healthcheck.StatusHealthy)
			case <-gctx.Done():
			}
			return nil
		})
		g.Go(func() error {
			return s.health.Start(gctx)
		})
	}

	err := g.Wait()
	if s.health != nil {
		s.health.SetReady(false)
		if err != nil {
			s.health.SetStatus(healthcheck.StatusUnhealthy)
		}
	}
	if err != nil {
		slog.Error("Pipeline stopping after failure", slog.Any("error", err))
	} else {
		slog.Info("Pipeline stopping")
	}

	drainCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if werr := s.watcher.Wait(drainCtx); werr != nil {
		slog.Warn("Shutdown timeout reached with clips in flight", slog.Any("error", werr))
	} else {
		slog.Info("All in-flight clips finished")
	}

	return err
}
