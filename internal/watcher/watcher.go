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

package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/jellydator/ttlcache/v3"
)

const (
	DefaultExtension   = ".mp4"
	DefaultSettleDelay = time.Second
	// Entries normally leave the in-flight set when their dispatch ends;
	// the TTL only bounds a dispatch that never returns.
	defaultInFlightTTL = time.Hour
)

// ErrDirectoryRemoved is returned when the watched directory disappears.
var ErrDirectoryRemoved = errors.New("watched directory was removed")

// Handler processes one settled clip. It is called on its own goroutine.
type Handler interface {
	HandleClip(ctx context.Context, path string)
}

type Watcher struct {
	dir         string
	ext         string
	settleDelay time.Duration
	handler     Handler

	mu       sync.Mutex
	inflight *ttlcache.Cache[string, time.Time]
	wg       sync.WaitGroup

	ready     chan struct{}
	readyOnce sync.Once
}

type Option func(*Watcher)

func WithExtension(ext string) Option {
	return func(w *Watcher) {
		if ext == "" {
			return
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		w.ext = ext
	}
}

func WithSettleDelay(d time.Duration) Option {
	return func(w *Watcher) {
		if d >= 0 {
			w.settleDelay = d
		}
	}
}

func New(dir string, handler Handler, opts ...Option) *Watcher {
	w := &Watcher{
		dir:         filepath.Clean(dir),
		ext:         DefaultExtension,
		settleDelay: DefaultSettleDelay,
		handler:     handler,
		inflight: ttlcache.New(
			ttlcache.WithTTL[string, time.Time](defaultInFlightTTL),
		),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ready is closed once the subscription is established.
func (w *Watcher) Ready() <-chan struct{} {
	return w.ready
}

// InFlight is the number of clips currently dispatched.
func (w *Watcher) InFlight() int {
	return w.inflight.Len()
}

// Run watches the directory until ctx is done. Clips already present are
// dispatched first. It returns nil on cancellation and an error if the
// directory cannot be watched or goes away.
func (w *Watcher) Run(ctx context.Context) error {
	info, err := os.Stat(w.dir)
	if err != nil {
		return fmt.Errorf("cannot watch %s: %w", w.dir, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("cannot watch %s: not a directory", w.dir)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer func() { _ = fsw.Close() }()

	if err := fsw.Add(w.dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", w.dir, err)
	}
	w.readyOnce.Do(func() { close(w.ready) })
	slog.Info("Watching for clips", slog.String("dir", w.dir), slog.String("extension", w.ext))

	if err := w.scan(ctx); err != nil {
		slog.Warn("Initial directory scan failed", slog.String("dir", w.dir), slog.Any("error", err))
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("Watcher stopping", slog.String("dir", w.dir))
			return nil

		case ev, ok := <-fsw.Events:
			if !ok {
				return errors.New("file watcher event channel closed")
			}
			if filepath.Clean(ev.Name) == w.dir && (ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename)) {
				return fmt.Errorf("%w: %s", ErrDirectoryRemoved, w.dir)
			}
			if ev.Has(fsnotify.Create) && w.matches(ev.Name) {
				slog.Debug("Clip created", slog.String("path", ev.Name))
				w.dispatch(ctx, ev.Name)
			}

		case err, ok := <-fsw.Errors:
			if !ok {
				return errors.New("file watcher error channel closed")
			}
			if errors.Is(err, fsnotify.ErrEventOverflow) {
				slog.Warn("File watcher queue overflowed, rescanning", slog.String("dir", w.dir))
				if err := w.scan(ctx); err != nil {
					slog.Warn("Rescan failed", slog.String("dir", w.dir), slog.Any("error", err))
				}
				continue
			}
			slog.Error("File watcher error", slog.Any("error", err))
		}
	}
}

// Wait blocks until every dispatched clip has been handled or ctx is done.
func (w *Watcher) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%d clips still in flight: %w", w.InFlight(), ctx.Err())
	}
}

func (w *Watcher) matches(name string) bool {
	return strings.EqualFold(filepath.Ext(name), w.ext)
}

func (w *Watcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if ctx.Err() != nil {
			return nil
		}
		if !e.Type().IsRegular() || !w.matches(e.Name()) {
			continue
		}
		w.dispatch(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

// dispatch starts a goroutine for path unless one is already running.
func (w *Watcher) dispatch(ctx context.Context, path string) bool {
	w.mu.Lock()
	if w.inflight.Has(path) {
		w.mu.Unlock()
		slog.Debug("Clip already in flight, ignoring event", slog.String("path", path))
		return false
	}
	w.inflight.Set(path, time.Now(), ttlcache.DefaultTTL)
	w.wg.Add(1)
	w.mu.Unlock()

	go func() {
		defer w.wg.Done()
		defer w.inflight.Delete(path)

		if w.settleDelay > 0 {
			timer := time.NewTimer(w.settleDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return
			case <-timer.C:
			}
		}

		// A stale event can outlive the clip it describes.
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			slog.Debug("Clip vanished before processing", slog.String("path", path))
			return
		}
		w.handler.HandleClip(ctx, path)
	}()
	return true
}
