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

package quarantine

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
)

// DefaultMaxBytes is the size cap used when none is configured.
const DefaultMaxBytes int64 = 100 * 1024 * 1024

// Area is a bounded dead-letter directory for clips whose upload could not be
// verified. Insertion is serialized so concurrent failures cannot jointly
// push the area over its cap.
type Area struct {
	dir      string
	maxBytes int64

	mu sync.Mutex
}

// Entry is one quarantined file.
type Entry struct {
	Name    string
	Size    int64
	ModTime time.Time
}

func New(dir string, maxBytes int64) *Area {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Area{dir: dir, maxBytes: maxBytes}
}

func (a *Area) Dir() string {
	return a.dir
}

func (a *Area) MaxBytes() int64 {
	return a.maxBytes
}

// Put moves path into the area and returns its new location. When the
// current contents plus the incoming file reach the cap, every file already
// in the area is evicted first.
func (a *Area) Put(path string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create quarantine directory: %w", err)
	}

	incoming, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	used, err := dirSize(a.dir)
	if err != nil {
		slog.Warn("Failed to get quarantine size, proceeding anyway",
			slog.String("dir", a.dir), slog.Any("error", err))
	} else if used+incoming.Size() >= a.maxBytes {
		slog.Info("Quarantine would reach its cap, evicting all entries",
			slog.String("dir", a.dir),
			slog.Int64("usedBytes", used),
			slog.Int64("incomingBytes", incoming.Size()),
			slog.Int64("maxBytes", a.maxBytes))
		if err := a.evictLocked(); err != nil {
			slog.Warn("Some quarantined files could not be evicted", slog.Any("error", err))
		}
	}
	if incoming.Size() >= a.maxBytes {
		slog.Warn("Quarantined file alone exceeds the cap",
			slog.String("path", path), slog.Int64("size", incoming.Size()))
	}

	dest := a.freeName(filepath.Base(path))
	if err := moveFile(path, dest); err != nil {
		return "", fmt.Errorf("failed to move %s to quarantine: %w", path, err)
	}

	recordQuarantined()
	slog.Info("File moved to quarantine", slog.String("from", path), slog.String("to", dest))
	return dest, nil
}

// Usage returns the bytes currently held.
func (a *Area) Usage() (int64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	n, err := dirSize(a.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	return n, err
}

// List returns the quarantined files, oldest first.
func (a *Area) List() ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	dirEntries, err := os.ReadDir(a.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var entries []Entry
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		entries = append(entries, Entry{Name: de.Name(), Size: info.Size(), ModTime: info.ModTime()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ModTime.Before(entries[j].ModTime) })
	return entries, nil
}

// Purge removes every quarantined file.
func (a *Area) Purge() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, err := os.Stat(a.dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return a.evictLocked()
}

// evictLocked deletes every regular file. A failed deletion is logged and
// collected; it does not stop the remaining deletions.
func (a *Area) evictLocked() error {
	dirEntries, err := os.ReadDir(a.dir)
	if err != nil {
		return err
	}

	var result *multierror.Error
	evicted := 0
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		p := filepath.Join(a.dir, de.Name())
		if err := os.Remove(p); err != nil {
			slog.Warn("Failed to evict quarantined file", slog.String("path", p), slog.Any("error", err))
			result = multierror.Append(result, err)
			continue
		}
		evicted++
		slog.Debug("Evicted quarantined file", slog.String("path", p))
	}
	recordEviction(evicted)
	return result.ErrorOrNil()
}

// freeName picks a destination that does not overwrite an existing entry.
func (a *Area) freeName(base string) string {
	dest := filepath.Join(a.dir, base)
	if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
		return dest
	}
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for i := 1; ; i++ {
		dest = filepath.Join(a.dir, stem+"."+strconv.Itoa(i)+ext)
		if _, err := os.Lstat(dest); errors.Is(err, fs.ErrNotExist) {
			return dest
		}
	}
}

// dirSize sums the regular files directly under dir. Subdirectories are not
// managed by the area, so they count toward neither the cap nor eviction.
func dirSize(dir string) (int64, error) {
	dirEntries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		info, err := de.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

// moveFile renames src to dst, copying across filesystems when needed.
func moveFile(src, dst string) error {
	err := os.Rename(src, dst)
	if err == nil || !errors.Is(err, syscall.EXDEV) {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(dst)
		return err
	}
	return os.Remove(src)
}
