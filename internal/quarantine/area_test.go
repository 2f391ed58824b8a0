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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name string, size int) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, make([]byte, size), 0o644))
	return p
}

func TestPutCreatesDirectoryAndMoves(t *testing.T) {
	src := t.TempDir()
	qdir := filepath.Join(t.TempDir(), "failed")
	a := New(qdir, 1000)

	p := writeFile(t, src, "clip.mp4", 10)
	dest, err := a.Put(p)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(qdir, "clip.mp4"), dest)

	_, err = os.Stat(p)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(dest)
	assert.NoError(t, err)

	used, err := a.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(10), used)
}

func TestPutEvictsWhenCapReached(t *testing.T) {
	src := t.TempDir()
	qdir := t.TempDir()
	a := New(qdir, 100)

	writeFile(t, qdir, "old1.mp4", 40)
	writeFile(t, qdir, "old2.mp4", 40)

	// 80 + 20 reaches the cap exactly.
	_, err := a.Put(writeFile(t, src, "new.mp4", 20))
	require.NoError(t, err)

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "new.mp4", entries[0].Name)
	assert.Equal(t, int64(20), entries[0].Size)
}

func TestPutKeepsContentsBelowCap(t *testing.T) {
	src := t.TempDir()
	qdir := t.TempDir()
	a := New(qdir, 100)

	writeFile(t, qdir, "old.mp4", 40)
	_, err := a.Put(writeFile(t, src, "new.mp4", 59))
	require.NoError(t, err)

	entries, err := a.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestPutIgnoresSubdirectories(t *testing.T) {
	src := t.TempDir()
	qdir := t.TempDir()
	a := New(qdir, 100)

	nested := filepath.Join(qdir, "manual")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	writeFile(t, nested, "kept.mp4", 500)
	writeFile(t, qdir, "old.mp4", 30)

	_, err := a.Put(writeFile(t, src, "new.mp4", 30))
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(qdir, "old.mp4"))
	assert.NoError(t, err, "nested files must not force an eviction")
	_, err = os.Stat(filepath.Join(nested, "kept.mp4"))
	assert.NoError(t, err)

	used, err := a.Usage()
	require.NoError(t, err)
	assert.Equal(t, int64(60), used)
}

func TestPutOversizedFileStillStored(t *testing.T) {
	src := t.TempDir()
	qdir := t.TempDir()
	a := New(qdir, 10)

	writeFile(t, qdir, "old.mp4", 5)
	dest, err := a.Put(writeFile(t, src, "huge.mp4", 50))
	require.NoError(t, err)

	entries, err := a.List()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, filepath.Base(dest), entries[0].Name)
}

func TestPutNameCollision(t *testing.T) {
	qdir := t.TempDir()
	a := New(qdir, 1000)

	first, err := a.Put(writeFile(t, t.TempDir(), "clip.mp4", 1))
	require.NoError(t, err)
	second, err := a.Put(writeFile(t, t.TempDir(), "clip.mp4", 2))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(qdir, "clip.mp4"), first)
	assert.Equal(t, filepath.Join(qdir, "clip.1.mp4"), second)
}

func TestPutMissingSource(t *testing.T) {
	a := New(t.TempDir(), 1000)
	_, err := a.Put(filepath.Join(t.TempDir(), "gone.mp4"))
	assert.Error(t, err)
}

func TestPutConcurrentNeverExceedsCap(t *testing.T) {
	qdir := t.TempDir()
	const maxBytes = 100
	a := New(qdir, maxBytes)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		src := t.TempDir()
		p := writeFile(t, src, "clip.mp4", 30)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := a.Put(p)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	used, err := a.Usage()
	require.NoError(t, err)
	assert.LessOrEqual(t, used, int64(maxBytes))
	assert.Positive(t, used)
}

func TestListAndPurge(t *testing.T) {
	qdir := t.TempDir()
	a := New(qdir, 1000)
	writeFile(t, qdir, "a.mp4", 1)
	writeFile(t, qdir, "b.mp4", 2)
	require.NoError(t, os.Mkdir(filepath.Join(qdir, "sub"), 0o755))

	entries, err := a.List()
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	require.NoError(t, a.Purge())
	entries, err = a.List()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestMissingDirectoryIsEmpty(t *testing.T) {
	a := New(filepath.Join(t.TempDir(), "nope"), 0)
	assert.Equal(t, DefaultMaxBytes, a.MaxBytes())

	used, err := a.Usage()
	require.NoError(t, err)
	assert.Zero(t, used)

	entries, err := a.List()
	require.NoError(t, err)
	assert.Empty(t, entries)

	assert.NoError(t, a.Purge())
}
