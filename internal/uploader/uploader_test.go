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

package uploader

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/cliprunner/internal/blobstore"
	"github.com/cardinalhq/cliprunner/internal/quarantine"
	"github.com/cardinalhq/cliprunner/internal/retry"
)

type fakeStore struct {
	mu sync.Mutex

	uploadFailures int
	statFailures   int
	statErr        error

	uploads      int
	stats        int
	lastKey      string
	lastBucket   string
	lastType     string
	uploadedData []byte
}

func (f *fakeStore) UploadObject(_ context.Context, bucket, key, source, contentType string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	if f.uploads <= f.uploadFailures {
		return errors.New("connection reset")
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return err
	}
	f.lastBucket, f.lastKey, f.lastType, f.uploadedData = bucket, key, contentType, data
	return nil
}

func (f *fakeStore) StatObject(_ context.Context, _, key string) (blobstore.ObjectInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stats++
	if f.statErr != nil {
		return blobstore.ObjectInfo{}, f.statErr
	}
	if f.stats <= f.statFailures {
		return blobstore.ObjectInfo{}, blobstore.ErrNotFound
	}
	return blobstore.ObjectInfo{Key: key, Size: int64(len(f.uploadedData))}, nil
}

func fastPolicy(retries int) retry.Policy {
	return retry.Policy{MaxRetries: retries, InitialDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func newClip(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "clip_001.mp4")
	require.NoError(t, os.WriteFile(p, []byte("frames"), 0o644))
	return p
}

func newUploader(store *fakeStore, q Quarantiner) *Uploader {
	return New(store, "bucket", q,
		WithTransferPolicy(fastPolicy(4)),
		WithVerifyPolicy(fastPolicy(2)))
}

func TestUploadSuccess(t *testing.T) {
	store := &fakeStore{}
	clip := newClip(t)

	key, err := newUploader(store, nil).Upload(context.Background(), clip)
	require.NoError(t, err)
	assert.Equal(t, "videos/clip_001.mp4", key)
	assert.Equal(t, "bucket", store.lastBucket)
	assert.Equal(t, "video/mp4", store.lastType)
	assert.Equal(t, []byte("frames"), store.uploadedData)
	assert.Equal(t, 1, store.uploads)
	assert.Equal(t, 1, store.stats)

	// Local file is not removed by the uploader.
	_, err = os.Stat(clip)
	assert.NoError(t, err)
}

func TestUploadRetriesTransfer(t *testing.T) {
	store := &fakeStore{uploadFailures: 3}
	key, err := newUploader(store, nil).Upload(context.Background(), newClip(t))
	require.NoError(t, err)
	assert.Equal(t, "videos/clip_001.mp4", key)
	assert.Equal(t, 4, store.uploads)
}

func TestUploadTransferExhausted(t *testing.T) {
	store := &fakeStore{uploadFailures: 100}
	qdir := t.TempDir()
	clip := newClip(t)

	_, err := newUploader(store, quarantine.New(qdir, 1000)).Upload(context.Background(), clip)
	require.Error(t, err)
	assert.Equal(t, 5, store.uploads)
	assert.Zero(t, store.stats)
	assert.NotErrorIs(t, err, ErrVerificationFailed)

	var exhausted *retry.ExhaustedError
	assert.ErrorAs(t, err, &exhausted)

	// Transfer failures leave the clip where it was.
	_, err = os.Stat(clip)
	assert.NoError(t, err)
}

func TestUploadVerifyEventuallySucceeds(t *testing.T) {
	store := &fakeStore{statFailures: 2}
	_, err := newUploader(store, nil).Upload(context.Background(), newClip(t))
	require.NoError(t, err)
	assert.Equal(t, 3, store.stats)
}

func TestUploadVerifyFailureQuarantines(t *testing.T) {
	store := &fakeStore{statFailures: 100}
	qdir := t.TempDir()
	clip := newClip(t)

	_, err := newUploader(store, quarantine.New(qdir, 1000)).Upload(context.Background(), clip)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVerificationFailed)
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
	assert.Equal(t, 3, store.stats)

	_, err = os.Stat(clip)
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(qdir, "clip_001.mp4"))
	assert.NoError(t, err)
}

func TestUploadVerifyCancelledDoesNotQuarantine(t *testing.T) {
	store := &fakeStore{statFailures: 100}
	qdir := t.TempDir()
	clip := newClip(t)

	ctx, cancel := context.WithCancel(context.Background())
	u := New(store, "bucket", quarantine.New(qdir, 1000),
		WithTransferPolicy(fastPolicy(0)),
		WithVerifyPolicy(retry.Policy{MaxRetries: 2, InitialDelay: time.Hour, MaxDelay: time.Hour}))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	_, err := u.Upload(ctx, clip)
	require.Error(t, err)
	assert.ErrorIs(t, err, retry.ErrCancelled)
	assert.NotErrorIs(t, err, ErrVerificationFailed)

	_, err = os.Stat(clip)
	assert.NoError(t, err)
	entries, err := os.ReadDir(qdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadTransferCancelledDuringBackoff(t *testing.T) {
	store := &fakeStore{uploadFailures: 100}
	qdir := t.TempDir()
	clip := newClip(t)

	ctx, cancel := context.WithCancel(context.Background())
	u := New(store, "bucket", quarantine.New(qdir, 1000),
		WithTransferPolicy(retry.Policy{MaxRetries: 4, InitialDelay: time.Hour, MaxDelay: time.Hour}),
		WithVerifyPolicy(fastPolicy(0)))

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	start := time.Now()
	_, err := u.Upload(ctx, clip)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 5*time.Second)
	assert.ErrorIs(t, err, retry.ErrCancelled)
	assert.NotErrorIs(t, err, ErrVerificationFailed)

	store.mu.Lock()
	assert.Equal(t, 1, store.uploads)
	assert.Zero(t, store.stats)
	store.mu.Unlock()

	_, err = os.Stat(clip)
	assert.NoError(t, err)
	entries, err := os.ReadDir(qdir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUploadWithKeyPrefix(t *testing.T) {
	u := New(&fakeStore{}, "b", nil, WithKeyPrefix("/clips/"))
	assert.Equal(t, "clips/a.mp4", u.ObjectKey("/tmp/videos/a.mp4"))

	u = New(&fakeStore{}, "b", nil, WithKeyPrefix(""))
	assert.Equal(t, "a.mp4", u.ObjectKey("/tmp/videos/a.mp4"))
}

func TestContentTypeFor(t *testing.T) {
	assert.Equal(t, "video/mp4", ContentTypeFor("a.mp4"))
	assert.Equal(t, "video/mp4", ContentTypeFor("A.MP4"))
	assert.Equal(t, "video/quicktime", ContentTypeFor("a.mov"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("a.unknownext"))
	assert.Equal(t, "application/octet-stream", ContentTypeFor("noext"))
}
