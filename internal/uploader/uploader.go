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
	"fmt"
	"log/slog"
	"mime"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/cardinalhq/cliprunner/internal/blobstore"
	"github.com/cardinalhq/cliprunner/internal/logctx"
	"github.com/cardinalhq/cliprunner/internal/retry"
)

// ErrVerificationFailed is returned when the object could not be confirmed
// in the store after a transfer reported success.
var ErrVerificationFailed = errors.New("upload verification failed")

const (
	DefaultTimeout   = 60 * time.Second
	DefaultKeyPrefix = "videos"
)

// DefaultVerifyPolicy is the shorter schedule used for the metadata probe.
func DefaultVerifyPolicy() retry.Policy {
	return retry.Policy{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     2 * time.Second,
		Label:        "verify",
	}
}

// Quarantiner takes ownership of a local file that could not be verified.
type Quarantiner interface {
	Put(path string) (string, error)
}

type Uploader struct {
	store      blobstore.Client
	bucket     string
	keyPrefix  string
	quarantine Quarantiner

	timeout        time.Duration
	transferPolicy retry.Policy
	verifyPolicy   retry.Policy
}

type Option func(*Uploader)

func WithKeyPrefix(prefix string) Option {
	return func(u *Uploader) { u.keyPrefix = strings.Trim(prefix, "/") }
}

func WithTimeout(d time.Duration) Option {
	return func(u *Uploader) {
		if d > 0 {
			u.timeout = d
		}
	}
}

func WithTransferPolicy(p retry.Policy) Option {
	return func(u *Uploader) { u.transferPolicy = p }
}

func WithVerifyPolicy(p retry.Policy) Option {
	return func(u *Uploader) { u.verifyPolicy = p }
}

// New returns an Uploader writing to bucket. quarantine may be nil, in which
// case unverified files stay where they are.
func New(store blobstore.Client, bucket string, quarantine Quarantiner, opts ...Option) *Uploader {
	u := &Uploader{
		store:          store,
		bucket:         bucket,
		keyPrefix:      DefaultKeyPrefix,
		quarantine:     quarantine,
		timeout:        DefaultTimeout,
		transferPolicy: retry.DefaultPolicy("upload"),
		verifyPolicy:   DefaultVerifyPolicy(),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// ObjectKey maps a local clip to its remote key.
func (u *Uploader) ObjectKey(localPath string) string {
	name := filepath.Base(localPath)
	if u.keyPrefix == "" {
		return name
	}
	return path.Join(u.keyPrefix, name)
}

// Upload transfers localPath and confirms the object exists remotely. If the
// probe never succeeds the clip is moved to quarantine and the returned error
// matches ErrVerificationFailed.
// On success the local file is left in place; removing it is the caller's
// job once downstream work is done.
func (u *Uploader) Upload(parent context.Context, localPath string) (string, error) {
	ctx, cancel := context.WithTimeout(parent, u.timeout)
	defer cancel()

	name := filepath.Base(localPath)
	key := u.ObjectKey(localPath)
	ll := logctx.FromContext(ctx).With(slog.String("key", key))

	contentType := ContentTypeFor(localPath)
	attempts, err := retry.Do(ctx, u.transferPolicy.WithLabel("upload "+name), func(ctx context.Context) error {
		return u.store.UploadObject(ctx, u.bucket, key, localPath, contentType)
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", name, err)
	}
	ll.Debug("Transfer complete", slog.Int("attempts", attempts))

	var info blobstore.ObjectInfo
	_, err = retry.Do(ctx, u.verifyPolicy.WithLabel("verify "+name), func(ctx context.Context) error {
		var statErr error
		info, statErr = u.store.StatObject(ctx, u.bucket, key)
		return statErr
	})
	if err != nil {
		// A caller shutting down is not a verification failure; the clip
		// stays in place and is picked up again on the next start.
		if parent.Err() != nil {
			return "", fmt.Errorf("verification of %s interrupted: %w", name, err)
		}
		ll.Error("Upload could not be verified", slog.Any("error", err))
		if u.quarantine != nil {
			if dest, qerr := u.quarantine.Put(localPath); qerr != nil {
				ll.Error("Failed to quarantine clip", slog.Any("error", qerr))
			} else {
				ll.Warn("Clip quarantined", slog.String("quarantinePath", dest))
			}
		}
		return "", fmt.Errorf("%w: %s: %w", ErrVerificationFailed, name, err)
	}

	ll.Info("Upload verified", slog.Int64("size", info.Size))
	return key, nil
}

// ContentTypeFor derives the content type from the file extension.
func ContentTypeFor(localPath string) string {
	ext := strings.ToLower(filepath.Ext(localPath))
	if ct, ok := videoTypes[ext]; ok {
		return ct
	}
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

// The builtin mime table does not carry most video containers.
var videoTypes = map[string]string{
	".mp4":  "video/mp4",
	".m4v":  "video/x-m4v",
	".mov":  "video/quicktime",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
}
