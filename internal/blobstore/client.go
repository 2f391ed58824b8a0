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

package blobstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cardinalhq/cliprunner/internal/awsclient"
)

// ErrNotFound is returned by StatObject when the object does not exist (yet).
var ErrNotFound = errors.New("object not found")

// ObjectInfo is the metadata returned by a probe.
type ObjectInfo struct {
	Key          string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// Client is the subset of blob storage the uploader needs.
type Client interface {
	// UploadObject streams a local file to bucket/key.
	UploadObject(ctx context.Context, bucket, key, sourceFilename, contentType string) error

	// StatObject probes bucket/key without reading its body.
	StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error)
}

const (
	ProviderS3   = "s3"
	ProviderFile = "file"
)

// Profile selects and configures a backend.
type Profile struct {
	Provider     string
	Region       string
	RoleARN      string
	Endpoint     string
	UsePathStyle bool
	InsecureTLS  bool
	// BasePath is the root directory for the file provider.
	BasePath string
}

// NewClient builds a Client for profile. mgr may be nil for the file provider.
func NewClient(ctx context.Context, mgr *awsclient.Manager, profile Profile) (Client, error) {
	switch profile.Provider {
	case ProviderS3, "":
		if mgr == nil {
			return nil, errors.New("s3 storage requires an AWS manager")
		}
		var opts []awsclient.S3Option
		if profile.RoleARN != "" {
			opts = append(opts, awsclient.WithRole(profile.RoleARN))
		}
		if profile.Region != "" {
			opts = append(opts, awsclient.WithRegion(profile.Region))
		}
		if profile.Endpoint != "" {
			opts = append(opts, awsclient.WithEndpoint(profile.Endpoint))
		}
		if profile.UsePathStyle {
			opts = append(opts, awsclient.WithPathStyle())
		}
		if profile.InsecureTLS {
			opts = append(opts, awsclient.WithInsecureTLS())
		}
		s3c, err := mgr.GetS3(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create S3 client: %w", err)
		}
		return NewS3Client(s3c), nil
	case ProviderFile:
		if profile.BasePath == "" {
			return nil, errors.New("file storage requires a base path")
		}
		return NewFileClient(profile.BasePath), nil
	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", profile.Provider)
	}
}
