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
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/cliprunner/internal/awsclient"
)

var (
	uploadCount  metric.Int64Counter
	uploadBytes  metric.Int64Counter
	uploadErrors metric.Int64Counter
	probeMisses  metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/cliprunner/internal/blobstore")

	var err error
	uploadCount, err = meter.Int64Counter(
		"cliprunner.upload.count",
		metric.WithDescription("Number of objects uploaded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.count counter: %w", err))
	}

	uploadBytes, err = meter.Int64Counter(
		"cliprunner.upload.bytes",
		metric.WithUnit("By"),
		metric.WithDescription("Bytes uploaded"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.bytes counter: %w", err))
	}

	uploadErrors, err = meter.Int64Counter(
		"cliprunner.upload.errors",
		metric.WithDescription("Number of failed upload attempts"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create upload.errors counter: %w", err))
	}

	probeMisses, err = meter.Int64Counter(
		"cliprunner.probe.not_found",
		metric.WithDescription("Number of metadata probes that did not find the object"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create probe.not_found counter: %w", err))
	}
}

// objectAPI is what s3Client needs from *s3.Client; the uploader is built
// from the same value so tests can substitute both.
type objectAPI interface {
	manager.UploadAPIClient
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

type s3Client struct {
	api    objectAPI
	tracer trace.Tracer
}

// NewS3Client wraps an instrumented S3 client.
func NewS3Client(c *awsclient.S3Client) Client {
	return &s3Client{api: c.Client, tracer: c.Tracer}
}

func isNotFound(err error) bool {
	var nf *types.NotFound
	if errors.As(err, &nf) {
		return true
	}
	var nsk *types.NoSuchKey
	if errors.As(err, &nsk) {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

func (c *s3Client) UploadObject(ctx context.Context, bucket, key, sourceFilename, contentType string) error {
	file, err := os.Open(sourceFilename)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", sourceFilename, err)
	}
	defer func() { _ = file.Close() }()

	stat, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat source file: %w", err)
	}

	ctx, span := c.tracer.Start(ctx, "blobstore.UploadObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
			attribute.Int64("size", stat.Size()),
		),
	)
	defer span.End()

	uploader := manager.NewUploader(c.api)
	_, err = uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(contentType),
		Metadata: map[string]string{
			"writer": "cliprunner",
		},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upload failed")
		uploadErrors.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
		return fmt.Errorf("failed to upload s3://%s/%s: %w", bucket, key, err)
	}

	uploadCount.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
	uploadBytes.Add(ctx, stat.Size(), metric.WithAttributes(attribute.String("bucket", bucket)))
	return nil
}

func (c *s3Client) StatObject(ctx context.Context, bucket, key string) (ObjectInfo, error) {
	ctx, span := c.tracer.Start(ctx, "blobstore.StatObject",
		trace.WithAttributes(
			attribute.String("bucket", bucket),
			attribute.String("key", key),
		),
	)
	defer span.End()

	out, err := c.api.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			probeMisses.Add(ctx, 1, metric.WithAttributes(attribute.String("bucket", bucket)))
			return ObjectInfo{}, fmt.Errorf("s3://%s/%s: %w", bucket, key, ErrNotFound)
		}
		span.RecordError(err)
		return ObjectInfo{}, fmt.Errorf("head s3://%s/%s: %w", bucket, key, err)
	}

	return ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
	}, nil
}
