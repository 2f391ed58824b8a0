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

package clipprocessing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/cliprunner/internal/idgen"
	"github.com/cardinalhq/cliprunner/internal/logctx"
	"github.com/cardinalhq/cliprunner/internal/uploader"
)

var clipsProcessed metric.Int64Counter

func init() {
	meter := otel.Meter("github.com/cardinalhq/cliprunner/internal/clipprocessing")

	var err error
	clipsProcessed, err = meter.Int64Counter(
		"cliprunner.clips.processed",
		metric.WithDescription("Number of clips handled, by outcome"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create clips.processed counter: %w", err))
	}
}

// Uploader delivers a local clip and returns its remote key.
type Uploader interface {
	Upload(ctx context.Context, localPath string) (string, error)
}

// Publisher announces a delivered clip.
type Publisher interface {
	Publish(ctx context.Context, key, domain string) error
}

// Outcome is the terminal state of one clip.
type Outcome int

const (
	OutcomeDelivered Outcome = iota
	// OutcomeDeliveredUnannounced means the clip is stored but the
	// notification could not be sent.
	OutcomeDeliveredUnannounced
	OutcomeQuarantined
	OutcomeUploadFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDelivered:
		return "delivered"
	case OutcomeDeliveredUnannounced:
		return "delivered_unannounced"
	case OutcomeQuarantined:
		return "quarantined"
	case OutcomeUploadFailed:
		return "upload_failed"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

type Processor struct {
	uploader  Uploader
	publisher Publisher
	domain    string
}

func NewProcessor(up Uploader, pub Publisher, domain string) *Processor {
	return &Processor{uploader: up, publisher: pub, domain: domain}
}

// HandleClip runs one clip through upload, announcement and cleanup.
// Failures are logged; nothing is returned to the watcher.
func (p *Processor) HandleClip(ctx context.Context, path string) {
	ctx = logctx.With(ctx,
		slog.Int64("dispatchID", idgen.NextDispatchID()),
		slog.String("clip", filepath.Base(path)))

	start := time.Now()
	outcome := p.Process(ctx, path)
	clipsProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome.String())))

	logctx.FromContext(ctx).Info("Clip processed",
		slog.String("outcome", outcome.String()),
		slog.Duration("elapsed", time.Since(start)))
}

// Process is HandleClip without the dispatch bookkeeping.
func (p *Processor) Process(ctx context.Context, path string) Outcome {
	ll := logctx.FromContext(ctx)

	key, err := p.uploader.Upload(ctx, path)
	if err != nil {
		switch {
		case errors.Is(err, uploader.ErrVerificationFailed):
			ll.Error("Clip upload unverified", slog.Any("error", err))
			return OutcomeQuarantined
		case ctx.Err() != nil:
			ll.Info("Clip upload interrupted, will retry on next start", slog.Any("error", err))
			return OutcomeCancelled
		default:
			ll.Error("Clip upload failed", slog.Any("error", err))
			return OutcomeUploadFailed
		}
	}

	outcome := OutcomeDelivered
	if err := p.publisher.Publish(ctx, key, p.domain); err != nil {
		ll.Error("Failed to publish notification", slog.String("key", key), slog.Any("error", err))
		outcome = OutcomeDeliveredUnannounced
	}

	if err := os.Remove(path); err != nil {
		ll.Warn("Failed to delete local clip", slog.String("path", path), slog.Any("error", err))
	} else {
		ll.Debug("Deleted local clip", slog.String("path", path))
	}
	return outcome
}
