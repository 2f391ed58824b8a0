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

package cmd

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/cliprunner/config"
	"github.com/cardinalhq/cliprunner/internal/awsclient"
	"github.com/cardinalhq/cliprunner/internal/blobstore"
	"github.com/cardinalhq/cliprunner/internal/clipprocessing"
	"github.com/cardinalhq/cliprunner/internal/debugging"
	"github.com/cardinalhq/cliprunner/internal/diskusage"
	"github.com/cardinalhq/cliprunner/internal/healthcheck"
	"github.com/cardinalhq/cliprunner/internal/notify"
	"github.com/cardinalhq/cliprunner/internal/quarantine"
	"github.com/cardinalhq/cliprunner/internal/supervisor"
	"github.com/cardinalhq/cliprunner/internal/uploader"
	"github.com/cardinalhq/cliprunner/internal/urlsigner"
	"github.com/cardinalhq/cliprunner/internal/watcher"
)

func init() {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Watch for clips and deliver them",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}

			doneCtx, doneFx, err := setupTelemetry(serviceName)
			if err != nil {
				return fmt.Errorf("failed to setup telemetry: %w", err)
			}

			defer func() {
				if err := doneFx(); err != nil {
					slog.Error("Error shutting down telemetry", slog.Any("error", err))
				}
			}()

			return runPipeline(doneCtx, cfg)
		},
	}

	rootCmd.AddCommand(cmd)
}

func runPipeline(ctx context.Context, cfg *config.Config) error {
	mgr, err := awsclient.NewManager(ctx, awsclient.WithDefaultRegion(cfg.Region))
	if err != nil {
		return fmt.Errorf("failed to create AWS client manager: %w", err)
	}

	key, err := loadSigningKey(ctx, mgr, cfg.Signing)
	if err != nil {
		return err
	}
	signer, err := urlsigner.New(key, cfg.Signing.KeyPairID, urlsigner.WithTTL(cfg.Signing.TTL))
	if err != nil {
		return fmt.Errorf("failed to create URL signer: %w", err)
	}
	slog.Info("URL signer ready",
		slog.String("keyPairID", signer.KeyPairID()),
		slog.Duration("ttl", signer.TTL()))

	transport, closeTransport, err := notify.NewTransport(ctx, mgr, notify.TransportConfig{
		Backend:  cfg.Notify.Backend,
		TopicARN: cfg.Notify.TopicARN,
		QueueURL: cfg.Notify.QueueURL,
		NATSURL:  cfg.Notify.NATSURL,
		Subject:  cfg.Notify.Subject,
	})
	if err != nil {
		return fmt.Errorf("failed to create notification transport: %w", err)
	}
	defer closeTransport()
	publisher := notify.NewPublisher(signer, transport,
		notify.WithTimeout(cfg.Notify.PublishTimeout),
		notify.WithSubject(cfg.Notify.Title))

	store, err := blobstore.NewClient(ctx, mgr, blobstore.Profile{
		Provider:     cfg.Storage.Provider,
		Region:       cfg.Region,
		RoleARN:      cfg.Storage.RoleARN,
		Endpoint:     cfg.Storage.Endpoint,
		UsePathStyle: cfg.Storage.UsePathStyle,
		InsecureTLS:  cfg.Storage.InsecureTLS,
		BasePath:     cfg.Storage.BasePath,
	})
	if err != nil {
		return fmt.Errorf("failed to create blob store client: %w", err)
	}

	area := quarantine.New(cfg.Quarantine.Dir, cfg.Quarantine.MaxBytes)
	up := uploader.New(store, cfg.Storage.Bucket, area,
		uploader.WithKeyPrefix(cfg.Storage.KeyPrefix),
		uploader.WithTimeout(cfg.Storage.UploadTimeout))
	proc := clipprocessing.NewProcessor(up, publisher, cfg.Signing.Domain)

	w := watcher.New(cfg.Watch.Dir, proc,
		watcher.WithExtension(cfg.Watch.Extension),
		watcher.WithSettleDelay(cfg.Watch.SettleDelay))

	opts := []supervisor.Option{supervisor.WithShutdownTimeout(cfg.ShutdownTimeout)}
	if cfg.Health.Enabled {
		hs := healthcheck.NewServer(healthcheck.Config{
			Port: cfg.Health.Port,
			Stats: func(st *healthcheck.PipelineStats) {
				st.InFlight = w.InFlight()
				if used, err := area.Usage(); err == nil {
					st.QuarantineBytes = used
				}
				if du, err := diskusage.ForPath(cfg.Watch.Dir); err == nil {
					st.WatchFreeBytes = du.FreeBytes
				}
			},
		})
		opts = append(opts, supervisor.WithHealthServer(hs))
	}

	debugging.RunPprof(ctx, cfg.Debug.PprofPort)

	slog.Info("Starting clip pipeline",
		slog.String("watchDir", cfg.Watch.Dir),
		slog.String("storage", cfg.Storage.Provider),
		slog.String("bucket", cfg.Storage.Bucket),
		slog.String("notify", transport.Name()),
		slog.String("quarantineDir", cfg.Quarantine.Dir))

	return supervisor.New(w, opts...).Run(ctx)
}

// loadSigningKey reads the private key from a local file when one is
// configured, otherwise from the parameter store.
func loadSigningKey(ctx context.Context, mgr *awsclient.Manager, sc config.SigningConfig) (*rsa.PrivateKey, error) {
	if sc.KeyFile != "" {
		key, err := urlsigner.LoadKeyFromFile(sc.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load signing key: %w", err)
		}
		return key, nil
	}
	key, err := urlsigner.LoadKeyFromSSM(ctx, mgr.GetSSM(ctx), sc.KeyParameter)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	slog.Info("Loaded signing key from parameter store", slog.String("parameter", sc.KeyParameter))
	return key, nil
}
