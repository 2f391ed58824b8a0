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
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/cliprunner/config"
	"github.com/cardinalhq/cliprunner/internal/awsclient"
	"github.com/cardinalhq/cliprunner/internal/notify"
	"github.com/cardinalhq/cliprunner/internal/urlsigner"
)

func init() {
	var verify bool

	cmd := &cobra.Command{
		Use:   "sign <url-or-key>",
		Short: "Print a signed download URL",
		Long: `Sign a URL with the configured key. A bare object key such as
videos/clip.mp4 is resolved against signing.domain first.`,
		Args: cobra.ExactArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			if err := cfg.ValidateSigning(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return signURL(c.Context(), c, cfg, args[0], verify)
		},
	}
	cmd.Flags().BoolVar(&verify, "verify", false, "verify the signature with the public half of the key")

	rootCmd.AddCommand(cmd)
}

func signURL(ctx context.Context, c *cobra.Command, cfg *config.Config, target string, verify bool) error {
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
		return err
	}

	if !strings.Contains(target, "://") {
		target = notify.ServingURL(cfg.Signing.Domain, target)
	}
	signed, err := signer.Sign(target)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(c.OutOrStdout(), signed)

	if verify {
		v, err := urlsigner.Verify(signed, &key.PublicKey, time.Now())
		if err != nil {
			return fmt.Errorf("verification failed: %w", err)
		}
		_, _ = fmt.Fprintf(c.ErrOrStderr(), "verified %s, expires %s\n", v.Resource, v.Expires.Format(time.RFC3339))
	}
	return nil
}
