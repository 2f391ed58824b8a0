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
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/cardinalhq/cliprunner/config"
	"github.com/cardinalhq/cliprunner/internal/quarantine"
)

func init() {
	qc := &cobra.Command{
		Use:   "quarantine",
		Short: "Inspect clips that failed upload verification",
	}

	qc.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List quarantined clips",
		RunE: func(c *cobra.Command, _ []string) error {
			area, err := quarantineArea()
			if err != nil {
				return err
			}
			entries, err := area.List()
			if err != nil {
				return fmt.Errorf("failed to list quarantine: %w", err)
			}

			tw := tabwriter.NewWriter(c.OutOrStdout(), 0, 4, 2, ' ', 0)
			_, _ = fmt.Fprintln(tw, "NAME\tSIZE\tQUARANTINED")
			var total int64
			for _, e := range entries {
				total += e.Size
				_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\n", e.Name, e.Size, e.ModTime.UTC().Format(time.RFC3339))
			}
			_, _ = fmt.Fprintf(tw, "\t%d of %d bytes\t\n", total, area.MaxBytes())
			return tw.Flush()
		},
	})

	qc.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Delete every quarantined clip",
		RunE: func(c *cobra.Command, _ []string) error {
			area, err := quarantineArea()
			if err != nil {
				return err
			}
			if err := area.Purge(); err != nil {
				return fmt.Errorf("failed to purge quarantine: %w", err)
			}
			_, _ = fmt.Fprintf(c.OutOrStdout(), "purged %s\n", area.Dir())
			return nil
		},
	})

	rootCmd.AddCommand(qc)
}

func quarantineArea() (*quarantine.Area, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return quarantine.New(cfg.Quarantine.Dir, cfg.Quarantine.MaxBytes), nil
}
