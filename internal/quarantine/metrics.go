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
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	quarantinedCounter metric.Int64Counter
	evictionCounter    metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/cliprunner/internal/quarantine")

	var err error
	quarantinedCounter, err = meter.Int64Counter(
		"cliprunner.quarantine.count",
		metric.WithDescription("Number of clips moved into quarantine"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create quarantine.count counter: %w", err))
	}

	evictionCounter, err = meter.Int64Counter(
		"cliprunner.quarantine.evictions",
		metric.WithDescription("Number of quarantined files removed to make room"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create quarantine.evictions counter: %w", err))
	}
}

func recordEviction(n int) {
	if n > 0 {
		evictionCounter.Add(context.Background(), int64(n))
	}
}

func recordQuarantined() {
	quarantinedCounter.Add(context.Background(), 1)
}
