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

package notify

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var (
	publishedCounter metric.Int64Counter
	failureCounter   metric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/cliprunner/internal/notify")

	var err error
	publishedCounter, err = meter.Int64Counter(
		"cliprunner.notify.published",
		metric.WithDescription("Number of notifications delivered"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create notify.published counter: %w", err))
	}

	failureCounter, err = meter.Int64Counter(
		"cliprunner.notify.failures",
		metric.WithDescription("Number of notifications abandoned after retries"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create notify.failures counter: %w", err))
	}
}
