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
	"context"
	"fmt"

	"github.com/cardinalhq/cliprunner/internal/awsclient"
)

const (
	BackendSNS  = "sns"
	BackendSQS  = "sqs"
	BackendNATS = "nats"
)

// TransportConfig selects and configures a backend.
type TransportConfig struct {
	Backend  string
	TopicARN string
	QueueURL string
	NATSURL  string
	Subject  string
	Region   string
}

// NewTransport builds the configured transport. The returned close func
// releases any connection held by the transport.
func NewTransport(ctx context.Context, mgr *awsclient.Manager, cfg TransportConfig) (Transport, func(), error) {
	var clientOpts []awsclient.ClientOption
	if cfg.Region != "" {
		clientOpts = append(clientOpts, awsclient.WithClientRegion(cfg.Region))
	}

	switch cfg.Backend {
	case BackendSNS, "":
		t, err := NewSNSTransport(mgr.GetSNS(ctx, clientOpts...), cfg.TopicARN)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil
	case BackendSQS:
		t, err := NewSQSTransport(mgr.GetSQS(ctx, clientOpts...), cfg.QueueURL)
		if err != nil {
			return nil, nil, err
		}
		return t, func() {}, nil
	case BackendNATS:
		t, err := DialNATS(cfg.NATSURL, cfg.Subject)
		if err != nil {
			return nil, nil, err
		}
		return t, t.Close, nil
	default:
		return nil, nil, fmt.Errorf("unsupported notify backend: %s", cfg.Backend)
	}
}
