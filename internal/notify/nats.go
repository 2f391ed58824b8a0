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
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// natsConn is the slice of *nats.Conn used here.
type natsConn interface {
	PublishMsg(m *nats.Msg) error
	FlushWithContext(ctx context.Context) error
	Close()
}

type NATSTransport struct {
	conn    natsConn
	subject string
}

// DialNATS connects to url and returns a transport publishing on subject.
func DialNATS(url, subject string) (*NATSTransport, error) {
	if subject == "" {
		return nil, errors.New("nats transport requires a subject")
	}
	opts := []nats.Option{
		nats.Name("cliprunner"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			slog.Warn("Disconnected from NATS", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			slog.Info("Reconnected to NATS", slog.String("url", nc.ConnectedUrl()))
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSTransport{conn: nc, subject: subject}, nil
}

func (t *NATSTransport) Name() string { return "nats" }

func (t *NATSTransport) Send(ctx context.Context, msg Message) error {
	m := nats.NewMsg(t.subject)
	m.Data = msg.Body
	if msg.Subject != "" {
		m.Header.Set("Subject", msg.Subject)
	}
	if err := t.conn.PublishMsg(m); err != nil {
		return err
	}
	return t.conn.FlushWithContext(ctx)
}

func (t *NATSTransport) Close() {
	t.conn.Close()
}
