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
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/cardinalhq/cliprunner/internal/logctx"
	"github.com/cardinalhq/cliprunner/internal/retry"
)

// EventHumanDetected is the only event type emitted today.
const EventHumanDetected = "human_detected"

const (
	DefaultPublishTimeout = 30 * time.Second
	DefaultSubject        = "Human Detected"
)

// Notification is the message body announcing one delivered clip.
type Notification struct {
	S3Key         string `json:"s3_key"`
	Timestamp     string `json:"timestamp"`
	EventType     string `json:"event_type"`
	CloudFrontURL string `json:"cloudfront_url"`
}

// URLSigner produces a time-limited URL for a resource.
type URLSigner interface {
	Sign(rawURL string) (string, error)
}

// Message is one encoded notification handed to a transport.
type Message struct {
	Subject string
	Body    []byte
	// GroupKey orders messages on FIFO destinations.
	GroupKey string
}

// Transport delivers an encoded message. Implementations must be safe for
// concurrent use.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

type Publisher struct {
	signer    URLSigner
	transport Transport
	timeout   time.Duration
	policy    retry.Policy
	subject   string
	now       func() time.Time
}

type Option func(*Publisher)

func WithTimeout(d time.Duration) Option {
	return func(p *Publisher) {
		if d > 0 {
			p.timeout = d
		}
	}
}

func WithRetryPolicy(policy retry.Policy) Option {
	return func(p *Publisher) { p.policy = policy }
}

// WithSubject sets the subject line; empty keeps DefaultSubject.
func WithSubject(subject string) Option {
	return func(p *Publisher) {
		if subject != "" {
			p.subject = subject
		}
	}
}

func NewPublisher(signer URLSigner, transport Transport, opts ...Option) *Publisher {
	p := &Publisher{
		signer:    signer,
		transport: transport,
		timeout:   DefaultPublishTimeout,
		policy:    retry.DefaultPolicy("publish"),
		subject:   DefaultSubject,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ServingURL is the public URL of key behind domain.
func ServingURL(domain, key string) string {
	domain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimPrefix(domain, "https://"), "http://"), "/")
	return (&url.URL{Scheme: "https", Host: domain, Path: "/" + strings.TrimPrefix(key, "/")}).String()
}

// Build signs the serving URL for key and assembles the notification.
func (p *Publisher) Build(key, domain string) (Notification, error) {
	if key == "" {
		return Notification{}, errors.New("empty object key")
	}
	if domain == "" {
		return Notification{}, errors.New("empty serving domain")
	}
	signed, err := p.signer.Sign(ServingURL(domain, key))
	if err != nil {
		return Notification{}, fmt.Errorf("failed to sign URL: %w", err)
	}
	return Notification{
		S3Key:         key,
		Timestamp:     p.now().UTC().Format(time.RFC3339),
		EventType:     EventHumanDetected,
		CloudFrontURL: signed,
	}, nil
}

// Publish announces that key is available under domain. Signing errors are
// returned immediately; transport errors are retried.
func (p *Publisher) Publish(ctx context.Context, key, domain string) error {
	n, err := p.Build(key, domain)
	if err != nil {
		return err
	}
	body, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("failed to encode notification: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg := Message{Subject: p.subject, Body: body, GroupKey: n.EventType}
	attrs := metric.WithAttributes(attribute.String("transport", p.transport.Name()))
	_, err = retry.Do(ctx, p.policy.WithLabel("publish "+key), func(ctx context.Context) error {
		return p.transport.Send(ctx, msg)
	})
	if err != nil {
		failureCounter.Add(ctx, 1, attrs)
		return fmt.Errorf("failed to publish notification for %s: %w", key, err)
	}
	publishedCounter.Add(ctx, 1, attrs)

	logctx.FromContext(ctx).Info("Notification published",
		slog.String("key", key),
		slog.String("transport", p.transport.Name()))
	return nil
}
