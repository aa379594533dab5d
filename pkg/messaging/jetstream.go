// Copyright 2025 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package messaging provides the JetStream-backed broker client for the
// gateway.
package messaging

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/abcxyz/pkg/logging"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/sethvargo/go-retry"
)

const (
	// reconnectWait is the fixed delay between reconnection attempts.
	reconnectWait = 2 * time.Second

	// retryBase is the initial backoff after a failed attempt; each
	// subsequent wait doubles up to retryCap.
	retryBase = 1 * time.Second
	retryCap  = 30 * time.Second
)

// Config holds the connection and retention settings for the messenger.
type Config struct {
	// URL is the NATS server URL, including scheme, host and port.
	URL string

	// AuthToken is the opaque credential presented on connect, if any.
	AuthToken string

	// PublishMaxRetries bounds the attempts for a single publish.
	PublishMaxRetries int

	// PublishTimeout bounds the total time for a single publish,
	// including retry backoff.
	PublishTimeout time.Duration

	// StreamMaxAge and StreamMaxMsgs are the retention bounds applied to
	// newly created streams. Existing streams are never reconfigured.
	StreamMaxAge  time.Duration
	StreamMaxMsgs int
}

// jetStream is the subset of [jetstream.JetStream] the messenger uses.
// Tests substitute an implementation with injected failures.
type jetStream interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
	Stream(ctx context.Context, name string) (jetstream.Stream, error)
	CreateStream(ctx context.Context, cfg jetstream.StreamConfig) (jetstream.Stream, error)
}

// JetStreamMessenger owns the single long-lived NATS connection shared
// by all request handlers. The connection is safe for concurrent
// publishes; reconnection is handled by the client and is transparent
// to callers.
type JetStreamMessenger struct {
	nc  *nats.Conn
	js  jetStream
	cfg *Config

	retryBase time.Duration
	retryCap  time.Duration
}

// NewJetStreamMessenger connects to the broker. The initial dial is
// retried and the connection reconnects indefinitely with a fixed
// backoff; connection lifecycle events are logged.
func NewJetStreamMessenger(ctx context.Context, cfg *Config) (*JetStreamMessenger, error) {
	logger := logging.FromContext(ctx)

	opts := []nats.Option{
		nats.Name("webhook-gateway"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(reconnectWait),
		nats.RetryOnFailedConnect(true),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.WarnContext(ctx, "nats connection interrupted", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.InfoContext(ctx, "nats connection restored", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.InfoContext(ctx, "nats connection closed")
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			logger.ErrorContext(ctx, "nats connection error", "error", err)
		}),
	}
	if cfg.AuthToken != "" {
		opts = append(opts, nats.Token(cfg.AuthToken))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to nats: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create jetstream context: %w", err)
	}

	return &JetStreamMessenger{
		nc:        nc,
		js:        js,
		cfg:       cfg,
		retryBase: retryBase,
		retryCap:  retryCap,
	}, nil
}

// EnsureStream creates the named stream capturing "<name>.>" if it does
// not already exist. New streams are file-backed with limits-based
// retention, discarding oldest messages once the configured age or
// count bound is hit. An existing stream is left untouched, whatever
// its configuration.
func (m *JetStreamMessenger) EnsureStream(ctx context.Context, name string) error {
	logger := logging.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.PublishTimeout)
	defer cancel()

	if err := m.withRetry(ctx, func(ctx context.Context) error {
		if _, err := m.js.Stream(ctx, name); err == nil {
			logger.InfoContext(ctx, "stream already exists", "stream", name)
			return nil
		} else if !errors.Is(err, jetstream.ErrStreamNotFound) {
			return fmt.Errorf("failed to look up stream: %w", err)
		}

		logger.InfoContext(ctx, "creating stream", "stream", name)
		if _, err := m.js.CreateStream(ctx, jetstream.StreamConfig{
			Name:      name,
			Subjects:  []string{name + ".>"},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			Discard:   jetstream.DiscardOld,
			MaxAge:    m.cfg.StreamMaxAge,
			MaxMsgs:   int64(m.cfg.StreamMaxMsgs),
		}); err != nil {
			// Another gateway instance may have won the create race.
			if errors.Is(err, jetstream.ErrStreamNameAlreadyInUse) {
				return nil
			}
			return fmt.Errorf("failed to create stream: %w", err)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("failed to ensure stream %q: %w", name, err)
	}
	return nil
}

// Publish writes body to the given subject and waits for the broker
// ack. Transient failures are retried with exponential backoff up to
// the configured attempt count, all bounded by the publish timeout. On
// success the broker has durably accepted exactly these bytes; on error
// nothing was acknowledged.
func (m *JetStreamMessenger) Publish(ctx context.Context, subject string, body []byte) error {
	logger := logging.FromContext(ctx)

	ctx, cancel := context.WithTimeout(ctx, m.cfg.PublishTimeout)
	defer cancel()

	if err := m.withRetry(ctx, func(ctx context.Context) error {
		ack, err := m.js.Publish(ctx, subject, body)
		if err != nil {
			return err
		}
		logger.DebugContext(ctx, "published message",
			"subject", subject,
			"stream", ack.Stream,
			"seq", ack.Sequence)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to publish to %q: %w", subject, err)
	}
	return nil
}

// Close drains the connection, letting in-flight publishes finish.
func (m *JetStreamMessenger) Close() error {
	if err := m.nc.Drain(); err != nil {
		return fmt.Errorf("failed to drain nats connection: %w", err)
	}
	return nil
}

// withRetry runs f with exponential backoff for transient failures.
// Non-transient failures surface immediately.
func (m *JetStreamMessenger) withRetry(ctx context.Context, f func(context.Context) error) error {
	logger := logging.FromContext(ctx)

	backoff := retry.WithCappedDuration(m.retryCap, retry.NewExponential(m.retryBase))
	backoff = retry.WithMaxRetries(uint64(m.cfg.PublishMaxRetries-1), backoff)

	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := f(ctx)
		if err != nil && isTransient(err) {
			logger.WarnContext(ctx, "transient broker error, retrying", "error", err)
			return retry.RetryableError(err)
		}
		return err
	}) //nolint:wrapcheck // Callers add context
}

// isTransient reports whether a broker error is worth retrying.
// Connection hiccups, timeouts and not-yet-provisioned streams resolve
// on their own; anything else (bad subject, rejected broker
// credentials) will not.
func isTransient(err error) bool {
	return errors.Is(err, nats.ErrTimeout) ||
		errors.Is(err, nats.ErrNoResponders) ||
		errors.Is(err, nats.ErrConnectionClosed) ||
		errors.Is(err, nats.ErrConnectionReconnecting) ||
		errors.Is(err, jetstream.ErrNoStreamResponse)
}
