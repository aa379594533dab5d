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

package cli

import (
	"context"
	"fmt"
	"net/http"

	"github.com/abcxyz/pkg/cli"
	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
	"github.com/abcxyz/pkg/serving"

	"github.com/abcxyz/webhook-gateway/pkg/messaging"
	"github.com/abcxyz/webhook-gateway/pkg/version"
	"github.com/abcxyz/webhook-gateway/pkg/webhook"
)

var _ cli.Command = (*ServerCommand)(nil)

// ServerCommand starts the webhook ingestion gateway.
type ServerCommand struct {
	cli.BaseCommand

	cfg *webhook.Config

	// testFlagSetOpts is only used for testing.
	testFlagSetOpts []cli.Option

	// testMessenger is only used for testing.
	testMessenger webhook.Messenger
}

func (c *ServerCommand) Desc() string {
	return `Start the webhook ingestion gateway`
}

func (c *ServerCommand) Help() string {
	return `
Usage: {{ COMMAND }} [options]

  Start the webhook ingestion gateway. The gateway accepts GitHub and
  GitLab webhook deliveries, verifies them against the configured
  secrets, and republishes the raw payloads onto JetStream.
`
}

func (c *ServerCommand) Flags() *cli.FlagSet {
	c.cfg = &webhook.Config{}
	set := cli.NewFlagSet(c.testFlagSetOpts...)
	return c.cfg.ToFlags(set)
}

func (c *ServerCommand) Run(ctx context.Context, args []string) error {
	server, mux, closer, err := c.RunUnstarted(ctx, args)
	if closer != nil {
		defer closer()
	}
	if err != nil {
		return err
	}

	return server.StartHTTPHandler(ctx, mux) //nolint:wrapcheck // Want passthrough
}

// RunUnstarted builds the serving infrastructure without starting the
// listener. The returned closer releases the broker connection and is
// safe to call even when an error is returned.
func (c *ServerCommand) RunUnstarted(ctx context.Context, args []string) (*serving.Server, http.Handler, func(), error) {
	closer := func() {}

	f := c.Flags()
	if err := f.Parse(args); err != nil {
		return nil, nil, closer, fmt.Errorf("failed to parse flags: %w", err)
	}
	args = f.Args()
	if len(args) > 0 {
		return nil, nil, closer, fmt.Errorf("unexpected arguments: %q", args)
	}

	logger := logging.FromContext(ctx)
	logger.DebugContext(ctx, "server starting",
		"name", version.Name,
		"commit", version.Commit,
		"version", version.Version)

	if err := c.cfg.Validate(); err != nil {
		return nil, nil, closer, fmt.Errorf("invalid configuration: %w", err)
	}

	h, err := renderer.New(ctx, nil,
		renderer.WithOnError(func(err error) {
			logger.ErrorContext(ctx, "failed to render", "error", err)
		}))
	if err != nil {
		return nil, nil, closer, fmt.Errorf("failed to create renderer: %w", err)
	}

	messenger := c.testMessenger
	if messenger == nil {
		jsm, err := messaging.NewJetStreamMessenger(ctx, &messaging.Config{
			URL:               c.cfg.NATSURL,
			AuthToken:         c.cfg.NATSAuthToken,
			PublishMaxRetries: c.cfg.PublishMaxRetries,
			PublishTimeout:    c.cfg.PublishTimeout,
			StreamMaxAge:      c.cfg.StreamMaxAge,
			StreamMaxMsgs:     c.cfg.StreamMaxMsgs,
		})
		if err != nil {
			return nil, nil, closer, fmt.Errorf("failed to create jetstream messenger: %w", err)
		}
		closer = func() {
			if err := jsm.Close(); err != nil {
				logger.ErrorContext(ctx, "failed to close jetstream messenger", "error", err)
			}
		}

		for _, stream := range []string{webhook.ProviderGitHub, webhook.ProviderGitLab} {
			if err := jsm.EnsureStream(ctx, stream); err != nil {
				return nil, nil, closer, fmt.Errorf("failed to ensure stream %q: %w", stream, err)
			}
		}
		messenger = jsm
	}

	webhookServer := webhook.NewServer(ctx, h, c.cfg, messenger)
	mux := webhookServer.Routes(ctx)

	server, err := serving.New(c.cfg.Port)
	if err != nil {
		return nil, nil, closer, fmt.Errorf("failed to create serving infrastructure: %w", err)
	}

	return server, mux, closer, nil
}
