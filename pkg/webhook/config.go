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

package webhook

import (
	"errors"
	"fmt"
	"time"

	"github.com/abcxyz/pkg/cli"
)

// Config defines the set of environment variables required
// for running this application.
type Config struct {
	Port string

	NATSURL       string
	NATSAuthToken string

	GitHubWebhookSecret string
	GitLabWebhookSecret string
	WebhookSecret       string

	MaxBodyBytes      int
	PublishMaxRetries int
	PublishTimeout    time.Duration

	StreamMaxAge  time.Duration
	StreamMaxMsgs int
}

// Validate validates the service config after load. A missing webhook
// secret is not a validation error: the matching endpoint rejects every
// delivery with 401 instead, and the other provider keeps working.
func (cfg *Config) Validate() error {
	var merr error

	if cfg.NATSURL == "" {
		merr = errors.Join(merr, fmt.Errorf("NATS_URL is required"))
	}

	if cfg.MaxBodyBytes <= 0 {
		merr = errors.Join(merr, fmt.Errorf("MAX_BODY_SIZE must be positive"))
	}

	if cfg.PublishMaxRetries <= 0 {
		merr = errors.Join(merr, fmt.Errorf("PUBLISH_MAX_RETRIES is required and must be greater than 0"))
	}

	if cfg.PublishTimeout <= 0 {
		merr = errors.Join(merr, fmt.Errorf("PUBLISH_TIMEOUT must be positive"))
	}

	if cfg.StreamMaxAge <= 0 {
		merr = errors.Join(merr, fmt.Errorf("STREAM_MAX_AGE must be positive"))
	}

	if cfg.StreamMaxMsgs <= 0 {
		merr = errors.Join(merr, fmt.Errorf("STREAM_MAX_MSGS must be positive"))
	}

	return merr
}

// GitHubSecret returns the secret for the GitHub endpoint, falling back
// to the shared webhook secret. Empty means the endpoint rejects all
// deliveries.
func (cfg *Config) GitHubSecret() string {
	if cfg.GitHubWebhookSecret != "" {
		return cfg.GitHubWebhookSecret
	}
	return cfg.WebhookSecret
}

// GitLabSecret returns the secret for the GitLab endpoint, falling back
// to the shared webhook secret.
func (cfg *Config) GitLabSecret() string {
	if cfg.GitLabWebhookSecret != "" {
		return cfg.GitLabWebhookSecret
	}
	return cfg.WebhookSecret
}

// ToFlags binds the config to the give [cli.FlagSet] and returns it.
func (cfg *Config) ToFlags(set *cli.FlagSet) *cli.FlagSet {
	f := set.NewSection("COMMON OPTIONS")

	f.StringVar(&cli.StringVar{
		Name:    "port",
		Target:  &cfg.Port,
		EnvVar:  "PORT",
		Default: "8080",
		Usage:   `The port the gateway listens to.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "nats-url",
		Target: &cfg.NATSURL,
		EnvVar: "NATS_URL",
		Usage:  `The NATS server URL, including scheme, host and port.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "nats-auth-token",
		Target: &cfg.NATSAuthToken,
		EnvVar: "NATS_AUTH_TOKEN",
		Usage:  `The token presented when connecting to NATS.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "github-webhook-secret",
		Target: &cfg.GitHubWebhookSecret,
		EnvVar: "GITHUB_WEBHOOK_SECRET",
		Usage:  `GitHub webhook secret. Falls back to the shared webhook secret.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "gitlab-webhook-secret",
		Target: &cfg.GitLabWebhookSecret,
		EnvVar: "GITLAB_WEBHOOK_SECRET",
		Usage:  `GitLab webhook secret. Falls back to the shared webhook secret.`,
	})

	f.StringVar(&cli.StringVar{
		Name:   "webhook-secret",
		Target: &cfg.WebhookSecret,
		EnvVar: "WEBHOOK_SECRET",
		Usage:  `Shared webhook secret used when no provider-specific secret is set.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "max-body-size",
		Target:  &cfg.MaxBodyBytes,
		EnvVar:  "MAX_BODY_SIZE",
		Default: 25 * 1024 * 1024,
		Usage:   `The maximum accepted webhook body size in bytes.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "publish-max-retries",
		Target:  &cfg.PublishMaxRetries,
		EnvVar:  "PUBLISH_MAX_RETRIES",
		Default: 10,
		Usage:   `The maximum number of attempts for a single JetStream publish.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "publish-timeout",
		Target:  &cfg.PublishTimeout,
		EnvVar:  "PUBLISH_TIMEOUT",
		Default: 60 * time.Second,
		Usage:   `The total time budget for a single JetStream publish, including retries.`,
	})

	f.DurationVar(&cli.DurationVar{
		Name:    "stream-max-age",
		Target:  &cfg.StreamMaxAge,
		EnvVar:  "STREAM_MAX_AGE",
		Default: 180 * 24 * time.Hour,
		Usage:   `The maximum age of messages retained on newly created streams.`,
	})

	f.IntVar(&cli.IntVar{
		Name:    "stream-max-msgs",
		Target:  &cfg.StreamMaxMsgs,
		EnvVar:  "STREAM_MAX_MSGS",
		Default: 2_000_000,
		Usage:   `The maximum number of messages retained on newly created streams.`,
	})

	return set
}
