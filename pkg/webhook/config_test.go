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
	"testing"
	"time"

	"github.com/abcxyz/pkg/testutil"
)

func validServiceConfig() *Config {
	return &Config{
		Port:              "8080",
		NATSURL:           "nats://localhost:4222",
		MaxBodyBytes:      25 * 1024 * 1024,
		PublishMaxRetries: 10,
		PublishTimeout:    time.Minute,
		StreamMaxAge:      180 * 24 * time.Hour,
		StreamMaxMsgs:     2_000_000,
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		cfg    func(*Config)
		expErr string
	}{
		{
			name: "valid",
			cfg:  func(cfg *Config) {},
		},
		{
			name: "missing_secrets_is_valid",
			cfg: func(cfg *Config) {
				cfg.GitHubWebhookSecret = ""
				cfg.GitLabWebhookSecret = ""
				cfg.WebhookSecret = ""
			},
		},
		{
			name: "missing_nats_url",
			cfg: func(cfg *Config) {
				cfg.NATSURL = ""
			},
			expErr: "NATS_URL is required",
		},
		{
			name: "non_positive_max_body_size",
			cfg: func(cfg *Config) {
				cfg.MaxBodyBytes = 0
			},
			expErr: "MAX_BODY_SIZE must be positive",
		},
		{
			name: "non_positive_publish_max_retries",
			cfg: func(cfg *Config) {
				cfg.PublishMaxRetries = 0
			},
			expErr: "PUBLISH_MAX_RETRIES is required and must be greater than 0",
		},
		{
			name: "non_positive_publish_timeout",
			cfg: func(cfg *Config) {
				cfg.PublishTimeout = 0
			},
			expErr: "PUBLISH_TIMEOUT must be positive",
		},
		{
			name: "non_positive_stream_max_age",
			cfg: func(cfg *Config) {
				cfg.StreamMaxAge = -time.Hour
			},
			expErr: "STREAM_MAX_AGE must be positive",
		},
		{
			name: "non_positive_stream_max_msgs",
			cfg: func(cfg *Config) {
				cfg.StreamMaxMsgs = 0
			},
			expErr: "STREAM_MAX_MSGS must be positive",
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			cfg := validServiceConfig()
			tc.cfg(cfg)

			err := cfg.Validate()
			if diff := testutil.DiffErrString(err, tc.expErr); diff != "" {
				t.Errorf("Validate(%+v) got unexpected err: %s", tc.name, diff)
			}
		})
	}
}

func TestConfig_SecretFallback(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		cfg       *Config
		expGitHub string
		expGitLab string
	}{
		{
			name: "provider_specific_secrets",
			cfg: &Config{
				GitHubWebhookSecret: "gh",
				GitLabWebhookSecret: "gl",
				WebhookSecret:       "shared",
			},
			expGitHub: "gh",
			expGitLab: "gl",
		},
		{
			name: "shared_secret_only",
			cfg: &Config{
				WebhookSecret: "shared",
			},
			expGitHub: "shared",
			expGitLab: "shared",
		},
		{
			name: "mixed",
			cfg: &Config{
				GitHubWebhookSecret: "gh",
				WebhookSecret:       "shared",
			},
			expGitHub: "gh",
			expGitLab: "shared",
		},
		{
			name: "no_secrets",
			cfg:  &Config{},
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got, want := tc.cfg.GitHubSecret(), tc.expGitHub; got != want {
				t.Errorf("expected github secret %q to be %q", got, want)
			}
			if got, want := tc.cfg.GitLabSecret(), tc.expGitLab; got != want {
				t.Errorf("expected gitlab secret %q to be %q", got, want)
			}
		})
	}
}
