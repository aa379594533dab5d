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

// Package webhook is the webhook ingestion gateway: it authenticates
// GitHub and GitLab deliveries, derives a hierarchical subject for each
// one and republishes the raw payload onto the broker.
package webhook

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/abcxyz/pkg/logging"
	"github.com/abcxyz/pkg/renderer"
)

// Provider names double as stream names and subject prefixes.
const (
	ProviderGitHub = "github"
	ProviderGitLab = "gitlab"
)

var (
	statusOK     = map[string]string{"status": "ok"}
	statusPong   = map[string]string{"status": "pong"}
	statusHealth = map[string]string{"status": "OK"}

	errReadingPayload   = fmt.Errorf("failed to read webhook payload")
	errNoPayload        = fmt.Errorf("no payload received")
	errPayloadTooLarge  = fmt.Errorf("webhook payload exceeds the size limit")
	errMissingEventType = fmt.Errorf("missing event type header")
	errInvalidSignature = fmt.Errorf("failed to validate webhook signature")
	errInvalidToken     = fmt.Errorf("failed to validate webhook token")
	errMalformedPayload = fmt.Errorf("failed to parse webhook payload")
	errWritingToBroker  = fmt.Errorf("failed to write to broker")
)

// Messenger publishes a payload to a broker subject, returning only
// once the broker has acknowledged the message or retries are
// exhausted.
type Messenger interface {
	Publish(ctx context.Context, subject string, body []byte) error
}

// Server provides the gateway server implementation.
type Server struct {
	h            *renderer.Renderer
	messenger    Messenger
	githubSecret string
	gitlabSecret string
	maxBodyBytes int64
}

// NewServer creates a new HTTP server implementation that will handle
// receiving webhook payloads. Secrets are resolved once here and
// immutable afterwards.
func NewServer(ctx context.Context, h *renderer.Renderer, cfg *Config, messenger Messenger) *Server {
	return &Server{
		h:            h,
		messenger:    messenger,
		githubSecret: cfg.GitHubSecret(),
		gitlabSecret: cfg.GitLabSecret(),
		maxBodyBytes: int64(cfg.MaxBodyBytes),
	}
}

// Routes creates a ServeMux of all of the routes that
// this server supports.
func (s *Server) Routes(ctx context.Context) http.Handler {
	logger := logging.FromContext(ctx)

	providers := http.NewServeMux()
	providers.Handle("POST /github", s.handleGitHub())
	providers.Handle("POST /gitlab", s.handleGitLab())

	mux := http.NewServeMux()
	// The liveness probe is high-frequency and low-signal; it stays
	// outside the access-log middleware.
	mux.Handle("GET /health", s.handleHealth())
	mux.Handle("/", logging.HTTPInterceptor(logger, "")(providers))

	return mux
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.h.RenderJSON(w, http.StatusOK, statusHealth)
	})
}

// readBody reads the complete raw request body into memory, bounded by
// the configured size cap. The returned bytes serve both signature
// verification and publication; the payload is never re-serialized.
func (s *Server) readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read request body: %w", err)
	}
	return body, nil
}
