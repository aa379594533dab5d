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
	"encoding/json"
	"errors"
	"net/http"

	"github.com/abcxyz/pkg/logging"
)

// TokenHeader is the GitLab header key used to pass the shared secret.
const TokenHeader = "X-Gitlab-Token"

// gitlabEvent carries the payload fields needed for subject derivation.
// GitLab payloads are heterogeneous: project hooks, group hooks and
// system hooks each place the routing information somewhere else.
type gitlabEvent struct {
	ObjectKind        string `json:"object_kind"`
	EventName         string `json:"event_name"`
	PathWithNamespace string `json:"path_with_namespace"`
	Project           struct {
		PathWithNamespace string `json:"path_with_namespace"`
	} `json:"project"`
	Group struct {
		FullPath  string `json:"full_path"`
		Path      string `json:"path"`
		GroupPath string `json:"group_path"`
	} `json:"group"`
	ObjectAttributes struct {
		URL       string `json:"url"`
		ProjectID *int64 `json:"project_id"`
	} `json:"object_attributes"`
}

// handleGitLab handles the logic for receiving gitlab webhooks and
// publishing to JetStream.
func (s *Server) handleGitLab() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		payload, err := s.readBody(w, r)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				logger.WarnContext(ctx, "webhook payload exceeds the size limit",
					"code", http.StatusRequestEntityTooLarge,
					"body", errPayloadTooLarge,
					"limit", maxBytesErr.Limit)
				s.h.RenderJSON(w, http.StatusRequestEntityTooLarge, errPayloadTooLarge)
				return
			}
			logger.ErrorContext(ctx, "failed to read webhook request body",
				"code", http.StatusInternalServerError,
				"body", errReadingPayload,
				"error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, errReadingPayload)
			return
		}

		if len(payload) == 0 {
			logger.WarnContext(ctx, "no payload received",
				"code", http.StatusBadRequest,
				"body", errNoPayload)
			s.h.RenderJSON(w, http.StatusBadRequest, errNoPayload)
			return
		}

		if !validGitLabToken(r.Header.Get(TokenHeader), s.gitlabSecret) {
			logger.InfoContext(ctx, "failed to validate webhook token",
				"code", http.StatusUnauthorized,
				"body", errInvalidToken)
			s.h.RenderJSON(w, http.StatusUnauthorized, errInvalidToken)
			return
		}

		var event gitlabEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.WarnContext(ctx, "failed to parse webhook payload",
				"code", http.StatusBadRequest,
				"body", errMalformedPayload,
				"error", err)
			s.h.RenderJSON(w, http.StatusBadRequest, errMalformedPayload)
			return
		}

		subject := buildGitLabSubject(&event)

		if err := s.messenger.Publish(ctx, subject, payload); err != nil {
			// A dropped client cancels the request context; there is
			// nobody left to reply to.
			if ctx.Err() != nil {
				logger.DebugContext(ctx, "client went away before publish completed",
					"subject", subject,
					"error", err)
				return
			}
			logger.ErrorContext(ctx, "failed to publish webhook payload",
				"code", http.StatusInternalServerError,
				"body", errWritingToBroker,
				"subject", subject,
				"error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, errWritingToBroker)
			return
		}

		logger.DebugContext(ctx, "published webhook payload", "subject", subject)
		s.h.RenderJSON(w, http.StatusOK, statusOK)
	})
}
