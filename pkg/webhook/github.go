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
	"strings"

	"github.com/abcxyz/pkg/logging"
)

const (
	// SHA256SignatureHeader is the GitHub header key used to pass the HMAC-SHA256 hexdigest.
	SHA256SignatureHeader = "X-Hub-Signature-256"

	// SHA1SignatureHeader is the legacy GitHub header key used to pass the HMAC-SHA1 hexdigest.
	SHA1SignatureHeader = "X-Hub-Signature"

	// EventTypeHeader is the GitHub header key used to pass the event type.
	EventTypeHeader = "X-Github-Event"

	// DeliveryIDHeader is the GitHub header key used to pass the unique ID for the webhook event.
	DeliveryIDHeader = "X-Github-Delivery"

	// pingEvent is GitHub's handshake event. It is authenticated like any
	// other delivery but never forwarded to the broker.
	pingEvent = "ping"
)

// githubEvent carries the payload fields needed for subject derivation.
type githubEvent struct {
	Repository struct {
		Name  string `json:"name"`
		Owner struct {
			Login string `json:"login"`
		} `json:"owner"`
	} `json:"repository"`
	Organization struct {
		Login string `json:"login"`
	} `json:"organization"`
}

// handleGitHub handles the logic for receiving github webhooks and
// publishing to JetStream.
func (s *Server) handleGitHub() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		logger := logging.FromContext(ctx)

		deliveryID := r.Header.Get(DeliveryIDHeader)
		eventType := strings.ToLower(r.Header.Get(EventTypeHeader))

		payload, err := s.readBody(w, r)
		if err != nil {
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) {
				logger.WarnContext(ctx, "webhook payload exceeds the size limit",
					"code", http.StatusRequestEntityTooLarge,
					"body", errPayloadTooLarge,
					"limit", maxBytesErr.Limit,
					"delivery_id", deliveryID)
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

		// The sha256 scheme wins when both signature headers are present.
		signature := r.Header.Get(SHA256SignatureHeader)
		if signature == "" {
			signature = r.Header.Get(SHA1SignatureHeader)
		}
		if !validGitHubSignature(signature, s.githubSecret, payload) {
			logger.InfoContext(ctx, "failed to validate webhook signature",
				"code", http.StatusUnauthorized,
				"body", errInvalidSignature,
				"delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusUnauthorized, errInvalidSignature)
			return
		}

		if eventType == "" {
			logger.WarnContext(ctx, "missing event type header",
				"code", http.StatusBadRequest,
				"body", errMissingEventType,
				"delivery_id", deliveryID)
			s.h.RenderJSON(w, http.StatusBadRequest, errMissingEventType)
			return
		}

		if eventType == pingEvent {
			s.h.RenderJSON(w, http.StatusOK, statusPong)
			return
		}

		var event githubEvent
		if err := json.Unmarshal(payload, &event); err != nil {
			logger.WarnContext(ctx, "failed to parse webhook payload",
				"code", http.StatusBadRequest,
				"body", errMalformedPayload,
				"delivery_id", deliveryID,
				"error", err)
			s.h.RenderJSON(w, http.StatusBadRequest, errMalformedPayload)
			return
		}

		subject := buildGitHubSubject(&event, eventType)

		if err := s.messenger.Publish(ctx, subject, payload); err != nil {
			// A dropped client cancels the request context; there is
			// nobody left to reply to.
			if ctx.Err() != nil {
				logger.DebugContext(ctx, "client went away before publish completed",
					"subject", subject,
					"delivery_id", deliveryID,
					"error", err)
				return
			}
			logger.ErrorContext(ctx, "failed to publish webhook payload",
				"code", http.StatusInternalServerError,
				"body", errWritingToBroker,
				"subject", subject,
				"delivery_id", deliveryID,
				"error", err)
			s.h.RenderJSON(w, http.StatusInternalServerError, errWritingToBroker)
			return
		}

		logger.DebugContext(ctx, "published webhook payload",
			"subject", subject,
			"delivery_id", deliveryID)
		s.h.RenderJSON(w, http.StatusOK, statusOK)
	})
}
