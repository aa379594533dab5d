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

import "testing"

func TestValidGitHubSignature(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"action":"opened"}`)
	secret := "test-secret"

	cases := []struct {
		name      string
		signature string
		secret    string
		payload   []byte
		exp       bool
	}{
		{
			name:      "valid_sha256",
			signature: sha256Signature(secret, payload),
			secret:    secret,
			payload:   payload,
			exp:       true,
		},
		{
			name:      "valid_sha1",
			signature: sha1Signature(secret, payload),
			secret:    secret,
			payload:   payload,
			exp:       true,
		},
		{
			name:      "tampered_payload",
			signature: sha256Signature(secret, payload),
			secret:    secret,
			payload:   []byte(`{"action":"closed"}`),
			exp:       false,
		},
		{
			name:      "wrong_secret",
			signature: sha256Signature("other-secret", payload),
			secret:    secret,
			payload:   payload,
			exp:       false,
		},
		{
			name:      "unknown_scheme",
			signature: "md5=0123456789abcdef",
			secret:    secret,
			payload:   payload,
			exp:       false,
		},
		{
			name:      "bare_hexdigest",
			signature: sha256Signature(secret, payload)[len("sha256="):],
			secret:    secret,
			payload:   payload,
			exp:       false,
		},
		{
			name:    "missing_signature",
			secret:  secret,
			payload: payload,
			exp:     false,
		},
		{
			name:      "unconfigured_secret",
			signature: sha256Signature(secret, payload),
			payload:   payload,
			exp:       false,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got, want := validGitHubSignature(tc.signature, tc.secret, tc.payload), tc.exp; got != want {
				t.Errorf("expected %t to be %t", got, want)
			}
		})
	}
}

func TestValidGitLabToken(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		token  string
		secret string
		exp    bool
	}{
		{
			name:   "matching_token",
			token:  "test-secret",
			secret: "test-secret",
			exp:    true,
		},
		{
			name:   "wrong_token",
			token:  "not-valid",
			secret: "test-secret",
			exp:    false,
		},
		{
			name:   "missing_token",
			secret: "test-secret",
			exp:    false,
		},
		{
			name:  "unconfigured_secret",
			token: "test-secret",
			exp:   false,
		},
		{
			name: "both_empty",
			exp:  false,
		},
	}

	for _, tc := range cases {
		tc := tc

		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			if got, want := validGitLabToken(tc.token, tc.secret), tc.exp; got != want {
				t.Errorf("expected %t to be %t", got, want)
			}
		})
	}
}
