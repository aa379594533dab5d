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
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // Required for the legacy X-Hub-Signature scheme.
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"hash"
	"strings"
)

const (
	sha256Prefix = "sha256="
	sha1Prefix   = "sha1="
)

// validGitHubSignature validates the request signature against the HMAC
// hexdigest of the raw payload bytes under the given secret. Both the
// current sha256 scheme and the legacy sha1 scheme are accepted; an
// unknown prefix, a missing header or an unconfigured secret all fail.
func validGitHubSignature(signature, secret string, payload []byte) bool {
	if signature == "" || secret == "" {
		return false
	}

	var algo func() hash.Hash
	var prefix string
	switch {
	case strings.HasPrefix(signature, sha256Prefix):
		algo, prefix = sha256.New, sha256Prefix
	case strings.HasPrefix(signature, sha1Prefix):
		algo, prefix = sha1.New, sha1Prefix
	default:
		return false
	}

	mac := hmac.New(algo, []byte(secret))
	mac.Write(payload)
	got := prefix + hex.EncodeToString(mac.Sum(nil))
	return subtle.ConstantTimeCompare([]byte(signature), []byte(got)) == 1
}

// validGitLabToken compares the presented token against the configured
// secret in constant time.
func validGitLabToken(token, secret string) bool {
	if secret == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(secret)) == 1
}
