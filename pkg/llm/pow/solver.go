// Copyright 2026 Teradata
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package pow solves the per-request Proof-of-Work challenges demanded by
// the browser-session backend. The hash lives in an upstream-supplied
// WebAssembly module; this package keeps the whole allocator and stack
// pointer choreography behind the Solver interface.
package pow

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// Challenge is one PoW challenge produced by the challenge endpoint.
// Challenges are consumed once; never reuse a solved challenge.
type Challenge struct {
	Algorithm  string  `json:"algorithm"`
	Challenge  string  `json:"challenge"`
	Salt       string  `json:"salt"`
	ExpireAt   int64   `json:"expire_at"`
	Difficulty float64 `json:"difficulty"`
	Signature  string  `json:"signature"`
	TargetPath string  `json:"target_path"`
}

// Prefix returns the nonce prefix the solver hashes against:
// "{salt}_{expireAt}_".
func (c *Challenge) Prefix() string {
	return fmt.Sprintf("%s_%d_", c.Salt, c.ExpireAt)
}

// Answer is a solved challenge ready for header encoding.
type Answer struct {
	Algorithm  string `json:"algorithm"`
	Challenge  string `json:"challenge"`
	Salt       string `json:"salt"`
	Answer     int64  `json:"answer"`
	Signature  string `json:"signature"`
	TargetPath string `json:"target_path"`
}

// Solver solves PoW challenges.
type Solver interface {
	// Solve computes the nonce for a challenge. It returns a protocol
	// error when the module reports failure (status 0).
	Solve(challenge *Challenge) (*Answer, error)
}

// HeaderValue encodes a solved answer as the completion request header
// value: base64 of the compact JSON of the answer.
func HeaderValue(answer *Answer) (string, error) {
	payload, err := json.Marshal(answer)
	if err != nil {
		return "", fmt.Errorf("failed to encode pow answer: %w", err)
	}
	return base64.StdEncoding.EncodeToString(payload), nil
}
