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
package types

import (
	"errors"
	"fmt"
)

// ErrTokenExpired is returned when the upstream rejects credentials
// (401/403). It is never retried inside a transport; the caller must
// surface a re-login prompt.
var ErrTokenExpired = errors.New("session token expired, re-login required")

// SessionDeadError indicates the upstream rejected a chat session
// identifier. Transports retry once with a fresh session.
type SessionDeadError struct {
	SessionID string
	Cause     error
}

func (e *SessionDeadError) Error() string {
	return fmt.Sprintf("upstream session %s is dead: %v", e.SessionID, e.Cause)
}

func (e *SessionDeadError) Unwrap() error { return e.Cause }

// StallError indicates the response stream produced no bytes for longer
// than the read timeout, disconnected mid-stream, or terminated cleanly
// with zero content.
type StallError struct {
	SessionID string
	Elapsed   string
	Empty     bool
}

func (e *StallError) Error() string {
	if e.Empty {
		return fmt.Sprintf("empty response from session %s", e.SessionID)
	}
	return fmt.Sprintf("stream stalled on session %s after %s", e.SessionID, e.Elapsed)
}

// IsSessionDead reports whether err wraps a SessionDeadError.
func IsSessionDead(err error) bool {
	var sd *SessionDeadError
	return errors.As(err, &sd)
}

// IsStall reports whether err wraps a StallError.
func IsStall(err error) bool {
	var st *StallError
	return errors.As(err, &st)
}
