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
package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/r3labs/sse/v2"
	"github.com/teradata-labs/weft/internal/tokens"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// Streaming decoder states. Content and thinking deltas interleave until a
// terminal marker (finish event, [DONE], or stream close).
type streamState int

const (
	stateInit streamState = iota
	stateThinking
	stateContent
	stateTerminal
)

// maxEventSize bounds a single SSE event block.
const maxEventSize = 1 << 20

// heartbeatInterval is how often a thinking heartbeat goes to stderr.
const heartbeatInterval = 10 * time.Second

type streamDecodeParams struct {
	body         io.Reader
	cancel       context.CancelFunc
	sessionID    string
	stallTimeout time.Duration
	logger       *zap.Logger
}

// streamEvent is the typed shape of one data payload: a path and a string
// delta. Metadata payloads carry message ids instead and are inspected
// generically.
type streamEvent struct {
	P string          `json:"p"`
	V json.RawMessage `json:"v"`
}

// decodeStream runs the SSE state machine to a terminal response.
//
// Termination:
//   - "event: finish"            -> terminal (reason finish)
//   - "data: [DONE]"             -> terminal marker, keep draining
//   - stream close after either  -> done
//   - no chunk for stallTimeout  -> StallError with diagnostic dump
//   - mid-stream transport error -> StallError
//   - clean end with no content  -> StallError (empty response)
func decodeStream(p streamDecodeParams) (*types.ChatResult, error) {
	ring := newDiagRing(30)

	var stalled atomic.Bool
	watchdog := time.AfterFunc(p.stallTimeout, func() {
		stalled.Store(true)
		p.cancel()
	})
	defer watchdog.Stop()

	reader := sse.NewEventStreamReader(&watchdogReader{
		inner:    p.body,
		watchdog: watchdog,
		timeout:  p.stallTimeout,
	}, maxEventSize)

	var content strings.Builder
	state := stateInit
	reason := ""
	messageID := ""
	decodeErrors := 0
	lastHeartbeat := time.Now()

	for state != stateTerminal {
		raw, err := reader.ReadEvent()
		if err != nil {
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				break
			}
			// Transport error mid-stream. The watchdog canceling the
			// request surfaces here too.
			elapsed := p.stallTimeout.String()
			if !stalled.Load() {
				elapsed = "disconnect"
			}
			ring.dump(p.sessionID)
			return nil, &types.StallError{SessionID: p.sessionID, Elapsed: elapsed}
		}

		eventName, data := splitEvent(raw)
		ring.add(string(raw))

		if eventName == "finish" {
			reason = "finish"
			state = stateTerminal
			continue
		}
		if data == "" {
			continue
		}
		if data == "[DONE]" {
			// Terminal marker: mark and keep draining until close.
			reason = "done"
			continue
		}

		var ev streamEvent
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			decodeErrors++
			ring.add(fmt.Sprintf("decode error: %v", err))
			continue
		}

		if id := extractMessageID([]byte(data)); id != "" {
			messageID = id
		}

		switch ev.P {
		case "response/thinking_content":
			state = stateThinking
			lastHeartbeat = heartbeat(lastHeartbeat)
		case "response/content":
			state = stateContent
			content.WriteString(stringDelta(ev.V))
		case "":
			switch state {
			case stateContent:
				content.WriteString(stringDelta(ev.V))
			case stateThinking:
				lastHeartbeat = heartbeat(lastHeartbeat)
			}
		}
	}

	if decodeErrors > 0 {
		p.logger.Debug("stream finished with decode errors",
			zap.Int("count", decodeErrors),
			zap.String("session_id", p.sessionID),
		)
	}

	text := content.String()
	if len(text) == 0 {
		// Clean termination with zero content chars: silent-empty
		// response, recovered by the Chat wrapper.
		ring.dump(p.sessionID)
		return nil, &types.StallError{SessionID: p.sessionID, Empty: true}
	}

	if reason == "" {
		reason = "close"
	}
	return &types.ChatResult{
		Content:   text,
		MessageID: messageID,
		Usage: types.Usage{
			OutputTokens: tokens.Approximate(text),
			TotalTokens:  tokens.Approximate(text),
		},
	}, nil
}

// watchdogReader resets the stall watchdog on every successful read.
type watchdogReader struct {
	inner    io.Reader
	watchdog *time.Timer
	timeout  time.Duration
}

func (r *watchdogReader) Read(p []byte) (int, error) {
	n, err := r.inner.Read(p)
	if n > 0 {
		r.watchdog.Reset(r.timeout)
	}
	return n, err
}

// splitEvent separates the event name and data payload of one raw SSE
// event block.
func splitEvent(raw []byte) (event, data string) {
	var dataLines []string
	for _, line := range strings.Split(string(raw), "\n") {
		switch {
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			dataLines = append(dataLines, strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}
	return event, strings.Join(dataLines, "\n")
}

// stringDelta decodes a raw value as a string delta; non-string values
// contribute nothing.
func stringDelta(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// extractMessageID pulls response_message_id (top level) or
// response.message_id (nested) out of a data payload.
func extractMessageID(data []byte) string {
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		return ""
	}

	if raw, ok := generic["response_message_id"]; ok {
		return numberOrString(raw)
	}
	if raw, ok := generic["response"]; ok {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(raw, &nested); err == nil {
			if id, ok := nested["message_id"]; ok {
				return numberOrString(id)
			}
		}
	}
	return ""
}

func numberOrString(raw json.RawMessage) string {
	var num json.Number
	if err := json.Unmarshal(raw, &num); err == nil {
		return num.String()
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

// heartbeat prints a thinking tick to stderr at most once per interval.
func heartbeat(last time.Time) time.Time {
	if time.Since(last) >= heartbeatInterval {
		fmt.Fprintf(os.Stderr, "[thinking] %s\n", time.Now().Format("15:04:05"))
		return time.Now()
	}
	return last
}

// diagRing is a bounded ring of recent stream events, dumped to stderr on
// stall for postmortem.
type diagRing struct {
	entries []string
	max     int
}

func newDiagRing(max int) *diagRing {
	return &diagRing{max: max}
}

func (r *diagRing) add(entry string) {
	if len(entry) > 500 {
		entry = entry[:500] + "..."
	}
	r.entries = append(r.entries, entry)
	if len(r.entries) > r.max {
		r.entries = r.entries[len(r.entries)-r.max:]
	}
}

func (r *diagRing) dump(sessionID string) {
	fmt.Fprintf(os.Stderr, "--- SSE diagnostic dump (session %s, last %d events) ---\n", sessionID, len(r.entries))
	for _, e := range r.entries {
		fmt.Fprintln(os.Stderr, e)
	}
	fmt.Fprintln(os.Stderr, "--- end dump ---")
}
