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
package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"

	"github.com/google/uuid"
	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// toolCallFence matches a fenced block labelled tool_call. The body may be
// a single JSON object or an array of objects.
var toolCallFence = regexp.MustCompile("(?s)```tool_call\\s*\\n(.*?)```")

// rawCall is the textual wire shape emitted by the web-mode assistant.
// Both "args" and "arguments" are accepted as the argument key.
type rawCall struct {
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
	Arguments map[string]interface{} `json:"arguments"`
}

func (rc rawCall) args() map[string]interface{} {
	if rc.Args != nil {
		return rc.Args
	}
	if rc.Arguments != nil {
		return rc.Arguments
	}
	return map[string]interface{}{}
}

// ParseCalls extracts tool invocations from a web-mode response. All
// tool_call fences in the response are scanned; calls identical after
// canonicalization are collapsed to one. Malformed blocks are dropped with
// a log entry and parsing continues.
func ParseCalls(response string) []types.ToolCall {
	matches := toolCallFence.FindAllStringSubmatch(response, -1)
	if len(matches) == 0 {
		return nil
	}

	var raw []rawCall
	for _, m := range matches {
		body := m[1]
		parsed, err := parseBlock(body)
		if err != nil {
			log.Warn("dropping malformed tool_call block", zap.Error(err))
			continue
		}
		raw = append(raw, parsed...)
	}

	seen := make(map[string]bool)
	var calls []types.ToolCall
	for _, rc := range raw {
		if rc.Tool == "" {
			continue
		}
		key := Canonical(rc.Tool, rc.args())
		if seen[key] {
			continue
		}
		seen[key] = true
		calls = append(calls, types.ToolCall{
			ID:   uuid.NewString(),
			Name: rc.Tool,
			Args: rc.args(),
		})
	}

	if len(raw) > len(calls) {
		// Literal report format consumed by the controller's logs.
		fmt.Fprintf(os.Stderr, "[dedup] %d tool_calls -> %d unicos\n", len(raw), len(calls))
	}

	return calls
}

// parseBlock parses one fence body as either a single object or an array.
func parseBlock(body string) ([]rawCall, error) {
	var arr []rawCall
	if err := json.Unmarshal([]byte(body), &arr); err == nil {
		return arr, nil
	}

	var one rawCall
	if err := json.Unmarshal([]byte(body), &one); err != nil {
		return nil, fmt.Errorf("tool_call block is neither object nor array: %w", err)
	}
	return []rawCall{one}, nil
}

// Canonical returns the canonical identity of a call: the compact JSON of
// {tool, args} with keys sorted. encoding/json sorts map keys, so
// marshaling the pair yields a stable key.
func Canonical(tool string, args map[string]interface{}) string {
	payload := map[string]interface{}{
		"tool": tool,
		"args": args,
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return tool
	}
	return string(b)
}
