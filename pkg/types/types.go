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

// Package types contains shared types used across the weft runtime.
// This package breaks import cycles by providing common types that the
// transport, orchestrator and pattern packages all depend on.
package types

import (
	"context"
)

// TaskLevel is the coarse complexity classification of a task, ordered from
// cheapest to most expensive. It drives model selection, token budgets and
// skill injection.
type TaskLevel int

const (
	LevelChat TaskLevel = iota
	LevelSimple
	LevelCodeSimple
	LevelCodeComplex
	LevelDelegation
)

// String returns the canonical name of the level.
func (l TaskLevel) String() string {
	switch l {
	case LevelChat:
		return "chat"
	case LevelSimple:
		return "simple"
	case LevelCodeSimple:
		return "code_simple"
	case LevelCodeComplex:
		return "code_complex"
	case LevelDelegation:
		return "delegation"
	default:
		return "unknown"
	}
}

// AtLeast reports whether the level is at least the given one.
func (l TaskLevel) AtLeast(other TaskLevel) bool {
	return l >= other
}

// MaxTokens returns the output token cap for the level on the default model.
func (l TaskLevel) MaxTokens() int {
	switch l {
	case LevelChat:
		return 1024
	case LevelSimple:
		return 2048
	case LevelCodeSimple:
		return 4096
	case LevelCodeComplex:
		return 8192
	case LevelDelegation:
		return 16384
	default:
		return 4096
	}
}

// ToolCall represents a tool invocation requested by the LLM.
type ToolCall struct {
	// ID is a unique identifier for this call (synthetic in web mode)
	ID string

	// Name is the tool name
	Name string

	// Args contains the tool parameters
	Args map[string]interface{}
}

// Message represents a single message in a direct-API conversation.
type Message struct {
	// Role is the message sender (system, user, assistant, tool)
	Role string

	// Content is the message text
	Content string

	// ToolCalls contains tool invocations (if role is assistant)
	ToolCalls []ToolCall

	// ToolCallID is the id of the call this result answers (if role is tool)
	ToolCallID string
}

// Usage tracks token usage for reporting. Values are estimates.
type Usage struct {
	InputTokens  int
	OutputTokens int
	TotalTokens  int
}

// ChatRequest is one user turn against a stateful upstream session.
type ChatRequest struct {
	// SessionID is the upstream chat session identifier
	SessionID string

	// ParentMessageID chains this turn to the previous assistant message.
	// Empty for the first turn of a session.
	ParentMessageID string

	// Prompt is the user message
	Prompt string

	// ThinkingEnabled requests extended reasoning from the backend
	ThinkingEnabled bool

	// MaxStallRetries bounds automatic recovery on stalls and empty
	// responses. Zero means a single attempt.
	MaxStallRetries int
}

// ChatResult is the terminal outcome of one user turn.
type ChatResult struct {
	// Content is the full assistant text
	Content string

	// MessageID is the id of the assistant message, used for chaining
	MessageID string

	// SessionID is the upstream session that produced the response. It
	// differs from the request's session id when stall recovery created a
	// fresh session.
	SessionID string

	// Usage holds estimated token counts
	Usage Usage
}

// SessionTransport is a stateful upstream conversation backend. Both the
// browser-session transport and the direct-API transport (which emulates
// parent chaining locally) implement it.
type SessionTransport interface {
	// CreateChatSession opens a fresh upstream conversation and returns
	// its identifier.
	CreateChatSession(ctx context.Context) (string, error)

	// Chat drives one user turn to a terminal response, including any
	// internal recovery. Mode-specific loops (tool dispatch, review) are
	// layered above.
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)

	// Name returns the transport name ("web" or "api").
	Name() string
}
