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

// Package api implements the direct, paid request/response transport. The
// backend natively returns tool calls; this client runs the tool loop and
// emulates the web transport's parent-message chaining with local session
// histories so both transports satisfy the same contract.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// Default configuration values.
const (
	DefaultEndpoint       = "https://api.deepseek.com/chat/completions"
	DefaultModel          = "deepseek-chat"
	ReasoningModel        = "deepseek-reasoner"
	ReasoningMaxTokens    = 65536
	DefaultTimeout        = 120 * time.Second
	DefaultMaxToolSteps   = 10
	defaultApiTemperature = 1.0
)

// Config holds configuration for the direct-API client.
type Config struct {
	APIKey   string
	Model    string        // Default: deepseek-chat
	Endpoint string        // Default: DefaultEndpoint
	Timeout  time.Duration // Default: 120s

	// AutoSelectModel promotes code_complex/delegation tasks to the
	// reasoning model with its larger output cap.
	AutoSelectModel bool

	// MaxToolSteps bounds the native tool loop per turn. Default: 10
	MaxToolSteps int

	// Dispatcher executes native tool calls; optional. Without one,
	// tool calls terminate the turn and surface in the result.
	Dispatcher *tools.Dispatcher

	// Registry supplies tool descriptors for the tools parameter
	Registry *tools.Registry

	// RateLimiter guards interactive calls; optional
	RateLimiter *llm.RateLimiter

	Logger *zap.Logger
}

// Client implements the direct-API transport.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger

	// Local conversation histories, keyed by emulated session id.
	// The upstream API is stateless; parent chaining is ours to keep.
	mu       sync.Mutex
	sessions map[string][]ChatMessage
}

// NewClient creates a direct-API client.
func NewClient(config Config) *Client {
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout == 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxToolSteps == 0 {
		config.MaxToolSteps = DefaultMaxToolSteps
	}
	if config.Logger == nil {
		config.Logger = log.Logger()
	}

	return &Client{
		config:     config,
		httpClient: &http.Client{Timeout: config.Timeout},
		logger:     config.Logger,
		sessions:   make(map[string][]ChatMessage),
	}
}

// Name returns the transport name.
func (c *Client) Name() string { return "api" }

// CreateChatSession opens a fresh emulated session.
func (c *Client) CreateChatSession(_ context.Context) (string, error) {
	id := uuid.NewString()
	c.mu.Lock()
	c.sessions[id] = nil
	c.mu.Unlock()
	return id, nil
}

// Chat drives one user turn at the default level.
func (c *Client) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResult, error) {
	return c.ChatAtLevel(ctx, req, types.LevelCodeSimple)
}

// ChatAtLevel drives one user turn with level-scaled model selection and
// output caps. Tool calls returned by the backend are dispatched and fed
// back as role=tool messages for up to MaxToolSteps rounds.
func (c *Client) ChatAtLevel(ctx context.Context, req types.ChatRequest, level types.TaskLevel) (*types.ChatResult, error) {
	history := c.history(req.SessionID)
	history = append(history, ChatMessage{Role: "user", Content: req.Prompt})

	model, maxTokens := c.selectModel(level)

	var final *ChatCompletionResponse
	for step := 0; step < c.config.MaxToolSteps; step++ {
		apiReq := &ChatCompletionRequest{
			Model:       model,
			Messages:    history,
			MaxTokens:   maxTokens,
			Temperature: defaultApiTemperature,
		}
		if apiTools := c.apiTools(); len(apiTools) > 0 {
			apiReq.Tools = apiTools
			apiReq.ToolChoice = "auto"
		}

		resp, err := c.callAPI(ctx, apiReq)
		if err != nil {
			return nil, err
		}
		if len(resp.Choices) == 0 {
			return nil, fmt.Errorf("API returned no choices")
		}

		msg := resp.Choices[0].Message
		history = append(history, msg)

		// Iterate over the tool calls of the message just appended:
		// always the last assistant message.
		if len(msg.ToolCalls) == 0 || c.config.Dispatcher == nil {
			final = resp
			break
		}

		calls := convertToolCalls(msg.ToolCalls)
		executions, _ := c.config.Dispatcher.Dispatch(ctx, calls)
		for _, exec := range executions {
			content := exec.Result.Output
			if !exec.Result.Success {
				content = "ERROR: " + exec.Result.Error
			}
			history = append(history, ChatMessage{
				Role:       "tool",
				Content:    content,
				ToolCallID: exec.Call.ID,
			})
		}
	}

	if final == nil {
		return nil, fmt.Errorf("tool loop exceeded %d steps", c.config.MaxToolSteps)
	}

	c.setHistory(req.SessionID, history)

	messageID := uuid.NewString()
	return &types.ChatResult{
		Content:   final.Choices[0].Message.Content,
		MessageID: messageID,
		SessionID: req.SessionID,
		Usage: types.Usage{
			InputTokens:  final.Usage.PromptTokens,
			OutputTokens: final.Usage.CompletionTokens,
			TotalTokens:  final.Usage.TotalTokens,
		},
	}, nil
}

// selectModel applies the auto-selection policy: the reasoning variant
// with its much larger output cap for complex work, level-scaled caps on
// the default model otherwise.
func (c *Client) selectModel(level types.TaskLevel) (string, int) {
	if c.config.AutoSelectModel && level.AtLeast(types.LevelCodeComplex) {
		return ReasoningModel, ReasoningMaxTokens
	}
	return c.config.Model, level.MaxTokens()
}

func (c *Client) history(sessionID string) []ChatMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	stored := c.sessions[sessionID]
	out := make([]ChatMessage, len(stored))
	copy(out, stored)
	return out
}

func (c *Client) setHistory(sessionID string, history []ChatMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessions[sessionID] = history
}

// apiTools converts registered tool descriptors to the wire format.
func (c *Client) apiTools() []Tool {
	if c.config.Registry == nil {
		return nil
	}
	descriptors := c.config.Registry.Descriptors()
	out := make([]Tool, 0, len(descriptors))
	for _, d := range descriptors {
		params := map[string]interface{}{"type": "object"}
		if d.Schema != nil {
			raw, err := d.Schema.ToJSON()
			if err == nil {
				var m map[string]interface{}
				if json.Unmarshal(raw, &m) == nil {
					params = m
				}
			}
		}
		out = append(out, Tool{
			Type: "function",
			Function: FunctionDef{
				Name:        d.Name,
				Description: d.Description,
				Parameters:  params,
			},
		})
	}
	return out
}

func convertToolCalls(calls []ToolCall) []types.ToolCall {
	out := make([]types.ToolCall, 0, len(calls))
	for _, tc := range calls {
		var args map[string]interface{}
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			args = map[string]interface{}{"_raw": tc.Function.Arguments}
		}
		id := tc.ID
		if id == "" {
			id = uuid.NewString()
		}
		out = append(out, types.ToolCall{ID: id, Name: tc.Function.Name, Args: args})
	}
	return out
}

// callAPI makes one HTTP request to the completions endpoint.
func (c *Client) callAPI(ctx context.Context, req *ChatCompletionRequest) (*ChatCompletionResponse, error) {
	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.WaitIfNeeded(ctx); err != nil {
			return nil, err
		}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.Endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden {
		return nil, types.ErrTokenExpired
	}

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp ChatCompletionResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("API error: %s (type: %s)", resp.Error.Message, resp.Error.Type)
	}
	if httpResp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", httpResp.StatusCode, string(respBody))
	}

	return &resp, nil
}

var _ types.SessionTransport = (*Client)(nil)
