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

// Package web implements the browser-session transport: PoW-guarded
// streaming completions against the backend's own web API, with stall
// detection and automatic session recovery.
package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/llm/pow"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// Upstream endpoint paths.
const (
	pathCreateSession = "/api/v0/chat_session/create"
	pathPowChallenge  = "/api/v0/chat/create_pow_challenge"
	pathCompletion    = "/api/v0/chat/completion"

	powHeaderName = "x-ds-pow-response"
)

// Default timeouts.
const (
	DefaultBaseURL          = "https://chat.deepseek.com"
	DefaultConnectTimeout   = 30 * time.Second
	DefaultStallTimeout     = 90 * time.Second
	DefaultChallengeTimeout = 10 * time.Second
	DefaultMaxStallRetries  = 3
)

// Config holds configuration for the web-session client.
type Config struct {
	BaseURL     string
	BearerToken string
	Cookies     string

	// Solver computes PoW answers; required.
	Solver pow.Solver

	// ConnectTimeout bounds connection establishment. Default: 30s
	ConnectTimeout time.Duration

	// StallTimeout is the per-chunk read deadline. Default: 90s
	StallTimeout time.Duration

	// ChallengeTimeout bounds the PoW challenge request. Default: 10s
	ChallengeTimeout time.Duration

	// ThinkingEnabled requests extended reasoning
	ThinkingEnabled bool

	// RateLimiter guards interactive calls; optional
	RateLimiter *llm.RateLimiter

	Logger *zap.Logger
}

// Client is the browser-session transport. One client owns one PoW solver
// instance; calls against the same client may run concurrently, each with
// its own streaming response.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *zap.Logger
}

// NewClient creates a web-session client.
func NewClient(config Config) (*Client, error) {
	if config.Solver == nil {
		return nil, fmt.Errorf("web client requires a pow solver")
	}
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = DefaultConnectTimeout
	}
	if config.StallTimeout == 0 {
		config.StallTimeout = DefaultStallTimeout
	}
	if config.ChallengeTimeout == 0 {
		config.ChallengeTimeout = DefaultChallengeTimeout
	}
	if config.Logger == nil {
		config.Logger = log.Logger()
	}

	transport := &http.Transport{
		DialContext: (&net.Dialer{
			Timeout: config.ConnectTimeout,
		}).DialContext,
		ResponseHeaderTimeout: config.StallTimeout,
	}

	return &Client{
		config: config,
		// No global client timeout: streams are bounded by the
		// per-chunk stall watchdog instead.
		httpClient: &http.Client{Transport: transport},
		logger:     config.Logger,
	}, nil
}

// Name returns the transport name.
func (c *Client) Name() string { return "web" }

// CreateChatSession opens a fresh upstream conversation.
func (c *Client) CreateChatSession(ctx context.Context) (string, error) {
	body, status, err := c.postJSON(ctx, pathCreateSession, map[string]interface{}{}, "")
	if err != nil {
		return "", fmt.Errorf("failed to create chat session: %w", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return "", types.ErrTokenExpired
	}
	if status != http.StatusOK {
		return "", &types.SessionDeadError{Cause: fmt.Errorf("create session returned status %d", status)}
	}

	var resp struct {
		Data struct {
			BizData struct {
				ID json.Number `json:"id"`
			} `json:"biz_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &types.SessionDeadError{Cause: fmt.Errorf("unparseable create response: %w", err)}
	}
	id := resp.Data.BizData.ID.String()
	if id == "" {
		return "", &types.SessionDeadError{Cause: fmt.Errorf("create response carried no session id")}
	}

	c.logger.Debug("created upstream chat session", zap.String("session_id", id))
	return id, nil
}

// Chat drives one user turn to a terminal response with auto-recovery: on
// a stall or an empty response the upstream session is re-created (parent
// chain discarded) and the same message retried, up to MaxStallRetries
// extra attempts. SessionDead gets the same treatment. ErrTokenExpired is
// never retried.
func (c *Client) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResult, error) {
	retries := req.MaxStallRetries
	if retries <= 0 {
		retries = DefaultMaxStallRetries
	}

	sessionID := req.SessionID
	parentID := req.ParentMessageID

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			// Fresh session: the previous one is stalled or dead, and
			// its parent chain goes with it.
			fresh, err := c.CreateChatSession(ctx)
			if err != nil {
				return nil, err
			}
			sessionID = fresh
			parentID = ""
			c.logger.Warn("retrying with fresh upstream session",
				zap.Int("attempt", attempt),
				zap.String("session_id", sessionID),
				zap.Error(lastErr),
			)
		}

		result, err := c.sendOnce(ctx, sessionID, parentID, req.Prompt, req.ThinkingEnabled)
		if err == nil {
			result.SessionID = sessionID
			return result, nil
		}
		if err == types.ErrTokenExpired || ctx.Err() != nil {
			return nil, err
		}
		if !types.IsStall(err) && !types.IsSessionDead(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("chat failed after %d attempts: %w", retries+1, lastErr)
}

// sendOnce performs exactly one PoW-guarded completion request and decodes
// the stream to a terminal response.
func (c *Client) sendOnce(ctx context.Context, sessionID, parentID, prompt string, thinking bool) (*types.ChatResult, error) {
	if c.config.RateLimiter != nil {
		if err := c.config.RateLimiter.WaitIfNeeded(ctx); err != nil {
			return nil, err
		}
	}

	// PoW freshness: one challenge, solved immediately before this one
	// request. Challenges are never reused.
	header, err := c.powHeader(ctx)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"chat_session_id":   sessionID,
		"parent_message_id": nullableString(parentID),
		"prompt":            prompt,
		"ref_file_ids":      []string{},
		"thinking_enabled":  thinking,
		"search_enabled":    true,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal completion request: %w", err)
	}

	// Stream lifetime is governed by the stall watchdog, not a fixed
	// request timeout.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(streamCtx, http.MethodPost, c.config.BaseURL+pathCompletion, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create completion request: %w", err)
	}
	c.setHeaders(httpReq)
	httpReq.Header.Set(powHeaderName, header)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, &types.StallError{SessionID: sessionID, Elapsed: "connect"}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return nil, types.ErrTokenExpired
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, &types.SessionDeadError{
			SessionID: sessionID,
			Cause:     fmt.Errorf("completion returned status %d: %s", resp.StatusCode, msg),
		}
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("completion returned status %d: %s", resp.StatusCode, msg)
	}

	return decodeStream(streamDecodeParams{
		body:         resp.Body,
		cancel:       cancel,
		sessionID:    sessionID,
		stallTimeout: c.config.StallTimeout,
		logger:       c.logger,
	})
}

// ProbeChallenge fetches and solves a PoW challenge without sending a
// message. The health manager uses it as a cheap validity probe.
func (c *Client) ProbeChallenge(ctx context.Context) error {
	_, err := c.powHeader(ctx)
	return err
}

// powHeader obtains a fresh challenge and returns the encoded header value.
func (c *Client) powHeader(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.ChallengeTimeout)
	defer cancel()

	body, status, err := c.postJSON(ctx, pathPowChallenge, map[string]interface{}{
		"target_path": pathCompletion,
	}, "")
	if err != nil {
		return "", fmt.Errorf("failed to obtain pow challenge: %w", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return "", types.ErrTokenExpired
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("pow challenge returned status %d", status)
	}

	var resp struct {
		Data struct {
			BizData struct {
				Challenge pow.Challenge `json:"challenge"`
			} `json:"biz_data"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("unparseable pow challenge: %w", err)
	}

	answer, err := c.config.Solver.Solve(&resp.Data.BizData.Challenge)
	if err != nil {
		return "", fmt.Errorf("failed to solve pow challenge: %w", err)
	}
	return pow.HeaderValue(answer)
}

// postJSON issues one JSON POST and returns (body, status).
func (c *Client) postJSON(ctx context.Context, path string, payload interface{}, powHeader string) ([]byte, int, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req)
	if powHeader != "" {
		req.Header.Set(powHeaderName, powHeader)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	return respBody, resp.StatusCode, nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.BearerToken)
	if c.config.Cookies != "" {
		req.Header.Set("Cookie", c.config.Cookies)
	}
}

func nullableString(s string) interface{} {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

var _ types.SessionTransport = (*Client)(nil)
