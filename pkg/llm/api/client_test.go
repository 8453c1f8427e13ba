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
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap/zaptest"
)

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes its input" }
func (echoTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("echo args", map[string]*tools.JSONSchema{
		"text": tools.NewStringSchema("text to echo"),
	}, []string{"text"})
}
func (echoTool) Execute(_ context.Context, args map[string]interface{}) (*tools.Result, error) {
	text, _ := args["text"].(string)
	return &tools.Result{Success: true, Output: "echo: " + text}, nil
}

func TestChat_SingleTurn(t *testing.T) {
	var captured ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer key-1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"id":"1","choices":[{"message":{"role":"assistant","content":"hola"},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":2,"total_tokens":7}}`)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:   "key-1",
		Endpoint: server.URL,
		Logger:   zaptest.NewLogger(t),
	})
	sessionID, err := client.CreateChatSession(context.Background())
	require.NoError(t, err)

	result, err := client.Chat(context.Background(), types.ChatRequest{
		SessionID: sessionID,
		Prompt:    "saluda",
	})
	require.NoError(t, err)
	assert.Equal(t, "hola", result.Content)
	assert.Equal(t, 7, result.Usage.TotalTokens)
	assert.Equal(t, DefaultModel, captured.Model)
	assert.Equal(t, types.LevelCodeSimple.MaxTokens(), captured.MaxTokens)
}

func TestChat_HistoryCarriesAcrossTurns(t *testing.T) {
	var lastMessages []ChatMessage
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		lastMessages = req.Messages
		fmt.Fprint(w, `{"id":"1","choices":[{"message":{"role":"assistant","content":"r"},"finish_reason":"stop"}],"usage":{}}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", Endpoint: server.URL, Logger: zaptest.NewLogger(t)})
	sessionID, err := client.CreateChatSession(context.Background())
	require.NoError(t, err)

	_, err = client.Chat(context.Background(), types.ChatRequest{SessionID: sessionID, Prompt: "uno"})
	require.NoError(t, err)
	_, err = client.Chat(context.Background(), types.ChatRequest{SessionID: sessionID, Prompt: "dos"})
	require.NoError(t, err)

	// user, assistant, user
	require.Len(t, lastMessages, 3)
	assert.Equal(t, "uno", lastMessages[0].Content)
	assert.Equal(t, "assistant", lastMessages[1].Role)
	assert.Equal(t, "dos", lastMessages[2].Content)
}

func TestChatAtLevel_PromotesReasoningModel(t *testing.T) {
	var captured ChatCompletionRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		fmt.Fprint(w, `{"id":"1","choices":[{"message":{"role":"assistant","content":"r"},"finish_reason":"stop"}],"usage":{}}`)
	}))
	defer server.Close()

	client := NewClient(Config{
		APIKey:          "k",
		Endpoint:        server.URL,
		AutoSelectModel: true,
		Logger:          zaptest.NewLogger(t),
	})
	sessionID, _ := client.CreateChatSession(context.Background())

	_, err := client.ChatAtLevel(context.Background(), types.ChatRequest{SessionID: sessionID, Prompt: "p"}, types.LevelDelegation)
	require.NoError(t, err)
	assert.Equal(t, ReasoningModel, captured.Model)
	assert.Equal(t, ReasoningMaxTokens, captured.MaxTokens)

	_, err = client.ChatAtLevel(context.Background(), types.ChatRequest{SessionID: sessionID, Prompt: "p"}, types.LevelChat)
	require.NoError(t, err)
	assert.Equal(t, DefaultModel, captured.Model)
	assert.Equal(t, types.LevelChat.MaxTokens(), captured.MaxTokens)
}

func TestChat_NativeToolLoop(t *testing.T) {
	var round int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req ChatCompletionRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		round++
		if round == 1 {
			require.Len(t, req.Tools, 1)
			assert.Equal(t, "echo", req.Tools[0].Function.Name)
			fmt.Fprint(w, `{"id":"1","choices":[{"message":{"role":"assistant","tool_calls":[{"id":"c1","type":"function","function":{"name":"echo","arguments":"{\"text\":\"hola\"}"}}]},"finish_reason":"tool_calls"}],"usage":{}}`)
			return
		}
		// Second round sees the tool result appended.
		last := req.Messages[len(req.Messages)-1]
		assert.Equal(t, "tool", last.Role)
		assert.Equal(t, "c1", last.ToolCallID)
		assert.Equal(t, "echo: hola", last.Content)
		fmt.Fprint(w, `{"id":"2","choices":[{"message":{"role":"assistant","content":"listo"},"finish_reason":"stop"}],"usage":{"total_tokens":9}}`)
	}))
	defer server.Close()

	registry := tools.NewRegistry()
	registry.Register(echoTool{})

	client := NewClient(Config{
		APIKey:     "k",
		Endpoint:   server.URL,
		Registry:   registry,
		Dispatcher: tools.NewDispatcher(registry, zaptest.NewLogger(t)),
		Logger:     zaptest.NewLogger(t),
	})
	sessionID, _ := client.CreateChatSession(context.Background())

	result, err := client.Chat(context.Background(), types.ChatRequest{SessionID: sessionID, Prompt: "usa echo"})
	require.NoError(t, err)
	assert.Equal(t, "listo", result.Content)
	assert.Equal(t, 2, round)
}

func TestChat_TokenExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "bad", Endpoint: server.URL, Logger: zaptest.NewLogger(t)})
	sessionID, _ := client.CreateChatSession(context.Background())

	_, err := client.Chat(context.Background(), types.ChatRequest{SessionID: sessionID, Prompt: "p"})
	assert.ErrorIs(t, err, types.ErrTokenExpired)
}

func TestChat_APIErrorPayload(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":{"message":"bad model","type":"invalid_request_error"}}`)
	}))
	defer server.Close()

	client := NewClient(Config{APIKey: "k", Endpoint: server.URL, Logger: zaptest.NewLogger(t)})
	sessionID, _ := client.CreateChatSession(context.Background())

	_, err := client.Chat(context.Background(), types.ChatRequest{SessionID: sessionID, Prompt: "p"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad model")
}
