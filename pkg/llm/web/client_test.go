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
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/weft/pkg/llm/pow"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap/zaptest"
)

// staticSolver returns a fixed nonce without touching WASM.
type staticSolver struct{}

func (staticSolver) Solve(c *pow.Challenge) (*pow.Answer, error) {
	return &pow.Answer{
		Algorithm:  c.Algorithm,
		Challenge:  c.Challenge,
		Salt:       c.Salt,
		Answer:     42,
		Signature:  c.Signature,
		TargetPath: c.TargetPath,
	}, nil
}

const challengeBody = `{"data":{"biz_data":{"challenge":{` +
	`"algorithm":"DeepSeekHashV1","challenge":"abc","salt":"s",` +
	`"expire_at":1999999999,"difficulty":144000,"signature":"sig",` +
	`"target_path":"/api/v0/chat/completion"}}}}`

func newTestClient(t *testing.T, baseURL string, stallTimeout time.Duration) *Client {
	t.Helper()
	client, err := NewClient(Config{
		BaseURL:      baseURL,
		BearerToken:  "token",
		Cookies:      "c=1",
		Solver:       staticSolver{},
		StallTimeout: stallTimeout,
		Logger:       zaptest.NewLogger(t),
	})
	require.NoError(t, err)
	return client
}

func TestCreateChatSession(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, pathCreateSession, r.URL.Path)
		assert.Equal(t, "Bearer token", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{"data":{"biz_data":{"id":"sess-123"}}}`)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	id, err := client.CreateChatSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sess-123", id)
}

func TestCreateChatSession_TokenExpired(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	_, err := client.CreateChatSession(context.Background())
	assert.ErrorIs(t, err, types.ErrTokenExpired)
}

func TestChat_StreamsContentAndMessageID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathPowChallenge:
			fmt.Fprint(w, challengeBody)
		case pathCompletion:
			// One PoW header exactly per completion request.
			assert.NotEmpty(t, r.Header.Get(powHeaderName))
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			fmt.Fprint(w, "data: {\"response_message_id\": 77}\n\n")
			fmt.Fprint(w, "data: {\"p\": \"response/thinking_content\", \"v\": \"hm\"}\n\n")
			fmt.Fprint(w, "data: {\"p\": \"response/content\", \"v\": \"Hola \"}\n\n")
			fmt.Fprint(w, "data: {\"v\": \"mundo\"}\n\n")
			fmt.Fprint(w, "event: finish\ndata: {}\n\n")
			flusher.Flush()
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	result, err := client.Chat(context.Background(), types.ChatRequest{
		SessionID: "sess-1",
		Prompt:    "hola",
	})
	require.NoError(t, err)
	assert.Equal(t, "Hola mundo", result.Content)
	assert.Equal(t, "77", result.MessageID)
	assert.Equal(t, "sess-1", result.SessionID)
}

func TestChat_RecoversFromStalls(t *testing.T) {
	var completions atomic.Int32
	var creates atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathPowChallenge:
			fmt.Fprint(w, challengeBody)
		case pathCreateSession:
			creates.Add(1)
			fmt.Fprintf(w, `{"data":{"biz_data":{"id":"fresh-%d"}}}`, creates.Load())
		case pathCompletion:
			n := completions.Add(1)
			w.Header().Set("Content-Type", "text/event-stream")
			flusher := w.(http.Flusher)
			if n <= 2 {
				// Stall: headers out, then silence past the deadline.
				flusher.Flush()
				time.Sleep(600 * time.Millisecond)
				return
			}
			fmt.Fprint(w, "data: {\"response_message_id\": 3}\n\n")
			fmt.Fprint(w, "data: {\"p\": \"response/content\", \"v\": \"ok\"}\n\n")
			fmt.Fprint(w, "event: finish\ndata: {}\n\n")
			flusher.Flush()
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, 150*time.Millisecond)
	result, err := client.Chat(context.Background(), types.ChatRequest{
		SessionID:       "sess-orig",
		ParentMessageID: "old-parent",
		Prompt:          "hola",
		MaxStallRetries: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, "ok", result.Content)
	assert.Equal(t, "3", result.MessageID)
	// Two stalls forced two fresh sessions; the result points at the last.
	assert.Equal(t, int32(2), creates.Load())
	assert.Equal(t, "fresh-2", result.SessionID)
}

func TestChat_EmptyResponseRetried(t *testing.T) {
	var completions atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathPowChallenge:
			fmt.Fprint(w, challengeBody)
		case pathCreateSession:
			fmt.Fprint(w, `{"data":{"biz_data":{"id":"fresh"}}}`)
		case pathCompletion:
			w.Header().Set("Content-Type", "text/event-stream")
			if completions.Add(1) == 1 {
				// Clean termination with zero content.
				fmt.Fprint(w, "event: finish\ndata: {}\n\n")
				return
			}
			fmt.Fprint(w, "data: {\"p\": \"response/content\", \"v\": \"ya\"}\n\n")
			fmt.Fprint(w, "event: finish\ndata: {}\n\n")
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	result, err := client.Chat(context.Background(), types.ChatRequest{
		SessionID: "s", Prompt: "hola", MaxStallRetries: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, "ya", result.Content)
}

func TestChat_TokenExpiredNeverRetried(t *testing.T) {
	var completions atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathPowChallenge:
			fmt.Fprint(w, challengeBody)
		case pathCompletion:
			completions.Add(1)
			w.WriteHeader(http.StatusForbidden)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server.URL, time.Second)
	_, err := client.Chat(context.Background(), types.ChatRequest{
		SessionID: "s", Prompt: "hola", MaxStallRetries: 3,
	})
	assert.ErrorIs(t, err, types.ErrTokenExpired)
	assert.Equal(t, int32(1), completions.Load())
}

func TestSplitEvent(t *testing.T) {
	event, data := splitEvent([]byte("event: finish\ndata: {}"))
	assert.Equal(t, "finish", event)
	assert.Equal(t, "{}", data)

	event, data = splitEvent([]byte("data: [DONE]"))
	assert.Equal(t, "", event)
	assert.Equal(t, "[DONE]", data)
}

func TestExtractMessageID(t *testing.T) {
	assert.Equal(t, "12", extractMessageID([]byte(`{"response_message_id": 12}`)))
	assert.Equal(t, "ab", extractMessageID([]byte(`{"response_message_id": "ab"}`)))
	assert.Equal(t, "9", extractMessageID([]byte(`{"response": {"message_id": 9}}`)))
	assert.Equal(t, "", extractMessageID([]byte(`{"v": "delta"}`)))
}
