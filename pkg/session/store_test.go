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
package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func staticCreate(id string) CreateFunc {
	return func(context.Context) (string, error) { return id, nil }
}

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sessions.json")
	return NewStore(path, zaptest.NewLogger(t)), path
}

func TestGetOrCreate_ReturnsExistingActive(t *testing.T) {
	store, _ := newTestStore(t)

	first, err := store.GetOrCreate(context.Background(), "delegate:api", "delegate", staticCreate("up-1"))
	require.NoError(t, err)

	second, err := store.GetOrCreate(context.Background(), "delegate:api", "delegate", staticCreate("up-2"))
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, "up-1", second.UpstreamID)
}

func TestGetOrCreate_NeverReusesClosedOrExpired(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetOrCreate(context.Background(), "delegate:api", "delegate", staticCreate("up-1"))
	require.NoError(t, err)
	require.NoError(t, store.Close("delegate:api"))

	replacement, err := store.GetOrCreate(context.Background(), "delegate:api", "delegate", staticCreate("up-2"))
	require.NoError(t, err)
	assert.Equal(t, "up-2", replacement.UpstreamID)
	assert.Equal(t, StatusActive, replacement.Status)
	assert.False(t, replacement.SystemPromptSent)
}

func TestGetOrCreate_ReleasesLockDuringCreate(t *testing.T) {
	store, _ := newTestStore(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := store.GetOrCreate(context.Background(), "delegate:lenta", "delegate",
			func(context.Context) (string, error) {
				close(entered)
				<-release
				return "up-lenta", nil
			})
		assert.NoError(t, err)
	}()
	<-entered

	// Store reads must not queue behind the in-flight upstream create.
	listed := make(chan struct{})
	go func() {
		store.List()
		close(listed)
	}()
	select {
	case <-listed:
	case <-time.After(2 * time.Second):
		t.Fatal("store locked while the upstream session was being created")
	}

	close(release)
	<-done
	created, ok := store.Get("delegate:lenta")
	require.True(t, ok)
	assert.Equal(t, "up-lenta", created.UpstreamID)
}

func TestUpdate_LedgerAndChaining(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.GetOrCreate(context.Background(), "s", "delegate", staticCreate("up"))
	require.NoError(t, err)

	require.NoError(t, store.Update("s", "msg-1", "skill:canvas-games"))
	require.NoError(t, store.Update("s", "msg-2", "skill:canvas-games"))
	require.NoError(t, store.Update("s", "msg-3", "memory:surgical-project"))

	session, ok := store.Get("s")
	require.True(t, ok)
	assert.Equal(t, "msg-3", session.ParentMessageID)
	assert.Equal(t, 3, session.MessageCount)
	assert.True(t, session.SystemPromptSent)
	// Deduplicated, insertion order preserved.
	assert.Equal(t, []string{"skill:canvas-games", "memory:surgical-project"}, session.InjectedContexts)
	assert.True(t, session.HasContext("skill:canvas-games"))
	assert.False(t, session.HasContext("skill:other"))
}

func TestUpdate_EmptyParentPreserved(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetOrCreate(context.Background(), "s", "m", staticCreate("up"))
	require.NoError(t, err)

	require.NoError(t, store.Update("s", "msg-1", ""))
	require.NoError(t, store.Update("s", "", ""))

	session, _ := store.Get("s")
	assert.Equal(t, "msg-1", session.ParentMessageID)
}

func TestResetUpstream_ClearsParentChain(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetOrCreate(context.Background(), "s", "m", staticCreate("up-1"))
	require.NoError(t, err)
	require.NoError(t, store.Update("s", "msg-9", ""))

	require.NoError(t, store.ResetUpstream("s", "up-2"))
	session, _ := store.Get("s")
	assert.Equal(t, "up-2", session.UpstreamID)
	assert.Empty(t, session.ParentMessageID)
}

func TestPersistence_RoundTrip(t *testing.T) {
	store, path := newTestStore(t)
	_, err := store.GetOrCreate(context.Background(), "quantum:game:a", "quantum", staticCreate("up"))
	require.NoError(t, err)
	require.NoError(t, store.Update("quantum:game:a", "m-1", "skill:x"))

	reloaded := NewStore(path, zaptest.NewLogger(t))
	session, ok := reloaded.Get("quantum:game:a")
	require.True(t, ok)
	assert.Equal(t, "up", session.UpstreamID)
	assert.Equal(t, "m-1", session.ParentMessageID)
	assert.Equal(t, []string{"skill:x"}, session.InjectedContexts)
}

func TestPersistence_ResaveIsIdempotent(t *testing.T) {
	store, path := newTestStore(t)
	_, err := store.GetOrCreate(context.Background(), "s", "m", staticCreate("up"))
	require.NoError(t, err)

	before, err := os.ReadFile(path)
	require.NoError(t, err)

	// Load and trigger a save that changes nothing semantic.
	reloaded := NewStore(path, zaptest.NewLogger(t))
	require.NoError(t, reloaded.CloseAll())
	require.NoError(t, reloaded.Close("s")) // already closed, still a save

	after, err := os.ReadFile(path)
	require.NoError(t, err)

	var a, b map[string]*ChatSession
	require.NoError(t, json.Unmarshal(before, &a))
	require.NoError(t, json.Unmarshal(after, &b))
	a["s"].Status = StatusClosed
	assert.Equal(t, a["s"].InjectedContexts, b["s"].InjectedContexts)
	assert.Equal(t, a["s"].UpstreamID, b["s"].UpstreamID)
	assert.True(t, a["s"].CreatedAt.Equal(b["s"].CreatedAt))
}

func TestCorruptFileStartsEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	store := NewStore(path, zaptest.NewLogger(t))
	assert.Empty(t, store.List())
}

func TestCleanupOld(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.GetOrCreate(context.Background(), "old", "m", staticCreate("up-1"))
	require.NoError(t, err)
	_, err = store.GetOrCreate(context.Background(), "fresh", "m", staticCreate("up-2"))
	require.NoError(t, err)

	old, _ := store.Get("old")
	old.LastActive = time.Now().Add(-49 * time.Hour)

	swept, err := store.CleanupOld(48)
	require.NoError(t, err)
	assert.Equal(t, 1, swept)

	oldSession, _ := store.Get("old")
	assert.Equal(t, StatusExpired, oldSession.Status)
	freshSession, _ := store.Get("fresh")
	assert.Equal(t, StatusActive, freshSession.Status)
}
