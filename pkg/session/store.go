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

// Package session implements the persistent store of named conversations.
// Each session tracks the upstream chat identifier, the parent-message
// chain, and the ledger of context blocks already sent upstream, so that
// system prompts and injections are transmitted at most once per session
// lifetime.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/teradata-labs/weft/internal/log"
	"go.uber.org/zap"
)

// Session status values.
const (
	StatusActive  = "active"
	StatusClosed  = "closed"
	StatusExpired = "expired"
)

// DefaultMaxAgeHours is the TTL after which an idle session expires.
const DefaultMaxAgeHours = 48

// ChatSession is one named, persistent conversation with the upstream
// backend. InjectedContexts is an insertion-ordered set of "type:name"
// identifiers; an identifier is present iff that block has already been
// transmitted in this session.
type ChatSession struct {
	Name             string    `json:"name"`
	UpstreamID       string    `json:"upstream_id"`
	ParentMessageID  string    `json:"parent_message_id"`
	SystemPromptSent bool      `json:"system_prompt_sent"`
	InjectedContexts []string  `json:"injected_contexts"`
	MessageCount     int       `json:"message_count"`
	CreatedAt        time.Time `json:"created_at"`
	LastActive       time.Time `json:"last_active"`
	Status           string    `json:"status"`
	Mode             string    `json:"mode"`
	Topic            string    `json:"topic,omitempty"`
	Summary          string    `json:"summary,omitempty"`
	KnowledgeIn      int       `json:"knowledge_in"`
	KnowledgeOut     int       `json:"knowledge_out"`

	// Estimated token costs: what the system prompt cost once, and the
	// cumulative cost of all injections so far.
	SystemPromptTokens int `json:"system_prompt_tokens"`
	InjectionTokens    int `json:"injection_tokens"`
}

// HasContext reports whether the "type:name" identifier is in the ledger.
func (s *ChatSession) HasContext(id string) bool {
	for _, existing := range s.InjectedContexts {
		if existing == id {
			return true
		}
	}
	return false
}

// addContext appends to the ledger if not already present.
func (s *ChatSession) addContext(id string) {
	if id == "" || s.HasContext(id) {
		return
	}
	s.InjectedContexts = append(s.InjectedContexts, id)
}

// CreateFunc produces a fresh upstream session id.
type CreateFunc func(ctx context.Context) (string, error)

// Store maps session names to chat sessions, persisted as a single JSON
// file rewritten atomically on every mutation. Single-writer: all
// mutations serialize on the store mutex, no cross-process locking.
type Store struct {
	mu       sync.Mutex
	path     string
	sessions map[string]*ChatSession
	logger   *zap.Logger
}

// NewStore loads the store from path, starting empty on a missing or
// corrupt file.
func NewStore(path string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = log.Logger()
	}
	store := &Store{
		path:     path,
		sessions: make(map[string]*ChatSession),
		logger:   logger,
	}
	store.load()
	return store
}

func (st *Store) load() {
	data, err := os.ReadFile(st.path)
	if err != nil {
		return
	}
	var sessions map[string]*ChatSession
	if err := json.Unmarshal(data, &sessions); err != nil {
		st.logger.Warn("session store file corrupt, starting empty",
			zap.String("path", st.path),
			zap.Error(err),
		)
		return
	}
	st.sessions = sessions
}

// save rewrites the whole map. Callers hold the mutex.
func (st *Store) save() error {
	data, err := json.MarshalIndent(st.sessions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session store: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(st.path), 0o755); err != nil {
		return fmt.Errorf("failed to create session store dir: %w", err)
	}
	tmp := st.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write session store: %w", err)
	}
	if err := os.Rename(tmp, st.path); err != nil {
		return fmt.Errorf("failed to replace session store: %w", err)
	}
	return nil
}

// GetOrCreate returns the existing active session under name, or calls
// createFn for a fresh upstream id and inserts a new one. Closed and
// expired sessions are never reused; a new session replaces them.
func (st *Store) GetOrCreate(ctx context.Context, name, mode string, createFn CreateFunc) (*ChatSession, error) {
	st.mu.Lock()
	if existing, ok := st.sessions[name]; ok && existing.Status == StatusActive {
		st.mu.Unlock()
		return existing, nil
	}
	st.mu.Unlock()

	// The upstream create is a network call; never hold the lock across it.
	upstreamID, err := createFn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream session for %q: %w", name, err)
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	// A concurrent caller may have won the race while we were creating.
	if existing, ok := st.sessions[name]; ok && existing.Status == StatusActive {
		return existing, nil
	}

	now := time.Now()
	session := &ChatSession{
		Name:       name,
		UpstreamID: upstreamID,
		CreatedAt:  now,
		LastActive: now,
		Status:     StatusActive,
		Mode:       mode,
	}
	st.sessions[name] = session
	if err := st.save(); err != nil {
		return nil, err
	}

	st.logger.Debug("created session",
		zap.String("name", name),
		zap.String("upstream_id", upstreamID),
	)
	return session, nil
}

// Get returns the named session, if present.
func (st *Store) Get(name string) (*ChatSession, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	session, ok := st.sessions[name]
	return session, ok
}

// Update records the outcome of one exchange: bumps the message count,
// advances the parent chain, marks the system prompt sent, and inserts
// addContext ("type:name", may be empty) into the ledger.
func (st *Store) Update(name, parentMessageID, addContext string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[name]
	if !ok {
		return fmt.Errorf("unknown session %q", name)
	}
	session.MessageCount++
	session.LastActive = time.Now()
	session.SystemPromptSent = true
	if parentMessageID != "" {
		session.ParentMessageID = parentMessageID
	}
	session.addContext(addContext)
	return st.save()
}

// ResetUpstream swaps in a fresh upstream id after recovery, clearing the
// parent chain that died with the old session.
func (st *Store) ResetUpstream(name, upstreamID string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[name]
	if !ok {
		return fmt.Errorf("unknown session %q", name)
	}
	session.UpstreamID = upstreamID
	session.ParentMessageID = ""
	session.LastActive = time.Now()
	return st.save()
}

// RecordTokens accumulates estimated token costs onto the session.
func (st *Store) RecordTokens(name string, systemPrompt, injection int) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[name]
	if !ok {
		return fmt.Errorf("unknown session %q", name)
	}
	session.SystemPromptTokens += systemPrompt
	session.InjectionTokens += injection
	return st.save()
}

// SetSummary updates the running summary and topic.
func (st *Store) SetSummary(name, topic, summary string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[name]
	if !ok {
		return fmt.Errorf("unknown session %q", name)
	}
	if topic != "" {
		session.Topic = topic
	}
	session.Summary = summary
	return st.save()
}

// RecordTransfer bumps the knowledge-transfer counters: out on the source
// session, in on the destination.
func (st *Store) RecordTransfer(fromName, toName string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	if from, ok := st.sessions[fromName]; ok {
		from.KnowledgeOut++
	}
	if to, ok := st.sessions[toName]; ok {
		to.KnowledgeIn++
	}
	return st.save()
}

// Close marks the named session closed without removing it.
func (st *Store) Close(name string) error {
	st.mu.Lock()
	defer st.mu.Unlock()

	session, ok := st.sessions[name]
	if !ok {
		return fmt.Errorf("unknown session %q", name)
	}
	session.Status = StatusClosed
	return st.save()
}

// CloseAll marks every active session closed.
func (st *Store) CloseAll() error {
	st.mu.Lock()
	defer st.mu.Unlock()

	for _, session := range st.sessions {
		if session.Status == StatusActive {
			session.Status = StatusClosed
		}
	}
	return st.save()
}

// CleanupOld sweeps active sessions idle for longer than maxAgeHours to
// expired. Returns the number of sessions swept.
func (st *Store) CleanupOld(maxAgeHours int) (int, error) {
	if maxAgeHours <= 0 {
		maxAgeHours = DefaultMaxAgeHours
	}
	cutoff := time.Now().Add(-time.Duration(maxAgeHours) * time.Hour)

	st.mu.Lock()
	defer st.mu.Unlock()

	swept := 0
	for _, session := range st.sessions {
		if session.Status == StatusActive && session.LastActive.Before(cutoff) {
			session.Status = StatusExpired
			swept++
		}
	}
	if swept == 0 {
		return 0, nil
	}
	st.logger.Info("expired idle sessions", zap.Int("count", swept))
	return swept, st.save()
}

// List returns all sessions, in no particular order.
func (st *Store) List() []*ChatSession {
	st.mu.Lock()
	defer st.mu.Unlock()

	out := make([]*ChatSession, 0, len(st.sessions))
	for _, session := range st.sessions {
		out = append(out, session)
	}
	return out
}
