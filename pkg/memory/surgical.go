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
package memory

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/internal/tfidf"
	"github.com/teradata-labs/weft/internal/tokens"
	"go.uber.org/zap"
)

// Hard caps per list. Compaction keeps the top-relevance subset.
const (
	capErrorLog          = 30
	capDelegationHistory = 20
	capPatterns          = 15
	capFeedbackRules     = 20
	capShadowCorrections = 20
	capFailureAnalyses   = 15
)

// DefaultSurgicalBriefingTokens bounds the per-project briefing.
const DefaultSurgicalBriefingTokens = 15_000

// ErrorRecord is one observed delegation failure.
type ErrorRecord struct {
	Task      string    `json:"task"`
	ErrorType string    `json:"error_type"`
	Message   string    `json:"message"`
	Frequency int       `json:"frequency"`
	CreatedAt time.Time `json:"created_at"`
}

// DelegationRecord is the outcome of one completed delegation.
type DelegationRecord struct {
	Task              string         `json:"task"`
	Mode              string         `json:"mode"`
	Success           bool           `json:"success"`
	DurationMs        int64          `json:"duration_ms"`
	ValidationSummary string         `json:"validation_summary,omitempty"`
	Stats             map[string]int `json:"stats,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Pattern is a symbol-level pattern adopted by the project, refcounted by
// stable name.
type Pattern struct {
	Name      string    `json:"name"`
	Signature string    `json:"signature"`
	UseCount  int       `json:"use_count"`
	CreatedAt time.Time `json:"created_at"`
}

// FeedbackRule is a learned corrective instruction, deduped on Trigger.
type FeedbackRule struct {
	Trigger     string    `json:"trigger"`
	Instruction string    `json:"instruction"`
	Occurrences int       `json:"occurrences"`
	CreatedAt   time.Time `json:"created_at"`
}

// ShadowCorrection records a user edit made to generated output after
// delivery; the diff is what the shadow learner extracts rules from.
type ShadowCorrection struct {
	File      string    `json:"file"`
	Summary   string    `json:"summary"`
	Diff      string    `json:"diff"`
	Frequency int       `json:"frequency"`
	CreatedAt time.Time `json:"created_at"`
}

// FailureAnalysis is a root-cause analysis of one failed delegation.
type FailureAnalysis struct {
	Task      string    `json:"task"`
	RootCause string    `json:"root_cause"`
	Advice    string    `json:"advice"`
	CreatedAt time.Time `json:"created_at"`
}

// Conventions are style facts inferred from accepted responses.
type Conventions struct {
	Naming       string `json:"naming,omitempty"`       // camelCase | snake_case
	Declarations string `json:"declarations,omitempty"` // const | let
}

// SurgicalStore is the per-project memory. Append-only at the API level;
// compaction is internal and idempotent.
type SurgicalStore struct {
	ProjectID   string `json:"project_id"`
	ProjectPath string `json:"project_path"`

	Architecture string      `json:"architecture,omitempty"`
	Conv         Conventions `json:"conventions"`

	ErrorLog          []ErrorRecord      `json:"error_log"`
	DelegationHistory []DelegationRecord `json:"delegation_history"`
	Patterns          []Pattern          `json:"patterns"`
	FeedbackRules     []FeedbackRule     `json:"feedback_rules"`
	ShadowCorrections []ShadowCorrection `json:"shadow_corrections"`
	FailureAnalyses   []FailureAnalysis  `json:"failure_analyses"`

	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// LoadSurgical loads the per-project store from path, starting empty on a
// missing or corrupt file.
func LoadSurgical(path, projectID, projectPath string, logger *zap.Logger) *SurgicalStore {
	if logger == nil {
		logger = log.Logger()
	}
	store := &SurgicalStore{
		ProjectID:   projectID,
		ProjectPath: projectPath,
		path:        path,
		logger:      logger,
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return store
	}
	if err := json.Unmarshal(data, store); err != nil {
		logger.Warn("surgical memory corrupt, starting empty", zap.String("path", path), zap.Error(err))
		// Fresh store, not an overwrite: *store = ... would copy the mutex.
		store = &SurgicalStore{ProjectID: projectID, ProjectPath: projectPath, path: path, logger: logger}
	}
	return store
}

// save persists the store; failures are logged and swallowed because the
// in-memory state stays authoritative for the process. Callers hold mu.
func (s *SurgicalStore) save() {
	if s.path == "" {
		return
	}
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		s.logger.Warn("failed to marshal surgical memory", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Warn("failed to create memory dir", zap.Error(err))
		return
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		s.logger.Warn("failed to write surgical memory", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("failed to replace surgical memory", zap.Error(err))
	}
}

// RecordDelegation appends the outcome of a delegation and runs the
// learners: errors and feedback rules on failure, patterns and convention
// inference on success.
func (s *SurgicalStore) RecordDelegation(rec DelegationRecord, responseText, failureDetail string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	s.DelegationHistory = append(s.DelegationHistory, rec)

	if rec.Success {
		s.learnPatterns(responseText)
		s.inferConventions(responseText)
	} else {
		s.addErrorLocked(rec.Task, failureKind(failureDetail), failureDetail)
		s.extractFeedbackRules(failureDetail)
	}

	s.compact()
	s.save()
}

// AddError appends (or bumps) an error record.
func (s *SurgicalStore) AddError(task, errorType, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.addErrorLocked(task, errorType, message)
	s.compact()
	s.save()
}

func (s *SurgicalStore) addErrorLocked(task, errorType, message string) {
	for i := range s.ErrorLog {
		if s.ErrorLog[i].ErrorType == errorType && s.ErrorLog[i].Message == message {
			s.ErrorLog[i].Frequency++
			return
		}
	}
	s.ErrorLog = append(s.ErrorLog, ErrorRecord{
		Task:      task,
		ErrorType: errorType,
		Message:   message,
		Frequency: 1,
		CreatedAt: time.Now(),
	})
}

// AddShadowCorrection records a post-delivery user edit.
func (s *SurgicalStore) AddShadowCorrection(c ShadowCorrection) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if c.Frequency < 1 {
		c.Frequency = 1
	}
	s.ShadowCorrections = append(s.ShadowCorrections, c)
	s.compact()
	s.save()
}

// AddFailureAnalysis records a root-cause analysis.
func (s *SurgicalStore) AddFailureAnalysis(a FailureAnalysis) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	s.FailureAnalyses = append(s.FailureAnalyses, a)
	s.compact()
	s.save()
}

// Known failure patterns and the corrective instruction each one earns.
var feedbackPatterns = []struct {
	trigger     string
	needle      string
	instruction string
}{
	{"truncation", "truncat", "Entrega el codigo en bloques mas pequenos y termina cada bloque con sus llaves cerradas."},
	{"many_missing_markers", "missing_markers", "Implementa TODOS los marcadores TODO_* del template, cada uno con su simbolo definido."},
	{"forbidden_token_innerHTML", "innerhtml", "No uses innerHTML; usa createElement/textContent."},
	{"mismatched_save_restore", "save_restore", "Cada ctx.save() debe tener exactamente un ctx.restore() emparejado."},
	{"quantum_var_duplicate", "duplicate", "No redeclares variables ya definidas por la otra mitad; usa los nombres del template."},
}

// extractFeedbackRules matches the failure detail against the known
// patterns, bumping occurrences on trigger collision.
func (s *SurgicalStore) extractFeedbackRules(failureDetail string) {
	lower := strings.ToLower(failureDetail)
	for _, p := range feedbackPatterns {
		if !strings.Contains(lower, p.needle) {
			continue
		}
		found := false
		for i := range s.FeedbackRules {
			if s.FeedbackRules[i].Trigger == p.trigger {
				s.FeedbackRules[i].Occurrences++
				found = true
				break
			}
		}
		if !found {
			s.FeedbackRules = append(s.FeedbackRules, FeedbackRule{
				Trigger:     p.trigger,
				Instruction: p.instruction,
				Occurrences: 1,
				CreatedAt:   time.Now(),
			})
		}
	}
}

func failureKind(detail string) string {
	lower := strings.ToLower(detail)
	for _, p := range feedbackPatterns {
		if strings.Contains(lower, p.needle) {
			return p.trigger
		}
	}
	return "generic"
}

var functionSignature = regexp.MustCompile(`(?m)^\s*(?:function\s+(\w+)\s*\(([^)]*)\)|(?:const|let)\s+(\w+)\s*=\s*(?:async\s*)?\(([^)]*)\)\s*=>)`)

// learnPatterns extracts function signatures from a successful response,
// refcounting by name.
func (s *SurgicalStore) learnPatterns(responseText string) {
	for _, m := range functionSignature.FindAllStringSubmatch(responseText, 40) {
		name, params := m[1], m[2]
		if name == "" {
			name, params = m[3], m[4]
		}
		if name == "" {
			continue
		}
		signature := fmt.Sprintf("%s(%s)", name, strings.TrimSpace(params))

		found := false
		for i := range s.Patterns {
			if s.Patterns[i].Name == name {
				s.Patterns[i].UseCount++
				s.Patterns[i].Signature = signature
				found = true
				break
			}
		}
		if !found {
			s.Patterns = append(s.Patterns, Pattern{
				Name:      name,
				Signature: signature,
				UseCount:  1,
				CreatedAt: time.Now(),
			})
		}
	}
}

var (
	snakeIdent = regexp.MustCompile(`\b[a-z]+_[a-z_]+\b`)
	camelIdent = regexp.MustCompile(`\b[a-z]+[A-Z][a-zA-Z]*\b`)
)

// inferConventions reads naming and declaration style off the response.
func (s *SurgicalStore) inferConventions(responseText string) {
	snake := len(snakeIdent.FindAllString(responseText, -1))
	camel := len(camelIdent.FindAllString(responseText, -1))
	if camel > snake*2 {
		s.Conv.Naming = "camelCase"
	} else if snake > camel*2 {
		s.Conv.Naming = "snake_case"
	}

	consts := strings.Count(responseText, "const ")
	lets := strings.Count(responseText, "let ")
	if consts > lets*2 {
		s.Conv.Declarations = "const"
	} else if lets > consts*2 {
		s.Conv.Declarations = "let"
	}
}

// HasRecurringErrors reports whether any error or feedback rule has been
// seen more than once; the skill selector keys its errors reserve on it.
func (s *SurgicalStore) HasRecurringErrors() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.ErrorLog {
		if e.Frequency >= 2 {
			return true
		}
	}
	for _, r := range s.FeedbackRules {
		if r.Occurrences >= 2 {
			return true
		}
	}
	return false
}

// compact enforces the per-list caps, keeping the top-relevance subset.
// Patterns rank by use_count, feedback rules by occurrences; everything
// else by the decay-weighted relevance score. Callers hold mu.
func (s *SurgicalStore) compact() {
	s.ErrorLog = topBy(s.ErrorLog, capErrorLog, func(e ErrorRecord) float64 {
		return relevance(e.CreatedAt, e.Frequency)
	})
	s.DelegationHistory = topBy(s.DelegationHistory, capDelegationHistory, func(d DelegationRecord) float64 {
		return relevance(d.CreatedAt, 1)
	})
	s.Patterns = topBy(s.Patterns, capPatterns, func(p Pattern) float64 {
		return float64(p.UseCount)
	})
	s.FeedbackRules = topBy(s.FeedbackRules, capFeedbackRules, func(r FeedbackRule) float64 {
		return float64(r.Occurrences)
	})
	s.ShadowCorrections = topBy(s.ShadowCorrections, capShadowCorrections, func(c ShadowCorrection) float64 {
		return relevance(c.CreatedAt, c.Frequency)
	})
	s.FailureAnalyses = topBy(s.FailureAnalyses, capFailureAnalyses, func(a FailureAnalysis) float64 {
		return relevance(a.CreatedAt, 1)
	})
}

// topBy returns the limit highest-scored entries, preserving the
// original relative order of the survivors.
func topBy[T any](list []T, limit int, score func(T) float64) []T {
	if len(list) <= limit {
		return list
	}
	type indexed struct {
		i int
		s float64
	}
	ranked := make([]indexed, len(list))
	for i, e := range list {
		ranked[i] = indexed{i, score(e)}
	}
	sort.SliceStable(ranked, func(a, b int) bool { return ranked[a].s > ranked[b].s })
	keep := make(map[int]bool, limit)
	for _, r := range ranked[:limit] {
		keep[r.i] = true
	}
	out := make([]T, 0, limit)
	for i, e := range list {
		if keep[i] {
			out = append(out, e)
		}
	}
	return out
}

// Section names for FindRelevant.
const (
	SectionErrors      = "errors"
	SectionDelegations = "delegations"
	SectionPatterns    = "patterns"
	SectionRules       = "rules"
)

// FindRelevant returns the topK entries of a section most relevant to the
// query, scored cosine * relevance over a TF-IDF index of the section's
// textual fields. When the corpus is too small for TF-IDF, Jaccard over
// token sets replaces the cosine.
func (s *SurgicalStore) FindRelevant(query, section string, topK int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var texts []string
	var weights []float64
	switch section {
	case SectionErrors:
		for _, e := range s.ErrorLog {
			texts = append(texts, e.Task+" "+e.ErrorType+" "+e.Message)
			weights = append(weights, relevance(e.CreatedAt, e.Frequency))
		}
	case SectionDelegations:
		for _, d := range s.DelegationHistory {
			texts = append(texts, d.Task+" "+d.Mode+" "+d.ValidationSummary)
			weights = append(weights, relevance(d.CreatedAt, 1))
		}
	case SectionPatterns:
		for _, p := range s.Patterns {
			texts = append(texts, p.Name+" "+p.Signature)
			weights = append(weights, relevance(p.CreatedAt, p.UseCount))
		}
	case SectionRules:
		for _, r := range s.FeedbackRules {
			texts = append(texts, r.Trigger+" "+r.Instruction)
			weights = append(weights, relevance(r.CreatedAt, r.Occurrences))
		}
	default:
		return nil
	}
	if len(texts) == 0 {
		return nil
	}

	index := tfidf.New(texts)
	scores := make([]float64, len(texts))
	if index.Empty() {
		for i, t := range texts {
			scores[i] = tfidf.Jaccard(query, t) * weights[i]
		}
	} else {
		for i, sim := range index.Similarities(query) {
			scores[i] = sim * weights[i]
			if scores[i] == 0 {
				// Tiny corpora often miss on cosine; keep Jaccard as
				// the tie-breaking floor.
				scores[i] = tfidf.Jaccard(query, texts[i]) * weights[i] * 0.5
			}
		}
	}

	order := make([]int, len(texts))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })

	if topK > len(order) {
		topK = len(order)
	}
	out := make([]string, 0, topK)
	for _, i := range order[:topK] {
		if scores[i] <= 0 {
			break
		}
		out = append(out, texts[i])
	}
	return out
}

// Briefing composes the per-project context block under a token budget:
// architecture and conventions first, then feedback rules, recent errors,
// and adopted patterns until the budget runs out.
func (s *SurgicalStore) Briefing(maxTokens int) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	if maxTokens <= 0 {
		maxTokens = DefaultSurgicalBriefingTokens
	}
	budget := tokens.NewBudget(maxTokens)
	var b strings.Builder

	write := func(line string) bool {
		cost := tokens.Approximate(line)
		if !budget.CanFit(cost) {
			return false
		}
		budget.Use(cost)
		b.WriteString(line)
		return true
	}

	if s.Architecture != "" {
		write("ARQUITECTURA: " + s.Architecture + "\n")
	}
	if s.Conv.Naming != "" || s.Conv.Declarations != "" {
		write(fmt.Sprintf("CONVENCIONES: naming=%s declarations=%s\n", s.Conv.Naming, s.Conv.Declarations))
	}
	if len(s.FeedbackRules) > 0 {
		write("\nREGLAS APRENDIDAS:\n")
		for _, r := range s.FeedbackRules {
			if !write(fmt.Sprintf("- [%s x%d] %s\n", r.Trigger, r.Occurrences, r.Instruction)) {
				break
			}
		}
	}
	if len(s.ErrorLog) > 0 {
		write("\nERRORES PREVIOS:\n")
		for _, e := range s.ErrorLog {
			if !write(fmt.Sprintf("- [%s x%d] %s\n", e.ErrorType, e.Frequency, e.Message)) {
				break
			}
		}
	}
	if len(s.Patterns) > 0 {
		write("\nPATRONES DEL PROYECTO:\n")
		for _, p := range s.Patterns {
			if !write(fmt.Sprintf("- %s (usado %dx)\n", p.Signature, p.UseCount)) {
				break
			}
		}
	}

	return strings.TrimSpace(b.String())
}

// projectMarkers identify a project root when walking upward.
var projectMarkers = []string{
	".git", "package.json", "go.mod", "pyproject.toml", "Cargo.toml",
	"pom.xml", "composer.json", "index.html",
}

// FindProjectRoot walks upward from start looking for a marker file.
// Returns start itself when nothing matches.
func FindProjectRoot(start string) string {
	dir := start
	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return start
		}
		dir = parent
	}
}
