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
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/internal/tfidf"
	"github.com/teradata-labs/weft/internal/tokens"
	"go.uber.org/zap"
)

// EMA smoothing for mode durations.
const durationAlpha = 0.15

// DefaultGlobalBriefingTokens bounds the cross-project briefing.
const DefaultGlobalBriefingTokens = 2000

// Skill-avoidance thresholds for the briefing.
const (
	avoidSuccessBelow    = 0.40
	avoidTruncationAbove = 0.50
)

// Caps for the global store's open-ended sections.
const (
	capGlobalErrors = 40
	capSkillCombos  = 25
)

// errorClusterSimilarity is the Jaccard threshold above which a new error
// joins an existing cluster instead of opening one.
const errorClusterSimilarity = 0.6

// SkillStats tracks one skill's observed effectiveness. The Bayesian
// fields are derived on every update from a Beta posterior with an
// uniform prior.
type SkillStats struct {
	Injected    int `json:"injected"`
	Successes   int `json:"successes"`
	Failures    int `json:"failures"`
	Truncations int `json:"truncations"`

	BayesianMean float64 `json:"bayesian_mean"`
	CILower      float64 `json:"ci_lower"`
	CIUpper      float64 `json:"ci_upper"`
}

// TruncationRate is the share of injections that ended truncated.
func (s *SkillStats) TruncationRate() float64 {
	if s.Injected == 0 {
		return 0
	}
	return float64(s.Truncations) / float64(s.Injected)
}

// ModeStats tracks one execution mode's performance.
type ModeStats struct {
	Total         int     `json:"total"`
	Successes     int     `json:"successes"`
	AvgDurationMs float64 `json:"avg_duration_ms"` // EMA, alpha 0.15
}

// ComplexityStats tracks outcomes per task level.
type ComplexityStats struct {
	Total     int `json:"total"`
	Successes int `json:"successes"`
}

// ErrorCluster groups semantically similar cross-project errors.
type ErrorCluster struct {
	TypeString string    `json:"type_string"`
	Count      int       `json:"count"`
	LastSeen   time.Time `json:"last_seen"`
}

// SkillCombo records a set of skills injected together and its outcome
// counts.
type SkillCombo struct {
	Skills    []string `json:"skills"`
	Successes int      `json:"successes"`
	Failures  int      `json:"failures"`
}

// GlobalStore is the cross-project memory: one file per user.
type GlobalStore struct {
	TotalDelegations int `json:"total_delegations"`

	CodeStyle          map[string]string           `json:"code_style"`
	SkillStats         map[string]*SkillStats      `json:"skill_stats"`
	SkillCombos        []SkillCombo                `json:"skill_combos"`
	ComplexityStats    map[string]*ComplexityStats `json:"complexity_stats"`
	ModeStats          map[string]*ModeStats       `json:"mode_stats"`
	CrossProjectErrors []ErrorCluster              `json:"cross_project_errors"`
	TaskKeywordSuccess map[string]int              `json:"task_keyword_success"`

	path   string
	mu     sync.Mutex
	logger *zap.Logger
}

// LoadGlobal loads the cross-project store, starting empty on a missing
// or corrupt file.
func LoadGlobal(path string, logger *zap.Logger) *GlobalStore {
	if logger == nil {
		logger = log.Logger()
	}
	store := &GlobalStore{path: path, logger: logger}
	store.initMaps()

	data, err := os.ReadFile(path)
	if err != nil {
		return store
	}
	if err := json.Unmarshal(data, store); err != nil {
		logger.Warn("global memory corrupt, starting empty", zap.String("path", path), zap.Error(err))
		store = &GlobalStore{path: path, logger: logger}
	}
	store.initMaps()
	return store
}

func (g *GlobalStore) initMaps() {
	if g.CodeStyle == nil {
		g.CodeStyle = make(map[string]string)
	}
	if g.SkillStats == nil {
		g.SkillStats = make(map[string]*SkillStats)
	}
	if g.ComplexityStats == nil {
		g.ComplexityStats = make(map[string]*ComplexityStats)
	}
	if g.ModeStats == nil {
		g.ModeStats = make(map[string]*ModeStats)
	}
	if g.TaskKeywordSuccess == nil {
		g.TaskKeywordSuccess = make(map[string]int)
	}
}

func (g *GlobalStore) save() {
	if g.path == "" {
		return
	}
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		g.logger.Warn("failed to marshal global memory", zap.Error(err))
		return
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		g.logger.Warn("failed to create memory dir", zap.Error(err))
		return
	}
	tmp := g.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		g.logger.Warn("failed to write global memory", zap.Error(err))
		return
	}
	if err := os.Rename(tmp, g.path); err != nil {
		g.logger.Warn("failed to replace global memory", zap.Error(err))
	}
}

// RecordDelegation folds one delegation outcome into the profile.
func (g *GlobalStore) RecordDelegation(mode, level string, skills []string, success, truncated bool, durationMs int64, taskKeywords []string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.TotalDelegations++

	for _, name := range skills {
		stats := g.SkillStats[name]
		if stats == nil {
			stats = &SkillStats{}
			g.SkillStats[name] = stats
		}
		stats.Injected++
		if success {
			stats.Successes++
		} else {
			stats.Failures++
		}
		if truncated {
			stats.Truncations++
		}
		stats.BayesianMean, stats.CILower, stats.CIUpper = betaPosterior(stats.Successes, stats.Failures)
	}

	if len(skills) > 1 {
		g.recordCombo(skills, success)
	}

	ms := g.ModeStats[mode]
	if ms == nil {
		ms = &ModeStats{}
		g.ModeStats[mode] = ms
	}
	ms.Total++
	if success {
		ms.Successes++
	}
	if ms.AvgDurationMs == 0 {
		ms.AvgDurationMs = float64(durationMs)
	} else {
		ms.AvgDurationMs = durationAlpha*float64(durationMs) + (1-durationAlpha)*ms.AvgDurationMs
	}

	cs := g.ComplexityStats[level]
	if cs == nil {
		cs = &ComplexityStats{}
		g.ComplexityStats[level] = cs
	}
	cs.Total++
	if success {
		cs.Successes++
	}

	if success {
		for _, kw := range taskKeywords {
			g.TaskKeywordSuccess[kw]++
		}
	}

	g.save()
}

func (g *GlobalStore) recordCombo(skills []string, success bool) {
	sorted := append([]string(nil), skills...)
	sort.Strings(sorted)

	for i := range g.SkillCombos {
		if equalStrings(g.SkillCombos[i].Skills, sorted) {
			if success {
				g.SkillCombos[i].Successes++
			} else {
				g.SkillCombos[i].Failures++
			}
			return
		}
	}
	combo := SkillCombo{Skills: sorted}
	if success {
		combo.Successes = 1
	} else {
		combo.Failures = 1
	}
	g.SkillCombos = append(g.SkillCombos, combo)
	if len(g.SkillCombos) > capSkillCombos {
		g.SkillCombos = g.SkillCombos[len(g.SkillCombos)-capSkillCombos:]
	}
}

// RecordError folds a cross-project error into the cluster list: a new
// error whose type string is highly similar to an existing cluster bumps
// that cluster instead of opening one.
func (g *GlobalStore) RecordError(typeString string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	for i := range g.CrossProjectErrors {
		if tfidf.Jaccard(typeString, g.CrossProjectErrors[i].TypeString) >= errorClusterSimilarity {
			g.CrossProjectErrors[i].Count++
			g.CrossProjectErrors[i].LastSeen = time.Now()
			g.save()
			return
		}
	}
	g.CrossProjectErrors = append(g.CrossProjectErrors, ErrorCluster{
		TypeString: typeString,
		Count:      1,
		LastSeen:   time.Now(),
	})
	if len(g.CrossProjectErrors) > capGlobalErrors {
		// Evict the least-seen cluster.
		sort.SliceStable(g.CrossProjectErrors, func(a, b int) bool {
			return g.CrossProjectErrors[a].Count > g.CrossProjectErrors[b].Count
		})
		g.CrossProjectErrors = g.CrossProjectErrors[:capGlobalErrors]
	}
	g.save()
}

// SetCodeStyle records a user-wide style fact (e.g. "semicolons": "no").
func (g *GlobalStore) SetCodeStyle(key, value string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.CodeStyle[key] = value
	g.save()
}

// ModeStatsFor returns a snapshot of the stats for one delegation mode,
// or nil when the mode has no history.
func (g *GlobalStore) ModeStatsFor(mode string) *ModeStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats, ok := g.ModeStats[mode]
	if !ok {
		return nil
	}
	snapshot := *stats
	return &snapshot
}

// ComplexityStatsFor returns a snapshot of the stats for one task level,
// or nil when the level has no history.
func (g *GlobalStore) ComplexityStatsFor(level string) *ComplexityStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats, ok := g.ComplexityStats[level]
	if !ok {
		return nil
	}
	snapshot := *stats
	return &snapshot
}

// SkillEffectiveness returns the Bayesian posterior mean for a skill, or
// 1.0 when nothing is known. The skill ranker uses it as a multiplier.
func (g *GlobalStore) SkillEffectiveness(name string) float64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	stats, ok := g.SkillStats[name]
	if !ok || stats.Injected == 0 {
		return 1.0
	}
	// Center on 1.0: a 0.5 posterior is neutral.
	return 0.5 + stats.BayesianMean
}

// betaPosterior computes the posterior mean and 95% CI of a Beta(1,1)
// prior updated with the observed outcomes:
// mean = (s+1)/(s+f+2), CI from the Beta variance normal approximation.
func betaPosterior(successes, failures int) (mean, lower, upper float64) {
	alpha := float64(successes + 1)
	beta := float64(failures + 1)
	n := alpha + beta

	mean = alpha / n
	variance := (alpha * beta) / (n * n * (n + 1))
	margin := 1.96 * math.Sqrt(variance)

	lower = math.Max(0, mean-margin)
	upper = math.Min(1, mean+margin)
	return mean, lower, upper
}

// Briefing composes the developer-profile block under a token budget, in
// fixed priority order: code style, recommended/avoid skills, recurring
// errors, complexity sweet spots, mode performance.
func (g *GlobalStore) Briefing(maxTokens int) string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if maxTokens <= 0 {
		maxTokens = DefaultGlobalBriefingTokens
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

	if len(g.CodeStyle) > 0 {
		write("ESTILO:\n")
		for _, key := range sortedKeys(g.CodeStyle) {
			if !write(fmt.Sprintf("- %s: %s\n", key, g.CodeStyle[key])) {
				break
			}
		}
	}

	var recommend, avoid []string
	for _, name := range sortedStatKeys(g.SkillStats) {
		stats := g.SkillStats[name]
		if stats.Injected < 2 {
			continue
		}
		if stats.BayesianMean < avoidSuccessBelow || stats.TruncationRate() > avoidTruncationAbove {
			avoid = append(avoid, fmt.Sprintf("%s (exito %.0f%%, trunc %.0f%%)",
				name, stats.BayesianMean*100, stats.TruncationRate()*100))
		} else if stats.BayesianMean > 0.6 {
			recommend = append(recommend, name)
		}
	}
	if len(recommend) > 0 {
		write("\nSKILLS RECOMENDADAS: " + strings.Join(recommend, ", ") + "\n")
	}
	if len(avoid) > 0 {
		write("\nSKILLS A EVITAR: " + strings.Join(avoid, ", ") + "\n")
	}

	if len(g.CrossProjectErrors) > 0 {
		write("\nERRORES RECURRENTES:\n")
		for _, cluster := range g.CrossProjectErrors {
			if cluster.Count < 2 {
				continue
			}
			if !write(fmt.Sprintf("- %s (x%d)\n", cluster.TypeString, cluster.Count)) {
				break
			}
		}
	}

	if len(g.ComplexityStats) > 0 {
		write("\nNIVELES:\n")
		for _, level := range sortedComplexityKeys(g.ComplexityStats) {
			cs := g.ComplexityStats[level]
			if cs.Total == 0 {
				continue
			}
			if !write(fmt.Sprintf("- %s: %d/%d ok\n", level, cs.Successes, cs.Total)) {
				break
			}
		}
	}

	if len(g.ModeStats) > 0 {
		write("\nMODOS:\n")
		for _, mode := range sortedModeKeys(g.ModeStats) {
			ms := g.ModeStats[mode]
			if !write(fmt.Sprintf("- %s: %d/%d ok, ~%.0fms\n", mode, ms.Successes, ms.Total, ms.AvgDurationMs)) {
				break
			}
		}
	}

	return strings.TrimSpace(b.String())
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStatKeys(m map[string]*SkillStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedComplexityKeys(m map[string]*ComplexityStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedModeKeys(m map[string]*ModeStats) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
