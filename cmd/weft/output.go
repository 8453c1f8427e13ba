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
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/health"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/patterns"
	"github.com/teradata-labs/weft/pkg/session"
	"github.com/teradata-labs/weft/pkg/trace"
	"go.uber.org/zap"
)

// result is the structured object --json emits for mode runs.
type result struct {
	Mode      string   `json:"mode"`
	Task      string   `json:"task"`
	Level     string   `json:"level"`
	Content   string   `json:"content"`
	Valid     bool     `json:"valid"`
	Truncated bool     `json:"truncated,omitempty"`
	Issues    []string `json:"issues,omitempty"`
	Strategy  string   `json:"strategy,omitempty"`
	Steps     int      `json:"steps,omitempty"`
}

// emit renders an outcome as plain text or JSON. An invalid outcome still
// exits 0: validation failure is data, not an error.
func emit(rt *runtime, mode, task string, outcome *patterns.Outcome) error {
	if !jsonOutput {
		fmt.Println(outcome.Content)
		if outcome.Validation != nil && !outcome.Validation.Valid {
			for _, issue := range outcome.Validation.Issues {
				fmt.Fprintf(os.Stderr, "aviso de validacion: %s\n", issue)
			}
		}
		return nil
	}

	res := result{
		Mode:    mode,
		Task:    task,
		Level:   outcome.Level.String(),
		Content: outcome.Content,
		Valid:   outcome.Success(),
	}
	if outcome.Validation != nil {
		res.Truncated = outcome.Validation.Truncated
		res.Issues = outcome.Validation.Issues
	}
	res.Strategy = outcome.Strategy
	res.Steps = outcome.Steps
	return printJSON(res)
}

func emitPlan(plan *patterns.Plan) error {
	if jsonOutput {
		return printJSON(plan)
	}
	for _, step := range plan.Steps {
		fmt.Printf("%s: %s\n", step.ID, step.Task)
	}
	return nil
}

func emitSteps(plan *patterns.Plan, results map[string]*patterns.StepResult) error {
	if jsonOutput {
		return printJSON(results)
	}
	// Plan order, not map order.
	for _, step := range plan.Steps {
		res, ok := results[step.ID]
		if !ok {
			fmt.Printf("=== %s (no ejecutado) ===\n\n", step.ID)
			continue
		}
		fmt.Printf("=== %s ===\n%s\n\n", step.ID, res.Content)
	}
	return nil
}

func printSessionList(store *session.Store) error {
	sessions := store.List()
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].LastActive.After(sessions[j].LastActive)
	})
	if jsonOutput {
		return printJSON(sessions)
	}
	for _, s := range sessions {
		fmt.Printf("%-40s %-8s %4d msgs  last active %s\n",
			s.Name, s.Status, s.MessageCount, s.LastActive.Format("2006-01-02 15:04"))
	}
	return nil
}

func printSessionDigest(store *session.Store, name string) error {
	s, ok := store.Get(name)
	if !ok {
		return fmt.Errorf("unknown session %q", name)
	}
	if jsonOutput {
		return printJSON(s)
	}
	fmt.Printf("session:   %s (%s, %s)\n", s.Name, s.Mode, s.Status)
	fmt.Printf("messages:  %d\n", s.MessageCount)
	fmt.Printf("contexts:  %d injected (%d tokens est.)\n", len(s.InjectedContexts), s.InjectionTokens)
	fmt.Printf("prompt:    %d tokens est.\n", s.SystemPromptTokens)
	fmt.Printf("transfers: %d in / %d out\n", s.KnowledgeIn, s.KnowledgeOut)
	if s.Topic != "" {
		fmt.Printf("topic:     %s\n", s.Topic)
	}
	if s.Summary != "" {
		fmt.Printf("summary:   %s\n", s.Summary)
	}
	return nil
}

// healthOutput is the --health-report payload.
type healthOutput struct {
	Mode      string                 `json:"mode"`
	Healthy   bool                   `json:"healthy"`
	Error     string                 `json:"error,omitempty"`
	Limiter   llm.RateLimiterMetrics `json:"limiter"`
	ModeStats []trace.ModeSummary    `json:"mode_stats,omitempty"`
}

func printHealthReport(ctx context.Context, rt *runtime) error {
	report := rt.healthy.Report(ctx)

	out := healthOutput{
		Mode:    report.Mode,
		Healthy: report.Healthy,
		Error:   report.Error,
		Limiter: rt.limiter.GetMetrics(),
	}
	if rt.audit != nil {
		if stats, err := rt.audit.SummarizeByMode(); err == nil {
			out.ModeStats = stats
		}
	}

	if jsonOutput {
		return printJSON(out)
	}
	fmt.Printf("transport: %s\n", out.Mode)
	fmt.Printf("healthy:   %v\n", out.Healthy)
	if out.Error != "" {
		fmt.Printf("error:     %s\n", out.Error)
	}
	fmt.Printf("limiter:   %d calls, %d delayed, %d ms waited\n",
		out.Limiter.TotalCalls, out.Limiter.DelayedCalls, out.Limiter.TotalWaitMs)
	for _, stat := range out.ModeStats {
		fmt.Printf("mode %-10s %d runs, %d ok, avg %.0f ms\n",
			stat.Mode, stat.Total, stat.Successes, stat.AvgDurationMs)
	}
	return nil
}

// printOfflineHealthReport covers the case where no transport could be
// built at all: the report still names the credential mode and the error.
func printOfflineHealthReport(ctx context.Context, cfg *config.Config, logger *zap.Logger, buildErr error) error {
	mgr := health.NewManager(cfg, nil, nil, logger)
	out := healthOutput{
		Mode:  mgr.Mode(),
		Error: buildErr.Error(),
	}
	if jsonOutput {
		return printJSON(out)
	}
	fmt.Printf("transport: %s\n", out.Mode)
	fmt.Printf("healthy:   false\n")
	fmt.Printf("error:     %s\n", out.Error)
	return nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
