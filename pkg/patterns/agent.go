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
package patterns

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/prompts"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// Agent loop caps and limits.
const (
	DefaultAgentMaxSteps  = 50
	AbsoluteAgentMaxSteps = 200
	maxEmptyNudges        = 2
	maxToolsPerIteration  = 5
	repeatedErrorLimit    = 3
	hallucinationMaxStep  = 3
)

// hallucinationNudge force-corrects a response that described actions
// without executing any write-class tool.
const hallucinationNudge = "ATENCION: Tu respuesta anterior DESCRIBIO acciones pero NO las ejecutaste. " +
	"Debes invocar las herramientas con un bloque tool_call real. Repite el paso ejecutando las acciones."

const emptyNudge = "Tu respuesta llego vacia. Continua con el objetivo; si terminaste, resume lo hecho."

const readOnlyStallNudge = "La sesion se atasco tras operaciones de solo lectura. " +
	"Escribe los archivos de uno en uno con write_file, empezando por el mas importante."

const strategyChangeNudge = "El mismo error se repite. CAMBIA DE ESTRATEGIA: " +
	"no repitas la operacion que falla; busca una via alternativa para el objetivo."

// completionClaims are phrases that signal the agent believes it is done.
var completionClaims = []string{
	"completado", "terminado", "finalizado", "listo", "he creado", "he implementado",
	"done", "completed", "finished", "i have created", "i have implemented",
}

// pathLike strips filesystem paths when normalizing error messages, so
// the same failure on different files counts as a repeat.
var pathLike = regexp.MustCompile(`(?:[A-Za-z]:)?(?:[\\/][\w.\-]+)+`)

// AgentRequest describes a goal-directed agent run.
type AgentRequest struct {
	Goal       string
	Identifier string

	// MaxSteps caps the loop; clamped to the absolute maximum.
	MaxSteps int

	// Interrupted is a cooperative stop flag, set from a signal handler.
	// Checked between steps; nil means non-interruptible.
	Interrupted *atomic.Bool
}

// Agent runs the goal-directed loop: heavy Phase-1 identity with the
// activation literal, then minimal follow-ups chained on the parent
// message, dispatching parsed tools each step.
func (r *Runner) Agent(ctx context.Context, req AgentRequest) (*Outcome, error) {
	if r.Orch.Dispatcher == nil {
		return nil, fmt.Errorf("agent mode requires a tool dispatcher")
	}
	start := time.Now()
	identifier := req.Identifier
	if identifier == "" {
		identifier = "default"
	}
	maxSteps := req.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultAgentMaxSteps
	}
	if maxSteps > AbsoluteAgentMaxSteps {
		maxSteps = AbsoluteAgentMaxSteps
	}

	plan, err := r.Orch.Plan(ctx, orchestrator.PlanRequest{
		Mode:       "agent",
		Identifier: identifier,
		Task:       req.Goal,
		Level:      types.LevelDelegation,
		SystemPrompt: func() string {
			return prompts.Assemble(types.LevelDelegation, prompts.Options{Mode: "agent"})
		},
		NegotiateSkills: r.NegotiateSkills,
		Ask:             r.Ask,
	})
	if err != nil {
		return nil, err
	}
	plan.AckOverride = prompts.AgentActivation

	ack, err := r.Orch.ExecutePreamble(ctx, plan, r.Thinking)
	if err != nil {
		return nil, err
	}
	if ack != "" && !strings.Contains(ack, prompts.AgentActivation) {
		r.logger().Warn("agent activation literal missing from phase-1 reply",
			zap.String("reply", truncateForLog(ack)),
		)
	}

	state := &agentState{}
	message := "OBJETIVO:\n" + req.Goal

	outcome := &Outcome{Level: types.LevelDelegation}
	for step := 1; step <= maxSteps; step++ {
		if req.Interrupted != nil && req.Interrupted.Load() {
			outcome.Content = r.syntheticSummary(state, "interrumpido por el usuario")
			break
		}
		outcome.Steps = step

		result, err := r.Orch.Exchange(ctx, plan, message, r.Thinking)
		if err != nil {
			if types.IsStall(err) || types.IsSessionDead(err) {
				message = r.recoverStall(state, outcome)
				if message == "" {
					break
				}
				continue
			}
			return nil, err
		}
		response := result.Content
		if r.Trace != nil {
			r.Trace.Record("send", fmt.Sprintf("agent step %d", step), 0)
		}

		// Empty responses get a bounded number of retry nudges.
		if strings.TrimSpace(response) == "" {
			state.emptyNudges++
			if state.emptyNudges > maxEmptyNudges {
				outcome.Content = r.syntheticSummary(state, "respuestas vacias consecutivas")
				break
			}
			message = emptyNudge
			continue
		}
		state.emptyNudges = 0

		calls := tools.ParseCalls(response)
		if len(calls) == 0 {
			if r.looksLikeHallucination(response, state, step) {
				message = hallucinationNudge
				continue
			}
			outcome.Content = tools.CleanFinalResponse(response)
			break
		}

		// Per-iteration cap: excess calls carry over as pending.
		pendingNote := ""
		if len(calls) > maxToolsPerIteration {
			var names []string
			for _, c := range calls[maxToolsPerIteration:] {
				names = append(names, c.Name)
			}
			pendingNote = "\n\nPENDIENTES (no ejecutadas todavia): " + strings.Join(names, ", ")
			calls = calls[:maxToolsPerIteration]
		}

		executions, framed := r.Orch.Dispatcher.Dispatch(ctx, calls)
		state.observe(executions)
		if r.Trace != nil {
			for _, exec := range executions {
				r.Trace.Record("tool", exec.Call.Name, time.Duration(exec.Result.ExecutionTimeMs)*time.Millisecond)
			}
		}

		if state.repeatedErrors() {
			message = framed + pendingNote + "\n\n" + strategyChangeNudge
			state.resetErrorCounts()
			continue
		}

		message = framed + pendingNote + fmt.Sprintf("\n\nStep %d — continue with the goal", step+1)
	}

	if outcome.Content == "" {
		outcome.Content = r.syntheticSummary(state, "limite de pasos alcanzado")
	}

	if r.Trace != nil {
		r.Trace.Record("note", fmt.Sprintf("agent finished after %d steps", outcome.Steps), time.Since(start))
	}
	r.record("agent", types.LevelDelegation, req.Goal, outcome.Content, nil, skillNames(plan), time.Since(start))
	return outcome, nil
}

// agentState tracks cross-step facts the loop invariants need.
type agentState struct {
	emptyNudges    int
	wroteAnything  bool
	readOnlyNudged bool
	succeeded      []string // tool names that succeeded, in order
	errorCounts    map[string]int
}

func (s *agentState) observe(executions []tools.Execution) {
	for _, exec := range executions {
		if exec.Result.Success {
			s.succeeded = append(s.succeeded, exec.Call.Name)
			if tools.WriteClassTools[exec.Call.Name] {
				s.wroteAnything = true
			}
			continue
		}
		if s.errorCounts == nil {
			s.errorCounts = make(map[string]int)
		}
		s.errorCounts[normalizeError(exec.Result.Error)]++
	}
}

func (s *agentState) repeatedErrors() bool {
	for _, n := range s.errorCounts {
		if n >= repeatedErrorLimit {
			return true
		}
	}
	return false
}

func (s *agentState) resetErrorCounts() {
	s.errorCounts = nil
}

// normalizeError strips paths so the same failure on different files
// clusters together.
func normalizeError(msg string) string {
	return strings.TrimSpace(pathLike.ReplaceAllString(strings.ToLower(msg), "<path>"))
}

// looksLikeHallucination reports a completion claim with nothing written
// to disk early in the run.
func (r *Runner) looksLikeHallucination(response string, state *agentState, step int) bool {
	if state.wroteAnything || step > hallucinationMaxStep {
		return false
	}
	lower := strings.ToLower(response)
	return containsAny(lower, completionClaims)
}

// recoverStall decides the post-stall path: a write nudge when only
// read tools ran so far, a synthetic summary otherwise. Returns the next
// message, or empty to finish with the summary already set.
func (r *Runner) recoverStall(state *agentState, outcome *Outcome) string {
	if !state.wroteAnything && !state.readOnlyNudged && len(state.succeeded) > 0 {
		state.readOnlyNudged = true
		return readOnlyStallNudge
	}
	outcome.Content = r.syntheticSummary(state, "sesion atascada")
	return ""
}

// syntheticSummary renders what the run actually accomplished when no
// clean final response exists.
func (r *Runner) syntheticSummary(state *agentState, reason string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Ejecucion terminada (%s).\n", reason)
	if len(state.succeeded) == 0 {
		b.WriteString("Ninguna herramienta se ejecuto con exito.")
		return b.String()
	}
	b.WriteString("Herramientas ejecutadas con exito:\n")
	for _, name := range state.succeeded {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	return strings.TrimRight(b.String(), "\n")
}

func truncateForLog(s string) string {
	if len(s) > 120 {
		return s[:120] + "..."
	}
	return s
}
