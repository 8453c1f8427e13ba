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
package orchestrator

import (
	"context"

	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/pkg/memory"
	"github.com/teradata-labs/weft/pkg/session"
	"github.com/teradata-labs/weft/pkg/skills"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// Briefing budgets for the memory phases.
const (
	surgicalBriefingTokens = 15_000
	globalBriefingTokens   = 2000
)

// Orchestrator owns the session store, the transport and the knowledge
// sources. One per process.
type Orchestrator struct {
	Store     *session.Store
	Transport types.SessionTransport

	// Knowledge sources, all optional; a nil source contributes
	// nothing to plans.
	Catalog  *skills.Catalog
	Surgical *memory.SurgicalStore
	Global   *memory.GlobalStore

	// Tool surface for Phase 1 and the Phase-3 loop.
	Registry   *tools.Registry
	Dispatcher *tools.Dispatcher

	// MaxToolRounds bounds the Phase-3 tool loop. Default 10.
	MaxToolRounds int

	Logger *zap.Logger
}

// CallPlan is what one exchange still owes the backend.
type CallPlan struct {
	SessionName string
	Session     *session.ChatSession

	// SystemPrompt is non-empty iff the session has not seen one.
	SystemPrompt string

	// AckOverride suppresses the default Phase-1 "Responde unicamente:
	// 'OK'" suffix when the identity prompt demands its own literal.
	AckOverride string

	// PendingInjections are the context blocks whose type:name is not
	// in the session ledger, in transmission order.
	PendingInjections []Injection

	task string
}

// PlanRequest describes one incoming call.
type PlanRequest struct {
	Mode       string
	Identifier string
	Sub        string // optional sub-scope, e.g. the quantum angle
	Task       string
	Level      types.TaskLevel

	// SystemPrompt is built lazily, only when the plan needs one.
	SystemPrompt func() string

	// Extras are caller-supplied injections (e.g. knowledge transfer),
	// appended after the detected ones.
	Extras []Injection

	// NegotiateSkills asks the backend which skills it wants instead
	// of scoring locally. Ask must be set when enabled.
	NegotiateSkills bool
	Ask             skills.AskFunc
}

func (o *Orchestrator) logger() *zap.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Logger()
}

// Plan resolves the session and decides what must still be sent. All
// detection phases are fail-safe: a broken knowledge source contributes
// nothing.
func (o *Orchestrator) Plan(ctx context.Context, req PlanRequest) (*CallPlan, error) {
	name := req.Mode + ":" + req.Identifier
	if req.Sub != "" {
		name += ":" + req.Sub
	}

	sess, err := o.Store.GetOrCreate(ctx, name, req.Mode, o.Transport.CreateChatSession)
	if err != nil {
		return nil, err
	}

	plan := &CallPlan{SessionName: name, Session: sess, task: req.Task}

	if !sess.SystemPromptSent && req.SystemPrompt != nil {
		plan.SystemPrompt = req.SystemPrompt()
	}

	var pending []Injection
	pending = append(pending, o.detectSkills(ctx, req)...)
	pending = append(pending, o.detectSurgical()...)
	pending = append(pending, o.detectGlobal()...)
	pending = append(pending, req.Extras...)

	seen := make(map[string]bool)
	for _, inj := range pending {
		id := inj.ID()
		if seen[id] || sess.HasContext(id) {
			continue
		}
		seen[id] = true
		plan.PendingInjections = append(plan.PendingInjections, inj)
	}

	return plan, nil
}

// detectSkills runs the skill pipeline for code-level tasks.
func (o *Orchestrator) detectSkills(ctx context.Context, req PlanRequest) []Injection {
	if o.Catalog == nil || !req.Level.AtLeast(types.LevelCodeSimple) {
		return nil
	}

	var effectiveness skills.EffectivenessFunc
	if o.Global != nil {
		effectiveness = o.Global.SkillEffectiveness
	}
	recurring := o.Surgical != nil && o.Surgical.HasRecurringErrors()

	var selection skills.Selection
	if req.NegotiateSkills && req.Ask != nil {
		selection = o.Catalog.Negotiate(ctx, req.Task, req.Level, req.Ask, effectiveness, recurring)
	} else {
		selection = o.Catalog.Select(req.Task, req.Level, effectiveness, recurring)
	}

	var out []Injection
	for _, skill := range selection.Skills {
		out = append(out, Injection{Type: TypeSkill, Name: skill.Name, Content: skill.Content})
	}
	if selection.ErrorsBudget > 0 && o.Surgical != nil {
		if briefing := o.Surgical.Briefing(selection.ErrorsBudget); briefing != "" {
			out = append(out, Injection{Type: TypeError, Name: "errores-comunes", Content: briefing})
		}
	}
	return out
}

func (o *Orchestrator) detectSurgical() []Injection {
	if o.Surgical == nil {
		return nil
	}
	briefing := o.Surgical.Briefing(surgicalBriefingTokens)
	if briefing == "" {
		return nil
	}
	return []Injection{{Type: TypeMemory, Name: "surgical-project", Content: briefing}}
}

func (o *Orchestrator) detectGlobal() []Injection {
	if o.Global == nil {
		return nil
	}
	briefing := o.Global.Briefing(globalBriefingTokens)
	if briefing == "" {
		return nil
	}
	return []Injection{{Type: TypeGlobal, Name: "developer-profile", Content: briefing}}
}

func (o *Orchestrator) maxToolRounds() int {
	if o.MaxToolRounds > 0 {
		return o.MaxToolRounds
	}
	return 10
}
