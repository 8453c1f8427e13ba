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
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/teradata-labs/weft/internal/log"
	"github.com/teradata-labs/weft/internal/toolkit"
	"github.com/teradata-labs/weft/pkg/classifier"
	"github.com/teradata-labs/weft/pkg/config"
	"github.com/teradata-labs/weft/pkg/health"
	"github.com/teradata-labs/weft/pkg/intel"
	"github.com/teradata-labs/weft/pkg/llm"
	"github.com/teradata-labs/weft/pkg/llm/api"
	"github.com/teradata-labs/weft/pkg/llm/pow"
	"github.com/teradata-labs/weft/pkg/llm/web"
	"github.com/teradata-labs/weft/pkg/memory"
	"github.com/teradata-labs/weft/pkg/orchestrator"
	"github.com/teradata-labs/weft/pkg/patterns"
	"github.com/teradata-labs/weft/pkg/prompts"
	"github.com/teradata-labs/weft/pkg/session"
	"github.com/teradata-labs/weft/pkg/skills"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/trace"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// runtime is everything a mode invocation needs, built once per process.
type runtime struct {
	cfg      *config.Config
	logger   *zap.Logger
	store    *session.Store
	sweeper  *session.Sweeper
	healthy  *health.Manager
	limiter  *llm.RateLimiter
	runner   *patterns.Runner
	surgical *memory.SurgicalStore
	global   *memory.GlobalStore
	audit    *trace.AuditStore
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.Logger()
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	store := session.NewStore(config.SessionStorePath(), logger)

	// Session management and health report need no transport.
	switch {
	case sessionList:
		return printSessionList(store)
	case sessionClose != "":
		return store.Close(sessionClose)
	case sessionCloseAll:
		return store.CloseAll()
	case sessionDigest != "":
		return printSessionDigest(store, sessionDigest)
	}

	ctx, interrupted, stop := interruptContext()
	defer stop()

	rt, err := buildRuntime(ctx, cfg, store, logger)
	if err != nil {
		if healthReport {
			return printOfflineHealthReport(ctx, cfg, logger, err)
		}
		return err
	}
	defer rt.shutdown()

	if healthReport {
		return printHealthReport(ctx, rt)
	}

	if err := rt.healthy.Check(ctx); err != nil {
		return err
	}

	return dispatch(ctx, rt, args, interrupted)
}

// interruptContext installs the cooperative interrupt: the first signal
// sets the flag the agent loop checks between steps, the second cancels
// outright.
func interruptContext() (context.Context, *atomic.Bool, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	interrupted := &atomic.Bool{}

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-ch
		interrupted.Store(true)
		<-ch
		cancel()
	}()

	return ctx, interrupted, func() {
		signal.Stop(ch)
		cancel()
	}
}

func buildRuntime(ctx context.Context, cfg *config.Config, store *session.Store, logger *zap.Logger) (*runtime, error) {
	limiter := llm.NewRateLimiter(llm.DefaultRateLimiterConfig())

	registry := tools.NewRegistry()
	toolkit.Register(registry, toolkit.NewGuard(cfg.AllowedPaths, cfg.AllowedCommands))
	dispatcher := tools.NewDispatcher(registry, logger)

	transport, prober, err := buildTransport(ctx, cfg, limiter, registry, dispatcher, logger)
	if err != nil {
		return nil, err
	}

	healthy := health.NewManager(cfg, prober, config.Load, logger)

	cwd, _ := os.Getwd()
	projectID := projectIDFor(cwd)
	surgical := memory.LoadSurgical(config.ProjectMemoryPath(projectID), projectID, cwd, logger)
	global := memory.LoadGlobal(config.GlobalMemoryPath(), logger)

	catalog, err := skills.Load(cfg.SkillsDir, logger)
	if err != nil {
		logger.Warn("skill catalog unavailable", zap.Error(err))
		catalog = nil
	}

	orch := &orchestrator.Orchestrator{
		Store:      store,
		Transport:  transport,
		Catalog:    catalog,
		Surgical:   surgical,
		Global:     global,
		Registry:   registry,
		Dispatcher: dispatcher,
		Logger:     logger,
	}

	runner := &patterns.Runner{
		Orch:                 orch,
		Surgical:             surgical,
		Global:               global,
		MaxReviewRounds:      maxRetries,
		ChunkThresholdTokens: cfg.ChunkThresholdTokens,
		NoValidate:           noValidate,
		Thinking:             cfg.ThinkingEnabled,
		NegotiateSkills:      negotiate,
		Logger:               logger,
	}
	if negotiate {
		runner.Ask = negotiationAsk(orch)
	}

	sweeper, err := session.NewSweeper(store, session.DefaultMaxAgeHours)
	if err == nil {
		sweeper.Start()
	}

	audit, err := trace.OpenAudit(filepath.Join(config.GetWeftDataDir(), "audit.db"))
	if err != nil {
		logger.Warn("audit store unavailable", zap.Error(err))
		audit = nil
	}

	return &runtime{
		cfg:      cfg,
		logger:   logger,
		store:    store,
		sweeper:  sweeper,
		healthy:  healthy,
		limiter:  limiter,
		runner:   runner,
		surgical: surgical,
		global:   global,
		audit:    audit,
	}, nil
}

func (rt *runtime) shutdown() {
	if rt.sweeper != nil {
		rt.sweeper.Stop()
	}
	if rt.audit != nil {
		rt.audit.Close() //nolint:errcheck
	}
	log.Sync() //nolint:errcheck
}

// buildTransport picks the transport the credentials support: the web
// session when bearer+cookies exist, the direct API otherwise.
func buildTransport(ctx context.Context, cfg *config.Config, limiter *llm.RateLimiter, registry *tools.Registry, dispatcher *tools.Dispatcher, logger *zap.Logger) (types.SessionTransport, health.Prober, error) {
	if cfg.HasWebCredentials() {
		wasmBytes, err := pow.LoadModule(ctx, cfg.WasmPath)
		if err != nil {
			return nil, nil, fmt.Errorf("web transport unavailable: %w", err)
		}
		solver, err := pow.NewWasmSolver(ctx, wasmBytes)
		if err != nil {
			return nil, nil, fmt.Errorf("web transport unavailable: %w", err)
		}
		client, err := web.NewClient(web.Config{
			BearerToken:     cfg.BearerToken,
			Cookies:         cfg.Cookies,
			Solver:          solver,
			ThinkingEnabled: cfg.ThinkingEnabled,
			RateLimiter:     limiter,
			Logger:          logger,
		})
		if err != nil {
			return nil, nil, err
		}
		return client, client, nil
	}

	if cfg.HasAPIKey() {
		client := api.NewClient(api.Config{
			APIKey:          cfg.APIKey,
			Model:           cfg.Model,
			AutoSelectModel: cfg.AutoSelectModel,
			Dispatcher:      dispatcher,
			Registry:        registry,
			RateLimiter:     limiter,
			Logger:          logger,
		})
		return client, nil, nil
	}

	return nil, nil, health.ErrReloginRequired
}

// negotiationAsk routes the skill negotiation round trip through its own
// short-lived session.
func negotiationAsk(orch *orchestrator.Orchestrator) skills.AskFunc {
	return func(ctx context.Context, prompt string) (string, error) {
		result, err := orch.Transport.Chat(ctx, types.ChatRequest{Prompt: prompt})
		if err != nil {
			return "", err
		}
		return result.Content, nil
	}
}

func projectIDFor(path string) string {
	sum := sha256.Sum256([]byte(path))
	return filepath.Base(path) + "-" + hex.EncodeToString(sum[:])[:12]
}

// dispatch selects the mode from the flags and runs it.
func dispatch(ctx context.Context, rt *runtime, args []string, interrupted *atomic.Bool) error {
	identifier := sessionID
	if identifier == "" {
		identifier = "default"
	}
	template, err := readOptionalFile(templateFile)
	if err != nil {
		return err
	}
	briefing, err := readOptionalFile(projectContext)
	if err != nil {
		return err
	}

	switch {
	case feedbackText != "":
		return runFeedback(ctx, rt, identifier)

	case delegateTask != "":
		return runDelegate(ctx, rt, identifier, withContext(delegateTask), template, briefing)

	case quantumTask != "":
		return runQuantum(ctx, rt, identifier, withContext(quantumTask), template)

	case multiTask != "":
		return runMulti(ctx, rt, identifier, withContext(multiTask), template)

	case len(converseMsgs) > 0 || converseFile != "":
		return runConverse(ctx, rt, identifier)

	case multiStepFile != "" || multiStepInline != "":
		return runMultiStep(ctx, rt, identifier)

	case agentGoal != "":
		return runAgent(ctx, rt, identifier, interrupted)

	case requirementsDoc != "":
		return runRequirements(ctx, rt, identifier)

	case len(args) == 1:
		return runQuery(ctx, rt, identifier, withContext(args[0]))
	}

	return fmt.Errorf("nothing to do: pass a query or a mode flag (see --help)")
}

func withContext(task string) string {
	if contextText == "" {
		return task
	}
	return task + "\n\nCONTEXTO:\n" + contextText
}

func readOptionalFile(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("cannot read %s: %w", path, err)
	}
	return string(data), nil
}

// runQuery is the single-shot path: classify, plan, one three-phase
// exchange, no validation loop.
func runQuery(ctx context.Context, rt *runtime, identifier, query string) error {
	level := classifier.Classify(query)
	plan, err := rt.runner.Orch.Plan(ctx, orchestrator.PlanRequest{
		Mode:       "chat",
		Identifier: identifier,
		Task:       query,
		Level:      level,
		SystemPrompt: func() string {
			return prompts.Assemble(level, prompts.Options{Mode: "chat"})
		},
	})
	if err != nil {
		return err
	}
	result, err := rt.runner.Orch.Execute(ctx, plan, rt.cfg.ThinkingEnabled)
	if err != nil {
		return err
	}
	return emit(rt, "chat", query, &patterns.Outcome{Content: result.Content, Level: level})
}

func runDelegate(ctx context.Context, rt *runtime, identifier, task, template, briefing string) error {
	warnRisk(rt, "delegate", task)
	rt.runner.Trace = newTrace(rt, "delegate", task)
	outcome, err := rt.runner.Delegate(ctx, patterns.DelegateRequest{
		Task:           task,
		Identifier:     identifier,
		Template:       template,
		ProjectContext: briefing,
	})
	if err != nil {
		return err
	}
	finishRun(rt, "delegate", task, outcome)
	return emit(rt, "delegate", task, outcome)
}

func runQuantum(ctx context.Context, rt *runtime, identifier, task, template string) error {
	warnRisk(rt, "quantum", task)
	rt.runner.Trace = newTrace(rt, "quantum", task)

	var angles [2]string
	if quantumAngles != "" {
		parts := strings.SplitN(quantumAngles, ",", 2)
		if len(parts) != 2 {
			return fmt.Errorf("--quantum-angles needs two comma-separated labels")
		}
		angles[0], angles[1] = strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}

	outcome, err := rt.runner.Quantum(ctx, patterns.QuantumRequest{
		Task:       task,
		Identifier: identifier,
		Template:   template,
		Angles:     angles,
	})
	if err != nil {
		return err
	}
	finishRun(rt, "quantum", task, outcome)
	return emit(rt, "quantum", task, outcome)
}

func runMulti(ctx context.Context, rt *runtime, identifier, task, template string) error {
	roleList := splitList(roles)
	if instances > 0 && instances < len(roleList) {
		roleList = roleList[:instances]
	}
	rt.runner.Trace = newTrace(rt, "multi", task)

	outcome, results, err := rt.runner.Multi(ctx, patterns.MultiRequest{
		Task:       task,
		Identifier: identifier,
		Template:   template,
		Roles:      roleList,
		Pipeline:   pipeline,
	})
	if err != nil {
		return err
	}
	finishRun(rt, "multi", task, outcome)
	if jsonOutput {
		return emit(rt, "multi", task, outcome)
	}
	for _, res := range results {
		fmt.Printf("=== %s ===\n%s\n\n", res.Role, res.Content)
	}
	return nil
}

func runConverse(ctx context.Context, rt *runtime, identifier string) error {
	messages := converseMsgs
	if converseFile != "" {
		body, err := readOptionalFile(converseFile)
		if err != nil {
			return err
		}
		for _, line := range strings.Split(body, "\n") {
			if line = strings.TrimSpace(line); line != "" {
				messages = append(messages, line)
			}
		}
	}
	if len(messages) == 0 {
		return fmt.Errorf("converse mode needs at least one message")
	}

	outcome, err := rt.runner.Converse(ctx, patterns.ConverseRequest{
		Identifier:   identifier,
		Messages:     messages,
		TransferFrom: transferFrom,
	})
	if err != nil {
		return err
	}
	return emit(rt, "converse", messages[len(messages)-1], outcome)
}

func runMultiStep(ctx context.Context, rt *runtime, identifier string) error {
	planJSON := multiStepInline
	if multiStepFile != "" {
		body, err := readOptionalFile(multiStepFile)
		if err != nil {
			return err
		}
		planJSON = body
	}
	plan, err := patterns.ParsePlan([]byte(planJSON))
	if err != nil {
		return err
	}

	rt.runner.Trace = newTrace(rt, "multistep", fmt.Sprintf("%d steps", len(plan.Steps)))
	results, err := rt.runner.MultiStep(ctx, identifier, plan)
	if err != nil {
		return err
	}
	return emitSteps(plan, results)
}

func runAgent(ctx context.Context, rt *runtime, identifier string, interrupted *atomic.Bool) error {
	warnRisk(rt, "agent", agentGoal)
	rt.runner.Trace = newTrace(rt, "agent", agentGoal)

	outcome, err := rt.runner.Agent(ctx, patterns.AgentRequest{
		Goal:        agentGoal,
		Identifier:  identifier,
		Interrupted: interrupted,
	})
	if err != nil {
		return err
	}
	finishRun(rt, "agent", agentGoal, outcome)
	return emit(rt, "agent", agentGoal, outcome)
}

func runRequirements(ctx context.Context, rt *runtime, identifier string) error {
	doc, err := readOptionalFile(requirementsDoc)
	if err != nil {
		return err
	}
	plan, results, err := rt.runner.Requirements(ctx, patterns.RequirementsRequest{
		Doc:         doc,
		Identifier:  identifier,
		AutoExecute: autoExecute,
	})
	if err != nil {
		return err
	}
	if !autoExecute {
		return emitPlan(plan)
	}
	return emitSteps(plan, results)
}

// runFeedback sends one corrective message into an existing session.
func runFeedback(ctx context.Context, rt *runtime, identifier string) error {
	name := "delegate:" + identifier
	if _, ok := rt.store.Get(name); !ok {
		return fmt.Errorf("no session %q to send feedback to", name)
	}
	plan, err := rt.runner.Orch.Plan(ctx, orchestrator.PlanRequest{
		Mode:       "delegate",
		Identifier: identifier,
		Task:       feedbackText,
		Level:      types.LevelCodeSimple,
	})
	if err != nil {
		return err
	}
	result, err := rt.runner.Orch.Exchange(ctx, plan, feedbackText, rt.cfg.ThinkingEnabled)
	if err != nil {
		return err
	}
	fmt.Println(result.Content)
	return nil
}

// warnRisk surfaces the cross-project failure history for the mode.
func warnRisk(rt *runtime, mode, task string) {
	pred := intel.PredictRisk(rt.global, mode, classifier.ClassifyForMode(task, mode))
	if pred.Risk == intel.RiskLow {
		return
	}
	for _, w := range pred.Warnings {
		fmt.Fprintf(os.Stderr, "aviso: %s\n", w)
	}
}

func newTrace(rt *runtime, mode, task string) *trace.Run {
	return trace.NewRun(config.TraceLogDir(), mode, task, rt.logger)
}

// finishRun closes the trace, feeds the audit store, and runs the failure
// analyzer on invalid outcomes. All fail-safe.
func finishRun(rt *runtime, mode, task string, outcome *patterns.Outcome) {
	if rt.runner.Trace != nil {
		rt.runner.Trace.Finish(outcome.Success())
	}
	if rt.audit != nil && rt.runner.Trace != nil {
		truncated := outcome.Validation != nil && outcome.Validation.Truncated
		rt.audit.RecordDelegation(rt.runner.Trace.ID, mode, task, //nolint:errcheck
			outcome.Level.String(), outcome.Success(), truncated, time.Duration(0))
	}
	if !outcome.Success() {
		intel.Analyze(task, outcome.Validation, outcome.Content, rt.surgical)
	}
}

func splitList(csv string) []string {
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
