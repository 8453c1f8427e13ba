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
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/weft/pkg/session"
	"github.com/teradata-labs/weft/pkg/skills"
	"github.com/teradata-labs/weft/pkg/tools"
	"github.com/teradata-labs/weft/pkg/types"
	"github.com/teradata-labs/weft/pkg/validate"
	"go.uber.org/zap/zaptest"
)

// fakeTransport counts upstream turns and replays canned responses.
type fakeTransport struct {
	created   int
	calls     int
	prompts   []string
	responses []string // consumed in order; last one repeats
}

func (f *fakeTransport) CreateChatSession(ctx context.Context) (string, error) {
	f.created++
	return fmt.Sprintf("upstream-%d", f.created), nil
}

func (f *fakeTransport) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResult, error) {
	f.calls++
	f.prompts = append(f.prompts, req.Prompt)
	content := "OK"
	if len(f.responses) > 0 {
		content = f.responses[0]
		if len(f.responses) > 1 {
			f.responses = f.responses[1:]
		}
	}
	return &types.ChatResult{
		Content:   content,
		MessageID: fmt.Sprintf("msg-%d", f.calls),
		SessionID: req.SessionID,
	}, nil
}

func (f *fakeTransport) Name() string { return "fake" }

func newTestOrchestrator(t *testing.T, transport types.SessionTransport, catalog *skills.Catalog) *Orchestrator {
	t.Helper()
	logger := zaptest.NewLogger(t)
	store := session.NewStore(filepath.Join(t.TempDir(), "sessions.json"), logger)
	return &Orchestrator{
		Store:     store,
		Transport: transport,
		Catalog:   catalog,
		Logger:    logger,
	}
}

func jwtCatalog(t *testing.T) *skills.Catalog {
	t.Helper()
	return skills.NewCatalog([]*skills.Skill{
		{
			Name:        "jwt-patterns",
			Description: "patrones de autenticacion JWT",
			Keywords:    []string{"jwt", "token", "autenticacion"},
			Content:     "Usa HS256 y expira los tokens a los 15 minutos.",
		},
	}, zaptest.NewLogger(t))
}

func TestFirstExchangeSendsThreePhases(t *testing.T) {
	transport := &fakeTransport{}
	o := newTestOrchestrator(t, transport, jwtCatalog(t))

	req := PlanRequest{
		Mode:         "delegate",
		Identifier:   "auth",
		Task:         "implementa autenticacion jwt para la API",
		Level:        types.LevelCodeSimple,
		SystemPrompt: func() string { return "Eres un desarrollador experto." },
	}

	plan, err := o.Plan(context.Background(), req)
	require.NoError(t, err)
	require.NotEmpty(t, plan.SystemPrompt)
	require.Len(t, plan.PendingInjections, 1)
	assert.Equal(t, "skill:jwt-patterns", plan.PendingInjections[0].ID())

	_, err = o.Execute(context.Background(), plan, false)
	require.NoError(t, err)
	assert.Equal(t, 3, transport.calls, "system prompt, one injection, then the task")

	sess, ok := o.Store.Get("delegate:auth")
	require.True(t, ok)
	assert.True(t, sess.SystemPromptSent)
	assert.True(t, sess.HasContext("skill:jwt-patterns"))
	assert.Equal(t, "msg-3", sess.ParentMessageID)

	// Second exchange on the same session: everything already sent, the
	// task goes up alone.
	plan2, err := o.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, plan2.SystemPrompt)
	assert.Empty(t, plan2.PendingInjections)

	_, err = o.Execute(context.Background(), plan2, false)
	require.NoError(t, err)
	assert.Equal(t, 4, transport.calls, "exactly one more upstream turn")
	assert.Equal(t, 1, transport.created, "the upstream session is reused")
}

func TestPlanDeduplicatesExtras(t *testing.T) {
	transport := &fakeTransport{}
	o := newTestOrchestrator(t, transport, nil)

	extra := Injection{Type: TypeKnowledge, Name: "resumen", Content: "hallazgos previos"}
	req := PlanRequest{
		Mode:       "converse",
		Identifier: "review",
		Task:       "revisa el modulo de pagos",
		Level:      types.LevelChat,
		Extras:     []Injection{extra, extra},
	}

	plan, err := o.Plan(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, plan.PendingInjections, 1)

	_, err = o.Execute(context.Background(), plan, false)
	require.NoError(t, err)

	// Replanning with the same extra finds it in the ledger.
	plan2, err := o.Plan(context.Background(), req)
	require.NoError(t, err)
	assert.Empty(t, plan2.PendingInjections)
}

func TestInjectionFraming(t *testing.T) {
	inj := Injection{Type: TypeSkill, Name: "canvas-games", Content: "usa requestAnimationFrame"}
	frame := inj.Frame()
	assert.Contains(t, frame, "== SKILL: canvas-games ==")
	assert.Contains(t, frame, "== END SKILL ==")
	assert.Contains(t, frame, "Reply only: 'Skill canvas-games aceptada'")

	assert.Equal(t, "Memoria surgical-project integrada",
		Injection{Type: TypeMemory, Name: "surgical-project"}.Ack())
	assert.Equal(t, "Perfil developer-profile integrado",
		Injection{Type: TypeGlobal, Name: "developer-profile"}.Ack())
	assert.Equal(t, "Errores de errores-comunes registrados",
		Injection{Type: TypeError, Name: "errores-comunes"}.Ack())
	assert.Equal(t, "Conocimiento de sesion-a integrado",
		Injection{Type: TypeKnowledge, Name: "sesion-a"}.Ack())
}

func TestSanitizeStripsAckInstructions(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"implementa el login. Responde solo OK", "implementa el login"},
		{"implementa el login, di solamente 'OK'", "implementa el login"},
		{"build the parser. Reply only OK.", "build the parser"},
		{"build the parser and say just: OK", "build the parser and"},
		{"implementa el login", "implementa el login"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, Sanitize(tc.in), "input: %s", tc.in)
	}
}

func TestSanitizeKeepsOriginalWhenScrubEmpties(t *testing.T) {
	in := "Responde solo OK"
	assert.Equal(t, in, Sanitize(in))
}

func TestExecuteResetsUpstreamAfterRecovery(t *testing.T) {
	transport := &recoveringTransport{}
	o := newTestOrchestrator(t, transport, nil)

	plan, err := o.Plan(context.Background(), PlanRequest{
		Mode:       "delegate",
		Identifier: "tarea",
		Task:       "haz algo",
		Level:      types.LevelChat,
	})
	require.NoError(t, err)

	_, err = o.Execute(context.Background(), plan, false)
	require.NoError(t, err)

	sess, ok := o.Store.Get("delegate:tarea")
	require.True(t, ok)
	assert.Equal(t, "recovered-session", sess.UpstreamID)
	// The parent chain restarts from the first message of the recovered
	// session, never from the dead one.
	assert.Equal(t, "msg-1", sess.ParentMessageID)
}

// recoveringTransport simulates internal stall recovery: the response
// comes back on a different upstream session.
type recoveringTransport struct{ calls int }

func (r *recoveringTransport) CreateChatSession(ctx context.Context) (string, error) {
	return "original-session", nil
}

func (r *recoveringTransport) Chat(ctx context.Context, req types.ChatRequest) (*types.ChatResult, error) {
	r.calls++
	return &types.ChatResult{
		Content:   "listo",
		MessageID: fmt.Sprintf("msg-%d", r.calls),
		SessionID: "recovered-session",
	}, nil
}

func (r *recoveringTransport) Name() string { return "fake" }

type echoTool struct{}

func (echoTool) Name() string              { return "read_file" }
func (echoTool) Description() string       { return "lee un archivo" }
func (echoTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("argumentos de lectura", map[string]*tools.JSONSchema{
		"path": tools.NewStringSchema("ruta del archivo"),
	}, []string{"path"})
}

func (echoTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	path, _ := args["path"].(string)
	return &tools.Result{Success: true, Output: "contenido de " + path}, nil
}

func newEchoDispatcher(t *testing.T) *tools.Dispatcher {
	t.Helper()
	registry := tools.NewRegistry()
	registry.Register(echoTool{})
	return tools.NewDispatcher(registry, zaptest.NewLogger(t))
}

func TestExecuteRunsToolLoop(t *testing.T) {
	transport := &fakeTransport{responses: []string{
		"```tool_call\n{\"tool\": \"read_file\", \"args\": {\"path\": \"main.js\"}}\n```",
		"El archivo contiene la inicializacion.",
	}}
	o := newTestOrchestrator(t, transport, nil)
	o.Dispatcher = newEchoDispatcher(t)

	plan, err := o.Plan(context.Background(), PlanRequest{
		Mode:       "agent",
		Identifier: "lector",
		Task:       "lee main.js",
		Level:      types.LevelChat,
	})
	require.NoError(t, err)

	result, err := o.Execute(context.Background(), plan, false)
	require.NoError(t, err)
	assert.Equal(t, 1, result.ToolRounds)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "read_file", result.Executions[0].Call.Name)
	assert.Equal(t, "El archivo contiene la inicializacion.", result.Content)
}

func TestContinuationExtendsTruncatedResponse(t *testing.T) {
	truncated := "function init() {\n  const x = 1;\n  if (x >"
	remainder := " 0) {\n    render();\n  }\n}"
	transport := &fakeTransport{responses: []string{truncated, remainder}}
	o := newTestOrchestrator(t, transport, nil)

	plan, err := o.Plan(context.Background(), PlanRequest{
		Mode:       "delegate",
		Identifier: "juego",
		Task:       "escribe init",
		Level:      types.LevelCodeSimple,
	})
	require.NoError(t, err)

	result, err := o.ExecuteWithContinuation(context.Background(), plan, false, validate.Options{})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "render();")
	assert.True(t, validate.BracesBalanced(result.Content))
	require.GreaterOrEqual(t, transport.calls, 2)
	assert.Equal(t, "Continue exactly where you stopped. Do not repeat prior code.",
		transport.prompts[len(transport.prompts)-1])
}
