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
package tools

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap/zaptest"
)

func TestParseCalls_SingleObject(t *testing.T) {
	response := "Voy a listar el directorio.\n```tool_call\n" +
		`{"tool": "list_directory", "args": {"path": "C:/Users/Me/Desktop"}}` +
		"\n```\n"

	calls := ParseCalls(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "list_directory", calls[0].Name)
	assert.Equal(t, "C:/Users/Me/Desktop", calls[0].Args["path"])
	assert.NotEmpty(t, calls[0].ID)
}

func TestParseCalls_Array(t *testing.T) {
	response := "```tool_call\n" +
		`[{"tool": "read_file", "args": {"path": "a.js"}},` +
		` {"tool": "read_file", "args": {"path": "b.js"}}]` +
		"\n```"

	calls := ParseCalls(response)
	require.Len(t, calls, 2)
	assert.Equal(t, "a.js", calls[0].Args["path"])
	assert.Equal(t, "b.js", calls[1].Args["path"])
}

func TestParseCalls_ArgumentsKeyAccepted(t *testing.T) {
	response := "```tool_call\n" +
		`{"tool": "write_file", "arguments": {"path": "x.js", "content": "1"}}` +
		"\n```"

	calls := ParseCalls(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "x.js", calls[0].Args["path"])
}

func TestParseCalls_DeduplicatesIdenticalBlocks(t *testing.T) {
	block := "```tool_call\n" +
		`{"tool": "list_directory", "args": {"path": "C:/Users/Me/Desktop"}}` +
		"\n```"
	response := block + "\n\nrepito:\n\n" + block

	calls := ParseCalls(response)
	// Two identical blocks collapse to exactly one dispatch.
	require.Len(t, calls, 1)
}

func TestParseCalls_MalformedBlockDropped(t *testing.T) {
	response := "```tool_call\nnot json at all\n```\n" +
		"```tool_call\n{\"tool\": \"read_file\", \"args\": {}}\n```"

	calls := ParseCalls(response)
	require.Len(t, calls, 1)
	assert.Equal(t, "read_file", calls[0].Name)
}

func TestParseCalls_NoBlocks(t *testing.T) {
	assert.Nil(t, ParseCalls("plain answer, no tools"))
}

func TestCanonical_KeyOrderStable(t *testing.T) {
	a := Canonical("t", map[string]interface{}{"b": 1.0, "a": "x"})
	b := Canonical("t", map[string]interface{}{"a": "x", "b": 1.0})
	assert.Equal(t, a, b)
}

// echoTool is a trivial tool for dispatcher tests.
type echoTool struct {
	name     string
	executed int
	fail     bool
}

func (e *echoTool) Name() string        { return e.name }
func (e *echoTool) Description() string { return "echoes its input" }
func (e *echoTool) InputSchema() *JSONSchema {
	return NewObjectSchema("echo args", map[string]*JSONSchema{
		"text": NewStringSchema("text to echo"),
	}, []string{"text"})
}

func (e *echoTool) Execute(_ context.Context, args map[string]interface{}) (*Result, error) {
	e.executed++
	if e.fail {
		return nil, assert.AnError
	}
	text, _ := args["text"].(string)
	return &Result{Success: true, Output: text}, nil
}

func TestDispatcher_ExecutesAndFrames(t *testing.T) {
	registry := NewRegistry()
	echo := &echoTool{name: "echo"}
	registry.Register(echo)

	d := NewDispatcher(registry, zaptest.NewLogger(t))
	execs, msg := d.Dispatch(context.Background(), []types.ToolCall{
		{ID: "1", Name: "echo", Args: map[string]interface{}{"text": "hola"}},
	})

	require.Len(t, execs, 1)
	assert.True(t, execs[0].Result.Success)
	assert.Equal(t, 1, echo.executed)
	assert.Contains(t, msg, "Resultado de `echo`:")
	assert.Contains(t, msg, "hola")
}

func TestDispatcher_UnknownTool(t *testing.T) {
	d := NewDispatcher(NewRegistry(), zaptest.NewLogger(t))
	execs, msg := d.Dispatch(context.Background(), []types.ToolCall{
		{ID: "1", Name: "nope", Args: map[string]interface{}{}},
	})

	require.Len(t, execs, 1)
	assert.False(t, execs[0].Result.Success)
	assert.Contains(t, msg, "unknown tool")
}

func TestDispatcher_SchemaRejectsMissingRequired(t *testing.T) {
	registry := NewRegistry()
	echo := &echoTool{name: "echo"}
	registry.Register(echo)

	d := NewDispatcher(registry, zaptest.NewLogger(t))
	execs, _ := d.Dispatch(context.Background(), []types.ToolCall{
		{ID: "1", Name: "echo", Args: map[string]interface{}{}},
	})

	require.Len(t, execs, 1)
	assert.False(t, execs[0].Result.Success)
	assert.Contains(t, execs[0].Result.Error, "invalid arguments")
	assert.Equal(t, 0, echo.executed)
}

func TestFrameResult_TruncatesOversizedOutput(t *testing.T) {
	huge := strings.Repeat("x", MaxResultChars+100)
	framed := frameResult("big", &Result{Success: true, Output: huge})
	assert.Less(t, len(framed), MaxResultChars+300)
	assert.Contains(t, framed, "resultado truncado")
}

func TestCleanFinalResponse(t *testing.T) {
	raw := "Assistant: previo\nStep 3: hacer cosas\nRespuesta final.\n\n\n\n\nFin."
	cleaned := CleanFinalResponse(raw)
	assert.NotContains(t, cleaned, "Assistant:")
	assert.NotContains(t, cleaned, "Step 3:")
	assert.NotContains(t, cleaned, "\n\n\n")
	assert.Contains(t, cleaned, "Respuesta final.")
}

func TestCleanFinalResponse_LongFenceOmitted(t *testing.T) {
	long := "Resumen:\n```\n" + strings.Repeat("x", longFenceChars+10) + "```\nFin."
	cleaned := CleanFinalResponse(long)
	assert.Contains(t, cleaned, "[contenido extenso omitido]")
	assert.NotContains(t, cleaned, "xxxx")

	short := "Resumen:\n```\ncodigo corto\n```\nFin."
	assert.Contains(t, CleanFinalResponse(short), "codigo corto")
}
