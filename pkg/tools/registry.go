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
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry manages tool registration and lookup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

// NewRegistry creates a new tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register registers a tool with the registry.
// If a tool with the same name already exists, it is replaced.
func (r *Registry) Register(tool Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[tool.Name()]; !exists {
		r.order = append(r.order, tool.Name())
	}
	r.tools[tool.Name()] = tool
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tool, ok := r.tools[name]
	return tool, ok
}

// List returns all registered tool names in registration order.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.order))
	copy(names, r.order)
	return names
}

// ListTools returns all registered tools in registration order.
func (r *Registry) ListTools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tools := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		tools = append(tools, r.tools[name])
	}
	return tools
}

// CatalogueBlock renders the tool catalogue section injected once per
// session (Phase 1). It instructs the assistant how to frame invocations.
func (r *Registry) CatalogueBlock() string {
	tools := r.ListTools()
	if len(tools) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("## Herramientas disponibles\n\n")
	b.WriteString("Cuando necesites invocar herramientas, emite UN bloque:\n\n")
	b.WriteString("```tool_call\n[ {\"tool\": \"...\", \"args\": {...}}, ... ]\n```\n\n")
	for _, tool := range tools {
		schema, err := tool.InputSchema().ToJSON()
		if err != nil {
			schema = []byte("{}")
		}
		fmt.Fprintf(&b, "- `%s`: %s\n  args: %s\n", tool.Name(), tool.Description(), schema)
	}
	return b.String()
}

// Descriptors returns (name, description, schema) tuples sorted by name,
// for the direct-API transport's native tools parameter.
func (r *Registry) Descriptors() []Descriptor {
	tools := r.ListTools()
	out := make([]Descriptor, 0, len(tools))
	for _, t := range tools {
		out = append(out, Descriptor{
			Name:        t.Name(),
			Description: t.Description(),
			Schema:      t.InputSchema(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Descriptor describes a tool for transport serialization.
type Descriptor struct {
	Name        string
	Description string
	Schema      *JSONSchema
}
