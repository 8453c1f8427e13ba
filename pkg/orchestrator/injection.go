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

// Package orchestrator is the central decision layer: given a mode, an
// identifier and a task, it decides which system prompt and context
// blocks still have to go upstream, then drives the three-phase exchange
// over a persistent session. Context blocks are sent at most once per
// session lifetime; that deferral is where the token savings come from.
package orchestrator

import "fmt"

// Injection types.
const (
	TypeSkill     = "skill"
	TypeMemory    = "memory"
	TypeGlobal    = "global"
	TypeError     = "error"
	TypeKnowledge = "knowledge"
)

// Injection is one context block pending transmission.
type Injection struct {
	Type    string
	Name    string
	Content string
}

// ID is the ledger identifier.
func (i Injection) ID() string {
	return i.Type + ":" + i.Name
}

// Ack returns the literal acknowledgment expected for this block type.
func (i Injection) Ack() string {
	switch i.Type {
	case TypeSkill:
		return fmt.Sprintf("Skill %s aceptada", i.Name)
	case TypeMemory:
		return fmt.Sprintf("Memoria %s integrada", i.Name)
	case TypeGlobal:
		return fmt.Sprintf("Perfil %s integrado", i.Name)
	case TypeError:
		return fmt.Sprintf("Errores de %s registrados", i.Name)
	default:
		return fmt.Sprintf("Conocimiento de %s integrado", i.Name)
	}
}

// Frame renders the Phase-2 message for this block.
func (i Injection) Frame() string {
	upper := map[string]string{
		TypeSkill:     "SKILL",
		TypeMemory:    "MEMORY",
		TypeGlobal:    "GLOBAL",
		TypeError:     "ERROR",
		TypeKnowledge: "KNOWLEDGE",
	}[i.Type]
	if upper == "" {
		upper = "KNOWLEDGE"
	}
	return fmt.Sprintf("== %s: %s ==\n\n%s\n\n== END %s ==\n\nReply only: '%s'",
		upper, i.Name, i.Content, upper, i.Ack())
}
