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

// Package prompts assembles system prompts from composable blocks. The
// block set chosen depends on the task level and execution mode: a chat
// turn gets the base block only, a delegation gets the full code ruleset
// plus mode-specific guidance.
package prompts

import (
	"fmt"
	"strings"

	"github.com/teradata-labs/weft/pkg/types"
)

// Prompt blocks. These go upstream verbatim; the backend's working
// language is Spanish, matching the controller surface.
const (
	blockBase = `Eres un asistente de programacion experto. Respondes de forma directa y precisa, sin relleno.`

	blockCodeRules = `REGLAS DE CODIGO:
- Entrega codigo COMPLETO, nunca fragmentos con "...".
- No expliques el codigo salvo que se pida explicitamente.
- Usa los nombres y convenciones del proyecto si se te han dado.
- No inventes APIs: si dudas de una firma, usa la forma estandar.`

	blockAdvanced = `ARQUITECTURA:
- Separa responsabilidades en funciones/modulos pequenos.
- Maneja errores explicitamente; no silencies excepciones.
- Valida entradas en los limites del sistema.`

	blockTodo = `MARCADORES:
El template contiene marcadores TODO_*. Implementa CADA marcador como un
bloque con el simbolo definido. No elimines ni renombres marcadores.`

	blockSurgical = `MODO QUIRURGICO:
Modifica SOLO lo que la tarea pide. No reformatees ni reorganices codigo
que ya funciona.`

	blockMultiFile = `MULTI-ARCHIVO:
Cuando produzcas varios archivos, precede cada uno con una linea
"// FILE: ruta/relativa" y manten cada archivo autocontenido.`

	blockGeneration = `GENERACION:
Esta es una tarea de generacion desde cero. Define primero la estructura
(tipos, firmas) y despues los cuerpos. Nada de pseudocodigo.`
)

// NegotiationPrompt is the short system prompt used for the skill
// negotiation round trip.
const NegotiationPrompt = `Eres un selector de skills. Te paso un catalogo "nombre: descripcion"
y una tarea. Responde SOLO con los nombres de las skills utiles para la
tarea, uno por linea, o NONE si ninguna aplica. Sin explicaciones.`

// AgentActivation is the literal acknowledgment the agent loop expects
// after its Phase-1 system prompt.
const AgentActivation = "DEEPSEEK CODE ACTIVADO"

// blockAgent is the heavy agent-loop identity; it demands the literal
// activation token so the loop can verify the prompt landed.
var blockAgent = `Eres un agente autonomo de programacion. Trabajas por pasos: en cada
paso decides que herramientas invocar para avanzar hacia el objetivo.
Nunca DESCRIBAS una accion sin ejecutarla con una herramienta.
Confirma que entendiste respondiendo exactamente: ` + AgentActivation

// Options select which optional blocks join the assembly.
type Options struct {
	Mode        string // delegate, quantum, multi, agent, ...
	HasTemplate bool   // adds the TODO-marker block
	Surgical    bool   // adds the surgical-edit block
	MultiFile   bool
	Generation  bool
}

// Assemble builds the system prompt for a task level.
func Assemble(level types.TaskLevel, opts Options) string {
	if opts.Mode == "agent" {
		return blockAgent
	}

	blocks := []string{blockBase}
	if level.AtLeast(types.LevelCodeSimple) {
		blocks = append(blocks, blockCodeRules)
	}
	if level.AtLeast(types.LevelCodeComplex) {
		blocks = append(blocks, blockAdvanced)
	}
	if opts.HasTemplate {
		blocks = append(blocks, blockTodo)
	}
	if opts.Surgical {
		blocks = append(blocks, blockSurgical)
	}
	if opts.MultiFile {
		blocks = append(blocks, blockMultiFile)
	}
	if opts.Generation {
		blocks = append(blocks, blockGeneration)
	}
	return strings.Join(blocks, "\n\n")
}

// Role suffixes for multi-session instances. Appended to the assembled
// system prompt of each instance.
var roleSuffixes = map[string]string{
	"generator": "\n\nROL: GENERADOR. Produce la implementacion completa de tu parte.",
	"reviewer":  "\n\nROL: REVISOR. Revisa el codigo recibido y devuelve una version corregida.",
	"tester":    "\n\nROL: TESTER. Escribe pruebas para el codigo recibido y reporta fallos.",
	"merger":    "\n\nROL: INTEGRADOR. Combina las partes recibidas en un resultado coherente.",
}

// RoleSuffix returns the system-prompt suffix for a multi-session role.
// "specialist(dominio)" parametrizes on the domain inside the parens.
func RoleSuffix(role string) string {
	if strings.HasPrefix(role, "specialist(") && strings.HasSuffix(role, ")") {
		domain := strings.TrimSuffix(strings.TrimPrefix(role, "specialist("), ")")
		return fmt.Sprintf("\n\nROL: ESPECIALISTA en %s. Resuelve solo los aspectos de %s.", domain, domain)
	}
	if suffix, ok := roleSuffixes[role]; ok {
		return suffix
	}
	return ""
}

// RolePriority orders roles for the sequential pipeline, higher first.
func RolePriority(role string) int {
	switch {
	case role == "generator":
		return 100
	case strings.HasPrefix(role, "specialist"):
		return 80
	case role == "reviewer":
		return 60
	case role == "tester":
		return 40
	case role == "merger":
		return 20
	default:
		return 0
	}
}
