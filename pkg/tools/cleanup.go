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
	"regexp"
	"strings"
)

var (
	resultCitation = regexp.MustCompile("(?m)^Resultado de `[^`]+`:\\s*$")
	assistantLine  = regexp.MustCompile(`(?m)^Assistant:.*$`)
	stepHeader     = regexp.MustCompile(`(?m)^Step \d+:.*$`)
	excessBlanks   = regexp.MustCompile(`\n{3,}`)
	fencedBlock    = regexp.MustCompile("(?s)```\\n[^`]*```")
)

// longFenceChars is the fence-body length past which an embedded block is
// treated as a pasted tool-output echo rather than an answer.
const longFenceChars = 4000

// CleanFinalResponse strips conversation artifacts from the final, non-tool
// response before it is returned to the controller: accidental citations of
// prior tool output, very long embedded fences, transcript role lines and
// step headers. Intermediate tool-loop responses are never cleaned.
func CleanFinalResponse(response string) string {
	cleaned := resultCitation.ReplaceAllString(response, "")
	cleaned = assistantLine.ReplaceAllString(cleaned, "")
	cleaned = stepHeader.ReplaceAllString(cleaned, "")
	cleaned = fencedBlock.ReplaceAllStringFunc(cleaned, func(block string) string {
		body := strings.TrimSuffix(strings.TrimPrefix(block, "```\n"), "```")
		if len(body) >= longFenceChars {
			return "[contenido extenso omitido]"
		}
		return block
	})
	cleaned = excessBlanks.ReplaceAllString(cleaned, "\n\n")
	return strings.TrimSpace(cleaned)
}
