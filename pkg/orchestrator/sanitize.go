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
	"regexp"
	"strings"
)

// ackInstructions matches Spanish/English variants of "reply only OK"
// that a controller may accidentally suffix onto the task. Phase 1 owns
// that instruction; leaking it into Phase 3 makes the backend answer
// "OK" instead of doing the work.
var ackInstructions = []*regexp.Regexp{
	regexp.MustCompile(`(?i)[,.;]?\s*(di|responde?|contesta)\s+(solo|solamente|unicamente)\s*[:]?\s*['"]?OK['"]?\.?`),
	regexp.MustCompile(`(?i)[,.;]?\s*(say|respond|reply|answer)\s+(only|just)\s*(with)?\s*[:]?\s*['"]?OK['"]?\.?`),
	regexp.MustCompile(`(?i)[,.;]?\s*(solo|only)\s+(di|responde|say|reply)\s*[:]?\s*['"]?OK['"]?\.?`),
}

// Sanitize scrubs acknowledgment instructions out of the Phase-3 task.
// If scrubbing would empty the message, the original is kept.
func Sanitize(task string) string {
	cleaned := task
	for _, re := range ackInstructions {
		cleaned = re.ReplaceAllString(cleaned, "")
	}
	cleaned = strings.TrimSpace(cleaned)
	if cleaned == "" {
		return task
	}
	return cleaned
}
