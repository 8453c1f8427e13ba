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
package skills

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
	"github.com/teradata-labs/weft/internal/tokens"
	"github.com/teradata-labs/weft/pkg/types"
	"go.uber.org/zap"
)

// DefaultNegotiationTimeout bounds the negotiation round trip; on expiry
// selection falls back to hybrid scoring.
const DefaultNegotiationTimeout = 15 * time.Second

// AskFunc performs the negotiation round trip: prompt in, raw reply out.
type AskFunc func(ctx context.Context, prompt string) (string, error)

// Negotiate asks the backend which skills it wants for the task and loads
// exactly those, in catalogue order, under the level budget. On timeout,
// transport failure, or an unparseable reply it falls back transparently
// to Select.
func (c *Catalog) Negotiate(ctx context.Context, task string, level types.TaskLevel, ask AskFunc, effectiveness EffectivenessFunc, hasRecurringErrors bool) Selection {
	total := TokenBudget(level)
	if total == 0 || len(c.skills) == 0 {
		return Selection{}
	}

	ctx, cancel := context.WithTimeout(ctx, DefaultNegotiationTimeout)
	defer cancel()

	prompt := fmt.Sprintf("CATALOGO:\n%s\nTAREA: %s\n\nResponde solo con los nombres utiles, uno por linea, o NONE.",
		c.CatalogueLines(), task)

	reply, err := ask(ctx, prompt)
	if err != nil {
		c.logger.Debug("skill negotiation failed, falling back to scoring", zap.Error(err))
		return c.Select(task, level, effectiveness, hasRecurringErrors)
	}

	names, ok := c.parseReply(reply)
	if !ok {
		c.logger.Debug("skill negotiation reply unparseable, falling back to scoring",
			zap.String("reply", truncateForLog(reply)))
		return c.Select(task, level, effectiveness, hasRecurringErrors)
	}
	if len(names) == 0 {
		// Explicit NONE: the backend wants nothing injected.
		return Selection{}
	}

	wanted := make(map[string]bool, len(names))
	for _, n := range names {
		wanted[n] = true
	}

	errorsBudget := 0
	if hasRecurringErrors && total > errorsReserve {
		errorsBudget = errorsReserve
		total -= errorsReserve
	}

	budget := tokens.NewBudget(total)
	var selected []*Skill
	for _, s := range c.skills { // catalogue order
		if !wanted[s.Name] {
			continue
		}
		cost := tokens.Approximate(s.Content)
		if !budget.CanFit(cost) {
			continue
		}
		budget.Use(cost)
		selected = append(selected, s)
	}
	return Selection{Skills: selected, ErrorsBudget: errorsBudget}
}

var replyNoise = regexp.MustCompile(`^[\s\d.\-*•)\x60]+|[\s\x60]+$`)

// parseReply extracts skill names from the negotiation reply: one name
// per line, stripped of numbering, bullets and backticks, lower-cased and
// hyphenated, then fuzzy-matched against the catalogue. ok is false when
// no line resolves to a known skill and the reply was not NONE.
func (c *Catalog) parseReply(reply string) (names []string, ok bool) {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return nil, false
	}
	if strings.EqualFold(trimmed, "NONE") {
		return nil, true
	}

	catalogue := make([]string, len(c.skills))
	for i, s := range c.skills {
		catalogue[i] = s.Name
	}

	seen := make(map[string]bool)
	for _, line := range strings.Split(trimmed, "\n") {
		cleaned := replyNoise.ReplaceAllString(line, "")
		cleaned = strings.ToLower(strings.TrimSpace(cleaned))
		cleaned = strings.ReplaceAll(cleaned, " ", "-")
		if cleaned == "" || cleaned == "none" {
			continue
		}

		name := cleaned
		if _, exact := c.byName[name]; !exact {
			matches := fuzzy.Find(cleaned, catalogue)
			if len(matches) == 0 {
				continue
			}
			name = matches[0].Str
		}
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}

	if len(names) == 0 {
		return nil, false
	}
	return names, true
}

func truncateForLog(s string) string {
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}
