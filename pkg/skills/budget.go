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
	"github.com/teradata-labs/weft/internal/tokens"
	"github.com/teradata-labs/weft/pkg/types"
)

// Budget split fractions and the fixed errors-reference reserve.
const (
	domainFraction     = 0.60
	specialistFraction = 0.25
	errorsReserve      = 5000
)

// minScore filters out skills with no real signal.
const minScore = 0.05

// TokenBudget returns the total skill-content budget for a level.
func TokenBudget(level types.TaskLevel) int {
	switch level {
	case types.LevelCodeSimple:
		return 10_000
	case types.LevelCodeComplex:
		return 40_000
	case types.LevelDelegation:
		return 80_000
	default:
		return 0
	}
}

// Selection is the outcome of skill selection for one task.
type Selection struct {
	Skills []*Skill

	// ErrorsBudget is the token reserve left for a common-errors
	// reference block, nonzero only when the caller reported recurring
	// errors and the level carries a budget at all.
	ErrorsBudget int
}

// Select picks skills for the task under the level's token budget: the
// top-scored skills fill the domain share, the remainder of the ranking
// spills into the specialist share, and a fixed reserve is held back for
// an errors reference when the project has recurring errors.
func (c *Catalog) Select(task string, level types.TaskLevel, effectiveness EffectivenessFunc, hasRecurringErrors bool) Selection {
	total := TokenBudget(level)
	if total == 0 || len(c.skills) == 0 {
		return Selection{}
	}

	errorsBudget := 0
	if hasRecurringErrors && total > errorsReserve {
		errorsBudget = errorsReserve
		total -= errorsReserve
	}

	domainBudget := int(float64(total) * domainFraction)
	specialistBudget := int(float64(total) * specialistFraction)

	ranked := c.Rank(task, effectiveness)

	var selected []*Skill
	domain := tokens.NewBudget(domainBudget)
	specialist := tokens.NewBudget(specialistBudget)

	for _, sc := range ranked {
		if sc.Score < minScore {
			break
		}
		cost := tokens.Approximate(sc.Skill.Content)
		switch {
		case domain.CanFit(cost):
			domain.Use(cost)
		case specialist.CanFit(cost):
			specialist.Use(cost)
		default:
			continue
		}
		selected = append(selected, sc.Skill)
	}

	return Selection{Skills: selected, ErrorsBudget: errorsBudget}
}
