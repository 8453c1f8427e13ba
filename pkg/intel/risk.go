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
package intel

import (
	"fmt"

	"github.com/teradata-labs/weft/pkg/memory"
	"github.com/teradata-labs/weft/pkg/types"
)

// Risk thresholds.
const (
	minSampleSize = 5
	highRisk      = 0.6
	mediumRisk    = 0.35
)

// Risk levels.
const (
	RiskLow    = "low"
	RiskMedium = "medium"
	RiskHigh   = "high"
)

// Prediction is the pre-delegation risk assessment.
type Prediction struct {
	Risk     string
	Score    float64 // failure probability estimate, 0..1
	Warnings []string
}

// PredictRisk estimates how likely a delegation is to fail before any
// tokens are spent, from the cross-project history of the same mode and
// task level. Thin history yields a low-risk verdict; the predictor
// never blocks, it only warns.
func PredictRisk(global *memory.GlobalStore, mode string, level types.TaskLevel) Prediction {
	pred := Prediction{Risk: RiskLow}
	if global == nil {
		return pred
	}

	var samples int
	var failureRate float64

	if stats := global.ModeStatsFor(mode); stats != nil && stats.Total >= minSampleSize {
		rate := 1.0 - float64(stats.Successes)/float64(stats.Total)
		failureRate += rate
		samples++
		if rate > highRisk {
			pred.Warnings = append(pred.Warnings,
				fmt.Sprintf("el modo %s fallo en %.0f%% de los intentos previos", mode, rate*100))
		}
	}

	if stats := global.ComplexityStatsFor(level.String()); stats != nil && stats.Total >= minSampleSize {
		rate := 1.0 - float64(stats.Successes)/float64(stats.Total)
		failureRate += rate
		samples++
		if rate > highRisk {
			pred.Warnings = append(pred.Warnings,
				fmt.Sprintf("las tareas de nivel %s fallan con frecuencia; considerar dividirlas", level))
		}
	}

	if samples == 0 {
		return pred
	}

	pred.Score = failureRate / float64(samples)
	switch {
	case pred.Score >= highRisk:
		pred.Risk = RiskHigh
	case pred.Score >= mediumRisk:
		pred.Risk = RiskMedium
	}
	return pred
}
