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

// Package memory implements the two learned stores: the per-project
// ("surgical") store of errors, rules and patterns, and the cross-project
// ("global") profile of style, skill effectiveness and mode performance.
// Both are fail-safe: persistence errors are logged and never propagate.
package memory

import (
	"math"
	"time"
)

// halfLifeDays is the relevance half-life used by compaction.
const halfLifeDays = 30.0

// relevance scores an entry by age and usage frequency:
// exp(-ln2 * age/halfLife) * (1 + 0.1*(freq-1)). A 30-day-old entry used
// once is worth half a fresh one.
func relevance(createdAt time.Time, frequency int) float64 {
	ageDays := time.Since(createdAt).Hours() / 24
	if ageDays < 0 {
		ageDays = 0
	}
	if frequency < 1 {
		frequency = 1
	}
	decay := math.Exp(-math.Ln2 * ageDays / halfLifeDays)
	return decay * (1 + 0.1*float64(frequency-1))
}
