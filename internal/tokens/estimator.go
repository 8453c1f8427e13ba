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

// Package tokens provides token estimation for prompt budgets and cost
// reports. Estimates are used only for budgeting, never for truth.
package tokens

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens using tiktoken with cl100k_base encoding.
// Falls back to a chars/4 approximation when the encoder is unavailable.
type Estimator struct {
	encoder *tiktoken.Tiktoken
	mu      sync.Mutex
}

var (
	globalEstimator *Estimator
	estimatorOnce   sync.Once
)

// GetEstimator returns the singleton estimator instance.
func GetEstimator() *Estimator {
	estimatorOnce.Do(func() {
		tkm, err := tiktoken.GetEncoding("cl100k_base")
		if err != nil {
			globalEstimator = &Estimator{encoder: nil}
			return
		}
		globalEstimator = &Estimator{encoder: tkm}
	})
	return globalEstimator
}

// Count returns the token count for a given text.
func (e *Estimator) Count(text string) int {
	if e.encoder == nil {
		return Approximate(text)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.encoder.Encode(text, nil, nil))
}

// CountMultiple counts tokens across multiple text segments.
func (e *Estimator) CountMultiple(texts ...string) int {
	total := 0
	for _, text := range texts {
		total += e.Count(text)
	}
	return total
}

// Approximate returns the chars/4 estimate used when no encoder is loaded.
func Approximate(text string) int {
	return len(text) / 4
}

// Budget tracks token consumption against a fixed ceiling.
type Budget struct {
	Max  int
	used int
	mu   sync.Mutex
}

// NewBudget creates a budget with the given ceiling.
func NewBudget(max int) *Budget {
	return &Budget{Max: max}
}

// Available returns the number of tokens still available.
func (b *Budget) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.Max - b.used
}

// CanFit checks whether a given number of tokens fits.
func (b *Budget) CanFit(tokens int) bool {
	return b.Available() >= tokens
}

// Use marks tokens as consumed. Returns false if the budget would overflow.
func (b *Budget) Use(tokens int) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if tokens > b.Max-b.used {
		return false
	}
	b.used += tokens
	return true
}

// Used returns the number of tokens consumed so far.
func (b *Budget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}
