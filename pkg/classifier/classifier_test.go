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
package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/teradata-labs/weft/pkg/types"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want types.TaskLevel
	}{
		{"hola", types.LevelChat},
		{"gracias!", types.LevelChat},
		{"que es una promise?", types.LevelSimple},
		{"como funciona el event loop de node", types.LevelSimple},
		{"what is the difference between let and const?", types.LevelSimple},
		{"crea una funcion que ordene un array", types.LevelCodeSimple},
		{"write a function that reverses a string", types.LevelCodeSimple},
		{"implementa un sistema de autenticacion JWT con refresh tokens y rate limiting", types.LevelCodeComplex},
		{"build a complete authentication system with sessions and a database", types.LevelCodeComplex},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text), "text: %q", tt.text)
		})
	}
}

func TestClassify_AccentInsensitive(t *testing.T) {
	assert.Equal(t, Classify("crea una función que ordene un array"),
		Classify("crea una funcion que ordene un array"))
}

func TestClassifyForMode_DelegationDrivers(t *testing.T) {
	for _, mode := range []string{"delegate", "quantum", "multi", "chunked", "agent", "multistep"} {
		assert.Equal(t, types.LevelDelegation, ClassifyForMode("hola", mode), "mode %s", mode)
	}
	assert.Equal(t, types.LevelChat, ClassifyForMode("hola", ""))
}
