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
package pow

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

// Required exports of the upstream solver module.
const (
	exportSolve    = "wasm_solve"
	exportAlloc    = "__wbindgen_export_0"
	exportStackPtr = "__wbindgen_add_to_stack_pointer"
	exportMemory   = "memory"
)

// retSize is the size of the result struct wasm_solve writes at retPtr:
// a 32-bit status, 4 bytes of padding, and a 64-bit little-endian float
// nonce.
const retSize = 16

// WasmSolver hosts the upstream WebAssembly module with wazero. The module
// is single-threaded; all calls serialize on an internal mutex, so the
// intended deployment is one WasmSolver per transport object.
type WasmSolver struct {
	runtime wazero.Runtime
	module  api.Module

	solve    api.Function
	alloc    api.Function
	stackPtr api.Function
	memory   api.Memory

	mu sync.Mutex
}

// NewWasmSolver compiles and instantiates the solver module from its
// binary. Fails when any required export is missing.
func NewWasmSolver(ctx context.Context, wasmBytes []byte) (*WasmSolver, error) {
	runtime := wazero.NewRuntime(ctx)

	module, err := runtime.Instantiate(ctx, wasmBytes)
	if err != nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("failed to instantiate pow module: %w", err)
	}

	s := &WasmSolver{
		runtime:  runtime,
		module:   module,
		solve:    module.ExportedFunction(exportSolve),
		alloc:    module.ExportedFunction(exportAlloc),
		stackPtr: module.ExportedFunction(exportStackPtr),
		memory:   module.Memory(),
	}

	if s.solve == nil || s.alloc == nil || s.stackPtr == nil || s.memory == nil {
		runtime.Close(ctx)
		return nil, fmt.Errorf("pow module missing required exports (%s, %s, %s, %s)",
			exportSolve, exportAlloc, exportStackPtr, exportMemory)
	}

	return s, nil
}

// Close releases the wazero runtime.
func (s *WasmSolver) Close(ctx context.Context) error {
	return s.runtime.Close(ctx)
}

// Solve computes the nonce for a challenge.
func (s *WasmSolver) Solve(challenge *Challenge) (*Answer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx := context.Background()

	// Reserve the 16-byte return slot on the module stack.
	ret, err := s.stackPtr.Call(ctx, api.EncodeI32(-retSize))
	if err != nil {
		return nil, fmt.Errorf("failed to reserve return slot: %w", err)
	}
	retPtr := api.DecodeI32(ret[0])

	// The slot must be released on every exit path, success or failure,
	// or repeated solves corrupt the module stack.
	defer func() {
		_, _ = s.stackPtr.Call(ctx, api.EncodeI32(retSize))
	}()

	chalPtr, chalLen, err := s.writeString(ctx, challenge.Challenge)
	if err != nil {
		return nil, err
	}
	prefix := challenge.Prefix()
	prefPtr, prefLen, err := s.writeString(ctx, prefix)
	if err != nil {
		return nil, err
	}

	_, err = s.solve.Call(ctx,
		api.EncodeI32(retPtr),
		api.EncodeI32(chalPtr),
		api.EncodeI32(chalLen),
		api.EncodeI32(prefPtr),
		api.EncodeI32(prefLen),
		api.EncodeF64(challenge.Difficulty),
	)
	if err != nil {
		return nil, fmt.Errorf("wasm_solve trapped: %w", err)
	}

	raw, ok := s.memory.Read(uint32(retPtr), retSize)
	if !ok {
		return nil, fmt.Errorf("failed to read solve result at %d", retPtr)
	}

	status := binary.LittleEndian.Uint32(raw[0:4])
	if status == 0 {
		return nil, fmt.Errorf("pow solver reported failure for challenge %q", challenge.Challenge)
	}
	nonce := math.Float64frombits(binary.LittleEndian.Uint64(raw[8:16]))

	return &Answer{
		Algorithm:  challenge.Algorithm,
		Challenge:  challenge.Challenge,
		Salt:       challenge.Salt,
		Answer:     int64(nonce),
		Signature:  challenge.Signature,
		TargetPath: challenge.TargetPath,
	}, nil
}

// writeString copies a string into module memory via the bump allocator
// and returns (ptr, len).
func (s *WasmSolver) writeString(ctx context.Context, str string) (int32, int32, error) {
	data := []byte(str)
	res, err := s.alloc.Call(ctx, api.EncodeI32(int32(len(data))), api.EncodeI32(1))
	if err != nil {
		return 0, 0, fmt.Errorf("failed to allocate %d bytes in pow module: %w", len(data), err)
	}
	ptr := api.DecodeI32(res[0])
	if !s.memory.Write(uint32(ptr), data) {
		return 0, 0, fmt.Errorf("failed to write %d bytes at %d", len(data), ptr)
	}
	return ptr, int32(len(data)), nil
}

var _ Solver = (*WasmSolver)(nil)
