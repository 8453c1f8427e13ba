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
package toolkit

import (
	"context"
	"os/exec"
	"strings"
	"time"

	"github.com/teradata-labs/weft/pkg/tools"
)

// commandTimeout bounds a single run_command execution.
const commandTimeout = 2 * time.Minute

type runCommandTool struct{ guard *Guard }

func (t *runCommandTool) Name() string { return "run_command" }
func (t *runCommandTool) Description() string {
	return "Ejecuta un comando de la lista permitida y devuelve su salida"
}

func (t *runCommandTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("run_command args",
		map[string]*tools.JSONSchema{
			"command": tools.NewStringSchema("linea de comando completa"),
		},
		[]string{"command"})
}

func (t *runCommandTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	command, err := stringArg(args, "command")
	if err != nil {
		return failure(err)
	}
	if err := t.guard.CheckCommand(command); err != nil {
		return failure(err)
	}

	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	fields := strings.Fields(command)
	cmd := exec.CommandContext(ctx, fields[0], fields[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return &tools.Result{
			Success: false,
			Output:  string(out),
			Error:   err.Error(),
		}, nil
	}
	return &tools.Result{Success: true, Output: string(out)}, nil
}
