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
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teradata-labs/weft/pkg/tools"
)

// maxReadBytes bounds a single read_file result.
const maxReadBytes = 256 * 1024

type readFileTool struct{ guard *Guard }

func (t *readFileTool) Name() string        { return "read_file" }
func (t *readFileTool) Description() string { return "Lee el contenido de un archivo" }
func (t *readFileTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("read_file args",
		map[string]*tools.JSONSchema{"path": tools.NewStringSchema("ruta del archivo")},
		[]string{"path"})
}

func (t *readFileTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return failure(err)
	}
	abs, err := t.guard.CheckPath(path)
	if err != nil {
		return failure(err)
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return failure(err)
	}
	if len(data) > maxReadBytes {
		data = data[:maxReadBytes]
	}
	return &tools.Result{Success: true, Output: string(data)}, nil
}

type writeFileTool struct{ guard *Guard }

func (t *writeFileTool) Name() string        { return "write_file" }
func (t *writeFileTool) Description() string { return "Escribe contenido en un archivo, creandolo si no existe" }
func (t *writeFileTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("write_file args",
		map[string]*tools.JSONSchema{
			"path":    tools.NewStringSchema("ruta del archivo"),
			"content": tools.NewStringSchema("contenido completo"),
		},
		[]string{"path", "content"})
}

func (t *writeFileTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return failure(err)
	}
	content, _ := args["content"].(string)
	abs, err := t.guard.CheckPath(path)
	if err != nil {
		return failure(err)
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return failure(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return failure(err)
	}
	return &tools.Result{Success: true, Output: fmt.Sprintf("escrito %s (%d bytes)", path, len(content))}, nil
}

type makeDirectoryTool struct{ guard *Guard }

func (t *makeDirectoryTool) Name() string        { return "make_directory" }
func (t *makeDirectoryTool) Description() string { return "Crea un directorio (con padres)" }
func (t *makeDirectoryTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("make_directory args",
		map[string]*tools.JSONSchema{"path": tools.NewStringSchema("ruta del directorio")},
		[]string{"path"})
}

func (t *makeDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return failure(err)
	}
	abs, err := t.guard.CheckPath(path)
	if err != nil {
		return failure(err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return failure(err)
	}
	return &tools.Result{Success: true, Output: "directorio creado: " + path}, nil
}

type moveFileTool struct{ guard *Guard }

func (t *moveFileTool) Name() string        { return "move_file" }
func (t *moveFileTool) Description() string { return "Mueve o renombra un archivo" }
func (t *moveFileTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("move_file args",
		map[string]*tools.JSONSchema{
			"from": tools.NewStringSchema("ruta origen"),
			"to":   tools.NewStringSchema("ruta destino"),
		},
		[]string{"from", "to"})
}

func (t *moveFileTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	from, err := stringArg(args, "from")
	if err != nil {
		return failure(err)
	}
	to, err := stringArg(args, "to")
	if err != nil {
		return failure(err)
	}
	absFrom, err := t.guard.CheckPath(from)
	if err != nil {
		return failure(err)
	}
	absTo, err := t.guard.CheckPath(to)
	if err != nil {
		return failure(err)
	}
	if err := os.Rename(absFrom, absTo); err != nil {
		return failure(err)
	}
	return &tools.Result{Success: true, Output: fmt.Sprintf("movido %s -> %s", from, to)}, nil
}

type copyFileTool struct{ guard *Guard }

func (t *copyFileTool) Name() string        { return "copy_file" }
func (t *copyFileTool) Description() string { return "Copia un archivo" }
func (t *copyFileTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("copy_file args",
		map[string]*tools.JSONSchema{
			"from": tools.NewStringSchema("ruta origen"),
			"to":   tools.NewStringSchema("ruta destino"),
		},
		[]string{"from", "to"})
}

func (t *copyFileTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	from, err := stringArg(args, "from")
	if err != nil {
		return failure(err)
	}
	to, err := stringArg(args, "to")
	if err != nil {
		return failure(err)
	}
	absFrom, err := t.guard.CheckPath(from)
	if err != nil {
		return failure(err)
	}
	absTo, err := t.guard.CheckPath(to)
	if err != nil {
		return failure(err)
	}

	src, err := os.Open(absFrom)
	if err != nil {
		return failure(err)
	}
	defer src.Close()
	dst, err := os.Create(absTo)
	if err != nil {
		return failure(err)
	}
	defer dst.Close()
	n, err := io.Copy(dst, src)
	if err != nil {
		return failure(err)
	}
	return &tools.Result{Success: true, Output: fmt.Sprintf("copiado %s -> %s (%d bytes)", from, to, n)}, nil
}

type listDirectoryTool struct{ guard *Guard }

func (t *listDirectoryTool) Name() string        { return "list_directory" }
func (t *listDirectoryTool) Description() string { return "Lista las entradas de un directorio" }
func (t *listDirectoryTool) InputSchema() *tools.JSONSchema {
	return tools.NewObjectSchema("list_directory args",
		map[string]*tools.JSONSchema{"path": tools.NewStringSchema("ruta del directorio")},
		[]string{"path"})
}

func (t *listDirectoryTool) Execute(ctx context.Context, args map[string]interface{}) (*tools.Result, error) {
	path, err := stringArg(args, "path")
	if err != nil {
		return failure(err)
	}
	abs, err := t.guard.CheckPath(path)
	if err != nil {
		return failure(err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return failure(err)
	}
	var b strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			b.WriteString(entry.Name() + "/\n")
		} else {
			b.WriteString(entry.Name() + "\n")
		}
	}
	return &tools.Result{Success: true, Output: strings.TrimRight(b.String(), "\n")}, nil
}
