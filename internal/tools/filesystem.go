package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/renameio/v2"
)

// maxReadBytes caps what a single read hands back to the model.
const maxReadBytes = 64 << 10

// WorkspaceTool lets the coder keep intermediate data files next to the
// code it runs. Paths are confined to Root.
type WorkspaceTool struct {
	Root string
}

func NewWorkspaceTool(root string) *WorkspaceTool {
	absRoot, _ := filepath.Abs(root)
	return &WorkspaceTool{Root: absRoot}
}

func (f *WorkspaceTool) Name() string {
	return "workspace_files"
}

func (f *WorkspaceTool) Description() string {
	return "Read, write and list data files in the code sandbox directory. Files written here are visible to python_repl."
}

func (f *WorkspaceTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"enum":        []string{"read", "write", "list"},
				"description": "The operation to perform",
			},
			"filename": map[string]any{
				"type":        "string",
				"description": "Path relative to the sandbox, '.' for the sandbox itself",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write (only for 'write' command)",
			},
		},
		"required": []string{"command", "filename"},
	}
}

// resolve maps name into Root, rejecting anything that escapes it.
func (f *WorkspaceTool) resolve(name string) (string, error) {
	target := filepath.Join(f.Root, filepath.Clean("/"+name))
	rel, err := filepath.Rel(f.Root, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("unsafe path attempt: %s", name)
	}
	return target, nil
}

func (f *WorkspaceTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Command  string `json:"command"`
		Filename string `json:"filename"`
		Content  string `json:"content"`
	}

	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	targetPath, err := f.resolve(args.Filename)
	if err != nil {
		return "", err
	}

	switch args.Command {
	case "read":
		file, err := os.Open(targetPath)
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, maxReadBytes+1))
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
		if len(data) > maxReadBytes {
			return string(data[:maxReadBytes]) + "\n...[truncated]", nil
		}
		return string(data), nil
	case "write":
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o750); err != nil {
			return "", fmt.Errorf("failed to create directory: %w", err)
		}
		if err := renameio.WriteFile(targetPath, []byte(args.Content), 0o644); err != nil {
			return "", fmt.Errorf("failed to write file: %w", err)
		}
		return fmt.Sprintf("Successfully wrote to %s", args.Filename), nil
	case "list":
		entries, err := os.ReadDir(targetPath)
		if err != nil {
			return "", fmt.Errorf("failed to list directory: %w", err)
		}
		var b strings.Builder
		for _, entry := range entries {
			typeStr := "file"
			if entry.IsDir() {
				typeStr = "dir"
			}
			fmt.Fprintf(&b, "[%s] %s\n", typeStr, entry.Name())
		}
		if b.Len() == 0 {
			return "Directory is empty", nil
		}
		return b.String(), nil
	default:
		return "Invalid command. Use 'read', 'write' or 'list'", nil
	}
}
