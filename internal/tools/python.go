package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Output is what a code run produced. Error is empty on success.
type Output struct {
	Stdout string
	Error  string
}

// CodeRunner is the code-execution collaborator used by the coder.
type CodeRunner interface {
	Execute(ctx context.Context, code string) (Output, error)
}

// PythonRunner runs code in a fresh interpreter process per call.
type PythonRunner struct {
	Interpreter string
	WorkDir     string
	Timeout     time.Duration
}

func NewPythonRunner(interpreter, workDir string, timeout time.Duration) *PythonRunner {
	if interpreter == "" {
		interpreter = "python3"
	}
	return &PythonRunner{Interpreter: interpreter, WorkDir: workDir, Timeout: timeout}
}

// Execute runs code and reports interpreter failures in Output.Error. The
// returned error is reserved for the runner itself being unusable.
func (p *PythonRunner) Execute(ctx context.Context, code string) (Output, error) {
	if strings.TrimSpace(code) == "" {
		return Output{Error: "empty code"}, nil
	}
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.Interpreter, "-I", "-c", code)
	cmd.Dir = p.WorkDir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	out := Output{Stdout: strings.TrimSpace(stdout.String())}
	if err != nil {
		var exitErr *exec.ExitError
		switch {
		case errors.Is(ctx.Err(), context.DeadlineExceeded):
			out.Error = fmt.Sprintf("execution timed out after %s", p.Timeout)
		case errors.As(err, &exitErr):
			out.Error = strings.TrimSpace(stderr.String())
			if out.Error == "" {
				out.Error = err.Error()
			}
		default:
			return Output{}, fmt.Errorf("starting %s: %w", p.Interpreter, err)
		}
	}
	return out, nil
}

// PythonTool exposes a CodeRunner to the coder's reasoning loop.
type PythonTool struct {
	Runner CodeRunner
}

func NewPythonTool(r CodeRunner) *PythonTool {
	return &PythonTool{Runner: r}
}

func (p *PythonTool) Name() string {
	return "python_repl"
}

func (p *PythonTool) Description() string {
	return "Execute Python code for calculations such as quantities and budgets. Print the values you need; only stdout is returned."
}

func (p *PythonTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"code": map[string]any{
				"type":        "string",
				"description": "The Python code to execute",
			},
		},
		"required": []string{"code"},
	}
}

func (p *PythonTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	out, err := p.Runner.Execute(ctx, args.Code)
	if err != nil {
		return "", err
	}
	if out.Error != "" {
		return fmt.Sprintf("Execution failed with error: %s\nOutput: %s", out.Error, out.Stdout), nil
	}
	if out.Stdout == "" {
		return "(no output)", nil
	}
	return out.Stdout, nil
}
