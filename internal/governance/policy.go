// Package governance decides whether an executor may run a tool call.
package governance

import (
	"context"
	"fmt"
	"regexp"
)

// Effect defines the result of a policy evaluation.
type Effect string

const (
	EffectAllow Effect = "allow"
	EffectDeny  Effect = "deny"
)

// Request contains the context of a tool call to be evaluated.
type Request struct {
	Tool      string
	Arguments string
	ThreadID  string
	Executor  string
}

// Result contains the outcome of a policy evaluation.
type Result struct {
	Effect Effect
	Reason string
}

// PolicyEngine evaluates tool calls against a set of rules.
type PolicyEngine interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
}

// DefaultPolicyEngine denies by tool name or by argument pattern, optionally
// scoped to one tool.
type DefaultPolicyEngine struct {
	DeniedTools map[string]bool
	DeniedRegex []*regexp.Regexp
	ToolRegex   map[string][]*regexp.Regexp
}

func NewDefaultPolicyEngine() *DefaultPolicyEngine {
	return &DefaultPolicyEngine{
		DeniedTools: make(map[string]bool),
		DeniedRegex: make([]*regexp.Regexp, 0),
		ToolRegex:   make(map[string][]*regexp.Regexp),
	}
}

// NewSandboxPolicy returns the default policy for code execution: no
// subprocesses, no filesystem deletion, no network sockets.
func NewSandboxPolicy(tool string) *DefaultPolicyEngine {
	e := NewDefaultPolicyEngine()
	for _, p := range []string{
		`\bsubprocess\b`,
		`\bos\.(system|popen|remove|unlink|rmdir|exec\w*|spawn\w*)\b`,
		`\bshutil\.rmtree\b`,
		`\bsocket\b`,
		`rm\s+-rf`,
	} {
		_ = e.DenyToolArguments(tool, p)
	}
	return e
}

func (e *DefaultPolicyEngine) DenyTool(name string) {
	e.DeniedTools[name] = true
}

func (e *DefaultPolicyEngine) DenyArguments(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.DeniedRegex = append(e.DeniedRegex, re)
	return nil
}

// DenyToolArguments denies calls of one tool whose arguments match pattern.
func (e *DefaultPolicyEngine) DenyToolArguments(tool, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return err
	}
	e.ToolRegex[tool] = append(e.ToolRegex[tool], re)
	return nil
}

func (e *DefaultPolicyEngine) Evaluate(ctx context.Context, req Request) (Result, error) {
	if e.DeniedTools[req.Tool] {
		return Result{
			Effect: EffectDeny,
			Reason: fmt.Sprintf("Tool '%s' is restricted by system policy", req.Tool),
		}, nil
	}

	rules := append(append([]*regexp.Regexp{}, e.DeniedRegex...), e.ToolRegex[req.Tool]...)
	for _, re := range rules {
		if re.MatchString(req.Arguments) {
			return Result{
				Effect: EffectDeny,
				Reason: fmt.Sprintf("Arguments match restricted pattern: %s", re.String()),
			}, nil
		}
	}

	return Result{
		Effect: EffectAllow,
		Reason: "Approved by default policy",
	}, nil
}
