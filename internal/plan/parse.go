package plan

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrMalformed is returned when model output cannot be read as a plan.
var ErrMalformed = errors.New("malformed plan")

// Repair strips the wrapping that models commonly put around JSON output:
// markdown code fences and prose before the first '{' or after the last '}'.
func Repair(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```JSON")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
		s = strings.TrimSpace(s)
	}
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		s = s[start : end+1]
	}
	return s
}

// Parse repairs and decodes a plan. A missing steps field decodes as an
// empty sequence; step types are normalised to lower case.
func Parse(raw string) (*Plan, error) {
	s := Repair(raw)
	if s == "" {
		return nil, fmt.Errorf("%w: empty output", ErrMalformed)
	}

	var p Plan
	if err := json.Unmarshal([]byte(s), &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	if p.Steps == nil {
		p.Steps = []Step{}
	}
	for i := range p.Steps {
		p.Steps[i].StepType = StepType(strings.ToLower(strings.TrimSpace(string(p.Steps[i].StepType))))
	}
	return &p, nil
}
