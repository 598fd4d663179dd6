package plan

import (
	"errors"
	"fmt"
)

// StepType names a browser action.
type StepType string

const (
	StepNavigate StepType = "navigate"
	StepSearch   StepType = "search"
	StepExtract  StepType = "extract"
	StepClick    StepType = "click"
	StepForm     StepType = "form"
	StepScroll   StepType = "scroll"
	StepWait     StepType = "wait"
)

// StepTypes lists every legal step type in the order they are presented to
// the planner model.
var StepTypes = []StepType{StepNavigate, StepSearch, StepExtract, StepClick, StepForm, StepScroll, StepWait}

// Valid reports whether t is one of the seven known step types.
func (t StepType) Valid() bool {
	for _, s := range StepTypes {
		if s == t {
			return true
		}
	}
	return false
}

// Step is one atomic browser action.
type Step struct {
	Type        StepType `json:"type"`
	Description string   `json:"description"`
	Params      Params   `json:"params,omitempty"`
}

// Plan is the goal plus the ordered steps produced for one task run.
type Plan struct {
	Goal  string `json:"goal"`
	Steps []Step `json:"steps"`
}

var (
	ErrMissingGoal = errors.New("plan has no goal")
	ErrNoSteps     = errors.New("plan has no steps")
)

// Validate checks the structural requirements a model-produced plan must
// meet before it is executed.
func (p Plan) Validate() error {
	if p.Goal == "" {
		return ErrMissingGoal
	}
	if len(p.Steps) == 0 {
		return ErrNoSteps
	}
	for i, s := range p.Steps {
		if s.Type == "" {
			return fmt.Errorf("step %d has no type", i)
		}
	}
	return nil
}

// Params carries type-specific step arguments as decoded from JSON.
type Params map[string]any

// String returns the string value at key, or "" when absent or not a string.
func (p Params) String(key string) string {
	if p == nil {
		return ""
	}
	s, _ := p[key].(string)
	return s
}

// Float returns a numeric value at key. Numeric strings are accepted since
// models frequently quote numbers.
func (p Params) Float(key string) (float64, bool) {
	if p == nil {
		return 0, false
	}
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case string:
		var f float64
		if _, err := fmt.Sscanf(v, "%g", &f); err == nil {
			return f, true
		}
	}
	return 0, false
}

// StringSlice returns a list of strings at key. A single string is
// returned as a one-element slice.
func (p Params) StringSlice(key string) []string {
	if p == nil {
		return nil
	}
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v != "" {
			return []string{v}
		}
	}
	return nil
}
