package schema

import (
	"fmt"
	"time"

	"github.com/aretw0/intake/pkg/domain"
)

// ComputeRule derives a computed slot from other resolved slots.
// Implementations must be deterministic and free of side effects.
type ComputeRule interface {
	// Inputs lists the slots the rule reads.
	Inputs() []string
	// Output is the type of the derived value.
	Output() domain.SlotType
	// Eval derives the value. inputs holds every slot named by Inputs.
	Eval(inputs map[string]domain.Value, today time.Time) (domain.Value, error)
}

// ComputeFunc adapts a plain function to ComputeRule.
type ComputeFunc struct {
	In  []string
	Out domain.SlotType
	Fn  func(inputs map[string]domain.Value, today time.Time) (domain.Value, error)
}

func (f ComputeFunc) Inputs() []string        { return f.In }
func (f ComputeFunc) Output() domain.SlotType { return f.Out }

func (f ComputeFunc) Eval(inputs map[string]domain.Value, today time.Time) (domain.Value, error) {
	return f.Fn(inputs, today)
}

// Within is true when the date slot input falls on or after today minus the window.
// last_visit_within_1_year is Within("date_of_last_visit", 0, 0, 365).
func Within(input string, years, months, days int) ComputeRule {
	return ComputeFunc{
		In:  []string{input},
		Out: domain.TypeBoolean,
		Fn: func(in map[string]domain.Value, today time.Time) (domain.Value, error) {
			d, ok := in[input].Date()
			if !ok {
				return domain.Value{}, fmt.Errorf("within: %q is %s, want date", input, in[input].Type())
			}
			y, m, dd := today.Date()
			threshold := time.Date(y, m, dd, 0, 0, 0, 0, time.UTC).AddDate(-years, -months, -days)
			return domain.BoolValue(!d.Before(threshold)), nil
		},
	}
}

// Equals is true when input holds the literal.
func Equals(input string, literal any) ComputeRule {
	return ComputeFunc{
		In:  []string{input},
		Out: domain.TypeBoolean,
		Fn: func(in map[string]domain.Value, _ time.Time) (domain.Value, error) {
			return domain.BoolValue(in[input].Matches(literal)), nil
		},
	}
}

// Not negates a boolean slot.
func Not(input string) ComputeRule {
	return ComputeFunc{
		In:  []string{input},
		Out: domain.TypeBoolean,
		Fn: func(in map[string]domain.Value, _ time.Time) (domain.Value, error) {
			b, ok := in[input].Bool()
			if !ok {
				return domain.Value{}, fmt.Errorf("not: %q is %s, want boolean", input, in[input].Type())
			}
			return domain.BoolValue(!b), nil
		},
	}
}

// rawCompute is the declarative form of a compute rule inside a schema document.
type rawCompute struct {
	Rule   string `mapstructure:"rule"`
	Input  string `mapstructure:"input"`
	Years  int    `mapstructure:"years"`
	Months int    `mapstructure:"months"`
	Days   int    `mapstructure:"days"`
	Value  any    `mapstructure:"value"`
}

func buildCompute(rc rawCompute) (ComputeRule, error) {
	if rc.Input == "" {
		return nil, fmt.Errorf("compute rule %q: input is required", rc.Rule)
	}
	switch rc.Rule {
	case "within":
		if rc.Years < 0 || rc.Months < 0 || rc.Days < 0 {
			return nil, fmt.Errorf("compute rule within: window must not be negative")
		}
		if rc.Years == 0 && rc.Months == 0 && rc.Days == 0 {
			return nil, fmt.Errorf("compute rule within: window is empty")
		}
		return Within(rc.Input, rc.Years, rc.Months, rc.Days), nil
	case "equals":
		if rc.Value == nil {
			return nil, fmt.Errorf("compute rule equals: value is required")
		}
		return Equals(rc.Input, rc.Value), nil
	case "not":
		return Not(rc.Input), nil
	default:
		return nil, fmt.Errorf("unknown compute rule %q", rc.Rule)
	}
}
