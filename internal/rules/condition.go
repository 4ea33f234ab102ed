// Package rules defines trigger conditions and action configurations as
// closed sets of typed variants. Unknown operations and malformed
// configurations are rejected when a trigger is defined; evaluation is
// pure and total so one bad trigger can never take down its siblings.
package rules

import (
	"encoding/json"
	"fmt"
	"time"
)

// Op is one of the six condition operations.
type Op string

const (
	OpEq           Op = "eq"
	OpNotEq        Op = "not_eq"
	OpPresent      Op = "present"
	OpNotPresent   Op = "not_present"
	OpDaysUntilLTE Op = "days_until_lte"
	OpDaysUntilLT  Op = "days_until_lt"
)

const millisPerDay = 24 * 60 * 60 * 1000

// Condition is one evaluable expression over an event payload.
type Condition struct {
	Op    Op     `json:"op" enum:"eq,not_eq,present,not_present,days_until_lte,days_until_lt"`
	Field string `json:"field"`
	Value any    `json:"value,omitempty"`
}

// ParseCondition decodes and validates a stored condition. Everything
// this rejects can never reach Evaluate.
func ParseCondition(raw string) (Condition, error) {
	var c Condition
	if err := json.Unmarshal([]byte(raw), &c); err != nil {
		return Condition{}, fmt.Errorf("invalid condition json: %w", err)
	}
	return c, c.Validate()
}

// Validate checks the operation is known and its arguments complete.
func (c Condition) Validate() error {
	if c.Field == "" {
		return fmt.Errorf("condition field is required")
	}
	switch c.Op {
	case OpPresent, OpNotPresent:
		return nil
	case OpEq, OpNotEq:
		if c.Value == nil {
			return fmt.Errorf("condition op %s requires a value", c.Op)
		}
		return nil
	case OpDaysUntilLTE, OpDaysUntilLT:
		if _, ok := asInt(c.Value); !ok {
			return fmt.Errorf("condition op %s requires an integer value", c.Op)
		}
		return nil
	default:
		return fmt.Errorf("unknown condition op %q", c.Op)
	}
}

// Evaluate applies the condition to an event payload. It never returns
// an error: a missing field or unparsable date fails closed to false.
// now is the only clock input so date conditions stay reproducible.
func (c Condition) Evaluate(payload map[string]any, now time.Time) bool {
	v, ok := payload[c.Field]
	switch c.Op {
	case OpEq:
		return ok && valuesEqual(v, c.Value)
	case OpNotEq:
		return ok && !valuesEqual(v, c.Value)
	case OpPresent:
		return ok && present(v)
	case OpNotPresent:
		return !ok || !present(v)
	case OpDaysUntilLTE:
		days, dok := daysUntil(v, now)
		limit, _ := asInt(c.Value)
		return ok && dok && days <= limit
	case OpDaysUntilLT:
		days, dok := daysUntil(v, now)
		limit, _ := asInt(c.Value)
		return ok && dok && days < limit
	default:
		// unreachable for validated triggers; fail closed regardless
		return false
	}
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if s, ok := v.(string); ok {
		return s != ""
	}
	return true
}

// valuesEqual compares payload and condition values after JSON
// normalization: numbers compare as float64, everything else strictly.
func valuesEqual(a, b any) bool {
	if af, aok := asFloat(a); aok {
		bf, bok := asFloat(b)
		return bok && af == bf
	}
	return a == b
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asInt(v any) (int64, bool) {
	f, ok := asFloat(v)
	if !ok || f != float64(int64(f)) {
		return 0, false
	}
	return int64(f), true
}

// daysUntil computes the whole-day difference between now and the ISO
// date held in v, both normalized to UTC midnight, using floor division
// of the millisecond delta by the day length.
func daysUntil(v any, now time.Time) (int64, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return 0, false
	}
	target, err := parseISODate(s)
	if err != nil {
		return 0, false
	}
	delta := target.Sub(midnightUTC(now)).Milliseconds()
	return floorDiv(delta, millisPerDay), true
}

func parseISODate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return midnightUTC(t), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return midnightUTC(t), nil
}

func midnightUTC(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
