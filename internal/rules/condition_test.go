package rules

import (
	"testing"
	"time"
)

var testNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

func TestEq(t *testing.T) {
	c := Condition{Op: OpEq, Field: "itbi_paid", Value: true}
	if !c.Evaluate(map[string]any{"itbi_paid": true}, testNow) {
		t.Fatalf("eq true should match")
	}
	if c.Evaluate(map[string]any{"itbi_paid": false}, testNow) {
		t.Fatalf("eq false should not match")
	}
	if c.Evaluate(map[string]any{}, testNow) {
		t.Fatalf("missing field should not match")
	}
}

func TestEqNumericNormalization(t *testing.T) {
	// payloads decoded from JSON carry float64 numbers
	c := Condition{Op: OpEq, Field: "count", Value: 3}
	if !c.Evaluate(map[string]any{"count": float64(3)}, testNow) {
		t.Fatalf("int condition should match float64 payload")
	}
}

func TestNotEq(t *testing.T) {
	c := Condition{Op: OpNotEq, Field: "status", Value: "green"}
	if !c.Evaluate(map[string]any{"status": "red"}, testNow) {
		t.Fatalf("not_eq should match differing value")
	}
	if c.Evaluate(map[string]any{"status": "green"}, testNow) {
		t.Fatalf("not_eq should not match equal value")
	}
	if c.Evaluate(map[string]any{}, testNow) {
		t.Fatalf("not_eq on missing field fails closed")
	}
}

func TestPresent(t *testing.T) {
	p := Condition{Op: OpPresent, Field: "admin_approval_received"}
	np := Condition{Op: OpNotPresent, Field: "admin_approval_received"}
	if p.Evaluate(map[string]any{}, testNow) {
		t.Fatalf("present on empty payload")
	}
	if !np.Evaluate(map[string]any{}, testNow) {
		t.Fatalf("not_present on empty payload should match")
	}
	withVal := map[string]any{"admin_approval_received": "yes"}
	if !p.Evaluate(withVal, testNow) || np.Evaluate(withVal, testNow) {
		t.Fatalf("present/not_present with value set")
	}
	// empty string and nil count as absent
	for _, v := range []any{"", nil} {
		if p.Evaluate(map[string]any{"admin_approval_received": v}, testNow) {
			t.Fatalf("present should reject %#v", v)
		}
	}
}

func TestDaysUntil(t *testing.T) {
	in2 := testNow.Add(48 * time.Hour).Format("2006-01-02")
	lte := Condition{Op: OpDaysUntilLTE, Field: "court_deadline", Value: 3}
	if !lte.Evaluate(map[string]any{"court_deadline": in2}, testNow) {
		t.Fatalf("deadline in 2 days should satisfy lte 3")
	}
	lt := Condition{Op: OpDaysUntilLT, Field: "court_deadline", Value: 2}
	if lt.Evaluate(map[string]any{"court_deadline": in2}, testNow) {
		t.Fatalf("deadline in 2 days should not satisfy lt 2")
	}
	past := testNow.Add(-72 * time.Hour).Format("2006-01-02")
	if !lte.Evaluate(map[string]any{"court_deadline": past}, testNow) {
		t.Fatalf("past deadline is negative days, still <= limit")
	}
}

func TestDaysUntilRFC3339(t *testing.T) {
	c := Condition{Op: OpDaysUntilLTE, Field: "due", Value: 1}
	due := testNow.Add(20 * time.Hour).Format(time.RFC3339)
	// same UTC day boundary handling: 20h ahead crosses at most one midnight
	if !c.Evaluate(map[string]any{"due": due}, testNow) {
		t.Fatalf("rfc3339 date should parse and satisfy")
	}
}

func TestDaysUntilFailsClosed(t *testing.T) {
	c := Condition{Op: OpDaysUntilLTE, Field: "court_deadline", Value: 3}
	for _, payload := range []map[string]any{
		{},
		{"court_deadline": "not-a-date"},
		{"court_deadline": 12345},
		{"court_deadline": ""},
	} {
		if c.Evaluate(payload, testNow) {
			t.Fatalf("expected fail-closed false for %#v", payload)
		}
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	c := Condition{Op: OpDaysUntilLTE, Field: "d", Value: 5}
	payload := map[string]any{"d": "2026-03-12"}
	a := c.Evaluate(payload, testNow)
	b := c.Evaluate(payload, testNow)
	if a != b {
		t.Fatalf("evaluation not deterministic")
	}
}

func TestParseConditionRejectsUnknownOp(t *testing.T) {
	if _, err := ParseCondition(`{"op":"matches_regex","field":"x","value":".*"}`); err == nil {
		t.Fatalf("unknown op must be rejected at definition time")
	}
	if _, err := ParseCondition(`{"op":"eq","field":""}`); err == nil {
		t.Fatalf("empty field must be rejected")
	}
	if _, err := ParseCondition(`{"op":"days_until_lte","field":"d","value":"soon"}`); err == nil {
		t.Fatalf("non-integer day limit must be rejected")
	}
	if _, err := ParseCondition(`{"op":"eq","field":"x","value":true}`); err != nil {
		t.Fatalf("valid condition rejected: %v", err)
	}
}

func TestFloorDivNegative(t *testing.T) {
	if floorDiv(-1, millisPerDay) != -1 {
		t.Fatalf("floor of small negative delta should be -1")
	}
	if floorDiv(0, millisPerDay) != 0 {
		t.Fatalf("floor of zero should be 0")
	}
}
