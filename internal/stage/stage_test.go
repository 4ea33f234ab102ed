package stage

import (
	"errors"
	"testing"
)

func TestSuccessorTransitions(t *testing.T) {
	for i := 0; i < len(Stages)-1; i++ {
		from, to, err := Transition(Stages[i], Stages[i+1])
		if err != nil {
			t.Fatalf("%s -> %s: %v", Stages[i], Stages[i+1], err)
		}
		if from != Stages[i] || to != Stages[i+1] {
			t.Fatalf("unexpected pair %s -> %s", from, to)
		}
	}
}

func TestRejectedTransitions(t *testing.T) {
	cases := []struct{ from, to string }{
		{"F0", "F2"}, // skip forward
		{"F3", "F2"}, // backward
		{"F5", "F5"}, // re-enter
		{"F9", "F0"}, // out of terminal
		{"F9", "F9"},
		{"F0", "F10"}, // unknown target
		{"FX", "F1"},  // unknown source
	}
	for _, c := range cases {
		_, _, err := Transition(c.from, c.to)
		if err == nil {
			t.Fatalf("expected error for %s -> %s", c.from, c.to)
		}
		var ite InvalidTransitionError
		if !errors.As(err, &ite) {
			t.Fatalf("expected InvalidTransitionError, got %T", err)
		}
		if ite.From != c.from || ite.To != c.to {
			t.Fatalf("error stages %s -> %s, want %s -> %s", ite.From, ite.To, c.from, c.to)
		}
	}
}

func TestNextTerminal(t *testing.T) {
	if _, ok := Next(Terminal); ok {
		t.Fatalf("terminal stage must have no successor")
	}
	if next, ok := Next(Initial); !ok || next != "F1" {
		t.Fatalf("successor of F0 = %s, %v", next, ok)
	}
}

func TestPrev(t *testing.T) {
	if _, ok := Prev(Initial); ok {
		t.Fatalf("initial stage must have no predecessor")
	}
	if prev, ok := Prev("F1"); !ok || prev != Initial {
		t.Fatalf("predecessor of F1 = %s, %v", prev, ok)
	}
	if prev, ok := Prev(Terminal); !ok || prev != "F8" {
		t.Fatalf("predecessor of F9 = %s, %v", prev, ok)
	}
	if _, ok := Prev("FX"); ok {
		t.Fatalf("unknown stage must have no predecessor")
	}
}
