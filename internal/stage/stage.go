// Package stage implements the sequential auction-asset lifecycle.
// Stages F0 through F9 are strictly ordered; every asset advances one
// step at a time and F9 is terminal. Reversals go through a separate
// administrative path, never through this machine.
package stage

import "fmt"

// Stages in lifecycle order.
var Stages = []string{"F0", "F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9"}

const (
	Initial  = "F0"
	Terminal = "F9"
)

var index = func() map[string]int {
	m := make(map[string]int, len(Stages))
	for i, s := range Stages {
		m[s] = i
	}
	return m
}()

// InvalidTransitionError carries both ends of a rejected transition.
type InvalidTransitionError struct {
	From string
	To   string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid stage transition %s -> %s", e.From, e.To)
}

// Valid reports whether s is a known stage.
func Valid(s string) bool {
	_, ok := index[s]
	return ok
}

// Next returns the sole legal successor of s. The terminal stage has none.
func Next(s string) (string, bool) {
	i, ok := index[s]
	if !ok || i == len(Stages)-1 {
		return "", false
	}
	return Stages[i+1], true
}

// Prev returns the stage immediately before s. The initial stage has none.
func Prev(s string) (string, bool) {
	i, ok := index[s]
	if !ok || i == 0 {
		return "", false
	}
	return Stages[i-1], true
}

// Transition validates that to is exactly the immediate successor of
// from. It returns the pair on success and InvalidTransitionError
// otherwise; no skipping, no moving backward, no re-entering.
func Transition(from, to string) (string, string, error) {
	next, ok := Next(from)
	if !ok || to != next {
		return "", "", InvalidTransitionError{From: from, To: to}
	}
	return from, to, nil
}
