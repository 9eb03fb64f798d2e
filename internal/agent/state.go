// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package agent

// State is a loop controller state.
type State string

const (
	StatePlanning     State = "PLANNING"
	StateActing       State = "ACTING"
	StateSynthesizing State = "SYNTHESIZING"
	StateValidating   State = "VALIDATING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// States lists every state in workflow order.
func States() []State {
	return []State{StatePlanning, StateActing, StateSynthesizing, StateValidating, StateDone, StateFailed}
}

// Terminal reports whether s ends a resolution.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// Transition is one allowed edge of the workflow.
type Transition struct {
	From  State
	To    State
	Label string
}

// transitions is the complete workflow. Any non-terminal state may also
// move to FAILED when the query is cancelled; those edges are listed once
// per state so the diagram and the guard agree.
var transitions = []Transition{
	{StatePlanning, StateActing, "plan"},
	{StatePlanning, StateFailed, "routing error / cancelled"},
	{StateActing, StateSynthesizing, "results"},
	{StateActing, StateFailed, "cancelled"},
	{StateSynthesizing, StateValidating, "draft"},
	{StateSynthesizing, StatePlanning, "incomplete"},
	{StateSynthesizing, StateFailed, "bound exceeded / cancelled"},
	{StateValidating, StateDone, "is_safe"},
	{StateValidating, StatePlanning, "violations"},
	{StateValidating, StateFailed, "bound exceeded / cancelled"},
}

// Transitions returns a copy of the workflow edges.
func Transitions() []Transition {
	out := make([]Transition, len(transitions))
	copy(out, transitions)
	return out
}

// CanTransition reports whether from → to is an edge of the workflow.
func CanTransition(from, to State) bool {
	for _, t := range transitions {
		if t.From == from && t.To == to {
			return true
		}
	}
	return false
}
