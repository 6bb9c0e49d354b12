package action

import "github.com/laik-hpc/fabricbackend/internal/registry"

// TransitionContext is the opaque per-data-object metadata spec.md §3
// describes the engine as supplying (element size and reduction
// operators). It is an out-of-scope collaborator; this backend only ever
// reads ElemSize off it.
type TransitionContext interface {
	ElemSize() int
}

// ActionSequence is spec.md §3's ActionSequence: a sequence of Actions plus
// the bookkeeping the planner and executor maintain alongside it.
// Registrations are attached here (not carried by individual Actions)
// because spec.md §4.C treats them as an ordered list owned by the
// sequence as a whole, released together at cleanup.
type ActionSequence struct {
	Actions    []Action
	RoundCount int
	BytesUsed  int
	Context    []TransitionContext

	Registrations *registry.Registry
}

// New wraps actions into a fresh sequence and computes its initial stats.
func New(actions []Action, ctx []TransitionContext) *ActionSequence {
	seq := &ActionSequence{Actions: actions, Context: ctx}
	seq.RecomputeStats()
	return seq
}

// ActionCount is spec.md §3's actionCount.
func (s *ActionSequence) ActionCount() int {
	return len(s.Actions)
}

// RecomputeStats recomputes actionCount/bytesUsed/roundCount, the last
// step of spec.md §4.D's prepare pipeline.
func (s *ActionSequence) RecomputeStats() {
	maxRound := 0
	bytes := 0

	for _, a := range s.Actions {
		if a.Round > maxRound {
			maxRound = a.Round
		}

		switch a.Type {
		case BufSend, BufRecv, FabAsyncSend, FabAsyncRecv:
			bytes += a.Count * a.ElemSize
		case RBufLocalReduce:
			bytes += a.Count * a.DType.ElemSize
		}
	}

	s.RoundCount = maxRound
	s.BytesUsed = bytes
}

// CountByType counts actions of the given type, used by tests asserting
// spec.md §8's testable properties.
func (s *ActionSequence) CountByType(t Type) int {
	n := 0
	for _, a := range s.Actions {
		if a.Type == t {
			n++
		}
	}
	return n
}

// CountInRound counts actions of the given type within a specific round.
func (s *ActionSequence) CountInRound(t Type, round int) int {
	n := 0
	for _, a := range s.Actions {
		if a.Type == t && a.Round == round {
			n++
		}
	}
	return n
}

// Transform is an engine-provided action-sequence transform (spec.md §4.D
// steps 1-11, §6 "Upcalls consumed from the engine"). These transforms —
// split_transition_execs, flatten_packing, combine_actions, alloc_buffer,
// split_reduce, sort_rounds, sort_2phases, free_temp_space — are reused
// black boxes from the wider engine/other backends (spec.md §1 "Out of
// scope"); this backend only needs to invoke them in the documented order
// and log their effect, never reimplement them.
type Transform func(seq *ActionSequence) (changed bool, err error)
