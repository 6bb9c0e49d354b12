package planner

import "github.com/laik-hpc/fabricbackend/internal/action"

// Pipeline holds the engine-provided action-sequence transforms spec.md
// §4.D's prepare() applies, in the fixed order steps 1-11 name. These are
// black-box collaborators reused from the wider engine and other backends
// (spec.md §1 "Out of scope"): this package only ever calls them in the
// documented order and reports whether they changed anything, it never
// reimplements split_transition_execs/flatten_packing/combine_actions/
// alloc_buffer/split_reduce/sort_rounds/sort_2phases/free_temp_space
// itself.
type Pipeline struct {
	SplitTransitionExecs action.Transform
	FlattenPacking       action.Transform
	CombineActions       action.Transform // run twice: passes 1 and 2
	AllocBuffer          action.Transform // run three times: passes 1, 2 and 3
	SplitReduce          action.Transform
	SortRounds           action.Transform
	Sort2Phases          action.Transform
	FreeTempSpace        action.Transform
}

// NopPipeline returns a Pipeline whose steps all report "no change". Useful
// for exercising the memory-registration/lowering core against fixtures
// that are already in post-transform shape, without needing the real
// engine transforms wired in.
func NopPipeline() Pipeline {
	nop := func(*action.ActionSequence) (bool, error) { return false, nil }
	return Pipeline{
		SplitTransitionExecs: nop,
		FlattenPacking:       nop,
		CombineActions:       nop,
		AllocBuffer:          nop,
		SplitReduce:          nop,
		SortRounds:           nop,
		Sort2Phases:          nop,
		FreeTempSpace:        nop,
	}
}

type namedStep struct {
	name string
	fn   action.Transform
}

// steps lays the pipeline out in spec.md §4.D's exact order (steps 1-11;
// step 12 memory registration and step 13 async lowering are this
// package's own job, not part of the injected Pipeline).
func (p Pipeline) steps() []namedStep {
	return []namedStep{
		{"split_transition_execs", p.SplitTransitionExecs},
		{"flatten_packing", p.FlattenPacking},
		{"combine_actions#1", p.CombineActions},
		{"alloc_buffer#1", p.AllocBuffer},
		{"split_reduce", p.SplitReduce},
		{"alloc_buffer#2", p.AllocBuffer},
		{"sort_rounds", p.SortRounds},
		{"combine_actions#2", p.CombineActions},
		{"alloc_buffer#3", p.AllocBuffer},
		{"sort_2phases", p.Sort2Phases},
		{"free_temp_space", p.FreeTempSpace},
	}
}
