package planner

import (
	"fmt"

	"github.com/laik-hpc/fabricbackend/internal/action"
	"github.com/laik-hpc/fabricbackend/internal/registry"
)

// registerReceives is spec.md §4.D step 12: for every BufRecv in the
// post-transform sequence, register the buffer as an RMA target keyed by
// the sender's rank. It must run before lowering to async (step 13) so the
// registration pass only ever sees the generic BufRecv shape, never the
// FabAsyncRecv rewrite.
func registerReceives(seq *action.ActionSequence, reg *registry.Registry) error {
	for i, a := range seq.Actions {
		if a.Type != action.BufRecv {
			continue
		}

		if _, err := reg.Register(a.Buf, a.Count, a.ElemSize, a.Peer); err != nil {
			return fmt.Errorf("planner: failed to register action %d: %w", i, err)
		}
	}

	seq.Registrations = reg
	return nil
}
