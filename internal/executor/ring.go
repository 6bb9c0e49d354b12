package executor

import "github.com/laik-hpc/fabricbackend/internal/xerror"

// ring implements spec.md §4.E's completion ring: a small ring of
// pre-counted credits indexed by (cring_idx + offset) mod depth, so that
// remote writes from later rounds which arrive before some writes of an
// earlier round are not lost, only reordered into the slot their round
// will eventually consume.
//
// State is per sequence-execution invocation, reinitialized to zero every
// call (spec.md §5 "the completion-ring state in the executor is
// per-invocation").
type ring struct {
	depth   int
	credits []int
	idx     int
}

func newRing(depth int) *ring {
	return &ring{depth: depth, credits: make([]int, depth)}
}

// completionReader abstracts the one blocking call waitRound needs,
// letting tests inject a fake completion source without a real Provider.
type completionReader interface {
	next() (round int, err error)
}

// waitRound blocks until n completions tagged with round have been
// accounted for, crediting stray early arrivals from other rounds into
// their eventual slot. This is spec.md §4.E's FabRecvWait algorithm,
// reproduced verbatim:
//
//	credits := cring[cring_idx]; cring[cring_idx] := 0
//	advance cring_idx
//	while credits < N:
//	  blocking-read one completion e from cq_recv
//	  if e.round == R: credits += 1
//	  else:             cring[(cring_idx + e.round - R - 1) mod K] += 1
func (r *ring) waitRound(round, n int, src completionReader) error {
	credits := r.credits[r.idx]
	r.credits[r.idx] = 0
	r.idx = (r.idx + 1) % r.depth

	for credits < n {
		incoming, err := src.next()
		if err != nil {
			return err
		}

		if incoming == round {
			credits++
			continue
		}

		offset := incoming - round - 1
		if offset < 0 || offset >= r.depth {
			return xerror.NewFatal(xerror.ProtocolViolation,
				"%w: completion for round %d arrived while waiting for round %d (ring depth %d)",
				xerror.ErrRingOverflow, incoming, round, r.depth)
		}

		slot := (r.idx + offset) % r.depth
		r.credits[slot]++
	}

	return nil
}
