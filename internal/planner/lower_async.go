package planner

import "github.com/laik-hpc/fabricbackend/internal/action"

// lowerToAsync is spec.md §4.D's "the interesting transform": it rewrites
// BufSend/BufRecv into FabAsyncSend/FabAsyncRecv and inserts the explicit
// completion-wait barriers an asynchronous RMA transport needs in place of
// the implicit ordering a blocking send/receive gave for free.
//
// Rationale preserved from spec.md: receives need per-round barriers
// because a later round may read buffers a preceding remote write
// targeted; sends can all share one tail barrier because the receive-side
// barriers on peers already enforce causal visibility, and the local
// process only needs to know its writes flushed before cleanup runs.
func lowerToAsync(seq *action.ActionSequence) error {
	recvsInRound := 0
	sendsTotal := 0
	lastRound := 0

	out := make([]action.Action, 0, len(seq.Actions)+seq.RoundCount+1)

	for _, a := range seq.Actions {
		if a.Round != lastRound {
			if recvsInRound > 0 {
				out = append(out, action.NewFabRecvWait(lastRound, recvsInRound))
			}
			recvsInRound = 0
			lastRound = a.Round
		}

		switch a.Type {
		case action.BufSend:
			out = append(out, a.AsFabAsyncSend())
			sendsTotal++
		case action.BufRecv:
			out = append(out, a.AsFabAsyncRecv())
			recvsInRound++
		default:
			out = append(out, a)
		}
	}

	if recvsInRound > 0 {
		out = append(out, action.NewFabRecvWait(lastRound, recvsInRound))
	}
	out = append(out, action.NewFabSendWait(lastRound, sendsTotal))

	seq.Actions = out
	return nil
}
