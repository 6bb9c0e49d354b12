package planner

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laik-hpc/fabricbackend/internal/action"
)

func TestLowerToAsyncInsertsPerRoundRecvWaitAndTailSendWait(t *testing.T) {
	seq := action.New([]action.Action{
		action.NewBufSend(1, []byte{1, 2}, 1, 2, 1),
		action.NewBufRecv(1, make([]byte, 2), 1, 2, 2),
		action.NewBufRecv(1, make([]byte, 2), 1, 2, 3),
		action.NewBufSend(2, []byte{1, 2}, 1, 2, 1),
		action.NewBufRecv(2, make([]byte, 2), 1, 2, 2),
	}, nil)

	require.NoError(t, lowerToAsync(seq))

	require.Equal(t, 2, seq.CountByType(action.FabAsyncSend))
	require.Equal(t, 3, seq.CountByType(action.FabAsyncRecv))
	require.Equal(t, 2, seq.CountByType(action.FabRecvWait))
	require.Equal(t, 1, seq.CountByType(action.FabSendWait))

	// Round 1's barrier must wait for exactly the two recvs issued in round 1.
	var round1Wait action.Action
	for _, a := range seq.Actions {
		if a.Type == action.FabRecvWait && a.Round == 1 {
			round1Wait = a
		}
	}
	require.Equal(t, 2, round1Wait.WaitCount)

	// The tail send-wait must account for every send issued across both rounds.
	tail := seq.Actions[len(seq.Actions)-1]
	require.Equal(t, action.FabSendWait, tail.Type)
	require.Equal(t, 2, tail.WaitCount)
}

func TestLowerToAsyncNoRecvsSkipsRecvWait(t *testing.T) {
	seq := action.New([]action.Action{
		action.NewBufSend(1, []byte{1}, 1, 1, 1),
	}, nil)

	require.NoError(t, lowerToAsync(seq))

	require.Equal(t, 0, seq.CountByType(action.FabRecvWait))
	require.Equal(t, 1, seq.CountByType(action.FabSendWait))
}
