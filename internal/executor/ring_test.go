package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/laik-hpc/fabricbackend/internal/xerror"
)

type fakeReader struct {
	rounds []int
	i      int
}

func (f *fakeReader) next() (int, error) {
	r := f.rounds[f.i]
	f.i++
	return r, nil
}

func TestRingWaitRoundInOrder(t *testing.T) {
	r := newRing(4)
	src := &fakeReader{rounds: []int{1, 1, 1}}
	require.NoError(t, r.waitRound(1, 3, src))
	require.Equal(t, 3, src.i)
}

func TestRingWaitRoundCreditsEarlyArrival(t *testing.T) {
	r := newRing(4)

	// Round 2's completion arrives while round 1 is still being awaited.
	src := &fakeReader{rounds: []int{2, 1, 1}}
	require.NoError(t, r.waitRound(1, 2, src))
	require.Equal(t, 3, src.i)

	// Round 2 should now need only one more completion: the early arrival
	// was credited into its slot.
	src2 := &fakeReader{rounds: []int{2}}
	require.NoError(t, r.waitRound(2, 2, src2))
	require.Equal(t, 1, src2.i)
}

func TestRingWaitRoundOverflowIsFatal(t *testing.T) {
	r := newRing(2)
	src := &fakeReader{rounds: []int{5}}

	err := r.waitRound(1, 1, src)
	require.Error(t, err)
	require.True(t, xerror.IsFatal(err))
	require.ErrorIs(t, err, xerror.ErrRingOverflow)
}
