package action

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestRecomputeStatsTracksRoundsAndBytes(t *testing.T) {
	seq := New([]Action{
		NewBufSend(1, make([]byte, 8), 1, 8, 1),
		NewBufRecv(1, make([]byte, 8), 1, 8, 2),
		NewBufSend(2, make([]byte, 16), 2, 8, 1),
	}, nil)

	require.Equal(t, 2, seq.RoundCount)
	require.Equal(t, 8+8+16, seq.BytesUsed)
	require.Equal(t, 3, seq.ActionCount())
}

func TestCountByTypeAndCountInRound(t *testing.T) {
	seq := New([]Action{
		NewBufSend(1, nil, 0, 0, 1),
		NewBufSend(1, nil, 0, 0, 2),
		NewBufSend(2, nil, 0, 0, 1),
		NewNop(1),
	}, nil)

	require.Equal(t, 3, seq.CountByType(BufSend))
	require.Equal(t, 1, seq.CountByType(Nop))
	require.Equal(t, 2, seq.CountInRound(BufSend, 1))
	require.Equal(t, 1, seq.CountInRound(BufSend, 2))
}

func TestRecomputeStatsIncludesLocalReduceBytes(t *testing.T) {
	toBuf := make([]byte, 16)
	src := make([]byte, 16)

	seq := New([]Action{
		NewRBufLocalReduce(1, 0, 0, src, toBuf, 2, Int64, AddInt64),
	}, nil)

	require.Equal(t, 16, seq.BytesUsed)
}

// TestDecodedSequencePayloadsMatchAfterRoundTrip checks that a payload
// encoded with EncodeInt64s and carried on a sequence action decodes back
// unchanged, including negative and wider-than-32-bit values; cmp.Diff
// gives a readable element-by-element diff instead of a single bool on
// mismatch.
func TestDecodedSequencePayloadsMatchAfterRoundTrip(t *testing.T) {
	want := []int64{1, -2, 3, 4000000000}

	seq := New([]Action{
		NewBufSend(1, EncodeInt64s(want), len(want), 8, 1),
	}, nil)

	got := DecodeInt64s(seq.Actions[0].Buf)

	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("decoded payload mismatch (-want +got):\n%s", diff)
	}
}
