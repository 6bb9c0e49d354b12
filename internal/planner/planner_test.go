package planner

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/laik-hpc/fabricbackend/internal/action"
	"github.com/laik-hpc/fabricbackend/internal/fabric/swfabric"
)

func newTestProvider(t *testing.T) *swfabric.Endpoint {
	t.Helper()
	ep, err := swfabric.Open(swfabric.NewCluster(), zap.NewNop().Sugar())
	require.NoError(t, err)
	return ep
}

func TestPrepareRegistersReceivesAndLowersToAsync(t *testing.T) {
	provider := newTestProvider(t)
	require.NoError(t, provider.InsertAddress(1, provider.LocalAddress()))

	p := New(provider, WithLog(zap.NewNop().Sugar()))

	seq := action.New([]action.Action{
		action.NewBufSend(1, []byte{1, 2}, 1, 2, 1),
		action.NewBufRecv(1, make([]byte, 2), 1, 2, 1),
	}, nil)

	require.NoError(t, p.Prepare(seq, NopPipeline(), true))

	require.Equal(t, 1, seq.Registrations.Len())
	require.Equal(t, 1, seq.CountByType(action.FabAsyncSend))
	require.Equal(t, 1, seq.CountByType(action.FabAsyncRecv))
	require.Equal(t, 1, seq.RoundCount)
}

func TestPrepareCleanupWithNoExecLeaksNothing(t *testing.T) {
	provider := newTestProvider(t)
	require.NoError(t, provider.InsertAddress(1, provider.LocalAddress()))

	p := New(provider, WithLog(zap.NewNop().Sugar()))

	seq := action.New([]action.Action{
		action.NewBufRecv(1, make([]byte, 2), 1, 2, 1),
	}, nil)

	require.NoError(t, p.Prepare(seq, NopPipeline(), false))
	require.Equal(t, 1, seq.Registrations.Len())

	require.NoError(t, p.Cleanup(seq))
	require.Nil(t, seq.Registrations)

	// Calling Cleanup again (e.g. after exec never ran) must be a no-op.
	require.NoError(t, p.Cleanup(seq))
}
