package registry

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/laik-hpc/fabricbackend/internal/fabric/swfabric"
)

func TestRegisterAndCleanup(t *testing.T) {
	ep, err := swfabric.Open(swfabric.NewCluster(), zap.NewNop().Sugar())
	require.NoError(t, err)

	r := New(ep, 4, zap.NewNop().Sugar())

	buf := make([]byte, 16)
	reg, err := r.Register(buf, 2, 8, 3)
	require.NoError(t, err)
	require.Equal(t, 16, reg.Len())
	require.Equal(t, 1, r.Len())
	require.Len(t, r.All(), 1)

	require.NoError(t, r.Cleanup())
	require.Equal(t, 0, r.Len())
}
