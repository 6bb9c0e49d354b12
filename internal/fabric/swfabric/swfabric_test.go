package swfabric

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/laik-hpc/fabricbackend/internal/fabric"
)

func openPair(t *testing.T) (*Endpoint, *Endpoint) {
	t.Helper()
	cluster := NewCluster()
	log := zap.NewNop().Sugar()

	a, err := Open(cluster, log)
	require.NoError(t, err)
	b, err := Open(cluster, log)
	require.NoError(t, err)

	require.NoError(t, a.InsertAddress(1, b.LocalAddress()))
	require.NoError(t, b.InsertAddress(0, a.LocalAddress()))

	return a, b
}

func TestWriteAsyncDeliversToRegisteredBuffer(t *testing.T) {
	a, b := openPair(t)
	ctx := context.Background()

	recvBuf := make([]byte, 4)
	_, err := b.RegisterRecv(recvBuf, fabric.RegKey(0))
	require.NoError(t, err)

	require.NoError(t, a.WriteAsync(ctx, 1, []byte{9, 8, 7, 6}, 5, fabric.RegKey(0)))

	c, err := a.PollCompletion(ctx, fabric.DirSend)
	require.NoError(t, err)
	require.EqualValues(t, 5, c.Round)

	c, err = b.PollCompletion(ctx, fabric.DirRecv)
	require.NoError(t, err)
	require.EqualValues(t, 5, c.Round)
	require.Equal(t, []byte{9, 8, 7, 6}, recvBuf)
}

func TestRegistrationsAreConsumedFIFO(t *testing.T) {
	a, b := openPair(t)
	ctx := context.Background()

	first := make([]byte, 1)
	second := make([]byte, 1)
	_, err := b.RegisterRecv(first, fabric.RegKey(0))
	require.NoError(t, err)
	_, err = b.RegisterRecv(second, fabric.RegKey(0))
	require.NoError(t, err)

	require.NoError(t, a.WriteAsync(ctx, 1, []byte{1}, 1, fabric.RegKey(0)))
	require.NoError(t, a.WriteAsync(ctx, 1, []byte{2}, 2, fabric.RegKey(0)))

	_, err = b.PollCompletion(ctx, fabric.DirRecv)
	require.NoError(t, err)
	_, err = b.PollCompletion(ctx, fabric.DirRecv)
	require.NoError(t, err)

	require.Equal(t, byte(1), first[0])
	require.Equal(t, byte(2), second[0])
}

func TestClosedEndpointRejectsWrites(t *testing.T) {
	a, b := openPair(t)
	require.NoError(t, a.Close())

	err := a.WriteAsync(context.Background(), 1, []byte{1}, 1, fabric.RegKey(0))
	require.ErrorIs(t, err, fabric.ErrProviderClosed)

	_ = b
}
