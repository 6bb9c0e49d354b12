package action

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAsFabAsyncSendPreservesPayload(t *testing.T) {
	a := NewBufSend(3, []byte{1, 2, 3}, 3, 1, 7)
	async := a.AsFabAsyncSend()

	require.Equal(t, FabAsyncSend, async.Type)
	require.Equal(t, a.Round, async.Round)
	require.Equal(t, a.Buf, async.Buf)
	require.Equal(t, a.Count, async.Count)
	require.Equal(t, a.Peer, async.Peer)
	require.Equal(t, BufSend, a.Type, "original record must be unchanged")
}

func TestAsFabAsyncRecvPreservesPayload(t *testing.T) {
	buf := make([]byte, 4)
	a := NewBufRecv(2, buf, 1, 4, 5)
	async := a.AsFabAsyncRecv()

	require.Equal(t, FabAsyncRecv, async.Type)
	require.Equal(t, a.Peer, async.Peer)
	require.Equal(t, a.ElemSize, async.ElemSize)
}

func TestIsFabricPrivate(t *testing.T) {
	require.True(t, FabAsyncSend.IsFabricPrivate())
	require.True(t, FabAsyncRecv.IsFabricPrivate())
	require.True(t, FabRecvWait.IsFabricPrivate())
	require.True(t, FabSendWait.IsFabricPrivate())
	require.False(t, BufSend.IsFabricPrivate())
	require.False(t, BufRecv.IsFabricPrivate())
	require.False(t, RBufLocalReduce.IsFabricPrivate())
	require.False(t, Nop.IsFabricPrivate())
}
