package bootstrap

import (
	"context"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/laik-hpc/fabricbackend/internal/config"
	"github.com/laik-hpc/fabricbackend/internal/fabric"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func TestRunSingleProcessWorldIsTrivial(t *testing.T) {
	cfg := &config.Config{WorldSize: 1}
	res, err := Run(context.Background(), cfg, fabric.Address{1, 2, 3}, zap.NewNop().Sugar())
	require.NoError(t, err)
	require.Equal(t, 0, res.Rank)
	require.Equal(t, 1, res.WorldSize)
	require.Equal(t, fabric.Address{1, 2, 3}, res.Addresses[0])
}

func TestRunElectsOneMasterAndExchangesAddresses(t *testing.T) {
	cfg := &config.Config{
		HomeHost:  "127.0.0.1",
		HomePort:  freePort(t),
		WorldSize: 3,
		Overlay:   config.DefaultOverlay(),
	}

	log := zap.NewNop().Sugar()

	type outcome struct {
		res *Result
		err error
	}

	results := make(chan outcome, cfg.WorldSize)
	for i := 0; i < cfg.WorldSize; i++ {
		local := fabric.Address{byte(i), byte(i), byte(i)}
		go func() {
			res, err := Run(context.Background(), cfg, local, log)
			results <- outcome{res, err}
		}()
	}

	seenRanks := make(map[int]bool)
	var worldAddrs []fabric.Address
	for i := 0; i < cfg.WorldSize; i++ {
		o := <-results
		require.NoError(t, o.err)
		require.False(t, seenRanks[o.res.Rank], "rank %d assigned twice", o.res.Rank)
		seenRanks[o.res.Rank] = true
		require.Len(t, o.res.Addresses, cfg.WorldSize)

		if worldAddrs == nil {
			worldAddrs = o.res.Addresses
		} else {
			require.Equal(t, worldAddrs, o.res.Addresses, "every rank must agree on the address table")
		}
	}

	for i := 0; i < cfg.WorldSize; i++ {
		require.True(t, seenRanks[i], "rank %d never assigned", i)
	}
}
