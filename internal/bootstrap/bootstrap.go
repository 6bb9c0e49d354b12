// Package bootstrap implements spec.md §4.A: the plain-TCP rendezvous that
// establishes world size, assigns ranks, and exchanges each process's
// opaque fabric endpoint address before the address vector is populated.
package bootstrap

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/laik-hpc/fabricbackend/internal/config"
	"github.com/laik-hpc/fabricbackend/internal/fabric"
	"github.com/laik-hpc/fabricbackend/internal/xerror"
)

// Result is the outcome of Run: this process's assigned rank and the full
// address table in rank order, ready to be inserted into the fabric
// address vector (spec.md §4.A step 5).
type Result struct {
	Rank      int
	WorldSize int
	Addresses []fabric.Address
}

// Run executes the bootstrap rendezvous protocol described in spec.md
// §4.A/§6: exactly one process becomes master by winning a bind() race on
// home_host:home_port, collects every peer's opaque endpoint address, and
// broadcasts the assigned ranks and full address table back.
func Run(ctx context.Context, cfg *config.Config, local fabric.Address, log *zap.SugaredLogger) (*Result, error) {
	if cfg.WorldSize == 1 {
		return &Result{Rank: 0, WorldSize: 1, Addresses: []fabric.Address{local}}, nil
	}

	tryMaster, err := checkLocal(cfg.HomeHost)
	if err != nil {
		return nil, xerror.NewFatal(xerror.Configuration, "failed to resolve home host %q: %w", cfg.HomeHost, err)
	}

	addr := fmt.Sprintf("%s:%d", cfg.HomeHost, cfg.HomePort)

	if tryMaster {
		res, became, err := tryBecomeMaster(ctx, addr, cfg, local, log)
		if err != nil {
			return nil, err
		}
		if became {
			return res, nil
		}
		log.Debugw("did not become master, falling back to peer", "addr", addr)
	}

	return joinAsPeer(ctx, addr, cfg, local, log)
}

// checkLocal reports whether host resolves to one of this machine's local
// interface addresses — this backend's own implementation of the
// out-of-scope check_local(host) upcall spec.md §6 names (§1 notes the
// original relied on the TCP2 backend for this; there is no such sibling
// backend here to borrow it from, so it lives in this package).
func checkLocal(host string) (bool, error) {
	ips, err := net.LookupHost(host)
	if err != nil {
		return false, err
	}

	ifaceAddrs, err := net.InterfaceAddrs()
	if err != nil {
		return false, err
	}

	local := make(map[string]struct{}, len(ifaceAddrs))
	for _, a := range ifaceAddrs {
		var ip net.IP
		switch v := a.(type) {
		case *net.IPNet:
			ip = v.IP
		case *net.IPAddr:
			ip = v.IP
		}
		if ip != nil {
			local[ip.String()] = struct{}{}
		}
	}

	for _, ip := range ips {
		if _, ok := local[ip]; ok {
			return true, nil
		}
	}

	return false, nil
}

// reuseAddrListenConfig enables SO_REUSEADDR on the master's listening
// socket, the literal mechanism spec.md §4.A step 2 asks for ("attempt to
// bind() a stream socket ... with address-reuse enabled").
var reuseAddrListenConfig = net.ListenConfig{
	Control: func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		if err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
		}); err != nil {
			return err
		}
		return sockErr
	},
}

// tryBecomeMaster attempts the bind() race spec.md §4.A step 2 describes.
// A bind failure is not fatal: it means another process already won the
// race, and this process falls back to the peer path.
func tryBecomeMaster(ctx context.Context, addr string, cfg *config.Config, local fabric.Address, log *zap.SugaredLogger) (*Result, bool, error) {
	ln, err := reuseAddrListenConfig.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, false, nil
	}
	defer ln.Close()

	log.Infow("became bootstrap master", "addr", addr, "world_size", cfg.WorldSize)

	l := len(local)
	table := make([]fabric.Address, cfg.WorldSize)
	table[0] = local

	conns := make([]net.Conn, 0, cfg.WorldSize-1)
	defer func() {
		for _, c := range conns {
			c.Close()
		}
	}()

	for i := 0; i < cfg.WorldSize-1; i++ {
		if cfg.Overlay.AcceptTimeout > 0 {
			if tcl, ok := ln.(*net.TCPListener); ok {
				tcl.SetDeadline(time.Now().Add(cfg.Overlay.AcceptTimeout))
			}
		}

		conn, err := ln.Accept()
		if err != nil {
			return nil, true, xerror.NewFatal(xerror.Configuration, "bootstrap accept failed (%d/%d): %w", i, cfg.WorldSize-1, err)
		}
		conns = append(conns, conn)

		peerAddr, err := readFull(conn, l)
		if err != nil {
			return nil, true, xerror.NewFatal(xerror.Configuration, "failed to read peer address (rank %d): %w", i+1, err)
		}
		table[i+1] = peerAddr

		log.Debugw("peer connected", "rank", i+1, "remaining", cfg.WorldSize-2-i)
	}

	flatTable := flatten(table)

	for i, conn := range conns {
		rank := i + 1

		var rankBuf [4]byte
		binary.BigEndian.PutUint32(rankBuf[:], uint32(rank))

		if _, err := conn.Write(rankBuf[:]); err != nil {
			return nil, true, xerror.NewFatal(xerror.Configuration, "failed to send rank %d: %w", rank, err)
		}
		if _, err := conn.Write(flatTable); err != nil {
			return nil, true, xerror.NewFatal(xerror.Configuration, "failed to send address table to rank %d: %w", rank, err)
		}
	}

	return &Result{Rank: 0, WorldSize: cfg.WorldSize, Addresses: table}, true, nil
}

// joinAsPeer is spec.md §4.A step 4: connect to the master, send this
// process's address, and read back the assigned rank and full table.
func joinAsPeer(ctx context.Context, addr string, cfg *config.Config, local fabric.Address, log *zap.SugaredLogger) (*Result, error) {
	var dialer net.Dialer

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, xerror.NewFatal(xerror.Configuration, "failed to connect to bootstrap master %s: %w", addr, err)
	}
	defer conn.Close()

	if _, err := conn.Write(local); err != nil {
		return nil, xerror.NewFatal(xerror.Configuration, "failed to send local address to master: %w", err)
	}

	rankBuf, err := readFull(conn, 4)
	if err != nil {
		return nil, xerror.NewFatal(xerror.Configuration, "failed to read assigned rank: %w", err)
	}
	rank := int(binary.BigEndian.Uint32(rankBuf))

	l := len(local)
	flatTable, err := readFull(conn, l*cfg.WorldSize)
	if err != nil {
		return nil, xerror.NewFatal(xerror.Configuration, "failed to read address table: %w", err)
	}

	log.Infow("joined as peer", "rank", rank, "world_size", cfg.WorldSize)

	return &Result{
		Rank:      rank,
		WorldSize: cfg.WorldSize,
		Addresses: unflatten(flatTable, l, cfg.WorldSize),
	}, nil
}

func readFull(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func flatten(table []fabric.Address) []byte {
	if len(table) == 0 {
		return nil
	}
	l := len(table[0])
	out := make([]byte, 0, l*len(table))
	for _, a := range table {
		out = append(out, a...)
	}
	return out
}

func unflatten(flat []byte, l, worldSize int) []fabric.Address {
	table := make([]fabric.Address, worldSize)
	for i := 0; i < worldSize; i++ {
		table[i] = flat[i*l : (i+1)*l]
	}
	return table
}
