// Package fabric defines the provider-neutral transport surface spec.md
// §4.B requires: a reliable-datagram endpoint with tagged RMA writes
// carrying immediate data, memory registration with per-region access keys,
// and separate send/recv completion queues. No binding to the real
// libfabric C ABI exists anywhere in the retrieval pack this rewrite is
// grounded on (see DESIGN.md), so Provider is an interface capturing
// exactly this capability surface; internal/fabric/swfabric is the one
// in-repo implementation, a software RDM simulation suitable for
// same-process demos and tests. A real libfabric-backed Provider is a
// drop-in implementation of the same interface.
package fabric

import (
	"context"
	"fmt"
)

// Hints describes the capability negotiation a caller performs when
// opening a Provider, mirroring the fi_getinfo hints the original C stub
// built (FI_MSG|FI_RMA caps, FI_EP_RDM endpoint type, FI_VERSION(1,21)).
type Hints struct {
	Caps    string
	EPType  string
	Version string
}

// DefaultHints returns the negotiation hints SPEC_FULL.md's SUPPLEMENTED
// FEATURES section preserves from the original stub.
func DefaultHints() Hints {
	return Hints{
		Caps:    "FI_MSG|FI_RMA",
		EPType:  "FI_EP_RDM",
		Version: "FI_VERSION(1,21)",
	}
}

// Info describes the provider and domain a Provider negotiated.
type Info struct {
	ProviderName string
	DomainName   string
	AddrFormat   string
}

// Address is an opaque endpoint address of provider-determined length —
// spec.md §4.A is explicit that this length must not be assumed fixed.
type Address []byte

// RegKey is the remote access key a memory registration is keyed by. Per
// spec.md §4.C the key used is the rank of the expected sender.
type RegKey uint32

// RegToken is the opaque handle a registration hands back; it is closed
// exactly once, at cleanup.
type RegToken struct {
	id uint64
}

// Direction selects which completion queue an operation concerns —
// spec.md §4.B requires separate CQs for send and receive so that a wait
// action never consumes a completion belonging to the other direction.
type Direction int

const (
	DirSend Direction = iota
	DirRecv
)

func (d Direction) String() string {
	if d == DirSend {
		return "send"
	}
	return "recv"
}

// Completion is a completion-queue entry: the round in which the
// originating write was issued (spec.md §3 "Completion record").
type Completion struct {
	Round uint32
}

// Provider owns one endpoint's fabric/domain/address-vector/completion
// queues — spec.md §4.B's Transport Session.
type Provider interface {
	// Info reports the negotiated provider/domain.
	Info() Info

	// LocalAddress returns this endpoint's opaque address, discovered at
	// open time (spec.md §4.A step 1).
	LocalAddress() Address

	// InsertAddress binds a peer's opaque address to a logical rank in
	// the address vector (spec.md §4.A step 5).
	InsertAddress(rank int, addr Address) error

	// RegisterRecv registers buf as an RMA target reachable under key,
	// returning an opaque token released exactly once via Deregister
	// (spec.md §4.C).
	RegisterRecv(buf []byte, key RegKey) (RegToken, error)

	// Deregister releases a registration produced by RegisterRecv.
	Deregister(tok RegToken) error

	// WriteAsync issues an asynchronous RMA write to toRank carrying
	// immediate data = round and remote key = remoteKey (the sender's own
	// rank per spec.md §4.E). It must retry transient "try again"
	// conditions internally and only return once the write was accepted
	// by the transport, not once it completed.
	WriteAsync(ctx context.Context, toRank int, buf []byte, round uint32, remoteKey RegKey) error

	// WriteSync issues the same RMA write as WriteAsync but with
	// FI_DELIVERY_COMPLETE|FI_FENCE|FI_REMOTE_CQ_DATA semantics and blocks
	// until the local send completion for this write is observed
	// (spec.md §4.E synchronous fallback path).
	WriteSync(ctx context.Context, toRank int, buf []byte, round uint32, remoteKey RegKey) error

	// PollCompletion blocks until one completion is available on the
	// given direction's CQ, or the context is canceled.
	PollCompletion(ctx context.Context, dir Direction) (Completion, error)

	// Close tears down the endpoint (spec.md §2 `finalize`).
	Close() error
}

// ErrProviderClosed is returned by Provider operations once Close has run.
var ErrProviderClosed = fmt.Errorf("fabric: provider closed")
