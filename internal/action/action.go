// Package action implements spec.md §3's data model: a tagged-variant
// redesign of the original length-prefixed action stream (DESIGN NOTES §9),
// plus the four backend-private action types the planner introduces
// (§4.D) and the local-reduction/no-op records the engine hands in.
package action

import "fmt"

// Type discriminates an Action record. The four Fab* types are introduced
// by this backend's planner (spec.md §4.D); the rest are generic
// engine-provided actions (spec.md §3).
type Type int

const (
	Nop Type = iota
	BufSend
	BufRecv
	RBufLocalReduce
	FabAsyncSend
	FabAsyncRecv
	FabRecvWait
	FabSendWait
)

func (t Type) String() string {
	switch t {
	case Nop:
		return "Nop"
	case BufSend:
		return "BufSend"
	case BufRecv:
		return "BufRecv"
	case RBufLocalReduce:
		return "RBufLocalReduce"
	case FabAsyncSend:
		return "FabAsyncSend"
	case FabAsyncRecv:
		return "FabAsyncRecv"
	case FabRecvWait:
		return "FabRecvWait"
	case FabSendWait:
		return "FabSendWait"
	default:
		return fmt.Sprintf("Type(%d)", int(t))
	}
}

// IsFabricPrivate reports whether t is one of the four backend-private
// types §4.F's log_action hook must recognize.
func (t Type) IsFabricPrivate() bool {
	switch t {
	case FabAsyncSend, FabAsyncRecv, FabRecvWait, FabSendWait:
		return true
	default:
		return false
	}
}

// ReduceOp applies a reduction of count elemSize-byte elements from src
// into dst, in place. The engine supplies these per data type; this
// backend never interprets element contents itself.
type ReduceOp func(dst, src []byte, count, elemSize int)

// DataType is the minimal slice of a TransitionContext's data-type
// descriptor this backend needs: a name and the element size. The
// reduction function is carried separately, in an Action's RedOp field.
type DataType struct {
	Name     string
	ElemSize int
}

// Action is one record of an ActionSequence. Every field is a header field
// or payload field of some Type; fields irrelevant to the record's Type
// are left zero. This single tagged struct is the Go replacement for the
// original's length-prefixed-blob-with-type-tag walk: the iteration step
// becomes a slice index, not a length add.
type Action struct {
	Type Type

	// Header fields carried through from the original record layout
	// (spec.md §3), preserved verbatim across every planner rewrite.
	Round       int
	TransformID int
	Mark        bool

	// BufSend / BufRecv / FabAsyncSend / FabAsyncRecv payload.
	Buf      []byte
	Count    int
	ElemSize int
	Peer     int // to_rank for sends, from_rank for recvs

	// RBufLocalReduce payload. BufID/Offset locate the window inside Buf
	// (the engine-allocated scratch temporary) this record reduces from;
	// ToBuf is reduced into in full.
	BufID  int
	Offset int
	ToBuf  []byte
	DType  DataType
	RedOp  ReduceOp

	// FabRecvWait / FabSendWait payload.
	WaitCount int
}

// NewBufSend constructs a synchronous send record.
func NewBufSend(round int, buf []byte, count, elemSize, toRank int) Action {
	return Action{Type: BufSend, Round: round, Buf: buf, Count: count, ElemSize: elemSize, Peer: toRank}
}

// NewBufRecv constructs a synchronous receive record.
func NewBufRecv(round int, buf []byte, count, elemSize, fromRank int) Action {
	return Action{Type: BufRecv, Round: round, Buf: buf, Count: count, ElemSize: elemSize, Peer: fromRank}
}

// NewRBufLocalReduce constructs a local-reduction record: it reduces count
// elements starting at offset within src (the engine-allocated temporary
// identified by bufID) into toBuf, using dtype's element size and op.
func NewRBufLocalReduce(round, bufID, offset int, src, toBuf []byte, count int, dtype DataType, op ReduceOp) Action {
	return Action{
		Type:   RBufLocalReduce,
		Round:  round,
		BufID:  bufID,
		Offset: offset,
		Buf:    src,
		ToBuf:  toBuf,
		Count:  count,
		DType:  dtype,
		RedOp:  op,
	}
}

// NewNop constructs an ignored record.
func NewNop(round int) Action {
	return Action{Type: Nop, Round: round}
}

// AsFabAsyncSend rewrites a BufSend into its async counterpart, preserving
// every header and payload field (spec.md §4.D: "keeping payload bytes
// identical, the layout is deliberately the same as the blocking variant").
func (a Action) AsFabAsyncSend() Action {
	out := a
	out.Type = FabAsyncSend
	return out
}

// AsFabAsyncRecv rewrites a BufRecv into its async counterpart.
func (a Action) AsFabAsyncRecv() Action {
	out := a
	out.Type = FabAsyncRecv
	return out
}

// NewFabRecvWait constructs a round-barrier wait for count receives in
// round R.
func NewFabRecvWait(round, count int) Action {
	return Action{Type: FabRecvWait, Round: round, WaitCount: count}
}

// NewFabSendWait constructs the tail send barrier for count sends.
func NewFabSendWait(round, count int) Action {
	return Action{Type: FabSendWait, Round: round, WaitCount: count}
}
