// Package executor implements spec.md §4.E: walking a prepared
// ActionSequence, issuing RMA writes, polling completion queues, matching
// round-tagged completions to wait actions, and invoking local
// reductions. The executor is single-threaded and cooperative-blocking
// (spec.md §5): its only suspension point is a completion-queue read.
package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/laik-hpc/fabricbackend/internal/action"
	"github.com/laik-hpc/fabricbackend/internal/fabric"
	"github.com/laik-hpc/fabricbackend/internal/xerror"
)

// RetryPolicy bounds the busy-wait on transient "try again" fabric errors
// (spec.md §9's "pluggable backoff" note) for RMA write issuance.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

// DefaultRetryPolicy mirrors the exponential-backoff shape
// modules/route/bird-adapter/service.go uses for its own reconnect retries.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval: 50 * time.Microsecond,
		MaxInterval:     50 * time.Millisecond,
		MaxElapsed:      5 * time.Second,
	}
}

// Executor is spec.md §4.E's Executor, bound to one rank's transport
// provider.
type Executor struct {
	provider  fabric.Provider
	mylid     int
	ringDepth int
	retry     RetryPolicy
	log       *zap.SugaredLogger
}

// New creates an Executor for the local rank mylid.
func New(provider fabric.Provider, mylid, ringDepth int, retry RetryPolicy, log *zap.SugaredLogger) *Executor {
	return &Executor{
		provider:  provider,
		mylid:     mylid,
		ringDepth: ringDepth,
		retry:     retry,
		log:       log,
	}
}

// providerCompletionReader adapts a fabric.Provider's recv CQ into the
// ring's completionReader interface.
type providerCompletionReader struct {
	ctx      context.Context
	provider fabric.Provider
}

func (r providerCompletionReader) next() (int, error) {
	c, err := r.provider.PollCompletion(r.ctx, fabric.DirRecv)
	if err != nil {
		return 0, fmt.Errorf("executor: recv completion read failed: %w", err)
	}
	return int(c.Round), nil
}

// Exec walks seq in order, dispatching each action by type. It is safe to
// call repeatedly on the same prepared sequence (spec.md §8 invariant 7):
// the planner never mutates seq during exec, so each call reproduces the
// algorithmic effect of every action afresh.
func (e *Executor) Exec(ctx context.Context, seq *action.ActionSequence) error {
	ring := newRing(e.ringDepth)
	reader := providerCompletionReader{ctx: ctx, provider: e.provider}

	for i, a := range seq.Actions {
		var err error

		switch a.Type {
		case action.Nop:
			// skip

		case action.BufSend:
			err = e.syncSend(ctx, a)

		case action.BufRecv:
			err = e.syncRecv(ctx)

		case action.RBufLocalReduce:
			e.localReduce(a)

		case action.FabAsyncSend:
			err = e.asyncSend(ctx, a)

		case action.FabAsyncRecv:
			// No-op at issue time: the remote write lands autonomously and
			// is observed only as a recv-CQ completion.

		case action.FabRecvWait:
			err = ring.waitRound(a.Round, a.WaitCount, reader)

		case action.FabSendWait:
			err = e.sendWait(ctx, a.WaitCount)

		default:
			err = xerror.NewFatal(xerror.ProtocolViolation, "%w: %s", xerror.ErrUnknownAction, a.Type)
		}

		if err != nil {
			return fmt.Errorf("executor: action %d (%s, round %d) failed: %w", i, a.Type, a.Round, err)
		}
	}

	return nil
}

func (e *Executor) localReduce(a action.Action) {
	src := a.Buf[a.Offset:]
	a.RedOp(a.ToBuf, src, a.Count, a.DType.ElemSize)
}

// asyncSend issues an RMA write and retries transient "try again" errors
// with a bounded exponential backoff, per spec.md §4.E/§9. Any other error
// is a category-3 transport-fatal failure.
func (e *Executor) asyncSend(ctx context.Context, a action.Action) error {
	bo := backoff.ExponentialBackOff{
		InitialInterval: e.retry.InitialInterval,
		MaxInterval:     e.retry.MaxInterval,
		Multiplier:      2,
	}
	bo.Reset()

	deadline := time.Now().Add(e.retry.MaxElapsed)

	for {
		err := e.provider.WriteAsync(ctx, a.Peer, a.Buf, uint32(a.Round), fabric.RegKey(e.mylid))
		if err == nil {
			return nil
		}

		if errors.Is(err, xerror.ErrTryAgain) && time.Now().Before(deadline) {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(bo.NextBackOff()):
				continue
			}
		}

		return xerror.NewFatal(xerror.TransportFatal, "rma write to rank %d failed: %w", a.Peer, err)
	}
}

// syncSend is the blocking fallback path (async mode disabled): the write
// carries FI_DELIVERY_COMPLETE|FI_FENCE|FI_REMOTE_CQ_DATA semantics and
// blocks for its own send completion before returning.
func (e *Executor) syncSend(ctx context.Context, a action.Action) error {
	if err := e.provider.WriteSync(ctx, a.Peer, a.Buf, uint32(a.Round), fabric.RegKey(e.mylid)); err != nil {
		return xerror.NewFatal(xerror.TransportFatal, "synchronous rma write to rank %d failed: %w", a.Peer, err)
	}
	return nil
}

// syncRecv blocks on the receive CQ for exactly one completion.
func (e *Executor) syncRecv(ctx context.Context) error {
	if _, err := e.provider.PollCompletion(ctx, fabric.DirRecv); err != nil {
		return xerror.NewFatal(xerror.TransportFatal, "synchronous recv completion wait failed: %w", err)
	}
	return nil
}

// sendWait drains exactly n completions from the send CQ; the round tag is
// unused here (spec.md §4.E).
func (e *Executor) sendWait(ctx context.Context, n int) error {
	for i := 0; i < n; i++ {
		if _, err := e.provider.PollCompletion(ctx, fabric.DirSend); err != nil {
			return xerror.NewFatal(xerror.ProtocolViolation, "%w: send wait expected %d completions, failed after %d: %w",
				xerror.ErrCompletionMismatch, n, i, err)
		}
	}
	return nil
}
