// Package backend wires spec.md's components A-E together behind the
// four-entry-point vtable component F names: prepare, exec, cleanup,
// finalize, plus the log_action tracing hook.
package backend

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/laik-hpc/fabricbackend/internal/action"
	"github.com/laik-hpc/fabricbackend/internal/bootstrap"
	"github.com/laik-hpc/fabricbackend/internal/config"
	"github.com/laik-hpc/fabricbackend/internal/executor"
	"github.com/laik-hpc/fabricbackend/internal/fabric"
	"github.com/laik-hpc/fabricbackend/internal/planner"
)

// ProviderOpener opens this process's transport session (spec.md §4.B).
// Swapping in a real libfabric-backed provider only means supplying a
// different ProviderOpener.
type ProviderOpener func() (fabric.Provider, error)

// Instance is spec.md §3's Instance/Group: the process-lifetime identity
// and handles that every prepared sequence is executed against.
type Instance struct {
	MyLID     int
	WorldSize int

	provider fabric.Provider
}

// Backend is spec.md §4.F's vtable: {name, prepare, exec, cleanup,
// finalize, log_action}.
type Backend struct {
	inst     *Instance
	planner  *planner.Planner
	executor *executor.Executor
	pipeline planner.Pipeline
	async    bool
	log      *zap.SugaredLogger
}

// Init performs spec.md §2's control flow up to the point a backend is
// ready to prepare sequences: opens the transport session, runs the
// bootstrap rendezvous, populates the address vector, and constructs the
// planner and executor bound to the resolved rank.
func Init(ctx context.Context, cfg *config.Config, open ProviderOpener, pipeline planner.Pipeline, log *zap.SugaredLogger) (*Backend, error) {
	provider, err := open()
	if err != nil {
		return nil, fmt.Errorf("backend: failed to open transport session: %w", err)
	}

	res, err := bootstrap.Run(ctx, cfg, provider.LocalAddress(), log)
	if err != nil {
		provider.Close()
		return nil, fmt.Errorf("backend: bootstrap failed: %w", err)
	}

	for rank, addr := range res.Addresses {
		if rank == res.Rank {
			continue
		}
		if err := provider.InsertAddress(rank, addr); err != nil {
			provider.Close()
			return nil, fmt.Errorf("backend: failed to insert rank %d into address vector: %w", rank, err)
		}
	}

	inst := &Instance{MyLID: res.Rank, WorldSize: res.WorldSize, provider: provider}

	pl := planner.New(provider, planner.WithLog(log))

	retry := executor.RetryPolicy{
		InitialInterval: cfg.Overlay.RetryInitialInterval,
		MaxInterval:     cfg.Overlay.RetryMaxInterval,
		MaxElapsed:      cfg.Overlay.RetryMaxElapsed,
	}
	ex := executor.New(provider, res.Rank, cfg.Overlay.RingDepth, retry, log)

	log.Infow("fabric backend ready", "rank", inst.MyLID, "world_size", inst.WorldSize, "async", cfg.Async)

	return &Backend{inst: inst, planner: pl, executor: ex, pipeline: pipeline, async: cfg.Async, log: log}, nil
}

// Name identifies this backend to the engine.
func (b *Backend) Name() string {
	return "Fabric Backend"
}

// Instance returns this backend's process-lifetime identity.
func (b *Backend) Instance() *Instance {
	return b.inst
}

// Prepare applies spec.md §4.D's full planner pipeline to seq.
func (b *Backend) Prepare(seq *action.ActionSequence) error {
	return b.planner.Prepare(seq, b.pipeline, b.async)
}

// Exec walks seq once, per spec.md §4.E.
func (b *Backend) Exec(ctx context.Context, seq *action.ActionSequence) error {
	return b.executor.Exec(ctx, seq)
}

// Cleanup releases seq's memory registrations, per spec.md §4.C.
func (b *Backend) Cleanup(seq *action.ActionSequence) error {
	return b.planner.Cleanup(seq)
}

// Finalize tears down the transport session, per spec.md §2.
func (b *Backend) Finalize() error {
	return b.inst.provider.Close()
}

// LogAction is spec.md §4.F's log_action hook: it returns true iff it
// recognized and printed one of the four backend-private action types.
// When it returns false nothing was printed, and the engine's generic
// logger handles the action itself.
func (b *Backend) LogAction(a action.Action) bool {
	if !a.Type.IsFabricPrivate() {
		return false
	}

	switch a.Type {
	case action.FabAsyncSend:
		b.log.Infow("action", "type", a.Type, "round", a.Round, "to_rank", a.Peer, "count", a.Count)
	case action.FabAsyncRecv:
		b.log.Infow("action", "type", a.Type, "round", a.Round, "from_rank", a.Peer, "count", a.Count)
	case action.FabRecvWait:
		b.log.Infow("action", "type", a.Type, "round", a.Round, "count", a.WaitCount)
	case action.FabSendWait:
		b.log.Infow("action", "type", a.Type, "count", a.WaitCount)
	}

	return true
}
