// Package planner implements spec.md §4.D's Sequence Planner: the fixed
// pipeline of engine-provided transforms followed by memory registration
// and, when async mode is on, the lowering of sends/receives into
// asynchronous RMA actions guarded by explicit wait barriers.
package planner

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"go.uber.org/zap"

	"github.com/laik-hpc/fabricbackend/internal/action"
	"github.com/laik-hpc/fabricbackend/internal/fabric"
	"github.com/laik-hpc/fabricbackend/internal/registry"
)

// LogActionSeqHook mirrors the engine's log_ActionSeqIfChanged upcall
// (spec.md §6): called after every pipeline step with whether that step
// reported a change, for tracing.
type LogActionSeqHook func(changed bool, seq *action.ActionSequence, label string)

type options struct {
	log     *zap.SugaredLogger
	logHook LogActionSeqHook
}

func newOptions() *options {
	return &options{
		log:     zap.NewNop().Sugar(),
		logHook: func(bool, *action.ActionSequence, string) {},
	}
}

// Option configures a Planner.
type Option func(*options)

// WithLog sets the planner's logger.
func WithLog(log *zap.SugaredLogger) Option {
	return func(o *options) { o.log = log }
}

// WithLogActionSeqHook sets the log_ActionSeqIfChanged-equivalent upcall.
func WithLogActionSeqHook(hook LogActionSeqHook) Option {
	return func(o *options) { o.logHook = hook }
}

// Planner applies spec.md §4.D's prepare() pipeline to action sequences.
type Planner struct {
	provider fabric.Provider
	log      *zap.SugaredLogger
	logHook  LogActionSeqHook
}

// New creates a Planner bound to the given transport provider, used only
// to register receive buffers as RMA targets.
func New(provider fabric.Provider, opts ...Option) *Planner {
	o := newOptions()
	for _, opt := range opts {
		opt(o)
	}

	return &Planner{
		provider: provider,
		log:      o.log,
		logHook:  o.logHook,
	}
}

// Prepare runs spec.md §4.D's full pipeline against seq: the injected
// engine transforms (steps 1-11), memory registration (step 12), and, if
// asyncMode is set, lowering to async RMA actions with wait barriers (step
// 13). It finishes by recomputing the sequence's statistics (step 14).
func (p *Planner) Prepare(seq *action.ActionSequence, pipeline Pipeline, asyncMode bool) error {
	for _, step := range pipeline.steps() {
		if step.fn == nil {
			continue
		}

		changed, err := step.fn(seq)
		if err != nil {
			return fmt.Errorf("planner: step %q failed: %w", step.name, err)
		}

		p.logHook(changed, seq, step.name)
	}

	reg := registry.New(p.provider, seq.ActionCount(), p.log)
	if err := registerReceives(seq, reg); err != nil {
		return err
	}

	if asyncMode {
		if err := lowerToAsync(seq); err != nil {
			return fmt.Errorf("planner: failed to lower sequence to async: %w", err)
		}
	}

	seq.RecomputeStats()

	p.log.Debugw("prepared sequence",
		"actions", seq.ActionCount(),
		"rounds", seq.RoundCount,
		"bytes", datasize.ByteSize(seq.BytesUsed).HumanReadable(),
		"registrations", reg.Len(),
		"async", asyncMode,
	)

	return nil
}

// Cleanup releases every registration prepare attached to seq (spec.md
// §4.C). Safe to call even if exec never ran (invariant 6).
func (p *Planner) Cleanup(seq *action.ActionSequence) error {
	if seq.Registrations == nil {
		return nil
	}

	if err := seq.Registrations.Cleanup(); err != nil {
		return fmt.Errorf("planner: cleanup failed: %w", err)
	}

	seq.Registrations = nil
	return nil
}
