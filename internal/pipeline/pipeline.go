// Package pipeline assembles the full run: task registration, config
// derivation, dataset binding, training and evaluation. Everything executes
// sequentially on the caller's goroutine; the pipeline owns the metrics sink
// and guarantees it is released exactly once.
package pipeline

import (
	"context"
	"fmt"
	"log"

	"github.com/google/uuid"

	"github.com/braidml/braid/internal/dataset"
	"github.com/braidml/braid/internal/evaluator"
	"github.com/braidml/braid/internal/metrics"
	"github.com/braidml/braid/internal/registry"
	"github.com/braidml/braid/internal/runconfig"
	"github.com/braidml/braid/internal/submission"
	"github.com/braidml/braid/internal/taskdef"
	"github.com/braidml/braid/internal/trainer"
)

// Pipeline is one training-and-evaluation run over a shared model.
type Pipeline struct {
	cfg   *runconfig.Config
	defs  *taskdef.Defs
	model trainer.Model
	reg   *registry.Registry

	runID string
	sink  metrics.Sink

	train dataset.Loader
	dev   []dataset.Loader
	test  []dataset.Loader

	loop   *trainer.Loop
	runner *evaluator.Runner
	closed bool
}

// Option customizes pipeline construction.
type Option func(*options)

type options struct {
	sampler     dataset.BatchSampler
	collator    dataset.Collator
	materialize trainer.Materializer
	sink        metrics.Sink
}

// WithSampler replaces the reference batch-interleaving sampler.
func WithSampler(s dataset.BatchSampler) Option {
	return func(o *options) { o.sampler = s }
}

// WithCollator replaces the reference collator.
func WithCollator(c dataset.Collator) Option {
	return func(o *options) { o.collator = c }
}

// WithMaterializer installs a device adaptation step applied to every batch
// before the model consumes it.
func WithMaterializer(m trainer.Materializer) Option {
	return func(o *options) { o.materialize = m }
}

// WithSink replaces the configured metrics sink.
func WithSink(s metrics.Sink) Option {
	return func(o *options) { o.sink = s }
}

// New validates the configuration, registers every train task, merges the
// frozen config snapshot into cfg, binds all dataloaders and prepares the
// training loop and evaluation runner. All configuration errors surface here,
// before any compute happens.
func New(cfg *runconfig.Config, defs *taskdef.Defs, model trainer.Model, opts ...Option) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, registry.ConfigErrorf("invalid run config: %v", err)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	p := &Pipeline{
		cfg:   cfg,
		defs:  defs,
		model: model,
		runID: uuid.NewString(),
	}

	p.reg = registry.New(defs, registry.Options{
		ClassSharing:   cfg.ClassSharing,
		AnswerOpt:      cfg.AnswerOpt,
		DefaultDropout: cfg.DropoutP,
	})

	binder, err := dataset.NewBinder(cfg, defs, p.reg, o.sampler, o.collator)
	if err != nil {
		return nil, err
	}

	p.train, err = binder.BindTrain()
	if err != nil {
		return nil, err
	}

	snap, err := p.reg.Finalize()
	if err != nil {
		return nil, err
	}
	cfg.ApplySnapshot(snap)
	log.Printf("[Pipeline] Registered %d tasks over %d config slots (run %s)", p.reg.Len(), snap.Len(), p.runID)

	p.dev, p.test, err = binder.BindEval()
	if err != nil {
		return nil, err
	}

	p.sink, err = p.openSink(o.sink)
	if err != nil {
		return nil, err
	}

	p.loop, err = trainer.NewLoop(model, p.train, cfg, p.sink, o.materialize)
	if err != nil {
		p.Close()
		return nil, err
	}

	p.runner, err = evaluator.NewRunner(model, cfg, defs, p.reg, p.dev, p.test, p.sink, submission.TSVWriter{})
	if err != nil {
		p.Close()
		return nil, err
	}

	return p, nil
}

func (p *Pipeline) openSink(override metrics.Sink) (metrics.Sink, error) {
	if override != nil {
		return override, nil
	}
	if p.cfg.MetricsDB == "" {
		return metrics.NopSink{}, nil
	}
	return metrics.OpenEventStore(p.cfg.MetricsDB, p.runID)
}

// Registry exposes the frozen task registry for reporting.
func (p *Pipeline) Registry() *registry.Registry {
	return p.reg
}

// Fit trains the model for the configured number of epochs.
func (p *Pipeline) Fit(ctx context.Context) error {
	return p.loop.Fit(ctx)
}

// Predict evaluates every test dataset at the given epoch, writes the score
// artifacts and the end-of-run checkpoint, and releases the sink.
func (p *Pipeline) Predict(ctx context.Context, epoch int) error {
	err := p.runner.Predict(ctx, epoch)
	p.closed = true // the runner released the sink
	return err
}

// Run executes the full pipeline: all training epochs, then evaluation at
// the final epoch.
func (p *Pipeline) Run(ctx context.Context) error {
	defer p.Close()

	if err := p.Fit(ctx); err != nil {
		return fmt.Errorf("training: %w", err)
	}
	if err := p.Predict(ctx, p.cfg.Epochs-1); err != nil {
		return fmt.Errorf("evaluation: %w", err)
	}
	return nil
}

// Close releases the metrics sink if it is still open. Safe to call more
// than once.
func (p *Pipeline) Close() error {
	if p.closed || p.sink == nil {
		return nil
	}
	p.closed = true
	return p.sink.Close()
}
