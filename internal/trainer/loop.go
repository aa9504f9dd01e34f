package trainer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"time"

	"github.com/braidml/braid/internal/dataset"
	"github.com/braidml/braid/internal/metrics"
	"github.com/braidml/braid/internal/registry"
	"github.com/braidml/braid/internal/runconfig"
)

// Materializer adapts a batch for the active compute device before the model
// consumes it. The identity function is a valid materializer.
type Materializer func(*dataset.Batch) (*dataset.Batch, error)

// Loop trains the shared model over the interleaved multi-task batch stream.
type Loop struct {
	model       Model
	loader      dataset.Loader
	cfg         *runconfig.Config
	sink        metrics.Sink
	materialize Materializer
}

// NewLoop validates the collaborators and returns a training loop. An empty
// train loader is a configuration error caught here, before any epoch runs.
func NewLoop(model Model, loader dataset.Loader, cfg *runconfig.Config, sink metrics.Sink, materialize Materializer) (*Loop, error) {
	if model == nil {
		return nil, registry.ConfigErrorf("training loop requires a model")
	}
	if loader == nil || loader.Len() == 0 {
		return nil, registry.ConfigErrorf("training loop requires a non-empty train dataloader")
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Loop{
		model:       model,
		loader:      loader,
		cfg:         cfg,
		sink:        sink,
		materialize: materialize,
	}, nil
}

// Fit runs the configured number of epochs. Any failure inside the model's
// update step, a checkpoint write or a sink write aborts the run; there is
// no retry.
func (l *Loop) Fit(ctx context.Context) error {
	for epoch := 0; epoch < l.cfg.Epochs; epoch++ {
		if err := l.runEpoch(ctx, epoch); err != nil {
			return err
		}
	}
	return nil
}

func (l *Loop) runEpoch(ctx context.Context, epoch int) error {
	log.Printf("[Trainer] At epoch %d", epoch)
	start := time.Now()
	total := l.loader.Len()
	l.loader.Reset()

	for batchIdx := 0; ; batchIdx++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := l.loader.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("epoch %d batch %d: pulling batch: %w", epoch, batchIdx, err)
		}

		if l.materialize != nil {
			batch, err = l.materialize(batch)
			if err != nil {
				return fmt.Errorf("epoch %d batch %d: materializing batch: %w", epoch, batchIdx, err)
			}
		}

		if err := l.model.Update(ctx, batch); err != nil {
			return fmt.Errorf("epoch %d batch %d (task %d): model update: %w", epoch, batchIdx, batch.Meta.TaskID, err)
		}

		local := l.model.LocalUpdates()

		if local == 1 || local%l.cfg.LogInterval() == 0 {
			remaining := estimateRemaining(start, batchIdx+1, total)
			log.Printf("[Trainer] Task [%2d] updates[%6d] train loss[%.5f] remaining[%s]",
				batch.Meta.TaskID, l.model.GlobalUpdates(), l.model.TrainLossAvg(), remaining)
			if err := l.sink.RecordScalar("train/loss", l.model.TrainLossAvg(), l.model.GlobalUpdates()); err != nil {
				return fmt.Errorf("epoch %d batch %d: recording train loss: %w", epoch, batchIdx, err)
			}
		}

		if l.cfg.SavePerUpdatesOn && local%l.cfg.SaveInterval() == 0 {
			path := filepath.Join(l.cfg.OutputDir, fmt.Sprintf("model_%d_%d.pt", epoch, l.model.GlobalUpdates()))
			log.Printf("[Trainer] Saving model to %s", path)
			if err := l.model.Save(path); err != nil {
				return fmt.Errorf("epoch %d batch %d: saving checkpoint %s: %w", epoch, batchIdx, path, err)
			}
		}
	}
}

// estimateRemaining extrapolates the time left in the epoch from the average
// time per processed batch.
func estimateRemaining(start time.Time, processed, total int) time.Duration {
	if processed <= 0 {
		return 0
	}
	elapsed := time.Since(start)
	per := elapsed / time.Duration(processed)
	return (per * time.Duration(total-processed)).Truncate(time.Second)
}
