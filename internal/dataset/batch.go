package dataset

import (
	"fmt"

	"github.com/braidml/braid/internal/taskdef"
)

// BatchMeta carries the task attribution of one homogeneous batch. Every
// batch is drawn entirely from one task and labeled with that task's id.
type BatchMeta struct {
	TaskID   int
	TaskType taskdef.TaskType
	Pairwise bool
	UIDs     []string
	Labels   []any // gold labels in batch order; nil entries for unlabeled data
}

// Batch is the (metadata, payload) pair the trainer and evaluator consume.
// The payload is opaque to the pipeline core beyond its length.
type Batch struct {
	Meta    BatchMeta
	Payload []Example
}

// Size reports the number of examples in the batch.
func (b *Batch) Size() int {
	return len(b.Payload)
}

// Collator turns a slice of dataset indices into a collated Batch. The
// concrete tensor packing lives behind this interface; the pipeline only
// relies on the returned metadata.
type Collator interface {
	Collate(ds *SingleTaskDataset, indices []int) (*Batch, error)
}

// PassthroughCollator is the reference Collator: it copies the selected
// examples into the payload without any tensor packing.
type PassthroughCollator struct{}

// Collate implements Collator.
func (PassthroughCollator) Collate(ds *SingleTaskDataset, indices []int) (*Batch, error) {
	meta := BatchMeta{
		TaskID:   ds.TaskID,
		TaskType: ds.TaskType,
		Pairwise: ds.TaskType == taskdef.TaskTypeRanking,
		UIDs:     make([]string, 0, len(indices)),
		Labels:   make([]any, 0, len(indices)),
	}
	payload := make([]Example, 0, len(indices))

	for _, i := range indices {
		if i < 0 || i >= len(ds.Examples) {
			return nil, fmt.Errorf("batch index %d out of range for dataset %s (%d examples)", i, ds.Path, len(ds.Examples))
		}
		ex := ds.Examples[i]
		meta.UIDs = append(meta.UIDs, ex.UID)
		meta.Labels = append(meta.Labels, ex.Label)
		payload = append(payload, ex)
	}

	return &Batch{Meta: meta, Payload: payload}, nil
}
