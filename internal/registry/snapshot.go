package registry

import (
	"github.com/braidml/braid/internal/taskdef"
)

// Snapshot is the frozen per-id configuration produced by Finalize. The six
// sequences are parallel: entry i of every sequence describes config id i,
// and all sequences have identical length.
type Snapshot struct {
	DecoderOpts []int
	TaskTypes   []taskdef.TaskType
	DropoutPs   []float64
	LossTypes   []taskdef.LossType
	KDLossTypes []taskdef.LossType
	NClasses    []int
}

// Len reports the number of distinct config ids in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.DecoderOpts)
}

// Validate checks the equal-length invariant across all six sequences.
func (s *Snapshot) Validate() error {
	n := len(s.DecoderOpts)
	if len(s.TaskTypes) != n || len(s.DropoutPs) != n || len(s.LossTypes) != n ||
		len(s.KDLossTypes) != n || len(s.NClasses) != n {
		return newConfigErrorf(
			"config sequences out of step: decoder_opts=%d task_types=%d dropouts=%d losses=%d kd_losses=%d n_classes=%d",
			len(s.DecoderOpts), len(s.TaskTypes), len(s.DropoutPs),
			len(s.LossTypes), len(s.KDLossTypes), len(s.NClasses))
	}
	return nil
}
