package dataset

// Assignment is one planned batch: the index of the dataset it draws from
// and the example indices it contains. Assignments are always homogeneous.
type Assignment struct {
	Task    int
	Indices []int
}

// BatchSampler plans the interleaving of homogeneous per-task batches for
// one epoch. The policy is opaque to the rest of the pipeline: the only
// contract is that each assignment draws from exactly one task and that the
// plan covers each task's examples.
type BatchSampler interface {
	Plan(taskSizes []int) []Assignment
}

// InterleavingSampler is the reference BatchSampler. It chunks each task
// into fixed-size batches and interleaves them deterministically:
//
//   - MixOpt 0: strict round-robin across tasks, in task order.
//   - MixOpt > 0: every batch of task 0 first, then round-robin over the
//     remaining tasks.
//
// Ratio > 0 adds floor(Ratio) extra passes over task 0's batches to its
// share of the mix. Shuffling, if any, belongs to the sampler behind this
// interface; the reference implementation is deterministic.
type InterleavingSampler struct {
	BatchSize int
	MixOpt    int
	Ratio     float64
}

// Plan implements BatchSampler.
func (s InterleavingSampler) Plan(taskSizes []int) []Assignment {
	perTask := make([][]Assignment, len(taskSizes))
	total := 0
	for task, size := range taskSizes {
		perTask[task] = chunk(task, size, s.BatchSize)
		total += len(perTask[task])
	}

	if len(perTask) > 0 && s.Ratio >= 1 {
		extra := int(s.Ratio)
		base := perTask[0]
		for i := 0; i < extra; i++ {
			perTask[0] = append(perTask[0], base...)
			total += len(base)
		}
	}

	plan := make([]Assignment, 0, total)

	if s.MixOpt > 0 && len(perTask) > 1 {
		plan = append(plan, perTask[0]...)
		perTask = perTask[1:]
	}

	plan = append(plan, roundRobin(perTask)...)
	return plan
}

// chunk splits [0, size) into consecutive batches of at most batchSize
// indices. The last batch may be short.
func chunk(task, size, batchSize int) []Assignment {
	if batchSize < 1 {
		batchSize = 1
	}
	var batches []Assignment
	for start := 0; start < size; start += batchSize {
		end := start + batchSize
		if end > size {
			end = size
		}
		indices := make([]int, 0, end-start)
		for i := start; i < end; i++ {
			indices = append(indices, i)
		}
		batches = append(batches, Assignment{Task: task, Indices: indices})
	}
	return batches
}

// roundRobin interleaves the per-task batch lists one batch at a time until
// all are drained.
func roundRobin(perTask [][]Assignment) []Assignment {
	var plan []Assignment
	cursors := make([]int, len(perTask))
	for {
		progressed := false
		for task := range perTask {
			if cursors[task] < len(perTask[task]) {
				plan = append(plan, perTask[task][cursors[task]])
				cursors[task]++
				progressed = true
			}
		}
		if !progressed {
			return plan
		}
	}
}
