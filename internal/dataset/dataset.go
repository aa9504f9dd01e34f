// Package dataset locates, loads and batches the per-task data files. It
// binds the registered tasks to one interleaved multi-task training stream
// and to per-task dev/test loaders.
//
// Files follow the naming convention <data_dir>/<dataset_id>_{train|dev|test}.json
// and hold either a JSON array of records or one JSON record per line. The
// record contents beyond "uid" and "label" are opaque to this package; they
// are carried through to the model untouched.
package dataset

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/braidml/braid/internal/taskdef"
)

// Example is one raw record of a task's data file.
type Example struct {
	UID    string
	Label  any            // gold label; nil for unlabeled test data
	Record map[string]any // the full record, consumed only by the model
}

// SingleTaskDataset holds the examples of one task's split, tagged with the
// task attributes the collator and model need.
type SingleTaskDataset struct {
	Path       string
	TaskID     int // config id under the active sharing policy
	TaskType   taskdef.TaskType
	DataFormat taskdef.DataFormat
	MaxSeqLen  int
	IsTrain    bool
	Examples   []Example
}

// DatasetSpec tags a dataset with its resolved task attributes.
type DatasetSpec struct {
	TaskID     int
	TaskType   taskdef.TaskType
	DataFormat taskdef.DataFormat
	MaxSeqLen  int
	IsTrain    bool
}

// Open reads a split file into a SingleTaskDataset.
func Open(path string, spec DatasetSpec) (*SingleTaskDataset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading dataset %s: %w", path, err)
	}

	examples, err := decodeExamples(data)
	if err != nil {
		return nil, fmt.Errorf("parsing dataset %s: %w", path, err)
	}

	return &SingleTaskDataset{
		Path:       path,
		TaskID:     spec.TaskID,
		TaskType:   spec.TaskType,
		DataFormat: spec.DataFormat,
		MaxSeqLen:  spec.MaxSeqLen,
		IsTrain:    spec.IsTrain,
		Examples:   examples,
	}, nil
}

// Len reports the number of examples in the dataset.
func (d *SingleTaskDataset) Len() int {
	return len(d.Examples)
}

// decodeExamples parses a JSON array of records or JSONL, one record per line.
func decodeExamples(data []byte) ([]Example, error) {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var records []map[string]any
		if err := json.Unmarshal(data, &records); err != nil {
			return nil, err
		}
		examples := make([]Example, 0, len(records))
		for _, rec := range records {
			examples = append(examples, toExample(rec))
		}
		return examples, nil
	}

	var examples []Example
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		examples = append(examples, toExample(rec))
	}
	return examples, scanner.Err()
}

func toExample(rec map[string]any) Example {
	ex := Example{Record: rec}
	if uid, ok := rec["uid"]; ok {
		ex.UID = fmt.Sprintf("%v", uid)
	}
	if label, ok := rec["label"]; ok {
		ex.Label = label
	}
	return ex
}
