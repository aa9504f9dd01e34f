package dataset

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidml/braid/internal/taskdef"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestOpenJSONArray(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mnli_train.json", `[
		{"uid": "0", "label": 1, "premise": "a", "hypothesis": "b"},
		{"uid": "1", "label": 2, "premise": "c", "hypothesis": "d"}
	]`)

	ds, err := Open(path, DatasetSpec{TaskID: 0, TaskType: taskdef.TaskTypeClassification, IsTrain: true})
	require.NoError(t, err)

	require.Equal(t, 2, ds.Len())
	assert.Equal(t, "0", ds.Examples[0].UID)
	assert.Equal(t, float64(1), ds.Examples[0].Label)
	assert.Equal(t, "a", ds.Examples[0].Record["premise"])
}

func TestOpenJSONL(t *testing.T) {
	path := writeFile(t, t.TempDir(), "mnli_dev.json",
		`{"uid": "a", "label": 0}
{"uid": "b", "label": 1}

{"uid": "c"}
`)

	ds, err := Open(path, DatasetSpec{TaskID: 3})
	require.NoError(t, err)

	require.Equal(t, 3, ds.Len())
	assert.Equal(t, "b", ds.Examples[1].UID)
	assert.Nil(t, ds.Examples[2].Label)
}

func TestOpenErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Open(filepath.Join(dir, "absent.json"), DatasetSpec{})
	require.Error(t, err)

	path := writeFile(t, dir, "bad.json", `{"uid": `)
	_, err = Open(path, DatasetSpec{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parsing dataset")
}

func TestInterleavingSamplerRoundRobin(t *testing.T) {
	s := InterleavingSampler{BatchSize: 2}
	plan := s.Plan([]int{5, 2})

	// Task 0 yields batches [0,1] [2,3] [4]; task 1 yields [0,1].
	require.Len(t, plan, 4)
	assert.Equal(t, Assignment{Task: 0, Indices: []int{0, 1}}, plan[0])
	assert.Equal(t, Assignment{Task: 1, Indices: []int{0, 1}}, plan[1])
	assert.Equal(t, Assignment{Task: 0, Indices: []int{2, 3}}, plan[2])
	assert.Equal(t, Assignment{Task: 0, Indices: []int{4}}, plan[3])

	// Every assignment draws from exactly one task.
	for _, a := range plan {
		assert.NotEmpty(t, a.Indices)
	}
}

func TestInterleavingSamplerMixOptFirstTaskSeparate(t *testing.T) {
	s := InterleavingSampler{BatchSize: 2, MixOpt: 1}
	plan := s.Plan([]int{4, 4})

	require.Len(t, plan, 4)
	assert.Equal(t, 0, plan[0].Task)
	assert.Equal(t, 0, plan[1].Task)
	assert.Equal(t, 1, plan[2].Task)
	assert.Equal(t, 1, plan[3].Task)
}

func TestInterleavingSamplerRatio(t *testing.T) {
	s := InterleavingSampler{BatchSize: 2, Ratio: 1}
	plan := s.Plan([]int{2, 2})

	// Ratio 1 doubles task 0's share: two task-0 batches, one task-1 batch.
	counts := map[int]int{}
	for _, a := range plan {
		counts[a.Task]++
	}
	assert.Equal(t, 2, counts[0])
	assert.Equal(t, 1, counts[1])
}

func TestMultiTaskLoader(t *testing.T) {
	ds0 := &SingleTaskDataset{
		TaskID:   0,
		TaskType: taskdef.TaskTypeClassification,
		Examples: []Example{{UID: "a", Label: float64(0)}, {UID: "b", Label: float64(1)}, {UID: "c", Label: float64(2)}},
	}
	ds1 := &SingleTaskDataset{
		TaskID:   1,
		TaskType: taskdef.TaskTypeRanking,
		Examples: []Example{{UID: "x", Label: float64(1)}, {UID: "y", Label: float64(0)}},
	}

	loader := NewMultiTaskLoader([]*SingleTaskDataset{ds0, ds1}, InterleavingSampler{BatchSize: 2}, PassthroughCollator{})
	assert.Equal(t, 3, loader.Len())

	var taskIDs []int
	var sizes []int
	for {
		batch, err := loader.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		taskIDs = append(taskIDs, batch.Meta.TaskID)
		sizes = append(sizes, batch.Size())
	}

	assert.Equal(t, []int{0, 1, 0}, taskIDs)
	assert.Equal(t, []int{2, 2, 1}, sizes)

	// Reset starts a fresh pass in the same order.
	loader.Reset()
	batch, err := loader.Next()
	require.NoError(t, err)
	assert.Equal(t, 0, batch.Meta.TaskID)
	assert.Equal(t, []string{"a", "b"}, batch.Meta.UIDs)
}

func TestPassthroughCollatorPairwiseFlag(t *testing.T) {
	ds := &SingleTaskDataset{
		TaskID:   4,
		TaskType: taskdef.TaskTypeRanking,
		Examples: []Example{{UID: "u0", Label: float64(1)}},
	}

	batch, err := PassthroughCollator{}.Collate(ds, []int{0})
	require.NoError(t, err)
	assert.True(t, batch.Meta.Pairwise)
	assert.Equal(t, 4, batch.Meta.TaskID)
	assert.Equal(t, []any{float64(1)}, batch.Meta.Labels)

	_, err = PassthroughCollator{}.Collate(ds, []int{5})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
