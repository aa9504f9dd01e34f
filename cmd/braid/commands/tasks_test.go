package commands

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidml/braid/internal/registry"
	"github.com/braidml/braid/internal/taskdef"
)

func sampleTasks() []*registry.Task {
	return []*registry.Task{
		{
			Prefix:     "mnli",
			DatasetID:  "mnli_matched",
			TaskID:     0,
			ConfigID:   0,
			Type:       taskdef.TaskTypeClassification,
			NClass:     3,
			DecoderOpt: 0,
			DropoutP:   0.1,
			Loss:       taskdef.LossCrossEntropy,
		},
		{
			Prefix:     "stsb",
			DatasetID:  "stsb",
			TaskID:     1,
			ConfigID:   1,
			Type:       taskdef.TaskTypeRegression,
			NClass:     1,
			DecoderOpt: 0,
			DropoutP:   0.05,
			Loss:       taskdef.LossMeanSquaredError,
		},
	}
}

func TestFormatTaskTable(t *testing.T) {
	var buf bytes.Buffer
	formatTaskTable(&buf, sampleTasks())

	out := buf.String()
	assert.Contains(t, out, "PREFIX")
	assert.Contains(t, out, "mnli")
	assert.Contains(t, out, "stsb")
	assert.Contains(t, out, "classification")
	assert.Contains(t, out, "regression")
	assert.Contains(t, out, "2 tasks registered")
}

func TestFormatTaskTableSingular(t *testing.T) {
	var buf bytes.Buffer
	formatTaskTable(&buf, sampleTasks()[:1])

	assert.Contains(t, buf.String(), "1 task registered")
}

func TestWriteTasksJSON(t *testing.T) {
	var buf bytes.Buffer
	err := writeTasksJSON(&buf, sampleTasks())
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var first taskJSON
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	assert.Equal(t, "mnli", first.Prefix)
	assert.Equal(t, 3, first.NClass)
	assert.Equal(t, taskdef.TaskTypeClassification, first.Type)
}
