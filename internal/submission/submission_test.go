package submission

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidml/braid/internal/trainer"
)

func TestWriteWithLabelMapper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mnli_matched_dev_scores_0.tsv")
	result := &trainer.EvalResult{
		UIDs:        []string{"u0", "u1", "u2"},
		Predictions: []any{0, float64(2), 1},
	}
	labels := map[int]string{0: "contradiction", 1: "neutral", 2: "entailment"}

	require.NoError(t, TSVWriter{}.Write(path, result, labels))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index\tprediction\nu0\tcontradiction\nu1\tentailment\nu2\tneutral\n", string(data))
}

func TestWriteWithoutLabelMapper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stsb_dev_scores_0.tsv")
	result := &trainer.EvalResult{
		UIDs:        []string{"s0", "s1"},
		Predictions: []any{2.75, 4.0},
	}

	// A nil mapper is valid; raw predictions are written.
	require.NoError(t, TSVWriter{}.Write(path, result, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index\tprediction\ns0\t2.75\ns1\t4\n", string(data))
}

func TestWriteFallsBackToPositionIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.tsv")
	result := &trainer.EvalResult{
		Predictions: []any{1, 0},
	}

	require.NoError(t, TSVWriter{}.Write(path, result, nil))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "index\tprediction\n0\t1\n1\t0\n", string(data))
}
