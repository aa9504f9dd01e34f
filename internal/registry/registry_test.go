package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/braidml/braid/internal/taskdef"
)

func testDefs() *taskdef.Defs {
	dropout := 0.05
	return &taskdef.Defs{
		Tasks: map[string]*taskdef.Def{
			"mnli": {
				TaskType:   taskdef.TaskTypeClassification,
				DataFormat: taskdef.FormatPremiseHypothesis,
				NClass:     3,
				Loss:       taskdef.LossCrossEntropy,
				KDLoss:     taskdef.LossMeanSquaredError,
				EnableSAN:  true,
				Metrics:    []string{"accuracy"},
				Labels:     []string{"contradiction", "neutral", "entailment"},
			},
			"snli": {
				TaskType:   taskdef.TaskTypeClassification,
				DataFormat: taskdef.FormatPremiseHypothesis,
				NClass:     3,
				Loss:       taskdef.LossCrossEntropy,
				KDLoss:     taskdef.LossMeanSquaredError,
				EnableSAN:  false,
				Metrics:    []string{"accuracy"},
			},
			"scitail": {
				TaskType:   taskdef.TaskTypeClassification,
				DataFormat: taskdef.FormatPremiseHypothesis,
				NClass:     3,
				Loss:       taskdef.LossCrossEntropy,
				KDLoss:     taskdef.LossMeanSquaredError,
				EnableSAN:  true,
				Metrics:    []string{"accuracy"},
			},
			"stsb": {
				TaskType:   taskdef.TaskTypeRegression,
				DataFormat: taskdef.FormatPremiseHypothesis,
				NClass:     1,
				Loss:       taskdef.LossMeanSquaredError,
				KDLoss:     taskdef.LossMeanSquaredError,
				EnableSAN:  false,
				DropoutP:   &dropout,
				Metrics:    []string{"pearson"},
			},
			"qnli": {
				TaskType:   taskdef.TaskTypeRanking,
				DataFormat: taskdef.FormatPremiseMultiHyp,
				NClass:     1,
				Loss:       taskdef.LossRankCrossEntropy,
				KDLoss:     taskdef.LossMeanSquaredError,
				EnableSAN:  false,
				Metrics:    []string{"accuracy"},
			},
		},
	}
}

func TestDecoderOpt(t *testing.T) {
	tests := []struct {
		name      string
		enableSAN bool
		maxOpt    int
		want      int
	}{
		{"san enabled below bound", true, 2, 2},
		{"san enabled at bound", true, 3, 0},
		{"san enabled above bound", true, 5, 0},
		{"san disabled", false, 2, 0},
		{"san disabled zero", false, 0, 0},
		{"san enabled zero", true, 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DecoderOpt(tt.enableSAN, tt.maxOpt))
		})
	}
}

func TestRegisterParallelSequencesEqualLength(t *testing.T) {
	for _, sharing := range []bool{false, true} {
		r := New(testDefs(), Options{ClassSharing: sharing, AnswerOpt: 2, DefaultDropout: 0.1})
		for _, ds := range []string{"mnli", "snli", "stsb", "qnli", "scitail_domain"} {
			_, err := r.Register(ds)
			require.NoError(t, err)
		}

		snap, err := r.Finalize()
		require.NoError(t, err)

		n := snap.Len()
		assert.Equal(t, n, len(snap.DecoderOpts))
		assert.Equal(t, n, len(snap.TaskTypes))
		assert.Equal(t, n, len(snap.DropoutPs))
		assert.Equal(t, n, len(snap.LossTypes))
		assert.Equal(t, n, len(snap.KDLossTypes))
		assert.Equal(t, n, len(snap.NClasses))
	}
}

func TestRegisterWithoutClassSharing(t *testing.T) {
	r := New(testDefs(), Options{ClassSharing: false, AnswerOpt: 2, DefaultDropout: 0.1})

	mnli, err := r.Register("mnli")
	require.NoError(t, err)
	snli, err := r.Register("snli")
	require.NoError(t, err)

	// Distinct ids and distinct label_count entries even though n_class collides.
	assert.Equal(t, 0, mnli.TaskID)
	assert.Equal(t, 0, mnli.ConfigID)
	assert.Equal(t, 1, snli.TaskID)
	assert.Equal(t, 1, snli.ConfigID)

	snap, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 3}, snap.NClasses)
	assert.Equal(t, []int{2, 0}, snap.DecoderOpts)
}

func TestRegisterClassSharingMinReconciliation(t *testing.T) {
	r := New(testDefs(), Options{ClassSharing: true, AnswerOpt: 2, DefaultDropout: 0.1})

	// mnli (san, dopt=2), snli (no san, dopt=0) and scitail (san, dopt=2) all
	// have n_class=3 and collapse onto one shared slot.
	mnli, err := r.Register("mnli")
	require.NoError(t, err)
	snli, err := r.Register("snli")
	require.NoError(t, err)
	scitail, err := r.Register("scitail")
	require.NoError(t, err)

	assert.Equal(t, 0, mnli.TaskID)
	assert.Equal(t, 1, snli.TaskID)
	assert.Equal(t, 2, scitail.TaskID)
	assert.Equal(t, 0, mnli.ConfigID)
	assert.Equal(t, 0, snli.ConfigID)
	assert.Equal(t, 0, scitail.ConfigID)

	snap, err := r.Finalize()
	require.NoError(t, err)

	// The shared slot takes the minimum decoder option over all three tasks,
	// regardless of registration order, and contributes n_class exactly once.
	require.Equal(t, 1, snap.Len())
	assert.Equal(t, []int{0}, snap.DecoderOpts)
	assert.Equal(t, []int{3}, snap.NClasses)

	// Task metadata reflects the reconciled value.
	assert.Equal(t, 0, mnli.DecoderOpt)
	assert.Equal(t, 0, scitail.DecoderOpt)
}

func TestRegisterClassSharingOrderIndependence(t *testing.T) {
	orders := [][]string{
		{"mnli", "snli", "scitail"},
		{"snli", "mnli", "scitail"},
		{"scitail", "mnli", "snli"},
	}

	for _, order := range orders {
		r := New(testDefs(), Options{ClassSharing: true, AnswerOpt: 2, DefaultDropout: 0.1})
		for _, ds := range order {
			_, err := r.Register(ds)
			require.NoError(t, err)
		}
		snap, err := r.Finalize()
		require.NoError(t, err)
		assert.Equal(t, []int{0}, snap.DecoderOpts, "order %v", order)
	}
}

func TestRegisterDuplicateIsNoOp(t *testing.T) {
	r := New(testDefs(), Options{AnswerOpt: 2, DefaultDropout: 0.1})

	first, err := r.Register("mnli")
	require.NoError(t, err)
	again, err := r.Register("mnli_matched") // same prefix
	require.NoError(t, err)

	assert.Same(t, first, again)
	assert.Equal(t, 1, r.Len())

	snap, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestRegisterUnknownPrefix(t *testing.T) {
	r := New(testDefs(), Options{AnswerOpt: 2})

	_, err := r.Register("wnli_test")
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
	assert.Contains(t, err.Error(), "wnli")
}

func TestDropoutOverride(t *testing.T) {
	r := New(testDefs(), Options{AnswerOpt: 2, DefaultDropout: 0.1})

	_, err := r.Register("mnli")
	require.NoError(t, err)
	_, err = r.Register("stsb")
	require.NoError(t, err)

	snap, err := r.Finalize()
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.05}, snap.DropoutPs)
}

func TestResolveConfigID(t *testing.T) {
	t.Run("per-task ids", func(t *testing.T) {
		r := New(testDefs(), Options{ClassSharing: false, AnswerOpt: 2})
		_, err := r.Register("mnli")
		require.NoError(t, err)
		_, err = r.Register("snli")
		require.NoError(t, err)

		id, err := r.ResolveConfigID("snli")
		require.NoError(t, err)
		assert.Equal(t, 1, id)

		_, err = r.ResolveConfigID("stsb")
		require.Error(t, err)
	})

	t.Run("class-shared ids", func(t *testing.T) {
		r := New(testDefs(), Options{ClassSharing: true, AnswerOpt: 2})
		_, err := r.Register("mnli")
		require.NoError(t, err)
		_, err = r.Register("stsb")
		require.NoError(t, err)

		// snli was never registered but shares n_class=3 with mnli, so it
		// resolves to mnli's shared slot.
		id, err := r.ResolveConfigID("snli")
		require.NoError(t, err)
		assert.Equal(t, 0, id)

		id, err = r.ResolveConfigID("stsb")
		require.NoError(t, err)
		assert.Equal(t, 1, id)
	})
}

func TestFinalizeEmptyRegistry(t *testing.T) {
	r := New(testDefs(), Options{})
	_, err := r.Finalize()
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.True(t, errors.As(err, &cfgErr))
}

func TestRegisterAfterFinalize(t *testing.T) {
	r := New(testDefs(), Options{AnswerOpt: 2})
	_, err := r.Register("mnli")
	require.NoError(t, err)
	_, err = r.Finalize()
	require.NoError(t, err)

	_, err = r.Register("snli")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "frozen")
}

func TestPrefix(t *testing.T) {
	assert.Equal(t, "mnli", Prefix("mnli_matched"))
	assert.Equal(t, "mnli", Prefix("mnli"))
	assert.Equal(t, "sst", Prefix("sst_2_train"))
}
