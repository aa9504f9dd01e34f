// Package submission serializes predictions into the leaderboard-compatible
// official format: a TSV file with an index column and a prediction column.
package submission

import (
	"encoding/csv"
	"fmt"
	"os"

	"github.com/braidml/braid/internal/trainer"
)

// TSVWriter writes the official submission format.
type TSVWriter struct{}

// Write writes one submission file. Numeric predictions are translated
// through the label mapper when one is provided; otherwise (or for labels
// outside the mapper) the raw prediction value is written. A nil mapper is
// valid.
func (TSVWriter) Write(path string, result *trainer.EvalResult, labels map[int]string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating submission file %s: %w", path, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	w.Comma = '\t'

	if err := w.Write([]string{"index", "prediction"}); err != nil {
		return fmt.Errorf("writing submission header: %w", err)
	}

	for i, pred := range result.Predictions {
		index := fmt.Sprintf("%d", i)
		if i < len(result.UIDs) && result.UIDs[i] != "" {
			index = result.UIDs[i]
		}
		if err := w.Write([]string{index, renderPrediction(pred, labels)}); err != nil {
			return fmt.Errorf("writing submission row %d: %w", i, err)
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flushing submission file %s: %w", path, err)
	}
	return nil
}

// renderPrediction maps a numeric prediction to its label text, falling back
// to the raw value.
func renderPrediction(pred any, labels map[int]string) string {
	if labels != nil {
		if idx, ok := asLabelIndex(pred); ok {
			if text, ok := labels[idx]; ok {
				return text
			}
		}
	}
	return fmt.Sprintf("%v", pred)
}

func asLabelIndex(pred any) (int, bool) {
	switch v := pred.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		if v == float64(int(v)) {
			return int(v), true
		}
	}
	return 0, false
}
