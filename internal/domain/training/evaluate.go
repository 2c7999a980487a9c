package training

import (
	"fmt"

	"gonum.org/v1/gonum/stat"

	"github.com/okian/triage/internal/domain/classifier"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/vectorize"
)

// Evaluation holds held-out diagnostics for one head.
type Evaluation struct {
	Accuracy       float64
	MeanConfidence float64
	PerClass       []model.ClassReport
}

// Evaluate scores m on rows X with true labels y. classes names the label
// space in index order and is used for the per-class report.
func Evaluate(m *classifier.Model, X []vectorize.Vector, y []int, classes []string) (Evaluation, error) {
	if len(X) == 0 || len(X) != len(y) {
		return Evaluation{}, fmt.Errorf("%w: %d rows, %d labels to evaluate", ErrConfiguration, len(X), len(y))
	}

	k := len(classes)
	if m.Classes != k {
		return Evaluation{}, fmt.Errorf("%w: model has %d classes, label space %d", ErrConfiguration, m.Classes, k)
	}
	truePos := make([]int, k)
	predicted := make([]int, k)
	support := make([]int, k)
	confidences := make([]float64, len(X))
	correct := 0

	for i, row := range X {
		idx, conf, _, err := m.Predict(row)
		if err != nil {
			return Evaluation{}, err
		}
		confidences[i] = conf
		predicted[idx]++
		support[y[i]]++
		if idx == y[i] {
			correct++
			truePos[idx]++
		}
	}

	ev := Evaluation{
		Accuracy:       float64(correct) / float64(len(X)),
		MeanConfidence: stat.Mean(confidences, nil),
		PerClass:       make([]model.ClassReport, k),
	}
	for c := 0; c < k; c++ {
		precision := ratio(truePos[c], predicted[c])
		recall := ratio(truePos[c], support[c])
		f1 := 0.0
		if precision+recall > 0 {
			f1 = 2 * precision * recall / (precision + recall)
		}
		ev.PerClass[c] = model.ClassReport{
			Label:     classes[c],
			Precision: precision,
			Recall:    recall,
			F1:        f1,
			Support:   support[c],
		}
	}
	return ev, nil
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
