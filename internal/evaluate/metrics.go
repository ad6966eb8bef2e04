// Package evaluate scores binary classifier predictions against labels.
package evaluate

import (
	"fmt"
	"math"
	"sort"

	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"
)

// probClamp keeps log-loss finite for saturated probabilities.
const probClamp = 1e-15

// ConfusionMatrix holds the four outcome counts.
type ConfusionMatrix struct {
	TruePositives  int `json:"true_positives"`
	FalsePositives int `json:"false_positives"`
	TrueNegatives  int `json:"true_negatives"`
	FalseNegatives int `json:"false_negatives"`
}

// Total returns the number of scored rows.
func (c ConfusionMatrix) Total() int {
	return c.TruePositives + c.FalsePositives + c.TrueNegatives + c.FalseNegatives
}

// Metrics are the binary classification metrics of one evaluation. Ratios
// that are undefined for the input (no rows, a single class) are NaN.
type Metrics struct {
	Accuracy          float64         `json:"accuracy"`
	AUC               float64         `json:"auc"`
	AUPRC             float64         `json:"auprc"`
	F1                float64         `json:"f1"`
	PositivePrecision float64         `json:"positive_precision"`
	PositiveRecall    float64         `json:"positive_recall"`
	NegativePrecision float64         `json:"negative_precision"`
	NegativeRecall    float64         `json:"negative_recall"`
	LogLoss           float64         `json:"log_loss"`
	LogLossReduction  float64         `json:"log_loss_reduction"`
	Entropy           float64         `json:"entropy"`
	Confusion         ConfusionMatrix `json:"confusion"`
}

// Binary computes metrics from per-row labels, raw scores, calibrated
// probabilities and predicted labels. All slices must have the same length.
//
// An empty input yields NaN metrics together with an *domain.EmptyDatasetError
// the caller may treat as a warning.
func Binary(labels []bool, scores, probabilities []float64, predicted []bool) (Metrics, error) {
	n := len(labels)
	if len(scores) != n || len(probabilities) != n || len(predicted) != n {
		return Metrics{}, fmt.Errorf("Binary: length mismatch: labels=%d scores=%d probabilities=%d predicted=%d",
			n, len(scores), len(probabilities), len(predicted))
	}

	nan := math.NaN()
	m := Metrics{
		Accuracy: nan, AUC: nan, AUPRC: nan, F1: nan,
		PositivePrecision: nan, PositiveRecall: nan,
		NegativePrecision: nan, NegativeRecall: nan,
		LogLoss: nan, LogLossReduction: nan, Entropy: nan,
	}
	if n == 0 {
		return m, &domain.EmptyDatasetError{Name: "evaluation"}
	}

	var c ConfusionMatrix
	for i, y := range labels {
		switch {
		case y && predicted[i]:
			c.TruePositives++
		case y && !predicted[i]:
			c.FalseNegatives++
		case !y && predicted[i]:
			c.FalsePositives++
		default:
			c.TrueNegatives++
		}
	}
	m.Confusion = c

	m.Accuracy = ratio(c.TruePositives+c.TrueNegatives, n)
	m.PositivePrecision = ratio(c.TruePositives, c.TruePositives+c.FalsePositives)
	m.PositiveRecall = ratio(c.TruePositives, c.TruePositives+c.FalseNegatives)
	m.NegativePrecision = ratio(c.TrueNegatives, c.TrueNegatives+c.FalseNegatives)
	m.NegativeRecall = ratio(c.TrueNegatives, c.TrueNegatives+c.FalsePositives)
	m.F1 = ratio(2*c.TruePositives, 2*c.TruePositives+c.FalsePositives+c.FalseNegatives)

	m.LogLoss, m.Entropy, m.LogLossReduction = logLoss(labels, probabilities)
	m.AUC = AUC(labels, scores)
	m.AUPRC = AUPRC(labels, scores)
	return m, nil
}

// FromFrame evaluates a frame produced by a fitted classifier model.
func FromFrame(f *ml.Frame, label string) (Metrics, error) {
	lc, err := f.ColumnOf(label, ml.KindBool)
	if err != nil {
		return Metrics{}, fmt.Errorf("FromFrame: %w", err)
	}
	sc, err := f.ColumnOf(ml.ScoreColumn, ml.KindFloat)
	if err != nil {
		return Metrics{}, fmt.Errorf("FromFrame: %w", err)
	}
	pc, err := f.ColumnOf(ml.ProbabilityColumn, ml.KindFloat)
	if err != nil {
		return Metrics{}, fmt.Errorf("FromFrame: %w", err)
	}
	plc, err := f.ColumnOf(ml.PredictedLabelColumn, ml.KindBool)
	if err != nil {
		return Metrics{}, fmt.Errorf("FromFrame: %w", err)
	}
	return Binary(lc.Bools, sc.Floats, pc.Floats, plc.Bools)
}

func ratio(num, den int) float64 {
	if den == 0 {
		return math.NaN()
	}
	return float64(num) / float64(den)
}

// logLoss returns the mean log-loss in bits, the entropy of the label prior
// and the relative reduction of the former over the latter.
func logLoss(labels []bool, probs []float64) (loss, entropy, reduction float64) {
	pos := 0
	for i, y := range labels {
		p := math.Min(math.Max(probs[i], probClamp), 1-probClamp)
		if y {
			pos++
			loss -= math.Log2(p)
		} else {
			loss -= math.Log2(1 - p)
		}
	}
	n := float64(len(labels))
	loss /= n

	prior := float64(pos) / n
	if prior > 0 {
		entropy -= prior * math.Log2(prior)
	}
	if prior < 1 {
		entropy -= (1 - prior) * math.Log2(1-prior)
	}
	if entropy == 0 {
		return loss, entropy, math.NaN()
	}
	return loss, entropy, (entropy - loss) / entropy
}

// AUC returns the area under the ROC curve of scores, or NaN when only one
// class is present.
func AUC(labels []bool, scores []float64) float64 {
	y, classes, ok := sortedByScore(labels, scores)
	if !ok {
		return math.NaN()
	}
	tpr, fpr, _ := stat.ROC(nil, y, classes, nil)
	return integrate.Trapezoidal(fpr, tpr)
}

// AUPRC returns the area under the precision-recall curve as average
// precision, or NaN when only one class is present.
func AUPRC(labels []bool, scores []float64) float64 {
	y, classes, ok := sortedByScore(labels, scores)
	if !ok {
		return math.NaN()
	}
	var positives int
	for _, c := range classes {
		if c {
			positives++
		}
	}

	// Walk thresholds from the highest score down; tied scores form one step.
	var tp, fp int
	var ap, prevRecall float64
	for i := len(y) - 1; i >= 0; {
		j := i
		for ; j >= 0 && y[j] == y[i]; j-- {
			if classes[j] {
				tp++
			} else {
				fp++
			}
		}
		recall := float64(tp) / float64(positives)
		precision := float64(tp) / float64(tp+fp)
		ap += (recall - prevRecall) * precision
		prevRecall = recall
		i = j
	}
	return ap
}

// sortedByScore copies scores and labels sorted ascending by score. It
// reports false when either class is missing.
func sortedByScore(labels []bool, scores []float64) ([]float64, []bool, bool) {
	var pos, neg bool
	for _, l := range labels {
		if l {
			pos = true
		} else {
			neg = true
		}
	}
	if !pos || !neg {
		return nil, nil, false
	}
	y := append([]float64(nil), scores...)
	classes := append([]bool(nil), labels...)
	stat.SortWeightedLabeled(y, classes, nil)
	if !sort.Float64sAreSorted(y) {
		return nil, nil, false
	}
	return y, classes, true
}
