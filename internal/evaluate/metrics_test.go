package evaluate

import (
	"errors"
	"math"
	"testing"

	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAUC(t *testing.T) {
	tests := []struct {
		name   string
		labels []bool
		scores []float64
		want   float64
	}{
		{"textbook", []bool{false, false, true, true}, []float64{0.1, 0.4, 0.35, 0.8}, 0.75},
		{"perfect", []bool{false, false, true, true}, []float64{-2, -1, 1, 2}, 1},
		{"inverted", []bool{true, true, false, false}, []float64{-2, -1, 1, 2}, 0},
		{"all tied", []bool{true, false, true, false}, []float64{0.3, 0.3, 0.3, 0.3}, 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, AUC(tt.labels, tt.scores), 1e-12)
		})
	}
}

func TestAUC_SingleClassIsNaN(t *testing.T) {
	assert.True(t, math.IsNaN(AUC([]bool{true, true}, []float64{0.1, 0.9})))
	assert.True(t, math.IsNaN(AUPRC([]bool{false}, []float64{0.1})))
}

func TestAUPRC(t *testing.T) {
	labels := []bool{false, false, true, true}
	scores := []float64{0.1, 0.4, 0.35, 0.8}
	assert.InDelta(t, 0.5+0.5*2.0/3.0, AUPRC(labels, scores), 1e-12)

	assert.InDelta(t, 1, AUPRC([]bool{false, true}, []float64{0, 1}), 1e-12)
}

func TestBinary(t *testing.T) {
	labels := []bool{true, true, false, false, false}
	scores := []float64{2, -1, -3, 1, -2}
	probs := []float64{0.9, 0.3, 0.05, 0.7, 0.1}
	predicted := []bool{true, false, false, true, false}

	m, err := Binary(labels, scores, probs, predicted)
	require.NoError(t, err)

	assert.Equal(t, ConfusionMatrix{TruePositives: 1, FalsePositives: 1, TrueNegatives: 2, FalseNegatives: 1}, m.Confusion)
	assert.Equal(t, 5, m.Confusion.Total())
	assert.InDelta(t, 0.6, m.Accuracy, 1e-12)
	assert.InDelta(t, 0.5, m.PositivePrecision, 1e-12)
	assert.InDelta(t, 0.5, m.PositiveRecall, 1e-12)
	assert.InDelta(t, 2.0/3.0, m.NegativePrecision, 1e-12)
	assert.InDelta(t, 2.0/3.0, m.NegativeRecall, 1e-12)
	assert.InDelta(t, 0.5, m.F1, 1e-12)
	assert.InDelta(t, 5.0/6.0, m.AUC, 1e-12)
	assert.Greater(t, m.LogLoss, 0.0)
	assert.InDelta(t, m.Entropy, -(0.4*math.Log2(0.4) + 0.6*math.Log2(0.6)), 1e-12)
}

func TestBinary_LogLossOfCoinFlip(t *testing.T) {
	m, err := Binary(
		[]bool{true, false},
		[]float64{0, 0},
		[]float64{0.5, 0.5},
		[]bool{false, false},
	)
	require.NoError(t, err)
	assert.InDelta(t, 1, m.LogLoss, 1e-12)
	assert.InDelta(t, 1, m.Entropy, 1e-12)
	assert.InDelta(t, 0, m.LogLossReduction, 1e-12)
	assert.Equal(t, 0.0, m.F1, "no true positives gives F1 0, not NaN")
}

func TestBinary_EmptyInputIsNaNNotPanic(t *testing.T) {
	m, err := Binary(nil, nil, nil, nil)

	var empty *domain.EmptyDatasetError
	require.True(t, errors.As(err, &empty))
	assert.True(t, math.IsNaN(m.Accuracy))
	assert.True(t, math.IsNaN(m.AUC))
	assert.True(t, math.IsNaN(m.F1))
	assert.Equal(t, 0, m.Confusion.Total())
}

func TestBinary_LengthMismatch(t *testing.T) {
	_, err := Binary([]bool{true}, nil, []float64{1}, []bool{true})
	require.Error(t, err)
	var empty *domain.EmptyDatasetError
	assert.False(t, errors.As(err, &empty))
}

func TestFromFrame(t *testing.T) {
	f, err := ml.NewFrame(
		ml.BoolColumn("IsFraud", []bool{true, false}),
		ml.FloatColumn(ml.ScoreColumn, []float64{1, -1}),
		ml.FloatColumn(ml.ProbabilityColumn, []float64{0.73, 0.27}),
		ml.BoolColumn(ml.PredictedLabelColumn, []bool{true, false}),
	)
	require.NoError(t, err)

	m, err := FromFrame(f, "IsFraud")
	require.NoError(t, err)
	assert.Equal(t, 1.0, m.Accuracy)
	assert.Equal(t, 1.0, m.AUC)

	_, err = FromFrame(f.Without(ml.ScoreColumn), "IsFraud")
	assert.ErrorIs(t, err, ml.ErrColumnNotFound)
}
