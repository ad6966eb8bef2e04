package ml

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// separableFrame has one informative feature (x >= 50 is fraud) and one
// constant feature.
func separableFrame(t *testing.T, n int) *Frame {
	t.Helper()
	vecs := make([][]float64, n)
	labels := make([]bool, n)
	for i := 0; i < n; i++ {
		vecs[i] = []float64{float64(i), 1}
		labels[i] = i >= n/2
	}
	f, err := NewFrame(
		VectorColumn("Features", []string{"x", "const"}, vecs),
		BoolColumn("IsFraud", labels),
	)
	require.NoError(t, err)
	return f
}

func fastOptions() TreeOptions {
	o := DefaultTreeOptions()
	o.NumLeaves = 4
	o.NumIterations = 20
	o.MinSamplesPerLeaf = 5
	o.LearningRate = 0.3
	return o
}

func fitSeparable(t *testing.T) (*Frame, *BoostedTreeModel) {
	t.Helper()
	f := separableFrame(t, 100)
	tr, err := BoostedTreeClassifier{Label: "IsFraud", Features: "Features", Options: fastOptions()}.Fit(f)
	require.NoError(t, err)
	return f, tr.(*BoostedTreeModel)
}

func TestBoostedTreeClassifier_LearnsSeparableData(t *testing.T) {
	f, model := fitSeparable(t)

	assert.Len(t, model.Trees, 20)
	assert.InDelta(t, 0, model.InitScore, 1e-9, "balanced labels start at zero log-odds")

	g, err := model.Transform(f)
	require.NoError(t, err)
	probs, err := g.ColumnOf(ProbabilityColumn, KindFloat)
	require.NoError(t, err)
	predicted, err := g.ColumnOf(PredictedLabelColumn, KindBool)
	require.NoError(t, err)

	for i := 0; i < 100; i++ {
		if i < 50 {
			assert.Less(t, probs.Floats[i], 0.5, "row %d", i)
			assert.False(t, predicted.Bools[i], "row %d", i)
		} else {
			assert.Greater(t, probs.Floats[i], 0.5, "row %d", i)
			assert.True(t, predicted.Bools[i], "row %d", i)
		}
	}

	first := model.Trees[0]
	assert.Equal(t, 0, first.Nodes[0].Feature, "the constant feature is never split on")
	assert.InDelta(t, 49.5, first.Nodes[0].Threshold, 1e-9)
}

func TestBoostedTreeClassifier_RespectsLeafLimits(t *testing.T) {
	f := separableFrame(t, 30)
	opts := fastOptions()
	opts.MinSamplesPerLeaf = 20
	tr, err := BoostedTreeClassifier{Label: "IsFraud", Features: "Features", Options: opts}.Fit(f)
	require.NoError(t, err)

	for _, tree := range tr.(*BoostedTreeModel).Trees {
		assert.Equal(t, 1, tree.Leaves(), "30 rows cannot hold two leaves of 20")
	}

	opts = fastOptions()
	opts.NumLeaves = 3
	opts.MinSamplesPerLeaf = 1
	tr, err = BoostedTreeClassifier{Label: "IsFraud", Features: "Features", Options: opts}.Fit(separableFrame(t, 60))
	require.NoError(t, err)
	for _, tree := range tr.(*BoostedTreeModel).Trees {
		assert.LessOrEqual(t, tree.Leaves(), 3)
	}
}

func TestBoostedTreeClassifier_Errors(t *testing.T) {
	empty, err := NewFrame(
		VectorColumn("Features", []string{"x"}, nil),
		BoolColumn("IsFraud", nil),
	)
	require.NoError(t, err)

	_, err = BoostedTreeClassifier{Label: "IsFraud", Features: "Features", Options: DefaultTreeOptions()}.Fit(empty)
	assert.True(t, errors.Is(err, ErrEmptyFrame))

	bad := DefaultTreeOptions()
	bad.LearningRate = 0
	_, err = BoostedTreeClassifier{Label: "IsFraud", Features: "Features", Options: bad}.Fit(separableFrame(t, 10))
	assert.Error(t, err)

	_, err = BoostedTreeClassifier{Label: "Missing", Features: "Features", Options: DefaultTreeOptions()}.Fit(separableFrame(t, 10))
	assert.True(t, errors.Is(err, ErrColumnNotFound))
}

func TestTreeOptions_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*TreeOptions)
		ok     bool
	}{
		{"defaults", func(*TreeOptions) {}, true},
		{"one leaf", func(o *TreeOptions) { o.NumLeaves = 1 }, false},
		{"no iterations", func(o *TreeOptions) { o.NumIterations = 0 }, false},
		{"zero min leaf", func(o *TreeOptions) { o.MinSamplesPerLeaf = 0 }, false},
		{"nan learning rate", func(o *TreeOptions) { o.LearningRate = math.NaN() }, false},
		{"too many bins", func(o *TreeOptions) { o.MaxBins = 1024 }, false},
		{"negative l2", func(o *TreeOptions) { o.L2 = -1 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultTreeOptions()
			tt.mutate(&o)
			assert.Equal(t, tt.ok, o.Validate() == nil)
		})
	}
}

func TestBinBounds(t *testing.T) {
	assert.Nil(t, binBounds(nil, 255))
	assert.Empty(t, binBounds([]float64{3, 3, 3}, 255))
	assert.Equal(t, []float64{1.5, 2.5}, binBounds([]float64{1, 2, 2, 3}, 255))

	many := make([]float64, 1000)
	for i := range many {
		many[i] = float64(i)
	}
	bounds := binBounds(many, 10)
	assert.LessOrEqual(t, len(bounds), 9)
	assert.IsIncreasing(t, bounds)
}

func TestFeatureContribution_SumsToMargin(t *testing.T) {
	f, model := fitSeparable(t)

	tr, err := FeatureContribution{Predictor: model}.Fit(f)
	require.NoError(t, err)
	fc := tr.(*FeatureContributionModel)

	for _, x := range [][]float64{{3, 1}, {49, 1}, {50, 1}, {97, 1}} {
		contrib, bias := fc.Contributions(x)
		sum := bias
		for _, c := range contrib {
			sum += c
		}
		assert.InDelta(t, model.Margin(x), sum, 1e-9)
		assert.Equal(t, 0.0, contrib[1], "constant feature contributes nothing")
	}
}

func TestFeatureContribution_Normalized(t *testing.T) {
	f, model := fitSeparable(t)

	tr, err := FeatureContribution{Predictor: model, Normalize: true}.Fit(f)
	require.NoError(t, err)
	g, err := tr.Transform(f)
	require.NoError(t, err)

	col, err := g.ColumnOf(FeatureContributionsColumn, KindVector)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "const"}, col.Slots)
	assert.InDelta(t, -1, col.Vectors[0][0], 1e-9)
	assert.InDelta(t, 1, col.Vectors[99][0], 1e-9)
}
