package ml

import (
	"fmt"
	"math"
)

// FeatureContributionsColumn is the vector column written by
// FeatureContributionModel.
const FeatureContributionsColumn = "FeatureContributions"

// FeatureContribution explains the predictions of a fitted tree model. For
// every row it decomposes the margin into per-feature contributions by
// walking each tree's decision path and crediting the change in node value to
// the feature that was split on.
type FeatureContribution struct {
	Predictor *BoostedTreeModel
	// Normalize scales each row so that its largest absolute contribution is 1.
	Normalize bool
}

// Fit checks the frame carries the predictor's feature vector.
func (c FeatureContribution) Fit(f *Frame) (Transformer, error) {
	if c.Predictor == nil {
		return nil, fmt.Errorf("feature contribution: no predictor")
	}
	col, err := f.ColumnOf(c.Predictor.Features, KindVector)
	if err != nil {
		return nil, fmt.Errorf("feature contribution: %w", err)
	}
	if len(col.Slots) != len(c.Predictor.Slots) {
		return nil, fmt.Errorf("feature contribution: %q has %d slots, predictor expects %d",
			c.Predictor.Features, len(col.Slots), len(c.Predictor.Slots))
	}
	return &FeatureContributionModel{
		Output:    FeatureContributionsColumn,
		Normalize: c.Normalize,
		predictor: c.Predictor,
	}, nil
}

// FeatureContributionModel is a fitted FeatureContribution stage. It shares
// the trees of the classifier stage it was fitted against.
type FeatureContributionModel struct {
	Output    string `json:"output"`
	Normalize bool   `json:"normalize"`

	predictor *BoostedTreeModel
}

func (m *FeatureContributionModel) Kind() string { return "feature_contribution" }

// Contributions returns the raw (unnormalized) contribution of every feature
// to the margin of x. Their sum plus the bias equals the margin.
func (m *FeatureContributionModel) Contributions(x []float64) (contrib []float64, bias float64) {
	p := m.predictor
	contrib = make([]float64, len(p.Slots))
	bias = p.InitScore
	for ti := range p.Trees {
		nodes := p.Trees[ti].Nodes
		bias += nodes[0].Value
		i := 0
		for nodes[i].Feature >= 0 {
			n := nodes[i]
			next := n.Right
			if x[n.Feature] <= n.Threshold {
				next = n.Left
			}
			contrib[n.Feature] += nodes[next].Value - n.Value
			i = next
		}
	}
	return contrib, bias
}

// Transform appends the FeatureContributions vector column.
func (m *FeatureContributionModel) Transform(f *Frame) (*Frame, error) {
	if m.predictor == nil {
		return nil, fmt.Errorf("feature contribution: model is not bound to a classifier")
	}
	col, err := f.ColumnOf(m.predictor.Features, KindVector)
	if err != nil {
		return nil, err
	}
	out := make([][]float64, len(col.Vectors))
	for i, x := range col.Vectors {
		c, _ := m.Contributions(x)
		if m.Normalize {
			normalize(c)
		}
		out[i] = c
	}
	return f.With(VectorColumn(m.Output, m.predictor.Slots, out))
}

func normalize(v []float64) {
	maxAbs := 0.0
	for _, x := range v {
		maxAbs = math.Max(maxAbs, math.Abs(x))
	}
	if maxAbs == 0 {
		return
	}
	for i := range v {
		v[i] /= maxAbs
	}
}
