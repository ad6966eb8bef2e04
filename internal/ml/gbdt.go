package ml

import (
	"fmt"
	"math"
	"sort"
)

// Output columns written by BoostedTreeModel.
const (
	ScoreColumn          = "Score"
	ProbabilityColumn    = "Probability"
	PredictedLabelColumn = "PredictedLabel"
)

// TreeOptions are the boosting hyperparameters.
type TreeOptions struct {
	NumLeaves         int     `json:"num_leaves"`
	NumIterations     int     `json:"num_iterations"`
	MinSamplesPerLeaf int     `json:"min_samples_per_leaf"`
	LearningRate      float64 `json:"learning_rate"`
	MaxBins           int     `json:"max_bins"`
	L2                float64 `json:"l2"`
	MinHessianPerLeaf float64 `json:"min_hessian_per_leaf"`
}

// DefaultTreeOptions returns the options the fraud model is trained with.
func DefaultTreeOptions() TreeOptions {
	return TreeOptions{
		NumLeaves:         25,
		NumIterations:     225,
		MinSamplesPerLeaf: 20,
		LearningRate:      0.001,
		MaxBins:           255,
		L2:                0,
		MinHessianPerLeaf: 1e-3,
	}
}

// Validate checks the options for values the trainer cannot work with.
func (o TreeOptions) Validate() error {
	switch {
	case o.NumLeaves < 2:
		return fmt.Errorf("num leaves must be at least 2, got %d", o.NumLeaves)
	case o.NumIterations < 1:
		return fmt.Errorf("num iterations must be positive, got %d", o.NumIterations)
	case o.MinSamplesPerLeaf < 1:
		return fmt.Errorf("min samples per leaf must be positive, got %d", o.MinSamplesPerLeaf)
	case o.LearningRate <= 0 || math.IsNaN(o.LearningRate):
		return fmt.Errorf("learning rate must be positive, got %g", o.LearningRate)
	case o.MaxBins < 2 || o.MaxBins > 256:
		return fmt.Errorf("max bins must be in [2, 256], got %d", o.MaxBins)
	case o.L2 < 0:
		return fmt.Errorf("l2 must not be negative, got %g", o.L2)
	}
	return nil
}

// BoostedTreeClassifier fits a binary gradient-boosted tree ensemble with
// logistic loss. Trees grow leaf-wise: the leaf with the best split gain is
// split next until NumLeaves is reached or no split improves the loss.
type BoostedTreeClassifier struct {
	Label    string
	Features string
	Options  TreeOptions
}

// Node is one node of a regression tree. Leaves have Feature == -1.
// Value is the shrunken Newton step for the rows reaching the node, so on
// internal nodes it is the expected output of the subtree.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
}

// Tree is a flat regression tree rooted at Nodes[0].
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) leaf(x []float64) int {
	i := 0
	for t.Nodes[i].Feature >= 0 {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return i
}

// Predict returns the tree output for x.
func (t *Tree) Predict(x []float64) float64 {
	return t.Nodes[t.leaf(x)].Value
}

// Leaves returns the number of leaves.
func (t *Tree) Leaves() int {
	n := 0
	for _, node := range t.Nodes {
		if node.Feature < 0 {
			n++
		}
	}
	return n
}

// BoostedTreeModel is a fitted BoostedTreeClassifier.
type BoostedTreeModel struct {
	Features  string      `json:"features"`
	Slots     []string    `json:"slots"`
	InitScore float64     `json:"init_score"`
	Trees     []Tree      `json:"trees"`
	Options   TreeOptions `json:"options"`
}

func (m *BoostedTreeModel) Kind() string { return "boosted_tree_classifier" }

// Margin returns the raw log-odds score for x.
func (m *BoostedTreeModel) Margin(x []float64) float64 {
	s := m.InitScore
	for i := range m.Trees {
		s += m.Trees[i].Predict(x)
	}
	return s
}

// Transform appends Score, Probability and PredictedLabel columns.
func (m *BoostedTreeModel) Transform(f *Frame) (*Frame, error) {
	col, err := f.ColumnOf(m.Features, KindVector)
	if err != nil {
		return nil, err
	}
	if len(col.Slots) != len(m.Slots) {
		return nil, fmt.Errorf("features %q: got %d slots, model expects %d", m.Features, len(col.Slots), len(m.Slots))
	}
	n := len(col.Vectors)
	scores := make([]float64, n)
	probs := make([]float64, n)
	labels := make([]bool, n)
	for i, x := range col.Vectors {
		s := m.Margin(x)
		scores[i] = s
		probs[i] = sigmoid(s)
		labels[i] = s > 0
	}
	return f.With(
		FloatColumn(ScoreColumn, scores),
		FloatColumn(ProbabilityColumn, probs),
		BoolColumn(PredictedLabelColumn, labels),
	)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// Fit trains the ensemble.
func (c BoostedTreeClassifier) Fit(f *Frame) (Transformer, error) {
	if err := c.Options.Validate(); err != nil {
		return nil, fmt.Errorf("boosted trees: %w", err)
	}
	if f.Rows() == 0 {
		return nil, fmt.Errorf("boosted trees: %w", ErrEmptyFrame)
	}
	y, err := labelsOf(f, c.Label)
	if err != nil {
		return nil, fmt.Errorf("boosted trees: %w", err)
	}
	fcol, err := f.ColumnOf(c.Features, KindVector)
	if err != nil {
		return nil, fmt.Errorf("boosted trees: %w", err)
	}
	x := fcol.Vectors
	n := len(x)
	opts := c.Options

	b := newBinner(x, len(fcol.Slots), opts.MaxBins)

	pos := 0.0
	for _, v := range y {
		pos += v
	}
	p := math.Min(math.Max(pos/float64(n), 1e-15), 1-1e-15)
	init := math.Log(p / (1 - p))

	scores := make([]float64, n)
	for i := range scores {
		scores[i] = init
	}
	grad := make([]float64, n)
	hess := make([]float64, n)

	model := &BoostedTreeModel{
		Features:  c.Features,
		Slots:     append([]string(nil), fcol.Slots...),
		InitScore: init,
		Trees:     make([]Tree, 0, opts.NumIterations),
		Options:   opts,
	}
	g := &grower{bins: b, grad: grad, hess: hess, opts: opts}
	for it := 0; it < opts.NumIterations; it++ {
		for i := 0; i < n; i++ {
			pr := sigmoid(scores[i])
			grad[i] = pr - y[i]
			hess[i] = math.Max(pr*(1-pr), 1e-16)
		}
		tree, leafOf := g.grow(n)
		for i := 0; i < n; i++ {
			scores[i] += tree.Nodes[leafOf[i]].Value
		}
		model.Trees = append(model.Trees, tree)
	}
	return model, nil
}

func labelsOf(f *Frame, name string) ([]float64, error) {
	col, err := f.Column(name)
	if err != nil {
		return nil, err
	}
	y := make([]float64, col.Len())
	switch col.Kind {
	case KindBool:
		for i, v := range col.Bools {
			if v {
				y[i] = 1
			}
		}
	case KindFloat:
		for i, v := range col.Floats {
			if v > 0.5 {
				y[i] = 1
			}
		}
	default:
		return nil, fmt.Errorf("%w: label %q is %s", ErrColumnKind, name, col.Kind)
	}
	return y, nil
}

// binner discretizes each feature into at most maxBins buckets. Bucket k
// holds values v with bounds[k-1] < v <= bounds[k].
type binner struct {
	bounds [][]float64 // per feature, ascending
	bins   [][]uint8   // per feature, per row
}

func newBinner(x [][]float64, features, maxBins int) *binner {
	b := &binner{
		bounds: make([][]float64, features),
		bins:   make([][]uint8, features),
	}
	vals := make([]float64, 0, len(x))
	for f := 0; f < features; f++ {
		vals = vals[:0]
		for _, row := range x {
			if !math.IsNaN(row[f]) {
				vals = append(vals, row[f])
			}
		}
		sort.Float64s(vals)
		b.bounds[f] = binBounds(vals, maxBins)

		col := make([]uint8, len(x))
		for i, row := range x {
			col[i] = uint8(sort.SearchFloat64s(b.bounds[f], row[f]))
		}
		b.bins[f] = col
	}
	return b
}

// binBounds picks bucket upper bounds from sorted values: midpoints between
// distinct values, thinned to equal-count quantiles when there are too many.
func binBounds(sorted []float64, maxBins int) []float64 {
	if len(sorted) == 0 {
		return nil
	}
	distinct := sorted[:1:1]
	counts := []int{1}
	for _, v := range sorted[1:] {
		if v == distinct[len(distinct)-1] {
			counts[len(counts)-1]++
			continue
		}
		distinct = append(distinct, v)
		counts = append(counts, 1)
	}

	bounds := make([]float64, 0, maxBins-1)
	if len(distinct) <= maxBins {
		for i := 1; i < len(distinct); i++ {
			bounds = append(bounds, (distinct[i-1]+distinct[i])/2)
		}
		return bounds
	}

	perBin := float64(len(sorted)) / float64(maxBins)
	acc := 0
	next := perBin
	for i := 0; i < len(distinct)-1 && len(bounds) < maxBins-1; i++ {
		acc += counts[i]
		if float64(acc) >= next {
			bounds = append(bounds, (distinct[i]+distinct[i+1])/2)
			for next <= float64(acc) {
				next += perBin
			}
		}
	}
	return bounds
}

type split struct {
	feature int
	bin     int
	gain    float64
}

type growLeaf struct {
	node int
	rows []int
	best split
}

type grower struct {
	bins *binner
	grad []float64
	hess []float64
	opts TreeOptions

	hist []histBin
}

type histBin struct {
	g, h float64
	n    int
}

func (g *grower) leafValue(sg, sh float64) float64 {
	return -sg / (sh + g.opts.L2) * g.opts.LearningRate
}

func (g *grower) sums(rows []int) (float64, float64) {
	var sg, sh float64
	for _, r := range rows {
		sg += g.grad[r]
		sh += g.hess[r]
	}
	return sg, sh
}

// grow builds one tree and returns it with the leaf index of every row.
func (g *grower) grow(n int) (Tree, []int) {
	rows := make([]int, n)
	for i := range rows {
		rows[i] = i
	}
	sg, sh := g.sums(rows)
	tree := Tree{Nodes: []Node{{Feature: -1, Value: g.leafValue(sg, sh)}}}
	leaves := []*growLeaf{{node: 0, rows: rows, best: g.bestSplit(rows)}}

	for len(leaves) < g.opts.NumLeaves {
		pick := -1
		for i, l := range leaves {
			if l.best.gain > 0 && (pick < 0 || l.best.gain > leaves[pick].best.gain) {
				pick = i
			}
		}
		if pick < 0 {
			break
		}
		l := leaves[pick]
		feat, bin := l.best.feature, l.best.bin
		col := g.bins.bins[feat]

		var left, right []int
		for _, r := range l.rows {
			if int(col[r]) <= bin {
				left = append(left, r)
			} else {
				right = append(right, r)
			}
		}
		lg, lh := g.sums(left)
		rg, rh := g.sums(right)
		li, ri := len(tree.Nodes), len(tree.Nodes)+1
		tree.Nodes = append(tree.Nodes,
			Node{Feature: -1, Value: g.leafValue(lg, lh)},
			Node{Feature: -1, Value: g.leafValue(rg, rh)},
		)
		parent := &tree.Nodes[l.node]
		parent.Feature = feat
		parent.Threshold = g.bins.bounds[feat][bin]
		parent.Left = li
		parent.Right = ri

		leaves[pick] = &growLeaf{node: li, rows: left, best: g.bestSplit(left)}
		leaves = append(leaves, &growLeaf{node: ri, rows: right, best: g.bestSplit(right)})
	}

	leafOf := make([]int, n)
	for _, l := range leaves {
		for _, r := range l.rows {
			leafOf[r] = l.node
		}
	}
	return tree, leafOf
}

func (g *grower) bestSplit(rows []int) split {
	best := split{feature: -1}
	minLeaf := g.opts.MinSamplesPerLeaf
	if len(rows) < 2*minLeaf {
		return best
	}
	sg, sh := g.sums(rows)
	l2 := g.opts.L2
	parent := sg * sg / (sh + l2)

	for f, bounds := range g.bins.bounds {
		nb := len(bounds) + 1
		if nb < 2 {
			continue
		}
		if cap(g.hist) < nb {
			g.hist = make([]histBin, nb)
		}
		hist := g.hist[:nb]
		for i := range hist {
			hist[i] = histBin{}
		}
		col := g.bins.bins[f]
		for _, r := range rows {
			hb := &hist[col[r]]
			hb.g += g.grad[r]
			hb.h += g.hess[r]
			hb.n++
		}

		var lg, lh float64
		var ln int
		for b := 0; b < nb-1; b++ {
			lg += hist[b].g
			lh += hist[b].h
			ln += hist[b].n
			rn := len(rows) - ln
			if ln < minLeaf {
				continue
			}
			if rn < minLeaf {
				break
			}
			rg, rh := sg-lg, sh-lh
			if lh < g.opts.MinHessianPerLeaf || rh < g.opts.MinHessianPerLeaf {
				continue
			}
			gain := lg*lg/(lh+l2) + rg*rg/(rh+l2) - parent
			if gain > best.gain {
				best = split{feature: f, bin: b, gain: gain}
			}
		}
	}
	return best
}
