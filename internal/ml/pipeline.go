package ml

import (
	"fmt"
	"strings"
)

// Transformer is a fitted stage. Transform never modifies its input.
type Transformer interface {
	Transform(f *Frame) (*Frame, error)
	// Kind is the stage tag used by the model codec.
	Kind() string
}

// Estimator learns a Transformer from a frame.
type Estimator interface {
	Fit(f *Frame) (Transformer, error)
}

// Pipeline is an ordered list of estimators. Each stage is fitted on the
// output of the previously fitted stages.
type Pipeline struct {
	stages []Estimator
}

// NewPipeline creates a pipeline from the given stages.
func NewPipeline(stages ...Estimator) *Pipeline {
	return &Pipeline{stages: stages}
}

// Append returns a new pipeline with e added at the end.
func (p *Pipeline) Append(e Estimator) *Pipeline {
	stages := make([]Estimator, 0, len(p.stages)+1)
	stages = append(stages, p.stages...)
	return &Pipeline{stages: append(stages, e)}
}

// Len returns the number of stages.
func (p *Pipeline) Len() int { return len(p.stages) }

// Fit fits every stage in order and returns the fitted model.
func (p *Pipeline) Fit(f *Frame) (*Model, error) {
	fitted := make([]Transformer, 0, len(p.stages))
	cur := f
	for i, est := range p.stages {
		t, err := est.Fit(cur)
		if err != nil {
			return nil, fmt.Errorf("fit stage %d (%T): %w", i+1, est, err)
		}
		fitted = append(fitted, t)
		if i == len(p.stages)-1 {
			break
		}
		cur, err = t.Transform(cur)
		if err != nil {
			return nil, fmt.Errorf("transform stage %d (%s): %w", i+1, t.Kind(), err)
		}
	}
	return &Model{stages: fitted}, nil
}

// Model is a fitted pipeline. It is immutable after fitting.
type Model struct {
	stages []Transformer
}

// NewModel wraps already fitted transformers.
func NewModel(stages ...Transformer) *Model {
	return &Model{stages: append([]Transformer(nil), stages...)}
}

// Transform applies every stage in order.
func (m *Model) Transform(f *Frame) (*Frame, error) {
	cur := f
	for i, t := range m.stages {
		var err error
		cur, err = t.Transform(cur)
		if err != nil {
			return nil, fmt.Errorf("stage %d (%s): %w", i+1, t.Kind(), err)
		}
	}
	return cur, nil
}

// Append returns a new model with t added as the final stage.
func (m *Model) Append(t Transformer) *Model {
	stages := make([]Transformer, 0, len(m.stages)+1)
	stages = append(stages, m.stages...)
	return &Model{stages: append(stages, t)}
}

// Stages returns a copy of the fitted stages.
func (m *Model) Stages() []Transformer {
	return append([]Transformer(nil), m.stages...)
}

// Last returns the final stage, or nil for an empty model.
func (m *Model) Last() Transformer {
	if len(m.stages) == 0 {
		return nil
	}
	return m.stages[len(m.stages)-1]
}

// Classifier returns the boosted tree stage of the model, if any.
func (m *Model) Classifier() (*BoostedTreeModel, bool) {
	for i := len(m.stages) - 1; i >= 0; i-- {
		if bt, ok := m.stages[i].(*BoostedTreeModel); ok {
			return bt, true
		}
	}
	return nil, false
}

func (m *Model) String() string {
	kinds := make([]string, len(m.stages))
	for i, t := range m.stages {
		kinds[i] = t.Kind()
	}
	return strings.Join(kinds, " -> ")
}
