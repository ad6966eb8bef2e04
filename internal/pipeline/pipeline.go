package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/fraud-detection/internal/config"
	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/evaluate"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"github.com/dvloznov/fraud-detection/internal/split"
)

// PipelineStep represents a single step of the training job.
type PipelineStep interface {
	Name() string
	Execute(ctx context.Context, state *PipelineState) error
}

// PipelineState holds the shared state across all pipeline steps.
type PipelineState struct {
	Config config.Config
	Deps   Deps
	RunID  string

	ArchivePath  string
	SplitOutcome split.Outcome

	Train      dataset.Dataset
	Test       dataset.Dataset
	TrainFrame *ml.Frame
	TestFrame  *ml.Frame

	Result    *TrainResult
	Metrics   evaluate.Metrics
	Narration string

	ModelPath string
	ModelURI  string
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []PipelineStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...PipelineStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially and stops at the first failure. The
// context is checked before every step.
func (p *Pipeline) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	state.Deps.defaults()

	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d (%s) not started: %w", i+1, step.Name(), err)
		}

		start := time.Now()
		err := step.Execute(ctx, state)
		elapsed := time.Since(start)
		state.Deps.Metrics.RecordStep(step.Name(), err == nil, elapsed)

		if err != nil {
			return fmt.Errorf("pipeline step %d (%s) failed: %w", i+1, step.Name(), err)
		}
		log.Debug().
			Str("stage", step.Name()).
			Dur("elapsed", elapsed).
			Msg("Step finished")
	}
	return nil
}

// NewTrainingPipeline creates the standard training job:
// fetch, unpack, split, load, train, evaluate, save and publish.
func NewTrainingPipeline() *Pipeline {
	return NewPipeline(
		&FetchArchiveStep{},
		&UnpackStep{},
		&PrepareSplitsStep{},
		&LoadSplitsStep{},
		&TrainStep{},
		&EvaluateStep{},
		&SaveModelStep{},
		&PublishModelStep{},
	)
}
