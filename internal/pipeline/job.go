package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/fraud-detection/internal/config"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/runs"
)

// RunTrainingJob runs the full training job for cfg and records it in the
// run ledger. The returned state is non-nil whenever the run was started,
// so callers can inspect how far a failed job got.
func RunTrainingJob(ctx context.Context, cfg config.Config, deps Deps) (*PipelineState, error) {
	if deps.Recorder == nil {
		return nil, errors.New("RunTrainingJob: no run recorder configured")
	}
	deps.defaults()

	hyper, err := json.Marshal(cfg.Trainer)
	if err != nil {
		return nil, fmt.Errorf("RunTrainingJob: encoding hyperparameters: %w", err)
	}

	// 1. Start a training run (status=RUNNING).
	runID, err := deps.Recorder.Start(ctx, &runs.TrainingRun{
		Trainer:         TrainerName,
		Hyperparameters: string(hyper),
	})
	if err != nil {
		return nil, fmt.Errorf("RunTrainingJob: starting run: %w", err)
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{"run_id": runID})
	ctx = logger.WithContext(ctx, log)
	log.Info().
		Str("archive", cfg.Archive).
		Float64("test_fraction", cfg.TestFraction).
		Uint64("seed", cfg.Seed).
		Msg("Training job started")

	// 2. Run every step.
	state := &PipelineState{Config: cfg, Deps: deps, RunID: runID}
	if err := NewTrainingPipeline().Execute(ctx, state); err != nil {
		log.Error().Err(err).Msg("Training job failed")
		deps.Recorder.Fail(ctx, runID, err)
		deps.Metrics.RecordRun(false, time.Now())
		return state, err
	}

	// 3. Mark the run as SUCCESS.
	summary := runs.Summary{
		Trainer:   state.Result.TrainerName,
		TrainRows: len(state.Train),
		TestRows:  len(state.Test),
		Accuracy:  state.Metrics.Accuracy,
		AUC:       state.Metrics.AUC,
		F1:        state.Metrics.F1,
		ModelURI:  state.ModelURI,
	}
	if err := deps.Recorder.Succeed(ctx, runID, summary); err != nil {
		return state, fmt.Errorf("RunTrainingJob: recording success: %w", err)
	}
	deps.Metrics.RecordRun(true, time.Now())

	if cfg.WriteMetrics {
		if w, ok := deps.Metrics.(TextfileWriter); ok {
			if err := w.WriteTextfile(cfg.MetricsPath); err != nil {
				log.Warn().Err(err).Str("path", cfg.MetricsPath).Msg("Could not write metrics textfile")
			}
		}
	}

	log.Info().
		Str("model", state.ModelURI).
		Str("split", string(state.SplitOutcome)).
		Msg("Training job finished")
	return state, nil
}
