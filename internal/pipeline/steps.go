package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/evaluate"
	"github.com/dvloznov/fraud-detection/internal/gcsuploader"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"github.com/dvloznov/fraud-detection/internal/modelstore"
	"github.com/dvloznov/fraud-detection/internal/report"
	"github.com/dvloznov/fraud-detection/internal/split"
	"github.com/dvloznov/fraud-detection/internal/unpack"
)

// Step 1: FetchArchiveStep resolves the dataset archive, downloading it first
// when it lives in Cloud Storage and no local copy exists yet.
type FetchArchiveStep struct{}

func (s *FetchArchiveStep) Name() string { return "fetch_archive" }

func (s *FetchArchiveStep) Execute(ctx context.Context, state *PipelineState) error {
	cfg := state.Config
	if !cfg.IsRemoteArchive() {
		state.ArchivePath = cfg.Archive
		return nil
	}

	log := logger.FromContext(ctx)
	local := filepath.Join(cfg.AssetRoot, "input", gcsuploader.ExtractFilenameFromGCSURI(cfg.Archive))
	state.ArchivePath = local
	if _, err := os.Stat(local); err == nil {
		log.Info().Str("path", local).Msg("Archive already downloaded, skipping")
		return nil
	}

	if state.Deps.Storage == nil {
		return fmt.Errorf("FetchArchiveStep: %s is remote but no storage service is configured", cfg.Archive)
	}
	n, err := state.Deps.Storage.DownloadToFile(ctx, cfg.Archive, local)
	if err != nil {
		return err
	}
	log.Info().
		Str("uri", cfg.Archive).
		Str("path", local).
		Int64("bytes", n).
		Msg("Downloaded dataset archive")
	return nil
}

// Step 2: UnpackStep extracts the dataset once.
type UnpackStep struct{}

func (s *UnpackStep) Name() string { return "unpack" }

func (s *UnpackStep) Execute(ctx context.Context, state *PipelineState) error {
	_, err := unpack.EnsureExtracted(ctx, state.ArchivePath, state.Config.DatasetPath)
	return err
}

// Step 3: PrepareSplitsStep writes the train/test files unless fresh ones exist.
type PrepareSplitsStep struct{}

func (s *PrepareSplitsStep) Name() string { return "prepare_splits" }

func (s *PrepareSplitsStep) Execute(ctx context.Context, state *PipelineState) error {
	cfg := state.Config
	out := state.Deps.Out

	res, err := split.Prepare(ctx, split.Options{
		Source:    cfg.DatasetPath,
		TrainPath: cfg.TrainPath,
		TestPath:  cfg.TestPath,
		Fraction:  cfg.TestFraction,
		Seed:      cfg.Seed,
	})
	if err != nil {
		return err
	}
	state.SplitOutcome = res.Outcome

	if res.Outcome == split.OutcomeReady {
		fmt.Fprintln(out, "=====Preparing the train & test Data=====")
		report.InspectRecords(out, res.Test, inspectRecordRows)
	}
	return nil
}

// Step 4: LoadSplitsStep reads both split files into frames.
type LoadSplitsStep struct{}

func (s *LoadSplitsStep) Name() string { return "load_splits" }

func (s *LoadSplitsStep) Execute(ctx context.Context, state *PipelineState) error {
	cfg := state.Config

	train, err := dataset.Load(cfg.TrainPath)
	if err != nil {
		return err
	}
	test, err := dataset.Load(cfg.TestPath)
	if err != nil {
		return err
	}

	trainFrame, err := train.Frame()
	if err != nil {
		return fmt.Errorf("LoadSplitsStep: train frame: %w", err)
	}
	testFrame, err := test.Frame()
	if err != nil {
		return fmt.Errorf("LoadSplitsStep: test frame: %w", err)
	}

	state.Train, state.Test = train, test
	state.TrainFrame, state.TestFrame = trainFrame, testFrame
	state.Deps.Metrics.RecordRows("train", len(train))
	state.Deps.Metrics.RecordRows("test", len(test))

	log := logger.FromContext(ctx)
	log.Info().
		Int("train_rows", len(train)).
		Int("train_fraud", train.FraudCount()).
		Int("test_rows", len(test)).
		Int("test_fraud", test.FraudCount()).
		Msg("Loaded train/test split")
	return nil
}

// Step 5: TrainStep previews the prepared features and fits the model.
type TrainStep struct{}

func (s *TrainStep) Name() string { return "train" }

func (s *TrainStep) Execute(ctx context.Context, state *PipelineState) error {
	out := state.Deps.Out
	cfg := state.Config

	if state.TrainFrame.Rows() == 0 {
		return &domain.EmptyDatasetError{Name: "train"}
	}

	// Data preparation on its own, as the classifier will see it.
	prep := ml.NewPipeline(BuildFeaturePipeline(state.TrainFrame.Schema(), cfg.Trainer.Label)...)
	prepModel, err := prep.Fit(state.TrainFrame)
	if err != nil {
		return fmt.Errorf("TrainStep: fit features: %w", err)
	}
	prepared, err := prepModel.Transform(state.TrainFrame)
	if err != nil {
		return fmt.Errorf("TrainStep: transform features: %w", err)
	}
	report.PeekFrame(out, prepared, peekRows)
	report.Header(out, "One Hot Encoding Results")
	if err := report.PrintVectorColumn(out, prepared, TypeOneHotColumn, oneHotPrintRows); err != nil {
		return err
	}

	report.Header(out, "Training Model")
	res, err := Train(ctx, state.TrainFrame, cfg.Trainer)
	if err != nil {
		return err
	}
	report.Header(out, "End of Training")

	state.Result = res
	return nil
}

// Step 6: EvaluateStep scores the test split and prints the metrics. An empty
// test split is a warning: the metrics stay NaN and the job continues.
type EvaluateStep struct{}

func (s *EvaluateStep) Name() string { return "evaluate" }

func (s *EvaluateStep) Execute(ctx context.Context, state *PipelineState) error {
	log := logger.FromContext(ctx)
	out := state.Deps.Out

	fmt.Fprintln(out, "===== Evaluating Model's accuracy with Test data =====")

	predictions, err := state.Result.Model.Transform(state.TestFrame)
	if err != nil {
		return fmt.Errorf("EvaluateStep: predict: %w", err)
	}
	m, err := evaluate.FromFrame(predictions, state.Config.Trainer.Label)
	var empty *domain.EmptyDatasetError
	switch {
	case errors.As(err, &empty):
		log.Warn().Err(err).Msg("Test split is empty, metrics are undefined")
	case err != nil:
		return fmt.Errorf("EvaluateStep: %w", err)
	}

	state.Metrics = m
	state.Deps.Metrics.RecordEvaluation(m)
	report.PrintBinaryClassificationMetrics(out, state.Result.TrainerName, m)

	if state.Deps.Narrator != nil {
		text, err := state.Deps.Narrator.Narrate(ctx, state.Result.TrainerName, m)
		if err != nil {
			log.Warn().Err(err).Msg("Metric narration failed")
			return nil
		}
		state.Narration = text
		report.Header(out, "Summary")
		fmt.Fprintln(out, text)
	}
	return nil
}

// Step 7: SaveModelStep persists the fitted model with the training schema.
type SaveModelStep struct{}

func (s *SaveModelStep) Name() string { return "save_model" }

func (s *SaveModelStep) Execute(ctx context.Context, state *PipelineState) error {
	out := state.Deps.Out
	modelPath := state.Config.ModelPath

	report.Header(out, "Saving Model")
	if err := modelstore.Save(modelPath, state.Result.Model, state.TrainFrame.Schema()); err != nil {
		return err
	}
	state.ModelPath = modelPath
	state.ModelURI = modelPath
	fmt.Fprintf(out, "Saved model to %s\n", modelPath)
	return nil
}

// Step 8: PublishModelStep uploads the saved model when a bucket is configured.
type PublishModelStep struct{}

func (s *PublishModelStep) Name() string { return "publish_model" }

func (s *PublishModelStep) Execute(ctx context.Context, state *PipelineState) error {
	cfg := state.Config
	if cfg.ModelBucket == "" {
		return nil
	}
	if state.Deps.Storage == nil {
		return fmt.Errorf("PublishModelStep: bucket %s configured but no storage service", cfg.ModelBucket)
	}

	object := path.Join(cfg.ModelPrefix, state.RunID, filepath.Base(state.ModelPath))
	if err := state.Deps.Storage.UploadFile(ctx, cfg.ModelBucket, object, state.ModelPath); err != nil {
		return &domain.PersistenceError{Path: gcsuploader.ObjectURI(cfg.ModelBucket, object), Op: "upload", Err: err}
	}
	state.ModelURI = gcsuploader.ObjectURI(cfg.ModelBucket, object)
	fmt.Fprintf(state.Deps.Out, "Published model to %s\n", state.ModelURI)
	return nil
}
