package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/evaluate"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/metrics"
	"github.com/dvloznov/fraud-detection/internal/modelstore"
	"github.com/dvloznov/fraud-detection/internal/pipeline"
	"github.com/dvloznov/fraud-detection/internal/runs"
	"github.com/dvloznov/fraud-detection/internal/runs/inmemory"
)

type stubNarrator struct {
	text string
	err  error
}

func (n *stubNarrator) Narrate(ctx context.Context, trainer string, m evaluate.Metrics) (string, error) {
	return n.text, n.err
}

func inUnitRangeOrNaN(v float64) bool {
	return math.IsNaN(v) || (v >= 0 && v <= 1)
}

func TestRunTrainingJob_EndToEnd(t *testing.T) {
	ds := fixtureDataset()
	cfg := testConfig(t)
	cfg.Seed = balancedSeed(t, ds, cfg.TestFraction)
	writeArchive(t, cfg.Archive, zipDataset(t, ds))

	store := inmemory.NewStore()
	collector := metrics.NewPrometheusCollector("fraud_test")
	var out bytes.Buffer

	state, err := pipeline.RunTrainingJob(context.Background(), cfg, pipeline.Deps{
		Recorder: store,
		Metrics:  collector,
		Narrator: &stubNarrator{text: "The model separates the two classes."},
		Out:      &out,
	})
	if err != nil {
		t.Fatalf("RunTrainingJob() error = %v", err)
	}

	for _, p := range []string{cfg.DatasetPath, cfg.TrainPath, cfg.TestPath, cfg.ModelPath, cfg.MetricsPath} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("expected artifact %s: %v", p, err)
		}
	}
	if len(state.Train) != 8 || len(state.Test) != 2 {
		t.Errorf("split sizes = %d/%d, want 8/2", len(state.Train), len(state.Test))
	}

	m := state.Metrics
	for name, v := range map[string]float64{"accuracy": m.Accuracy, "auc": m.AUC, "auprc": m.AUPRC, "f1": m.F1} {
		if !inUnitRangeOrNaN(v) {
			t.Errorf("%s = %g, want NaN or in [0, 1]", name, v)
		}
	}
	if m.Confusion.Total() != 2 {
		t.Errorf("confusion total = %d, want 2", m.Confusion.Total())
	}

	console := out.String()
	for _, want := range []string{
		"=====Preparing the train & test Data=====",
		"Peek data in frame",
		"One Hot Encoding Results",
		"End of Training",
		"Metrics for BoostedTreeClassifier binary classification model",
		"The model separates the two classes.",
		"Saved model to",
	} {
		if !strings.Contains(console, want) {
			t.Errorf("console output lacks %q", want)
		}
	}

	run, err := store.Get(context.Background(), state.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != runs.RunStatusSucceeded || run.ModelURI != cfg.ModelPath {
		t.Errorf("run = %+v, want SUCCESS with model %s", run, cfg.ModelPath)
	}
	if !strings.Contains(run.Hyperparameters, `"num_iterations":20`) {
		t.Errorf("hyperparameters = %s", run.Hyperparameters)
	}

	// The persisted model scores the test split like the in-memory one.
	model, _, err := modelstore.Load(cfg.ModelPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if model.String() != state.Result.Model.String() {
		t.Errorf("loaded model %q, want %q", model, state.Result.Model)
	}
}

func TestRunTrainingJob_ReusesSplits(t *testing.T) {
	ds := fixtureDataset()
	cfg := testConfig(t)
	cfg.Seed = balancedSeed(t, ds, cfg.TestFraction)
	cfg.WriteMetrics = false
	writeArchive(t, cfg.Archive, zipDataset(t, ds))

	deps := pipeline.Deps{Recorder: inmemory.NewStore()}
	if _, err := pipeline.RunTrainingJob(context.Background(), cfg, deps); err != nil {
		t.Fatalf("first run: %v", err)
	}
	var out bytes.Buffer
	deps.Out = &out
	state, err := pipeline.RunTrainingJob(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if state.SplitOutcome != "skipped" {
		t.Errorf("SplitOutcome = %s, want skipped", state.SplitOutcome)
	}
	if strings.Contains(out.String(), "Preparing the train & test Data") {
		t.Error("second run printed the split inspection")
	}
	if _, err := os.Stat(cfg.MetricsPath); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("metrics textfile written with WriteMetrics=false: %v", err)
	}
}

func TestRunTrainingJob_MissingArchive(t *testing.T) {
	cfg := testConfig(t)
	store := inmemory.NewStore()

	state, err := pipeline.RunTrainingJob(context.Background(), cfg, pipeline.Deps{Recorder: store})
	var missing *domain.MissingInputError
	if !errors.As(err, &missing) {
		t.Fatalf("RunTrainingJob() error = %v, want MissingInputError", err)
	}
	if missing.What != "archive" {
		t.Errorf("What = %q, want archive", missing.What)
	}
	if _, err := os.Stat(filepath.Join(cfg.AssetRoot, "output")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("output dir exists after failed run: %v", err)
	}

	run, err := store.Get(context.Background(), state.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if run.Status != runs.RunStatusFailed || !strings.Contains(run.Error, "archive not found") {
		t.Errorf("run = %+v, want FAILED with archive error", run)
	}
}

func TestRunTrainingJob_LogsRunID(t *testing.T) {
	cfg := testConfig(t)
	var logs bytes.Buffer
	ctx := logger.WithContext(context.Background(), logger.NewWithWriter(&logs))

	state, err := pipeline.RunTrainingJob(ctx, cfg, pipeline.Deps{Recorder: inmemory.NewStore()})
	if err == nil {
		t.Fatal("RunTrainingJob() error = nil, want missing archive")
	}

	out := logs.String()
	for _, want := range []string{`"run_id":"` + state.RunID + `"`, "Training job started", "Training job failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("logs lack %q:\n%s", want, out)
		}
	}
}

func TestRunTrainingJob_RemoteArchiveAndPublish(t *testing.T) {
	ds := fixtureDataset()
	cfg := testConfig(t)
	cfg.Seed = balancedSeed(t, ds, cfg.TestFraction)
	cfg.Archive = "gs://datasets/fraud/SyntheticCreditCardFraud.zip"
	cfg.ModelBucket = "models-bucket"
	archive := zipDataset(t, ds)

	var downloads int
	var uploaded string
	storage := &MockStorageService{
		DownloadToFileFunc: func(ctx context.Context, gcsURI, dst string) (int64, error) {
			downloads++
			writeArchive(t, dst, archive)
			return int64(len(archive)), nil
		},
		UploadFileFunc: func(ctx context.Context, bucketName, objectName, filePath string) error {
			if bucketName != cfg.ModelBucket || filePath != cfg.ModelPath {
				t.Errorf("UploadFile(%s, %s, %s)", bucketName, objectName, filePath)
			}
			uploaded = objectName
			return nil
		},
	}

	deps := pipeline.Deps{Recorder: inmemory.NewStore(), Storage: storage}
	state, err := pipeline.RunTrainingJob(context.Background(), cfg, deps)
	if err != nil {
		t.Fatalf("RunTrainingJob() error = %v", err)
	}

	wantObject := "models/" + state.RunID + "/model.zip"
	if uploaded != wantObject {
		t.Errorf("uploaded object = %q, want %q", uploaded, wantObject)
	}
	if want := "gs://models-bucket/" + wantObject; state.ModelURI != want {
		t.Errorf("ModelURI = %q, want %q", state.ModelURI, want)
	}
	if want := filepath.Join(cfg.AssetRoot, "input", "SyntheticCreditCardFraud.zip"); state.ArchivePath != want {
		t.Errorf("ArchivePath = %q, want %q", state.ArchivePath, want)
	}

	// A second run finds the downloaded archive and does not fetch again.
	if _, err := pipeline.RunTrainingJob(context.Background(), cfg, deps); err != nil {
		t.Fatalf("second run: %v", err)
	}
	if downloads != 1 {
		t.Errorf("downloads = %d, want 1", downloads)
	}
}

func TestRunTrainingJob_NarratorFailureIsNotFatal(t *testing.T) {
	ds := fixtureDataset()
	cfg := testConfig(t)
	cfg.Seed = balancedSeed(t, ds, cfg.TestFraction)
	writeArchive(t, cfg.Archive, zipDataset(t, ds))

	state, err := pipeline.RunTrainingJob(context.Background(), cfg, pipeline.Deps{
		Recorder: inmemory.NewStore(),
		Narrator: &stubNarrator{err: errors.New("quota exceeded")},
	})
	if err != nil {
		t.Fatalf("RunTrainingJob() error = %v", err)
	}
	if state.Narration != "" {
		t.Errorf("Narration = %q, want empty", state.Narration)
	}
}

func TestRunTrainingJob_NoRecorder(t *testing.T) {
	if _, err := pipeline.RunTrainingJob(context.Background(), testConfig(t), pipeline.Deps{}); err == nil {
		t.Fatal("expected error without a recorder")
	}
}
