package report

import (
	"bytes"
	"math"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/evaluate"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"github.com/dvloznov/fraud-detection/internal/runs"
)

func TestNum(t *testing.T) {
	tests := []struct {
		in   float64
		want string
	}{
		{math.NaN(), "NaN"},
		{0.5, "0.5000"},
		{1, "1.0000"},
	}
	for _, tt := range tests {
		if got := Num(tt.in); got != tt.want {
			t.Errorf("Num(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestPrintBinaryClassificationMetrics(t *testing.T) {
	m := evaluate.Metrics{
		Accuracy: 0.75, AUC: math.NaN(), AUPRC: math.NaN(), F1: 0.5,
		Confusion: evaluate.ConfusionMatrix{TruePositives: 1, FalsePositives: 1, TrueNegatives: 2},
	}
	var buf bytes.Buffer
	PrintBinaryClassificationMetrics(&buf, "BoostedTreeClassifier", m)
	out := buf.String()

	for _, want := range []string{
		"Metrics for BoostedTreeClassifier binary classification model",
		"Accuracy:",
		"0.7500",
		"Area Under Curve:",
		"NaN",
		"Confusion matrix",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestPeekFrame(t *testing.T) {
	f, err := ml.NewFrame(
		ml.FloatColumn("Amount", []float64{10, 20, 30}),
		ml.StringColumn("Type", []string{"PAYMENT", "TRANSFER", "CASH_OUT"}),
	)
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	var buf bytes.Buffer
	PeekFrame(&buf, f, 2)
	out := buf.String()

	if !strings.Contains(out, "showing 2 rows") {
		t.Errorf("missing row count:\n%s", out)
	}
	if !strings.Contains(out, "TRANSFER") {
		t.Errorf("missing second row:\n%s", out)
	}
	if strings.Contains(out, "CASH_OUT") {
		t.Errorf("third row should not be printed:\n%s", out)
	}
}

func TestPrintVectorColumn(t *testing.T) {
	vecs := [][]float64{{1, 0}, {0, 1}, {1, 0}}
	f, err := ml.NewFrame(ml.VectorColumn("TypeOneHotEncoded", []string{"A", "B"}, vecs))
	if err != nil {
		t.Fatalf("NewFrame() error = %v", err)
	}

	var buf bytes.Buffer
	if err := PrintVectorColumn(&buf, f, "TypeOneHotEncoded", 2); err != nil {
		t.Fatalf("PrintVectorColumn() error = %v", err)
	}
	want := "1\t0\t\n0\t1\t\n"
	if buf.String() != want {
		t.Errorf("output = %q, want %q", buf.String(), want)
	}

	if err := PrintVectorColumn(&buf, f, "Missing", 2); err == nil {
		t.Error("expected error for missing column")
	}
}

func TestInspectRecords(t *testing.T) {
	ds := dataset.Dataset{
		{Type: "TRANSFER", NameOrigin: "C1", IsFraud: true},
		{Type: "PAYMENT", NameOrigin: "C2"},
		{Type: "PAYMENT", NameOrigin: "C3"},
	}
	var buf bytes.Buffer
	InspectRecords(&buf, ds, 1)
	out := buf.String()

	if got := strings.Count(out, "Row View for Transaction Data"); got != 2 {
		t.Errorf("dumped %d records, want 2", got)
	}
	if strings.Contains(out, "C3") {
		t.Errorf("limit not applied:\n%s", out)
	}
}

func TestPrintPredictions(t *testing.T) {
	f, err := ml.NewFrame(
		ml.BoolColumn("IsFraud", []bool{true, false}),
		ml.FloatColumn(ml.ProbabilityColumn, []float64{0.91, 0.12}),
		ml.BoolColumn(ml.PredictedLabelColumn, []bool{true, false}),
		ml.VectorColumn(ml.FeatureContributionsColumn, []string{"Amount", "Step"}, [][]float64{{1, -0.2}, {0, 0}}),
	)
	if err != nil {
		t.Fatal(err)
	}

	var buf bytes.Buffer
	if err := PrintPredictions(&buf, f, "IsFraud", 10); err != nil {
		t.Fatalf("PrintPredictions() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Top feature", "0.9100", "Amount (+1.000)"} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if lines := strings.Count(out, "\n"); lines != 3 {
		t.Errorf("got %d lines, want header plus 2 rows", lines)
	}
}

func TestPrintPredictions_MissingColumns(t *testing.T) {
	f, err := ml.NewFrame(ml.FloatColumn("Amount", []float64{1}))
	if err != nil {
		t.Fatal(err)
	}
	if err := PrintPredictions(&bytes.Buffer{}, f, "IsFraud", 1); err == nil {
		t.Error("expected error for unscored frame")
	}
}

func TestPrintRuns(t *testing.T) {
	started := time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC)
	list := []*runs.TrainingRun{
		{RunID: "run-2", StartedAt: started, Status: runs.RunStatusFailed, Error: strings.Repeat("e", 100),
			Accuracy: math.NaN(), AUC: math.NaN(), F1: math.NaN()},
		{RunID: "run-1", StartedAt: started, Status: runs.RunStatusSucceeded, TrainRows: 8, TestRows: 2,
			Accuracy: 1, AUC: 1, F1: 1, ModelURI: "gs://models/run-1/model.zip"},
	}

	var buf bytes.Buffer
	if err := PrintRuns(&buf, list); err != nil {
		t.Fatalf("PrintRuns() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"2026-03-01 09:30:00", "FAILED", "NaN", "gs://models/run-1/model.zip", "..."} {
		if !strings.Contains(out, want) {
			t.Errorf("output lacks %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, strings.Repeat("e", 61)) {
		t.Error("long error not truncated")
	}
}

func TestPrintRuns_MultibyteError(t *testing.T) {
	list := []*runs.TrainingRun{
		{RunID: "run-3", StartedAt: time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC), Status: runs.RunStatusFailed,
			Error: strings.Repeat("é", 100), Accuracy: math.NaN(), AUC: math.NaN(), F1: math.NaN()},
	}

	var buf bytes.Buffer
	if err := PrintRuns(&buf, list); err != nil {
		t.Fatalf("PrintRuns() error = %v", err)
	}
	out := buf.String()
	if !utf8.ValidString(out) {
		t.Errorf("output is not valid UTF-8:\n%q", out)
	}
	if !strings.Contains(out, strings.Repeat("é", 57)+"...") {
		t.Errorf("error not cut to 57 characters:\n%s", out)
	}
}
