package bigquery

import (
	"math"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fraud-detection/internal/runs"
)

// TrainingRunRow mirrors the training_runs table.
type TrainingRunRow struct {
	RunID string `bigquery:"run_id"` // REQUIRED

	StartedTS  time.Time              `bigquery:"started_ts"`  // REQUIRED
	FinishedTS bigquery.NullTimestamp `bigquery:"finished_ts"` // NULLABLE

	Status       string              `bigquery:"status"`        // REQUIRED
	ErrorMessage bigquery.NullString `bigquery:"error_message"` // NULLABLE

	Trainer         bigquery.NullString `bigquery:"trainer"`         // NULLABLE
	Hyperparameters bigquery.NullJSON   `bigquery:"hyperparameters"` // NULLABLE

	TrainRows bigquery.NullInt64 `bigquery:"train_rows"` // NULLABLE
	TestRows  bigquery.NullInt64 `bigquery:"test_rows"`  // NULLABLE

	Accuracy bigquery.NullFloat64 `bigquery:"accuracy"` // NULLABLE
	AUC      bigquery.NullFloat64 `bigquery:"auc"`      // NULLABLE
	F1       bigquery.NullFloat64 `bigquery:"f1"`       // NULLABLE

	ModelURI bigquery.NullString `bigquery:"model_uri"` // NULLABLE
}

// toTrainingRun converts a table row to the ledger type.
func (r *TrainingRunRow) toTrainingRun() *runs.TrainingRun {
	run := &runs.TrainingRun{
		RunID:     r.RunID,
		StartedAt: r.StartedTS,
		Status:    runs.RunStatus(r.Status),
		Error:     r.ErrorMessage.StringVal,
		Trainer:   r.Trainer.StringVal,
		TrainRows: int(r.TrainRows.Int64),
		TestRows:  int(r.TestRows.Int64),
		Accuracy:  nullableMetric(r.Accuracy),
		AUC:       nullableMetric(r.AUC),
		F1:        nullableMetric(r.F1),
		ModelURI:  r.ModelURI.StringVal,
	}
	if r.FinishedTS.Valid {
		t := r.FinishedTS.Timestamp
		run.FinishedAt = &t
	}
	if r.Hyperparameters.Valid {
		run.Hyperparameters = r.Hyperparameters.JSONVal
	}
	return run
}

// metricValue maps NaN, which BigQuery parameters cannot carry portably, to NULL.
func metricValue(v float64) bigquery.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return bigquery.NullFloat64{}
	}
	return bigquery.NullFloat64{Float64: v, Valid: true}
}

func nullableMetric(v bigquery.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
