// Package metrics collects job metrics for export.
package metrics

import (
	"time"

	"github.com/dvloznov/fraud-detection/internal/evaluate"
)

// Collector records what the training job did.
type Collector interface {
	// RecordStep records one pipeline step and how long it took.
	RecordStep(step string, success bool, duration time.Duration)

	// RecordRows records the row count of a named data split.
	RecordRows(split string, rows int)

	// RecordEvaluation records the evaluation metrics of the trained model.
	RecordEvaluation(m evaluate.Metrics)

	// RecordRun records the outcome of the whole job.
	RecordRun(success bool, finished time.Time)
}

// NoOpCollector is used when metrics are disabled.
type NoOpCollector struct{}

// RecordStep does nothing.
func (NoOpCollector) RecordStep(step string, success bool, duration time.Duration) {}

// RecordRows does nothing.
func (NoOpCollector) RecordRows(split string, rows int) {}

// RecordEvaluation does nothing.
func (NoOpCollector) RecordEvaluation(m evaluate.Metrics) {}

// RecordRun does nothing.
func (NoOpCollector) RecordRun(success bool, finished time.Time) {}

var _ Collector = NoOpCollector{}
