// Package runs records training runs in a ledger.
package runs

import (
	"context"
	"time"
	"unicode/utf8"

	"cloud.google.com/go/civil"
)

// RunStatus is the lifecycle state of a training run.
type RunStatus string

const (
	// RunStatusRunning indicates the job is in progress.
	RunStatusRunning RunStatus = "RUNNING"
	// RunStatusSucceeded indicates the model was trained, evaluated and saved.
	RunStatusSucceeded RunStatus = "SUCCESS"
	// RunStatusFailed indicates a step aborted the job.
	RunStatusFailed RunStatus = "FAILED"
)

// maxErrorLen bounds the stored error message.
const maxErrorLen = 2000

// TrainingRun is one execution of the training job.
type TrainingRun struct {
	RunID      string     `json:"run_id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     RunStatus  `json:"status"`
	Error      string     `json:"error,omitempty"`

	Trainer string `json:"trainer,omitempty"`
	// Hyperparameters is the JSON encoding of the trainer settings.
	Hyperparameters string `json:"hyperparameters,omitempty"`

	TrainRows int     `json:"train_rows"`
	TestRows  int     `json:"test_rows"`
	Accuracy  float64 `json:"accuracy"`
	AUC       float64 `json:"auc"`
	F1        float64 `json:"f1"`
	ModelURI  string  `json:"model_uri,omitempty"`
}

// Summary is what a successful run reports when it finishes.
type Summary struct {
	Trainer   string
	TrainRows int
	TestRows  int
	Accuracy  float64
	AUC       float64
	F1        float64
	ModelURI  string
}

// Recorder stores the lifecycle of training runs.
type Recorder interface {
	// Start records a new RUNNING run and returns its ID.
	Start(ctx context.Context, run *TrainingRun) (string, error)

	// Succeed marks the run finished with its results.
	Succeed(ctx context.Context, runID string, summary Summary) error

	// Fail marks the run failed. Errors writing the ledger are logged, not
	// returned, so they never mask the failure being recorded.
	Fail(ctx context.Context, runID string, runErr error)
}

// Filter narrows a run listing.
type Filter struct {
	Status RunStatus
	// Since keeps runs started on or after this date (UTC). Ignored when zero.
	Since civil.Date
	Limit int
}

// Match reports whether run passes the status and date conditions of f.
func (f Filter) Match(run *TrainingRun) bool {
	if f.Status != "" && run.Status != f.Status {
		return false
	}
	if f.Since.IsValid() && civil.DateOf(run.StartedAt.UTC()).Before(f.Since) {
		return false
	}
	return true
}

// TruncateError renders err for storage, cut to at most maxErrorLen bytes
// on a character boundary.
func TruncateError(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	if len(msg) <= maxErrorLen {
		return msg
	}
	n := maxErrorLen
	for n > 0 && !utf8.RuneStart(msg[n]) {
		n--
	}
	return msg[:n]
}
