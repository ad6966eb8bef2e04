package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fraud-detection/internal/runs"
)

// TrainingRunRepository is the BigQuery-backed runs.Recorder. It holds a
// shared client for the lifetime of the job.
type TrainingRunRepository struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewTrainingRunRepository opens a client for projectID.
func NewTrainingRunRepository(ctx context.Context, projectID, datasetID string) (*TrainingRunRepository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewTrainingRunRepository: creating client: %w", err)
	}
	return &TrainingRunRepository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}, nil
}

// Close releases the BigQuery client.
func (r *TrainingRunRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Start implements runs.Recorder.
func (r *TrainingRunRepository) Start(ctx context.Context, run *runs.TrainingRun) (string, error) {
	return StartTrainingRunWithClient(ctx, r.client, r.datasetID, run)
}

// Succeed implements runs.Recorder.
func (r *TrainingRunRepository) Succeed(ctx context.Context, runID string, summary runs.Summary) error {
	return MarkTrainingRunSucceededWithClient(ctx, r.client, r.datasetID, runID, summary)
}

// Fail implements runs.Recorder.
func (r *TrainingRunRepository) Fail(ctx context.Context, runID string, runErr error) {
	MarkTrainingRunFailedWithClient(ctx, r.client, r.datasetID, runID, runErr)
}

// List returns recorded runs newest first.
func (r *TrainingRunRepository) List(ctx context.Context, filter runs.Filter) ([]*runs.TrainingRun, error) {
	return ListTrainingRunsWithClient(ctx, r.client, r.projectID, r.datasetID, filter)
}

var _ runs.Recorder = (*TrainingRunRepository)(nil)
