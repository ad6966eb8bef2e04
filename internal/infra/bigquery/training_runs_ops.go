package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/runs"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
)

// TrainingRunsTable is the ledger table name.
const TrainingRunsTable = "training_runs"

// StartTrainingRunWithClient inserts a new row into <dataset>.training_runs
// with status=RUNNING and returns the run ID, generating one when run.RunID
// is empty.
func StartTrainingRunWithClient(ctx context.Context, client *bigquery.Client, datasetID string, run *runs.TrainingRun) (string, error) {
	runID := run.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	started := run.StartedAt
	if started.IsZero() {
		started = time.Now()
	}

	q := client.Query(fmt.Sprintf(`
		INSERT %s.%s (
			run_id,
			started_ts,
			status,
			trainer,
			hyperparameters
		)
		VALUES (
			@run_id,
			@started_ts,
			@status,
			@trainer,
			SAFE.PARSE_JSON(@hyperparameters)
		)
	`, datasetID, TrainingRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "run_id", Value: runID},
		{Name: "started_ts", Value: started},
		{Name: "status", Value: string(runs.RunStatusRunning)},
		{Name: "trainer", Value: run.Trainer},
		{Name: "hyperparameters", Value: run.Hyperparameters},
	}

	if err := runQuery(ctx, q); err != nil {
		return "", fmt.Errorf("StartTrainingRun: %w", err)
	}
	return runID, nil
}

// MarkTrainingRunFailedWithClient sets status=FAILED, finished_ts and
// error_message. Errors are logged, never returned.
func MarkTrainingRunFailedWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, runErr error) {
	log := logger.FromContext(ctx)

	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = @error_message
		WHERE run_id = @run_id
	`, datasetID, TrainingRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(runs.RunStatusFailed)},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "error_message", Value: runs.TruncateError(runErr)},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		log.Error().
			Err(err).
			Str("run_id", runID).
			Msg("MarkTrainingRunFailed: updating ledger")
	}
}

// MarkTrainingRunSucceededWithClient sets status=SUCCESS, finished_ts and the
// run's results, and clears error_message.
func MarkTrainingRunSucceededWithClient(ctx context.Context, client *bigquery.Client, datasetID, runID string, summary runs.Summary) error {
	q := client.Query(fmt.Sprintf(`
		UPDATE %s.%s
		SET status = @status,
		    finished_ts = @finished_ts,
		    error_message = "",
		    trainer = @trainer,
		    train_rows = @train_rows,
		    test_rows = @test_rows,
		    accuracy = @accuracy,
		    auc = @auc,
		    f1 = @f1,
		    model_uri = @model_uri
		WHERE run_id = @run_id
	`, datasetID, TrainingRunsTable))

	q.Parameters = []bigquery.QueryParameter{
		{Name: "status", Value: string(runs.RunStatusSucceeded)},
		{Name: "finished_ts", Value: time.Now()},
		{Name: "trainer", Value: summary.Trainer},
		{Name: "train_rows", Value: summary.TrainRows},
		{Name: "test_rows", Value: summary.TestRows},
		{Name: "accuracy", Value: metricValue(summary.Accuracy)},
		{Name: "auc", Value: metricValue(summary.AUC)},
		{Name: "f1", Value: metricValue(summary.F1)},
		{Name: "model_uri", Value: summary.ModelURI},
		{Name: "run_id", Value: runID},
	}

	if err := runQuery(ctx, q); err != nil {
		return fmt.Errorf("MarkTrainingRunSucceeded: %w", err)
	}
	return nil
}

// ListTrainingRunsWithClient returns runs newest first, optionally filtered.
func ListTrainingRunsWithClient(ctx context.Context, client *bigquery.Client, projectID, datasetID string, filter runs.Filter) ([]*runs.TrainingRun, error) {
	query, params := listTrainingRunsQuery(projectID, datasetID, filter)
	q := client.Query(query)
	q.Parameters = params

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("ListTrainingRunsWithClient: reading query: %w", err)
	}

	var result []*runs.TrainingRun
	for {
		var row TrainingRunRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ListTrainingRunsWithClient: iterating: %w", err)
		}
		result = append(result, row.toTrainingRun())
	}
	return result, nil
}

func listTrainingRunsQuery(projectID, datasetID string, filter runs.Filter) (string, []bigquery.QueryParameter) {
	var params []bigquery.QueryParameter
	var conds []string
	if filter.Status != "" {
		conds = append(conds, "status = @status")
		params = append(params, bigquery.QueryParameter{Name: "status", Value: string(filter.Status)})
	}
	if filter.Since.IsValid() {
		conds = append(conds, "DATE(started_ts) >= @since")
		params = append(params, bigquery.QueryParameter{Name: "since", Value: filter.Since})
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}
	limit := ""
	if filter.Limit > 0 {
		limit = "LIMIT @limit"
		params = append(params, bigquery.QueryParameter{Name: "limit", Value: filter.Limit})
	}

	query := fmt.Sprintf(`
		SELECT
			run_id,
			started_ts,
			finished_ts,
			status,
			error_message,
			trainer,
			hyperparameters,
			train_rows,
			test_rows,
			accuracy,
			auc,
			f1,
			model_uri
		FROM `+"`%s.%s.%s`"+`
		%s
		ORDER BY started_ts DESC
		%s
	`, projectID, datasetID, TrainingRunsTable, where, limit)
	return query, params
}

func runQuery(ctx context.Context, q *bigquery.Query) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}
