package inmemory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/runs"
	"github.com/google/uuid"
)

// Store is an in-memory run ledger, safe for concurrent use. It is the
// default when no BigQuery project is configured; runs are lost on exit.
type Store struct {
	mu   sync.RWMutex
	runs map[string]*runs.TrainingRun
	now  func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		runs: make(map[string]*runs.TrainingRun),
		now:  time.Now,
	}
}

// Start implements runs.Recorder.
func (s *Store) Start(ctx context.Context, run *runs.TrainingRun) (string, error) {
	if run == nil {
		return "", fmt.Errorf("Start: run is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	if cp.RunID == "" {
		cp.RunID = uuid.NewString()
	}
	if _, exists := s.runs[cp.RunID]; exists {
		return "", fmt.Errorf("Start: run %s already recorded", cp.RunID)
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = s.now()
	}
	cp.Status = runs.RunStatusRunning
	s.runs[cp.RunID] = &cp

	return cp.RunID, nil
}

// Succeed implements runs.Recorder.
func (s *Store) Succeed(ctx context.Context, runID string, summary runs.Summary) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		return fmt.Errorf("Succeed: run not found: %s", runID)
	}
	finished := s.now()
	run.FinishedAt = &finished
	run.Status = runs.RunStatusSucceeded
	run.Error = ""
	run.Trainer = summary.Trainer
	run.TrainRows = summary.TrainRows
	run.TestRows = summary.TestRows
	run.Accuracy = summary.Accuracy
	run.AUC = summary.AUC
	run.F1 = summary.F1
	run.ModelURI = summary.ModelURI
	return nil
}

// Fail implements runs.Recorder.
func (s *Store) Fail(ctx context.Context, runID string, runErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	run, ok := s.runs[runID]
	if !ok {
		log := logger.FromContext(ctx)
		log.Error().
			Str("run_id", runID).
			Msg("Fail: run not found")
		return
	}
	finished := s.now()
	run.FinishedAt = &finished
	run.Status = runs.RunStatusFailed
	run.Error = runs.TruncateError(runErr)
}

// Get returns a copy of the run with the given ID.
func (s *Store) Get(ctx context.Context, runID string) (*runs.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	run, ok := s.runs[runID]
	if !ok {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	cp := *run
	return &cp, nil
}

// List returns copies of the matching runs, newest first.
func (s *Store) List(ctx context.Context, filter runs.Filter) ([]*runs.TrainingRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*runs.TrainingRun
	for _, run := range s.runs {
		if !filter.Match(run) {
			continue
		}
		cp := *run
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].StartedAt.After(result[j].StartedAt)
	})
	if filter.Limit > 0 && filter.Limit < len(result) {
		result = result[:filter.Limit]
	}
	return result, nil
}

var _ runs.Recorder = (*Store)(nil)
