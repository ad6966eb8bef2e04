package pipeline

import (
	"context"
	"fmt"

	"github.com/dvloznov/fraud-detection/internal/dataset"
	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/ml"
	"github.com/dvloznov/fraud-detection/internal/modelstore"
)

// ScoreFile loads the model saved at modelPath and scores the transactions
// in the CSV at dataPath. The data must carry every column the model was
// trained on.
func ScoreFile(ctx context.Context, modelPath, dataPath string) (*ml.Frame, error) {
	model, schema, err := modelstore.Load(modelPath)
	if err != nil {
		return nil, err
	}
	ds, err := dataset.Load(dataPath)
	if err != nil {
		return nil, err
	}
	frame, err := ds.Frame()
	if err != nil {
		return nil, fmt.Errorf("ScoreFile: %w", err)
	}

	for i, field := range schema {
		col, ok := frame.Schema().Field(field.Name)
		if !ok || col.Kind != field.Kind {
			return nil, &domain.SchemaMismatchError{
				Path:   dataPath,
				Line:   1,
				Column: i,
				Reason: fmt.Sprintf("model expects %s column %q", field.Kind, field.Name),
			}
		}
	}

	scored, err := model.Transform(frame)
	if err != nil {
		return nil, fmt.Errorf("ScoreFile: %w", err)
	}
	log := logger.FromContext(ctx)
	log.Info().
		Str("model", modelPath).
		Str("path", dataPath).
		Int("rows", scored.Rows()).
		Str("stages", model.String()).
		Msg("Scored dataset")
	return scored, nil
}
