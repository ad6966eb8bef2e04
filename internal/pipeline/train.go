package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/fraud-detection/internal/config"
	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/logger"
	"github.com/dvloznov/fraud-detection/internal/ml"
)

// TrainResult is the outcome of Train.
type TrainResult struct {
	// Model is the full fitted pipeline: feature stages, classifier and the
	// feature contribution stage.
	Model *ml.Model
	// FeatureModel holds only the fitted feature stages.
	FeatureModel *ml.Model
	TrainerName  string
}

// Train fits the feature pipeline and the boosted tree classifier on frame,
// then appends a feature contribution stage fitted on the feature-transformed
// training data. An empty frame yields *domain.EmptyDatasetError.
func Train(ctx context.Context, frame *ml.Frame, trainer config.Trainer) (*TrainResult, error) {
	log := logger.FromContext(ctx)

	if frame.Rows() == 0 {
		return nil, &domain.EmptyDatasetError{Name: "train"}
	}

	estimators := BuildFeaturePipeline(frame.Schema(), trainer.Label)
	p := ml.NewPipeline(estimators...).Append(ml.BoostedTreeClassifier{
		Label:    trainer.Label,
		Features: trainer.Features,
		Options:  trainer.TreeOptions(),
	})

	log.Info().
		Int("rows", frame.Rows()).
		Int("leaves", trainer.NumLeaves).
		Int("iterations", trainer.NumIterations).
		Int("min_samples_per_leaf", trainer.MinSamplesPerLeaf).
		Float64("learning_rate", trainer.LearningRate).
		Msg("Fitting classifier")

	model, err := p.Fit(frame)
	if err != nil {
		if errors.Is(err, ml.ErrEmptyFrame) {
			return nil, &domain.EmptyDatasetError{Name: "train"}
		}
		return nil, fmt.Errorf("Train: fit: %w", err)
	}
	classifier, ok := model.Classifier()
	if !ok {
		return nil, fmt.Errorf("Train: fitted model has no classifier stage")
	}

	stages := model.Stages()
	featureModel := ml.NewModel(stages[:len(stages)-1]...)
	transformed, err := featureModel.Transform(frame)
	if err != nil {
		return nil, fmt.Errorf("Train: transform features: %w", err)
	}
	fc, err := ml.FeatureContribution{Predictor: classifier, Normalize: true}.Fit(transformed)
	if err != nil {
		return nil, fmt.Errorf("Train: feature contribution: %w", err)
	}
	full := model.Append(fc)

	log.Info().
		Int("trees", len(classifier.Trees)).
		Str("stages", full.String()).
		Msg("Classifier fitted")

	return &TrainResult{Model: full, FeatureModel: featureModel, TrainerName: TrainerName}, nil
}
