package pipeline

import (
	"github.com/dvloznov/fraud-detection/internal/domain"
	"github.com/dvloznov/fraud-detection/internal/ml"
)

// droppedColumns are removed from the frame once features are built.
var droppedColumns = []string{
	domain.FieldType,
	domain.FieldNameOrigin,
	domain.FieldNameDest,
	domain.FieldIsFlaggedFraud,
}

// FeatureColumns returns the columns that feed the Features vector: every
// column except the label, the row-id column, the categorical type, both
// account identifiers and the rule-based flag. Order is preserved.
func FeatureColumns(columns []string, label string) []string {
	deny := map[string]bool{
		label:                      true,
		IdPreservationColumn:       true,
		domain.FieldType:           true,
		domain.FieldNameOrigin:     true,
		domain.FieldNameDest:       true,
		domain.FieldIsFlaggedFraud: true,
	}
	var out []string
	for _, c := range columns {
		if !deny[c] {
			out = append(out, c)
		}
	}
	return out
}

// BuildFeaturePipeline returns the data preparation estimators for a frame
// with the given schema:
//
//  1. concatenate the feature columns into Features
//  2. one-hot encode Type into TypeOneHotEncoded
//  3. drop Type, NameOrigin, NameDest and IsFlaggedFraud
//
// The classifier only reads Features; the one-hot column is kept for
// inspection.
func BuildFeaturePipeline(schema ml.Schema, label string) []ml.Estimator {
	return []ml.Estimator{
		ml.Concatenate{Output: FeaturesColumn, Inputs: FeatureColumns(schema.Names(), label)},
		ml.OneHotEncode{Output: TypeOneHotColumn, Input: domain.FieldType},
		ml.DropColumns{Names: droppedColumns},
	}
}
