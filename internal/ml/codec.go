package ml

import (
	"encoding/json"
	"fmt"
)

const codecVersion = 1

type stageEnvelope struct {
	Kind   string          `json:"kind"`
	Params json.RawMessage `json:"params"`
}

type modelEnvelope struct {
	Version int             `json:"version"`
	Stages  []stageEnvelope `json:"stages"`
}

// MarshalModel encodes a fitted model as JSON.
func MarshalModel(m *Model) ([]byte, error) {
	env := modelEnvelope{Version: codecVersion}
	for i, t := range m.stages {
		params, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("MarshalModel: stage %d (%s): %w", i+1, t.Kind(), err)
		}
		env.Stages = append(env.Stages, stageEnvelope{Kind: t.Kind(), Params: params})
	}
	return json.MarshalIndent(env, "", "  ")
}

// UnmarshalModel decodes a model written by MarshalModel. A feature
// contribution stage is bound to the closest classifier stage before it.
func UnmarshalModel(data []byte) (*Model, error) {
	var env modelEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("UnmarshalModel: %w", err)
	}
	if env.Version != codecVersion {
		return nil, fmt.Errorf("UnmarshalModel: unsupported version %d", env.Version)
	}

	var (
		stages     []Transformer
		classifier *BoostedTreeModel
	)
	for i, s := range env.Stages {
		var t Transformer
		switch s.Kind {
		case "concatenate":
			t = &ConcatModel{}
		case "one_hot_encode":
			t = &OneHotModel{}
		case "drop_columns":
			t = &DropModel{}
		case "boosted_tree_classifier":
			t = &BoostedTreeModel{}
		case "feature_contribution":
			t = &FeatureContributionModel{}
		default:
			return nil, fmt.Errorf("UnmarshalModel: stage %d: unknown kind %q", i+1, s.Kind)
		}
		if err := json.Unmarshal(s.Params, t); err != nil {
			return nil, fmt.Errorf("UnmarshalModel: stage %d (%s): %w", i+1, s.Kind, err)
		}

		switch st := t.(type) {
		case *OneHotModel:
			st.index()
		case *BoostedTreeModel:
			classifier = st
		case *FeatureContributionModel:
			if classifier == nil {
				return nil, fmt.Errorf("UnmarshalModel: stage %d: feature contribution without a classifier", i+1)
			}
			st.predictor = classifier
		}
		stages = append(stages, t)
	}
	return &Model{stages: stages}, nil
}
