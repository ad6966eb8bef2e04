package ml

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModelCodec_RoundTripPredictions(t *testing.T) {
	f, classifier := fitSeparable(t)
	fc, err := FeatureContribution{Predictor: classifier, Normalize: true}.Fit(f)
	require.NoError(t, err)

	model := NewModel(classifier).Append(fc)

	data, err := MarshalModel(model)
	require.NoError(t, err)
	loaded, err := UnmarshalModel(data)
	require.NoError(t, err)
	assert.Equal(t, model.String(), loaded.String())

	want, err := model.Transform(f)
	require.NoError(t, err)
	got, err := loaded.Transform(f)
	require.NoError(t, err)

	for _, name := range []string{ScoreColumn, ProbabilityColumn} {
		w, err := want.ColumnOf(name, KindFloat)
		require.NoError(t, err)
		g, err := got.ColumnOf(name, KindFloat)
		require.NoError(t, err)
		assert.InDeltaSlice(t, w.Floats, g.Floats, 1e-12, name)
	}
	w, err := want.ColumnOf(FeatureContributionsColumn, KindVector)
	require.NoError(t, err)
	g, err := got.ColumnOf(FeatureContributionsColumn, KindVector)
	require.NoError(t, err)
	assert.Equal(t, w.Vectors, g.Vectors)
}

func TestModelCodec_OneHotVocabularySurvives(t *testing.T) {
	m := NewModel(NewOneHotModel("TypeOneHotEncoded", "Type", []string{"TRANSFER", "CASH_OUT"}))
	data, err := MarshalModel(m)
	require.NoError(t, err)

	loaded, err := UnmarshalModel(data)
	require.NoError(t, err)
	oh, ok := loaded.Last().(*OneHotModel)
	require.True(t, ok)
	assert.Equal(t, []float64{0, 1}, oh.Encode("CASH_OUT"))
}

func TestModelCodec_Errors(t *testing.T) {
	_, err := UnmarshalModel([]byte(`{"version":99,"stages":[]}`))
	assert.Error(t, err)

	_, err = UnmarshalModel([]byte(`{"version":1,"stages":[{"kind":"mystery","params":{}}]}`))
	assert.Error(t, err)

	_, err = UnmarshalModel([]byte(`{"version":1,"stages":[{"kind":"feature_contribution","params":{}}]}`))
	assert.Error(t, err, "contribution stage needs a classifier before it")
}
