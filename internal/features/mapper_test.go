package features

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapGenericInput(t *testing.T) {
	got, err := Map(Input{
		"feature1": 5.1,
		"feature2": 3.5,
		"feature3": 1.4,
		"feature4": 0.2,
		"feature5": 0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, ModelVector{5.1, 3.5, 1.4, 0.2}, got)
}

func TestMapIgnoresFeature5(t *testing.T) {
	base := Input{"feature1": 6.3, "feature2": 3.3, "feature3": 6.0, "feature4": 2.5}

	withoutFifth, err := Map(base)
	require.NoError(t, err)

	for _, fifth := range []float64{0, -100, 1e9} {
		in := Input{"feature5": fifth}
		for k, v := range base {
			in[k] = v
		}
		got, err := Map(in)
		require.NoError(t, err)
		assert.Equal(t, withoutFifth, got)
	}
}

func TestMapCanonicalPassThrough(t *testing.T) {
	canonical := Input{
		SepalLength: 7.0,
		SepalWidth:  3.2,
		PetalLength: 4.7,
		PetalWidth:  1.4,
		"extra":     99,
	}
	generic := Input{"feature1": 7.0, "feature2": 3.2, "feature3": 4.7, "feature4": 1.4, "feature5": 0}

	a, err := Map(canonical)
	require.NoError(t, err)
	b, err := Map(generic)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, []float64{7.0, 3.2, 4.7, 1.4}, a.Slice())
}

func TestMapSchemaErrors(t *testing.T) {
	tests := []struct {
		name    string
		in      Input
		message string
	}{
		{"empty", Input{}, "no recognized feature fields"},
		{"unknown only", Input{"foo": 1, "bar": 2}, "no recognized feature fields"},
		{"partial generic", Input{"feature1": 1, "feature2": 2, "feature5": 5}, "missing fields [feature3, feature4]"},
		{"partial canonical", Input{SepalLength: 1, PetalWidth: 2}, "missing fields [sepal width (cm), petal length (cm)]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Map(tt.in)
			require.ErrorIs(t, err, ErrSchema)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestModelVectorSliceIsCopy(t *testing.T) {
	v := ModelVector{1, 2, 3, 4}
	s := v.Slice()
	s[0] = 42
	assert.Equal(t, 1.0, v[0])
}
