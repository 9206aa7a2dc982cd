package enrich

import (
	"math"
	"testing"

	"github.com/poiesic/docflow/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func magnitude(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func TestNormalizeVector(t *testing.T) {
	tests := []struct {
		name     string
		input    []float32
		expected []float32
	}{
		{name: "unit vector unchanged", input: []float32{0, 1, 0}, expected: []float32{0, 1, 0}},
		{name: "scaled", input: []float32{3, 4}, expected: []float32{0.6, 0.8}},
		{name: "negative", input: []float32{-2, 2}, expected: []float32{-1 / float32(math.Sqrt2), 1 / float32(math.Sqrt2)}},
		{name: "tiny components", input: []float32{1e-4, 2e-4, 2e-4}, expected: []float32{1.0 / 3, 2.0 / 3, 2.0 / 3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeVector(tt.input)
			require.NoError(t, err)
			require.Len(t, got, len(tt.expected))
			for i := range got {
				assert.InDelta(t, tt.expected[i], got[i], 1e-6, "component %d", i)
			}
			assert.InDelta(t, 1.0, magnitude(got), 1e-6)
		})
	}
}

func TestNormalizeVector_DoesNotAlias(t *testing.T) {
	in := []float32{3, 4}
	_, err := NormalizeVector(in)
	require.NoError(t, err)
	assert.Equal(t, []float32{3, 4}, in)
}

func TestNormalizeVector_Zero(t *testing.T) {
	_, err := NormalizeVector([]float32{0, 0, 0})
	assert.ErrorIs(t, err, core.ErrInvalidVector)

	_, err = NormalizeVector(nil)
	assert.ErrorIs(t, err, core.ErrInvalidVector)
}

func TestPrepareVector(t *testing.T) {
	got, err := prepareVector([]float32{0, 2}, 2)
	require.NoError(t, err)
	assert.Equal(t, []float32{0, 1}, got)

	_, err = prepareVector([]float32{1, 2, 3}, 2)
	assert.ErrorIs(t, err, core.ErrDimensionMismatch)

	_, err = prepareVector([]float32{float32(math.NaN()), 1}, 0)
	assert.ErrorIs(t, err, core.ErrInvalidVector)

	// Zero dims accepts any size.
	_, err = prepareVector([]float32{1, 1, 1}, 0)
	assert.NoError(t, err)
}
