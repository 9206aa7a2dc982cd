package enrich

import (
	"fmt"
	"math"

	"github.com/poiesic/docflow/core"
)

// NormalizeVector scales v to unit length so stored vectors can be compared
// with a plain dot product. A zero vector cannot be normalized and is
// rejected with core.ErrInvalidVector.
func NormalizeVector(v []float32) ([]float32, error) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return nil, fmt.Errorf("%w: zero magnitude", core.ErrInvalidVector)
	}

	norm := math.Sqrt(sum)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out, nil
}

// prepareVector validates a backend vector against the target dimensions
// and normalizes it.
func prepareVector(v []float32, dims int) ([]float32, error) {
	if err := core.ValidateVector(v, dims); err != nil {
		return nil, err
	}
	return NormalizeVector(v)
}
