// Package vector holds the embedding arithmetic shared by the gallery, the
// matcher and the enrollment aggregator.
package vector

import (
	"errors"
	"math"
)

// Epsilon is the tolerance used when checking unit length
const Epsilon = 1e-6

var (
	ErrEmpty             = errors.New("vector is empty")
	ErrZeroNorm          = errors.New("vector has zero norm")
	ErrNotFinite         = errors.New("vector contains NaN or Inf")
	ErrDimensionMismatch = errors.New("vector dimensions differ")
)

// Norm returns the L2 norm of v
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns a unit-length copy of v. Zero, empty and non-finite
// vectors are rejected instead of being passed through.
func Normalize(v []float64) ([]float64, error) {
	if len(v) == 0 {
		return nil, ErrEmpty
	}
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil, ErrNotFinite
		}
	}

	n := Norm(v)
	if n == 0 {
		return nil, ErrZeroNorm
	}

	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = x / n
	}
	return out, nil
}

// IsUnit reports whether v has norm 1 within Epsilon
func IsUnit(v []float64) bool {
	return math.Abs(Norm(v)-1) < Epsilon
}

// Dot returns the dot product of a and b
func Dot(a, b []float64) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}
	var sum float64
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum, nil
}

// Mean folds samples into a running mean (avg += (v - avg) / n). All samples
// must share one dimension.
type Mean struct {
	avg []float64
	n   int
}

// Add folds v into the mean
func (m *Mean) Add(v []float64) error {
	if m.n == 0 {
		m.avg = make([]float64, len(v))
		copy(m.avg, v)
		m.n = 1
		return nil
	}
	if len(v) != len(m.avg) {
		return ErrDimensionMismatch
	}

	m.n++
	for i := range m.avg {
		m.avg[i] += (v[i] - m.avg[i]) / float64(m.n)
	}
	return nil
}

// Count returns the number of folded samples
func (m *Mean) Count() int {
	return m.n
}

// Unit returns the renormalized mean
func (m *Mean) Unit() ([]float64, error) {
	if m.n == 0 {
		return nil, ErrEmpty
	}
	return Normalize(m.avg)
}

// Float32 converts v for storage backends that keep single precision
func Float32(v []float64) []float32 {
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(x)
	}
	return out
}

// Float64 widens a single precision vector
func Float64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}
