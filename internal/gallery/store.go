package gallery

import "context"

// Record is one persisted template
type Record struct {
	Space       string
	Key         string
	Vector      []float64
	SampleCount int
}

// Store is the durable side of the gallery. Save replaces the whole blob
// atomically; Load of a store that was never saved returns no records.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// Quantizer is implemented by stores that persist vectors at lower
// precision. Quantize returns v as the store will read it back.
type Quantizer interface {
	Quantize(v []float64) []float64
}
