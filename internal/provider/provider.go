package provider

import (
	"context"
	"image"
)

// Detector finds faces in a decoded image. Zero faces is a valid result, not
// an error.
type Detector interface {
	// Detect returns faces in detection order with boxes clipped to the
	// image bounds and non-empty crops
	Detect(ctx context.Context, img image.Image) ([]Face, error)
}

// Embedder turns one face crop into a fixed-length vector. The output does
// not need to be normalized; callers normalize on receipt.
type Embedder interface {
	Embed(ctx context.Context, crop image.Image) ([]float64, error)

	// Space names the model that produced the vectors. Vectors from
	// different spaces are not comparable.
	Space() string
}

// HealthChecker is implemented by backends that can be probed at startup
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// Face is one detection: a transient observation consumed by the embedding
// step and discarded afterwards
type Face struct {
	Box   Box         `json:"box"`
	Score float64     `json:"score"`
	Crop  image.Image `json:"-"`
}

// Box is a pixel bounding box, X2 and Y2 exclusive
type Box struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b Box) Width() int  { return b.X2 - b.X1 }
func (b Box) Height() int { return b.Y2 - b.Y1 }

// Area returns the box area in pixels, 0 for degenerate boxes
func (b Box) Area() int {
	if b.Width() <= 0 || b.Height() <= 0 {
		return 0
	}
	return b.Width() * b.Height()
}

// Rect converts the box into an image.Rectangle
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.X1, b.Y1, b.X2, b.Y2)
}

// Clip restricts the box to bounds
func (b Box) Clip(bounds image.Rectangle) Box {
	r := b.Rect().Intersect(bounds)
	return Box{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Scale multiplies every coordinate by ratio
func (b Box) Scale(ratio float64) Box {
	return Box{
		X1: int(float64(b.X1) * ratio),
		Y1: int(float64(b.Y1) * ratio),
		X2: int(float64(b.X2) * ratio),
		Y2: int(float64(b.Y2) * ratio),
	}
}

// BoxFromXYWH builds a box from an origin and a size
func BoxFromXYWH(x, y, w, h int) Box {
	return Box{X1: x, Y1: y, X2: x + w, Y2: y + h}
}

// Largest returns the index of the face with the largest box area, or -1
// for an empty slice. The first face wins ties.
func Largest(faces []Face) int {
	best, bestArea := -1, -1
	for i, f := range faces {
		if a := f.Box.Area(); a > bestArea {
			best, bestArea = i, a
		}
	}
	return best
}
