package provider

import (
	"image"

	"github.com/disintegration/imaging"
)

// DefaultMinFaceSide drops slivers produced by detectors at the image edge
const DefaultMinFaceSide = 10

// NewFace clips box to the image and crops the face. It reports false when
// the clipped box is smaller than minSide on either axis.
func NewFace(img image.Image, box Box, score float64, minSide int) (Face, bool) {
	if minSide <= 0 {
		minSide = 1
	}

	clipped := box.Clip(img.Bounds())
	if clipped.Width() < minSide || clipped.Height() < minSide {
		return Face{}, false
	}

	return Face{
		Box:   clipped,
		Score: score,
		Crop:  imaging.Crop(img, clipped.Rect()),
	}, true
}
