package rekognition

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/aws/aws-sdk-go-v2/service/rekognition"
	"github.com/aws/aws-sdk-go-v2/service/rekognition/types"
	"github.com/disintegration/imaging"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

// maxImageSize is the maximum image size supported by AWS Rekognition (5MB)
const maxImageSize = 5 * 1024 * 1024

// jpegQualities are tried in order until the frame fits maxImageSize
var jpegQualities = []int{95, 85, 70}

// Detector finds faces with Rekognition DetectFaces. Rekognition does not
// expose embeddings, so it only serves as a detector (or fallback detector)
// in front of another embedder.
type Detector struct {
	api     DetectFacesAPI
	config  Config
	minSide int
}

// NewDetector wraps an API client. minSide drops tiny crops at the frame edge.
func NewDetector(api DetectFacesAPI, cfg Config, minSide int) *Detector {
	return &Detector{api: api, config: cfg, minSide: minSide}
}

// Detect returns an empty slice if no faces are detected (not an error)
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]provider.Face, error) {
	payload, err := encodeWithinLimit(img)
	if err != nil {
		return nil, fmt.Errorf("detect faces (rekognition): %w", err)
	}

	output, err := d.api.DetectFaces(ctx, &rekognition.DetectFacesInput{
		Image:      &types.Image{Bytes: payload},
		Attributes: []types.Attribute{types.AttributeDefault},
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("detect faces (rekognition): %w", classify(err))
	}

	bounds := img.Bounds()
	faces := make([]provider.Face, 0, len(output.FaceDetails))
	for _, detail := range output.FaceDetails {
		if detail.BoundingBox == nil || detail.Confidence == nil {
			continue
		}

		confidence := float64(*detail.Confidence) / 100.0
		if confidence < d.config.MinConfidence {
			continue
		}
		if d.config.MinQuality > 0 && calculateQualityScore(detail.Quality) < d.config.MinQuality {
			continue
		}

		face, ok := provider.NewFace(img, toPixels(detail.BoundingBox, bounds), confidence, d.minSide)
		if !ok {
			continue
		}
		faces = append(faces, face)
	}

	return faces, nil
}

// toPixels converts a ratio box relative to the frame into pixels
func toPixels(bb *types.BoundingBox, bounds image.Rectangle) provider.Box {
	w, h := float64(bounds.Dx()), float64(bounds.Dy())
	ratio := func(v *float32) float64 {
		if v == nil {
			return 0
		}
		return float64(*v)
	}

	return provider.BoxFromXYWH(
		bounds.Min.X+int(ratio(bb.Left)*w),
		bounds.Min.Y+int(ratio(bb.Top)*h),
		int(ratio(bb.Width)*w+0.5),
		int(ratio(bb.Height)*h+0.5),
	)
}

func encodeWithinLimit(img image.Image) ([]byte, error) {
	for _, q := range jpegQualities {
		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(q)); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		if buf.Len() <= maxImageSize {
			return buf.Bytes(), nil
		}
	}
	return nil, ErrImageTooLarge
}

// calculateQualityScore computes an overall quality score from Rekognition quality metrics
// Returns a score between 0.0 (poor quality) and 1.0 (excellent quality)
func calculateQualityScore(quality *types.ImageQuality) float64 {
	if quality == nil {
		return 0.0
	}

	brightness := 0.0
	sharpness := 0.0

	if quality.Brightness != nil {
		brightness = float64(*quality.Brightness) / 100.0
	}

	if quality.Sharpness != nil {
		sharpness = float64(*quality.Sharpness) / 100.0
	}

	// Weight sharpness more heavily as it's critical for face recognition
	return brightness*0.3 + sharpness*0.7
}

var _ provider.Detector = (*Detector)(nil)
