package deepface

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

const (
	// minFaceArea is the minimum face area (in pixels²) for reliable detection
	minFaceArea = 2500 // 50x50 pixels
	// maxFaceArea is used for confidence scaling
	maxFaceArea = 250000 // 500x500 pixels

	// skipDetector tells DeepFace the input already is a face crop
	skipDetector = "skip"
)

// Detector finds faces with one of DeepFace's detector backends
type Detector struct {
	client   *Client
	backend  string
	model    string
	minSide  int
	minScore float64
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithMinFaceSide drops faces smaller than side pixels on either axis
func WithMinFaceSide(side int) DetectorOption {
	return func(d *Detector) {
		d.minSide = side
	}
}

// WithMinScore drops detections with a lower confidence
func WithMinScore(score float64) DetectorOption {
	return func(d *Detector) {
		d.minScore = score
	}
}

// NewDetector creates a detector bound to a DeepFace detector backend.
// model is the recognition model DeepFace loads alongside detection; the
// lightest one keeps detection-only calls cheap.
func NewDetector(client *Client, backend, model string, opts ...DetectorOption) *Detector {
	if model == "" {
		model = "Facenet"
	}
	d := &Detector{
		client:  client,
		backend: backend,
		model:   model,
		minSide: provider.DefaultMinFaceSide,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect detects faces in the image
func (d *Detector) Detect(ctx context.Context, img image.Image) ([]provider.Face, error) {
	payload, err := provider.EncodeBase64JPEG(img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	resp, err := d.client.Represent(ctx, RepresentRequest{
		Img:              payload,
		Model:            d.model,
		Detector:         d.backend,
		EnforceDetection: false,
		Align:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("detect faces (%s): %w", d.backend, classify(err))
	}

	bounds := img.Bounds()
	faces := make([]provider.Face, 0, len(resp.Results))
	for _, result := range resp.Results {
		area := result.FacialArea
		box := provider.BoxFromXYWH(bounds.Min.X+area.X, bounds.Min.Y+area.Y, area.W, area.H)

		// With enforce_detection=false DeepFace answers "no face" with the
		// whole frame and a zero confidence
		if result.FaceConfidence == 0 && box.Clip(bounds) == provider.BoxFromXYWH(bounds.Min.X, bounds.Min.Y, bounds.Dx(), bounds.Dy()) {
			continue
		}

		score := result.FaceConfidence
		if score == 0 {
			score = calculateConfidence(float64(area.W * area.H))
		}
		if score < d.minScore {
			continue
		}

		face, ok := provider.NewFace(img, box, score, d.minSide)
		if !ok {
			continue
		}
		faces = append(faces, face)
	}

	return faces, nil
}

// Ping checks the DeepFace server
func (d *Detector) Ping(ctx context.Context) error {
	return classify(d.client.Ping(ctx))
}

// calculateConfidence estimates confidence based on face area for DeepFace
// versions that do not report face_confidence. Larger faces are more likely
// to be accurately detected.
func calculateConfidence(faceArea float64) float64 {
	if faceArea < minFaceArea {
		return 0.5
	}
	// Scale from 0.7 to 0.99 based on face area
	normalized := math.Min(1.0, (faceArea-minFaceArea)/(maxFaceArea-minFaceArea))
	return 0.7 + (normalized * 0.29)
}

// Embedder generates embeddings with one DeepFace recognition model
type Embedder struct {
	client *Client
	model  string
}

// NewEmbedder creates an embedder for model ("Facenet512", "VGG-Face", ...)
func NewEmbedder(client *Client, model string) *Embedder {
	return &Embedder{client: client, model: model}
}

// Embed runs the model on an already cropped face
func (e *Embedder) Embed(ctx context.Context, crop image.Image) ([]float64, error) {
	payload, err := provider.EncodeBase64JPEG(crop)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	resp, err := e.client.Represent(ctx, RepresentRequest{
		Img:              payload,
		Model:            e.model,
		Detector:         skipDetector,
		EnforceDetection: false,
		Align:            false,
	})
	if err != nil {
		return nil, fmt.Errorf("embed face (%s): %w", e.model, classify(err))
	}

	if len(resp.Results) == 0 || len(resp.Results[0].Embedding) == 0 {
		return nil, ErrNoFaceInResponse
	}

	return resp.Results[0].Embedding, nil
}

// Space identifies vectors produced by this model
func (e *Embedder) Space() string {
	return "deepface/" + e.model
}

// Ping checks the DeepFace server
func (e *Embedder) Ping(ctx context.Context) error {
	return classify(e.client.Ping(ctx))
}

var (
	_ provider.Detector      = (*Detector)(nil)
	_ provider.Embedder      = (*Embedder)(nil)
	_ provider.HealthChecker = (*Detector)(nil)
	_ provider.HealthChecker = (*Embedder)(nil)
)
