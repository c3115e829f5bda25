package insightface

import (
	"context"
	"fmt"
	"image"
	"math"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/vector"
)

// DefaultMinScore is the det_score below which detections are ignored
const DefaultMinScore = 0.5

// Detector uses the server's detection stage (RetinaFace inside the
// model pack) and ignores the embeddings it returns
type Detector struct {
	client   *Client
	minScore float64
	minSide  int
}

func NewDetector(client *Client, minScore float64, minSide int) *Detector {
	if minScore <= 0 {
		minScore = DefaultMinScore
	}
	return &Detector{client: client, minScore: minScore, minSide: minSide}
}

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]provider.Face, error) {
	payload, err := provider.EncodeJPEG(img)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}

	resp, err := d.client.EmbedFaces(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("detect faces (insightface): %w", err)
	}

	origin := img.Bounds().Min
	faces := make([]provider.Face, 0, len(resp.Faces))
	for _, det := range resp.Faces {
		if det.DetScore < d.minScore {
			continue
		}
		box, ok := boxFromBBox(det.BBox)
		if !ok {
			continue
		}
		box = provider.Box{
			X1: box.X1 + origin.X, Y1: box.Y1 + origin.Y,
			X2: box.X2 + origin.X, Y2: box.Y2 + origin.Y,
		}

		face, ok := provider.NewFace(img, box, det.DetScore, d.minSide)
		if !ok {
			continue
		}
		faces = append(faces, face)
	}

	return faces, nil
}

func (d *Detector) Ping(ctx context.Context) error {
	return d.client.Ping(ctx)
}

// Embedder embeds a face crop. The server re-detects the face inside the
// crop to align it; the most confident detection is used.
type Embedder struct {
	client *Client
	model  string
}

// NewEmbedder creates an embedder for a model pack such as "buffalo_l"
func NewEmbedder(client *Client, model string) *Embedder {
	if model == "" {
		model = "buffalo_l"
	}
	return &Embedder{client: client, model: model}
}

func (e *Embedder) Embed(ctx context.Context, crop image.Image) ([]float64, error) {
	payload, err := provider.EncodeJPEG(crop)
	if err != nil {
		return nil, fmt.Errorf("embed face: %w", err)
	}

	resp, err := e.client.EmbedFaces(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("embed face (insightface): %w", err)
	}

	best := -1
	for i, det := range resp.Faces {
		if len(det.Embedding) == 0 {
			continue
		}
		if best < 0 || det.DetScore > resp.Faces[best].DetScore {
			best = i
		}
	}
	if best < 0 {
		return nil, ErrNoFace
	}

	return vector.Float64(resp.Faces[best].Embedding), nil
}

func (e *Embedder) Space() string {
	return "insightface/" + e.model
}

func (e *Embedder) Ping(ctx context.Context) error {
	return e.client.Ping(ctx)
}

// boxFromBBox rounds an [x1, y1, x2, y2] float box outwards
func boxFromBBox(bbox []float64) (provider.Box, bool) {
	if len(bbox) != 4 {
		return provider.Box{}, false
	}
	for _, v := range bbox {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return provider.Box{}, false
		}
	}
	return provider.Box{
		X1: int(math.Floor(bbox[0])),
		Y1: int(math.Floor(bbox[1])),
		X2: int(math.Ceil(bbox[2])),
		Y2: int(math.Ceil(bbox[3])),
	}, true
}

var (
	_ provider.Detector      = (*Detector)(nil)
	_ provider.Embedder      = (*Embedder)(nil)
	_ provider.HealthChecker = (*Detector)(nil)
	_ provider.HealthChecker = (*Embedder)(nil)
)
