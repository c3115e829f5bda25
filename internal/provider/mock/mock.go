package mock

import (
	"context"
	"crypto/sha256"
	"image"
	"math"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

const (
	embeddingDimension = 512
	// Space is the embedding space name reported by Embedder
	Space = "mock/sha256"

	minImageSide = 32
)

// Detector simula detecção: uma face central cobrindo 80% da imagem
type Detector struct {
	minSide int
}

// NewDetector cria um detector determinístico
func NewDetector() *Detector {
	return &Detector{minSide: provider.DefaultMinFaceSide}
}

func (d *Detector) Detect(ctx context.Context, img image.Image) ([]provider.Face, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() < minImageSide || b.Dy() < minImageSide {
		return nil, domain.ErrInvalidImage
	}

	box := provider.Box{
		X1: b.Min.X + b.Dx()/10,
		Y1: b.Min.Y + b.Dy()/10,
		X2: b.Max.X - b.Dx()/10,
		Y2: b.Max.Y - b.Dy()/10,
	}

	face, ok := provider.NewFace(img, box, 0.99, d.minSide)
	if !ok {
		return nil, nil
	}
	return []provider.Face{face}, nil
}

func (d *Detector) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Embedder gera embedding determinístico baseado no hash dos pixels
type Embedder struct{}

// NewEmbedder cria um embedder determinístico
func NewEmbedder() *Embedder {
	return &Embedder{}
}

func (e *Embedder) Embed(ctx context.Context, crop image.Image) ([]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if crop.Bounds().Empty() {
		return nil, domain.ErrEmbeddingFailure
	}
	return generateEmbedding(pixelDigest(crop)), nil
}

func (e *Embedder) Space() string {
	return Space
}

func (e *Embedder) Ping(ctx context.Context) error {
	return ctx.Err()
}

// pixelDigest hashes the RGBA values of every pixel in row order
func pixelDigest(img image.Image) [sha256.Size]byte {
	h := sha256.New()
	b := img.Bounds()
	buf := make([]byte, 0, 8)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bl, a := img.At(x, y).RGBA()
			buf = append(buf[:0],
				byte(r>>8), byte(r),
				byte(g>>8), byte(g),
				byte(bl>>8), byte(bl),
				byte(a>>8), byte(a),
			)
			_, _ = h.Write(buf)
		}
	}

	var sum [sha256.Size]byte
	copy(sum[:], h.Sum(nil))
	return sum
}

// generateEmbedding expande o hash em um vetor unitário
func generateEmbedding(hash [sha256.Size]byte) []float64 {
	embedding := make([]float64, embeddingDimension)
	hashLen := len(hash)

	for i := 0; i < embeddingDimension; i++ {
		idx := i % hashLen
		embedding[i] = (float64(hash[idx])/255.0)*2 - 1
	}

	norm := 0.0
	for _, v := range embedding {
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		embedding[0], norm = 1, 1
	}

	for i := range embedding {
		embedding[i] /= norm
	}

	return embedding
}

var (
	_ provider.Detector      = (*Detector)(nil)
	_ provider.Embedder      = (*Embedder)(nil)
	_ provider.HealthChecker = (*Detector)(nil)
)
