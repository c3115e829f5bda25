package face

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/config"
	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

const mockLayers = `quorum: 2
layers:
  - name: mock-a
    detector: {type: mock}
    embedder: {type: mock}
    threshold: 0.99
  - name: mock-b
    detector: {type: mock}
    embedder: {type: mock}
    threshold: 0.99
`

func pngBytes(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 120, 90))
	for y := 0; y < 90; y++ {
		for x := 0; x < 120; x++ {
			img.Set(x, y, color.RGBA{R: shade, G: uint8(x), B: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func mockConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	layersFile := filepath.Join(dir, "layers.yaml")
	require.NoError(t, os.WriteFile(layersFile, []byte(mockLayers), 0o600))

	cfg := testConfig()
	cfg.GalleryBackend = config.GalleryBackendFile
	cfg.GalleryPath = filepath.Join(dir, "gallery.json")
	cfg.LayersFile = layersFile
	return cfg
}

func TestBootstrap_EnrollThenRecognize(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := mockConfig(t)

	rt, err := Bootstrap(ctx, cfg, logger)
	require.NoError(t, err)
	defer rt.Close()

	assert.Nil(t, rt.Pool)
	assert.Equal(t, 2, rt.Engine.Quorum())
	assert.False(t, rt.Service.IsReady())

	ana, bia := pngBytes(t, 10), pngBytes(t, 200)
	_, err = rt.Service.EnrollIdentity(ctx, "1_ana", [][]byte{ana})
	require.NoError(t, err)
	_, err = rt.Service.EnrollIdentity(ctx, "2_bia", [][]byte{bia})
	require.NoError(t, err)

	rec, err := rt.Service.Recognize(ctx, ana, false)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPresent, rec.Record["1_ana"])
	assert.Equal(t, domain.StatusAbsent, rec.Record["2_bia"])
	assert.Equal(t, 2, rec.Tally["1_ana"])

	// A second process sees what the first one persisted
	again, err := Bootstrap(ctx, cfg, logger)
	require.NoError(t, err)
	assert.Equal(t, []string{"1_ana", "2_bia"}, again.Service.ListIdentities())
}

func TestBootstrap_Errors(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	t.Run("unknown gallery backend", func(t *testing.T) {
		cfg := mockConfig(t)
		cfg.GalleryBackend = "s3"
		_, err := Bootstrap(ctx, cfg, logger)
		assert.ErrorContains(t, err, "unknown gallery backend")
	})

	t.Run("missing layer file", func(t *testing.T) {
		cfg := mockConfig(t)
		cfg.LayersFile = filepath.Join(t.TempDir(), "absent.yaml")
		_, err := Bootstrap(ctx, cfg, logger)
		assert.Error(t, err)
	})

	t.Run("quorum larger than the layer count", func(t *testing.T) {
		cfg := mockConfig(t)
		cfg.Quorum = 3
		_, err := Bootstrap(ctx, cfg, logger)
		assert.Error(t, err)
	})
}
