package imageproc

import (
	"fmt"
	"image"
	"math"
	"os"
	"sync"

	"golang.org/x/image/draw"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

// 4K UHD working ceiling
const (
	MaxWorkingWidth  = 3840
	MaxWorkingHeight = 2160
)

// ComputeWorkingScale returns the factor that fits width x height inside the
// working ceiling, preserving aspect ratio. Images already inside the
// ceiling, and degenerate sizes, get 1.
func ComputeWorkingScale(width, height int) float64 {
	if width <= 0 || height <= 0 {
		return 1.0
	}
	if width <= MaxWorkingWidth && height <= MaxWorkingHeight {
		return 1.0
	}
	return math.Min(float64(MaxWorkingWidth)/float64(width), float64(MaxWorkingHeight)/float64(height))
}

// Working is the image detection and embedding run on. It must be released
// once the request is done.
type Working struct {
	Image image.Image
	Ratio float64

	spoolPath string
	once      sync.Once
	releaseFn func() error
}

// ToOriginal maps a box found on the working image back onto the original
func (w *Working) ToOriginal(b provider.Box) provider.Box {
	if w.Ratio == 1.0 || w.Ratio <= 0 {
		return b
	}
	return b.Scale(1 / w.Ratio)
}

// SpoolPath is the on-disk copy, empty when none was written
func (w *Working) SpoolPath() string {
	return w.spoolPath
}

// Release drops the working copy. Safe to call more than once.
func (w *Working) Release() error {
	var err error
	w.once.Do(func() {
		if w.releaseFn != nil {
			err = w.releaseFn()
		}
		w.Image = nil
	})
	return err
}

// Preparer builds working images
type Preparer struct {
	// SpoolDir, when set, receives a JPEG of every downscaled copy so
	// operators can inspect what the detectors saw. The file is removed on
	// Release.
	SpoolDir string
}

// Prepare downscales img when it exceeds the working ceiling
func (p Preparer) Prepare(img image.Image) (*Working, error) {
	bounds := img.Bounds()
	ratio := ComputeWorkingScale(bounds.Dx(), bounds.Dy())
	if ratio == 1.0 {
		return &Working{Image: img, Ratio: 1.0}, nil
	}

	w := max(1, int(math.Round(float64(bounds.Dx())*ratio)))
	h := max(1, int(math.Round(float64(bounds.Dy())*ratio)))
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(scaled, scaled.Bounds(), img, bounds, draw.Over, nil)

	working := &Working{Image: scaled, Ratio: ratio}
	if p.SpoolDir == "" {
		return working, nil
	}

	path, err := spool(p.SpoolDir, scaled)
	if err != nil {
		return nil, err
	}
	working.spoolPath = path
	working.releaseFn = func() error {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove working copy: %w", err)
		}
		return nil
	}
	return working, nil
}

func spool(dir string, img image.Image) (string, error) {
	f, err := os.CreateTemp(dir, "working-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create working copy: %w", err)
	}

	data, err := provider.EncodeJPEG(img)
	if err == nil {
		_, err = f.Write(data)
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(f.Name())
		return "", fmt.Errorf("write working copy: %w", err)
	}
	return f.Name(), nil
}
