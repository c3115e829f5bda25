package imageproc

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/disintegration/imaging"
	"github.com/rwcarlsen/goexif/exif"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/domain"
)

// Decoded is an upright image plus what its metadata told us
type Decoded struct {
	Image       image.Image
	Format      string
	Orientation int
	CapturedAt  time.Time
}

// Decode decodes JPEG, PNG, GIF, WebP or BMP data and applies the EXIF
// orientation so faces are upright before detection
func Decode(data []byte) (*Decoded, error) {
	if len(data) == 0 {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("empty image"))
	}

	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, domain.ErrInvalidImage.WithError(err)
	}
	if b := img.Bounds(); b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, domain.ErrInvalidImage.WithError(fmt.Errorf("image has no pixels"))
	}

	d := &Decoded{Image: img, Format: format, Orientation: 1}

	// Missing or broken EXIF is common (PNG, screenshots) and never fatal
	if x, err := exif.Decode(bytes.NewReader(data)); err == nil {
		if tag, err := x.Get(exif.Orientation); err == nil {
			if o, err := tag.Int(0); err == nil && o >= 1 && o <= 8 {
				d.Orientation = o
			}
		}
		if t, err := x.DateTime(); err == nil {
			d.CapturedAt = t
		}
	}

	d.Image = orient(d.Image, d.Orientation)
	return d, nil
}

// orient applies an EXIF orientation (1-8)
func orient(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}
