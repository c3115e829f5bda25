package imageproc

import (
	"image"
	"image/color"
	"image/draw"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/saturnino-fabrica-de-software/rollcall/internal/provider"
)

const boxThickness = 2

var (
	boxColor   = color.NRGBA{G: 255, A: 255}
	labelColor = color.NRGBA{A: 255}
)

// Label is one box to draw with its caption
type Label struct {
	Box  provider.Box
	Text string
}

// Annotate draws green boxes and captions onto a copy of img
func Annotate(img image.Image, labels []Label) image.Image {
	out := imaging.Clone(img)
	bounds := out.Bounds()
	face := basicfont.Face7x13

	for _, l := range labels {
		box := l.Box.Clip(bounds)
		if box.Area() == 0 {
			continue
		}
		drawOutline(out, box.Rect())

		if l.Text == "" {
			continue
		}
		textW := font.MeasureString(face, l.Text).Ceil()
		textH := face.Metrics().Height.Ceil()

		// Caption sits above the box, or inside it at the top edge
		top := box.Y1 - textH - 2
		if top < bounds.Min.Y {
			top = box.Y1
		}
		bg := image.Rect(box.X1, top, box.X1+textW+4, top+textH+2).Intersect(bounds)
		draw.Draw(out, bg, image.NewUniform(boxColor), image.Point{}, draw.Src)

		d := &font.Drawer{
			Dst:  out,
			Src:  image.NewUniform(labelColor),
			Face: face,
			Dot:  fixed.P(box.X1+2, top+face.Metrics().Ascent.Ceil()+1),
		}
		d.DrawString(l.Text)
	}

	return out
}

func drawOutline(dst draw.Image, r image.Rectangle) {
	src := image.NewUniform(boxColor)
	t := boxThickness
	edges := []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+t),
		image.Rect(r.Min.X, r.Max.Y-t, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+t, r.Max.Y),
		image.Rect(r.Max.X-t, r.Min.Y, r.Max.X, r.Max.Y),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(r), src, image.Point{}, draw.Src)
	}
}
