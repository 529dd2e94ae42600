package chart

import (
	"image"

	"github.com/fogleman/gg"

	"github.com/asandstrom/camcal/pkg/cimg"
)

// OverlayStyle controls the annotation drawing.
type OverlayStyle struct {
	Outline     [3]float64
	PatchBox    [3]float64
	Label       [3]float64
	LineWidth   float64
	DrawLabels  bool
	DrawOutline bool
}

// DefaultOverlayStyle draws a red outline, blue patch boxes and green
// labels.
func DefaultOverlayStyle() OverlayStyle {
	return OverlayStyle{
		Outline:     [3]float64{1, 0, 0},
		PatchBox:    [3]float64{0, 0, 1},
		Label:       [3]float64{0, 0.5, 0},
		LineWidth:   3,
		DrawLabels:  true,
		DrawOutline: true,
	}
}

// Overlay renders the detected chart onto a copy of the photograph:
// corner outline, one box per patch window, and patch labels. Purely a
// visual aid; the numeric pipeline never reads the result.
func (in *Instance) Overlay(img *cimg.Image, window int, style OverlayStyle) image.Image {
	if window <= 0 {
		window = in.Window
	}
	dc := gg.NewContextForImage(toRGBA(img))
	dc.SetLineWidth(style.LineWidth)

	if style.DrawOutline {
		corners := in.CornersInImage()
		dc.SetRGB(style.Outline[0], style.Outline[1], style.Outline[2])
		dc.MoveTo(corners[0].X, corners[0].Y)
		for _, p := range corners[1:] {
			dc.LineTo(p.X, p.Y)
		}
		dc.ClosePath()
		dc.Stroke()
	}

	half := float64(window) / 2
	dc.SetRGB(style.PatchBox[0], style.PatchBox[1], style.PatchBox[2])
	centres := in.PatchCentresInImage()
	for _, id := range in.Layout.PatchIDs() {
		p := centres[id]
		dc.DrawRectangle(p.X-half, p.Y-half, float64(window), float64(window))
		dc.Stroke()
	}

	if style.DrawLabels {
		dc.SetRGB(style.Label[0], style.Label[1], style.Label[2])
		for _, id := range in.Layout.PatchIDs() {
			p := centres[id]
			dc.DrawStringAnchored(id, p.X, p.Y, 0.5, 0.5)
		}
	}
	return dc.Image()
}

// toRGBA flattens the float buffer to 8-bit for annotation.
func toRGBA(img *cimg.Image) *image.RGBA {
	full := img.FullScale()
	out := image.NewRGBA(img.Bounds())
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			i := out.PixOffset(x, y)
			for c := 0; c < 3; c++ {
				v := img.Get(c, x, y)
				if v < 0 {
					v = 0
				}
				out.Pix[i+c] = uint8(min255(v / full * 255))
			}
			out.Pix[i+3] = 0xff
		}
	}
	return out
}

func min255(v float64) float64 {
	if v > 255 {
		return 255
	}
	return v
}
