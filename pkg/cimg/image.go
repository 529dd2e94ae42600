// Package cimg holds the working image buffer that flows through the
// pipeline: a fixed-size stack of float64 channel planes. Stage
// outputs (raw, white-balanced, corrected, XYZ) are all Images; only
// the interpretation of the channels changes.
package cimg

import (
	"fmt"
	"image"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Sentinel is the default marker written over pixels that statistics
// must ignore, e.g. the region covered by a colour chart when
// estimating white balance from scene content.
const Sentinel = -1.0

type Image struct {
	W, H int
	Pix  [][]float64 // one row-major plane per channel
}

func New(w, h, chans int) *Image {
	pix := make([][]float64, chans)
	for c := range pix {
		pix[c] = make([]float64, w*h)
	}
	return &Image{W: w, H: h, Pix: pix}
}

func (im *Image) Chans() int              { return len(im.Pix) }
func (im *Image) Bounds() image.Rectangle { return image.Rect(0, 0, im.W, im.H) }

func (im *Image) Get(c, x, y int) float64    { return im.Pix[c][y*im.W+x] }
func (im *Image) Set(c, x, y int, v float64) { im.Pix[c][y*im.W+x] = v }

// Vec3At reads the first three channels at (x,y).
func (im *Image) Vec3At(x, y int) [3]float64 {
	i := y*im.W + x
	return [3]float64{im.Pix[0][i], im.Pix[1][i], im.Pix[2][i]}
}

func (im *Image) SetVec3(x, y int, v [3]float64) {
	i := y*im.W + x
	im.Pix[0][i], im.Pix[1][i], im.Pix[2][i] = v[0], v[1], v[2]
}

func (im *Image) Clone() *Image {
	out := New(im.W, im.H, im.Chans())
	for c := range im.Pix {
		copy(out.Pix[c], im.Pix[c])
	}
	return out
}

func (im *Image) String() string {
	return fmt.Sprintf("img[%dx%dx%d]", im.W, im.H, im.Chans())
}

// Crop returns a copy of the given sub-rectangle.
func (im *Image) Crop(r image.Rectangle) (*Image, error) {
	if !r.In(im.Bounds()) {
		return nil, fmt.Errorf("crop %v outside image bounds %v", r, im.Bounds())
	}
	out := New(r.Dx(), r.Dy(), im.Chans())
	for c := range im.Pix {
		for y := 0; y < r.Dy(); y++ {
			srcRow := im.Pix[c][(y+r.Min.Y)*im.W+r.Min.X : (y+r.Min.Y)*im.W+r.Max.X]
			copy(out.Pix[c][y*r.Dx():(y+1)*r.Dx()], srcRow)
		}
	}
	return out, nil
}

// MaskRegion returns a copy with every channel of the rectangle set
// to the sentinel value. Statistics helpers skip sentinel (<0) pixels.
func (im *Image) MaskRegion(r image.Rectangle, sentinel float64) *Image {
	out := im.Clone()
	clipped := r.Intersect(im.Bounds())
	for c := range out.Pix {
		for y := clipped.Min.Y; y < clipped.Max.Y; y++ {
			row := out.Pix[c][y*im.W+clipped.Min.X : y*im.W+clipped.Max.X]
			for i := range row {
				row[i] = sentinel
			}
		}
	}
	return out
}

// ChannelMean is the mean of one channel plane, skipping sentinel
// (<0) pixels. Accumulation order is gonum's: sequential over the
// row-major plane, so results are bit-for-bit reproducible.
func (im *Image) ChannelMean(c int) float64 {
	plane := im.Pix[c]
	if !im.hasSentinels(c) {
		return stat.Mean(plane, nil)
	}
	vals := make([]float64, 0, len(plane))
	for _, v := range plane {
		if v >= 0 {
			vals = append(vals, v)
		}
	}
	if len(vals) == 0 {
		return 0
	}
	return stat.Mean(vals, nil)
}

func (im *Image) hasSentinels(c int) bool {
	for _, v := range im.Pix[c] {
		if v < 0 {
			return true
		}
	}
	return false
}

// ChannelMax is the max of one channel plane, skipping sentinel pixels.
func (im *Image) ChannelMax(c int) float64 {
	max := math.Inf(-1)
	for _, v := range im.Pix[c] {
		if v >= 0 && v > max {
			max = v
		}
	}
	if math.IsInf(max, -1) {
		return 0
	}
	return max
}

// Max is the largest sample across all channels.
func (im *Image) Max() float64 {
	max := math.Inf(-1)
	for c := range im.Pix {
		if m := im.ChannelMax(c); m > max {
			max = m
		}
	}
	return max
}

// BitDepth guesses the encoding depth from the sample range: 0 means
// the image is already normalised to [0,1].
func (im *Image) BitDepth() int {
	max := im.Max()
	switch {
	case max <= 1:
		return 0
	case max < 1<<8:
		return 8
	case max < 1<<10:
		return 10
	case max <= 1<<12:
		return 12
	case max <= 1<<14:
		return 14
	default:
		return 16
	}
}

// FullScale is the saturation value implied by the bit depth.
func (im *Image) FullScale() float64 {
	bits := im.BitDepth()
	if bits == 0 {
		return 1.0
	}
	return math.Pow(2, float64(bits))
}

// FromGray expands a single-channel grid into an n-channel grey image.
func FromGray(plane []float64, w, h, chans int) *Image {
	out := New(w, h, chans)
	for c := 0; c < chans; c++ {
		copy(out.Pix[c], plane)
	}
	return out
}
