// Package sensor reconstructs a linear multi-channel image from the
// single-channel mosaiced buffer a RAW decoder hands us. The
// reconstruction is the simplest channel-averaging kind: one output
// value per CFA tile, replicated back up to full resolution. No
// edge-aware interpolation.
package sensor

import (
	"fmt"
	"image"
	"math"
	"strings"

	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/cmath"
)

// Metadata carries everything the decoding library tells us about one
// exposure. Field names follow the usual libraw vocabulary.
type Metadata struct {
	CameraMake  string
	CameraModel string

	BlackLevels [4]float64 // per channel, in Descriptor order
	WhiteLevel  float64    // saturation level; 0 means unknown

	// Descriptor names the sensor channels, e.g. "RGBG"; Pattern is the
	// repeating CFA tile, each cell an index into Descriptor.
	Descriptor string
	Pattern    Pattern

	// CamXYZ is the embedded camera-to-XYZ matrix, 3 or 4 rows of 3.
	CamXYZ [][3]float64

	AsShotMultipliers   [4]float64
	DaylightMultipliers [4]float64

	RawWidth, RawHeight         int
	VisibleWidth, VisibleHeight int
}

// FullScale returns the sensor's saturation value, defaulting to a
// 14-bit full scale when the decoder did not report one.
func (m Metadata) FullScale() float64 {
	if m.WhiteLevel > 0 {
		return m.WhiteLevel
	}
	return float64(int(1)<<14 - 1)
}

// Pattern is the repeating CFA tile; Index[r][c] selects a channel
// from the owning Metadata's Descriptor.
type Pattern struct {
	Rows, Cols int
	Index      [][]int
}

// RGGB is the most common 2x2 Bayer tile, for a Descriptor of "RGBG".
func RGGB() Pattern {
	return Pattern{Rows: 2, Cols: 2, Index: [][]int{{0, 1}, {3, 2}}}
}

// site is one cell of the CFA tile.
type site struct{ dy, dx int }

// channelSites groups the tile's cells by output colour. The two green
// sites of an RGBG sensor both land in the 'G' bucket, which is what
// makes the later averaging step work.
func channelSites(descriptor string, pat Pattern) (map[byte][]site, error) {
	if pat.Rows <= 0 || pat.Cols <= 0 || len(pat.Index) != pat.Rows {
		return nil, fmt.Errorf("sensor: malformed %dx%d filter pattern", pat.Rows, pat.Cols)
	}
	desc := strings.ToUpper(descriptor)
	sites := map[byte][]site{}
	for y, row := range pat.Index {
		if len(row) != pat.Cols {
			return nil, fmt.Errorf("sensor: filter pattern row %d has %d cells, want %d", y, len(row), pat.Cols)
		}
		for x, idx := range row {
			if idx < 0 || idx >= len(desc) {
				return nil, fmt.Errorf("sensor: pattern index %d at (%d,%d) outside descriptor %q", idx, y, x, descriptor)
			}
			c := desc[idx]
			sites[c] = append(sites[c], site{dy: y, dx: x})
		}
	}
	for _, c := range []byte{'R', 'G', 'B'} {
		if len(sites[c]) == 0 {
			return nil, fmt.Errorf("sensor: descriptor %q has no %c sites in pattern", descriptor, c)
		}
	}
	return sites, nil
}

// Reconstruct demosaics the raw mosaic into a linear RGB image:
// channel-average within each tile, nearest-neighbour upsample back to
// mosaic resolution, symmetric crop to the visible area, then
// black-level subtraction clamped to [0, full scale].
func Reconstruct(raw *cmath.FloatGrid, meta Metadata) (*cimg.Image, error) {
	w, h := raw.Dx(), raw.Dy()
	if meta.VisibleWidth > w || meta.VisibleHeight > h {
		return nil, fmt.Errorf("sensor: visible area %dx%d exceeds raw buffer %dx%d",
			meta.VisibleWidth, meta.VisibleHeight, w, h)
	}
	sites, err := channelSites(meta.Descriptor, meta.Pattern)
	if err != nil {
		return nil, err
	}
	th, tw := meta.Pattern.Rows, meta.Pattern.Cols
	halfW, halfH := w/tw, h/th

	order := []byte{'R', 'G', 'B'}
	half := cimg.New(halfW, halfH, 3)
	for ty := 0; ty < halfH; ty++ {
		for tx := 0; tx < halfW; tx++ {
			for c, name := range order {
				sum := 0.0
				for _, s := range sites[name] {
					sum += raw.Get(tx*tw+s.dx, ty*th+s.dy)
				}
				half.Set(c, tx, ty, sum/float64(len(sites[name])))
			}
		}
	}

	full := cimg.New(halfW*tw, halfH*th, 3)
	cimg.ParallelRows(full.H, func(y int) {
		for x := 0; x < full.W; x++ {
			for c := 0; c < 3; c++ {
				full.Set(c, x, y, half.Get(c, x/tw, y/th))
			}
		}
	})

	cropped, err := cropVisible(full, meta)
	if err != nil {
		return nil, err
	}
	subtractBlack(cropped, meta, order)
	return cropped, nil
}

// ReconstructMultiChannel is the no-op path for sensors that already
// deliver a full-colour buffer: crop and black-subtract only, channel
// count preserved.
func ReconstructMultiChannel(img *cimg.Image, meta Metadata) (*cimg.Image, error) {
	if meta.VisibleWidth > img.W || meta.VisibleHeight > img.H {
		return nil, fmt.Errorf("sensor: visible area %dx%d exceeds buffer %dx%d",
			meta.VisibleWidth, meta.VisibleHeight, img.W, img.H)
	}
	cropped, err := cropVisible(img, meta)
	if err != nil {
		return nil, err
	}
	scale := meta.FullScale()
	for c := 0; c < cropped.Chans(); c++ {
		black := meta.BlackLevels[c%4]
		plane := cropped.Pix[c]
		for i, v := range plane {
			plane[i] = math.Min(math.Max(v-black, 0), scale)
		}
	}
	return cropped, nil
}

func cropVisible(img *cimg.Image, meta Metadata) (*cimg.Image, error) {
	vw, vh := meta.VisibleWidth, meta.VisibleHeight
	if vw <= 0 || vw > img.W {
		vw = img.W
	}
	if vh <= 0 || vh > img.H {
		vh = img.H
	}
	ox, oy := (img.W-vw)/2, (img.H-vh)/2
	return img.Crop(image.Rect(ox, oy, ox+vw, oy+vh))
}

// subtractBlack removes the per-channel fixed offset. The black level
// is declared per Descriptor channel; green gets the mean of its two
// sites' levels so RGBG sensors behave sensibly.
func subtractBlack(img *cimg.Image, meta Metadata, order []byte) {
	desc := strings.ToUpper(meta.Descriptor)
	scale := meta.FullScale()
	for c, name := range order {
		black, n := 0.0, 0
		for i := 0; i < len(desc) && i < len(meta.BlackLevels); i++ {
			if desc[i] == name {
				black += meta.BlackLevels[i]
				n++
			}
		}
		if n > 0 {
			black /= float64(n)
		}
		plane := img.Pix[c]
		for i, v := range plane {
			plane[i] = math.Min(math.Max(v-black, 0), scale)
		}
	}
}
