// Package imageio is the codec edge of the pipeline: it moves pixel
// data between files and the float image buffers the core works on.
// The core packages never import it.
package imageio

import (
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/tiff"

	"github.com/asandstrom/camcal/pkg/cimg"
)

// ExifInfo carries the capture settings worth keeping around.
type ExifInfo struct {
	CameraMake   string
	CameraModel  string
	ISO          int64
	FNumber      float64
	ExposureTime string
}

// Load decodes a PNG, JPEG or TIFF photograph into a float image. The
// buffer keeps the file's numeric range (0..255 or 0..65535) so the
// downstream bit-depth heuristics work.
func Load(filename string) (*cimg.Image, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open+r img '%s': %v", filename, err)
	}
	defer f.Close()

	var img image.Image
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".tif", ".tiff":
		img, err = tiff.Decode(f)
	case ".png":
		img, err = png.Decode(f)
	case ".jpg", ".jpeg":
		img, err = jpeg.Decode(f)
	default:
		return nil, fmt.Errorf("loading '%s': unsupported extension", filename)
	}
	if err != nil {
		return nil, fmt.Errorf("decoding '%s': %v", filename, err)
	}
	return FromImage(img), nil
}

// LoadExif pulls capture metadata out of the file, if any. Files
// without EXIF are common, so a parse failure is an error the caller
// may choose to ignore.
func LoadExif(filename string) (ExifInfo, error) {
	info := ExifInfo{}
	f, err := os.Open(filename)
	if err != nil {
		return info, fmt.Errorf("open+r exif '%s': %v", filename, err)
	}
	defer f.Close()

	ex, err := exif.Decode(f)
	if err != nil {
		return info, fmt.Errorf("exif parsing '%s': %v", filename, err)
	}
	if tag, err := ex.Get(exif.Make); err == nil {
		info.CameraMake, _ = tag.StringVal()
	}
	if tag, err := ex.Get(exif.Model); err == nil {
		info.CameraModel, _ = tag.StringVal()
	}
	if tag, err := ex.Get(exif.ISOSpeedRatings); err == nil {
		info.ISO, _ = tag.Int64(0)
	}
	if tag, err := ex.Get(exif.FNumber); err == nil {
		if num, denom, err := tag.Rat2(0); err == nil && denom != 0 {
			info.FNumber = float64(num) / float64(denom)
		}
	}
	if tag, err := ex.Get(exif.ExposureTime); err == nil {
		info.ExposureTime = tag.String()
	}
	return info, nil
}

// FromImage flattens any decoded image into a 3-channel float buffer,
// preserving 16-bit precision where the source has it.
func FromImage(img image.Image) *cimg.Image {
	b := img.Bounds()
	out := cimg.New(b.Dx(), b.Dy(), 3)
	sixteenBit := false
	switch img.(type) {
	case *image.RGBA64, *image.NRGBA64, *image.Gray16:
		sixteenBit = true
	}
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			r, g, bb, _ := img.At(x, y).RGBA() // 16-bit values
			if sixteenBit {
				out.SetVec3(x-b.Min.X, y-b.Min.Y, [3]float64{float64(r), float64(g), float64(bb)})
			} else {
				out.SetVec3(x-b.Min.X, y-b.Min.Y, [3]float64{float64(r >> 8), float64(g >> 8), float64(bb >> 8)})
			}
		}
	}
	return out
}
