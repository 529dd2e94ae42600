package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"log"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/mdouchement/hdr/codec/rgbe"
	"github.com/mdouchement/hdr/hdrcolor"
	"golang.org/x/image/tiff"

	"github.com/asandstrom/camcal/pkg/cimg"
)

// ToImage renders the float buffer as 16-bit RGBA, scaling from its
// full-scale value.
func ToImage(img *cimg.Image) *image.RGBA64 {
	full := img.FullScale()
	out := image.NewRGBA64(img.Bounds())
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			v := img.Vec3At(x, y)
			out.SetRGBA64(x, y, color.RGBA64{
				R: to16(v[0], full),
				G: to16(v[1], full),
				B: to16(v[2], full),
				A: 0xffff,
			})
		}
	}
	return out
}

func to16(v, full float64) uint16 {
	if v < 0 {
		return 0
	}
	return uint16(math.Min(v/full, 1) * 65535)
}

// Save writes the buffer as PNG or TIFF, 16 bits per channel, picking
// the codec from the extension.
func Save(img *cimg.Image, filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w img '%s': %v", filename, err)
	}
	defer f.Close()

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".png":
		err = png.Encode(f, ToImage(img))
	case ".tif", ".tiff":
		err = tiff.Encode(f, ToImage(img), &tiff.Options{Compression: tiff.Deflate})
	default:
		return fmt.Errorf("saving '%s': unsupported extension", filename)
	}
	if err != nil {
		return fmt.Errorf("encoding '%s': %v", filename, err)
	}
	return nil
}

// hdrImage adapts a float buffer to the hdr.Image interface so the
// RGBE codec can walk it.
type hdrImage struct {
	img *cimg.Image
}

func (h hdrImage) ColorModel() color.Model { return hdrcolor.RGBModel }
func (h hdrImage) Bounds() image.Rectangle { return h.img.Bounds() }
func (h hdrImage) Size() int               { return h.img.W * h.img.H }

func (h hdrImage) HDRAt(x, y int) hdrcolor.Color {
	v := h.img.Vec3At(x, y)
	return hdrcolor.RGB{R: v[0], G: v[1], B: v[2]}
}

func (h hdrImage) At(x, y int) color.Color { return h.HDRAt(x, y) }

// WriteToHDR outputs a Radiance RGBE image, preserving the buffer's
// linear values. You can load this into HDR tools directly.
func WriteToHDR(img *cimg.Image, filename string) error {
	writer, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("open+w '%s': %v", filename, err)
	}
	defer writer.Close()
	if err := rgbe.Encode(writer, hdrImage{img: img}); err != nil {
		log.Printf("encoding RGBE file '%s': %v", filename, err)
		return err
	}
	return nil
}
