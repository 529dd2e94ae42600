package imageio

import (
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/asandstrom/camcal/pkg/cimg"
)

func TestSaveLoadPNG(t *testing.T) {
	src := cimg.New(4, 3, 3)
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			src.SetVec3(x, y, [3]float64{
				float64(x) / 4,
				float64(y) / 3,
				0.5,
			})
		}
	}
	path := filepath.Join(t.TempDir(), "out.png")
	if err := Save(src, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	back, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if back.W != 4 || back.H != 3 {
		t.Fatalf("loaded %dx%d, want 4x3", back.W, back.H)
	}
	// Saved at 16 bits, so reloaded values land on the 0..65535 scale.
	for y := 0; y < src.H; y++ {
		for x := 0; x < src.W; x++ {
			want := src.Get(2, x, y)
			got := back.Get(2, x, y) / 65535
			if math.Abs(got-want) > 1.0/65535 {
				t.Fatalf("(%d,%d) = %g, want %g", x, y, got, want)
			}
		}
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.bmp")
	os.WriteFile(path, []byte("not an image"), 0644)
	if _, err := Load(path); err == nil {
		t.Errorf("expected error for unsupported extension")
	}
	if err := Save(cimg.New(1, 1, 3), path); err == nil {
		t.Errorf("expected error saving unsupported extension")
	}
}

func TestFromImageEightBit(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 2, 2))
	src.SetNRGBA(0, 0, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	img := FromImage(src)
	v := img.Vec3At(0, 0)
	if v != [3]float64{10, 20, 30} {
		t.Errorf("8-bit conversion = %v, want (10, 20, 30)", v)
	}
}

func TestFromImageSixteenBit(t *testing.T) {
	src := image.NewRGBA64(image.Rect(0, 0, 1, 1))
	src.SetRGBA64(0, 0, color.RGBA64{R: 1000, G: 2000, B: 3000, A: 0xffff})
	img := FromImage(src)
	v := img.Vec3At(0, 0)
	if v != [3]float64{1000, 2000, 3000} {
		t.Errorf("16-bit conversion = %v, want (1000, 2000, 3000)", v)
	}
}

func TestWriteToHDR(t *testing.T) {
	img := cimg.New(2, 2, 3)
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			img.SetVec3(x, y, [3]float64{0.2, 0.4, 0.8})
		}
	}
	path := filepath.Join(t.TempDir(), "out.hdr")
	if err := WriteToHDR(img, path); err != nil {
		t.Fatalf("write hdr: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		t.Errorf("hdr file missing or empty: %v", err)
	}
}
