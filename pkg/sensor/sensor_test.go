package sensor

import (
	"math"
	"testing"

	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/cmath"
)

func mustGrid(t *testing.T, w, h int, values []float64) *cmath.FloatGrid {
	t.Helper()
	g, err := cmath.NewFloatGridFromValues(w, h, values)
	if err != nil {
		t.Fatalf("grid: %v", err)
	}
	return g
}

func rggbMeta(w, h int) Metadata {
	return Metadata{
		Descriptor:    "RGBG",
		Pattern:       RGGB(),
		WhiteLevel:    16383,
		VisibleWidth:  w,
		VisibleHeight: h,
	}
}

func TestReconstructRGGB(t *testing.T) {
	// Two distinct 2x2 tiles, repeated: values chosen so every channel
	// of every tile is easy to predict.
	raw := mustGrid(t, 4, 4, []float64{
		100, 40, 200, 80, // R G | R G
		60, 10, 120, 20, // G B | G B
		100, 40, 200, 80,
		60, 10, 120, 20,
	})
	img, err := Reconstruct(raw, rggbMeta(4, 4))
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if img.W != 4 || img.H != 4 || img.Chans() != 3 {
		t.Fatalf("got %dx%dx%d, want 4x4x3", img.W, img.H, img.Chans())
	}
	// First tile: R=100, G=(40+60)/2=50, B=10; replicated across the
	// 2x2 block it came from.
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			if r := img.Get(0, x, y); r != 100 {
				t.Errorf("R at (%d,%d) = %g, want 100", x, y, r)
			}
			if g := img.Get(1, x, y); g != 50 {
				t.Errorf("G at (%d,%d) = %g, want 50", x, y, g)
			}
			if b := img.Get(2, x, y); b != 10 {
				t.Errorf("B at (%d,%d) = %g, want 10", x, y, b)
			}
		}
	}
	// Second tile column: R=200, G=(80+120)/2=100, B=20.
	if r := img.Get(0, 2, 0); r != 200 {
		t.Errorf("R at (2,0) = %g, want 200", r)
	}
	if g := img.Get(1, 3, 1); g != 100 {
		t.Errorf("G at (3,1) = %g, want 100", g)
	}
	if b := img.Get(2, 2, 1); b != 20 {
		t.Errorf("B at (2,1) = %g, want 20", b)
	}
}

func TestReconstructBlackSubtract(t *testing.T) {
	raw := mustGrid(t, 2, 2, []float64{
		100, 40,
		60, 10,
	})
	meta := rggbMeta(2, 2)
	meta.BlackLevels = [4]float64{30, 30, 30, 30}
	img, err := Reconstruct(raw, meta)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if r := img.Get(0, 0, 0); r != 70 {
		t.Errorf("R = %g, want 70", r)
	}
	if g := img.Get(1, 0, 0); g != 20 {
		t.Errorf("G = %g, want 20", g)
	}
	// B = 10 - 30 clamps at zero.
	if b := img.Get(2, 0, 0); b != 0 {
		t.Errorf("B = %g, want 0 (clamped)", b)
	}
}

func TestReconstructVisibleCrop(t *testing.T) {
	raw := cmath.NewFloatGrid(8, 8)
	meta := rggbMeta(4, 4)
	img, err := Reconstruct(raw, meta)
	if err != nil {
		t.Fatalf("reconstruct: %v", err)
	}
	if img.W != 4 || img.H != 4 {
		t.Errorf("got %dx%d, want 4x4 visible crop", img.W, img.H)
	}
}

func TestReconstructErrors(t *testing.T) {
	raw := cmath.NewFloatGrid(4, 4)

	meta := rggbMeta(8, 8)
	if _, err := Reconstruct(raw, meta); err == nil {
		t.Errorf("expected error for visible area larger than raw buffer")
	}

	meta = rggbMeta(4, 4)
	meta.Pattern.Index = [][]int{{0, 9}, {3, 2}}
	if _, err := Reconstruct(raw, meta); err == nil {
		t.Errorf("expected error for pattern index outside descriptor")
	}

	meta = rggbMeta(4, 4)
	meta.Descriptor = "RGGG"
	if _, err := Reconstruct(raw, meta); err == nil {
		t.Errorf("expected error for descriptor with no blue site")
	}
}

func TestReconstructMultiChannelNoop(t *testing.T) {
	img := cimg.New(4, 4, 3)
	for c := 0; c < 3; c++ {
		for i := range img.Pix[c] {
			img.Pix[c][i] = float64(100 + c)
		}
	}
	meta := Metadata{
		BlackLevels:   [4]float64{10, 10, 10, 10},
		WhiteLevel:    255,
		VisibleWidth:  4,
		VisibleHeight: 4,
	}
	out, err := ReconstructMultiChannel(img, meta)
	if err != nil {
		t.Fatalf("reconstruct multichannel: %v", err)
	}
	if out.Chans() != 3 || out.W != 4 || out.H != 4 {
		t.Fatalf("dimensions changed: %s", out)
	}
	for c := 0; c < 3; c++ {
		want := float64(90 + c)
		if got := out.Get(c, 1, 1); math.Abs(got-want) > 1e-12 {
			t.Errorf("chan %d = %g, want %g", c, got, want)
		}
	}
}

func TestFullScaleDefault(t *testing.T) {
	var meta Metadata
	if fs := meta.FullScale(); fs != 16383 {
		t.Errorf("default full scale = %g, want 16383", fs)
	}
	meta.WhiteLevel = 4095
	if fs := meta.FullScale(); fs != 4095 {
		t.Errorf("full scale = %g, want 4095", fs)
	}
}
