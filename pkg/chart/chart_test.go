package chart

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/cmath"
)

func testLayout() Layout {
	return Layout{
		Name: "TEST", Rows: 4, Cols: 6,
		Corners: [4]cmath.Point{{X: 0, Y: 0}, {X: 600, Y: 0}, {X: 600, Y: 400}, {X: 0, Y: 400}},
	}
}

func TestCatalogueLookup(t *testing.T) {
	cat, err := NewCatalogue("", "")
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	l, err := cat.Lookup("CCC")
	if err != nil {
		t.Fatalf("lookup CCC: %v", err)
	}
	if l.Rows != 4 || l.Cols != 6 {
		t.Errorf("CCC grid = %dx%d, want 4x6", l.Rows, l.Cols)
	}
	if _, err := cat.Lookup("NOPE"); !errors.Is(err, ErrUnknownChart) {
		t.Errorf("expected ErrUnknownChart, got %v", err)
	}
	if len(cat.Names()) < 7 {
		t.Errorf("catalogue holds %d charts, want at least the built-ins", len(cat.Names()))
	}
}

func TestCatalogueOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "charts.yaml")
	body := `charts:
  - name: CUSTOM
    rows: 2
    cols: 3
    ref_image: custom.jpg
    corners:
      - [0, 0]
      - [30, 0]
      - [30, 20]
      - [0, 20]
`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}
	cat, err := NewCatalogue("", path)
	if err != nil {
		t.Fatalf("catalogue with overrides: %v", err)
	}
	l, err := cat.Lookup("CUSTOM")
	if err != nil {
		t.Fatalf("lookup CUSTOM: %v", err)
	}
	if l.Rows != 2 || l.Cols != 3 || l.Corners[2].X != 30 {
		t.Errorf("override layout wrong: %+v", l)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	os.WriteFile(bad, []byte("charts:\n  - name: X\n    rows: 0\n"), 0644)
	if _, err := NewCatalogue("", bad); err == nil {
		t.Errorf("expected error for malformed override")
	}
}

func TestEnoughMatches(t *testing.T) {
	cases := []struct {
		good, total int
		fraction    float64
		want        bool
	}{
		{good: 2, total: 30, fraction: 1.0 / 15.0, want: true},  // 2 >= 30/15
		{good: 1, total: 30, fraction: 1.0 / 15.0, want: false}, // 1 < 2
		{good: 4, total: 0, fraction: 1.0 / 15.0, want: false},  // no candidates at all
		{good: 3, total: 10, fraction: 1.0 / 15.0, want: false}, // clears the fraction, not the 4-point floor
		{good: 4, total: 60, fraction: 1.0 / 15.0, want: true},  // exactly at the fraction
		{good: 4, total: 76, fraction: 1.0 / 15.0, want: false}, // 76/15 truncates to 5
		{good: 100, total: 120, fraction: 1.0 / 15.0, want: true},
		{good: 5, total: 100, fraction: 0.8, want: false}, // stricter fraction
	}
	for _, tc := range cases {
		if got := enoughMatches(tc.good, tc.total, tc.fraction); got != tc.want {
			t.Errorf("enoughMatches(%d, %d, %g) = %v, want %v",
				tc.good, tc.total, tc.fraction, got, tc.want)
		}
	}
}

func TestDetectUnknownChart(t *testing.T) {
	cat, err := NewCatalogue("", "")
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	img := cimg.New(8, 8, 3)
	if _, err := Detect(img, "NOPE", cat, DefaultDetectConfig()); !errors.Is(err, ErrUnknownChart) {
		t.Errorf("expected ErrUnknownChart, got %v", err)
	}
}

func TestPatchIDsAndCentres(t *testing.T) {
	l := testLayout()
	ids := l.PatchIDs()
	if len(ids) != 24 {
		t.Fatalf("got %d patch ids, want 24", len(ids))
	}
	if ids[0] != "A1" || ids[5] != "A6" || ids[23] != "D6" {
		t.Errorf("id ordering wrong: %v", ids)
	}
	centres := l.PatchCentres()
	// Axis-aligned rectangle, so cell centres land on the regular grid.
	a1 := centres["A1"]
	if math.Abs(a1.X-50) > 1e-9 || math.Abs(a1.Y-50) > 1e-9 {
		t.Errorf("A1 centre = %+v, want (50, 50)", a1)
	}
	d6 := centres["D6"]
	if math.Abs(d6.X-550) > 1e-9 || math.Abs(d6.Y-350) > 1e-9 {
		t.Errorf("D6 centre = %+v, want (550, 350)", d6)
	}
}

func TestInstanceFromCorners(t *testing.T) {
	l := testLayout()
	// Chart photographed at half scale, offset by (100, 50).
	img := [4]cmath.Point{{X: 100, Y: 50}, {X: 400, Y: 50}, {X: 400, Y: 250}, {X: 100, Y: 250}}
	in, err := InstanceFromCorners(l, img)
	if err != nil {
		t.Fatalf("from corners: %v", err)
	}
	if in.State != Matched {
		t.Errorf("state = %s, want matched", in.State)
	}
	got := in.CornersInImage()
	for i := range img {
		if math.Abs(got[i].X-img[i].X) > 1e-6 || math.Abs(got[i].Y-img[i].Y) > 1e-6 {
			t.Errorf("corner %d reprojected to %+v, want %+v", i, got[i], img[i])
		}
	}
	a1 := in.PatchCentresInImage()["A1"]
	if math.Abs(a1.X-125) > 1e-6 || math.Abs(a1.Y-75) > 1e-6 {
		t.Errorf("A1 in image = %+v, want (125, 75)", a1)
	}

	degenerate := [4]cmath.Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	if _, err := InstanceFromCorners(l, degenerate); err == nil {
		t.Errorf("expected error for collinear corners")
	}
}

func TestSampleWindow(t *testing.T) {
	img := cimg.New(100, 100, 3)
	for c := 0; c < 3; c++ {
		for i := range img.Pix[c] {
			img.Pix[c][i] = float64(c + 1)
		}
	}
	v, err := SampleWindow(img, cmath.Point{X: 50, Y: 50}, 10)
	if err != nil {
		t.Fatalf("sample: %v", err)
	}
	if v[0] != 1 || v[1] != 2 || v[2] != 3 {
		t.Errorf("sample = %v, want (1, 2, 3)", v)
	}
	if _, err := SampleWindow(img, cmath.Point{X: 2, Y: 50}, 10); err == nil {
		t.Errorf("expected error for window leaving the image")
	}
	if _, err := SampleWindow(img, cmath.Point{X: 98, Y: 98}, 10); err == nil {
		t.Errorf("expected error for window past the far edge")
	}
}

func TestSamplePatches(t *testing.T) {
	l := testLayout()
	img := cimg.New(600, 400, 3)
	for c := 0; c < 3; c++ {
		for i := range img.Pix[c] {
			img.Pix[c][i] = 0.25 * float64(c+1)
		}
	}
	in, err := InstanceFromCorners(l, l.Corners)
	if err != nil {
		t.Fatalf("from corners: %v", err)
	}
	samples, err := in.SamplePatches(img, 20)
	if err != nil {
		t.Fatalf("sample patches: %v", err)
	}
	if len(samples) != 24 {
		t.Errorf("got %d samples, want 24", len(samples))
	}
	if in.State != Sampled {
		t.Errorf("state = %s, want sampled", in.State)
	}
	if v := samples["B3"]; math.Abs(v[1]-0.5) > 1e-12 {
		t.Errorf("B3 green = %g, want 0.5", v[1])
	}

	unregistered := &Instance{Layout: l}
	if _, err := unregistered.SamplePatches(img, 20); err == nil {
		t.Errorf("expected error sampling before registration")
	}
}

func TestClassicReferenceXYZ(t *testing.T) {
	refs := ClassicReferenceXYZ()
	if len(refs) != 24 {
		t.Fatalf("got %d reference patches, want 24", len(refs))
	}
	white := refs["D1"]
	if white.Y < 0.85 || white.Y > 1.0 {
		t.Errorf("white patch luminance = %g, want near 0.9", white.Y)
	}
	black := refs["D6"]
	if black.Y > 0.05 {
		t.Errorf("black patch luminance = %g, want small", black.Y)
	}
}

func TestNeutralPatchID(t *testing.T) {
	if id, err := NeutralPatchID(Layout{Name: "CCC"}); err != nil || id != "D1" {
		t.Errorf("CCC neutral = %q, %v", id, err)
	}
	if _, err := NeutralPatchID(Layout{Name: "CCDSG"}); err == nil {
		t.Errorf("expected error for chart without known neutral")
	}
}
