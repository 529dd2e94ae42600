package cmath

import (
	"math"
	"math/rand"
	"testing"
)

// a mildly perspective ground-truth map for the tests.
var truthH = Homography{
	0.9, 0.1, 20,
	-0.05, 1.1, 10,
	0.0001, 0.0002, 1,
}

func projectAll(h Homography, pts []Point) []Point {
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = h.ApplyToPoint(p)
	}
	return out
}

func gridPoints(n int) []Point {
	pts := []Point{}
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			pts = append(pts, Point{X: float64(j) * 37, Y: float64(i) * 29})
		}
	}
	return pts
}

func maxReprojError(h Homography, src, dst []Point) float64 {
	worst := 0.0
	for i := range src {
		p := h.ApplyToPoint(src[i])
		d := math.Hypot(p.X-dst[i].X, p.Y-dst[i].Y)
		if d > worst {
			worst = d
		}
	}
	return worst
}

func TestEstimateHomographyExact(t *testing.T) {
	src := gridPoints(3)
	dst := projectAll(truthH, src)
	h, err := EstimateHomography(src, dst)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if e := maxReprojError(h, src, dst); e > 1e-6 {
		t.Errorf("reprojection error %g too large", e)
	}
}

func TestEstimateHomographyFourPoints(t *testing.T) {
	src := []Point{{X: 0, Y: 0}, {X: 100, Y: 0}, {X: 100, Y: 80}, {X: 0, Y: 80}}
	dst := projectAll(truthH, src)
	h, err := EstimateHomography(src, dst)
	if err != nil {
		t.Fatalf("estimate: %v", err)
	}
	if e := maxReprojError(h, src, dst); e > 1e-6 {
		t.Errorf("reprojection error %g too large", e)
	}
}

func TestEstimateHomographyRejectsDegenerate(t *testing.T) {
	src := []Point{{X: 0, Y: 0}, {X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	dst := src
	h, err := EstimateHomography(src, dst)
	if err == nil && !h.IsDegenerate() {
		t.Errorf("expected degenerate estimate from collinear points")
	}
}

func TestRANSACWithOutliers(t *testing.T) {
	src := gridPoints(6)
	dst := projectAll(truthH, src)
	// Corrupt a quarter of the correspondences.
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < len(dst)/4; i++ {
		k := rng.Intn(len(dst))
		dst[k].X += 200 + rng.Float64()*300
		dst[k].Y -= 150 + rng.Float64()*300
	}
	h, inliers, err := EstimateHomographyRANSAC(src, dst, 5.0, 2000)
	if err != nil {
		t.Fatalf("ransac: %v", err)
	}
	if len(inliers) < len(src)/2 {
		t.Errorf("only %d of %d inliers", len(inliers), len(src))
	}
	// Check against the uncorrupted truth at fresh points.
	probe := []Point{{X: 11, Y: 13}, {X: 130, Y: 90}, {X: 55, Y: 140}}
	want := projectAll(truthH, probe)
	if e := maxReprojError(h, probe, want); e > 1.0 {
		t.Errorf("reprojection error %g against ground truth", e)
	}
}

func TestRANSACDeterministic(t *testing.T) {
	src := gridPoints(4)
	dst := projectAll(truthH, src)
	dst[3].X += 400
	h1, _, err1 := EstimateHomographyRANSAC(src, dst, 5.0, 500)
	h2, _, err2 := EstimateHomographyRANSAC(src, dst, 5.0, 500)
	if err1 != nil || err2 != nil {
		t.Fatalf("ransac: %v %v", err1, err2)
	}
	for i := range h1 {
		if h1[i] != h2[i] {
			t.Fatalf("two identical runs disagreed at coefficient %d", i)
		}
	}
}

func TestRANSACTooFewPoints(t *testing.T) {
	src := []Point{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}}
	if _, _, err := EstimateHomographyRANSAC(src, src, 5.0, 100); err == nil {
		t.Errorf("expected error for fewer than 4 correspondences")
	}
}

func TestHomographyApplyToPoint(t *testing.T) {
	// Pure translation.
	h := Homography{1, 0, 5, 0, 1, -3, 0, 0, 1}
	p := h.ApplyToPoint(Point{X: 10, Y: 10})
	if p.X != 15 || p.Y != 7 {
		t.Errorf("translated point = %+v, want (15, 7)", p)
	}
}
