package cmath

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/mat"
)

// A Homography is a planar projective transform, used to map the
// canonical coordinates of a reference chart onto wherever the chart
// ended up in a photograph. Stored row-major, h[8] is the projective
// scale term.
type Homography [9]float64

// Point is a sub-pixel image location.
type Point struct {
	X, Y float64
}

func (h Homography) ApplyToPoint(p Point) Point {
	w := h[6]*p.X + h[7]*p.Y + h[8]
	return Point{
		X: (h[0]*p.X + h[1]*p.Y + h[2]) / w,
		Y: (h[3]*p.X + h[4]*p.Y + h[5]) / w,
	}
}

func (h Homography) Mat3() Mat3 {
	var m Mat3
	copy(m[:], h[:])
	return m
}

// IsDegenerate flags transforms that collapse the plane (or nearly
// do). The determinant of a healthy chart-to-photo homography stays
// well away from zero once normalised.
func (h Homography) IsDegenerate() bool {
	n := h[8]
	if n == 0 || math.IsNaN(n) {
		return true
	}
	m := h.Mat3()
	for i := range m {
		m[i] /= n
	}
	d := m.Det()
	return math.IsNaN(d) || math.Abs(d) < 1e-8
}

// EstimateHomography computes the direct linear transform mapping
// src[i] -> dst[i]. Needs at least 4 correspondences; with exactly 4
// (e.g. chart corners) the solution is exact. Points are Hartley
// normalised first, otherwise pixel-scale coordinates make the SVD
// ill-conditioned.
func EstimateHomography(src, dst []Point) (Homography, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return Homography{}, fmt.Errorf("homography: need >=4 point pairs, got %d/%d", len(src), len(dst))
	}

	tSrc, nSrc := normalisePoints(src)
	tDst, nDst := normalisePoints(dst)

	a := mat.NewDense(2*len(src), 9, nil)
	for i := range nSrc {
		x, y := nSrc[i].X, nSrc[i].Y
		u, v := nDst[i].X, nDst[i].Y
		a.SetRow(2*i, []float64{-x, -y, -1, 0, 0, 0, u * x, u * y, u})
		a.SetRow(2*i+1, []float64{0, 0, 0, -x, -y, -1, v * x, v * y, v})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return Homography{}, fmt.Errorf("homography: SVD failed on %d correspondences", len(src))
	}
	var v mat.Dense
	svd.VTo(&v)

	// Null vector = right singular vector for the smallest singular value.
	var hn Mat3
	for i := 0; i < 9; i++ {
		hn[i] = v.At(i, 8)
	}

	// Undo the normalisation: H = Tdst⁻¹ · Hn · Tsrc
	m := tDst.Inverse().Mult(hn).Mult(tSrc)
	if m[8] == 0 {
		return Homography{}, fmt.Errorf("homography: degenerate solution")
	}
	var h Homography
	for i := range m {
		h[i] = m[i] / m[8]
	}
	if h.IsDegenerate() {
		return Homography{}, fmt.Errorf("homography: degenerate solution")
	}
	return h, nil
}

// normalisePoints translates the centroid to the origin and scales so
// the mean distance from it is √2 (Hartley's preconditioning). Returns
// the transform it used, as a Mat3 acting on homogeneous points.
func normalisePoints(pts []Point) (Mat3, []Point) {
	var cx, cy float64
	for _, p := range pts {
		cx += p.X
		cy += p.Y
	}
	cx /= float64(len(pts))
	cy /= float64(len(pts))

	var meanDist float64
	for _, p := range pts {
		meanDist += math.Hypot(p.X-cx, p.Y-cy)
	}
	meanDist /= float64(len(pts))
	s := 1.0
	if meanDist > 0 {
		s = math.Sqrt2 / meanDist
	}

	t := Mat3{
		s, 0, -s * cx,
		0, s, -s * cy,
		0, 0, 1,
	}
	out := make([]Point, len(pts))
	for i, p := range pts {
		out[i] = Point{X: s * (p.X - cx), Y: s * (p.Y - cy)}
	}
	return t, out
}

// EstimateHomographyRANSAC fits a homography to noisy correspondences,
// of which some fraction are expected to be outright wrong (mismatched
// features). A correspondence is an inlier when its reprojection lands
// within threshold pixels. The random source is fixed-seed so a given
// input always yields the same transform.
func EstimateHomographyRANSAC(src, dst []Point, threshold float64, iters int) (Homography, []int, error) {
	if len(src) != len(dst) || len(src) < 4 {
		return Homography{}, nil, fmt.Errorf("homography: need >=4 point pairs, got %d/%d", len(src), len(dst))
	}
	if threshold <= 0 {
		threshold = 5.0
	}
	if iters <= 0 {
		iters = 2000
	}

	rng := rand.New(rand.NewSource(1))

	var bestInliers []int
	for it := 0; it < iters; it++ {
		idx := sampleFour(rng, len(src))
		s4 := []Point{src[idx[0]], src[idx[1]], src[idx[2]], src[idx[3]]}
		d4 := []Point{dst[idx[0]], dst[idx[1]], dst[idx[2]], dst[idx[3]]}
		if quadArea(s4) < 1e-6 || quadArea(d4) < 1e-6 {
			continue // collinear sample, no unique homography
		}

		h, err := EstimateHomography(s4, d4)
		if err != nil {
			continue
		}

		inliers := []int{}
		for i := range src {
			q := h.ApplyToPoint(src[i])
			if math.Hypot(q.X-dst[i].X, q.Y-dst[i].Y) <= threshold {
				inliers = append(inliers, i)
			}
		}
		if len(inliers) > len(bestInliers) {
			bestInliers = inliers
		}
	}

	if len(bestInliers) < 4 {
		return Homography{}, nil, fmt.Errorf("homography: only %d inliers of %d correspondences", len(bestInliers), len(src))
	}

	// Final least-squares fit over all inliers.
	s := make([]Point, len(bestInliers))
	d := make([]Point, len(bestInliers))
	for i, j := range bestInliers {
		s[i], d[i] = src[j], dst[j]
	}
	h, err := EstimateHomography(s, d)
	if err != nil {
		return Homography{}, nil, err
	}
	return h, bestInliers, nil
}

func sampleFour(rng *rand.Rand, n int) [4]int {
	var idx [4]int
	for i := 0; i < 4; {
		c := rng.Intn(n)
		dup := false
		for j := 0; j < i; j++ {
			if idx[j] == c {
				dup = true
				break
			}
		}
		if !dup {
			idx[i] = c
			i++
		}
	}
	return idx
}

// quadArea is the shoelace area of 4 points; (near-)zero means the
// sample is collinear.
func quadArea(p []Point) float64 {
	a := 0.0
	for i := 0; i < len(p); i++ {
		j := (i + 1) % len(p)
		a += p[i].X*p[j].Y - p[j].X*p[i].Y
	}
	return math.Abs(a) / 2
}
