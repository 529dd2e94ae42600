package chart

import (
	"fmt"

	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/cmath"
)

// DefaultWindow is the side length, in pixels, of the square sampling
// window around each patch centre.
const DefaultWindow = 40

// State tracks an instance through detection and sampling.
type State int

const (
	Undetected State = iota
	Matched
	Sampled
)

func (s State) String() string {
	switch s {
	case Matched:
		return "matched"
	case Sampled:
		return "sampled"
	}
	return "undetected"
}

// Instance is one located occurrence of a chart in a photograph. The
// homography maps reference-image coordinates into photograph
// coordinates, so an instance can be re-sampled against any buffer of
// the same geometry without re-detection.
type Instance struct {
	Layout  Layout
	H       cmath.Homography
	State   State
	Window  int
	Samples map[string][3]float64
}

// InstanceFromCorners registers a chart from four caller-identified
// corner points in the photograph, skipping feature detection. Corner
// order matches Layout.Corners.
func InstanceFromCorners(l Layout, imageCorners [4]cmath.Point) (*Instance, error) {
	h, err := cmath.EstimateHomography(l.Corners[:], imageCorners[:])
	if err != nil {
		return nil, fmt.Errorf("chart: registering %s from corners: %v", l.Name, err)
	}
	if h.IsDegenerate() {
		return nil, fmt.Errorf("chart: corner registration for %s is degenerate", l.Name)
	}
	return &Instance{Layout: l, H: h, State: Matched, Window: DefaultWindow}, nil
}

// PatchCentresInImage maps every canonical patch centre through the
// instance's homography into photograph coordinates.
func (in *Instance) PatchCentresInImage() map[string]cmath.Point {
	src := in.Layout.PatchCentres()
	dst := make(map[string]cmath.Point, len(src))
	for id, p := range src {
		dst[id] = in.H.ApplyToPoint(p)
	}
	return dst
}

// CornersInImage maps the layout's corner quadrilateral into
// photograph coordinates.
func (in *Instance) CornersInImage() [4]cmath.Point {
	var out [4]cmath.Point
	for i, p := range in.Layout.Corners {
		out[i] = in.H.ApplyToPoint(p)
	}
	return out
}

// SampleWindow averages a square window of the given side length
// around centre, per channel. A window that leaves the image is a
// caller error, reported rather than clamped.
func SampleWindow(img *cimg.Image, centre cmath.Point, window int) ([3]float64, error) {
	if window <= 0 {
		window = DefaultWindow
	}
	half := window / 2
	x0, y0 := int(centre.X)-half, int(centre.Y)-half
	x1, y1 := x0+window, y0+window
	if x0 < 0 || y0 < 0 || x1 > img.W || y1 > img.H {
		return [3]float64{}, fmt.Errorf("chart: %dpx window at (%.0f, %.0f) leaves the %dx%d image",
			window, centre.X, centre.Y, img.W, img.H)
	}
	var sum [3]float64
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			for c := 0; c < 3; c++ {
				sum[c] += img.Get(c, x, y)
			}
		}
	}
	n := float64(window * window)
	return [3]float64{sum[0] / n, sum[1] / n, sum[2] / n}, nil
}

// SamplePatches samples every patch of the chart from img and stores
// the averages on the instance. Requires a registered homography; any
// patch window leaving the image fails the whole call.
func (in *Instance) SamplePatches(img *cimg.Image, window int) (map[string][3]float64, error) {
	if in.State == Undetected {
		return nil, fmt.Errorf("chart: sampling %s before registration", in.Layout.Name)
	}
	if window <= 0 {
		window = in.Window
	}
	centres := in.PatchCentresInImage()
	samples := make(map[string][3]float64, len(centres))
	for _, id := range in.Layout.PatchIDs() {
		v, err := SampleWindow(img, centres[id], window)
		if err != nil {
			return nil, fmt.Errorf("chart: patch %s of %s: %v", id, in.Layout.Name, err)
		}
		samples[id] = v
	}
	in.Samples = samples
	in.Window = window
	in.State = Sampled
	return samples, nil
}
