package chart

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"

	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/cmath"
)

// DetectConfig tunes the feature-matching stage.
type DetectConfig struct {
	// RatioThreshold accepts a correspondence only when the best match
	// is this much closer than the second best.
	RatioThreshold float64
	// MinMatchFraction is the fraction of all candidate matches that
	// must survive the ratio test for the chart to count as present.
	MinMatchFraction float64
	// RANSACThreshold is the inlier reprojection distance in pixels.
	RANSACThreshold float64
	// RANSACIterations bounds the consensus search.
	RANSACIterations int
}

// DefaultDetectConfig mirrors the thresholds the detector was tuned
// with.
func DefaultDetectConfig() DetectConfig {
	return DetectConfig{
		RatioThreshold:   0.8,
		MinMatchFraction: 1.0 / 15.0,
		RANSACThreshold:  5.0,
		RANSACIterations: 2000,
	}
}

// Detect locates chartName inside img. Returns ErrUnknownChart for
// identifiers outside the catalogue; ErrNotFound when the chart simply
// is not in the picture, which callers should treat as a normal
// outcome.
func Detect(img *cimg.Image, chartName string, cat *Catalogue, cfg DetectConfig) (*Instance, error) {
	layout, err := cat.Lookup(chartName)
	if err != nil {
		return nil, err
	}
	if cfg.RatioThreshold <= 0 {
		cfg = DefaultDetectConfig()
	}

	ref := gocv.IMRead(cat.refImagePath(layout), gocv.IMReadColor)
	if ref.Empty() {
		return nil, fmt.Errorf("chart: reading reference image %s", cat.refImagePath(layout))
	}
	defer ref.Close()

	sample, err := toMat(img)
	if err != nil {
		return nil, fmt.Errorf("chart: converting image for detection: %v", err)
	}
	defer sample.Close()

	src, dst, total, err := matchFeatures(ref, sample, cfg.RatioThreshold)
	if err != nil {
		return nil, err
	}
	if !enoughMatches(len(src), total, cfg.MinMatchFraction) {
		return nil, ErrNotFound
	}

	h, _, err := cmath.EstimateHomographyRANSAC(src, dst, cfg.RANSACThreshold, cfg.RANSACIterations)
	if err != nil || h.IsDegenerate() {
		return nil, ErrNotFound
	}
	return &Instance{Layout: layout, H: h, State: Matched, Window: DefaultWindow}, nil
}

// enoughMatches is the acceptance gate between feature matching and
// registration: the ratio-test survivors must be at least the given
// fraction of all candidate matches, and never fewer than the four
// correspondences a homography needs.
func enoughMatches(good, total int, minFraction float64) bool {
	if total == 0 || good < 4 {
		return false
	}
	return good >= int(float64(total)*minFraction)
}

// matchFeatures runs SIFT on both images, finds 2-NN correspondences
// with a FLANN matcher and applies the ratio test. Returns the
// surviving reference/sample point pairs and the total candidate
// count.
func matchFeatures(ref, sample gocv.Mat, ratio float64) ([]cmath.Point, []cmath.Point, int, error) {
	sift := gocv.NewSIFT()
	defer sift.Close()

	refMask := gocv.NewMat()
	defer refMask.Close()
	kp1, des1 := sift.DetectAndCompute(ref, refMask)
	defer des1.Close()

	sampleMask := gocv.NewMat()
	defer sampleMask.Close()
	kp2, des2 := sift.DetectAndCompute(sample, sampleMask)
	defer des2.Close()

	if len(kp1) == 0 || len(kp2) == 0 {
		return nil, nil, 0, nil
	}

	matcher := gocv.NewFlannBasedMatcher()
	defer matcher.Close()
	matches := matcher.KnnMatch(des1, des2, 2)

	var src, dst []cmath.Point
	for _, pair := range matches {
		if len(pair) < 2 {
			continue
		}
		m, n := pair[0], pair[1]
		if m.Distance < ratio*n.Distance {
			src = append(src, cmath.Point{X: kp1[m.QueryIdx].X, Y: kp1[m.QueryIdx].Y})
			dst = append(dst, cmath.Point{X: kp2[m.TrainIdx].X, Y: kp2[m.TrainIdx].Y})
		}
	}
	return src, dst, len(matches), nil
}

// toMat packs the image into an 8-bit BGR Mat, scaling from the
// buffer's full-scale value.
func toMat(img *cimg.Image) (gocv.Mat, error) {
	if img.Chans() < 3 {
		return gocv.Mat{}, fmt.Errorf("need a 3-channel image, got %d", img.Chans())
	}
	full := img.FullScale()
	buf := make([]byte, img.W*img.H*3)
	i := 0
	for y := 0; y < img.H; y++ {
		for x := 0; x < img.W; x++ {
			// BGR order.
			for _, c := range []int{2, 1, 0} {
				v := img.Get(c, x, y)
				if v < 0 {
					v = 0
				}
				buf[i] = byte(math.Min(v/full*255, 255))
				i++
			}
		}
	}
	return gocv.NewMatFromBytes(img.H, img.W, gocv.MatTypeCV8UC3, buf)
}
