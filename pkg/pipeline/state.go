// Package pipeline holds the per-photograph state container and the
// orchestration that carries an exposure from reconstructed sensor
// data to an assessed, colour-corrected image.
package pipeline

import (
	"fmt"
	"image"
	"log"
	"math"

	"github.com/asandstrom/camcal/pkg/chart"
	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/colour"
	"github.com/asandstrom/camcal/pkg/correction"
	"github.com/asandstrom/camcal/pkg/sensor"
	"github.com/asandstrom/camcal/pkg/whitebal"
)

// State is the mutable container for one photograph. Each stage fills
// in its buffer; later stages check their inputs are present rather
// than working from stale predecessors. Not safe for concurrent
// mutation.
type State struct {
	Path string
	Meta sensor.Metadata

	Raw           *cimg.Image
	WhiteBalanced *cimg.Image
	Corrected     *cimg.Image // gamma-encoded sRGB
	XYZ           *cimg.Image // unclipped, for assessment

	Multipliers     whitebal.Multipliers
	haveMultipliers bool

	Transform     correction.Matrix
	haveTransform bool

	Illuminant string
	Observer   colour.Observer

	Instances []*chart.Instance
}

// NewState wraps a reconstructed raw image.
func NewState(path string, raw *cimg.Image, meta sensor.Metadata, illuminant string, obs colour.Observer) *State {
	return &State{
		Path:       path,
		Meta:       meta,
		Raw:        raw,
		Illuminant: illuminant,
		Observer:   obs,
	}
}

// SetMultipliers records the active gain vector and invalidates any
// buffers computed from an earlier one.
func (s *State) SetMultipliers(m whitebal.Multipliers) {
	s.Multipliers = m
	s.haveMultipliers = true
	s.WhiteBalanced = nil
	s.Corrected = nil
	s.XYZ = nil
}

// SetTransform records the active camera-to-XYZ transform and
// invalidates the corrected buffers.
func (s *State) SetTransform(m correction.Matrix) {
	s.Transform = m
	s.haveTransform = true
	s.Corrected = nil
	s.XYZ = nil
}

// ApplyWhiteBalance runs the gain stage with the active multipliers.
func (s *State) ApplyWhiteBalance() error {
	if s.Raw == nil {
		return fmt.Errorf("pipeline: white balance with no raw image")
	}
	if !s.haveMultipliers {
		return fmt.Errorf("pipeline: white balance before multipliers are set")
	}
	wb, err := whitebal.Apply(s.Raw, s.Multipliers)
	if err != nil {
		return fmt.Errorf("pipeline: white balance: %v", err)
	}
	s.WhiteBalanced = wb
	return nil
}

// resolveTransform settles which matrix to correct with. Computed
// matrices get the white-point refinement; embedded ones are applied
// as the camera shipped them.
func (s *State) resolveTransform() error {
	if !s.haveTransform {
		m, err := correction.FromEmbedded(s.Meta)
		if err != nil {
			return fmt.Errorf("pipeline: no transform set and %v", err)
		}
		s.Transform = m
		s.haveTransform = true
	}
	if s.Transform.Provenance != correction.ProvenanceComputed {
		return nil
	}
	if s.Illuminant == "" {
		return fmt.Errorf("pipeline: refining a computed transform needs a reference illuminant")
	}
	wp, err := colour.WhitePoint(s.Illuminant, s.Observer)
	if err != nil {
		return fmt.Errorf("pipeline: %v", err)
	}
	refined, err := correction.Refine(s.Transform, wp)
	if err != nil {
		log.Printf("WARNING: using unrefined transform: %v", err)
		return nil
	}
	s.Transform = refined
	return nil
}

// ApplyColourCorrection carries the image into gamma-encoded sRGB,
// forcing the white-balance stage to be current first. It also keeps
// an unclipped XYZ buffer for quality assessment.
//
// The two provenances take different routes. A computed matrix maps
// camera straight to XYZ (after refinement), then XYZ to sRGB. An
// embedded matrix goes camera to sRGB via the row-normalised
// composition with sRGB-to-XYZ, and the XYZ buffer is derived from
// the linear sRGB.
func (s *State) ApplyColourCorrection() error {
	if s.WhiteBalanced == nil {
		if err := s.ApplyWhiteBalance(); err != nil {
			return err
		}
	}
	if err := s.resolveTransform(); err != nil {
		return err
	}

	if s.Transform.Provenance == correction.ProvenanceComputed {
		xyz, err := correction.ApplyLinearUnclipped(s.Transform.M, s.WhiteBalanced)
		if err != nil {
			return fmt.Errorf("pipeline: camera to XYZ: %v", err)
		}
		linearSRGB, err := correction.ApplyLinear(correction.XYZToSRGBD65.Mult(s.Transform.M), s.WhiteBalanced)
		if err != nil {
			return fmt.Errorf("pipeline: camera to sRGB: %v", err)
		}
		s.XYZ = xyz
		s.Corrected = correction.EncodeGamma(linearSRGB)
		return nil
	}

	camToSRGB, err := correction.CamToSRGBFromEmbedded(s.Meta)
	if err != nil {
		return fmt.Errorf("pipeline: %v", err)
	}
	linearSRGB, err := correction.ApplyLinearUnclipped(camToSRGB, s.WhiteBalanced)
	if err != nil {
		return fmt.Errorf("pipeline: camera to sRGB: %v", err)
	}
	xyz, err := correction.ApplyLinearUnclipped(correction.SRGBToXYZD65, linearSRGB)
	if err != nil {
		return fmt.Errorf("pipeline: sRGB to XYZ: %v", err)
	}
	s.XYZ = xyz
	s.Corrected = correction.EncodeGamma(linearSRGB)
	return nil
}

// MaskInstanceRegion blanks the chart's bounding box out of img with
// the sampling sentinel, so white-balance estimators don't take the
// chart's own patches as scene statistics.
func MaskInstanceRegion(img *cimg.Image, in *chart.Instance) *cimg.Image {
	corners := in.CornersInImage()
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, p := range corners {
		minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
		minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
	}
	r := image.Rect(int(minX), int(minY), int(math.Ceil(maxX)), int(math.Ceil(maxY)))
	return img.MaskRegion(r.Intersect(img.Bounds()), cimg.Sentinel)
}
