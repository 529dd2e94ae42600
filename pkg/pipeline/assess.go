package pipeline

import (
	"fmt"

	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/asandstrom/camcal/pkg/chart"
	"github.com/asandstrom/camcal/pkg/colour"
)

// PatchMetric scores one patch of a detected chart against its
// reference colour.
type PatchMetric struct {
	ID           string
	Sampled      hdrcolor.XYZ
	Reference    hdrcolor.XYZ
	Residual     [3]float64 // sampled minus reference, per XYZ channel
	SampledLab   colour.Lab
	ReferenceLab colour.Lab
	DeltaE       float64 // CIE76
	DeltaE2000   float64 // CIEDE2000
}

// Assessment is the per-image quality report. Patches whose sampling
// window left the image are skipped but named, so the result is an
// explicit partial rather than a silent one.
type Assessment struct {
	Patches        []PatchMetric
	Skipped        map[string]string
	MeanDeltaE     float64
	MeanDeltaE2000 float64
}

// Assess scores the corrected image against reference XYZ values,
// keyed by patch id, sampling the state's XYZ buffer through the
// instance's geometry. Read-only with respect to the state. Patch
// metrics and the means accumulate in the chart's canonical patch
// order, so results are reproducible bit for bit.
func (s *State) Assess(in *chart.Instance, refs map[string]hdrcolor.XYZ, window int) (*Assessment, error) {
	if s.XYZ == nil {
		return nil, fmt.Errorf("pipeline: assessment before colour correction")
	}
	if in.State == chart.Undetected {
		return nil, fmt.Errorf("pipeline: assessment against an unregistered chart")
	}
	if window <= 0 {
		window = in.Window
	}
	white, err := colour.WhitePoint(s.Illuminant, s.Observer)
	if err != nil {
		return nil, fmt.Errorf("pipeline: assessment: %v", err)
	}

	centres := in.PatchCentresInImage()
	out := &Assessment{Skipped: map[string]string{}}
	for _, id := range in.Layout.PatchIDs() {
		ref, ok := refs[id]
		if !ok {
			out.Skipped[id] = "no reference value"
			continue
		}
		v, err := chart.SampleWindow(s.XYZ, centres[id], window)
		if err != nil {
			out.Skipped[id] = err.Error()
			continue
		}
		sampled := hdrcolor.XYZ{X: v[0], Y: v[1], Z: v[2]}
		m := PatchMetric{
			ID:           id,
			Sampled:      sampled,
			Reference:    ref,
			Residual:     [3]float64{sampled.X - ref.X, sampled.Y - ref.Y, sampled.Z - ref.Z},
			SampledLab:   colour.XYZToLab(sampled, white),
			ReferenceLab: colour.XYZToLab(ref, white),
		}
		m.DeltaE = colour.DeltaE(m.SampledLab, m.ReferenceLab)
		m.DeltaE2000 = colour.DeltaE2000(m.SampledLab, m.ReferenceLab)
		out.Patches = append(out.Patches, m)
	}
	if len(out.Patches) == 0 {
		return nil, fmt.Errorf("pipeline: assessment sampled no patches (%d skipped)", len(out.Skipped))
	}
	for _, m := range out.Patches {
		out.MeanDeltaE += m.DeltaE
		out.MeanDeltaE2000 += m.DeltaE2000
	}
	out.MeanDeltaE /= float64(len(out.Patches))
	out.MeanDeltaE2000 /= float64(len(out.Patches))
	return out, nil
}
