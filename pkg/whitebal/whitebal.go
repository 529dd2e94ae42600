// Package whitebal computes and applies per-channel gain multipliers
// that equalise the sensor's response to a neutral reference. All
// multiplier sets are normalised so the green gain is exactly 1.0.
package whitebal

import (
	"fmt"
	"math"
	"strings"

	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/cmath"
	"github.com/asandstrom/camcal/pkg/colour"
	"github.com/asandstrom/camcal/pkg/sensor"
)

// Multipliers is a four-channel gain vector in R, G, B, G2 order. The
// second green always carries the same gain as the first.
type Multipliers cmath.Vec4

func (m Multipliers) String() string {
	return fmt.Sprintf("(%.4f, %.4f, %.4f, %.4f)", m[0], m[1], m[2], m[3])
}

// Normalised pins the green gain to 1.0.
func (m Multipliers) Normalised() Multipliers {
	if m[1] == 0 {
		return m
	}
	out := Multipliers{m[0] / m[1], 1.0, m[2] / m[1]}
	out[3] = out[1]
	return out
}

// FromPatch derives multipliers from the observed colour of a neutral
// patch: invert each channel, then normalise by the green inverse.
func FromPatch(r, g, b float64) (Multipliers, error) {
	if r <= 0 || g <= 0 || b <= 0 {
		return Multipliers{}, fmt.Errorf("whitebal: non-positive patch colour (%g, %g, %g)", r, g, b)
	}
	return Multipliers{1 / r, 1 / g, 1 / b}.Normalised(), nil
}

// Estimation algorithms. GreyWorld and Average share a statistical
// basis (channel means); the green-pinned normalisation makes the two
// published grey-world variants coincide, so both names run the same
// canonical estimator.
const (
	AlgoAverage   = "average"
	AlgoGreyWorld = "grey-world"
	AlgoMaxWhite  = "max-white"
	AlgoRetinex   = "retinex"
)

// Estimate derives multipliers from image statistics. Pixels holding
// the mask sentinel (negative values) are excluded, so a detected
// reference chart can be carved out of the statistics first via
// cimg's MaskRegion.
func Estimate(img *cimg.Image, algorithm string) (Multipliers, error) {
	if img.Chans() < 3 {
		return Multipliers{}, fmt.Errorf("whitebal: estimate needs a 3-channel image, got %d", img.Chans())
	}
	switch strings.ToLower(algorithm) {
	case AlgoAverage, AlgoGreyWorld:
		r, g, b := img.ChannelMean(0), img.ChannelMean(1), img.ChannelMean(2)
		m, err := FromPatch(r, g, b)
		if err != nil {
			return Multipliers{}, fmt.Errorf("whitebal: %s estimate: %v", algorithm, err)
		}
		return m, nil
	case AlgoMaxWhite:
		// Scale each channel's max up to full scale, then normalise.
		full := img.FullScale()
		maxes, err := channelMaxes(img)
		if err != nil {
			return Multipliers{}, err
		}
		return Multipliers{full / maxes[0], full / maxes[1], full / maxes[2]}.Normalised(), nil
	case AlgoRetinex:
		// Scale each channel's max to the green channel's max.
		maxes, err := channelMaxes(img)
		if err != nil {
			return Multipliers{}, err
		}
		return Multipliers{maxes[1] / maxes[0], 1.0, maxes[1] / maxes[2], 1.0}, nil
	}
	return Multipliers{}, fmt.Errorf("whitebal: unknown estimation algorithm %q", algorithm)
}

func channelMaxes(img *cimg.Image) ([3]float64, error) {
	var maxes [3]float64
	for c := 0; c < 3; c++ {
		maxes[c] = img.ChannelMax(c)
		if maxes[c] <= 0 {
			return maxes, fmt.Errorf("whitebal: channel %d has no positive samples", c)
		}
	}
	return maxes, nil
}

// FromIlluminant maps a standard illuminant's white point backwards
// through the camera transform into sensor-channel space, and derives
// multipliers from that triple. camToXYZ must be invertible; pass the
// embedded matrix via correction.FromEmbedded or a computed one.
func FromIlluminant(camToXYZ cmath.Mat3, illuminant string, obs colour.Observer) (Multipliers, error) {
	if illuminant == "" {
		return Multipliers{}, fmt.Errorf("whitebal: illuminant-based estimation needs a reference illuminant")
	}
	wp, err := colour.WhitePoint(illuminant, obs)
	if err != nil {
		return Multipliers{}, fmt.Errorf("whitebal: %v", err)
	}
	camWhite := camToXYZ.Inverse().Apply(cmath.Vec3{wp.X, wp.Y, wp.Z})
	m, err := FromPatch(camWhite[0], camWhite[1], camWhite[2])
	if err != nil {
		return Multipliers{}, fmt.Errorf("whitebal: illuminant %s maps outside the sensor gamut: %v", illuminant, err)
	}
	return m, nil
}

// Preset multiplier sources recorded by the camera at capture time.
const (
	PresetCamera   = "camera"
	PresetDaylight = "daylight"
)

// FromPreset picks up the as-shot or daylight multipliers from the
// decoder metadata, green-normalised.
func FromPreset(meta sensor.Metadata, preset string) (Multipliers, error) {
	var raw [4]float64
	switch strings.ToLower(preset) {
	case PresetCamera:
		raw = meta.AsShotMultipliers
	case PresetDaylight:
		raw = meta.DaylightMultipliers
	default:
		return Multipliers{}, fmt.Errorf("whitebal: unknown multiplier preset %q", preset)
	}
	if raw[1] == 0 {
		return Multipliers{}, fmt.Errorf("whitebal: metadata carries no %s multipliers", preset)
	}
	return Multipliers(raw).Normalised(), nil
}

// Apply scales each channel by its gain, clips to the smallest
// post-gain channel maximum so no channel dominates past saturation,
// and renormalises the result into [0,1].
func Apply(img *cimg.Image, m Multipliers) (*cimg.Image, error) {
	if img.Chans() < 3 {
		return nil, fmt.Errorf("whitebal: apply needs a 3-channel image, got %d", img.Chans())
	}
	limit := math.Inf(1)
	for c := 0; c < 3; c++ {
		if max := img.ChannelMax(c) * m[c]; max < limit {
			limit = max
		}
	}
	if limit <= 0 || math.IsInf(limit, 1) {
		return nil, fmt.Errorf("whitebal: apply found no positive samples to normalise against")
	}
	out := cimg.New(img.W, img.H, 3)
	cimg.ParallelRows(img.H, func(y int) {
		for x := 0; x < img.W; x++ {
			for c := 0; c < 3; c++ {
				v := img.Get(c, x, y)
				if v < 0 {
					out.Set(c, x, y, v)
					continue
				}
				out.Set(c, x, y, math.Min(v*m[c], limit)/limit)
			}
		}
	})
	return out, nil
}
