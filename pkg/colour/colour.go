// Package colour is the pipeline's view of the CIE colorimetric
// engine: standard illuminant white points, conversions between XYZ
// and the perceptually-uniform Lab space, and colour-difference
// metrics. The heavy lifting is done by go-colorful; this package
// pins down the conventions the pipeline relies on (Y=1 white points,
// Lab on the conventional 0..100 L scale).
package colour

import (
	"fmt"

	colorful "github.com/lucasb-eyer/go-colorful"
	"github.com/mdouchement/hdr/hdrcolor"
)

// Observer is the CIE standard observer angle, in degrees.
type Observer int

const (
	Observer2  Observer = 2
	Observer10 Observer = 10
)

// Lab is a colour in CIE L*a*b*, L in [0,100].
type Lab struct {
	L, A, B float64
}

// White points (Y normalised to 1) for the CIE standard illuminants,
// per observer. Values from the CIE 15:2004 tables.
var whitePoints = map[Observer]map[string]hdrcolor.XYZ{
	Observer2: {
		"A":   {X: 1.09850, Y: 1.0, Z: 0.35585},
		"C":   {X: 0.98074, Y: 1.0, Z: 1.18232},
		"D50": {X: 0.96422, Y: 1.0, Z: 0.82521},
		"D55": {X: 0.95682, Y: 1.0, Z: 0.92149},
		"D65": {X: 0.95047, Y: 1.0, Z: 1.08883},
		"D75": {X: 0.94972, Y: 1.0, Z: 1.22638},
		"E":   {X: 1.0, Y: 1.0, Z: 1.0},
	},
	Observer10: {
		"A":   {X: 1.11144, Y: 1.0, Z: 0.35200},
		"C":   {X: 0.97285, Y: 1.0, Z: 1.16145},
		"D50": {X: 0.96720, Y: 1.0, Z: 0.81427},
		"D55": {X: 0.95799, Y: 1.0, Z: 0.90926},
		"D65": {X: 0.94811, Y: 1.0, Z: 1.07304},
		"D75": {X: 0.94416, Y: 1.0, Z: 1.20641},
		"E":   {X: 1.0, Y: 1.0, Z: 1.0},
	},
}

// WhitePoint looks up a standard illuminant's white point, Y=1.
func WhitePoint(illuminant string, obs Observer) (hdrcolor.XYZ, error) {
	table, ok := whitePoints[obs]
	if !ok {
		return hdrcolor.XYZ{}, fmt.Errorf("colour: no %d degree observer tables", obs)
	}
	wp, ok := table[illuminant]
	if !ok {
		return hdrcolor.XYZ{}, fmt.Errorf("colour: unknown CIE illuminant %q", illuminant)
	}
	return wp, nil
}

// XYZToLab converts against the given reference white. colorful works
// with L in [0,1]; we scale to the conventional 0..100 range.
func XYZToLab(xyz hdrcolor.XYZ, white hdrcolor.XYZ) Lab {
	l, a, b := colorful.XyzToLabWhiteRef(xyz.X, xyz.Y, xyz.Z, [3]float64{white.X, white.Y, white.Z})
	return Lab{L: l * 100, A: a * 100, B: b * 100}
}

// LabToXYZ is the inverse of XYZToLab.
func LabToXYZ(lab Lab, white hdrcolor.XYZ) hdrcolor.XYZ {
	x, y, z := colorful.LabToXyzWhiteRef(lab.L/100, lab.A/100, lab.B/100, [3]float64{white.X, white.Y, white.Z})
	return hdrcolor.XYZ{X: x, Y: y, Z: z}
}

// XYZToLinearRGB converts to linear sRGB primaries (no transfer
// function applied, values may fall outside [0,1] for out-of-gamut
// colours).
func XYZToLinearRGB(xyz hdrcolor.XYZ) hdrcolor.RGB {
	r, g, b := colorful.XyzToLinearRgb(xyz.X, xyz.Y, xyz.Z)
	return hdrcolor.RGB{R: r, G: g, B: b}
}

// LinearRGBToXYZ is the inverse of XYZToLinearRGB.
func LinearRGBToXYZ(rgb hdrcolor.RGB) hdrcolor.XYZ {
	x, y, z := colorful.LinearRgbToXyz(rgb.R, rgb.G, rgb.B)
	return hdrcolor.XYZ{X: x, Y: y, Z: z}
}

// DeltaE is the CIE76 colour difference: Euclidean distance in Lab.
// colorful computes distances on its [0,1] L scale, hence the *100.
func DeltaE(l1, l2 Lab) float64 {
	c1 := colorful.Lab(l1.L/100, l1.A/100, l1.B/100)
	c2 := colorful.Lab(l2.L/100, l2.A/100, l2.B/100)
	return c1.DistanceLab(c2) * 100
}

// DeltaE2000 is the CIEDE2000 perceptually-weighted difference.
func DeltaE2000(l1, l2 Lab) float64 {
	c1 := colorful.Lab(l1.L/100, l1.A/100, l1.B/100)
	c2 := colorful.Lab(l2.L/100, l2.A/100, l2.B/100)
	return c1.DistanceCIEDE2000(c2) * 100
}

// SRGBToXYZ converts a gamma-encoded sRGB colour (components in
// [0,1]) into XYZ under D65.
func SRGBToXYZ(r, g, b float64) hdrcolor.XYZ {
	x, y, z := colorful.Color{R: r, G: g, B: b}.Xyz()
	return hdrcolor.XYZ{X: x, Y: y, Z: z}
}
