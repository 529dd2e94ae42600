package cmath

import "math"

// The IEC 61966-2-1 sRGB transfer function: a short linear segment
// near black, power law above. Inputs are assumed to be in [0,1].

func GammaEncodeF64(f float64) float64 {
	if f <= 0.0031308 {
		return 12.92 * f
	}
	// 1.055 and 0.055 are not exactly representable, so the power-law
	// branch lands a hair under 1.0 at full scale; saturated input must
	// encode to exactly full scale.
	if f >= 1 {
		return 1
	}
	return 1.055*math.Pow(f, 1.0/2.4) - 0.055
}

func GammaDecodeF64(f float64) float64 {
	if f <= 0.04045 {
		return f / 12.92
	}
	return math.Pow((f+0.055)/1.055, 2.4)
}
