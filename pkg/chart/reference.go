package chart

import (
	"fmt"

	"github.com/mdouchement/hdr/hdrcolor"

	"github.com/asandstrom/camcal/pkg/colour"
)

// classic24SRGB holds the published nominal sRGB values of the
// 24-patch classic chart, row-major A1..D6 (dark skin through black).
var classic24SRGB = map[string][3]uint8{
	"A1": {115, 82, 68}, "A2": {194, 150, 130}, "A3": {98, 122, 157},
	"A4": {87, 108, 67}, "A5": {133, 128, 177}, "A6": {103, 189, 170},
	"B1": {214, 126, 44}, "B2": {80, 91, 166}, "B3": {193, 90, 99},
	"B4": {94, 60, 108}, "B5": {157, 188, 64}, "B6": {224, 163, 46},
	"C1": {56, 61, 150}, "C2": {70, 148, 73}, "C3": {175, 54, 60},
	"C4": {231, 199, 31}, "C5": {187, 86, 149}, "C6": {8, 133, 161},
	"D1": {243, 243, 242}, "D2": {200, 200, 200}, "D3": {160, 160, 160},
	"D4": {122, 122, 121}, "D5": {85, 85, 85}, "D6": {52, 52, 52},
}

// ClassicReferenceXYZ returns the classic 24-patch reference colours
// as XYZ under D65, keyed by patch id. Charts measured with a
// spectrophotometer should use their own table; this one covers the
// common no-measurement case.
func ClassicReferenceXYZ() map[string]hdrcolor.XYZ {
	refs := make(map[string]hdrcolor.XYZ, len(classic24SRGB))
	for id, rgb := range classic24SRGB {
		refs[id] = colour.SRGBToXYZ(
			float64(rgb[0])/255,
			float64(rgb[1])/255,
			float64(rgb[2])/255,
		)
	}
	return refs
}

// NeutralPatchID names the chart's brightest neutral patch, the usual
// white-balance anchor. Only grids with a known neutral row qualify.
func NeutralPatchID(l Layout) (string, error) {
	switch l.Name {
	case "CCC", "CCPP2_24", "CCPPV_24", "XRCCPP_24":
		return "D1", nil
	}
	return "", fmt.Errorf("chart: no known neutral patch for %s", l.Name)
}
