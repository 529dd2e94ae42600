package whitebal

import (
	"fmt"

	"github.com/skypies/util/histogram"

	"github.com/asandstrom/camcal/pkg/cimg"
)

// LevelHistograms buckets each channel's levels into a 256-bucket
// histogram over [0, full scale]. Diagnostic output for judging gain
// choices; masked (negative) pixels are skipped.
func LevelHistograms(img *cimg.Image) []histogram.Histogram {
	full := img.FullScale()
	hists := make([]histogram.Histogram, img.Chans())
	for c := range hists {
		hists[c] = histogram.Histogram{NumBuckets: 256, ValMin: 0, ValMax: 256}
	}
	for c := 0; c < img.Chans(); c++ {
		for _, v := range img.Pix[c] {
			if v < 0 {
				continue
			}
			hists[c].Add(histogram.ScalarVal(int(v / full * 255)))
		}
	}
	return hists
}

// DescribeLevels renders the channel histograms one per line.
func DescribeLevels(img *cimg.Image) string {
	out := ""
	for c, h := range LevelHistograms(img) {
		out += fmt.Sprintf("chan %d: %s\n", c, h.String())
	}
	return out
}
