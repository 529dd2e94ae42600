// Package correction carries a white-balanced sensor image into a
// standard, gamma-encoded colour space via a 3x3 transform. Matrices
// arrive either embedded in the RAW metadata or computed by the
// caller; computed matrices get a small per-row refinement fit before
// use, embedded ones are applied as-is.
package correction

import (
	"fmt"
	"math"
	"os"

	"github.com/mdouchement/hdr/hdrcolor"
	"gonum.org/v1/gonum/optimize"
	yaml "gopkg.in/yaml.v2"

	"github.com/asandstrom/camcal/pkg/cimg"
	"github.com/asandstrom/camcal/pkg/cmath"
	"github.com/asandstrom/camcal/pkg/sensor"
)

// Provenance records where a transform came from; it decides whether
// the refinement step runs.
type Provenance string

const (
	ProvenanceEmbedded Provenance = "embedded"
	ProvenanceComputed Provenance = "computed"
)

// Matrix is a camera-to-XYZ transform plus its provenance.
type Matrix struct {
	M          cmath.Mat3
	Provenance Provenance
}

func (m Matrix) String() string {
	return fmt.Sprintf("%s %s", m.Provenance, m.M)
}

// sRGB (D65) interchange matrices, IEC 61966-2-1.
var (
	SRGBToXYZD65 = cmath.Mat3{
		0.4124564, 0.3575761, 0.1804375,
		0.2126729, 0.7151522, 0.0721750,
		0.0193339, 0.1191920, 0.9503041,
	}
	XYZToSRGBD65 = cmath.Mat3{
		3.2404542, -1.5371385, -0.4985314,
		-0.9692660, 1.8760108, 0.0415560,
		0.0556434, -0.2040259, 1.0572252,
	}
)

// FromEmbedded builds the camera-to-XYZ transform from the matrix the
// decoder found in the file: the embedded direction is XYZ-to-camera,
// 3 or 4 rows, so truncate and invert.
func FromEmbedded(meta sensor.Metadata) (Matrix, error) {
	if len(meta.CamXYZ) < 3 {
		return Matrix{}, fmt.Errorf("correction: metadata carries %d embedded matrix rows, need 3", len(meta.CamXYZ))
	}
	var xyzToCam cmath.Mat3
	for i := 0; i < 3; i++ {
		xyzToCam.SetRow(i, cmath.Vec3(meta.CamXYZ[i]))
	}
	if xyzToCam.Det() == 0 {
		return Matrix{}, fmt.Errorf("correction: embedded matrix is singular")
	}
	return Matrix{M: xyzToCam.Inverse(), Provenance: ProvenanceEmbedded}, nil
}

// CamToSRGBFromEmbedded builds the camera-to-sRGB map the way raw
// converters conventionally do: compose the embedded XYZ-to-camera
// matrix with sRGB-to-XYZ, normalise each row to sum 1 so that camera
// white maps to sRGB white, then invert.
func CamToSRGBFromEmbedded(meta sensor.Metadata) (cmath.Mat3, error) {
	if len(meta.CamXYZ) < 3 {
		return cmath.Mat3{}, fmt.Errorf("correction: metadata carries %d embedded matrix rows, need 3", len(meta.CamXYZ))
	}
	var xyzToCam cmath.Mat3
	for i := 0; i < 3; i++ {
		xyzToCam.SetRow(i, cmath.Vec3(meta.CamXYZ[i]))
	}
	srgbToCam := xyzToCam.Mult(SRGBToXYZD65).RowNormalise()
	return srgbToCam.Inverse(), nil
}

// FromValues wraps caller-supplied camera-to-XYZ values, row-major.
func FromValues(vals [9]float64) Matrix {
	return Matrix{M: cmath.Mat3(vals), Provenance: ProvenanceComputed}
}

type matrixFile struct {
	Matrix [][]float64 `yaml:"matrix"`
}

// FromYAMLFile loads a computed matrix from a YAML file holding a
// `matrix:` key with three rows of three values.
func FromYAMLFile(path string) (Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Matrix{}, fmt.Errorf("correction: reading %s: %v", path, err)
	}
	var mf matrixFile
	if err := yaml.Unmarshal(data, &mf); err != nil {
		return Matrix{}, fmt.Errorf("correction: parsing %s: %v", path, err)
	}
	if len(mf.Matrix) != 3 {
		return Matrix{}, fmt.Errorf("correction: %s holds %d matrix rows, want 3", path, len(mf.Matrix))
	}
	var m cmath.Mat3
	for i, row := range mf.Matrix {
		if len(row) != 3 {
			return Matrix{}, fmt.Errorf("correction: %s matrix row %d has %d values, want 3", path, i, len(row))
		}
		m.SetRow(i, cmath.Vec3{row[0], row[1], row[2]})
	}
	return Matrix{M: m, Provenance: ProvenanceComputed}, nil
}

// Refine scales each row of the transform by a free scalar so that a
// unit camera vector maps onto the target white point (luminance
// normalised to 1). Fit starts from unit scales; if the solver fails
// the original matrix is returned alongside the error so the caller
// can warn and continue.
func Refine(m Matrix, white hdrcolor.XYZ) (Matrix, error) {
	target := cmath.Vec3{white.X / white.Y, 1.0, white.Z / white.Y}
	rowSums := cmath.Vec3{}
	for i := 0; i < 3; i++ {
		r := m.M.Row(i)
		rowSums[i] = r[0] + r[1] + r[2]
	}

	problem := optimize.Problem{
		Func: func(s []float64) float64 {
			sum := 0.0
			for i := 0; i < 3; i++ {
				d := target[i] - s[i]*rowSums[i]
				sum += d * d
			}
			return sum
		},
	}
	result, err := optimize.Minimize(problem, []float64{1, 1, 1}, nil, nil)
	if err != nil {
		return m, fmt.Errorf("correction: refinement failed to converge: %v", err)
	}
	if err := result.Status.Err(); err != nil {
		return m, fmt.Errorf("correction: refinement ended badly: %v", err)
	}

	out := m
	for i := 0; i < 3; i++ {
		out.M.SetRow(i, m.M.Row(i).Scale(result.X[i]))
	}
	if out.M.Det() == 0 {
		return m, fmt.Errorf("correction: refinement produced a singular matrix")
	}
	return out, nil
}

// ApplyLinear maps every pixel through the matrix and clips the
// result into [0,1].
func ApplyLinear(m cmath.Mat3, img *cimg.Image) (*cimg.Image, error) {
	return applyLinear(m, img, true)
}

// ApplyLinearUnclipped is ApplyLinear without the clip; used for
// colourimetric bookkeeping buffers where Z legitimately exceeds 1.
func ApplyLinearUnclipped(m cmath.Mat3, img *cimg.Image) (*cimg.Image, error) {
	return applyLinear(m, img, false)
}

func applyLinear(m cmath.Mat3, img *cimg.Image, clip bool) (*cimg.Image, error) {
	if img.Chans() < 3 {
		return nil, fmt.Errorf("correction: linear transform needs a 3-channel image, got %d", img.Chans())
	}
	out := cimg.New(img.W, img.H, 3)
	cimg.ParallelRows(img.H, func(y int) {
		for x := 0; x < img.W; x++ {
			v := m.Apply(cmath.Vec3(img.Vec3At(x, y)))
			if clip {
				v.FloorAt(0)
				v.CeilingAt(1)
			}
			out.SetVec3(x, y, [3]float64(v))
		}
	})
	return out, nil
}

// EncodeGamma applies the sRGB piecewise transfer function per
// channel, output clipped to [0,1].
func EncodeGamma(img *cimg.Image) *cimg.Image {
	return mapChannels(img, func(v float64) float64 {
		return clamp01(cmath.GammaEncodeF64(clamp01(v)))
	})
}

// DecodeGamma inverts EncodeGamma.
func DecodeGamma(img *cimg.Image) *cimg.Image {
	return mapChannels(img, func(v float64) float64 {
		return clamp01(cmath.GammaDecodeF64(clamp01(v)))
	})
}

func mapChannels(img *cimg.Image, fn func(float64) float64) *cimg.Image {
	out := cimg.New(img.W, img.H, img.Chans())
	cimg.ParallelRows(img.H, func(y int) {
		for x := 0; x < img.W; x++ {
			for c := 0; c < img.Chans(); c++ {
				out.Set(c, x, y, fn(img.Get(c, x, y)))
			}
		}
	})
	return out
}

func clamp01(v float64) float64 { return math.Min(math.Max(v, 0), 1) }
