// Package chart locates physical colour-reference charts inside
// photographs and samples their patches. The catalogue of known chart
// layouts is fixed at startup; detection runs SIFT feature matching
// against a stored reference image of each chart, then registers the
// chart with a RANSAC-fitted homography.
package chart

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	yaml "gopkg.in/yaml.v2"

	"github.com/asandstrom/camcal/pkg/cmath"
)

var (
	// ErrNotFound is the expected negative outcome of detection; batch
	// callers branch on it rather than aborting.
	ErrNotFound = errors.New("chart: no chart found in image")

	// ErrUnknownChart rejects identifiers outside the catalogue.
	ErrUnknownChart = errors.New("chart: unknown chart identifier")
)

// Layout describes one chart: its patch grid, the corner quadrilateral
// of the patch area within the stored reference image, and that
// image's filename. Corners run TopLeft, TopRight, BottomRight,
// BottomLeft.
type Layout struct {
	Name       string
	Rows, Cols int
	Corners    [4]cmath.Point
	RefImage   string
}

// PatchIDs lists the canonical patch identifiers row-major: row letter
// plus 1-based column number, "A1" through e.g. "D6".
func (l Layout) PatchIDs() []string {
	ids := make([]string, 0, l.Rows*l.Cols)
	for r := 0; r < l.Rows; r++ {
		for c := 0; c < l.Cols; c++ {
			ids = append(ids, fmt.Sprintf("%c%d", 'A'+r, c+1))
		}
	}
	return ids
}

// PatchCentres places each patch centre inside the corner
// quadrilateral by bilinear interpolation of the grid cell centres, in
// reference-image coordinates.
func (l Layout) PatchCentres() map[string]cmath.Point {
	tl, tr, br, bl := l.Corners[0], l.Corners[1], l.Corners[2], l.Corners[3]
	centres := make(map[string]cmath.Point, l.Rows*l.Cols)
	for r := 0; r < l.Rows; r++ {
		for c := 0; c < l.Cols; c++ {
			u := (float64(c) + 0.5) / float64(l.Cols)
			v := (float64(r) + 0.5) / float64(l.Rows)
			id := fmt.Sprintf("%c%d", 'A'+r, c+1)
			centres[id] = cmath.Point{
				X: tl.X*(1-u)*(1-v) + tr.X*u*(1-v) + br.X*u*v + bl.X*(1-u)*v,
				Y: tl.Y*(1-u)*(1-v) + tr.Y*u*(1-v) + br.Y*u*v + bl.Y*(1-u)*v,
			}
		}
	}
	return centres
}

// builtinLayouts covers the charts the detector has reference imagery
// for. Corner coordinates are measured on those reference images; some
// charts appear rotated there, which the homography absorbs.
var builtinLayouts = []Layout{
	{Name: "CCC", Rows: 4, Cols: 6, RefImage: "CCC.jpg",
		Corners: [4]cmath.Point{{X: 22.41, Y: 37.19}, {X: 936.35, Y: 36.11}, {X: 936.93, Y: 634.95}, {X: 22.09, Y: 633.28}}},
	{Name: "CCDSG", Rows: 10, Cols: 14, RefImage: "CCDSG.jpg",
		Corners: [4]cmath.Point{{X: 90.42, Y: 54.14}, {X: 1122.36, Y: 55.34}, {X: 1122.56, Y: 798.33}, {X: 87.41, Y: 800.21}}},
	{Name: "CCPP2_24", Rows: 4, Cols: 6, RefImage: "CCPP2.jpg",
		Corners: [4]cmath.Point{{X: 234.76, Y: 258.57}, {X: 232.56, Y: 33.87}, {X: 381.75, Y: 32.85}, {X: 383.42, Y: 257.87}}},
	{Name: "CCPPV_24", Rows: 4, Cols: 6, RefImage: "CCPPV.jpg",
		Corners: [4]cmath.Point{{X: 858.87, Y: 951.87}, {X: 859.95, Y: 160.25}, {X: 1385.45, Y: 160.83}, {X: 1384.71, Y: 951.52}}},
	{Name: "CCPPV_3", Rows: 1, Cols: 3, RefImage: "CCPPV.jpg",
		Corners: [4]cmath.Point{{X: 116.95, Y: 939.93}, {X: 119.19, Y: 173.36}, {X: 618.5, Y: 174.09}, {X: 617.25, Y: 942.28}}},
	{Name: "SCK100_48", Rows: 6, Cols: 8, RefImage: "SCK100.jpg",
		Corners: [4]cmath.Point{{X: 35.53, Y: 99.82}, {X: 1897.57, Y: 102.58}, {X: 1893.53, Y: 1337.18}, {X: 40.68, Y: 1331.81}}},
	{Name: "XRCCPP_24", Rows: 4, Cols: 6, RefImage: "XRCCPP.jpg",
		Corners: [4]cmath.Point{{X: 897.54, Y: 1010.47}, {X: 898.63, Y: 169.59}, {X: 1463.83, Y: 170.22}, {X: 1465.50, Y: 1009.44}}},
}

// Catalogue is the process-wide set of known charts. Immutable after
// construction.
type Catalogue struct {
	refDir  string
	layouts map[string]Layout
}

// NewCatalogue builds a catalogue from the built-in layouts, the
// directory holding the chart reference images, and an optional YAML
// overrides file that may add charts or replace built-in measurements.
func NewCatalogue(refDir, overridesPath string) (*Catalogue, error) {
	cat := &Catalogue{refDir: refDir, layouts: map[string]Layout{}}
	for _, l := range builtinLayouts {
		cat.layouts[l.Name] = l
	}
	if overridesPath == "" {
		return cat, nil
	}
	data, err := os.ReadFile(overridesPath)
	if err != nil {
		return nil, fmt.Errorf("chart: reading catalogue overrides %s: %v", overridesPath, err)
	}
	var file struct {
		Charts []struct {
			Name     string      `yaml:"name"`
			Rows     int         `yaml:"rows"`
			Cols     int         `yaml:"cols"`
			RefImage string      `yaml:"ref_image"`
			Corners  [][]float64 `yaml:"corners"`
		} `yaml:"charts"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("chart: parsing catalogue overrides %s: %v", overridesPath, err)
	}
	for _, c := range file.Charts {
		if c.Name == "" || c.Rows <= 0 || c.Cols <= 0 || len(c.Corners) != 4 {
			return nil, fmt.Errorf("chart: override entry %q needs name, rows, cols and 4 corners", c.Name)
		}
		l := Layout{Name: c.Name, Rows: c.Rows, Cols: c.Cols, RefImage: c.RefImage}
		for i, p := range c.Corners {
			if len(p) != 2 {
				return nil, fmt.Errorf("chart: override %q corner %d needs [x, y]", c.Name, i)
			}
			l.Corners[i] = cmath.Point{X: p[0], Y: p[1]}
		}
		cat.layouts[l.Name] = l
	}
	return cat, nil
}

// Lookup resolves a chart identifier.
func (cat *Catalogue) Lookup(name string) (Layout, error) {
	l, ok := cat.layouts[name]
	if !ok {
		return Layout{}, fmt.Errorf("%w: %q", ErrUnknownChart, name)
	}
	return l, nil
}

// Names lists the catalogue's chart identifiers, sorted.
func (cat *Catalogue) Names() []string {
	names := make([]string, 0, len(cat.layouts))
	for n := range cat.layouts {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (cat *Catalogue) refImagePath(l Layout) string {
	return filepath.Join(cat.refDir, l.RefImage)
}
