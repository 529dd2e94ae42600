package cmath

import "fmt"

// A FloatGrid is a single plane of float64 samples. The raw mosaic
// off a sensor arrives as one of these: each photosite holds one
// colour channel's reading, per the sensor's filter pattern.
type FloatGrid struct {
	stride int
	values []float64
}

func NewFloatGrid(w, h int) *FloatGrid {
	return &FloatGrid{
		stride: w,
		values: make([]float64, w*h),
	}
}

// NewFloatGridFromValues wraps an existing row-major sample buffer.
func NewFloatGridFromValues(w, h int, values []float64) (*FloatGrid, error) {
	if len(values) != w*h {
		return nil, fmt.Errorf("floatgrid: %d values for %dx%d grid", len(values), w, h)
	}
	return &FloatGrid{stride: w, values: values}, nil
}

func (fg *FloatGrid) Set(x, y int, v float64) { fg.values[fg.stride*y+x] = v }
func (fg *FloatGrid) Get(x, y int) float64    { return fg.values[fg.stride*y+x] }
func (fg *FloatGrid) Dx() int                 { return fg.stride }
func (fg *FloatGrid) Dy() int                 { return len(fg.values) / fg.stride }
