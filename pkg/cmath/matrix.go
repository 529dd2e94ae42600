package cmath

import (
	"fmt"

	"golang.org/x/image/math/f64"
	"gonum.org/v1/gonum/mat"
)

// 3x3 matrixes and 3/4-vectors, used for color transforms. Everything
// is double precision throughout; camera matrices are small but badly
// conditioned, so we never drop to float32.

type Vec3 f64.Vec3
type Vec4 f64.Vec4
type Mat3 f64.Mat3

func (a Mat3) Mult(b Mat3) Mat3 {
	return Mat3{
		a[3*0+0]*b[3*0+0] + a[3*0+1]*b[3*1+0] + a[3*0+2]*b[3*2+0],
		a[3*0+0]*b[3*0+1] + a[3*0+1]*b[3*1+1] + a[3*0+2]*b[3*2+1],
		a[3*0+0]*b[3*0+2] + a[3*0+1]*b[3*1+2] + a[3*0+2]*b[3*2+2],

		a[3*1+0]*b[3*0+0] + a[3*1+1]*b[3*1+0] + a[3*1+2]*b[3*2+0],
		a[3*1+0]*b[3*0+1] + a[3*1+1]*b[3*1+1] + a[3*1+2]*b[3*2+1],
		a[3*1+0]*b[3*0+2] + a[3*1+1]*b[3*1+2] + a[3*1+2]*b[3*2+2],

		a[3*2+0]*b[3*0+0] + a[3*2+1]*b[3*1+0] + a[3*2+2]*b[3*2+0],
		a[3*2+0]*b[3*0+1] + a[3*2+1]*b[3*1+1] + a[3*2+2]*b[3*2+1],
		a[3*2+0]*b[3*0+2] + a[3*2+1]*b[3*1+2] + a[3*2+2]*b[3*2+2],
	}
}

func (m Mat3) Apply(v Vec3) Vec3 {
	return Vec3{
		m[3*0+0]*v[0] + m[3*0+1]*v[1] + m[3*0+2]*v[2],
		m[3*1+0]*v[0] + m[3*1+1]*v[1] + m[3*1+2]*v[2],
		m[3*2+0]*v[0] + m[3*2+1]*v[1] + m[3*2+2]*v[2],
	}
}

func (m Mat3) Row(i int) Vec3 { return Vec3{m[3*i+0], m[3*i+1], m[3*i+2]} }

func (m *Mat3) SetRow(i int, v Vec3) {
	m[3*i+0], m[3*i+1], m[3*i+2] = v[0], v[1], v[2]
}

func (m Mat3) Det() float64 {
	return m[0]*(m[4]*m[8]-m[5]*m[7]) -
		m[1]*(m[3]*m[8]-m[5]*m[6]) +
		m[2]*(m[3]*m[7]-m[4]*m[6])
}

// Inverse inverts the matrix, falling back to the Moore-Penrose
// pseudo-inverse when the matrix is singular. Camera metadata
// occasionally carries degenerate matrices, and the pipeline is
// expected to limp on rather than die.
func (m Mat3) Inverse() Mat3 {
	d := mat.NewDense(3, 3, append([]float64{}, m[:]...))

	var inv mat.Dense
	if err := inv.Inverse(d); err != nil {
		return pseudoInverse(d)
	}

	var out Mat3
	copy(out[:], inv.RawMatrix().Data)
	return out
}

// pseudoInverse computes V Σ⁺ Uᵀ, dropping near-zero singular values.
func pseudoInverse(d *mat.Dense) Mat3 {
	var svd mat.SVD
	if ok := svd.Factorize(d, mat.SVDFull); !ok {
		// A 3x3 that defeats SVD is hopeless; identity keeps the
		// pipeline alive and is obvious in the output.
		return Identity3()
	}

	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	s := svd.Values(nil)

	sigmaInv := mat.NewDense(3, 3, nil)
	for i, sv := range s {
		if sv > 1e-12 {
			sigmaInv.Set(i, i, 1.0/sv)
		}
	}

	var tmp, pinv mat.Dense
	tmp.Mul(&v, sigmaInv)
	pinv.Mul(&tmp, u.T())

	var out Mat3
	copy(out[:], pinv.RawMatrix().Data)
	return out
}

func Identity3() Mat3 {
	return Mat3{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
	}
}

// RowNormalise divides each row by its sum, so that the matrix maps
// (1,1,1) to (1,1,1). This is the white-point preservation trick used
// when deriving an output transform from a camera matrix.
func (m Mat3) RowNormalise() Mat3 {
	out := m
	for r := 0; r < 3; r++ {
		sum := m[3*r+0] + m[3*r+1] + m[3*r+2]
		if sum == 0 {
			continue
		}
		out[3*r+0] /= sum
		out[3*r+1] /= sum
		out[3*r+2] /= sum
	}
	return out
}

func (m Mat3) String() string {
	str := fmt.Sprintf("[%10f, %10f, %10f]\n", m[0], m[1], m[2])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[3], m[4], m[5])
	str += fmt.Sprintf("[%10f, %10f, %10f]\n", m[6], m[7], m[8])
	return str
}

func (v Vec3) String() string {
	return fmt.Sprintf("[%12.10f, %12.10f, %12.10f]", v[0], v[1], v[2])
}

// Places the vector on the diagonal of a matrix, then inverts it
func (v Vec3) InvertDiag() Mat3 {
	return Mat3{
		1.0 / v[0], 0, 0,
		0, 1.0 / v[1], 0,
		0, 0, 1.0 / v[2],
	}
}

func (v Vec3) Scale(s float64) Vec3 { return Vec3{v[0] * s, v[1] * s, v[2] * s} }

func (v *Vec3) FloorAt(min float64) {
	if v[0] < min {
		v[0] = min
	}
	if v[1] < min {
		v[1] = min
	}
	if v[2] < min {
		v[2] = min
	}
}

func (v *Vec3) CeilingAt(max float64) {
	if v[0] > max {
		v[0] = max
	}
	if v[1] > max {
		v[1] = max
	}
	if v[2] > max {
		v[2] = max
	}
}
