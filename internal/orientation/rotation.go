// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Axis names a device axis for RemapCoordinateSystem. The high bit marks
// the negated axis.
type Axis int

const (
	AxisX      Axis = 0x01
	AxisY      Axis = 0x02
	AxisZ      Axis = 0x03
	AxisMinusX Axis = AxisX | 0x80
	AxisMinusY Axis = AxisY | 0x80
	AxisMinusZ Axis = AxisZ | 0x80
)

// ErrInvalidAxes is returned when the requested axes do not describe a
// right-handed basis.
var ErrInvalidAxes = errors.New("orientation: invalid axis remap")

// RotationMatrixFromVector converts a rotation vector into a 4x4 rotation
// matrix. The matrix is written row-major into the 16 floats of the result,
// the layout the view matrix is uploaded in. When the scalar part is absent
// it is recovered from the unit-norm constraint.
func RotationMatrixFromVector(rv []float32) mgl32.Mat4 {
	if len(rv) < 3 {
		return mgl32.Ident4()
	}
	q1, q2, q3 := rv[0], rv[1], rv[2]
	var q0 float32
	if len(rv) >= 4 {
		q0 = rv[3]
	} else {
		q0 = 1 - q1*q1 - q2*q2 - q3*q3
		if q0 > 0 {
			q0 = float32(math.Sqrt(float64(q0)))
		} else {
			q0 = 0
		}
	}

	sqX := 2 * q1 * q1
	sqY := 2 * q2 * q2
	sqZ := 2 * q3 * q3
	xy := 2 * q1 * q2
	zw := 2 * q3 * q0
	xz := 2 * q1 * q3
	yw := 2 * q2 * q0
	yz := 2 * q2 * q3
	xw := 2 * q1 * q0

	return mgl32.Mat4{
		1 - sqY - sqZ, xy - zw, xz + yw, 0,
		xy + zw, 1 - sqX - sqZ, yz - xw, 0,
		xz - yw, yz + xw, 1 - sqX - sqY, 0,
		0, 0, 0, 1,
	}
}

// RemapCoordinateSystem rotates the rotation matrix in so that it is
// expressed in a frame whose X and Y axes are the device axes x and y. It is
// used to correct for a device held in landscape while its sensor reports
// portrait-relative axes.
func RemapCoordinateSystem(in mgl32.Mat4, x, y Axis) (mgl32.Mat4, error) {
	if x&0x7C != 0 || y&0x7C != 0 {
		return in, ErrInvalidAxes
	}
	if x&0x3 == 0 || y&0x3 == 0 {
		return in, ErrInvalidAxes
	}
	if x&0x3 == y&0x3 {
		return in, ErrInvalidAxes
	}

	// Z is the cross product of X and Y; its sign follows the permutation.
	z := x ^ y
	xi := int(x&0x3) - 1
	yi := int(y&0x3) - 1
	zi := int(z&0x3) - 1
	axisY := (zi + 1) % 3
	axisZ := (zi + 2) % 3
	if (xi^axisY)|(yi^axisZ) != 0 {
		z ^= 0x80
	}

	sx := x >= 0x80
	sy := y >= 0x80
	sz := z >= 0x80

	var out mgl32.Mat4
	for j := 0; j < 3; j++ {
		row := j * 4
		for i := 0; i < 3; i++ {
			if xi == i {
				out[row+i] = signed(in[row], sx)
			}
			if yi == i {
				out[row+i] = signed(in[row+1], sy)
			}
			if zi == i {
				out[row+i] = signed(in[row+2], sz)
			}
		}
	}
	out[15] = 1
	return out, nil
}

func signed(v float32, negate bool) float32 {
	if negate {
		return -v
	}
	return v
}
