// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Fusion is a Mahony complementary filter over gyro and accelerometer
// readings. It has no magnetometer input, so yaw drifts freely but is
// immune to magnetic disturbance: the same trade-off as a game rotation
// vector.
type Fusion struct {
	Kp float64 // proportional gain pulling toward the gravity estimate
	Ki float64 // integral gain for gyro bias

	q0, q1, q2, q3 float64 // w, x, y, z
	ix, iy, iz     float64 // integral error
	seeded         bool
}

// NewFusion returns a filter starting at the identity orientation.
func NewFusion(kp, ki float64) *Fusion {
	return &Fusion{Kp: kp, Ki: ki, q0: 1}
}

// Update advances the filter by dt seconds. Gyro rates are in rad/s,
// accelerations in any consistent unit.
func (f *Fusion) Update(gx, gy, gz, ax, ay, az, dt float64) {
	if !f.seeded {
		f.seed(ax, ay, az)
	}

	if norm := math.Sqrt(ax*ax + ay*ay + az*az); norm > 0 {
		ax /= norm
		ay /= norm
		az /= norm

		// Gravity direction predicted by the current estimate.
		vx := 2 * (f.q1*f.q3 - f.q0*f.q2)
		vy := 2 * (f.q0*f.q1 + f.q2*f.q3)
		vz := f.q0*f.q0 - f.q1*f.q1 - f.q2*f.q2 + f.q3*f.q3

		ex := ay*vz - az*vy
		ey := az*vx - ax*vz
		ez := ax*vy - ay*vx

		if f.Ki > 0 {
			f.ix += f.Ki * ex * dt
			f.iy += f.Ki * ey * dt
			f.iz += f.Ki * ez * dt
			gx += f.ix
			gy += f.iy
			gz += f.iz
		}
		gx += f.Kp * ex
		gy += f.Kp * ey
		gz += f.Kp * ez
	}

	gx *= 0.5 * dt
	gy *= 0.5 * dt
	gz *= 0.5 * dt
	qa, qb, qc := f.q0, f.q1, f.q2
	f.q0 += -qb*gx - qc*gy - f.q3*gz
	f.q1 += qa*gx + qc*gz - f.q3*gy
	f.q2 += qa*gy - qb*gz + f.q3*gx
	f.q3 += qa*gz + qb*gy - qc*gx

	n := math.Sqrt(f.q0*f.q0 + f.q1*f.q1 + f.q2*f.q2 + f.q3*f.q3)
	if n == 0 {
		f.q0, f.q1, f.q2, f.q3 = 1, 0, 0, 0
		return
	}
	f.q0 /= n
	f.q1 /= n
	f.q2 /= n
	f.q3 /= n
}

// seed starts the filter at the accelerometer tilt so the first samples do
// not have to converge from level.
func (f *Fusion) seed(ax, ay, az float64) {
	f.seeded = true
	if ax == 0 && ay == 0 && az == 0 {
		return
	}
	p := ComputePoseFromAccel(ax, ay, az)
	roll := p.Roll * math.Pi / 180
	pitch := p.Pitch * math.Pi / 180

	cr, sr := math.Cos(roll/2), math.Sin(roll/2)
	cp, sp := math.Cos(pitch/2), math.Sin(pitch/2)
	f.q0 = cr * cp
	f.q1 = sr * cp
	f.q2 = cr * sp
	f.q3 = -sr * sp
}

// Quat returns the current orientation.
func (f *Fusion) Quat() mgl32.Quat {
	return mgl32.Quat{
		W: float32(f.q0),
		V: mgl32.Vec3{float32(f.q1), float32(f.q2), float32(f.q3)},
	}
}
