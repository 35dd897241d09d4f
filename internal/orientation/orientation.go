// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoSensor is returned by a Source whose hardware is not present.
// The tracker treats it as "no head tracking", never as a failure.
var ErrNoSensor = errors.New("orientation: sensor not available")

// Pose is roll/pitch/yaw in degrees, used for telemetry and logging.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// RotationVector is a device-frame rotation sample: the vector part of a
// unit quaternion (x, y, z), optionally followed by its scalar part w.
type RotationVector struct {
	Values    []float32 `json:"values"`
	Timestamp int64     `json:"timestamp_ns,omitempty"`
}

// RotationVectorFromQuat packs q as a four-component rotation vector.
func RotationVectorFromQuat(q mgl32.Quat, ts time.Time) RotationVector {
	return RotationVector{
		Values:    []float32{q.V[0], q.V[1], q.V[2], q.W},
		Timestamp: ts.UnixNano(),
	}
}

// Source delivers rotation samples. Start begins calling fn roughly every
// period from a goroutine owned by the source; Stop ends delivery and must be
// safe to call more than once.
type Source interface {
	Start(period time.Duration, fn func(RotationVector)) error
	Stop()
}

// ComputePoseFromAccel computes roll and pitch from accelerometer data only.
// Yaw is 0: there is no magnetic reference in a game rotation vector.
//
//	roll  = atan2(ay, az)
//	pitch = atan2(-ax, sqrt(ay² + az²))
func ComputePoseFromAccel(ax, ay, az float64) Pose {
	rollRad := math.Atan2(ay, az)
	pitchRad := math.Atan2(-ax, math.Sqrt(ay*ay+az*az))

	return Pose{
		Roll:  rollRad * 180.0 / math.Pi,
		Pitch: pitchRad * 180.0 / math.Pi,
	}
}

// PoseFromMatrix extracts azimuth/pitch/roll from a rotation matrix in the
// sensor layout (row-major R in m[0..15]).
func PoseFromMatrix(m mgl32.Mat4) Pose {
	yaw := math.Atan2(float64(m[1]), float64(m[5]))
	pitch := math.Asin(clamp(float64(-m[9]), -1, 1))
	roll := math.Atan2(float64(-m[8]), float64(m[10]))
	return Pose{
		Roll:  roll * 180.0 / math.Pi,
		Pitch: pitch * 180.0 / math.Pi,
		Yaw:   yaw * 180.0 / math.Pi,
	}.rounded()
}

// rounded keeps telemetry output stable to two decimals.
func (p Pose) rounded() Pose {
	r := func(v float64) float64 { return math.Round(v*100) / 100 }
	return Pose{Roll: r(p.Roll), Pitch: r(p.Pitch), Yaw: r(p.Yaw)}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
