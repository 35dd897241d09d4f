// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package imu

// IMURaw represents a single raw accelerometer+gyro sample.
type IMURaw struct {
	Source string `json:"source"`

	Ax int16 `json:"ax"` // accel
	Ay int16 `json:"ay"`
	Az int16 `json:"az"`

	Gx int16 `json:"gx"` // gyro
	Gy int16 `json:"gy"`
	Gz int16 `json:"gz"`
}

// RawReader is anything that can be polled for raw IMU samples.
type RawReader interface {
	ReadRaw() (IMURaw, error)
}
