// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"

	"github.com/relabs-tech/stereo_player/internal/imu"
	"github.com/relabs-tech/stereo_player/internal/orientation"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/mpu9250"
	"periph.io/x/host/v3"
)

type imuSource struct {
	name string
	imu  *mpu9250.MPU9250
}

// NewMPU9250Source returns a fused game-rotation source backed by an
// MPU9250 on the given SPI device. The hardware is opened on Start; if it
// is missing, Start reports orientation.ErrNoSensor.
func NewMPU9250Source(spiDev, csPin string, gyroLSBPerDPS, kp, ki float64) *FusedSource {
	open := func() (imu.RawReader, error) {
		return newIMUSource("mpu9250", spiDev, csPin)
	}
	return newFusedSource(open, gyroLSBPerDPS, kp, ki)
}

func newIMUSource(name, spiDev, csPin string) (imu.RawReader, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("%w: %s IMU: periph host init: %v", orientation.ErrNoSensor, name, err)
	}

	cs := gpioreg.ByName(csPin)
	if cs == nil {
		return nil, fmt.Errorf("%w: %s IMU: CS pin %q not found", orientation.ErrNoSensor, name, csPin)
	}

	tr, err := mpu9250.NewSpiTransport(spiDev, cs)
	if err != nil {
		return nil, fmt.Errorf("%w: %s IMU: SPI transport (%s): %v", orientation.ErrNoSensor, name, spiDev, err)
	}

	dev, err := mpu9250.New(*tr)
	if err != nil {
		return nil, fmt.Errorf("%s IMU: device creation: %w", name, err)
	}

	if err := dev.Init(); err != nil {
		return nil, fmt.Errorf("%s IMU: initialization: %w", name, err)
	}

	// Uncalibrated gyro bias shows up as slow yaw drift; keep going.
	if err := dev.Calibrate(); err != nil {
		log.Printf("Warning: %s IMU calibration failed: %v", name, err)
	} else {
		log.Printf("%s IMU calibration complete", name)
	}

	return &imuSource{name: name, imu: dev}, nil
}

// ReadRaw reads accelerometer and gyroscope data from this IMU.
func (s *imuSource) ReadRaw() (imu.IMURaw, error) {
	ax, err := s.imu.GetAccelerationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel X: %w", s.name, err)
	}
	ay, err := s.imu.GetAccelerationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Y: %w", s.name, err)
	}
	az, err := s.imu.GetAccelerationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU accel Z: %w", s.name, err)
	}

	gx, err := s.imu.GetRotationX()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro X: %w", s.name, err)
	}
	gy, err := s.imu.GetRotationY()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Y: %w", s.name, err)
	}
	gz, err := s.imu.GetRotationZ()
	if err != nil {
		return imu.IMURaw{}, fmt.Errorf("%s IMU gyro Z: %w", s.name, err)
	}

	return imu.IMURaw{
		Source: s.name,
		Ax:     ax,
		Ay:     ay,
		Az:     az,
		Gx:     gx,
		Gy:     gy,
		Gz:     gz,
	}, nil
}
