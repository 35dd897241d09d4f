// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/relabs-tech/stereo_player/internal/imu"
	"github.com/relabs-tech/stereo_player/internal/orientation"
)

// FusedSource polls a raw IMU and fuses gyro and accelerometer readings
// into a game rotation vector.
type FusedSource struct {
	open          func() (imu.RawReader, error)
	gyroLSBPerDPS float64
	kp, ki        float64

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewFusedSource wraps an already opened reader.
func NewFusedSource(r imu.RawReader, gyroLSBPerDPS, kp, ki float64) *FusedSource {
	return newFusedSource(func() (imu.RawReader, error) { return r, nil }, gyroLSBPerDPS, kp, ki)
}

func newFusedSource(open func() (imu.RawReader, error), gyroLSBPerDPS, kp, ki float64) *FusedSource {
	if gyroLSBPerDPS <= 0 {
		gyroLSBPerDPS = 131 // ±250°/s full scale
	}
	return &FusedSource{open: open, gyroLSBPerDPS: gyroLSBPerDPS, kp: kp, ki: ki}
}

// Start opens the IMU and begins sampling every period.
func (s *FusedSource) Start(period time.Duration, fn func(orientation.RotationVector)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	reader, err := s.open()
	if err != nil {
		return fmt.Errorf("fused source: %w", err)
	}

	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.run(reader, period, fn, s.stop, s.done)
	return nil
}

func (s *FusedSource) run(r imu.RawReader, period time.Duration, fn func(orientation.RotationVector), stop, done chan struct{}) {
	defer close(done)

	filter := orientation.NewFusion(s.kp, s.ki)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	var last time.Time
	errCount := 0
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			raw, err := r.ReadRaw()
			if err != nil {
				errCount++
				// First failure and then every 100th, a flaky bus floods otherwise.
				if errCount%100 == 1 {
					log.Printf("fused source: read error (%d so far): %v", errCount, err)
				}
				continue
			}

			dt := period.Seconds()
			if !last.IsZero() {
				dt = t.Sub(last).Seconds()
			}
			last = t

			s.step(filter, raw, dt)
			fn(orientation.RotationVectorFromQuat(filter.Quat(), t))
		}
	}
}

// step feeds one raw sample into the filter.
func (s *FusedSource) step(f *orientation.Fusion, raw imu.IMURaw, dt float64) {
	toRad := math.Pi / 180 / s.gyroLSBPerDPS
	f.Update(
		float64(raw.Gx)*toRad,
		float64(raw.Gy)*toRad,
		float64(raw.Gz)*toRad,
		float64(raw.Ax),
		float64(raw.Ay),
		float64(raw.Az),
		dt,
	)
}

// Stop ends sampling. Safe to call more than once.
func (s *FusedSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop == nil {
		return
	}
	close(s.stop)
	<-s.done
	s.stop, s.done = nil, nil
}
