// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// MockSource generates a slow look-around motion: yaw sweeps side to side
// and pitch nods, with a little roll.
type MockSource struct {
	start time.Time

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewMockSource creates a mock orientation source that
// generates smooth changing values.
func NewMockSource() *MockSource {
	return &MockSource{start: time.Now()}
}

// At returns the rotation vector for the given elapsed time.
func (m *MockSource) At(elapsed time.Duration) RotationVector {
	s := elapsed.Seconds()
	yaw := mgl32.DegToRad(float32(30 * math.Sin(s*0.5)))
	pitch := mgl32.DegToRad(float32(15 * math.Cos(s*0.7)))
	roll := mgl32.DegToRad(float32(5 * math.Sin(s)))

	q := mgl32.AnglesToQuat(yaw, pitch, roll, mgl32.ZXY)
	return RotationVectorFromQuat(q, m.start.Add(elapsed))
}

func (m *MockSource) Start(period time.Duration, fn func(RotationVector)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop != nil {
		return nil
	}
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go func(stop, done chan struct{}) {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case t := <-ticker.C:
				fn(m.At(t.Sub(m.start)))
			}
		}
	}(m.stop, m.done)
	return nil
}

func (m *MockSource) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stop == nil {
		return
	}
	close(m.stop)
	<-m.done
	m.stop, m.done = nil, nil
}
