// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"log"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// GameRate is the sample period requested from sources unless the caller
// asks for something else.
const GameRate = 20 * time.Millisecond

// Tracker turns rotation samples into a landscape-corrected view matrix.
//
// Sample runs on the source's goroutine and LatestView on the render
// goroutine; mu covers only the 16-float copy in each direction.
type Tracker struct {
	src    Source
	period time.Duration

	mu   sync.Mutex
	view mgl32.Mat4

	runMu   sync.Mutex
	running bool
}

// NewTracker returns a tracker reading from src. A nil src means the device
// has no rotation sensor; the tracker then reports the identity view.
func NewTracker(src Source, period time.Duration) *Tracker {
	if period <= 0 {
		period = GameRate
	}
	return &Tracker{
		src:    src,
		period: period,
		view:   mgl32.Ident4(),
	}
}

// Start subscribes to the source. It is a no-op when already started or
// when the source is missing. Errors other than ErrNoSensor are returned.
func (t *Tracker) Start() error {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if t.running {
		return nil
	}
	if t.src == nil {
		log.Println("tracker: no orientation source, using fixed forward view")
		return nil
	}
	if err := t.src.Start(t.period, t.Sample); err != nil {
		if errors.Is(err, ErrNoSensor) {
			log.Printf("tracker: %v, using fixed forward view", err)
			return nil
		}
		return err
	}
	t.running = true
	log.Printf("tracker: started (period=%v)", t.period)
	return nil
}

// Stop unsubscribes from the source. Safe to call when never started and
// from any goroutine.
func (t *Tracker) Stop() {
	t.runMu.Lock()
	defer t.runMu.Unlock()

	if !t.running {
		return
	}
	t.src.Stop()
	t.running = false
	log.Println("tracker: stopped")
}

// Running reports whether samples are being received.
func (t *Tracker) Running() bool {
	t.runMu.Lock()
	defer t.runMu.Unlock()
	return t.running
}

// Sample converts one rotation vector into the remapped view matrix.
func (t *Tracker) Sample(rv RotationVector) {
	if len(rv.Values) < 3 {
		return
	}
	rot := RotationMatrixFromVector(rv.Values)
	// Landscape: device X stays X, device Z becomes Y so that pitch maps to
	// vertical gaze instead of roll.
	remapped, err := RemapCoordinateSystem(rot, AxisX, AxisZ)
	if err != nil {
		return
	}
	t.store(remapped)
}

func (t *Tracker) store(m mgl32.Mat4) {
	t.mu.Lock()
	t.view = m
	t.mu.Unlock()
}

// LatestView copies the current view matrix into out.
func (t *Tracker) LatestView(out *mgl32.Mat4) {
	t.mu.Lock()
	*out = t.view
	t.mu.Unlock()
}

// Pose returns the current orientation as angles.
func (t *Tracker) Pose() Pose {
	var m mgl32.Mat4
	t.LatestView(&m)
	return PoseFromMatrix(m)
}
