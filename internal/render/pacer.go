// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"math"
	"sync/atomic"
	"time"
)

// DefaultTargetFPS caps rendering independently of the display refresh.
const DefaultTargetFPS = 60

// Pacer gates render callbacks to a target rate and counts accepted frames
// in windows of target frames. Accept and Reset are render goroutine only;
// FPS and Measured are safe anywhere.
type Pacer struct {
	now      func() time.Time
	target   int
	interval time.Duration

	last        time.Time
	count       int
	windowStart time.Time

	fps      atomic.Int32
	measured atomic.Int32
}

// NewPacer returns a pacer for target frames per second. A nil clock uses
// time.Now.
func NewPacer(target int, now func() time.Time) *Pacer {
	if target <= 0 {
		target = DefaultTargetFPS
	}
	if now == nil {
		now = time.Now
	}
	p := &Pacer{
		now:      now,
		target:   target,
		interval: time.Second / time.Duration(target),
	}
	p.Reset()
	return p
}

// Interval is the minimum spacing between accepted frames.
func (p *Pacer) Interval() time.Duration { return p.interval }

// Target is the configured rate.
func (p *Pacer) Target() int { return p.target }

// Reset restarts the clock: the next frame is accepted one interval from now.
func (p *Pacer) Reset() {
	t := p.now()
	p.last = t
	p.windowStart = t
	p.count = 0
}

// Accept reports whether a frame may be drawn now. A rejected frame leaves
// all state untouched.
func (p *Pacer) Accept() bool {
	t := p.now()
	if t.Sub(p.last) < p.interval {
		return false
	}
	p.last = t
	p.count++
	if p.count >= p.target {
		p.fps.Store(int32(p.count))
		if elapsed := t.Sub(p.windowStart).Seconds(); elapsed > 0 {
			p.measured.Store(int32(math.Round(float64(p.count) / elapsed)))
		}
		p.count = 0
		p.windowStart = t
	}
	return true
}

// FPS is the frame counter snapshot taken when the last window closed. It
// stays 0 until target frames have been accepted.
func (p *Pacer) FPS() int {
	return int(p.fps.Load())
}

// Measured is the wall-clock rate over the last completed window.
func (p *Pacer) Measured() int {
	return int(p.measured.Load())
}
