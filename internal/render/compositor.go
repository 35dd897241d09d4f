// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

var (
	ErrAlreadyInitialized = errors.New("render: compositor already initialized")
	ErrStopped            = errors.New("render: compositor stopped")
)

// State is the compositor lifecycle stage.
type State int32

const (
	StateUninitialized State = iota
	StateReady
	StateRendering
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRendering:
		return "rendering"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// HeadTracker supplies the view matrix. *orientation.Tracker satisfies it.
type HeadTracker interface {
	Start() error
	Stop()
	LatestView(out *mgl32.Mat4)
}

// VideoOutput is a decoder that renders into a Surface.
type VideoOutput interface {
	SetVideoSurface(s *Surface)
}

// DefaultPixelsPerUnit converts an IPD offset into viewport pixels.
const DefaultPixelsPerUnit = 100

// Options configure a compositor. Zero values pick the defaults.
type Options struct {
	TargetFPS     int
	PixelsPerUnit float64
	IPDOffset     float64
	Width, Height int
	Clock         func() time.Time
}

// Viewport is a GL viewport rectangle in pixels.
type Viewport struct {
	X, Y, Width, Height int32
}

// Stats is a snapshot for telemetry.
type Stats struct {
	State       string     `json:"state"`
	FPS         int        `json:"fps"`
	MeasuredFPS int        `json:"measured_fps"`
	TargetFPS   int        `json:"target_fps"`
	Frames      uint64     `json:"frames"`
	IPD         float64    `json:"ipd"`
	IPDPixels   int32      `json:"ipd_pixels"`
	Width       int32      `json:"width"`
	Height      int32      `json:"height"`
	Video       FrameStats `json:"video"`
}

// Compositor draws the video texture twice per frame, once per eye, with
// lens correction and an IPD shift between the viewports.
type Compositor struct {
	backend Backend
	tracker HeadTracker
	video   VideoOutput
	ppu     float64

	state  atomic.Int32
	ipd    atomic.Uint64 // float64 bits
	frames atomic.Uint64
	width  atomic.Int32
	height atomic.Int32

	sync  FrameSync
	pacer *Pacer

	// Render goroutine only.
	pipeline  *Pipeline
	surface   *Surface
	head      mgl32.Mat4
	st        mgl32.Mat4
	uploadErr int
}

// NewCompositor wires a backend, a head tracker and a video output. tracker
// and video may be nil.
func NewCompositor(b Backend, tracker HeadTracker, video VideoOutput, opts Options) *Compositor {
	if opts.PixelsPerUnit <= 0 {
		opts.PixelsPerUnit = DefaultPixelsPerUnit
	}
	c := &Compositor{
		backend: b,
		tracker: tracker,
		video:   video,
		ppu:     opts.PixelsPerUnit,
		pacer:   NewPacer(opts.TargetFPS, opts.Clock),
		head:    mgl32.Ident4(),
		st:      mgl32.Ident4(),
	}
	c.SetIPDOffset(opts.IPDOffset)
	c.width.Store(int32(opts.Width))
	c.height.Store(int32(opts.Height))
	return c
}

// Init starts head tracking, builds GPU resources and attaches the video
// surface. Render goroutine only. A failed Init releases the tracker and
// leaves the video output untouched, so it may be retried.
func (c *Compositor) Init() error {
	switch State(c.state.Load()) {
	case StateUninitialized:
	case StateStopped:
		return ErrStopped
	default:
		return ErrAlreadyInitialized
	}

	if c.tracker != nil {
		if err := c.tracker.Start(); err != nil {
			return fmt.Errorf("compositor: start head tracking: %w", err)
		}
	}
	stopTracker := func() {
		if c.tracker != nil {
			c.tracker.Stop()
		}
	}

	c.backend.ClearColor(0, 0, 0, 1)

	p, err := NewPipeline(c.backend)
	if err != nil {
		stopTracker()
		return err
	}
	surface := NewSurface(c.backend, p.Texture)
	surface.SetOnFrameAvailable(c.sync.OnFrameAvailable)

	c.pipeline = p
	c.surface = surface
	c.head = mgl32.Ident4()
	c.st = mgl32.Ident4()
	c.pacer.Reset()

	if !c.state.CompareAndSwap(int32(StateUninitialized), int32(StateReady)) {
		// Stop raced with Init.
		stopTracker()
		return ErrStopped
	}
	if c.video != nil {
		c.video.SetVideoSurface(surface)
	}
	log.Printf("compositor: ready (%s, target %d fps)", c.backend.Dialect(), c.pacer.Target())
	return nil
}

// Surface is the video surface created by Init.
func (c *Compositor) Surface() *Surface { return c.surface }

// State returns the lifecycle stage.
func (c *Compositor) State() State { return State(c.state.Load()) }

// Resize records the drawable size in pixels. Render goroutine only.
func (c *Compositor) Resize(width, height int) {
	c.width.Store(int32(width))
	c.height.Store(int32(height))
}

// DrawFrame renders one stereo frame if pacing allows. It reports whether
// anything was drawn, so the caller knows whether to present.
func (c *Compositor) DrawFrame() bool {
	switch State(c.state.Load()) {
	case StateReady, StateRendering:
	default:
		return false
	}
	if !c.pacer.Accept() {
		return false
	}
	c.state.CompareAndSwap(int32(StateReady), int32(StateRendering))

	if c.tracker != nil {
		c.tracker.LatestView(&c.head)
	}

	if _, err := c.sync.ConsumeIfPending(c.surface.UpdateTexImage, c.surface.TransformMatrix, &c.st); err != nil {
		c.uploadErr++
		if c.uploadErr%100 == 1 {
			log.Printf("compositor: texture upload failed (%d so far): %v", c.uploadErr, err)
		}
	}

	b := c.backend
	b.Clear()
	c.pipeline.Bind(b, &c.head, &c.st)

	left, right := c.Viewports()
	b.Viewport(left.X, left.Y, left.Width, left.Height)
	c.pipeline.Draw(b)
	b.Viewport(right.X, right.Y, right.Width, right.Height)
	c.pipeline.Draw(b)

	c.pipeline.Unbind(b)
	c.frames.Add(1)
	return true
}

// Viewports returns the left and right eye rectangles for the current size
// and IPD. The left origin may be negative; the surface clips it.
func (c *Compositor) Viewports() (left, right Viewport) {
	half := c.width.Load() / 2
	h := c.height.Load()
	off := c.IPDPixels()
	left = Viewport{X: -off, Y: 0, Width: half, Height: h}
	right = Viewport{X: half + off, Y: 0, Width: half, Height: h}
	return left, right
}

// SetIPDOffset sets the eye separation offset. Takes effect on the next
// draw; safe from any goroutine.
func (c *Compositor) SetIPDOffset(v float64) {
	c.ipd.Store(math.Float64bits(v))
}

// AdjustIPD adds delta to the offset and returns the new value.
func (c *Compositor) AdjustIPD(delta float64) float64 {
	for {
		old := c.ipd.Load()
		v := math.Float64frombits(old) + delta
		if c.ipd.CompareAndSwap(old, math.Float64bits(v)) {
			return v
		}
	}
}

// IPDOffset returns the current offset.
func (c *Compositor) IPDOffset() float64 {
	return math.Float64frombits(c.ipd.Load())
}

// IPDPixels is the offset converted to viewport pixels, rounded to the
// nearest pixel so accumulated steps like 9 x 0.05 land on 45, not 44.
func (c *Compositor) IPDPixels() int32 {
	return int32(math.Round(c.IPDOffset() * c.ppu))
}

// FPS is the frame counter snapshot from the last completed pacing window.
func (c *Compositor) FPS() int { return c.pacer.FPS() }

// Stats returns a telemetry snapshot. Safe from any goroutine.
func (c *Compositor) Stats() Stats {
	return Stats{
		State:       c.State().String(),
		FPS:         c.FPS(),
		MeasuredFPS: c.pacer.Measured(),
		TargetFPS:   c.pacer.Target(),
		Frames:      c.frames.Load(),
		IPD:         c.IPDOffset(),
		IPDPixels:   c.IPDPixels(),
		Width:       c.width.Load(),
		Height:      c.height.Load(),
		Video:       c.sync.Stats(),
	}
}

// Stop halts head tracking and further drawing. Idempotent, any goroutine.
func (c *Compositor) Stop() {
	if State(c.state.Swap(int32(StateStopped))) == StateStopped {
		return
	}
	if c.tracker != nil {
		c.tracker.Stop()
	}
	log.Println("compositor: stopped")
}
