// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"errors"
	"image"
	"sync"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// recordingBackend implements Backend without a GPU and records what the
// compositor asked for.
type recordingBackend struct {
	missing    map[string]bool
	programErr error
	uploadErr  error

	programs  int
	calls     []string
	viewports []Viewport
	uploads   int
	lastImage *image.RGBA
	mats      map[int32]mgl32.Mat4
	floats    map[int32]float32
	enabled   map[int32]bool
	draws     int
}

func newRecordingBackend() *recordingBackend {
	return &recordingBackend{
		missing: map[string]bool{},
		mats:    map[int32]mgl32.Mat4{},
		floats:  map[int32]float32{},
		enabled: map[int32]bool{},
	}
}

var fakeLocations = map[string]int32{
	"vPosition":   0,
	"vTexCoord":   1,
	"uHeadMatrix": 2,
	"uSTMatrix":   3,
	"uK1":         4,
	"uK2":         5,
	"uScale":      6,
}

func (b *recordingBackend) Dialect() Dialect { return DialectESExternal }

func (b *recordingBackend) ClearColor(r, g, bl, a float32) { b.calls = append(b.calls, "clearColor") }

func (b *recordingBackend) Clear() { b.calls = append(b.calls, "clear") }

func (b *recordingBackend) CreateProgram(vs, fs string) (Program, error) {
	if b.programErr != nil {
		return 0, b.programErr
	}
	b.programs++
	return Program(b.programs), nil
}

func (b *recordingBackend) location(name string) int32 {
	if b.missing[name] {
		return -1
	}
	if loc, ok := fakeLocations[name]; ok {
		return loc
	}
	return -1
}

func (b *recordingBackend) AttribLocation(_ Program, name string) int32 { return b.location(name) }

func (b *recordingBackend) UniformLocation(_ Program, name string) int32 { return b.location(name) }

func (b *recordingBackend) UseProgram(Program) { b.calls = append(b.calls, "useProgram") }

func (b *recordingBackend) CreateTexture() (Texture, error) { return 7, nil }

func (b *recordingBackend) BindTexture(Texture) {}

func (b *recordingBackend) UploadTexture(_ Texture, img *image.RGBA) error {
	if b.uploadErr != nil {
		return b.uploadErr
	}
	b.uploads++
	b.lastImage = img
	return nil
}

func (b *recordingBackend) CreateBuffer([]float32) (Buffer, error) { return 1, nil }

func (b *recordingBackend) EnableVertexAttrib(loc int32, _ Buffer, _ int32) {
	b.enabled[loc] = true
}

func (b *recordingBackend) DisableVertexAttrib(loc int32) {
	b.enabled[loc] = false
	b.calls = append(b.calls, "disable")
}

func (b *recordingBackend) UniformMatrix4(loc int32, m *mgl32.Mat4) { b.mats[loc] = *m }

func (b *recordingBackend) Uniform1f(loc int32, v float32) { b.floats[loc] = v }

func (b *recordingBackend) Viewport(x, y, w, h int32) {
	b.viewports = append(b.viewports, Viewport{x, y, w, h})
}

func (b *recordingBackend) DrawTriangleFan(first, count int32) {
	b.draws++
	b.calls = append(b.calls, "draw")
}

// fakeClock is a manually advanced time source.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// fakeTracker hands out a fixed view matrix.
type fakeTracker struct {
	view     mgl32.Mat4
	startErr error
	starts   int
	stops    int
}

func (t *fakeTracker) Start() error {
	if t.startErr != nil {
		return t.startErr
	}
	t.starts++
	return nil
}

func (t *fakeTracker) Stop() { t.stops++ }

func (t *fakeTracker) LatestView(out *mgl32.Mat4) { *out = t.view }

// captureOutput keeps the surface handed over by the compositor.
type captureOutput struct {
	surface *Surface
}

func (o *captureOutput) SetVideoSurface(s *Surface) { o.surface = s }

var errUpload = errors.New("upload failed")
