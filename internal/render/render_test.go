// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"errors"
	"image"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

func near(a, b float32) bool {
	return math.Abs(float64(a-b)) < 1e-5
}

func TestDistort(t *testing.T) {
	tests := []struct {
		name       string
		u, v       float32
		x, y       float32
		wantInside bool
	}{
		{"center stays centered", 0.5, 0.5, 0.5, 0.5, true},
		{"half way right", 0.75, 0.5, 0.72, 0.5, true},
		{"half way up", 0.5, 0.25, 0.5, 0.28, true},
		{"corner is pushed out", 0, 0, -0.5, -0.5, false},
		{"just inside the rim", 0.925, 0.5, 0.9614739, 0.5, true},
		{"just outside the rim", 0.975, 0.5, 1.061935, 0.5, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			x, y, inside := Distort(tt.u, tt.v)
			if !near(x, tt.x) || !near(y, tt.y) {
				t.Fatalf("Distort(%v, %v) = (%v, %v), want (%v, %v)", tt.u, tt.v, x, y, tt.x, tt.y)
			}
			if inside != tt.wantInside {
				t.Fatalf("Distort(%v, %v) inside = %v, want %v", tt.u, tt.v, inside, tt.wantInside)
			}
		})
	}
}

func TestShaderSourcesDeclareInputs(t *testing.T) {
	for _, d := range []Dialect{DialectESExternal, DialectGL33} {
		vs, fs := ShaderSources(d)
		for _, name := range []string{"uHeadMatrix", "uSTMatrix", "vPosition", "vTexCoord"} {
			if !strings.Contains(vs, name) {
				t.Errorf("%s vertex shader missing %s", d, name)
			}
		}
		for _, name := range []string{"uK1", "uK2", "uScale", "sTexture"} {
			if !strings.Contains(fs, name) {
				t.Errorf("%s fragment shader missing %s", d, name)
			}
		}
	}
	_, fs := ShaderSources(DialectESExternal)
	if !strings.Contains(fs, "samplerExternalOES") {
		t.Error("ES fragment shader does not sample an external texture")
	}
}

func TestFrameSyncScript(t *testing.T) {
	var fs FrameSync
	uploads := 0
	upload := func() error { uploads++; return nil }
	var calls int
	transform := func(m *mgl32.Mat4) { calls++; *m = mgl32.Scale3D(float32(calls+1), 1, 1) }

	st := mgl32.Ident4()
	step := func(notify int, want bool) {
		t.Helper()
		for i := 0; i < notify; i++ {
			fs.OnFrameAvailable()
		}
		got, err := fs.ConsumeIfPending(upload, transform, &st)
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("after %d notifications ConsumeIfPending = %v, want %v", notify, got, want)
		}
	}

	step(0, false)
	if st != mgl32.Ident4() {
		t.Fatal("transform changed without a frame")
	}
	step(1, true)
	step(0, false)
	if st[0] != 2 {
		t.Fatalf("idle iteration changed the transform: %v", st)
	}
	step(1, true)
	step(3, true)
	step(0, false)

	if uploads != 3 {
		t.Fatalf("uploads = %d, want 3", uploads)
	}
	s := fs.Stats()
	if s.Notifications != 5 || s.Uploads != 3 || s.Coalesced != 2 {
		t.Fatalf("Stats() = %+v", s)
	}
}

func TestFrameSyncRearmsAfterFailedUpload(t *testing.T) {
	var fs FrameSync
	fs.OnFrameAvailable()

	st := mgl32.Ident4()
	transformed := false
	transform := func(m *mgl32.Mat4) { transformed = true; *m = mgl32.Scale3D(2, 2, 1) }

	ok, err := fs.ConsumeIfPending(func() error { return errUpload }, transform, &st)
	if ok || !errors.Is(err, errUpload) {
		t.Fatalf("ConsumeIfPending = %v, %v; want false, %v", ok, err, errUpload)
	}
	if transformed || st != mgl32.Ident4() {
		t.Fatal("transform ran after failed upload")
	}
	if !fs.Pending() {
		t.Fatal("flag not re-armed after failed upload")
	}

	ok, err = fs.ConsumeIfPending(func() error { return nil }, transform, &st)
	if !ok || err != nil {
		t.Fatalf("retry = %v, %v; want true, nil", ok, err)
	}
}

func TestPacerSpacing(t *testing.T) {
	clk := newFakeClock()
	p := NewPacer(60, clk.Now)

	var accepted []time.Time
	for i := 0; i < 400; i++ {
		clk.Advance(5 * time.Millisecond)
		if p.Accept() {
			accepted = append(accepted, clk.Now())
		}
	}
	if len(accepted) < 2 {
		t.Fatalf("only %d frames accepted", len(accepted))
	}
	for i := 1; i < len(accepted); i++ {
		if d := accepted[i].Sub(accepted[i-1]); d < p.Interval() {
			t.Fatalf("frames %d and %d only %v apart, want >= %v", i-1, i, d, p.Interval())
		}
	}
	// 5 ms callbacks against a 16.7 ms interval accept every fourth one.
	if len(accepted) != 100 {
		t.Fatalf("accepted %d frames, want 100", len(accepted))
	}
}

func TestPacerRecomputesFPSOncePerTargetFrames(t *testing.T) {
	clk := newFakeClock()
	p := NewPacer(60, clk.Now)

	run := func(n int, step time.Duration) {
		for i := 0; i < n; i++ {
			clk.Advance(step)
			if !p.Accept() {
				t.Fatalf("frame %d rejected at step %v", i, step)
			}
		}
	}

	run(59, p.Interval())
	if p.FPS() != 0 {
		t.Fatalf("FPS() = %d before the first window closed", p.FPS())
	}
	run(1, p.Interval())
	if p.FPS() != 60 {
		t.Fatalf("FPS() = %d, want 60", p.FPS())
	}

	if p.Measured() != 60 {
		t.Fatalf("Measured() = %d, want 60", p.Measured())
	}

	// Half speed: the counter snapshot is still one window of frames, the
	// measured rate halves, and neither moves until the window closes.
	run(59, 2*p.Interval())
	if p.FPS() != 60 || p.Measured() != 60 {
		t.Fatalf("mid-window FPS()=%d Measured()=%d, want previous 60/60", p.FPS(), p.Measured())
	}
	run(1, 2*p.Interval())
	if p.FPS() != 60 {
		t.Fatalf("FPS() = %d, want the 60-frame snapshot", p.FPS())
	}
	if p.Measured() != 30 {
		t.Fatalf("Measured() = %d, want 30", p.Measured())
	}
}

func TestPacerRejectionLeavesStateUntouched(t *testing.T) {
	clk := newFakeClock()
	p := NewPacer(60, clk.Now)

	clk.Advance(10 * time.Millisecond)
	if p.Accept() {
		t.Fatal("accepted a frame 10ms after reset")
	}
	// The rejected call must not have moved the clock forward.
	clk.Advance(7 * time.Millisecond)
	if !p.Accept() {
		t.Fatal("rejected a frame 17ms after reset")
	}
}

func TestSurfaceTransformMatrixCrop(t *testing.T) {
	b := newRecordingBackend()
	s := NewSurface(b, 1)

	var m mgl32.Mat4
	s.TransformMatrix(&m)
	if m != mgl32.Ident4() {
		t.Fatalf("transform before any upload = %v, want identity", m)
	}
	if err := s.UpdateTexImage(); !errors.Is(err, ErrNoFrame) {
		t.Fatalf("UpdateTexImage() = %v, want ErrNoFrame", err)
	}

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	s.PublishCropped(img, image.Rect(50, 0, 150, 100))
	if err := s.UpdateTexImage(); err != nil {
		t.Fatal(err)
	}
	s.TransformMatrix(&m)

	lo := m.Mul4x1(mgl32.Vec4{0, 0, 0, 1})
	hi := m.Mul4x1(mgl32.Vec4{1, 1, 0, 1})
	if !near(lo[0], 0.25) || !near(lo[1], 0) || !near(hi[0], 0.75) || !near(hi[1], 1) {
		t.Fatalf("crop maps (0,0)->%v and (1,1)->%v", lo, hi)
	}
}

func newTestCompositor(t *testing.T, opts Options) (*Compositor, *recordingBackend, *fakeClock, *captureOutput) {
	t.Helper()
	b := newRecordingBackend()
	clk := newFakeClock()
	out := &captureOutput{}
	opts.Clock = clk.Now
	if opts.Width == 0 {
		opts.Width, opts.Height = 1920, 1080
	}
	c := NewCompositor(b, &fakeTracker{view: mgl32.Ident4()}, out, opts)
	if err := c.Init(); err != nil {
		t.Fatalf("Init() = %v", err)
	}
	return c, b, clk, out
}

func TestIPDViewports(t *testing.T) {
	tests := []struct {
		ipd       float64
		leftX     int32
		rightX    int32
		ipdPixels int32
	}{
		{0, 0, 960, 0},
		{0.05, -5, 965, 5},
		{0.5, -50, 1010, 50},
		{-0.25, 25, 935, -25},
	}
	for _, tt := range tests {
		c, b, clk, _ := newTestCompositor(t, Options{})
		c.SetIPDOffset(tt.ipd)

		clk.Advance(20 * time.Millisecond)
		if !c.DrawFrame() {
			t.Fatalf("ipd %v: frame not drawn", tt.ipd)
		}
		if c.IPDPixels() != tt.ipdPixels {
			t.Errorf("ipd %v: IPDPixels() = %d, want %d", tt.ipd, c.IPDPixels(), tt.ipdPixels)
		}
		want := []Viewport{
			{tt.leftX, 0, 960, 1080},
			{tt.rightX, 0, 960, 1080},
		}
		if len(b.viewports) != 2 || b.viewports[0] != want[0] || b.viewports[1] != want[1] {
			t.Errorf("ipd %v: viewports = %v, want %v", tt.ipd, b.viewports, want)
		}
	}
}

func TestAdjustIPD(t *testing.T) {
	c := NewCompositor(newRecordingBackend(), nil, nil, Options{IPDOffset: 0.1})
	if v := c.AdjustIPD(0.05); math.Abs(v-0.15) > 1e-12 {
		t.Fatalf("AdjustIPD(+0.05) = %v, want 0.15", v)
	}
	if v := c.AdjustIPD(-0.3); math.Abs(v+0.15) > 1e-12 {
		t.Fatalf("AdjustIPD(-0.3) = %v, want -0.15", v)
	}
	if c.IPDPixels() != -15 {
		t.Fatalf("IPDPixels() = %d, want -15", c.IPDPixels())
	}
}

func TestIPDPixelsRoundsToNearest(t *testing.T) {
	c := NewCompositor(newRecordingBackend(), nil, nil, Options{})
	for _, tt := range []struct {
		ipd  float64
		want int32
	}{
		{0.015, 2},
		{-0.015, -2},
		{0.014, 1},
		{-0.004, 0},
	} {
		c.SetIPDOffset(tt.ipd)
		if got := c.IPDPixels(); got != tt.want {
			t.Errorf("IPDPixels() at %v = %d, want %d", tt.ipd, got, tt.want)
		}
	}

	// Nine steps of 0.05 sum to 0.44999999999999996.
	c.SetIPDOffset(0)
	for i := 0; i < 9; i++ {
		c.AdjustIPD(0.05)
	}
	if got := c.IPDPixels(); got != 45 {
		t.Fatalf("IPDPixels() after 9 steps = %d, want 45", got)
	}
}

func TestDrawFrameSequence(t *testing.T) {
	c, b, clk, _ := newTestCompositor(t, Options{})
	head := mgl32.HomogRotate3DZ(0.3)
	c.tracker.(*fakeTracker).view = head

	b.calls = nil
	clk.Advance(20 * time.Millisecond)
	if !c.DrawFrame() {
		t.Fatal("frame not drawn")
	}

	want := []string{"clear", "useProgram", "draw", "draw", "disable", "disable"}
	if strings.Join(b.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("calls = %v, want %v", b.calls, want)
	}
	if b.mats[fakeLocations["uHeadMatrix"]] != head {
		t.Fatal("head matrix not uploaded")
	}
	if b.mats[fakeLocations["uSTMatrix"]] != mgl32.Ident4() {
		t.Fatal("ST matrix should be identity before the first frame")
	}
	if !near(b.floats[fakeLocations["uK1"]], K1) || !near(b.floats[fakeLocations["uK2"]], K2) || !near(b.floats[fakeLocations["uScale"]], Scale) {
		t.Fatalf("distortion uniforms = %v", b.floats)
	}
	for loc, on := range b.enabled {
		if on {
			t.Fatalf("attribute %d left enabled", loc)
		}
	}
	if c.State() != StateRendering {
		t.Fatalf("State() = %v, want rendering", c.State())
	}
}

func TestDrawFrameSkipsWithinInterval(t *testing.T) {
	c, b, clk, _ := newTestCompositor(t, Options{})
	clk.Advance(5 * time.Millisecond)
	if c.DrawFrame() {
		t.Fatal("drew a frame inside the pacing interval")
	}
	if b.draws != 0 || c.State() != StateReady {
		t.Fatalf("skipped frame changed state: draws=%d state=%v", b.draws, c.State())
	}
}

func TestCompositorLifecycle(t *testing.T) {
	b := newRecordingBackend()
	tr := &fakeTracker{view: mgl32.Ident4()}
	clk := newFakeClock()
	c := NewCompositor(b, tr, nil, Options{Width: 100, Height: 50, Clock: clk.Now})

	clk.Advance(time.Second)
	if c.DrawFrame() {
		t.Fatal("drew before Init")
	}
	if err := c.Init(); err != nil {
		t.Fatal(err)
	}
	if err := c.Init(); !errors.Is(err, ErrAlreadyInitialized) {
		t.Fatalf("second Init() = %v, want ErrAlreadyInitialized", err)
	}
	if tr.starts != 1 {
		t.Fatalf("tracker started %d times", tr.starts)
	}

	c.Stop()
	c.Stop()
	if tr.stops != 1 {
		t.Fatalf("tracker stopped %d times, want 1", tr.stops)
	}
	clk.Advance(time.Second)
	if c.DrawFrame() {
		t.Fatal("drew after Stop")
	}
	if err := c.Init(); !errors.Is(err, ErrStopped) {
		t.Fatalf("Init() after Stop = %v, want ErrStopped", err)
	}
}

func TestInitFailures(t *testing.T) {
	boom := errors.New("link failed")
	tests := []struct {
		name  string
		setup func(b *recordingBackend, tr *fakeTracker)
		want  error
	}{
		{"program link", func(b *recordingBackend, _ *fakeTracker) { b.programErr = boom }, boom},
		{"missing uniform", func(b *recordingBackend, _ *fakeTracker) { b.missing["uK2"] = true }, nil},
		{"missing attribute", func(b *recordingBackend, _ *fakeTracker) { b.missing["vTexCoord"] = true }, nil},
		{"tracker", func(_ *recordingBackend, tr *fakeTracker) { tr.startErr = boom }, boom},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := newRecordingBackend()
			tr := &fakeTracker{}
			out := &captureOutput{}
			tt.setup(b, tr)
			c := NewCompositor(b, tr, out, Options{})
			err := c.Init()
			if err == nil {
				t.Fatal("Init() succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("Init() = %v, want %v", err, tt.want)
			}
			if c.State() != StateUninitialized {
				t.Fatalf("State() = %v after failed Init", c.State())
			}
			if out.surface != nil || c.Surface() != nil {
				t.Fatal("failed Init attached a video surface")
			}
			if tr.starts != tr.stops {
				t.Fatalf("tracker left running: starts=%d stops=%d", tr.starts, tr.stops)
			}
		})
	}
}

func TestInitRetryAfterTrackerFailure(t *testing.T) {
	b := newRecordingBackend()
	tr := &fakeTracker{startErr: errors.New("no sensor bus")}
	out := &captureOutput{}
	c := NewCompositor(b, tr, out, Options{})

	if err := c.Init(); err == nil {
		t.Fatal("Init() succeeded with a failing tracker")
	}
	if b.programs != 0 {
		t.Fatalf("failed Init built %d programs", b.programs)
	}

	tr.startErr = nil
	if err := c.Init(); err != nil {
		t.Fatalf("retried Init() = %v", err)
	}
	if b.programs != 1 || tr.starts != 1 {
		t.Fatalf("programs=%d starts=%d, want 1 and 1", b.programs, tr.starts)
	}
	if out.surface == nil || out.surface != c.Surface() {
		t.Fatal("video output does not hold the compositor surface")
	}
	if out.surface.Texture() != 7 {
		t.Fatalf("surface texture = %d, want the pipeline texture 7", out.surface.Texture())
	}
}

// TestFrameBurstUploadsOncePerIteration publishes five frames between two
// render iterations and checks they collapse into a single upload of the
// newest one, with nothing lost.
func TestFrameBurstUploadsOncePerIteration(t *testing.T) {
	c, b, clk, out := newTestCompositor(t, Options{})
	if out.surface == nil {
		t.Fatal("video output did not receive a surface")
	}

	var last *image.RGBA
	for i := 0; i < 5; i++ {
		last = image.NewRGBA(image.Rect(0, 0, 4, 4))
		out.surface.Publish(last)
	}

	clk.Advance(20 * time.Millisecond)
	c.DrawFrame()
	if b.uploads != 1 {
		t.Fatalf("uploads after burst = %d, want 1", b.uploads)
	}
	if b.lastImage != last {
		t.Fatal("uploaded frame is not the newest one")
	}

	clk.Advance(20 * time.Millisecond)
	c.DrawFrame()
	if b.uploads != 1 {
		t.Fatalf("uploads after idle iteration = %d, want 1", b.uploads)
	}

	// A frame arriving after the burst is still picked up.
	out.surface.Publish(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	clk.Advance(20 * time.Millisecond)
	c.DrawFrame()
	if b.uploads != 2 {
		t.Fatalf("uploads = %d, want 2", b.uploads)
	}

	s := c.Stats()
	if s.Video.Notifications != 6 || s.Video.Uploads != 2 || s.Video.Coalesced != 4 {
		t.Fatalf("video stats = %+v", s.Video)
	}
	if s.Frames != 3 {
		t.Fatalf("frames = %d, want 3", s.Frames)
	}
}
