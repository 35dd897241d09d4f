// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
)

// fakeSource records subscriptions and lets the test push samples by hand.
type fakeSource struct {
	mu       sync.Mutex
	starts   int
	stops    int
	fn       func(RotationVector)
	startErr error
}

func (f *fakeSource) Start(_ time.Duration, fn func(RotationVector)) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	f.starts++
	f.fn = fn
	return nil
}

func (f *fakeSource) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	f.fn = nil
}

func (f *fakeSource) push(rv RotationVector) {
	f.mu.Lock()
	fn := f.fn
	f.mu.Unlock()
	if fn != nil {
		fn(rv)
	}
}

func TestTrackerWithoutSensorReportsIdentity(t *testing.T) {
	tests := []struct {
		name string
		src  Source
	}{
		{"nil source", nil},
		{"source without hardware", &fakeSource{startErr: ErrNoSensor}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(tt.src, 0)
			if err := tr.Start(); err != nil {
				t.Fatalf("Start() = %v, want nil", err)
			}
			var m mgl32.Mat4
			tr.LatestView(&m)
			if m != mgl32.Ident4() {
				t.Fatalf("LatestView() = %v, want identity", m)
			}
			tr.Stop()
			tr.Stop()
		})
	}
}

func TestTrackerStartPropagatesOtherErrors(t *testing.T) {
	boom := errors.New("bus fault")
	tr := NewTracker(&fakeSource{startErr: boom}, 0)
	if err := tr.Start(); !errors.Is(err, boom) {
		t.Fatalf("Start() = %v, want %v", err, boom)
	}
}

func TestTrackerStartStopIdempotent(t *testing.T) {
	src := &fakeSource{}
	tr := NewTracker(src, 5*time.Millisecond)

	tr.Stop() // never started
	for i := 0; i < 3; i++ {
		if err := tr.Start(); err != nil {
			t.Fatalf("Start() #%d: %v", i, err)
		}
	}
	if src.starts != 1 {
		t.Fatalf("source started %d times, want 1", src.starts)
	}

	done := make(chan struct{})
	go func() {
		tr.Stop()
		tr.Stop()
		close(done)
	}()
	<-done
	if src.stops != 1 {
		t.Fatalf("source stopped %d times, want 1", src.stops)
	}
	if tr.Running() {
		t.Fatal("Running() = true after Stop")
	}
}

func TestTrackerSampleRemapsForLandscape(t *testing.T) {
	src := &fakeSource{}
	tr := NewTracker(src, 0)
	if err := tr.Start(); err != nil {
		t.Fatal(err)
	}
	defer tr.Stop()

	rv := quatVector(mgl32.Vec3{1, 0, 0}, 20)
	src.push(RotationVector{Values: rv})

	want, _ := RemapCoordinateSystem(RotationMatrixFromVector(rv), AxisX, AxisZ)
	var got mgl32.Mat4
	tr.LatestView(&got)
	if got != want {
		t.Fatalf("LatestView() = %v, want %v", got, want)
	}

	// Short samples are ignored and keep the previous view.
	src.push(RotationVector{Values: []float32{0.1}})
	tr.LatestView(&got)
	if got != want {
		t.Fatal("short sample overwrote the view")
	}
}

// TestLatestViewNeverTorn hammers store from a writer goroutine with
// matrices whose 16 components are all equal, while a reader checks every
// snapshot it copies out is uniform.
func TestLatestViewNeverTorn(t *testing.T) {
	tr := NewTracker(nil, 0)

	var stop atomic.Bool
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		var k float32
		for !stop.Load() {
			k++
			var m mgl32.Mat4
			for i := range m {
				m[i] = k
			}
			tr.store(m)
		}
	}()

	deadline := time.Now().Add(200 * time.Millisecond)
	reads := 0
	for time.Now().Before(deadline) {
		var m mgl32.Mat4
		tr.LatestView(&m)
		reads++
		if m == mgl32.Ident4() {
			continue
		}
		for i := 1; i < 16; i++ {
			if m[i] != m[0] {
				stop.Store(true)
				wg.Wait()
				t.Fatalf("torn read after %d reads: %v", reads, m)
			}
		}
	}
	stop.Store(true)
	wg.Wait()
}

func TestMockSourceDeliversUntilStopped(t *testing.T) {
	src := NewMockSource()
	var n atomic.Int32
	if err := src.Start(time.Millisecond, func(RotationVector) { n.Add(1) }); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(time.Second)
	for n.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	src.Stop()
	src.Stop()

	after := n.Load()
	if after < 3 {
		t.Fatalf("got %d samples, want at least 3", after)
	}
	time.Sleep(10 * time.Millisecond)
	if n.Load() != after {
		t.Fatal("samples delivered after Stop")
	}
}
