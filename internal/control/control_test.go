// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package control

import (
	"errors"
	"math"
	"testing"
	"time"
)

type fakeIPD struct {
	v       float64
	sets    int
	adjusts int
}

func (f *fakeIPD) SetIPDOffset(v float64) { f.v = v; f.sets++ }

func (f *fakeIPD) AdjustIPD(d float64) float64 { f.v += d; f.adjusts++; return f.v }

func (f *fakeIPD) IPDOffset() float64 { return f.v }

type fakeTransport struct {
	playing bool
	pos     time.Duration
	seeks   []time.Duration
}

func (f *fakeTransport) Play() error  { f.playing = true; return nil }
func (f *fakeTransport) Pause() error { f.playing = false; return nil }

func (f *fakeTransport) TogglePlay() error {
	f.playing = !f.playing
	return nil
}

func (f *fakeTransport) Seek(pos time.Duration) error {
	f.seeks = append(f.seeks, pos)
	f.pos = pos
	return nil
}

func (f *fakeTransport) Position() time.Duration { return f.pos }
func (f *fakeTransport) Duration() time.Duration { return time.Minute }
func (f *fakeTransport) Playing() bool           { return f.playing }

func TestDispatch(t *testing.T) {
	ipd := &fakeIPD{}
	tr := &fakeTransport{pos: 20 * time.Second}
	quit := 0
	c := New(ipd, tr, 0.05, func() { quit++ })

	steps := []Command{CmdIPDUp, CmdIPDUp, CmdIPDDown, CmdTogglePlay, CmdSeekForward, CmdSeekBack, CmdSeekBack, CmdQuit}
	for _, cmd := range steps {
		if err := c.Dispatch(cmd); err != nil {
			t.Fatalf("Dispatch(%s) = %v", cmd, err)
		}
	}

	if math.Abs(c.IPD()-0.05) > 1e-12 {
		t.Errorf("IPD = %v, want 0.05", c.IPD())
	}
	if !tr.playing {
		t.Error("toggle did not start playback")
	}
	want := []time.Duration{25 * time.Second, 20 * time.Second, 15 * time.Second}
	if len(tr.seeks) != len(want) {
		t.Fatalf("seeks = %v, want %v", tr.seeks, want)
	}
	for i := range want {
		if tr.seeks[i] != want[i] {
			t.Fatalf("seeks = %v, want %v", tr.seeks, want)
		}
	}
	if quit != 1 {
		t.Errorf("quit called %d times", quit)
	}

	st := c.Playback()
	if !st.Playing || st.PositionMS != 15000 || st.DurationMS != 60000 {
		t.Errorf("Playback() = %+v", st)
	}
}

func TestDispatchUnknownAndMissingTransport(t *testing.T) {
	c := New(&fakeIPD{}, &fakeTransport{}, 0.05, nil)
	if err := c.Dispatch("volume_up"); !errors.Is(err, ErrUnknownCommand) {
		t.Fatalf("Dispatch(volume_up) = %v, want ErrUnknownCommand", err)
	}

	bare := New(&fakeIPD{}, nil, 0.05, nil)
	if err := bare.Dispatch(CmdIPDUp); err != nil {
		t.Fatalf("IPD without transport: %v", err)
	}
	if err := bare.Dispatch(CmdPlay); err == nil {
		t.Fatal("play without transport succeeded")
	}
	if err := bare.Dispatch(CmdQuit); err != nil {
		t.Fatalf("quit without handler: %v", err)
	}
	if bare.Playback() != (PlaybackState{}) {
		t.Fatal("bare controller reports playback")
	}
}

func TestAdjustIPDDelegates(t *testing.T) {
	ipd := &fakeIPD{v: 0.1}
	c := New(ipd, nil, 0.05, nil)
	if v := c.AdjustIPD(-0.25); math.Abs(v+0.15) > 1e-12 {
		t.Fatalf("AdjustIPD(-0.25) = %v, want -0.15", v)
	}
	if ipd.adjusts != 1 || ipd.sets != 0 {
		t.Fatalf("adjusts=%d sets=%d, want a single AdjustIPD call", ipd.adjusts, ipd.sets)
	}
}
