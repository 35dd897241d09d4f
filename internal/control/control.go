// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package control maps user commands from the keyboard, the web API and the
// websocket onto the compositor and the video transport.
package control

import (
	"errors"
	"fmt"
	"time"
)

// Command is a user action.
type Command string

const (
	CmdIPDUp       Command = "ipd_up"
	CmdIPDDown     Command = "ipd_down"
	CmdPlay        Command = "play"
	CmdPause       Command = "pause"
	CmdTogglePlay  Command = "toggle_play"
	CmdSeekBack    Command = "seek_back"
	CmdSeekForward Command = "seek_forward"
	CmdQuit        Command = "quit"
)

// ErrUnknownCommand is returned by Dispatch for names it does not know.
var ErrUnknownCommand = errors.New("control: unknown command")

// SeekStep is how far seek_back and seek_forward jump.
const SeekStep = 5 * time.Second

// Transport is the playback side of a video source.
type Transport interface {
	Play() error
	Pause() error
	TogglePlay() error
	Seek(pos time.Duration) error
	Position() time.Duration
	Duration() time.Duration
	Playing() bool
}

// IPDControl is the eye-separation side of the compositor.
type IPDControl interface {
	SetIPDOffset(v float64)
	AdjustIPD(delta float64) float64
	IPDOffset() float64
}

// PlaybackState is reported by the web API and telemetry.
type PlaybackState struct {
	Playing    bool  `json:"playing"`
	PositionMS int64 `json:"position_ms"`
	DurationMS int64 `json:"duration_ms"`
}

// Controller applies commands. Every method is safe from any goroutine as
// long as the underlying transport and IPD control are.
type Controller struct {
	ipd       IPDControl
	transport Transport
	step      float64
	quit      func()
}

// New returns a controller. transport and quit may be nil.
func New(ipd IPDControl, transport Transport, ipdStep float64, quit func()) *Controller {
	return &Controller{ipd: ipd, transport: transport, step: ipdStep, quit: quit}
}

// Dispatch runs one command.
func (c *Controller) Dispatch(cmd Command) error {
	switch cmd {
	case CmdIPDUp:
		c.ipd.AdjustIPD(c.step)
		return nil
	case CmdIPDDown:
		c.ipd.AdjustIPD(-c.step)
		return nil
	case CmdQuit:
		if c.quit != nil {
			c.quit()
		}
		return nil
	}

	if c.transport == nil {
		switch cmd {
		case CmdPlay, CmdPause, CmdTogglePlay, CmdSeekBack, CmdSeekForward:
			return fmt.Errorf("control: %s: no video transport", cmd)
		}
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}

	switch cmd {
	case CmdPlay:
		return c.transport.Play()
	case CmdPause:
		return c.transport.Pause()
	case CmdTogglePlay:
		return c.transport.TogglePlay()
	case CmdSeekBack:
		return c.transport.Seek(c.transport.Position() - SeekStep)
	case CmdSeekForward:
		return c.transport.Seek(c.transport.Position() + SeekStep)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, cmd)
	}
}

// SetIPD sets the offset directly.
func (c *Controller) SetIPD(v float64) { c.ipd.SetIPDOffset(v) }

// AdjustIPD adds delta to the offset atomically and returns the new value.
func (c *Controller) AdjustIPD(delta float64) float64 { return c.ipd.AdjustIPD(delta) }

// IPD returns the current offset.
func (c *Controller) IPD() float64 { return c.ipd.IPDOffset() }

// Seek jumps to an absolute position.
func (c *Controller) Seek(pos time.Duration) error {
	if c.transport == nil {
		return errors.New("control: seek: no video transport")
	}
	return c.transport.Seek(pos)
}

// Playback returns the transport state, or a zero state without one.
func (c *Controller) Playback() PlaybackState {
	if c.transport == nil {
		return PlaybackState{}
	}
	return PlaybackState{
		Playing:    c.transport.Playing(),
		PositionMS: c.transport.Position().Milliseconds(),
		DurationMS: c.transport.Duration().Milliseconds(),
	}
}
