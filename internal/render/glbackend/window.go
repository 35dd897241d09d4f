// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package glbackend

import (
	"fmt"
	"log"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"

	"github.com/relabs-tech/stereo_player/internal/control"
)

// KeyCommand maps a key press to a player command.
func KeyCommand(key glfw.Key) (control.Command, bool) {
	switch key {
	case glfw.KeyUp:
		return control.CmdIPDUp, true
	case glfw.KeyDown:
		return control.CmdIPDDown, true
	case glfw.KeyEnter, glfw.KeyKPEnter, glfw.KeySpace:
		return control.CmdTogglePlay, true
	case glfw.KeyLeft:
		return control.CmdSeekBack, true
	case glfw.KeyRight:
		return control.CmdSeekForward, true
	case glfw.KeyEscape, glfw.KeyQ:
		return control.CmdQuit, true
	}
	return "", false
}

// Window owns the GLFW window and its GL context. All methods except Close
// must run on the goroutine that called OpenWindow.
type Window struct {
	win  *glfw.Window
	quit atomic.Bool
}

// OpenWindow creates a window with a 3.3 core context made current on the
// calling goroutine, which is locked to its OS thread.
func OpenWindow(title string, width, height int, fullscreen bool) (*Window, error) {
	runtime.LockOSThread()

	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}

	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ContextVersionMajor, 3)
	glfw.WindowHint(glfw.ContextVersionMinor, 3)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)

	var monitor *glfw.Monitor
	if fullscreen {
		monitor = glfw.GetPrimaryMonitor()
		if mode := monitor.GetVideoMode(); mode != nil {
			width, height = mode.Width, mode.Height
		}
	}

	win, err := glfw.CreateWindow(width, height, title, monitor, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}
	win.MakeContextCurrent()

	if err := gl.Init(); err != nil {
		win.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("gl init: %w", err)
	}
	glfw.SwapInterval(1)

	log.Printf("glbackend: %s, GL %s", gl.GoStr(gl.GetString(gl.RENDERER)), gl.GoStr(gl.GetString(gl.VERSION)))
	return &Window{win: win}, nil
}

// FramebufferSize returns the drawable size in pixels.
func (w *Window) FramebufferSize() (int, int) { return w.win.GetFramebufferSize() }

// Close asks the run loop to exit.
func (w *Window) Close() { w.quit.Store(true) }

// Run polls events and calls draw until the window closes or Close is
// called. The back buffer is swapped only when draw reports it drew
// something. onKey receives mapped commands, onResize the new framebuffer
// size.
func (w *Window) Run(draw func() bool, onKey func(control.Command), onResize func(width, height int)) {
	w.win.SetKeyCallback(func(_ *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press && action != glfw.Repeat {
			return
		}
		if cmd, ok := KeyCommand(key); ok && onKey != nil {
			onKey(cmd)
		}
	})
	w.win.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		if onResize != nil {
			onResize(width, height)
		}
	})

	for !w.win.ShouldClose() && !w.quit.Load() {
		glfw.PollEvents()
		if draw() {
			w.win.SwapBuffers()
		} else {
			time.Sleep(time.Millisecond)
		}
	}
}

// Destroy releases the window and terminates GLFW.
func (w *Window) Destroy() {
	w.win.Destroy()
	glfw.Terminate()
}
