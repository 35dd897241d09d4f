// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"sync/atomic"

	"github.com/go-gl/mathgl/mgl32"
)

// FrameSync coalesces decoder frame notifications into at most one texture
// refresh per render iteration.
type FrameSync struct {
	pending  atomic.Bool
	notified atomic.Uint64
	uploads  atomic.Uint64
}

// FrameStats counts notifications against uploads. Coalesced is how many
// notifications were folded into a later upload.
type FrameStats struct {
	Notifications uint64 `json:"notifications"`
	Uploads       uint64 `json:"uploads"`
	Coalesced     uint64 `json:"coalesced"`
}

// OnFrameAvailable marks a frame as pending. Safe from any goroutine.
func (f *FrameSync) OnFrameAvailable() {
	f.notified.Add(1)
	f.pending.Store(true)
}

// Pending reports whether a frame is waiting to be consumed.
func (f *FrameSync) Pending() bool {
	return f.pending.Load()
}

// ConsumeIfPending runs upload and then transform into st if a frame is
// pending. It returns false and leaves st untouched otherwise.
//
// The flag is cleared before upload so a notification that lands during
// the upload is kept for the next iteration. If upload fails the flag is
// set again and st is not modified.
//
// Render goroutine only.
func (f *FrameSync) ConsumeIfPending(upload func() error, transform func(*mgl32.Mat4), st *mgl32.Mat4) (bool, error) {
	if !f.pending.CompareAndSwap(true, false) {
		return false, nil
	}
	if err := upload(); err != nil {
		f.pending.Store(true)
		return false, err
	}
	f.uploads.Add(1)
	transform(st)
	return true, nil
}

// Stats returns a snapshot of the counters.
func (f *FrameSync) Stats() FrameStats {
	up := f.uploads.Load()
	n := f.notified.Load()
	s := FrameStats{Notifications: n, Uploads: up}
	if n > up {
		s.Coalesced = n - up
	}
	return s
}
