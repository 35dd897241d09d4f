// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"errors"
	"image"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrNoFrame is returned by UpdateTexImage when nothing was published yet.
var ErrNoFrame = errors.New("render: no frame published")

// Surface is the handoff point between a video decoder and the texture the
// compositor samples. The decoder publishes into a single slot; the render
// goroutine latches the newest frame into the texture.
type Surface struct {
	backend Backend
	tex     Texture

	mu      sync.Mutex
	latest  *image.RGBA
	crop    image.Rectangle
	onFrame func()

	// Render goroutine only.
	bounds  image.Rectangle
	curCrop image.Rectangle
}

// NewSurface wraps a texture created by b.
func NewSurface(b Backend, tex Texture) *Surface {
	return &Surface{backend: b, tex: tex}
}

// Texture is the texture this surface feeds.
func (s *Surface) Texture() Texture { return s.tex }

// SetOnFrameAvailable registers the callback run after each Publish. It runs
// on the publishing goroutine and must not block.
func (s *Surface) SetOnFrameAvailable(fn func()) {
	s.mu.Lock()
	s.onFrame = fn
	s.mu.Unlock()
}

// Publish hands a full frame to the surface. The image must not be modified
// afterwards.
func (s *Surface) Publish(img *image.RGBA) {
	s.PublishCropped(img, img.Bounds())
}

// PublishCropped hands a frame whose visible area is crop.
func (s *Surface) PublishCropped(img *image.RGBA, crop image.Rectangle) {
	s.mu.Lock()
	s.latest = img
	s.crop = crop.Intersect(img.Bounds())
	fn := s.onFrame
	s.mu.Unlock()

	if fn != nil {
		fn()
	}
}

// UpdateTexImage uploads the newest published frame. Render goroutine only.
func (s *Surface) UpdateTexImage() error {
	s.mu.Lock()
	img, crop := s.latest, s.crop
	s.mu.Unlock()

	if img == nil {
		return ErrNoFrame
	}
	if err := s.backend.UploadTexture(s.tex, img); err != nil {
		return err
	}
	s.bounds = img.Bounds()
	s.curCrop = crop
	return nil
}

// TransformMatrix writes the matrix mapping unit texture coordinates onto
// the visible area of the last uploaded frame. Render goroutine only.
func (s *Surface) TransformMatrix(out *mgl32.Mat4) {
	w, h := s.bounds.Dx(), s.bounds.Dy()
	if w == 0 || h == 0 || s.curCrop.Empty() {
		*out = mgl32.Ident4()
		return
	}
	sx := float32(s.curCrop.Dx()) / float32(w)
	sy := float32(s.curCrop.Dy()) / float32(h)
	tx := float32(s.curCrop.Min.X-s.bounds.Min.X) / float32(w)
	ty := float32(s.curCrop.Min.Y-s.bounds.Min.Y) / float32(h)
	*out = mgl32.Translate3D(tx, ty, 0).Mul4(mgl32.Scale3D(sx, sy, 1))
}
