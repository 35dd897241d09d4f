// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package soft is a CPU implementation of render.Backend. It runs the
// lens-correction program on an image.RGBA so the player can render
// headless and tests can check pixels.
package soft

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"math"
	"regexp"
	"strings"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"

	"github.com/relabs-tech/stereo_player/internal/render"
)

var declRe = regexp.MustCompile(`(?m)^\s*(uniform|attribute|in)\s+\w+\s+(\w+)\s*;`)

type program struct {
	attribs  map[string]int32
	uniforms map[string]int32
	mats     map[int32]mgl32.Mat4
	floats   map[int32]float32
}

type attrib struct {
	buf     render.Buffer
	size    int32
	enabled bool
}

// Backend rasterizes into an RGBA framebuffer whose origin is the top-left
// pixel, while viewports use GL's bottom-left convention.
type Backend struct {
	fb    *image.RGBA
	clear color.RGBA

	programs map[render.Program]*program
	textures map[render.Texture]*image.RGBA
	buffers  map[render.Buffer][]float32
	attribs  map[int32]*attrib
	next     uint32

	cur      *program
	tex      render.Texture
	viewport image.Rectangle
}

// New returns a backend with a width x height framebuffer.
func New(width, height int) *Backend {
	b := &Backend{
		programs: map[render.Program]*program{},
		textures: map[render.Texture]*image.RGBA{},
		buffers:  map[render.Buffer][]float32{},
		attribs:  map[int32]*attrib{},
	}
	b.Resize(width, height)
	return b
}

// Resize replaces the framebuffer and resets the viewport to cover it.
func (b *Backend) Resize(width, height int) {
	b.fb = image.NewRGBA(image.Rect(0, 0, width, height))
	b.viewport = image.Rect(0, 0, width, height)
}

// Frame is the framebuffer. It is reused between frames.
func (b *Backend) Frame() *image.RGBA { return b.fb }

func (b *Backend) Dialect() render.Dialect { return render.DialectESExternal }

func (b *Backend) ClearColor(r, g, bl, a float32) {
	b.clear = color.RGBA{to8(r), to8(g), to8(bl), to8(a)}
}

func (b *Backend) Clear() {
	draw.Draw(b.fb, b.fb.Bounds(), &image.Uniform{b.clear}, image.Point{}, draw.Src)
}

func (b *Backend) id() uint32 {
	b.next++
	return b.next
}

// CreateProgram checks both stages have an entry point and collects the
// declared attributes and uniforms.
func (b *Backend) CreateProgram(vertexSrc, fragmentSrc string) (render.Program, error) {
	if !strings.Contains(vertexSrc, "void main") {
		return 0, errors.New("soft: vertex shader has no main")
	}
	if !strings.Contains(fragmentSrc, "void main") {
		return 0, errors.New("soft: fragment shader has no main")
	}

	p := &program{
		attribs:  map[string]int32{},
		uniforms: map[string]int32{},
		mats:     map[int32]mgl32.Mat4{},
		floats:   map[int32]float32{},
	}
	for _, m := range declRe.FindAllStringSubmatch(vertexSrc, -1) {
		switch m[1] {
		case "attribute", "in":
			p.attribs[m[2]] = int32(len(p.attribs))
		case "uniform":
			p.addUniform(m[2])
		}
	}
	for _, m := range declRe.FindAllStringSubmatch(fragmentSrc, -1) {
		if m[1] == "uniform" {
			p.addUniform(m[2])
		}
	}

	id := render.Program(b.id())
	b.programs[id] = p
	return id, nil
}

func (p *program) addUniform(name string) {
	if _, ok := p.uniforms[name]; !ok {
		p.uniforms[name] = int32(len(p.uniforms))
	}
}

func (b *Backend) AttribLocation(p render.Program, name string) int32 {
	if prog, ok := b.programs[p]; ok {
		if loc, ok := prog.attribs[name]; ok {
			return loc
		}
	}
	return -1
}

func (b *Backend) UniformLocation(p render.Program, name string) int32 {
	if prog, ok := b.programs[p]; ok {
		if loc, ok := prog.uniforms[name]; ok {
			return loc
		}
	}
	return -1
}

func (b *Backend) UseProgram(p render.Program) { b.cur = b.programs[p] }

func (b *Backend) CreateTexture() (render.Texture, error) {
	t := render.Texture(b.id())
	b.textures[t] = nil
	return t, nil
}

// UploadTexture copies img, so the decoder may reuse its buffer.
func (b *Backend) UploadTexture(t render.Texture, img *image.RGBA) error {
	if _, ok := b.textures[t]; !ok {
		return fmt.Errorf("soft: unknown texture %d", t)
	}
	dst := b.textures[t]
	if dst == nil || dst.Bounds().Size() != img.Bounds().Size() {
		dst = image.NewRGBA(image.Rectangle{Max: img.Bounds().Size()})
		b.textures[t] = dst
	}
	draw.Copy(dst, image.Point{}, img, img.Bounds(), draw.Src, nil)
	return nil
}

func (b *Backend) BindTexture(t render.Texture) { b.tex = t }

func (b *Backend) CreateBuffer(data []float32) (render.Buffer, error) {
	buf := render.Buffer(b.id())
	b.buffers[buf] = append([]float32(nil), data...)
	return buf, nil
}

func (b *Backend) EnableVertexAttrib(loc int32, buf render.Buffer, size int32) {
	b.attribs[loc] = &attrib{buf: buf, size: size, enabled: true}
}

func (b *Backend) DisableVertexAttrib(loc int32) {
	if a, ok := b.attribs[loc]; ok {
		a.enabled = false
	}
}

func (b *Backend) UniformMatrix4(loc int32, m *mgl32.Mat4) {
	if b.cur != nil {
		b.cur.mats[loc] = *m
	}
}

func (b *Backend) Uniform1f(loc int32, v float32) {
	if b.cur != nil {
		b.cur.floats[loc] = v
	}
}

func (b *Backend) Viewport(x, y, width, height int32) {
	b.viewport = image.Rect(int(x), int(y), int(x+width), int(y+height))
}

type vertex struct {
	x, y   float32 // window coordinates, y up
	tu, tv float32
}

// DrawTriangleFan runs the lens-correction program over a fan of count
// vertices starting at first.
func (b *Backend) DrawTriangleFan(first, count int32) {
	p := b.cur
	if p == nil || count < 3 {
		return
	}
	pos, okPos := b.attribData(p, "vPosition")
	tc, okTC := b.attribData(p, "vTexCoord")
	if !okPos || !okTC {
		return
	}

	head := p.mat("uHeadMatrix")
	st := p.mat("uSTMatrix")
	k1, k2, scale := p.float("uK1"), p.float("uK2"), p.float("uScale")

	verts := make([]vertex, 0, count)
	for i := first; i < first+count; i++ {
		in := mgl32.Vec4{0, 0, 0, 1}
		copy(in[:pos.size], pos.data[int(i*pos.size):int((i+1)*pos.size)])
		clip := head.Mul4x1(in)
		if clip[3] == 0 {
			return
		}
		ndcX, ndcY := clip[0]/clip[3], clip[1]/clip[3]

		t := mgl32.Vec4{0, 0, 0, 1}
		copy(t[:tc.size], tc.data[int(i*tc.size):int((i+1)*tc.size)])
		t = st.Mul4x1(t)

		verts = append(verts, vertex{
			x:  float32(b.viewport.Min.X) + (ndcX+1)/2*float32(b.viewport.Dx()),
			y:  float32(b.viewport.Min.Y) + (ndcY+1)/2*float32(b.viewport.Dy()),
			tu: t[0],
			tv: t[1],
		})
	}

	tex := b.textures[b.tex]
	for i := 1; i+1 < len(verts); i++ {
		b.fillTriangle(verts[0], verts[i], verts[i+1], tex, k1, k2, scale)
	}
}

type attribView struct {
	data []float32
	size int32
}

func (b *Backend) attribData(p *program, name string) (attribView, bool) {
	loc, ok := p.attribs[name]
	if !ok {
		return attribView{}, false
	}
	a, ok := b.attribs[loc]
	if !ok || !a.enabled {
		return attribView{}, false
	}
	return attribView{data: b.buffers[a.buf], size: a.size}, true
}

func (p *program) mat(name string) mgl32.Mat4 {
	if loc, ok := p.uniforms[name]; ok {
		if m, ok := p.mats[loc]; ok {
			return m
		}
	}
	return mgl32.Ident4()
}

func (p *program) float(name string) float32 {
	if loc, ok := p.uniforms[name]; ok {
		return p.floats[loc]
	}
	return 0
}

// fillTriangle shades pixels whose centers fall inside the triangle, limited
// to the viewport as clip-space clipping would.
func (b *Backend) fillTriangle(v0, v1, v2 vertex, tex *image.RGBA, k1, k2, scale float32) {
	area := edge(v0, v1, v2.x, v2.y)
	if area == 0 {
		return
	}

	fbH := b.fb.Bounds().Dy()
	clipRect := b.viewport.Intersect(image.Rect(0, 0, b.fb.Bounds().Dx(), fbH))

	minX := int(math.Floor(float64(min3(v0.x, v1.x, v2.x))))
	maxX := int(math.Ceil(float64(max3(v0.x, v1.x, v2.x))))
	minY := int(math.Floor(float64(min3(v0.y, v1.y, v2.y))))
	maxY := int(math.Ceil(float64(max3(v0.y, v1.y, v2.y))))
	box := image.Rect(minX, minY, maxX, maxY).Intersect(clipRect)

	for y := box.Min.Y; y < box.Max.Y; y++ {
		py := float32(y) + 0.5
		for x := box.Min.X; x < box.Max.X; x++ {
			px := float32(x) + 0.5
			w0 := edge(v1, v2, px, py) / area
			w1 := edge(v2, v0, px, py) / area
			w2 := edge(v0, v1, px, py) / area
			if w0 < 0 || w1 < 0 || w2 < 0 {
				continue
			}
			u := w0*v0.tu + w1*v1.tu + w2*v2.tu
			v := w0*v0.tv + w1*v1.tv + w2*v2.tv
			// Window y grows upward; framebuffer rows grow downward.
			b.fb.SetRGBA(x, fbH-1-y, shade(tex, u, v, k1, k2, scale))
		}
	}
}

var black = color.RGBA{0, 0, 0, 255}

func shade(tex *image.RGBA, u, v, k1, k2, scale float32) color.RGBA {
	nx, ny, inside := render.DistortWith(u, v, k1, k2, scale)
	if !inside || tex == nil {
		return black
	}
	w, h := tex.Bounds().Dx(), tex.Bounds().Dy()
	sx := clampInt(int(nx*float32(w)), 0, w-1)
	sy := clampInt(int(ny*float32(h)), 0, h-1)
	return tex.RGBAAt(sx, sy)
}

func edge(a, b vertex, x, y float32) float32 {
	return (b.x-a.x)*(y-a.y) - (b.y-a.y)*(x-a.x)
}

func min3(a, b, c float32) float32 { return float32(math.Min(float64(a), math.Min(float64(b), float64(c)))) }

func max3(a, b, c float32) float32 { return float32(math.Max(float64(a), math.Max(float64(b), float64(c)))) }

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func to8(f float32) uint8 {
	return uint8(math.Round(float64(mgl32.Clamp(f, 0, 1)) * 255))
}
