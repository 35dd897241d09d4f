// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package glbackend implements render.Backend on desktop OpenGL 3.3 core
// with a GLFW window supplying the context and the vsync cadence.
package glbackend

import (
	"fmt"
	"image"
	"strings"

	"github.com/go-gl/gl/v3.3-core/gl"
	"github.com/go-gl/mathgl/mgl32"

	"github.com/relabs-tech/stereo_player/internal/render"
)

// Backend issues GL calls on the goroutine that owns the current context.
type Backend struct {
	vao     uint32
	texSize map[render.Texture]image.Point
}

// New returns a backend for the current context. gl.Init must have run.
func New() *Backend {
	b := &Backend{texSize: map[render.Texture]image.Point{}}
	// Core profile refuses attribute pointers without a bound VAO.
	gl.GenVertexArrays(1, &b.vao)
	gl.BindVertexArray(b.vao)
	return b
}

func (b *Backend) Dialect() render.Dialect { return render.DialectGL33 }

func (b *Backend) ClearColor(r, g, bl, a float32) { gl.ClearColor(r, g, bl, a) }

func (b *Backend) Clear() { gl.Clear(gl.COLOR_BUFFER_BIT) }

func (b *Backend) CreateProgram(vertexSrc, fragmentSrc string) (render.Program, error) {
	vs, err := compileShader(vertexSrc, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(vs)

	fs, err := compileShader(fragmentSrc, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return 0, err
	}
	defer gl.DeleteShader(fs)

	program := gl.CreateProgram()
	gl.AttachShader(program, vs)
	gl.AttachShader(program, fs)
	gl.LinkProgram(program)

	var status int32
	gl.GetProgramiv(program, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetProgramiv(program, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetProgramInfoLog(program, logLength, nil, gl.Str(log))
		gl.DeleteProgram(program)
		return 0, fmt.Errorf("failed to link program:\n%v", log)
	}
	return render.Program(program), nil
}

func compileShader(source string, kind uint32, name string) (uint32, error) {
	shader := gl.CreateShader(kind)
	csources, free := gl.Strs(source + "\x00")
	gl.ShaderSource(shader, 1, csources, nil)
	free()
	gl.CompileShader(shader)

	var status int32
	gl.GetShaderiv(shader, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var logLength int32
		gl.GetShaderiv(shader, gl.INFO_LOG_LENGTH, &logLength)
		log := strings.Repeat("\x00", int(logLength+1))
		gl.GetShaderInfoLog(shader, logLength, nil, gl.Str(log))
		gl.DeleteShader(shader)
		return 0, fmt.Errorf("failed to compile %s shader:\n%v", name, log)
	}
	return shader, nil
}

func (b *Backend) AttribLocation(p render.Program, name string) int32 {
	return gl.GetAttribLocation(uint32(p), gl.Str(name+"\x00"))
}

func (b *Backend) UniformLocation(p render.Program, name string) int32 {
	return gl.GetUniformLocation(uint32(p), gl.Str(name+"\x00"))
}

func (b *Backend) UseProgram(p render.Program) { gl.UseProgram(uint32(p)) }

// CreateTexture allocates a 2D texture with nearest minification and linear
// magnification, clamped at the edges.
func (b *Backend) CreateTexture() (render.Texture, error) {
	var tex uint32
	gl.GenTextures(1, &tex)
	if tex == 0 {
		return 0, fmt.Errorf("glGenTextures returned no name (error 0x%x)", gl.GetError())
	}
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	return render.Texture(tex), nil
}

// UploadTexture reallocates storage when the frame size changes and
// otherwise updates it in place.
func (b *Backend) UploadTexture(t render.Texture, img *image.RGBA) error {
	size := img.Bounds().Size()
	if img.Stride != 4*size.X {
		return fmt.Errorf("texture upload: stride %d does not match width %d", img.Stride, size.X)
	}
	gl.BindTexture(gl.TEXTURE_2D, uint32(t))
	if b.texSize[t] != size {
		gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(size.X), int32(size.Y), 0,
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
		b.texSize[t] = size
	} else {
		gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, int32(size.X), int32(size.Y),
			gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	}
	if e := gl.GetError(); e != gl.NO_ERROR {
		return fmt.Errorf("texture upload: GL error 0x%x", e)
	}
	return nil
}

func (b *Backend) BindTexture(t render.Texture) {
	gl.ActiveTexture(gl.TEXTURE0)
	gl.BindTexture(gl.TEXTURE_2D, uint32(t))
}

func (b *Backend) CreateBuffer(data []float32) (render.Buffer, error) {
	var vbo uint32
	gl.GenBuffers(1, &vbo)
	if vbo == 0 {
		return 0, fmt.Errorf("glGenBuffers returned no name (error 0x%x)", gl.GetError())
	}
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STATIC_DRAW)
	return render.Buffer(vbo), nil
}

func (b *Backend) EnableVertexAttrib(loc int32, buf render.Buffer, size int32) {
	gl.BindBuffer(gl.ARRAY_BUFFER, uint32(buf))
	gl.VertexAttribPointer(uint32(loc), size, gl.FLOAT, false, size*4, gl.Ptr(nil))
	gl.EnableVertexAttribArray(uint32(loc))
}

func (b *Backend) DisableVertexAttrib(loc int32) { gl.DisableVertexAttribArray(uint32(loc)) }

// UniformMatrix4 uploads m untransposed.
func (b *Backend) UniformMatrix4(loc int32, m *mgl32.Mat4) {
	gl.UniformMatrix4fv(loc, 1, false, &m[0])
}

func (b *Backend) Uniform1f(loc int32, v float32) { gl.Uniform1f(loc, v) }

func (b *Backend) Viewport(x, y, width, height int32) { gl.Viewport(x, y, width, height) }

func (b *Backend) DrawTriangleFan(first, count int32) {
	gl.DrawArrays(gl.TRIANGLE_FAN, first, count)
}
