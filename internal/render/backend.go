// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package render draws a head-tracked, lens-corrected stereo pair from a
// single video texture.
//
// All Backend calls happen on the render goroutine. Other goroutines only
// touch the tracker's view matrix, the FrameSync flag and the Surface slot.
package render

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// Program, Texture and Buffer are backend object names.
type (
	Program uint32
	Texture uint32
	Buffer  uint32
)

// Dialect selects which shader source a backend compiles.
type Dialect int

const (
	// DialectESExternal is GLSL ES 1.00 sampling a samplerExternalOES, the
	// form used with decoder-owned textures on phones.
	DialectESExternal Dialect = iota
	// DialectGL33 is GLSL 3.30 core with a plain sampler2D.
	DialectGL33
)

func (d Dialect) String() string {
	switch d {
	case DialectESExternal:
		return "es-external"
	case DialectGL33:
		return "gl33"
	default:
		return "unknown"
	}
}

// Backend is the draw-call contract the compositor needs from a GPU.
// Attribute and uniform lookups return -1 when the name is not active.
type Backend interface {
	Dialect() Dialect

	ClearColor(r, g, b, a float32)
	Clear()

	CreateProgram(vertexSrc, fragmentSrc string) (Program, error)
	AttribLocation(p Program, name string) int32
	UniformLocation(p Program, name string) int32
	UseProgram(p Program)

	CreateTexture() (Texture, error)
	UploadTexture(t Texture, img *image.RGBA) error
	BindTexture(t Texture)

	CreateBuffer(data []float32) (Buffer, error)
	EnableVertexAttrib(loc int32, b Buffer, size int32)
	DisableVertexAttrib(loc int32)

	UniformMatrix4(loc int32, m *mgl32.Mat4)
	Uniform1f(loc int32, v float32)

	Viewport(x, y, width, height int32)
	DrawTriangleFan(first, count int32)
}
