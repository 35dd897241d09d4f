// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package render

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// Lens correction coefficients for f = 1 + K1*r² + K2*r⁴, and the overscan
// scale applied after it.
const (
	K1    = 0.35
	K2    = 0.20
	Scale = 0.8
)

// Full-screen quad drawn as a triangle fan, with texture coordinates that
// put (0,0) at the top-left of the frame.
var (
	quadVertices  = []float32{-1, 1, -1, -1, 1, -1, 1, 1}
	quadTexCoords = []float32{0, 0, 0, 1, 1, 1, 1, 0}
)

// The head matrix deliberately warps the flat quad in clip space. This gives
// a look-around effect on a plane, not a 3-D projection.
const vertexShaderES = `
uniform mat4 uHeadMatrix;
uniform mat4 uSTMatrix;
attribute vec4 vPosition;
attribute vec2 vTexCoord;
varying vec2 texCoord;
void main() {
    gl_Position = uHeadMatrix * vPosition;
    texCoord = (uSTMatrix * vec4(vTexCoord, 0.0, 1.0)).xy;
}
`

const fragmentShaderES = `
#extension GL_OES_EGL_image_external : require
precision mediump float;
varying vec2 texCoord;
uniform samplerExternalOES sTexture;
uniform float uK1;
uniform float uK2;
uniform float uScale;
void main() {
    vec2 r = texCoord * 2.0 - 1.0;
    float r2 = dot(r, r);
    float f = 1.0 + uK1 * r2 + uK2 * r2 * r2;
    vec2 n = (r * f * uScale + 1.0) * 0.5;
    if (n.x < 0.0 || n.x > 1.0 || n.y < 0.0 || n.y > 1.0) {
        gl_FragColor = vec4(0.0, 0.0, 0.0, 1.0);
    } else {
        gl_FragColor = texture2D(sTexture, n);
    }
}
`

const vertexShaderGL33 = `
#version 330 core
uniform mat4 uHeadMatrix;
uniform mat4 uSTMatrix;
in vec4 vPosition;
in vec2 vTexCoord;
out vec2 texCoord;
void main() {
    gl_Position = uHeadMatrix * vPosition;
    texCoord = (uSTMatrix * vec4(vTexCoord, 0.0, 1.0)).xy;
}
`

const fragmentShaderGL33 = `
#version 330 core
in vec2 texCoord;
out vec4 fragColor;
uniform sampler2D sTexture;
uniform float uK1;
uniform float uK2;
uniform float uScale;
void main() {
    vec2 r = texCoord * 2.0 - 1.0;
    float r2 = dot(r, r);
    float f = 1.0 + uK1 * r2 + uK2 * r2 * r2;
    vec2 n = (r * f * uScale + 1.0) * 0.5;
    if (n.x < 0.0 || n.x > 1.0 || n.y < 0.0 || n.y > 1.0) {
        fragColor = vec4(0.0, 0.0, 0.0, 1.0);
    } else {
        fragColor = texture(sTexture, n);
    }
}
`

// ShaderSources returns the vertex and fragment source for a dialect.
func ShaderSources(d Dialect) (vertex, fragment string) {
	if d == DialectGL33 {
		return vertexShaderGL33, fragmentShaderGL33
	}
	return vertexShaderES, fragmentShaderES
}

// Distort applies the fragment stage lens correction to a texture
// coordinate. inside is false when the result falls outside [0,1] on either
// axis, where the shader paints black.
func Distort(u, v float32) (x, y float32, inside bool) {
	return DistortWith(u, v, K1, K2, Scale)
}

// DistortWith is Distort with explicit coefficients.
func DistortWith(u, v, k1, k2, scale float32) (x, y float32, inside bool) {
	rx, ry := 2*u-1, 2*v-1
	r2 := rx*rx + ry*ry
	f := 1 + k1*r2 + k2*r2*r2
	x = (rx*f*scale + 1) / 2
	y = (ry*f*scale + 1) / 2
	inside = x >= 0 && x <= 1 && y >= 0 && y <= 1
	return x, y, inside
}

// Pipeline holds the linked program, the video texture and the quad
// buffers, with every location resolved once at build time.
type Pipeline struct {
	Program   Program
	Texture   Texture
	vertices  Buffer
	texCoords Buffer

	aPosition int32
	aTexCoord int32
	uHead     int32
	uST       int32
	uK1       int32
	uK2       int32
	uScale    int32
}

// NewPipeline compiles the shaders for b's dialect and allocates the texture
// and buffers. Any failure, including a missing attribute or uniform, is
// returned: rendering cannot proceed without the full program.
func NewPipeline(b Backend) (*Pipeline, error) {
	vs, fs := ShaderSources(b.Dialect())
	prog, err := b.CreateProgram(vs, fs)
	if err != nil {
		return nil, fmt.Errorf("pipeline: build %s program: %w", b.Dialect(), err)
	}

	p := &Pipeline{Program: prog}

	attribs := []struct {
		name string
		dst  *int32
	}{
		{"vPosition", &p.aPosition},
		{"vTexCoord", &p.aTexCoord},
	}
	for _, a := range attribs {
		*a.dst = b.AttribLocation(prog, a.name)
		if *a.dst < 0 {
			return nil, fmt.Errorf("pipeline: attribute %s not found", a.name)
		}
	}

	uniforms := []struct {
		name string
		dst  *int32
	}{
		{"uHeadMatrix", &p.uHead},
		{"uSTMatrix", &p.uST},
		{"uK1", &p.uK1},
		{"uK2", &p.uK2},
		{"uScale", &p.uScale},
	}
	for _, u := range uniforms {
		*u.dst = b.UniformLocation(prog, u.name)
		if *u.dst < 0 {
			return nil, fmt.Errorf("pipeline: uniform %s not found", u.name)
		}
	}

	if p.Texture, err = b.CreateTexture(); err != nil {
		return nil, fmt.Errorf("pipeline: texture: %w", err)
	}
	if p.vertices, err = b.CreateBuffer(quadVertices); err != nil {
		return nil, fmt.Errorf("pipeline: vertex buffer: %w", err)
	}
	if p.texCoords, err = b.CreateBuffer(quadTexCoords); err != nil {
		return nil, fmt.Errorf("pipeline: texcoord buffer: %w", err)
	}
	return p, nil
}

// Bind makes the program current and uploads all per-frame inputs.
func (p *Pipeline) Bind(b Backend, head, st *mgl32.Mat4) {
	b.UseProgram(p.Program)
	b.BindTexture(p.Texture)
	b.EnableVertexAttrib(p.aPosition, p.vertices, 2)
	b.EnableVertexAttrib(p.aTexCoord, p.texCoords, 2)
	b.UniformMatrix4(p.uHead, head)
	b.UniformMatrix4(p.uST, st)
	b.Uniform1f(p.uK1, K1)
	b.Uniform1f(p.uK2, K2)
	b.Uniform1f(p.uScale, Scale)
}

// Draw issues the quad into the current viewport.
func (p *Pipeline) Draw(b Backend) {
	b.DrawTriangleFan(0, 4)
}

// Unbind disables the attribute arrays enabled by Bind.
func (p *Pipeline) Unbind(b Backend) {
	b.DisableVertexAttrib(p.aPosition)
	b.DisableVertexAttrib(p.aTexCoord)
}
