// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package video

import (
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"
	"time"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/relabs-tech/stereo_player/internal/render"
)

// PatternDuration is the length of one pass of the synthetic clip.
const PatternDuration = 60 * time.Second

var (
	gridDark  = color.RGBA{40, 40, 48, 255}
	gridLight = color.RGBA{200, 200, 210, 255}
	barColor  = color.RGBA{230, 40, 40, 255}
	textColor = color.RGBA{255, 255, 0, 255}
)

// PatternSource renders a test card with a sweeping bar. It behaves like a
// player: it has a clock that advances only while playing and honors seeks.
type PatternSource struct {
	width, height int
	fps           int
	loop          bool

	mu       sync.Mutex
	surface  *render.Surface
	pos      time.Duration
	playing  bool
	lastTick time.Time
	stop     chan struct{}
	done     chan struct{}
}

// NewPatternSource returns a width x height source producing fps frames a
// second.
func NewPatternSource(width, height, fps int, loop bool) *PatternSource {
	if fps <= 0 {
		fps = 30
	}
	return &PatternSource{width: width, height: height, fps: fps, loop: loop, playing: true}
}

func (p *PatternSource) SetVideoSurface(s *render.Surface) {
	p.mu.Lock()
	p.surface = s
	p.mu.Unlock()
}

// Start begins producing frames.
func (p *PatternSource) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stop != nil {
		return
	}
	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	p.lastTick = time.Now()
	go p.run(p.stop, p.done)
	log.Printf("video: pattern source %dx%d at %d fps", p.width, p.height, p.fps)
}

func (p *PatternSource) run(stop, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(time.Second / time.Duration(p.fps))
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case now := <-ticker.C:
			pos, s, ok := p.advance(now)
			if ok && s != nil {
				s.Publish(p.Frame(pos))
			}
		}
	}
}

// advance moves the clock to now and reports whether a new frame is due.
func (p *PatternSource) advance(now time.Time) (time.Duration, *render.Surface, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := now.Sub(p.lastTick)
	p.lastTick = now
	if !p.playing {
		return p.pos, p.surface, false
	}
	p.pos += elapsed
	if p.pos >= PatternDuration {
		if p.loop {
			p.pos %= PatternDuration
		} else {
			p.pos = PatternDuration
			p.playing = false
		}
	}
	return p.pos, p.surface, true
}

// Frame draws the card for playback position pos.
func (p *PatternSource) Frame(pos time.Duration) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	draw.Draw(img, img.Bounds(), &image.Uniform{gridDark}, image.Point{}, draw.Src)

	cell := p.height / 9
	if cell < 4 {
		cell = 4
	}
	for y := 0; y < p.height; y += cell {
		for x := 0; x < p.width; x += cell {
			if (x/cell+y/cell)%2 == 0 {
				r := image.Rect(x, y, x+cell, y+cell)
				draw.Draw(img, r, &image.Uniform{gridLight}, image.Point{}, draw.Src)
			}
		}
	}

	frac := float64(pos) / float64(PatternDuration)
	barW := p.width / 40
	if barW < 2 {
		barW = 2
	}
	bx := int(frac * float64(p.width-barW))
	draw.Draw(img, image.Rect(bx, 0, bx+barW, p.height), &image.Uniform{barColor}, image.Point{}, draw.Src)

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{textColor},
		Face: basicfont.Face7x13,
		Dot:  fixed.P(p.width/2-28, p.height/2+4),
	}
	drawer.DrawString(fmt.Sprintf("%02d:%02d.%d", int(pos.Minutes()), int(pos.Seconds())%60, (pos.Milliseconds()/100)%10))
	return img
}

func (p *PatternSource) Play() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pos >= PatternDuration {
		p.pos = 0
	}
	p.playing = true
	return nil
}

func (p *PatternSource) Pause() error {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
	return nil
}

func (p *PatternSource) TogglePlay() error {
	if p.Playing() {
		return p.Pause()
	}
	return p.Play()
}

// Seek moves the clock and publishes the frame at the new position even
// while paused.
func (p *PatternSource) Seek(pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}
	if pos > PatternDuration {
		pos = PatternDuration
	}
	p.mu.Lock()
	p.pos = pos
	s := p.surface
	p.mu.Unlock()
	if s != nil {
		s.Publish(p.Frame(pos))
	}
	return nil
}

func (p *PatternSource) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pos
}

func (p *PatternSource) Duration() time.Duration { return PatternDuration }

func (p *PatternSource) Playing() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// Stop halts frame production. Safe to call more than once.
func (p *PatternSource) Stop() {
	p.mu.Lock()
	stop, done := p.stop, p.done
	p.stop, p.done = nil, nil
	p.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}
