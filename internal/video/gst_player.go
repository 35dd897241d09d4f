// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package video

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/tinyzimmer/go-gst/gst"
	"github.com/tinyzimmer/go-gst/gst/app"

	"github.com/relabs-tech/stereo_player/internal/render"
)

// ErrNotStarted is returned by transport calls before Start.
var ErrNotStarted = errors.New("video: player not started")

// GstPlayer decodes a file or stream with GStreamer and publishes RGBA
// frames to the render surface from the appsink streaming thread.
type GstPlayer struct {
	uri           string
	width, height int
	loop          bool
	session       string

	surfaceMu sync.Mutex
	surface   *render.Surface

	mu       sync.Mutex
	pipeline *gst.Pipeline
	cancel   context.CancelFunc
	done     chan struct{}

	playing atomic.Bool
	frames  atomic.Uint64
	dropped atomic.Uint64
}

// NewGstPlayer returns a player for uri, scaled to width x height. A plain
// path is turned into a file:// URI.
func NewGstPlayer(uri string, width, height int, loop bool) *GstPlayer {
	return &GstPlayer{
		uri:     toURI(uri),
		width:   width,
		height:  height,
		loop:    loop,
		session: uuid.New().String(),
	}
}

func toURI(s string) string {
	if strings.Contains(s, "://") {
		return s
	}
	abs, err := filepath.Abs(s)
	if err != nil {
		abs = s
	}
	return (&url.URL{Scheme: "file", Path: abs}).String()
}

func launchLine(uri string, width, height int) string {
	return fmt.Sprintf(
		`uridecodebin uri="%s" ! videoconvert ! videoscale ! video/x-raw,format=RGBA,width=%d,height=%d ! appsink name=videosink`,
		uri, width, height,
	)
}

// SetVideoSurface attaches the render surface frames are published to.
func (p *GstPlayer) SetVideoSurface(s *render.Surface) {
	p.surfaceMu.Lock()
	p.surface = s
	p.surfaceMu.Unlock()
}

// Start builds the pipeline, starts playback and watches the bus until ctx
// is done or Stop is called.
func (p *GstPlayer) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipeline != nil {
		return nil
	}

	gst.Init(nil)

	pipeline, err := gst.NewPipelineFromString(launchLine(p.uri, p.width, p.height))
	if err != nil {
		return fmt.Errorf("video: build pipeline: %w", err)
	}
	elem, err := pipeline.GetElementByName("videosink")
	if err != nil {
		return fmt.Errorf("video: appsink not found: %w", err)
	}
	sink := app.SinkFromElement(elem)
	sink.SetProperty("sync", true)
	sink.SetProperty("max-buffers", 2)
	sink.SetProperty("drop", true)
	sink.SetCallbacks(&app.SinkCallbacks{
		NewSampleFunc: p.onSample,
	})

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("video: start pipeline: %w", err)
	}
	p.playing.Store(true)

	ctx, cancel := context.WithCancel(ctx)
	p.pipeline = pipeline
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.monitor(ctx, pipeline, p.done)

	log.Printf("video: playing %s at %dx%d (session %s)", p.uri, p.width, p.height, p.session)
	return nil
}

func (p *GstPlayer) onSample(sink *app.Sink) gst.FlowReturn {
	sample := sink.PullSample()
	if sample == nil {
		return gst.FlowOK
	}
	buffer := sample.GetBuffer()
	if buffer == nil {
		return gst.FlowOK
	}

	mapInfo := buffer.Map(gst.MapRead)
	data := mapInfo.Bytes()
	want := p.width * p.height * 4
	if len(data) < want {
		buffer.Unmap()
		p.dropped.Add(1)
		return gst.FlowOK
	}
	img := image.NewRGBA(image.Rect(0, 0, p.width, p.height))
	copy(img.Pix, data[:want])
	buffer.Unmap()

	p.frames.Add(1)
	p.surfaceMu.Lock()
	s := p.surface
	p.surfaceMu.Unlock()
	if s != nil {
		s.Publish(img)
	}
	return gst.FlowOK
}

func (p *GstPlayer) monitor(ctx context.Context, pipeline *gst.Pipeline, done chan struct{}) {
	defer close(done)
	bus := pipeline.GetPipelineBus()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		msg := bus.TimedPop(50 * time.Millisecond)
		if msg == nil {
			continue
		}
		switch msg.Type() {
		case gst.MessageEOS:
			if p.loop {
				log.Printf("video: end of stream, looping (%d frames)", p.frames.Load())
				if !pipeline.SendEvent(seekEvent(0)) {
					log.Println("video: rewind refused")
				}
				continue
			}
			log.Printf("video: end of stream (%d frames)", p.frames.Load())
			if err := pipeline.SetState(gst.StatePaused); err != nil {
				log.Printf("video: pause at end: %v", err)
			}
			p.playing.Store(false)
		case gst.MessageError:
			gerr := msg.ParseError()
			log.Printf("video: pipeline error: %s (%s)", gerr.Error(), gerr.DebugString())
			p.playing.Store(false)
			return
		}
	}
}

// seekEvent is a flushing key-unit seek to pos that leaves the stop
// position alone.
func seekEvent(pos time.Duration) *gst.Event {
	return gst.NewSeekEvent(1.0, gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit,
		gst.SeekTypeSet, int64(pos), gst.SeekTypeNone, -1)
}

func (p *GstPlayer) current() (*gst.Pipeline, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipeline == nil {
		return nil, ErrNotStarted
	}
	return p.pipeline, nil
}

func (p *GstPlayer) Play() error {
	pl, err := p.current()
	if err != nil {
		return err
	}
	if err := pl.SetState(gst.StatePlaying); err != nil {
		return fmt.Errorf("video: play: %w", err)
	}
	p.playing.Store(true)
	return nil
}

func (p *GstPlayer) Pause() error {
	pl, err := p.current()
	if err != nil {
		return err
	}
	if err := pl.SetState(gst.StatePaused); err != nil {
		return fmt.Errorf("video: pause: %w", err)
	}
	p.playing.Store(false)
	return nil
}

// TogglePlay flips between playing and paused.
func (p *GstPlayer) TogglePlay() error {
	if p.Playing() {
		return p.Pause()
	}
	return p.Play()
}

// Seek jumps to pos, clamped to the stream.
func (p *GstPlayer) Seek(pos time.Duration) error {
	pl, err := p.current()
	if err != nil {
		return err
	}
	if pos < 0 {
		pos = 0
	}
	if d := p.Duration(); d > 0 && pos > d {
		pos = d
	}
	if !pl.SendEvent(seekEvent(pos)) {
		return fmt.Errorf("video: seek to %v refused", pos)
	}
	return nil
}

func (p *GstPlayer) Position() time.Duration {
	pl, err := p.current()
	if err != nil {
		return 0
	}
	ok, ns := pl.QueryPosition(gst.FormatTime)
	if !ok {
		return 0
	}
	return time.Duration(ns)
}

func (p *GstPlayer) Duration() time.Duration {
	pl, err := p.current()
	if err != nil {
		return 0
	}
	ok, ns := pl.QueryDuration(gst.FormatTime)
	if !ok {
		return 0
	}
	return time.Duration(ns)
}

func (p *GstPlayer) Playing() bool { return p.playing.Load() }

// Frames counts decoded frames handed to the surface.
func (p *GstPlayer) Frames() uint64 { return p.frames.Load() }

// Stop tears the pipeline down. Safe to call more than once.
func (p *GstPlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pipeline == nil {
		return
	}
	p.cancel()
	<-p.done
	if err := p.pipeline.SetState(gst.StateNull); err != nil {
		log.Printf("video: stop pipeline: %v", err)
	}
	p.pipeline = nil
	p.playing.Store(false)
	log.Printf("video: stopped after %d frames (%d dropped)", p.frames.Load(), p.dropped.Load())
}
