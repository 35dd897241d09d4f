// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/image/draw"

	"github.com/relabs-tech/stereo_player/internal/config"
	"github.com/relabs-tech/stereo_player/internal/control"
	"github.com/relabs-tech/stereo_player/internal/orientation"
	"github.com/relabs-tech/stereo_player/internal/render"
	"github.com/relabs-tech/stereo_player/internal/render/glbackend"
	"github.com/relabs-tech/stereo_player/internal/render/soft"
	"github.com/relabs-tech/stereo_player/internal/sensors"
	"github.com/relabs-tech/stereo_player/internal/video"
)

// videoSource is a decoder that feeds the compositor surface and accepts
// transport commands.
type videoSource interface {
	render.VideoOutput
	control.Transport
	Stop()
}

// StereoPlayer wires head tracking, a video source and the compositor.
type StereoPlayer struct {
	cfg     *config.Config
	session string

	tracker    *orientation.Tracker
	video      videoSource
	startVideo func(ctx context.Context) error
	compositor *render.Compositor
	ctl        *control.Controller

	quitOnce sync.Once
	quit     chan struct{}
}

// NewStereoPlayer builds a player on backend b. Nothing runs until start.
func NewStereoPlayer(cfg *config.Config, b render.Backend, width, height int) *StereoPlayer {
	p := &StereoPlayer{
		cfg:     cfg,
		session: uuid.New().String(),
		quit:    make(chan struct{}),
	}

	p.tracker = orientation.NewTracker(newOrientationSource(cfg), time.Duration(cfg.OrientationSampleInterval)*time.Millisecond)
	p.video, p.startVideo = newVideoSource(cfg)
	p.compositor = render.NewCompositor(b, p.tracker, p.video, render.Options{
		TargetFPS:     cfg.TargetFPS,
		PixelsPerUnit: cfg.IPDPixelsPerUnit,
		IPDOffset:     cfg.IPDInitial,
		Width:         width,
		Height:        height,
	})
	p.ctl = control.New(p.compositor, p.video, cfg.IPDStep, p.Quit)
	return p
}

func newOrientationSource(cfg *config.Config) orientation.Source {
	switch cfg.OrientationSource {
	case config.SourceMPU9250:
		return sensors.NewMPU9250Source(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUGyroLSBPerDPS, cfg.FusionKp, cfg.FusionKi)
	case config.SourceMQTT:
		return sensors.NewMQTTSource(cfg.MQTTBroker, cfg.MQTTClientIDPlayer, cfg.TopicRotation)
	case config.SourceSerial:
		return sensors.NewSerialSource(cfg.SerialPort, uint(cfg.SerialBaudRate))
	case config.SourceMock:
		return orientation.NewMockSource()
	}
	return nil
}

func newVideoSource(cfg *config.Config) (videoSource, func(context.Context) error) {
	if cfg.VideoSource == config.VideoGst {
		g := video.NewGstPlayer(cfg.VideoURI, cfg.VideoWidth, cfg.VideoHeight, cfg.VideoLoop)
		return g, g.Start
	}
	pat := video.NewPatternSource(cfg.VideoWidth, cfg.VideoHeight, 30, cfg.VideoLoop)
	return pat, func(context.Context) error {
		pat.Start()
		return nil
	}
}

func (p *StereoPlayer) Stats() render.Stats { return p.compositor.Stats() }

func (p *StereoPlayer) Pose() orientation.Pose { return p.tracker.Pose() }

func (p *StereoPlayer) Controller() *control.Controller { return p.ctl }

func (p *StereoPlayer) Session() string { return p.session }

func (p *StereoPlayer) Compositor() *render.Compositor { return p.compositor }

// Quit asks the render loop to exit. Safe to call more than once.
func (p *StereoPlayer) Quit() {
	p.quitOnce.Do(func() { close(p.quit) })
}

// Done is closed by Quit.
func (p *StereoPlayer) Done() <-chan struct{} { return p.quit }

// start initializes the compositor, then the video, the control server and
// telemetry. Render goroutine only.
func (p *StereoPlayer) start(ctx context.Context) error {
	if err := p.compositor.Init(); err != nil {
		return err
	}
	if err := p.startVideo(ctx); err != nil {
		p.compositor.Stop()
		return err
	}

	if p.cfg.WebServerPort > 0 {
		srv := NewControlServer(p, time.Duration(p.cfg.TelemetryInterval)*time.Millisecond)
		go func() {
			if err := srv.ListenAndServe(ctx, fmt.Sprintf(":%d", p.cfg.WebServerPort)); err != nil {
				log.Printf("web: %v", err)
			}
		}()
	}

	if p.cfg.TelemetryInterval > 0 {
		go p.runTelemetry(ctx)
	}
	return nil
}

func (p *StereoPlayer) runTelemetry(ctx context.Context) {
	client, err := connectMQTT(p.cfg.MQTTBroker, p.cfg.MQTTClientIDPlayer+"-telemetry", 3*time.Second)
	if err != nil {
		log.Printf("telemetry: disabled: %v", err)
		return
	}
	defer client.Disconnect(250)
	log.Printf("telemetry: publishing to %s every %dms", p.cfg.TopicTelemetry, p.cfg.TelemetryInterval)
	publishTelemetry(client, p.cfg.TopicTelemetry, p, time.Duration(p.cfg.TelemetryInterval)*time.Millisecond, ctx.Done())
}

func (p *StereoPlayer) stop() {
	p.video.Stop()
	p.compositor.Stop()
	st := p.compositor.Stats()
	log.Printf("player: stopped after %d frames (%d video frames, %d coalesced)",
		st.Frames, st.Video.Uploads, st.Video.Coalesced)
}

func (p *StereoPlayer) dispatch(cmd control.Command) {
	if err := p.ctl.Dispatch(cmd); err != nil {
		log.Printf("player: %s: %v", cmd, err)
		return
	}
	if cmd == control.CmdIPDUp || cmd == control.CmdIPDDown {
		log.Printf("player: IPD offset %.2f (%d px)", p.compositor.IPDOffset(), p.compositor.IPDPixels())
	}
}

// RunPlayer runs the stereo player with the global configuration until the
// window closes, quit is requested or the process is signalled.
func RunPlayer() error {
	cfg := config.Get()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if cfg.RenderBackend == config.BackendSoft {
		return runHeadless(ctx, cfg)
	}
	return runWindowed(ctx, cfg)
}

func runWindowed(ctx context.Context, cfg *config.Config) error {
	win, err := glbackend.OpenWindow("stereo player", cfg.DisplayWidth, cfg.DisplayHeight, false)
	if err != nil {
		return err
	}
	defer win.Destroy()

	w, h := win.FramebufferSize()
	p := NewStereoPlayer(cfg, glbackend.New(), w, h)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.start(ctx); err != nil {
		return err
	}
	defer p.stop()

	go func() {
		select {
		case <-ctx.Done():
		case <-p.Done():
		}
		win.Close()
	}()

	win.Run(p.compositor.DrawFrame, p.dispatch, p.compositor.Resize)
	return nil
}

// runHeadless drives the software backend from a ticker at the display
// refresh rate, optionally writing annotated snapshots.
func runHeadless(ctx context.Context, cfg *config.Config) error {
	b := soft.New(cfg.DisplayWidth, cfg.DisplayHeight)
	p := NewStereoPlayer(cfg, b, cfg.DisplayWidth, cfg.DisplayHeight)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	if err := p.start(ctx); err != nil {
		return err
	}
	defer p.stop()

	refresh := time.NewTicker(time.Second / time.Duration(cfg.DisplayRefreshHz))
	defer refresh.Stop()

	var snapshots <-chan time.Time
	if cfg.SnapshotInterval > 0 && cfg.SnapshotPath != "" {
		t := time.NewTicker(time.Duration(cfg.SnapshotInterval) * time.Millisecond)
		defer t.Stop()
		snapshots = t.C
	}

	log.Printf("player: headless %dx%d, refresh %d Hz", cfg.DisplayWidth, cfg.DisplayHeight, cfg.DisplayRefreshHz)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-p.Done():
			return nil
		case <-refresh.C:
			p.compositor.DrawFrame()
		case <-snapshots:
			if err := soft.SavePNG(cfg.SnapshotPath, annotate(b.Frame(), p.Stats(), p.Pose())); err != nil {
				log.Printf("player: %v", err)
			}
		}
	}
}

var overlayColor = color.RGBA{0, 255, 0, 255}

// annotate returns a copy of frame with the render stats in the corner.
func annotate(frame *image.RGBA, st render.Stats, pose orientation.Pose) *image.RGBA {
	out := image.NewRGBA(frame.Bounds())
	draw.Copy(out, image.Point{}, frame, frame.Bounds(), draw.Src, nil)
	soft.DrawText(out, 4, 4, overlayColor,
		fmt.Sprintf("%d/%d fps  frame %d", st.MeasuredFPS, st.TargetFPS, st.Frames),
		fmt.Sprintf("ipd %.2f (%d px)", st.IPD, st.IPDPixels),
		fmt.Sprintf("r %.0f p %.0f y %.0f", pose.Roll, pose.Pitch, pose.Yaw),
	)
	return out
}
