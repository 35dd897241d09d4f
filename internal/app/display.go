// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"image"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/stereo_player/internal/config"
)

// statusData holds the latest telemetry for the panel.
type statusData struct {
	mu       sync.RWMutex
	last     Telemetry
	received time.Time
}

func (d *statusData) set(t Telemetry, now time.Time) {
	d.mu.Lock()
	d.last = t
	d.received = now
	d.mu.Unlock()
}

func (d *statusData) get() (Telemetry, time.Time) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.last, d.received
}

func newPanelImage() (*image1bit.VerticalLSB, *font.Drawer) {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))
	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}
	return img, drawer
}

// renderStatus draws four lines of player status. Telemetry older than
// timeout, or none at all, shows a waiting screen instead.
func renderStatus(t Telemetry, received, now time.Time, timeout time.Duration) *image1bit.VerticalLSB {
	img, drawer := newPanelImage()

	if received.IsZero() || now.Sub(received) > timeout {
		drawer.Dot = fixed.P(0, 26)
		drawer.DrawBytes([]byte("Stereo Player"))
		drawer.Dot = fixed.P(0, 39)
		if received.IsZero() {
			drawer.DrawBytes([]byte("Waiting..."))
		} else {
			drawer.DrawBytes([]byte("No signal"))
		}
		return img
	}

	r := t.Render
	state := "PLAY"
	if !t.Playback.Playing {
		state = "PAUSE"
	}
	pos := time.Duration(t.Playback.PositionMS) * time.Millisecond

	lines := []string{
		fmt.Sprintf("%3d/%d fps %s", r.MeasuredFPS, r.TargetFPS, state),
		fmt.Sprintf("IPD %+.2f %dpx", r.IPD, r.IPDPixels),
		fmt.Sprintf("Y%4.0f P%4.0f", t.Pose.Yaw, t.Pose.Pitch),
		fmt.Sprintf("%02d:%02d drop %d", int(pos.Minutes()), int(pos.Seconds())%60, r.Video.Coalesced),
	}
	for i, line := range lines {
		drawer.Dot = fixed.P(0, 13*(i+1))
		drawer.DrawBytes([]byte(line))
	}
	return img
}

func showSplash(dev *ssd1306.Dev) error {
	img, drawer := newPanelImage()

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Stereo Player"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Waiting for"))

	drawer.Dot = fixed.P(25, 56)
	drawer.DrawBytes([]byte("telemetry"))

	return dev.Draw(dev.Bounds(), img, image.Point{})
}

// RunStatusDisplay shows player telemetry on an SSD1306 panel.
func RunStatusDisplay() error {
	cfg := config.Get()

	// Initialize periph
	if _, err := host.Init(); err != nil {
		return fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open(cfg.StatusDisplayI2CBus)
	if err != nil {
		return fmt.Errorf("failed to open I2C bus: %w", err)
	}
	defer bus.Close()

	dev, err := ssd1306.NewI2C(bus, cfg.StatusDisplayI2CAddr, &ssd1306.DefaultOpts)
	if err != nil {
		return fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", cfg.StatusDisplayI2CAddr)

	if err := showSplash(dev); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}

	data := &statusData{}

	// Connect to MQTT
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDDisplay)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("display: connected to MQTT broker at %s", cfg.MQTTBroker)

	token := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var t Telemetry
		if err := json.Unmarshal(msg.Payload(), &t); err != nil {
			log.Printf("display: telemetry unmarshal error: %v", err)
			return
		}
		data.set(t, time.Now())
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("display: subscribed to %s", cfg.TopicTelemetry)

	timeout := time.Duration(cfg.StatusDisplayTimeout) * time.Millisecond
	ticker := time.NewTicker(time.Duration(cfg.StatusDisplayInterval) * time.Millisecond)
	defer ticker.Stop()

	log.Println("display: starting update loop")

	for now := range ticker.C {
		t, received := data.get()
		img := renderStatus(t, received, now, timeout)
		if err := dev.Draw(dev.Bounds(), img, image.Point{}); err != nil {
			log.Printf("display: error updating display: %v", err)
		}
	}

	return nil
}
