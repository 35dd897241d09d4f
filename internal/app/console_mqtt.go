// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stereo_player/internal/config"
	"github.com/relabs-tech/stereo_player/internal/orientation"
)

func formatRotation(rv orientation.RotationVector) string {
	p := orientation.PoseFromMatrix(orientation.RotationMatrixFromVector(rv.Values))
	return fmt.Sprintf("[ROT ]  x=%7.4f y=%7.4f z=%7.4f  ROLL=%6.2f  PITCH=%6.2f  YAW=%6.2f",
		rv.Values[0], rv.Values[1], rv.Values[2], p.Roll, p.Pitch, p.Yaw)
}

func formatTelemetry(t Telemetry) string {
	r := t.Render
	return fmt.Sprintf("[PLAY]  %-13s fps=%3d/%-3d measured=%-3d frames=%-7d ipd=%5.2f (%4dpx) video=%d/%d coalesced=%d  pos=%s/%s playing=%v",
		r.State, r.FPS, r.TargetFPS, r.MeasuredFPS, r.Frames, r.IPD, r.IPDPixels,
		r.Video.Uploads, r.Video.Notifications, r.Video.Coalesced,
		time.Duration(t.Playback.PositionMS)*time.Millisecond,
		time.Duration(t.Playback.DurationMS)*time.Millisecond,
		t.Playback.Playing,
	)
}

// RunConsoleMQTT prints rotation samples and player telemetry until Ctrl+C.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to rotation
	rotToken := client.Subscribe(cfg.TopicRotation, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var rv orientation.RotationVector
		if err := json.Unmarshal(msg.Payload(), &rv); err != nil {
			log.Printf("console: rotation unmarshal error: %v", err)
			return
		}
		if len(rv.Values) < 3 {
			log.Printf("console: rotation with %d components ignored", len(rv.Values))
			return
		}
		fmt.Println(formatRotation(rv))
	})
	rotToken.Wait()
	if rotToken.Error() != nil {
		return rotToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicRotation)

	// Subscribe to player telemetry
	telToken := client.Subscribe(cfg.TopicTelemetry, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var t Telemetry
		if err := json.Unmarshal(msg.Payload(), &t); err != nil {
			log.Printf("console: telemetry unmarshal error: %v", err)
			return
		}
		fmt.Println(formatTelemetry(t))
	})
	telToken.Wait()
	if telToken.Error() != nil {
		return telToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicTelemetry)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
