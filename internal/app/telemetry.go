// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"fmt"
	"log"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stereo_player/internal/control"
	"github.com/relabs-tech/stereo_player/internal/orientation"
	"github.com/relabs-tech/stereo_player/internal/render"
)

// Telemetry is the player status published over MQTT and the websocket.
type Telemetry struct {
	Time     string                `json:"time"`
	Session  string                `json:"session"`
	Render   render.Stats          `json:"render"`
	Pose     orientation.Pose      `json:"pose"`
	Playback control.PlaybackState `json:"playback"`
}

// Player is what the status surfaces need from a running player.
type Player interface {
	Stats() render.Stats
	Pose() orientation.Pose
	Controller() *control.Controller
	Session() string
}

// Snapshot collects the current telemetry from p.
func Snapshot(p Player, now time.Time) Telemetry {
	return Telemetry{
		Time:     now.UTC().Format(time.RFC3339Nano),
		Session:  p.Session(),
		Render:   p.Stats(),
		Pose:     p.Pose(),
		Playback: p.Controller().Playback(),
	}
}

// publishTelemetry publishes a snapshot every interval until stop closes.
func publishTelemetry(client mqtt.Client, topic string, p Player, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	failures := 0
	for {
		select {
		case <-stop:
			return
		case t := <-ticker.C:
			payload, err := json.Marshal(Snapshot(p, t))
			if err != nil {
				log.Printf("telemetry: marshal error: %v", err)
				continue
			}
			token := client.Publish(topic, 0, true, payload)
			if token.Wait() && token.Error() != nil {
				failures++
				if failures%50 == 1 {
					log.Printf("telemetry: MQTT publish error (%s): %v", topic, token.Error())
				}
				continue
			}
			failures = 0
		}
	}
}

// connectMQTT connects a client with the given id, bounded by timeout.
func connectMQTT(broker, clientID string, timeout time.Duration) (mqtt.Client, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectTimeout(timeout)

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(timeout) {
		return nil, fmt.Errorf("MQTT connect to %s timed out", broker)
	}
	if token.Error() != nil {
		return nil, fmt.Errorf("MQTT connect to %s: %w", broker, token.Error())
	}
	return client, nil
}
