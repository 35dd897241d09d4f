// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stereo_player/internal/orientation"
)

// MQTTSource subscribes to rotation vectors published by a producer such
// as cmd/rotation_producer.
type MQTTSource struct {
	broker   string
	clientID string
	topic    string

	mu     sync.Mutex
	client mqtt.Client
}

// NewMQTTSource returns a source that listens on topic at broker.
func NewMQTTSource(broker, clientID, topic string) *MQTTSource {
	return &MQTTSource{broker: broker, clientID: clientID, topic: topic}
}

// Start connects and subscribes. An unreachable broker is reported as
// orientation.ErrNoSensor so the player keeps running without head tracking.
func (s *MQTTSource) Start(_ time.Duration, fn func(orientation.RotationVector)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client != nil {
		return nil
	}

	opts := mqtt.NewClientOptions().
		AddBroker(s.broker).
		SetClientID(s.clientID).
		SetConnectTimeout(3 * time.Second)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("%w: MQTT connect %s: %v", orientation.ErrNoSensor, s.broker, token.Error())
	}
	log.Printf("mqtt source: connected to %s", s.broker)

	token := client.Subscribe(s.topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		rv, err := decodeRotation(msg.Payload())
		if err != nil {
			log.Printf("mqtt source: %v", err)
			return
		}
		fn(rv)
	})
	token.Wait()
	if token.Error() != nil {
		client.Disconnect(250)
		return fmt.Errorf("mqtt source: subscribe %s: %w", s.topic, token.Error())
	}
	log.Printf("mqtt source: subscribed to %s", s.topic)

	s.client = client
	return nil
}

// Stop unsubscribes and disconnects.
func (s *MQTTSource) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return
	}
	if token := s.client.Unsubscribe(s.topic); token.Wait() && token.Error() != nil {
		log.Printf("mqtt source: unsubscribe %s: %v", s.topic, token.Error())
	}
	s.client.Disconnect(250)
	s.client = nil
}

func decodeRotation(payload []byte) (orientation.RotationVector, error) {
	var rv orientation.RotationVector
	if err := json.Unmarshal(payload, &rv); err != nil {
		return rv, fmt.Errorf("rotation unmarshal: %w", err)
	}
	if len(rv.Values) < 3 {
		return rv, fmt.Errorf("rotation has %d components, want at least 3", len(rv.Values))
	}
	return rv, nil
}
