// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"encoding/json"
	"io"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/stereo_player/internal/config"
	"github.com/relabs-tech/stereo_player/internal/orientation"
	"github.com/relabs-tech/stereo_player/internal/sensors"
)

// rotationPublisher fans one rotation sample out to MQTT and, optionally, a
// serial line.
type rotationPublisher struct {
	client mqtt.Client
	topic  string
	serial io.Writer

	samples  atomic.Uint64
	failures atomic.Uint64
}

func (p *rotationPublisher) publish(rv orientation.RotationVector) {
	n := p.samples.Add(1)

	if p.client != nil {
		payload, err := json.Marshal(rv)
		if err != nil {
			log.Printf("json marshal error (rotation): %v", err)
			return
		}
		if token := p.client.Publish(p.topic, 0, false, payload); token.Wait() && token.Error() != nil {
			if p.failures.Add(1)%100 == 1 {
				log.Printf("MQTT publish error (%s): %v", p.topic, token.Error())
			}
		}
	}

	if p.serial != nil {
		if err := sensors.WriteRotationSentence(p.serial, rv); err != nil {
			if p.failures.Add(1)%100 == 1 {
				log.Printf("serial write error: %v", err)
			}
		}
	}

	// Roughly every two seconds at the game rate.
	if n%100 == 0 {
		pose := orientation.PoseFromMatrix(orientation.RotationMatrixFromVector(rv.Values))
		log.Printf("%s tick %d: R=%.2f P=%.2f Y=%.2f",
			time.Unix(0, rv.Timestamp).Format(time.RFC3339), n, pose.Roll, pose.Pitch, pose.Yaw)
	}
}

// RunRotationProducer reads head orientation from the IMU, or the mock
// source when no IMU is configured, and publishes rotation vectors until
// Ctrl+C.
func RunRotationProducer() error {
	log.Println("starting rotation producer")

	cfg := config.Get()

	var src orientation.Source
	if cfg.OrientationSource == config.SourceMPU9250 {
		log.Printf("using MPU9250 on %s (CS %s)", cfg.IMUSPIDevice, cfg.IMUCSPin)
		src = sensors.NewMPU9250Source(cfg.IMUSPIDevice, cfg.IMUCSPin, cfg.IMUGyroLSBPerDPS, cfg.FusionKp, cfg.FusionKi)
	} else {
		log.Println("using mock orientation source")
		src = orientation.NewMockSource()
	}

	// --- connect to MQTT ---
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDProducer)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer client.Disconnect(250)
	log.Printf("connected to MQTT, publishing on %s", cfg.TopicRotation)

	pub := &rotationPublisher{client: client, topic: cfg.TopicRotation}

	// The producer writes the same sentences the serial source reads.
	if cfg.SerialPort != "" && cfg.OrientationSource != config.SourceSerial {
		port, err := sensors.OpenSerialPort(cfg.SerialPort, uint(cfg.SerialBaudRate))
		if err != nil {
			log.Printf("serial output disabled: %v", err)
		} else {
			defer port.Close()
			pub.serial = port
		}
	}

	period := time.Duration(cfg.OrientationSampleInterval) * time.Millisecond
	if err := src.Start(period, pub.publish); err != nil {
		return err
	}
	defer src.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Printf("rotation producer: shutting down after %d samples", pub.samples.Load())
	return nil
}
