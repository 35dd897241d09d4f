// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Orientation source kinds accepted by ORIENTATION_SOURCE.
const (
	SourceMPU9250 = "mpu9250"
	SourceMQTT    = "mqtt"
	SourceSerial  = "serial"
	SourceMock    = "mock"
	SourceNone    = "none"
)

// Video source kinds accepted by VIDEO_SOURCE.
const (
	VideoGst     = "gst"
	VideoPattern = "pattern"
)

// Render backends accepted by RENDER_BACKEND.
const (
	BackendGL   = "gl"
	BackendSoft = "soft"
)

// Config holds all application configuration values.
type Config struct {
	// Display
	DisplayWidth     int
	DisplayHeight    int
	DisplayRefreshHz int // render callback cadence for the headless backend
	RenderBackend    string
	TargetFPS        int
	IPDInitial       float64
	IPDStep          float64
	IPDPixelsPerUnit float64
	SnapshotPath     string
	SnapshotInterval int // milliseconds, 0 disables snapshots

	// Orientation
	OrientationSource         string
	OrientationSampleInterval int // milliseconds
	IMUSPIDevice              string
	IMUCSPin                  string
	IMUGyroLSBPerDPS          float64
	FusionKp                  float64
	FusionKi                  float64
	SerialPort                string
	SerialBaudRate            int

	// MQTT
	MQTTBroker           string
	MQTTClientIDPlayer   string
	MQTTClientIDProducer string
	MQTTClientIDConsole  string
	MQTTClientIDDisplay  string
	TopicRotation        string
	TopicTelemetry       string
	TelemetryInterval    int // milliseconds, 0 disables telemetry publishing

	// Video
	VideoSource string
	VideoURI    string
	VideoWidth  int
	VideoHeight int
	VideoLoop   bool

	// Status display. Interval and timeout are in milliseconds; the panel
	// shows "no signal" once telemetry is older than the timeout.
	StatusDisplayI2CBus   string
	StatusDisplayI2CAddr  uint16
	StatusDisplayInterval int
	StatusDisplayTimeout  int

	// Web Server
	WebServerPort int
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported so other packages cannot modify it without locking.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex, write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config populated with the values used when a key is
// absent from the file.
func Default() *Config {
	return &Config{
		DisplayWidth:     1920,
		DisplayHeight:    1080,
		DisplayRefreshHz: 120,
		RenderBackend:    BackendGL,
		TargetFPS:        60,
		IPDStep:          0.05,
		IPDPixelsPerUnit: 100,
		SnapshotPath:     "frame.png",

		OrientationSource:         SourceMock,
		OrientationSampleInterval: 20,
		IMUSPIDevice:              "/dev/spidev0.0",
		IMUCSPin:                  "8",
		IMUGyroLSBPerDPS:          131,
		FusionKp:                  2.0,
		SerialBaudRate:            115200,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDPlayer:   "vr-player",
		MQTTClientIDProducer: "vr-rotation-producer",
		MQTTClientIDConsole:  "vr-console",
		MQTTClientIDDisplay:  "vr-status-display",
		TopicRotation:        "vr/rotation",
		TopicTelemetry:       "vr/telemetry",

		VideoSource: VideoPattern,
		VideoWidth:  1280,
		VideoHeight: 720,
		VideoLoop:   true,

		StatusDisplayI2CAddr:  0x3C,
		StatusDisplayInterval: 500,
		StatusDisplayTimeout:  3000,

		WebServerPort: 8080,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Display
	case "DISPLAY_WIDTH":
		c.DisplayWidth, err = parsePositive(key, value)
	case "DISPLAY_HEIGHT":
		c.DisplayHeight, err = parsePositive(key, value)
	case "DISPLAY_REFRESH_HZ":
		c.DisplayRefreshHz, err = parsePositive(key, value)
	case "RENDER_BACKEND":
		if value != BackendGL && value != BackendSoft {
			return fmt.Errorf("RENDER_BACKEND must be %q or %q, got %q", BackendGL, BackendSoft, value)
		}
		c.RenderBackend = value
	case "TARGET_FPS":
		c.TargetFPS, err = parsePositive(key, value)
	case "IPD_INITIAL":
		c.IPDInitial, err = parseFloat(key, value)
	case "IPD_STEP":
		c.IPDStep, err = parseFloat(key, value)
	case "IPD_PIXELS_PER_UNIT":
		c.IPDPixelsPerUnit, err = parseFloat(key, value)
	case "SNAPSHOT_PATH":
		c.SnapshotPath = value
	case "SNAPSHOT_INTERVAL":
		c.SnapshotInterval, err = parseNonNegative(key, value)

	// Orientation
	case "ORIENTATION_SOURCE":
		switch value {
		case SourceMPU9250, SourceMQTT, SourceSerial, SourceMock, SourceNone:
			c.OrientationSource = value
		default:
			return fmt.Errorf("unknown ORIENTATION_SOURCE %q", value)
		}
	case "ORIENTATION_SAMPLE_INTERVAL":
		c.OrientationSampleInterval, err = parsePositive(key, value)
	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_GYRO_LSB_PER_DPS":
		c.IMUGyroLSBPerDPS, err = parseFloat(key, value)
		if err == nil && c.IMUGyroLSBPerDPS <= 0 {
			return fmt.Errorf("IMU_GYRO_LSB_PER_DPS must be > 0, got %v", c.IMUGyroLSBPerDPS)
		}
	case "FUSION_KP":
		c.FusionKp, err = parseFloat(key, value)
	case "FUSION_KI":
		c.FusionKi, err = parseFloat(key, value)
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parsePositive(key, value)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_PLAYER":
		c.MQTTClientIDPlayer = value
	case "MQTT_CLIENT_ID_PRODUCER":
		c.MQTTClientIDProducer = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value
	case "MQTT_CLIENT_ID_DISPLAY":
		c.MQTTClientIDDisplay = value
	case "TOPIC_ROTATION":
		c.TopicRotation = value
	case "TOPIC_TELEMETRY":
		c.TopicTelemetry = value
	case "TELEMETRY_INTERVAL":
		c.TelemetryInterval, err = parseNonNegative(key, value)

	// Video
	case "VIDEO_SOURCE":
		if value != VideoGst && value != VideoPattern {
			return fmt.Errorf("VIDEO_SOURCE must be %q or %q, got %q", VideoGst, VideoPattern, value)
		}
		c.VideoSource = value
	case "VIDEO_URI":
		c.VideoURI = value
	case "VIDEO_WIDTH":
		c.VideoWidth, err = parsePositive(key, value)
	case "VIDEO_HEIGHT":
		c.VideoHeight, err = parsePositive(key, value)
	case "VIDEO_LOOP":
		c.VideoLoop, err = strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid VIDEO_LOOP %q: %w", value, err)
		}

	// Status display
	case "STATUS_DISPLAY_I2C_BUS":
		c.StatusDisplayI2CBus = value
	case "STATUS_DISPLAY_I2C_ADDR":
		addr, perr := strconv.ParseUint(value, 0, 16)
		if perr != nil || addr > 0x7F {
			return fmt.Errorf("invalid STATUS_DISPLAY_I2C_ADDR %q: want a 7-bit address such as 0x3C", value)
		}
		c.StatusDisplayI2CAddr = uint16(addr)
	case "STATUS_DISPLAY_INTERVAL":
		c.StatusDisplayInterval, err = parsePositive(key, value)
	case "STATUS_DISPLAY_TIMEOUT":
		c.StatusDisplayTimeout, err = parsePositive(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseNonNegative(key, value)
		if err == nil && c.WebServerPort > 65535 {
			return fmt.Errorf("WEB_SERVER_PORT must be 0-65535, got %d", c.WebServerPort)
		}

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return err
}

func parseFloat(key, value string) (float64, error) {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return f, nil
}

func parseNonNegative(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must be >= 0, got %d", key, n)
	}
	return n, nil
}

func parsePositive(key, value string) (int, error) {
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("%s must be > 0, got %d", key, n)
	}
	return n, nil
}

// validate checks cross-field requirements once the whole file is read.
func (c *Config) validate() error {
	switch c.OrientationSource {
	case SourceMQTT:
		if c.MQTTBroker == "" || c.TopicRotation == "" {
			return fmt.Errorf("MQTT_BROKER and TOPIC_ROTATION are required for ORIENTATION_SOURCE=mqtt")
		}
	case SourceSerial:
		if c.SerialPort == "" {
			return fmt.Errorf("SERIAL_PORT is required for ORIENTATION_SOURCE=serial")
		}
	case SourceMPU9250:
		if c.IMUSPIDevice == "" || c.IMUCSPin == "" {
			return fmt.Errorf("IMU_SPI_DEVICE and IMU_CS_PIN are required for ORIENTATION_SOURCE=mpu9250")
		}
	}
	if c.VideoSource == VideoGst && c.VideoURI == "" {
		return fmt.Errorf("VIDEO_URI is required for VIDEO_SOURCE=gst")
	}
	if c.TelemetryInterval > 0 && (c.MQTTBroker == "" || c.TopicTelemetry == "") {
		return fmt.Errorf("MQTT_BROKER and TOPIC_TELEMETRY are required when TELEMETRY_INTERVAL is set")
	}
	if c.IPDPixelsPerUnit <= 0 {
		return fmt.Errorf("IPD_PIXELS_PER_UNIT must be > 0")
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
