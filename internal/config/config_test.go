// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "vrplayer_config.txt")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaultsAndOverrides(t *testing.T) {
	path := writeConfig(t, `
# display
DISPLAY_WIDTH=2400
TARGET_FPS=72
IPD_INITIAL=-0.15
ORIENTATION_SOURCE=none
VIDEO_LOOP=false
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if cfg.DisplayWidth != 2400 {
		t.Errorf("DisplayWidth = %d, want 2400", cfg.DisplayWidth)
	}
	if cfg.DisplayHeight != 1080 {
		t.Errorf("DisplayHeight = %d, want default 1080", cfg.DisplayHeight)
	}
	if cfg.TargetFPS != 72 {
		t.Errorf("TargetFPS = %d, want 72", cfg.TargetFPS)
	}
	if cfg.IPDInitial != -0.15 {
		t.Errorf("IPDInitial = %v, want -0.15", cfg.IPDInitial)
	}
	if cfg.IPDPixelsPerUnit != 100 {
		t.Errorf("IPDPixelsPerUnit = %v, want default 100", cfg.IPDPixelsPerUnit)
	}
	if cfg.OrientationSource != SourceNone {
		t.Errorf("OrientationSource = %q, want %q", cfg.OrientationSource, SourceNone)
	}
	if cfg.VideoLoop {
		t.Errorf("VideoLoop = true, want false")
	}
}

func TestLoadRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown key", "NOPE=1", "unknown config key"},
		{"missing separator", "DISPLAY_WIDTH 10", "invalid config line 1"},
		{"non-numeric", "TARGET_FPS=fast", "invalid TARGET_FPS"},
		{"zero fps", "TARGET_FPS=0", "TARGET_FPS must be > 0"},
		{"bad backend", "RENDER_BACKEND=vulkan", "RENDER_BACKEND must be"},
		{"bad source", "ORIENTATION_SOURCE=compass", "unknown ORIENTATION_SOURCE"},
		{"serial without port", "ORIENTATION_SOURCE=serial", "SERIAL_PORT is required"},
		{"gst without uri", "VIDEO_SOURCE=gst", "VIDEO_URI is required"},
		{"port range", "WEB_SERVER_PORT=70000", "WEB_SERVER_PORT must be"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			if err == nil {
				t.Fatalf("Load() succeeded, want error containing %q", tt.want)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
		t.Fatal("Load() of a missing file succeeded")
	}
}

func TestLoadStatusDisplayAddress(t *testing.T) {
	cfg, err := Load(writeConfig(t, "STATUS_DISPLAY_I2C_ADDR=0x3D\nSTATUS_DISPLAY_I2C_BUS=/dev/i2c-1\n"))
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.StatusDisplayI2CAddr != 0x3D || cfg.StatusDisplayI2CBus != "/dev/i2c-1" {
		t.Errorf("status display = %q@%#x", cfg.StatusDisplayI2CBus, cfg.StatusDisplayI2CAddr)
	}
	if cfg.StatusDisplayInterval != 500 {
		t.Errorf("StatusDisplayInterval = %d, want default 500", cfg.StatusDisplayInterval)
	}

	if _, err := Load(writeConfig(t, "STATUS_DISPLAY_I2C_ADDR=0x200\n")); err == nil {
		t.Fatal("10-bit address accepted")
	}
}

func TestSampleConfigLoads(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "vrplayer_config.txt"))
	if err != nil {
		t.Fatalf("sample config: %v", err)
	}
	if cfg.TelemetryInterval != 500 || cfg.StatusDisplayI2CAddr != 0x3C {
		t.Errorf("sample config = %+v", cfg)
	}
}
