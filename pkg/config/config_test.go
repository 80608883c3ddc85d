package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// helper to build a minimal valid config that can be tweaked in tests.
func validBaseConfig() *Config {
	cfg := DefaultConfig()
	cfg.Signaling.VideoURL = "wss://host.example/video"
	cfg.Signaling.AudioURL = "wss://host.example/audio"
	return cfg
}

func TestValidate_DefaultsWithURLs(t *testing.T) {
	if err := validBaseConfig().Validate(); err != nil {
		t.Fatalf("expected base config to be valid, got: %v", err)
	}
}

func TestValidate_InvalidValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{
			name: "no signaling url",
			mutate: func(c *Config) {
				c.Signaling.VideoURL = ""
				c.Signaling.AudioURL = ""
			},
		},
		{
			name: "zero ping interval",
			mutate: func(c *Config) {
				c.Signaling.PingInterval = 0
			},
		},
		{
			name: "port range half set",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50000
			},
		},
		{
			name: "port range inverted",
			mutate: func(c *Config) {
				c.WebRTC.PortRange.Min = 50010
				c.WebRTC.PortRange.Max = 50000
			},
		},
		{
			name: "health poll slower than deadline",
			mutate: func(c *Config) {
				c.Session.HealthPollInterval = 20 * time.Second
			},
		},
		{
			name: "unknown touch mode",
			mutate: func(c *Config) {
				c.Touch.Mode = "mouse"
			},
		},
		{
			name: "tap window inverted",
			mutate: func(c *Config) {
				c.Touch.TapMax = 10 * time.Millisecond
			},
		},
		{
			name: "threshold above 100",
			mutate: func(c *Config) {
				c.Touch.BottomThresholdPercent = 120
			},
		},
		{
			name: "negative queue",
			mutate: func(c *Config) {
				c.Channels.MaxQueue = -1
			},
		},
		{
			name: "telemetry without channel",
			mutate: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.Channel = ""
			},
		},
		{
			name: "tracing sample rate out of range",
			mutate: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.SampleRate = 2
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validBaseConfig()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error for case %q, got nil", tc.name)
			}
		})
	}
}

func TestLoad_YAMLAndEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.yaml")
	yamlDoc := `
signaling:
  video_url: wss://host.example/video
  poll_interval: 500ms
touch:
  mode: trackpad
  bottom_threshold_percent: 30
`
	if err := os.WriteFile(path, []byte(yamlDoc), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("REMOTEDESK_AUDIO_URL", "https://host.example/audio")
	t.Setenv("REMOTEDESK_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Signaling.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v, want 500ms", cfg.Signaling.PollInterval)
	}
	if cfg.Touch.Mode != "trackpad" || cfg.Touch.BottomThresholdPercent != 30 {
		t.Errorf("touch section not loaded: %+v", cfg.Touch)
	}
	if cfg.Signaling.AudioURL != "https://host.example/audio" {
		t.Errorf("env override not applied, audio url = %q", cfg.Signaling.AudioURL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("log level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Session.HealthDeadline != 15*time.Second {
		t.Errorf("default health deadline lost: %v", cfg.Session.HealthDeadline)
	}
}

func TestLoad_MissingFileUsesDefaultsAndEnv(t *testing.T) {
	t.Setenv("REMOTEDESK_VIDEO_URL", "ws://localhost:8080/video")
	t.Setenv("REMOTEDESK_CONTROL_TOKEN", "s3cret")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Signaling.VideoURL != "ws://localhost:8080/video" {
		t.Errorf("video url = %q", cfg.Signaling.VideoURL)
	}
	if cfg.Control.Token != "s3cret" {
		t.Errorf("control token = %q", cfg.Control.Token)
	}
}

func TestLoad_MissingFileWithoutURLsFails(t *testing.T) {
	t.Setenv("REMOTEDESK_VIDEO_URL", "")
	t.Setenv("REMOTEDESK_AUDIO_URL", "")
	t.Setenv("REMOTEDESK_DATA_URL", "")

	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected error when no signaling url is configured")
	}
}
