package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type ICEServer struct {
	URLs       []string `yaml:"urls"`
	Username   string   `yaml:"username,omitempty"`
	Credential string   `yaml:"credential,omitempty"`
}

type Config struct {
	Signaling struct {
		VideoURL     string        `yaml:"video_url"`
		AudioURL     string        `yaml:"audio_url"`
		DataURL      string        `yaml:"data_url"`
		Token        string        `yaml:"token"`
		PingInterval time.Duration `yaml:"ping_interval"`
		PollInterval time.Duration `yaml:"poll_interval"`
		DialTimeout  time.Duration `yaml:"dial_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
	} `yaml:"signaling"`

	WebRTC struct {
		ICEServers []ICEServer `yaml:"ice_servers"`
		PortRange  struct {
			Min uint16 `yaml:"min"`
			Max uint16 `yaml:"max"`
		} `yaml:"port_range"`
	} `yaml:"webrtc"`

	Session struct {
		HealthDeadline      time.Duration `yaml:"health_deadline"`
		HealthPollInterval  time.Duration `yaml:"health_poll_interval"`
		KeyFrameInterval    time.Duration `yaml:"keyframe_interval"`
		MissingFrameTimeout time.Duration `yaml:"missing_frame_timeout"`
		RetryDelay          time.Duration `yaml:"retry_delay"`
	} `yaml:"session"`

	QoS struct {
		PollInterval time.Duration `yaml:"poll_interval"`
	} `yaml:"qos"`

	Touch struct {
		Mode                   string        `yaml:"mode"`
		Speed                  float64       `yaml:"speed"`
		TapMin                 time.Duration `yaml:"tap_min"`
		TapMax                 time.Duration `yaml:"tap_max"`
		BottomThresholdPercent float64       `yaml:"bottom_threshold_percent"`
		DispatchInterval       time.Duration `yaml:"dispatch_interval"`
		ScreenWidth            float64       `yaml:"screen_width"`
		ScreenHeight           float64       `yaml:"screen_height"`
	} `yaml:"touch"`

	Channels struct {
		MaxQueue int `yaml:"max_queue"`
	} `yaml:"channels"`

	Control struct {
		Enabled           bool    `yaml:"enabled"`
		Address           string  `yaml:"address"`
		RequestsPerSecond float64 `yaml:"requests_per_second"`
		Burst             int     `yaml:"burst"`
		Token             string  `yaml:"token"`
	} `yaml:"control"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Logging struct {
		Level      string `yaml:"level"`
		Format     string `yaml:"format"`
		File       string `yaml:"file"`
		MaxSizeMB  int    `yaml:"max_size_mb"`
		MaxBackups int    `yaml:"max_backups"`
	} `yaml:"logging"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Telemetry struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		Channel  string `yaml:"channel"`
	} `yaml:"telemetry"`

	Sinks struct {
		VideoUDPAddr string `yaml:"video_udp_addr"`
		AudioUDPAddr string `yaml:"audio_udp_addr"`
	} `yaml:"sinks"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Signaling
	if c.Signaling.VideoURL == "" && c.Signaling.AudioURL == "" && c.Signaling.DataURL == "" {
		return fmt.Errorf("signaling: at least one of video_url, audio_url, data_url must be set")
	}
	if c.Signaling.PingInterval <= 0 {
		return fmt.Errorf("signaling.ping_interval must be > 0")
	}
	if c.Signaling.PollInterval <= 0 {
		return fmt.Errorf("signaling.poll_interval must be > 0")
	}
	if c.Signaling.DialTimeout <= 0 {
		return fmt.Errorf("signaling.dial_timeout must be > 0")
	}

	// WebRTC
	if c.WebRTC.PortRange.Min > 0 || c.WebRTC.PortRange.Max > 0 {
		if c.WebRTC.PortRange.Min == 0 || c.WebRTC.PortRange.Max == 0 {
			return fmt.Errorf("webrtc.port_range.min and max must both be set when one is set")
		}
		if c.WebRTC.PortRange.Min >= c.WebRTC.PortRange.Max {
			return fmt.Errorf("webrtc.port_range.min must be < max")
		}
	}

	// Session
	if c.Session.HealthDeadline <= 0 {
		return fmt.Errorf("session.health_deadline must be > 0")
	}
	if c.Session.HealthPollInterval <= 0 {
		return fmt.Errorf("session.health_poll_interval must be > 0")
	}
	if c.Session.HealthPollInterval >= c.Session.HealthDeadline {
		return fmt.Errorf("session.health_poll_interval must be < health_deadline")
	}
	if c.Session.KeyFrameInterval <= 0 {
		return fmt.Errorf("session.keyframe_interval must be > 0")
	}
	if c.Session.MissingFrameTimeout <= 0 {
		return fmt.Errorf("session.missing_frame_timeout must be > 0")
	}
	if c.Session.RetryDelay < 0 {
		return fmt.Errorf("session.retry_delay must be >= 0")
	}

	// QoS
	if c.QoS.PollInterval <= 0 {
		return fmt.Errorf("qos.poll_interval must be > 0")
	}

	// Touch
	if c.Touch.Mode != "none" && c.Touch.Mode != "trackpad" {
		return fmt.Errorf("touch.mode must be none or trackpad, got %q", c.Touch.Mode)
	}
	if c.Touch.TapMin < 0 || c.Touch.TapMax <= c.Touch.TapMin {
		return fmt.Errorf("touch.tap_min must be >= 0 and < tap_max")
	}
	if c.Touch.BottomThresholdPercent < 0 || c.Touch.BottomThresholdPercent > 100 {
		return fmt.Errorf("touch.bottom_threshold_percent must be within [0,100]")
	}
	if c.Touch.DispatchInterval <= 0 {
		return fmt.Errorf("touch.dispatch_interval must be > 0")
	}

	// Channels
	if c.Channels.MaxQueue < 0 {
		return fmt.Errorf("channels.max_queue must be >= 0")
	}

	// Control
	if c.Control.Enabled {
		if c.Control.Address == "" {
			return fmt.Errorf("control.address must not be empty when control.enabled=true")
		}
		if c.Control.RequestsPerSecond <= 0 || c.Control.Burst <= 0 {
			return fmt.Errorf("control.requests_per_second and control.burst must be > 0")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Tracing
	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0,1]")
		}
	}

	// Telemetry
	if c.Telemetry.Enabled {
		if c.Telemetry.Address == "" {
			return fmt.Errorf("telemetry.address must not be empty when telemetry.enabled=true")
		}
		if c.Telemetry.Channel == "" {
			return fmt.Errorf("telemetry.channel must not be empty when telemetry.enabled=true")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to stat config file %s: %w", configPath, err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Signaling.PingInterval = time.Second
	cfg.Signaling.PollInterval = time.Second
	cfg.Signaling.DialTimeout = 10 * time.Second
	cfg.Signaling.WriteTimeout = 5 * time.Second

	cfg.WebRTC.ICEServers = []ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}

	cfg.Session.HealthDeadline = 15 * time.Second
	cfg.Session.HealthPollInterval = 100 * time.Millisecond
	cfg.Session.KeyFrameInterval = time.Second
	cfg.Session.MissingFrameTimeout = time.Second
	cfg.Session.RetryDelay = time.Second

	cfg.QoS.PollInterval = 200 * time.Millisecond

	cfg.Touch.Mode = "none"
	cfg.Touch.Speed = 3.5
	cfg.Touch.TapMin = 30 * time.Millisecond
	cfg.Touch.TapMax = 250 * time.Millisecond
	cfg.Touch.BottomThresholdPercent = 100
	cfg.Touch.DispatchInterval = 10 * time.Millisecond
	cfg.Touch.ScreenWidth = 1920
	cfg.Touch.ScreenHeight = 1080

	cfg.Channels.MaxQueue = 0

	cfg.Control.Enabled = true
	cfg.Control.Address = "127.0.0.1:9180"
	cfg.Control.RequestsPerSecond = 200
	cfg.Control.Burst = 400

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"
	cfg.Logging.MaxSizeMB = 50
	cfg.Logging.MaxBackups = 3

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "remotedesk-client"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Telemetry.Enabled = false
	cfg.Telemetry.Address = "localhost:6379"
	cfg.Telemetry.Channel = "remotedesk:qos"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REMOTEDESK_VIDEO_URL"); v != "" {
		c.Signaling.VideoURL = v
	}
	if v := os.Getenv("REMOTEDESK_AUDIO_URL"); v != "" {
		c.Signaling.AudioURL = v
	}
	if v := os.Getenv("REMOTEDESK_DATA_URL"); v != "" {
		c.Signaling.DataURL = v
	}
	if v := os.Getenv("REMOTEDESK_SIGNALING_TOKEN"); v != "" {
		c.Signaling.Token = v
	}
	if v := os.Getenv("REMOTEDESK_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("REMOTEDESK_CONTROL_ADDRESS"); v != "" {
		c.Control.Address = v
	}
	if v := os.Getenv("REMOTEDESK_CONTROL_TOKEN"); v != "" {
		c.Control.Token = v
	}
}
