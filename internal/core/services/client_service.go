package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"
	"remotedesk/pkg/config"
	"remotedesk/pkg/hid"

	"go.uber.org/zap"
)

// ClientConfig groups the settings of the client facade.
type ClientConfig struct {
	Connection ConnectionConfig
	Touch      TouchConfig
}

// ClientConfigFromApp builds a ClientConfig opening the given stream kinds.
func ClientConfigFromApp(cfg *config.Config, kinds []domain.StreamKind) ClientConfig {
	return ClientConfig{
		Connection: ConnectionConfigFromApp(cfg, kinds),
		Touch:      TouchConfigFromApp(cfg),
	}
}

// RemoteDesktopClient is the facade over the lifecycle manager, the input
// services and the metrics consumer.
type RemoteDesktopClient struct {
	conn    *ConnectionService
	mux     ports.ChannelMultiplexer
	control *ControlService
	input   *InputService
	touch   *TouchService
	metrics *MetricsService

	mu          sync.Mutex
	onClipboard []func(text string)
	closed      atomic.Bool
	closeOnce   sync.Once

	logger *zap.SugaredLogger
}

// NewRemoteDesktopClient wires every service around mux. publisher and
// recorder may be nil.
func NewRemoteDesktopClient(
	cfg ClientConfig,
	factory ports.SessionFactory,
	mux ports.ChannelMultiplexer,
	sinks map[domain.StreamKind]ports.MediaSink,
	recorder ports.MetricsRecorder,
	publisher ports.MetricsPublisher,
	logger *zap.SugaredLogger,
) (*RemoteDesktopClient, error) {
	input := NewInputService(mux, logger.With("component", "input"))
	c := &RemoteDesktopClient{
		conn:    NewConnectionService(cfg.Connection, factory, mux, sinks, recorder, logger.With("component", "connection")),
		mux:     mux,
		control: NewControlService(mux, logger.With("component", "control")),
		input:   input,
		touch:   NewTouchService(cfg.Touch, input, logger.With("component", "touch")),
		metrics: NewMetricsService(mux, publisher, recorder, logger.With("component", "metrics")),
		logger:  logger,
	}

	c.conn.OnMetrics(c.metrics.Handle)
	if err := mux.Handle(domain.ChannelHID, c.handleHID); err != nil {
		c.touch.Close()
		return nil, fmt.Errorf("failed to register hid handler: %w", err)
	}
	if err := mux.Handle(domain.ChannelAdaptive, c.metrics.HandleHostMetrics); err != nil {
		c.touch.Close()
		return nil, fmt.Errorf("failed to register adaptive handler: %w", err)
	}
	return c, nil
}

// Start launches the establishment loops.
func (c *RemoteDesktopClient) Start(ctx context.Context) {
	if c.closed.Load() {
		return
	}
	c.logger.Infow("starting remote desktop connection")
	c.conn.Start(ctx)
}

func (c *RemoteDesktopClient) handleHID(payload []byte) {
	if c.closed.Load() {
		return
	}
	event, err := hid.Decode(string(payload))
	if err != nil {
		c.logger.Debugw("ignoring malformed hid message", "error", err)
		return
	}
	clip, ok := event.(hid.ClipboardSet)
	if !ok {
		c.logger.Debugw("ignoring hid message from host", "code", event.Code())
		return
	}

	c.mu.Lock()
	listeners := append([]func(string){}, c.onClipboard...)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(clip.Text)
	}
}

// OnClipboard registers a listener for clipboard updates pushed by the host.
func (c *RemoteDesktopClient) OnClipboard(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onClipboard = append(c.onClipboard, fn)
}

func (c *RemoteDesktopClient) OnStateChange(fn StateListener) { c.conn.OnStateChange(fn) }
func (c *RemoteDesktopClient) OnMetric(fn MetricListener)     { c.metrics.OnMetric(fn) }

func (c *RemoteDesktopClient) Connection() *ConnectionService { return c.conn }
func (c *RemoteDesktopClient) Input() *InputService           { return c.input }
func (c *RemoteDesktopClient) Touch() *TouchService           { return c.touch }

// Ready reports whether video is connected.
func (c *RemoteDesktopClient) Ready() bool {
	return c.conn.State(domain.KindVideo) == domain.StateConnected
}

// Metrics returns the consumer-side view of both media sessions.
func (c *RemoteDesktopClient) Metrics() domain.ClientMetrics {
	m := c.metrics.Snapshot()
	m.Video.Status = c.conn.State(domain.KindVideo)
	m.Audio.Status = c.conn.State(domain.KindAudio)
	return m
}

func (c *RemoteDesktopClient) HostMetrics() map[string]any { return c.metrics.HostMetrics() }

// Sessions describes the live sessions.
func (c *RemoteDesktopClient) Sessions() []domain.SessionInfo { return c.conn.Sessions() }

func (c *RemoteDesktopClient) ChangeFramerate(fps int) error {
	if c.closed.Load() {
		return nil
	}
	return c.control.ChangeFramerate(fps)
}

func (c *RemoteDesktopClient) ChangeBitrate(kbps int) error {
	if c.closed.Load() {
		return nil
	}
	return c.control.ChangeBitrate(kbps)
}

func (c *RemoteDesktopClient) PointerVisible(visible bool) error {
	if c.closed.Load() {
		return nil
	}
	return c.control.PointerVisible(visible)
}

func (c *RemoteDesktopClient) ResetAudio() error {
	if c.closed.Load() {
		return nil
	}
	return c.control.ResetAudio()
}

// ResetVideo requests a key frame without renegotiating.
func (c *RemoteDesktopClient) ResetVideo() { c.conn.ResetVideo() }

// HardReset tears down the media sessions; they reconnect on their own.
func (c *RemoteDesktopClient) HardReset() { c.conn.HardReset() }

func (c *RemoteDesktopClient) SetClipboard(text string) error { return c.input.SetClipboard(text) }

// Close shuts everything down. Safe to call more than once.
func (c *RemoteDesktopClient) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.input.Close()
		c.touch.Close()
		err = c.conn.Close()
		c.logger.Infow("closed remote desktop connection")
	})
	return err
}
