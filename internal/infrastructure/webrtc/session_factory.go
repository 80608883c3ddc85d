package webrtc

import (
	"context"
	"fmt"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"
	"remotedesk/internal/infrastructure/signal"
	"remotedesk/pkg/config"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// DialFunc opens a signaling transport. Tests replace signal.Dial with an
// in-memory pair.
type DialFunc func(ctx context.Context, url string, opts signal.Options, logger *zap.SugaredLogger) (ports.SignalingTransport, error)

// Config configures peer connections created by the factory.
type Config struct {
	ICEServers []webrtc.ICEServer
	PortRange  struct {
		Min uint16
		Max uint16
	}
	// URLs maps each stream kind to its signaling endpoint.
	URLs            map[domain.StreamKind]string
	Signaling       signal.Options
	QoSPollInterval time.Duration
}

// ConfigFromApp maps the application config onto the factory config.
func ConfigFromApp(cfg *config.Config) Config {
	var c Config
	for _, s := range cfg.WebRTC.ICEServers {
		c.ICEServers = append(c.ICEServers, webrtc.ICEServer{
			URLs:       s.URLs,
			Username:   s.Username,
			Credential: s.Credential,
		})
	}
	c.PortRange.Min = cfg.WebRTC.PortRange.Min
	c.PortRange.Max = cfg.WebRTC.PortRange.Max
	c.URLs = map[domain.StreamKind]string{}
	if cfg.Signaling.VideoURL != "" {
		c.URLs[domain.KindVideo] = cfg.Signaling.VideoURL
	}
	if cfg.Signaling.AudioURL != "" {
		c.URLs[domain.KindAudio] = cfg.Signaling.AudioURL
	}
	if cfg.Signaling.DataURL != "" {
		c.URLs[domain.KindData] = cfg.Signaling.DataURL
	}
	c.Signaling = signal.OptionsFromConfig(cfg)
	c.QoSPollInterval = cfg.QoS.PollInterval
	return c
}

// SessionFactory builds a fresh peer connection and signaling transport for
// every establishment attempt.
type SessionFactory struct {
	config Config
	dial   DialFunc
	logger *zap.SugaredLogger
}

// NewSessionFactory creates a factory dialing signaling with the configured transport.
func NewSessionFactory(config Config, logger *zap.SugaredLogger) *SessionFactory {
	if config.QoSPollInterval <= 0 {
		config.QoSPollInterval = 200 * time.Millisecond
	}
	return &SessionFactory{
		config: config,
		dial:   signal.Dial,
		logger: logger,
	}
}

// Kinds lists the stream kinds that have a signaling endpoint.
func (f *SessionFactory) Kinds() []domain.StreamKind {
	var kinds []domain.StreamKind
	for _, k := range []domain.StreamKind{domain.KindVideo, domain.KindAudio, domain.KindData} {
		if _, ok := f.config.URLs[k]; ok {
			kinds = append(kinds, k)
		}
	}
	return kinds
}

func (f *SessionFactory) NewSession(ctx context.Context, kind domain.StreamKind, handlers ports.SessionHandlers) (ports.PeerSession, error) {
	url, ok := f.config.URLs[kind]
	if !ok {
		return nil, fmt.Errorf("no signaling url configured for %s", kind)
	}

	pc, err := f.createPeerConnection()
	if err != nil {
		return nil, fmt.Errorf("failed to create peer connection: %w", err)
	}

	transport, err := f.dial(ctx, url, f.config.Signaling, f.logger)
	if err != nil {
		_ = pc.Close()
		return nil, fmt.Errorf("failed to open signaling for %s: %w", kind, err)
	}

	s := newPeerSession(kind, pc, transport, handlers, f.config.QoSPollInterval, f.logger)
	f.logger.Infow("session created", "session_id", s.ID(), "kind", kind, "url", url)
	return s, nil
}

// createPeerConnection builds a dedicated API per connection since a media
// engine must not be shared between peer connections.
func (f *SessionFactory) createPeerConnection() (*webrtc.PeerConnection, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("failed to register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("failed to register interceptors: %w", err)
	}

	settingEngine := webrtc.SettingEngine{}
	if f.config.PortRange.Min > 0 && f.config.PortRange.Max > 0 {
		if err := settingEngine.SetEphemeralUDPPortRange(f.config.PortRange.Min, f.config.PortRange.Max); err != nil {
			return nil, fmt.Errorf("invalid port range: %w", err)
		}
	}

	api := webrtc.NewAPI(
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(registry),
		webrtc.WithSettingEngine(settingEngine),
	)
	return api.NewPeerConnection(webrtc.Configuration{
		ICEServers:   f.config.ICEServers,
		SDPSemantics: webrtc.SDPSemanticsUnifiedPlanWithFallback,
	})
}
