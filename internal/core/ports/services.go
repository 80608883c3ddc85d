package ports

import (
	"context"
	"time"

	"remotedesk/internal/core/domain"
)

// PeerSession is one negotiated peer connection for a single stream kind.
type PeerSession interface {
	ID() string
	Kind() domain.StreamKind
	CreatedAt() time.Time
	Connected() bool
	Health() domain.SessionHealth
	RequestKeyFrame() error
	// Done is closed when the underlying connection fails or is closed.
	Done() <-chan struct{}
	Close() error
}

// SessionHandlers are the callbacks a session reports into.
type SessionHandlers struct {
	OnTrack          func(stream MediaStream)
	OnDataChannel    func(ch ChannelPrimitive)
	OnChannelClose   func(ch ChannelPrimitive)
	OnChannelMessage func(label string, payload []byte)
	OnFrame          func(keyFrame bool)
	OnMetrics        func(report domain.MetricReport)
}

// SessionFactory creates a fresh session, with its own signaling transport, per attempt.
type SessionFactory interface {
	NewSession(ctx context.Context, kind domain.StreamKind, handlers SessionHandlers) (PeerSession, error)
}

// MetricsRecorder receives client-side observability events.
type MetricsRecorder interface {
	RecordStateChange(kind domain.StreamKind, from, to domain.SessionState)
	RecordEstablishment(kind domain.StreamKind, outcome string, duration time.Duration)
	RecordVideoRates(rates domain.VideoRates)
	RecordNetwork(metrics domain.NetworkMetrics)
	RecordAudioSamples(samples uint64)
	RecordChannelSend(label domain.ChannelLabel, queued bool)
	RecordVideoReset(reason string)
}

// MetricsPublisher fans QoS snapshots out to an external telemetry sink.
type MetricsPublisher interface {
	Publish(ctx context.Context, kind domain.MetricKind, payload any) error
}

// ChannelSender queues payloads on a logical channel.
type ChannelSender interface {
	Send(label domain.ChannelLabel, payload string) error
}

// ChannelMultiplexer routes logical channels over whatever data channels are
// currently open.
type ChannelMultiplexer interface {
	ChannelSender
	Bind(primitive ChannelPrimitive) error
	Unbind(primitive ChannelPrimitive)
	Handle(label domain.ChannelLabel, fn func(payload []byte)) error
	OnIncoming(label string, payload []byte)
	Close()
}
