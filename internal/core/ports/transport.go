package ports

import (
	"remotedesk/internal/core/domain"

	"github.com/pion/rtp"
)

// SignalingTransport exchanges negotiation envelopes with the host.
type SignalingTransport interface {
	Send(env domain.SignalingEnvelope) error
	// OnReceive registers the handler for inbound envelopes. Envelopes that
	// arrive before a handler is set are delivered once it is.
	OnReceive(handler func(domain.SignalingEnvelope))
	Close() error
	// Done is closed once the transport has fully stopped.
	Done() <-chan struct{}
}

// ChannelPrimitive is the underlying data channel a logical channel binds to.
type ChannelPrimitive interface {
	Label() string
	SendText(s string) error
}

// MediaStream is a remote track handed to a sink.
type MediaStream interface {
	ID() string
	Kind() domain.StreamKind
	MimeType() string
	ReadRTP() (*rtp.Packet, error)
}

// MediaSink renders (or forwards) one kind of remote media.
type MediaSink interface {
	Assign(stream MediaStream) error
	Play() error
	Detach()
}
