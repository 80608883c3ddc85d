// Package sink holds the media sinks remote tracks are handed to.
package sink

import (
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"

	"github.com/pion/rtp"
	"go.uber.org/zap"
)

// attachment reads one assigned stream until it ends or is replaced.
type attachment struct {
	stream ports.MediaStream
	stop   chan struct{}
	done   chan struct{}
}

// Forwarder relays the RTP packets of the assigned stream to a UDP address.
// Packets read before Play, or with no address set, are discarded.
type Forwarder struct {
	kind domain.StreamKind
	conn net.Conn

	mu      sync.Mutex
	current *attachment
	playing atomic.Bool

	forwarded atomic.Uint64
	discarded atomic.Uint64

	logger *zap.SugaredLogger
}

// NewForwarder dials addr over UDP. An empty addr gives a sink that only
// drains its stream.
func NewForwarder(kind domain.StreamKind, addr string, logger *zap.SugaredLogger) (*Forwarder, error) {
	f := &Forwarder{kind: kind, logger: logger}
	if addr == "" {
		return f, nil
	}
	conn, err := net.Dial("udp", addr)
	if err != nil {
		return nil, err
	}
	f.conn = conn
	return f, nil
}

// NewDiscard returns a sink that drains and drops everything.
func NewDiscard(kind domain.StreamKind, logger *zap.SugaredLogger) *Forwarder {
	return &Forwarder{kind: kind, logger: logger}
}

// Assign replaces the current stream.
func (f *Forwarder) Assign(stream ports.MediaStream) error {
	if stream.Kind() != f.kind {
		return errors.New("sink: " + string(stream.Kind()) + " stream assigned to " + string(f.kind) + " sink")
	}

	a := &attachment{stream: stream, stop: make(chan struct{}), done: make(chan struct{})}

	f.mu.Lock()
	prev := f.current
	f.current = a
	f.mu.Unlock()

	if prev != nil {
		f.release(prev)
	}
	f.logger.Debugw("stream assigned", "kind", f.kind, "track", stream.ID(), "mime", stream.MimeType())
	go f.pump(a)
	return nil
}

func (f *Forwarder) Play() error {
	f.playing.Store(true)
	return nil
}

// Detach drops the current stream and pauses forwarding. The UDP socket
// stays open for the next Assign.
func (f *Forwarder) Detach() {
	f.playing.Store(false)

	f.mu.Lock()
	a := f.current
	f.current = nil
	f.mu.Unlock()

	if a != nil {
		f.release(a)
	}
}

// Close detaches and closes the socket.
func (f *Forwarder) Close() error {
	f.Detach()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

// Stats returns how many packets were forwarded and discarded.
func (f *Forwarder) Stats() (forwarded, discarded uint64) {
	return f.forwarded.Load(), f.discarded.Load()
}

// release stops a's pump without waiting for it: the pump may be blocked in
// ReadRTP until the next packet or the end of the track.
func (f *Forwarder) release(a *attachment) {
	close(a.stop)
}

func (f *Forwarder) pump(a *attachment) {
	defer close(a.done)
	buf := make([]byte, 1500)

	for {
		packet, err := a.stream.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				f.logger.Debugw("stream read ended", "kind", f.kind, "error", err)
			}
			return
		}
		select {
		case <-a.stop:
			return
		default:
		}
		f.forward(packet, buf)
	}
}

func (f *Forwarder) forward(packet *rtp.Packet, buf []byte) {
	if f.conn == nil || !f.playing.Load() {
		f.discarded.Add(1)
		return
	}
	n, err := packet.MarshalTo(buf)
	if err != nil {
		f.discarded.Add(1)
		f.logger.Debugw("failed to marshal rtp packet", "kind", f.kind, "error", err)
		return
	}
	if _, err := f.conn.Write(buf[:n]); err != nil {
		f.discarded.Add(1)
		return
	}
	f.forwarded.Add(1)
}
