package webrtc

import (
	"io"
	"sync"
	"sync/atomic"

	"remotedesk/internal/core/domain"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"go.uber.org/zap"
)

const streamBuffer = 256

// rtpReader is the read side of a remote track.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// trackCounters are the liveness counters of a session, shared by all of
// its tracks.
type trackCounters struct {
	frames      atomic.Uint64
	keyFrames   atomic.Uint64
	samples     atomic.Uint64
	packets     atomic.Uint64
	bytes       atomic.Uint64
	headerBytes atomic.Uint64
}

func (c *trackCounters) snapshot() domain.SessionHealth {
	return domain.SessionHealth{
		FramesDecoded:       c.frames.Load(),
		KeyFramesDecoded:    c.keyFrames.Load(),
		SamplesReceived:     c.samples.Load(),
		PacketsReceived:     c.packets.Load(),
		BytesReceived:       c.bytes.Load(),
		HeaderBytesReceived: c.headerBytes.Load(),
	}
}

// pumpedStream reads a remote track on its own goroutine, keeps the session
// counters current and hands packets to whichever sink is attached. Packets
// are dropped when the sink falls behind so counters never stall.
type pumpedStream struct {
	id       string
	kind     domain.StreamKind
	mimeType string

	packets chan *rtp.Packet
	done    chan struct{}
	once    sync.Once
	dropped atomic.Uint64
}

func (s *pumpedStream) ID() string              { return s.id }
func (s *pumpedStream) Kind() domain.StreamKind { return s.kind }
func (s *pumpedStream) MimeType() string        { return s.mimeType }

// ReadRTP blocks until the next packet or io.EOF once the track ends.
func (s *pumpedStream) ReadRTP() (*rtp.Packet, error) {
	select {
	case p := <-s.packets:
		return p, nil
	case <-s.done:
		select {
		case p := <-s.packets:
			return p, nil
		default:
			return nil, io.EOF
		}
	}
}

func (s *pumpedStream) stop() {
	s.once.Do(func() { close(s.done) })
}

// pump reads reader until it fails. onFrame is called for every completed
// video frame.
func (s *pumpedStream) pump(reader rtpReader, clockRate uint32, counters *trackCounters, onFrame func(key bool), logger *zap.SugaredLogger) {
	defer s.stop()

	frames := frameTracker{mimeType: s.mimeType}
	samples := sampleCounter{clockRate: clockRate}

	for {
		packet, _, err := reader.ReadRTP()
		if err != nil {
			if err != io.EOF {
				logger.Debugw("remote track ended", "track_id", s.id, "kind", s.kind, "error", err)
			}
			return
		}

		counters.packets.Add(1)
		counters.bytes.Add(uint64(len(packet.Payload)))
		counters.headerBytes.Add(uint64(packet.Header.MarshalSize()))

		switch s.kind {
		case domain.KindVideo:
			if done, key := frames.push(packet); done {
				counters.frames.Add(1)
				if key {
					counters.keyFrames.Add(1)
				}
				if onFrame != nil {
					onFrame(key)
				}
			}
		case domain.KindAudio:
			counters.samples.Add(samples.push(packet))
		}

		select {
		case s.packets <- packet:
		default:
			if n := s.dropped.Add(1); n%500 == 1 {
				logger.Debugw("sink behind, dropping packets", "track_id", s.id, "dropped", n)
			}
		}
	}
}

func newPumpedStream(id string, kind domain.StreamKind, mimeType string) *pumpedStream {
	return &pumpedStream{
		id:       id,
		kind:     kind,
		mimeType: mimeType,
		packets:  make(chan *rtp.Packet, streamBuffer),
		done:     make(chan struct{}),
	}
}
