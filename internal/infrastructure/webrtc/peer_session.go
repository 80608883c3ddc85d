package webrtc

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"
	"remotedesk/internal/infrastructure/qos"

	"github.com/google/uuid"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// PeerSession is one pion peer connection for a single stream kind, together
// with the signaling transport that negotiated it.
type PeerSession struct {
	id        string
	kind      domain.StreamKind
	createdAt time.Time

	pc        *webrtc.PeerConnection
	transport ports.SignalingTransport
	handlers  ports.SessionHandlers
	nego      *negotiator
	poller    *qos.Poller

	counters  trackCounters
	connected atomic.Bool
	videoSSRC atomic.Uint32

	mu      sync.Mutex
	streams []*pumpedStream

	closeOnce sync.Once
	doneOnce  sync.Once
	done      chan struct{}

	logger *zap.SugaredLogger
}

func newPeerSession(kind domain.StreamKind, pc *webrtc.PeerConnection, transport ports.SignalingTransport, handlers ports.SessionHandlers, qosInterval time.Duration, logger *zap.SugaredLogger) *PeerSession {
	id := uuid.NewString()
	s := &PeerSession{
		id:        id,
		kind:      kind,
		createdAt: time.Now(),
		pc:        pc,
		transport: transport,
		handlers:  handlers,
		done:      make(chan struct{}),
		logger:    logger.With("session_id", id, "kind", kind),
	}

	s.nego = &negotiator{
		peer:      pc,
		transport: transport,
		sessionID: id,
		kind:      kind,
		onFailure: func(err error) { go s.fail(err) },
		logger:    s.logger,
	}

	pc.OnICECandidate(s.nego.sendCandidate)
	pc.OnConnectionStateChange(s.handleConnectionState)
	pc.OnTrack(s.handleTrack)
	pc.OnDataChannel(s.handleDataChannel)
	transport.OnReceive(s.nego.handle)

	if handlers.OnMetrics != nil {
		s.poller = qos.NewPoller(qosInterval, s.collect, handlers.OnMetrics, s.logger)
		s.poller.Start(context.Background())
	}
	go s.watchTransport()
	return s
}

// watchTransport fails the session when signaling stops before the peer
// connection is up. Once connected the media path no longer needs it.
func (s *PeerSession) watchTransport() {
	select {
	case <-s.transport.Done():
		if !s.connected.Load() {
			s.fail(fmt.Errorf("%w: signaling transport closed", domain.ErrNegotiationFailed))
		}
	case <-s.done:
	}
}

func (s *PeerSession) ID() string              { return s.id }
func (s *PeerSession) Kind() domain.StreamKind { return s.kind }
func (s *PeerSession) CreatedAt() time.Time    { return s.createdAt }
func (s *PeerSession) Connected() bool         { return s.connected.Load() }
func (s *PeerSession) Done() <-chan struct{}   { return s.done }

func (s *PeerSession) Health() domain.SessionHealth {
	return s.counters.snapshot()
}

// RequestKeyFrame sends a Picture Loss Indication for the remote video track.
// Before a video track has arrived it does nothing.
func (s *PeerSession) RequestKeyFrame() error {
	ssrc := s.videoSSRC.Load()
	if ssrc == 0 {
		return nil
	}
	select {
	case <-s.done:
		return domain.ErrSessionClosed
	default:
	}
	return s.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: ssrc}})
}

// Close tears down polling, signaling and the peer connection. Safe to call
// more than once.
func (s *PeerSession) Close() error {
	var err error
	s.closeOnce.Do(func() {
		if s.poller != nil {
			s.poller.Stop()
		}
		if terr := s.transport.Close(); terr != nil {
			s.logger.Debugw("signaling transport close failed", "error", terr)
		}
		err = s.pc.Close()

		s.mu.Lock()
		for _, st := range s.streams {
			st.stop()
		}
		s.mu.Unlock()

		s.connected.Store(false)
		s.markDone()
		s.logger.Infow("session closed")
	})
	return err
}

func (s *PeerSession) fail(err error) {
	s.logger.Warnw("session failed", "error", err)
	_ = s.Close()
}

func (s *PeerSession) markDone() {
	s.doneOnce.Do(func() { close(s.done) })
}

func (s *PeerSession) collect() domain.MetricReport {
	return qos.Collect(s.pc.GetStats(), s.kind, s.Health(), time.Now())
}

func (s *PeerSession) handleConnectionState(state webrtc.PeerConnectionState) {
	s.logger.Infow("peer connection state changed", "connection_state", state.String())

	switch state {
	case webrtc.PeerConnectionStateConnected:
		s.connected.Store(true)
	case webrtc.PeerConnectionStateDisconnected:
		s.connected.Store(false)
	case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
		s.connected.Store(false)
		s.markDone()
	}
}

func (s *PeerSession) handleTrack(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	kind := domain.KindVideo
	if track.Kind() == webrtc.RTPCodecTypeAudio {
		kind = domain.KindAudio
	}
	codec := track.Codec()

	s.logger.Infow("remote track started",
		"track_id", track.ID(),
		"track_kind", kind,
		"codec", codec.MimeType,
	)

	if kind == domain.KindVideo {
		s.videoSSRC.Store(uint32(track.SSRC()))
	}

	stream := newPumpedStream(track.ID(), kind, codec.MimeType)
	s.mu.Lock()
	s.streams = append(s.streams, stream)
	s.mu.Unlock()

	var onFrame func(bool)
	if kind == domain.KindVideo {
		onFrame = s.handlers.OnFrame
	}
	go stream.pump(track, codec.ClockRate, &s.counters, onFrame, s.logger)
	go s.readRTCP(receiver)

	if s.handlers.OnTrack != nil {
		s.handlers.OnTrack(stream)
	}
}

// readRTCP drains receiver reports so the interceptors keep running.
func (s *PeerSession) readRTCP(receiver *webrtc.RTPReceiver) {
	for {
		packets, _, err := receiver.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			switch pkt := p.(type) {
			case *rtcp.SenderReport:
				s.logger.Debugw("sender report", "ssrc", pkt.SSRC, "packets", pkt.PacketCount, "octets", pkt.OctetCount)
			case *rtcp.Goodbye:
				s.logger.Infow("host ended stream", "sources", pkt.Sources)
			}
		}
	}
}

func (s *PeerSession) handleDataChannel(dc *webrtc.DataChannel) {
	prim := &dataChannelPrimitive{dc: dc}
	label := dc.Label()

	dc.OnOpen(func() {
		s.logger.Infow("data channel open", "label", label)
		if s.handlers.OnDataChannel != nil {
			s.handlers.OnDataChannel(prim)
		}
	})
	dc.OnClose(func() {
		s.logger.Infow("data channel closed", "label", label)
		if s.handlers.OnChannelClose != nil {
			s.handlers.OnChannelClose(prim)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		if s.handlers.OnChannelMessage != nil {
			s.handlers.OnChannelMessage(label, msg.Data)
		}
	})
}

// dataChannelPrimitive adapts a pion data channel to ports.ChannelPrimitive.
type dataChannelPrimitive struct {
	dc *webrtc.DataChannel
}

func (p *dataChannelPrimitive) Label() string { return p.dc.Label() }

func (p *dataChannelPrimitive) SendText(text string) error {
	return p.dc.SendText(text)
}
