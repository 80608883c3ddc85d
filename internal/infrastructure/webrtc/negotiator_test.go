package webrtc

import (
	"errors"
	"sync"
	"testing"

	"remotedesk/internal/core/domain"

	"github.com/pion/webrtc/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePeer struct {
	remote     *webrtc.SessionDescription
	local      *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	remoteErr  error
}

func (p *fakePeer) SetRemoteDescription(desc webrtc.SessionDescription) error {
	if p.remoteErr != nil {
		return p.remoteErr
	}
	p.remote = &desc
	return nil
}

func (p *fakePeer) RemoteDescription() *webrtc.SessionDescription { return p.remote }

func (p *fakePeer) CreateAnswer(*webrtc.AnswerOptions) (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer-sdp"}, nil
}

func (p *fakePeer) SetLocalDescription(desc webrtc.SessionDescription) error {
	p.local = &desc
	return nil
}

func (p *fakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	p.candidates = append(p.candidates, c)
	return nil
}

type fakeTransport struct {
	mu      sync.Mutex
	sent    []domain.SignalingEnvelope
	handler func(domain.SignalingEnvelope)
	closed  bool
	done    chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{done: make(chan struct{})}
}

func (t *fakeTransport) Send(env domain.SignalingEnvelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return domain.ErrTransportClosed
	}
	t.sent = append(t.sent, env)
	return nil
}

func (t *fakeTransport) OnReceive(h func(domain.SignalingEnvelope)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = h
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.closed {
		t.closed = true
		close(t.done)
	}
	return nil
}

func (t *fakeTransport) Done() <-chan struct{} { return t.done }

func (t *fakeTransport) Sent() []domain.SignalingEnvelope {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]domain.SignalingEnvelope(nil), t.sent...)
}

func newTestNegotiator(t *testing.T, peer signalingPeer, tr *fakeTransport) (*negotiator, *[]error) {
	var failures []error
	return &negotiator{
		peer:      peer,
		transport: tr,
		sessionID: "session-1",
		kind:      domain.KindVideo,
		onFailure: func(err error) { failures = append(failures, err) },
		logger:    zaptest.NewLogger(t).Sugar(),
	}, &failures
}

func iceEnvelope(candidate string) domain.SignalingEnvelope {
	mid := "0"
	idx := uint16(0)
	return domain.SignalingEnvelope{
		Type:      domain.EnvelopeICE,
		Candidate: &domain.ICECandidate{Candidate: candidate, SDPMid: &mid, SDPMLineIndex: &idx},
	}
}

func TestNegotiator_AnswersOffer(t *testing.T) {
	peer := &fakePeer{}
	tr := newFakeTransport()
	n, failures := newTestNegotiator(t, peer, tr)

	n.handle(domain.SignalingEnvelope{Type: domain.EnvelopeOffer, SDP: "offer-sdp"})

	require.Empty(t, *failures)
	require.NotNil(t, peer.remote)
	assert.Equal(t, webrtc.SDPTypeOffer, peer.remote.Type)
	assert.Equal(t, "offer-sdp", peer.remote.SDP)
	require.NotNil(t, peer.local)

	sent := tr.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, domain.EnvelopeAnswer, sent[0].Type)
	assert.Equal(t, "session-1", sent[0].ID)
	assert.Equal(t, "answer-sdp", sent[0].SDP)
}

func TestNegotiator_BuffersCandidatesUntilRemoteDescription(t *testing.T) {
	peer := &fakePeer{}
	tr := newFakeTransport()
	n, _ := newTestNegotiator(t, peer, tr)

	n.handle(iceEnvelope("candidate:1 1 udp 1 10.0.0.1 5000 typ host"))
	n.handle(iceEnvelope("candidate:2 1 udp 1 10.0.0.2 5000 typ host"))
	assert.Empty(t, peer.candidates)

	n.handle(domain.SignalingEnvelope{Type: domain.EnvelopeOffer, SDP: "offer-sdp"})
	require.Len(t, peer.candidates, 2)
	assert.Equal(t, "candidate:1 1 udp 1 10.0.0.1 5000 typ host", peer.candidates[0].Candidate)

	n.handle(iceEnvelope("candidate:3 1 udp 1 10.0.0.3 5000 typ host"))
	assert.Len(t, peer.candidates, 3)
}

func TestNegotiator_IgnoresEmptyCandidate(t *testing.T) {
	peer := &fakePeer{}
	n, failures := newTestNegotiator(t, peer, newFakeTransport())

	n.handle(domain.SignalingEnvelope{Type: domain.EnvelopeICE})
	assert.Empty(t, n.pending)
	assert.Empty(t, *failures)
}

func TestNegotiator_OfferFailureReported(t *testing.T) {
	peer := &fakePeer{remoteErr: errors.New("bad sdp")}
	tr := newFakeTransport()
	n, failures := newTestNegotiator(t, peer, tr)

	n.handle(domain.SignalingEnvelope{Type: domain.EnvelopeOffer, SDP: "garbage"})

	require.Len(t, *failures, 1)
	assert.ErrorIs(t, (*failures)[0], domain.ErrNegotiationFailed)
	assert.Empty(t, tr.Sent())
}

func TestNegotiator_SendAnswerFailure(t *testing.T) {
	peer := &fakePeer{}
	tr := newFakeTransport()
	require.NoError(t, tr.Close())
	n, failures := newTestNegotiator(t, peer, tr)

	n.handle(domain.SignalingEnvelope{Type: domain.EnvelopeOffer, SDP: "offer-sdp"})

	require.Len(t, *failures, 1)
	assert.ErrorIs(t, (*failures)[0], domain.ErrNegotiationFailed)
}

func TestNegotiator_AppliesAnswer(t *testing.T) {
	peer := &fakePeer{}
	n, failures := newTestNegotiator(t, peer, newFakeTransport())

	n.handle(iceEnvelope("candidate:1 1 udp 1 10.0.0.1 5000 typ host"))
	n.handle(domain.SignalingEnvelope{Type: domain.EnvelopeAnswer, SDP: "answer"})

	assert.Empty(t, *failures)
	require.NotNil(t, peer.remote)
	assert.Equal(t, webrtc.SDPTypeAnswer, peer.remote.Type)
	assert.Len(t, peer.candidates, 1)
}

func TestNegotiator_SendCandidateNilIsNoop(t *testing.T) {
	tr := newFakeTransport()
	n, _ := newTestNegotiator(t, &fakePeer{}, tr)

	n.sendCandidate(nil)
	assert.Empty(t, tr.Sent())
}
