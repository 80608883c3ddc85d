package webrtc

import (
	"context"
	"fmt"
	"sync"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"
	"remotedesk/pkg/tracing"

	"github.com/pion/webrtc/v3"
	"go.uber.org/zap"
)

// signalingPeer is the part of a peer connection negotiation touches.
type signalingPeer interface {
	SetRemoteDescription(desc webrtc.SessionDescription) error
	RemoteDescription() *webrtc.SessionDescription
	CreateAnswer(options *webrtc.AnswerOptions) (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	AddICECandidate(candidate webrtc.ICECandidateInit) error
}

// negotiator answers host offers and applies trickled candidates. Candidates
// that arrive before the remote description are held back.
type negotiator struct {
	peer      signalingPeer
	transport ports.SignalingTransport
	sessionID string
	kind      domain.StreamKind
	onFailure func(error)

	mu      sync.Mutex
	pending []webrtc.ICECandidateInit

	logger *zap.SugaredLogger
}

func (n *negotiator) handle(env domain.SignalingEnvelope) {
	n.mu.Lock()
	defer n.mu.Unlock()

	switch env.Type {
	case domain.EnvelopeOffer:
		if err := n.answer(env.SDP); err != nil {
			n.onFailure(err)
		}
	case domain.EnvelopeAnswer:
		desc := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: env.SDP}
		if err := n.peer.SetRemoteDescription(desc); err != nil {
			n.onFailure(fmt.Errorf("%w: apply answer: %v", domain.ErrNegotiationFailed, err))
			return
		}
		n.flushCandidates()
	case domain.EnvelopeICE:
		if env.Candidate == nil {
			return
		}
		init := webrtc.ICECandidateInit{
			Candidate:     env.Candidate.Candidate,
			SDPMid:        env.Candidate.SDPMid,
			SDPMLineIndex: env.Candidate.SDPMLineIndex,
		}
		if n.peer.RemoteDescription() == nil {
			n.pending = append(n.pending, init)
			return
		}
		if err := n.peer.AddICECandidate(init); err != nil {
			n.logger.Warnw("failed to add remote candidate", "session_id", n.sessionID, "kind", n.kind, "error", err)
		}
	default:
		n.logger.Debugw("ignoring signaling message", "session_id", n.sessionID, "type", env.Type)
	}
}

func (n *negotiator) answer(sdp string) error {
	ctx, span := tracing.TraceSignaling(context.Background(), "answer", string(n.kind))
	defer span.End()

	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := n.peer.SetRemoteDescription(offer); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("%w: apply offer: %v", domain.ErrNegotiationFailed, err)
	}
	n.flushCandidates()

	answer, err := n.peer.CreateAnswer(nil)
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("%w: create answer: %v", domain.ErrNegotiationFailed, err)
	}
	if err := n.peer.SetLocalDescription(answer); err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("%w: set local description: %v", domain.ErrNegotiationFailed, err)
	}

	err = n.transport.Send(domain.SignalingEnvelope{
		ID:   n.sessionID,
		Type: domain.EnvelopeAnswer,
		SDP:  answer.SDP,
	})
	if err != nil {
		tracing.RecordError(ctx, err)
		return fmt.Errorf("%w: send answer: %v", domain.ErrNegotiationFailed, err)
	}
	n.logger.Debugw("answer sent", "session_id", n.sessionID, "kind", n.kind)
	return nil
}

func (n *negotiator) flushCandidates() {
	pending := n.pending
	n.pending = nil
	for _, c := range pending {
		if err := n.peer.AddICECandidate(c); err != nil {
			n.logger.Warnw("failed to add buffered candidate", "session_id", n.sessionID, "kind", n.kind, "error", err)
		}
	}
}

// sendCandidate trickles a local candidate to the host.
func (n *negotiator) sendCandidate(c *webrtc.ICECandidate) {
	if c == nil {
		return
	}
	init := c.ToJSON()
	err := n.transport.Send(domain.SignalingEnvelope{
		ID:   n.sessionID,
		Type: domain.EnvelopeICE,
		Candidate: &domain.ICECandidate{
			Candidate:     init.Candidate,
			SDPMid:        init.SDPMid,
			SDPMLineIndex: init.SDPMLineIndex,
		},
	})
	if err != nil {
		n.logger.Debugw("failed to send local candidate", "session_id", n.sessionID, "kind", n.kind, "error", err)
	}
}
