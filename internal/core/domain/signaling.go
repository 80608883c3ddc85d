package domain

type EnvelopeType string

const (
	EnvelopeOffer  EnvelopeType = "offer"
	EnvelopeAnswer EnvelopeType = "answer"
	EnvelopeICE    EnvelopeType = "ice"
)

// ICECandidate mirrors the browser's RTCIceCandidateInit JSON.
type ICECandidate struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid,omitempty"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex,omitempty"`
}

// SignalingEnvelope is one negotiation message exchanged with the host.
type SignalingEnvelope struct {
	ID        string        `json:"id,omitempty"`
	Type      EnvelopeType  `json:"type"`
	SDP       string        `json:"sdp,omitempty"`
	Candidate *ICECandidate `json:"candidate,omitempty"`
}
