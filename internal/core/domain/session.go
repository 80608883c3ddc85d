package domain

import (
	"fmt"
	"time"
)

type StreamKind string

const (
	KindAudio StreamKind = "audio"
	KindVideo StreamKind = "video"
	KindData  StreamKind = "data"
)

func (k StreamKind) Valid() bool {
	switch k {
	case KindAudio, KindVideo, KindData:
		return true
	}
	return false
}

type SessionState int

const (
	StateClosed SessionState = iota
	StateConnecting
	StateConnected
)

func (s SessionState) String() string {
	switch s {
	case StateClosed:
		return "close"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "unknown"
	}
}

func (s SessionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *SessionState) UnmarshalText(b []byte) error {
	switch string(b) {
	case "close":
		*s = StateClosed
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	default:
		return fmt.Errorf("unknown session state %q", b)
	}
	return nil
}

// SessionHealth holds the liveness counters of one session. They only grow.
type SessionHealth struct {
	FramesDecoded       uint64
	KeyFramesDecoded    uint64
	SamplesReceived     uint64
	PacketsReceived     uint64
	BytesReceived       uint64
	HeaderBytesReceived uint64
}

// MediaReceived reports whether the first unit of media for kind has arrived.
func (h SessionHealth) MediaReceived(kind StreamKind) bool {
	switch kind {
	case KindVideo:
		return h.FramesDecoded > 0
	case KindAudio:
		return h.SamplesReceived > 0
	default:
		return true
	}
}

// SessionInfo describes a live session for status reporting.
type SessionInfo struct {
	ID        string
	Kind      StreamKind
	State     SessionState
	CreatedAt time.Time
	Health    SessionHealth
}
