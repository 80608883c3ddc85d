package webrtc

import (
	"strings"

	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v3"
)

const (
	naluTypeIDR   = 5
	naluTypeSPS   = 7
	naluTypeSTAPA = 24
	naluTypeFUA   = 28
)

// isKeyFrameStart reports whether packet begins (or carries) a key frame for
// the given codec. Unknown codecs never report key frames.
func isKeyFrameStart(mimeType string, packet *rtp.Packet) bool {
	if len(packet.Payload) == 0 {
		return false
	}

	switch {
	case strings.EqualFold(mimeType, webrtc.MimeTypeH264):
		return h264KeyFrame(packet.Payload)
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP8):
		return vp8KeyFrame(packet.Payload)
	case strings.EqualFold(mimeType, webrtc.MimeTypeVP9):
		return vp9KeyFrame(packet.Payload)
	}
	return false
}

func h264KeyFrame(payload []byte) bool {
	switch nalType := payload[0] & 0x1F; nalType {
	case naluTypeIDR, naluTypeSPS:
		return true
	case naluTypeSTAPA:
		for offset := 1; offset+2 < len(payload); {
			size := int(payload[offset])<<8 | int(payload[offset+1])
			offset += 2
			if offset >= len(payload) || size == 0 {
				return false
			}
			if t := payload[offset] & 0x1F; t == naluTypeIDR || t == naluTypeSPS {
				return true
			}
			offset += size
		}
	case naluTypeFUA:
		if len(payload) < 2 {
			return false
		}
		start := payload[1]&0x80 != 0
		return start && payload[1]&0x1F == naluTypeIDR
	}
	return false
}

func vp8KeyFrame(payload []byte) bool {
	var pkt codecs.VP8Packet
	if _, err := pkt.Unmarshal(payload); err != nil {
		return false
	}
	// P bit of the VP8 payload header is 0 for key frames.
	return pkt.S == 1 && pkt.PID == 0 && len(pkt.Payload) > 0 && pkt.Payload[0]&0x01 == 0
}

func vp9KeyFrame(payload []byte) bool {
	var pkt codecs.VP9Packet
	if _, err := pkt.Unmarshal(payload); err != nil {
		return false
	}
	return pkt.B && !pkt.P
}

// frameTracker assembles RTP packets into frames using the marker bit.
type frameTracker struct {
	mimeType string
	key      bool
}

// push consumes one packet and reports whether it closed a frame, and if so
// whether that frame was a key frame.
func (f *frameTracker) push(packet *rtp.Packet) (done, key bool) {
	if isKeyFrameStart(f.mimeType, packet) {
		f.key = true
	}
	if !packet.Marker {
		return false, false
	}
	key = f.key
	f.key = false
	return true, key
}

// sampleCounter converts RTP timestamp progress into received sample counts.
type sampleCounter struct {
	clockRate uint32
	last      uint32
	started   bool
}

// push returns the number of samples the packet advanced the stream by.
// Reordered packets and jumps over one second are ignored.
func (s *sampleCounter) push(packet *rtp.Packet) uint64 {
	if !s.started {
		s.started = true
		s.last = packet.Timestamp
		return 0
	}

	delta := packet.Timestamp - s.last
	if delta == 0 || delta > 1<<31 {
		return 0
	}
	s.last = packet.Timestamp
	if s.clockRate > 0 && delta > s.clockRate {
		return 0
	}
	return uint64(delta)
}
