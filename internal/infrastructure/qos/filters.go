package qos

import (
	"fmt"
	"sort"
	"time"

	"remotedesk/internal/core/domain"

	"github.com/pion/webrtc/v3"
)

// Collect extracts the network, audio and video snapshots from one stats
// report. Media categories merge the inbound-rtp record of that kind with the
// session's own track counters; a kind with neither is omitted.
func Collect(report webrtc.StatsReport, kind domain.StreamKind, health domain.SessionHealth, now time.Time) domain.MetricReport {
	var out domain.MetricReport
	out.Network = FilterNetwork(report)

	switch kind {
	case domain.KindAudio:
		out.Audio = FilterAudio(report, health, now)
	case domain.KindVideo:
		out.Video = FilterVideo(report, health, now)
	}
	return out
}

// sortedIDs returns report keys in a stable order so "last match wins"
// selection does not depend on map iteration.
func sortedIDs(report webrtc.StatsReport) []string {
	ids := make([]string, 0, len(report))
	for id := range report {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FilterNetwork picks the succeeded, nominated candidate pair. The address
// pair comes from the last pair that actually received bytes.
func FilterNetwork(report webrtc.StatsReport) *domain.NetworkMetrics {
	var selected *webrtc.ICECandidatePairStats
	var active *webrtc.ICECandidatePairStats

	for _, id := range sortedIDs(report) {
		pair, ok := report[id].(webrtc.ICECandidatePairStats)
		if !ok {
			continue
		}
		if pair.State == webrtc.StatsICECandidatePairStateSucceeded && pair.Nominated {
			p := pair
			selected = &p
		}
		if pair.BytesReceived > 0 {
			p := pair
			active = &p
		}
	}
	if selected == nil {
		return nil
	}

	local, okLocal := candidate(report, selected.LocalCandidateID)
	remote, okRemote := candidate(report, selected.RemoteCandidateID)
	if !okLocal || !okRemote {
		return nil
	}

	m := &domain.NetworkMetrics{
		Type:                     domain.MetricNetwork,
		Timestamp:                float64(selected.Timestamp),
		LocalIP:                  local.IP,
		LocalPort:                int(local.Port),
		RemoteIP:                 remote.IP,
		RemotePort:               int(remote.Port),
		PacketsReceived:          selected.PacketsReceived,
		PacketsSent:              selected.PacketsSent,
		BytesReceived:            selected.BytesReceived,
		BytesSent:                selected.BytesSent,
		AvailableIncomingBitrate: selected.AvailableIncomingBitrate,
		AvailableOutgoingBitrate: selected.AvailableOutgoingBitrate,
		CurrentRoundTripTime:     selected.CurrentRoundTripTime,
		TotalRoundTripTime:       selected.TotalRoundTripTime,
	}

	if active != nil {
		if c, ok := candidate(report, active.LocalCandidateID); ok {
			m.Address.Local = fmt.Sprintf("%s:%d", c.IP, c.Port)
		}
		if c, ok := candidate(report, active.RemoteCandidateID); ok {
			m.Address.Remote = fmt.Sprintf("%s:%d", c.IP, c.Port)
		}
	}
	return m
}

func candidate(report webrtc.StatsReport, id string) (webrtc.ICECandidateStats, bool) {
	c, ok := report[id].(webrtc.ICECandidateStats)
	return c, ok
}

func inbound(report webrtc.StatsReport, kind string) (webrtc.InboundRTPStreamStats, bool) {
	var found webrtc.InboundRTPStreamStats
	ok := false
	for _, id := range sortedIDs(report) {
		if s, isInbound := report[id].(webrtc.InboundRTPStreamStats); isInbound && s.Kind == kind {
			found = s
			ok = true
		}
	}
	return found, ok
}

func millis(t time.Time) float64 {
	return float64(t.UnixNano()) / float64(time.Millisecond)
}

// FilterVideo builds the video snapshot. Frame counters always come from the
// session since the stats report carries no decoder state for a receiver that
// does not decode.
func FilterVideo(report webrtc.StatsReport, health domain.SessionHealth, now time.Time) *domain.VideoMetrics {
	s, ok := inbound(report, "video")
	if !ok && health.PacketsReceived == 0 {
		return nil
	}

	m := &domain.VideoMetrics{
		Type:                domain.MetricVideo,
		Timestamp:           millis(now),
		FramesDecoded:       health.FramesDecoded,
		KeyFramesDecoded:    health.KeyFramesDecoded,
		HeaderBytesReceived: health.HeaderBytesReceived,
		BytesReceived:       health.BytesReceived,
		PacketsReceived:     health.PacketsReceived,
	}
	if ok {
		m.Timestamp = float64(s.Timestamp)
		m.CodecID = s.CodecID
		m.PacketsLost = int64(s.PacketsLost)
		m.Jitter = s.Jitter
		if s.BytesReceived > m.BytesReceived {
			m.BytesReceived = s.BytesReceived
		}
		if uint64(s.PacketsReceived) > m.PacketsReceived {
			m.PacketsReceived = uint64(s.PacketsReceived)
		}
	}
	return m
}

// FilterAudio builds the audio snapshot the same way as FilterVideo.
func FilterAudio(report webrtc.StatsReport, health domain.SessionHealth, now time.Time) *domain.AudioMetrics {
	s, ok := inbound(report, "audio")
	if !ok && health.PacketsReceived == 0 {
		return nil
	}

	m := &domain.AudioMetrics{
		Type:                 domain.MetricAudio,
		Timestamp:            millis(now),
		TotalSamplesReceived: health.SamplesReceived,
		HeaderBytesReceived:  health.HeaderBytesReceived,
		BytesReceived:        health.BytesReceived,
		PacketsReceived:      health.PacketsReceived,
	}
	if ok {
		m.Timestamp = float64(s.Timestamp)
		m.PacketsLost = int64(s.PacketsLost)
		m.Jitter = s.Jitter
		if s.BytesReceived > m.BytesReceived {
			m.BytesReceived = s.BytesReceived
		}
		if uint64(s.PacketsReceived) > m.PacketsReceived {
			m.PacketsReceived = uint64(s.PacketsReceived)
		}
	}
	return m
}

// TimestampFilter drops snapshots whose timestamp equals, or is older than,
// the last one forwarded for the same category.
type TimestampFilter struct {
	network float64
	audio   float64
	video   float64
}

func fresh(last *float64, ts float64) bool {
	if ts <= *last {
		return false
	}
	*last = ts
	return true
}

// Apply returns the subset of r that is new.
func (f *TimestampFilter) Apply(r domain.MetricReport) domain.MetricReport {
	var out domain.MetricReport
	if r.Network != nil && fresh(&f.network, r.Network.Timestamp) {
		out.Network = r.Network
	}
	if r.Audio != nil && fresh(&f.audio, r.Audio.Timestamp) {
		out.Audio = r.Audio
	}
	if r.Video != nil && fresh(&f.video, r.Video.Timestamp) {
		out.Video = r.Video
	}
	return out
}
