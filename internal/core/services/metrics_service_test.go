package services

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"remotedesk/internal/core/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakePublisher struct {
	mu    sync.Mutex
	kinds []domain.MetricKind
	err   error
}

func (p *fakePublisher) Publish(_ context.Context, kind domain.MetricKind, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.kinds = append(p.kinds, kind)
	return p.err
}

func TestRateState_FramesPerSecond(t *testing.T) {
	var r RateState

	_, ok := r.Advance(domain.VideoMetrics{Timestamp: 1000, FramesDecoded: 100, BytesReceived: 0})
	assert.False(t, ok)

	rates, ok := r.Advance(domain.VideoMetrics{
		Timestamp:        2000,
		FramesDecoded:    130,
		BytesReceived:    256 * 1024,
		PacketsLost:      4,
		KeyFramesDecoded: 2,
	})
	require.True(t, ok)
	assert.Equal(t, 30, rates.FramesPerSecond)
	assert.Equal(t, 2048, rates.BitrateKbps)
	assert.Equal(t, int64(4), rates.PacketLoss)
	assert.Equal(t, int64(2), rates.KeyFrames)
	assert.Equal(t, uint64(130), rates.FramesTotal)
}

func TestRateState_NonAdvancingTimestampKeepsState(t *testing.T) {
	var r RateState
	r.Advance(domain.VideoMetrics{Timestamp: 1000, FramesDecoded: 100})

	_, ok := r.Advance(domain.VideoMetrics{Timestamp: 1000, FramesDecoded: 200})
	assert.False(t, ok)
	assert.Equal(t, uint64(100), r.Frames)

	rates, ok := r.Advance(domain.VideoMetrics{Timestamp: 1500, FramesDecoded: 130})
	require.True(t, ok)
	assert.Equal(t, 60, rates.FramesPerSecond)
}

func TestRateState_CounterResetReseeds(t *testing.T) {
	var r RateState
	r.Advance(domain.VideoMetrics{Timestamp: 1000, FramesDecoded: 5000, BytesReceived: 9_000_000})

	rates, ok := r.Advance(domain.VideoMetrics{Timestamp: 2000, FramesDecoded: 30, BytesReceived: 40_000})
	assert.False(t, ok)
	assert.Equal(t, uint64(30), rates.FramesTotal)
	assert.Zero(t, rates.FramesPerSecond)
	assert.Zero(t, rates.BitrateKbps)

	rates, ok = r.Advance(domain.VideoMetrics{Timestamp: 3000, FramesDecoded: 60, BytesReceived: 40_000 + 128*1024})
	require.True(t, ok)
	assert.Equal(t, 30, rates.FramesPerSecond)
	assert.Equal(t, 1024, rates.BitrateKbps)
}

func TestMetricsService_ForwardsToAdaptiveChannel(t *testing.T) {
	sender := &recordingSender{}
	publisher := &fakePublisher{}
	m := NewMetricsService(sender, publisher, nil, zaptest.NewLogger(t).Sugar())

	var seen []domain.MetricKind
	m.OnMetric(func(kind domain.MetricKind, _ any) { seen = append(seen, kind) })

	m.Handle(domain.KindVideo, domain.MetricReport{
		Network: &domain.NetworkMetrics{Timestamp: 1, CurrentRoundTripTime: 0.01},
		Video:   &domain.VideoMetrics{Timestamp: 1000, FramesDecoded: 100},
	})
	m.Handle(domain.KindAudio, domain.MetricReport{
		Audio: &domain.AudioMetrics{Timestamp: 1000, TotalSamplesReceived: 48000},
	})
	m.Handle(domain.KindVideo, domain.MetricReport{
		Video: &domain.VideoMetrics{Timestamp: 2000, FramesDecoded: 130},
	})

	assert.Equal(t, []domain.MetricKind{domain.MetricNetwork, domain.MetricVideo, domain.MetricAudio, domain.MetricVideo}, seen)
	assert.Equal(t, seen, publisher.kinds)

	payloads := sender.payloads(domain.ChannelAdaptive)
	require.Len(t, payloads, 4)
	var first map[string]any
	require.NoError(t, json.Unmarshal([]byte(payloads[0]), &first))
	assert.Equal(t, "NETWORK", first["type"])
	var audio map[string]any
	require.NoError(t, json.Unmarshal([]byte(payloads[2]), &audio))
	assert.Equal(t, "AUDIO", audio["type"])
	assert.Equal(t, float64(48000), audio["totalSamplesReceived"])

	snap := m.Snapshot()
	assert.Equal(t, 30, snap.Video.Rates.FramesPerSecond)
	assert.Equal(t, uint64(48000), snap.Audio.SamplesReceived)
	require.NotNil(t, snap.Network)
	assert.Equal(t, domain.QualityMedium, snap.Quality)
}

func TestMetricsService_PublisherErrorDoesNotBlockChannel(t *testing.T) {
	sender := &recordingSender{}
	m := NewMetricsService(sender, &fakePublisher{err: errors.New("redis down")}, nil, zaptest.NewLogger(t).Sugar())

	m.Handle(domain.KindAudio, domain.MetricReport{Audio: &domain.AudioMetrics{Timestamp: 1}})

	assert.Len(t, sender.payloads(domain.ChannelAdaptive), 1)
}

func TestMetricsService_HostMetrics(t *testing.T) {
	m := NewMetricsService(&recordingSender{}, nil, nil, zaptest.NewLogger(t).Sugar())

	m.HandleHostMetrics([]byte("not json"))
	assert.Nil(t, m.HostMetrics())

	m.HandleHostMetrics([]byte(`{"type":"VIDEO","encodeFps":60}`))
	assert.Equal(t, float64(60), m.HostMetrics()["encodeFps"])
}
