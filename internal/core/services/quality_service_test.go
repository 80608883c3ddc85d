package services

import (
	"testing"

	"remotedesk/internal/core/domain"

	"github.com/stretchr/testify/assert"
)

func TestQualityService_DetermineQuality(t *testing.T) {
	qs := NewQualityService()

	tests := []struct {
		name    string
		network *domain.NetworkMetrics
		rates   domain.VideoRates
		want    domain.LinkQuality
	}{
		{"no network snapshot", nil, domain.VideoRates{}, domain.QualityUnknown},
		{"fast clean link", &domain.NetworkMetrics{CurrentRoundTripTime: 0.02}, domain.VideoRates{FramesPerSecond: 60, FramesTotal: 600}, domain.QualityHigh},
		{"no video yet", &domain.NetworkMetrics{CurrentRoundTripTime: 0.02}, domain.VideoRates{}, domain.QualityHigh},
		{"moderate latency", &domain.NetworkMetrics{CurrentRoundTripTime: 0.15}, domain.VideoRates{FramesPerSecond: 60, FramesTotal: 600}, domain.QualityMedium},
		{"lossy", &domain.NetworkMetrics{CurrentRoundTripTime: 0.02}, domain.VideoRates{FramesPerSecond: 60, FramesTotal: 600, PacketLoss: 3}, domain.QualityMedium},
		{"low framerate", &domain.NetworkMetrics{CurrentRoundTripTime: 0.02}, domain.VideoRates{FramesPerSecond: 10, FramesTotal: 600}, domain.QualityLow},
		{"slow link", &domain.NetworkMetrics{CurrentRoundTripTime: 0.4}, domain.VideoRates{FramesPerSecond: 60, FramesTotal: 600}, domain.QualityLow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, qs.DetermineQuality(tt.network, tt.rates))
		})
	}
}
