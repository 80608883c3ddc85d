package services

import (
	"time"

	"remotedesk/internal/core/domain"
)

// QualityThreshold is the worst link a grade tolerates.
type QualityThreshold struct {
	MaxRoundTrip  time.Duration
	MaxPacketLoss int64 // packets lost between two video snapshots
	MinFramerate  int
}

// QualityService grades the link from network and video rate snapshots.
type QualityService struct {
	thresholds map[domain.LinkQuality]QualityThreshold
}

func NewQualityService() *QualityService {
	return &QualityService{
		thresholds: map[domain.LinkQuality]QualityThreshold{
			domain.QualityHigh: {
				MaxRoundTrip:  100 * time.Millisecond,
				MaxPacketLoss: 1,
				MinFramerate:  50,
			},
			domain.QualityMedium: {
				MaxRoundTrip:  200 * time.Millisecond,
				MaxPacketLoss: 5,
				MinFramerate:  24,
			},
		},
	}
}

// GetThresholds returns the threshold of every grade above low.
func (qs *QualityService) GetThresholds() map[domain.LinkQuality]QualityThreshold {
	return qs.thresholds
}

// DetermineQuality grades the link. Without a network snapshot the grade is
// unknown.
func (qs *QualityService) DetermineQuality(network *domain.NetworkMetrics, rates domain.VideoRates) domain.LinkQuality {
	if network == nil {
		return domain.QualityUnknown
	}
	rtt := time.Duration(network.CurrentRoundTripTime * float64(time.Second))

	if qs.meets(rtt, rates, qs.thresholds[domain.QualityHigh]) {
		return domain.QualityHigh
	} else if qs.meets(rtt, rates, qs.thresholds[domain.QualityMedium]) {
		return domain.QualityMedium
	}
	return domain.QualityLow
}

func (qs *QualityService) meets(rtt time.Duration, rates domain.VideoRates, t QualityThreshold) bool {
	// Before the first video delta there is no framerate to judge.
	framerateOK := rates.FramesTotal == 0 || rates.FramesPerSecond >= t.MinFramerate
	return rtt <= t.MaxRoundTrip && rates.PacketLoss <= t.MaxPacketLoss && framerateOK
}
