package services

import (
	"context"
	"encoding/json"
	"math"
	"sync"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"

	"go.uber.org/zap"
)

// RateState is the previous video snapshot rates are derived from.
type RateState struct {
	Timestamp   float64 // ms
	Frames      uint64
	Bytes       uint64
	PacketsLost int64
	KeyFrames   uint64
	seeded      bool
}

// Advance derives rates from v. The first snapshot only seeds the state.
// Snapshots that do not move time forward leave the state untouched.
// Counters that move backwards, as after a session is replaced, reseed it.
func (r *RateState) Advance(v domain.VideoMetrics) (domain.VideoRates, bool) {
	if !r.seeded || v.FramesDecoded < r.Frames || v.BytesReceived < r.Bytes {
		r.set(v)
		return domain.VideoRates{FramesTotal: v.FramesDecoded, BytesTotal: v.BytesReceived}, false
	}

	seconds := (v.Timestamp - r.Timestamp) / 1000
	if seconds <= 0 {
		return domain.VideoRates{}, false
	}

	rates := domain.VideoRates{
		FramesPerSecond: int(math.Round(float64(int64(v.FramesDecoded)-int64(r.Frames)) / seconds)),
		BitrateKbps:     int(math.Round(float64(int64(v.BytesReceived)-int64(r.Bytes)) / seconds * 8 / 1024)),
		PacketLoss:      v.PacketsLost - r.PacketsLost,
		KeyFrames:       int64(v.KeyFramesDecoded) - int64(r.KeyFrames),
		FramesTotal:     v.FramesDecoded,
		BytesTotal:      v.BytesReceived,
	}
	r.set(v)
	return rates, true
}

func (r *RateState) set(v domain.VideoMetrics) {
	r.Timestamp = v.Timestamp
	r.Frames = v.FramesDecoded
	r.Bytes = v.BytesReceived
	r.PacketsLost = v.PacketsLost
	r.KeyFrames = v.KeyFramesDecoded
	r.seeded = true
}

// MetricListener receives every forwarded snapshot. payload is one of
// *domain.NetworkMetrics, *domain.AudioMetrics, *domain.VideoMetrics.
type MetricListener func(kind domain.MetricKind, payload any)

// MetricsService consumes QoS snapshots: it keeps consumer-side rates,
// reports them to the adaptive channel and fans them out to listeners and
// an optional publisher.
type MetricsService struct {
	sender    ports.ChannelSender
	publisher ports.MetricsPublisher
	recorder  ports.MetricsRecorder
	quality   *QualityService

	mu           sync.RWMutex
	video        RateState
	rates        domain.VideoRates
	audioSamples uint64
	network      *domain.NetworkMetrics
	grade        domain.LinkQuality
	hostMetrics  map[string]any
	listeners    []MetricListener

	publishTimeout time.Duration
	logger         *zap.SugaredLogger
}

// NewMetricsService creates the consumer. publisher and recorder may be nil.
func NewMetricsService(sender ports.ChannelSender, publisher ports.MetricsPublisher, recorder ports.MetricsRecorder, logger *zap.SugaredLogger) *MetricsService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &MetricsService{
		sender:         sender,
		publisher:      publisher,
		recorder:       recorder,
		quality:        NewQualityService(),
		grade:          domain.QualityUnknown,
		publishTimeout: time.Second,
		logger:         logger,
	}
}

// OnMetric registers a listener for every metric report.
func (m *MetricsService) OnMetric(fn MetricListener) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listeners = append(m.listeners, fn)
}

// Handle consumes one poll result of a session.
func (m *MetricsService) Handle(kind domain.StreamKind, report domain.MetricReport) {
	if report.Network != nil {
		m.handleNetwork(kind, report.Network)
	}
	if report.Video != nil {
		m.handleVideo(report.Video)
	}
	if report.Audio != nil {
		m.handleAudio(report.Audio)
	}
}

func (m *MetricsService) handleNetwork(kind domain.StreamKind, n *domain.NetworkMetrics) {
	n.Type = domain.MetricNetwork

	// Both media sessions report their own pair; video's wins when present.
	m.mu.Lock()
	if kind == domain.KindVideo || m.network == nil {
		m.network = n
	}
	m.regradeLocked()
	m.mu.Unlock()

	m.recorder.RecordNetwork(*n)
	m.forward(domain.MetricNetwork, n)
}

func (m *MetricsService) handleVideo(v *domain.VideoMetrics) {
	v.Type = domain.MetricVideo

	m.mu.Lock()
	rates, ok := m.video.Advance(*v)
	if ok {
		m.rates = rates
		m.regradeLocked()
	}
	m.mu.Unlock()

	if ok {
		m.recorder.RecordVideoRates(rates)
	}
	m.forward(domain.MetricVideo, v)
}

func (m *MetricsService) handleAudio(a *domain.AudioMetrics) {
	a.Type = domain.MetricAudio

	m.mu.Lock()
	m.audioSamples = a.TotalSamplesReceived
	m.mu.Unlock()

	m.recorder.RecordAudioSamples(a.TotalSamplesReceived)
	m.forward(domain.MetricAudio, a)
}

func (m *MetricsService) regradeLocked() {
	grade := m.quality.DetermineQuality(m.network, m.rates)
	if grade != m.grade {
		m.logger.Infow("link quality changed", "from", m.grade, "to", grade)
		m.grade = grade
	}
}

func (m *MetricsService) forward(kind domain.MetricKind, payload any) {
	m.mu.RLock()
	listeners := append([]MetricListener(nil), m.listeners...)
	m.mu.RUnlock()
	for _, fn := range listeners {
		fn(kind, payload)
	}

	data, err := json.Marshal(payload)
	if err != nil {
		m.logger.Warnw("failed to encode metric", "type", kind, "error", err)
		return
	}
	if err := m.sender.Send(domain.ChannelAdaptive, string(data)); err != nil {
		m.logger.Debugw("failed to queue metric", "type", kind, "error", err)
	}

	if m.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), m.publishTimeout)
		defer cancel()
		if err := m.publisher.Publish(ctx, kind, payload); err != nil {
			m.logger.Debugw("failed to publish metric", "type", kind, "error", err)
		}
	}
}

// HandleHostMetrics decodes a metrics object sent by the host on the
// adaptive channel. Undecodable payloads are dropped.
func (m *MetricsService) HandleHostMetrics(payload []byte) {
	var v map[string]any
	if err := json.Unmarshal(payload, &v); err != nil {
		m.logger.Debugw("ignoring malformed host metrics", "error", err)
		return
	}
	m.mu.Lock()
	m.hostMetrics = v
	m.mu.Unlock()
}

// HostMetrics returns the last metrics object received from the host.
func (m *MetricsService) HostMetrics() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hostMetrics
}

// VideoRates returns the latest derived video rates.
func (m *MetricsService) VideoRates() domain.VideoRates {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.rates
}

// Snapshot fills the metric part of a ClientMetrics view.
func (m *MetricsService) Snapshot() domain.ClientMetrics {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out domain.ClientMetrics
	out.Video.Rates = m.rates
	out.Audio.SamplesReceived = m.audioSamples
	if m.network != nil {
		n := *m.network
		out.Network = &n
	}
	out.Quality = m.grade
	return out
}
