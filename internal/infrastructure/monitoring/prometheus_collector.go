package monitoring

import (
	"time"

	"remotedesk/internal/core/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements ports.MetricsRecorder.
type PrometheusCollector struct {
	// Sessions
	sessionState         *prometheus.GaugeVec
	stateTransitions     *prometheus.CounterVec
	establishments       *prometheus.CounterVec
	establishmentSeconds *prometheus.HistogramVec

	// Media
	videoFPS         prometheus.Gauge
	videoBitrate     prometheus.Gauge
	videoPacketsLost prometheus.Counter
	videoKeyFrames   prometheus.Counter
	videoResets      *prometheus.CounterVec
	audioSamples     prometheus.Gauge

	// Network
	roundTrip     prometheus.Histogram
	bytesReceived prometheus.Gauge

	// Channels
	channelSends *prometheus.CounterVec
}

// NewPrometheusCollector registers the collector's metrics on reg. Pass
// prometheus.DefaultRegisterer in production and a fresh registry in tests.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	factory := promauto.With(reg)
	return &PrometheusCollector{
		sessionState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "remotedesk_session_state",
			Help: "Current session state per kind (0 closed, 1 connecting, 2 connected)",
		}, []string{"kind"}),

		stateTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remotedesk_session_transitions_total",
			Help: "Session state transitions",
		}, []string{"kind", "from", "to"}),

		establishments: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remotedesk_session_establishments_total",
			Help: "Establishment attempts by outcome",
		}, []string{"kind", "outcome"}),

		establishmentSeconds: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "remotedesk_session_establishment_duration_seconds",
			Help:    "Time from attempt start to its outcome",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		}, []string{"kind", "outcome"}),

		videoFPS: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remotedesk_video_frames_per_second",
			Help: "Decoded video frames per second",
		}),

		videoBitrate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remotedesk_video_bitrate_kbps",
			Help: "Received video bitrate in kbit/s",
		}),

		videoPacketsLost: factory.NewCounter(prometheus.CounterOpts{
			Name: "remotedesk_video_packets_lost_total",
			Help: "Video packets reported lost",
		}),

		videoKeyFrames: factory.NewCounter(prometheus.CounterOpts{
			Name: "remotedesk_video_key_frames_total",
			Help: "Video key frames decoded",
		}),

		videoResets: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remotedesk_video_resets_total",
			Help: "Key frame requests by reason",
		}, []string{"reason"}),

		audioSamples: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remotedesk_audio_samples_received",
			Help: "Audio samples received by the current audio session",
		}),

		roundTrip: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "remotedesk_network_round_trip_seconds",
			Help:    "Round trip time of the selected candidate pair",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),

		bytesReceived: factory.NewGauge(prometheus.GaugeOpts{
			Name: "remotedesk_network_bytes_received",
			Help: "Bytes received on the selected candidate pair",
		}),

		channelSends: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "remotedesk_channel_sends_total",
			Help: "Logical channel sends, by whether they were queued",
		}, []string{"label", "queued"}),
	}
}

func (p *PrometheusCollector) RecordStateChange(kind domain.StreamKind, from, to domain.SessionState) {
	p.sessionState.WithLabelValues(string(kind)).Set(float64(to))
	p.stateTransitions.WithLabelValues(string(kind), from.String(), to.String()).Inc()
}

func (p *PrometheusCollector) RecordEstablishment(kind domain.StreamKind, outcome string, duration time.Duration) {
	p.establishments.WithLabelValues(string(kind), outcome).Inc()
	p.establishmentSeconds.WithLabelValues(string(kind), outcome).Observe(duration.Seconds())
}

func (p *PrometheusCollector) RecordVideoRates(rates domain.VideoRates) {
	p.videoFPS.Set(float64(rates.FramesPerSecond))
	p.videoBitrate.Set(float64(rates.BitrateKbps))
	// Counters cannot go down; a reset of the remote counters shows up as a negative delta.
	if rates.PacketLoss > 0 {
		p.videoPacketsLost.Add(float64(rates.PacketLoss))
	}
	if rates.KeyFrames > 0 {
		p.videoKeyFrames.Add(float64(rates.KeyFrames))
	}
}

func (p *PrometheusCollector) RecordNetwork(metrics domain.NetworkMetrics) {
	p.roundTrip.Observe(metrics.CurrentRoundTripTime)
	p.bytesReceived.Set(float64(metrics.BytesReceived))
}

func (p *PrometheusCollector) RecordAudioSamples(samples uint64) {
	p.audioSamples.Set(float64(samples))
}

func (p *PrometheusCollector) RecordChannelSend(label domain.ChannelLabel, queued bool) {
	q := "false"
	if queued {
		q = "true"
	}
	p.channelSends.WithLabelValues(string(label), q).Inc()
}

func (p *PrometheusCollector) RecordVideoReset(reason string) {
	p.videoResets.WithLabelValues(reason).Inc()
}
