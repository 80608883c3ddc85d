package domain

// MetricKind tags the payloads published on the adaptive channel.
type MetricKind string

const (
	MetricVideo   MetricKind = "VIDEO"
	MetricAudio   MetricKind = "AUDIO"
	MetricNetwork MetricKind = "NETWORK"
)

// AddressPair holds the resolved transport addresses of the selected candidate pair.
type AddressPair struct {
	Local  string `json:"local"`
	Remote string `json:"remote"`
}

// NetworkMetrics is a snapshot of the selected ICE candidate pair.
// Timestamp is the stats report timestamp in milliseconds.
type NetworkMetrics struct {
	Type                     MetricKind  `json:"type"`
	Timestamp                float64     `json:"timestamp"`
	LocalIP                  string      `json:"localIP"`
	LocalPort                int         `json:"localPort"`
	RemoteIP                 string      `json:"remoteIP"`
	RemotePort               int         `json:"remotePort"`
	PacketsReceived          uint32      `json:"packetsReceived"`
	PacketsSent              uint32      `json:"packetsSent"`
	BytesReceived            uint64      `json:"bytesReceived"`
	BytesSent                uint64      `json:"bytesSent"`
	AvailableIncomingBitrate float64     `json:"availableIncomingBitrate"`
	AvailableOutgoingBitrate float64     `json:"availableOutgoingBitrate"`
	CurrentRoundTripTime     float64     `json:"currentRoundTripTime"`
	TotalRoundTripTime       float64     `json:"totalRoundTripTime"`
	Address                  AddressPair `json:"address"`
}

// AudioMetrics is a snapshot of the inbound audio stream.
type AudioMetrics struct {
	Type                 MetricKind `json:"type"`
	Timestamp            float64    `json:"timestamp"`
	TotalSamplesReceived uint64     `json:"totalSamplesReceived"`
	HeaderBytesReceived  uint64     `json:"headerBytesReceived"`
	BytesReceived        uint64     `json:"bytesReceived"`
	PacketsReceived      uint64     `json:"packetsReceived"`
	PacketsLost          int64      `json:"packetsLost"`
	Jitter               float64    `json:"jitter"`
}

// VideoMetrics is a snapshot of the inbound video stream.
type VideoMetrics struct {
	Type                MetricKind `json:"type"`
	Timestamp           float64    `json:"timestamp"`
	CodecID             string     `json:"codecId"`
	FramesDecoded       uint64     `json:"framesDecoded"`
	KeyFramesDecoded    uint64     `json:"keyFramesDecoded"`
	HeaderBytesReceived uint64     `json:"headerBytesReceived"`
	BytesReceived       uint64     `json:"bytesReceived"`
	PacketsReceived     uint64     `json:"packetsReceived"`
	PacketsLost         int64      `json:"packetsLost"`
	Jitter              float64    `json:"jitter"`
}

// MetricReport is the result of one QoS poll. Absent categories are nil.
type MetricReport struct {
	Network *NetworkMetrics
	Audio   *AudioMetrics
	Video   *VideoMetrics
}

// Empty reports whether the poll produced nothing to forward.
func (r MetricReport) Empty() bool {
	return r.Network == nil && r.Audio == nil && r.Video == nil
}

// VideoRates are the consumer-side derived video rates.
type VideoRates struct {
	FramesPerSecond int    `json:"fps"`
	BitrateKbps     int    `json:"kbps"`
	PacketLoss      int64  `json:"packetLoss"`
	KeyFrames       int64  `json:"keyFrames"`
	FramesTotal     uint64 `json:"framesTotal"`
	BytesTotal      uint64 `json:"bytesTotal"`
}

// ClientMetrics is the externally visible view of both media sessions.
type ClientMetrics struct {
	Video struct {
		Status SessionState `json:"status"`
		Rates  VideoRates   `json:"rates"`
	} `json:"video"`
	Audio struct {
		Status          SessionState `json:"status"`
		SamplesReceived uint64       `json:"samplesReceived"`
	} `json:"audio"`
	Network *NetworkMetrics `json:"network,omitempty"`
	Quality LinkQuality     `json:"quality"`
}

// LinkQuality grades the current link from round-trip time and loss.
type LinkQuality string

const (
	QualityUnknown LinkQuality = "unknown"
	QualityHigh    LinkQuality = "high"
	QualityMedium  LinkQuality = "medium"
	QualityLow     LinkQuality = "low"
)
