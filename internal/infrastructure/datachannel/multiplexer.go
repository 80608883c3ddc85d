package datachannel

import (
	"fmt"
	"sync"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"

	"go.uber.org/zap"
)

// logicalChannel is one named message stream. Sends queue up while no data
// channel is bound and drain in order once one is.
type logicalChannel struct {
	label domain.ChannelLabel

	mu        sync.Mutex
	primitive ports.ChannelPrimitive
	queue     []string
	handler   func(payload []byte)
}

// Multiplexer routes logical channel traffic onto whatever data channels the
// current sessions expose.
type Multiplexer struct {
	channels map[domain.ChannelLabel]*logicalChannel
	maxQueue int
	recorder ports.MetricsRecorder

	mu     sync.RWMutex
	closed bool

	logger *zap.SugaredLogger
}

// NewMultiplexer creates the fixed set of logical channels. maxQueue bounds
// each send queue; 0 means unbounded. recorder may be nil.
func NewMultiplexer(maxQueue int, recorder ports.MetricsRecorder, logger *zap.SugaredLogger) *Multiplexer {
	m := &Multiplexer{
		channels: make(map[domain.ChannelLabel]*logicalChannel, len(domain.ChannelLabels)),
		maxQueue: maxQueue,
		recorder: recorder,
		logger:   logger,
	}
	for _, label := range domain.ChannelLabels {
		m.channels[label] = &logicalChannel{label: label}
	}
	return m
}

func (m *Multiplexer) channel(label domain.ChannelLabel) (*logicalChannel, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, domain.ErrClosed
	}
	ch, ok := m.channels[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownChannel, label)
	}
	return ch, nil
}

// Send enqueues payload on label and flushes if the channel is bound. A nil
// error means the payload is either delivered or queued.
func (m *Multiplexer) Send(label domain.ChannelLabel, payload string) error {
	ch, err := m.channel(label)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	if m.maxQueue > 0 && len(ch.queue) >= m.maxQueue {
		m.logger.Warnw("logical channel queue full, dropping oldest message", "label", label, "max_queue", m.maxQueue)
		ch.queue = ch.queue[1:]
	}
	ch.queue = append(ch.queue, payload)

	delivered := m.flushLocked(ch)
	if m.recorder != nil {
		m.recorder.RecordChannelSend(label, !delivered)
	}
	return nil
}

// Bind attaches a data channel to the logical channel with the same label and
// drains anything queued into it.
func (m *Multiplexer) Bind(primitive ports.ChannelPrimitive) error {
	label, err := domain.ParseChannelLabel(primitive.Label())
	if err != nil {
		return err
	}
	ch, err := m.channel(label)
	if err != nil {
		return err
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()

	ch.primitive = primitive
	m.logger.Debugw("logical channel bound", "label", label, "queued", len(ch.queue))
	m.flushLocked(ch)
	return nil
}

// Unbind detaches primitive if it is still the one bound to its label.
func (m *Multiplexer) Unbind(primitive ports.ChannelPrimitive) {
	label, err := domain.ParseChannelLabel(primitive.Label())
	if err != nil {
		return
	}
	ch, err := m.channel(label)
	if err != nil {
		return
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if ch.primitive == primitive {
		ch.primitive = nil
		m.logger.Debugw("logical channel unbound", "label", label)
	}
}

// Handle registers the consumer of inbound messages on label.
func (m *Multiplexer) Handle(label domain.ChannelLabel, fn func(payload []byte)) error {
	ch, err := m.channel(label)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	ch.handler = fn
	ch.mu.Unlock()
	return nil
}

// OnIncoming routes a message received on a data channel. Unknown labels and
// channels without a handler drop the message.
func (m *Multiplexer) OnIncoming(label string, payload []byte) {
	parsed, err := domain.ParseChannelLabel(label)
	if err != nil {
		m.logger.Warnw("dropping message on unknown channel", "label", label)
		return
	}
	ch, err := m.channel(parsed)
	if err != nil {
		return
	}

	ch.mu.Lock()
	handler := ch.handler
	ch.mu.Unlock()

	if handler == nil {
		m.logger.Debugw("no handler for inbound message", "label", label)
		return
	}
	handler(payload)
}

// Bound reports whether label currently has a data channel.
func (m *Multiplexer) Bound(label domain.ChannelLabel) bool {
	ch, err := m.channel(label)
	if err != nil {
		return false
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return ch.primitive != nil
}

// Pending returns the number of queued messages on label.
func (m *Multiplexer) Pending(label domain.ChannelLabel) int {
	ch, err := m.channel(label)
	if err != nil {
		return 0
	}
	ch.mu.Lock()
	defer ch.mu.Unlock()
	return len(ch.queue)
}

// Close unbinds every channel and discards queued messages.
func (m *Multiplexer) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	for _, ch := range m.channels {
		ch.mu.Lock()
		ch.primitive = nil
		ch.queue = nil
		ch.handler = nil
		ch.mu.Unlock()
	}
}

// flushLocked writes the queue head-first. On a write failure the channel is
// unbound and the failed payload stays at the head. Reports whether the queue
// is empty afterwards.
func (m *Multiplexer) flushLocked(ch *logicalChannel) bool {
	for len(ch.queue) > 0 && ch.primitive != nil {
		if err := ch.primitive.SendText(ch.queue[0]); err != nil {
			m.logger.Warnw("data channel write failed, unbinding", "label", ch.label, "error", err)
			ch.primitive = nil
			return false
		}
		ch.queue[0] = ""
		ch.queue = ch.queue[1:]
	}
	return len(ch.queue) == 0
}
