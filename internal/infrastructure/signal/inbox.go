package signal

import (
	"sync"

	"remotedesk/internal/core/domain"
)

// inbox serializes delivery of inbound envelopes and holds them until a
// handler is registered.
type inbox struct {
	mu      sync.Mutex
	handler func(domain.SignalingEnvelope)
	pending []domain.SignalingEnvelope
}

func (b *inbox) setHandler(h func(domain.SignalingEnvelope)) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.handler = h
	if h == nil {
		return
	}
	pending := b.pending
	b.pending = nil
	for _, env := range pending {
		h(env)
	}
}

func (b *inbox) deliver(env domain.SignalingEnvelope) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.handler == nil {
		b.pending = append(b.pending, env)
		return
	}
	b.handler(env)
}
