package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"

	"github.com/pion/rtp"
)

type sentPayload struct {
	label   domain.ChannelLabel
	payload string
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sentPayload
	err  error
}

func (s *recordingSender) Send(label domain.ChannelLabel, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, sentPayload{label: label, payload: payload})
	return nil
}

func (s *recordingSender) payloads(label domain.ChannelLabel) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, p := range s.sent {
		if p.label == label {
			out = append(out, p.payload)
		}
	}
	return out
}

// fakeMux is a recordingSender that also tracks bindings.
type fakeMux struct {
	recordingSender
	bound    []string
	handlers map[domain.ChannelLabel]func([]byte)
	closed   atomic.Bool
}

func newFakeMux() *fakeMux {
	return &fakeMux{handlers: map[domain.ChannelLabel]func([]byte){}}
}

func (m *fakeMux) Bind(p ports.ChannelPrimitive) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bound = append(m.bound, p.Label())
	return nil
}

func (m *fakeMux) Unbind(ports.ChannelPrimitive) {}

func (m *fakeMux) Handle(label domain.ChannelLabel, fn func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[label] = fn
	return nil
}

func (m *fakeMux) OnIncoming(label string, payload []byte) {
	m.mu.Lock()
	fn := m.handlers[domain.ChannelLabel(label)]
	m.mu.Unlock()
	if fn != nil {
		fn(payload)
	}
}

func (m *fakeMux) Close() { m.closed.Store(true) }

type fakeSession struct {
	id        string
	kind      domain.StreamKind
	handlers  ports.SessionHandlers
	connected atomic.Bool
	frames    atomic.Uint64
	samples   atomic.Uint64
	keyFrames atomic.Int32
	closes    atomic.Int32

	once sync.Once
	done chan struct{}
}

func (s *fakeSession) ID() string              { return s.id }
func (s *fakeSession) Kind() domain.StreamKind { return s.kind }
func (s *fakeSession) CreatedAt() time.Time    { return time.Time{} }
func (s *fakeSession) Connected() bool         { return s.connected.Load() }
func (s *fakeSession) Done() <-chan struct{}   { return s.done }

func (s *fakeSession) Health() domain.SessionHealth {
	return domain.SessionHealth{FramesDecoded: s.frames.Load(), SamplesReceived: s.samples.Load()}
}

func (s *fakeSession) RequestKeyFrame() error {
	s.keyFrames.Add(1)
	return nil
}

func (s *fakeSession) Close() error {
	s.closes.Add(1)
	s.once.Do(func() { close(s.done) })
	return nil
}

// fakeFactory hands out fakeSessions. healthy controls whether new sessions
// report media straight away.
type fakeFactory struct {
	mu       sync.Mutex
	sessions map[domain.StreamKind][]*fakeSession
	healthy  bool
	err      error
	created  chan *fakeSession
}

func newFakeFactory(healthy bool) *fakeFactory {
	return &fakeFactory{
		sessions: map[domain.StreamKind][]*fakeSession{},
		healthy:  healthy,
		created:  make(chan *fakeSession, 64),
	}
}

func (f *fakeFactory) NewSession(_ context.Context, kind domain.StreamKind, handlers ports.SessionHandlers) (ports.PeerSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	s := &fakeSession{
		id:       string(kind) + "-session",
		kind:     kind,
		handlers: handlers,
		done:     make(chan struct{}),
	}
	if f.healthy {
		s.connected.Store(true)
		s.frames.Store(1)
		s.samples.Store(960)
	}
	f.sessions[kind] = append(f.sessions[kind], s)
	select {
	case f.created <- s:
	default:
	}
	return s, nil
}

func (f *fakeFactory) session(kind domain.StreamKind, i int) *fakeSession {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sessions[kind][i]
}

func (f *fakeFactory) count(kind domain.StreamKind) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sessions[kind])
}

type fakeSink struct {
	mu       sync.Mutex
	assigned []ports.MediaStream
	plays    int
	detached bool
}

func (s *fakeSink) Assign(stream ports.MediaStream) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assigned = append(s.assigned, stream)
	return nil
}

func (s *fakeSink) Play() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plays++
	return nil
}

func (s *fakeSink) Detach() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.detached = true
}

func (s *fakeSink) playCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plays
}

type fakeStream struct{ kind domain.StreamKind }

func (s fakeStream) ID() string                    { return "track" }
func (s fakeStream) Kind() domain.StreamKind       { return s.kind }
func (s fakeStream) MimeType() string              { return "video/H264" }
func (s fakeStream) ReadRTP() (*rtp.Packet, error) { return nil, context.Canceled }
