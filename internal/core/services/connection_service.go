package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"
	"remotedesk/pkg/config"
	ctxlog "remotedesk/pkg/logger"
	"remotedesk/pkg/tracing"

	"go.uber.org/zap"
)

// ConnectionConfig holds the timings of the establishment loops.
type ConnectionConfig struct {
	Kinds               []domain.StreamKind
	HealthDeadline      time.Duration
	HealthPollInterval  time.Duration
	KeyFrameInterval    time.Duration
	MissingFrameTimeout time.Duration
	RetryDelay          time.Duration
}

func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Kinds:               []domain.StreamKind{domain.KindVideo, domain.KindAudio},
		HealthDeadline:      15 * time.Second,
		HealthPollInterval:  100 * time.Millisecond,
		KeyFrameInterval:    time.Second,
		MissingFrameTimeout: time.Second,
		RetryDelay:          time.Second,
	}
}

// ConnectionConfigFromApp maps the session section of cfg. kinds are the
// stream kinds that have a signaling endpoint.
func ConnectionConfigFromApp(cfg *config.Config, kinds []domain.StreamKind) ConnectionConfig {
	return ConnectionConfig{
		Kinds:               kinds,
		HealthDeadline:      cfg.Session.HealthDeadline,
		HealthPollInterval:  cfg.Session.HealthPollInterval,
		KeyFrameInterval:    cfg.Session.KeyFrameInterval,
		MissingFrameTimeout: cfg.Session.MissingFrameTimeout,
		RetryDelay:          cfg.Session.RetryDelay,
	}
}

// StateListener observes session state transitions.
type StateListener func(kind domain.StreamKind, from, to domain.SessionState)

// ConnectionService keeps one session per stream kind alive. Each kind has a
// supervising goroutine that creates a session, waits for it to become
// healthy within a deadline, and starts over whenever it dies.
type ConnectionService struct {
	config    ConnectionConfig
	factory   ports.SessionFactory
	mux       ports.ChannelMultiplexer
	control   *ControlService
	sinks     map[domain.StreamKind]ports.MediaSink
	recorder  ports.MetricsRecorder
	onMetrics func(kind domain.StreamKind, report domain.MetricReport)

	mu        sync.Mutex
	states    map[domain.StreamKind]domain.SessionState
	sessions  map[domain.StreamKind]ports.PeerSession
	listeners []StateListener
	watchdog  *time.Timer
	started   bool
	closed    bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	logger *zap.SugaredLogger
	ctxLog *ctxlog.ContextLogger
}

// NewConnectionService wires the lifecycle manager. sinks may miss kinds
// without media; recorder may be nil.
func NewConnectionService(
	config ConnectionConfig,
	factory ports.SessionFactory,
	mux ports.ChannelMultiplexer,
	sinks map[domain.StreamKind]ports.MediaSink,
	recorder ports.MetricsRecorder,
	logger *zap.SugaredLogger,
) *ConnectionService {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if sinks == nil {
		sinks = map[domain.StreamKind]ports.MediaSink{}
	}
	s := &ConnectionService{
		config:   config,
		factory:  factory,
		mux:      mux,
		control:  NewControlService(mux, logger),
		sinks:    sinks,
		recorder: recorder,
		states:   make(map[domain.StreamKind]domain.SessionState),
		sessions: make(map[domain.StreamKind]ports.PeerSession),
		logger:   logger,
		ctxLog:   ctxlog.NewContextLogger(logger.Desugar()),
	}
	for _, kind := range config.Kinds {
		s.states[kind] = domain.StateClosed
	}
	return s
}

// OnStateChange registers a listener. Listeners run on the supervising
// goroutine and must not call Close.
func (s *ConnectionService) OnStateChange(fn StateListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OnMetrics routes QoS reports of every session to fn. Set before Start.
func (s *ConnectionService) OnMetrics(fn func(kind domain.StreamKind, report domain.MetricReport)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMetrics = fn
}

// Start launches the establishment loops. Calling it twice, or after Close,
// does nothing.
func (s *ConnectionService) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed {
		return
	}
	s.started = true

	ctx, s.cancel = context.WithCancel(ctx)
	for _, kind := range s.config.Kinds {
		s.wg.Add(1)
		go func(kind domain.StreamKind) {
			defer s.wg.Done()
			s.EstablishLoop(ctx, kind)
		}(kind)
	}
	s.logger.Infow("connection service started", "kinds", s.config.Kinds)
}

// EstablishLoop supervises one stream kind until ctx ends or the service is
// closed.
func (s *ConnectionService) EstablishLoop(ctx context.Context, kind domain.StreamKind) {
	defer s.setState(kind, domain.StateClosed)

	for attempt := 1; ; attempt++ {
		if s.isClosed() || ctx.Err() != nil {
			return
		}
		err := s.establishOnce(ctx, kind, attempt)
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Debugw("establishment attempt ended", "kind", kind, "attempt", attempt, "error", err)
		}
	}
}

func (s *ConnectionService) establishOnce(ctx context.Context, kind domain.StreamKind, attempt int) error {
	s.setState(kind, domain.StateClosed)
	if s.isClosed() {
		return domain.ErrClosed
	}

	ctx, span := tracing.TraceEstablishment(ctx, string(kind), attempt)
	defer span.End()
	if sc := span.SpanContext(); sc.HasTraceID() {
		ctx = ctxlog.WithTraceID(ctx, sc.TraceID().String())
	}
	start := time.Now()

	session, err := s.factory.NewSession(ctx, kind, s.handlers(kind))
	if err != nil {
		s.logger.Warnw("failed to create session", "kind", kind, "attempt", attempt, "error", err)
		tracing.RecordError(ctx, err)
		s.recorder.RecordEstablishment(kind, "error", time.Since(start))
		sleepCtx(ctx, s.config.RetryDelay)
		return err
	}
	tracing.AddSpanAttributes(ctx, tracing.SessionIDKey.String(session.ID()))
	ctx = ctxlog.WithSession(ctx, string(kind), session.ID())
	log := s.ctxLog.Sugar(ctx)

	if !s.register(kind, session) {
		_ = session.Close()
		return domain.ErrClosed
	}
	defer s.unregister(kind, session)

	s.setState(kind, domain.StateConnecting)
	if err := s.awaitHealthy(ctx, kind, session); err != nil {
		_ = session.Close()
		outcome := "failed"
		if errors.Is(err, domain.ErrHealthTimeout) {
			outcome = "timeout"
			log.Warnw("session not healthy before deadline", "deadline", s.config.HealthDeadline)
		}
		tracing.AddSpanAttributes(ctx, tracing.OutcomeKey.String(outcome))
		s.recorder.RecordEstablishment(kind, outcome, time.Since(start))
		return err
	}

	s.setState(kind, domain.StateConnected)
	log.Infow("session connected", "elapsed", time.Since(start))
	tracing.AddSpanAttributes(ctx, tracing.OutcomeKey.String("connected"))
	tracing.MeasureDuration(ctx, start)
	s.recorder.RecordEstablishment(kind, "connected", time.Since(start))

	if sink, ok := s.sinks[kind]; ok {
		if err := sink.Play(); err != nil {
			log.Warnw("sink failed to play", "error", err)
		}
	}

	select {
	case <-session.Done():
		log.Infow("session ended")
	case <-ctx.Done():
	}
	_ = session.Close()
	return nil
}

func (s *ConnectionService) awaitHealthy(ctx context.Context, kind domain.StreamKind, session ports.PeerSession) error {
	deadline := time.NewTimer(s.config.HealthDeadline)
	defer deadline.Stop()
	poll := time.NewTicker(s.config.HealthPollInterval)
	defer poll.Stop()

	var keyFrames <-chan time.Time
	if kind == domain.KindVideo {
		t := time.NewTicker(s.config.KeyFrameInterval)
		defer t.Stop()
		keyFrames = t.C
		s.requestKeyFrame(session)
	}

	for {
		if session.Connected() && session.Health().MediaReceived(kind) {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-session.Done():
			return fmt.Errorf("%w before becoming healthy", domain.ErrSessionClosed)
		case <-deadline.C:
			return domain.ErrHealthTimeout
		case <-keyFrames:
			s.requestKeyFrame(session)
		case <-poll.C:
		}
	}
}

func (s *ConnectionService) handlers(kind domain.StreamKind) ports.SessionHandlers {
	h := ports.SessionHandlers{
		OnTrack: func(stream ports.MediaStream) {
			sink, ok := s.sinks[stream.Kind()]
			if !ok {
				s.logger.Debugw("no sink for track", "kind", stream.Kind(), "track_id", stream.ID())
				return
			}
			if err := sink.Assign(stream); err != nil {
				s.logger.Warnw("failed to assign track", "kind", stream.Kind(), "error", err)
			}
		},
		OnDataChannel: func(ch ports.ChannelPrimitive) {
			if err := s.mux.Bind(ch); err != nil {
				s.logger.Warnw("ignoring data channel", "label", ch.Label(), "error", err)
			}
		},
		OnChannelClose:   s.mux.Unbind,
		OnChannelMessage: s.mux.OnIncoming,
		OnMetrics: func(report domain.MetricReport) {
			s.mu.Lock()
			fn := s.onMetrics
			s.mu.Unlock()
			if fn != nil {
				fn(kind, report)
			}
		},
	}
	if kind == domain.KindVideo {
		h.OnFrame = func(bool) { s.armWatchdog() }
	}
	return h
}

// requestKeyFrame asks for a key frame through both the manual channel and
// RTCP, then re-arms the watchdog.
func (s *ConnectionService) requestKeyFrame(session ports.PeerSession) {
	if err := s.control.RequestVideoReset(); err != nil {
		s.logger.Debugw("failed to queue video reset", "error", err)
	}
	if session != nil {
		if err := session.RequestKeyFrame(); err != nil {
			s.logger.Debugw("failed to send picture loss indication", "session_id", session.ID(), "error", err)
		}
	}
	s.armWatchdog()
}

// ResetVideo requests a fresh key frame from the host without tearing down
// the session.
func (s *ConnectionService) ResetVideo() {
	if s.isClosed() {
		return
	}
	s.requestKeyFrame(s.Session(domain.KindVideo))
}

func (s *ConnectionService) armWatchdog() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.watchdog == nil {
		s.watchdog = time.AfterFunc(s.config.MissingFrameTimeout, s.onMissingFrames)
		return
	}
	s.watchdog.Reset(s.config.MissingFrameTimeout)
}

func (s *ConnectionService) onMissingFrames() {
	if s.isClosed() {
		return
	}
	s.logger.Debugw("no video frame within timeout, requesting key frame", "timeout", s.config.MissingFrameTimeout)
	s.recorder.RecordVideoReset("missing_frames")
	s.ResetVideo()
}

// HardReset closes the audio and video sessions; their loops reconnect.
func (s *ConnectionService) HardReset() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	var victims []ports.PeerSession
	for _, kind := range []domain.StreamKind{domain.KindVideo, domain.KindAudio} {
		if session, ok := s.sessions[kind]; ok {
			victims = append(victims, session)
		}
	}
	s.mu.Unlock()

	s.logger.Infow("hard reset", "sessions", len(victims))
	for _, session := range victims {
		_ = session.Close()
		s.setState(session.Kind(), domain.StateClosed)
	}
}

// Close stops every loop and session. It is idempotent and must not be
// called from a state listener.
func (s *ConnectionService) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	if s.watchdog != nil {
		s.watchdog.Stop()
	}
	cancel := s.cancel
	sessions := make([]ports.PeerSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	for _, session := range sessions {
		_ = session.Close()
	}
	s.wg.Wait()

	for _, sink := range s.sinks {
		sink.Detach()
	}
	s.mux.Close()
	s.logger.Infow("connection service closed")
	return nil
}

// State returns the current state of kind.
func (s *ConnectionService) State(kind domain.StreamKind) domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[kind]
}

// Session returns the live session of kind, or nil.
func (s *ConnectionService) Session(kind domain.StreamKind) ports.PeerSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[kind]
}

// Sessions describes every live session.
func (s *ConnectionService) Sessions() []domain.SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]domain.SessionInfo, 0, len(s.sessions))
	for _, kind := range s.config.Kinds {
		session, ok := s.sessions[kind]
		if !ok {
			continue
		}
		infos = append(infos, domain.SessionInfo{
			ID:        session.ID(),
			Kind:      kind,
			State:     s.states[kind],
			CreatedAt: session.CreatedAt(),
			Health:    session.Health(),
		})
	}
	return infos
}

func (s *ConnectionService) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *ConnectionService) register(kind domain.StreamKind, session ports.PeerSession) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.sessions[kind] = session
	return true
}

func (s *ConnectionService) unregister(kind domain.StreamKind, session ports.PeerSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[kind] == session {
		delete(s.sessions, kind)
	}
}

func (s *ConnectionService) setState(kind domain.StreamKind, to domain.SessionState) {
	s.mu.Lock()
	from := s.states[kind]
	if from == to {
		s.mu.Unlock()
		return
	}
	s.states[kind] = to
	listeners := append([]StateListener(nil), s.listeners...)
	s.mu.Unlock()

	s.logger.Infow("session state changed", "kind", kind, "from", from.String(), "to", to.String())
	s.recorder.RecordStateChange(kind, from, to)
	for _, fn := range listeners {
		fn(kind, from, to)
	}
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordStateChange(domain.StreamKind, domain.SessionState, domain.SessionState) {}
func (nopRecorder) RecordEstablishment(domain.StreamKind, string, time.Duration)                 {}
func (nopRecorder) RecordVideoRates(domain.VideoRates)                                           {}
func (nopRecorder) RecordNetwork(domain.NetworkMetrics)                                          {}
func (nopRecorder) RecordAudioSamples(uint64)                                                    {}
func (nopRecorder) RecordChannelSend(domain.ChannelLabel, bool)                                  {}
func (nopRecorder) RecordVideoReset(string)                                                      {}
