package services

import (
	"math"
	"sync"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/pkg/config"
	"remotedesk/pkg/hid"

	"go.uber.org/zap"
)

// EventSender forwards encoded HID events.
type EventSender interface {
	SendRaw(events ...hid.Event) error
}

// TouchConfig tunes trackpad emulation.
type TouchConfig struct {
	Mode                   domain.TouchMode
	Speed                  float64
	TapMin                 time.Duration
	TapMax                 time.Duration
	BottomThresholdPercent float64
	DispatchInterval       time.Duration
	Screen                 domain.Screen
}

// DefaultTouchConfig returns trackpad tuning for a 1080p host with touch disabled.
func DefaultTouchConfig() TouchConfig {
	return TouchConfig{
		Mode:                   domain.TouchModeNone,
		Speed:                  3.5,
		TapMin:                 30 * time.Millisecond,
		TapMax:                 250 * time.Millisecond,
		BottomThresholdPercent: 100,
		DispatchInterval:       10 * time.Millisecond,
		Screen:                 domain.Screen{Width: 1920, Height: 1080},
	}
}

// TouchConfigFromApp maps the touch section of the application config.
func TouchConfigFromApp(cfg *config.Config) TouchConfig {
	return TouchConfig{
		Mode:                   domain.TouchMode(cfg.Touch.Mode),
		Speed:                  cfg.Touch.Speed,
		TapMin:                 cfg.Touch.TapMin,
		TapMax:                 cfg.Touch.TapMax,
		BottomThresholdPercent: cfg.Touch.BottomThresholdPercent,
		DispatchInterval:       cfg.Touch.DispatchInterval,
		Screen:                 domain.Screen{Width: cfg.Touch.ScreenWidth, Height: cfg.Touch.ScreenHeight},
	}
}

// TouchService turns touch contacts into relative mouse motion and taps
// into clicks. Taps are queued and emitted by a dispatch goroutine.
type TouchService struct {
	config TouchConfig
	sender EventSender
	now    func() time.Time

	mu         sync.Mutex
	mode       domain.TouchMode
	ongoing    map[int]*domain.TouchPoint
	taps       []int
	lastActive time.Time
	closed     bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	logger *zap.SugaredLogger
}

// NewTouchService starts the tap dispatch goroutine. Call Close to stop it.
func NewTouchService(config TouchConfig, sender EventSender, logger *zap.SugaredLogger) *TouchService {
	if config.Mode == "" {
		config.Mode = domain.TouchModeNone
	}
	s := &TouchService{
		config:     config,
		sender:     sender,
		now:        time.Now,
		mode:       config.Mode,
		ongoing:    make(map[int]*domain.TouchPoint),
		lastActive: time.Now(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		logger:     logger,
	}
	go s.dispatchLoop()
	return s
}

// SetMode switches between trackpad emulation and passive tracking.
func (s *TouchService) SetMode(mode domain.TouchMode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = mode
}

func (s *TouchService) Mode() domain.TouchMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// LastActive returns how long ago the last contact started.
func (s *TouchService) LastActive() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.now().Sub(s.lastActive)
}

// HandleStart begins tracking the changed contacts.
func (s *TouchService) HandleStart(changed []domain.Touch, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	s.lastActive = now
	for _, t := range changed {
		s.ongoing[t.Identifier] = domain.NewTouchPoint(t, now)
	}
}

// HandleMove receives every contact currently on the surface. With exactly
// one tracked contact in trackpad mode the motion is sent as a relative
// mouse move.
func (s *TouchService) HandleMove(touches []domain.Touch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for _, t := range touches {
		prev, ok := s.ongoing[t.Identifier]
		if !ok {
			continue
		}
		if len(s.ongoing) == 1 && s.mode == domain.TouchModeTrackpad {
			move := hid.MouseMoveRel{
				DX: s.config.Speed * roundHalfUp(t.X-prev.LastX),
				DY: s.config.Speed * roundHalfUp(t.Y-prev.LastY),
			}
			if err := s.sender.SendRaw(move); err != nil {
				s.logger.Debugw("failed to send touch move", "error", err)
			}
		}
		prev.LastX, prev.LastY = t.X, t.Y
	}
}

// HandleEnd finishes the changed contacts. A single short contact in
// trackpad mode queues a click.
func (s *TouchService) HandleEnd(changed []domain.Touch, now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	for _, t := range changed {
		point, ok := s.ongoing[t.Identifier]
		if !ok {
			continue
		}
		delete(s.ongoing, t.Identifier)

		held := now.Sub(point.StartTime)
		if s.mode != domain.TouchModeTrackpad || len(changed) != 1 {
			continue
		}
		if held <= s.config.TapMin || held >= s.config.TapMax {
			continue
		}
		button := hid.ButtonLeft
		if s.inBottomRight(t) {
			button = hid.ButtonRight
		}
		s.taps = append(s.taps, button)
	}
}

func (s *TouchService) inBottomRight(t domain.Touch) bool {
	bottom := s.config.Screen.Height * (1 - s.config.BottomThresholdPercent/100)
	return t.Y >= bottom && t.X >= s.config.Screen.Width/2
}

func (s *TouchService) dispatchLoop() {
	defer close(s.done)

	ticker := time.NewTicker(s.config.DispatchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
			s.dispatchOne()
		}
	}
}

func (s *TouchService) dispatchOne() {
	s.mu.Lock()
	if s.mode == domain.TouchModeNone || len(s.taps) == 0 {
		s.mu.Unlock()
		return
	}
	button := s.taps[0]
	s.taps = s.taps[1:]
	s.mu.Unlock()

	if err := s.sender.SendRaw(hid.MouseDown{Button: button}, hid.MouseUp{Button: button}); err != nil {
		s.logger.Debugw("failed to send tap", "button", button, "error", err)
	}
}

// Close stops the dispatch goroutine. Queued taps are discarded and later
// touch events are ignored.
func (s *TouchService) Close() {
	s.mu.Lock()
	s.closed = true
	s.taps = nil
	s.mu.Unlock()
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
}

// roundHalfUp rounds halves towards positive infinity.
func roundHalfUp(v float64) float64 {
	return math.Floor(v + 0.5)
}
