package services

import (
	"fmt"
	"sync/atomic"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"
	"remotedesk/pkg/hid"

	"go.uber.org/zap"
)

// InputService encodes local input as HID events on the hid channel.
type InputService struct {
	sender    ports.ChannelSender
	gamepadID int
	closed    atomic.Bool
	logger    *zap.SugaredLogger
}

// NewInputService creates an input service sending on the hid channel of sender.
func NewInputService(sender ports.ChannelSender, logger *zap.SugaredLogger) *InputService {
	return &InputService{sender: sender, logger: logger}
}

// SendRaw queues events in order. After Close it does nothing.
func (s *InputService) SendRaw(events ...hid.Event) error {
	if s.closed.Load() {
		return nil
	}
	for _, e := range events {
		if err := s.sender.Send(domain.ChannelHID, hid.Encode(e)); err != nil {
			return fmt.Errorf("failed to send %s: %w", e.Code(), err)
		}
	}
	return nil
}

// KeyDown presses the key with the given DOM code. Keys without a
// virtual-key mapping are dropped and reported as ErrUnmappableKey.
func (s *InputService) KeyDown(code string) error {
	vk, err := s.translate(code)
	if err != nil {
		return err
	}
	return s.SendRaw(hid.KeyDown{Key: vk})
}

// KeyUp releases the key with the given DOM code.
func (s *InputService) KeyUp(code string) error {
	vk, err := s.translate(code)
	if err != nil {
		return err
	}
	return s.SendRaw(hid.KeyUp{Key: vk})
}

// KeyStroke is one entry of a virtual keyboard sequence.
type KeyStroke struct {
	Code string `json:"code"`
	Down bool   `json:"down"`
}

// VirtualKeyboard sends a sequence of key transitions. The sequence stops at
// the first unmappable key.
func (s *InputService) VirtualKeyboard(strokes ...KeyStroke) error {
	events := make([]hid.Event, 0, len(strokes))
	for _, k := range strokes {
		vk, err := s.translate(k.Code)
		if err != nil {
			break
		}
		if k.Down {
			events = append(events, hid.KeyDown{Key: vk})
		} else {
			events = append(events, hid.KeyUp{Key: vk})
		}
	}
	return s.SendRaw(events...)
}

func (s *InputService) translate(code string) (int, error) {
	vk, ok := hid.TranslateKey(code)
	if !ok {
		s.logger.Debugw("dropping unmappable key", "code", code)
		return 0, fmt.Errorf("%w: %q", domain.ErrUnmappableKey, code)
	}
	return vk, nil
}

// GamepadButton sends a button transition. The triggers (6 and 7) are sent
// as slider values.
func (s *InputService) GamepadButton(down bool, index int) error {
	return s.SendRaw(hid.ButtonEvent(s.gamepadID, index, down))
}

// GamepadAxis moves the left or right stick to x, y.
func (s *InputService) GamepadAxis(x, y float64, stick hid.Stick) error {
	events, err := hid.AxisEvents(s.gamepadID, stick, x, y)
	if err != nil {
		return err
	}
	return s.SendRaw(events...)
}

// SetClipboard replaces the host clipboard.
func (s *InputService) SetClipboard(text string) error {
	return s.SendRaw(hid.ClipboardSet{Text: text})
}

// MouseMove positions the pointer; x and y are normalised to [0,1].
func (s *InputService) MouseMove(x, y float64) error {
	return s.SendRaw(hid.MouseMove{X: x, Y: y})
}

// MouseMoveRel moves the pointer by a pixel delta.
func (s *InputService) MouseMoveRel(dx, dy float64) error {
	return s.SendRaw(hid.MouseMoveRel{DX: dx, DY: dy})
}

// MouseButton presses or releases button.
func (s *InputService) MouseButton(down bool, button int) error {
	if down {
		return s.SendRaw(hid.MouseDown{Button: button})
	}
	return s.SendRaw(hid.MouseUp{Button: button})
}

// MouseWheel scrolls vertically.
func (s *InputService) MouseWheel(deltaY float64) error {
	return s.SendRaw(hid.MouseWheel{DeltaY: deltaY})
}

// Close makes later sends no-ops.
func (s *InputService) Close() {
	s.closed.Store(true)
}
