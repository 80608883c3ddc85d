package services

import (
	"encoding/json"
	"fmt"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/ports"

	"go.uber.org/zap"
)

// ControlService builds manual control messages for the host.
type ControlService struct {
	sender ports.ChannelSender
	logger *zap.SugaredLogger
}

// NewControlService creates a control service sending on the manual channel of sender.
func NewControlService(sender ports.ChannelSender, logger *zap.SugaredLogger) *ControlService {
	return &ControlService{sender: sender, logger: logger}
}

// Send encodes msg and queues it on the manual channel.
func (c *ControlService) Send(msg domain.ControlMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode control message: %w", err)
	}
	if err := c.sender.Send(domain.ChannelManual, string(data)); err != nil {
		return fmt.Errorf("failed to send %s: %w", msg.Type, err)
	}
	c.logger.Debugw("control message queued", "type", msg.Type)
	return nil
}

// ChangeFramerate asks the host to encode at fps frames per second.
func (c *ControlService) ChangeFramerate(fps int) error {
	if fps <= 0 {
		return fmt.Errorf("framerate must be positive, got %d", fps)
	}
	return c.Send(domain.ControlMessage{Type: domain.ControlFramerate, Value: &fps})
}

// ChangeBitrate asks the host to target kbps.
func (c *ControlService) ChangeBitrate(kbps int) error {
	if kbps <= 0 {
		return fmt.Errorf("bitrate must be positive, got %d", kbps)
	}
	return c.Send(domain.ControlMessage{Type: domain.ControlBitrate, Value: &kbps})
}

// PointerVisible toggles rendering of the host cursor in the video.
func (c *ControlService) PointerVisible(visible bool) error {
	v := 0
	if visible {
		v = 1
	}
	return c.Send(domain.ControlMessage{Type: domain.ControlPointer, Value: &v})
}

// RequestVideoReset asks the host encoder for a fresh key frame.
func (c *ControlService) RequestVideoReset() error {
	one := 1
	return c.Send(domain.ControlMessage{Type: domain.ControlReset, Value: &one})
}

func (c *ControlService) ResetAudio() error {
	return c.Send(domain.ControlMessage{Type: domain.ControlAudioReset})
}
