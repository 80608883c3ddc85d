package domain

import "fmt"

// ChannelLabel identifies a logical channel carried over a data channel.
type ChannelLabel string

const (
	ChannelHID      ChannelLabel = "hid"
	ChannelManual   ChannelLabel = "manual"
	ChannelAdaptive ChannelLabel = "adaptive"
)

// ChannelLabels lists every logical channel the multiplexer knows.
var ChannelLabels = []ChannelLabel{ChannelHID, ChannelManual, ChannelAdaptive}

// ParseChannelLabel resolves a data channel label, rejecting unknown ones.
func ParseChannelLabel(label string) (ChannelLabel, error) {
	switch ChannelLabel(label) {
	case ChannelHID, ChannelManual, ChannelAdaptive:
		return ChannelLabel(label), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownChannel, label)
}

// ControlType is the discriminator of manual control messages.
type ControlType string

const (
	ControlFramerate  ControlType = "framerate"
	ControlBitrate    ControlType = "bitrate"
	ControlPointer    ControlType = "pointer"
	ControlReset      ControlType = "reset"
	ControlAudioReset ControlType = "audio-reset"
)

// ControlMessage is sent on the manual channel.
type ControlMessage struct {
	Type  ControlType `json:"type"`
	Value *int        `json:"value,omitempty"`
}
