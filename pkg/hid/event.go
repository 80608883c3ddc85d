// Package hid implements the text wire protocol used to forward input events
// to the remote host.
//
// Each event is encoded as a single line:
//
//	<code>:<field>=<value>;<field>=<value>
//
// The field set and order are fixed per event code.
package hid

import "fmt"

// EventCode is the numeric tag that prefixes every wire message.
type EventCode int

const (
	CodeKeyUp EventCode = iota
	CodeKeyDown
	CodeMouseWheel
	CodeMouseMove
	CodeMouseMoveRel
	CodeMouseUp
	CodeMouseDown
	CodeGamepadAxis
	CodeGamepadButtonUp
	CodeGamepadButtonDown
	CodeGamepadSlide
	CodeClipboardSet
)

func (c EventCode) String() string {
	switch c {
	case CodeKeyUp:
		return "KeyUp"
	case CodeKeyDown:
		return "KeyDown"
	case CodeMouseWheel:
		return "MouseWheel"
	case CodeMouseMove:
		return "MouseMove"
	case CodeMouseMoveRel:
		return "MouseMoveRel"
	case CodeMouseUp:
		return "MouseUp"
	case CodeMouseDown:
		return "MouseDown"
	case CodeGamepadAxis:
		return "GamepadAxis"
	case CodeGamepadButtonUp:
		return "GamepadButtonUp"
	case CodeGamepadButtonDown:
		return "GamepadButtonDown"
	case CodeGamepadSlide:
		return "GamepadSlide"
	case CodeClipboardSet:
		return "ClipboardSet"
	default:
		return fmt.Sprintf("EventCode(%d)", int(c))
	}
}

// Mouse buttons as numbered by the DOM.
const (
	ButtonLeft   = 0
	ButtonMiddle = 1
	ButtonRight  = 2
)

// Event is one input action. Implementations are plain values.
type Event interface {
	Code() EventCode
	fields() []field
}

type field struct {
	name  string
	value string
}

// KeyDown presses a key identified by its virtual-key code.
type KeyDown struct {
	Key int
}

// KeyUp releases a key identified by its virtual-key code.
type KeyUp struct {
	Key int
}

// MouseMove positions the pointer absolutely, in coordinates normalised to [0,1].
type MouseMove struct {
	X float64
	Y float64
}

// MouseMoveRel moves the pointer by a pixel delta.
type MouseMoveRel struct {
	DX float64
	DY float64
}

// MouseDown presses a mouse button.
type MouseDown struct {
	Button int
}

// MouseUp releases a mouse button.
type MouseUp struct {
	Button int
}

// MouseWheel scrolls vertically by DeltaY.
type MouseWheel struct {
	DeltaY float64
}

// GamepadButtonDown presses a digital gamepad button.
type GamepadButtonDown struct {
	GamepadID int
	Index     int
}

// GamepadButtonUp releases a digital gamepad button.
type GamepadButtonUp struct {
	GamepadID int
	Index     int
}

// GamepadAxis sets one stick axis to a value in [-1,1].
type GamepadAxis struct {
	GamepadID int
	Index     int
	Value     float64
}

// GamepadSlide sets an analog trigger to a value in [0,1].
type GamepadSlide struct {
	GamepadID int
	Index     int
	Value     float64
}

// ClipboardSet replaces the host clipboard with Text.
type ClipboardSet struct {
	Text string
}

func (KeyDown) Code() EventCode           { return CodeKeyDown }
func (KeyUp) Code() EventCode             { return CodeKeyUp }
func (MouseMove) Code() EventCode         { return CodeMouseMove }
func (MouseMoveRel) Code() EventCode      { return CodeMouseMoveRel }
func (MouseDown) Code() EventCode         { return CodeMouseDown }
func (MouseUp) Code() EventCode           { return CodeMouseUp }
func (MouseWheel) Code() EventCode        { return CodeMouseWheel }
func (GamepadButtonDown) Code() EventCode { return CodeGamepadButtonDown }
func (GamepadButtonUp) Code() EventCode   { return CodeGamepadButtonUp }
func (GamepadAxis) Code() EventCode       { return CodeGamepadAxis }
func (GamepadSlide) Code() EventCode      { return CodeGamepadSlide }
func (ClipboardSet) Code() EventCode      { return CodeClipboardSet }

func (e KeyDown) fields() []field { return []field{intField("key", e.Key)} }
func (e KeyUp) fields() []field   { return []field{intField("key", e.Key)} }

func (e MouseMove) fields() []field {
	return []field{floatField("dX", e.X), floatField("dY", e.Y)}
}

func (e MouseMoveRel) fields() []field {
	return []field{floatField("dX", e.DX), floatField("dY", e.DY)}
}

func (e MouseDown) fields() []field  { return []field{intField("button", e.Button)} }
func (e MouseUp) fields() []field    { return []field{intField("button", e.Button)} }
func (e MouseWheel) fields() []field { return []field{floatField("deltaY", e.DeltaY)} }

func (e GamepadButtonDown) fields() []field {
	return []field{intField("gamepad_id", e.GamepadID), intField("index", e.Index)}
}

func (e GamepadButtonUp) fields() []field {
	return []field{intField("gamepad_id", e.GamepadID), intField("index", e.Index)}
}

func (e GamepadAxis) fields() []field {
	return []field{intField("gamepad_id", e.GamepadID), intField("index", e.Index), floatField("val", e.Value)}
}

func (e GamepadSlide) fields() []field {
	return []field{intField("gamepad_id", e.GamepadID), intField("index", e.Index), floatField("val", e.Value)}
}

func (e ClipboardSet) fields() []field {
	return []field{{name: "val", value: encodeText(e.Text)}}
}
