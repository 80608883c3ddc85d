package hid

import "fmt"

// Stick selects one of the two analog sticks of a virtual gamepad.
type Stick string

const (
	StickLeft  Stick = "left"
	StickRight Stick = "right"
)

// AxisIndices returns the (x, y) axis indices of a stick.
func (s Stick) AxisIndices() (int, int, error) {
	switch s {
	case StickLeft:
		return 0, 1, nil
	case StickRight:
		return 2, 3, nil
	}
	return 0, 0, fmt.Errorf("unknown stick %q", string(s))
}

// isSlider reports whether a button index is an analog trigger.
func isSlider(index int) bool {
	return index == 6 || index == 7
}

// ButtonEvent builds the event for a gamepad button transition. Indices 6 and 7
// are the analog triggers and produce a GamepadSlide of 0 or 1.
func ButtonEvent(gamepadID, index int, pressed bool) Event {
	if isSlider(index) {
		val := 0.0
		if pressed {
			val = 1.0
		}
		return GamepadSlide{GamepadID: gamepadID, Index: index, Value: val}
	}
	if pressed {
		return GamepadButtonDown{GamepadID: gamepadID, Index: index}
	}
	return GamepadButtonUp{GamepadID: gamepadID, Index: index}
}

// AxisEvents builds the pair of axis events for one stick position.
func AxisEvents(gamepadID int, stick Stick, x, y float64) ([]Event, error) {
	ix, iy, err := stick.AxisIndices()
	if err != nil {
		return nil, err
	}
	return []Event{
		GamepadAxis{GamepadID: gamepadID, Index: ix, Value: x},
		GamepadAxis{GamepadID: gamepadID, Index: iy, Value: y},
	}, nil
}
