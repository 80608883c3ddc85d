package hid

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Decode for any message that does not follow the wire format.
var ErrMalformed = errors.New("malformed hid message")

// schema lists the field names of every event code in wire order.
var schema = map[EventCode][]string{
	CodeKeyUp:             {"key"},
	CodeKeyDown:           {"key"},
	CodeMouseWheel:        {"deltaY"},
	CodeMouseMove:         {"dX", "dY"},
	CodeMouseMoveRel:      {"dX", "dY"},
	CodeMouseUp:           {"button"},
	CodeMouseDown:         {"button"},
	CodeGamepadAxis:       {"gamepad_id", "index", "val"},
	CodeGamepadButtonUp:   {"gamepad_id", "index"},
	CodeGamepadButtonDown: {"gamepad_id", "index"},
	CodeGamepadSlide:      {"gamepad_id", "index", "val"},
	CodeClipboardSet:      {"val"},
}

// Encode serializes e to its wire form.
func Encode(e Event) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(int(e.Code())))

	for i, f := range e.fields() {
		if i == 0 {
			b.WriteByte(':')
		} else {
			b.WriteByte(';')
		}
		b.WriteString(f.name)
		b.WriteByte('=')
		b.WriteString(f.value)
	}
	return b.String()
}

// Decode parses a wire message. Field names, order and count must match the
// schema of the event code exactly.
func Decode(msg string) (Event, error) {
	head, body, hasBody := strings.Cut(msg, ":")

	n, err := strconv.Atoi(head)
	if err != nil {
		return nil, fmt.Errorf("%w: bad event code %q", ErrMalformed, head)
	}
	code := EventCode(n)

	names, ok := schema[code]
	if !ok {
		return nil, fmt.Errorf("%w: unknown event code %d", ErrMalformed, n)
	}

	var parts []string
	if hasBody {
		parts = strings.Split(body, ";")
	}
	if len(parts) != len(names) {
		return nil, fmt.Errorf("%w: %s expects %d fields, got %d", ErrMalformed, code, len(names), len(parts))
	}

	values := make([]string, len(parts))
	for i, part := range parts {
		name, value, found := strings.Cut(part, "=")
		if !found || name != names[i] {
			return nil, fmt.Errorf("%w: %s field %d must be %q, got %q", ErrMalformed, code, i, names[i], part)
		}
		values[i] = value
	}

	r := reader{values: values}
	var ev Event
	switch code {
	case CodeKeyUp:
		ev = KeyUp{Key: r.int()}
	case CodeKeyDown:
		ev = KeyDown{Key: r.int()}
	case CodeMouseWheel:
		ev = MouseWheel{DeltaY: r.float()}
	case CodeMouseMove:
		ev = MouseMove{X: r.float(), Y: r.float()}
	case CodeMouseMoveRel:
		ev = MouseMoveRel{DX: r.float(), DY: r.float()}
	case CodeMouseUp:
		ev = MouseUp{Button: r.int()}
	case CodeMouseDown:
		ev = MouseDown{Button: r.int()}
	case CodeGamepadAxis:
		ev = GamepadAxis{GamepadID: r.int(), Index: r.int(), Value: r.float()}
	case CodeGamepadButtonUp:
		ev = GamepadButtonUp{GamepadID: r.int(), Index: r.int()}
	case CodeGamepadButtonDown:
		ev = GamepadButtonDown{GamepadID: r.int(), Index: r.int()}
	case CodeGamepadSlide:
		ev = GamepadSlide{GamepadID: r.int(), Index: r.int(), Value: r.float()}
	case CodeClipboardSet:
		ev = ClipboardSet{Text: r.text()}
	}

	if r.err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, code, r.err)
	}
	return ev, nil
}

// reader consumes decoded field values in order and keeps the first error.
type reader struct {
	values []string
	pos    int
	err    error
}

func (r *reader) next() string {
	v := r.values[r.pos]
	r.pos++
	return v
}

func (r *reader) int() int {
	v := r.next()
	if r.err != nil {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		r.err = err
	}
	return n
}

func (r *reader) float() float64 {
	v := r.next()
	if r.err != nil {
		return 0
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		r.err = err
	}
	return f
}

func (r *reader) text() string {
	v := r.next()
	if r.err != nil {
		return ""
	}
	b, err := base64.StdEncoding.DecodeString(v)
	if err != nil {
		r.err = err
	}
	return string(b)
}

func intField(name string, v int) field {
	return field{name: name, value: strconv.Itoa(v)}
}

func floatField(name string, v float64) field {
	return field{name: name, value: strconv.FormatFloat(v, 'f', -1, 64)}
}

func encodeText(s string) string {
	return base64.StdEncoding.EncodeToString([]byte(s))
}
