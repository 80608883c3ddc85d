package hid

// keyCodes maps DOM KeyboardEvent.code values to Windows virtual-key codes.
var keyCodes = map[string]int{
	"Backspace":      0x08,
	"Tab":            0x09,
	"Enter":          0x0D,
	"NumpadEnter":    0x0D,
	"ShiftLeft":      0xA0,
	"ShiftRight":     0xA1,
	"ControlLeft":    0xA2,
	"ControlRight":   0xA3,
	"AltLeft":        0xA4,
	"AltRight":       0xA5,
	"Pause":          0x13,
	"CapsLock":       0x14,
	"Escape":         0x1B,
	"Space":          0x20,
	"PageUp":         0x21,
	"PageDown":       0x22,
	"End":            0x23,
	"Home":           0x24,
	"ArrowLeft":      0x25,
	"ArrowUp":        0x26,
	"ArrowRight":     0x27,
	"ArrowDown":      0x28,
	"PrintScreen":    0x2C,
	"Insert":         0x2D,
	"Delete":         0x2E,
	"MetaLeft":       0x5B,
	"MetaRight":      0x5C,
	"ContextMenu":    0x5D,
	"NumpadMultiply": 0x6A,
	"NumpadAdd":      0x6B,
	"NumpadSubtract": 0x6D,
	"NumpadDecimal":  0x6E,
	"NumpadDivide":   0x6F,
	"NumLock":        0x90,
	"ScrollLock":     0x91,
	"Semicolon":      0xBA,
	"Equal":          0xBB,
	"Comma":          0xBC,
	"Minus":          0xBD,
	"Period":         0xBE,
	"Slash":          0xBF,
	"Backquote":      0xC0,
	"BracketLeft":    0xDB,
	"Backslash":      0xDC,
	"BracketRight":   0xDD,
	"Quote":          0xDE,
	"IntlBackslash":  0xE2,
}

func init() {
	for c := 'A'; c <= 'Z'; c++ {
		keyCodes["Key"+string(c)] = int(c)
	}
	for d := '0'; d <= '9'; d++ {
		keyCodes["Digit"+string(d)] = int(d)
		keyCodes["Numpad"+string(d)] = 0x60 + int(d-'0')
	}
	fkeys := []string{"F1", "F2", "F3", "F4", "F5", "F6", "F7", "F8", "F9", "F10", "F11", "F12",
		"F13", "F14", "F15", "F16", "F17", "F18", "F19", "F20", "F21", "F22", "F23", "F24"}
	for i, name := range fkeys {
		keyCodes[name] = 0x70 + i
	}
}

// TranslateKey resolves a DOM key code. The second result is false for keys
// with no virtual-key equivalent; callers drop such events.
func TranslateKey(code string) (int, bool) {
	vk, ok := keyCodes[code]
	return vk, ok
}
