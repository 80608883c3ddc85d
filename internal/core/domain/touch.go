package domain

import "time"

type TouchMode string

const (
	TouchModeNone     TouchMode = "none"
	TouchModeTrackpad TouchMode = "trackpad"
)

// Touch is one contact as reported by the input source.
type Touch struct {
	Identifier int
	X          float64
	Y          float64
}

// TouchPoint tracks an ongoing contact.
type TouchPoint struct {
	Identifier int
	StartX     float64
	StartY     float64
	StartTime  time.Time
	LastX      float64
	LastY      float64
}

func NewTouchPoint(t Touch, now time.Time) *TouchPoint {
	return &TouchPoint{
		Identifier: t.Identifier,
		StartX:     t.X,
		StartY:     t.Y,
		StartTime:  now,
		LastX:      t.X,
		LastY:      t.Y,
	}
}

// Screen is the size of the surface touches are reported against.
type Screen struct {
	Width  float64
	Height float64
}
