package http

import (
	"fmt"
	"net/http"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/services"
	"remotedesk/pkg/errors"
	"remotedesk/pkg/hid"

	"github.com/gin-gonic/gin"
)

// Keys sends a key sequence. Sequences holding a key without a virtual-key
// mapping are rejected whole.
func (h *ControlHandler) Keys(c *gin.Context) {
	var req struct {
		Strokes []services.KeyStroke `json:"strokes" binding:"required,min=1"`
	}
	if !bind(c, &req) {
		return
	}
	for _, k := range req.Strokes {
		if _, ok := hid.TranslateKey(k.Code); !ok {
			fail(c, errors.NewUnmappableKeyError(k.Code))
			return
		}
	}
	if err := h.input.VirtualKeyboard(req.Strokes...); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type mouseRequest struct {
	Type   string  `json:"type" binding:"required,oneof=move move_rel button wheel"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Button int     `json:"button" binding:"min=0,max=4"`
	Down   bool    `json:"down"`
	Delta  float64 `json:"delta"`
}

func (h *ControlHandler) Mouse(c *gin.Context) {
	var req mouseRequest
	if !bind(c, &req) {
		return
	}

	var err error
	switch req.Type {
	case "move":
		err = h.input.MouseMove(req.X, req.Y)
	case "move_rel":
		err = h.input.MouseMoveRel(req.X, req.Y)
	case "button":
		err = h.input.MouseButton(req.Down, req.Button)
	case "wheel":
		err = h.input.MouseWheel(req.Delta)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type gamepadRequest struct {
	Type  string    `json:"type" binding:"required,oneof=button axis"`
	Index int       `json:"index" binding:"min=0"`
	Down  bool      `json:"down"`
	Stick hid.Stick `json:"stick"`
	X     float64   `json:"x" binding:"min=-1,max=1"`
	Y     float64   `json:"y" binding:"min=-1,max=1"`
}

func (h *ControlHandler) Gamepad(c *gin.Context) {
	var req gamepadRequest
	if !bind(c, &req) {
		return
	}

	var err error
	switch req.Type {
	case "button":
		err = h.input.GamepadButton(req.Down, req.Index)
	case "axis":
		if _, _, serr := req.Stick.AxisIndices(); serr != nil {
			fail(c, errors.NewInvalidInputError(serr.Error()))
			return
		}
		err = h.input.GamepadAxis(req.X, req.Y, req.Stick)
	}
	if err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

type touchRequest struct {
	Phase   string `json:"phase" binding:"required,oneof=start move end"`
	Touches []struct {
		ID int     `json:"id"`
		X  float64 `json:"x"`
		Y  float64 `json:"y"`
	} `json:"touches" binding:"required,min=1"`
}

func (h *ControlHandler) TouchEvent(c *gin.Context) {
	var req touchRequest
	if !bind(c, &req) {
		return
	}

	touches := make([]domain.Touch, 0, len(req.Touches))
	for _, t := range req.Touches {
		touches = append(touches, domain.Touch{Identifier: t.ID, X: t.X, Y: t.Y})
	}

	now := time.Now()
	switch req.Phase {
	case "start":
		h.touch.HandleStart(touches, now)
	case "move":
		h.touch.HandleMove(touches)
	case "end":
		h.touch.HandleEnd(touches, now)
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) GetTouchMode(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"mode": h.touch.Mode()})
}

func (h *ControlHandler) SetTouchMode(c *gin.Context) {
	var req struct {
		Mode domain.TouchMode `json:"mode" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	switch req.Mode {
	case domain.TouchModeNone, domain.TouchModeTrackpad:
	default:
		fail(c, errors.NewInvalidInputError(fmt.Sprintf("unknown touch mode %q", req.Mode)))
		return
	}
	h.touch.SetMode(req.Mode)
	c.JSON(http.StatusOK, gin.H{"mode": req.Mode})
}
