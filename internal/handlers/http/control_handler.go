package http

import (
	"net/http"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/services"
	"remotedesk/internal/infrastructure/monitoring"
	"remotedesk/pkg/errors"
	"remotedesk/pkg/hid"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Client is the part of the remote desktop client the control API drives.
type Client interface {
	Ready() bool
	Metrics() domain.ClientMetrics
	HostMetrics() map[string]any
	Sessions() []domain.SessionInfo
	ChangeFramerate(fps int) error
	ChangeBitrate(kbps int) error
	PointerVisible(visible bool) error
	ResetAudio() error
	ResetVideo()
	HardReset()
	SetClipboard(text string) error
}

// Input is the part of the input service driven over HTTP.
type Input interface {
	VirtualKeyboard(strokes ...services.KeyStroke) error
	GamepadButton(down bool, index int) error
	GamepadAxis(x, y float64, stick hid.Stick) error
	MouseMove(x, y float64) error
	MouseMoveRel(dx, dy float64) error
	MouseButton(down bool, button int) error
	MouseWheel(deltaY float64) error
}

// Touch is the part of the touch service driven over HTTP.
type Touch interface {
	SetMode(mode domain.TouchMode)
	Mode() domain.TouchMode
	HandleStart(changed []domain.Touch, now time.Time)
	HandleMove(touches []domain.Touch)
	HandleEnd(changed []domain.Touch, now time.Time)
}

// ControlHandler serves the local control API.
type ControlHandler struct {
	client Client
	input  Input
	touch  Touch
	health *monitoring.HealthChecker
	logger *zap.SugaredLogger
}

// NewControlHandler creates a handler serving client, input and touch.
func NewControlHandler(client Client, input Input, touch Touch, health *monitoring.HealthChecker, logger *zap.SugaredLogger) *ControlHandler {
	return &ControlHandler{
		client: client,
		input:  input,
		touch:  touch,
		health: health,
		logger: logger,
	}
}

func (h *ControlHandler) SetupRoutes(router gin.IRouter) {
	router.GET("/healthz", h.Health)
	router.GET("/readyz", h.Ready)

	api := router.Group("/api/v1")
	{
		api.GET("/status", h.Status)
		api.GET("/metrics", h.GetMetrics)
		api.GET("/metrics/host", h.GetHostMetrics)
		api.GET("/sessions", h.ListSessions)

		control := api.Group("/control")
		control.POST("/framerate", h.ChangeFramerate)
		control.POST("/bitrate", h.ChangeBitrate)
		control.POST("/pointer", h.PointerVisible)
		control.POST("/reset-video", h.ResetVideo)
		control.POST("/reset-audio", h.ResetAudio)
		control.POST("/hard-reset", h.HardReset)

		input := api.Group("/input")
		input.POST("/keys", h.Keys)
		input.POST("/mouse", h.Mouse)
		input.POST("/gamepad", h.Gamepad)
		input.POST("/touch", h.TouchEvent)
		input.GET("/touch/mode", h.GetTouchMode)
		input.PUT("/touch/mode", h.SetTouchMode)

		api.POST("/clipboard", h.SetClipboard)
	}
}

var sendRules = []errors.Rule{
	{Target: domain.ErrClosed, Build: func(error) *errors.AppError { return errors.NewClientClosedError() }},
	{Target: domain.ErrChannelNotBound, Build: errors.NewSessionUnavailableError},
	{Target: domain.ErrUnknownChannel, Build: func(err error) *errors.AppError { return errors.NewUnknownChannelError(err.Error()) }},
}

// fail attaches err for the error middleware and stops the chain.
func fail(c *gin.Context, err error, rules ...errors.Rule) {
	_ = c.Error(errors.Classify(err, append(rules, sendRules...)...))
	c.Abort()
}

func bind(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		fail(c, errors.NewInvalidInputError(err.Error()))
		return false
	}
	return true
}

func (h *ControlHandler) Health(c *gin.Context) {
	status := h.health.CheckAll(c.Request.Context())
	code := http.StatusOK
	if status.Status == monitoring.StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

func (h *ControlHandler) Ready(c *gin.Context) {
	if !h.client.Ready() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"ready": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ready": true})
}

func (h *ControlHandler) Status(c *gin.Context) {
	m := h.client.Metrics()
	c.JSON(http.StatusOK, gin.H{
		"ready":   h.client.Ready(),
		"video":   m.Video.Status,
		"audio":   m.Audio.Status,
		"quality": m.Quality,
	})
}

func (h *ControlHandler) GetMetrics(c *gin.Context) {
	c.JSON(http.StatusOK, h.client.Metrics())
}

func (h *ControlHandler) GetHostMetrics(c *gin.Context) {
	m := h.client.HostMetrics()
	if m == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no host metrics received yet"})
		return
	}
	c.JSON(http.StatusOK, m)
}

type sessionView struct {
	ID        string               `json:"id"`
	Kind      domain.StreamKind    `json:"kind"`
	State     domain.SessionState  `json:"state"`
	CreatedAt time.Time            `json:"created_at"`
	Health    domain.SessionHealth `json:"health"`
}

func (h *ControlHandler) ListSessions(c *gin.Context) {
	sessions := h.client.Sessions()
	out := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, sessionView{
			ID:        s.ID,
			Kind:      s.Kind,
			State:     s.State,
			CreatedAt: s.CreatedAt,
			Health:    s.Health,
		})
	}
	c.JSON(http.StatusOK, gin.H{"sessions": out})
}

func (h *ControlHandler) ChangeFramerate(c *gin.Context) {
	var req struct {
		FPS int `json:"fps" binding:"required,min=1,max=240"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.client.ChangeFramerate(req.FPS); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) ChangeBitrate(c *gin.Context) {
	var req struct {
		Kbps int `json:"kbps" binding:"required,min=1"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.client.ChangeBitrate(req.Kbps); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) PointerVisible(c *gin.Context) {
	var req struct {
		Visible *bool `json:"visible" binding:"required"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.client.PointerVisible(*req.Visible); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) ResetVideo(c *gin.Context) {
	h.client.ResetVideo()
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) ResetAudio(c *gin.Context) {
	if err := h.client.ResetAudio(); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) HardReset(c *gin.Context) {
	h.logger.Infow("hard reset requested", "remote", c.ClientIP())
	h.client.HardReset()
	c.Status(http.StatusAccepted)
}

func (h *ControlHandler) SetClipboard(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if !bind(c, &req) {
		return
	}
	if err := h.client.SetClipboard(req.Text); err != nil {
		fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}
