package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/internal/core/services"
	"remotedesk/internal/infrastructure/monitoring"
	"remotedesk/pkg/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type recordingSender struct {
	mu   sync.Mutex
	sent map[domain.ChannelLabel][]string
}

func (s *recordingSender) Send(label domain.ChannelLabel, payload string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sent == nil {
		s.sent = make(map[domain.ChannelLabel][]string)
	}
	s.sent[label] = append(s.sent[label], payload)
	return nil
}

func (s *recordingSender) payloads(label domain.ChannelLabel) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent[label]...)
}

type fakeClient struct {
	ready      bool
	fps        int
	kbps       int
	visible    *bool
	resets     int
	hardResets int
	audioReset int
	clipboard  string
	err        error
}

func (c *fakeClient) Ready() bool { return c.ready }
func (c *fakeClient) Metrics() domain.ClientMetrics {
	var m domain.ClientMetrics
	m.Video.Status = domain.StateConnected
	m.Audio.Status = domain.StateConnecting
	m.Quality = domain.QualityHigh
	m.Video.Rates.FramesPerSecond = 60
	return m
}
func (c *fakeClient) HostMetrics() map[string]any { return nil }
func (c *fakeClient) Sessions() []domain.SessionInfo {
	return []domain.SessionInfo{{ID: "s1", Kind: domain.KindVideo, State: domain.StateConnected}}
}
func (c *fakeClient) ChangeFramerate(fps int) error  { c.fps = fps; return c.err }
func (c *fakeClient) ChangeBitrate(kbps int) error   { c.kbps = kbps; return c.err }
func (c *fakeClient) PointerVisible(v bool) error    { c.visible = &v; return c.err }
func (c *fakeClient) ResetAudio() error              { c.audioReset++; return c.err }
func (c *fakeClient) ResetVideo()                    { c.resets++ }
func (c *fakeClient) HardReset()                     { c.hardResets++ }
func (c *fakeClient) SetClipboard(text string) error { c.clipboard = text; return c.err }

type harness struct {
	router *gin.Engine
	client *fakeClient
	sender *recordingSender
	touch  *services.TouchService
}

func newHarness(t *testing.T, token string) *harness {
	gin.SetMode(gin.TestMode)
	logger := zaptest.NewLogger(t).Sugar()

	sender := &recordingSender{}
	input := services.NewInputService(sender, logger)
	touch := services.NewTouchService(services.DefaultTouchConfig(), input, logger)
	t.Cleanup(touch.Close)

	client := &fakeClient{ready: true}
	health := monitoring.NewHealthChecker()
	health.AddCheck("client", func(context.Context) error { return nil }, time.Second, true)

	cfg := config.DefaultConfig()
	cfg.Control.Token = token

	h := NewControlHandler(client, input, touch, health, logger)
	return &harness{
		router: NewRouter(cfg, h, http.NotFoundHandler(), logger),
		client: client,
		sender: sender,
		touch:  touch,
	}
}

func (h *harness) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	return w
}

func TestControlHandler_StatusAndMetrics(t *testing.T) {
	h := newHarness(t, "")

	w := h.do(http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var status map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &status))
	assert.Equal(t, true, status["ready"])
	assert.Equal(t, "connected", status["video"])
	assert.Equal(t, "connecting", status["audio"])
	assert.Equal(t, "high", status["quality"])

	w = h.do(http.MethodGet, "/api/v1/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"connected"`)

	w = h.do(http.MethodGet, "/api/v1/metrics/host", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/api/v1/sessions", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"id":"s1"`)
	assert.Contains(t, w.Body.String(), `"state":"connected"`)
}

func TestControlHandler_HealthAndReady(t *testing.T) {
	h := newHarness(t, "")

	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/healthz", nil).Code)
	assert.Equal(t, http.StatusOK, h.do(http.MethodGet, "/readyz", nil).Code)

	h.client.ready = false
	assert.Equal(t, http.StatusServiceUnavailable, h.do(http.MethodGet, "/readyz", nil).Code)
}

func TestControlHandler_Control(t *testing.T) {
	h := newHarness(t, "")

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/control/framerate", gin.H{"fps": 30}).Code)
	assert.Equal(t, 30, h.client.fps)

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/control/framerate", gin.H{"fps": 0}).Code)

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/control/bitrate", gin.H{"kbps": 4000}).Code)
	assert.Equal(t, 4000, h.client.kbps)

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/control/pointer", gin.H{"visible": false}).Code)
	require.NotNil(t, h.client.visible)
	assert.False(t, *h.client.visible)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/control/pointer", gin.H{}).Code)

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/control/reset-video", nil).Code)
	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/control/reset-audio", nil).Code)
	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/control/hard-reset", nil).Code)
	assert.Equal(t, 1, h.client.resets)
	assert.Equal(t, 1, h.client.audioReset)
	assert.Equal(t, 1, h.client.hardResets)

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/clipboard", gin.H{"text": "hello"}).Code)
	assert.Equal(t, "hello", h.client.clipboard)
}

func TestControlHandler_ClosedClientIsGone(t *testing.T) {
	h := newHarness(t, "")
	h.client.err = domain.ErrClosed

	w := h.do(http.MethodPost, "/api/v1/control/bitrate", gin.H{"kbps": 100})
	assert.Equal(t, http.StatusGone, w.Code)
	assert.Contains(t, w.Body.String(), "CLIENT_CLOSED")
}

func TestControlHandler_Keys(t *testing.T) {
	h := newHarness(t, "")

	w := h.do(http.MethodPost, "/api/v1/input/keys", gin.H{"strokes": []gin.H{
		{"code": "KeyA", "down": true},
		{"code": "KeyA", "down": false},
	}})
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, []string{"1:key=65", "0:key=65"}, h.sender.payloads(domain.ChannelHID))

	w = h.do(http.MethodPost, "/api/v1/input/keys", gin.H{"strokes": []gin.H{
		{"code": "KeyB", "down": true},
		{"code": "NoSuchKey", "down": true},
	}})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Contains(t, w.Body.String(), "UNMAPPABLE_KEY")
	assert.Len(t, h.sender.payloads(domain.ChannelHID), 2)
}

func TestControlHandler_MouseAndGamepad(t *testing.T) {
	h := newHarness(t, "")

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/input/mouse", gin.H{"type": "button", "button": 0, "down": true}).Code)
	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/input/mouse", gin.H{"type": "wheel", "delta": -120}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/input/mouse", gin.H{"type": "teleport"}).Code)
	assert.Len(t, h.sender.payloads(domain.ChannelHID), 2)

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/input/gamepad", gin.H{"type": "button", "index": 0, "down": true}).Code)
	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/input/gamepad", gin.H{"type": "axis", "stick": "left", "x": 0.5, "y": -0.5}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/input/gamepad", gin.H{"type": "axis", "stick": "middle"}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/input/gamepad", gin.H{"type": "axis", "stick": "left", "x": 2}).Code)
}

func TestControlHandler_TouchMode(t *testing.T) {
	h := newHarness(t, "")

	w := h.do(http.MethodPut, "/api/v1/input/touch/mode", gin.H{"mode": "trackpad"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, domain.TouchModeTrackpad, h.touch.Mode())

	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPut, "/api/v1/input/touch/mode", gin.H{"mode": "stylus"}).Code)

	w = h.do(http.MethodGet, "/api/v1/input/touch/mode", nil)
	assert.Contains(t, w.Body.String(), `"mode":"trackpad"`)

	assert.Equal(t, http.StatusAccepted, h.do(http.MethodPost, "/api/v1/input/touch", gin.H{
		"phase":   "start",
		"touches": []gin.H{{"id": 1, "x": 10, "y": 10}},
	}).Code)
	assert.Equal(t, http.StatusBadRequest, h.do(http.MethodPost, "/api/v1/input/touch", gin.H{"phase": "start"}).Code)
}

func TestControlHandler_TokenRequired(t *testing.T) {
	h := newHarness(t, "secret")

	assert.Equal(t, http.StatusUnauthorized, h.do(http.MethodGet, "/api/v1/status", nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	h.router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	// /metrics sits outside the token check.
	assert.Equal(t, http.StatusNotFound, h.do(http.MethodGet, "/metrics", nil).Code)
}
