package signal

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"remotedesk/internal/core/domain"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// fakeHost records every text frame and pushes the given envelopes on connect.
type fakeHost struct {
	mu       sync.Mutex
	frames   []string
	auth     string
	push     []domain.SignalingEnvelope
	received chan string
}

func newFakeHost(push ...domain.SignalingEnvelope) *fakeHost {
	return &fakeHost{push: push, received: make(chan string, 64)}
}

func (h *fakeHost) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	h.auth = r.Header.Get("Authorization")
	h.mu.Unlock()

	conn, err := testUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	for _, env := range h.push {
		if err := conn.WriteJSON(env); err != nil {
			return
		}
	}
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		h.mu.Lock()
		h.frames = append(h.frames, string(data))
		h.mu.Unlock()
		h.received <- string(data)
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.PingInterval = 20 * time.Millisecond
	opts.PollInterval = 10 * time.Millisecond
	opts.DialTimeout = time.Second
	opts.Retry.InitialDelay = 5 * time.Millisecond
	opts.Retry.MaxDelay = 10 * time.Millisecond
	return opts
}

func TestWebSocketTransport_BuffersUntilHandlerSet(t *testing.T) {
	mid := "0"
	offer := domain.SignalingEnvelope{ID: "s1", Type: domain.EnvelopeOffer, SDP: "v=0"}
	ice := domain.SignalingEnvelope{ID: "s1", Type: domain.EnvelopeICE, Candidate: &domain.ICECandidate{Candidate: "candidate:1", SDPMid: &mid}}
	srv := httptest.NewServer(newFakeHost(offer, ice))
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv), testOptions(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer tr.Close()

	// let both frames arrive before anyone listens
	time.Sleep(50 * time.Millisecond)

	got := make(chan domain.SignalingEnvelope, 2)
	tr.OnReceive(func(env domain.SignalingEnvelope) { got <- env })

	first := <-got
	second := <-got
	assert.Equal(t, offer, first)
	assert.Equal(t, domain.EnvelopeICE, second.Type)
	require.NotNil(t, second.Candidate)
	assert.Equal(t, "0", *second.Candidate.SDPMid)
}

func TestWebSocketTransport_SendAndPing(t *testing.T) {
	host := newFakeHost()
	srv := httptest.NewServer(host)
	defer srv.Close()

	opts := testOptions()
	opts.Token = "secret"
	tr, err := DialWebSocket(context.Background(), wsURL(srv), opts, zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)
	defer tr.Close()

	answer := domain.SignalingEnvelope{ID: "s2", Type: domain.EnvelopeAnswer, SDP: "v=0"}
	require.NoError(t, tr.Send(answer))

	sawAnswer, sawPing := false, false
	deadline := time.After(2 * time.Second)
	for !(sawAnswer && sawPing) {
		select {
		case frame := <-host.received:
			if frame == pingPayload {
				sawPing = true
				continue
			}
			var env domain.SignalingEnvelope
			require.NoError(t, json.Unmarshal([]byte(frame), &env))
			assert.Equal(t, answer, env)
			sawAnswer = true
		case <-deadline:
			t.Fatalf("timed out: answer=%v ping=%v", sawAnswer, sawPing)
		}
	}

	host.mu.Lock()
	assert.Equal(t, "Bearer secret", host.auth)
	host.mu.Unlock()
}

func TestWebSocketTransport_CloseIsIdempotent(t *testing.T) {
	srv := httptest.NewServer(newFakeHost())
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv), testOptions(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	assert.NoError(t, tr.Close())
	assert.NoError(t, tr.Close())

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("transport did not stop")
	}
	assert.ErrorIs(t, tr.Send(domain.SignalingEnvelope{Type: domain.EnvelopeOffer}), domain.ErrTransportClosed)
}

func TestWebSocketTransport_HostCloseEndsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		conn.Close()
	}))
	defer srv.Close()

	tr, err := DialWebSocket(context.Background(), wsURL(srv), testOptions(), zaptest.NewLogger(t).Sugar())
	require.NoError(t, err)

	select {
	case <-tr.Done():
	case <-time.After(time.Second):
		t.Fatal("transport did not observe host close")
	}
}

func TestDialWebSocket_RejectedHandshakeIsNotRetried(t *testing.T) {
	var attempts int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		mu.Unlock()
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	_, err := DialWebSocket(context.Background(), wsURL(srv), testOptions(), zaptest.NewLogger(t).Sugar())
	require.Error(t, err)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, attempts)
}

func TestDial_SchemeSelection(t *testing.T) {
	logger := zaptest.NewLogger(t).Sugar()

	_, err := Dial(context.Background(), "ftp://host/x", testOptions(), logger)
	assert.Error(t, err)

	tr, err := Dial(context.Background(), "http://127.0.0.1:1/poll", testOptions(), logger)
	require.NoError(t, err)
	_, ok := tr.(*HTTPPollTransport)
	assert.True(t, ok)
	require.NoError(t, tr.Close())
}
