package signal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/pkg/retry"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const pingPayload = "ping"

// WebSocketTransport carries signaling envelopes as JSON text frames over a
// single websocket. A text "ping" keeps intermediaries from idling it out.
type WebSocketTransport struct {
	url  string
	conn *websocket.Conn

	writeMu      sync.Mutex
	writeTimeout time.Duration
	pingInterval time.Duration

	inbox inbox

	closeOnce sync.Once
	closed    chan struct{}
	done      chan struct{}
	wg        sync.WaitGroup

	logger *zap.SugaredLogger
}

// DialWebSocket connects to url, retrying transient failures with backoff.
// Handshake rejections (4xx) are not retried.
func DialWebSocket(ctx context.Context, url string, opts Options, logger *zap.SugaredLogger) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.DialTimeout,
	}
	header := opts.header()

	conn, err := retry.RetryWithResult(ctx, opts.Retry, func() (*websocket.Conn, error) {
		conn, resp, err := dialer.DialContext(ctx, url, header)
		if err != nil {
			if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 {
				return nil, retry.Permanent(fmt.Errorf("handshake rejected with status %d: %w", resp.StatusCode, err))
			}
			logger.Debugw("websocket dial attempt failed", "url", url, "error", err)
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to dial signaling websocket %s: %w", url, err)
	}

	t := newWebSocketTransport(conn, url, opts, logger)
	logger.Infow("signaling websocket connected", "url", url)
	return t, nil
}

func newWebSocketTransport(conn *websocket.Conn, url string, opts Options, logger *zap.SugaredLogger) *WebSocketTransport {
	t := &WebSocketTransport{
		url:          url,
		conn:         conn,
		writeTimeout: opts.WriteTimeout,
		pingInterval: opts.PingInterval,
		closed:       make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger,
	}

	t.wg.Add(2)
	go t.readLoop()
	go t.pingLoop()
	go func() {
		t.wg.Wait()
		close(t.done)
	}()
	return t
}

func (t *WebSocketTransport) Send(env domain.SignalingEnvelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode signaling envelope: %w", err)
	}
	t.logger.Debugw("sending signaling message", "url", t.url, "type", env.Type)
	return t.write(data)
}

func (t *WebSocketTransport) OnReceive(handler func(domain.SignalingEnvelope)) {
	t.inbox.setHandler(handler)
}

// Close stops the ping loop and closes the socket. It is safe to call more
// than once.
func (t *WebSocketTransport) Close() error {
	var err error
	t.closeOnce.Do(func() {
		close(t.closed)

		t.writeMu.Lock()
		_ = t.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = t.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		t.writeMu.Unlock()

		err = t.conn.Close()
	})
	return err
}

func (t *WebSocketTransport) Done() <-chan struct{} {
	return t.done
}

func (t *WebSocketTransport) write(data []byte) error {
	select {
	case <-t.closed:
		return domain.ErrTransportClosed
	default:
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.writeTimeout > 0 {
		_ = t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout))
	}
	if err := t.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write signaling message: %w", err)
	}
	return nil
}

func (t *WebSocketTransport) readLoop() {
	defer t.wg.Done()
	defer t.Close()

	for {
		msgType, data, err := t.conn.ReadMessage()
		if err != nil {
			select {
			case <-t.closed:
			default:
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					t.logger.Warnw("signaling websocket read failed", "url", t.url, "error", err)
				} else {
					t.logger.Infow("signaling websocket closed by host", "url", t.url)
				}
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var env domain.SignalingEnvelope
		if err := json.Unmarshal(data, &env); err != nil {
			t.logger.Debugw("ignoring non-envelope signaling frame", "url", t.url, "payload", string(data))
			continue
		}
		t.logger.Debugw("received signaling message", "url", t.url, "type", env.Type)
		t.inbox.deliver(env)
	}
}

func (t *WebSocketTransport) pingLoop() {
	defer t.wg.Done()

	if t.pingInterval <= 0 {
		<-t.closed
		return
	}

	ticker := time.NewTicker(t.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-t.closed:
			return
		case <-ticker.C:
			if err := t.write([]byte(pingPayload)); err != nil {
				if !errors.Is(err, domain.ErrTransportClosed) {
					t.logger.Debugw("signaling ping failed", "url", t.url, "error", err)
				}
				return
			}
		}
	}
}
