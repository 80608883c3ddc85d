package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"remotedesk/internal/core/domain"
	"remotedesk/pkg/circuitbreaker"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// maxDrainRounds bounds how many polls run after Close while the host keeps
// answering with envelopes.
const maxDrainRounds = 10

// HTTPPollTransport batches outgoing envelopes and POSTs them as a JSON array
// once per interval. The response body is a JSON array of inbound envelopes.
type HTTPPollTransport struct {
	url      string
	client   *http.Client
	header   http.Header
	interval time.Duration
	breaker  *circuitbreaker.CircuitBreaker

	mu           sync.Mutex
	running      bool
	outgoing     []domain.SignalingEnvelope
	lastReceived int

	inbox inbox

	done chan struct{}

	logger *zap.SugaredLogger
}

// NewHTTPPollTransport starts polling rawURL. A fresh uniqueid query parameter
// identifies this client to the host for the lifetime of the transport.
func NewHTTPPollTransport(rawURL string, opts Options, logger *zap.SugaredLogger) (*HTTPPollTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signaling url %q: %w", rawURL, err)
	}
	q := u.Query()
	q.Add("uniqueid", uuid.NewString())
	u.RawQuery = q.Encode()

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: opts.DialTimeout}
	}

	t := &HTTPPollTransport{
		url:      u.String(),
		client:   client,
		header:   opts.header(),
		interval: opts.PollInterval,
		breaker:  circuitbreaker.New(opts.Breaker),
		running:  true,
		done:     make(chan struct{}),
		logger:   logger,
	}
	t.breaker.OnStateChange(func(from, to circuitbreaker.State) {
		logger.Warnw("signaling poll circuit changed state", "url", rawURL, "from", from.String(), "to", to.String())
	})

	go t.pollLoop()
	return t, nil
}

// Send queues env for the next flush.
func (t *HTTPPollTransport) Send(env domain.SignalingEnvelope) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return domain.ErrTransportClosed
	}
	t.outgoing = append(t.outgoing, env)
	return nil
}

func (t *HTTPPollTransport) OnReceive(handler func(domain.SignalingEnvelope)) {
	t.inbox.setHandler(handler)
}

// Close stops accepting new envelopes. Polling continues until the queue is
// flushed and the host has nothing more to say.
func (t *HTTPPollTransport) Close() error {
	t.mu.Lock()
	t.running = false
	t.mu.Unlock()
	return nil
}

func (t *HTTPPollTransport) Done() <-chan struct{} {
	return t.done
}

// URL returns the polled endpoint including the uniqueid parameter.
func (t *HTTPPollTransport) URL() string {
	return t.url
}

func (t *HTTPPollTransport) pollLoop() {
	defer close(t.done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	drained := 0
	for {
		<-ticker.C

		t.mu.Lock()
		if !t.running {
			if len(t.outgoing) == 0 && t.lastReceived == 0 {
				t.mu.Unlock()
				return
			}
			drained++
			if drained > maxDrainRounds {
				t.logger.Warnw("giving up on signaling drain", "url", t.url, "unsent", len(t.outgoing))
				t.mu.Unlock()
				return
			}
		}
		batch := t.outgoing
		t.outgoing = nil
		t.mu.Unlock()

		var received []domain.SignalingEnvelope
		err := t.breaker.Execute(context.Background(), func() error {
			var err error
			received, err = t.exchange(batch)
			return err
		})
		if err != nil {
			t.requeue(batch)
			if !errors.Is(err, circuitbreaker.ErrOpen) {
				t.logger.Warnw("signaling poll failed", "url", t.url, "error", err)
			}
			continue
		}

		t.mu.Lock()
		t.lastReceived = len(received)
		t.mu.Unlock()

		for _, env := range received {
			t.inbox.deliver(env)
		}
	}
}

func (t *HTTPPollTransport) requeue(batch []domain.SignalingEnvelope) {
	if len(batch) == 0 {
		return
	}
	t.mu.Lock()
	t.outgoing = append(batch, t.outgoing...)
	t.mu.Unlock()
}

func (t *HTTPPollTransport) exchange(batch []domain.SignalingEnvelope) ([]domain.SignalingEnvelope, error) {
	if batch == nil {
		batch = []domain.SignalingEnvelope{}
	}
	body, err := json.Marshal(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to encode signaling batch: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	for k, v := range t.header {
		req.Header[k] = v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read signaling response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("signaling host returned %d: %s", resp.StatusCode, bytes.TrimSpace(data))
	}

	var received []domain.SignalingEnvelope
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	if err := json.Unmarshal(data, &received); err != nil {
		return nil, fmt.Errorf("%w: signaling response: %v", domain.ErrMalformedMessage, err)
	}
	return received, nil
}
