package signal

import (
	"context"
	"fmt"
	"net/url"

	"remotedesk/internal/core/ports"

	"go.uber.org/zap"
)

// Dial picks the transport from the URL scheme: ws/wss get a websocket,
// http/https get the batch poller.
func Dial(ctx context.Context, rawURL string, opts Options, logger *zap.SugaredLogger) (ports.SignalingTransport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid signaling url %q: %w", rawURL, err)
	}

	inspectToken(opts.Token, logger)

	switch u.Scheme {
	case "ws", "wss":
		return DialWebSocket(ctx, rawURL, opts, logger)
	case "http", "https":
		return NewHTTPPollTransport(rawURL, opts, logger)
	default:
		return nil, fmt.Errorf("unsupported signaling scheme %q", u.Scheme)
	}
}
