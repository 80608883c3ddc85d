package signal

import (
	"net/http"
	"time"

	"remotedesk/pkg/circuitbreaker"
	"remotedesk/pkg/config"
	"remotedesk/pkg/retry"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Options tunes both signaling transports.
type Options struct {
	Token        string
	PingInterval time.Duration
	PollInterval time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration

	Retry   retry.Config
	Breaker circuitbreaker.Config

	// HTTPClient is used by the polling transport; nil means a client with
	// DialTimeout as its request timeout.
	HTTPClient *http.Client
}

// DefaultOptions returns the timings used when none are configured.
func DefaultOptions() Options {
	return Options{
		PingInterval: time.Second,
		PollInterval: time.Second,
		DialTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Second,
		Retry:        retry.DefaultConfig(),
		Breaker:      circuitbreaker.DefaultConfig(),
	}
}

// OptionsFromConfig builds transport options from the signaling section.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := DefaultOptions()
	opts.Token = cfg.Signaling.Token
	opts.PingInterval = cfg.Signaling.PingInterval
	opts.PollInterval = cfg.Signaling.PollInterval
	opts.DialTimeout = cfg.Signaling.DialTimeout
	if cfg.Signaling.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.Signaling.WriteTimeout
	}
	return opts
}

func (o Options) header() http.Header {
	h := http.Header{}
	if o.Token != "" {
		h.Set("Authorization", "Bearer "+o.Token)
	}
	return h
}

// inspectToken logs the expiry of a JWT signaling token. The signature is not
// checked; only the host can do that.
func inspectToken(token string, logger *zap.SugaredLogger) {
	if token == "" {
		return
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		logger.Debugw("signaling token is not a JWT", "error", err)
		return
	}

	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return
	}
	if remaining := time.Until(exp.Time); remaining <= 0 {
		logger.Warnw("signaling token already expired", "expired_at", exp.Time)
	} else {
		logger.Debugw("signaling token expiry", "expires_in", remaining.Round(time.Second))
	}
}
