package middleware

import (
	"net"
	"net/http"
	"sync"

	"remotedesk/pkg/config"
	"remotedesk/pkg/errors"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// limiterSet keeps one token bucket per caller address.
type limiterSet struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

func newLimiterSet(limit rate.Limit, burst int) *limiterSet {
	return &limiterSet{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		burst:    burst,
	}
}

func (s *limiterSet) get(key string) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.limiters[key]
	if !ok {
		l = rate.NewLimiter(s.limit, s.burst)
		s.limiters[key] = l
	}
	return l
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit throttles control API callers per remote host. Input endpoints
// are hit at pointer-move frequency, so the bucket is sized for bursts.
func RateLimit(cfg *config.Config) gin.HandlerFunc {
	if cfg.Control.RequestsPerSecond <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	set := newLimiterSet(rate.Limit(cfg.Control.RequestsPerSecond), cfg.Control.Burst)

	return func(c *gin.Context) {
		if !set.get(remoteHost(c.Request)).Allow() {
			appErr := errors.NewRateLimitError()
			c.AbortWithStatusJSON(appErr.HTTPStatus, gin.H{
				"error":   string(appErr.Code),
				"message": appErr.Message,
			})
			return
		}
		c.Next()
	}
}
