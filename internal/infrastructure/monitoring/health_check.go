package monitoring

import (
	"context"
	"sort"
	"sync"
	"time"

	"remotedesk/internal/core/domain"

	"github.com/redis/go-redis/v9"
)

// Check reports whether one dependency is usable.
type Check func(ctx context.Context) error

type namedCheck struct {
	name     string
	check    Check
	timeout  time.Duration
	critical bool
}

// HealthStatus is the JSON body served on the health endpoints.
type HealthStatus struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
}

const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// HealthChecker aggregates dependency checks. A failing critical check makes
// the client unhealthy; any other failure only degrades it.
type HealthChecker struct {
	mu     sync.RWMutex
	checks []namedCheck
}

// NewHealthChecker creates a checker with no checks registered.
func NewHealthChecker() *HealthChecker {
	return &HealthChecker{}
}

// AddCheck registers check. A failing critical check makes the client unhealthy,
// a failing non-critical one only degrades it.
func (h *HealthChecker) AddCheck(name string, check Check, timeout time.Duration, critical bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checks = append(h.checks, namedCheck{name: name, check: check, timeout: timeout, critical: critical})
}

// StateSource reports the state of a stream kind.
type StateSource func(kind domain.StreamKind) domain.SessionState

// AddSessionCheck fails while the session of kind is not connected.
func (h *HealthChecker) AddSessionCheck(kind domain.StreamKind, state StateSource, critical bool) {
	h.AddCheck(string(kind)+"_session", func(context.Context) error {
		if s := state(kind); s != domain.StateConnected {
			return &sessionNotConnected{kind: kind, state: s}
		}
		return nil
	}, time.Second, critical)
}

// AddRedisCheck pings the telemetry redis.
func (h *HealthChecker) AddRedisCheck(client redis.UniversalClient, timeout time.Duration) {
	h.AddCheck("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	}, timeout, false)
}

// CheckAll runs every check in name order and aggregates the result.
func (h *HealthChecker) CheckAll(ctx context.Context) HealthStatus {
	h.mu.RLock()
	checks := append([]namedCheck(nil), h.checks...)
	h.mu.RUnlock()

	sort.Slice(checks, func(i, j int) bool { return checks[i].name < checks[j].name })

	status := HealthStatus{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Checks:    make(map[string]string, len(checks)),
	}
	for _, c := range checks {
		if err := h.run(ctx, c); err != nil {
			status.Checks[c.name] = err.Error()
			if c.critical {
				status.Status = StatusUnhealthy
			} else if status.Status == StatusHealthy {
				status.Status = StatusDegraded
			}
			continue
		}
		status.Checks[c.name] = StatusHealthy
	}
	return status
}

func (h *HealthChecker) run(ctx context.Context, c namedCheck) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.check(ctx)
}

// IsReady reports whether no critical check fails.
func (h *HealthChecker) IsReady(ctx context.Context) bool {
	return h.CheckAll(ctx).Status != StatusUnhealthy
}

type sessionNotConnected struct {
	kind  domain.StreamKind
	state domain.SessionState
}

func (e *sessionNotConnected) Error() string {
	return string(e.kind) + " session is " + e.state.String()
}
