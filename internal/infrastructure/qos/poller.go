package qos

import (
	"context"
	"sync"
	"time"

	"remotedesk/internal/core/domain"

	"go.uber.org/zap"
)

// Source produces one raw metric report per call.
type Source func() domain.MetricReport

// Poller samples a Source on a fixed interval and forwards new snapshots.
// Forwarding happens on the poller's goroutine, so the sink sees reports of
// one session strictly in order.
type Poller struct {
	interval time.Duration
	source   Source
	sink     func(domain.MetricReport)
	filter   TimestampFilter

	mu      sync.Mutex
	started bool
	stopped bool
	stop    chan struct{}
	done    chan struct{}

	logger *zap.SugaredLogger
}

// NewPoller creates a poller reading source every interval. Call Start to run it.
func NewPoller(interval time.Duration, source Source, sink func(domain.MetricReport), logger *zap.SugaredLogger) *Poller {
	return &Poller{
		interval: interval,
		source:   source,
		sink:     sink,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger,
	}
}

// Start runs the polling loop until ctx is done or Stop is called.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started || p.stopped {
		return
	}
	p.started = true
	go p.run(ctx)
}

func (p *Poller) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stop:
			return
		case <-ticker.C:
			p.poll()
		}
	}
}

func (p *Poller) poll() {
	report := p.filter.Apply(p.source())
	if report.Empty() {
		return
	}
	p.logger.Debugw("qos snapshot",
		"network", report.Network != nil,
		"audio", report.Audio != nil,
		"video", report.Video != nil,
	)
	p.sink(report)
}

// Stop halts polling and waits for an in-flight poll to finish. Safe to call
// from any goroutine except the sink itself.
func (p *Poller) Stop() {
	p.mu.Lock()
	started := p.started
	if !p.stopped {
		p.stopped = true
		close(p.stop)
	}
	p.mu.Unlock()

	if started {
		<-p.done
	}
}
