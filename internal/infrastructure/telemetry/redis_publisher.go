package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"remotedesk/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Envelope is what goes over the telemetry channel.
type Envelope struct {
	Type      domain.MetricKind `json:"type"`
	ClientID  string            `json:"client_id"`
	Timestamp time.Time         `json:"timestamp"`
	Payload   json.RawMessage   `json:"payload"`
}

// RedisPublisher publishes QoS snapshots on a redis pub/sub channel and keeps
// the last snapshot of each kind under <channel>:last:<kind>.
type RedisPublisher struct {
	client   redis.UniversalClient
	channel  string
	clientID string
	lastTTL  time.Duration
	logger   *zap.SugaredLogger
}

// NewRedisPublisher publishes on channel, tagging envelopes with clientID.
func NewRedisPublisher(client redis.UniversalClient, channel, clientID string, logger *zap.SugaredLogger) *RedisPublisher {
	return &RedisPublisher{
		client:   client,
		channel:  channel,
		clientID: clientID,
		lastTTL:  time.Minute,
		logger:   logger,
	}
}

// Dial connects to the telemetry redis and checks it answers.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		WriteTimeout: time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach telemetry redis at %s: %w", addr, err)
	}
	return client, nil
}

// Publish sends payload to subscribers and keeps it as the last snapshot of kind.
func (p *RedisPublisher) Publish(ctx context.Context, kind domain.MetricKind, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s metric: %w", kind, err)
	}
	data, err := json.Marshal(Envelope{
		Type:      kind,
		ClientID:  p.clientID,
		Timestamp: time.Now(),
		Payload:   raw,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	pipe := p.client.Pipeline()
	pipe.Publish(ctx, p.channel, data)
	pipe.Set(ctx, p.lastKey(kind), data, p.lastTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to publish %s metric: %w", kind, err)
	}
	return nil
}

// lastKey keeps redis keys lowercase, e.g. remotedesk:qos:last:network.
func (p *RedisPublisher) lastKey(kind domain.MetricKind) string {
	return p.channel + ":last:" + strings.ToLower(string(kind))
}

// Last returns the most recent snapshot of kind, or nil when none is kept.
func (p *RedisPublisher) Last(ctx context.Context, kind domain.MetricKind) (*Envelope, error) {
	data, err := p.client.Get(ctx, p.lastKey(kind)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read last %s metric: %w", kind, err)
	}
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("failed to decode last %s metric: %w", kind, err)
	}
	return &env, nil
}

// Subscribe delivers envelopes published on the channel until ctx ends.
// Envelopes sent by this client are skipped.
func (p *RedisPublisher) Subscribe(ctx context.Context, handler func(*Envelope)) error {
	sub := p.client.Subscribe(ctx, p.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", p.channel, err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var env Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				p.logger.Warnw("dropping malformed telemetry message", "error", err)
				continue
			}
			if env.ClientID == p.clientID {
				continue
			}
			handler(&env)
		}
	}
}
