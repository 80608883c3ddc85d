package telemetry

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"remotedesk/internal/core/domain"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func setupPublisher(t *testing.T, clientID string) (*RedisPublisher, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisPublisher(client, "remotedesk:qos", clientID, zaptest.NewLogger(t).Sugar()), mr
}

func TestRedisPublisher_PublishKeepsLast(t *testing.T) {
	pub, mr := setupPublisher(t, "client-a")
	ctx := context.Background()

	require.NoError(t, pub.Publish(ctx, domain.MetricNetwork, &domain.NetworkMetrics{Type: domain.MetricNetwork, CurrentRoundTripTime: 0.05}))
	require.NoError(t, pub.Publish(ctx, domain.MetricNetwork, &domain.NetworkMetrics{Type: domain.MetricNetwork, CurrentRoundTripTime: 0.07}))

	assert.True(t, mr.Exists("remotedesk:qos:last:network"))
	assert.Equal(t, []string{"remotedesk:qos:last:network"}, mr.Keys())

	env, err := pub.Last(ctx, domain.MetricNetwork)
	require.NoError(t, err)
	require.NotNil(t, env)
	assert.Equal(t, "client-a", env.ClientID)

	var n domain.NetworkMetrics
	require.NoError(t, json.Unmarshal(env.Payload, &n))
	assert.InDelta(t, 0.07, n.CurrentRoundTripTime, 1e-9)

	missing, err := pub.Last(ctx, domain.MetricAudio)
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRedisPublisher_SubscribeSkipsOwnMessages(t *testing.T) {
	mr := miniredis.RunT(t)
	newPub := func(id string) *RedisPublisher {
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = client.Close() })
		return NewRedisPublisher(client, "remotedesk:qos", id, zaptest.NewLogger(t).Sugar())
	}
	a, b := newPub("client-a"), newPub("client-b")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan *Envelope, 4)
	done := make(chan error, 1)
	go func() { done <- a.Subscribe(ctx, func(e *Envelope) { got <- e }) }()

	require.Eventually(t, func() bool {
		return len(mr.PubSubChannels("")) == 1
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, a.Publish(ctx, domain.MetricAudio, &domain.AudioMetrics{Type: domain.MetricAudio}))
	require.NoError(t, b.Publish(ctx, domain.MetricAudio, &domain.AudioMetrics{Type: domain.MetricAudio, TotalSamplesReceived: 480}))

	select {
	case env := <-got:
		assert.Equal(t, "client-b", env.ClientID)
		assert.Equal(t, domain.MetricAudio, env.Type)
	case <-time.After(time.Second):
		t.Fatal("no envelope delivered")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Empty(t, got)
}

func TestDial_Unreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()

	_, err := Dial(context.Background(), addr, "", 0)
	assert.Error(t, err)
}
