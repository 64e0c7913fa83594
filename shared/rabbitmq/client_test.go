package rabbitmq

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	tests := []struct {
		name    string
		base    time.Duration
		mult    float64
		attempt int
		want    time.Duration
	}{
		{name: "first attempt", base: 100 * time.Millisecond, mult: 2, attempt: 0, want: 100 * time.Millisecond},
		{name: "second attempt", base: 100 * time.Millisecond, mult: 2, attempt: 1, want: 200 * time.Millisecond},
		{name: "third attempt", base: 100 * time.Millisecond, mult: 2, attempt: 2, want: 400 * time.Millisecond},
		{name: "custom multiplier", base: time.Second, mult: 1.5, attempt: 2, want: 2250 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, backoffDelay(tt.base, tt.mult, tt.attempt))
		})
	}
}

func TestRetryPolicy_Defaults(t *testing.T) {
	c := &Client{config: &Config{}}
	retries, delay, mult := c.retryPolicy()
	assert.Equal(t, 3, retries)
	assert.Equal(t, 100*time.Millisecond, delay)
	assert.Equal(t, 2.0, mult)

	c = &Client{config: &Config{PublishRetries: 5, PublishRetryDelay: time.Second, PublishBackoffMult: 3}}
	retries, delay, mult = c.retryPolicy()
	assert.Equal(t, 5, retries)
	assert.Equal(t, time.Second, delay)
	assert.Equal(t, 3.0, mult)
}

func TestExpiration(t *testing.T) {
	assert.Equal(t, "5000", expiration(5*time.Second))
	assert.Equal(t, "250", expiration(250*time.Millisecond))
	assert.Equal(t, "0", expiration(-time.Second))
}

func TestDelayQueue(t *testing.T) {
	c := &Client{config: &Config{QueueName: "reconcile_queue", ExchangeName: "photoshot_exchange", RoutingKey: "prediction.reconcile"}}

	assert.Equal(t, "reconcile_queue.delay", c.delayQueueName())
	args := c.delayQueueArgs()
	assert.Equal(t, "photoshot_exchange", args["x-dead-letter-exchange"])
	assert.Equal(t, "prediction.reconcile", args["x-dead-letter-routing-key"])
}

func TestClient_NotConnected(t *testing.T) {
	c := &Client{config: &Config{}, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
	ctx := context.Background()

	assert.ErrorIs(t, c.PublishWithRetry(ctx, []byte("{}"), "application/json"), ErrNotConnected)
	assert.ErrorIs(t, c.PublishJSON(ctx, map[string]string{"a": "b"}), ErrNotConnected)
	assert.ErrorIs(t, c.PublishDelayed(ctx, []byte("{}"), "application/json", time.Second), ErrNotConnected)
	assert.ErrorIs(t, c.Qos(4), ErrNotConnected)

	_, err := c.Consume("tag")
	assert.ErrorIs(t, err, ErrNotConnected)
	assert.False(t, c.IsConnected())
}

func TestPublishJSON_MarshalError(t *testing.T) {
	c := &Client{config: &Config{}, isConnected: true, logger: slog.New(slog.NewTextHandler(io.Discard, nil))}

	err := c.PublishJSON(context.Background(), make(chan int))

	assert.ErrorContains(t, err, "failed to marshal message")
}
