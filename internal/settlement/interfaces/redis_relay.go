package interfaces

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"retail-settlement/internal/eventing"
)

// DefaultRelayChannel is the pub/sub channel settlement events are relayed to.
const DefaultRelayChannel = "settlement.events"

// RedisRelay forwards dispatched settlement envelopes to a Redis pub/sub channel.
type RedisRelay struct {
	client  redis.Cmdable
	channel string
}

// NewRedisRelay constructs a relay. An empty channel uses DefaultRelayChannel.
func NewRedisRelay(client redis.Cmdable, channel string) (*RedisRelay, error) {
	if client == nil {
		return nil, errors.New("redis relay: nil client")
	}
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{client: client, channel: channel}, nil
}

// Handle publishes the envelope the event was dispatched with.
func (r *RedisRelay) Handle(ctx context.Context, event any) error {
	env, ok := eventing.EnvelopeFromContext(ctx)
	if !ok {
		built, err := eventing.BuildEnvelope(event, eventing.Meta{})
		if err != nil {
			return err
		}
		env = built
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.channel, payload).Err()
}
