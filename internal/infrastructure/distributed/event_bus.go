package distributed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"streamcast/internal/core/domain"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "streamcast:events"

// Envelope wraps a lifecycle event with the instance that produced it.
type Envelope struct {
	InstanceID string                `json:"instance_id"`
	Timestamp  time.Time             `json:"timestamp"`
	Event      domain.LifecycleEvent `json:"event"`
}

// EventBus fans lifecycle events out to the other signal instances over
// Redis pub/sub. It implements ports.EventPublisher.
type EventBus struct {
	client     redis.UniversalClient
	instanceID string
	channel    string
	logger     *zap.SugaredLogger

	mu     sync.Mutex
	pubsub *redis.PubSub
}

func NewEventBus(client redis.UniversalClient, instanceID, channel string, logger *zap.SugaredLogger) *EventBus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &EventBus{
		client:     client,
		instanceID: instanceID,
		channel:    channel,
		logger:     logger,
	}
}

func (eb *EventBus) InstanceID() string {
	return eb.instanceID
}

func (eb *EventBus) Publish(ctx context.Context, event domain.LifecycleEvent) error {
	data, err := json.Marshal(Envelope{
		InstanceID: eb.instanceID,
		Timestamp:  time.Now().UTC(),
		Event:      event,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := eb.client.Publish(ctx, eb.channel, data).Err(); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	eb.logger.Debugw("published event",
		"type", event.Type,
		"socket_id", event.SocketID,
		"stream_ids", event.StreamIDs,
	)
	return nil
}

// Subscribe delivers events published by other instances to handler until ctx
// is done or the bus is closed. Only one subscription is allowed.
func (eb *EventBus) Subscribe(ctx context.Context, handler func(Envelope) error) error {
	eb.mu.Lock()
	if eb.pubsub != nil {
		eb.mu.Unlock()
		return fmt.Errorf("already subscribed")
	}
	pubsub := eb.client.Subscribe(ctx, eb.channel)
	eb.pubsub = pubsub
	eb.mu.Unlock()

	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			eb.dispatch(msg.Payload, handler)
		}
	}
}

func (eb *EventBus) dispatch(payload string, handler func(Envelope) error) {
	var env Envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		eb.logger.Warnw("failed to unmarshal event",
			"error", err,
			"payload", payload,
		)
		return
	}

	if env.InstanceID == eb.instanceID {
		return
	}

	if err := handler(env); err != nil {
		eb.logger.Warnw("error handling event",
			"type", env.Event.Type,
			"instance_id", env.InstanceID,
			"error", err,
		)
	}
}

func (eb *EventBus) Close() error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	if eb.pubsub != nil {
		return eb.pubsub.Close()
	}
	return nil
}
