// Package events publishes committed mutations on a watermill bus and runs
// the subscribers that react to them.
//
// Events are emitted after the mutation's transaction commits and are
// advisory: a lost or failed publish never affects the mutation, and no
// subscriber is needed for correctness.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	rstream "github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// DefaultTopic carries MutationEvent messages.
const DefaultTopic = "setlogs.mutations"

// MutationEvent describes one committed mutation.
type MutationEvent struct {
	ID         string    `json:"id"`
	EntityType string    `json:"entity_type"`
	EntityID   string    `json:"entity_id"`
	UserID     string    `json:"user_id"`
	Kind       string    `json:"kind"`
	ExerciseID string    `json:"exercise_id,omitempty"`
	Stamp      int64     `json:"stamp,omitempty"`
	At         time.Time `json:"at"`
}

// Publisher is what services need to announce committed mutations.
type Publisher interface {
	Publish(ctx context.Context, ev MutationEvent)
}

// Bus pairs a watermill publisher and subscriber on one topic.
type Bus struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
	Topic      string
	Logger     watermill.LoggerAdapter
}

// NewMemoryBus returns an in-process bus backed by a watermill GoChannel.
func NewMemoryBus(topic string) *Bus {
	logger := NewZerologAdapter(log.Logger)
	ch := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 256}, logger)
	return &Bus{Publisher: ch, Subscriber: ch, Topic: topicOr(topic), Logger: logger}
}

// RedisConfig selects the stream consumer group of a Redis-backed bus.
type RedisConfig struct {
	Topic    string
	Group    string
	Consumer string
}

// NewRedisBus returns a bus backed by Redis Streams, so subscribers in other
// processes see the same events.
func NewRedisBus(client redis.UniversalClient, cfg RedisConfig) (*Bus, error) {
	logger := NewZerologAdapter(log.Logger)
	marshaler := rstream.DefaultMarshallerUnmarshaller{}

	pub, err := rstream.NewPublisher(rstream.PublisherConfig{
		Client:     client,
		Marshaller: marshaler,
	}, logger)
	if err != nil {
		return nil, err
	}
	sub, err := rstream.NewSubscriber(rstream.SubscriberConfig{
		Client:        client,
		Unmarshaller:  marshaler,
		ConsumerGroup: cfg.Group,
		Consumer:      cfg.Consumer,
	}, logger)
	if err != nil {
		_ = pub.Close()
		return nil, err
	}
	return &Bus{Publisher: pub, Subscriber: sub, Topic: topicOr(cfg.Topic), Logger: logger}, nil
}

func topicOr(t string) string {
	if t == "" {
		return DefaultTopic
	}
	return t
}

// Publish sends ev. Failures are logged and dropped.
func (b *Bus) Publish(ctx context.Context, ev MutationEvent) {
	if b == nil || b.Publisher == nil {
		return
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Error().Err(err).Msg("events: encode mutation")
		return
	}
	msg := message.NewMessage(ev.ID, payload)
	msg.SetContext(ctx)
	if err := b.Publisher.Publish(b.Topic, msg); err != nil {
		log.Warn().Err(err).Str("entity_type", ev.EntityType).Str("entity_id", ev.EntityID).Msg("events: publish failed")
	}
}

// Close closes the publisher and, when distinct, the subscriber.
func (b *Bus) Close() error {
	if b == nil {
		return nil
	}
	err := b.Publisher.Close()
	if b.Subscriber != nil && any(b.Subscriber) != any(b.Publisher) {
		if cerr := b.Subscriber.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Decode parses a MutationEvent message.
func Decode(msg *message.Message) (MutationEvent, error) {
	var ev MutationEvent
	err := json.Unmarshal(msg.Payload, &ev)
	return ev, err
}
