package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"coworking/internal/domain"
)

const DefaultRelayChannel = "coworking:slot-events"

// RedisRelay fans events out across instances: Publish goes to a Redis
// channel and every instance feeds what it receives into its local hub.
type RedisRelay struct {
	client  *redis.Client
	channel string
	hub     *Hub
	log     zerolog.Logger
}

type envelope struct {
	Type    string         `json:"type"`
	SpaceID int64          `json:"space_id"`
	Date    string         `json:"date"`
	Slots   []envelopeSlot `json:"slots"`
}

type envelopeSlot struct {
	SlotIndex int               `json:"slot_index"`
	Status    domain.SlotStatus `json:"status"`
	StartAt   time.Time         `json:"start_at"`
	EndAt     time.Time         `json:"end_at"`
	HolderID  int64             `json:"holder_id,omitempty"`
	HoldUntil *time.Time        `json:"hold_until,omitempty"`
}

// NewRedisClient parses a redis:// URL.
func NewRedisClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	return redis.NewClient(opts), nil
}

func NewRedisRelay(client *redis.Client, channel string, hub *Hub, log zerolog.Logger) *RedisRelay {
	if channel == "" {
		channel = DefaultRelayChannel
	}
	return &RedisRelay{
		client:  client,
		channel: channel,
		hub:     hub,
		log:     log.With().Str("component", "relay").Logger(),
	}
}

// Publish sends ev to every instance. If Redis is unreachable the event is
// still delivered to this instance's subscribers.
func (r *RedisRelay) Publish(ctx context.Context, ev Event) error {
	payload, err := json.Marshal(toEnvelope(ev))
	if err != nil {
		return fmt.Errorf("encode relay event: %w", err)
	}
	if err := r.client.Publish(ctx, r.channel, payload).Err(); err != nil {
		r.log.Warn().Err(err).Str("channel", ev.Channel.String()).Msg("redis publish failed, delivering locally")
		return r.hub.Publish(ctx, ev)
	}
	return nil
}

// Start subscribes and returns once the subscription is confirmed; events
// are consumed in the background until ctx is cancelled.
func (r *RedisRelay) Start(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				r.deliver(ctx, msg.Payload)
			}
		}
	}()
	return nil
}

func (r *RedisRelay) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisRelay) deliver(ctx context.Context, payload string) {
	var env envelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		r.log.Error().Err(err).Msg("decode relay event")
		return
	}
	if err := r.hub.Publish(ctx, fromEnvelope(env)); err != nil {
		r.log.Error().Err(err).Msg("deliver relay event")
	}
}

func toEnvelope(ev Event) envelope {
	env := envelope{
		Type:    ev.Type,
		SpaceID: ev.Channel.SpaceID,
		Date:    ev.Channel.Date,
		Slots:   make([]envelopeSlot, 0, len(ev.Slots)),
	}
	for _, s := range ev.Slots {
		env.Slots = append(env.Slots, envelopeSlot{
			SlotIndex: s.SlotIndex,
			Status:    s.Status,
			StartAt:   s.StartAt,
			EndAt:     s.EndAt,
			HolderID:  s.HolderID,
			HoldUntil: s.HoldUntil,
		})
	}
	return env
}

func fromEnvelope(env envelope) Event {
	ev := Event{
		Type:    env.Type,
		Channel: domain.ChannelKey{SpaceID: env.SpaceID, Date: env.Date},
		Slots:   make([]domain.SlotState, 0, len(env.Slots)),
	}
	for _, s := range env.Slots {
		ev.Slots = append(ev.Slots, domain.SlotState{
			SlotIndex: s.SlotIndex,
			Status:    s.Status,
			StartAt:   s.StartAt,
			EndAt:     s.EndAt,
			HolderID:  s.HolderID,
			HoldUntil: s.HoldUntil,
		})
	}
	return ev
}
