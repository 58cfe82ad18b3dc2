package realtime

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultChannel   = "parking:events"
	defaultQueueSize = 256
	publishTimeout   = 2 * time.Second
)

// relayMessage is the envelope exchanged between service instances.
type relayMessage struct {
	Origin  string          `json:"origin"`
	OwnerID string          `json:"ownerId"`
	Frame   json.RawMessage `json:"frame"`
}

// RedisBroadcaster delivers events to local clients and relays them over a
// redis channel so other instances reach their own clients.
type RedisBroadcaster struct {
	client   *redis.Client
	channel  string
	hub      *Hub
	origin   string
	queue    chan relayMessage
	observer Observer
	logger   *zap.Logger
}

// NewRedisBroadcaster builds a broadcaster; Run must be started for relaying.
func NewRedisBroadcaster(client *redis.Client, channel string, hub *Hub, observer Observer, logger *zap.Logger) *RedisBroadcaster {
	if channel == "" {
		channel = defaultChannel
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisBroadcaster{
		client:   client,
		channel:  channel,
		hub:      hub,
		origin:   uuid.NewString(),
		queue:    make(chan relayMessage, defaultQueueSize),
		observer: observer,
		logger:   logger,
	}
}

// Publish delivers locally at once and queues the relay. A full queue drops the relay.
func (b *RedisBroadcaster) Publish(_ context.Context, ownerID, event string, payload interface{}) {
	frame, err := Encode(event, payload)
	if err != nil {
		b.logger.Warn("failed to encode realtime event", zap.String("event", event), zap.Error(err))
		return
	}
	b.hub.Deliver(ownerID, frame)

	select {
	case b.queue <- relayMessage{Origin: b.origin, OwnerID: ownerID, Frame: frame}:
	default:
		if b.observer != nil {
			b.observer.EventDropped()
		}
		b.logger.Warn("dropping realtime relay, queue full", zap.String("owner_id", ownerID))
	}
}

// Run subscribes to the channel and drains the relay queue until ctx is done.
func (b *RedisBroadcaster) Run(ctx context.Context) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	incoming := pubsub.Channel()
	b.logger.Info("realtime relay subscribed", zap.String("channel", b.channel))

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-incoming:
			if !ok {
				return nil
			}
			b.handle([]byte(msg.Payload))
		case out := <-b.queue:
			b.relay(ctx, out)
		}
	}
}

func (b *RedisBroadcaster) relay(ctx context.Context, out relayMessage) {
	data, err := json.Marshal(out)
	if err != nil {
		b.logger.Warn("failed to encode relay message", zap.Error(err))
		return
	}
	pctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := b.client.Publish(pctx, b.channel, data).Err(); err != nil {
		b.logger.Warn("failed to relay realtime event", zap.String("owner_id", out.OwnerID), zap.Error(err))
	}
}

// handle delivers a relayed frame from another instance to local clients.
func (b *RedisBroadcaster) handle(payload []byte) {
	var msg relayMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		b.logger.Warn("discarding malformed relay message", zap.Error(err))
		return
	}
	if msg.Origin == b.origin || msg.OwnerID == "" {
		return
	}
	b.hub.Deliver(msg.OwnerID, msg.Frame)
}
