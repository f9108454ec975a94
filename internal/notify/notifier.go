// Package notify publishes catalog-change events over Redis pub/sub. The UI
// layer subscribes to the per-account channel to refresh its recording list.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	channelPrefix  = "recordings:"
	publishTimeout = 5 * time.Second
)

// Recording lifecycle events.
const (
	EventRecordingCreated  = "recording.created"
	EventRecordingUpdated  = "recording.updated"
	EventRecordingMigrated = "recording.migrated"
	EventOriginDeleted     = "recording.origin_deleted"
)

// Publisher emits recording lifecycle events. Publishing is best-effort;
// implementations log failures and never block the pipeline.
type Publisher interface {
	PublishRecordingEvent(ctx context.Context, accountID, event string, recordingID uuid.UUID)
}

type payload struct {
	Event       string `json:"event"`
	RecordingID string `json:"recording_id"`
	At          int64  `json:"at"`
}

// RedisPublisher implements Publisher over Redis pub/sub.
type RedisPublisher struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRedisPublisher creates a Redis-backed event publisher.
func NewRedisPublisher(client *redis.Client, logger *zap.Logger) *RedisPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisPublisher{client: client, logger: logger}
}

// PublishRecordingEvent publishes to the account's channel.
func (p *RedisPublisher) PublishRecordingEvent(ctx context.Context, accountID, event string, recordingID uuid.UUID) {
	body, err := json.Marshal(payload{Event: event, RecordingID: recordingID.String(), At: time.Now().Unix()})
	if err != nil {
		p.logger.Warn("marshal event", zap.Error(err))
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := p.client.Publish(pubCtx, channelPrefix+accountID, body).Err(); err != nil {
		p.logger.Warn("publish event failed",
			zap.String("event", event),
			zap.String("account_id", accountID),
			zap.Error(err))
	}
}

// Subscribe listens on an account's channel and calls handler per event.
// The returned cancel function stops the subscription.
func (p *RedisPublisher) Subscribe(accountID string, handler func(event, recordingID string)) (func(), error) {
	ctx, cancelCtx := context.WithCancel(context.Background())
	pubsub := p.client.Subscribe(ctx, channelPrefix+accountID)
	if _, err := pubsub.Receive(ctx); err != nil {
		cancelCtx()
		return nil, err
	}
	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var pl payload
				if err := json.Unmarshal([]byte(msg.Payload), &pl); err != nil {
					continue
				}
				handler(pl.Event, pl.RecordingID)
			}
		}
	}()
	return cancelCtx, nil
}

type nopPublisher struct{}

func (nopPublisher) PublishRecordingEvent(context.Context, string, string, uuid.UUID) {}

// Nop returns a Publisher that drops every event.
func Nop() Publisher { return nopPublisher{} }
