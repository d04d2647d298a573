package services

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

type EventType string

const (
	EventPointsAwarded       EventType = "points_awarded"
	EventAchievementUnlocked EventType = "achievement_unlocked"
	EventRewardRedeemed      EventType = "reward_redeemed"
	EventRedemptionUpdated   EventType = "redemption_updated"
)

// Event is pushed for the notification service to fan out.
type Event struct {
	Type       EventType      `json:"type"`
	UserID     string         `json:"userId"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurredAt"`
}

// EventPublisher appends events to a Redis list. A nil client disables publishing.
type EventPublisher struct {
	redis *redis.Client
	queue string
}

func NewEventPublisher(redisClient *redis.Client, queue string) *EventPublisher {
	return &EventPublisher{redis: redisClient, queue: queue}
}

func (p *EventPublisher) Publish(ctx context.Context, event Event) error {
	if p == nil || p.redis == nil {
		return nil
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}
	if err := p.redis.RPush(ctx, p.queue, data).Err(); err != nil {
		return storageErr("publish event", err)
	}
	return nil
}

// publishBestEffort is used after commit; delivery failures never undo ledger state.
func (p *EventPublisher) publishBestEffort(ctx context.Context, event Event) {
	if err := p.Publish(ctx, event); err != nil {
		log.Printf("[EVENTS] Failed to publish %s for user %s: %v", event.Type, event.UserID, err)
	}
}
