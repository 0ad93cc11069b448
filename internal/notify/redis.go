// Package notify publishes crew assignment events to Redis so other portal
// services can refresh phase views.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ChannelPhaseResync carries one event per affected job.
const ChannelPhaseResync = "EVENT_PHASE_RESYNC"

// Event is the published payload.
type Event struct {
	Type   string    `json:"type"`
	JobKey string    `json:"jobKey"`
	Date   string    `json:"date"`
	SentAt time.Time `json:"sentAt"`
}

// Publisher implements crew.Notifier over Redis pub/sub.
type Publisher struct {
	rdb     redis.UniversalClient
	channel string
	now     func() time.Time
}

// NewPublisher publishes on ChannelPhaseResync.
func NewPublisher(rdb redis.UniversalClient) *Publisher {
	return &Publisher{rdb: rdb, channel: ChannelPhaseResync, now: time.Now}
}

// PhaseResync publishes an event for jobKey on date.
func (p *Publisher) PhaseResync(ctx context.Context, jobKey, date string) error {
	payload, err := json.Marshal(Event{
		Type:   ChannelPhaseResync,
		JobKey: jobKey,
		Date:   date,
		SentAt: p.now().UTC(),
	})
	if err != nil {
		return err
	}
	if err := p.rdb.Publish(ctx, p.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", p.channel, err)
	}
	return nil
}
