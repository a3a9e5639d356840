package raceevents

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/segmentio/kafka-go"
)

// Event types published on TopicBetEvents.
const (
	EventBetPlaced  = "bet_placed"
	EventBetSettled = "bet_settled"

	headerEventType = "event_type"
)

// Event is the envelope written for every bet transition.
type Event struct {
	Type       string           `json:"type"`
	OccurredAt time.Time        `json:"occurred_at"`
	Bet        ledger.BetRecord `json:"bet"`
}

// Publisher implements ledger.EventPublisher on a Kafka writer.
type Publisher struct {
	writer MessageWriter
	clock  func() time.Time
}

// NewPublisher wraps writer. clock defaults to time.Now.
func NewPublisher(writer MessageWriter, clock func() time.Time) *Publisher {
	if clock == nil {
		clock = time.Now
	}
	return &Publisher{writer: writer, clock: clock}
}

// PublishBetPlaced implements ledger.EventPublisher.
func (publisher *Publisher) PublishBetPlaced(ctx context.Context, bet ledger.Bet) error {
	return publisher.publish(ctx, EventBetPlaced, bet)
}

// PublishBetSettled implements ledger.EventPublisher.
func (publisher *Publisher) PublishBetSettled(ctx context.Context, bet ledger.Bet) error {
	return publisher.publish(ctx, EventBetSettled, bet)
}

func (publisher *Publisher) publish(ctx context.Context, eventType string, bet ledger.Bet) error {
	payload, err := json.Marshal(Event{Type: eventType, OccurredAt: publisher.clock().UTC(), Bet: bet.Record()})
	if err != nil {
		return fmt.Errorf("raceevents: encode %s: %w", eventType, err)
	}
	err = publisher.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(bet.AccountID.String()),
		Value:   payload,
		Headers: []kafka.Header{{Key: headerEventType, Value: []byte(eventType)}},
	})
	if err != nil {
		return fmt.Errorf("raceevents: write %s: %w", eventType, err)
	}
	return nil
}

// Close closes the underlying writer.
func (publisher *Publisher) Close() error {
	return publisher.writer.Close()
}
