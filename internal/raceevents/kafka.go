// Package raceevents connects the ledger to Kafka: it consumes race results
// to trigger settlement and publishes bet lifecycle events.
package raceevents

import (
	"context"
	"time"

	"github.com/segmentio/kafka-go"
)

const (
	// TopicRaceResults carries RaceResultRecord payloads keyed by race id.
	TopicRaceResults = "race_results"
	// TopicBetEvents carries Event payloads keyed by account id.
	TopicBetEvents = "bet_events"

	readerMinBytes       = 1
	readerMaxBytes       = 10e6
	readerCommitInterval = 0
)

// MessageReader is the part of *kafka.Reader the consumer needs.
type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// MessageWriter is the part of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, messages ...kafka.Message) error
	Close() error
}

// NewWriter returns a writer for topic on brokers.
func NewWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
		BatchTimeout:           50 * time.Millisecond,
	}
}

// NewReader returns a consumer-group reader with synchronous commits.
func NewReader(brokers []string, topic string, groupID string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:        brokers,
		Topic:          topic,
		GroupID:        groupID,
		MinBytes:       readerMinBytes,
		MaxBytes:       readerMaxBytes,
		CommitInterval: readerCommitInterval,
	})
}
