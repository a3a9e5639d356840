package raceevents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second

	StageFetch  = "fetch"
	StageDecode = "decode"
	StageSettle = "settle"
	StageCommit = "commit"
)

// RaceSettler is satisfied by *ledger.SettlementProcessor.
type RaceSettler interface {
	SettleRace(ctx context.Context, result ledger.RaceResult) (ledger.SettlementReport, error)
}

// Consumer settles races as their results arrive. An offset is committed
// only after SettleRace succeeds; malformed messages are committed and
// dropped.
type Consumer struct {
	Log     *zap.Logger
	Reader  MessageReader
	Settler RaceSettler

	InitialBackoff time.Duration
	MaxBackoff     time.Duration

	OnSettled func(report ledger.SettlementReport)
	OnError   func(stage string)

	sleep func(ctx context.Context, delay time.Duration) error
}

// Run consumes until ctx is cancelled.
func (consumer *Consumer) Run(ctx context.Context) error {
	backoff := consumer.initialBackoff()
	for {
		message, err := consumer.Reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			consumer.Log.Warn("kafka fetch failed", zap.Error(err))
			consumer.reportError(StageFetch)
			if err := consumer.wait(ctx, backoff); err != nil {
				return err
			}
			backoff = consumer.nextBackoff(backoff)
			continue
		}
		backoff = consumer.initialBackoff()
		if err := consumer.handle(ctx, message); err != nil {
			return err
		}
	}
}

// handle settles one message, retrying until it succeeds, is rejected as
// invalid, or ctx ends.
func (consumer *Consumer) handle(ctx context.Context, message kafka.Message) error {
	result, err := decodeResult(message.Value)
	if err != nil {
		consumer.Log.Warn("dropping race result",
			zap.String("key", string(message.Key)),
			zap.Int64("offset", message.Offset),
			zap.Error(err))
		consumer.reportError(StageDecode)
		return consumer.commit(ctx, message)
	}

	backoff := consumer.initialBackoff()
	for {
		report, err := consumer.Settler.SettleRace(ctx, result)
		if err == nil {
			consumer.Log.Info("race settled",
				zap.String("race_id", result.RaceID.String()),
				zap.Int("won", report.Won),
				zap.Int("lost", report.Lost),
				zap.Int("refunded", report.Refunded),
				zap.Int64("total_paid", report.TotalPaid.Int64()))
			if consumer.OnSettled != nil {
				consumer.OnSettled(report)
			}
			return consumer.commit(ctx, message)
		}
		if ledger.Category(err) == ledger.CategoryValidation {
			consumer.Log.Warn("dropping unsettleable race result",
				zap.String("race_id", result.RaceID.String()),
				zap.Error(err))
			consumer.reportError(StageDecode)
			return consumer.commit(ctx, message)
		}
		consumer.Log.Warn("settlement failed, retrying",
			zap.String("race_id", result.RaceID.String()),
			zap.Duration("backoff", backoff),
			zap.Error(err))
		consumer.reportError(StageSettle)
		if err := consumer.wait(ctx, backoff); err != nil {
			return err
		}
		backoff = consumer.nextBackoff(backoff)
	}
}

func (consumer *Consumer) commit(ctx context.Context, message kafka.Message) error {
	if err := consumer.Reader.CommitMessages(ctx, message); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		consumer.Log.Error("kafka commit failed", zap.Int64("offset", message.Offset), zap.Error(err))
		consumer.reportError(StageCommit)
	}
	return nil
}

func decodeResult(payload []byte) (ledger.RaceResult, error) {
	var record ledger.RaceResultRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return ledger.RaceResult{}, fmt.Errorf("%w: %v", ledger.ErrInvalidRaceResult, err)
	}
	return record.Result()
}

func (consumer *Consumer) reportError(stage string) {
	if consumer.OnError != nil {
		consumer.OnError(stage)
	}
}

func (consumer *Consumer) initialBackoff() time.Duration {
	if consumer.InitialBackoff > 0 {
		return consumer.InitialBackoff
	}
	return defaultInitialBackoff
}

func (consumer *Consumer) nextBackoff(current time.Duration) time.Duration {
	maximum := consumer.MaxBackoff
	if maximum <= 0 {
		maximum = defaultMaxBackoff
	}
	next := current * 2
	if next > maximum {
		return maximum
	}
	return next
}

func (consumer *Consumer) wait(ctx context.Context, delay time.Duration) error {
	if consumer.sleep != nil {
		return consumer.sleep(ctx, delay)
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// IsStopped reports whether err is the normal result of cancelling Run.
func IsStopped(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
