package racecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/go-redis/redis/v8"
)

const (
	// SchemaVersion is bumped when RaceRecord changes shape so stale
	// entries are ignored.
	SchemaVersion  = "1"
	redisKeyPrefix = "racecoin:race:"
)

type redisEntry struct {
	Version  string            `json:"version"`
	Race     ledger.RaceRecord `json:"race"`
	CachedAt time.Time         `json:"cached_at"`
}

// RedisCatalog shares cached races between processes.
type RedisCatalog struct {
	next   ledger.RaceCatalog
	client *redis.Client
	ttl    time.Duration
	onErr  func(error)
}

// NewRedis caches races from next in client for ttl. onErr receives cache
// failures, which never fail a lookup; it may be nil.
func NewRedis(next ledger.RaceCatalog, client *redis.Client, ttl time.Duration, onErr func(error)) *RedisCatalog {
	if onErr == nil {
		onErr = func(error) {}
	}
	return &RedisCatalog{next: next, client: client, ttl: ttl, onErr: onErr}
}

// LookupRace implements ledger.RaceCatalog.
func (catalog *RedisCatalog) LookupRace(ctx context.Context, raceID ledger.RaceID) (ledger.Race, error) {
	key := redisKey(raceID)
	payload, err := catalog.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		race, decodeErr := decodeEntry(payload)
		if decodeErr == nil {
			return race, nil
		}
		catalog.onErr(fmt.Errorf("racecache: decode %s: %w", key, decodeErr))
	case !errors.Is(err, redis.Nil):
		catalog.onErr(fmt.Errorf("racecache: get %s: %w", key, err))
	}

	race, err := catalog.next.LookupRace(ctx, raceID)
	if err != nil {
		return ledger.Race{}, err
	}
	encoded, err := json.Marshal(redisEntry{Version: SchemaVersion, Race: race.Record(), CachedAt: time.Now().UTC()})
	if err != nil {
		catalog.onErr(fmt.Errorf("racecache: encode %s: %w", key, err))
		return race, nil
	}
	if err := catalog.client.Set(ctx, key, string(encoded), catalog.ttl).Err(); err != nil {
		catalog.onErr(fmt.Errorf("racecache: set %s: %w", key, err))
	}
	return race, nil
}

// Invalidate deletes the shared entry for raceID.
func (catalog *RedisCatalog) Invalidate(ctx context.Context, raceID ledger.RaceID) error {
	if err := catalog.client.Del(ctx, redisKey(raceID)).Err(); err != nil {
		return fmt.Errorf("racecache: del %s: %w", redisKey(raceID), err)
	}
	if next, ok := catalog.next.(Invalidator); ok {
		return next.Invalidate(ctx, raceID)
	}
	return nil
}

func redisKey(raceID ledger.RaceID) string {
	return redisKeyPrefix + raceID.String()
}

func decodeEntry(payload []byte) (ledger.Race, error) {
	var entry redisEntry
	if err := json.Unmarshal(payload, &entry); err != nil {
		return ledger.Race{}, err
	}
	if entry.Version != SchemaVersion {
		return ledger.Race{}, fmt.Errorf("schema version %q", entry.Version)
	}
	return entry.Race.Race()
}
