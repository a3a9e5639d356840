// Package racecache puts read-through caches in front of a ledger.RaceCatalog.
// Bet placement reads races through these; settlement reads the store directly.
package racecache

import (
	"context"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Invalidator drops a cached race so the next lookup reads through.
type Invalidator interface {
	Invalidate(ctx context.Context, raceID ledger.RaceID) error
}

// LocalCatalog is an in-process LRU with per-entry expiry.
type LocalCatalog struct {
	next ledger.RaceCatalog
	lru  *expirable.LRU[string, ledger.Race]
}

// NewLocal caches up to size races from next for ttl.
func NewLocal(next ledger.RaceCatalog, size int, ttl time.Duration) *LocalCatalog {
	return &LocalCatalog{
		next: next,
		lru:  expirable.NewLRU[string, ledger.Race](size, nil, ttl),
	}
}

// LookupRace implements ledger.RaceCatalog.
func (catalog *LocalCatalog) LookupRace(ctx context.Context, raceID ledger.RaceID) (ledger.Race, error) {
	if race, found := catalog.lru.Get(raceID.String()); found {
		return race, nil
	}
	race, err := catalog.next.LookupRace(ctx, raceID)
	if err != nil {
		return ledger.Race{}, err
	}
	catalog.lru.Add(raceID.String(), race)
	return race, nil
}

// Invalidate removes raceID here and in any cache below.
func (catalog *LocalCatalog) Invalidate(ctx context.Context, raceID ledger.RaceID) error {
	catalog.lru.Remove(raceID.String())
	if next, ok := catalog.next.(Invalidator); ok {
		return next.Invalidate(ctx, raceID)
	}
	return nil
}

// Len reports the number of cached races.
func (catalog *LocalCatalog) Len() int {
	return catalog.lru.Len()
}
