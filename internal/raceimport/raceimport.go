// Package raceimport loads race cards from YAML files into the race store.
package raceimport

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

// RaceWriter persists race cards.
type RaceWriter interface {
	UpsertRace(ctx context.Context, race ledger.Race) error
}

// Invalidator drops cached snapshots of a race.
type Invalidator interface {
	Invalidate(ctx context.Context, raceID ledger.RaceID) error
}

type raceFile struct {
	Races []ledger.RaceRecord `yaml:"races"`
}

// Parse decodes a race card document and validates every race in it.
// Nothing is returned unless the whole document is valid.
func Parse(data []byte) ([]ledger.Race, error) {
	var document raceFile
	if err := yaml.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("parse race card: %w", err)
	}
	if len(document.Races) == 0 {
		return nil, errors.New("race card lists no races")
	}
	races := make([]ledger.Race, 0, len(document.Races))
	seen := make(map[ledger.RaceID]struct{}, len(document.Races))
	for index, record := range document.Races {
		race, err := record.Race()
		if err != nil {
			return nil, fmt.Errorf("race at index %d: %w", index, err)
		}
		if len(race.Horses) == 0 {
			return nil, fmt.Errorf("race %s lists no horses", race.ID.String())
		}
		if _, duplicate := seen[race.ID]; duplicate {
			return nil, fmt.Errorf("race %s listed twice", race.ID.String())
		}
		seen[race.ID] = struct{}{}
		races = append(races, race)
	}
	return races, nil
}

// LoadFile reads and parses a race card file.
func LoadFile(path string) ([]ledger.Race, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("unable to read %s: %w", path, err)
	}
	races, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return races, nil
}

// Importer writes parsed races and invalidates their cached snapshots.
type Importer struct {
	races  RaceWriter
	cache  Invalidator
	logger *zap.Logger
}

// NewImporter builds an Importer. cache and logger may be nil.
func NewImporter(races RaceWriter, cache Invalidator, logger *zap.Logger) (*Importer, error) {
	if races == nil {
		return nil, errors.New("raceimport: race writer is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{races: races, cache: cache, logger: logger}, nil
}

// Import upserts races in order and stops at the first failure. It returns
// how many races were written.
func (importer *Importer) Import(ctx context.Context, races []ledger.Race) (int, error) {
	imported := 0
	for _, race := range races {
		if err := importer.races.UpsertRace(ctx, race); err != nil {
			return imported, fmt.Errorf("import race %s: %w", race.ID.String(), err)
		}
		if importer.cache != nil {
			if err := importer.cache.Invalidate(ctx, race.ID); err != nil {
				importer.logger.Warn("race cache invalidation failed", zap.String("race_id", race.ID.String()), zap.Error(err))
			}
		}
		importer.logger.Info("race imported",
			zap.String("race_id", race.ID.String()),
			zap.String("status", race.Status.String()),
			zap.Int("horses", len(race.Horses)))
		imported++
	}
	return imported, nil
}

// ImportFile loads path and imports its races.
func (importer *Importer) ImportFile(ctx context.Context, path string) (int, error) {
	races, err := LoadFile(path)
	if err != nil {
		return 0, err
	}
	return importer.Import(ctx, races)
}
