package gormstore

import (
	"context"
	"errors"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// LookupRace implements ledger.RaceCatalog.
func (store *Store) LookupRace(ctx context.Context, raceID ledger.RaceID) (ledger.Race, error) {
	var model Race
	err := store.db.WithContext(ctx).
		Preload("Horses", func(query *gorm.DB) *gorm.DB { return query.Order("number ASC") }).
		Where("race_id = ?", raceID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ledger.Race{}, wrapStoreError(errorSubjectRace, errorCodeGet, ledger.ErrRaceNotFound)
		}
		return ledger.Race{}, wrapStoreError(errorSubjectRace, errorCodeGet, err)
	}
	race, err := mapRace(model)
	if err != nil {
		return ledger.Race{}, wrapDecodeError(errorSubjectRace, err)
	}
	return race, nil
}

// UpsertRace writes the race card and replaces its runners.
func (store *Store) UpsertRace(ctx context.Context, race ledger.Race) error {
	model := raceModel(race)
	horses := model.Horses
	model.Horses = nil
	err := store.db.WithContext(ctx).Transaction(func(transaction *gorm.DB) error {
		if err := transaction.
			Omit(clause.Associations).
			Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "race_id"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "venue", "race_number", "status", "betting_opens_at", "betting_closes_at", "starts_at", "updated_at"}),
			}).
			Create(&model).Error; err != nil {
			return err
		}
		if err := transaction.Where("race_id = ?", model.RaceID).Delete(&RaceHorse{}).Error; err != nil {
			return err
		}
		if len(horses) == 0 {
			return nil
		}
		return transaction.Create(&horses).Error
	})
	if err != nil {
		return wrapStoreError(errorSubjectRace, errorCodeUpsert, err)
	}
	return nil
}

// SetRaceStatus moves a race to status.
func (store *Store) SetRaceStatus(ctx context.Context, raceID ledger.RaceID, status ledger.RaceStatus) error {
	result := store.db.WithContext(ctx).
		Model(&Race{}).
		Where("race_id = ?", raceID.String()).
		Updates(map[string]any{"status": status.String(), "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return wrapStoreError(errorSubjectRace, errorCodeUpdateStatus, result.Error)
	}
	if result.RowsAffected == 0 {
		return wrapStoreError(errorSubjectRace, errorCodeUpdateStatus, ledger.ErrRaceNotFound)
	}
	return nil
}

// LockRace implements ledger.Store. Postgres takes FOR SHARE or FOR UPDATE
// on the race row; SQLite ignores the clause.
func (store *Store) LockRace(ctx context.Context, raceID ledger.RaceID, mode ledger.RaceLock) (ledger.RaceStatus, error) {
	strength := lockStrengthShare
	if mode == ledger.RaceLockUpdate {
		strength = lockStrengthUpdate
	}
	var model Race
	err := store.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: strength}).
		Select("race_id", "status").
		Where("race_id = ?", raceID.String()).
		Take(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", wrapStoreError(errorSubjectRace, errorCodeLock, ledger.ErrRaceNotFound)
		}
		return "", wrapStoreError(errorSubjectRace, errorCodeLock, err)
	}
	status, err := ledger.ParseRaceStatus(model.Status)
	if err != nil {
		return "", wrapDecodeError(errorSubjectRace, err)
	}
	return status, nil
}

// ListRaces returns races by start time, optionally narrowed to one status.
func (store *Store) ListRaces(ctx context.Context, status ledger.RaceStatus) ([]ledger.Race, error) {
	query := store.db.WithContext(ctx).
		Preload("Horses", func(query *gorm.DB) *gorm.DB { return query.Order("number ASC") })
	if status != "" {
		query = query.Where("status = ?", status.String())
	}
	var rows []Race
	if err := query.Order("starts_at ASC").Order("race_id ASC").Find(&rows).Error; err != nil {
		return nil, wrapStoreError(errorSubjectRace, errorCodeList, err)
	}
	races := make([]ledger.Race, 0, len(rows))
	for _, row := range rows {
		race, err := mapRace(row)
		if err != nil {
			return nil, wrapDecodeError(errorSubjectRace, err)
		}
		races = append(races, race)
	}
	return races, nil
}

func raceModel(race ledger.Race) Race {
	now := time.Now().UTC()
	model := Race{
		RaceID:          race.ID.String(),
		Name:            race.Name,
		Venue:           race.Venue,
		RaceNumber:      race.RaceNumber,
		Status:          race.Status.String(),
		BettingOpensAt:  timeColumn(race.BettingOpensAt),
		BettingClosesAt: timeColumn(race.BettingClosesAt),
		StartsAt:        timeColumn(race.StartsAt),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	for _, horse := range race.Horses {
		model.Horses = append(model.Horses, RaceHorse{
			RaceID:     model.RaceID,
			Number:     horse.Number.Int(),
			Name:       horse.Name,
			Jockey:     horse.Jockey,
			WinOdds:    horse.WinOdds.Decimal(),
			Popularity: horse.Popularity,
		})
	}
	return model
}

func mapRace(model Race) (ledger.Race, error) {
	raceID, err := ledger.NewRaceID(model.RaceID)
	if err != nil {
		return ledger.Race{}, err
	}
	status, err := ledger.ParseRaceStatus(model.Status)
	if err != nil {
		return ledger.Race{}, err
	}
	race := ledger.Race{
		ID:              raceID,
		Name:            model.Name,
		Venue:           model.Venue,
		RaceNumber:      model.RaceNumber,
		Status:          status,
		BettingOpensAt:  timeValue(model.BettingOpensAt),
		BettingClosesAt: timeValue(model.BettingClosesAt),
		StartsAt:        timeValue(model.StartsAt),
	}
	for _, row := range model.Horses {
		number, err := ledger.NewHorseNumber(row.Number)
		if err != nil {
			return ledger.Race{}, err
		}
		odds, err := ledger.NewOdds(row.WinOdds)
		if err != nil {
			return ledger.Race{}, err
		}
		race.Horses = append(race.Horses, ledger.Horse{
			Number:     number,
			Name:       row.Name,
			Jockey:     row.Jockey,
			WinOdds:    odds,
			Popularity: row.Popularity,
		})
	}
	return race, nil
}

func timeColumn(value time.Time) *time.Time {
	if value.IsZero() {
		return nil
	}
	utc := value.UTC()
	return &utc
}

func timeValue(value *time.Time) time.Time {
	if value == nil {
		return time.Time{}
	}
	return value.UTC()
}
