package ledger

import (
	"errors"
	"testing"
	"time"
)

func TestRaceRecordRoundTrip(test *testing.T) {
	test.Parallel()
	race := bettingRace(test, raceIDValue, "1.8", "3.25")
	race.Venue = "Nakayama"
	race.BettingClosesAt = time.Date(2026, time.April, 5, 15, 30, 0, 0, time.UTC)

	record := race.Record()
	if record.Status != "betting" || record.Horses[1].WinOdds != "3.25" || record.BettingOpensAt != nil {
		test.Fatalf("unexpected record %+v", record)
	}
	restored, err := record.Race()
	if err != nil {
		test.Fatalf("restore failed: %v", err)
	}
	if restored.ID != race.ID || restored.Venue != "Nakayama" || !restored.BettingClosesAt.Equal(race.BettingClosesAt) {
		test.Fatalf("unexpected restored race %+v", restored)
	}
	if len(restored.Horses) != 2 || !restored.Horses[1].WinOdds.Equal(race.Horses[1].WinOdds) {
		test.Fatalf("unexpected restored horses %+v", restored.Horses)
	}
}

func TestRaceRecordValidation(test *testing.T) {
	test.Parallel()
	valid := bettingRace(test, raceIDValue, "2.0").Record()
	testCases := []struct {
		name    string
		mutate  func(record *RaceRecord)
		wantErr error
	}{
		{name: "empty id", mutate: func(record *RaceRecord) { record.ID = " " }, wantErr: ErrInvalidRaceID},
		{name: "unknown status", mutate: func(record *RaceRecord) { record.Status = "paused" }, wantErr: ErrInvalidRaceStatus},
		{name: "odds below one", mutate: func(record *RaceRecord) { record.Horses[0].WinOdds = "0.9" }, wantErr: ErrInvalidOdds},
		{name: "zero horse number", mutate: func(record *RaceRecord) { record.Horses[0].Number = 0 }, wantErr: ErrInvalidSelection},
		{
			name: "duplicate horse",
			mutate: func(record *RaceRecord) {
				record.Horses = append(record.Horses, record.Horses[0])
			},
			wantErr: ErrInvalidSelection,
		},
	}
	for _, testCase := range testCases {
		testCase := testCase
		test.Run(testCase.name, func(test *testing.T) {
			test.Parallel()
			record := valid
			record.Horses = append([]HorseRecord(nil), valid.Horses...)
			testCase.mutate(&record)
			if _, err := record.Race(); !errors.Is(err, testCase.wantErr) {
				test.Fatalf("expected %v, got %v", testCase.wantErr, err)
			}
		})
	}
}

func TestRaceResultRecord(test *testing.T) {
	test.Parallel()
	result, err := RaceResultRecord{RaceID: raceIDValue, FinishingOrder: []int{3, 1, 2}}.Result()
	if err != nil || len(result.FinishingOrder) != 3 || result.FinishingOrder[0] != 3 {
		test.Fatalf("unexpected result %+v %v", result, err)
	}
	if _, err := (RaceResultRecord{RaceID: raceIDValue}).Result(); !errors.Is(err, ErrInvalidRaceResult) {
		test.Fatalf("expected ErrInvalidRaceResult, got %v", err)
	}
}
