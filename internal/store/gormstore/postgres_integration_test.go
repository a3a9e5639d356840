//go:build integration

package gormstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/internal/store/migrations"
	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	gormpostgres "gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openPostgresStore(test *testing.T) *Store {
	test.Helper()
	ctx := context.Background()

	var (
		container *postgres.PostgresContainer
		err       error
	)
	func() {
		defer func() {
			if recovered := recover(); recovered != nil {
				test.Skipf("docker unavailable: %v", recovered)
			}
		}()
		container, err = postgres.Run(ctx,
			"postgres:15-alpine",
			postgres.WithDatabase("racecoin"),
			postgres.WithUsername("racecoin"),
			postgres.WithPassword("racecoin"),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second)),
		)
	}()
	if err != nil {
		test.Fatalf("start postgres: %v", err)
	}
	test.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			test.Logf("terminate postgres: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		test.Fatalf("connection string: %v", err)
	}
	db, err := gorm.Open(gormpostgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		test.Fatalf("open postgres: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		test.Fatalf("sql db: %v", err)
	}
	if err := migrations.Up(sqlDB); err != nil {
		test.Fatalf("migrate: %v", err)
	}
	version, err := migrations.Version(sqlDB)
	if err != nil || version != 2 {
		test.Fatalf("expected schema version 2, got %d %v", version, err)
	}
	return New(db)
}

func TestPostgresConcurrentBetsNeverOverdraw(test *testing.T) {
	ctx := context.Background()
	store := openPostgresStore(test)
	clock := func() time.Time { return testNow }
	rules := ledger.DefaultRules()

	// Two ledgers without a shared locker so only the row lock serializes them.
	first, err := ledger.NewLedger(store, clock)
	if err != nil {
		test.Fatalf("ledger: %v", err)
	}
	second, err := ledger.NewLedger(store, clock)
	if err != nil {
		test.Fatalf("ledger: %v", err)
	}
	bonuses, err := ledger.NewBonusEngine(first, rules)
	if err != nil {
		test.Fatalf("bonus engine: %v", err)
	}
	engines := make([]*ledger.BetEngine, 0, 2)
	for _, instance := range []*ledger.Ledger{first, second} {
		engine, err := ledger.NewBetEngine(instance, store, rules)
		if err != nil {
			test.Fatalf("bet engine: %v", err)
		}
		engines = append(engines, engine)
	}

	race := testRace(test, ledger.RaceStatusBetting)
	if err := store.UpsertRace(ctx, race); err != nil {
		test.Fatalf("upsert race: %v", err)
	}
	accountID := mustAccount(test, testAccountValue)
	today := ledger.CalendarDayOf(testNow, time.UTC)
	if _, err := bonuses.ClaimRegistrationBonus(ctx, accountID, today); err != nil {
		test.Fatalf("registration: %v", err)
	}
	if _, err := bonuses.ClaimRegistrationBonus(ctx, accountID, today); !errors.Is(err, ledger.ErrAccountExists) {
		test.Fatalf("expected ErrAccountExists, got %v", err)
	}

	const attempts = 30
	var (
		waitGroup sync.WaitGroup
		mutex     sync.Mutex
		placed    int
	)
	for attempt := 0; attempt < attempts; attempt++ {
		waitGroup.Add(1)
		go func(engine *ledger.BetEngine) {
			defer waitGroup.Done()
			_, err := engine.PlaceBet(ctx, ledger.PlaceBetInput{
				AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{1}, Amount: 500,
			})
			mutex.Lock()
			defer mutex.Unlock()
			switch {
			case err == nil:
				placed++
			case errors.Is(err, ledger.ErrInsufficientFunds):
			default:
				test.Errorf("unexpected error: %v", err)
			}
		}(engines[attempt%2])
	}
	waitGroup.Wait()

	if placed != 20 {
		test.Fatalf("expected 20 bets to fit in 10000 coins, got %d", placed)
	}
	reconciliation, err := first.Reconcile(ctx, accountID)
	if err != nil || reconciliation.Balance != 0 {
		test.Fatalf("unexpected reconciliation %+v %v", reconciliation, err)
	}
}

func TestPostgresSettlementLeavesNoPendingBets(test *testing.T) {
	ctx := context.Background()
	store := openPostgresStore(test)
	clock := func() time.Time { return testNow }
	rules := ledger.DefaultRules()
	coinLedger, err := ledger.NewLedger(store, clock)
	if err != nil {
		test.Fatalf("ledger: %v", err)
	}
	bonuses, err := ledger.NewBonusEngine(coinLedger, rules)
	if err != nil {
		test.Fatalf("bonus engine: %v", err)
	}
	settlement, err := ledger.NewSettlementProcessor(coinLedger, store, rules)
	if err != nil {
		test.Fatalf("settlement: %v", err)
	}
	race := testRace(test, ledger.RaceStatusBetting)
	if err := store.UpsertRace(ctx, race); err != nil {
		test.Fatalf("upsert race: %v", err)
	}
	// The snapshot always reads Betting, so only the race row stops placements.
	engine, err := ledger.NewBetEngine(coinLedger, frozenCatalog{race: race}, rules)
	if err != nil {
		test.Fatalf("bet engine: %v", err)
	}
	today := ledger.CalendarDayOf(testNow, time.UTC)
	accounts := []ledger.AccountID{mustAccount(test, "user-1"), mustAccount(test, "user-2"), mustAccount(test, "user-3")}
	for _, accountID := range accounts {
		if _, err := bonuses.ClaimRegistrationBonus(ctx, accountID, today); err != nil {
			test.Fatalf("registration: %v", err)
		}
	}

	var waitGroup sync.WaitGroup
	for _, accountID := range accounts {
		waitGroup.Add(1)
		go func(accountID ledger.AccountID) {
			defer waitGroup.Done()
			for attempt := 0; attempt < 40; attempt++ {
				_, err := engine.PlaceBet(ctx, ledger.PlaceBetInput{
					AccountID: accountID, RaceID: race.ID, BetType: "win", Selections: []int{1}, Amount: 100,
				})
				if errors.Is(err, ledger.ErrRaceNotOpenForBetting) {
					return
				}
				if err != nil {
					test.Errorf("unexpected error: %v", err)
					return
				}
			}
		}(accountID)
	}
	time.Sleep(20 * time.Millisecond)
	if err := store.SetRaceStatus(ctx, race.ID, ledger.RaceStatusFinished); err != nil {
		test.Fatalf("set status: %v", err)
	}
	result, err := ledger.NewRaceResult(race.ID, []int{1, 2, 3}, false)
	if err != nil {
		test.Fatalf("result: %v", err)
	}
	if _, err := settlement.SettleRace(ctx, result); err != nil {
		test.Fatalf("settle: %v", err)
	}
	waitGroup.Wait()

	pending, err := store.ListPendingBets(ctx, race.ID)
	if err != nil || len(pending) != 0 {
		test.Fatalf("expected no pending bets after settlement, got %d %v", len(pending), err)
	}
	for _, accountID := range accounts {
		reconciliation, err := coinLedger.Reconcile(ctx, accountID)
		if err != nil || !reconciliation.Matches() {
			test.Fatalf("reconcile %s: %+v %v", accountID.String(), reconciliation, err)
		}
	}
}
