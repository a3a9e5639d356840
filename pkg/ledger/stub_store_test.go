package ledger

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

const (
	accountIDValue      = "user-1"
	otherAccountIDValue = "user-2"
	raceIDValue         = "race-1"
	// registrationDayValue precedes every day the bonus tests claim.
	registrationDayValue = "2026-03-01"
)

type stubStore struct {
	txMutex   sync.Mutex
	dataMutex sync.Mutex

	accounts map[string]Account
	entries  []Entry
	bets     map[string]Bet
	// races backs LockRace; it is the same catalog the engines read.
	races     *stubCatalog
	raceLocks []RaceLock

	insertEntryError   error
	insertBetError     error
	updateAccountError error
	updateOutcomeError error
	listPendingError   error
}

func newStubStore() *stubStore {
	return &stubStore{
		accounts: make(map[string]Account),
		bets:     make(map[string]Bet),
	}
}

func (store *stubStore) WithTx(ctx context.Context, fn func(ctx context.Context, txStore Store) error) error {
	store.txMutex.Lock()
	defer store.txMutex.Unlock()

	store.dataMutex.Lock()
	accounts := make(map[string]Account, len(store.accounts))
	for key, value := range store.accounts {
		accounts[key] = value
	}
	entries := append([]Entry(nil), store.entries...)
	bets := make(map[string]Bet, len(store.bets))
	for key, value := range store.bets {
		bets[key] = value
	}
	store.dataMutex.Unlock()

	if err := fn(ctx, store); err != nil {
		store.dataMutex.Lock()
		store.accounts = accounts
		store.entries = entries
		store.bets = bets
		store.dataMutex.Unlock()
		return err
	}
	return nil
}

func (store *stubStore) CreateAccount(_ context.Context, account Account) error {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	if _, exists := store.accounts[account.ID.String()]; exists {
		return ErrAccountExists
	}
	store.accounts[account.ID.String()] = account
	return nil
}

func (store *stubStore) GetAccount(_ context.Context, accountID AccountID) (Account, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	account, ok := store.accounts[accountID.String()]
	if !ok {
		return Account{}, ErrUnknownAccount
	}
	return account, nil
}

func (store *stubStore) LockAccount(ctx context.Context, accountID AccountID) (Account, error) {
	return store.GetAccount(ctx, accountID)
}

func (store *stubStore) UpdateAccount(_ context.Context, account Account) error {
	if store.updateAccountError != nil {
		return store.updateAccountError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.accounts[account.ID.String()] = account
	return nil
}

func (store *stubStore) InsertEntry(_ context.Context, entry Entry) error {
	if store.insertEntryError != nil {
		return store.insertEntryError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	for _, existing := range store.entries {
		if existing.AccountID == entry.AccountID && existing.IdempotencyKey == entry.IdempotencyKey {
			return ErrDuplicateIdempotencyKey
		}
	}
	store.entries = append(store.entries, entry)
	return nil
}

func (store *stubStore) ListEntries(_ context.Context, accountID AccountID, filter EntryFilter) ([]Entry, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var matched []Entry
	for index := len(store.entries) - 1; index >= 0; index-- {
		entry := store.entries[index]
		if entry.AccountID != accountID {
			continue
		}
		if filter.Kind != "" && entry.Kind != filter.Kind {
			continue
		}
		matched = append(matched, entry)
	}
	if filter.Offset >= len(matched) {
		return nil, nil
	}
	matched = matched[filter.Offset:]
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (store *stubStore) SumEntryDeltas(_ context.Context, accountID AccountID) (int64, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var sum int64
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			sum += entry.Delta
		}
	}
	return sum, nil
}

func (store *stubStore) InsertBet(_ context.Context, bet Bet) error {
	if store.insertBetError != nil {
		return store.insertBetError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	store.bets[bet.ID.String()] = bet
	return nil
}

func (store *stubStore) GetBet(_ context.Context, accountID AccountID, betID BetID) (Bet, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	bet, ok := store.bets[betID.String()]
	if !ok || bet.AccountID != accountID {
		return Bet{}, ErrUnknownBet
	}
	return bet, nil
}

func (store *stubStore) FindBet(_ context.Context, betID BetID) (Bet, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	bet, ok := store.bets[betID.String()]
	if !ok {
		return Bet{}, ErrUnknownBet
	}
	return bet, nil
}

func (store *stubStore) ListBets(_ context.Context, accountID AccountID, filter BetFilter) ([]Bet, error) {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var matched []Bet
	for _, bet := range store.bets {
		if bet.AccountID != accountID {
			continue
		}
		if filter.Status != "" && bet.Status != filter.Status {
			continue
		}
		if filter.RaceID.String() != "" && bet.RaceID != filter.RaceID {
			continue
		}
		matched = append(matched, bet)
	}
	sort.Slice(matched, func(left, right int) bool { return matched[left].ID.String() > matched[right].ID.String() })
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (store *stubStore) ListPendingBets(_ context.Context, raceID RaceID) ([]Bet, error) {
	if store.listPendingError != nil {
		return nil, store.listPendingError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	var pending []Bet
	for _, bet := range store.bets {
		if bet.RaceID == raceID && bet.Status == BetStatusPending {
			pending = append(pending, bet)
		}
	}
	sort.Slice(pending, func(left, right int) bool { return pending[left].ID.String() < pending[right].ID.String() })
	return pending, nil
}

func (store *stubStore) UpdateBetOutcome(_ context.Context, outcome BetOutcome) error {
	if store.updateOutcomeError != nil {
		return store.updateOutcomeError
	}
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	bet, ok := store.bets[outcome.BetID.String()]
	if !ok {
		return ErrUnknownBet
	}
	if bet.Status != BetStatusPending {
		return ErrBetAlreadySettled
	}
	settledAt := outcome.SettledAt
	bet.Status = outcome.Status
	bet.Payout = outcome.Payout
	bet.SettledAt = &settledAt
	store.bets[outcome.BetID.String()] = bet
	return nil
}

func (store *stubStore) LockRace(_ context.Context, raceID RaceID, mode RaceLock) (RaceStatus, error) {
	if store.races == nil {
		return "", ErrRaceNotFound
	}
	race, err := store.races.race(raceID)
	if err != nil {
		return "", err
	}
	store.dataMutex.Lock()
	store.raceLocks = append(store.raceLocks, mode)
	store.dataMutex.Unlock()
	return race.Status, nil
}

func (store *stubStore) entryCount(accountID AccountID) int {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	count := 0
	for _, entry := range store.entries {
		if entry.AccountID == accountID {
			count++
		}
	}
	return count
}

func (store *stubStore) betCount() int {
	store.dataMutex.Lock()
	defer store.dataMutex.Unlock()
	return len(store.bets)
}

type stubCatalog struct {
	mutex sync.Mutex
	races map[string]Race
	err   error
	// afterLookup runs once after the next successful LookupRace.
	afterLookup func()
}

func newStubCatalog(races ...Race) *stubCatalog {
	catalog := &stubCatalog{races: make(map[string]Race)}
	for _, race := range races {
		catalog.races[race.ID.String()] = race
	}
	return catalog
}

func (catalog *stubCatalog) LookupRace(_ context.Context, raceID RaceID) (Race, error) {
	catalog.mutex.Lock()
	if catalog.err != nil {
		defer catalog.mutex.Unlock()
		return Race{}, catalog.err
	}
	hook := catalog.afterLookup
	catalog.afterLookup = nil
	catalog.mutex.Unlock()

	race, err := catalog.race(raceID)
	if err != nil {
		return Race{}, err
	}
	if hook != nil {
		hook()
	}
	return race, nil
}

func (catalog *stubCatalog) race(raceID RaceID) (Race, error) {
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	race, ok := catalog.races[raceID.String()]
	if !ok {
		return Race{}, ErrRaceNotFound
	}
	return race, nil
}

func (catalog *stubCatalog) setStatus(raceID RaceID, status RaceStatus) {
	catalog.mutex.Lock()
	defer catalog.mutex.Unlock()
	race := catalog.races[raceID.String()]
	race.Status = status
	catalog.races[raceID.String()] = race
}

type recordingLogger struct {
	mutex   sync.Mutex
	entries []OperationLog
}

func (logger *recordingLogger) LogOperation(_ context.Context, entry OperationLog) {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	logger.entries = append(logger.entries, entry)
}

func (logger *recordingLogger) last() OperationLog {
	logger.mutex.Lock()
	defer logger.mutex.Unlock()
	if len(logger.entries) == 0 {
		return OperationLog{}
	}
	return logger.entries[len(logger.entries)-1]
}

type recordingPublisher struct {
	mutex   sync.Mutex
	placed  []Bet
	settled []Bet
	err     error
}

func (publisher *recordingPublisher) PublishBetPlaced(_ context.Context, bet Bet) error {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	publisher.placed = append(publisher.placed, bet)
	return publisher.err
}

func (publisher *recordingPublisher) PublishBetSettled(_ context.Context, bet Bet) error {
	publisher.mutex.Lock()
	defer publisher.mutex.Unlock()
	publisher.settled = append(publisher.settled, bet)
	return publisher.err
}

type fixedClock struct {
	mutex sync.Mutex
	now   time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{now: time.Date(2026, time.April, 5, 9, 0, 0, 0, time.UTC)}
}

func (clock *fixedClock) Now() time.Time {
	clock.mutex.Lock()
	defer clock.mutex.Unlock()
	return clock.now
}

func sequentialIDs() func() string {
	var (
		mutex sync.Mutex
		next  int
	)
	return func() string {
		mutex.Lock()
		defer mutex.Unlock()
		next++
		return "id-" + fmt.Sprintf("%06d", next)
	}
}

type testHarness struct {
	store      *stubStore
	catalog    *stubCatalog
	clock      *fixedClock
	logger     *recordingLogger
	publisher  *recordingPublisher
	ledger     *Ledger
	bets       *BetEngine
	settlement *SettlementProcessor
	bonuses    *BonusEngine
}

func newTestHarness(test *testing.T, races ...Race) *testHarness {
	test.Helper()
	harness := &testHarness{
		store:     newStubStore(),
		catalog:   newStubCatalog(races...),
		clock:     newFixedClock(),
		logger:    &recordingLogger{},
		publisher: &recordingPublisher{},
	}
	harness.store.races = harness.catalog
	ledger, err := NewLedger(harness.store, harness.clock.Now,
		WithOperationLogger(harness.logger),
		WithEventPublisher(harness.publisher),
		WithIDGenerator(sequentialIDs()),
	)
	if err != nil {
		test.Fatalf("ledger init failed: %v", err)
	}
	harness.ledger = ledger
	rules := DefaultRules()
	if harness.bets, err = NewBetEngine(ledger, harness.catalog, rules); err != nil {
		test.Fatalf("bet engine init failed: %v", err)
	}
	if harness.settlement, err = NewSettlementProcessor(ledger, harness.catalog, rules); err != nil {
		test.Fatalf("settlement init failed: %v", err)
	}
	if harness.bonuses, err = NewBonusEngine(ledger, rules); err != nil {
		test.Fatalf("bonus engine init failed: %v", err)
	}
	return harness
}

// registerAccount creates an account holding exactly balance coins.
func (harness *testHarness) registerAccount(test *testing.T, raw string, balance int64) AccountID {
	test.Helper()
	accountID := mustAccountID(test, raw)
	if _, err := harness.bonuses.ClaimRegistrationBonus(context.Background(), accountID, mustDay(test, registrationDayValue)); err != nil {
		test.Fatalf("registration failed: %v", err)
	}
	initial := DefaultRules().InitialCoins
	switch {
	case balance > initial:
		if _, err := harness.ledger.Credit(context.Background(), accountID, PositiveCoins(balance-initial), EntryKindPurchase, "top up", nil); err != nil {
			test.Fatalf("top up failed: %v", err)
		}
	case balance < initial:
		if _, err := harness.ledger.Debit(context.Background(), accountID, PositiveCoins(initial-balance), EntryKindSpend, "draw down", nil); err != nil {
			test.Fatalf("draw down failed: %v", err)
		}
	}
	return accountID
}

func (harness *testHarness) account(test *testing.T, accountID AccountID) Account {
	test.Helper()
	account, err := harness.ledger.Account(context.Background(), accountID)
	if err != nil {
		test.Fatalf("account lookup failed: %v", err)
	}
	return account
}

func mustAccountID(test *testing.T, raw string) AccountID {
	test.Helper()
	accountID, err := NewAccountID(raw)
	if err != nil {
		test.Fatalf("account id: %v", err)
	}
	return accountID
}

func mustRaceID(test *testing.T, raw string) RaceID {
	test.Helper()
	raceID, err := NewRaceID(raw)
	if err != nil {
		test.Fatalf("race id: %v", err)
	}
	return raceID
}

func mustOdds(test *testing.T, raw string) Odds {
	test.Helper()
	odds, err := ParseOdds(raw)
	if err != nil {
		test.Fatalf("odds: %v", err)
	}
	return odds
}

func mustDay(test *testing.T, raw string) CalendarDay {
	test.Helper()
	day, err := ParseCalendarDay(raw)
	if err != nil {
		test.Fatalf("calendar day: %v", err)
	}
	return day
}

func mustRaceResult(test *testing.T, raceID RaceID, order []int, cancelled bool) RaceResult {
	test.Helper()
	result, err := NewRaceResult(raceID, order, cancelled)
	if err != nil {
		test.Fatalf("race result: %v", err)
	}
	return result
}

// bettingRace returns a race open for betting whose horse n has odds winOdds[n-1].
func bettingRace(test *testing.T, raw string, winOdds ...string) Race {
	test.Helper()
	horses := make([]Horse, 0, len(winOdds))
	for index, odds := range winOdds {
		horses = append(horses, Horse{
			Number:  HorseNumber(index + 1),
			Name:    "Horse " + strconv.Itoa(index+1),
			WinOdds: mustOdds(test, odds),
		})
	}
	return Race{
		ID:     mustRaceID(test, raw),
		Name:   "Test Stakes",
		Status: RaceStatusBetting,
		Horses: horses,
	}
}

func decimalOf(test *testing.T, raw string) decimal.Decimal {
	test.Helper()
	return decimal.RequireFromString(raw)
}
