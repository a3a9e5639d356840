package ledger

import "context"

// Option configures a Ledger instance.
type Option func(*Ledger)

// OperationLogger records domain-level events emitted by ledger operations.
type OperationLogger interface {
	LogOperation(ctx context.Context, entry OperationLog)
}

// OperationLog describes a state-changing operation.
type OperationLog struct {
	Operation string
	AccountID AccountID
	BetID     BetID
	RaceID    RaceID
	Kind      string
	Amount    int64
	Status    string
	Error     error
}

// EventPublisher receives bet lifecycle events after they are committed.
type EventPublisher interface {
	PublishBetPlaced(ctx context.Context, bet Bet) error
	PublishBetSettled(ctx context.Context, bet Bet) error
}

// WithOperationLogger wires a logger that receives callbacks for every operation.
func WithOperationLogger(logger OperationLogger) Option {
	return func(ledger *Ledger) {
		ledger.logger = logger
	}
}

// WithEventPublisher wires a publisher for bet lifecycle events.
func WithEventPublisher(publisher EventPublisher) Option {
	return func(ledger *Ledger) {
		ledger.publisher = publisher
	}
}

// WithAccountLocker shares a locker between Ledger instances in one process.
func WithAccountLocker(locker *AccountLocker) Option {
	return func(ledger *Ledger) {
		if locker != nil {
			ledger.locker = locker
		}
	}
}

// WithIDGenerator overrides uuid generation for entry and bet ids.
func WithIDGenerator(generate func() string) Option {
	return func(ledger *Ledger) {
		if generate != nil {
			ledger.newID = generate
		}
	}
}

// MultiOperationLogger fans an operation out to several loggers.
type MultiOperationLogger []OperationLogger

// LogOperation implements OperationLogger.
func (loggers MultiOperationLogger) LogOperation(ctx context.Context, entry OperationLog) {
	for _, logger := range loggers {
		if logger != nil {
			logger.LogOperation(ctx, entry)
		}
	}
}

func (ledger *Ledger) logOperation(ctx context.Context, entry OperationLog) {
	if ledger.logger == nil {
		return
	}
	if entry.Error != nil {
		entry.Status = operationStatusError
	} else {
		entry.Status = operationStatusOK
	}
	ledger.logger.LogOperation(ctx, entry)
}
