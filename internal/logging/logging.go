// Package logging builds the process logger and adapts ledger operation
// records to it.
package logging

import (
	"context"
	"fmt"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	// EnvLocal selects the human readable development encoder.
	EnvLocal = "local"

	fieldService = "service"
	fieldEnv     = "env"
)

// New returns a JSON production logger, or a development logger when env is
// local. level overrides the default level when non-empty.
func New(serviceName string, env string, level string) (*zap.Logger, error) {
	config := zap.NewProductionConfig()
	if env == EnvLocal {
		config = zap.NewDevelopmentConfig()
	}
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	if level != "" {
		parsed, err := zapcore.ParseLevel(level)
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", level, err)
		}
		config.Level = zap.NewAtomicLevelAt(parsed)
	}
	return config.Build(zap.Fields(
		zap.String(fieldService, serviceName),
		zap.String(fieldEnv, env),
	))
}

// ZapOperationLogger writes ledger operation records to a zap logger.
type ZapOperationLogger struct {
	logger *zap.Logger
}

// NewZapOperationLogger wraps logger. A nil logger discards records.
func NewZapOperationLogger(logger *zap.Logger) *ZapOperationLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapOperationLogger{logger: logger.Named("ledger")}
}

// LogOperation implements ledger.OperationLogger. Successful operations log
// at info, caller mistakes at warn and everything else at error.
func (operationLogger *ZapOperationLogger) LogOperation(_ context.Context, entry ledger.OperationLog) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("status", entry.Status),
	}
	if value := entry.AccountID.String(); value != "" {
		fields = append(fields, zap.String("account_id", value))
	}
	if value := entry.BetID.String(); value != "" {
		fields = append(fields, zap.String("bet_id", value))
	}
	if value := entry.RaceID.String(); value != "" {
		fields = append(fields, zap.String("race_id", value))
	}
	if entry.Kind != "" {
		fields = append(fields, zap.String("kind", entry.Kind))
	}
	if entry.Amount != 0 {
		fields = append(fields, zap.Int64("amount", entry.Amount))
	}
	if entry.Error == nil {
		operationLogger.logger.Info("ledger operation", fields...)
		return
	}
	category := ledger.Category(entry.Error)
	fields = append(fields, zap.String("category", string(category)), zap.Error(entry.Error))
	if category == ledger.CategoryInternal {
		operationLogger.logger.Error("ledger operation failed", fields...)
		return
	}
	operationLogger.logger.Warn("ledger operation rejected", fields...)
}
