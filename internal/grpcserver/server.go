package grpcserver

import (
	"context"
	"crypto/subtle"
	"errors"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	errorInsufficientFunds = "insufficient_funds"
	errorInvalidAccountID  = "invalid_account_id"
	errorInvalidRaceID     = "invalid_race_id"
	errorInvalidBetID      = "invalid_bet_id"
	errorInvalidRaceStatus = "invalid_race_status"
	errorInvalidRaceResult = "invalid_race_result"
	errorInvalidOdds       = "invalid_odds"
	errorInvalidSelection  = "invalid_selection"
	errorUnknownAccount    = "unknown_account"
	errorUnknownBet        = "unknown_bet"
	errorRaceNotFound      = "race_not_found"
	errorRaceNotSettleable = "race_not_settleable"
	errorBalanceMismatch   = "balance_mismatch"
	errorUnauthenticated   = "admin token required"
	errorInternal          = "internal"
	authorizationHeader    = "authorization"
	bearerPrefix           = "Bearer "
)

// RaceStore persists the race card.
type RaceStore interface {
	ledger.RaceCatalog
	UpsertRace(ctx context.Context, race ledger.Race) error
	SetRaceStatus(ctx context.Context, raceID ledger.RaceID, status ledger.RaceStatus) error
}

// RaceSettler settles a finished or cancelled race, or one of its bets.
type RaceSettler interface {
	SettleRace(ctx context.Context, result ledger.RaceResult) (ledger.SettlementReport, error)
	SettleBet(ctx context.Context, betID ledger.BetID, result ledger.RaceResult) (ledger.Bet, error)
}

// AccountAdmin covers the account level admin operations.
type AccountAdmin interface {
	Reconcile(ctx context.Context, accountID ledger.AccountID) (ledger.Reconciliation, error)
	SetPremium(ctx context.Context, accountID ledger.AccountID, premium bool) (ledger.Account, error)
}

// CacheInvalidator drops cached race snapshots after an admin write.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, raceID ledger.RaceID) error
}

// RaceAdminService implements RaceAdminServer on top of the ledger engines.
type RaceAdminService struct {
	races    RaceStore
	settler  RaceSettler
	accounts AccountAdmin
	cache    CacheInvalidator
	logger   *zap.Logger
}

// NewRaceAdminService wires the admin service. cache may be nil.
func NewRaceAdminService(races RaceStore, settler RaceSettler, accounts AccountAdmin, cache CacheInvalidator, logger *zap.Logger) (*RaceAdminService, error) {
	if races == nil || settler == nil || accounts == nil {
		return nil, errors.New("grpcserver: race store, settler and account admin are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RaceAdminService{races: races, settler: settler, accounts: accounts, cache: cache, logger: logger}, nil
}

func (service *RaceAdminService) UpsertRace(ctx context.Context, request *UpsertRaceRequest) (*RaceResponse, error) {
	race, err := request.Race.Race()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	if err := service.races.UpsertRace(ctx, race); err != nil {
		return nil, mapToGRPCError(err)
	}
	return service.respondWithRace(ctx, race.ID)
}

func (service *RaceAdminService) SetRaceStatus(ctx context.Context, request *SetRaceStatusRequest) (*RaceResponse, error) {
	raceID, err := ledger.NewRaceID(request.RaceID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	raceStatus, err := ledger.ParseRaceStatus(request.Status)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	if err := service.races.SetRaceStatus(ctx, raceID, raceStatus); err != nil {
		return nil, mapToGRPCError(err)
	}
	return service.respondWithRace(ctx, raceID)
}

func (service *RaceAdminService) SettleRace(ctx context.Context, request *SettleRaceRequest) (*SettleRaceResponse, error) {
	result, err := request.Result.Result()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	report, err := service.settler.SettleRace(ctx, result)
	if err != nil {
		service.logger.Warn("settlement incomplete",
			zap.String("race_id", result.RaceID.String()),
			zap.Int("won", report.Won),
			zap.Int("lost", report.Lost),
			zap.Error(err))
		return nil, mapToGRPCError(err)
	}
	return &SettleRaceResponse{
		RaceID:    report.RaceID.String(),
		Won:       report.Won,
		Lost:      report.Lost,
		Refunded:  report.Refunded,
		Skipped:   report.Skipped,
		TotalPaid: report.TotalPaid.Int64(),
	}, nil
}

func (service *RaceAdminService) SettleBet(ctx context.Context, request *SettleBetRequest) (*SettleBetResponse, error) {
	betID, err := ledger.NewBetID(request.BetID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	result, err := request.Result.Result()
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	bet, err := service.settler.SettleBet(ctx, betID, result)
	if err != nil {
		service.logger.Warn("bet settlement failed",
			zap.String("bet_id", betID.String()),
			zap.String("race_id", result.RaceID.String()),
			zap.Error(err))
		return nil, mapToGRPCError(err)
	}
	return &SettleBetResponse{Bet: bet.Record()}, nil
}

func (service *RaceAdminService) Reconcile(ctx context.Context, request *ReconcileRequest) (*ReconcileResponse, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	reconciliation, err := service.accounts.Reconcile(ctx, accountID)
	if err != nil && !errors.Is(err, ledger.ErrBalanceMismatch) {
		return nil, mapToGRPCError(err)
	}
	if err != nil {
		service.logger.Error("balance mismatch",
			zap.String("account_id", accountID.String()),
			zap.Int64("balance", reconciliation.Balance.Int64()),
			zap.Int64("entry_sum", reconciliation.EntrySum))
	}
	return &ReconcileResponse{
		AccountID: accountID.String(),
		Balance:   reconciliation.Balance.Int64(),
		EntrySum:  reconciliation.EntrySum,
		Matches:   reconciliation.Matches(),
	}, nil
}

func (service *RaceAdminService) SetPremium(ctx context.Context, request *SetPremiumRequest) (*SetPremiumResponse, error) {
	accountID, err := ledger.NewAccountID(request.AccountID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	account, err := service.accounts.SetPremium(ctx, accountID, request.Premium)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &SetPremiumResponse{AccountID: account.ID.String(), IsPremium: account.IsPremium}, nil
}

// respondWithRace drops the cached snapshot and reads the race back from the
// store.
func (service *RaceAdminService) respondWithRace(ctx context.Context, raceID ledger.RaceID) (*RaceResponse, error) {
	if service.cache != nil {
		if err := service.cache.Invalidate(ctx, raceID); err != nil {
			service.logger.Warn("race cache invalidation failed", zap.String("race_id", raceID.String()), zap.Error(err))
		}
	}
	race, err := service.races.LookupRace(ctx, raceID)
	if err != nil {
		return nil, mapToGRPCError(err)
	}
	return &RaceResponse{Race: race.Record()}, nil
}

// AdminTokenInterceptor rejects calls without the bearer token. An empty
// token disables the check.
func AdminTokenInterceptor(token string) grpc.UnaryServerInterceptor {
	expected := []byte(bearerPrefix + token)
	return func(ctx context.Context, request any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if token == "" {
			return handler(ctx, request)
		}
		incoming, _ := metadata.FromIncomingContext(ctx)
		for _, value := range incoming.Get(authorizationHeader) {
			if subtle.ConstantTimeCompare([]byte(value), expected) == 1 {
				return handler(ctx, request)
			}
		}
		return nil, status.Error(codes.Unauthenticated, errorUnauthenticated)
	}
}

func mapToGRPCError(source error) error {
	if errors.Is(source, ledger.ErrInvalidAccountID) {
		return status.Error(codes.InvalidArgument, errorInvalidAccountID)
	}
	if errors.Is(source, ledger.ErrInvalidRaceID) {
		return status.Error(codes.InvalidArgument, errorInvalidRaceID)
	}
	if errors.Is(source, ledger.ErrInvalidBetID) {
		return status.Error(codes.InvalidArgument, errorInvalidBetID)
	}
	if errors.Is(source, ledger.ErrInvalidRaceStatus) {
		return status.Error(codes.InvalidArgument, errorInvalidRaceStatus)
	}
	if errors.Is(source, ledger.ErrInvalidRaceResult) {
		return status.Error(codes.InvalidArgument, errorInvalidRaceResult)
	}
	if errors.Is(source, ledger.ErrInvalidOdds) {
		return status.Error(codes.InvalidArgument, errorInvalidOdds)
	}
	if errors.Is(source, ledger.ErrInvalidSelection) {
		return status.Error(codes.InvalidArgument, errorInvalidSelection)
	}
	if errors.Is(source, ledger.ErrInsufficientFunds) {
		return status.Error(codes.FailedPrecondition, errorInsufficientFunds)
	}
	if errors.Is(source, ledger.ErrUnknownAccount) {
		return status.Error(codes.NotFound, errorUnknownAccount)
	}
	if errors.Is(source, ledger.ErrUnknownBet) {
		return status.Error(codes.NotFound, errorUnknownBet)
	}
	if errors.Is(source, ledger.ErrRaceNotFound) {
		return status.Error(codes.NotFound, errorRaceNotFound)
	}
	if errors.Is(source, ledger.ErrRaceNotSettleable) {
		return status.Error(codes.FailedPrecondition, errorRaceNotSettleable)
	}
	if errors.Is(source, ledger.ErrBalanceMismatch) {
		return status.Error(codes.DataLoss, errorBalanceMismatch)
	}
	switch ledger.Category(source) {
	case ledger.CategoryValidation:
		return status.Error(codes.InvalidArgument, source.Error())
	case ledger.CategoryNotFound:
		return status.Error(codes.NotFound, source.Error())
	case ledger.CategoryConflict:
		return status.Error(codes.FailedPrecondition, source.Error())
	}
	return status.Error(codes.Internal, errorInternal)
}

var (
	_ RaceAdminServer = (*RaceAdminService)(nil)
	_ RaceAdminServer = (*RaceAdminClient)(nil)
)
