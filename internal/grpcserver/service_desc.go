package grpcserver

import (
	"context"

	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"google.golang.org/grpc"
)

const (
	ServiceName = "racecoin.v1.RaceAdmin"

	methodUpsertRace    = "UpsertRace"
	methodSetRaceStatus = "SetRaceStatus"
	methodSettleRace    = "SettleRace"
	methodSettleBet     = "SettleBet"
	methodReconcile     = "Reconcile"
	methodSetPremium    = "SetPremium"
)

type UpsertRaceRequest struct {
	Race ledger.RaceRecord `json:"race"`
}

type RaceResponse struct {
	Race ledger.RaceRecord `json:"race"`
}

type SetRaceStatusRequest struct {
	RaceID string `json:"race_id"`
	Status string `json:"status"`
}

type SettleRaceRequest struct {
	Result ledger.RaceResultRecord `json:"result"`
}

type SettleRaceResponse struct {
	RaceID    string `json:"race_id"`
	Won       int    `json:"won"`
	Lost      int    `json:"lost"`
	Refunded  int    `json:"refunded"`
	Skipped   int    `json:"skipped"`
	TotalPaid int64  `json:"total_paid"`
}

// SettleBetRequest re-drives settlement of one bet, typically one a race
// settlement skipped after a failure.
type SettleBetRequest struct {
	BetID  string                  `json:"bet_id"`
	Result ledger.RaceResultRecord `json:"result"`
}

type SettleBetResponse struct {
	Bet ledger.BetRecord `json:"bet"`
}

type ReconcileRequest struct {
	AccountID string `json:"account_id"`
}

type ReconcileResponse struct {
	AccountID string `json:"account_id"`
	Balance   int64  `json:"balance"`
	EntrySum  int64  `json:"entry_sum"`
	Matches   bool   `json:"matches"`
}

type SetPremiumRequest struct {
	AccountID string `json:"account_id"`
	Premium   bool   `json:"premium"`
}

type SetPremiumResponse struct {
	AccountID string `json:"account_id"`
	IsPremium bool   `json:"is_premium"`
}

// RaceAdminServer is the admin surface used by race operators.
type RaceAdminServer interface {
	UpsertRace(ctx context.Context, request *UpsertRaceRequest) (*RaceResponse, error)
	SetRaceStatus(ctx context.Context, request *SetRaceStatusRequest) (*RaceResponse, error)
	SettleRace(ctx context.Context, request *SettleRaceRequest) (*SettleRaceResponse, error)
	SettleBet(ctx context.Context, request *SettleBetRequest) (*SettleBetResponse, error)
	Reconcile(ctx context.Context, request *ReconcileRequest) (*ReconcileResponse, error)
	SetPremium(ctx context.Context, request *SetPremiumRequest) (*SetPremiumResponse, error)
}

// RaceAdminServiceDesc describes the service for grpc.Server.RegisterService.
var RaceAdminServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*RaceAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod(methodUpsertRace, RaceAdminServer.UpsertRace),
		unaryMethod(methodSetRaceStatus, RaceAdminServer.SetRaceStatus),
		unaryMethod(methodSettleRace, RaceAdminServer.SettleRace),
		unaryMethod(methodSettleBet, RaceAdminServer.SettleBet),
		unaryMethod(methodReconcile, RaceAdminServer.Reconcile),
		unaryMethod(methodSetPremium, RaceAdminServer.SetPremium),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "racecoin/v1/race_admin",
}

// RegisterRaceAdminServer registers server on registrar.
func RegisterRaceAdminServer(registrar grpc.ServiceRegistrar, server RaceAdminServer) {
	registrar.RegisterService(&RaceAdminServiceDesc, server)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryMethod[Request any, Response any](name string, call func(RaceAdminServer, context.Context, *Request) (*Response, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(server any, ctx context.Context, decode func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			request := new(Request)
			if err := decode(request); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(server.(RaceAdminServer), ctx, request)
			}
			info := &grpc.UnaryServerInfo{Server: server, FullMethod: fullMethod(name)}
			handler := func(ctx context.Context, request any) (any, error) {
				return call(server.(RaceAdminServer), ctx, request.(*Request))
			}
			return interceptor(ctx, request, info, handler)
		},
	}
}
