package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// RaceAdminClient calls the admin service over conn.
type RaceAdminClient struct {
	conn       grpc.ClientConnInterface
	adminToken string
}

// NewRaceAdminClient returns a client that sends adminToken, when set, as a
// bearer token.
func NewRaceAdminClient(conn grpc.ClientConnInterface, adminToken string) *RaceAdminClient {
	return &RaceAdminClient{conn: conn, adminToken: adminToken}
}

func (client *RaceAdminClient) UpsertRace(ctx context.Context, request *UpsertRaceRequest) (*RaceResponse, error) {
	response := new(RaceResponse)
	if err := client.invoke(ctx, methodUpsertRace, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *RaceAdminClient) SetRaceStatus(ctx context.Context, request *SetRaceStatusRequest) (*RaceResponse, error) {
	response := new(RaceResponse)
	if err := client.invoke(ctx, methodSetRaceStatus, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *RaceAdminClient) SettleRace(ctx context.Context, request *SettleRaceRequest) (*SettleRaceResponse, error) {
	response := new(SettleRaceResponse)
	if err := client.invoke(ctx, methodSettleRace, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *RaceAdminClient) SettleBet(ctx context.Context, request *SettleBetRequest) (*SettleBetResponse, error) {
	response := new(SettleBetResponse)
	if err := client.invoke(ctx, methodSettleBet, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *RaceAdminClient) Reconcile(ctx context.Context, request *ReconcileRequest) (*ReconcileResponse, error) {
	response := new(ReconcileResponse)
	if err := client.invoke(ctx, methodReconcile, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *RaceAdminClient) SetPremium(ctx context.Context, request *SetPremiumRequest) (*SetPremiumResponse, error) {
	response := new(SetPremiumResponse)
	if err := client.invoke(ctx, methodSetPremium, request, response); err != nil {
		return nil, err
	}
	return response, nil
}

func (client *RaceAdminClient) invoke(ctx context.Context, method string, request any, response any) error {
	if client.adminToken != "" {
		ctx = metadata.AppendToOutgoingContext(ctx, authorizationHeader, bearerPrefix+client.adminToken)
	}
	return client.conn.Invoke(ctx, fullMethod(method), request, response, grpc.CallContentSubtype(CodecName))
}
