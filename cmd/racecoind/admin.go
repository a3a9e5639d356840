package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarkoPoloResearchLab/racecoin/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/racecoin/internal/racecache"
	"github.com/MarkoPoloResearchLab/racecoin/internal/raceimport"
	"github.com/MarkoPoloResearchLab/racecoin/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/go-redis/redis/v8"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	flagRaceID    = "race-id"
	flagBetID     = "bet-id"
	flagOrder     = "order"
	flagCancelled = "cancelled"
	flagAdminAddr = "admin-addr"
)

func newRacesCommand(app *application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "races",
		Short: "Manage the race card",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert the races listed in a YAML race card",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := app.logger()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			db, cleanup, driver, err := openDatabase(cmd.Context(), app.cfg.DatabaseURL)
			if err != nil {
				return fmt.Errorf("database open: %w", err)
			}
			defer func() { _ = cleanup() }()
			if err := prepareSchema(db, driver); err != nil {
				return err
			}
			store := gormstore.New(db)

			// Only the shared cache can be reached from here; serving
			// processes drop their local snapshots on expiry.
			var invalidator raceimport.Invalidator
			if app.cfg.Redis.Addr != "" {
				client := redis.NewClient(&redis.Options{
					Addr:     app.cfg.Redis.Addr,
					Password: app.cfg.Redis.Password,
					DB:       app.cfg.Redis.DB,
				})
				defer func() { _ = client.Close() }()
				invalidator = racecache.NewRedis(store, client, app.cfg.Redis.TTL, nil)
			}
			importer, err := raceimport.NewImporter(store, invalidator, logger)
			if err != nil {
				return err
			}
			imported, err := importer.ImportFile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			logger.Info("race card imported", zap.String("file", args[0]), zap.Int("races", imported))
			return nil
		},
	})
	return cmd
}

func newSettleCommand(app *application) *cobra.Command {
	var (
		raceID    string
		betID     string
		order     []int
		cancelled bool
		adminAddr string
	)
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle a race, or one of its bets, through the running admin server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := app.adminClient(adminAddr)
			if err != nil {
				return err
			}
			defer closeConn()
			result := ledger.RaceResultRecord{RaceID: raceID, FinishingOrder: order, Cancelled: cancelled}
			response, err := settle(cmd.Context(), client, betID, result)
			if err != nil {
				return err
			}
			return printJSON(cmd, response)
		},
	}
	cmd.Flags().StringVar(&raceID, flagRaceID, "", "race to settle")
	cmd.Flags().StringVar(&betID, flagBetID, "", "settle only this bet, e.g. one a race settlement skipped")
	cmd.Flags().IntSliceVar(&order, flagOrder, nil, "finishing order by horse number, e.g. 2,1,3")
	cmd.Flags().BoolVar(&cancelled, flagCancelled, false, "refund every bet on the race")
	cmd.Flags().StringVar(&adminAddr, flagAdminAddr, "", "admin server address (defaults to the gRPC listen address)")
	_ = cmd.MarkFlagRequired(flagRaceID)
	return cmd
}

type settlementClient interface {
	SettleRace(ctx context.Context, request *grpcserver.SettleRaceRequest) (*grpcserver.SettleRaceResponse, error)
	SettleBet(ctx context.Context, request *grpcserver.SettleBetRequest) (*grpcserver.SettleBetResponse, error)
}

// settle settles the whole race, or only betID when it is set.
func settle(ctx context.Context, client settlementClient, betID string, result ledger.RaceResultRecord) (any, error) {
	if betID != "" {
		return client.SettleBet(ctx, &grpcserver.SettleBetRequest{BetID: betID, Result: result})
	}
	return client.SettleRace(ctx, &grpcserver.SettleRaceRequest{Result: result})
}

func newReconcileCommand(app *application) *cobra.Command {
	var adminAddr string
	cmd := &cobra.Command{
		Use:   "reconcile <account-id>",
		Short: "Compare an account balance with the sum of its ledger entries",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, closeConn, err := app.adminClient(adminAddr)
			if err != nil {
				return err
			}
			defer closeConn()
			response, err := client.Reconcile(cmd.Context(), &grpcserver.ReconcileRequest{AccountID: args[0]})
			if err != nil {
				return err
			}
			if err := printJSON(cmd, response); err != nil {
				return err
			}
			if !response.Matches {
				return fmt.Errorf("account %s: %w", args[0], ledger.ErrBalanceMismatch)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&adminAddr, flagAdminAddr, "", "admin server address (defaults to the gRPC listen address)")
	return cmd
}

func (app *application) adminClient(addr string) (*grpcserver.RaceAdminClient, func(), error) {
	if addr == "" {
		addr = app.cfg.GRPC.ListenAddr
	}
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial admin server %s: %w", addr, err)
	}
	return grpcserver.NewRaceAdminClient(conn, app.cfg.GRPC.AdminToken), func() { _ = conn.Close() }, nil
}

func printJSON(cmd *cobra.Command, value any) error {
	encoder := json.NewEncoder(cmd.OutOrStdout())
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
