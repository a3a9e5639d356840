package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/internal/config"
	"github.com/MarkoPoloResearchLab/racecoin/internal/grpcserver"
	"github.com/MarkoPoloResearchLab/racecoin/internal/httpapi"
	"github.com/MarkoPoloResearchLab/racecoin/internal/logging"
	"github.com/MarkoPoloResearchLab/racecoin/internal/metrics"
	"github.com/MarkoPoloResearchLab/racecoin/internal/racecache"
	"github.com/MarkoPoloResearchLab/racecoin/internal/raceevents"
	"github.com/MarkoPoloResearchLab/racecoin/internal/store/gormstore"
	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

// engines holds the wired engines shared by the serving surfaces.
type engines struct {
	store      *gormstore.Store
	ledger     *ledger.Ledger
	bets       *ledger.BetEngine
	settlement *ledger.SettlementProcessor
	bonuses    *ledger.BonusEngine
	raceCache  *racecache.LocalCatalog
	collectors *metrics.Collectors
	closers    []func() error
}

func (rt *engines) close(logger *zap.Logger) {
	for index := len(rt.closers) - 1; index >= 0; index-- {
		if err := rt.closers[index](); err != nil {
			logger.Warn("close failed", zap.Error(err))
		}
	}
}

// serveGroup runs the serving loops and reports the first one that fails.
type serveGroup struct {
	waitGroup sync.WaitGroup
	errCh     chan error
}

func newServeGroup() *serveGroup {
	return &serveGroup{errCh: make(chan error, 1)}
}

func (group *serveGroup) run(loop func() error) {
	group.waitGroup.Add(1)
	go func() {
		defer group.waitGroup.Done()
		if err := loop(); err != nil {
			select {
			case group.errCh <- err:
			default:
			}
		}
	}()
}

func (group *serveGroup) failed() <-chan error {
	return group.errCh
}

// wait blocks until every loop has returned.
func (group *serveGroup) wait() {
	group.waitGroup.Wait()
}

// drain waits for ctx to end or a loop to fail, then stops every loop and
// waits for them. stop runs after runCancel and before the wait.
func (group *serveGroup) drain(ctx context.Context, runCancel context.CancelFunc, stop func()) error {
	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-group.failed():
	}
	runCancel()
	if stop != nil {
		stop()
	}
	group.wait()
	return serveErr
}

func runServe(ctx context.Context, cfg config.Config) error {
	if err := cfg.ValidateServe(); err != nil {
		return err
	}
	logger, err := logging.New(serviceName, cfg.Env, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	rt, err := buildRuntime(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer rt.close(logger)

	validator, err := sessionvalidator.New(sessionvalidator.Config{
		SigningKey: []byte(cfg.Auth.SigningKey),
		Issuer:     cfg.Auth.Issuer,
		CookieName: cfg.Auth.CookieName,
	})
	if err != nil {
		return fmt.Errorf("session validator: %w", err)
	}
	router, err := httpapi.NewRouter(httpapi.Config{
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
		Location:       cfg.Location(),
		Clock:          time.Now,
		Metrics:        rt.collectors,
		MetricsHandler: metrics.Handler(prometheus.DefaultGatherer),
	}, httpapi.Services{
		Ledger:  rt.ledger,
		Bets:    rt.bets,
		Bonuses: rt.bonuses,
		Catalog: rt.raceCache,
		Races:   rt.store,
	}, validator, logger)
	if err != nil {
		return fmt.Errorf("http api init: %w", err)
	}

	adminService, err := grpcserver.NewRaceAdminService(rt.store, rt.settlement, rt.ledger, rt.raceCache, logger)
	if err != nil {
		return fmt.Errorf("grpc admin init: %w", err)
	}
	if cfg.GRPC.AdminToken == "" {
		logger.Warn("grpc admin token is empty; admin calls are unauthenticated")
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.AdminTokenInterceptor(cfg.GRPC.AdminToken)))
	grpcserver.RegisterRaceAdminServer(grpcServer, adminService)
	listener, err := net.Listen("tcp", cfg.GRPC.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	// The store stays open until every loop below has returned.
	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()
	group := newServeGroup()
	group.run(func() error {
		logger.Info("gRPC admin server starting", zap.String("listen_addr", cfg.GRPC.ListenAddr))
		if serveErr := grpcServer.Serve(listener); serveErr != nil && !errors.Is(serveErr, grpc.ErrServerStopped) {
			return fmt.Errorf("grpc admin: %w", serveErr)
		}
		return nil
	})
	group.run(func() error {
		return httpapi.Run(runCtx, cfg.HTTP.ListenAddr, router, logger)
	})
	if cfg.Kafka.Enabled {
		consumer := &raceevents.Consumer{
			Log:     logger.Named("race_results"),
			Reader:  raceevents.NewReader(cfg.Kafka.Brokers, cfg.Kafka.RaceResultsTopic, cfg.Kafka.GroupID),
			Settler: rt.settlement,
			OnSettled: func(report ledger.SettlementReport) {
				logger.Info("race settled from result event",
					zap.String("race_id", report.RaceID.String()),
					zap.Int("won", report.Won),
					zap.Int("lost", report.Lost),
					zap.Int("refunded", report.Refunded),
					zap.Int64("total_paid", report.TotalPaid.Int64()))
			},
		}
		rt.closers = append(rt.closers, consumer.Reader.Close)
		group.run(func() error {
			if runErr := consumer.Run(runCtx); runErr != nil && !raceevents.IsStopped(runErr) {
				return fmt.Errorf("race result consumer: %w", runErr)
			}
			return nil
		})
	}

	serveErr := group.drain(ctx, runCancel, grpcServer.GracefulStop)
	if serveErr != nil {
		logger.Error("serving loop failed", zap.Error(serveErr))
	} else {
		logger.Info("shutdown complete")
	}
	return serveErr
}

func buildRuntime(ctx context.Context, cfg config.Config, logger *zap.Logger) (*engines, error) {
	rt := &engines{}
	db, cleanup, driver, err := openDatabase(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database open: %w", err)
	}
	rt.closers = append(rt.closers, cleanup)
	if err := prepareSchema(db, driver); err != nil {
		rt.close(logger)
		return nil, err
	}
	rt.store = gormstore.New(db)

	rt.collectors = metrics.New(prometheus.DefaultRegisterer)
	options := []ledger.Option{
		ledger.WithOperationLogger(ledger.MultiOperationLogger{
			logging.NewZapOperationLogger(logger),
			rt.collectors,
		}),
	}
	if cfg.Kafka.Enabled {
		publisher := raceevents.NewPublisher(raceevents.NewWriter(cfg.Kafka.Brokers, cfg.Kafka.BetEventsTopic), nil)
		rt.closers = append(rt.closers, publisher.Close)
		options = append(options, ledger.WithEventPublisher(publisher))
	}
	rt.ledger, err = ledger.NewLedger(rt.store, time.Now, options...)
	if err != nil {
		rt.close(logger)
		return nil, fmt.Errorf("ledger init: %w", err)
	}

	var catalog ledger.RaceCatalog = rt.store
	if cfg.Redis.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		rt.closers = append(rt.closers, client.Close)
		catalog = racecache.NewRedis(rt.store, client, cfg.Redis.TTL, func(err error) {
			logger.Warn("shared race cache", zap.Error(err))
		})
	}
	rt.raceCache = racecache.NewLocal(catalog, cfg.Cache.LocalSize, cfg.Cache.LocalTTL)

	if rt.bets, err = ledger.NewBetEngine(rt.ledger, rt.raceCache, cfg.Rules); err != nil {
		rt.close(logger)
		return nil, fmt.Errorf("bet engine init: %w", err)
	}
	// Settlement reads races from the store so a stale snapshot never decides
	// whether a race is finished.
	if rt.settlement, err = ledger.NewSettlementProcessor(rt.ledger, rt.store, cfg.Rules); err != nil {
		rt.close(logger)
		return nil, fmt.Errorf("settlement init: %w", err)
	}
	if rt.bonuses, err = ledger.NewBonusEngine(rt.ledger, cfg.Rules); err != nil {
		rt.close(logger)
		return nil, fmt.Errorf("bonus engine init: %w", err)
	}
	return rt, nil
}
