// Package httpapi is the player facing HTTP surface. Every /api route is
// authenticated by the TAuth session cookie and acts on the account named by
// the session's user id.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/racecoin/internal/metrics"
	"github.com/MarkoPoloResearchLab/racecoin/pkg/ledger"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/tyemirov/tauth/pkg/sessionvalidator"
	"go.uber.org/zap"
)

const (
	claimsContextKey = "auth_claims"
	shutdownTimeout  = 5 * time.Second
)

// RaceLister lists the race card.
type RaceLister interface {
	ListRaces(ctx context.Context, status ledger.RaceStatus) ([]ledger.Race, error)
}

// Services are the domain engines the handlers call.
type Services struct {
	Ledger  *ledger.Ledger
	Bets    *ledger.BetEngine
	Bonuses *ledger.BonusEngine
	Catalog ledger.RaceCatalog
	Races   RaceLister
}

// Config carries the router settings.
type Config struct {
	AllowedOrigins []string
	// Location decides which calendar day a bonus claim belongs to.
	Location *time.Location
	Clock    func() time.Time
	Metrics  *metrics.Collectors
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
}

type httpHandler struct {
	logger   *zap.Logger
	services Services
	location *time.Location
	clock    func() time.Time
}

// NewRouter builds the gin engine.
func NewRouter(cfg Config, services Services, validator *sessionvalidator.Validator, logger *zap.Logger) (*gin.Engine, error) {
	if services.Ledger == nil || services.Bets == nil || services.Bonuses == nil || services.Catalog == nil || services.Races == nil {
		return nil, errors.New("httpapi: all services are required")
	}
	if validator == nil {
		return nil, errors.New("httpapi: session validator is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	handler := &httpHandler{
		logger:   logger,
		services: services,
		location: cfg.Location,
		clock:    cfg.Clock,
	}
	if handler.location == nil {
		handler.location = time.UTC
	}
	if handler.clock == nil {
		handler.clock = time.Now
	}

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Metrics != nil {
		router.Use(cfg.Metrics.GinMiddleware())
	}
	if len(cfg.AllowedOrigins) > 0 {
		router.Use(cors.New(cors.Config{
			AllowOrigins:     cfg.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "Origin", "Accept"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	router.GET("/healthz", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if cfg.MetricsHandler != nil {
		router.GET("/metrics", gin.WrapH(cfg.MetricsHandler))
	}

	api := router.Group("/api")
	api.Use(validator.GinMiddleware(claimsContextKey))

	api.GET("/user/profile", handler.handleProfile)
	api.POST("/user/register-bonus", handler.handleRegisterBonus)
	api.POST("/user/login-bonus", handler.handleLoginBonus)

	api.GET("/coins/balance", handler.handleBalance)
	api.GET("/coins/transactions", handler.handleTransactions)
	api.POST("/coins/bonus/daily", handler.handleLoginBonus)
	api.POST("/coins/bonus/ad", handler.handleAdBonus)

	api.POST("/bets", handler.handlePlaceBet)
	api.GET("/bets", handler.handleListBets)
	api.GET("/bets/:id", handler.handleGetBet)

	api.GET("/races", handler.handleListRaces)
	api.GET("/races/:id", handler.handleGetRace)

	return router, nil
}

// Run serves handler on addr until ctx is cancelled.
func Run(ctx context.Context, addr string, handler http.Handler, logger *zap.Logger) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("http api listening", zap.String("addr", addr))
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if shutdownErr := server.Shutdown(shutdownCtx); shutdownErr != nil {
			logger.Warn("server shutdown error", zap.Error(shutdownErr))
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http api: %w", err)
	}
}

func getClaims(ctx *gin.Context) *sessionvalidator.Claims {
	claimsValue, ok := ctx.Get(claimsContextKey)
	if !ok {
		return nil
	}
	claims, _ := claimsValue.(*sessionvalidator.Claims)
	return claims
}

// accountID resolves the session's account or writes a 401.
func (handler *httpHandler) accountID(ctx *gin.Context) (ledger.AccountID, bool) {
	claims := getClaims(ctx)
	if claims == nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "missing session"))
		return ledger.AccountID{}, false
	}
	accountID, err := ledger.NewAccountID(claims.GetUserID())
	if err != nil {
		ctx.JSON(http.StatusUnauthorized, errorResponse(errorCodeUnauthorized, "session has no user id"))
		return ledger.AccountID{}, false
	}
	return accountID, true
}

func (handler *httpHandler) today() ledger.CalendarDay {
	return ledger.CalendarDayOf(handler.clock(), handler.location)
}
