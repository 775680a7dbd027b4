package server

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"papertrader/src/auth"
	"papertrader/src/feed"
	"papertrader/src/handler"
	"papertrader/src/market"
	"papertrader/src/stream"
	"papertrader/src/trading"
	"papertrader/src/valuation"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

// Dependencies are the wired core components the routes bind to.
type Dependencies struct {
	Aggregator *market.Aggregator
	Engine     *trading.Engine
	Valuation  *valuation.Service
	Ledger     handler.LedgerHistory
	Ingestor   *feed.Ingestor
	Hub        *stream.Hub
}

// NewRouter binds the exposed operations to routes. Market data is public;
// portfolio routes require a resolved identity.
func NewRouter(deps Dependencies) *chi.Mux {
	r := chi.NewRouter()

	r.Get("/healthcheck", func(w http.ResponseWriter, r *http.Request) {
		if _, err := w.Write([]byte("OK")); err != nil {
			logger.WithError(err).Error("/healthcheck error")
		}
	})

	r.Route("/api", func(r chi.Router) {
		r.Get("/price-history/{symbol}", handler.PriceHistoryHandler(deps.Aggregator))
		r.Get("/ohlc/{symbol}", handler.OHLCHandler(deps.Aggregator))
		r.Get("/heatmap", handler.HeatmapHandler(deps.Aggregator))
		r.Get("/indicators/{symbol}", handler.IndicatorsHandler(deps.Aggregator))

		r.Post("/ingest", handler.IngestHandler(deps.Ingestor))
		r.Get("/stream/ticks", deps.Hub.ServeWS)

		r.Group(func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Get("/portfolio", handler.PortfolioSummaryHandler(deps.Valuation))
			r.Get("/portfolio/trades", handler.ListTradesHandler(deps.Ledger))
			r.Post("/portfolio/trade", handler.PlaceTradeHandler(deps.Engine, deps.Valuation))
			r.Post("/portfolio/fund", handler.FundPortfolioHandler(deps.Engine, deps.Valuation))
			r.Get("/portfolio/funding", handler.ListFundingHandler(deps.Ledger))
		})
	})

	return r
}

// StartServer runs the HTTP server until SIGINT/SIGTERM, then shuts down
// gracefully.
func StartServer(port string, deps Dependencies) {
	addr := ":" + port
	srv := &http.Server{
		Addr:    addr,
		Handler: NewRouter(deps),
	}

	go func() {
		logger.Infof("Listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Server crashed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("Shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Shutdown error")
	}
}
