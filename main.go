package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"papertrader/src/database"
	"papertrader/src/feed"
	"papertrader/src/market"
	"papertrader/src/repository"
	"papertrader/src/server"
	"papertrader/src/stream"
	"papertrader/src/trading"
	"papertrader/src/valuation"

	logger "github.com/sirupsen/logrus"
)

var (
	APP_NAME = os.Getenv("APP_NAME")
)

func SetupLogger() {
	levelStr := strings.ToLower(os.Getenv("LOG_LEVEL"))

	level, err := logger.ParseLevel(levelStr)
	if err != nil {
		level = logger.DebugLevel
	}

	logger.SetLevel(level)
	logger.SetFormatter(&logger.TextFormatter{
		FullTimestamp: true,
	})
}

func main() {
	SetupLogger()
	defer handlePanic()

	// Initialize main (read/write) database
	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	// Initialize read-only database
	if err := database.InitReadOnlyDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	prices := repository.NewPriceRepository()
	pricesRO := prices.WithDB(database.ReadOnlyDB)
	ledger := repository.NewLedgerRepository()
	hub := stream.NewHub()

	deps := server.Dependencies{
		Aggregator: market.NewAggregator(pricesRO),
		Engine:     trading.NewEngine(ledger, prices),
		Valuation:  valuation.NewService(ledger, pricesRO),
		Ledger:     ledger,
		Ingestor:   feed.NewIngestor(prices).WithPublisher(hub),
		Hub:        hub,
	}

	server.StartServer(server.GetConfig().Port, deps)
}

func handlePanic() {
	if r := recover(); r != nil {
		logger.WithError(fmt.Errorf("%+v", r)).Error(fmt.Sprintf("Application %s panic", APP_NAME))
	}
	//nolint
	time.Sleep(time.Second * 5)
}
