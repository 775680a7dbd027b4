package pricefeed

import (
	"context"
	"time"

	"papertrader/src/feed"
	"papertrader/src/repository"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PriceFeed polls the market listing on a fixed cadence and appends the
// decoded records to the price store.
type PriceFeed struct {
	Log *logger.Entry
	DB  *gorm.DB
}

func (p *PriceFeed) Start(ctx context.Context) error {
	config := GetConfig()

	client := feed.NewClient(feed.GetConfig())
	ingestor := feed.NewIngestor(repository.NewPriceRepository().WithDB(p.DB))

	ticker := time.NewTicker(config.PollPeriod)
	defer ticker.Stop()

	p.Log.WithField("period", config.PollPeriod.String()).Info("price feed loop started")

	// one immediate pull so a fresh deployment has data before the first tick
	p.pollOnce(ctx, client, ingestor)

	for {
		select {
		case <-ctx.Done():
			p.Log.Info("price feed loop stopped")
			return nil

		case <-ticker.C:
			p.pollOnce(ctx, client, ingestor)
		}
	}
}

func (p *PriceFeed) pollOnce(ctx context.Context, client *feed.Client, ingestor *feed.Ingestor) {
	records, err := client.FetchMarkets(ctx)
	if err != nil {
		// transient provider failures skip the tick, the loop keeps running
		p.Log.WithError(err).Error("failed to fetch market listing")
		return
	}

	applied := ingestor.IngestBatch(ctx, records)

	p.Log.WithFields(logger.Fields{
		"received": len(records),
		"applied":  applied,
	}).Info("poll completed")
}
