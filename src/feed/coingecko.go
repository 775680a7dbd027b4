package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kelseyhightower/envconfig"
	logger "github.com/sirupsen/logrus"
)

type Config struct {
	BaseURL    string        `envconfig:"COINGECKO_BASE_URL" default:"https://api.coingecko.com/api/v3"`
	VsCurrency string        `envconfig:"COINGECKO_VS_CURRENCY" default:"usd"`
	PerPage    int           `envconfig:"COINGECKO_PER_PAGE" default:"100"`
	Timeout    time.Duration `envconfig:"COINGECKO_TIMEOUT" default:"10s"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// MarketRecord is one raw row of the markets listing as delivered by the
// price-feed provider.
type MarketRecord struct {
	ID           string   `json:"id"`
	Symbol       string   `json:"symbol"`
	Name         string   `json:"name"`
	CurrentPrice float64  `json:"current_price"`
	TotalVolume  float64  `json:"total_volume"`
	MarketCap    float64  `json:"market_cap"`
	LastUpdated  string   `json:"last_updated"`
	PctChange1h  *float64 `json:"price_change_percentage_1h_in_currency"`
	PctChange24h *float64 `json:"price_change_percentage_24h_in_currency"`
	PctChange7d  *float64 `json:"price_change_percentage_7d_in_currency"`
}

// Client pulls market listings from the CoinGecko-compatible markets endpoint.
type Client struct {
	http   *resty.Client
	config Config
}

func NewClient(config Config) *Client {
	httpClient := resty.New().
		SetBaseURL(config.BaseURL).
		SetTimeout(config.Timeout)

	return &Client{http: httpClient, config: config}
}

// NewClientWithHTTP overrides the resty client. Useful for tests.
func NewClientWithHTTP(config Config, http *resty.Client) *Client {
	return &Client{http: http, config: config}
}

// FetchMarkets returns one page of market records ordered by market cap,
// with the 1h/24h/7d percentage changes included.
func (c *Client) FetchMarkets(ctx context.Context) ([]MarketRecord, error) {
	var records []MarketRecord

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"vs_currency":             c.config.VsCurrency,
			"order":                   "market_cap_desc",
			"per_page":                fmt.Sprintf("%d", c.config.PerPage),
			"page":                    "1",
			"sparkline":               "false",
			"price_change_percentage": "1h,24h,7d",
		}).
		SetResult(&records).
		Get("/coins/markets")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch markets: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("markets endpoint returned status %d", resp.StatusCode())
	}

	logger.WithFields(map[string]interface{}{
		"component": "FeedClient",
		"op":        "FetchMarkets",
		"records":   len(records),
	}).Debug("Market listing fetched")

	return records, nil
}
