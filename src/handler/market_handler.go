package handler

import (
	"context"
	"errors"
	"net/http"

	"papertrader/src/market"

	"github.com/go-chi/chi/v5"
	logger "github.com/sirupsen/logrus"
)

type marketReader interface {
	OHLC(ctx context.Context, symbol, interval, rng string) ([]market.Candle, error)
	Heatmap(ctx context.Context, rng string) (map[string]market.Snapshot, error)
	Indicators(ctx context.Context, symbol string) (*market.IndicatorSet, error)
	PriceHistory(ctx context.Context, symbol, rng string) ([]market.PricePointView, error)
}

func queryOrDefault(r *http.Request, key, fallback string) string {
	if v := r.URL.Query().Get(key); v != "" {
		return v
	}
	return fallback
}

// PriceHistoryHandler returns the raw price series for one symbol.
func PriceHistoryHandler(agg marketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := chi.URLParam(r, "symbol")
		rng := queryOrDefault(r, "range", "24h")

		points, err := agg.PriceHistory(r.Context(), symbol, rng)
		if err != nil {
			if errors.Is(err, market.ErrAssetNotFound) {
				writeError(w, http.StatusNotFound, "Asset not found")
				return
			}
			logger.WithError(err).Error("failed to fetch price history")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, points)
	}
}

// OHLCHandler returns bucketed candles for one symbol.
func OHLCHandler(agg marketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := chi.URLParam(r, "symbol")
		interval := queryOrDefault(r, "interval", "1h")
		rng := queryOrDefault(r, "range", "24h")

		candles, err := agg.OHLC(r.Context(), symbol, interval, rng)
		if err != nil {
			if errors.Is(err, market.ErrAssetNotFound) {
				writeError(w, http.StatusNotFound, "Asset not found")
				return
			}
			logger.WithError(err).Error("failed to aggregate ohlc")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, candles)
	}
}

// HeatmapHandler returns the per-asset latest snapshot keyed by symbol.
func HeatmapHandler(agg marketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rng := queryOrDefault(r, "range", "24h")

		data, err := agg.Heatmap(r.Context(), rng)
		if err != nil {
			if errors.Is(err, market.ErrInvalidRange) {
				writeError(w, http.StatusBadRequest, "Invalid range")
				return
			}
			logger.WithError(err).Error("failed to build heatmap")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, data)
	}
}

// IndicatorsHandler returns the SMA_7/SMA_25 pair for one symbol.
func IndicatorsHandler(agg marketReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		symbol := chi.URLParam(r, "symbol")

		indicators, err := agg.Indicators(r.Context(), symbol)
		if err != nil {
			if errors.Is(err, market.ErrAssetNotFound) {
				writeError(w, http.StatusNotFound, "Asset not found")
				return
			}
			logger.WithError(err).Error("failed to compute indicators")
			writeError(w, http.StatusInternalServerError, "Internal Server Error")
			return
		}

		writeJSON(w, http.StatusOK, indicators)
	}
}
