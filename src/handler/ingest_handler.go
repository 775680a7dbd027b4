package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"papertrader/src/feed"
)

type batchIngestor interface {
	IngestBatch(ctx context.Context, records []feed.MarketRecord) int
}

// IngestHandler accepts a decoded batch of market records and applies it to
// the price store. Bad records inside the batch are skipped, never fatal.
func IngestHandler(ingestor batchIngestor) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var records []feed.MarketRecord
		if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		applied := ingestor.IngestBatch(r.Context(), records)

		writeJSON(w, http.StatusOK, map[string]int{"applied": applied})
	}
}
