package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"papertrader/src/feed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockIngestor struct {
	applied int
	got     []feed.MarketRecord
}

func (m *mockIngestor) IngestBatch(_ context.Context, records []feed.MarketRecord) int {
	m.got = records
	return m.applied
}

func TestIngestHandlerAppliesBatch(t *testing.T) {
	ingestor := &mockIngestor{applied: 2}

	body := `[
		{"id":"bitcoin","symbol":"btc","name":"Bitcoin","current_price":50000,"last_updated":"2026-03-01T12:00:00Z"},
		{"id":"ethereum","symbol":"eth","name":"Ethereum","current_price":3000,"last_updated":"2026-03-01T12:00:00Z"}
	]`
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()

	IngestHandler(ingestor)(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, ingestor.got, 2)
	assert.Equal(t, "bitcoin", ingestor.got[0].ID)

	var resp map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp["applied"])
}

func TestIngestHandlerBadBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/ingest", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()

	IngestHandler(&mockIngestor{})(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}
