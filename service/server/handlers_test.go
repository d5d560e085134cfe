package server

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartchain/heartchain/service/db"
	"github.com/heartchain/heartchain/service/nats"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testHash(seed byte) string {
	return "0x" + strings.Repeat(fmt.Sprintf("%02x", seed), 32)
}

const testDonor = "0x7a3b9f82d4c1e5a6b8d0f2c4e6a8b0d2f4c6e8a0"

func validPayload(seed byte) donationPayload {
	return donationPayload{
		Hash:          testHash(seed),
		CampaignID:    "clean-water",
		CampaignTitle: "Clean Water for All",
		Amount:        500,
		DonorAddress:  testDonor,
		Status:        "pending",
		ChainID:       "0x1f92",
		ExplorerURL:   "https://explorer-sphinx.shardeum.org/tx/" + testHash(seed),
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func confirmedPayload(seed byte) donationPayload {
	p := validPayload(seed)
	p.Status = "confirmed"
	block := int64(4_800_123)
	gas := int64(21_377)
	p.BlockNumber = &block
	p.GasUsed = &gas
	return p
}

func postDonation(t *testing.T, handler http.Handler, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestHandleReplicateDonation(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	publisher := nats.NewMockPublisher()
	handler := handleReplicateDonation(ts.Store, publisher, testLogger())

	// New pending record is created.
	w := postDonation(t, handler, validPayload(0x01))
	require.Equal(t, http.StatusCreated, w.Code)

	var created donationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.Equal(t, testHash(0x01), created.Hash)
	assert.Equal(t, "pending", created.Status)
	assert.Empty(t, publisher.PublishedEvents(), "pending records should not be published")

	// Replaying the same hash with a confirmed status merges the update.
	w = postDonation(t, handler, confirmedPayload(0x01))
	require.Equal(t, http.StatusOK, w.Code)

	var updated donationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&updated))
	assert.Equal(t, "confirmed", updated.Status)
	require.NotNil(t, updated.BlockNumber)
	assert.Equal(t, int64(4_800_123), *updated.BlockNumber)

	events := publisher.PublishedEvents()
	require.Len(t, events, 1)
	assert.Equal(t, testHash(0x01), events[0].Hash)
	assert.Equal(t, "clean-water", events[0].CampaignID)
}

func TestHandleReplicateDonationTerminalStatus(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	handler := handleReplicateDonation(ts.Store, nil, testLogger())

	w := postDonation(t, handler, confirmedPayload(0x02))
	require.Equal(t, http.StatusCreated, w.Code)

	// A confirmed record never becomes pending or failed again.
	failed := validPayload(0x02)
	failed.Status = "failed"
	w = postDonation(t, handler, failed)
	assert.Equal(t, http.StatusConflict, w.Code)

	// Replaying the same terminal status is idempotent.
	w = postDonation(t, handler, confirmedPayload(0x02))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestHandleReplicateDonationPublishFailureIsNonFatal(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	publisher := nats.NewMockPublisher()
	publisher.SetPublishError(fmt.Errorf("nats unavailable"))
	handler := handleReplicateDonation(ts.Store, publisher, testLogger())

	w := postDonation(t, handler, confirmedPayload(0x03))
	assert.Equal(t, http.StatusCreated, w.Code, "storage should succeed even when publishing fails")
}

func TestHandleReplicateDonationValidation(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	handler := handleReplicateDonation(ts.Store, nil, testLogger())

	block := int64(4_800_000)
	gas := int64(21_000)

	tests := []struct {
		name   string
		mutate func(*donationPayload)
	}{
		{"missing hash", func(p *donationPayload) { p.Hash = "" }},
		{"malformed hash", func(p *donationPayload) { p.Hash = "0xzz" }},
		{"uppercase hash", func(p *donationPayload) { p.Hash = strings.ToUpper(testHash(0x04)) }},
		{"missing campaign", func(p *donationPayload) { p.CampaignID = "" }},
		{"oversized title", func(p *donationPayload) { p.CampaignTitle = strings.Repeat("x", maxTitleLength+1) }},
		{"zero amount", func(p *donationPayload) { p.Amount = 0 }},
		{"negative amount", func(p *donationPayload) { p.Amount = -500 }},
		{"bad donor address", func(p *donationPayload) { p.DonorAddress = "not-an-address" }},
		{"unknown status", func(p *donationPayload) { p.Status = "settled" }},
		{"missing chain", func(p *donationPayload) { p.ChainID = "" }},
		{"confirmed without block", func(p *donationPayload) {
			p.Status = "confirmed"
			p.GasUsed = &gas
		}},
		{"pending with block", func(p *donationPayload) { p.BlockNumber = &block }},
		{"zero timestamp", func(p *donationPayload) { p.Timestamp = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			payload := validPayload(0x04)
			tt.mutate(&payload)
			w := postDonation(t, handler, payload)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestHandleReplicateDonationBadBody(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	handler := handleReplicateDonation(ts.Store, nil, testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/transactions", strings.NewReader("{not json"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	huge := bytes.Repeat([]byte("a"), maxRequestBodySize+1)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/transactions", bytes.NewReader(huge))
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleGetDonation(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	replicate := handleReplicateDonation(ts.Store, nil, testLogger())
	w := postDonation(t, replicate, confirmedPayload(0x05))
	require.Equal(t, http.StatusCreated, w.Code)

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/transactions/{hash}", handleGetDonation(ts.Store, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+testHash(0x05), nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var got donationResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&got))
	assert.Equal(t, testHash(0x05), got.Hash)
	assert.Equal(t, "confirmed", got.Status)

	// Unknown hash is a 404, malformed hash a 400.
	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions/"+testHash(0xff), nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNotFound, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/transactions/bogus", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleListDonations(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	replicate := handleReplicateDonation(ts.Store, nil, testLogger())
	for i := byte(1); i <= 3; i++ {
		payload := confirmedPayload(i)
		payload.Timestamp = time.Now().UTC().Add(time.Duration(i) * time.Minute)
		if i == 3 {
			payload.CampaignID = "forest-restoration"
		}
		w := postDonation(t, replicate, payload)
		require.Equal(t, http.StatusCreated, w.Code)
	}

	handler := handleListDonations(ts.Store, testLogger())

	list := func(query string) (int, []donationResponse) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions"+query, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		require.Equal(t, http.StatusOK, w.Code)
		var resp struct {
			Transactions []donationResponse `json:"transactions"`
			Count        int                `json:"count"`
		}
		require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
		return resp.Count, resp.Transactions
	}

	count, all := list("")
	require.Equal(t, 3, count)
	// Newest first.
	assert.Equal(t, testHash(0x03), all[0].Hash)

	count, _ = list("?campaign_id=clean-water")
	assert.Equal(t, 2, count)

	count, _ = list("?donor=" + testDonor)
	assert.Equal(t, 3, count)

	count, _ = list("?limit=1&offset=1")
	assert.Equal(t, 1, count)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/transactions?donor=nope", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHandleCampaignTotal(t *testing.T) {
	ts := db.NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	replicate := handleReplicateDonation(ts.Store, nil, testLogger())

	confirmed := confirmedPayload(0x06)
	confirmed.Amount = 1000
	w := postDonation(t, replicate, confirmed)
	require.Equal(t, http.StatusCreated, w.Code)

	// Pending donations do not count toward the total.
	pending := validPayload(0x07)
	pending.Amount = 9999
	w = postDonation(t, replicate, pending)
	require.Equal(t, http.StatusCreated, w.Code)

	mux := http.NewServeMux()
	mux.Handle("GET /api/v1/campaigns/{id}/total", handleCampaignTotal(ts.Store, testLogger()))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/campaigns/clean-water/total", nil)
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		CampaignID string `json:"campaign_id"`
		Raised     int64  `json:"raised"`
		Donations  int64  `json:"donations"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "clean-water", resp.CampaignID)
	assert.Equal(t, int64(1000), resp.Raised)
	assert.Equal(t, int64(1), resp.Donations)
}
