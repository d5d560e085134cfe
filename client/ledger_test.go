package client

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/heartchain/heartchain/service/donation"
	"github.com/heartchain/heartchain/service/ledger"
)

const testTxHash = "0xab1c2d3e4f5a6b7c8d9e0f1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c"

func sampleTransaction() *ledger.Transaction {
	block := int64(4_812_345)
	gas := int64(21_512)
	return &ledger.Transaction{
		Hash:          testTxHash,
		CampaignID:    "clean-water",
		CampaignTitle: "Clean Water for All",
		Amount:        500,
		DonorAddress:  "0x7a3b9f82d4c1e5a6b8d0f2c4e6a8b0d2f4c6e8a0",
		Timestamp:     time.Now().UTC(),
		Status:        ledger.StatusConfirmed,
		ChainID:       "0x1f92",
		ExplorerURL:   "https://explorer-sphinx.shardeum.org/tx/" + testTxHash,
		BlockNumber:   &block,
		GasUsed:       &gas,
	}
}

func TestReplicate_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "POST", r.Method)
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]interface{}
		err := json.NewDecoder(r.Body).Decode(&body)
		require.NoError(t, err)

		assert.Equal(t, testTxHash, body["hash"])
		assert.Equal(t, "clean-water", body["campaign_id"])
		assert.Equal(t, "confirmed", body["status"])
		assert.Equal(t, float64(500), body["amount"])

		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	err := client.Replicate(context.Background(), sampleTransaction())
	assert.NoError(t, err)
}

func TestReplicate_AcceptsStatusUpdate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Replayed hashes come back as 200 rather than 201.
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	err := client.Replicate(context.Background(), sampleTransaction())
	assert.NoError(t, err)
}

func TestReplicate_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "invalid transaction hash",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	err := client.Replicate(context.Background(), sampleTransaction())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transaction hash")
}

func TestReplicate_ServerDown(t *testing.T) {
	client := NewClient("http://localhost:1", nil, nil)
	err := client.Replicate(context.Background(), sampleTransaction())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestGet_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "GET", r.Method)
		assert.Equal(t, "/api/v1/transactions/"+testTxHash, r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"hash":        testTxHash,
			"campaign_id": "clean-water",
			"amount":      500,
			"status":      "confirmed",
			"chain_id":    "0x1f92",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	d, err := client.Get(context.Background(), testTxHash)
	require.NoError(t, err)
	assert.Equal(t, testTxHash, d.Hash)
	assert.Equal(t, "confirmed", d.Status)
	assert.Equal(t, int64(500), d.Amount)
}

func TestGet_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{
			"error": "transaction not found",
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Get(context.Background(), testTxHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction not found")
}

func TestList_WithFilters(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/transactions", r.URL.Path)
		assert.Equal(t, "clean-water", r.URL.Query().Get("campaign_id"))
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("donor"))

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []map[string]interface{}{
				{"hash": testTxHash, "campaign_id": "clean-water", "status": "confirmed"},
			},
			"count": 1,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	donations, err := client.List(context.Background(), ListParams{
		CampaignID: "clean-water",
		Limit:      25,
	})
	require.NoError(t, err)
	require.Len(t, donations, 1)
	assert.Equal(t, testTxHash, donations[0].Hash)
}

func TestList_Empty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// No query string when no filters are set.
		assert.Empty(t, r.URL.RawQuery)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"transactions": []map[string]interface{}{},
			"count":        0,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	donations, err := client.List(context.Background(), ListParams{})
	require.NoError(t, err)
	assert.Empty(t, donations)
}

func TestTotal_Success(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/campaigns/clean-water/total", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"campaign_id": "clean-water",
			"raised":      12500,
			"donations":   25,
		})
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	total, err := client.Total(context.Background(), "clean-water")
	require.NoError(t, err)
	assert.Equal(t, "clean-water", total.CampaignID)
	assert.Equal(t, int64(12500), total.Raised)
	assert.Equal(t, int64(25), total.Donations)
}

func TestParseErrorResponse_NonJSON(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	client := NewClient(server.URL, nil, nil)
	_, err := client.Get(context.Background(), testTxHash)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
	assert.Contains(t, err.Error(), "upstream exploded")
}

// The client must be usable wherever a donation flow expects a replicator.
var _ donation.Replicator = (*Client)(nil)

func TestContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server detects client disconnect and
		// cancels the request context; otherwise Close deadlocks.
		io.Copy(io.Discard, r.Body)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	client := NewClient(server.URL, nil, nil)
	err := client.Replicate(ctx, sampleTransaction())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "context deadline exceeded") ||
		strings.Contains(err.Error(), "request failed"))
}
