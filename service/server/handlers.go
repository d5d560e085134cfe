package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/heartchain/heartchain/service/db"
	"github.com/heartchain/heartchain/service/ledger"
	"github.com/heartchain/heartchain/service/nats"
)

const (
	maxRequestBodySize = 1 << 20 // 1MB - plenty for a donation record
	maxTitleLength     = 500
)

var (
	// 32-byte transaction hash, 0x-prefixed hex.
	validHashRegex = regexp.MustCompile(`^0x[0-9a-f]{64}$`)

	// 20-byte account address, 0x-prefixed hex.
	validAddressRegex = regexp.MustCompile(`^0x[0-9a-f]{40}$`)
)

// donationPayload is the wire format of a replicated donation record.
type donationPayload struct {
	Hash          string    `json:"hash"`
	CampaignID    string    `json:"campaign_id"`
	CampaignTitle string    `json:"campaign_title"`
	Amount        int64     `json:"amount"`
	DonorAddress  string    `json:"donor_address"`
	Status        string    `json:"status"`
	ChainID       string    `json:"chain_id"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
	BlockNumber   *int64    `json:"block_number,omitempty"`
	GasUsed       *int64    `json:"gas_used,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

type donationResponse struct {
	donationPayload
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func donationToResponse(d *db.Donation) donationResponse {
	resp := donationResponse{
		donationPayload: donationPayload{
			Hash:          d.Hash,
			CampaignID:    d.CampaignID,
			CampaignTitle: d.CampaignTitle,
			Amount:        d.Amount,
			DonorAddress:  d.DonorAddress,
			Status:        d.Status,
			ChainID:       d.ChainID,
			BlockNumber:   d.BlockNumber,
			GasUsed:       d.GasUsed,
			Timestamp:     d.Timestamp,
		},
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.ExplorerURL != nil {
		resp.ExplorerURL = *d.ExplorerURL
	}
	return resp
}

// handleReplicateDonation returns a handler that accepts a replicated
// donation record, keyed by hash. A new hash creates the record (201); a
// known hash merges the status update (200). Confirmed records are published
// to NATS best-effort.
// POST /api/v1/transactions
func handleReplicateDonation(store *db.Store, publisher nats.Publisher, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var payload donationPayload
		if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, "request body too large", http.StatusBadRequest)
				return
			}
			writeError(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := validatePayload(&payload); err != nil {
			logger.Debug("invalid donation payload", "hash", payload.Hash, "error", err)
			writeError(w, err.Error(), http.StatusBadRequest)
			return
		}

		// Status transitions are forward-only on the server too: a record
		// already in a terminal status never changes again.
		existing, err := store.GetDonation(r.Context(), payload.Hash)
		if err != nil && !errors.Is(err, db.ErrNotFound) {
			logger.Error("failed to check existing donation", "hash", payload.Hash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}
		if existing != nil && ledger.Status(existing.Status).Terminal() && existing.Status != payload.Status {
			writeError(w, fmt.Sprintf("transaction is already %s", existing.Status), http.StatusConflict)
			return
		}

		params := db.UpsertDonationParams{
			Hash:          payload.Hash,
			CampaignID:    payload.CampaignID,
			CampaignTitle: payload.CampaignTitle,
			Amount:        payload.Amount,
			DonorAddress:  payload.DonorAddress,
			Status:        payload.Status,
			ChainID:       payload.ChainID,
			BlockNumber:   payload.BlockNumber,
			GasUsed:       payload.GasUsed,
			Timestamp:     payload.Timestamp,
		}
		if payload.ExplorerURL != "" {
			params.ExplorerURL = &payload.ExplorerURL
		}

		stored, created, err := store.UpsertDonation(r.Context(), params)
		if err != nil {
			logger.Error("failed to store donation", "hash", payload.Hash, "error", err)
			writeError(w, "failed to store donation", http.StatusInternalServerError)
			return
		}

		if publisher != nil && stored.Status == string(ledger.StatusConfirmed) {
			event := &nats.DonationEvent{
				Hash:          stored.Hash,
				ChainID:       stored.ChainID,
				CampaignID:    stored.CampaignID,
				CampaignTitle: stored.CampaignTitle,
				Amount:        stored.Amount,
				DonorAddress:  stored.DonorAddress,
				Status:        stored.Status,
				BlockNumber:   stored.BlockNumber,
				GasUsed:       stored.GasUsed,
				Timestamp:     stored.Timestamp,
				PublishedAt:   time.Now().UTC(),
			}
			if err := publisher.PublishDonation(r.Context(), event); err != nil {
				// The stored record is authoritative; event delivery is
				// best-effort.
				logger.Warn("failed to publish donation event", "hash", stored.Hash, "error", err)
			}
		}

		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		logger.Info("donation replicated",
			"hash", stored.Hash,
			"campaign_id", stored.CampaignID,
			"status", stored.Status,
			"created", created,
		)
		writeJSON(w, donationToResponse(stored), status)
	})
}

// handleGetDonation returns a handler that retrieves one donation by hash.
// GET /api/v1/transactions/{hash}
func handleGetDonation(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hash := r.PathValue("hash")
		if !validHashRegex.MatchString(hash) {
			writeError(w, "invalid transaction hash", http.StatusBadRequest)
			return
		}

		d, err := store.GetDonation(r.Context(), hash)
		if errors.Is(err, db.ErrNotFound) {
			writeError(w, "transaction not found", http.StatusNotFound)
			return
		}
		if err != nil {
			logger.Error("failed to get donation", "hash", hash, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, donationToResponse(d), http.StatusOK)
	})
}

// handleListDonations returns a handler that lists donations newest first.
// GET /api/v1/transactions?campaign_id={id}&donor={address}&limit={n}&offset={n}
func handleListDonations(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		params := db.ListDonationsParams{
			CampaignID:   r.URL.Query().Get("campaign_id"),
			DonorAddress: r.URL.Query().Get("donor"),
		}
		if params.DonorAddress != "" && !validAddressRegex.MatchString(params.DonorAddress) {
			writeError(w, "invalid donor address", http.StatusBadRequest)
			return
		}
		params.Limit = int32(parseIntParam(r, "limit", 100))
		params.Offset = int32(parseIntParam(r, "offset", 0))

		donations, err := store.ListDonations(r.Context(), params)
		if err != nil {
			logger.Error("failed to list donations", "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		resp := make([]donationResponse, len(donations))
		for i, d := range donations {
			resp[i] = donationToResponse(d)
		}
		writeJSON(w, map[string]interface{}{
			"transactions": resp,
			"count":        len(resp),
		}, http.StatusOK)
	})
}

// handleCampaignTotal returns a handler that aggregates confirmed donations
// for one campaign.
// GET /api/v1/campaigns/{id}/total
func handleCampaignTotal(store *db.Store, logger *slog.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		campaignID := r.PathValue("id")
		if campaignID == "" {
			writeError(w, "campaign ID is required", http.StatusBadRequest)
			return
		}

		raised, count, err := store.CampaignTotal(r.Context(), campaignID)
		if err != nil {
			logger.Error("failed to aggregate campaign total", "campaign_id", campaignID, "error", err)
			writeError(w, "internal server error", http.StatusInternalServerError)
			return
		}

		writeJSON(w, map[string]interface{}{
			"campaign_id": campaignID,
			"raised":      raised,
			"donations":   count,
		}, http.StatusOK)
	})
}

// validatePayload checks the invariants a replicated record must hold.
func validatePayload(p *donationPayload) error {
	if !validHashRegex.MatchString(p.Hash) {
		return fmt.Errorf("invalid transaction hash")
	}
	if p.CampaignID == "" {
		return fmt.Errorf("campaign_id is required")
	}
	if len(p.CampaignTitle) > maxTitleLength {
		return fmt.Errorf("campaign_title too long: maximum length is %d characters", maxTitleLength)
	}
	if p.Amount <= 0 {
		return fmt.Errorf("amount must be positive")
	}
	if !validAddressRegex.MatchString(p.DonorAddress) {
		return fmt.Errorf("invalid donor address")
	}
	if !ledger.Status(p.Status).Valid() {
		return fmt.Errorf("unknown status %q", p.Status)
	}
	if p.ChainID == "" {
		return fmt.Errorf("chain_id is required")
	}
	confirmed := ledger.Status(p.Status) == ledger.StatusConfirmed
	if confirmed && (p.BlockNumber == nil || p.GasUsed == nil) {
		return fmt.Errorf("confirmed transactions require block_number and gas_used")
	}
	if !confirmed && (p.BlockNumber != nil || p.GasUsed != nil) {
		return fmt.Errorf("block_number and gas_used are only valid on confirmed transactions")
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("timestamp is required")
	}
	return nil
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	value := r.URL.Query().Get(name)
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, data interface{}, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}
