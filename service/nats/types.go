package nats

import (
	"time"

	"github.com/heartchain/heartchain/service/ledger"
)

// DonationEvent represents a confirmed donation published to NATS.
// Events go to the subject "donations.{campaign_id}" in JetStream, where
// downstream consumers (leaderboards, badge evaluation, dashboards) pick
// them up.
type DonationEvent struct {
	// Transaction identifiers
	Hash    string `json:"hash"`
	ChainID string `json:"chain_id"`

	// Campaign information
	CampaignID    string `json:"campaign_id"`
	CampaignTitle string `json:"campaign_title"`

	// Donation details
	Amount       int64  `json:"amount"`
	DonorAddress string `json:"donor_address"`
	Status       string `json:"status"`
	BlockNumber  *int64 `json:"block_number,omitempty"`
	GasUsed      *int64 `json:"gas_used,omitempty"`

	// Timing information
	Timestamp   time.Time `json:"timestamp"`
	PublishedAt time.Time `json:"published_at"`
}

// FromTransaction converts a ledger transaction to a DonationEvent for
// publishing.
func FromTransaction(tx *ledger.Transaction) *DonationEvent {
	return &DonationEvent{
		Hash:          tx.Hash,
		ChainID:       tx.ChainID,
		CampaignID:    tx.CampaignID,
		CampaignTitle: tx.CampaignTitle,
		Amount:        tx.Amount,
		DonorAddress:  tx.DonorAddress,
		Status:        string(tx.Status),
		BlockNumber:   tx.BlockNumber,
		GasUsed:       tx.GasUsed,
		Timestamp:     tx.Timestamp,
		PublishedAt:   time.Now().UTC(),
	}
}
