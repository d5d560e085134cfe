package ledger

import (
	"fmt"
	"time"
)

// Status is the lifecycle state of a donation transaction. Transitions are
// forward-only: pending may become confirmed or failed, and the terminal
// states never change again.
type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether the status can no longer change.
func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusFailed:
		return true
	}
	return false
}

// Transaction is one donation record. Hash is assigned at creation, before
// confirmation. BlockNumber and GasUsed are set iff the transaction is
// confirmed. Amount is in donor currency units, always positive.
type Transaction struct {
	Hash          string    `json:"hash"`
	CampaignID    string    `json:"campaign_id"`
	CampaignTitle string    `json:"campaign_title"`
	Amount        int64     `json:"amount"`
	DonorAddress  string    `json:"donor_address"`
	Timestamp     time.Time `json:"timestamp"`
	Status        Status    `json:"status"`
	ChainID       string    `json:"chain_id"`
	ExplorerURL   string    `json:"explorer_url,omitempty"`
	BlockNumber   *int64    `json:"block_number,omitempty"`
	GasUsed       *int64    `json:"gas_used,omitempty"`
}

// Validate checks the invariants a record must hold before entering the
// ledger.
func (t *Transaction) Validate() error {
	if t.Hash == "" {
		return fmt.Errorf("transaction hash is required")
	}
	if t.CampaignID == "" {
		return fmt.Errorf("campaign ID is required")
	}
	if t.Amount <= 0 {
		return fmt.Errorf("amount must be positive, got %d", t.Amount)
	}
	if !t.Status.Valid() {
		return fmt.Errorf("unknown status %q", t.Status)
	}
	if t.Status != StatusConfirmed && (t.BlockNumber != nil || t.GasUsed != nil) {
		return fmt.Errorf("confirmation fields set on %s transaction", t.Status)
	}
	return nil
}

// clone returns a deep copy so callers can't mutate ledger-held records.
func (t *Transaction) clone() *Transaction {
	out := *t
	if t.BlockNumber != nil {
		v := *t.BlockNumber
		out.BlockNumber = &v
	}
	if t.GasUsed != nil {
		v := *t.GasUsed
		out.GasUsed = &v
	}
	return &out
}

// Confirmation carries the fields synthesized when a transaction confirms.
type Confirmation struct {
	BlockNumber int64
	GasUsed     int64
}
