package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/heartchain/heartchain/service/metrics"
)

// ErrNotFound means no donation with the given hash exists.
var ErrNotFound = errors.New("donation not found")

// Store provides database operations for the replication service.
type Store struct {
	pool    *pgxpool.Pool
	metrics *metrics.Metrics
}

// NewStore creates a new Store with the given database connection pool.
// If m is nil, no metrics are recorded.
func NewStore(pool *pgxpool.Pool, m *metrics.Metrics) *Store {
	return &Store{pool: pool, metrics: m}
}

// Donation is the replicated server-side copy of a ledger transaction.
type Donation struct {
	Hash          string
	CampaignID    string
	CampaignTitle string
	Amount        int64
	DonorAddress  string
	Status        string
	ChainID       string
	ExplorerURL   *string
	BlockNumber   *int64
	GasUsed       *int64
	Timestamp     time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// UpsertDonationParams contains the parameters for replicating a donation.
type UpsertDonationParams struct {
	Hash          string
	CampaignID    string
	CampaignTitle string
	Amount        int64
	DonorAddress  string
	Status        string
	ChainID       string
	ExplorerURL   *string
	BlockNumber   *int64
	GasUsed       *int64
	Timestamp     time.Time
}

const donationColumns = `hash, campaign_id, campaign_title, amount, donor_address,
	status, chain_id, explorer_url, block_number, gas_used, ts, created_at, updated_at`

func scanDonation(row pgx.Row) (*Donation, error) {
	var d Donation
	err := row.Scan(
		&d.Hash, &d.CampaignID, &d.CampaignTitle, &d.Amount, &d.DonorAddress,
		&d.Status, &d.ChainID, &d.ExplorerURL, &d.BlockNumber, &d.GasUsed,
		&d.Timestamp, &d.CreatedAt, &d.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) record(operation string, start time.Time, err error) {
	if s.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	s.metrics.RecordDBQuery(operation, status, time.Since(start).Seconds())
}

// UpsertDonation inserts a donation record or merges a status update into an
// existing one, keyed by hash. Returns the stored row and whether it was
// newly created.
func (s *Store) UpsertDonation(ctx context.Context, params UpsertDonationParams) (*Donation, bool, error) {
	start := time.Now()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO donations (
			hash, campaign_id, campaign_title, amount, donor_address,
			status, chain_id, explorer_url, block_number, gas_used, ts
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (hash) DO UPDATE SET
			status       = EXCLUDED.status,
			block_number = EXCLUDED.block_number,
			gas_used     = EXCLUDED.gas_used,
			updated_at   = now()
		RETURNING `+donationColumns+`, (xmax = 0) AS inserted`,
		params.Hash, params.CampaignID, params.CampaignTitle, params.Amount,
		params.DonorAddress, params.Status, params.ChainID, params.ExplorerURL,
		params.BlockNumber, params.GasUsed, params.Timestamp,
	)

	var d Donation
	var inserted bool
	err := row.Scan(
		&d.Hash, &d.CampaignID, &d.CampaignTitle, &d.Amount, &d.DonorAddress,
		&d.Status, &d.ChainID, &d.ExplorerURL, &d.BlockNumber, &d.GasUsed,
		&d.Timestamp, &d.CreatedAt, &d.UpdatedAt, &inserted,
	)
	s.record("upsert_donation", start, err)
	if err != nil {
		return nil, false, fmt.Errorf("failed to upsert donation: %w", err)
	}
	return &d, inserted, nil
}

// GetDonation retrieves a donation by its hash.
func (s *Store) GetDonation(ctx context.Context, hash string) (*Donation, error) {
	start := time.Now()

	d, err := scanDonation(s.pool.QueryRow(ctx,
		`SELECT `+donationColumns+` FROM donations WHERE hash = $1`, hash))
	s.record("get_donation", start, err)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get donation: %w", err)
	}
	return d, nil
}

// ListDonationsParams contains filter and pagination parameters.
type ListDonationsParams struct {
	CampaignID   string
	DonorAddress string
	Limit        int32
	Offset       int32
}

// ListDonations retrieves donations newest first, optionally filtered by
// campaign and/or donor address.
func (s *Store) ListDonations(ctx context.Context, params ListDonationsParams) ([]*Donation, error) {
	start := time.Now()

	if params.Limit <= 0 {
		params.Limit = 100
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+donationColumns+`
		FROM donations
		WHERE ($1 = '' OR campaign_id = $1)
		  AND ($2 = '' OR donor_address = $2)
		ORDER BY ts DESC
		LIMIT $3 OFFSET $4`,
		params.CampaignID, params.DonorAddress, params.Limit, params.Offset,
	)
	if err != nil {
		s.record("list_donations", start, err)
		return nil, fmt.Errorf("failed to list donations: %w", err)
	}
	defer rows.Close()

	var donations []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			s.record("list_donations", start, err)
			return nil, fmt.Errorf("failed to scan donation: %w", err)
		}
		donations = append(donations, d)
	}
	err = rows.Err()
	s.record("list_donations", start, err)
	if err != nil {
		return nil, fmt.Errorf("failed to read donations: %w", err)
	}
	return donations, nil
}

// CampaignTotal aggregates the confirmed donations for a campaign.
func (s *Store) CampaignTotal(ctx context.Context, campaignID string) (raised int64, count int64, err error) {
	start := time.Now()

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0), COUNT(*)
		FROM donations
		WHERE campaign_id = $1 AND status = 'confirmed'`,
		campaignID,
	).Scan(&raised, &count)
	s.record("campaign_total", start, err)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to aggregate campaign total: %w", err)
	}
	return raised, count, nil
}
