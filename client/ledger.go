package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/heartchain/heartchain/service/ledger"
)

// Donation is a server-side copy of a replicated ledger transaction.
type Donation struct {
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
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CampaignTotal is the aggregate of confirmed donations for one campaign.
type CampaignTotal struct {
	CampaignID string `json:"campaign_id"`
	Raised     int64  `json:"raised"`
	Donations  int64  `json:"donations"`
}

// Client is the HTTP client for the ledger replication service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new replication service client.
func NewClient(baseURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Replicate pushes a ledger transaction to the server, keyed by hash.
// Replaying a hash with a newer status merges the update.
func (c *Client) Replicate(ctx context.Context, tx *ledger.Transaction) error {
	body, err := json.Marshal(tx)
	if err != nil {
		return fmt.Errorf("failed to marshal transaction: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.baseURL+"/api/v1/transactions", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return c.parseErrorResponse(resp)
	}

	c.logger.Debug("transaction replicated", "hash", tx.Hash, "status", tx.Status)
	return nil
}

// Get retrieves the replicated record for a specific transaction hash.
func (c *Client) Get(ctx context.Context, hash string) (*Donation, error) {
	u := fmt.Sprintf("%s/api/v1/transactions/%s", c.baseURL, url.PathEscape(hash))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var d Donation
	if err := json.NewDecoder(resp.Body).Decode(&d); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &d, nil
}

// ListParams filters a donation listing. Zero values mean no filter.
type ListParams struct {
	CampaignID   string
	DonorAddress string
	Limit        int
	Offset       int
}

// List retrieves replicated donations newest first.
func (c *Client) List(ctx context.Context, params ListParams) ([]*Donation, error) {
	q := url.Values{}
	if params.CampaignID != "" {
		q.Set("campaign_id", params.CampaignID)
	}
	if params.DonorAddress != "" {
		q.Set("donor", params.DonorAddress)
	}
	if params.Limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", params.Limit))
	}
	if params.Offset > 0 {
		q.Set("offset", fmt.Sprintf("%d", params.Offset))
	}

	u := c.baseURL + "/api/v1/transactions"
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}

	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var response struct {
		Transactions []*Donation `json:"transactions"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return response.Transactions, nil
}

// Total retrieves the confirmed donation aggregate for a campaign.
func (c *Client) Total(ctx context.Context, campaignID string) (*CampaignTotal, error) {
	u := fmt.Sprintf("%s/api/v1/campaigns/%s/total", c.baseURL, url.PathEscape(campaignID))
	req, err := http.NewRequestWithContext(ctx, "GET", u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.parseErrorResponse(resp)
	}

	var total CampaignTotal
	if err := json.NewDecoder(resp.Body).Decode(&total); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	return &total, nil
}

// parseErrorResponse attempts to parse an error response from the server.
func (c *Client) parseErrorResponse(resp *http.Response) error {
	var errResp struct {
		Error string `json:"error"`
	}

	body, _ := io.ReadAll(resp.Body)
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error == "" {
		return fmt.Errorf("request failed with status %d: %s", resp.StatusCode, string(body))
	}

	return fmt.Errorf("request failed: %s", errResp.Error)
}
