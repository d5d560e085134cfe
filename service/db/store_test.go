package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHash(seed byte) string {
	hash := "0x"
	for i := 0; i < 32; i++ {
		hash += fmt.Sprintf("%02x", seed)
	}
	return hash
}

func pendingParams(seed byte) UpsertDonationParams {
	return UpsertDonationParams{
		Hash:          testHash(seed),
		CampaignID:    "clean-water",
		CampaignTitle: "Clean Water for All",
		Amount:        500,
		DonorAddress:  "0x7a3b9f82d4c1e5a6b8d0f2c4e6a8b0d2f4c6e8a0",
		Status:        "pending",
		ChainID:       "0x1f92",
		Timestamp:     time.Now().UTC().Truncate(time.Millisecond),
	}
}

func confirmedParams(seed byte) UpsertDonationParams {
	p := pendingParams(seed)
	p.Status = "confirmed"
	block := int64(4_800_500)
	gas := int64(21_250)
	p.BlockNumber = &block
	p.GasUsed = &gas
	return p
}

func TestUpsertDonation(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	ctx := context.Background()

	// First write creates the row.
	d, created, err := ts.UpsertDonation(ctx, pendingParams(0x01))
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "pending", d.Status)
	assert.Nil(t, d.BlockNumber)
	assert.False(t, d.CreatedAt.IsZero())

	// Replaying the hash with confirmation details merges the update.
	d, created, err = ts.UpsertDonation(ctx, confirmedParams(0x01))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "confirmed", d.Status)
	require.NotNil(t, d.BlockNumber)
	assert.Equal(t, int64(4_800_500), *d.BlockNumber)
	assert.True(t, d.UpdatedAt.After(d.CreatedAt) || d.UpdatedAt.Equal(d.CreatedAt))
}

func TestGetDonation(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	ctx := context.Background()
	_, _, err := ts.UpsertDonation(ctx, confirmedParams(0x02))
	require.NoError(t, err)

	d, err := ts.GetDonation(ctx, testHash(0x02))
	require.NoError(t, err)
	assert.Equal(t, testHash(0x02), d.Hash)
	assert.Equal(t, "clean-water", d.CampaignID)

	_, err = ts.GetDonation(ctx, testHash(0xff))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListDonations(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i := byte(1); i <= 4; i++ {
		p := confirmedParams(i)
		p.Timestamp = base.Add(time.Duration(i) * time.Minute)
		if i == 4 {
			p.CampaignID = "forest-restoration"
			p.DonorAddress = "0x1111111111111111111111111111111111111111"
		}
		_, _, err := ts.UpsertDonation(ctx, p)
		require.NoError(t, err)
	}

	// Unfiltered, newest first.
	all, err := ts.ListDonations(ctx, ListDonationsParams{})
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, testHash(0x04), all[0].Hash)
	assert.Equal(t, testHash(0x01), all[3].Hash)

	// Campaign filter.
	byCampaign, err := ts.ListDonations(ctx, ListDonationsParams{CampaignID: "clean-water"})
	require.NoError(t, err)
	assert.Len(t, byCampaign, 3)

	// Donor filter.
	byDonor, err := ts.ListDonations(ctx, ListDonationsParams{
		DonorAddress: "0x1111111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	require.Len(t, byDonor, 1)
	assert.Equal(t, testHash(0x04), byDonor[0].Hash)

	// Both filters must match.
	both, err := ts.ListDonations(ctx, ListDonationsParams{
		CampaignID:   "clean-water",
		DonorAddress: "0x1111111111111111111111111111111111111111",
	})
	require.NoError(t, err)
	assert.Empty(t, both)

	// Pagination.
	page, err := ts.ListDonations(ctx, ListDonationsParams{Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, testHash(0x03), page[0].Hash)
}

func TestCampaignTotal(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	ctx := context.Background()

	confirmed := confirmedParams(0x01)
	confirmed.Amount = 1000
	_, _, err := ts.UpsertDonation(ctx, confirmed)
	require.NoError(t, err)

	confirmed2 := confirmedParams(0x02)
	confirmed2.Amount = 250
	_, _, err = ts.UpsertDonation(ctx, confirmed2)
	require.NoError(t, err)

	// Pending and failed donations never count.
	pending := pendingParams(0x03)
	pending.Amount = 9999
	_, _, err = ts.UpsertDonation(ctx, pending)
	require.NoError(t, err)

	raised, count, err := ts.CampaignTotal(ctx, "clean-water")
	require.NoError(t, err)
	assert.Equal(t, int64(1250), raised)
	assert.Equal(t, int64(2), count)

	// An unknown campaign aggregates to zero, not an error.
	raised, count, err = ts.CampaignTotal(ctx, "no-such-campaign")
	require.NoError(t, err)
	assert.Zero(t, raised)
	assert.Zero(t, count)
}

func TestUpsertDonationRejectsSchemaViolations(t *testing.T) {
	ts := NewTestStore(t)
	defer ts.Close()
	ts.Truncate(t)

	ctx := context.Background()

	bad := pendingParams(0x01)
	bad.Status = "settled"
	_, _, err := ts.UpsertDonation(ctx, bad)
	assert.Error(t, err, "status outside the CHECK constraint must fail")

	bad = pendingParams(0x02)
	bad.Amount = 0
	_, _, err = ts.UpsertDonation(ctx, bad)
	assert.Error(t, err, "non-positive amount must fail")
}
