package donation

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	mathrand "math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/heartchain/heartchain/service/chains"
	"github.com/heartchain/heartchain/service/ledger"
	"github.com/heartchain/heartchain/service/metrics"
	"github.com/heartchain/heartchain/service/wallet"
)

// DefaultUnitsPerToken is the fixed demo exchange rate: 1000 donor currency
// units buy one whole native token.
const DefaultUnitsPerToken = 1000

// DefaultConfirmationDelay simulates the time between broadcast and block
// inclusion.
const DefaultConfirmationDelay = 2 * time.Second

// Replicator pushes confirmed transactions to the external ledger service.
// Replication is best-effort: the local ledger stays authoritative and a
// replication failure never changes a record's status.
type Replicator interface {
	Replicate(ctx context.Context, tx *ledger.Transaction) error
}

// Options configures a Flow.
type Options struct {
	// UnitsPerToken is the donor-currency-to-native exchange rate.
	// Defaults to DefaultUnitsPerToken.
	UnitsPerToken int64

	// ConfirmationDelay is the simulated wait before a signed donation is
	// marked confirmed. Defaults to DefaultConfirmationDelay.
	ConfirmationDelay time.Duration
}

// Flow drives one donation attempt from intent to a settled (or failed)
// transaction record. There is no real value transfer: the wallet signs a
// human-readable message and the confirmation details are synthesized, which
// is the whole of the demo's settlement model.
type Flow struct {
	session    *wallet.Session
	ledger     *ledger.Ledger
	registry   *chains.Registry
	replicator Replicator
	metrics    *metrics.Metrics
	logger     *slog.Logger

	unitsPerToken int64
	confirmDelay  time.Duration

	inFlight atomic.Bool
}

// NewFlow creates a donation flow. The replicator may be nil, in which case
// confirmed records are kept locally only. If m is nil, no metrics are
// recorded.
func NewFlow(session *wallet.Session, l *ledger.Ledger, registry *chains.Registry, replicator Replicator, opts Options, m *metrics.Metrics, logger *slog.Logger) *Flow {
	if opts.UnitsPerToken <= 0 {
		opts.UnitsPerToken = DefaultUnitsPerToken
	}
	if opts.ConfirmationDelay <= 0 {
		opts.ConfirmationDelay = DefaultConfirmationDelay
	}
	return &Flow{
		session:       session,
		ledger:        l,
		registry:      registry,
		replicator:    replicator,
		metrics:       m,
		logger:        logger,
		unitsPerToken: opts.UnitsPerToken,
		confirmDelay:  opts.ConfirmationDelay,
	}
}

// Donate runs one donation attempt. amount is in donor currency units and
// must be positive.
//
// The pending record enters the ledger before signature collection starts,
// so observers can render progress while the user decides. After the
// signature succeeds the flow runs to completion even if the caller's
// context is cancelled; there is no way to abandon a donation mid-flight.
// On success the confirmed record is returned; on failure the record is left
// in the ledger as failed so the user can see what was attempted.
func (f *Flow) Donate(ctx context.Context, campaignID, campaignTitle string, amount int64) (*ledger.Transaction, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("donation amount must be positive, got %d", amount)
	}

	if !f.inFlight.CompareAndSwap(false, true) {
		return nil, ErrDonationInFlight
	}
	defer f.inFlight.Store(false)

	start := time.Now()

	// Precondition checks, in order: connection first, then network.
	state := f.session.State()
	if !state.Connected() {
		f.record("wallet_not_connected", start)
		return nil, ErrWalletNotConnected
	}
	target := f.session.TargetChainID()
	if state.ChainID != target {
		f.record("wrong_network", start)
		return nil, fmt.Errorf("%w: on %s, expected %s",
			ErrWrongNetwork, f.registry.Name(state.ChainID), f.registry.Name(target))
	}

	network, ok := f.registry.Get(target)
	if !ok {
		return nil, fmt.Errorf("target chain %s is not in the network registry", target)
	}

	hash, err := newTxHash()
	if err != nil {
		return nil, fmt.Errorf("failed to generate transaction hash: %w", err)
	}

	tx := &ledger.Transaction{
		Hash:          hash,
		CampaignID:    campaignID,
		CampaignTitle: campaignTitle,
		Amount:        amount,
		DonorAddress:  state.Address,
		Timestamp:     time.Now().UTC(),
		Status:        ledger.StatusPending,
		ChainID:       target,
		ExplorerURL:   network.ExplorerTxURL(hash),
	}
	if err := f.ledger.Append(tx); err != nil {
		return nil, fmt.Errorf("failed to record pending donation: %w", err)
	}
	f.logger.Info("donation pending",
		"hash", hash,
		"campaign_id", campaignID,
		"amount", amount,
		"donor", state.Address,
	)

	nativeAmount := wallet.DonorUnitsToWei(amount, network.Decimals, f.unitsPerToken)
	message := fmt.Sprintf(
		"HeartChain Donation\n\nCampaign: %s\nAmount: %s %s\nTimestamp: %d",
		campaignTitle,
		wallet.FormatUnits(nativeAmount, network.Decimals),
		network.NativeSymbol,
		tx.Timestamp.UnixMilli(),
	)

	signature, err := f.session.SignMessage(ctx, message)
	if err != nil {
		if _, updateErr := f.ledger.UpdateStatus(hash, ledger.StatusFailed, nil); updateErr != nil {
			f.logger.Error("failed to mark donation failed", "hash", hash, "error", updateErr)
		}
		return nil, f.signatureError(err, hash, start)
	}
	f.logger.Debug("donation signed", "hash", hash, "signature", truncate(signature, 20))

	// Simulated block inclusion. Deliberately not tied to ctx: a signed
	// donation always reaches a terminal status.
	time.Sleep(f.confirmDelay)

	conf := &ledger.Confirmation{
		BlockNumber: 4_800_000 + mathrand.Int64N(200_000),
		GasUsed:     21_000 + mathrand.Int64N(10_000),
	}
	confirmed, err := f.ledger.UpdateStatus(hash, ledger.StatusConfirmed, conf)
	if err != nil {
		f.record("provider_error", start)
		return nil, fmt.Errorf("failed to confirm donation: %w", err)
	}

	f.replicate(confirmed)
	f.record("confirmed", start)
	f.logger.Info("donation confirmed",
		"hash", hash,
		"block_number", conf.BlockNumber,
		"gas_used", conf.GasUsed,
	)
	return confirmed, nil
}

// signatureError maps a signing failure onto the flow's error taxonomy and
// records the terminal status.
func (f *Flow) signatureError(err error, hash string, start time.Time) error {
	switch {
	case wallet.IsUserRejected(err):
		f.record("user_rejected", start)
		f.logger.Info("donation rejected by user", "hash", hash)
		return fmt.Errorf("%w: %s", ErrUserRejected, hash)
	default:
		f.record("provider_error", start)
		f.logger.Error("donation signature failed", "hash", hash, "error", err)
		return fmt.Errorf("signature request failed: %w", err)
	}
}

// replicate pushes the confirmed record to the ledger service. Failures are
// logged only; the local record's status is already settled.
func (f *Flow) replicate(tx *ledger.Transaction) {
	if f.replicator == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	start := time.Now()
	err := f.replicator.Replicate(ctx, tx)
	status := "success"
	if err != nil {
		status = "error"
		f.logger.Warn("best-effort replication failed", "hash", tx.Hash, "error", err)
	}
	if f.metrics != nil {
		f.metrics.RecordReplication(status, time.Since(start).Seconds())
	}
}

func (f *Flow) record(status string, start time.Time) {
	if f.metrics != nil {
		f.metrics.RecordDonation(status, time.Since(start).Seconds())
	}
}

// newTxHash generates a realistic 32-byte hex transaction hash.
func newTxHash() (string, error) {
	var b [32]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(b[:]), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
