package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/heartchain/heartchain/service/chains"
	"github.com/heartchain/heartchain/service/metrics"
)

var (
	// ErrNoProvider means the session was built without a wallet provider.
	ErrNoProvider = errors.New("no wallet provider available")

	// ErrNotConnected means an operation needs a connected wallet.
	ErrNotConnected = errors.New("wallet not connected")

	// ErrNoAccounts means the provider authorized zero accounts.
	ErrNoAccounts = errors.New("wallet provider returned no accounts")
)

// Status is the session's connection state.
type Status int

const (
	StatusDisconnected Status = iota
	StatusConnecting
	StatusConnected
)

func (s Status) String() string {
	switch s {
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// State is a snapshot of the session's externally visible fields. Address is
// non-empty iff Status is StatusConnected; Balance is only meaningful while
// connected.
type State struct {
	Status  Status
	Address string
	ChainID string
	Balance string
}

// Connected reports whether the snapshot represents an authorized session.
func (s State) Connected() bool { return s.Status == StatusConnected }

// Options configures a Session.
type Options struct {
	// TargetChainID is the network donations must settle on. Defaults to
	// the Shardeum Sphinx demo network.
	TargetChainID string

	// PollInterval is the balance refresh cadence while connected.
	// Defaults to 5 seconds.
	PollInterval time.Duration
}

// Session maintains a consistent view of the externally owned wallet
// connection: connection status, account address, chain ID and native-token
// balance. It synchronizes with the provider's event stream and polls the
// balance on an interval while connected.
//
// All methods are safe for concurrent use. Observers registered with
// Subscribe are invoked on every state change, so UI layers can re-render
// reactively.
type Session struct {
	provider Provider
	registry *chains.Registry
	flags    FlagStore
	metrics  *metrics.Metrics
	logger   *slog.Logger

	targetChainID string
	pollInterval  time.Duration

	mu            sync.Mutex
	state         State
	pollCancel    context.CancelFunc
	unsubAccounts func()
	unsubChain    func()
	observers     []func(State)
}

// NewSession creates a disconnected session. The provider may be nil, in
// which case Connect reports ErrNoProvider (the environment lacks a wallet).
// If flags is nil, reconnection state is not persisted and Restore is a
// no-op. If m is nil, no metrics are recorded.
func NewSession(provider Provider, registry *chains.Registry, flags FlagStore, opts Options, m *metrics.Metrics, logger *slog.Logger) *Session {
	if opts.TargetChainID == "" {
		opts.TargetChainID = chains.ShardeumSphinxChainID
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 5 * time.Second
	}
	if flags == nil {
		flags = noopFlagStore{}
	}
	return &Session{
		provider:      provider,
		registry:      registry,
		flags:         flags,
		metrics:       m,
		logger:        logger,
		targetChainID: strings.ToLower(opts.TargetChainID),
		pollInterval:  opts.PollInterval,
	}
}

// State returns a snapshot of the session fields.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Connected reports whether a provider account is currently authorized.
func (s *Session) Connected() bool { return s.State().Connected() }

// Address returns the connected account address, or "" when disconnected.
func (s *Session) Address() string { return s.State().Address }

// TargetChainID returns the network donations are expected to settle on.
func (s *Session) TargetChainID() string { return s.targetChainID }

// CorrectNetwork reports whether the wallet is on the target network.
// Chain correctness is derived state, not a distinct connection status.
func (s *Session) CorrectNetwork() bool {
	return s.State().ChainID == s.targetChainID
}

// Network returns the registry entry for the wallet's current chain, or
// false when the chain is unknown.
func (s *Session) Network() (*chains.Network, bool) {
	return s.registry.Get(s.State().ChainID)
}

// Subscribe registers an observer invoked on every state change. Observers
// are called outside the session lock and must not block for long.
func (s *Session) Subscribe(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Connect requests account access from the provider. On success the session
// holds the authorized address, chain ID and an initial balance, the
// restoration flag is persisted, event subscriptions are live, and balance
// polling is running. A best-effort switch to the target network is kicked
// off in the background; its failure does not fail the connect.
//
// Connecting while already connected is a no-op.
func (s *Session) Connect(ctx context.Context) error {
	if s.provider == nil {
		return ErrNoProvider
	}

	s.mu.Lock()
	switch s.state.Status {
	case StatusConnected:
		s.mu.Unlock()
		s.logger.Debug("wallet already connected")
		return nil
	case StatusConnecting:
		s.mu.Unlock()
		return nil
	}
	s.state.Status = StatusConnecting
	s.mu.Unlock()
	s.notify()

	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		s.reset()
		return fmt.Errorf("account request failed: %w", err)
	}
	if len(accounts) == 0 {
		s.reset()
		return ErrNoAccounts
	}

	return s.establish(ctx, accounts[0])
}

// Restore silently re-establishes a prior session. It only proceeds when the
// restoration flag is present and the provider still reports an authorized
// account; it never prompts the user and never returns a user-visible error
// for the ordinary "nothing to restore" cases.
func (s *Session) Restore(ctx context.Context) error {
	if s.provider == nil || !s.flags.WasConnected() {
		return nil
	}

	accounts, err := s.provider.Accounts(ctx)
	if err != nil {
		s.logger.Debug("silent restore skipped", "error", err)
		return nil
	}
	if len(accounts) == 0 {
		return nil
	}

	s.mu.Lock()
	if s.state.Status != StatusDisconnected {
		s.mu.Unlock()
		return nil
	}
	s.state.Status = StatusConnecting
	s.mu.Unlock()
	s.notify()

	return s.establish(ctx, accounts[0])
}

// establish completes a connect or restore for the given address.
func (s *Session) establish(ctx context.Context, address string) error {
	address = strings.ToLower(address)

	chainID, err := s.provider.ChainID(ctx)
	if err != nil {
		s.reset()
		return fmt.Errorf("failed to read chain ID: %w", err)
	}

	s.mu.Lock()
	s.state.Status = StatusConnected
	s.state.Address = address
	s.state.ChainID = chainID
	s.state.Balance = ""
	if s.unsubAccounts == nil {
		s.unsubAccounts = s.provider.OnAccountsChanged(s.handleAccountsChanged)
	}
	if s.unsubChain == nil {
		s.unsubChain = s.provider.OnChainChanged(s.handleChainChanged)
	}
	s.startPollingLocked()
	s.mu.Unlock()
	s.notify()

	if err := s.flags.SetConnected(true); err != nil {
		s.logger.Warn("failed to persist connection flag", "error", err)
	}

	if err := s.RefreshBalance(ctx); err != nil {
		s.logger.Warn("initial balance refresh failed", "address", address, "error", err)
	}

	if chainID != s.targetChainID {
		go func() {
			switchCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := s.SwitchNetwork(switchCtx, s.targetChainID); err != nil {
				s.logger.Warn("best-effort network switch failed",
					"target", s.targetChainID,
					"error", err,
				)
			}
		}()
	}

	s.logger.Info("wallet connected",
		"address", address,
		"chain_id", chainID,
		"network", s.registry.Name(chainID),
	)
	return nil
}

// Disconnect clears all session fields, cancels balance polling, removes
// event subscriptions and erases the restoration flag. Idempotent.
func (s *Session) Disconnect() {
	s.mu.Lock()
	if s.state.Status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	s.teardownLocked()
	s.state = State{}
	s.mu.Unlock()

	if err := s.flags.SetConnected(false); err != nil {
		s.logger.Warn("failed to clear connection flag", "error", err)
	}
	s.notify()
	s.logger.Info("wallet disconnected")
}

// teardownLocked cancels polling and event subscriptions. Callers hold s.mu.
func (s *Session) teardownLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
		s.pollCancel = nil
	}
	if s.unsubAccounts != nil {
		s.unsubAccounts()
		s.unsubAccounts = nil
	}
	if s.unsubChain != nil {
		s.unsubChain()
		s.unsubChain = nil
	}
}

// reset rolls a failed connect attempt back to the disconnected state.
func (s *Session) reset() {
	s.mu.Lock()
	s.teardownLocked()
	s.state = State{}
	s.mu.Unlock()
	s.notify()
}

// SwitchNetwork requests the provider to switch to the given chain. If the
// provider doesn't know the chain it is added from the registry and the
// switch retried once.
func (s *Session) SwitchNetwork(ctx context.Context, chainID string) error {
	if s.provider == nil {
		return ErrNoProvider
	}
	chainID = strings.ToLower(chainID)

	err := s.provider.SwitchChain(ctx, chainID)
	if IsUnknownChain(err) {
		network, ok := s.registry.Get(chainID)
		if !ok {
			return fmt.Errorf("chain %s is not in the network registry: %w", chainID, err)
		}
		if addErr := s.provider.AddChain(ctx, network); addErr != nil {
			return fmt.Errorf("failed to add network %s: %w", network.Name, addErr)
		}
		err = s.provider.SwitchChain(ctx, chainID)
	}
	if err != nil {
		return fmt.Errorf("network switch failed: %w", err)
	}

	// Providers don't reliably echo a chain-changed event for a switch we
	// initiated; update the session view directly.
	s.mu.Lock()
	changed := s.state.Status == StatusConnected && s.state.ChainID != chainID
	if changed {
		s.state.ChainID = chainID
	}
	s.mu.Unlock()
	if changed {
		s.notify()
		s.refreshBalanceAsync()
	}
	return nil
}

// RefreshBalance reads the connected address's native balance and updates
// the session only when the formatted value actually changed, so observers
// aren't churned by identical polls. No-op while disconnected.
func (s *Session) RefreshBalance(ctx context.Context) error {
	s.mu.Lock()
	address := s.state.Address
	network, _ := s.registry.Get(s.state.ChainID)
	s.mu.Unlock()
	if address == "" {
		return nil
	}

	wei, err := s.provider.Balance(ctx, address)
	if err != nil {
		return fmt.Errorf("balance fetch failed: %w", err)
	}

	decimals := 18
	if network != nil {
		decimals = network.Decimals
	}
	formatted := FormatUnits(wei, decimals)

	s.mu.Lock()
	// The session may have disconnected or switched accounts while the
	// fetch was in flight; a stale result must not overwrite newer state.
	if s.state.Address != address || s.state.Balance == formatted {
		s.mu.Unlock()
		return nil
	}
	s.state.Balance = formatted
	s.mu.Unlock()
	s.notify()
	return nil
}

// SignMessage asks the wallet to sign a message with the connected account.
func (s *Session) SignMessage(ctx context.Context, message string) (string, error) {
	if s.provider == nil {
		return "", ErrNoProvider
	}
	s.mu.Lock()
	address := s.state.Address
	connected := s.state.Status == StatusConnected
	s.mu.Unlock()
	if !connected {
		return "", ErrNotConnected
	}
	return s.provider.SignMessage(ctx, address, message)
}

// startPollingLocked (re)starts the balance poll loop. Callers hold s.mu.
func (s *Session) startPollingLocked() {
	if s.pollCancel != nil {
		s.pollCancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.pollCancel = cancel
	go s.pollBalance(ctx)
}

// pollBalance refreshes the balance on a fixed interval until cancelled.
func (s *Session) pollBalance(ctx context.Context) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, s.pollInterval)
			if err := s.RefreshBalance(refreshCtx); err != nil {
				s.logger.Debug("balance poll failed", "error", err)
			}
			cancel()
		}
	}
}

// handleAccountsChanged reacts to the provider's account-change events. An
// empty account list means the user revoked access and the session tears
// down; a different account re-points the session and restarts polling.
func (s *Session) handleAccountsChanged(accounts []string) {
	if len(accounts) == 0 {
		s.logger.Info("provider reported no authorized accounts")
		s.Disconnect()
		return
	}

	address := strings.ToLower(accounts[0])
	s.mu.Lock()
	if s.state.Status != StatusConnected || s.state.Address == address {
		s.mu.Unlock()
		return
	}
	s.state.Address = address
	s.state.Balance = ""
	s.startPollingLocked()
	s.mu.Unlock()
	s.notify()
	s.logger.Info("wallet account changed", "address", address)
	s.refreshBalanceAsync()
}

// handleChainChanged reacts to the provider's chain-change events. The
// connection state is unchanged; only the chain ID and balance refresh.
func (s *Session) handleChainChanged(chainID string) {
	chainID = strings.ToLower(chainID)
	s.mu.Lock()
	if s.state.Status != StatusConnected || s.state.ChainID == chainID {
		s.mu.Unlock()
		return
	}
	s.state.ChainID = chainID
	s.mu.Unlock()
	s.notify()
	s.logger.Info("wallet chain changed",
		"chain_id", chainID,
		"network", s.registry.Name(chainID),
	)
	s.refreshBalanceAsync()
}

func (s *Session) refreshBalanceAsync() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.pollInterval)
		defer cancel()
		if err := s.RefreshBalance(ctx); err != nil {
			s.logger.Debug("balance refresh failed", "error", err)
		}
	}()
}

// notify delivers the current snapshot to all observers.
func (s *Session) notify() {
	s.mu.Lock()
	state := s.state
	observers := make([]func(State), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn(state)
	}
}
