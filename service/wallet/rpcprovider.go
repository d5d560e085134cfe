package wallet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/heartchain/heartchain/service/chains"
	"github.com/heartchain/heartchain/service/metrics"
)

// rpcProvider adapts a go-ethereum JSON-RPC client to the Provider
// interface. It speaks the same method surface a browser wallet exposes
// (eth_requestAccounts, personal_sign, wallet_switchEthereumChain, ...), so
// it works against a node with unlocked accounts or a wallet RPC bridge.
//
// Plain JSON-RPC has no push events for account or chain changes, so the
// adapter polls both and emits change callbacks when they differ, matching
// the observable behavior a browser provider gives the session.
type rpcProvider struct {
	client  *rpc.Client
	logger  *slog.Logger
	metrics *metrics.Metrics

	watchInterval time.Duration

	mu           sync.Mutex
	nextSubID    int
	accountSubs  map[int]func([]string)
	chainSubs    map[int]func(string)
	lastAccounts []string
	lastChainID  string
	watchCancel  context.CancelFunc
	closed       bool
}

// NewRPCProvider dials the given JSON-RPC endpoint and returns a Provider
// backed by it. If m is nil, no metrics are recorded.
func NewRPCProvider(rpcURL string, m *metrics.Metrics, logger *slog.Logger) (Provider, error) {
	client, err := rpc.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial wallet RPC: %w", err)
	}
	return &rpcProvider{
		client:        client,
		logger:        logger,
		metrics:       m,
		watchInterval: 2 * time.Second,
		accountSubs:   make(map[int]func([]string)),
		chainSubs:     make(map[int]func(string)),
	}, nil
}

// call wraps client.CallContext with metrics and provider error mapping.
func (p *rpcProvider) call(ctx context.Context, result any, method string, args ...any) error {
	start := time.Now()
	err := p.client.CallContext(ctx, result, method, args...)
	status := "success"
	if err != nil {
		status = "error"
	}
	if p.metrics != nil {
		p.metrics.RecordProviderCall(method, status, time.Since(start).Seconds())
	}
	return wrapRPCError(err)
}

func (p *rpcProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_requestAccounts"); err != nil {
		// Nodes without the wallet extension surface only eth_accounts.
		var pe *ProviderError
		if !errors.As(err, &pe) {
			return nil, err
		}
		if err := p.call(ctx, &accounts, "eth_accounts"); err != nil {
			return nil, err
		}
	}
	return lowercaseAll(accounts), nil
}

func (p *rpcProvider) Accounts(ctx context.Context) ([]string, error) {
	var accounts []string
	if err := p.call(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, err
	}
	return lowercaseAll(accounts), nil
}

func (p *rpcProvider) ChainID(ctx context.Context) (string, error) {
	var chainID string
	if err := p.call(ctx, &chainID, "eth_chainId"); err != nil {
		return "", err
	}
	return strings.ToLower(chainID), nil
}

func (p *rpcProvider) Balance(ctx context.Context, address string) (*big.Int, error) {
	var balance hexutil.Big
	if err := p.call(ctx, &balance, "eth_getBalance", address, "latest"); err != nil {
		return nil, err
	}
	return (*big.Int)(&balance), nil
}

func (p *rpcProvider) SwitchChain(ctx context.Context, chainID string) error {
	return p.call(ctx, nil, "wallet_switchEthereumChain", map[string]string{
		"chainId": chainID,
	})
}

func (p *rpcProvider) AddChain(ctx context.Context, network *chains.Network) error {
	return p.call(ctx, nil, "wallet_addEthereumChain", map[string]any{
		"chainId":   network.ChainID,
		"chainName": network.Name,
		"nativeCurrency": map[string]any{
			"name":     network.NativeSymbol,
			"symbol":   network.NativeSymbol,
			"decimals": network.Decimals,
		},
		"rpcUrls":           []string{network.RPCURL},
		"blockExplorerUrls": []string{network.ExplorerURL},
	})
}

func (p *rpcProvider) SignMessage(ctx context.Context, address, message string) (string, error) {
	var signature string
	data := hexutil.Encode([]byte(message))
	if err := p.call(ctx, &signature, "personal_sign", data, address); err != nil {
		return "", err
	}
	return signature, nil
}

func (p *rpcProvider) OnAccountsChanged(fn func([]string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	p.accountSubs[id] = fn
	p.ensureWatchLocked()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.accountSubs, id)
	}
}

func (p *rpcProvider) OnChainChanged(fn func(string)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextSubID
	p.nextSubID++
	p.chainSubs[id] = fn
	p.ensureWatchLocked()
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.chainSubs, id)
	}
}

// ensureWatchLocked starts the change-detection loop on first subscription.
// Callers must hold p.mu.
func (p *rpcProvider) ensureWatchLocked() {
	if p.watchCancel != nil || p.closed {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.watchCancel = cancel
	go p.watch(ctx)
}

// watch polls accounts and chain ID, emitting callbacks on change.
func (p *rpcProvider) watch(ctx context.Context) {
	ticker := time.NewTicker(p.watchInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.checkChanges(ctx)
		}
	}
}

func (p *rpcProvider) checkChanges(ctx context.Context) {
	callCtx, cancel := context.WithTimeout(ctx, p.watchInterval)
	defer cancel()

	accounts, accErr := p.Accounts(callCtx)
	chainID, chainErr := p.ChainID(callCtx)
	if accErr != nil || chainErr != nil {
		p.logger.Debug("provider change poll failed",
			"accounts_error", accErr,
			"chain_error", chainErr,
		)
		return
	}

	p.mu.Lock()
	var accountFns []func([]string)
	if !equalStrings(accounts, p.lastAccounts) {
		p.lastAccounts = accounts
		for _, fn := range p.accountSubs {
			accountFns = append(accountFns, fn)
		}
	}
	var chainFns []func(string)
	if chainID != p.lastChainID {
		p.lastChainID = chainID
		for _, fn := range p.chainSubs {
			chainFns = append(chainFns, fn)
		}
	}
	p.mu.Unlock()

	for _, fn := range accountFns {
		fn(accounts)
	}
	for _, fn := range chainFns {
		fn(chainID)
	}
}

func (p *rpcProvider) Close() error {
	p.mu.Lock()
	p.closed = true
	if p.watchCancel != nil {
		p.watchCancel()
		p.watchCancel = nil
	}
	p.accountSubs = make(map[int]func([]string))
	p.chainSubs = make(map[int]func(string))
	p.mu.Unlock()

	p.client.Close()
	return nil
}

// wrapRPCError converts a go-ethereum RPC error into a ProviderError so
// callers can inspect provider codes (user rejection, unknown chain).
func wrapRPCError(err error) error {
	if err == nil {
		return nil
	}
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) {
		return &ProviderError{Code: rpcErr.ErrorCode(), Message: rpcErr.Error()}
	}
	return err
}

func lowercaseAll(ss []string) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = strings.ToLower(s)
	}
	return out
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
