package wallet

import (
	"context"
	"math/big"
	"strings"
	"sync"

	"github.com/heartchain/heartchain/service/chains"
)

// MockProvider is a scriptable Provider implementation for testing. It
// records calls and lets tests emit account/chain change events without a
// real wallet extension.
type MockProvider struct {
	mu sync.Mutex

	// Scripted responses.
	AccountsResult      []string
	RequestAccountsErr  error
	AccountsErr         error
	ChainIDResult       string
	ChainIDErr          error
	BalanceResult       *big.Int
	BalanceErr          error
	SwitchChainErr      error
	SwitchChainErrOnce  bool
	AddChainErr         error
	SignMessageResult   string
	SignMessageErr      error

	// Recorded calls.
	RequestAccountsCalls int
	BalanceCalls         int
	SwitchChainCalls     []string
	AddChainCalls        []string
	SignedMessages       []string

	nextSubID   int
	accountSubs map[int]func([]string)
	chainSubs   map[int]func(string)
	closed      bool
}

// NewMockProvider creates a mock provider with a connected-looking default
// state: one authorized account on the Shardeum Sphinx demo network.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		AccountsResult:    []string{"0x7a3b9f82d4c1e5a6b8d0f2c4e6a8b0d2f4c6e8a0"},
		ChainIDResult:     chains.ShardeumSphinxChainID,
		BalanceResult:     big.NewInt(5e18),
		SignMessageResult: "0xmocksignature",
		accountSubs:       make(map[int]func([]string)),
		chainSubs:         make(map[int]func(string)),
	}
}

func (m *MockProvider) RequestAccounts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestAccountsCalls++
	if m.RequestAccountsErr != nil {
		return nil, m.RequestAccountsErr
	}
	return lowercaseAll(m.AccountsResult), nil
}

func (m *MockProvider) Accounts(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.AccountsErr != nil {
		return nil, m.AccountsErr
	}
	return lowercaseAll(m.AccountsResult), nil
}

func (m *MockProvider) ChainID(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ChainIDErr != nil {
		return "", m.ChainIDErr
	}
	return strings.ToLower(m.ChainIDResult), nil
}

func (m *MockProvider) Balance(ctx context.Context, address string) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BalanceCalls++
	if m.BalanceErr != nil {
		return nil, m.BalanceErr
	}
	return new(big.Int).Set(m.BalanceResult), nil
}

func (m *MockProvider) SwitchChain(ctx context.Context, chainID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SwitchChainCalls = append(m.SwitchChainCalls, chainID)
	if m.SwitchChainErr != nil {
		err := m.SwitchChainErr
		if m.SwitchChainErrOnce {
			m.SwitchChainErr = nil
		}
		return err
	}
	m.ChainIDResult = chainID
	return nil
}

func (m *MockProvider) AddChain(ctx context.Context, network *chains.Network) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddChainCalls = append(m.AddChainCalls, network.ChainID)
	return m.AddChainErr
}

func (m *MockProvider) SignMessage(ctx context.Context, address, message string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SignedMessages = append(m.SignedMessages, message)
	if m.SignMessageErr != nil {
		return "", m.SignMessageErr
	}
	return m.SignMessageResult, nil
}

func (m *MockProvider) OnAccountsChanged(fn func([]string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.accountSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.accountSubs, id)
	}
}

func (m *MockProvider) OnChainChanged(fn func(string)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextSubID
	m.nextSubID++
	m.chainSubs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.chainSubs, id)
	}
}

func (m *MockProvider) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// EmitAccountsChanged fires the accounts-changed event as the wallet would.
func (m *MockProvider) EmitAccountsChanged(accounts []string) {
	m.mu.Lock()
	m.AccountsResult = accounts
	fns := make([]func([]string), 0, len(m.accountSubs))
	for _, fn := range m.accountSubs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(lowercaseAll(accounts))
	}
}

// EmitChainChanged fires the chain-changed event as the wallet would.
func (m *MockProvider) EmitChainChanged(chainID string) {
	m.mu.Lock()
	m.ChainIDResult = chainID
	fns := make([]func(string), 0, len(m.chainSubs))
	for _, fn := range m.chainSubs {
		fns = append(fns, fn)
	}
	m.mu.Unlock()
	for _, fn := range fns {
		fn(strings.ToLower(chainID))
	}
}

// SubscriberCount returns the number of active event subscriptions, letting
// tests verify teardown doesn't leak handlers.
func (m *MockProvider) SubscriberCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.accountSubs) + len(m.chainSubs)
}

// SetBalance changes the scripted balance for subsequent polls.
func (m *MockProvider) SetBalance(wei *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.BalanceResult = new(big.Int).Set(wei)
}
