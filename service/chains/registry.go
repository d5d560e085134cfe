package chains

import (
	"fmt"
	"strings"
)

// Network describes a blockchain network the wallet can operate on.
// Chain IDs are hex-encoded as reported by EIP-1193 providers (e.g. "0x1f92").
type Network struct {
	ChainID      string
	Name         string
	NativeSymbol string
	Decimals     int
	RPCURL       string
	ExplorerURL  string // base URL, no trailing slash
}

// ExplorerTxURL returns the explorer page for a transaction hash.
func (n *Network) ExplorerTxURL(hash string) string {
	return fmt.Sprintf("%s/tx/%s", n.ExplorerURL, hash)
}

// Registry is a static, read-only lookup of known networks keyed by chain ID.
// It is loaded once at startup and never mutated afterwards.
type Registry struct {
	networks map[string]*Network
}

// NewRegistry builds a registry from the given network definitions.
// Chain IDs are normalized to lowercase so lookups are case-insensitive.
func NewRegistry(networks ...*Network) *Registry {
	m := make(map[string]*Network, len(networks))
	for _, n := range networks {
		m[strings.ToLower(n.ChainID)] = n
	}
	return &Registry{networks: m}
}

// Get returns the network for the given hex chain ID, or false if unknown.
func (r *Registry) Get(chainID string) (*Network, bool) {
	n, ok := r.networks[strings.ToLower(chainID)]
	return n, ok
}

// Name returns a human-readable name for the chain ID, falling back to the
// raw ID for networks the registry doesn't know about.
func (r *Registry) Name(chainID string) string {
	if n, ok := r.Get(chainID); ok {
		return n.Name
	}
	return fmt.Sprintf("Unknown Network (%s)", chainID)
}

// All returns every registered network. The slice is a copy; the networks
// themselves are shared and must be treated as read-only.
func (r *Registry) All() []*Network {
	out := make([]*Network, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	return out
}

// Well-known chain IDs.
const (
	ShardeumSphinxChainID = "0x1f92" // 8082
	LocalDevChainID       = "0x539"  // 1337, local dev node
)

// DefaultRegistry returns the networks the donation flow ships with.
// Shardeum Sphinx is the demo target network for donations.
func DefaultRegistry() *Registry {
	return NewRegistry(
		&Network{
			ChainID:      ShardeumSphinxChainID,
			Name:         "Shardeum Sphinx",
			NativeSymbol: "SHM",
			Decimals:     18,
			RPCURL:       "https://sphinx.shardeum.org",
			ExplorerURL:  "https://explorer-sphinx.shardeum.org",
		},
		&Network{
			ChainID:      LocalDevChainID,
			Name:         "Localhost",
			NativeSymbol: "ETH",
			Decimals:     18,
			RPCURL:       "http://localhost:8545",
			ExplorerURL:  "http://localhost:8545",
		},
	)
}
