package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/heartchain/heartchain/service/chains"
)

// Provider is the narrow capability surface of an external wallet.
// It mirrors the EIP-1193 provider API so the session can run against a
// browser wallet bridge, a plain JSON-RPC node, or a mock in tests.
type Provider interface {
	// RequestAccounts asks the wallet to authorize account access. This is
	// the interactive call and may prompt the user.
	RequestAccounts(ctx context.Context) ([]string, error)

	// Accounts returns the currently authorized accounts without prompting.
	// Used for silent session restoration.
	Accounts(ctx context.Context) ([]string, error)

	// ChainID returns the hex-encoded chain identifier (e.g. "0x1f92").
	ChainID(ctx context.Context) (string, error)

	// Balance returns the native-token balance of the address in wei.
	Balance(ctx context.Context, address string) (*big.Int, error)

	// SwitchChain asks the wallet to switch to the given chain. Returns an
	// error with code CodeUnknownChain if the wallet doesn't know the chain.
	SwitchChain(ctx context.Context, chainID string) error

	// AddChain asks the wallet to add a network definition.
	AddChain(ctx context.Context, network *chains.Network) error

	// SignMessage asks the wallet to sign a human-readable message with the
	// given account's key. Returns the signature as a hex string.
	SignMessage(ctx context.Context, address, message string) (string, error)

	// OnAccountsChanged registers a callback for account changes. The
	// returned function removes the subscription.
	OnAccountsChanged(fn func(accounts []string)) (unsubscribe func())

	// OnChainChanged registers a callback for chain switches. The returned
	// function removes the subscription.
	OnChainChanged(fn func(chainID string)) (unsubscribe func())

	// Close releases provider resources and drops all subscriptions.
	Close() error
}

// EIP-1193 / EIP-3085 provider error codes.
const (
	CodeUserRejected = 4001
	CodeUnknownChain = 4902
)

// ProviderError is an error reported by the wallet provider, carrying the
// provider's numeric error code when one was given.
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("provider error: %s", e.Message)
}

// IsUserRejected reports whether the error means the user declined a prompt.
func IsUserRejected(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUserRejected
}

// IsUnknownChain reports whether the error means the wallet doesn't know the
// requested chain and needs it added first.
func IsUnknownChain(err error) bool {
	var pe *ProviderError
	return errors.As(err, &pe) && pe.Code == CodeUnknownChain
}
