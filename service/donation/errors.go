package donation

import "errors"

// Donation failures are all scoped to a single attempt and recoverable: the
// user resolves the cause (connects, switches network, approves the prompt)
// and retries with a fresh record. Provider-level failures surface as
// *wallet.ProviderError; wallet.ErrNoProvider passes through unchanged.
var (
	// ErrWalletNotConnected means the precondition check failed: the caller
	// should prompt a connect and retry.
	ErrWalletNotConnected = errors.New("wallet not connected")

	// ErrWrongNetwork means the wallet is not on the donation network: the
	// caller should prompt a network switch and retry.
	ErrWrongNetwork = errors.New("wallet is on the wrong network")

	// ErrUserRejected means the user declined the signature prompt.
	ErrUserRejected = errors.New("signature request rejected")

	// ErrDonationInFlight means another donation attempt from this session
	// has not yet reached a terminal status. Attempts are serialized to
	// avoid duplicate pending records from rapid repeated submissions.
	ErrDonationInFlight = errors.New("a donation is already in progress")
)
