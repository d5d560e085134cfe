package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/heartchain/heartchain/service/metrics"
)

var (
	// ErrDuplicateHash means a transaction with the same hash is already in
	// the ledger. Appends are rejected rather than silently dropped so the
	// flow can't lose track of an attempt.
	ErrDuplicateHash = errors.New("transaction hash already exists")

	// ErrNotFound means no transaction with the given hash exists.
	ErrNotFound = errors.New("transaction not found")

	// ErrBackwardTransition means an update tried to move a transaction out
	// of a terminal status.
	ErrBackwardTransition = errors.New("transaction status cannot move backward")
)

// Ledger is the durable, ordered record of donation transactions for this
// profile, most recent first. Every mutation is written through to a JSON
// file; a corrupted or missing file degrades to an empty ledger rather than
// failing the caller. Records are never deleted.
type Ledger struct {
	path    string
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu  sync.Mutex
	txs []*Transaction
}

// NewLedger creates a ledger backed by the JSON file at path, restoring any
// previously persisted transactions. If m is nil, no metrics are recorded.
func NewLedger(path string, m *metrics.Metrics, logger *slog.Logger) *Ledger {
	l := &Ledger{
		path:    path,
		logger:  logger,
		metrics: m,
	}
	l.load()
	return l
}

// load restores the transaction sequence from disk. Unreadable or corrupted
// content is logged and discarded; the ledger starts empty in that case.
func (l *Ledger) load() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("failed to read ledger file, starting empty", "path", l.path, "error", err)
		}
		return
	}

	var txs []*Transaction
	if err := json.Unmarshal(data, &txs); err != nil {
		l.logger.Warn("ledger file is corrupted, starting empty", "path", l.path, "error", err)
		return
	}

	// Drop individual records that violate invariants instead of rejecting
	// the whole file.
	kept := txs[:0]
	for _, tx := range txs {
		if err := tx.Validate(); err != nil {
			l.logger.Warn("dropping invalid ledger record", "hash", tx.Hash, "error", err)
			continue
		}
		kept = append(kept, tx)
	}

	l.txs = kept
	if l.metrics != nil {
		l.metrics.SetLedgerTransactions(len(l.txs))
	}
	l.logger.Debug("ledger restored", "path", l.path, "transactions", len(l.txs))
}

// persistLocked writes the full sequence back to disk atomically
// (temp file + rename). Callers hold l.mu.
func (l *Ledger) persistLocked() error {
	data, err := json.MarshalIndent(l.txs, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode ledger: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("failed to create ledger directory: %w", err)
	}

	tmp := l.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write ledger: %w", err)
	}
	if err := os.Rename(tmp, l.path); err != nil {
		return fmt.Errorf("failed to replace ledger file: %w", err)
	}
	return nil
}

func (l *Ledger) recordWrite(err error) {
	if l.metrics == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	l.metrics.RecordLedgerWrite(status)
	l.metrics.SetLedgerTransactions(len(l.txs))
}

// Append inserts a new transaction at the head of the sequence. A duplicate
// hash is rejected with ErrDuplicateHash.
func (l *Ledger) Append(tx *Transaction) error {
	if err := tx.Validate(); err != nil {
		return fmt.Errorf("invalid transaction: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, existing := range l.txs {
		if existing.Hash == tx.Hash {
			return fmt.Errorf("%w: %s", ErrDuplicateHash, tx.Hash)
		}
	}

	l.txs = append([]*Transaction{tx.clone()}, l.txs...)

	err := l.persistLocked()
	l.recordWrite(err)
	if err != nil {
		// The in-memory record stays; persistence failures are logged and
		// the next successful mutation rewrites the full sequence anyway.
		l.logger.Error("failed to persist ledger after append", "hash", tx.Hash, "error", err)
	}
	return nil
}

// UpdateStatus transitions the transaction with the given hash and merges in
// confirmation fields. Confirmation data is only accepted together with
// StatusConfirmed. Backward transitions out of a terminal status are
// rejected; updating to the current status is a no-op.
func (l *Ledger) UpdateStatus(hash string, status Status, conf *Confirmation) (*Transaction, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("unknown status %q", status)
	}
	if conf != nil && status != StatusConfirmed {
		return nil, fmt.Errorf("confirmation fields require %s status", StatusConfirmed)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var tx *Transaction
	for _, existing := range l.txs {
		if existing.Hash == hash {
			tx = existing
			break
		}
	}
	if tx == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
	}

	if tx.Status == status {
		return tx.clone(), nil
	}
	if tx.Status.Terminal() {
		return nil, fmt.Errorf("%w: %s is already %s", ErrBackwardTransition, hash, tx.Status)
	}

	tx.Status = status
	if status == StatusConfirmed && conf != nil {
		blockNumber := conf.BlockNumber
		gasUsed := conf.GasUsed
		tx.BlockNumber = &blockNumber
		tx.GasUsed = &gasUsed
	}

	err := l.persistLocked()
	l.recordWrite(err)
	if err != nil {
		l.logger.Error("failed to persist ledger after update", "hash", hash, "error", err)
	}
	return tx.clone(), nil
}

// Get returns the transaction with the given hash.
func (l *Ledger) Get(hash string) (*Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, tx := range l.txs {
		if tx.Hash == hash {
			return tx.clone(), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, hash)
}

// Transactions returns all records, most recent first. The local ledger
// holds every transaction made from this profile regardless of donor
// address; use TransactionsFor to narrow to one wallet.
func (l *Ledger) Transactions() []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Transaction, len(l.txs))
	for i, tx := range l.txs {
		out[i] = tx.clone()
	}
	return out
}

// TransactionsFor returns the records whose donor address matches, most
// recent first.
func (l *Ledger) TransactionsFor(address string) []*Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []*Transaction
	for _, tx := range l.txs {
		if tx.DonorAddress == address {
			out = append(out, tx.clone())
		}
	}
	return out
}

// Len returns the number of transactions in the ledger.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.txs)
}
