// Package history keeps a local journal of the transactions this client
// submitted and merges it with the pool's on-chain events.
package history

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"bltm-swap/pkg/types"
)

const (
	DefaultJournalFileName = ".bltm-swap-history.json"
)

// Record is one journaled transaction
type Record struct {
	ID          string         `json:"id"`
	Hash        common.Hash    `json:"hash"`
	Kind        types.TxKind   `json:"kind"`
	Token       string         `json:"token"`
	TokenAddr   common.Address `json:"token_address"`
	Decimals    uint8          `json:"decimals"`
	Owner       common.Address `json:"owner"`
	Amount      string         `json:"amount,omitempty"`
	Status      types.TxStatus `json:"status"`
	BlockNumber uint64         `json:"block_number,omitempty"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// TokenInfo rebuilds the token the record refers to
func (r *Record) TokenInfo() types.Token {
	return types.Token{Symbol: r.Token, Address: r.TokenAddr, Decimals: r.Decimals}
}

// AmountInt returns the recorded amount in smallest units, or nil.
func (r *Record) AmountInt() *big.Int {
	if r.Amount == "" {
		return nil
	}
	v, ok := new(big.Int).SetString(r.Amount, 10)
	if !ok {
		return nil
	}
	return v
}

// journalFile is the JSON structure on disk
type journalFile struct {
	Records map[string]*Record `json:"records"`
}

// Journal persists records to a JSON file
type Journal struct {
	filePath string
	mu       sync.RWMutex
	records  map[string]*Record
}

// NewJournal opens the journal at filePath, defaulting to the home directory.
// A missing file is created on the first write.
func NewJournal(filePath string) (*Journal, error) {
	if filePath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		filePath = filepath.Join(home, DefaultJournalFileName)
	}

	j := &Journal{
		filePath: filePath,
		records:  make(map[string]*Record),
	}

	if err := j.load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load journal: %w", err)
		}
	}

	return j, nil
}

func (j *Journal) load() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	data, err := os.ReadFile(j.filePath)
	if err != nil {
		return err
	}

	var f journalFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to unmarshal journal: %w", err)
	}

	j.records = f.Records
	if j.records == nil {
		j.records = make(map[string]*Record)
	}
	return nil
}

// saveLocked writes records atomically to the journal file. Must hold j.mu.
func (j *Journal) saveLocked(records map[string]*Record) error {
	data, err := json.MarshalIndent(journalFile{Records: records}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal journal: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(j.filePath), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tempFile := j.filePath + ".tmp"
	if err := os.WriteFile(tempFile, data, 0600); err != nil {
		return fmt.Errorf("failed to write journal: %w", err)
	}
	if err := os.Rename(tempFile, j.filePath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// Record inserts or updates the record of tx. Transactions without an ID get
// a fresh one.
func (j *Journal) Record(tx types.PendingTransaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}

	r := &Record{
		ID:          tx.ID,
		Hash:        tx.Hash,
		Kind:        tx.Kind,
		Token:       tx.Token.Symbol,
		TokenAddr:   tx.Token.Address,
		Decimals:    tx.Token.Decimals,
		Owner:       tx.Owner,
		Status:      tx.Status,
		BlockNumber: tx.BlockNumber,
		Error:       tx.Error,
		SubmittedAt: tx.SubmittedAt,
		UpdatedAt:   tx.UpdatedAt,
	}
	if tx.Amount != nil {
		r.Amount = tx.Amount.String()
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	if prev, ok := j.records[r.ID]; ok && prev.Status.Terminal() && !r.Status.Terminal() {
		// a late submission write must not undo the resolution
		return nil
	}
	// the file is written first; memory only changes once it matches the disk
	next := make(map[string]*Record, len(j.records)+1)
	for id, rec := range j.records {
		next[id] = rec
	}
	next[r.ID] = r
	if err := j.saveLocked(next); err != nil {
		return err
	}
	j.records = next
	return nil
}

// Get returns a record by ID
func (j *Journal) Get(id string) (*Record, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	r, ok := j.records[id]
	if !ok {
		return nil, fmt.Errorf("record '%s' not found", id)
	}
	copied := *r
	return &copied, nil
}

// ByHash finds the record of a transaction hash
func (j *Journal) ByHash(hash common.Hash) (*Record, bool) {
	j.mu.RLock()
	defer j.mu.RUnlock()

	for _, r := range j.records {
		if r.Hash == hash {
			copied := *r
			return &copied, true
		}
	}
	return nil, false
}

// List returns all records, newest first
func (j *Journal) List() []*Record {
	j.mu.RLock()
	defer j.mu.RUnlock()

	records := make([]*Record, 0, len(j.records))
	for _, r := range j.records {
		copied := *r
		records = append(records, &copied)
	}
	sort.Slice(records, func(a, b int) bool {
		return records[a].SubmittedAt.After(records[b].SubmittedAt)
	})
	return records
}

// Unresolved returns records that were broadcast but never reached a terminal state
func (j *Journal) Unresolved() []*Record {
	var out []*Record
	for _, r := range j.List() {
		if !r.Status.Terminal() && r.Hash != (common.Hash{}) {
			out = append(out, r)
		}
	}
	return out
}

// Count returns the number of records
func (j *Journal) Count() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.records)
}

// Path returns the journal file path
func (j *Journal) Path() string {
	return j.filePath
}
