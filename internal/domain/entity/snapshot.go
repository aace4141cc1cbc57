package entity

import "time"

// Coin is a single unspent or pending coin held by the wallet.
type Coin struct {
	Type  string `json:"type"`
	Value uint64 `json:"value"`
	Nonce string `json:"nonce,omitempty"`
}

// HistoryEntry is one transaction in the remote history reported by the ledger client.
type HistoryEntry struct {
	Hash        string           `json:"hash"`
	Identifiers []string         `json:"identifiers"`
	Deltas      map[string]int64 `json:"deltas"`
	ApplyStage  string           `json:"applyStage,omitempty"`
	Timestamp   time.Time        `json:"timestamp,omitempty"`
}

// HasIdentifier reports whether id equals the entry hash or one of its identifiers.
func (e HistoryEntry) HasIdentifier(id string) bool {
	if id == "" {
		return false
	}
	if e.Hash == id {
		return true
	}
	for _, candidate := range e.Identifiers {
		if candidate == id {
			return true
		}
	}
	return false
}

// CarriesIdentifier reports whether id is in the entry's identifier set.
// Unlike HasIdentifier the hash is not considered.
func (e HistoryEntry) CarriesIdentifier(id string) bool {
	if id == "" {
		return false
	}
	for _, candidate := range e.Identifiers {
		if candidate == id {
			return true
		}
	}
	return false
}

// NativeDelta returns the native-token balance change recorded for the entry.
func (e HistoryEntry) NativeDelta() (int64, bool) {
	delta, ok := e.Deltas[NativeTokenType]
	return delta, ok
}

// SnapshotProgress is the raw sync counters carried by a snapshot.
type SnapshotProgress struct {
	Synced    uint64 `json:"synced"`
	Total     uint64 `json:"total"`
	SourceGap uint64 `json:"sourceGap"`
}

// StateSnapshot is one complete wallet state pushed by the ledger client.
// A snapshot is treated as immutable once it has been handed to the cache.
type StateSnapshot struct {
	Address            string            `json:"address"`
	Balances           map[string]uint64 `json:"balances"`
	PendingCoins       []Coin            `json:"pendingCoins"`
	SyncProgress       SnapshotProgress  `json:"syncProgress"`
	TransactionHistory []HistoryEntry    `json:"transactionHistory"`
}

// FindHistoryEntry returns the first history entry whose hash or identifiers match id.
// It joins locally submitted transfers by their txIdentifier.
func (s *StateSnapshot) FindHistoryEntry(id string) (HistoryEntry, bool) {
	if s == nil {
		return HistoryEntry{}, false
	}
	for _, entry := range s.TransactionHistory {
		if entry.HasIdentifier(id) {
			return entry, true
		}
	}
	return HistoryEntry{}, false
}

// SyncStatus derives the lag figures of the snapshot.
func (s *StateSnapshot) SyncStatus() SyncStatus {
	if s == nil {
		return SyncStatus{}
	}
	progress := NewSyncProgress(s.SyncProgress.Synced, s.SyncProgress.Total)
	return SyncStatus{
		SyncedIndices: progress.Synced,
		TotalIndices:  progress.Total,
		Lag: SyncLag{
			ApplyGap:  progress.Total - progress.Synced,
			SourceGap: s.SyncProgress.SourceGap,
		},
		IsFullySynced: progress.IsFullySynced(),
	}
}
