package entity

// WalletSyncProgress reports how far the wallet has applied the chain.
type WalletSyncProgress struct {
	Synced     uint64  `json:"synced"`
	Total      uint64  `json:"total"`
	Percentage float64 `json:"percentage"`
}

// NewSyncProgress clamps synced to total and computes the percentage.
func NewSyncProgress(synced, total uint64) WalletSyncProgress {
	if synced > total {
		synced = total
	}
	p := WalletSyncProgress{Synced: synced, Total: total}
	if total > 0 {
		p.Percentage = float64(synced) / float64(total) * 100
	}
	return p
}

// IsFullySynced reports total > 0 && synced == total.
func (p WalletSyncProgress) IsFullySynced() bool {
	return p.Total > 0 && p.Synced == p.Total
}

// SyncLag describes how far the local view trails the chain tip.
type SyncLag struct {
	ApplyGap  uint64 `json:"applyGap"`
	SourceGap uint64 `json:"sourceGap"`
}

// SyncStatus is the sync figure attached to status and verification responses.
type SyncStatus struct {
	SyncedIndices uint64  `json:"syncedIndices"`
	TotalIndices  uint64  `json:"totalIndices"`
	Lag           SyncLag `json:"lag"`
	IsFullySynced bool    `json:"isFullySynced"`
}
