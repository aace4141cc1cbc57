package entity

// WalletStatus is the read-only aggregate recomputed on every cache update.
type WalletStatus struct {
	Ready               bool               `json:"ready"`
	Syncing             bool               `json:"syncing"`
	SyncProgress        WalletSyncProgress `json:"syncProgress"`
	Address             string             `json:"address"`
	Balances            WalletBalances     `json:"balances"`
	Recovering          bool               `json:"recovering"`
	RecoveryAttempts    int                `json:"recoveryAttempts"`
	MaxRecoveryAttempts int                `json:"maxRecoveryAttempts"`
	IsFullySynced       bool               `json:"isFullySynced"`
}
