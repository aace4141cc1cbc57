package entity

import "math"

// NativeTokenType identifies the native currency entry in a balance map.
const NativeTokenType = "02000000000000000000000000000000000000000000000000000000000000000000"

// WalletBalances holds the wallet balances in dust.
// AllCoinsBalance is always AvailableBalance + PendingBalance, saturating at math.MaxUint64.
type WalletBalances struct {
	TotalBalance     uint64 `json:"totalBalance" yaml:"totalBalance"`
	AvailableBalance uint64 `json:"availableBalance" yaml:"availableBalance"`
	PendingBalance   uint64 `json:"pendingBalance" yaml:"pendingBalance"`
	AllCoinsBalance  uint64 `json:"allCoinsBalance" yaml:"allCoinsBalance"`
}

// ComputeBalances derives WalletBalances from a token balance map and the pending coins.
// Zero-valued entries of the balance map are skipped.
func ComputeBalances(balances map[string]uint64, pending []Coin) WalletBalances {
	var available uint64
	for token, amount := range balances {
		if amount == 0 || token != NativeTokenType {
			continue
		}
		available = addSaturating(available, amount)
	}

	var pendingSum uint64
	for _, coin := range pending {
		if coin.Type != "" && coin.Type != NativeTokenType {
			continue
		}
		pendingSum = addSaturating(pendingSum, coin.Value)
	}

	return WalletBalances{
		TotalBalance:     available,
		AvailableBalance: available,
		PendingBalance:   pendingSum,
		AllCoinsBalance:  addSaturating(available, pendingSum),
	}
}

// addSaturating returns a+b, clamped to math.MaxUint64.
func addSaturating(a, b uint64) uint64 {
	if b > math.MaxUint64-a {
		return math.MaxUint64
	}
	return a + b
}
