package entity

import (
	"errors"
	"math"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxState_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to TxState
		allowed  bool
	}{
		{TxStateInitiated, TxStateSent, true},
		{TxStateInitiated, TxStateFailed, true},
		{TxStateInitiated, TxStateCompleted, false},
		{TxStateSent, TxStateCompleted, true},
		{TxStateSent, TxStateFailed, true},
		{TxStateSent, TxStateInitiated, false},
		{TxStateCompleted, TxStateFailed, false},
		{TxStateCompleted, TxStateSent, false},
		{TxStateFailed, TxStateSent, false},
		{TxStateFailed, TxStateCompleted, false},
	}
	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestTxState_Classification(t *testing.T) {
	assert.True(t, TxStateInitiated.IsPending())
	assert.True(t, TxStateSent.IsPending())
	assert.False(t, TxStateCompleted.IsPending())
	assert.True(t, TxStateCompleted.IsTerminal())
	assert.True(t, TxStateFailed.IsTerminal())
	assert.False(t, TxStateSent.IsTerminal())
}

func TestTxState_JSON(t *testing.T) {
	record := TransactionRecord{ID: "01J", State: TxStateSent}
	json := jsoniter.ConfigCompatibleWithStandardLibrary
	data, err := json.Marshal(record)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"state":"SENT"`)

	var decoded TransactionRecord
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, TxStateSent, decoded.State)

	_, err = ParseTxState("PENDING")
	assert.Error(t, err)
	_, err = TxState(0).MarshalText()
	assert.Error(t, err)
}

func TestWalletError_KindAndCode(t *testing.T) {
	cause := errors.New("network down")
	err := NewWalletError(ErrTxSubmissionFailed, cause, "send of %d failed", 10)

	assert.ErrorIs(t, err, ErrTxSubmissionFailed)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrValidation)
	assert.Equal(t, "TX_SUBMISSION_FAILED", err.Code())
	assert.Contains(t, err.Error(), "network down")

	we, ok := AsWalletError(errors.Join(errors.New("outer"), err))
	require.True(t, ok)
	assert.Equal(t, ErrTxSubmissionFailed, we.Kind)

	assert.Equal(t, "INTERNAL_ERROR", NewWalletError(errors.New("other"), nil, "x").Code())
}

func TestComputeBalances(t *testing.T) {
	b := ComputeBalances(map[string]uint64{NativeTokenType: 100, "other": 5}, []Coin{
		{Type: "", Value: 3},
		{Type: NativeTokenType, Value: 4},
		{Type: "other", Value: 50},
	})
	assert.Equal(t, WalletBalances{TotalBalance: 100, AvailableBalance: 100, PendingBalance: 7, AllCoinsBalance: 107}, b)
	assert.Equal(t, WalletBalances{}, ComputeBalances(nil, nil))
}

func TestComputeBalances_Saturates(t *testing.T) {
	b := ComputeBalances(map[string]uint64{NativeTokenType: math.MaxUint64 - 5}, []Coin{
		{Type: NativeTokenType, Value: math.MaxUint64},
		{Type: "", Value: 10},
	})
	assert.Equal(t, uint64(math.MaxUint64-5), b.AvailableBalance)
	assert.Equal(t, uint64(math.MaxUint64), b.PendingBalance)
	assert.Equal(t, uint64(math.MaxUint64), b.AllCoinsBalance)

	b = ComputeBalances(map[string]uint64{NativeTokenType: math.MaxUint64 - 5}, []Coin{{Value: 5}})
	assert.Equal(t, uint64(math.MaxUint64), b.AllCoinsBalance)
}

func TestSnapshot_SyncStatusAndLookup(t *testing.T) {
	var empty *StateSnapshot
	assert.Equal(t, SyncStatus{}, empty.SyncStatus())
	_, found := empty.FindHistoryEntry("x")
	assert.False(t, found)

	s := &StateSnapshot{
		SyncProgress:       SnapshotProgress{Synced: 120, Total: 100, SourceGap: 4},
		TransactionHistory: []HistoryEntry{{Hash: "h", Identifiers: []string{"i1", "i2"}}},
	}
	status := s.SyncStatus()
	assert.True(t, status.IsFullySynced)
	assert.Equal(t, uint64(100), status.SyncedIndices)
	assert.Equal(t, uint64(4), status.Lag.SourceGap)

	_, found = s.FindHistoryEntry("i2")
	assert.True(t, found)
	_, found = s.FindHistoryEntry("")
	assert.False(t, found)

	entry := s.TransactionHistory[0]
	assert.True(t, entry.HasIdentifier("h"))
	assert.False(t, entry.CarriesIdentifier("h"))
	assert.True(t, entry.CarriesIdentifier("i1"))
	assert.False(t, entry.CarriesIdentifier(""))
}
