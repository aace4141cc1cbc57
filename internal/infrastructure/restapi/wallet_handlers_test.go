package restapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/logger"
)

type fakeWallet struct {
	address    string
	balances   entity.WalletBalances
	status     entity.WalletStatus
	records    map[string]entity.TransactionRecord
	err        error
	lastFilter *entity.TxState
	lastTo     string
	lastAmount string
}

func (f *fakeWallet) GetAddress() (string, error) {
	return f.address, f.err
}

func (f *fakeWallet) GetBalance() (entity.WalletBalances, error) {
	return f.balances, f.err
}

func (f *fakeWallet) GetWalletStatus() entity.WalletStatus {
	return f.status
}

func (f *fakeWallet) InitiateSendFunds(_ context.Context, to, amount string) (*entity.TransactionRecord, error) {
	f.lastTo, f.lastAmount = to, amount
	if f.err != nil {
		return nil, f.err
	}
	return &entity.TransactionRecord{ID: "01J0TX", ToAddress: to, Amount: amount, State: entity.TxStateInitiated, CreatedAt: time.Unix(0, 0).UTC()}, nil
}

func (f *fakeWallet) SendFundsAndWait(_ context.Context, to, amount string) (*entity.SendResult, error) {
	f.lastTo, f.lastAmount = to, amount
	if f.err != nil {
		return nil, f.err
	}
	return &entity.SendResult{TxIdentifier: "tx-1", Amount: amount}, nil
}

func (f *fakeWallet) GetTransactionStatus(id string) (*entity.TransactionStatus, error) {
	record, ok := f.records[id]
	if !ok {
		return nil, entity.NewWalletError(entity.ErrTxNotFound, nil, "transaction %s not found", id)
	}
	return &entity.TransactionStatus{Transaction: record}, nil
}

func (f *fakeWallet) GetTransactions(filter *entity.TxState) ([]entity.TransactionRecord, error) {
	f.lastFilter = filter
	out := make([]entity.TransactionRecord, 0, len(f.records))
	for _, r := range f.records {
		if filter == nil || r.State == *filter {
			out = append(out, r)
		}
	}
	return out, f.err
}

func (f *fakeWallet) GetPendingTransactions() ([]entity.TransactionRecord, error) {
	return nil, f.err
}

func (f *fakeWallet) ConfirmTransactionHasBeenReceived(identifier string) (*entity.ReceiptVerification, error) {
	if f.err != nil {
		return nil, f.err
	}
	amount := int64(42)
	return &entity.ReceiptVerification{Exists: identifier == "known", TransactionAmount: &amount}, nil
}

func (f *fakeWallet) SetNotificationHandler(port.NotificationHandler) {}

func (f *fakeWallet) Close(context.Context) error { return nil }

func setupTestRouter(w *fakeWallet) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return SetupRouter(NewWalletHandler(w, 6, logger.NewNopLogger()), RouterOptions{MetricsEnabled: true})
}

func perform(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	require.NoError(t, jsoniter.Unmarshal(rec.Body.Bytes(), out))
}

func TestWalletHandler_Balance(t *testing.T) {
	r := setupTestRouter(&fakeWallet{balances: entity.WalletBalances{
		TotalBalance: 1_500_000, AvailableBalance: 1_500_000, PendingBalance: 250_000, AllCoinsBalance: 1_750_000,
	}})

	rec := perform(r, http.MethodGet, "/api/v1/wallet/balance", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body BalanceResponse
	decode(t, rec, &body)
	assert.Equal(t, uint64(1_500_000), body.AvailableBalance)
	assert.Equal(t, "1.5", body.Formatted.AvailableBalance)
	assert.Equal(t, "1.75", body.Formatted.AllCoinsBalance)
}

func TestWalletHandler_ErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not ready", entity.NewWalletError(entity.ErrWalletNotReady, nil, "syncing"), http.StatusServiceUnavailable, "WALLET_NOT_READY"},
		{"validation", entity.NewWalletError(entity.ErrValidation, nil, "bad amount"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"insufficient", entity.NewWalletError(entity.ErrInsufficientFunds, nil, "too much"), http.StatusUnprocessableEntity, "INSUFFICIENT_FUNDS"},
		{"submission", entity.NewWalletError(entity.ErrTxSubmissionFailed, nil, "proof failed"), http.StatusBadGateway, "TX_SUBMISSION_FAILED"},
		{"unclassified", assert.AnError, http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := setupTestRouter(&fakeWallet{err: tt.err})
			rec := perform(r, http.MethodPost, "/api/v1/transactions/send-and-wait", `{"destinationAddress":"addr","amount":"5"}`)
			assert.Equal(t, tt.status, rec.Code)
			var body APIError
			decode(t, rec, &body)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}

func TestWalletHandler_InitiateSend(t *testing.T) {
	w := &fakeWallet{}
	r := setupTestRouter(w)

	rec := perform(r, http.MethodPost, "/api/v1/transactions", `{"destinationAddress":"addr_dest","amount":"100"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "addr_dest", w.lastTo)
	assert.Equal(t, "100", w.lastAmount)

	var body map[string]any
	decode(t, rec, &body)
	assert.Equal(t, "01J0TX", body["id"])
	assert.Equal(t, "INITIATED", body["state"])

	rec = perform(r, http.MethodPost, "/api/v1/transactions", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWalletHandler_TransactionQueries(t *testing.T) {
	w := &fakeWallet{records: map[string]entity.TransactionRecord{
		"a": {ID: "a", State: entity.TxStateSent},
		"b": {ID: "b", State: entity.TxStateFailed},
	}}
	r := setupTestRouter(w)

	rec := perform(r, http.MethodGet, "/api/v1/transactions?state=SENT", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, w.lastFilter)
	assert.Equal(t, entity.TxStateSent, *w.lastFilter)
	var list struct {
		Transactions []entity.TransactionRecord `json:"transactions"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Transactions, 1)
	assert.Equal(t, "a", list.Transactions[0].ID)

	rec = perform(r, http.MethodGet, "/api/v1/transactions?state=BOGUS", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = perform(r, http.MethodGet, "/api/v1/transactions/b", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = perform(r, http.MethodGet, "/api/v1/transactions/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = perform(r, http.MethodGet, "/api/v1/transactions/pending", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestWalletHandler_ReceiptAndHealth(t *testing.T) {
	w := &fakeWallet{status: entity.WalletStatus{Ready: false, Syncing: true}}
	r := setupTestRouter(w)

	rec := perform(r, http.MethodGet, "/api/v1/receipts/known", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var receipt entity.ReceiptVerification
	decode(t, rec, &receipt)
	assert.True(t, receipt.Exists)

	rec = perform(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	w.status.Ready = true
	rec = perform(r, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = perform(r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}
