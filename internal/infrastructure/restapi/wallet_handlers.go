package restapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Island-Ghost/midnight-mcp-sub000/internal/app/port"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/domain/entity"
	"github.com/Island-Ghost/midnight-mcp-sub000/internal/pkg/utils"
)

// APIError is the body of every failed request.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BalanceResponse carries raw dust balances and their display form.
type BalanceResponse struct {
	entity.WalletBalances
	Formatted FormattedBalances `json:"formatted"`
}

// FormattedBalances are the balances scaled by the configured display decimals.
type FormattedBalances struct {
	TotalBalance     string `json:"totalBalance"`
	AvailableBalance string `json:"availableBalance"`
	PendingBalance   string `json:"pendingBalance"`
	AllCoinsBalance  string `json:"allCoinsBalance"`
}

// SendRequest is the body of both send endpoints.
type SendRequest struct {
	DestinationAddress string `json:"destinationAddress"`
	Amount             string `json:"amount"`
}

// WalletHandler serves the wallet service over HTTP.
type WalletHandler struct {
	wallet          port.WalletService
	displayDecimals uint8
	logger          port.Logger
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(ws port.WalletService, displayDecimals uint8, l port.Logger) *WalletHandler {
	return &WalletHandler{
		wallet:          ws,
		displayDecimals: displayDecimals,
		logger:          l.With("component", "WalletHandler"),
	}
}

var kindStatus = []struct {
	kind   error
	status int
}{
	{entity.ErrWalletNotReady, http.StatusServiceUnavailable},
	{entity.ErrValidation, http.StatusBadRequest},
	{entity.ErrInsufficientFunds, http.StatusUnprocessableEntity},
	{entity.ErrTxNotFound, http.StatusNotFound},
	{entity.ErrTxSubmissionFailed, http.StatusBadGateway},
	{entity.ErrIdentifierVerificationFailed, http.StatusInternalServerError},
}

func statusFor(err error) int {
	for _, ks := range kindStatus {
		if errors.Is(err, ks.kind) {
			return ks.status
		}
	}
	return http.StatusInternalServerError
}

func (h *WalletHandler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	body := APIError{Code: "INTERNAL_ERROR", Message: err.Error()}
	if we, ok := entity.AsWalletError(err); ok {
		body.Code = we.Code()
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", c.FullPath(), "status", status, "error", err)
	} else {
		h.logger.Debug("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	c.AbortWithStatusJSON(status, body)
}

// GetAddressHandler returns the wallet address.
func (h *WalletHandler) GetAddressHandler(c *gin.Context) {
	address, err := h.wallet.GetAddress()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": address})
}

// GetBalanceHandler returns the wallet balances.
func (h *WalletHandler) GetBalanceHandler(c *gin.Context) {
	balances, err := h.wallet.GetBalance()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, BalanceResponse{
		WalletBalances: balances,
		Formatted: FormattedBalances{
			TotalBalance:     utils.FormatDust(balances.TotalBalance, h.displayDecimals),
			AvailableBalance: utils.FormatDust(balances.AvailableBalance, h.displayDecimals),
			PendingBalance:   utils.FormatDust(balances.PendingBalance, h.displayDecimals),
			AllCoinsBalance:  utils.FormatDust(balances.AllCoinsBalance, h.displayDecimals),
		},
	})
}

// GetWalletStatusHandler returns the wallet status. It never fails.
func (h *WalletHandler) GetWalletStatusHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.wallet.GetWalletStatus())
}

// HealthHandler reports 200 once the wallet is ready and 503 otherwise.
func (h *WalletHandler) HealthHandler(c *gin.Context) {
	status := h.wallet.GetWalletStatus()
	code := http.StatusOK
	if !status.Ready {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, gin.H{
		"ready":         status.Ready,
		"recovering":    status.Recovering,
		"isFullySynced": status.IsFullySynced,
	})
}

func bindSendRequest(c *gin.Context) (SendRequest, error) {
	var req SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		return req, entity.NewWalletError(entity.ErrValidation, err, "malformed request body")
	}
	return req, nil
}

// InitiateSendHandler records a transfer and returns immediately.
func (h *WalletHandler) InitiateSendHandler(c *gin.Context) {
	req, err := bindSendRequest(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	record, err := h.wallet.InitiateSendFunds(c.Request.Context(), req.DestinationAddress, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{
		"id":        record.ID,
		"state":     record.State,
		"toAddress": record.ToAddress,
		"amount":    record.Amount,
		"createdAt": record.CreatedAt,
	})
}

// SendAndWaitHandler submits a transfer and blocks until it is broadcast.
func (h *WalletHandler) SendAndWaitHandler(c *gin.Context) {
	req, err := bindSendRequest(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	result, err := h.wallet.SendFundsAndWait(c.Request.Context(), req.DestinationAddress, req.Amount)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListTransactionsHandler lists records, optionally filtered by ?state=.
func (h *WalletHandler) ListTransactionsHandler(c *gin.Context) {
	var filter *entity.TxState
	if raw := c.Query("state"); raw != "" {
		state, err := entity.ParseTxState(raw)
		if err != nil {
			h.respondError(c, entity.NewWalletError(entity.ErrValidation, err, "invalid state filter"))
			return
		}
		filter = &state
	}
	records, err := h.wallet.GetTransactions(filter)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records})
}

// ListPendingTransactionsHandler lists INITIATED and SENT records.
func (h *WalletHandler) ListPendingTransactionsHandler(c *gin.Context) {
	records, err := h.wallet.GetPendingTransactions()
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": records})
}

// GetTransactionStatusHandler returns one record and its blockchain status.
func (h *WalletHandler) GetTransactionStatusHandler(c *gin.Context) {
	status, err := h.wallet.GetTransactionStatus(c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ConfirmReceiptHandler checks whether an inbound payment is in the history.
func (h *WalletHandler) ConfirmReceiptHandler(c *gin.Context) {
	result, err := h.wallet.ConfirmTransactionHasBeenReceived(c.Param("identifier"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
