package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salon-wallet/internal/api/types"
	"salon-wallet/internal/domain"
	"salon-wallet/internal/repository"
	"salon-wallet/internal/service"
	"salon-wallet/internal/util" // For custom errors
)

// WalletHandler handles HTTP requests related to wallet operations.
type WalletHandler struct {
	responder
	service service.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(svc service.WalletService, logger *zap.Logger) *WalletHandler {
	return &WalletHandler{
		responder: responder{logger: logger},
		service:   svc,
	}
}

// GetMyWallet returns the caller's wallet, creating it on first access.
// GET /wallets/me?salon_id=
func (h *WalletHandler) GetMyWallet(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	salonID, err := optionalUUID(r.URL.Query().Get("salon_id"), "salon_id")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	wallet, err := h.service.GetOrCreateWallet(r.Context(), userID, salonID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, wallet)
}

// GetWallet handles the get wallet request.
// GET /wallets/{walletID}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuidParam(r, "walletID")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	wallet, err := h.service.GetWallet(r.Context(), walletID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, wallet)
}

// DepositRequest represents the request body for deposit.
type DepositRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
}

// Deposit handles the deposit money request.
// POST /wallets/{walletID}/deposit
func (h *WalletHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuidParam(r, "walletID")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	// Basic validation
	if !req.Amount.IsPositive() {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	wallet, transaction, err := h.service.Deposit(r.Context(), walletID, req.Amount, req.Description)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"message":        "Deposit successful",
		"wallet_id":      wallet.ID,
		"new_balance":    wallet.Balance,
		"transaction_id": transaction.ID,
	})
}

// StatusRequest represents the request body for the admin toggle.
type StatusRequest struct {
	IsActive *bool `json:"is_active"`
}

// SetWalletStatus activates or deactivates a wallet.
// PATCH /wallets/{walletID}/status
func (h *WalletHandler) SetWalletStatus(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuidParam(r, "walletID")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	var req StatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.IsActive == nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}

	wallet, err := h.service.SetWalletActive(r.Context(), walletID, *req.IsActive)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, wallet)
}

// GetTransactionHistory handles the get transaction history request.
// GET /wallets/{walletID}/transactions?type=&status=&limit=&offset=
func (h *WalletHandler) GetTransactionHistory(w http.ResponseWriter, r *http.Request) {
	walletID, err := uuidParam(r, "walletID")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	query := r.URL.Query()
	filter := repository.TransactionFilter{WalletID: walletID}

	// Parse query parameters for pagination
	filter.Limit, err = strconv.Atoi(query.Get("limit"))
	if err != nil || filter.Limit <= 0 {
		filter.Limit = service.DefaultPageSize
	}
	if filter.Limit > service.MaxPageSize {
		filter.Limit = service.MaxPageSize
	}
	filter.Offset, err = strconv.Atoi(query.Get("offset"))
	if err != nil || filter.Offset < 0 {
		filter.Offset = 0
	}

	if v := query.Get("type"); v != "" {
		t := domain.TransactionType(v)
		filter.Type = &t
	}
	if v := query.Get("status"); v != "" {
		s := domain.TransactionStatus(v)
		filter.Status = &s
	}

	transactions, totalCount, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	h.respondWithJSON(w, http.StatusOK, types.PaginatedResponse[domain.Transaction]{
		Data:       transactions,
		Limit:      filter.Limit,
		Offset:     filter.Offset,
		TotalCount: totalCount,
	})
}

// GetTransaction returns a single ledger entry.
// GET /transactions/{transactionID}
func (h *WalletHandler) GetTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID, err := uuidParam(r, "transactionID")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	transaction, err := h.service.GetTransaction(r.Context(), transactionID)
	if err != nil {
		h.respondWithError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, transaction)
}
