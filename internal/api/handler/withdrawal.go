package handler

import (
	"encoding/json"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"salon-wallet/internal/service"
	"salon-wallet/internal/util"
)

// WithdrawalHandler exposes mobile-money payouts.
type WithdrawalHandler struct {
	responder
	service service.WithdrawalService
}

func NewWithdrawalHandler(svc service.WithdrawalService, logger *zap.Logger) *WithdrawalHandler {
	return &WithdrawalHandler{
		responder: responder{logger: logger},
		service:   svc,
	}
}

// WithdrawRequest represents the request body for a payout.
type WithdrawRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	PhoneNumber string          `json:"phone_number"`
	SalonID     string          `json:"salon_id,omitempty"`
	Description string          `json:"description,omitempty"`
}

// RequestWithdrawal starts a payout and answers 202 with the PENDING entry.
// POST /withdrawals
func (h *WithdrawalHandler) RequestWithdrawal(w http.ResponseWriter, r *http.Request) {
	userID, err := callerID(r)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	var req WithdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, util.ErrInvalidInput)
		return
	}
	salonID, err := optionalUUID(req.SalonID, "salon_id")
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	transaction, err := h.service.RequestWithdrawal(r.Context(), service.WithdrawalRequest{
		UserID:      userID,
		SalonID:     salonID,
		Amount:      req.Amount,
		PhoneNumber: req.PhoneNumber,
		Description: req.Description,
	})
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":     "Withdrawal is being processed",
		"transaction": transaction,
	})
}
