package services

import (
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
)

// WalletService exposes the balance ledger over HTTP. Request amounts are
// dollars; storage is cents.
type WalletService struct {
	db        *sql.DB
	ledger    *LedgerService
	validator *ValidationHelper
}

type amountRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func NewWalletService(db *sql.DB, ledger *LedgerService) *WalletService {
	return &WalletService{
		db:        db,
		ledger:    ledger,
		validator: NewValidationHelper(),
	}
}

// Deposit credits the caller's balance.
func (ws *WalletService) Deposit(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	req, ok := ws.decodeAmount(w, r)
	if !ok {
		return
	}

	entry, err := ws.ledger.Deposit(userID, centsFromDollars(req.Amount))
	if err != nil {
		ws.sendLedgerError(w, "deposit", userID, err)
		return
	}

	log.Printf("[WALLET] User %d deposited %d", userID, entry.Amount)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": entry,
	})
}

// Withdraw debits the caller's balance. Rejected outright when the amount
// exceeds the balance read at debit time.
func (ws *WalletService) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	req, ok := ws.decodeAmount(w, r)
	if !ok {
		return
	}

	entry, err := ws.ledger.Withdraw(userID, centsFromDollars(req.Amount))
	if err != nil {
		ws.sendLedgerError(w, "withdrawal", userID, err)
		return
	}

	log.Printf("[WALLET] User %d withdrew %d", userID, -entry.Amount)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"success":     true,
		"transaction": entry,
	})
}

// ListTransactions returns the caller's ledger history with optional type
// filter and limit.
func (ws *WalletService) ListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req struct {
		Type  string `validate:"omitempty,oneof=deposit withdrawal win"`
		Limit int    `validate:"omitempty,min=1,max=100"`
	}
	req.Type = r.URL.Query().Get("type")
	req.Limit = 50

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	transactions, err := ws.ledger.Transactions(userID, req.Type, req.Limit)
	if err != nil {
		log.Printf("[WALLET] Failed to fetch transactions for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to fetch transactions", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"transactions": transactions,
		"count":        len(transactions),
	})
}

// BalanceEnquiry returns the caller's balance and running totals, read
// fresh from storage.
func (ws *WalletService) BalanceEnquiry(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	user, err := ws.ledger.Balance(userID)
	if err != nil {
		ws.sendLedgerError(w, "balance enquiry", userID, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"balance":          user.Balance,
		"totalDeposits":    user.TotalDeposits,
		"totalWithdrawals": user.TotalWithdrawals,
		"spentOnBids":      user.SpentOnBids,
	})
}

func (ws *WalletService) decodeAmount(w http.ResponseWriter, r *http.Request) (amountRequest, bool) {
	var req amountRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return req, false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return req, false
	}

	if err := ws.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return req, false
	}

	return req, true
}

func (ws *WalletService) sendLedgerError(w http.ResponseWriter, op string, userID int, err error) {
	switch {
	case errors.Is(err, ErrInvalidAmount):
		SendErrorResponse(w, "Invalid amount", http.StatusBadRequest, nil)
	case errors.Is(err, ErrInsufficientFunds):
		SendErrorResponse(w, "Insufficient funds", http.StatusBadRequest, nil)
	case errors.Is(err, ErrUserNotFound):
		SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
	default:
		log.Printf("[WALLET] %s failed for user %d: %v", op, userID, err)
		SendErrorResponse(w, "Failed to process request", http.StatusInternalServerError, nil)
	}
}

func centsFromDollars(amount float64) int64 {
	return int64(math.Round(amount * 100))
}
