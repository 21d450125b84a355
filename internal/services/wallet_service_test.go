package services

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

func sampleTime() time.Time {
	return time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
}

func authenticatedRequest(method, target string, body []byte, userID string) *http.Request {
	req := httptest.NewRequest(method, target, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req.WithContext(context.WithValue(req.Context(), "userID", userID))
}

func TestCentsFromDollars(t *testing.T) {
	assert.Equal(t, int64(5000), centsFromDollars(50.00))
	assert.Equal(t, int64(1999), centsFromDollars(19.99))
	assert.Equal(t, int64(1), centsFromDollars(0.01))

	// 0.1+0.2 style float noise rounds to the right cent
	assert.Equal(t, int64(30), centsFromDollars(0.1+0.2))
}

func TestWalletService_Deposit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, testAuctionConfig())
	service := NewWalletService(db, ledger)

	t.Run("successful deposit converts dollars to cents", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users SET balance = balance \\+ \\$1").
			WithArgs(int64(5000), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), 1, "deposit", int64(5000), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(1))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]float64{"amount": 50.00})
		req := authenticatedRequest("POST", "/api/v1/wallet/deposit", body, "1")
		rec := httptest.NewRecorder()

		service.Deposit(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)

		var resp map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, true, resp["success"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing identity", func(t *testing.T) {
		body, _ := json.Marshal(map[string]float64{"amount": 50.00})
		req := httptest.NewRequest("POST", "/api/v1/wallet/deposit", bytes.NewReader(body))
		rec := httptest.NewRecorder()

		service.Deposit(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("negative amount rejected before any write", func(t *testing.T) {
		body, _ := json.Marshal(map[string]float64{"amount": -10.00})
		req := authenticatedRequest("POST", "/api/v1/wallet/deposit", body, "1")
		rec := httptest.NewRecorder()

		service.Deposit(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown fields rejected", func(t *testing.T) {
		req := authenticatedRequest("POST", "/api/v1/wallet/deposit",
			[]byte(`{"amount": 10, "bonus": 9999}`), "1")
		rec := httptest.NewRecorder()

		service.Deposit(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestWalletService_Withdraw(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, testAuctionConfig())
	service := NewWalletService(db, ledger)

	t.Run("successful withdrawal", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users SET balance = balance - \\$1").
			WithArgs(int64(2500), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), 1, "withdrawal", int64(-2500), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(2))
		mock.ExpectCommit()

		body, _ := json.Marshal(map[string]float64{"amount": 25.00})
		req := authenticatedRequest("POST", "/api/v1/wallet/withdraw", body, "1")
		rec := httptest.NewRecorder()

		service.Withdraw(rec, req)

		assert.Equal(t, http.StatusCreated, rec.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("UPDATE users SET balance = balance - \\$1").
			WithArgs(int64(100000), 1).
			WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
		mock.ExpectRollback()

		body, _ := json.Marshal(map[string]float64{"amount": 1000.00})
		req := authenticatedRequest("POST", "/api/v1/wallet/withdraw", body, "1")
		rec := httptest.NewRecorder()

		service.Withdraw(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)

		var resp ErrorResponse
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "Insufficient funds", resp.Error)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestWalletService_BalanceEnquiry(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, testAuctionConfig())
	service := NewWalletService(db, ledger)

	mock.ExpectQuery("SELECT id, email, balance, total_deposits, total_withdrawals, spent_on_bids FROM users WHERE id = \\$1").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "balance", "total_deposits", "total_withdrawals", "spent_on_bids"}).
			AddRow(1, "bidder@example.com", 7500, 10000, 0, 2500))

	req := authenticatedRequest("GET", "/api/v1/wallet/balance", nil, "1")
	rec := httptest.NewRecorder()

	service.BalanceEnquiry(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, float64(7500), resp["balance"])
	assert.Equal(t, float64(2500), resp["spentOnBids"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletService_ListTransactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ledger := NewLedgerService(db, testAuctionConfig())
	service := NewWalletService(db, ledger)

	t.Run("invalid type filter", func(t *testing.T) {
		req := authenticatedRequest("GET", "/api/v1/wallet/transactions?type=refund", nil, "1")
		rec := httptest.NewRecorder()

		service.ListTransactions(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("history returned newest first", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, reference, user_id, type, amount, created_at FROM transactions WHERE user_id = \\$1 ORDER BY created_at DESC LIMIT \\$2").
			WithArgs(1, 50).
			WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "user_id", "type", "amount", "created_at"}).
				AddRow(2, "ref-b", 1, "withdrawal", -1000, sampleTime()).
				AddRow(1, "ref-a", 1, "deposit", 5000, sampleTime()))

		req := authenticatedRequest("GET", "/api/v1/wallet/transactions", nil, "1")
		rec := httptest.NewRecorder()

		service.ListTransactions(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)

		var resp map[string]interface{}
		assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, float64(2), resp["count"])
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
