package services

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/bidhaus/backend/internal/config"
	"github.com/stretchr/testify/assert"
)

func testAuctionConfig() *config.AuctionConfig {
	return config.LoadAuctionConfig()
}

func TestLedgerService_Deposit(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db, testAuctionConfig())

	t.Run("successful deposit", func(t *testing.T) {
		userID := 1
		amount := int64(5000)

		mock.ExpectBegin()

		mock.ExpectExec("UPDATE users SET balance = balance \\+ \\$1, total_deposits = total_deposits \\+ \\$1 WHERE id = \\$2").
			WithArgs(amount, userID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), userID, "deposit", amount, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(42))

		mock.ExpectCommit()

		entry, err := service.Deposit(userID, amount)
		assert.NoError(t, err)
		assert.Equal(t, 42, entry.ID)
		assert.Equal(t, "deposit", entry.Type)
		assert.Equal(t, amount, entry.Amount)
		assert.NotEmpty(t, entry.Reference)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive amount rejected", func(t *testing.T) {
		_, err := service.Deposit(1, 0)
		assert.ErrorIs(t, err, ErrInvalidAmount)

		_, err = service.Deposit(1, -500)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("UPDATE users SET balance = balance \\+ \\$1").
			WithArgs(int64(5000), 99).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectRollback()

		_, err := service.Deposit(99, 5000)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Withdraw(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db, testAuctionConfig())

	t.Run("successful withdrawal", func(t *testing.T) {
		userID := 1
		amount := int64(15000)

		mock.ExpectBegin()

		mock.ExpectExec("UPDATE users SET balance = balance - \\$1, total_withdrawals = total_withdrawals \\+ \\$1 WHERE id = \\$2 AND balance >= \\$1").
			WithArgs(amount, userID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), userID, "withdrawal", -amount, sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(43))

		mock.ExpectCommit()

		entry, err := service.Withdraw(userID, amount)
		assert.NoError(t, err)
		assert.Equal(t, "withdrawal", entry.Type)
		assert.Equal(t, -amount, entry.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("insufficient funds", func(t *testing.T) {
		userID := 1
		amount := int64(20000)

		mock.ExpectBegin()

		// The conditional debit touches zero rows when the balance is short
		mock.ExpectExec("UPDATE users SET balance = balance - \\$1").
			WithArgs(amount, userID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(userID).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		mock.ExpectRollback()

		_, err := service.Withdraw(userID, amount)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("unknown user", func(t *testing.T) {
		mock.ExpectBegin()

		mock.ExpectExec("UPDATE users SET balance = balance - \\$1").
			WithArgs(int64(100), 99).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(99).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

		mock.ExpectRollback()

		_, err := service.Withdraw(99, 100)
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid amount", func(t *testing.T) {
		_, err := service.Withdraw(1, -1)
		assert.ErrorIs(t, err, ErrInvalidAmount)
	})
}

func TestLedgerService_RecordWin(t *testing.T) {
	t.Run("balance check enforced by default", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, testAuctionConfig())

		mock.ExpectBegin()

		mock.ExpectExec("UPDATE users SET balance = balance - \\$1, spent_on_bids = spent_on_bids \\+ \\$1 WHERE id = \\$2 AND balance >= \\$1").
			WithArgs(int64(2500), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), 1, "win", int64(-2500), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(44))

		mock.ExpectCommit()

		entry, err := service.RecordWin(1, 2500)
		assert.NoError(t, err)
		assert.Equal(t, "win", entry.Type)
		assert.Equal(t, int64(-2500), entry.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("overdrawing win rejected", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		service := NewLedgerService(db, testAuctionConfig())

		mock.ExpectBegin()

		mock.ExpectExec("UPDATE users SET balance = balance - \\$1, spent_on_bids").
			WithArgs(int64(999999), 1).
			WillReturnResult(sqlmock.NewResult(0, 0))

		mock.ExpectQuery("SELECT EXISTS").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

		mock.ExpectRollback()

		_, err = service.RecordWin(1, 999999)
		assert.ErrorIs(t, err, ErrInsufficientFunds)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("on-credit wins skip the balance check", func(t *testing.T) {
		db, mock, err := sqlmock.New()
		assert.NoError(t, err)
		defer db.Close()

		cfg := testAuctionConfig()
		cfg.WinsRequireBalance = false
		service := NewLedgerService(db, cfg)

		mock.ExpectBegin()

		mock.ExpectExec("UPDATE users SET balance = balance - \\$1, spent_on_bids = spent_on_bids \\+ \\$1 WHERE id = \\$2$").
			WithArgs(int64(999999), 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectQuery("INSERT INTO transactions").
			WithArgs(sqlmock.AnyArg(), 1, "win", int64(-999999), sqlmock.AnyArg()).
			WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(45))

		mock.ExpectCommit()

		entry, err := service.RecordWin(1, 999999)
		assert.NoError(t, err)
		assert.Equal(t, int64(-999999), entry.Amount)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLedgerService_Transactions(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	service := NewLedgerService(db, testAuctionConfig())

	t.Run("filter by type", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, reference, user_id, type, amount, created_at FROM transactions WHERE user_id = \\$1 AND type = \\$2").
			WithArgs(1, "deposit", 10).
			WillReturnRows(sqlmock.NewRows([]string{"id", "reference", "user_id", "type", "amount", "created_at"}))

		transactions, err := service.Transactions(1, "deposit", 10)
		assert.NoError(t, err)
		assert.Empty(t, transactions)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
