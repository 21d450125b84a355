package services

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/bidhaus/backend/internal/config"
	"github.com/bidhaus/backend/internal/models"
	"github.com/google/uuid"
)

// Ledger business errors
var (
	ErrInvalidAmount     = errors.New("invalid amount")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUserNotFound      = errors.New("user not found")
)

// LedgerService maintains the invariant balance == sum(transaction.amount)
// for a user. Every operation posts the transaction row and the aggregate
// counter update in one database transaction: either both land or neither.
type LedgerService struct {
	db                 *sql.DB
	winsRequireBalance bool
}

func NewLedgerService(db *sql.DB, cfg *config.AuctionConfig) *LedgerService {
	return &LedgerService{
		db:                 db,
		winsRequireBalance: cfg.WinsRequireBalance,
	}
}

// Deposit credits a user's balance and total_deposits by amount cents.
func (s *LedgerService) Deposit(userID int, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE users
		SET balance = balance + $1, total_deposits = total_deposits + $1
		WHERE id = $2`,
		amount, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to credit balance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, ErrUserNotFound
	}

	entry, err := s.appendEntry(tx, userID, models.TxTypeDeposit, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// Withdraw debits a user's balance by amount cents and increments
// total_withdrawals. The balance check and the debit are one conditional
// update, so two concurrent withdrawals can never both pass on a stale
// balance.
func (s *LedgerService) Withdraw(userID int, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.Exec(`
		UPDATE users
		SET balance = balance - $1, total_withdrawals = total_withdrawals + $1
		WHERE id = $2 AND balance >= $1`,
		amount, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, s.classifyDebitFailure(tx, userID)
	}

	entry, err := s.appendEntry(tx, userID, models.TxTypeWithdrawal, -amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// RecordWin debits a user's balance by amount cents and increments
// spent_on_bids. When wins_require_balance is off the debit is applied
// unconditionally, so a win can push the balance negative.
func (s *LedgerService) RecordWin(userID int, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	entry, err := s.RecordWinTx(tx, userID, amount)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return entry, nil
}

// RecordWinTx is RecordWin running inside a caller-owned transaction. The
// settlement job uses it so the win debit and the auction settled flag
// commit together.
func (s *LedgerService) RecordWinTx(tx *sql.Tx, userID int, amount int64) (*models.Transaction, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	query := `
		UPDATE users
		SET balance = balance - $1, spent_on_bids = spent_on_bids + $1
		WHERE id = $2`
	if s.winsRequireBalance {
		query += ` AND balance >= $1`
	}

	result, err := tx.Exec(query, amount, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to debit balance: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return nil, s.classifyDebitFailure(tx, userID)
	}

	return s.appendEntry(tx, userID, models.TxTypeWin, -amount)
}

// Balance reads the user's current balance and running totals fresh from
// storage.
func (s *LedgerService) Balance(userID int) (*models.User, error) {
	user := &models.User{}
	err := s.db.QueryRow(`
		SELECT id, email, balance, total_deposits, total_withdrawals, spent_on_bids
		FROM users WHERE id = $1`,
		userID).Scan(&user.ID, &user.Email, &user.Balance, &user.TotalDeposits,
		&user.TotalWithdrawals, &user.SpentOnBids)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to fetch balance: %w", err)
	}
	return user, nil
}

// Transactions returns the user's ledger history, newest first,
// optionally filtered by type.
func (s *LedgerService) Transactions(userID int, txType string, limit int) ([]models.Transaction, error) {
	query := `
		SELECT id, reference, user_id, type, amount, created_at
		FROM transactions
		WHERE user_id = $1`
	args := []interface{}{userID}

	if txType != "" {
		query += ` AND type = $2`
		args = append(args, txType)
	}
	query += fmt.Sprintf(` ORDER BY created_at DESC LIMIT $%d`, len(args)+1)
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch transactions: %w", err)
	}
	defer rows.Close()

	transactions := []models.Transaction{}
	for rows.Next() {
		var entry models.Transaction
		if err := rows.Scan(&entry.ID, &entry.Reference, &entry.UserID,
			&entry.Type, &entry.Amount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		transactions = append(transactions, entry)
	}
	return transactions, rows.Err()
}

func (s *LedgerService) appendEntry(tx *sql.Tx, userID int, txType string, amount int64) (*models.Transaction, error) {
	entry := &models.Transaction{
		Reference: uuid.NewString(),
		UserID:    userID,
		Type:      txType,
		Amount:    amount,
		CreatedAt: time.Now(),
	}

	err := tx.QueryRow(`
		INSERT INTO transactions (reference, user_id, type, amount, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		entry.Reference, entry.UserID, entry.Type, entry.Amount, entry.CreatedAt).Scan(&entry.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to append ledger entry: %w", err)
	}
	return entry, nil
}

// classifyDebitFailure tells a missing user apart from an insufficient
// balance after a conditional debit touched zero rows.
func (s *LedgerService) classifyDebitFailure(tx *sql.Tx, userID int) error {
	var exists bool
	if err := tx.QueryRow(`SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check user existence: %w", err)
	}
	if !exists {
		return ErrUserNotFound
	}
	return ErrInsufficientFunds
}
