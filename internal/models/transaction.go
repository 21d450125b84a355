package models

import "time"

// Ledger transaction types
const (
	TxTypeDeposit    = "deposit"
	TxTypeWithdrawal = "withdrawal"
	TxTypeWin        = "win"
)

// Transaction is one append-only ledger event. Amount is signed cents:
// deposits positive, withdrawals and wins negative. Rows are never
// mutated or deleted after insert.
type Transaction struct {
	ID        int       `json:"id" db:"id"`
	Reference string    `json:"reference" db:"reference"`
	UserID    int       `json:"userId" db:"user_id"`
	Type      string    `json:"type" db:"type"`
	Amount    int64     `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}
