package models

import "time"

// User represents a marketplace account. Monetary fields are in cents.
type User struct {
	ID               int       `json:"id" db:"id"`
	Email            string    `json:"email" db:"email"`
	FirstName        string    `json:"firstName" db:"first_name"`
	LastName         string    `json:"lastName" db:"last_name"`
	Balance          int64     `json:"balance" db:"balance"`
	TotalDeposits    int64     `json:"totalDeposits" db:"total_deposits"`
	TotalWithdrawals int64     `json:"totalWithdrawals" db:"total_withdrawals"`
	SpentOnBids      int64     `json:"spentOnBids" db:"spent_on_bids"`
	CreatedAt        time.Time `json:"createdAt" db:"created_at"`
}
