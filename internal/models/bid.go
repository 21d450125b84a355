package models

import "time"

// Bid is one append-only bid on an auction. Amount is in cents.
type Bid struct {
	ID        int       `json:"id" db:"id"`
	AuctionID int       `json:"auctionId" db:"auction_id"`
	UserID    int       `json:"userId" db:"user_id"`
	Amount    int64     `json:"amount" db:"amount"`
	CreatedAt time.Time `json:"createdAt" db:"created_at"`
}

// BidderTotal is one row of a per-auction top-bidders aggregate.
type BidderTotal struct {
	UserID     int   `json:"userId"`
	HighestBid int64 `json:"highestBid"`
	BidCount   int   `json:"bidCount"`
}
