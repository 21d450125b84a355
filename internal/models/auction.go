package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// Auction statuses
const (
	AuctionStatusUpcoming = "upcoming"
	AuctionStatusLive     = "live"
	AuctionStatusEnded    = "ended"
)

// Auction categories
const (
	CategoryElectronics = "electronics"
	CategoryArt         = "art"
	CategoryFashion     = "fashion"
	CategoryVehicles    = "vehicles"
	CategoryOther       = "other"
)

// Item conditions
const (
	ConditionNew         = "new"
	ConditionUsed        = "used"
	ConditionRefurbished = "refurbished"
)

// Auction represents a listing. Prices are in cents; BuyNowPrice is nil
// when the seller did not set one.
type Auction struct {
	ID            int       `json:"id" db:"id"`
	ItemName      string    `json:"itemName" db:"item_name"`
	Description   string    `json:"description" db:"description"`
	Category      string    `json:"category" db:"category"`
	StartingPrice int64     `json:"startingPrice" db:"starting_price"`
	BuyNowPrice   *int64    `json:"buyNowPrice,omitempty" db:"buy_now_price"`
	StartTime     time.Time `json:"startTime" db:"start_time"`
	EndTime       time.Time `json:"endTime" db:"end_time"`
	Status        string    `json:"status" db:"status"`
	Images        ImageList `json:"images" db:"images"`
	Condition     string    `json:"condition" db:"condition"`
	OwnerID       int       `json:"ownerId" db:"owner_id"`
	Settled       bool      `json:"settled" db:"settled"`
	CreatedAt     time.Time `json:"createdAt" db:"created_at"`
}

// ImageList type for JSONB image URL columns
type ImageList []string

// Value implements driver.Valuer for ImageList
func (l ImageList) Value() (driver.Value, error) {
	if l == nil {
		return nil, nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner for ImageList
func (l *ImageList) Scan(value any) error {
	if value == nil {
		*l = nil
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, l)
}
