package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/bidhaus/backend/internal/config"
	"github.com/bidhaus/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-redis/redis/v8"
)

// Auction business errors
var (
	ErrAuctionNotFound = errors.New("auction not found")
	ErrAuctionNotLive  = errors.New("auction is not live")
	ErrBidTooLow       = errors.New("bid amount too low")
	ErrOwnAuctionBid   = errors.New("cannot bid on own auction")
)

// AuctionService handles auction creation, reads, and bidding.
type AuctionService struct {
	db        *sql.DB
	redis     *redis.Client
	cfg       *config.AuctionConfig
	validator *ValidationHelper
}

// CreateAuctionRequest is the auction creation payload. Prices are
// dollars; times must coerce to RFC 3339 timestamps.
type CreateAuctionRequest struct {
	ItemName      string    `json:"itemName" validate:"required,min=5,max=50"`
	Description   string    `json:"description" validate:"required,min=10"`
	Category      string    `json:"category" validate:"required,oneof=electronics art fashion vehicles other"`
	StartingPrice float64   `json:"startingPrice" validate:"gte=0"`
	BuyNowPrice   *float64  `json:"buyNowPrice,omitempty" validate:"omitempty,gte=0"`
	StartTime     time.Time `json:"startTime" validate:"required"`
	EndTime       time.Time `json:"endTime" validate:"required,gtfield=StartTime"`
	Images        []string  `json:"images" validate:"omitempty,dive,url"`
	Condition     string    `json:"condition" validate:"required,oneof=new used refurbished"`
}

type bidRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
}

func NewAuctionService(db *sql.DB, redisClient *redis.Client, cfg *config.AuctionConfig) *AuctionService {
	return &AuctionService{
		db:        db,
		redis:     redisClient,
		cfg:       cfg,
		validator: NewValidationHelper(),
	}
}

// CreateAuction validates the payload and creates the listing attributed
// to the caller. Status is derived once, at submission time; the
// lifecycle job handles later transitions.
func (as *AuctionService) CreateAuction(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var req CreateAuctionRequest

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := as.validator.ValidateStruct(&req); err != nil {
		log.Printf("[AUCTION] Creation validation failed for user %d: %v", userID, err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	auction := models.Auction{
		ItemName:      req.ItemName,
		Description:   req.Description,
		Category:      req.Category,
		StartingPrice: centsFromDollars(req.StartingPrice),
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        DeriveStatus(req.StartTime, req.EndTime, time.Now()),
		Images:        models.ImageList(req.Images),
		Condition:     req.Condition,
		OwnerID:       userID,
	}
	if req.BuyNowPrice != nil {
		buyNow := centsFromDollars(*req.BuyNowPrice)
		auction.BuyNowPrice = &buyNow
	}

	err := as.db.QueryRow(`
		INSERT INTO auctions (item_name, description, category, starting_price, buy_now_price, start_time, end_time, status, images, condition, owner_id, settled)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, false)
		RETURNING id, created_at`,
		auction.ItemName, auction.Description, auction.Category, auction.StartingPrice,
		auction.BuyNowPrice, auction.StartTime, auction.EndTime, auction.Status,
		auction.Images, auction.Condition, auction.OwnerID).Scan(&auction.ID, &auction.CreatedAt)
	if err != nil {
		log.Printf("[AUCTION] Failed to create auction for user %d: %v", userID, err)
		SendErrorResponse(w, "Failed to create auction", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUCTION] Auction %d created by user %d with status %s", auction.ID, userID, auction.Status)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(auction)
}

// GetAuction retrieves a single auction by ID.
func (as *AuctionService) GetAuction(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "auctionID"))
	if err != nil {
		SendErrorResponse(w, "Invalid auction ID", http.StatusBadRequest, nil)
		return
	}

	auction, err := as.fetchAuction(id)
	if err != nil {
		if errors.Is(err, ErrAuctionNotFound) {
			SendErrorResponse(w, "Auction not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUCTION] Failed to fetch auction %d: %v", id, err)
			SendErrorResponse(w, "Failed to fetch auction", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(auction)
}

// ListAuctions retrieves auctions with optional category/status filters.
func (as *AuctionService) ListAuctions(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Category string `validate:"omitempty,oneof=electronics art fashion vehicles other"`
		Status   string `validate:"omitempty,oneof=upcoming live ended"`
		Limit    int    `validate:"omitempty,min=1,max=100"`
	}
	req.Category = r.URL.Query().Get("category")
	req.Status = r.URL.Query().Get("status")
	req.Limit = 50

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			req.Limit = l
		}
	}

	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	query := `
		SELECT id, item_name, description, category, starting_price, buy_now_price, start_time, end_time, status, images, condition, owner_id, settled, created_at
		FROM auctions`
	var conditions []string
	var args []interface{}

	if req.Category != "" {
		conditions = append(conditions, fmt.Sprintf("category = $%d", len(args)+1))
		args = append(args, req.Category)
	}
	if req.Status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, req.Status)
	}
	for i, cond := range conditions {
		if i == 0 {
			query += " WHERE " + cond
		} else {
			query += " AND " + cond
		}
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args)+1)
	args = append(args, req.Limit)

	rows, err := as.db.Query(query, args...)
	if err != nil {
		log.Printf("[AUCTION] Failed to list auctions: %v", err)
		SendErrorResponse(w, "Failed to fetch auctions", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	auctions := []models.Auction{}
	for rows.Next() {
		var a models.Auction
		if err := rows.Scan(&a.ID, &a.ItemName, &a.Description, &a.Category,
			&a.StartingPrice, &a.BuyNowPrice, &a.StartTime, &a.EndTime, &a.Status,
			&a.Images, &a.Condition, &a.OwnerID, &a.Settled, &a.CreatedAt); err != nil {
			log.Printf("[AUCTION] Failed to scan auction: %v", err)
			SendErrorResponse(w, "Failed to fetch auctions", http.StatusInternalServerError, nil)
			return
		}
		auctions = append(auctions, a)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"auctions": auctions,
		"count":    len(auctions),
	})
}

// PlaceBid records an append-only bid on a live auction. The auction row
// is locked so the highest-bid check and the insert cannot interleave
// with a competing bid.
func (as *AuctionService) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := UserIDFromContext(r)
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	auctionID, err := strconv.Atoi(chi.URLParam(r, "auctionID"))
	if err != nil {
		SendErrorResponse(w, "Invalid auction ID", http.StatusBadRequest, nil)
		return
	}

	var req bidRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}
	if err := as.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	bid, err := as.placeBid(auctionID, userID, centsFromDollars(req.Amount))
	if err != nil {
		switch {
		case errors.Is(err, ErrAuctionNotFound):
			SendErrorResponse(w, "Auction not found", http.StatusNotFound, nil)
		case errors.Is(err, ErrAuctionNotLive):
			SendErrorResponse(w, "Auction is not live", http.StatusConflict, nil)
		case errors.Is(err, ErrOwnAuctionBid):
			SendErrorResponse(w, "Cannot bid on your own auction", http.StatusConflict, nil)
		case errors.Is(err, ErrBidTooLow):
			SendErrorResponse(w, err.Error(), http.StatusConflict, nil)
		default:
			log.Printf("[AUCTION] Failed to place bid on auction %d: %v", auctionID, err)
			SendErrorResponse(w, "Failed to place bid", http.StatusInternalServerError, nil)
		}
		return
	}

	log.Printf("[AUCTION] User %d bid %d on auction %d", userID, bid.Amount, auctionID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(bid)
}

func (as *AuctionService) placeBid(auctionID, userID int, amount int64) (*models.Bid, error) {
	tx, err := as.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var ownerID int
	var startingPrice int64
	var startTime, endTime time.Time
	err = tx.QueryRow(`
		SELECT owner_id, starting_price, start_time, end_time
		FROM auctions WHERE id = $1
		FOR UPDATE`,
		auctionID).Scan(&ownerID, &startingPrice, &startTime, &endTime)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to lock auction: %w", err)
	}

	if DeriveStatus(startTime, endTime, time.Now()) != models.AuctionStatusLive {
		return nil, ErrAuctionNotLive
	}
	if ownerID == userID {
		return nil, ErrOwnAuctionBid
	}

	var highest sql.NullInt64
	if err := tx.QueryRow(`SELECT MAX(amount) FROM bids WHERE auction_id = $1`, auctionID).Scan(&highest); err != nil {
		return nil, fmt.Errorf("failed to check highest bid: %w", err)
	}

	if highest.Valid && amount <= highest.Int64 {
		return nil, fmt.Errorf("%w: current highest bid is %d", ErrBidTooLow, highest.Int64)
	}
	if amount < startingPrice {
		return nil, fmt.Errorf("%w: starting price is %d", ErrBidTooLow, startingPrice)
	}

	bid := &models.Bid{
		AuctionID: auctionID,
		UserID:    userID,
		Amount:    amount,
		CreatedAt: time.Now(),
	}
	err = tx.QueryRow(`
		INSERT INTO bids (auction_id, user_id, amount, created_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id`,
		bid.AuctionID, bid.UserID, bid.Amount, bid.CreatedAt).Scan(&bid.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to record bid: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	as.invalidateBidCache(auctionID)
	return bid, nil
}

// TopBidders returns the highest bid per user for an auction, best first.
// Results are cached briefly in Redis; the cache is dropped on new bids.
func (as *AuctionService) TopBidders(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.Atoi(chi.URLParam(r, "auctionID"))
	if err != nil {
		SendErrorResponse(w, "Invalid auction ID", http.StatusBadRequest, nil)
		return
	}

	limit := as.cfg.TopBiddersLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l >= 1 && l <= 100 {
			limit = l
		}
	}

	if cached := as.cachedBidders(r.Context(), auctionID, limit); cached != nil {
		w.Header().Set("Content-Type", "application/json")
		w.Write(cached)
		return
	}

	rows, err := as.db.Query(`
		SELECT user_id, MAX(amount) AS highest, COUNT(*) AS bid_count
		FROM bids
		WHERE auction_id = $1
		GROUP BY user_id
		ORDER BY highest DESC
		LIMIT $2`,
		auctionID, limit)
	if err != nil {
		log.Printf("[AUCTION] Failed to fetch top bidders for auction %d: %v", auctionID, err)
		SendErrorResponse(w, "Failed to fetch top bidders", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	bidders := []models.BidderTotal{}
	for rows.Next() {
		var b models.BidderTotal
		if err := rows.Scan(&b.UserID, &b.HighestBid, &b.BidCount); err != nil {
			log.Printf("[AUCTION] Failed to scan bidder row: %v", err)
			SendErrorResponse(w, "Failed to fetch top bidders", http.StatusInternalServerError, nil)
			return
		}
		bidders = append(bidders, b)
	}

	payload, _ := json.Marshal(map[string]interface{}{
		"auctionId": auctionID,
		"bidders":   bidders,
	})
	as.cacheBidders(r.Context(), auctionID, limit, payload)

	w.Header().Set("Content-Type", "application/json")
	w.Write(payload)
}

// SuggestedBid returns a bid the caller could place: the highest bid
// bumped by the configured factor, floored at the starting price.
func (as *AuctionService) SuggestedBid(w http.ResponseWriter, r *http.Request) {
	auctionID, err := strconv.Atoi(chi.URLParam(r, "auctionID"))
	if err != nil {
		SendErrorResponse(w, "Invalid auction ID", http.StatusBadRequest, nil)
		return
	}

	var startingPrice int64
	err = as.db.QueryRow(`SELECT starting_price FROM auctions WHERE id = $1`, auctionID).Scan(&startingPrice)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Auction not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUCTION] Failed to fetch auction %d: %v", auctionID, err)
			SendErrorResponse(w, "Failed to fetch auction", http.StatusInternalServerError, nil)
		}
		return
	}

	var highest sql.NullInt64
	if err := as.db.QueryRow(`SELECT MAX(amount) FROM bids WHERE auction_id = $1`, auctionID).Scan(&highest); err != nil {
		log.Printf("[AUCTION] Failed to fetch highest bid for auction %d: %v", auctionID, err)
		SendErrorResponse(w, "Failed to compute suggested bid", http.StatusInternalServerError, nil)
		return
	}

	suggested := SuggestBid(startingPrice, highest, as.cfg.SuggestedBidFactor)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"auctionId":    auctionID,
		"suggestedBid": suggested,
	})
}

// SuggestBid computes the suggested next bid in cents.
func SuggestBid(startingPrice int64, highest sql.NullInt64, factor float64) int64 {
	if !highest.Valid {
		return startingPrice
	}
	bumped := int64(math.Ceil(float64(highest.Int64) * factor))
	if bumped < startingPrice {
		return startingPrice
	}
	return bumped
}

func (as *AuctionService) fetchAuction(id int) (*models.Auction, error) {
	a := &models.Auction{}
	err := as.db.QueryRow(`
		SELECT id, item_name, description, category, starting_price, buy_now_price, start_time, end_time, status, images, condition, owner_id, settled, created_at
		FROM auctions WHERE id = $1`,
		id).Scan(&a.ID, &a.ItemName, &a.Description, &a.Category, &a.StartingPrice,
		&a.BuyNowPrice, &a.StartTime, &a.EndTime, &a.Status, &a.Images,
		&a.Condition, &a.OwnerID, &a.Settled, &a.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAuctionNotFound
		}
		return nil, fmt.Errorf("failed to fetch auction: %w", err)
	}
	return a, nil
}

func (as *AuctionService) cachedBidders(ctx context.Context, auctionID, limit int) []byte {
	if as.redis == nil {
		return nil
	}
	key := bidCacheKey(auctionID, limit)
	data, err := as.redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil
	}
	return data
}

func (as *AuctionService) cacheBidders(ctx context.Context, auctionID, limit int, payload []byte) {
	if as.redis == nil {
		return
	}
	key := bidCacheKey(auctionID, limit)
	if err := as.redis.Set(ctx, key, payload, as.cfg.BidCacheTTL).Err(); err != nil {
		log.Printf("[AUCTION] Failed to cache top bidders for auction %d: %v", auctionID, err)
	}
}

func (as *AuctionService) invalidateBidCache(auctionID int) {
	if as.redis == nil {
		return
	}
	ctx := context.Background()
	pattern := fmt.Sprintf("auction:%d:topbidders:*", auctionID)
	keys, err := as.redis.Keys(ctx, pattern).Result()
	if err != nil || len(keys) == 0 {
		return
	}
	if err := as.redis.Del(ctx, keys...).Err(); err != nil {
		log.Printf("[AUCTION] Failed to drop bid cache for auction %d: %v", auctionID, err)
	}
}

func bidCacheKey(auctionID, limit int) string {
	return fmt.Sprintf("auction:%d:topbidders:%d", auctionID, limit)
}
