package services

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/bidhaus/backend/internal/config"
	"github.com/bidhaus/backend/internal/models"
	"github.com/robfig/cron/v3"
)

// DeriveStatus maps an auction's start/end window to its status at the
// given instant. Total over all inputs: exactly one status comes back.
func DeriveStatus(startTime, endTime, now time.Time) string {
	if endTime.Before(now) {
		return models.AuctionStatusEnded
	}
	if !startTime.After(now) {
		return models.AuctionStatusLive
	}
	return models.AuctionStatusUpcoming
}

// LifecycleService moves auction rows through upcoming -> live -> ended as
// wall-clock time passes, and settles ended auctions against the ledger.
// Status is still derived once at creation; the periodic job is what keeps
// long-lived rows from staying "live" forever.
type LifecycleService struct {
	db       *sql.DB
	ledger   *LedgerService
	interval time.Duration
	cron     *cron.Cron
}

func NewLifecycleService(db *sql.DB, ledger *LedgerService, cfg *config.AuctionConfig) *LifecycleService {
	return &LifecycleService{
		db:       db,
		ledger:   ledger,
		interval: cfg.ReconcileInterval,
	}
}

// Start schedules the reconciliation job.
func (s *LifecycleService) Start() error {
	s.cron = cron.New()
	spec := fmt.Sprintf("@every %s", s.interval)
	if _, err := s.cron.AddFunc(spec, s.runOnce); err != nil {
		return fmt.Errorf("failed to schedule lifecycle job: %w", err)
	}
	s.cron.Start()
	log.Printf("[LIFECYCLE] Reconciliation job scheduled every %s", s.interval)
	return nil
}

// Stop halts the reconciliation job and waits for a running pass to finish.
func (s *LifecycleService) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func (s *LifecycleService) runOnce() {
	if err := s.ReconcileStatuses(); err != nil {
		log.Printf("[LIFECYCLE] Status reconciliation failed: %v", err)
	}
	if err := s.SettleEndedAuctions(); err != nil {
		log.Printf("[LIFECYCLE] Settlement failed: %v", err)
	}
}

// ReconcileStatuses promotes upcoming auctions whose window has opened and
// ends any auction whose window has closed.
func (s *LifecycleService) ReconcileStatuses() error {
	now := time.Now()

	result, err := s.db.Exec(`
		UPDATE auctions SET status = $1
		WHERE status = $2 AND start_time <= $3 AND end_time > $3`,
		models.AuctionStatusLive, models.AuctionStatusUpcoming, now)
	if err != nil {
		return fmt.Errorf("failed to promote auctions to live: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[LIFECYCLE] %d auction(s) went live", n)
	}

	result, err = s.db.Exec(`
		UPDATE auctions SET status = $1
		WHERE status IN ($2, $3) AND end_time <= $4`,
		models.AuctionStatusEnded, models.AuctionStatusUpcoming, models.AuctionStatusLive, now)
	if err != nil {
		return fmt.Errorf("failed to end auctions: %w", err)
	}
	if n, _ := result.RowsAffected(); n > 0 {
		log.Printf("[LIFECYCLE] %d auction(s) ended", n)
	}

	return nil
}

// SettleEndedAuctions records the win debit for the highest bidder of each
// ended, unsettled auction. The debit and the settled flag commit in one
// transaction; auctions with no bids are marked settled with no debit.
func (s *LifecycleService) SettleEndedAuctions() error {
	rows, err := s.db.Query(`
		SELECT id FROM auctions
		WHERE status = $1 AND settled = false
		ORDER BY end_time ASC`,
		models.AuctionStatusEnded)
	if err != nil {
		return fmt.Errorf("failed to list unsettled auctions: %w", err)
	}
	defer rows.Close()

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("failed to scan auction id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, id := range ids {
		if err := s.settleAuction(id); err != nil {
			log.Printf("[LIFECYCLE] Failed to settle auction %d: %v", id, err)
		}
	}
	return nil
}

func (s *LifecycleService) settleAuction(auctionID int) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var winnerID int
	var amount int64
	err = tx.QueryRow(`
		SELECT user_id, amount FROM bids
		WHERE auction_id = $1
		ORDER BY amount DESC, created_at ASC
		LIMIT 1`,
		auctionID).Scan(&winnerID, &amount)

	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("failed to find winning bid: %w", err)
	}

	if err == nil {
		if _, err := s.ledger.RecordWinTx(tx, winnerID, amount); err != nil {
			return fmt.Errorf("failed to record win for user %d: %w", winnerID, err)
		}
		log.Printf("[LIFECYCLE] Auction %d settled: user %d wins at %d", auctionID, winnerID, amount)
	} else {
		log.Printf("[LIFECYCLE] Auction %d settled with no bids", auctionID)
	}

	if _, err := tx.Exec(`UPDATE auctions SET settled = true WHERE id = $1`, auctionID); err != nil {
		return fmt.Errorf("failed to mark auction settled: %w", err)
	}

	return tx.Commit()
}
