package config

import (
	"os"
	"strconv"
	"time"
)

type AuctionConfig struct {
	// WinsRequireBalance rejects win debits that would overdraw the
	// winner. Turning it off records wins on credit.
	WinsRequireBalance bool
	ReconcileInterval  time.Duration
	SuggestedBidFactor float64
	TopBiddersLimit    int
	BidCacheTTL        time.Duration
}

func LoadAuctionConfig() *AuctionConfig {
	return &AuctionConfig{
		WinsRequireBalance: getEnvAsBool("LEDGER_WINS_REQUIRE_BALANCE", true),
		ReconcileInterval:  getEnvAsDuration("AUCTION_RECONCILE_INTERVAL", 1*time.Minute),
		SuggestedBidFactor: getEnvAsFloat("AUCTION_SUGGESTED_BID_FACTOR", 1.05),
		TopBiddersLimit:    getEnvAsInt("AUCTION_TOP_BIDDERS_LIMIT", 10),
		BidCacheTTL:        getEnvAsDuration("AUCTION_BID_CACHE_TTL", 30*time.Second),
	}
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if boolVal, err := strconv.ParseBool(val); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultVal
}
