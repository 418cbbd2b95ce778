package domain

import "time"

// LedgerMarket is the on-chain state of one market contract.
type LedgerMarket struct {
	Address   string
	Question  string
	Creator   string
	FeedID    string
	Deadline  time.Time
	Resolved  bool
	Outcome   Outcome
	TotalYes  float64
	TotalNo   float64
	LockPrice float64
}

// MarketState is the display state derived for a directory entry.
type MarketState string

const (
	MarketStateActive   MarketState = "Active"
	MarketStateLocked   MarketState = "Locked"
	MarketStateResolved MarketState = "Resolved"
)

// MarketView merges ledger truth with off-chain metadata. Metadata is nil
// when no metadata row matched.
type MarketView struct {
	Address        string      `json:"address"`
	MarketID       *int64      `json:"market_id,omitempty"`
	Question       string      `json:"question"`
	Category       string      `json:"category"`
	ImageURL       string      `json:"image_url,omitempty"`
	Creator        string      `json:"creator"`
	FeedID         string      `json:"feed_id,omitempty"`
	Deadline       time.Time   `json:"deadline"`
	State          MarketState `json:"state"`
	Outcome        Outcome     `json:"outcome"`
	TotalYes       float64     `json:"total_yes"`
	TotalNo        float64     `json:"total_no"`
	TotalLiquidity float64     `json:"total_liquidity"`
	CurrentPrice   float64     `json:"current_price"`
	TrendingScore  float64     `json:"trending_score"`
	Metadata       *Market     `json:"metadata,omitempty"`
}
