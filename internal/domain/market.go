package domain

import (
	"fmt"
	"strings"
	"time"
)

// ZeroAddress is used as the creator when none is supplied.
const ZeroAddress = "0x0000000000000000000000000000000000000000"

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusResolved MarketStatus = "resolved"
)

// Outcome is the settled answer of a market. Stored as a small integer.
type Outcome int

const (
	OutcomeUndecided Outcome = 0
	OutcomeYes       Outcome = 1
	OutcomeNo        Outcome = 2
)

// Terminal reports whether o is a valid resolved outcome.
func (o Outcome) Terminal() bool {
	return o == OutcomeYes || o == OutcomeNo
}

func (o Outcome) String() string {
	switch o {
	case OutcomeYes:
		return "Yes"
	case OutcomeNo:
		return "No"
	default:
		return "Undecided"
	}
}

// OutcomeForThreshold returns yes when value >= threshold, no otherwise.
func OutcomeForThreshold(value, threshold float64) Outcome {
	if value >= threshold {
		return OutcomeYes
	}
	return OutcomeNo
}

// Mechanism selects the resolution strategy for a market.
type Mechanism string

const (
	MechanismFastPrice      Mechanism = "fast-price"
	MechanismDelayedDispute Mechanism = "delayed-dispute"
)

// ParseMechanism accepts the canonical tags plus the provider aliases the
// frontend sends (chainlink/redstone for fast-price, uma for delayed-dispute).
func ParseMechanism(s string) (Mechanism, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fast-price", "chainlink", "redstone":
		return MechanismFastPrice, nil
	case "delayed-dispute", "uma":
		return MechanismDelayedDispute, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedMechanism, s)
	}
}

// DisplayName returns the oracle name shown next to markets using m.
func (m Mechanism) DisplayName() string {
	if m == MechanismDelayedDispute {
		return "UMA"
	}
	return "Chainlink"
}

// ResolutionWindow returns the human readable resolution latency for m.
func (m Mechanism) ResolutionWindow() string {
	if m == MechanismDelayedDispute {
		return "24-48 hr"
	}
	return "24 hr"
}

// Market is the off-chain record of a prediction market. Address is empty
// until the on-chain contract is linked.
type Market struct {
	ID                   int64        `json:"id"`
	MarketID             int64        `json:"market_id"`
	Address              string       `json:"market_address,omitempty"`
	Question             string       `json:"question"`
	Category             string       `json:"category"`
	Creator              string       `json:"creator_address"`
	EndTime              time.Time    `json:"end_time"`
	ResolutionTime       time.Time    `json:"resolution_time"`
	Status               MarketStatus `json:"status"`
	Outcome              Outcome      `json:"outcome"`
	Mechanism            Mechanism    `json:"oracle_type"`
	OracleName           string       `json:"oracle_name"`
	OracleResolutionTime string       `json:"oracle_resolution_time"`
	FeedID               string       `json:"feed_id,omitempty"`
	ImageURL             string       `json:"image_url,omitempty"`
	TotalLiquidity       float64      `json:"total_liquidity"`
	CreatedAt            time.Time    `json:"created_at"`
}

// Active reports whether the market can still be resolved.
func (m Market) Active() bool {
	return m.Status == MarketStatusActive
}

// MarketSort selects the ordering of market listings.
type MarketSort string

const (
	MarketSortNewest    MarketSort = "newest"
	MarketSortTrending  MarketSort = "trending"
	MarketSortLiquidity MarketSort = "liquidity"
	MarketSortCategory  MarketSort = "category"
)

// MarketFilter narrows market listings.
type MarketFilter struct {
	Category string
	Sort     MarketSort
	Limit    int
}
