package domain

import "time"

// ResolutionRecord is one completed resolution of a market. At most one
// record per market is authoritative.
type ResolutionRecord struct {
	ID            int64     `json:"id"`
	MarketID      int64     `json:"market_id"`
	Outcome       Outcome   `json:"outcome"`
	Confidence    float64   `json:"confidence"`
	ResolvedBy    string    `json:"resolved_by"`
	Mechanism     Mechanism `json:"mechanism"`
	Value         float64   `json:"value"`
	Threshold     float64   `json:"threshold"`
	TxHash        string    `json:"tx_hash,omitempty"`
	Authoritative bool      `json:"authoritative"`
	ResolvedAt    time.Time `json:"resolved_at"`
}

// ResolutionResult is returned to the caller of a resolve request.
type ResolutionResult struct {
	MarketID   int64
	Outcome    Outcome
	Value      float64
	Threshold  float64
	Mechanism  Mechanism
	Confidence float64
	Timestamp  time.Time
	TxHash     string
	OnChain    bool
}

// ChallengeStatus tracks the out-of-band dispute state of a challenge.
type ChallengeStatus string

const ChallengeStatusPending ChallengeStatus = "pending"

// Challenge disputes a resolved market. It never reverts the resolution.
type Challenge struct {
	ID         string          `json:"id"`
	MarketID   int64           `json:"market_id"`
	Challenger string          `json:"challenger"`
	Reason     string          `json:"reason"`
	Status     ChallengeStatus `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
}
