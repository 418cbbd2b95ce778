package domain

import "time"

// Side is the direction of a bet.
type Side string

const (
	SideYes Side = "yes"
	SideNo  Side = "no"
)

// Position is the stake of one user on one side of a market.
type Position struct {
	ID          int64     `json:"id"`
	MarketID    int64     `json:"market_id"`
	UserAddress string    `json:"user_address"`
	Side        Side      `json:"side"`
	Amount      float64   `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

// UserPosition is a position joined with its market's question and state.
type UserPosition struct {
	Position
	Question string       `json:"question"`
	Status   MarketStatus `json:"status"`
	Outcome  Outcome      `json:"outcome"`
}

// BettorAggregate summarises one address's betting activity. Wins and
// ResolvedBets are filled by callers from resolved market data.
type BettorAggregate struct {
	BetsCount    int
	TotalVolume  float64
	Wins         int
	ResolvedBets int
}

// UserStats is the per-address summary shown on profile pages.
type UserStats struct {
	Address        string  `json:"address"`
	TotalBets      int     `json:"betsCount"`
	TotalVolume    float64 `json:"totalVolume"`
	Wins           int     `json:"wins"`
	ResolvedBets   int     `json:"resolvedBets"`
	WinRate        float64 `json:"winRate"`
	MarketsCreated int     `json:"marketsCreated"`
}

// LeaderboardEntry is a ranked UserStats row.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	UserStats
}

// LeaderboardSort selects the leaderboard ordering.
type LeaderboardSort string

const (
	LeaderboardByVolume  LeaderboardSort = "volume"
	LeaderboardByBets    LeaderboardSort = "bets"
	LeaderboardByWins    LeaderboardSort = "wins"
	LeaderboardByWinRate LeaderboardSort = "winrate"
	LeaderboardByMarkets LeaderboardSort = "markets"
)
