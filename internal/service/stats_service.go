package service

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/ledger"
)

const defaultLeaderboardLimit = 100

// StatsLedger is the part of the ledger adapter used for betting stats.
type StatsLedger interface {
	ScanPositions(ctx context.Context, r ledger.BlockRange) ledger.PositionScan
	ScanCreators(ctx context.Context, r ledger.BlockRange) ledger.CreatorScan
}

// StatsService builds user stats and the leaderboard. On-chain position
// events are the primary source; the database supplies win counts and
// covers addresses the ledger scan missed.
type StatsService struct {
	ledger    StatsLedger
	stats     domain.StatsStore
	metrics   DirectoryRecorder
	scanRange ledger.BlockRange
	logger    *slog.Logger
}

// NewStatsService creates a StatsService. l and metrics may be nil.
func NewStatsService(l StatsLedger, stats domain.StatsStore, metrics DirectoryRecorder, scanRange ledger.BlockRange, logger *slog.Logger) *StatsService {
	return &StatsService{
		ledger:    l,
		stats:     stats,
		metrics:   metrics,
		scanRange: scanRange,
		logger:    logger.With(slog.String("component", "stats")),
	}
}

type chainActivity struct {
	bettors  map[string]domain.BettorAggregate
	creators map[string]int
}

func (s *StatsService) scanChain(ctx context.Context) chainActivity {
	act := chainActivity{
		bettors:  map[string]domain.BettorAggregate{},
		creators: map[string]int{},
	}
	if s.ledger == nil {
		return act
	}

	var positions ledger.PositionScan
	var creators ledger.CreatorScan
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		positions = s.ledger.ScanPositions(gctx, s.scanRange)
		return nil
	})
	g.Go(func() error {
		creators = s.ledger.ScanCreators(gctx, s.scanRange)
		return nil
	})
	_ = g.Wait()

	if s.metrics != nil {
		s.metrics.AddSkippedLogs("PositionOpened", positions.Skipped)
		s.metrics.AddSkippedLogs("MarketCreated", creators.Skipped)
	}
	if positions.Bettors != nil {
		act.bettors = positions.Bettors
	}
	if creators.Counts != nil {
		act.creators = creators.Counts
	}
	return act
}

// creatorCounts prefers on-chain creation events and falls back to the
// markets table when the scan found none.
func (s *StatsService) creatorCounts(ctx context.Context, onChain map[string]int) map[string]int {
	if len(onChain) > 0 {
		return onChain
	}
	counts, err := s.stats.CreatorCounts(ctx)
	if err != nil {
		s.logger.WarnContext(ctx, "stats: creator counts unavailable", slog.String("error", err.Error()))
		return map[string]int{}
	}
	return counts
}

// UserStats returns the summary of one address.
func (s *StatsService) UserStats(ctx context.Context, address string) (domain.UserStats, error) {
	if !IsAddress(address) {
		return domain.UserStats{}, fmt.Errorf("stats: %w: invalid address %q", domain.ErrInvalidInput, address)
	}
	addr := strings.ToLower(address)

	act := s.scanChain(ctx)
	creators := s.creatorCounts(ctx, act.creators)

	db, err := s.stats.UserStats(ctx, addr)
	if err != nil {
		return domain.UserStats{}, fmt.Errorf("stats: user %s: %w", addr, err)
	}

	var dbRow *domain.BettorAggregate
	if db.BetsCount > 0 {
		dbRow = &db
	}
	return combineStats(addr, act.bettors[addr], act.bettors[addr].BetsCount > 0, dbRow, creators[addr]), nil
}

// Leaderboard ranks every known bettor and creator by sortBy. A limit of
// zero or less uses the default.
func (s *StatsService) Leaderboard(ctx context.Context, sortBy domain.LeaderboardSort, limit int) ([]domain.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}

	act := s.scanChain(ctx)
	creators := s.creatorCounts(ctx, act.creators)

	dbBettors, err := s.stats.BettorStats(ctx)
	if err != nil {
		return nil, fmt.Errorf("stats: bettor stats: %w", err)
	}

	seen := make(map[string]bool)
	var rows []domain.UserStats
	for addr, chain := range act.bettors {
		addr = strings.ToLower(addr)
		seen[addr] = true
		var dbRow *domain.BettorAggregate
		if db, ok := dbBettors[addr]; ok && db.BetsCount > 0 {
			dbRow = &db
		}
		rows = append(rows, combineStats(addr, chain, true, dbRow, creators[addr]))
	}
	for addr, db := range dbBettors {
		if seen[addr] || db.BetsCount == 0 {
			continue
		}
		seen[addr] = true
		rows = append(rows, combineStats(addr, domain.BettorAggregate{}, false, &db, creators[addr]))
	}
	for addr, n := range creators {
		if seen[addr] || n == 0 {
			continue
		}
		rows = append(rows, domain.UserStats{Address: addr, MarketsCreated: n})
	}

	sortLeaderboard(rows, sortBy)
	if len(rows) > limit {
		rows = rows[:limit]
	}
	out := make([]domain.LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = domain.LeaderboardEntry{Rank: i + 1, UserStats: r}
	}
	return out, nil
}

// ParseLeaderboardSort validates a sortBy parameter. Empty means volume.
func ParseLeaderboardSort(s string) (domain.LeaderboardSort, error) {
	switch domain.LeaderboardSort(strings.ToLower(s)) {
	case "", domain.LeaderboardByVolume:
		return domain.LeaderboardByVolume, nil
	case domain.LeaderboardByBets:
		return domain.LeaderboardByBets, nil
	case domain.LeaderboardByWins:
		return domain.LeaderboardByWins, nil
	case domain.LeaderboardByWinRate:
		return domain.LeaderboardByWinRate, nil
	case domain.LeaderboardByMarkets:
		return domain.LeaderboardByMarkets, nil
	}
	return "", fmt.Errorf("%w: sortBy %q", domain.ErrInvalidInput, s)
}

// combineStats takes bet count and volume from the chain when present and
// wins from the database when it has a row for the address.
func combineStats(addr string, chain domain.BettorAggregate, onChain bool, db *domain.BettorAggregate, created int) domain.UserStats {
	st := domain.UserStats{Address: addr, MarketsCreated: created}
	switch {
	case onChain:
		st.TotalBets = chain.BetsCount
		st.TotalVolume = chain.TotalVolume
		st.Wins, st.ResolvedBets = chain.Wins, chain.ResolvedBets
		if db != nil {
			st.Wins, st.ResolvedBets = db.Wins, db.ResolvedBets
		}
	case db != nil:
		st.TotalBets = db.BetsCount
		st.TotalVolume = db.TotalVolume
		st.Wins, st.ResolvedBets = db.Wins, db.ResolvedBets
	}
	st.WinRate = winRate(st.Wins, st.ResolvedBets)
	return st
}

// winRate is a percentage rounded to two decimals.
func winRate(wins, resolved int) float64 {
	if resolved <= 0 {
		return 0
	}
	return math.Round(float64(wins)/float64(resolved)*10000) / 100
}

func sortLeaderboard(rows []domain.UserStats, by domain.LeaderboardSort) {
	type key func(domain.UserStats) float64
	bets := func(u domain.UserStats) float64 { return float64(u.TotalBets) }
	volume := func(u domain.UserStats) float64 { return u.TotalVolume }
	wins := func(u domain.UserStats) float64 { return float64(u.Wins) }
	rate := func(u domain.UserStats) float64 { return u.WinRate }
	markets := func(u domain.UserStats) float64 { return float64(u.MarketsCreated) }

	var keys []key
	switch by {
	case domain.LeaderboardByBets:
		keys = []key{bets, markets, volume}
	case domain.LeaderboardByWins:
		keys = []key{wins, rate, markets}
	case domain.LeaderboardByWinRate:
		keys = []key{rate, wins, markets}
	case domain.LeaderboardByMarkets:
		keys = []key{markets, bets, volume}
	default:
		keys = []key{volume, markets, bets}
	}

	sort.SliceStable(rows, func(i, j int) bool {
		for _, k := range keys {
			a, b := k(rows[i]), k(rows[j])
			if a != b {
				return a > b
			}
		}
		return rows[i].Address < rows[j].Address
	})
}
