package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/ledger"
	"github.com/prophezy/oracle-resolver/internal/service"
)

const (
	alice = "0x000000000000000000000000000000000000a11c"
	bob   = "0x0000000000000000000000000000000000000b0b"
	carol = "0x00000000000000000000000000000000000ca401"
)

type fakeStatsLedger struct {
	bettors  map[string]domain.BettorAggregate
	creators map[string]int
}

func (f *fakeStatsLedger) ScanPositions(context.Context, ledger.BlockRange) ledger.PositionScan {
	return ledger.PositionScan{Bettors: f.bettors}
}

func (f *fakeStatsLedger) ScanCreators(context.Context, ledger.BlockRange) ledger.CreatorScan {
	return ledger.CreatorScan{Counts: f.creators}
}

type fakeStatsStore struct {
	bettors  map[string]domain.BettorAggregate
	creators map[string]int
	err      error
}

func (f *fakeStatsStore) BettorStats(context.Context) (map[string]domain.BettorAggregate, error) {
	return f.bettors, f.err
}

func (f *fakeStatsStore) UserStats(_ context.Context, addr string) (domain.BettorAggregate, error) {
	if f.err != nil {
		return domain.BettorAggregate{}, f.err
	}
	return f.bettors[addr], nil
}

func (f *fakeStatsStore) CreatorCounts(context.Context) (map[string]int, error) {
	return f.creators, nil
}

func TestStatsService_UserStats(t *testing.T) {
	chain := &fakeStatsLedger{
		bettors:  map[string]domain.BettorAggregate{alice: {BetsCount: 5, TotalVolume: 12.5}},
		creators: map[string]int{alice: 2, carol: 1},
	}
	db := &fakeStatsStore{bettors: map[string]domain.BettorAggregate{
		alice: {BetsCount: 3, TotalVolume: 7, Wins: 2, ResolvedBets: 3},
		bob:   {BetsCount: 4, TotalVolume: 9, Wins: 1, ResolvedBets: 2},
	}}
	svc := service.NewStatsService(chain, db, nil, ledger.BlockRange{}, discardLogger())
	ctx := context.Background()

	t.Run("chain primary with db wins", func(t *testing.T) {
		st, err := svc.UserStats(ctx, "0x000000000000000000000000000000000000A11C")
		require.NoError(t, err)
		assert.Equal(t, domain.UserStats{
			Address: alice, TotalBets: 5, TotalVolume: 12.5,
			Wins: 2, ResolvedBets: 3, WinRate: 66.67, MarketsCreated: 2,
		}, st)
	})

	t.Run("db fallback", func(t *testing.T) {
		st, err := svc.UserStats(ctx, bob)
		require.NoError(t, err)
		assert.Equal(t, 4, st.TotalBets)
		assert.Equal(t, 9.0, st.TotalVolume)
		assert.Equal(t, 50.0, st.WinRate)
		assert.Zero(t, st.MarketsCreated)
	})

	t.Run("creator only", func(t *testing.T) {
		st, err := svc.UserStats(ctx, carol)
		require.NoError(t, err)
		assert.Equal(t, domain.UserStats{Address: carol, MarketsCreated: 1}, st)
	})

	t.Run("invalid address", func(t *testing.T) {
		_, err := svc.UserStats(ctx, "alice")
		assert.ErrorIs(t, err, domain.ErrInvalidInput)
	})
}

func TestStatsService_UserStatsWithoutLedger(t *testing.T) {
	db := &fakeStatsStore{
		bettors:  map[string]domain.BettorAggregate{bob: {BetsCount: 1, TotalVolume: 2}},
		creators: map[string]int{bob: 3},
	}
	svc := service.NewStatsService(nil, db, nil, ledger.BlockRange{}, discardLogger())

	st, err := svc.UserStats(context.Background(), bob)
	require.NoError(t, err)
	assert.Equal(t, 1, st.TotalBets)
	assert.Equal(t, 3, st.MarketsCreated)
	assert.Zero(t, st.WinRate)
}

func TestStatsService_Leaderboard(t *testing.T) {
	chain := &fakeStatsLedger{
		bettors:  map[string]domain.BettorAggregate{alice: {BetsCount: 5, TotalVolume: 10}},
		creators: map[string]int{alice: 1, carol: 4},
	}
	db := &fakeStatsStore{bettors: map[string]domain.BettorAggregate{
		alice: {BetsCount: 5, TotalVolume: 10, Wins: 1, ResolvedBets: 4},
		bob:   {BetsCount: 2, TotalVolume: 30, Wins: 2, ResolvedBets: 2},
	}}
	svc := service.NewStatsService(chain, db, nil, ledger.BlockRange{}, discardLogger())
	ctx := context.Background()

	byVolume, err := svc.Leaderboard(ctx, domain.LeaderboardByVolume, 0)
	require.NoError(t, err)
	require.Len(t, byVolume, 3)
	assert.Equal(t, []string{bob, alice, carol}, addresses(byVolume))
	for i, e := range byVolume {
		assert.Equal(t, i+1, e.Rank)
	}
	assert.Equal(t, 25.0, byVolume[1].WinRate)

	byMarkets, err := svc.Leaderboard(ctx, domain.LeaderboardByMarkets, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{carol, alice, bob}, addresses(byMarkets))

	byRate, err := svc.Leaderboard(ctx, domain.LeaderboardByWinRate, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{bob, alice}, addresses(byRate))
}

func TestStatsService_LeaderboardStoreError(t *testing.T) {
	svc := service.NewStatsService(nil, &fakeStatsStore{err: errors.New("conn reset")}, nil, ledger.BlockRange{}, discardLogger())
	_, err := svc.Leaderboard(context.Background(), domain.LeaderboardByVolume, 10)
	assert.Error(t, err)
}

func TestParseLeaderboardSort(t *testing.T) {
	s, err := service.ParseLeaderboardSort("")
	require.NoError(t, err)
	assert.Equal(t, domain.LeaderboardByVolume, s)

	s, err = service.ParseLeaderboardSort("WinRate")
	require.NoError(t, err)
	assert.Equal(t, domain.LeaderboardByWinRate, s)

	_, err = service.ParseLeaderboardSort("karma")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func addresses(entries []domain.LeaderboardEntry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Address
	}
	return out
}
