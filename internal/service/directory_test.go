package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/ledger"
	"github.com/prophezy/oracle-resolver/internal/service"
)

const (
	addrA = "0x00000000000000000000000000000000000000aa"
	addrB = "0x00000000000000000000000000000000000000bb"
)

var mergeNow = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

func ledgerMarket(addr string) domain.LedgerMarket {
	return domain.LedgerMarket{
		Address:  addr,
		Creator:  "0x00000000000000000000000000000000000000C1",
		FeedID:   "0x4254430000000000000000000000000000000000000000000000000000000000",
		Deadline: mergeNow.Add(time.Hour),
		TotalYes: 3,
		TotalNo:  1,
	}
}

func permutations(ms []domain.Market) [][]domain.Market {
	if len(ms) <= 1 {
		return [][]domain.Market{append([]domain.Market(nil), ms...)}
	}
	var out [][]domain.Market
	for i := range ms {
		rest := make([]domain.Market, 0, len(ms)-1)
		rest = append(rest, ms[:i]...)
		rest = append(rest, ms[i+1:]...)
		for _, p := range permutations(rest) {
			out = append(out, append([]domain.Market{ms[i]}, p...))
		}
	}
	return out
}

func TestMerge_IdempotentAcrossPermutations(t *testing.T) {
	candidates := []domain.Market{
		{MarketID: 3, Address: "0x00000000000000000000000000000000000000AA", Question: "Q3", Category: "Crypto"},
		{MarketID: 1, FeedID: "BTC", Question: "Q1"},
		{MarketID: 2, Address: addrB, Question: "Q2"},
		{MarketID: 4, FeedID: "btc", Question: "Q4"},
	}
	lm := ledgerMarket(addrA)

	want := service.Merge(lm, candidates, nil, mergeNow)
	require.NotNil(t, want.MarketID)
	assert.Equal(t, int64(3), *want.MarketID)
	assert.Equal(t, "Crypto", want.Category)

	for _, p := range permutations(candidates) {
		assert.Equal(t, want, service.Merge(lm, p, nil, mergeNow))
		assert.Equal(t, want, service.Merge(lm, p, nil, mergeNow))
	}
}

func TestMerge_AddressTieBrokenByLowestMarketID(t *testing.T) {
	a := domain.Market{MarketID: 9, Address: addrA, Question: "nine"}
	b := domain.Market{MarketID: 5, Address: "0x00000000000000000000000000000000000000AA", Question: "five"}

	v1 := service.Merge(ledgerMarket(addrA), []domain.Market{a, b}, nil, mergeNow)
	v2 := service.Merge(ledgerMarket(addrA), []domain.Market{b, a}, nil, mergeNow)

	assert.Equal(t, v1, v2)
	assert.Equal(t, int64(5), *v1.MarketID)
}

func TestMerge_FeedFallback(t *testing.T) {
	candidates := []domain.Market{
		{MarketID: 8, FeedID: "ETH"},
		{MarketID: 6, FeedID: "BTC", Question: "Will BTC moon?", ImageURL: "https://img/btc.png"},
		{MarketID: 2, Address: addrB, FeedID: "BTC"},
	}
	v := service.Merge(ledgerMarket(addrA), candidates, nil, mergeNow)

	require.NotNil(t, v.MarketID)
	assert.Equal(t, int64(6), *v.MarketID)
	assert.Equal(t, "Will BTC moon?", v.Question)
	assert.Equal(t, "https://img/btc.png", v.ImageURL)
}

func TestMerge_FeedFallbackSkipsLinkedRows(t *testing.T) {
	candidates := []domain.Market{
		{MarketID: 1, Address: addrB, FeedID: "BTC", Question: "linked elsewhere"},
	}
	v := service.Merge(ledgerMarket(addrA), candidates, nil, mergeNow)

	assert.Nil(t, v.MarketID)
	assert.Nil(t, v.Metadata)
}

func TestMerge_NoMatch(t *testing.T) {
	lm := ledgerMarket("0x1234567890abcdef1234567890abcdef12345678")
	lm.FeedID = ""
	lm.Creator = ""
	lm.TotalYes, lm.TotalNo = 0, 0

	v := service.Merge(lm, []domain.Market{{MarketID: 1, FeedID: "BTC"}}, map[string]string{
		"0x1234567890abcdef1234567890abcdef12345678": "0x00000000000000000000000000000000000000e1",
	}, mergeNow)

	assert.Nil(t, v.MarketID)
	assert.Nil(t, v.Metadata)
	assert.Equal(t, "Market 0x123456...345678", v.Question)
	assert.Equal(t, "Other", v.Category)
	assert.Equal(t, "0x00000000000000000000000000000000000000e1", v.Creator)
	assert.Equal(t, 0.5, v.CurrentPrice)
	assert.Zero(t, v.TrendingScore)
}

func TestMerge_DerivedFields(t *testing.T) {
	lm := ledgerMarket(addrA)
	lm.Question = "On-chain question?"
	v := service.Merge(lm, []domain.Market{{MarketID: 1, Address: addrA, Question: "meta", Creator: "0xdead"}}, nil, mergeNow)

	assert.Equal(t, "On-chain question?", v.Question)
	assert.Equal(t, "0x00000000000000000000000000000000000000c1", v.Creator)
	assert.Equal(t, domain.MarketStateActive, v.State)
	assert.Equal(t, 4.0, v.TotalLiquidity)
	assert.Equal(t, 0.75, v.CurrentPrice)
	// 4 * 1.2 * (1 + 1/3*0.3)
	assert.InDelta(t, 5.28, v.TrendingScore, 1e-9)

	lm.Deadline = mergeNow
	assert.Equal(t, domain.MarketStateLocked, service.Merge(lm, nil, nil, mergeNow).State)
	lm.Resolved = true
	assert.Equal(t, domain.MarketStateResolved, service.Merge(lm, nil, nil, mergeNow).State)
}

type fakeDirLedger struct {
	markets map[string]domain.LedgerMarket
	order   []string
	listErr error
	scan    ledger.CreatorScan
}

func (f *fakeDirLedger) GetMarketAddresses(context.Context) ([]string, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.order, nil
}

func (f *fakeDirLedger) ReadMarket(_ context.Context, addr string) (domain.LedgerMarket, error) {
	lm, ok := f.markets[addr]
	if !ok {
		return domain.LedgerMarket{}, errors.New("execution reverted")
	}
	return lm, nil
}

func (f *fakeDirLedger) ScanCreators(context.Context, ledger.BlockRange) ledger.CreatorScan {
	return f.scan
}

type memDirCache struct {
	views       []domain.MarketView
	sets        int
	invalidated int
}

func (c *memDirCache) SetViews(_ context.Context, v []domain.MarketView) error {
	c.views = v
	c.sets++
	return nil
}

func (c *memDirCache) GetViews(context.Context) ([]domain.MarketView, error) {
	if c.views == nil {
		return nil, domain.ErrNotFound
	}
	return c.views, nil
}

func (c *memDirCache) Invalidate(context.Context) error {
	c.views = nil
	c.invalidated++
	return nil
}

func TestDirectory_ListCachesAndSkipsUnreadable(t *testing.T) {
	fl := &fakeDirLedger{
		markets: map[string]domain.LedgerMarket{addrA: ledgerMarket(addrA)},
		order:   []string{addrA, addrB},
		scan:    ledger.CreatorScan{ByMarket: map[string]string{}},
	}
	store := newMemStore(domain.Market{MarketID: 1, Address: addrA, Question: "Q"})
	cache := &memDirCache{}
	dir := service.NewDirectory(fl, store, cache, nil, ledger.BlockRange{}, discardLogger())

	views, err := dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 1)
	assert.Equal(t, addrA, views[0].Address)
	assert.Equal(t, 1, cache.sets)

	fl.order = nil
	again, err := dir.List(context.Background())
	require.NoError(t, err)
	assert.Equal(t, views, again)
}

func TestDirectory_LedgerDownServesMetadata(t *testing.T) {
	fl := &fakeDirLedger{listErr: errors.New("dial tcp: refused")}
	store := newMemStore(
		domain.Market{MarketID: 1, Question: "Q1", Status: domain.MarketStatusActive, EndTime: mergeNow.Add(time.Hour)},
		domain.Market{MarketID: 2, Question: "Q2", Status: domain.MarketStatusResolved, Outcome: domain.OutcomeNo},
	)
	cache := &memDirCache{}
	dir := service.NewDirectory(fl, store, cache, nil, ledger.BlockRange{}, discardLogger())

	views, err := dir.List(context.Background())
	require.NoError(t, err)
	require.Len(t, views, 2)
	assert.Equal(t, "Q1", views[0].Question)
	assert.Equal(t, domain.MarketStateResolved, views[1].State)
	assert.Zero(t, cache.sets)
}

func TestReconciler_Run(t *testing.T) {
	addrC := "0x00000000000000000000000000000000000000cc"
	addrD := "0x00000000000000000000000000000000000000dd"

	linked := ledgerMarket(addrA)
	byFeed := ledgerMarket(addrB)
	fresh := ledgerMarket(addrC)
	fresh.FeedID = ""
	fresh.Question = "Will ETH flip BTC?"
	anonymous := ledgerMarket(addrD)
	anonymous.FeedID = ""
	anonymous.Question = ""

	fl := &fakeDirLedger{
		markets: map[string]domain.LedgerMarket{addrA: linked, addrB: byFeed, addrC: fresh, addrD: anonymous},
		order:   []string{addrA, addrB, addrC, addrD},
		scan:    ledger.CreatorScan{ByMarket: map[string]string{}},
	}
	store := newMemStore(
		domain.Market{MarketID: 1, Address: addrA, Question: "linked"},
		domain.Market{MarketID: 2, FeedID: "BTC", Question: "by feed"},
	)
	cache := &memDirCache{views: []domain.MarketView{{}}}
	dir := service.NewDirectory(fl, store, cache, nil, ledger.BlockRange{}, discardLogger())
	rec := service.NewReconciler(dir, store, cache, discardLogger())

	report, err := rec.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, service.ReconcileReport{Scanned: 4, Linked: 1, Created: 1, Skipped: 1}, report)
	assert.Equal(t, addrB, store.market(2).Address)

	created, err := store.GetByAddress(context.Background(), addrC)
	require.NoError(t, err)
	assert.Equal(t, int64(3), created.MarketID)
	assert.Equal(t, "Will ETH flip BTC?", created.Question)
	assert.Equal(t, "Other", created.Category)
	assert.Equal(t, domain.MechanismFastPrice, created.Mechanism)
	assert.Equal(t, created.EndTime.Add(24*time.Hour), created.ResolutionTime)
	assert.Equal(t, 1, cache.invalidated)

	report, err = rec.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Created+report.Linked)
}
