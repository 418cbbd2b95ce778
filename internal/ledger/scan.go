package ledger

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"golang.org/x/sync/errgroup"

	"github.com/prophezy/oracle-resolver/internal/domain"
)

// CreatorScan is the result of a MarketCreated scan.
type CreatorScan struct {
	Counts map[string]int
	// ByMarket maps market address to creator address.
	ByMarket map[string]string
	Decoded  int
	Skipped  int
}

// PositionScan is the result of a PositionOpened scan. Wins and
// ResolvedBets are left zero; callers enrich them from resolution data.
type PositionScan struct {
	Bettors       map[string]domain.BettorAggregate
	Decoded       int
	Skipped       int
	FailedMarkets int
}

// CountCreators attributes each decodable creation log to its creator.
// Undecodable logs are counted as skipped and never abort the batch.
func CountCreators(logs []types.Log) CreatorScan {
	scan := CreatorScan{Counts: make(map[string]int), ByMarket: make(map[string]string)}
	for _, l := range logs {
		d := DecodeCreation(l)
		if d.Status != StatusDecoded {
			scan.Skipped++
			continue
		}
		scan.Counts[d.Creator]++
		if d.Market != "" {
			scan.ByMarket[d.Market] = d.Creator
		}
		scan.Decoded++
	}
	return scan
}

// AggregatePositions folds position logs into per-trader bet counts and
// volume.
func AggregatePositions(logs []types.Log) PositionScan {
	scan := PositionScan{Bettors: make(map[string]domain.BettorAggregate)}
	for _, l := range logs {
		d := DecodePosition(l)
		if d.Status != StatusDecoded {
			scan.Skipped++
			continue
		}
		agg := scan.Bettors[d.Trader]
		agg.BetsCount++
		agg.TotalVolume += d.Amount
		scan.Bettors[d.Trader] = agg
		scan.Decoded++
	}
	return scan
}

func (s *PositionScan) merge(other PositionScan) {
	for addr, agg := range other.Bettors {
		cur := s.Bettors[addr]
		cur.BetsCount += agg.BetsCount
		cur.TotalVolume += agg.TotalVolume
		s.Bettors[addr] = cur
	}
	s.Decoded += other.Decoded
	s.Skipped += other.Skipped
	s.FailedMarkets += other.FailedMarkets
}

// ScanCreators scans the factory's creation events in r. A failed log query
// yields an empty result so callers can fall back to the database.
func (a *Adapter) ScanCreators(ctx context.Context, r BlockRange) CreatorScan {
	logs, err := a.filterLogs(ctx, ethereum.FilterQuery{
		FromBlock: r.From,
		ToBlock:   r.To,
		Addresses: []common.Address{a.factory},
		Topics:    [][]common.Hash{{marketCreatedID}},
	})
	if err != nil {
		a.logger.Warn("ledger: creator scan failed", slog.String("error", err.Error()))
		return CreatorScan{Counts: map[string]int{}, ByMarket: map[string]string{}}
	}

	scan := CountCreators(logs)
	if scan.Skipped > 0 {
		a.logger.Warn("ledger: skipped undecodable creation logs",
			slog.Int("skipped", scan.Skipped),
			slog.Int("decoded", scan.Decoded),
		)
	}
	return scan
}

// ScanPositions scans PositionOpened events of every market in parallel.
// A market whose query fails is skipped; if the market list itself cannot be
// read the result is empty.
func (a *Adapter) ScanPositions(ctx context.Context, r BlockRange) PositionScan {
	total := PositionScan{Bettors: map[string]domain.BettorAggregate{}}

	markets, err := a.GetMarketAddresses(ctx)
	if err != nil {
		a.logger.Warn("ledger: position scan could not list markets", slog.String("error", err.Error()))
		return total
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.cfg.ScanConcurrency)

	for _, market := range markets {
		g.Go(func() error {
			logs, err := a.filterLogs(gctx, ethereum.FilterQuery{
				FromBlock: r.From,
				ToBlock:   r.To,
				Addresses: []common.Address{common.HexToAddress(market)},
				Topics:    [][]common.Hash{{positionOpenedID}},
			})

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				a.logger.Warn("ledger: position scan failed for market",
					slog.String("market", market),
					slog.String("error", err.Error()),
				)
				total.FailedMarkets++
				return nil
			}
			total.merge(AggregatePositions(logs))
			return nil
		})
	}
	_ = g.Wait()

	return total
}
