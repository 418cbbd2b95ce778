package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/ledger"
)

const (
	defaultCategory     = "Other"
	directoryReadLimit  = 8
	activeTrendingBoost = 1.2
	balanceBoostWeight  = 0.3
)

// DirectoryLedger is the part of the ledger adapter the directory reads.
type DirectoryLedger interface {
	GetMarketAddresses(ctx context.Context) ([]string, error)
	ReadMarket(ctx context.Context, address string) (domain.LedgerMarket, error)
	ScanCreators(ctx context.Context, r ledger.BlockRange) ledger.CreatorScan
}

// DirectoryRecorder receives directory metrics.
type DirectoryRecorder interface {
	AddSkippedLogs(event string, n int)
	SetDirectorySize(byState map[string]int)
}

// Merge combines one ledger market with off-chain metadata. Candidates are
// matched by address first (lowest MarketID wins a tie), then by feed
// reference in MarketID order. The result depends only on the inputs, not
// on the order of candidates.
func Merge(lm domain.LedgerMarket, candidates []domain.Market, creatorsByMarket map[string]string, now time.Time) domain.MarketView {
	addr := strings.ToLower(lm.Address)
	meta := matchMetadata(lm, candidates)

	v := domain.MarketView{
		Address:  addr,
		Question: strings.TrimSpace(lm.Question),
		Category: defaultCategory,
		FeedID:   lm.FeedID,
		Deadline: lm.Deadline,
		Outcome:  lm.Outcome,
		TotalYes: lm.TotalYes,
		TotalNo:  lm.TotalNo,
	}

	switch {
	case lm.Creator != "" && lm.Creator != domain.ZeroAddress:
		v.Creator = strings.ToLower(lm.Creator)
	case creatorsByMarket[addr] != "":
		v.Creator = creatorsByMarket[addr]
	case meta != nil && meta.Creator != "":
		v.Creator = strings.ToLower(meta.Creator)
	default:
		v.Creator = domain.ZeroAddress
	}

	if meta != nil {
		id := meta.MarketID
		v.MarketID = &id
		v.Metadata = meta
		if v.Question == "" {
			v.Question = meta.Question
		}
		if meta.Category != "" {
			v.Category = meta.Category
		}
		v.ImageURL = meta.ImageURL
		if v.FeedID == "" {
			v.FeedID = meta.FeedID
		}
	}
	if v.Question == "" {
		v.Question = SyntheticQuestion(addr)
	}

	switch {
	case lm.Resolved:
		v.State = domain.MarketStateResolved
	case !lm.Deadline.IsZero() && !lm.Deadline.After(now):
		v.State = domain.MarketStateLocked
	default:
		v.State = domain.MarketStateActive
	}

	v.TotalLiquidity = lm.TotalYes + lm.TotalNo
	v.CurrentPrice = currentPrice(lm.TotalYes, lm.TotalNo)
	v.TrendingScore = trendingScore(lm.TotalYes, lm.TotalNo, v.State)
	return v
}

func matchMetadata(lm domain.LedgerMarket, candidates []domain.Market) *domain.Market {
	sorted := make([]domain.Market, len(candidates))
	copy(sorted, candidates)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MarketID < sorted[j].MarketID })

	for i := range sorted {
		if sorted[i].Address != "" && strings.EqualFold(sorted[i].Address, lm.Address) {
			m := sorted[i]
			return &m
		}
	}
	if lm.FeedID == "" {
		return nil
	}
	for i := range sorted {
		// A row already linked to another contract is not a candidate.
		if sorted[i].Address != "" {
			continue
		}
		if domain.FeedRefMatches(sorted[i].FeedID, lm.FeedID) {
			m := sorted[i]
			return &m
		}
	}
	return nil
}

// SyntheticQuestion is the display question of a market with no known text.
func SyntheticQuestion(address string) string {
	if len(address) < 14 {
		return "Market " + address
	}
	return fmt.Sprintf("Market %s...%s", address[:8], address[len(address)-6:])
}

func currentPrice(yes, no float64) float64 {
	total := yes + no
	if total <= 0 {
		return 0.5
	}
	return math.Round(yes/total*10000) / 10000
}

// trendingScore favours liquid, active and balanced markets.
func trendingScore(yes, no float64, state domain.MarketState) float64 {
	total := yes + no
	score := total
	if state == domain.MarketStateActive {
		score *= activeTrendingBoost
	}
	if total > 0 {
		balance := math.Min(yes, no) / math.Max(yes, no)
		score *= 1 + balance*balanceBoostWeight
	}
	return score
}

// Directory serves the merged ledger and metadata view of all markets.
type Directory struct {
	ledger    DirectoryLedger
	markets   domain.MarketStore
	cache     domain.DirectoryCache
	metrics   DirectoryRecorder
	scanRange ledger.BlockRange
	now       func() time.Time
	logger    *slog.Logger
}

// NewDirectory creates a Directory. ledger may be nil, in which case only
// metadata is served. cache and metrics are optional.
func NewDirectory(
	l DirectoryLedger,
	markets domain.MarketStore,
	cache domain.DirectoryCache,
	metrics DirectoryRecorder,
	scanRange ledger.BlockRange,
	logger *slog.Logger,
) *Directory {
	return &Directory{
		ledger:    l,
		markets:   markets,
		cache:     cache,
		metrics:   metrics,
		scanRange: scanRange,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(slog.String("component", "directory")),
	}
}

// List returns the merged directory, served from cache when fresh. When the
// ledger is unreachable it degrades to a metadata-only view.
func (d *Directory) List(ctx context.Context) ([]domain.MarketView, error) {
	if d.cache != nil {
		views, err := d.cache.GetViews(ctx)
		if err == nil {
			return views, nil
		}
		if !errors.Is(err, domain.ErrNotFound) {
			d.logger.WarnContext(ctx, "directory: cache read failed", slog.String("error", err.Error()))
		}
	}

	metadata, err := d.markets.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("directory: list metadata: %w", err)
	}

	views, err := d.build(ctx, metadata)
	if err != nil {
		d.logger.WarnContext(ctx, "directory: ledger unavailable, serving metadata only",
			slog.String("error", err.Error()),
		)
		return d.metadataOnly(metadata), nil
	}

	d.record(views)
	if d.cache != nil {
		if err := d.cache.SetViews(ctx, views); err != nil {
			d.logger.WarnContext(ctx, "directory: cache write failed", slog.String("error", err.Error()))
		}
	}
	return views, nil
}

// LedgerMarkets reads every market from the ledger together with the
// creation-event creator map. Markets that cannot be read are skipped.
func (d *Directory) LedgerMarkets(ctx context.Context) ([]domain.LedgerMarket, map[string]string, error) {
	if d.ledger == nil {
		return nil, nil, fmt.Errorf("directory: %w: ledger not configured", domain.ErrLedgerError)
	}
	addrs, err := d.ledger.GetMarketAddresses(ctx)
	if err != nil {
		return nil, nil, err
	}

	out := make([]domain.LedgerMarket, len(addrs))
	ok := make([]bool, len(addrs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(directoryReadLimit)
	for i, addr := range addrs {
		g.Go(func() error {
			lm, err := d.ledger.ReadMarket(gctx, addr)
			if err != nil {
				d.logger.WarnContext(gctx, "directory: skip unreadable market",
					slog.String("market", addr),
					slog.String("error", err.Error()),
				)
				return nil
			}
			out[i], ok[i] = lm, true
			return nil
		})
	}
	_ = g.Wait()

	markets := make([]domain.LedgerMarket, 0, len(addrs))
	for i := range out {
		if ok[i] {
			markets = append(markets, out[i])
		}
	}

	scan := d.ledger.ScanCreators(ctx, d.scanRange)
	if d.metrics != nil {
		d.metrics.AddSkippedLogs("MarketCreated", scan.Skipped)
	}
	return markets, scan.ByMarket, nil
}

func (d *Directory) build(ctx context.Context, metadata []domain.Market) ([]domain.MarketView, error) {
	markets, creators, err := d.LedgerMarkets(ctx)
	if err != nil {
		return nil, err
	}
	now := d.now()
	views := make([]domain.MarketView, 0, len(markets))
	for _, lm := range markets {
		views = append(views, Merge(lm, metadata, creators, now))
	}
	return views, nil
}

func (d *Directory) metadataOnly(metadata []domain.Market) []domain.MarketView {
	now := d.now()
	views := make([]domain.MarketView, 0, len(metadata))
	for i := range metadata {
		m := metadata[i]
		id := m.MarketID
		category := m.Category
		if category == "" {
			category = defaultCategory
		}
		creator := m.Creator
		if creator == "" {
			creator = domain.ZeroAddress
		}
		v := domain.MarketView{
			Address:        m.Address,
			MarketID:       &id,
			Question:       m.Question,
			Category:       category,
			ImageURL:       m.ImageURL,
			Creator:        creator,
			FeedID:         m.FeedID,
			Deadline:       m.EndTime,
			Outcome:        m.Outcome,
			TotalLiquidity: m.TotalLiquidity,
			CurrentPrice:   0.5,
			Metadata:       &m,
		}
		switch {
		case m.Status == domain.MarketStatusResolved:
			v.State = domain.MarketStateResolved
		case !m.EndTime.IsZero() && !m.EndTime.After(now):
			v.State = domain.MarketStateLocked
		default:
			v.State = domain.MarketStateActive
		}
		views = append(views, v)
	}
	return views
}

func (d *Directory) record(views []domain.MarketView) {
	if d.metrics == nil {
		return
	}
	byState := map[string]int{
		string(domain.MarketStateActive):   0,
		string(domain.MarketStateLocked):   0,
		string(domain.MarketStateResolved): 0,
	}
	for _, v := range views {
		byState[string(v.State)]++
	}
	d.metrics.SetDirectorySize(byState)
}

// ReconcileReport summarises one reconciler pass.
type ReconcileReport struct {
	Scanned int
	Linked  int
	Created int
	Skipped int
}

// Reconciler backfills metadata rows for ledger markets that have none. It
// is an explicit job and never runs on the read path.
type Reconciler struct {
	dir      *Directory
	markets  domain.MarketStore
	cache    domain.DirectoryCache
	duration time.Duration
	delay    time.Duration
	mu       sync.Mutex
	logger   *slog.Logger
}

// NewReconciler creates a Reconciler over the directory's ledger reads.
func NewReconciler(dir *Directory, markets domain.MarketStore, cache domain.DirectoryCache, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		dir:      dir,
		markets:  markets,
		cache:    cache,
		duration: 7 * 24 * time.Hour,
		delay:    24 * time.Hour,
		logger:   logger.With(slog.String("component", "reconciler")),
	}
}

// Run performs one reconciliation pass. Concurrent calls are serialized.
func (r *Reconciler) Run(ctx context.Context) (ReconcileReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report ReconcileReport
	ledgerMarkets, creators, err := r.dir.LedgerMarkets(ctx)
	if err != nil {
		return report, fmt.Errorf("reconciler: read ledger: %w", err)
	}
	metadata, err := r.markets.ListAll(ctx)
	if err != nil {
		return report, fmt.Errorf("reconciler: list metadata: %w", err)
	}

	now := r.dir.now()
	for _, lm := range ledgerMarkets {
		report.Scanned++
		if err := ctx.Err(); err != nil {
			return report, err
		}

		meta := matchMetadata(lm, metadata)
		if meta != nil && meta.Address != "" {
			continue
		}

		if meta != nil {
			err := r.markets.LinkAddress(ctx, meta.MarketID, lm.Address)
			switch {
			case err == nil:
				report.Linked++
				r.logger.InfoContext(ctx, "reconciler: linked market",
					slog.Int64("market_id", meta.MarketID),
					slog.String("address", lm.Address),
				)
				metadata = markLinked(metadata, meta.MarketID, lm.Address)
			case errors.Is(err, domain.ErrAlreadyExists):
				report.Skipped++
			default:
				return report, fmt.Errorf("reconciler: link market %d: %w", meta.MarketID, err)
			}
			continue
		}

		creator := lm.Creator
		if creator == "" || creator == domain.ZeroAddress {
			creator = creators[strings.ToLower(lm.Address)]
		}
		question := strings.TrimSpace(lm.Question)
		if question == "" || creator == "" || creator == domain.ZeroAddress {
			report.Skipped++
			continue
		}

		created, err := r.create(ctx, lm, question, creator, now)
		if err != nil {
			if errors.Is(err, domain.ErrAlreadyExists) {
				report.Skipped++
				continue
			}
			return report, err
		}
		report.Created++
		metadata = append(metadata, created)
	}

	if (report.Created > 0 || report.Linked > 0) && r.cache != nil {
		if err := r.cache.Invalidate(ctx); err != nil {
			r.logger.WarnContext(ctx, "reconciler: cache invalidate failed", slog.String("error", err.Error()))
		}
	}

	r.logger.InfoContext(ctx, "reconciler: pass complete",
		slog.Int("scanned", report.Scanned),
		slog.Int("created", report.Created),
		slog.Int("linked", report.Linked),
		slog.Int("skipped", report.Skipped),
	)
	return report, nil
}

func (r *Reconciler) create(ctx context.Context, lm domain.LedgerMarket, question, creator string, now time.Time) (domain.Market, error) {
	id, err := r.markets.NextMarketID(ctx)
	if err != nil {
		return domain.Market{}, fmt.Errorf("reconciler: next market id: %w", err)
	}

	end := lm.Deadline
	if end.IsZero() {
		end = now.Add(r.duration)
	}
	m := domain.Market{
		MarketID:             id,
		Address:              strings.ToLower(lm.Address),
		Question:             question,
		Category:             defaultCategory,
		Creator:              strings.ToLower(creator),
		EndTime:              end,
		ResolutionTime:       end.Add(r.delay),
		Status:               domain.MarketStatusActive,
		Mechanism:            domain.MechanismFastPrice,
		OracleName:           domain.MechanismFastPrice.DisplayName(),
		OracleResolutionTime: domain.MechanismFastPrice.ResolutionWindow(),
		FeedID:               lm.FeedID,
		TotalLiquidity:       lm.TotalYes + lm.TotalNo,
	}
	if lm.Resolved && lm.Outcome.Terminal() {
		m.Status = domain.MarketStatusResolved
		m.Outcome = lm.Outcome
	}
	created, err := r.markets.Create(ctx, m)
	if err != nil {
		return domain.Market{}, fmt.Errorf("reconciler: create market for %s: %w", lm.Address, err)
	}
	r.logger.InfoContext(ctx, "reconciler: created market",
		slog.Int64("market_id", created.MarketID),
		slog.String("address", created.Address),
	)
	return created, nil
}

func markLinked(metadata []domain.Market, marketID int64, address string) []domain.Market {
	for i := range metadata {
		if metadata[i].MarketID == marketID {
			metadata[i].Address = strings.ToLower(address)
		}
	}
	return metadata
}
