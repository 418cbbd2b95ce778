package service_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/ledger"
	"github.com/prophezy/oracle-resolver/internal/platform/resolver"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// memStore is an in-memory MarketStore, ResolutionStore and ChallengeStore
// whose Commit has the same compare-and-set semantics as the SQL store.
type memStore struct {
	mu          sync.Mutex
	markets     map[int64]domain.Market
	records     []domain.ResolutionRecord
	challenges  []domain.Challenge
	commitDelay time.Duration
}

func newMemStore(markets ...domain.Market) *memStore {
	s := &memStore{markets: make(map[int64]domain.Market)}
	for _, m := range markets {
		s.markets[m.MarketID] = m
	}
	return s
}

func (s *memStore) market(id int64) domain.Market {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.markets[id]
}

func (s *memStore) authoritative() []domain.ResolutionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.ResolutionRecord(nil), s.records...)
}

func (s *memStore) Create(_ context.Context, m domain.Market) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.markets[m.MarketID]; ok {
		return domain.Market{}, domain.ErrAlreadyExists
	}
	m.ID = int64(len(s.markets) + 1)
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.markets[m.MarketID] = m
	return m, nil
}

func (s *memStore) GetByMarketID(_ context.Context, id int64) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("market %d: %w", id, domain.ErrNotFound)
	}
	return m, nil
}

func (s *memStore) GetByAddress(_ context.Context, addr string) (domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.markets {
		if m.Address != "" && strings.EqualFold(m.Address, addr) {
			return m, nil
		}
	}
	return domain.Market{}, domain.ErrNotFound
}

func (s *memStore) List(ctx context.Context, f domain.MarketFilter) ([]domain.Market, error) {
	all, _ := s.ListAll(ctx)
	var out []domain.Market
	for _, m := range all {
		if f.Category == "" || m.Category == f.Category {
			out = append(out, m)
		}
	}
	return out, nil
}

func (s *memStore) ListAll(context.Context) ([]domain.Market, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Market, 0, len(s.markets))
	for _, m := range s.markets {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

func (s *memStore) LinkAddress(_ context.Context, id int64, addr string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[id]
	if !ok {
		return domain.ErrNotFound
	}
	if m.Address != "" {
		return domain.ErrAlreadyExists
	}
	m.Address = strings.ToLower(addr)
	s.markets[id] = m
	return nil
}

func (s *memStore) NextMarketID(context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for id := range s.markets {
		if id > max {
			max = id
		}
	}
	return max + 1, nil
}

func (s *memStore) Commit(_ context.Context, rec domain.ResolutionRecord) (domain.ResolutionRecord, error) {
	if s.commitDelay > 0 {
		time.Sleep(s.commitDelay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.markets[rec.MarketID]
	if !ok {
		return domain.ResolutionRecord{}, domain.ErrNotFound
	}
	if m.Status != domain.MarketStatusActive {
		return domain.ResolutionRecord{}, domain.ErrAlreadyResolved
	}
	m.Status = domain.MarketStatusResolved
	m.Outcome = rec.Outcome
	s.markets[rec.MarketID] = m

	rec.ID = int64(len(s.records) + 1)
	rec.Authoritative = true
	s.records = append(s.records, rec)
	return rec, nil
}

func (s *memStore) GetAuthoritative(_ context.Context, id int64) (domain.ResolutionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.MarketID == id {
			return r, nil
		}
	}
	return domain.ResolutionRecord{}, domain.ErrNotFound
}

func (s *memStore) ListRecent(context.Context, int) ([]domain.RecentResolution, error) {
	return nil, nil
}

func (s *memStore) Metrics(context.Context, *time.Time) (domain.ResolutionMetrics, error) {
	return domain.ResolutionMetrics{}, nil
}

func (s *memStore) HourlySeries(context.Context, time.Time) ([]domain.ResolutionPoint, error) {
	return nil, nil
}

func (s *memStore) ListBefore(context.Context, time.Time) ([]domain.ResolutionRecord, error) {
	return nil, nil
}

// memChallenges adapts memStore to domain.ChallengeStore; the method sets
// of the two store interfaces collide on Create and ListBefore.
type memChallenges struct{ s *memStore }

func (c memChallenges) Create(_ context.Context, ch domain.Challenge) error {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	c.s.challenges = append(c.s.challenges, ch)
	return nil
}

func (c memChallenges) ListByMarket(_ context.Context, id int64) ([]domain.Challenge, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	var out []domain.Challenge
	for _, ch := range c.s.challenges {
		if ch.MarketID == id {
			out = append(out, ch)
		}
	}
	return out, nil
}

func (c memChallenges) ListBefore(context.Context, time.Time) ([]domain.Challenge, error) {
	return nil, nil
}

type fakePrices struct {
	values map[string]float64
	err    error
}

func (p *fakePrices) FetchValue(_ context.Context, feed string) (float64, error) {
	if p.err != nil {
		return 0, p.err
	}
	v, ok := p.values[feed]
	if !ok {
		return 0, domain.ErrFeedNotFound
	}
	return v, nil
}

type fakeLedger struct {
	mu    sync.Mutex
	calls int
	err   error
	hash  string
}

func (l *fakeLedger) SubmitFastResolution(context.Context, string, int64, string) (ledger.FastResolution, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	if l.err != nil {
		return ledger.FastResolution{}, l.err
	}
	return ledger.FastResolution{TxHash: l.hash}, nil
}

// priceResolver answers like the resolver service: it compares the feed
// value with the threshold.
type priceResolver struct {
	mu         sync.Mutex
	prices     *fakePrices
	confidence float64
	outcome    int
	err        error
	calls      int
}

func (r *priceResolver) Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return resolver.Response{}, r.err
	}
	if r.outcome != 0 {
		return resolver.Response{MarketID: req.MarketID, Outcome: r.outcome, Confidence: r.confidence}, nil
	}
	v, err := r.prices.FetchValue(ctx, req.DataFeedID)
	if err != nil {
		return resolver.Response{}, fmt.Errorf("resolver: %w: %v", domain.ErrProviderError, err)
	}
	return resolver.Response{
		MarketID:   req.MarketID,
		Outcome:    int(domain.OutcomeForThreshold(v, *req.Threshold)),
		Value:      v,
		Threshold:  *req.Threshold,
		Confidence: r.confidence,
	}, nil
}

type recordingEmitter struct {
	mu     sync.Mutex
	events []domain.ResolutionEvent
}

func (e *recordingEmitter) Emit(_ context.Context, ev domain.ResolutionEvent) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
	return nil
}

func (e *recordingEmitter) types() []domain.EventType {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.EventType, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

type failingEmitter struct{}

func (failingEmitter) Emit(context.Context, domain.ResolutionEvent) error {
	return errors.New("redis down")
}

// memLocks is an in-process LockManager; keys never expire on their own.
type memLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	attempts int
}

func newMemLocks() *memLocks { return &memLocks{held: map[string]bool{}} }

func (l *memLocks) Acquire(_ context.Context, key string, _ time.Duration) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.attempts++
	if l.held[key] {
		return nil, domain.ErrLockHeld
	}
	l.held[key] = true
	var once sync.Once
	return func() { once.Do(func() { l.release(key) }) }, nil
}

func (l *memLocks) hold(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.held[key] = true
}

func (l *memLocks) release(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
}
