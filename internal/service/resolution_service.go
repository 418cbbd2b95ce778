package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/prophezy/oracle-resolver/internal/domain"
	"github.com/prophezy/oracle-resolver/internal/ledger"
	"github.com/prophezy/oracle-resolver/internal/platform/resolver"
)

const (
	defaultOnChainConfidence = 0.99
	defaultDisputeConfidence = 0.9
	defaultLockTTL           = 3 * time.Minute

	resolvedByLedger   = "ledger"
	resolvedByResolver = "resolver"

	lockRetryInterval = 50 * time.Millisecond
)

// PriceSource fetches the current value of a feed.
type PriceSource interface {
	FetchValue(ctx context.Context, feed string) (float64, error)
}

// LedgerResolver submits the fast on-chain resolution of a market.
type LedgerResolver interface {
	SubmitFastResolution(ctx context.Context, marketAddress string, marketID int64, feed string) (ledger.FastResolution, error)
}

// OffChainResolver asks the external resolver service for an outcome.
type OffChainResolver interface {
	Resolve(ctx context.Context, req resolver.Request) (resolver.Response, error)
}

// EventEmitter publishes resolution events to subscribers.
type EventEmitter interface {
	Emit(ctx context.Context, ev domain.ResolutionEvent) error
}

// EventNotifier forwards resolution events to operators.
type EventNotifier interface {
	Notify(ctx context.Context, ev domain.ResolutionEvent) error
}

// Recorder receives resolution metrics.
type Recorder interface {
	ObserveResolution(onChain bool, outcome string)
	ObserveResolveDuration(result string, d time.Duration)
	IncFallback(reason string)
	IncChallenge()
}

type noopRecorder struct{}

func (noopRecorder) ObserveResolution(bool, string) {}
func (noopRecorder) ObserveResolveDuration(string, time.Duration) {}
func (noopRecorder) IncFallback(string) {}
func (noopRecorder) IncChallenge() {}

// ResolutionConfig tunes the orchestrator.
type ResolutionConfig struct {
	// OnChainConfidence is recorded for confirmed on-chain settlements.
	OnChainConfidence float64
	// DisputeConfidence applies when the resolver returns no confidence for
	// a delayed-dispute market.
	DisputeConfidence float64
	UseLock           bool
	LockTTL           time.Duration
}

// ResolveRequest is a command to resolve one market.
type ResolveRequest struct {
	MarketID        int64
	Mechanism       string
	FeedRef         string
	Threshold       string
	OnChain         bool
	ResolverAddress string
}

// ChallengeRequest disputes a resolved market.
type ChallengeRequest struct {
	MarketID          int64
	Reason            string
	ChallengerAddress string
}

// ResolutionService drives markets from active to resolved using exactly one
// authoritative mechanism. The conditional commit in the ResolutionStore is
// the only serialization point; everything after it is best effort.
type ResolutionService struct {
	markets     domain.MarketStore
	resolutions domain.ResolutionStore
	challenges  domain.ChallengeStore
	prices      PriceSource
	offChain    OffChainResolver
	ledger      LedgerResolver
	locks       domain.LockManager
	events      EventEmitter
	notifier    EventNotifier
	audit       domain.AuditStore
	directory   domain.DirectoryCache
	metrics     Recorder
	cfg         ResolutionConfig
	now         func() time.Time
	logger      *slog.Logger
}

// NewResolutionService creates a ResolutionService with its required
// collaborators. Optional ones are attached with the With* methods.
func NewResolutionService(
	markets domain.MarketStore,
	resolutions domain.ResolutionStore,
	challenges domain.ChallengeStore,
	prices PriceSource,
	offChain OffChainResolver,
	cfg ResolutionConfig,
	logger *slog.Logger,
) *ResolutionService {
	if cfg.OnChainConfidence <= 0 || cfg.OnChainConfidence > 1 {
		cfg.OnChainConfidence = defaultOnChainConfidence
	}
	if cfg.DisputeConfidence <= 0 || cfg.DisputeConfidence > 1 {
		cfg.DisputeConfidence = defaultDisputeConfidence
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	return &ResolutionService{
		markets:     markets,
		resolutions: resolutions,
		challenges:  challenges,
		prices:      prices,
		offChain:    offChain,
		metrics:     noopRecorder{},
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		logger:      logger.With(slog.String("component", "resolution")),
	}
}

// WithLedger enables the on-chain fast path.
func (s *ResolutionService) WithLedger(l LedgerResolver) *ResolutionService {
	s.ledger = l
	return s
}

// WithLocks enables the per-market in-flight lock when cfg.UseLock is set.
func (s *ResolutionService) WithLocks(l domain.LockManager) *ResolutionService {
	s.locks = l
	return s
}

// WithEvents publishes events after each commit.
func (s *ResolutionService) WithEvents(e EventEmitter) *ResolutionService {
	s.events = e
	return s
}

// WithNotifier sends operator notifications after each commit.
func (s *ResolutionService) WithNotifier(n EventNotifier) *ResolutionService {
	s.notifier = n
	return s
}

// WithAudit records resolutions and challenges in the audit log.
func (s *ResolutionService) WithAudit(a domain.AuditStore) *ResolutionService {
	s.audit = a
	return s
}

// WithDirectoryCache invalidates the merged directory after each commit.
func (s *ResolutionService) WithDirectoryCache(c domain.DirectoryCache) *ResolutionService {
	s.directory = c
	return s
}

// WithMetrics records resolution metrics.
func (s *ResolutionService) WithMetrics(r Recorder) *ResolutionService {
	if r != nil {
		s.metrics = r
	}
	return s
}

// WithClock overrides the time source.
func (s *ResolutionService) WithClock(now func() time.Time) *ResolutionService {
	s.now = now
	return s
}

// Resolve settles one market. On-chain failures fall back to the off-chain
// resolver and are only visible through the OnChain flag of the result.
func (s *ResolutionService) Resolve(ctx context.Context, req ResolveRequest) (domain.ResolutionResult, error) {
	start := time.Now()
	res, err := s.resolve(ctx, req)

	result := "ok"
	if err != nil {
		result = domain.KindOf(err)
	}
	s.metrics.ObserveResolveDuration(result, time.Since(start))
	return res, err
}

func (s *ResolutionService) resolve(ctx context.Context, req ResolveRequest) (domain.ResolutionResult, error) {
	mech, err := domain.ParseMechanism(req.Mechanism)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	threshold, hasThreshold, err := parseThreshold(req.Threshold)
	if err != nil {
		return domain.ResolutionResult{}, err
	}
	if mech == domain.MechanismFastPrice && !hasThreshold {
		return domain.ResolutionResult{}, fmt.Errorf("%w: threshold is required for fast-price", domain.ErrInvalidInput)
	}

	if s.cfg.UseLock && s.locks != nil {
		unlock, err := s.waitForLock(ctx, req.MarketID)
		if err != nil {
			return domain.ResolutionResult{}, err
		}
		defer unlock()
	}

	market, err := s.markets.GetByMarketID(ctx, req.MarketID)
	if err != nil {
		return domain.ResolutionResult{}, fmt.Errorf("resolution: load market %d: %w", req.MarketID, err)
	}
	switch {
	case market.Status == domain.MarketStatusResolved:
		return domain.ResolutionResult{}, fmt.Errorf("resolution: market %d: %w", market.MarketID, domain.ErrAlreadyResolved)
	case !market.Active():
		return domain.ResolutionResult{}, fmt.Errorf("%w: market %d is %s", domain.ErrInvalidState, market.MarketID, market.Status)
	}

	feed := strings.TrimSpace(req.FeedRef)
	if feed == "" {
		feed = market.FeedID
	}

	var rec domain.ResolutionRecord
	onChain := false
	if mech == domain.MechanismFastPrice && req.OnChain {
		rec, onChain = s.tryOnChain(ctx, market, feed, threshold)
	}
	if !onChain {
		rec, err = s.offChainResolve(ctx, market, mech, feed, threshold, hasThreshold)
		if err != nil {
			return domain.ResolutionResult{}, err
		}
	}

	rec.MarketID = market.MarketID
	rec.Mechanism = mech
	rec.ResolvedBy = resolvedByTag(rec.ResolvedBy, req.ResolverAddress)
	rec.ResolvedAt = s.now()

	committed, err := s.resolutions.Commit(ctx, rec)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyResolved) {
			s.logger.InfoContext(ctx, "resolution: lost race, market already resolved",
				slog.Int64("market_id", market.MarketID),
			)
		}
		return domain.ResolutionResult{}, fmt.Errorf("resolution: commit market %d: %w", market.MarketID, err)
	}

	s.metrics.ObserveResolution(onChain, committed.Outcome.String())
	s.logger.InfoContext(ctx, "resolution: market resolved",
		slog.Int64("market_id", committed.MarketID),
		slog.String("outcome", committed.Outcome.String()),
		slog.String("mechanism", string(mech)),
		slog.Bool("on_chain", onChain),
		slog.String("tx", committed.TxHash),
	)

	s.afterCommit(ctx, committed, onChain, req.ResolverAddress)

	return domain.ResolutionResult{
		MarketID:   committed.MarketID,
		Outcome:    committed.Outcome,
		Value:      committed.Value,
		Threshold:  committed.Threshold,
		Mechanism:  mech,
		Confidence: committed.Confidence,
		Timestamp:  committed.ResolvedAt,
		TxHash:     committed.TxHash,
		OnChain:    onChain,
	}, nil
}

// tryOnChain runs the fast path. The fetched value is advisory: the ledger
// verifies its own feed, and the local value only derives the recorded
// outcome. Any failure returns ok=false so the caller falls back.
func (s *ResolutionService) tryOnChain(ctx context.Context, market domain.Market, feed string, threshold float64) (domain.ResolutionRecord, bool) {
	fallback := func(reason string, err error, txHash string) (domain.ResolutionRecord, bool) {
		attrs := []any{
			slog.Int64("market_id", market.MarketID),
			slog.String("reason", reason),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		if txHash != "" {
			attrs = append(attrs, slog.String("tx", txHash))
		}
		s.logger.WarnContext(ctx, "resolution: fallback to off-chain", attrs...)
		s.metrics.IncFallback(reason)

		detail := reason
		if err != nil {
			detail = reason + ": " + err.Error()
		}
		s.emit(ctx, domain.ResolutionEvent{
			Type:     domain.EventResolutionFallback,
			MarketID: market.MarketID,
			TxHash:   txHash,
			Detail:   detail,
			At:       s.now(),
		})
		return domain.ResolutionRecord{}, false
	}

	switch {
	case s.ledger == nil:
		return fallback("ledger_not_configured", nil, "")
	case market.Address == "":
		return fallback("no_market_address", nil, "")
	case feed == "":
		return fallback("no_feed", nil, "")
	}

	value, err := s.prices.FetchValue(ctx, feed)
	if err != nil {
		return fallback("price_unavailable", err, "")
	}

	fast, err := s.ledger.SubmitFastResolution(ctx, market.Address, market.MarketID, feed)
	if err != nil {
		txHash := fast.TxHash
		var txErr *ledger.TxError
		if errors.As(err, &txErr) {
			txHash = txErr.TxHash
		}
		return fallback("ledger_error", err, txHash)
	}

	return domain.ResolutionRecord{
		Outcome:    domain.OutcomeForThreshold(value, threshold),
		Confidence: s.cfg.OnChainConfidence,
		ResolvedBy: resolvedByLedger,
		Value:      value,
		Threshold:  threshold,
		TxHash:     fast.TxHash,
	}, true
}

// waitForLock takes the per-market lock, waiting out another holder for at
// most the lock TTL. The market is read after the lock is taken, so a waiter
// sees the holder's commit and answers AlreadyResolved, or resolves itself
// if the holder gave up. When the lock cannot be had the store CAS still
// guards the transition and resolution continues without it.
func (s *ResolutionService) waitForLock(ctx context.Context, marketID int64) (func(), error) {
	key := domain.ResolveLockKey(marketID)
	deadline := time.NewTimer(s.cfg.LockTTL)
	defer deadline.Stop()

	for {
		unlock, err := s.locks.Acquire(ctx, key, s.cfg.LockTTL)
		switch {
		case err == nil:
			return unlock, nil
		case !errors.Is(err, domain.ErrLockHeld):
			s.logger.WarnContext(ctx, "resolution: lock unavailable, continuing",
				slog.Int64("market_id", marketID),
				slog.String("error", err.Error()),
			)
			return func() {}, nil
		}

		retry := time.NewTimer(lockRetryInterval)
		select {
		case <-ctx.Done():
			retry.Stop()
			return nil, fmt.Errorf("resolution: wait for lock on market %d: %w", marketID, ctx.Err())
		case <-deadline.C:
			retry.Stop()
			s.logger.WarnContext(ctx, "resolution: lock still held after ttl, continuing",
				slog.Int64("market_id", marketID),
			)
			return func() {}, nil
		case <-retry.C:
		}
	}
}

// resolvedByTag records the mechanism source and, when the caller named a
// valid resolver address, that address: "resolver:0xabc...".
func resolvedByTag(source, resolverAddr string) string {
	addr := strings.ToLower(strings.TrimSpace(resolverAddr))
	if !IsAddress(addr) {
		return source
	}
	return source + ":" + addr
}

// offChainResolve delegates to the resolver service and accepts its answer
// verbatim, as long as the outcome is terminal.
func (s *ResolutionService) offChainResolve(
	ctx context.Context,
	market domain.Market,
	mech domain.Mechanism,
	feed string,
	threshold float64,
	hasThreshold bool,
) (domain.ResolutionRecord, error) {
	req := resolver.Request{
		MarketID:   market.MarketID,
		Question:   market.Question,
		Category:   market.Category,
		OracleType: string(mech),
		DataFeedID: feed,
	}
	if hasThreshold {
		req.Threshold = &threshold
	}
	if !market.EndTime.IsZero() {
		req.EndTime = market.EndTime.UTC().Format(time.RFC3339)
	}

	resp, err := s.offChain.Resolve(ctx, req)
	if err != nil {
		return domain.ResolutionRecord{}, fmt.Errorf("%w: market %d: %w", domain.ErrResolutionFailed, market.MarketID, err)
	}

	outcome := domain.Outcome(resp.Outcome)
	if !outcome.Terminal() {
		return domain.ResolutionRecord{}, fmt.Errorf("%w: market %d: resolver returned outcome %d", domain.ErrResolutionFailed, market.MarketID, resp.Outcome)
	}
	confidence := resp.Confidence
	if confidence == 0 && mech == domain.MechanismDelayedDispute {
		confidence = s.cfg.DisputeConfidence
	}
	if confidence < 0 || confidence > 1 || math.IsNaN(confidence) {
		return domain.ResolutionRecord{}, fmt.Errorf("%w: market %d: confidence %v out of range", domain.ErrResolutionFailed, market.MarketID, resp.Confidence)
	}

	recThreshold := resp.Threshold
	if recThreshold == 0 && hasThreshold {
		recThreshold = threshold
	}
	return domain.ResolutionRecord{
		Outcome:    outcome,
		Confidence: confidence,
		ResolvedBy: resolvedByResolver,
		Value:      resp.Value,
		Threshold:  recThreshold,
	}, nil
}

// afterCommit fans out the committed record. None of these steps can undo
// the commit, so failures are only logged.
func (s *ResolutionService) afterCommit(ctx context.Context, rec domain.ResolutionRecord, onChain bool, resolverAddr string) {
	ev := domain.ResolutionEvent{
		Type:       domain.EventMarketResolved,
		MarketID:   rec.MarketID,
		Outcome:    rec.Outcome,
		Mechanism:  rec.Mechanism,
		Confidence: rec.Confidence,
		TxHash:     rec.TxHash,
		OnChain:    onChain,
		At:         rec.ResolvedAt,
	}
	s.emit(ctx, ev)

	if s.directory != nil {
		if err := s.directory.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "resolution: directory invalidate failed", slog.String("error", err.Error()))
		}
	}

	if s.audit != nil {
		detail := map[string]any{
			"market_id":   rec.MarketID,
			"outcome":     int(rec.Outcome),
			"mechanism":   string(rec.Mechanism),
			"confidence":  rec.Confidence,
			"resolved_by": rec.ResolvedBy,
			"on_chain":    onChain,
		}
		if rec.TxHash != "" {
			detail["tx_hash"] = rec.TxHash
		}
		if resolverAddr != "" {
			detail["resolver_address"] = strings.ToLower(resolverAddr)
		}
		if err := s.audit.Log(ctx, "resolution.committed", detail); err != nil {
			s.logger.WarnContext(ctx, "resolution: audit log failed", slog.String("error", err.Error()))
		}
	}
}

func (s *ResolutionService) emit(ctx context.Context, ev domain.ResolutionEvent) {
	if s.events != nil {
		if err := s.events.Emit(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "resolution: publish event failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "resolution: notify failed",
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Challenge records a dispute against a resolved market. It never changes
// the resolution itself.
func (s *ResolutionService) Challenge(ctx context.Context, req ChallengeRequest) (domain.Challenge, error) {
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		return domain.Challenge{}, fmt.Errorf("%w: challenge reason is required", domain.ErrInvalidInput)
	}
	challenger := strings.TrimSpace(req.ChallengerAddress)
	if !IsAddress(challenger) {
		return domain.Challenge{}, fmt.Errorf("%w: challenger address %q is not a valid address", domain.ErrInvalidInput, challenger)
	}

	market, err := s.markets.GetByMarketID(ctx, req.MarketID)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("resolution: load market %d: %w", req.MarketID, err)
	}
	if market.Status != domain.MarketStatusResolved {
		return domain.Challenge{}, fmt.Errorf("%w: only resolved markets can be challenged", domain.ErrInvalidState)
	}

	ch := domain.Challenge{
		ID:         uuid.NewString(),
		MarketID:   market.MarketID,
		Challenger: strings.ToLower(challenger),
		Reason:     reason,
		Status:     domain.ChallengeStatusPending,
		CreatedAt:  s.now(),
	}
	if err := s.challenges.Create(ctx, ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("resolution: record challenge: %w", err)
	}

	s.metrics.IncChallenge()
	s.logger.InfoContext(ctx, "resolution: challenge filed",
		slog.Int64("market_id", ch.MarketID),
		slog.String("challenger", ch.Challenger),
	)
	s.emit(ctx, domain.ResolutionEvent{
		Type:     domain.EventChallengeFiled,
		MarketID: ch.MarketID,
		Detail:   reason,
		At:       ch.CreatedAt,
	})
	if s.audit != nil {
		if err := s.audit.Log(ctx, "resolution.challenged", map[string]any{
			"market_id":    ch.MarketID,
			"challenge_id": ch.ID,
			"challenger":   ch.Challenger,
		}); err != nil {
			s.logger.WarnContext(ctx, "resolution: audit log failed", slog.String("error", err.Error()))
		}
	}
	return ch, nil
}

// parseThreshold parses an optional decimal threshold. ok is false for an
// empty string.
func parseThreshold(raw string) (value float64, ok bool, err error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false, fmt.Errorf("%w: threshold %q is not a finite number", domain.ErrInvalidInput, raw)
	}
	return v, true, nil
}
