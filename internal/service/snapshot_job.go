package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jpillora/backoff"
	"github.com/rs/zerolog"

	"github.com/ndewijer/portfolio-valuation/internal/accounting"
	"github.com/ndewijer/portfolio-valuation/internal/model"
	"github.com/ndewijer/portfolio-valuation/internal/quote"
)

// ErrSnapshotRunning is returned when a run is requested while another is in progress.
var ErrSnapshotRunning = errors.New("snapshot job already running")

// SnapshotJobConfig tunes the snapshot job. Zero values take the defaults
// noted on each field.
type SnapshotJobConfig struct {
	BatchSize       int           // 20
	BatchDelay      time.Duration // 1s
	MaxBatchDelay   time.Duration // 30s
	Deadline        time.Duration // 4m
	RecentWindow    time.Duration // 30 days
	FallbackLimit   int           // 50
	FreshnessWindow time.Duration // 15m
	MaxConcurrent   int           // DefaultMaxConcurrent
	MaxAge          time.Duration // 60s
	PersistAttempts int           // 3
}

func (c SnapshotJobConfig) withDefaults() SnapshotJobConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.MaxBatchDelay < c.BatchDelay {
		c.MaxBatchDelay = c.BatchDelay
	}
	if c.Deadline <= 0 {
		c.Deadline = 4 * time.Minute
	}
	if c.RecentWindow <= 0 {
		c.RecentWindow = 30 * 24 * time.Hour
	}
	if c.FallbackLimit <= 0 {
		c.FallbackLimit = 50
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = DefaultMaxConcurrent
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 60 * time.Second
	}
	if c.PersistAttempts <= 0 {
		c.PersistAttempts = 3
	}
	return c
}

// SnapshotJob periodically records the price of every instrument that is
// held or was recently traded.
type SnapshotJob struct {
	ledger    TradeLedger
	directory InstrumentDirectory
	snapshots SnapshotStore
	fetcher   *BatchFetcher
	cfg       SnapshotJobConfig
	now       quote.Clock
	log       zerolog.Logger

	running sync.Mutex
}

// NewSnapshotJob creates a new SnapshotJob.
func NewSnapshotJob(
	ledger TradeLedger,
	directory InstrumentDirectory,
	snapshots SnapshotStore,
	fetcher *BatchFetcher,
	cfg SnapshotJobConfig,
	now quote.Clock,
	log zerolog.Logger,
) *SnapshotJob {
	if now == nil {
		now = quote.SystemClock
	}
	return &SnapshotJob{
		ledger:    ledger,
		directory: directory,
		snapshots: snapshots,
		fetcher:   fetcher,
		cfg:       cfg.withDefaults(),
		now:       now,
		log:       log.With().Str("job", "price_snapshot").Logger(),
	}
}

// Config returns the effective configuration, defaults applied.
func (j *SnapshotJob) Config() SnapshotJobConfig {
	return j.cfg
}

// Name returns the job name for scheduling and logging.
func (j *SnapshotJob) Name() string {
	return "price_snapshot"
}

// Run performs one snapshot pass.
//
// The working set is split into batches. Before each batch the deadline is
// checked; once it has passed no further batch starts and the remainder is
// counted as skipped. Only successfully resolved prices are persisted.
//
// Per-instrument failures are reported in the metrics and never returned.
//
// Returns:
//   - model.SnapshotJobMetrics: complete report, also on partial failure
//   - error: ErrSnapshotRunning, or a setup failure when neither the ledger
//     nor the instrument directory can be read
func (j *SnapshotJob) Run(ctx context.Context) (model.SnapshotJobMetrics, error) {
	if !j.running.TryLock() {
		return model.SnapshotJobMetrics{}, ErrSnapshotRunning
	}
	defer j.running.Unlock()

	m := model.SnapshotJobMetrics{
		RunID:     uuid.New().String(),
		StartedAt: j.now(),
		Errors:    []model.InstrumentError{},
	}
	log := j.log.With().Str("run_id", m.RunID).Logger()
	deadline := m.StartedAt.Add(j.cfg.Deadline)

	insts, err := j.workingSet(ctx, &m, log)
	if err != nil {
		log.Error().Err(err).Msg("Snapshot job setup failed")
		return m, err
	}
	m.WorkingSet = len(insts)
	insts = j.dropFresh(ctx, insts, &m, log)

	delay := &backoff.Backoff{Min: j.cfg.BatchDelay, Max: j.cfg.MaxBatchDelay, Factor: 2}
	for start := 0; start < len(insts); start += j.cfg.BatchSize {
		if !j.now().Before(deadline) || ctx.Err() != nil {
			m.DeadlineHit = true
			m.Skipped += len(insts) - start
			log.Warn().
				Int("skipped", len(insts)-start).
				Msg("Snapshot deadline reached, skipping remaining instruments")
			break
		}

		if start > 0 {
			j.sleep(ctx, delay, deadline)
		}

		end := min(start+j.cfg.BatchSize, len(insts))
		failedBefore := m.Failed
		j.runBatch(ctx, insts[start:end], &m, log)
		if m.Failed == failedBefore {
			delay.Reset()
		}
	}

	m.FinishedAt = j.now()
	m.Duration = m.FinishedAt.Sub(m.StartedAt)
	m.Success = m.Failed == 0 && !m.DeadlineHit

	log.Info().
		Int("working_set", m.WorkingSet).
		Int("already_fresh", m.AlreadyFresh).
		Int("batches", m.Batches).
		Int("succeeded", m.Succeeded).
		Int("failed", m.Failed).
		Int("skipped", m.Skipped).
		Int("persisted", m.Persisted).
		Bool("used_fallback", m.UsedFallback).
		Bool("success", m.Success).
		Dur("duration", m.Duration).
		Msg("Snapshot job finished")

	return m, nil
}

// sleep waits the inter-batch delay. After a batch with failures the delay
// grows; it never runs past the deadline.
func (j *SnapshotJob) sleep(ctx context.Context, delay *backoff.Backoff, deadline time.Time) {
	if j.cfg.BatchDelay <= 0 {
		return
	}
	d := delay.Duration()
	if remaining := deadline.Sub(j.now()); d > remaining {
		d = remaining
	}
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

func (j *SnapshotJob) runBatch(ctx context.Context, batch []model.Instrument, m *model.SnapshotJobMetrics, log zerolog.Logger) {
	m.Batches++
	res := j.fetcher.FetchBatch(ctx, batch, BatchOptions{
		MaxConcurrent: j.cfg.MaxConcurrent,
		MaxAge:        j.cfg.MaxAge,
	})

	m.Processed += len(batch)
	m.CacheHits += res.Metrics.CacheHits
	m.ProviderCalls += res.Metrics.ProviderCalls
	for _, e := range res.Errors {
		if e.Skipped {
			m.Skipped++
			continue
		}
		m.Failed++
		m.Errors = append(m.Errors, e)
	}

	at := j.now()
	snaps := make([]model.PriceSnapshot, 0, len(res.Prices))
	for _, inst := range batch {
		p, ok := res.Prices[inst.ID]
		if !ok {
			continue
		}
		m.Succeeded++
		if p.Origin == model.OriginSnapshot {
			continue
		}
		snaps = append(snaps, model.PriceSnapshot{
			ID:           uuid.New().String(),
			InstrumentID: inst.ID,
			Price:        p.Quote.Price,
			Currency:     p.Quote.Currency,
			Source:       p.Quote.Source,
			SnapshotAt:   at,
			RunID:        m.RunID,
		})
	}
	if len(snaps) == 0 {
		return
	}

	if err := j.persist(ctx, snaps); err != nil {
		log.Error().Err(err).Int("snapshots", len(snaps)).Msg("Failed to persist snapshots")
		for _, s := range snaps {
			m.Succeeded--
			m.Failed++
			m.Errors = append(m.Errors, model.InstrumentError{
				InstrumentID: s.InstrumentID,
				Error:        err.Error(),
			})
		}
		return
	}
	m.Persisted += len(snaps)
}

// persist appends snapshots, retrying transient failures with backoff.
// The write is detached from ctx so a cancelled run still stores what it
// already resolved.
func (j *SnapshotJob) persist(ctx context.Context, snaps []model.PriceSnapshot) error {
	ctx = context.WithoutCancel(ctx)
	b := &backoff.Backoff{Min: 50 * time.Millisecond, Max: time.Second, Factor: 2, Jitter: true}

	var err error
	for attempt := 1; attempt <= j.cfg.PersistAttempts; attempt++ {
		if err = j.snapshots.AppendSnapshots(ctx, snaps); err == nil {
			return nil
		}
		if attempt < j.cfg.PersistAttempts {
			time.Sleep(b.Duration())
		}
	}
	return fmt.Errorf("after %d attempts: %w", j.cfg.PersistAttempts, err)
}

// workingSet returns the instruments to snapshot: those with an open
// position in any portfolio first, then those traded within RecentWindow.
// When the ledger cannot be read, the first FallbackLimit instruments of the
// directory are used instead.
func (j *SnapshotJob) workingSet(ctx context.Context, m *model.SnapshotJobMetrics, log zerolog.Logger) ([]model.Instrument, error) {
	open, openErr := j.openInstruments(ctx, log)
	recent, recentErr := j.ledger.GetInstrumentsTradedSince(ctx, j.now().Add(-j.cfg.RecentWindow))

	if ledgerErr := errors.Join(openErr, recentErr); ledgerErr != nil {
		log.Warn().Err(ledgerErr).Int("limit", j.cfg.FallbackLimit).Msg("Ledger unavailable, falling back to instrument directory")
		insts, err := j.directory.ListInstruments(ctx, j.cfg.FallbackLimit)
		if err != nil {
			return nil, fmt.Errorf("ledger and directory unavailable: %w", errors.Join(ledgerErr, err))
		}
		m.UsedFallback = true
		return insts, nil
	}

	m.OpenPositions = len(open)
	m.RecentTrades = len(recent)

	seen := make(map[string]bool, len(open)+len(recent))
	var ids []string
	for _, id := range append(open, recent...) {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	known, err := j.directory.GetInstruments(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load instruments: %w", err)
	}
	insts := make([]model.Instrument, 0, len(ids))
	for _, id := range ids {
		inst, ok := known[id]
		if !ok {
			log.Warn().Str("instrument", id).Msg("Traded instrument missing from directory")
			continue
		}
		insts = append(insts, inst)
	}
	return insts, nil
}

// openInstruments replays the ledger per portfolio and returns the IDs of
// instruments with an open position, sorted.
func (j *SnapshotJob) openInstruments(ctx context.Context, log zerolog.Logger) ([]string, error) {
	trades, err := j.ledger.GetAllTrades(ctx)
	if err != nil {
		return nil, err
	}

	byPortfolio := make(map[string][]model.Trade)
	for _, t := range trades {
		byPortfolio[t.PortfolioID] = append(byPortfolio[t.PortfolioID], t)
	}

	set := make(map[string]bool)
	for portfolioID, pt := range byPortfolio {
		positions, err := accounting.Replay(pt)
		if err != nil {
			log.Warn().Err(err).Str("portfolio", portfolioID).Msg("Skipping portfolio with inconsistent ledger")
			continue
		}
		for _, pos := range accounting.OpenPositions(positions) {
			for _, t := range pos.OpenTrades {
				set[t.InstrumentID] = true
			}
		}
	}

	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

// dropFresh removes instruments that already have a snapshot within the
// freshness window, so a rerun after partial failure only retries what is
// still missing.
func (j *SnapshotJob) dropFresh(ctx context.Context, insts []model.Instrument, m *model.SnapshotJobMetrics, log zerolog.Logger) []model.Instrument {
	if j.cfg.FreshnessWindow <= 0 || len(insts) == 0 {
		return insts
	}
	ids := make([]string, len(insts))
	for i, inst := range insts {
		ids[i] = inst.ID
	}
	latest, err := j.snapshots.GetLatestSnapshotTimes(ctx, ids)
	if err != nil {
		log.Warn().Err(err).Msg("Could not read latest snapshots, snapshotting everything")
		return insts
	}

	now := j.now()
	out := insts[:0:0]
	for _, inst := range insts {
		if at, ok := latest[inst.ID]; ok && now.Sub(at) < j.cfg.FreshnessWindow {
			m.AlreadyFresh++
			continue
		}
		out = append(out, inst)
	}
	return out
}
