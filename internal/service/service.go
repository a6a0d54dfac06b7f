package service

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/guotingchao/DeltaTransactionSystem/internal/alerting"
	"github.com/guotingchao/DeltaTransactionSystem/internal/analyzer"
	"github.com/guotingchao/DeltaTransactionSystem/internal/config"
	"github.com/guotingchao/DeltaTransactionSystem/internal/fetcher"
	"github.com/guotingchao/DeltaTransactionSystem/internal/reconcile"
	"github.com/guotingchao/DeltaTransactionSystem/internal/report"
	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

// MarketStore combines the store capabilities one tick needs.
type MarketStore interface {
	reconcile.StateReader
	reconcile.PlanWriter
	ListPointsBetween(ctx context.Context, from, to time.Time) ([]storage.PricePoint, error)
}

// Service orchestrates fetching, reconciliation, analysis, and alerting.
type Service struct {
	fetcher  fetcher.SnapshotFetcher
	store    MarketStore
	prune    storage.PruneStore
	composer *report.Composer
	notifier alerting.Notifier
	logger   zerolog.Logger

	window       time.Duration
	topSize      int
	applyOpts    reconcile.ApplyOptions
	messageDelay time.Duration
	locker       storage.AdvisoryLocker
	lockKey      int64
	retention    config.RetentionConfig
}

// New constructs the monitoring service.
func New(cfg *config.Config, fetch fetcher.SnapshotFetcher, store MarketStore, pruneStore storage.PruneStore, composer *report.Composer, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		fetcher:  fetch,
		store:    store,
		prune:    pruneStore,
		composer: composer,
		notifier: notifier,
		logger:   logger.With().Str("component", "service").Logger(),
		window:   cfg.Analysis.Window,
		topSize:  cfg.Analysis.TopSize,
		applyOpts: reconcile.ApplyOptions{
			UpdateBatchSize: cfg.Sync.UpdateBatchSize,
			UpdateWorkers:   cfg.Sync.UpdateWorkers,
		},
		messageDelay: cfg.Alerting.MessageDelay,
		locker:       locker,
		lockKey:      cfg.Scheduler.AdvisoryLockKey,
		retention:    cfg.Retention,
	}
}

// ProcessTick 执行一次完整的监控流程：抓取 → 对账 → 分析 → 播报。
//
// A fetch or state-load failure aborts the tick before any write. Failures
// inside the apply phase or the webhook dispatch are logged and absorbed:
// the classification is idempotent, so the next tick self-heals.
func (s *Service) ProcessTick(ctx context.Context, ts time.Time) error {
	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		s.logger.Debug().Time("tick", ts).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	snapshot, err := s.fetcher.FetchSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("fetch snapshot: %w", err)
	}

	state, err := reconcile.LoadState(ctx, s.store)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}

	plan := reconcile.BuildPlan(snapshot, state, ts)
	result := reconcile.Apply(ctx, s.store, plan, s.applyOpts, s.logger)

	s.logger.Info().Time("tick", ts).
		Int("snapshot_items", len(snapshot)).
		Int64("created", result.Created).
		Int64("updated", result.Updated).
		Int64("update_failures", result.UpdatesFailed).
		Int64("new_points", result.Inserted).
		Msg("snapshot reconciled")

	analysis, err := s.analyze(ctx, ts)
	if err != nil {
		s.logger.Error().Err(err).Time("tick", ts).Msg("analysis failed")
		return nil
	}

	if analysis.TotalItems == 0 {
		s.logger.Info().Time("tick", ts).Msg("no items stored yet, skipping report")
		return nil
	}
	if s.notifier == nil || s.composer == nil {
		s.logger.Debug().Msg("no webhook configured, skipping report")
		return nil
	}

	messages := s.composer.Compose(analysis, ts)
	sent := alerting.Dispatch(ctx, s.notifier, messages, s.messageDelay, s.logger)
	s.logger.Info().Time("tick", ts).
		Int("messages", len(messages)).
		Int("sent", sent).
		Msg("market report dispatched")

	return nil
}

// Analyze computes the rolling-window analysis as of ts.
func (s *Service) Analyze(ctx context.Context, ts time.Time) (analyzer.MarketAnalysis, error) {
	return s.analyze(ctx, ts)
}

func (s *Service) analyze(ctx context.Context, ts time.Time) (analyzer.MarketAnalysis, error) {
	items, err := s.store.ListItems(ctx)
	if err != nil {
		return analyzer.MarketAnalysis{}, fmt.Errorf("list items: %w", err)
	}

	points, err := s.store.ListPointsBetween(ctx, ts.Add(-s.window), ts)
	if err != nil {
		return analyzer.MarketAnalysis{}, fmt.Errorf("list window points: %w", err)
	}

	return analyzer.Analyze(items, points, ts, analyzer.Options{
		Window:  s.window,
		TopSize: s.topSize,
	}), nil
}

// Prune deletes price points older than the retention horizon in bounded
// batches until none remain. Safe to interrupt: a later run continues
// deleting the same aged tail.
func (s *Service) Prune(ctx context.Context, ts time.Time, daysOverride int) (int64, error) {
	if s.prune == nil {
		return 0, fmt.Errorf("prune store not configured")
	}

	days := s.retention.Days
	if daysOverride > 0 {
		days = daysOverride
	}
	cutoff := ts.Add(-time.Duration(days) * 24 * time.Hour)

	toDelete, err := s.prune.CountPointsBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("count aged points: %w", err)
	}
	if toDelete == 0 {
		s.logger.Info().Time("cutoff", cutoff).Msg("no aged points to prune")
		return 0, nil
	}

	s.logger.Info().Int64("count", toDelete).Time("cutoff", cutoff).Int("retention_days", days).Msg("pruning aged price points")

	var total int64
	for {
		select {
		case <-ctx.Done():
			return total, ctx.Err()
		default:
		}

		deleted, err := s.prune.DeletePointsBefore(ctx, cutoff, s.retention.BatchSize)
		if err != nil {
			return total, fmt.Errorf("delete aged points: %w", err)
		}
		total += deleted
		if deleted > 0 {
			s.logger.Info().Int64("deleted", total).Int64("target", toDelete).Msg("prune batch complete")
		}
		if deleted < int64(s.retention.BatchSize) {
			break
		}
	}

	s.logger.Info().Int64("deleted", total).Msg("prune complete")
	return total, nil
}

// PruneTick adapts Prune to the scheduler's tick signature.
func (s *Service) PruneTick(ctx context.Context, ts time.Time) error {
	_, err := s.Prune(ctx, ts, 0)
	return err
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
