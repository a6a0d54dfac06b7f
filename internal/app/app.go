package app

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/guotingchao/DeltaTransactionSystem/internal/alerting"
	"github.com/guotingchao/DeltaTransactionSystem/internal/config"
	"github.com/guotingchao/DeltaTransactionSystem/internal/fetcher"
	"github.com/guotingchao/DeltaTransactionSystem/internal/report"
	"github.com/guotingchao/DeltaTransactionSystem/internal/scheduler"
	"github.com/guotingchao/DeltaTransactionSystem/internal/service"
	"github.com/guotingchao/DeltaTransactionSystem/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newFetcher() fetcher.SnapshotFetcher {
	return fetcher.NewSnapshot(fetcher.SnapshotOptions{
		URL:       a.Config.Source.URL,
		Timeout:   a.Config.Source.RequestTimeout,
		UserAgent: a.Config.Source.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.WebhookURL == "" {
		return nil
	}
	return alerting.NewWeComNotifier(a.Config.Alerting.WebhookURL, a.Config.Alerting.RequestTimeout, a.Logger)
}

func (a *App) newComposer() *report.Composer {
	loc, err := time.LoadLocation(a.Config.Alerting.Timezone)
	if err != nil {
		a.Logger.Warn().Str("timezone", a.Config.Alerting.Timezone).Msg("unknown timezone, falling back to UTC")
		loc = time.UTC
	}

	return report.NewComposer(report.Options{
		ThresholdPct:  decimal.NewFromFloat(a.Config.Alerting.ThresholdPct),
		FeeRate:       decimal.NewFromFloat(a.Config.Alerting.FeeRate),
		VolatilityTop: a.Config.Alerting.VolatilityTop,
		TopSize:       a.Config.Analysis.TopSize,
		ByteLimit:     a.Config.Alerting.MessageBytes,
		Mention:       a.Config.Alerting.MentionName,
		Location:      loc,
	})
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running monitoring service: the market pipeline on
// the main interval, retention pruning on its own slower cadence.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("database.dsn is required for the monitoring service")
	}
	if closeStore != nil {
		defer closeStore()
	}

	notifier := a.newNotifier()
	if notifier == nil {
		a.Logger.Warn().Msg("alerting.webhook_url not configured; reports disabled")
	}

	svc := service.New(a.Config, a.newFetcher(), store, store, a.newComposer(), notifier, a.Logger)

	monitorSched := scheduler.New(scheduler.Options{
		Interval:     a.Config.Scheduler.Interval,
		AlignToStart: a.Config.Scheduler.AlignToBucket,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		RunOnStart:   a.Config.Scheduler.RunOnStart,
	}, a.Logger)

	pruneSched := scheduler.New(scheduler.Options{
		Interval: a.Config.Retention.Interval,
	}, a.Logger.With().Str("component", "prune_scheduler").Logger())

	a.Logger.Info().
		Dur("interval", a.Config.Scheduler.Interval).
		Dur("prune_interval", a.Config.Retention.Interval).
		Msg("starting monitoring service")

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return monitorSched.Run(groupCtx, svc.ProcessTick)
	})
	group.Go(func() error {
		return pruneSched.Run(groupCtx, svc.PruneTick)
	})

	err = group.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// ExportOptions hold parameters for exporting an item's price history.
type ExportOptions struct {
	ItemID    int64
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// PruneOptions configure a manual retention run.
type PruneOptions struct {
	RetentionDays int
}

// ReportOptions configure a one-shot report run.
type ReportOptions struct {
	DryRun bool
}
