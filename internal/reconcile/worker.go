// Package reconcile recovers collections and payouts whose provider callback
// never arrived. A periodic job polls the provider for pending records inside
// the reconciliation window and resolves them through the same path a
// callback would have taken; records past the window are expired, reversing
// the up-front debit for payouts.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/savanna-pay/savanna_pay/internal/funding"
	"github.com/savanna-pay/savanna_pay/internal/provider"
	"github.com/savanna-pay/savanna_pay/internal/transaction"
)

// Config bounds the reconciliation windows.
type Config struct {
	// Interval between scheduled runs.
	Interval time.Duration
	// MinAge a pending record must reach before it is polled. Young records
	// are left alone so in-flight callbacks win the race.
	MinAge time.Duration
	// Timeout after which a pending record is expired instead of polled.
	Timeout time.Duration
	// MaxRetries caps how many runs may poll the same record.
	MaxRetries int
}

// Result summarizes one reconciliation run.
type Result struct {
	Expired   int
	Completed int
	Failed    int
	Retried   int
}

// Worker runs reconciliation on a schedule.
type Worker struct {
	records   transaction.Store
	providers *provider.Registry
	funding   *funding.Service
	cfg       Config
	logger    *slog.Logger
	scheduler *cron.Cron
}

// NewWorker builds a reconciliation worker.
func NewWorker(records transaction.Store, providers *provider.Registry, fundingSvc *funding.Service, cfg Config, logger *slog.Logger) *Worker {
	return &Worker{
		records:   records,
		providers: providers,
		funding:   fundingSvc,
		cfg:       cfg,
		logger:    logger,
	}
}

// Start schedules periodic runs until Stop is called.
func (w *Worker) Start() error {
	w.scheduler = cron.New()
	_, err := w.scheduler.AddFunc(fmt.Sprintf("@every %s", w.cfg.Interval), func() {
		if _, err := w.Run(context.Background()); err != nil {
			w.logger.Error("reconciliation run failed", slog.Any("error", err))
		}
	})
	if err != nil {
		return fmt.Errorf("schedule reconciliation: %w", err)
	}
	w.scheduler.Start()
	w.logger.Info("reconciliation scheduled", slog.Duration("interval", w.cfg.Interval))
	return nil
}

// Stop halts the schedule and waits for an in-flight run to finish.
func (w *Worker) Stop() {
	if w.scheduler != nil {
		<-w.scheduler.Stop().Done()
	}
}

// Run executes one reconciliation pass over collections and payouts: first
// expire records past the timeout, then poll the rest of the window. Failures
// on individual records never abort the pass.
func (w *Worker) Run(ctx context.Context) (Result, error) {
	var res Result
	now := time.Now().UTC()

	for _, kind := range []transaction.Type{transaction.TypeCollection, transaction.TypePayout} {
		expired, err := w.records.ListPending(ctx, kind, time.Time{}, now.Add(-w.cfg.Timeout), 0)
		if err != nil {
			return res, fmt.Errorf("list expired %s records: %w", kind, err)
		}
		for _, rec := range expired {
			// Expire reverses the up-front debit for payouts; a collection was
			// never credited, so its expiry is bookkeeping only.
			if _, err := w.funding.Expire(ctx, rec, fmt.Sprintf("no provider confirmation within %s", w.cfg.Timeout)); err != nil {
				w.logger.Error("expire record", slog.String("reference", rec.Reference), slog.Any("error", err))
				continue
			}
			res.Expired++
			w.logger.Warn("record expired", slog.String("reference", rec.Reference), slog.String("type", string(kind)))
		}

		pending, err := w.records.ListPending(ctx, kind, now.Add(-w.cfg.Timeout), now.Add(-w.cfg.MinAge), w.cfg.MaxRetries)
		if err != nil {
			return res, fmt.Errorf("list pending %s records: %w", kind, err)
		}
		for _, rec := range pending {
			outcome, err := w.reconcile(ctx, rec)
			if err != nil {
				w.logger.Error("reconcile record", slog.String("reference", rec.Reference), slog.Any("error", err))
				continue
			}
			switch outcome {
			case transaction.StatusCompleted:
				res.Completed++
			case transaction.StatusFailed:
				res.Failed++
			default:
				res.Retried++
			}
		}
	}

	w.logger.Info("reconciliation run finished",
		slog.Int("expired", res.Expired),
		slog.Int("completed", res.Completed),
		slog.Int("failed", res.Failed),
		slog.Int("retried", res.Retried))
	return res, nil
}

// ReconcileOne polls and resolves a single record on demand, outside the age
// window checks. Support uses it to settle a disputed collection immediately.
func (w *Worker) ReconcileOne(ctx context.Context, id uuid.UUID) (transaction.Record, error) {
	rec, err := w.records.Get(ctx, id)
	if err != nil {
		return transaction.Record{}, err
	}
	if rec.Status.Terminal() {
		return rec, nil
	}
	if _, err := w.reconcile(ctx, rec); err != nil {
		return rec, err
	}
	return w.records.Get(ctx, id)
}

// reconcile polls the provider for one record and applies the outcome,
// returning the record's status afterwards.
func (w *Worker) reconcile(ctx context.Context, rec transaction.Record) (transaction.Status, error) {
	if rec.ProviderTxID == "" {
		// Initiation never reached the provider; nothing to poll. The timeout
		// pass will expire it.
		return rec.Status, nil
	}

	rail, err := w.providers.Get(rec.Provider)
	if err != nil {
		return rec.Status, err
	}
	status, err := rail.QueryStatus(ctx, rec.ProviderTxID)
	if err != nil {
		if _, retryErr := w.records.IncrementRetry(ctx, rec.ID); retryErr != nil {
			w.logger.Error("increment retry", slog.String("reference", rec.Reference), slog.Any("error", retryErr))
		}
		return rec.Status, fmt.Errorf("query %s on %s: %w", rec.ProviderTxID, rec.Provider, err)
	}

	resolved, err := w.funding.Resolve(ctx, rec, status)
	if err != nil {
		return rec.Status, err
	}
	if resolved.Status == transaction.StatusPending {
		if _, err := w.records.IncrementRetry(ctx, rec.ID); err != nil {
			return resolved.Status, err
		}
	}
	return resolved.Status, nil
}
