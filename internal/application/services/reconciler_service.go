package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/bimakw/vault-gateway/internal/config"
	"github.com/bimakw/vault-gateway/internal/domain/entities"
	"github.com/bimakw/vault-gateway/internal/domain/repositories"
)

// interruptedMessage is recorded for intents whose submission never returned
const interruptedMessage = "submission interrupted before a transaction hash was recorded"

// ReconcilerService settles intents whose receipt wait was lost, for example
// because the API process restarted while they were awaiting confirmation
type ReconcilerService struct {
	receipts repositories.TransactionSubmitter
	intents  repositories.IntentRepository
	settler  *settler
	config   config.ReconcilerConfig
	logger   *zap.Logger
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	stats    *ReconcilerStats
}

// ReconcilerStats tracks reconciler progress
type ReconcilerStats struct {
	mu        sync.RWMutex
	Passes    int64
	Confirmed int64
	Failed    int64
	Pending   int64
	Errors    int64
	LastRun   time.Time
}

// NewReconcilerService creates a new reconciler. positions may be nil, in
// which case settled intents do not touch the read cache.
func NewReconcilerService(
	receipts repositories.TransactionSubmitter,
	intents repositories.IntentRepository,
	notifier repositories.Notifier,
	positions *PositionService,
	cfg config.ReconcilerConfig,
	logger *zap.Logger,
) *ReconcilerService {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &ReconcilerService{
		receipts: receipts,
		intents:  intents,
		settler: &settler{
			intents:   intents,
			notifier:  notifier,
			positions: positions,
			logger:    logger,
		},
		config: cfg,
		logger: logger,
		stopCh: make(chan struct{}),
		stats:  &ReconcilerStats{},
	}
}

// Start begins the reconciliation loop
func (s *ReconcilerService) Start(ctx context.Context) {
	s.logger.Info("Starting reconciler service",
		zap.Duration("poll_interval", s.config.PollInterval),
		zap.Duration("stale_after", s.config.StaleAfter),
		zap.Int("workers", s.config.WorkerCount),
	)

	s.wg.Add(1)
	go s.run(ctx)
}

// Stop gracefully stops the reconciler
func (s *ReconcilerService) Stop() {
	s.logger.Info("Stopping reconciler service")
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// Stats returns a copy of the current counters
func (s *ReconcilerService) Stats() ReconcilerStats {
	s.stats.mu.RLock()
	defer s.stats.mu.RUnlock()
	return ReconcilerStats{
		Passes:    s.stats.Passes,
		Confirmed: s.stats.Confirmed,
		Failed:    s.stats.Failed,
		Pending:   s.stats.Pending,
		Errors:    s.stats.Errors,
		LastRun:   s.stats.LastRun,
	}
}

func (s *ReconcilerService) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.PollInterval)
	defer ticker.Stop()

	// Run immediately on start
	s.reconcileOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.reconcileOnce(ctx)
		}
	}
}

func (s *ReconcilerService) reconcileOnce(ctx context.Context) {
	if err := s.Reconcile(ctx); err != nil {
		s.logger.Error("Reconciliation pass failed", zap.Error(err))
	}
}

// Reconcile runs a single pass over stale in-flight intents
func (s *ReconcilerService) Reconcile(ctx context.Context) error {
	cutoff := time.Now().Add(-s.config.StaleAfter)

	stale, err := s.intents.ListStale(ctx, cutoff, s.config.BatchSize)
	if err != nil {
		s.recordError()
		return fmt.Errorf("failed to list stale intents: %w", err)
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.WorkerCount)

	for i := range stale {
		intent := stale[i]
		g.Go(func() error {
			if err := s.reconcileIntent(gCtx, &intent); err != nil {
				s.logger.Warn("Failed to reconcile intent",
					zap.String("intent_id", intent.ID),
					zap.Error(err),
				)
				s.recordError()
			}
			return nil
		})
	}
	_ = g.Wait()

	s.stats.mu.Lock()
	s.stats.Passes++
	s.stats.LastRun = time.Now()
	s.stats.mu.Unlock()
	reconcilerLastRun.SetToCurrentTime()

	if len(stale) > 0 {
		s.logger.Info("Reconciliation pass complete", zap.Int("intents", len(stale)))
	}
	return nil
}

func (s *ReconcilerService) reconcileIntent(ctx context.Context, intent *entities.TransactionIntent) error {
	if intent.TxHash == nil || *intent.TxHash == "" {
		if err := s.settler.fail(ctx, intent, interruptedMessage); err != nil {
			return err
		}
		s.record(entities.StatusFailed)
		return nil
	}

	status, mined, err := s.receipts.ReceiptStatus(ctx, *intent.TxHash)
	if err != nil {
		return fmt.Errorf("failed to check receipt: %w", err)
	}
	if !mined {
		s.stats.mu.Lock()
		s.stats.Pending++
		s.stats.mu.Unlock()
		return nil
	}

	if status == entities.ReceiptSuccess {
		if err := s.settler.confirm(ctx, intent); err != nil {
			return err
		}
		s.record(entities.StatusConfirmed)
		return nil
	}

	if err := s.settler.fail(ctx, intent, fmt.Sprintf("transaction %s reverted", *intent.TxHash)); err != nil {
		return err
	}
	s.record(entities.StatusFailed)
	return nil
}

func (s *ReconcilerService) record(status entities.IntentStatus) {
	reconcilerResolvedTotal.WithLabelValues(string(status)).Inc()

	s.stats.mu.Lock()
	defer s.stats.mu.Unlock()
	if status == entities.StatusConfirmed {
		s.stats.Confirmed++
	} else {
		s.stats.Failed++
	}
}

func (s *ReconcilerService) recordError() {
	reconcilerErrorsTotal.Inc()

	s.stats.mu.Lock()
	s.stats.Errors++
	s.stats.mu.Unlock()
}
