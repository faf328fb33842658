package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
	"github.com/linlinbupt123-crypto/treasury_service/metrics"
)

type SweepStore interface {
	List(ctx context.Context, f entity.WithdrawalFilter) ([]*entity.TreasuryWithdrawal, error)
	ListStale(ctx context.Context, status entity.WithdrawalStatus, before time.Time) ([]*entity.TreasuryWithdrawal, error)
}

type SweepQueue interface {
	Enqueue(ctx context.Context, withdrawalID string) error
	InFlight(ctx context.Context, withdrawalID string) (bool, error)
	Len(ctx context.Context) (int64, error)
}

// Sweeper periodically re-enqueues approved withdrawals whose job was lost
// and reports withdrawals stuck in processing. Stuck records are never moved
// automatically: the broadcast outcome is unknown.
type Sweeper struct {
	store      SweepStore
	queue      SweepQueue
	interval   time.Duration
	stuckAfter time.Duration
	logger     *zap.Logger
	now        func() time.Time
	stopChan   chan struct{}
	done       chan struct{}
}

func NewSweeper(store SweepStore, q SweepQueue, interval, stuckAfter time.Duration, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		store:      store,
		queue:      q,
		interval:   interval,
		stuckAfter: stuckAfter,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		stopChan:   make(chan struct{}),
		done:       make(chan struct{}),
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	s.logger.Info("Starting withdrawal sweeper", zap.Duration("interval", s.interval))

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	defer close(s.done)

	s.sweepAndLog(ctx)

	for {
		select {
		case <-ticker.C:
			s.sweepAndLog(ctx)
		case <-s.stopChan:
			s.logger.Info("Stopping withdrawal sweeper")
			return
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping withdrawal sweeper")
			return
		}
	}
}

// Stop signals the loop and waits for the running sweep to finish.
func (s *Sweeper) Stop() {
	close(s.stopChan)
	<-s.done
}

func (s *Sweeper) sweepAndLog(ctx context.Context) {
	requeued, stuck, err := s.SweepOnce(ctx)
	if err != nil {
		s.logger.Error("withdrawal sweep failed", zap.Error(err))
		return
	}
	if requeued > 0 || stuck > 0 {
		s.logger.Info("withdrawal sweep finished", zap.Int("requeued", requeued), zap.Int("stuck", stuck))
	}
}

// SweepOnce runs one reconciliation pass. Re-enqueueing an id that a worker
// just finished is harmless: the executor discards non-approved records.
func (s *Sweeper) SweepOnce(ctx context.Context) (requeued, stuck int, err error) {
	approved, err := s.store.List(ctx, entity.WithdrawalFilter{Status: entity.WithdrawalApproved})
	if err != nil {
		return 0, 0, err
	}
	for _, w := range approved {
		inFlight, err := s.queue.InFlight(ctx, w.ID)
		if err != nil {
			s.logger.Warn("in-flight check failed", zap.String("withdrawal_id", w.ID), zap.Error(err))
			continue
		}
		if inFlight {
			continue
		}
		if err := s.queue.Enqueue(ctx, w.ID); err != nil {
			s.logger.Warn("re-enqueue failed", zap.String("withdrawal_id", w.ID), zap.Error(err))
			continue
		}
		metrics.SweepRequeued.Inc()
		requeued++
	}

	stale, err := s.store.ListStale(ctx, entity.WithdrawalProcessing, s.now().Add(-s.stuckAfter))
	if err != nil {
		return requeued, 0, err
	}
	for _, w := range stale {
		s.logger.Error("withdrawal stuck in processing, manual reconciliation required",
			zap.String("withdrawal_id", w.ID),
			zap.String("chain", w.Chain),
			zap.String("amount", w.TokenAmount),
			zap.Time("updated_at", w.UpdatedAt))
	}
	metrics.StuckProcessing.Set(float64(len(stale)))

	if depth, err := s.queue.Len(ctx); err != nil {
		s.logger.Warn("queue depth check failed", zap.Error(err))
	} else {
		metrics.QueueDepth.Set(float64(depth))
	}
	return requeued, len(stale), nil
}
