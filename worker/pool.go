package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/queue"
	"github.com/linlinbupt123-crypto/treasury_service/utils"
)

const dequeueErrorBackoff = time.Second

type JobSource interface {
	Dequeue(ctx context.Context, timeout time.Duration) (*queue.Job, error)
	Ack(ctx context.Context, job *queue.Job) error
	RecoverProcessing(ctx context.Context) (int, error)
}

type Runner interface {
	Execute(ctx context.Context, withdrawalID string) error
}

// Pool runs a fixed number of workers draining the job queue.
type Pool struct {
	source         JobSource
	runner         Runner
	workers        int
	dequeueTimeout time.Duration
	logger         *zap.Logger
	wg             sync.WaitGroup
}

func NewPool(source JobSource, runner Runner, workers int, dequeueTimeout time.Duration, logger *zap.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	if dequeueTimeout < time.Second {
		dequeueTimeout = time.Second
	}
	return &Pool{
		source:         source,
		runner:         runner,
		workers:        workers,
		dequeueTimeout: dequeueTimeout,
		logger:         logger,
	}
}

// Start requeues jobs orphaned by a previous run and launches the workers.
// Workers exit once ctx is cancelled and the job in hand is finished.
func (p *Pool) Start(ctx context.Context) {
	if n, err := p.source.RecoverProcessing(ctx); err != nil {
		p.logger.Error("recover processing jobs failed", zap.Error(err))
	} else if n > 0 {
		p.logger.Info("recovered orphaned jobs", zap.Int("count", n))
	}

	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker(ctx, i)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.workers))
}

// Wait blocks until every worker has exited.
func (p *Pool) Wait() {
	p.wg.Wait()
	p.logger.Info("worker pool stopped")
}

func (p *Pool) worker(ctx context.Context, id int) {
	defer p.wg.Done()
	log := p.logger.With(zap.Int("worker", id))

	for ctx.Err() == nil {
		job, err := p.source.Dequeue(ctx, p.dequeueTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Error("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(dequeueErrorBackoff):
			}
			continue
		}
		if job == nil {
			continue
		}
		p.handle(ctx, log, job)
	}
}

func (p *Pool) handle(ctx context.Context, log *zap.Logger, job *queue.Job) {
	log = log.With(zap.String("job", job.Name), zap.String("withdrawal_id", job.WithdrawalID))

	if err := p.run(ctx, job); err != nil {
		log.Warn("job finished with error", zap.Error(err))
	}

	if err := p.source.Ack(context.WithoutCancel(ctx), job); err != nil {
		log.Error("ack failed", zap.Error(err))
	}
}

func (p *Pool) run(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job panic: %v", r)
		}
	}()

	switch job.Name {
	case utils.JobExecuteWithdrawal:
		return p.runner.Execute(ctx, job.WithdrawalID)
	default:
		return fmt.Errorf("unknown job %q", job.Name)
	}
}
