package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/linlinbupt123-crypto/treasury_service/utils"
)

// Job is one unit of executor work.
type Job struct {
	Name         string    `json:"name"`
	WithdrawalID string    `json:"withdrawal_id"`
	EnqueuedAt   time.Time `json:"enqueued_at"`

	raw string
}

// RedisQueue is a reliable list queue: dequeued jobs move atomically to a
// processing list and stay there until acked, so a crashed worker never loses
// a job. A set tracks withdrawal ids with a job queued or running.
type RedisQueue struct {
	rdb        *redis.Client
	pending    string
	processing string
	inflight   string
	now        func() time.Time
}

func NewRedisQueue(rdb *redis.Client, prefix string) *RedisQueue {
	return &RedisQueue{
		rdb:        rdb,
		pending:    prefix + ":jobs:pending",
		processing: prefix + ":jobs:processing",
		inflight:   prefix + ":jobs:inflight",
		now:        time.Now,
	}
}

// Enqueue schedules execution of a withdrawal.
func (q *RedisQueue) Enqueue(ctx context.Context, withdrawalID string) error {
	raw, err := json.Marshal(Job{
		Name:         utils.JobExecuteWithdrawal,
		WithdrawalID: withdrawalID,
		EnqueuedAt:   q.now().UTC(),
	})
	if err != nil {
		return err
	}
	_, err = q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.SAdd(ctx, q.inflight, withdrawalID)
		pipe.LPush(ctx, q.pending, raw)
		return nil
	})
	return err
}

// Dequeue blocks up to timeout for the next job. It returns nil, nil when the
// wait times out.
func (q *RedisQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Job, error) {
	raw, err := q.rdb.BLMove(ctx, q.pending, q.processing, "RIGHT", "LEFT", timeout).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		// 无法解析的任务直接丢弃, 避免阻塞队列
		q.rdb.LRem(ctx, q.processing, 1, raw)
		return nil, fmt.Errorf("decode job %q: %w", raw, err)
	}
	job.raw = raw
	return &job, nil
}

// Ack removes a finished job from the processing list and clears its
// in-flight marker.
func (q *RedisQueue) Ack(ctx context.Context, job *Job) error {
	_, err := q.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LRem(ctx, q.processing, 1, job.raw)
		pipe.SRem(ctx, q.inflight, job.WithdrawalID)
		return nil
	})
	return err
}

// InFlight reports whether a job for the withdrawal is queued or running.
func (q *RedisQueue) InFlight(ctx context.Context, withdrawalID string) (bool, error) {
	return q.rdb.SIsMember(ctx, q.inflight, withdrawalID).Result()
}

// RecoverProcessing moves jobs left in the processing list by a previous run
// back to the pending list. Call before starting workers.
//
// The processing list is shared by every instance on the same prefix, so jobs
// that another live instance is still running are redelivered as well. The
// executor's conditional approved->processing claim discards the duplicate.
func (q *RedisQueue) RecoverProcessing(ctx context.Context) (int, error) {
	moved := 0
	for {
		_, err := q.rdb.LMove(ctx, q.processing, q.pending, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return moved, nil
		}
		if err != nil {
			return moved, err
		}
		moved++
	}
}

// Len returns the number of pending jobs.
func (q *RedisQueue) Len(ctx context.Context) (int64, error) {
	return q.rdb.LLen(ctx, q.pending).Result()
}
