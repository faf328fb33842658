package worker

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
	"github.com/linlinbupt123-crypto/treasury_service/metrics"
)

func TestSweepOnceRequeuesLostJobs(t *testing.T) {
	q, _ := newTestQueue(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store := &memWithdrawals{records: map[string]*entity.TreasuryWithdrawal{}}
	store.put(&entity.TreasuryWithdrawal{ID: "wd-queued", Status: entity.WithdrawalApproved, UpdatedAt: now})
	store.put(&entity.TreasuryWithdrawal{ID: "wd-lost", Status: entity.WithdrawalApproved, UpdatedAt: now})
	store.put(&entity.TreasuryWithdrawal{ID: "wd-pending", Status: entity.WithdrawalPendingApproval, UpdatedAt: now})
	require.NoError(t, q.Enqueue(ctx, "wd-queued"))

	s := NewSweeper(store, q, time.Minute, 30*time.Minute, zap.NewNop())
	s.now = func() time.Time { return now }

	requeued, stuck, err := s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)
	assert.Zero(t, stuck)

	inflight, err := q.InFlight(ctx, "wd-lost")
	require.NoError(t, err)
	assert.True(t, inflight)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, float64(2), testutil.ToFloat64(metrics.QueueDepth))

	// second pass finds nothing new
	requeued, _, err = s.SweepOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, requeued)
}

func TestSweepOnceReportsStuckProcessing(t *testing.T) {
	q, _ := newTestQueue(t)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	store := &memWithdrawals{records: map[string]*entity.TreasuryWithdrawal{}}
	store.put(&entity.TreasuryWithdrawal{ID: "wd-old", Status: entity.WithdrawalProcessing, UpdatedAt: now.Add(-time.Hour)})
	store.put(&entity.TreasuryWithdrawal{ID: "wd-fresh", Status: entity.WithdrawalProcessing, UpdatedAt: now.Add(-time.Minute)})

	s := NewSweeper(store, q, time.Minute, 30*time.Minute, zap.NewNop())
	s.now = func() time.Time { return now }

	requeued, stuck, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, requeued)
	assert.Equal(t, 1, stuck)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.StuckProcessing))
	// stuck records are left untouched
	assert.Equal(t, entity.WithdrawalProcessing, store.get("wd-old").Status)
}

func TestSweeperStartStop(t *testing.T) {
	q, _ := newTestQueue(t)
	store := &memWithdrawals{records: map[string]*entity.TreasuryWithdrawal{}}
	store.put(&entity.TreasuryWithdrawal{ID: "wd-lost", Status: entity.WithdrawalApproved})

	s := NewSweeper(store, q, time.Hour, time.Hour, zap.NewNop())
	go s.Start(context.Background())

	require.Eventually(t, func() bool {
		inflight, err := q.InFlight(context.Background(), "wd-lost")
		return err == nil && inflight
	}, 5*time.Second, 10*time.Millisecond)
	s.Stop()
}
