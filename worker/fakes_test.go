package worker

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/chain"
	"github.com/linlinbupt123-crypto/treasury_service/config"
	"github.com/linlinbupt123-crypto/treasury_service/entity"
)

const (
	destAddr   = "0x1111111111111111111111111111111111111111"
	signerAddr = "0x2222222222222222222222222222222222222222"
)

type memWithdrawals struct {
	mu      sync.Mutex
	records map[string]*entity.TreasuryWithdrawal
	stale   []*entity.TreasuryWithdrawal
}

func (m *memWithdrawals) put(w *entity.TreasuryWithdrawal) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[w.ID] = w
}

func (m *memWithdrawals) get(id string) entity.TreasuryWithdrawal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.records[id]
}

func (m *memWithdrawals) GetByID(_ context.Context, id string) (*entity.TreasuryWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.records[id]
	if !ok {
		return nil, nil
	}
	cp := *w
	return &cp, nil
}

func (m *memWithdrawals) Transition(_ context.Context, id string, from entity.WithdrawalStatus, u entity.WithdrawalUpdate, at time.Time) (*entity.TreasuryWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.records[id]
	if !ok || w.Status != from {
		return nil, nil
	}
	applyUpdate(w, u, at)
	cp := *w
	return &cp, nil
}

func (m *memWithdrawals) List(_ context.Context, f entity.WithdrawalFilter) ([]*entity.TreasuryWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TreasuryWithdrawal
	for _, w := range m.records {
		if matchesFilter(f, w) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memWithdrawals) ListStale(_ context.Context, status entity.WithdrawalStatus, before time.Time) ([]*entity.TreasuryWithdrawal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.TreasuryWithdrawal
	for _, w := range m.records {
		if w.Status == status && w.UpdatedAt.Before(before) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

type memWallets struct {
	mu      sync.Mutex
	byChain map[string]*entity.PlatformWallet
}

func (m *memWallets) ListActive(context.Context) ([]*entity.PlatformWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.PlatformWallet
	for _, w := range m.byChain {
		if w.IsActive {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memWallets) RecordWithdrawal(_ context.Context, chain string, amount decimal.Decimal, at time.Time) (*entity.PlatformWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byChain[chain]
	if !ok {
		return nil, nil
	}
	prev := decimal.RequireFromString(w.TotalWithdrawnAllTime)
	w.TotalWithdrawnAllTime = prev.Add(amount).StringFixed(18)
	w.LastWithdrawalAt = &at
	cp := *w
	return &cp, nil
}

type sentTransfer struct {
	chainID int64
	keyRef  string
	to      string
	amount  *big.Int
}

type fakeBroadcaster struct {
	mu    sync.Mutex
	sent  []sentTransfer
	err   error
	block bool
}

func (f *fakeBroadcaster) SendTransfer(ctx context.Context, chainID int64, keyRef, to string, amount *big.Int) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentTransfer{chainID: chainID, keyRef: keyRef, to: to, amount: amount})
	if f.err != nil {
		return "", f.err
	}
	return "0xabc123", nil
}

func (f *fakeBroadcaster) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*entity.AuditLog
}

func (f *fakeAudit) Record(ctx context.Context, e *entity.AuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, e)
	return nil
}

type execHarness struct {
	exec        *Executor
	withdrawals *memWithdrawals
	wallets     *memWallets
	broadcaster *fakeBroadcaster
	audit       *fakeAudit
	now         time.Time
}

func newExecHarness(t *testing.T) *execHarness {
	t.Helper()
	reg, err := chain.NewRegistry([]config.ChainConfig{
		{Name: "base", ChainID: 8453, TokenSymbol: "USDC", TokenDecimals: 6, NativeSymbol: "ETH", NativeDecimals: 18},
	})
	require.NoError(t, err)

	h := &execHarness{
		withdrawals: &memWithdrawals{records: map[string]*entity.TreasuryWithdrawal{}},
		wallets: &memWallets{byChain: map[string]*entity.PlatformWallet{
			"base": {ID: "pw-base", Chain: "base", WalletAddress: signerAddr, TotalWithdrawnAllTime: "250.000000000000000000", IsActive: true},
		}},
		broadcaster: &fakeBroadcaster{},
		audit:       &fakeAudit{},
		now:         time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}
	h.exec = NewExecutor(h.withdrawals, h.wallets, h.broadcaster, reg, h.audit, ExecutorConfig{
		SigningKeyRef:    "treasury/0",
		SignerAddress:    signerAddr,
		BroadcastTimeout: time.Second,
		AuditTimeout:     time.Second,
	}, zap.NewNop())
	h.exec.now = func() time.Time { return h.now }
	return h
}

func (h *execHarness) seed(id, chainName, amount string, status entity.WithdrawalStatus) {
	h.withdrawals.put(&entity.TreasuryWithdrawal{
		ID:          id,
		Chain:       chainName,
		FromAddress: signerAddr,
		ToAddress:   destAddr,
		TokenAmount: amount,
		TokenSymbol: "USDC",
		Status:      status,
		CreatedAt:   h.now.Add(-time.Minute),
		UpdatedAt:   h.now.Add(-time.Minute),
	})
}

// applyUpdate mirrors the $set the repository issues on a transition.
func applyUpdate(w *entity.TreasuryWithdrawal, u entity.WithdrawalUpdate, now time.Time) {
	w.Status = u.Status
	if u.ApprovedByID != nil {
		w.ApprovedByID = u.ApprovedByID
	}
	if u.ApprovedAt != nil {
		w.ApprovedAt = u.ApprovedAt
	}
	if u.RejectedByID != nil {
		w.RejectedByID = u.RejectedByID
	}
	if u.RejectionReason != nil {
		w.RejectionReason = u.RejectionReason
	}
	if u.TxHash != nil {
		w.TxHash = u.TxHash
	}
	if u.FailureReason != nil {
		w.FailureReason = u.FailureReason
	}
	if u.CompletedAt != nil {
		w.CompletedAt = u.CompletedAt
	}
	w.UpdatedAt = now
}

// matchesFilter is the in-memory form of the repository list query.
func matchesFilter(f entity.WithdrawalFilter, w *entity.TreasuryWithdrawal) bool {
	if f.Chain != "" && w.Chain != f.Chain {
		return false
	}
	if f.Status != "" && w.Status != f.Status {
		return false
	}
	if f.ToAddress != "" && w.ToAddress != f.ToAddress {
		return false
	}
	if f.CreatedAfter != nil && w.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && w.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}
