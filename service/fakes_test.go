package service

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/chain"
	"github.com/linlinbupt123-crypto/treasury_service/config"
	"github.com/linlinbupt123-crypto/treasury_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/treasury_service/errors"
)

const (
	destAddr    = "0x1111111111111111111111111111111111111111"
	baseWallet  = "0x2222222222222222222222222222222222222222"
	polyWallet  = "0x3333333333333333333333333333333333333333"
	validReason = "Quarterly operating expenses for infrastructure vendors"
)

type memWallets struct {
	mu      sync.Mutex
	byChain map[string]*entity.PlatformWallet
}

func (m *memWallets) GetActiveByChain(_ context.Context, chain string) (*entity.PlatformWallet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.byChain[chain]
	if !ok || !w.IsActive {
		return nil, nil
	}
	cp := *w
	return &cp, nil
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
	sort.Slice(out, func(i, j int) bool { return out[i].Chain < out[j].Chain })
	return out, nil
}

type memWhitelist struct {
	mu      sync.Mutex
	entries map[string]*entity.WhitelistAddress
}

func (m *memWhitelist) Create(_ context.Context, w *entity.WhitelistAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.IsActive && e.Address == w.Address {
			return wrapErrors.New(wrapErrors.Conflict, "mem.create", "duplicate key")
		}
	}
	cp := *w
	m.entries[w.ID] = &cp
	return nil
}

func (m *memWhitelist) GetByID(_ context.Context, id string) (*entity.WhitelistAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, nil
	}
	cp := *e
	return &cp, nil
}

func (m *memWhitelist) GetActiveByAddress(_ context.Context, address string) (*entity.WhitelistAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.entries {
		if e.IsActive && e.Address == address {
			cp := *e
			return &cp, nil
		}
	}
	return nil, nil
}

func (m *memWhitelist) ListActive(context.Context) ([]*entity.WhitelistAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entity.WhitelistAddress
	for _, e := range m.entries {
		if e.IsActive {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memWhitelist) Deactivate(_ context.Context, id, actorID string, at time.Time) (*entity.WhitelistAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok || !e.IsActive {
		return nil, nil
	}
	e.IsActive = false
	e.RemovedByID = &actorID
	e.RemovedAt = &at
	cp := *e
	return &cp, nil
}

func (m *memWhitelist) activeCount(address string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.entries {
		if e.IsActive && e.Address == address {
			n++
		}
	}
	return n
}

type memWithdrawals struct {
	mu      sync.Mutex
	records map[string]*entity.TreasuryWithdrawal
}

func (m *memWithdrawals) Create(_ context.Context, w *entity.TreasuryWithdrawal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *w
	m.records[w.ID] = &cp
	return nil
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

func (m *memWithdrawals) ExistsByAddressAndStatus(_ context.Context, address string, status entity.WithdrawalStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.records {
		if w.ToAddress == address && w.Status == status {
			return true, nil
		}
	}
	return false, nil
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

func (m *memWithdrawals) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

type fakeBalances struct {
	mu     sync.Mutex
	token  map[string]*big.Int
	native map[string]*big.Int
	errs   map[string]error
}

func (f *fakeBalances) TokenBalance(_ context.Context, chain, _ string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[chain]; err != nil {
		return nil, err
	}
	if v, ok := f.token[chain]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

func (f *fakeBalances) NativeBalance(_ context.Context, chain, _ string) (*big.Int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[chain]; err != nil {
		return nil, err
	}
	if v, ok := f.native[chain]; ok {
		return v, nil
	}
	return big.NewInt(0), nil
}

type fakeRates struct {
	prices map[string]decimal.Decimal
	err    error
}

func (f *fakeRates) ToUSD(_ context.Context, symbol string, amount decimal.Decimal) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	p, ok := f.prices[symbol]
	if !ok {
		return decimal.Zero, fmt.Errorf("no price for %s", symbol)
	}
	return amount.Mul(p), nil
}

type fakeAudit struct {
	mu      sync.Mutex
	entries []*entity.AuditLog
	err     error
}

func (f *fakeAudit) Record(_ context.Context, e *entity.AuditLog) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeAudit) actions() []entity.AuditAction {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]entity.AuditAction, 0, len(f.entries))
	for _, e := range f.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeQueue struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (f *fakeQueue) Enqueue(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.ids = append(f.ids, id)
	return nil
}

func (f *fakeQueue) enqueued() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type harness struct {
	svc         *TreasuryService
	wallets     *memWallets
	whitelist   *memWhitelist
	withdrawals *memWithdrawals
	balances    *fakeBalances
	rates       *fakeRates
	audit       *fakeAudit
	queue       *fakeQueue
	now         time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	reg, err := chain.NewRegistry([]config.ChainConfig{
		{Name: "base", ChainID: 8453, TokenSymbol: "USDC", TokenDecimals: 6, NativeSymbol: "ETH", NativeDecimals: 18},
		{Name: "polygon", ChainID: 137, TokenSymbol: "USDC", TokenDecimals: 6, NativeSymbol: "MATIC", NativeDecimals: 18},
	})
	require.NoError(t, err)

	h := &harness{
		wallets: &memWallets{byChain: map[string]*entity.PlatformWallet{
			"base":    {ID: "pw-base", Chain: "base", WalletAddress: baseWallet, TotalWithdrawnAllTime: "0", TotalFeesCollectedAllTime: "10", IsActive: true},
			"polygon": {ID: "pw-polygon", Chain: "polygon", WalletAddress: polyWallet, TotalWithdrawnAllTime: "0", TotalFeesCollectedAllTime: "0", IsActive: true},
		}},
		whitelist:   &memWhitelist{entries: map[string]*entity.WhitelistAddress{}},
		withdrawals: &memWithdrawals{records: map[string]*entity.TreasuryWithdrawal{}},
		balances: &fakeBalances{
			token:  map[string]*big.Int{"base": big.NewInt(1_100_000_000)}, // 1100 USDC
			native: map[string]*big.Int{},
			errs:   map[string]error{},
		},
		rates: &fakeRates{prices: map[string]decimal.Decimal{
			"USDC":  decimal.NewFromInt(1),
			"ETH":   decimal.NewFromInt(2000),
			"MATIC": decimal.RequireFromString("0.5"),
		}},
		audit: &fakeAudit{},
		queue: &fakeQueue{},
		now:   time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC),
	}

	h.svc = NewTreasuryService(Deps{
		Wallets:     h.wallets,
		Whitelist:   h.whitelist,
		Withdrawals: h.withdrawals,
		Balances:    h.balances,
		Rates:       h.rates,
		Audit:       h.audit,
		Queue:       h.queue,
		Registry:    reg,
	}, Options{
		Timelock:              24 * time.Hour,
		Reserve:               decimal.NewFromInt(100),
		MinReasonLength:       30,
		MaxReasonLength:       2000,
		MinRejectReasonLength: 20,
		BalanceTimeout:        time.Second,
		RateTimeout:           time.Second,
		AuditTimeout:          time.Second,
	}, zap.NewNop())
	h.svc.now = func() time.Time { return h.now }
	var seq int
	var seqMu sync.Mutex
	h.svc.newID = func() string {
		seqMu.Lock()
		defer seqMu.Unlock()
		seq++
		return fmt.Sprintf("id-%d", seq)
	}
	return h
}

// seedWhitelist inserts an active entry created age ago.
func (h *harness) seedWhitelist(address string, age time.Duration, chains ...string) *entity.WhitelistAddress {
	e := &entity.WhitelistAddress{
		ID:            "wl-" + address[len(address)-4:],
		Address:       address,
		Label:         "vendor payouts",
		AllowedChains: chains,
		IsActive:      true,
		AddedByID:     "admin-0",
		CreatedAt:     h.now.Add(-age),
	}
	h.whitelist.entries[e.ID] = e
	return e
}

func (h *harness) request(amount string) WithdrawalRequest {
	return WithdrawalRequest{
		Chain:       "base",
		ToAddress:   destAddr,
		TokenAmount: amount,
		TokenSymbol: "USDC",
		Reason:      validReason,
	}
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
