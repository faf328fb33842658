package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/chain"
	"github.com/linlinbupt123-crypto/treasury_service/config"
	"github.com/linlinbupt123-crypto/treasury_service/entity"
	"github.com/linlinbupt123-crypto/treasury_service/metrics"
)

type Options struct {
	Timelock              time.Duration
	Reserve               decimal.Decimal
	MinReasonLength       int
	MaxReasonLength       int
	MinRejectReasonLength int
	BalanceTimeout        time.Duration
	RateTimeout           time.Duration
	AuditTimeout          time.Duration
}

func OptionsFromConfig(cfg *config.Config) (Options, error) {
	reserve, err := decimal.NewFromString(cfg.Treasury.Reserve)
	if err != nil {
		return Options{}, fmt.Errorf("treasury.reserve: %w", err)
	}
	if reserve.IsNegative() {
		return Options{}, fmt.Errorf("treasury.reserve must not be negative")
	}
	return Options{
		Timelock:              cfg.Treasury.Timelock,
		Reserve:               reserve,
		MinReasonLength:       cfg.Treasury.MinReasonLength,
		MaxReasonLength:       cfg.Treasury.MaxReasonLength,
		MinRejectReasonLength: cfg.Treasury.MinRejectReasonLength,
		BalanceTimeout:        cfg.Timeouts.Balance,
		RateTimeout:           cfg.Timeouts.Rate,
		AuditTimeout:          cfg.Timeouts.Audit,
	}, nil
}

type Deps struct {
	Wallets     WalletStore
	Whitelist   WhitelistStore
	Withdrawals WithdrawalStore
	Balances    chain.BalanceReader
	Rates       RateConverter
	Audit       AuditRecorder
	Queue       JobQueue
	Registry    *chain.Registry
}

// TreasuryService governs the whitelist and the withdrawal lifecycle up to
// the hand-off to the executor.
type TreasuryService struct {
	wallets     WalletStore
	whitelist   WhitelistStore
	withdrawals WithdrawalStore
	balances    chain.BalanceReader
	rates       RateConverter
	audit       AuditRecorder
	queue       JobQueue
	registry    *chain.Registry

	opts   Options
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

func NewTreasuryService(deps Deps, opts Options, logger *zap.Logger) *TreasuryService {
	return &TreasuryService{
		wallets:     deps.Wallets,
		whitelist:   deps.Whitelist,
		withdrawals: deps.Withdrawals,
		balances:    deps.Balances,
		rates:       deps.Rates,
		audit:       deps.Audit,
		queue:       deps.Queue,
		registry:    deps.Registry,
		opts:        opts,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
	}
}

// recordAudit writes an audit entry with its own bounded deadline. Failures
// are logged and never undo the transition that was already committed.
func (s *TreasuryService) recordAudit(ctx context.Context, entry *entity.AuditLog) {
	ctx, cancel := s.withTimeout(context.WithoutCancel(ctx), s.opts.AuditTimeout)
	defer cancel()

	if entry.ActorType == "" {
		entry.ActorType = entity.ActorAdmin
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		metrics.AuditFailures.Inc()
		s.logger.Error("audit record failed",
			zap.String("entity_type", entry.EntityType),
			zap.String("entity_id", entry.EntityID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

func (s *TreasuryService) withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
