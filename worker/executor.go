package worker

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/chain"
	"github.com/linlinbupt123-crypto/treasury_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/treasury_service/errors"
	"github.com/linlinbupt123-crypto/treasury_service/metrics"
	"github.com/linlinbupt123-crypto/treasury_service/utils"
)

const (
	SystemActorID = "system:withdrawal-executor"

	reasonBroadcastTimeout = "broadcast timed out, outcome unknown"
)

type WithdrawalStore interface {
	GetByID(ctx context.Context, id string) (*entity.TreasuryWithdrawal, error)
	Transition(ctx context.Context, id string, from entity.WithdrawalStatus, u entity.WithdrawalUpdate, at time.Time) (*entity.TreasuryWithdrawal, error)
}

type WalletLedger interface {
	RecordWithdrawal(ctx context.Context, chain string, amount decimal.Decimal, at time.Time) (*entity.PlatformWallet, error)
}

type AuditRecorder interface {
	Record(ctx context.Context, entry *entity.AuditLog) error
}

type ExecutorConfig struct {
	SigningKeyRef    string
	SignerAddress    string // derived from SigningKeyRef
	BroadcastTimeout time.Duration
	AuditTimeout     time.Duration
}

// Executor runs approved withdrawals: it claims the record, broadcasts the
// transfer once and reconciles the wallet counters. Failed broadcasts are
// never retried; a new request is required.
type Executor struct {
	withdrawals WithdrawalStore
	wallets     WalletLedger
	broadcaster chain.Broadcaster
	registry    *chain.Registry
	audit       AuditRecorder
	cfg         ExecutorConfig
	logger      *zap.Logger
	now         func() time.Time
}

func NewExecutor(
	withdrawals WithdrawalStore,
	wallets WalletLedger,
	broadcaster chain.Broadcaster,
	registry *chain.Registry,
	audit AuditRecorder,
	cfg ExecutorConfig,
	logger *zap.Logger,
) *Executor {
	return &Executor{
		withdrawals: withdrawals,
		wallets:     wallets,
		broadcaster: broadcaster,
		registry:    registry,
		audit:       audit,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Execute processes one withdrawal id. Duplicate deliveries and records that
// are no longer approved are discarded without error.
func (e *Executor) Execute(ctx context.Context, withdrawalID string) error {
	started := time.Now()
	log := e.logger.With(zap.String("withdrawal_id", withdrawalID))

	// 1. 重新读取, 只处理 approved
	w, err := e.withdrawals.GetByID(ctx, withdrawalID)
	if err != nil {
		return fmt.Errorf("load withdrawal: %w", err)
	}
	if w == nil {
		log.Warn("withdrawal not found, job discarded")
		return nil
	}
	if w.Status != entity.WithdrawalApproved {
		log.Info("withdrawal not approved, job discarded",
			zap.String("status", string(w.Status)), zap.Bool("terminal", w.Status.Terminal()))
		return nil
	}

	// 2. 外部调用前先抢占 processing
	claimed, err := e.withdrawals.Transition(ctx, w.ID, entity.WithdrawalApproved,
		entity.WithdrawalUpdate{Status: entity.WithdrawalProcessing}, e.now())
	if err != nil {
		return fmt.Errorf("claim withdrawal: %w", err)
	}
	if claimed == nil {
		log.Info("withdrawal claimed by another worker, job discarded")
		return nil
	}
	metrics.WithdrawalTransitions.WithLabelValues(w.Chain, string(entity.WithdrawalProcessing)).Inc()

	// from here on the record must reach a terminal state even during shutdown
	ctx = context.WithoutCancel(ctx)

	// 3. chain id
	chainID, ok := e.registry.ChainID(w.Chain)
	if !ok {
		return e.fail(ctx, claimed, started, wrapErrors.InvalidRequest, fmt.Sprintf("unknown chain %q", w.Chain))
	}
	info, _ := e.registry.ByID(chainID)

	// 4. 最小单位
	amount, err := decimal.NewFromString(w.TokenAmount)
	if err != nil {
		return e.fail(ctx, claimed, started, wrapErrors.InvalidRequest, fmt.Sprintf("invalid token amount %q", w.TokenAmount))
	}
	units, err := utils.ToSmallestUnit(amount, info.TokenDecimals)
	if err != nil {
		return e.fail(ctx, claimed, started, wrapErrors.InvalidRequest, err.Error())
	}

	// 签名地址必须是通过余额校验的来源钱包
	if !strings.EqualFold(e.cfg.SignerAddress, w.FromAddress) {
		return e.fail(ctx, claimed, started, wrapErrors.InvalidRequest,
			fmt.Sprintf("signing key %s does not control source wallet %s", e.cfg.SignerAddress, w.FromAddress))
	}

	// 5. 广播, 超时视为结果未知, 不重试
	bctx, cancel := context.WithTimeout(ctx, e.cfg.BroadcastTimeout)
	txHash, err := e.broadcaster.SendTransfer(bctx, chainID, e.cfg.SigningKeyRef, w.ToAddress, units)
	timedOut := stderrors.Is(err, context.DeadlineExceeded) || stderrors.Is(bctx.Err(), context.DeadlineExceeded)
	cancel()
	if err != nil {
		if timedOut {
			return e.fail(ctx, claimed, started, wrapErrors.BroadcastTimeout, reasonBroadcastTimeout)
		}
		return e.fail(ctx, claimed, started, wrapErrors.ExternalFailure, "broadcast failed: "+err.Error())
	}

	// 6. completed
	now := e.now()
	completed, err := e.withdrawals.Transition(ctx, w.ID, entity.WithdrawalProcessing, entity.WithdrawalUpdate{
		Status:      entity.WithdrawalCompleted,
		TxHash:      &txHash,
		CompletedAt: &now,
	}, now)
	if err != nil || completed == nil {
		// 交易已上链, 记录停留在 processing, 由 sweeper 报告人工处理
		log.Error("transfer broadcast but withdrawal not marked completed",
			zap.String("tx_hash", txHash), zap.Error(err))
		if err == nil {
			err = stderrors.New("withdrawal left processing unexpectedly")
		}
		return fmt.Errorf("mark completed: %w", err)
	}
	metrics.WithdrawalTransitions.WithLabelValues(w.Chain, string(entity.WithdrawalCompleted)).Inc()
	metrics.ExecutionDuration.WithLabelValues(w.Chain, "completed").Observe(time.Since(started).Seconds())

	// 7. 钱包累计值, 失败不回滚 completed
	wallet, err := e.wallets.RecordWithdrawal(ctx, w.Chain, amount, now)
	switch {
	case err != nil:
		log.Error("failed to update platform wallet counters", zap.String("chain", w.Chain), zap.Error(err))
	case wallet == nil:
		log.Error("platform wallet not found, counters not updated", zap.String("chain", w.Chain))
	}

	e.recordAudit(ctx, &entity.AuditLog{
		EntityType:  entity.EntityTreasuryWithdrawal,
		EntityID:    w.ID,
		Action:      entity.AuditWithdrawalExecuted,
		BeforeState: map[string]any{"status": string(entity.WithdrawalProcessing)},
		AfterState: map[string]any{
			"status":  string(entity.WithdrawalCompleted),
			"tx_hash": txHash,
		},
	})
	log.Info("withdrawal completed",
		zap.String("chain", w.Chain),
		zap.String("amount", w.TokenAmount),
		zap.String("tx_hash", txHash))
	return nil
}

func (e *Executor) fail(ctx context.Context, w *entity.TreasuryWithdrawal, started time.Time, code wrapErrors.Code, reason string) error {
	now := e.now()
	_, err := e.withdrawals.Transition(ctx, w.ID, entity.WithdrawalProcessing, entity.WithdrawalUpdate{
		Status:        entity.WithdrawalFailed,
		FailureReason: &reason,
	}, now)
	if err != nil {
		e.logger.Error("failed to mark withdrawal failed",
			zap.String("withdrawal_id", w.ID), zap.String("reason", reason), zap.Error(err))
	} else {
		metrics.WithdrawalTransitions.WithLabelValues(w.Chain, string(entity.WithdrawalFailed)).Inc()
	}
	metrics.ExecutionDuration.WithLabelValues(w.Chain, "failed").Observe(time.Since(started).Seconds())

	e.recordAudit(ctx, &entity.AuditLog{
		EntityType:  entity.EntityTreasuryWithdrawal,
		EntityID:    w.ID,
		Action:      entity.AuditWithdrawalFailed,
		BeforeState: map[string]any{"status": string(entity.WithdrawalProcessing)},
		AfterState: map[string]any{
			"status":         string(entity.WithdrawalFailed),
			"failure_reason": reason,
			"error_code":     string(code),
		},
	})
	e.logger.Warn("withdrawal failed",
		zap.String("withdrawal_id", w.ID),
		zap.String("chain", w.Chain),
		zap.String("code", string(code)),
		zap.String("reason", reason))
	return wrapErrors.New(code, "executor.execute", reason)
}

func (e *Executor) recordAudit(ctx context.Context, entry *entity.AuditLog) {
	var cancel context.CancelFunc
	if e.cfg.AuditTimeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, e.cfg.AuditTimeout)
	} else {
		ctx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	entry.ActorID = SystemActorID
	entry.ActorType = entity.ActorSystem
	if err := e.audit.Record(ctx, entry); err != nil {
		metrics.AuditFailures.Inc()
		e.logger.Error("audit record failed",
			zap.String("entity_id", entry.EntityID),
			zap.String("action", string(entry.Action)),
			zap.Error(err))
	}
}

// ActiveWallets lists the platform wallets the executor may sign for.
type ActiveWallets interface {
	ListActive(ctx context.Context) ([]*entity.PlatformWallet, error)
}

// VerifySigner checks that every active platform wallet is controlled by the
// signing key. Balance checks run against these addresses, so a mismatch means
// funds would leave a wallet that was never validated.
func VerifySigner(ctx context.Context, wallets ActiveWallets, signer string) error {
	if signer == "" {
		return wrapErrors.New(wrapErrors.InvalidRequest, "executor.verify_signer", "signer address is empty")
	}
	active, err := wallets.ListActive(ctx)
	if err != nil {
		return fmt.Errorf("list active wallets: %w", err)
	}
	for _, pw := range active {
		if !strings.EqualFold(pw.WalletAddress, signer) {
			return wrapErrors.Newf(wrapErrors.InvalidRequest, "executor.verify_signer",
				"platform wallet %s on %s is not controlled by signer %s", pw.WalletAddress, pw.Chain, signer)
		}
	}
	return nil
}
