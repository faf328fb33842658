package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/chain"
	"github.com/linlinbupt123-crypto/treasury_service/entity"
	wrapErrors "github.com/linlinbupt123-crypto/treasury_service/errors"
	"github.com/linlinbupt123-crypto/treasury_service/metrics"
	"github.com/linlinbupt123-crypto/treasury_service/utils"
)

type WithdrawalRequest struct {
	Chain       string
	ToAddress   string
	TokenAmount string
	TokenSymbol string
	Reason      string
}

// RequestWithdrawal validates a withdrawal against the whitelist, the
// timelock and the live wallet balance, snapshots its USD value and stores it.
// With approverCount <= 1 the request is approved on creation and handed to
// the executor straight away.
//
// The balance check is advisory: nothing is reserved, so withdrawals approved
// later against the same wallet can overdraw it. The reserve and the human
// approval step bound that window.
func (s *TreasuryService) RequestWithdrawal(ctx context.Context, req WithdrawalRequest, actorID string, approverCount int) (*entity.TreasuryWithdrawal, error) {
	const op = "withdrawal.request"

	chainName := strings.ToLower(strings.TrimSpace(req.Chain))
	info, ok := s.registry.ByName(chainName)
	if !ok {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, op, "unsupported chain %q", req.Chain)
	}
	if !strings.EqualFold(strings.TrimSpace(req.TokenSymbol), info.TokenSymbol) {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, op, "token %q is not withdrawable on %s", req.TokenSymbol, chainName)
	}
	reason := strings.TrimSpace(req.Reason)
	if n := utf8.RuneCountInString(reason); n < s.opts.MinReasonLength || n > s.opts.MaxReasonLength {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, op, "reason must be %d-%d characters", s.opts.MinReasonLength, s.opts.MaxReasonLength)
	}
	amount, err := utils.ParseAmount(req.TokenAmount, info.TokenDecimals)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.InvalidRequest, op, err)
	}
	toAddress, err := chain.NormalizeAddress(req.ToAddress)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.InvalidRequest, op, err)
	}

	// 1. 白名单
	entry, err := s.whitelist.GetActiveByAddress(ctx, toAddress)
	if err != nil {
		return nil, fmt.Errorf("%s: whitelist lookup: %w", op, err)
	}
	if entry == nil {
		return nil, wrapErrors.New(wrapErrors.InvalidRequest, op, "address not in whitelist")
	}
	// 2. 链范围
	if !entry.AllowsChain(chainName) {
		return nil, wrapErrors.New(wrapErrors.InvalidRequest, op, "address not allowed for this chain")
	}
	// 3. timelock
	now := s.now()
	if !entry.TimelockElapsed(now, s.opts.Timelock) {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, op, "timelock not expired (%s required)", s.opts.Timelock)
	}

	// 4. 平台钱包
	wallet, err := s.wallets.GetActiveByChain(ctx, chainName)
	if err != nil {
		return nil, fmt.Errorf("%s: wallet lookup: %w", op, err)
	}
	if wallet == nil {
		return nil, wrapErrors.New(wrapErrors.NotFound, op, "platform wallet not found for chain")
	}

	// 5. 链上余额 - reserve
	balCtx, cancel := s.withTimeout(ctx, s.opts.BalanceTimeout)
	raw, err := s.balances.TokenBalance(balCtx, chainName, wallet.WalletAddress)
	cancel()
	if err != nil {
		metrics.BalanceFetchFailures.WithLabelValues(chainName).Inc()
		return nil, wrapErrors.WrapWithCode(wrapErrors.ExternalFailure, op+": balance", err)
	}
	live := utils.FromSmallestUnit(raw, info.TokenDecimals)
	available := live.Sub(s.opts.Reserve)
	if amount.GreaterThan(available) {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, op,
			"insufficient balance: requested %s, available %s after %s reserve", amount, available, s.opts.Reserve)
	}

	// 6. USD 快照
	rateCtx, cancel := s.withTimeout(ctx, s.opts.RateTimeout)
	usd, err := s.rates.ToUSD(rateCtx, info.TokenSymbol, amount)
	cancel()
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.ExternalFailure, op+": rate", err)
	}

	// 7. 初始状态
	w := &entity.TreasuryWithdrawal{
		ID:                         s.newID(),
		Chain:                      chainName,
		FromAddress:                wallet.WalletAddress,
		ToAddress:                  toAddress,
		TokenAmount:                amount.String(),
		TokenSymbol:                info.TokenSymbol,
		USDValueAtTime:             usd.StringFixed(utils.USDScale),
		Status:                     entity.WithdrawalPendingApproval,
		Reason:                     reason,
		RequestedByID:              actorID,
		ApprovedWhitelistAddresses: []string{entry.Address},
		CreatedAt:                  now,
		UpdatedAt:                  now,
	}
	if approverCount <= 1 {
		requester := actorID
		approvedAt := now
		w.Status = entity.WithdrawalApproved
		w.ApprovedByID = &requester
		w.ApprovedAt = &approvedAt
	}

	// 8. 持久化 + 审计
	if err := s.withdrawals.Create(ctx, w); err != nil {
		return nil, fmt.Errorf("%s: create: %w", op, err)
	}
	metrics.WithdrawalTransitions.WithLabelValues(w.Chain, string(w.Status)).Inc()

	s.recordAudit(ctx, &entity.AuditLog{
		EntityType: entity.EntityTreasuryWithdrawal,
		EntityID:   w.ID,
		Action:     entity.AuditWithdrawalRequested,
		ActorID:    actorID,
		AfterState: map[string]any{
			"chain":      w.Chain,
			"amount":     w.TokenAmount,
			"to_address": w.ToAddress,
			"status":     string(w.Status),
		},
	})
	s.logger.Info("withdrawal requested",
		zap.String("id", w.ID),
		zap.String("chain", w.Chain),
		zap.String("amount", w.TokenAmount),
		zap.String("to", w.ToAddress),
		zap.String("status", string(w.Status)),
		zap.String("actor", actorID))

	if w.Status == entity.WithdrawalApproved {
		s.handOff(ctx, w.ID)
	}
	return w, nil
}

// ApproveWithdrawal moves a pending withdrawal to approved and hands it to the
// executor. The requester can never approve their own request.
func (s *TreasuryService) ApproveWithdrawal(ctx context.Context, id, actorID string) (*entity.TreasuryWithdrawal, error) {
	const op = "withdrawal.approve"

	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: lookup: %w", op, err)
	}
	if w == nil {
		return nil, wrapErrors.New(wrapErrors.NotFound, op, "withdrawal not found")
	}
	if !w.Status.CanTransitionTo(entity.WithdrawalApproved) {
		return nil, wrapErrors.Newf(wrapErrors.InvalidState, op, "withdrawal is %s, not pending approval", w.Status)
	}
	if w.RequestedByID == actorID {
		return nil, wrapErrors.New(wrapErrors.Forbidden, op, "cannot approve own withdrawal request")
	}

	now := s.now()
	approver := actorID
	updated, err := s.withdrawals.Transition(ctx, id, entity.WithdrawalPendingApproval, entity.WithdrawalUpdate{
		Status:       entity.WithdrawalApproved,
		ApprovedByID: &approver,
		ApprovedAt:   &now,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("%s: transition: %w", op, err)
	}
	if updated == nil {
		return nil, wrapErrors.New(wrapErrors.InvalidState, op, "withdrawal is no longer pending approval")
	}
	metrics.WithdrawalTransitions.WithLabelValues(updated.Chain, string(updated.Status)).Inc()

	s.recordAudit(ctx, &entity.AuditLog{
		EntityType:  entity.EntityTreasuryWithdrawal,
		EntityID:    id,
		Action:      entity.AuditWithdrawalApproved,
		ActorID:     actorID,
		BeforeState: map[string]any{"status": string(entity.WithdrawalPendingApproval)},
		AfterState:  map[string]any{"status": string(entity.WithdrawalApproved), "approved_by_id": actorID},
	})
	s.logger.Info("withdrawal approved", zap.String("id", id), zap.String("actor", actorID))

	s.handOff(ctx, id)
	return updated, nil
}

// handOff enqueues the execution job after the approved status is committed.
// A failed enqueue is left to the sweeper, which re-enqueues approved
// withdrawals that have no job in flight.
func (s *TreasuryService) handOff(ctx context.Context, id string) {
	if err := s.queue.Enqueue(context.WithoutCancel(ctx), id); err != nil {
		metrics.EnqueueFailures.Inc()
		s.logger.Error("enqueue withdrawal failed, sweeper will retry",
			zap.String("id", id), zap.Error(err))
	}
}

// RejectWithdrawal closes a pending withdrawal. Any other status is refused.
func (s *TreasuryService) RejectWithdrawal(ctx context.Context, id, actorID, reason string) (*entity.TreasuryWithdrawal, error) {
	const op = "withdrawal.reject"

	reason = strings.TrimSpace(reason)
	if utf8.RuneCountInString(reason) < s.opts.MinRejectReasonLength {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, op, "rejection reason must be at least %d characters", s.opts.MinRejectReasonLength)
	}

	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("%s: lookup: %w", op, err)
	}
	if w == nil {
		return nil, wrapErrors.New(wrapErrors.NotFound, op, "withdrawal not found")
	}
	if !w.Status.CanTransitionTo(entity.WithdrawalRejected) {
		return nil, wrapErrors.Newf(wrapErrors.InvalidState, op, "withdrawal is %s, not pending approval", w.Status)
	}

	now := s.now()
	rejecter := actorID
	updated, err := s.withdrawals.Transition(ctx, id, entity.WithdrawalPendingApproval, entity.WithdrawalUpdate{
		Status:          entity.WithdrawalRejected,
		RejectedByID:    &rejecter,
		RejectionReason: &reason,
	}, now)
	if err != nil {
		return nil, fmt.Errorf("%s: transition: %w", op, err)
	}
	if updated == nil {
		return nil, wrapErrors.New(wrapErrors.InvalidState, op, "withdrawal is no longer pending approval")
	}
	metrics.WithdrawalTransitions.WithLabelValues(updated.Chain, string(updated.Status)).Inc()

	s.recordAudit(ctx, &entity.AuditLog{
		EntityType:  entity.EntityTreasuryWithdrawal,
		EntityID:    id,
		Action:      entity.AuditWithdrawalRejected,
		ActorID:     actorID,
		BeforeState: map[string]any{"status": string(entity.WithdrawalPendingApproval)},
		AfterState:  map[string]any{"status": string(entity.WithdrawalRejected), "rejection_reason": reason},
	})
	s.logger.Info("withdrawal rejected", zap.String("id", id), zap.String("actor", actorID))
	return updated, nil
}

// ListWithdrawals returns matching withdrawals, newest first.
func (s *TreasuryService) ListWithdrawals(ctx context.Context, f entity.WithdrawalFilter) ([]*entity.TreasuryWithdrawal, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, "withdrawal.list", "unknown status %q", f.Status)
	}
	if f.ToAddress != "" {
		addr, err := chain.NormalizeAddress(f.ToAddress)
		if err != nil {
			return nil, wrapErrors.WrapWithCode(wrapErrors.InvalidRequest, "withdrawal.list", err)
		}
		f.ToAddress = addr
	}
	out, err := s.withdrawals.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("withdrawal.list: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *TreasuryService) GetWithdrawal(ctx context.Context, id string) (*entity.TreasuryWithdrawal, error) {
	w, err := s.withdrawals.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("withdrawal.get: %w", err)
	}
	if w == nil {
		return nil, wrapErrors.New(wrapErrors.NotFound, "withdrawal.get", "withdrawal not found")
	}
	return w, nil
}
