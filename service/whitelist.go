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
)

const (
	minLabelLength = 5
	maxLabelLength = 100
)

type AddWhitelistInput struct {
	Address       string
	Label         string
	AllowedChains []string
}

// AddWhitelistAddress registers a destination. Its CreatedAt starts the timelock.
func (s *TreasuryService) AddWhitelistAddress(ctx context.Context, in AddWhitelistInput, actorID string) (*entity.WhitelistAddress, error) {
	const op = "whitelist.add"

	address, err := chain.NormalizeAddress(in.Address)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.InvalidRequest, op, err)
	}
	label := strings.TrimSpace(in.Label)
	if n := utf8.RuneCountInString(label); n < minLabelLength || n > maxLabelLength {
		return nil, wrapErrors.Newf(wrapErrors.InvalidRequest, op, "label must be %d-%d characters", minLabelLength, maxLabelLength)
	}
	chains, err := s.validateChains(in.AllowedChains)
	if err != nil {
		return nil, wrapErrors.WrapWithCode(wrapErrors.InvalidRequest, op, err)
	}

	existing, err := s.whitelist.GetActiveByAddress(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("%s: lookup: %w", op, err)
	}
	if existing != nil {
		return nil, wrapErrors.New(wrapErrors.Conflict, op, "address already whitelisted")
	}

	now := s.now()
	entry := &entity.WhitelistAddress{
		ID:            s.newID(),
		Address:       address,
		Label:         label,
		AllowedChains: chains,
		IsActive:      true,
		AddedByID:     actorID,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	// 并发添加同一地址时由部分唯一索引兜底, 返回 Conflict
	if err := s.whitelist.Create(ctx, entry); err != nil {
		if wrapErrors.Is(err, wrapErrors.Conflict) {
			return nil, wrapErrors.WrapWithCode(wrapErrors.Conflict, op, err)
		}
		return nil, fmt.Errorf("%s: create: %w", op, err)
	}

	s.recordAudit(ctx, &entity.AuditLog{
		EntityType: entity.EntityWhitelistAddress,
		EntityID:   entry.ID,
		Action:     entity.AuditWhitelistAdded,
		ActorID:    actorID,
		AfterState: map[string]any{
			"address":        entry.Address,
			"label":          entry.Label,
			"allowed_chains": entry.AllowedChains,
		},
	})
	s.logger.Info("whitelist address added",
		zap.String("id", entry.ID),
		zap.String("address", entry.Address),
		zap.Strings("chains", entry.AllowedChains),
		zap.String("actor", actorID))
	return entry, nil
}

func (s *TreasuryService) validateChains(in []string) ([]string, error) {
	if len(in) == 0 {
		return nil, fmt.Errorf("at least one chain is required")
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, c := range in {
		c = strings.ToLower(strings.TrimSpace(c))
		if _, ok := s.registry.ByName(c); !ok {
			return nil, fmt.Errorf("unsupported chain %q", c)
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}
	return out, nil
}

// RemoveWhitelistAddress deactivates an entry unless a withdrawal to its
// address is still waiting for approval.
//
// The pending check and the deactivation are two separate statements; a
// request created between them can still reach pending_approval against a
// just-removed address. Approval and execution do not recheck the whitelist.
func (s *TreasuryService) RemoveWhitelistAddress(ctx context.Context, id, actorID string) error {
	const op = "whitelist.remove"

	entry, err := s.whitelist.GetByID(ctx, id)
	if err != nil {
		return fmt.Errorf("%s: lookup: %w", op, err)
	}
	if entry == nil {
		return wrapErrors.New(wrapErrors.NotFound, op, "whitelist address not found")
	}
	if !entry.IsActive {
		return wrapErrors.New(wrapErrors.Conflict, op, "whitelist address already removed")
	}

	pending, err := s.withdrawals.ExistsByAddressAndStatus(ctx, entry.Address, entity.WithdrawalPendingApproval)
	if err != nil {
		return fmt.Errorf("%s: pending check: %w", op, err)
	}
	if pending {
		return wrapErrors.New(wrapErrors.Conflict, op, "cannot remove address with pending withdrawal")
	}

	removed, err := s.whitelist.Deactivate(ctx, id, actorID, s.now())
	if err != nil {
		return fmt.Errorf("%s: deactivate: %w", op, err)
	}
	if removed == nil {
		return wrapErrors.New(wrapErrors.Conflict, op, "whitelist address already removed")
	}

	s.recordAudit(ctx, &entity.AuditLog{
		EntityType:  entity.EntityWhitelistAddress,
		EntityID:    id,
		Action:      entity.AuditWhitelistRemoved,
		ActorID:     actorID,
		BeforeState: map[string]any{"address": entry.Address, "is_active": true},
		AfterState:  map[string]any{"address": entry.Address, "is_active": false},
	})
	s.logger.Info("whitelist address removed", zap.String("id", id), zap.String("actor", actorID))
	return nil
}

// ListWhitelist returns active entries, newest first.
func (s *TreasuryService) ListWhitelist(ctx context.Context) ([]*entity.WhitelistAddress, error) {
	out, err := s.whitelist.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("whitelist.list: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}
