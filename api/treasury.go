package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/linlinbupt123-crypto/treasury_service/entity"
	"github.com/linlinbupt123-crypto/treasury_service/request"
	"github.com/linlinbupt123-crypto/treasury_service/service"
)

type TreasuryService interface {
	GetWalletsWithBalances(ctx context.Context) (*service.WalletsOverview, error)
	AddWhitelistAddress(ctx context.Context, in service.AddWhitelistInput, actorID string) (*entity.WhitelistAddress, error)
	RemoveWhitelistAddress(ctx context.Context, id, actorID string) error
	ListWhitelist(ctx context.Context) ([]*entity.WhitelistAddress, error)
	RequestWithdrawal(ctx context.Context, req service.WithdrawalRequest, actorID string, approverCount int) (*entity.TreasuryWithdrawal, error)
	ApproveWithdrawal(ctx context.Context, id, actorID string) (*entity.TreasuryWithdrawal, error)
	RejectWithdrawal(ctx context.Context, id, actorID, reason string) (*entity.TreasuryWithdrawal, error)
	ListWithdrawals(ctx context.Context, f entity.WithdrawalFilter) ([]*entity.TreasuryWithdrawal, error)
	GetWithdrawal(ctx context.Context, id string) (*entity.TreasuryWithdrawal, error)
}

type TreasuryHandler struct {
	svc         TreasuryService
	superAdmins SuperAdmins
	logger      *zap.Logger
}

func NewTreasuryHandler(svc TreasuryService, superAdmins SuperAdmins, logger *zap.Logger) *TreasuryHandler {
	return &TreasuryHandler{svc: svc, superAdmins: superAdmins, logger: logger}
}

// GetWallets, platform wallets with live balances
func (h *TreasuryHandler) GetWallets(c *gin.Context) {
	overview, err := h.svc.GetWalletsWithBalances(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, overview)
}

func (h *TreasuryHandler) ListWhitelist(c *gin.Context) {
	entries, err := h.svc.ListWhitelist(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, entries)
}

func (h *TreasuryHandler) AddWhitelist(c *gin.Context) {
	var req request.AddWhitelistReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	entry, err := h.svc.AddWhitelistAddress(c.Request.Context(), service.AddWhitelistInput{
		Address:       req.Address,
		Label:         req.Label,
		AllowedChains: req.AllowedChains,
	}, c.GetString(ctxAdminID))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, entry)
}

func (h *TreasuryHandler) RemoveWhitelist(c *gin.Context) {
	if err := h.svc.RemoveWhitelistAddress(c.Request.Context(), c.Param("id"), c.GetString(ctxAdminID)); err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Address removed from whitelist"})
}

// RequestWithdrawal, approver count = configured super admins
func (h *TreasuryHandler) RequestWithdrawal(c *gin.Context) {
	var req request.RequestWithdrawalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	w, err := h.svc.RequestWithdrawal(c.Request.Context(), service.WithdrawalRequest{
		Chain:       req.Chain,
		ToAddress:   req.ToAddress,
		TokenAmount: req.TokenAmount,
		TokenSymbol: req.TokenSymbol,
		Reason:      req.Reason,
	}, c.GetString(ctxAdminID), h.superAdmins.Count())
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, w)
}

func (h *TreasuryHandler) ApproveWithdrawal(c *gin.Context) {
	w, err := h.svc.ApproveWithdrawal(c.Request.Context(), c.Param("id"), c.GetString(ctxAdminID))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *TreasuryHandler) RejectWithdrawal(c *gin.Context) {
	var req request.RejectWithdrawalReq
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	w, err := h.svc.RejectWithdrawal(c.Request.Context(), c.Param("id"), c.GetString(ctxAdminID), req.RejectionReason)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func (h *TreasuryHandler) ListWithdrawals(c *gin.Context) {
	var req request.WithdrawalFilterReq
	if err := c.ShouldBindQuery(&req); err != nil {
		badRequest(c, err)
		return
	}
	f, err := toFilter(req)
	if err != nil {
		badRequest(c, err)
		return
	}

	out, err := h.svc.ListWithdrawals(c.Request.Context(), f)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h *TreasuryHandler) GetWithdrawal(c *gin.Context) {
	w, err := h.svc.GetWithdrawal(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, w)
}

func toFilter(req request.WithdrawalFilterReq) (entity.WithdrawalFilter, error) {
	f := entity.WithdrawalFilter{
		Chain:     req.Chain,
		Status:    entity.WithdrawalStatus(req.Status),
		ToAddress: req.ToAddress,
	}
	if req.CreatedAfter != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedAfter)
		if err != nil {
			return f, fmt.Errorf("created_after: %w", err)
		}
		f.CreatedAfter = &t
	}
	if req.CreatedBefore != "" {
		t, err := time.Parse(time.RFC3339, req.CreatedBefore)
		if err != nil {
			return f, fmt.Errorf("created_before: %w", err)
		}
		f.CreatedBefore = &t
	}
	return f, nil
}
