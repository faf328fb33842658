package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter mounts the treasury routes under /api/v1/treasury plus
// /healthz and /metrics.
func NewRouter(h *TreasuryHandler, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), accessLog(logger))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	g := r.Group("/api/v1/treasury", RequireAdmin())
	super := h.superAdmins.RequireSuperAdmin()

	g.GET("/wallets", h.GetWallets)

	g.GET("/whitelist", super, h.ListWhitelist)
	g.POST("/whitelist", super, h.AddWhitelist)
	g.DELETE("/whitelist/:id", super, h.RemoveWhitelist)

	g.POST("/withdrawals", super, h.RequestWithdrawal)
	g.POST("/withdrawals/:id/approve", super, h.ApproveWithdrawal)
	g.POST("/withdrawals/:id/reject", super, h.RejectWithdrawal)
	g.GET("/withdrawals", h.ListWithdrawals)
	g.GET("/withdrawals/:id", h.GetWithdrawal)

	return r
}

func accessLog(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("admin_id", c.GetString(ctxAdminID)),
			zap.Duration("latency", time.Since(start)))
	}
}
