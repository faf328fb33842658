package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	wrapErrors "github.com/linlinbupt123-crypto/treasury_service/errors"
)

func statusOf(code wrapErrors.Code) int {
	switch code {
	case wrapErrors.NotFound:
		return http.StatusNotFound
	case wrapErrors.InvalidRequest:
		return http.StatusBadRequest
	case wrapErrors.Conflict, wrapErrors.InvalidState:
		return http.StatusConflict
	case wrapErrors.Forbidden:
		return http.StatusForbidden
	}
	if code.External() {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

// respondError writes err with the status of its code. Internal errors are
// logged and masked.
func (h *TreasuryHandler) respondError(c *gin.Context, err error) {
	code := wrapErrors.CodeOf(err)
	status := statusOf(code)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		c.JSON(status, gin.H{"code": "INTERNAL", "error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"code": string(code), "error": err.Error()})
}

func badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, gin.H{"code": string(wrapErrors.InvalidRequest), "error": err.Error()})
}
