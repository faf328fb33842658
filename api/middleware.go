package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

const (
	HeaderAdminID = "X-Admin-ID"

	ctxAdminID = "admin_id"
)

// RequireAdmin takes the acting admin from the X-Admin-ID header. Token
// verification happens at the gateway in front of this service.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderAdminID))
		if id == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"code": "UNAUTHORIZED", "error": "missing " + HeaderAdminID})
			return
		}
		c.Set(ctxAdminID, id)
		c.Next()
	}
}

// SuperAdmins is the configured set of admins allowed to move funds.
type SuperAdmins map[string]struct{}

func NewSuperAdmins(ids []string) SuperAdmins {
	s := make(SuperAdmins, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

func (s SuperAdmins) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Count is the approver count passed to withdrawal requests.
func (s SuperAdmins) Count() int {
	return len(s)
}

// RequireSuperAdmin must run after RequireAdmin.
func (s SuperAdmins) RequireSuperAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !s.Has(c.GetString(ctxAdminID)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"code": "FORBIDDEN", "error": "super admin required"})
			return
		}
		c.Next()
	}
}
