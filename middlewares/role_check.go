package middlewares

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/pos-integrity/kds"
	"github.com/yeremiapane/pos-integrity/utils"
)

// RoleCheck lets through the given role; admin passes every check.
func RoleCheck(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get(CtxRole)
		if !exists {
			utils.RespondError(c, http.StatusUnauthorized, fmt.Errorf("unauthorized"))
			c.Abort()
			return
		}

		if userRole != role && userRole != kds.RoleAdmin {
			utils.RespondError(c, http.StatusForbidden, fmt.Errorf("%s access required", role))
			c.Abort()
			return
		}

		c.Next()
	}
}

func AdminOnly() gin.HandlerFunc {
	return RoleCheck(kds.RoleAdmin)
}

func StaffOrAdmin() gin.HandlerFunc {
	return RoleCheck(kds.RoleStaff)
}
