package controllers

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/pos-integrity/middlewares"
	"github.com/yeremiapane/pos-integrity/utils"
)

// paramID reads a positive numeric path parameter, answering 400 otherwise.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("invalid %s %q", name, c.Param(name)))
		return 0, false
	}
	return uint(id), true
}

// tenantAllowed rejects requests for another tenant than the one in the
// token. Tokens without a tenant are not scoped.
func tenantAllowed(c *gin.Context, tenantID uint) bool {
	scoped := c.GetUint(middlewares.CtxTenantID)
	if scoped != 0 && scoped != tenantID {
		utils.RespondError(c, http.StatusForbidden, errors.New("tenant not accessible with this token"))
		return false
	}
	return true
}
