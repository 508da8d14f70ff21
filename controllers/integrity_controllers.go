package controllers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/pos-integrity/middlewares"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/utils"
)

const (
	defaultRunsLimit = 20
	maxRunsLimit     = 100
)

type IntegrityController struct {
	Service *services.ReconciliationService
}

func NewIntegrityController(svc *services.ReconciliationService) *IntegrityController {
	return &IntegrityController{Service: svc}
}

// RunAll -> runs every reconciliation check now
func (ic *IntegrityController) RunAll(c *gin.Context) {
	report, err := ic.Service.RunAll(c.Request.Context(), services.TriggerAdmin)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}

	utils.InfoLogger.Infof("Reconciliation %s triggered by user %d", report.RunID, c.GetUint(middlewares.CtxUserID))
	utils.RespondJSON(c, http.StatusOK, "Reconciliation finished", report)
}

// RunCheck -> runs a single check by name
func (ic *IntegrityController) RunCheck(c *gin.Context) {
	report, err := ic.Service.RunCheck(c.Request.Context(), services.TriggerAdmin, c.Param("name"))
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Check finished", report)
}

// ListChecks -> names of the known checks
func (ic *IntegrityController) ListChecks(c *gin.Context) {
	utils.RespondJSON(c, http.StatusOK, "List of checks", ic.Service.CheckNames())
}

// ListRuns -> recorded runs, newest first
func (ic *IntegrityController) ListRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunsLimit)))
	if err != nil || limit <= 0 {
		limit = defaultRunsLimit
	}
	if limit > maxRunsLimit {
		limit = maxRunsLimit
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	runs, total, err := ic.Service.ListRuns(c.Request.Context(), limit, offset)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of reconciliation runs", gin.H{
		"runs":   runs,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// GetRun -> the full report of one run
func (ic *IntegrityController) GetRun(c *gin.Context) {
	report, err := ic.Service.GetRun(c.Request.Context(), c.Param("run_id"))
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Reconciliation run", report)
}
