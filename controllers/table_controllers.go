package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

type TableController struct {
	DB      *gorm.DB
	Service *services.PosService
}

func NewTableController(db *gorm.DB, svc *services.PosService) *TableController {
	return &TableController{DB: db, Service: svc}
}

// CreateTable -> adds a free table with a label unique in its tenant
func (tc *TableController) CreateTable(c *gin.Context) {
	var req services.TableInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !tenantAllowed(c, req.TenantID) {
		return
	}

	table, err := tc.Service.CreateTable(c.Request.Context(), req)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}

	utils.InfoLogger.Infof("New table created: %d (label=%d, tenant=%d)", table.ID, table.Label, table.TenantID)
	utils.RespondJSON(c, http.StatusCreated, "Table created successfully", table)
}

// UpdateTable -> changes label or status
func (tc *TableController) UpdateTable(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.TablePatch
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !tc.tableAllowed(c, id) {
		return
	}

	table, err := tc.Service.UpdateTable(c.Request.Context(), id, req)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table updated", table)
}

func (tc *TableController) tableAllowed(c *gin.Context, id uint) bool {
	var table models.Table
	if err := tc.DB.WithContext(c.Request.Context()).Select("id", "tenant_id").First(&table, id).Error; err != nil {
		// not found is answered by the service
		return true
	}
	return tenantAllowed(c, table.TenantID)
}
