package controllers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/pos-integrity/grouping"
	"github.com/yeremiapane/pos-integrity/middlewares"
	"github.com/yeremiapane/pos-integrity/utils"
)

type GroupController struct {
	Manager *grouping.Manager
}

func NewGroupController(m *grouping.Manager) *GroupController {
	return &GroupController{Manager: m}
}

// CreateGroup -> merges free tables into one bill. The caller is the
// responsible staff member unless staff_id is given.
func (gc *GroupController) CreateGroup(c *gin.Context) {
	var req grouping.CreateGroupInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !tenantAllowed(c, req.TenantID) {
		return
	}
	if req.StaffID == 0 {
		req.StaffID = c.GetUint(middlewares.CtxUserID)
	}

	group, err := gc.Manager.CreateGroup(c.Request.Context(), req)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}

	details, err := gc.Manager.GetGroup(c.Request.Context(), group.ID)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Table group created", details)
}

// AddTable -> adds one free table to an open group
func (gc *GroupController) AddTable(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		TableID uint `json:"table_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !gc.groupAllowed(c, groupID) {
		return
	}

	if err := gc.Manager.AddTable(c.Request.Context(), groupID, req.TableID); err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	gc.respondGroup(c, groupID, "Table added to group")
}

// RemoveTable -> takes one table out of an open group
func (gc *GroupController) RemoveTable(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	tableID, ok := paramID(c, "table_id")
	if !ok {
		return
	}
	if !gc.groupAllowed(c, groupID) {
		return
	}

	if err := gc.Manager.RemoveTable(c.Request.Context(), groupID, tableID); err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	gc.respondGroup(c, groupID, "Table removed from group")
}

// CloseGroup -> closes a group after its bill was settled
func (gc *GroupController) CloseGroup(c *gin.Context) {
	gc.close(c, gc.Manager.CloseGroup, "Table group closed")
}

// DissolveGroup -> undoes a merge without settling
func (gc *GroupController) DissolveGroup(c *gin.Context) {
	gc.close(c, gc.Manager.DissolveGroup, "Table group dissolved")
}

func (gc *GroupController) close(c *gin.Context, op func(ctx context.Context, groupID uint) error, message string) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	if !gc.groupAllowed(c, groupID) {
		return
	}

	if err := op(c.Request.Context(), groupID); err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	gc.respondGroup(c, groupID, message)
}

// GetGroup -> group with members and accumulated total
func (gc *GroupController) GetGroup(c *gin.Context) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return
	}
	details, err := gc.Manager.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	if !tenantAllowed(c, details.TenantID) {
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table group", details)
}

// ActiveGroups -> open groups of a tenant
func (gc *GroupController) ActiveGroups(c *gin.Context) {
	tenantID, err := strconv.ParseUint(c.Query("tenant_id"), 10, 64)
	if err != nil || tenantID == 0 {
		utils.RespondError(c, http.StatusBadRequest, fmt.Errorf("tenant_id query parameter is required"))
		return
	}
	if !tenantAllowed(c, uint(tenantID)) {
		return
	}

	groups, err := gc.Manager.ActiveGroups(c.Request.Context(), uint(tenantID))
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "List of active table groups", groups)
}

// GroupForTable -> the open group a table belongs to
func (gc *GroupController) GroupForTable(c *gin.Context) {
	tableID, ok := paramID(c, "id")
	if !ok {
		return
	}
	details, err := gc.Manager.GroupForTable(c.Request.Context(), tableID)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	if !tenantAllowed(c, details.TenantID) {
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Table group", details)
}

// PreBill -> consolidated pre-bill as JSON
func (gc *GroupController) PreBill(c *gin.Context) {
	bill, ok := gc.preBill(c)
	if !ok {
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Consolidated pre-bill", bill)
}

// PreBillPDF -> consolidated pre-bill as a printable document
func (gc *GroupController) PreBillPDF(c *gin.Context) {
	bill, ok := gc.preBill(c)
	if !ok {
		return
	}

	doc, err := grouping.RenderPreBillPDF(bill)
	if err != nil {
		utils.RespondError(c, http.StatusInternalServerError, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("inline; filename=prebill-group-%d.pdf", bill.GroupID))
	c.Data(http.StatusOK, "application/pdf", doc)
}

func (gc *GroupController) preBill(c *gin.Context) (*grouping.PreBill, bool) {
	groupID, ok := paramID(c, "id")
	if !ok {
		return nil, false
	}
	bill, err := gc.Manager.ConsolidatedPreBill(c.Request.Context(), groupID)
	if err != nil {
		utils.RespondServiceError(c, err)
		return nil, false
	}
	if !tenantAllowed(c, bill.TenantID) {
		return nil, false
	}
	return bill, true
}

// groupAllowed checks tenant scope before a group mutation.
func (gc *GroupController) groupAllowed(c *gin.Context, groupID uint) bool {
	details, err := gc.Manager.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		utils.RespondServiceError(c, err)
		return false
	}
	return tenantAllowed(c, details.TenantID)
}

func (gc *GroupController) respondGroup(c *gin.Context, groupID uint, message string) {
	details, err := gc.Manager.GetGroup(c.Request.Context(), groupID)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, message, details)
}
