package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

type OrderController struct {
	DB      *gorm.DB
	Service *services.PosService
}

func NewOrderController(db *gorm.DB, svc *services.PosService) *OrderController {
	return &OrderController{DB: db, Service: svc}
}

// CreateOrder -> opens an order on a table
func (oc *OrderController) CreateOrder(c *gin.Context) {
	var req services.OrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !tenantAllowed(c, req.TenantID) {
		return
	}

	order, err := oc.Service.CreateOrder(c.Request.Context(), req)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}

	utils.InfoLogger.Infof("Order %d opened on table %d", order.ID, order.TableID)
	utils.RespondJSON(c, http.StatusCreated, "Order created successfully", order)
}

// AddLine -> sells a product on an open order
func (oc *OrderController) AddLine(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.LineInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !oc.orderAllowed(c, id) {
		return
	}

	res, err := oc.Service.AddOrderLine(c.Request.Context(), id, req)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Order line added", res)
}

// CloseOrder -> settles (paid) or cancels an order
func (oc *OrderController) CloseOrder(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !oc.orderAllowed(c, id) {
		return
	}

	res, err := oc.Service.CloseOrder(c.Request.Context(), id, req.Status)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}

	utils.InfoLogger.Infof("Order %d closed as %s", res.Order.ID, res.Order.Status)
	utils.RespondJSON(c, http.StatusOK, "Order closed", res)
}

func (oc *OrderController) orderAllowed(c *gin.Context, id uint) bool {
	var order models.Order
	if err := oc.DB.WithContext(c.Request.Context()).Select("id", "tenant_id").First(&order, id).Error; err != nil {
		return true
	}
	return tenantAllowed(c, order.TenantID)
}
