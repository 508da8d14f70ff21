package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yeremiapane/pos-integrity/models"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/utils"
	"gorm.io/gorm"
)

type ProductController struct {
	DB      *gorm.DB
	Service *services.PosService
}

func NewProductController(db *gorm.DB, svc *services.PosService) *ProductController {
	return &ProductController{DB: db, Service: svc}
}

func (pc *ProductController) CreateProduct(c *gin.Context) {
	var req services.ProductInput
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}
	if !tenantAllowed(c, req.TenantID) {
		return
	}

	product, err := pc.Service.CreateProduct(c.Request.Context(), req)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusCreated, "Product created successfully", product)
}

func (pc *ProductController) UpdateProduct(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req services.ProductPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondError(c, http.StatusBadRequest, err)
		return
	}

	var existing models.Product
	if err := pc.DB.WithContext(c.Request.Context()).Select("id", "tenant_id").First(&existing, id).Error; err == nil {
		if !tenantAllowed(c, existing.TenantID) {
			return
		}
	}

	product, err := pc.Service.UpdateProduct(c.Request.Context(), id, req)
	if err != nil {
		utils.RespondServiceError(c, err)
		return
	}
	utils.RespondJSON(c, http.StatusOK, "Product updated", product)
}
