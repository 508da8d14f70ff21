package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yeremiapane/pos-integrity/config"
	"github.com/yeremiapane/pos-integrity/controllers"
	"github.com/yeremiapane/pos-integrity/grouping"
	"github.com/yeremiapane/pos-integrity/kds"
	"github.com/yeremiapane/pos-integrity/middlewares"
	"github.com/yeremiapane/pos-integrity/services"
	"github.com/yeremiapane/pos-integrity/utils"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// Deps are the wired services the HTTP surface exposes.
type Deps struct {
	DB             *gorm.DB
	Pos            *services.PosService
	Groups         *grouping.Manager
	Reconciliation *services.ReconciliationService
	Hub            *kds.Hub
	Gatherer       prometheus.Gatherer
	HTTP           config.HTTPConfig
	Reconcile      config.ReconcileConfig
	Production     bool
}

func SetupRouter(d Deps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middlewares.LoggerMiddleware())
	r.Use(middlewares.SecurityHeaders(d.Production))
	r.Use(middlewares.CORSMiddlewares(d.HTTP.CORSAllowOrigins))
	if d.HTTP.RateLimitRPS > 0 {
		r.Use(middlewares.NewRateLimiter(rate.Limit(d.HTTP.RateLimitRPS), d.HTTP.RateLimitBurst).RateLimit())
	}
	if err := r.SetTrustedProxies(d.HTTP.TrustedProxies); err != nil {
		utils.ErrorLogger.Errorf("Invalid trusted proxies %v: %v", d.HTTP.TrustedProxies, err)
	}

	r.GET("/ping", func(c *gin.Context) {
		utils.RespondJSON(c, http.StatusOK, "pong", nil)
	})
	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}

	tableCtrl := controllers.NewTableController(d.DB, d.Pos)
	productCtrl := controllers.NewProductController(d.DB, d.Pos)
	orderCtrl := controllers.NewOrderController(d.DB, d.Pos)
	groupCtrl := controllers.NewGroupController(d.Groups)
	integrityCtrl := controllers.NewIntegrityController(d.Reconciliation)
	kdsCtrl := controllers.NewKDSController(d.Hub, d.HTTP.CORSAllowOrigins)

	r.GET("/ws", middlewares.WebSocketAuthMiddleware(), kdsCtrl.Handle)

	admin := r.Group("/admin", middlewares.AuthMiddleware(), middlewares.AdminOnly())
	{
		integrity := admin.Group("/integrity")
		trigger := middlewares.NewStrictRateLimiter(d.Reconcile.TriggerPerMinute)

		integrity.GET("/checks", integrityCtrl.ListChecks)
		integrity.POST("/run", trigger, integrityCtrl.RunAll)
		integrity.POST("/checks/:name", trigger, integrityCtrl.RunCheck)
		integrity.GET("/runs", integrityCtrl.ListRuns)
		integrity.GET("/runs/:run_id", integrityCtrl.GetRun)
	}

	pos := r.Group("/pos", middlewares.AuthMiddleware(), middlewares.StaffOrAdmin())
	{
		pos.POST("/tables", tableCtrl.CreateTable)
		pos.PATCH("/tables/:id", tableCtrl.UpdateTable)
		pos.GET("/tables/:id/group", groupCtrl.GroupForTable)

		pos.POST("/products", productCtrl.CreateProduct)
		pos.PATCH("/products/:id", productCtrl.UpdateProduct)

		pos.POST("/orders", orderCtrl.CreateOrder)
		pos.POST("/orders/:id/lines", orderCtrl.AddLine)
		pos.POST("/orders/:id/close", orderCtrl.CloseOrder)

		pos.POST("/groups", groupCtrl.CreateGroup)
		pos.GET("/groups", groupCtrl.ActiveGroups)
		pos.GET("/groups/:id", groupCtrl.GetGroup)
		pos.POST("/groups/:id/tables", groupCtrl.AddTable)
		pos.DELETE("/groups/:id/tables/:table_id", groupCtrl.RemoveTable)
		pos.POST("/groups/:id/close", groupCtrl.CloseGroup)
		pos.POST("/groups/:id/dissolve", groupCtrl.DissolveGroup)
		pos.GET("/groups/:id/prebill", groupCtrl.PreBill)
		pos.GET("/groups/:id/prebill.pdf", groupCtrl.PreBillPDF)
	}

	return r
}
