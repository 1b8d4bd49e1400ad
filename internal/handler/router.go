package handler

import (
	"contentpay/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(svc *service.Services) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(RequestIDMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(svc)

	api := r.Group("/api/v1")
	{
		wallet := api.Group("/wallet")
		{
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/ledger", h.ListLedger)
		}

		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/cancel", h.CancelOrder)
			order.POST("/ship", h.ShipOrder)
			order.POST("/receipt", h.ConfirmReceipt)
		}

		pay := api.Group("/pay")
		{
			pay.POST("/confirm", h.ConfirmPayment)
			pay.POST("/callback", h.PayCallback)
		}

		refund := api.Group("/refund")
		{
			refund.POST("/execute", h.RefundOrder)
		}

		content := api.Group("/content")
		{
			content.GET("/access", h.CheckAccess)
			content.GET("/open", h.OpenContent)
			content.GET("/payment", h.GetContentPayment)
			content.POST("/payment", h.SaveContentPayment)
			content.GET("/purchases", h.ListPurchases)
		}

		api.GET("/vip/status", h.GetVipStatus)
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
