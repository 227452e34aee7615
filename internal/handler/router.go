package handler

import (
	"gamemarket/internal/service"

	"github.com/gin-gonic/gin"
)

// SetupRouter 配置路由
func SetupRouter(wallets *service.WalletService, orders *service.OrderService) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(RecoveryMiddleware())
	r.Use(LoggerMiddleware())
	r.Use(CORSMiddleware())

	h := NewHandler(wallets, orders)

	api := r.Group("/api/v1")
	{
		wallet := api.Group("/wallet")
		{
			wallet.GET("", h.GetWallet)
			wallet.GET("/balance", h.GetBalance)
			wallet.GET("/transactions", h.ListTransactions)
			wallet.GET("/reconcile", h.Reconcile)
			wallet.POST("/recharge", h.Recharge)
			wallet.POST("/consume", h.Consume)
			wallet.POST("/transfer", h.Transfer)
			wallet.GET("/transfer", h.GetTransfer)
			wallet.POST("/freeze", h.FreezeWallet)
			wallet.POST("/unfreeze", h.UnfreezeWallet)
		}

		order := api.Group("/order")
		{
			order.POST("/create", h.CreateOrder)
			order.GET("/status", h.GetOrderStatus)
			order.GET("/detail", h.GetOrder)
			order.GET("/list", h.ListOrders)
			order.POST("/pay", h.PayOrder)
			order.POST("/cancel", h.CancelOrder)
			order.POST("/refund", h.RefundOrder)
		}
	}

	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	return r
}
