package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"donation-backend/internal/app"
	"donation-backend/internal/middleware"
)

// Setup builds the HTTP routing tree
func Setup(container *app.ServiceContainer) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(middleware.CORS())

	metaHandler := container.MetaHandler()
	intentHandler := container.IntentHandler()
	campaignHandler := container.CampaignHandler()
	wsHandler := container.WSHandler()
	adminHandler := container.AdminHandler()

	r.GET("/health", metaHandler.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	{
		v1.GET("/networks", metaHandler.Networks)

		v1.POST("/intents", intentHandler.Create)
		v1.GET("/intents/:id", intentHandler.Get)
		v1.POST("/intents/:id/verify", intentHandler.Verify)
		v1.GET("/intents/:id/ws", wsHandler.IntentStatus)

		v1.GET("/campaigns", campaignHandler.List)
		v1.GET("/campaigns/:id", campaignHandler.Get)
		v1.GET("/campaigns/:id/donations", campaignHandler.Donations)

		v1.GET("/donations/:id", metaHandler.Donation)

		admin := v1.Group("/admin")
		admin.Use(middleware.AdminAuth())
		{
			admin.POST("/campaigns", campaignHandler.Create)
			admin.PATCH("/campaigns/:id/active", campaignHandler.SetActive)
			admin.POST("/sweep", adminHandler.Sweep)
			admin.POST("/prices/refresh", adminHandler.RefreshPrices)
			admin.GET("/intents", adminHandler.ListIntents)
		}
	}

	return r
}
