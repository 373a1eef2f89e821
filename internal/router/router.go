package router

import (
	"net/http"
	"slices"
	"time"

	"dukasell/internal/app"
	"dukasell/internal/handler"
	"dukasell/internal/middleware"
	"dukasell/internal/ws"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(a *app.App, limiter *middleware.RateLimiter) *gin.Engine {
	cfg := a.Config
	if !cfg.IsDevelopment() {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(a.Log))
	r.Use(middleware.Metrics())
	r.Use(corsMiddleware(cfg.Server.AllowedOrigins))
	if limiter != nil {
		r.Use(middleware.RateLimit(limiter))
	}

	// Handlers
	authHandler := handler.NewAuthHandler(a.Svc.Auth, a.Svc.Google, handler.NewGoogleOAuth(cfg.OAuth), a.Repos.AuditLogs, a.Log)
	creditsHandler := handler.NewCreditsHandler(a.Svc.Credits, a.Svc.Payments, a.Svc.Status)
	webhookHandler := handler.NewWebhookHandler(a.Svc.Reconciler, a.Repos.AuditLogs, cfg.ClickPesa.WebhookSecret, a.Log)
	notificationHandler := handler.NewNotificationHandler(a.Svc.Notifications)
	adminHandler := handler.NewAdminHandler(a.Repos.Admins, a.Repos.AuditLogs, a.Svc.Auth, a.Svc.Credits, a.Svc.Payouts, a.Svc.Status, a.Log)

	authMw := middleware.AuthRequired(&cfg.JWT)
	userMw := middleware.UserRequired()

	r.GET("/healthz", func(c *gin.Context) {
		sqlDB, err := a.DB.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": "database"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/ws/credits", ws.UpgradeCreditsWS(&cfg.JWT, a.Hub, a.Svc.Credits, a.Log))
	r.POST("/webhook/clickpesa", webhookHandler.ClickPesa)

	api := r.Group("/api/v1")
	{
		api.POST("/webhooks/clickpesa", webhookHandler.ClickPesa)

		authGroup := api.Group("/auth")
		{
			authGroup.POST("/google", authHandler.Google)
			authGroup.GET("/google/redirect", authHandler.Redirect)
			authGroup.GET("/google/callback", authHandler.Callback)
			authGroup.GET("/me", authMw, userMw, authHandler.Me)
			authGroup.PUT("/fcm-token", authMw, userMw, authHandler.SetFCMToken)
		}

		credits := api.Group("/credits")
		credits.Use(authMw, userMw)
		{
			credits.GET("/balance", creditsHandler.Balance)
			credits.GET("/packages", creditsHandler.Packages)
			credits.POST("/deduct", creditsHandler.Deduct)
			credits.POST("/create-payment", creditsHandler.CreatePayment)
			credits.GET("/transactions", creditsHandler.Transactions)
			credits.POST("/save-bank-details", creditsHandler.SaveBankDetails)
			credits.GET("/bank-details", creditsHandler.BankDetails)
			credits.GET("/exchange-rate", creditsHandler.ExchangeRate)
			credits.POST("/confirm-payment", creditsHandler.ConfirmPayment)
			credits.POST("/payments/:orderReference/refresh", creditsHandler.RefreshPayment)
		}

		notifications := api.Group("/notifications")
		notifications.Use(authMw, userMw)
		{
			notifications.GET("", notificationHandler.List)
			notifications.PUT("/:id/read", notificationHandler.MarkRead)
		}

		api.POST("/admin/login", adminHandler.Login)
		admin := api.Group("/admin")
		admin.Use(authMw, middleware.AdminRequired())
		{
			admin.GET("/me", adminHandler.Me)
			admin.GET("/dashboard", adminHandler.Dashboard)
			admin.POST("/customers/:id/credits", adminHandler.AddCustomerCredits)
			admin.GET("/clickpesa-balance", adminHandler.ClickPesaBalance)
			admin.POST("/clickpesa-payout", adminHandler.ClickPesaPayout)
			admin.POST("/orders/:orderReference/resolve", adminHandler.ResolveOrder)
		}
	}

	return r
}

func corsMiddleware(origins []string) gin.HandlerFunc {
	cc := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS", "PATCH"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Authorization", "Accept", "X-Requested-With"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cc.AllowAllOrigins = true
	} else {
		cc.AllowOrigins = origins
		cc.AllowCredentials = true
	}
	return cors.New(cc)
}
