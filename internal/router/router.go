package router

import (
	"net/http"
	"time"

	"nexuspay/config"
	"nexuspay/internal/handler"
	"nexuspay/internal/middleware"
	"nexuspay/internal/repository"
	"nexuspay/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func Setup(cfg *config.Config, db *gorm.DB, stripeClient stripeapi.Client) *gin.Engine {
	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	// Stripe expects 405 on anything that is not POST or OPTIONS.
	r.HandleMethodNotAllowed = true

	// Repositories
	paymentRepo := repository.NewPaymentRepository(db)
	submissionRepo := repository.NewSubmissionRepository(db)
	eventRepo := repository.NewWebhookEventRepository(db)
	auditRepo := repository.NewAuditLogRepository(db)

	// Handlers
	webhookHandler := handler.NewStripeWebhookHandler(cfg, paymentRepo, submissionRepo, eventRepo, auditRepo, stripeClient)
	submissionHandler := handler.NewSubmissionHandler(submissionRepo)
	checkoutHandler := handler.NewCheckoutHandler(cfg, submissionRepo, paymentRepo, stripeClient)
	paymentHandler := handler.NewPaymentHandler(paymentRepo)
	reconHandler := handler.NewReconciliationHandler(submissionRepo, auditRepo)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")

	// Webhooks take no rate limiting; throttling Stripe's retries would only
	// delay reconciliation.
	webhooks := api.Group("/webhooks")
	{
		webhooks.POST("/stripe", webhookHandler.Handle)
		webhooks.OPTIONS("/stripe", webhookHandler.Options)
	}

	public := api.Group("", middleware.RateLimit(middleware.NewInMemoryRateLimiter(100, time.Minute)))
	{
		public.POST("/submissions", submissionHandler.Create)
		public.GET("/submissions/:id", submissionHandler.Get)
		public.POST("/checkout", checkoutHandler.Create)
		public.GET("/payments/session/:sessionID", paymentHandler.GetBySession)
	}

	admin := api.Group("/admin", middleware.AdminToken(cfg.Admin.APIToken))
	{
		admin.GET("/reconciliation", reconHandler.Report)
	}

	return r
}
