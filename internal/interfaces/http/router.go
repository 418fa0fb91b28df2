package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"selah/internal/interfaces/http/handlers"
	"selah/internal/interfaces/http/middleware"
	"selah/internal/shared/logger"
)

// Router wires the HTTP surface: the Razorpay webhook endpoint, receipt
// submission, and the client-facing subscription routes.
type Router struct {
	engine              *gin.Engine
	webhookHandler      *handlers.WebhookHandler
	receiptHandler      *handlers.ReceiptHandler
	subscriptionHandler *handlers.SubscriptionHandler
}

func NewRouter(
	webhookHandler *handlers.WebhookHandler,
	receiptHandler *handlers.ReceiptHandler,
	subscriptionHandler *handlers.SubscriptionHandler,
	mode string,
	log logger.Interface,
) *Router {
	gin.SetMode(mode)

	engine := gin.New()
	engine.Use(middleware.Recovery())
	engine.Use(middleware.RequestLogger(log))

	r := &Router{
		engine:              engine,
		webhookHandler:      webhookHandler,
		receiptHandler:      receiptHandler,
		subscriptionHandler: subscriptionHandler,
	}
	r.setupRoutes()
	return r
}

func (r *Router) setupRoutes() {
	r.engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := r.engine.Group("/api/v1")

	// Webhooks authenticate by signature, not by user.
	v1.POST("/webhooks/razorpay", r.webhookHandler.HandleRazorpay)

	authenticated := v1.Group("")
	authenticated.Use(middleware.UserContext())
	{
		authenticated.POST("/receipts", r.receiptHandler.SubmitReceipt)

		subs := authenticated.Group("/subscriptions")
		subs.POST("", r.subscriptionHandler.Create)
		subs.GET("", r.subscriptionHandler.List)
		subs.GET("/:sid", r.subscriptionHandler.Get)
		subs.DELETE("/:sid", r.subscriptionHandler.Cancel)
		subs.POST("/:sid/resume", r.subscriptionHandler.Resume)
	}
}

// Engine exposes the underlying gin engine for the HTTP server.
func (r *Router) Engine() *gin.Engine {
	return r.engine
}
