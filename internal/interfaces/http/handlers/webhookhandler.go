package handlers

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"

	billingUsecases "selah/internal/application/billing/usecases"
	"selah/internal/infrastructure/provider/razorpay"
	"selah/internal/shared/logger"
	"selah/internal/shared/utils"
)

// WebhookHandler receives provider webhook deliveries. Signature
// verification happens here on the raw body, before any parsing; the
// canonical event then runs through the processing pipeline. The handler
// itself never calls the provider, so the response stays fast and the
// provider's retry schedule governs redelivery.
type WebhookHandler struct {
	processUC     *billingUsecases.ProcessWebhookEventUseCase
	webhookSecret string
	logger        logger.Interface
}

func NewWebhookHandler(
	processUC *billingUsecases.ProcessWebhookEventUseCase,
	webhookSecret string,
	logger logger.Interface,
) *WebhookHandler {
	return &WebhookHandler{
		processUC:     processUC,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// HandleRazorpay processes a Razorpay webhook delivery.
func (h *WebhookHandler) HandleRazorpay(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	signature := c.GetHeader("X-Razorpay-Signature")
	if err := razorpay.VerifySignature(body, signature, h.webhookSecret); err != nil {
		h.logger.Warnw("webhook signature verification failed",
			"client_ip", c.ClientIP(), "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	eventID := c.GetHeader("X-Razorpay-Event-Id")
	event, err := razorpay.ParseWebhook(body, eventID)
	if err != nil {
		// Event types we do not track are acknowledged so the provider
		// stops redelivering them.
		if stderrors.Is(err, razorpay.ErrUnsupportedEvent) {
			utils.SuccessResponse(c, http.StatusOK, "event ignored", nil)
			return
		}
		h.logger.Errorw("failed to parse webhook payload", "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	if err := h.processUC.Execute(c.Request.Context(), event); err != nil {
		// Unknown subscription means our row is not committed yet; a non-2xx
		// makes Razorpay redeliver after the local create lands.
		h.logger.Errorw("webhook processing failed",
			"event_type", event.Type,
			"provider_subscription_id", event.ProviderSubscriptionID,
			"error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "webhook processed", nil)
}
