package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	billingUsecases "selah/internal/application/billing/usecases"
	"selah/internal/shared/logger"
	"selah/internal/shared/utils"
)

type ReceiptHandler struct {
	submitReceiptUC *billingUsecases.SubmitReceiptUseCase
	logger          logger.Interface
}

func NewReceiptHandler(submitReceiptUC *billingUsecases.SubmitReceiptUseCase, logger logger.Interface) *ReceiptHandler {
	return &ReceiptHandler{submitReceiptUC: submitReceiptUC, logger: logger}
}

type SubmitReceiptRequest struct {
	Platform string `json:"platform" binding:"required,oneof=android ios"`
	Receipt  string `json:"receipt" binding:"required"`
}

type SubmitReceiptResponse struct {
	SubscriptionSID string `json:"subscription_sid"`
	Status          string `json:"status"`
	ProductID       string `json:"product_id"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	Trial           bool   `json:"trial"`
	IntroOffer      bool   `json:"intro_offer"`
}

// SubmitReceipt validates a store purchase receipt and reconciles the
// entitlement it proves.
func (h *ReceiptHandler) SubmitReceipt(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req SubmitReceiptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	result, err := h.submitReceiptUC.Execute(c.Request.Context(), billingUsecases.SubmitReceiptCommand{
		UserID:   userID.(uint),
		Platform: req.Platform,
		Receipt:  req.Receipt,
	})
	if err != nil {
		h.logger.Warnw("receipt submission failed",
			"user_id", userID, "platform", req.Platform, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "receipt accepted", SubmitReceiptResponse{
		SubscriptionSID: result.SubscriptionSID,
		Status:          string(result.Status),
		ProductID:       result.ProductID,
		ExpiresAt:       result.ExpiresAt,
		Trial:           result.Trial,
		IntroOffer:      result.IntroOffer,
	})
}
