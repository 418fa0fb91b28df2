package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	billingUsecases "selah/internal/application/billing/usecases"
	"selah/internal/shared/logger"
	"selah/internal/shared/utils"
)

type SubscriptionHandler struct {
	createUC *billingUsecases.CreateSubscriptionUseCase
	cancelUC *billingUsecases.CancelSubscriptionUseCase
	resumeUC *billingUsecases.ResumeSubscriptionUseCase
	getUC    *billingUsecases.GetSubscriptionUseCase
	listUC   *billingUsecases.ListSubscriptionsUseCase
	logger   logger.Interface
}

func NewSubscriptionHandler(
	createUC *billingUsecases.CreateSubscriptionUseCase,
	cancelUC *billingUsecases.CancelSubscriptionUseCase,
	resumeUC *billingUsecases.ResumeSubscriptionUseCase,
	getUC *billingUsecases.GetSubscriptionUseCase,
	listUC *billingUsecases.ListSubscriptionsUseCase,
	logger logger.Interface,
) *SubscriptionHandler {
	return &SubscriptionHandler{
		createUC: createUC,
		cancelUC: cancelUC,
		resumeUC: resumeUC,
		getUC:    getUC,
		listUC:   listUC,
		logger:   logger,
	}
}

type CreateSubscriptionRequest struct {
	PlanID     string `json:"plan_id" binding:"required"`
	Amount     int64  `json:"amount" binding:"required,gt=0"`
	Currency   string `json:"currency" binding:"required,len=3"`
	TotalCount *int   `json:"total_count"`
}

type CreateSubscriptionResponse struct {
	SubscriptionSID  string `json:"subscription_sid"`
	AuthorizationURL string `json:"authorization_url"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
}

// Create opens a hosted-checkout subscription and returns the URL the
// client completes payment on.
func (h *SubscriptionHandler) Create(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
		return
	}

	result, err := h.createUC.Execute(c.Request.Context(), billingUsecases.CreateSubscriptionCommand{
		UserID:     userID.(uint),
		PlanID:     req.PlanID,
		Amount:     req.Amount,
		Currency:   req.Currency,
		TotalCount: req.TotalCount,
	})
	if err != nil {
		h.logger.Errorw("subscription creation failed",
			"user_id", userID, "plan_id", req.PlanID, "error", err)
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.CreatedResponse(c, CreateSubscriptionResponse{
		SubscriptionSID:  result.SubscriptionSID,
		AuthorizationURL: result.AuthorizationURL,
		Amount:           result.Amount,
		Currency:         result.Currency,
		Status:           string(result.Status),
	}, "subscription created")
}

type CancelSubscriptionRequest struct {
	CancelAtCycleEnd bool   `json:"cancel_at_cycle_end"`
	Reason           string `json:"reason" binding:"max=500"`
}

type CancelSubscriptionResponse struct {
	SubscriptionSID string     `json:"subscription_sid"`
	Status          string     `json:"status"`
	CancelledAt     *time.Time `json:"cancelled_at,omitempty"`
	ActiveUntil     *time.Time `json:"active_until,omitempty"`
}

// Cancel cancels a subscription immediately or at cycle end.
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	var req CancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.ErrorResponse(c, http.StatusBadRequest, "invalid request: "+err.Error())
			return
		}
	}

	result, err := h.cancelUC.Execute(c.Request.Context(), billingUsecases.CancelSubscriptionCommand{
		UserID:           userID.(uint),
		SubscriptionSID:  c.Param("sid"),
		CancelAtCycleEnd: req.CancelAtCycleEnd,
		Reason:           req.Reason,
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "subscription cancelled", CancelSubscriptionResponse{
		SubscriptionSID: result.SubscriptionSID,
		Status:          string(result.Status),
		CancelledAt:     result.CancelledAt,
		ActiveUntil:     result.ActiveUntil,
	})
}

// Resume reverts a scheduled cancellation or unpauses billing.
func (h *SubscriptionHandler) Resume(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	result, err := h.resumeUC.Execute(c.Request.Context(), billingUsecases.ResumeSubscriptionCommand{
		UserID:          userID.(uint),
		SubscriptionSID: c.Param("sid"),
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "subscription resumed", gin.H{
		"subscription_sid": result.SubscriptionSID,
		"status":           string(result.Status),
	})
}

// Get returns one subscription with its entitlement flags.
func (h *SubscriptionHandler) Get(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	result, err := h.getUC.Execute(c.Request.Context(), billingUsecases.GetSubscriptionQuery{
		UserID:          userID.(uint),
		SubscriptionSID: c.Param("sid"),
	})
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", result)
}

// List returns the user's subscriptions, newest first.
func (h *SubscriptionHandler) List(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		utils.ErrorResponse(c, http.StatusUnauthorized, "user not authenticated")
		return
	}

	dtos, err := h.listUC.Execute(c.Request.Context(), userID.(uint))
	if err != nil {
		utils.ErrorResponseWithError(c, err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "", gin.H{"subscriptions": dtos})
}
