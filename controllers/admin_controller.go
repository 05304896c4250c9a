package controllers

import (
	"net/http"

	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
)

// AdminController serves the operator views over payments that need a
// human and over the webhook audit trail.
type AdminController struct {
	payments *store.PaymentStore
	events   *store.WebhookEventStore
}

func NewAdminController(payments *store.PaymentStore, events *store.WebhookEventStore) *AdminController {
	return &AdminController{payments: payments, events: events}
}

// GET /v1/admin/payments/review
func (ac *AdminController) ListReviewQueue(c *gin.Context) {
	page := utils.NewPagination(c)
	payments, total, err := ac.payments.ListNeedsReview(c.Request.Context(), page.Limit, page.Offset)
	if err != nil {
		utils.LogError("Failed to list payments needing review: %v", err)
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	page.SetTotal(total)
	utils.SendPaginatedResponse(c, "Payments needing review", payments, page)
}

// GET /v1/admin/webhooks?status=failed
func (ac *AdminController) ListWebhookEvents(c *gin.Context) {
	status := models.WebhookEventStatus(c.Query("status"))
	switch status {
	case "", models.WebhookEventReceived, models.WebhookEventHandled, models.WebhookEventIgnored,
		models.WebhookEventRejected, models.WebhookEventFailed:
	default:
		utils.BadRequest(c, utils.ErrInvalidRequest, "unknown status "+string(status))
		return
	}

	page := utils.NewPagination(c)
	events, total, err := ac.events.List(c.Request.Context(), status, page.Limit, page.Offset)
	if err != nil {
		utils.LogError("Failed to list webhook events: %v", err)
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	page.SetTotal(total)
	utils.SendPaginatedResponse(c, "Webhook events", events, page)
}
