package controllers

import (
	"context"
	"errors"
	"net/http"

	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/services"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
)

// PaymentController exposes checkout, verification, webhooks and the
// operator sweep over HTTP.
type PaymentController struct {
	checkout    *services.CheckoutService
	reconciler  *services.Reconciler
	coordinator *services.Coordinator
	webhooks    *services.WebhookIngress
	sweeper     *services.Sweeper
}

func NewPaymentController(
	checkout *services.CheckoutService,
	reconciler *services.Reconciler,
	coordinator *services.Coordinator,
	webhooks *services.WebhookIngress,
	sweeper *services.Sweeper,
) *PaymentController {
	return &PaymentController{
		checkout:    checkout,
		reconciler:  reconciler,
		coordinator: coordinator,
		webhooks:    webhooks,
		sweeper:     sweeper,
	}
}

type checkoutRequest struct {
	OrderID uint `json:"order_id" binding:"required"`
}

type verifyRequest struct {
	GatewayOrderID string `json:"gateway_order_id"`
	Wait           bool   `json:"wait"`
}

// VerifyResponse is what the checkout page reads after every check.
type VerifyResponse struct {
	Success      bool            `json:"success"`
	Pending      bool            `json:"pending"`
	OrderExpired bool            `json:"orderExpired"`
	Rejected     bool            `json:"rejected"`
	AlreadyPaid  bool            `json:"alreadyPaid"`
	Attempts     int             `json:"attempts"`
	Payment      *models.Payment `json:"payment,omitempty"`
	Order        *models.Order   `json:"order,omitempty"`
}

// POST /v1/checkout
func (pc *PaymentController) InitiateCheckout(c *gin.Context) {
	var req checkoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.LogError("Invalid checkout request: %v", err)
		utils.BadRequest(c, "Invalid request. order_id is required", err.Error())
		return
	}

	res, err := pc.checkout.Initiate(c.Request.Context(), req.OrderID)
	if err != nil {
		utils.LogError("Checkout failed for order %d: %v", req.OrderID, err)
		if errors.Is(err, store.ErrNotFound) {
			utils.NotFound(c, utils.ErrOrderNotFound)
			return
		}
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	data := gin.H{
		"payment":          res.Payment,
		"gateway_order_id": res.Payment.GatewayOrderID,
		"checkout_url":     res.Payment.CheckoutURL,
		"amount":           res.Payment.Amount.StringFixed(2),
		"currency":         res.Payment.Currency,
		"reused":           res.Reused,
	}
	if res.Reused {
		utils.Success(c, utils.MsgCheckoutReused, data)
		return
	}
	utils.Created(c, utils.MsgCheckoutCreated, data)
}

// POST /v1/payments/verify
//
// Without wait this is one gateway check, meant to be called about once a
// second by the checkout page. With wait the server polls until the payment
// settles, the attempt budget runs out or the client goes away.
func (pc *PaymentController) VerifyPayment(c *gin.Context) {
	var req verifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, utils.ErrInvalidRequest, err.Error())
		return
	}
	if req.GatewayOrderID == "" {
		utils.BadRequest(c, utils.ErrMissingGatewayID, nil)
		return
	}

	ctx := c.Request.Context()
	var (
		result services.PollResult
		err    error
	)
	if req.Wait {
		result, err = pc.waitForPayment(ctx, req.GatewayOrderID)
	} else {
		result, err = pc.coordinator.VerifyOnce(ctx, req.GatewayOrderID)
	}
	if err != nil {
		if errors.Is(err, context.Canceled) {
			utils.LogInfo("Client left while verifying %s", req.GatewayOrderID)
			return
		}
		utils.LogError("Verification failed for %s: %v", req.GatewayOrderID, err)
		respondError(c, err, http.StatusInternalServerError)
		return
	}

	resp, message := verifyResponse(result)
	utils.Success(c, message, resp)
}

func (pc *PaymentController) waitForPayment(ctx context.Context, gatewayOrderID string) (services.PollResult, error) {
	session, err := pc.coordinator.Start(ctx, gatewayOrderID)
	if err != nil {
		return services.PollResult{}, err
	}
	return session.Wait(ctx)
}

func verifyResponse(result services.PollResult) (VerifyResponse, string) {
	outcome := result.Outcome
	resp := VerifyResponse{
		Attempts: result.Attempts,
		Payment:  outcome.Payment,
		Order:    outcome.Order,
	}

	switch outcome.Kind {
	case services.OutcomePaid:
		resp.Success = true
		resp.AlreadyPaid = !outcome.Transitioned
		if resp.AlreadyPaid {
			return resp, utils.MsgAlreadyPaid
		}
		return resp, utils.MsgPaymentPaid
	case services.OutcomeExpired:
		resp.OrderExpired = true
		return resp, utils.MsgPaymentExpired
	case services.OutcomeRejected, services.OutcomeRefunded:
		resp.Rejected = true
		return resp, utils.MsgPaymentRejected
	}
	resp.Pending = true
	return resp, utils.MsgPaymentPending
}

// DELETE /v1/payments/:gateway_order_id/poll
func (pc *PaymentController) CancelPoll(c *gin.Context) {
	gatewayOrderID := c.Param("gateway_order_id")
	cancelled := pc.coordinator.Cancel(gatewayOrderID)
	utils.LogInfo("Poll cancel requested for %s (active: %t)", gatewayOrderID, cancelled)
	utils.Success(c, utils.MsgPollCancelled, gin.H{"cancelled": cancelled})
}

// GET /v1/payments/:gateway_order_id
func (pc *PaymentController) GetPayment(c *gin.Context) {
	gatewayOrderID := c.Param("gateway_order_id")
	outcome, err := pc.reconciler.Current(c.Request.Context(), services.ByGatewayOrderID(gatewayOrderID))
	if err != nil {
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	utils.Success(c, "Payment retrieved", gin.H{
		"status":  outcome.Kind,
		"payment": outcome.Payment,
		"order":   outcome.Order,
		"polling": pc.coordinator.Active(gatewayOrderID),
	})
}

// POST /v1/webhooks/gateway
//
// Anything other than 2xx makes the gateway redeliver, so only malformed
// or unverifiable bodies get a 4xx.
func (pc *PaymentController) HandleWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		utils.BadRequest(c, utils.ErrMalformedWebhook, err.Error())
		return
	}

	result, err := pc.webhooks.Receive(c.Request.Context(), body, c.GetHeader(utils.WebhookSignatureHeader))
	if err != nil {
		utils.LogError("Webhook rejected: %v", err)
		respondError(c, err, http.StatusServiceUnavailable)
		return
	}

	if result.Status == services.IngestIgnored {
		utils.Success(c, utils.MsgWebhookIgnored, gin.H{"status": result.Status})
		return
	}
	utils.Success(c, utils.MsgWebhookHandled, gin.H{
		"status":       result.Status,
		"outcome":      result.Outcome.Kind,
		"transitioned": result.Outcome.Transitioned,
	})
}

// POST /v1/admin/payments/sync
func (pc *PaymentController) SyncPendingPayments(c *gin.Context) {
	summary, err := pc.sweeper.Run(c.Request.Context())
	if err != nil {
		utils.LogError("Payment sweep failed: %v", err)
		respondError(c, err, http.StatusInternalServerError)
		return
	}
	utils.Success(c, utils.MsgSyncCompleted, summary)
}

// respondError maps service errors onto HTTP responses. fallback is the
// status for errors no rule claims.
func respondError(c *gin.Context, err error, fallback int) {
	var (
		validation *services.ValidationError
		appErr     *utils.AppError
	)
	switch {
	case errors.As(err, &validation):
		appErr = utils.BadRequestError(utils.ErrInvalidRequest, err)
	case errors.Is(err, services.ErrInvalidSignature):
		appErr = utils.UnauthorizedError(utils.ErrInvalidSignature, nil)
	case errors.Is(err, store.ErrNotFound):
		appErr = utils.NotFoundError(utils.ErrPaymentNotFound, err)
	case errors.Is(err, services.ErrPollInProgress):
		appErr = utils.ConflictError(utils.ErrPollInProgress, nil)
	case errors.Is(err, services.ErrOrderAlreadyPaid):
		appErr = utils.ConflictError(utils.MsgAlreadyPaid, nil)
	case errors.Is(err, services.ErrAmountMismatch):
		appErr = utils.UnprocessableError("Payment amount does not match order total", err)
	case errors.Is(err, gateway.ErrUnavailable), errors.Is(err, context.DeadlineExceeded):
		appErr = utils.ServiceUnavailableError(utils.ErrServiceUnavailable, err)
	case errors.Is(err, services.ErrDataIntegrity):
		appErr = utils.InternalError(utils.ErrInternalServer, err)
	default:
		appErr = utils.NewAppError(fallback, http.StatusText(fallback), err)
	}
	utils.RespondAppError(c, appErr)
}
