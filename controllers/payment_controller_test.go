package controllers_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/Govind-619/paysync/controllers"
	"github.com/Govind-619/paysync/gateway"
	"github.com/Govind-619/paysync/models"
	"github.com/Govind-619/paysync/reconcile"
	"github.com/Govind-619/paysync/routes"
	"github.com/Govind-619/paysync/services"
	"github.com/Govind-619/paysync/store"
	"github.com/Govind-619/paysync/storetest"
	"github.com/Govind-619/paysync/utils"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	jwtSecret     = "test-jwt-secret"
	webhookSecret = "test-webhook-secret"
)

type testServer struct {
	router   *gin.Engine
	gateway  *gateway.Fake
	orders   *store.OrderStore
	payments *store.PaymentStore
}

func newTestServer(t *testing.T, poll services.PollConfig) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := storetest.NewDB(t)
	payments := store.NewPaymentStore(db)
	orders := store.NewOrderStore(db)
	carts := store.NewCartStore(db)
	events := store.NewWebhookEventStore(db)
	fake := gateway.NewFake()

	reconciler := services.NewReconciler(payments, orders, fake, reconcile.NewEngine(reconcile.Policy{}), services.NewEffectDispatcher(nil, carts))
	pc := controllers.NewPaymentController(
		services.NewCheckoutService(payments, orders, fake, "INR"),
		reconciler,
		services.NewCoordinator(reconciler, poll),
		services.NewWebhookIngress(reconciler, payments, events, webhookSecret),
		services.NewSweeper(reconciler, payments, 2, time.Second),
	)

	router := routes.SetupRouter(routes.Dependencies{
		DB:        db,
		Payments:  pc,
		Admin:     controllers.NewAdminController(payments, events),
		JWTSecret: jwtSecret,
	})

	return &testServer{
		router:   router,
		gateway:  fake,
		orders:   orders,
		payments: payments,
	}
}

func fastPoll() services.PollConfig {
	return services.PollConfig{Interval: time.Millisecond, MaxAttempts: 120, CallTimeout: time.Second}
}

func (s *testServer) order(t *testing.T, number string) *models.Order {
	t.Helper()
	order := &models.Order{
		OrderNumber:   number,
		CustomerPhone: "+91" + number,
		TotalAmount:   decimal.RequireFromString("149.90"),
		Status:        models.OrderStatusPending,
		PaymentStatus: models.OrderPaymentPending,
	}
	require.NoError(t, s.orders.Create(context.Background(), order))
	return order
}

func (s *testServer) checkout(t *testing.T, orderID uint) string {
	t.Helper()
	resp := utils.MakeTestRequest(t, s.router, utils.TestRequest{
		Method: http.MethodPost,
		Path:   "/v1/checkout",
		Body:   gin.H{"order_id": orderID},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return resp.Data()["gateway_order_id"].(string)
}

func (s *testServer) verify(t *testing.T, body gin.H) utils.TestResponse {
	t.Helper()
	return utils.MakeTestRequest(t, s.router, utils.TestRequest{
		Method: http.MethodPost,
		Path:   "/v1/payments/verify",
		Body:   body,
	})
}

func TestCheckout_CreateThenReuse(t *testing.T) {
	s := newTestServer(t, fastPoll())
	order := s.order(t, "ORD-1")

	first := utils.MakeTestRequest(t, s.router, utils.TestRequest{
		Method: http.MethodPost,
		Path:   "/v1/checkout",
		Body:   gin.H{"order_id": order.ID},
	})
	require.Equal(t, http.StatusCreated, first.StatusCode)
	assert.Equal(t, "149.90", first.Data()["amount"])
	assert.NotEmpty(t, first.Data()["checkout_url"])

	second := utils.MakeTestRequest(t, s.router, utils.TestRequest{
		Method: http.MethodPost,
		Path:   "/v1/checkout",
		Body:   gin.H{"order_id": order.ID},
	})
	require.Equal(t, http.StatusOK, second.StatusCode)
	assert.Equal(t, true, second.Data()["reused"])
	assert.Equal(t, first.Data()["gateway_order_id"], second.Data()["gateway_order_id"])
	assert.Equal(t, 1, s.gateway.CreateCalls())
}

func TestCheckout_Errors(t *testing.T) {
	s := newTestServer(t, fastPoll())

	resp := utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodPost, Path: "/v1/checkout", Body: gin.H{}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodPost, Path: "/v1/checkout", Body: gin.H{"order_id": 999}})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	order := s.order(t, "ORD-2")
	s.gateway.CreateErr = gateway.ErrUnavailable
	resp = utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodPost, Path: "/v1/checkout", Body: gin.H{"order_id": order.ID}})
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestVerify_Paid(t *testing.T) {
	s := newTestServer(t, fastPoll())
	order := s.order(t, "ORD-1")
	gwID := s.checkout(t, order.ID)
	s.gateway.SetState(gwID, gateway.StatePaid)

	resp := s.verify(t, gin.H{"gateway_order_id": gwID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := resp.Data()
	assert.Equal(t, true, data["success"])
	assert.Equal(t, false, data["alreadyPaid"])
	assert.Equal(t, "confirmed", data["order"].(map[string]interface{})["status"])

	again := s.verify(t, gin.H{"gateway_order_id": gwID})
	assert.Equal(t, true, again.Data()["alreadyPaid"])
}

func TestVerify_WaitExhaustsAsPending(t *testing.T) {
	s := newTestServer(t, services.PollConfig{Interval: time.Millisecond, MaxAttempts: 5, CallTimeout: time.Second})
	order := s.order(t, "ORD-1")
	gwID := s.checkout(t, order.ID)

	resp := s.verify(t, gin.H{"gateway_order_id": gwID, "wait": true})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := resp.Data()
	assert.Equal(t, false, data["success"])
	assert.Equal(t, true, data["pending"])
	assert.Equal(t, float64(5), data["attempts"])

	payment, err := s.payments.FindByGatewayOrderID(context.Background(), gwID)
	require.NoError(t, err)
	assert.Equal(t, models.PaymentStatusPending, payment.Status)
}

func TestVerify_NotFoundExpires(t *testing.T) {
	s := newTestServer(t, fastPoll())
	order := s.order(t, "ORD-1")
	gwID := s.checkout(t, order.ID)
	s.gateway.Script(gwID, gateway.NotFound())

	resp := s.verify(t, gin.H{"gateway_order_id": gwID})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, resp.Data()["orderExpired"])
	assert.Equal(t, "pending", resp.Data()["order"].(map[string]interface{})["status"])
}

func TestVerify_Rejected(t *testing.T) {
	s := newTestServer(t, fastPoll())
	order := s.order(t, "ORD-1")
	gwID := s.checkout(t, order.ID)
	s.gateway.SetState(gwID, gateway.StateRejected)

	resp := s.verify(t, gin.H{"gateway_order_id": gwID})
	assert.Equal(t, true, resp.Data()["rejected"])
}

func TestVerify_Errors(t *testing.T) {
	s := newTestServer(t, fastPoll())

	resp := s.verify(t, gin.H{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.verify(t, gin.H{"gateway_order_id": "order_missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestVerify_ConflictWhilePolling(t *testing.T) {
	s := newTestServer(t, services.PollConfig{Interval: 20 * time.Millisecond, MaxAttempts: 1000, CallTimeout: time.Second})
	order := s.order(t, "ORD-1")
	gwID := s.checkout(t, order.ID)

	done := make(chan utils.TestResponse, 1)
	go func() {
		done <- s.verify(t, gin.H{"gateway_order_id": gwID, "wait": true})
	}()

	assert.Eventually(t, func() bool {
		resp := utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodGet, Path: "/v1/payments/" + gwID})
		return resp.Data()["polling"] == true
	}, 5*time.Second, 5*time.Millisecond)

	resp := s.verify(t, gin.H{"gateway_order_id": gwID})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	cancel := utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodDelete, Path: "/v1/payments/" + gwID + "/poll"})
	assert.Equal(t, true, cancel.Data()["cancelled"])

	select {
	case waited := <-done:
		assert.Equal(t, http.StatusOK, waited.StatusCode)
		assert.Equal(t, true, waited.Data()["pending"])
	case <-time.After(5 * time.Second):
		t.Fatal("waiting verify did not return after cancel")
	}
}

func TestWebhook_SignedDelivery(t *testing.T) {
	s := newTestServer(t, fastPoll())
	order := s.order(t, "ORD-1")
	gwID := s.checkout(t, order.ID)
	body := []byte(fmt.Sprintf(`{"id":"evt_1","type":"order.status.changed","data":{"id":%q,"state":"paid"}}`, gwID))

	unsigned := utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodPost, Path: "/v1/webhooks/gateway", RawBody: body})
	assert.Equal(t, http.StatusUnauthorized, unsigned.StatusCode)

	signed := utils.MakeTestRequest(t, s.router, utils.TestRequest{
		Method:  http.MethodPost,
		Path:    "/v1/webhooks/gateway",
		RawBody: body,
		Headers: map[string]string{utils.WebhookSignatureHeader: gateway.Sign(body, webhookSecret)},
	})
	require.Equal(t, http.StatusOK, signed.StatusCode)
	assert.Equal(t, "paid", signed.Data()["outcome"])
	assert.Equal(t, true, signed.Data()["transitioned"])

	// Redelivery is acknowledged without another transition.
	redelivered := utils.MakeTestRequest(t, s.router, utils.TestRequest{
		Method:  http.MethodPost,
		Path:    "/v1/webhooks/gateway",
		RawBody: body,
		Headers: map[string]string{utils.WebhookSignatureHeader: gateway.Sign(body, webhookSecret)},
	})
	require.Equal(t, http.StatusOK, redelivered.StatusCode)
	assert.Equal(t, false, redelivered.Data()["transitioned"])
}

func TestWebhook_StatusCodes(t *testing.T) {
	s := newTestServer(t, fastPoll())
	send := func(body string) int {
		raw := []byte(body)
		return utils.MakeTestRequest(t, s.router, utils.TestRequest{
			Method:  http.MethodPost,
			Path:    "/v1/webhooks/gateway",
			RawBody: raw,
			Headers: map[string]string{utils.WebhookSignatureHeader: gateway.Sign(raw, webhookSecret)},
		}).StatusCode
	}

	assert.Equal(t, http.StatusBadRequest, send(`{"type":"order.status.changed"}`))
	assert.Equal(t, http.StatusOK, send(`{"type":"invoice.created","data":{"id":"inv_1"}}`))
	assert.Equal(t, http.StatusNotFound, send(`{"type":"order.status.changed","data":{"id":"order_nope","state":"paid"}}`))
}

func TestAdminSync(t *testing.T) {
	s := newTestServer(t, fastPoll())
	o1, o2 := s.order(t, "ORD-1"), s.order(t, "ORD-2")
	gw1, gw2 := s.checkout(t, o1.ID), s.checkout(t, o2.ID)
	s.gateway.SetState(gw1, gateway.StatePaid)
	s.gateway.Script(gw2, gateway.TransientError(errors.New("timeout")))

	resp := utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodPost, Path: "/v1/admin/payments/sync"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = utils.MakeTestRequest(t, s.router, utils.TestRequest{
		Method:  http.MethodPost,
		Path:    "/v1/admin/payments/sync",
		Headers: map[string]string{"Authorization": "Bearer " + utils.GetTestAdminToken(t, jwtSecret)},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	data := resp.Data()
	assert.Equal(t, float64(2), data["total"])
	assert.Equal(t, float64(1), data["synced"])
	assert.Equal(t, float64(1), data["errors"])
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, fastPoll())

	resp := utils.MakeTestRequest(t, s.router, utils.TestRequest{Method: http.MethodGet, Path: "/healthz"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "paysync", resp.Data()["service"])
}
