package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"event-portal/internal/services"
	"event-portal/internal/services/gateway"
	"event-portal/internal/status"
	"event-portal/models"

	"github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const bearer = "Bearer test-token"

type fakeBackend struct {
	mu            sync.Mutex
	event         *models.Event
	status        *models.RegistrationStatus
	intent        *models.PaymentIntent
	paymentStatus string
	registrations int
	intents       int
}

func (b *fakeBackend) GetEvent(ctx context.Context, sess models.Session, eventID models.ID) (*models.Event, error) {
	ev := *b.event
	return &ev, nil
}

func (b *fakeBackend) RegisterParticipant(ctx context.Context, sess models.Session, req models.RegistrationRequest) (*models.RegistrationReceipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.registrations++
	b.status = &models.RegistrationStatus{EventID: req.EventID, IsRegistered: true, State: models.RegistrationPending}
	return &models.RegistrationReceipt{ParticipantID: "p-1"}, nil
}

func (b *fakeBackend) RegistrationStatus(ctx context.Context, sess models.Session, eventID models.ID) (*models.RegistrationStatus, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.status == nil {
		return &models.RegistrationStatus{EventID: eventID}, nil
	}
	st := *b.status
	return &st, nil
}

func (b *fakeBackend) CreatePaymentIntent(ctx context.Context, sess models.Session, req models.IntentRequest) (*models.PaymentIntent, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intents++
	in := *b.intent
	return &in, nil
}

func (b *fakeBackend) PaymentStatus(ctx context.Context, orderID string) (*models.PaymentState, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return &models.PaymentState{OrderID: orderID, Status: b.paymentStatus}, nil
}

func newTestServer(t *testing.T, b *fakeBackend) *echo.Echo {
	t.Helper()

	sdkServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("window.Cashfree = function(){};"))
	}))
	t.Cleanup(sdkServer.Close)
	sdk := gateway.NewSDKLoader(sdkServer.URL, sdkServer.Client())

	registry := gateway.NewRegistry(gateway.NewFactory(), nil)
	require.NoError(t, registry.Register(models.GatewayCashfree, &gateway.EmbeddedConfig{SDK: sdk}))
	require.NoError(t, registry.Register(models.GatewayPayU, &gateway.RedirectConfig{AllowedHosts: []string{"test.payu.in"}}))

	registration := services.NewRegistrationService(b, nil, nil, nil)
	orchestrator := services.NewOrchestrator(b, registration, nil, registry, "https://portal.example.com/payment/success", nil, nil)
	reconciler := services.NewReconciler(b, services.ReconcilerConfig{Interval: 5 * time.Millisecond, Timeout: 50 * time.Millisecond}, nil, nil, nil, nil)
	issuer := services.NewCredentialIssuer(0, nil, nil)

	routes := &Routes{
		Flow:       NewFlowHandler(orchestrator, nil),
		Payment:    NewPaymentHandler(reconciler, nil),
		Credential: NewCredentialHandler(issuer, nil, b, nil),
		Checkout:   NewCheckoutHandler(sdk, nil),
		Metrics:    true,
	}
	e := echo.New()
	routes.Register(e)
	return e
}

func serve(e *echo.Echo, method, target, body string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func paidBackend() *fakeBackend {
	return &fakeBackend{
		event: &models.Event{ID: "10", Name: "Workshop", PricingMode: models.PricingPaid},
		intent: &models.PaymentIntent{
			OrderID:     "order_1",
			Gateway:     models.GatewayPayU,
			Environment: "TEST",
			PaymentURL:  "https://test.payu.in/_payment",
			FormFields: []models.FormField{
				{Name: "key", Value: "merchant"},
				{Name: "txnid", Value: "order_1"},
			},
		},
	}
}

func TestFlowHandler_RequiresSignIn(t *testing.T) {
	e := newTestServer(t, paidBackend())

	rec := serve(e, http.MethodGet, "/api/v1/events/10/flow", "", nil)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Please sign in to continue.", decode(t, rec)["error"])
}

func TestFlowHandler_RegisterMissingFields(t *testing.T) {
	b := paidBackend()
	b.event.RequireRegistrationForm = true
	b.event.Questions = []models.Question{
		{ID: "1", Label: "Full name", Type: models.QuestionShortText, Required: true},
		{ID: "2", Label: "Company", Type: models.QuestionShortText, Required: true},
	}
	e := newTestServer(t, b)

	rec := serve(e, http.MethodPost, "/api/v1/events/10/register", `{"answers": []}`, map[string]string{
		echo.HeaderAuthorization: bearer,
	})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "Please fill in the following required fields: Full name, Company", body["error"])
	assert.Equal(t, []any{"Full name", "Company"}, body["missing_fields"])
	assert.Zero(t, b.registrations)
}

func TestFlowHandler_RegisterThenPay(t *testing.T) {
	b := paidBackend()
	e := newTestServer(t, b)
	auth := map[string]string{echo.HeaderAuthorization: bearer}

	rec := serve(e, http.MethodPost, "/api/v1/events/10/register", `{}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "payment", decode(t, rec)["step"])

	rec = serve(e, http.MethodPost, "/api/v1/events/10/payment", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "redirect", body["kind"])
	assert.Equal(t, "https://test.payu.in/_payment", body["action"])
	assert.Equal(t, true, body["sandbox"])
	assert.Equal(t, 1, b.registrations)
	assert.Equal(t, 1, b.intents)
}

func TestFlowHandler_PaymentRendersHandoffPage(t *testing.T) {
	b := paidBackend()
	b.status = &models.RegistrationStatus{EventID: "10", IsRegistered: true, State: models.RegistrationPending}
	e := newTestServer(t, b)

	rec := serve(e, http.MethodPost, "/api/v1/events/10/payment", "", map[string]string{
		echo.HeaderAuthorization: bearer,
		echo.HeaderAccept:        "text/html,application/xhtml+xml",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get(echo.HeaderContentType), "text/html")
	assert.Contains(t, rec.Body.String(), `action="https://test.payu.in/_payment"`)
	assert.Contains(t, rec.Body.String(), `name="txnid" value="order_1"`)
}

func TestFlowHandler_FreeEventHasNoPayment(t *testing.T) {
	b := paidBackend()
	b.event.PricingMode = models.PricingFree
	b.status = &models.RegistrationStatus{EventID: "10", IsRegistered: true}
	e := newTestServer(t, b)

	rec := serve(e, http.MethodPost, "/api/v1/events/10/payment", "", map[string]string{echo.HeaderAuthorization: bearer})

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, b.intents)
}

func TestPaymentHandler_Return(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		status  string
		outcome string
		check   bool
	}{
		{"no order id", "", "success", "abandoned", false},
		{"success", "?order_id=order_1", "SUCCESS", "success", false},
		{"camel case param", "?orderId=order_1", "failed", "failed", false},
		{"reference id param", "?referenceId=order_1", "cancelled", "cancelled", false},
		{"still pending", "?order_id=order_1", "PENDING", "pending", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := paidBackend()
			b.paymentStatus = tt.status
			e := newTestServer(t, b)

			rec := serve(e, http.MethodGet, "/api/v1/payment/return"+tt.query, "", map[string]string{echo.HeaderAuthorization: bearer})

			require.Equal(t, http.StatusOK, rec.Code)
			body := decode(t, rec)
			assert.Equal(t, tt.outcome, body["outcome"])
			assert.Equal(t, tt.check, body["can_check_again"])
		})
	}
}

func TestPaymentHandler_CheckAgain(t *testing.T) {
	b := paidBackend()
	b.paymentStatus = "pending"
	e := newTestServer(t, b)
	auth := map[string]string{echo.HeaderAuthorization: bearer}

	rec := serve(e, http.MethodGet, "/api/v1/payment/return?order_id=order_1", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "pending", decode(t, rec)["outcome"])

	b.mu.Lock()
	b.paymentStatus = "success"
	b.mu.Unlock()

	rec = serve(e, http.MethodPost, "/api/v1/payment/return/check", `{"order_id": "order_1"}`, auth)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "success", body["outcome"])
	assert.Equal(t, "Payment Successful!", body["title"])
}

func TestCredentialHandler(t *testing.T) {
	b := paidBackend()
	b.status = &models.RegistrationStatus{EventID: "10", IsRegistered: true, State: models.RegistrationConfirmed, Hash: "abc123"}
	e := newTestServer(t, b)
	auth := map[string]string{echo.HeaderAuthorization: bearer}

	rec := serve(e, http.MethodGet, "/api/v1/events/10/credential", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "image/png", rec.Header().Get(echo.HeaderContentType))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, `"`+services.Fingerprint("abc123")+`"`, etag)

	rec = serve(e, http.MethodGet, "/api/v1/events/10/credential", "", map[string]string{
		echo.HeaderAuthorization: bearer,
		"If-None-Match":          etag,
	})
	assert.Equal(t, http.StatusNotModified, rec.Code)

	rec = serve(e, http.MethodGet, "/api/v1/events/10/credential?format=json", "", auth)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.HasPrefix(decode(t, rec)["image"].(string), "data:image/png;base64,"))
}

func TestCredentialHandler_States(t *testing.T) {
	tests := []struct {
		name   string
		status *models.RegistrationStatus
		code   int
	}{
		{"pending", &models.RegistrationStatus{EventID: "10", IsRegistered: true, State: models.RegistrationPending, Hash: "abc"}, http.StatusNotFound},
		{"no hash yet", &models.RegistrationStatus{EventID: "10", IsRegistered: true, State: models.RegistrationConfirmed}, http.StatusNotFound},
		{"malformed hash", &models.RegistrationStatus{EventID: "10", IsRegistered: true, State: models.RegistrationConfirmed, Hash: "a b"}, http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := paidBackend()
			b.status = tt.status
			e := newTestServer(t, b)

			rec := serve(e, http.MethodGet, "/api/v1/events/10/credential", "", map[string]string{echo.HeaderAuthorization: bearer})

			assert.Equal(t, tt.code, rec.Code)
			if tt.code == http.StatusAccepted {
				body := decode(t, rec)
				assert.Equal(t, true, body["placeholder"])
				assert.Equal(t, "Generating…", body["message"])
			}
		})
	}
}

func TestCheckoutHandler_SDKScript(t *testing.T) {
	e := newTestServer(t, paidBackend())

	rec := serve(e, http.MethodGet, "/checkout/sdk.js", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "window.Cashfree")
}

func TestRoutes_Health(t *testing.T) {
	e := newTestServer(t, paidBackend())

	rec := serve(e, http.MethodGet, "/health", "", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{status.ErrUnauthenticated, http.StatusUnauthorized},
		{&status.MissingFieldsError{Labels: []string{"A"}}, http.StatusBadRequest},
		{status.ErrPaymentInFlight, http.StatusConflict},
		{fmt.Errorf("initiate payment: %w", status.ErrGatewayHandoff), http.StatusBadGateway},
		{&status.APIError{StatusCode: http.StatusTooManyRequests}, http.StatusTooManyRequests},
		{&status.APIError{StatusCode: http.StatusBadGateway}, http.StatusServiceUnavailable},
		{&status.APIError{StatusCode: http.StatusNotFound}, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, httpStatus(tt.err))
		})
	}
}
