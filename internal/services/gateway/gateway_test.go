package gateway

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"event-portal/internal/status"
	"event-portal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sdkServer(t *testing.T, code int) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(code)
		if code == http.StatusOK {
			w.Write([]byte("window.Cashfree = function(){};"))
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestSDKLoader_LoadsOncePerProcess(t *testing.T) {
	srv, hits := sdkServer(t, http.StatusOK)
	loader := NewSDKLoader(srv.URL, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, loader.Ensure(context.Background()))
		}()
	}
	wg.Wait()

	assert.True(t, loader.Loaded())
	assert.Equal(t, int32(1), atomic.LoadInt32(hits))

	script, ok := loader.Script()
	require.True(t, ok)
	assert.Contains(t, string(script), "Cashfree")
}

func TestSDKLoader_FailureAllowsRetry(t *testing.T) {
	srv, hits := sdkServer(t, http.StatusServiceUnavailable)
	loader := NewSDKLoader(srv.URL, nil)

	assert.Error(t, loader.Ensure(context.Background()))
	assert.Error(t, loader.Ensure(context.Background()))
	assert.False(t, loader.Loaded())
	assert.Equal(t, int32(2), atomic.LoadInt32(hits))

	_, ok := loader.Script()
	assert.False(t, ok)
}

func embeddedIntent() *models.PaymentIntent {
	return &models.PaymentIntent{
		OrderID:      "ord_1",
		Gateway:      models.GatewayCashfree,
		Environment:  "TEST",
		SessionToken: "sess_123",
	}
}

func TestEmbeddedCheckout_BeginCheckout(t *testing.T) {
	srv, _ := sdkServer(t, http.StatusOK)
	g, err := NewEmbeddedCheckout(&EmbeddedConfig{SDK: NewSDKLoader(srv.URL, nil)})
	require.NoError(t, err)

	co, err := g.BeginCheckout(context.Background(), embeddedIntent())
	require.NoError(t, err)

	assert.Equal(t, KindEmbedded, co.Kind)
	assert.Equal(t, "sandbox", co.Mode)
	assert.True(t, co.Sandbox)
	assert.Equal(t, "sess_123", co.SessionToken)
	assert.Equal(t, "/checkout/sdk.js", co.SDKURL)
}

func TestEmbeddedCheckout_HandoffFailures(t *testing.T) {
	okSrv, _ := sdkServer(t, http.StatusOK)
	badSrv, _ := sdkServer(t, http.StatusInternalServerError)

	tests := []struct {
		name   string
		sdkURL string
		intent *models.PaymentIntent
	}{
		{"missing token", okSrv.URL, &models.PaymentIntent{OrderID: "o"}},
		{"sdk load failure", badSrv.URL, embeddedIntent()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := NewEmbeddedCheckout(&EmbeddedConfig{SDK: NewSDKLoader(tt.sdkURL, nil)})
			require.NoError(t, err)

			_, err = g.BeginCheckout(context.Background(), tt.intent)
			assert.ErrorIs(t, err, status.ErrGatewayHandoff)
		})
	}
}

func redirectIntent() *models.PaymentIntent {
	return &models.PaymentIntent{
		OrderID:     "ord_2",
		Gateway:     models.GatewayPayU,
		Environment: "PRODUCTION",
		PaymentURL:  "https://secure.payu.in/_payment",
		FormFields: []models.FormField{
			{Name: "amount", Value: "499.00"},
			{Name: "txnid", Value: "ord_2"},
		},
	}
}

func TestRedirectForm_BeginCheckout(t *testing.T) {
	g := NewRedirectForm(&RedirectConfig{AllowedHosts: []string{"secure.payu.in", "test.payu.in"}})

	co, err := g.BeginCheckout(context.Background(), redirectIntent())
	require.NoError(t, err)

	assert.Equal(t, KindRedirect, co.Kind)
	assert.Equal(t, "https://secure.payu.in/_payment", co.Action)
	assert.Equal(t, "POST", co.Method)
	assert.Equal(t, redirectIntent().FormFields, co.Fields)
	assert.False(t, co.Sandbox)
	assert.Equal(t, "production", co.Mode)
}

func TestRedirectForm_HandoffFailures(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.PaymentIntent)
	}{
		{"missing url", func(i *models.PaymentIntent) { i.PaymentURL = "" }},
		{"relative url", func(i *models.PaymentIntent) { i.PaymentURL = "/_payment" }},
		{"plain http", func(i *models.PaymentIntent) { i.PaymentURL = "http://secure.payu.in/_payment" }},
		{"foreign host", func(i *models.PaymentIntent) { i.PaymentURL = "https://evil.example/_payment" }},
		{"no fields", func(i *models.PaymentIntent) { i.FormFields = nil }},
		{"unnamed field", func(i *models.PaymentIntent) { i.FormFields = append(i.FormFields, models.FormField{Value: "x"}) }},
	}

	g := NewRedirectForm(&RedirectConfig{AllowedHosts: []string{"secure.payu.in"}})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intent := redirectIntent()
			tt.mutate(intent)

			_, err := g.BeginCheckout(context.Background(), intent)
			assert.ErrorIs(t, err, status.ErrGatewayHandoff)
		})
	}
}

func TestRegistry_Dispatch(t *testing.T) {
	srv, _ := sdkServer(t, http.StatusOK)
	r := NewRegistry(NewFactory(), nil)

	require.NoError(t, r.Register(models.GatewayCashfree, &EmbeddedConfig{SDK: NewSDKLoader(srv.URL, nil)}))
	require.NoError(t, r.Register(models.GatewayPayU, &RedirectConfig{}))

	assert.Equal(t, []models.Gateway{models.GatewayCashfree, models.GatewayPayU}, r.Providers())

	g, err := r.Get(models.GatewayPayU)
	require.NoError(t, err)
	assert.Equal(t, models.GatewayPayU, g.Provider())

	_, err = r.Get("stripe")
	assert.ErrorIs(t, err, status.ErrUnsupportedGateway)

	assert.NoError(t, r.Close(context.Background()))
}

func TestFactory_RejectsWrongConfig(t *testing.T) {
	f := NewFactory()

	_, err := f.Create(models.GatewayCashfree, &RedirectConfig{})
	assert.Error(t, err)

	_, err = f.Create(models.GatewayPayU, &EmbeddedConfig{})
	assert.Error(t, err)

	_, err = f.Create("stripe", nil)
	assert.ErrorIs(t, err, status.ErrUnsupportedGateway)

	assert.Len(t, f.SupportedProviders(), 2)
}

func TestCheckout_RenderEmbedded(t *testing.T) {
	co := &Checkout{Kind: KindEmbedded, OrderID: "ord_1", Mode: "sandbox", Sandbox: true, SDKURL: "/checkout/sdk.js", SessionToken: "sess_123"}

	var buf bytes.Buffer
	require.NoError(t, co.Render(&buf))

	html := buf.String()
	assert.Contains(t, html, `<script src="/checkout/sdk.js"></script>`)
	assert.Contains(t, html, `"sess_123"`)
	assert.Contains(t, html, `"sandbox"`)
	assert.Contains(t, html, "Sandbox mode")
}

func TestCheckout_RenderRedirectEscapesFields(t *testing.T) {
	co := &Checkout{
		Kind:   KindRedirect,
		Action: "https://secure.payu.in/_payment",
		Method: "POST",
		Fields: []models.FormField{
			{Name: "firstname", Value: `"><script>alert(1)</script>`},
			{Name: "txnid", Value: "ord_2"},
		},
	}

	var buf bytes.Buffer
	require.NoError(t, co.Render(&buf))

	html := buf.String()
	assert.Contains(t, html, `action="https://secure.payu.in/_payment"`)
	assert.Contains(t, html, `<input type="hidden" name="txnid" value="ord_2">`)
	assert.NotContains(t, html, `<script>alert(1)</script>`)
	assert.NotContains(t, html, "Sandbox mode")
}

func TestCheckout_RenderUnknownKind(t *testing.T) {
	var buf bytes.Buffer
	assert.Error(t, (&Checkout{Kind: "popup"}).Render(&buf))
}
