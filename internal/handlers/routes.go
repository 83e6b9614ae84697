package handlers

import (
	"net/http"
	"time"

	"event-portal/utils"

	"github.com/labstack/echo/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

type Routes struct {
	Flow       *FlowHandler
	Payment    *PaymentHandler
	Credential *CredentialHandler
	Checkout   *CheckoutHandler

	// Redis is checked by /health when set.
	Redis redis.Cmdable

	// Protect wraps the register and payment routes.
	Protect []echo.MiddlewareFunc

	Metrics bool
}

func (r *Routes) Register(e *echo.Echo) {
	e.GET("/health", r.health)
	if r.Metrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	}
	e.GET("/checkout/sdk.js", r.Checkout.SDKScript)

	api := e.Group("/api/v1")
	api.GET("/events/:eventId/flow", r.Flow.GetFlow)
	api.POST("/events/:eventId/register", r.Flow.Register, r.Protect...)
	api.POST("/events/:eventId/payment", r.Flow.InitiatePayment, r.Protect...)
	api.GET("/events/:eventId/credential", r.Credential.GetCredential)

	api.GET("/payment/return", r.Payment.PaymentReturn)
	api.POST("/payment/return/check", r.Payment.CheckAgain)
}

func (r *Routes) health(c echo.Context) error {
	body := map[string]any{
		"status": "healthy",
		"time":   time.Now().UTC(),
	}
	if r.Redis != nil {
		if err := utils.RedisHealthCheck(c.Request().Context(), r.Redis); err != nil {
			body["status"] = "degraded"
			body["redis"] = err.Error()
			return c.JSON(http.StatusServiceUnavailable, body)
		}
		body["redis"] = "ok"
	}
	return c.JSON(http.StatusOK, body)
}
