package handlers

import (
	"net/http"

	"event-portal/internal/services/gateway"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"
)

type CheckoutHandler struct {
	sdk    *gateway.SDKLoader
	logger *zap.Logger
}

func NewCheckoutHandler(sdk *gateway.SDKLoader, logger *zap.Logger) *CheckoutHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutHandler{sdk: sdk, logger: logger}
}

// SDKScript serves the process-wide copy of the embedded checkout SDK.
func (h *CheckoutHandler) SDKScript(c echo.Context) error {
	if err := h.sdk.Ensure(c.Request().Context()); err != nil {
		h.logger.Warn("checkout sdk unavailable", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, errorResponse{
			Error:     "Failed to open payment gateway. Please try again.",
			Retryable: true,
		})
	}

	script, _ := h.sdk.Script()
	c.Response().Header().Set("Cache-Control", "public, max-age=3600")
	return c.Blob(http.StatusOK, "application/javascript; charset=UTF-8", script)
}
