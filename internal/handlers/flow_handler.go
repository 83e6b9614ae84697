package handlers

import (
	"bytes"
	"net/http"
	"strings"

	"event-portal/internal/services"
	"event-portal/models"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"
)

type FlowHandler struct {
	orchestrator *services.Orchestrator
	logger       *zap.Logger
}

func NewFlowHandler(orchestrator *services.Orchestrator, logger *zap.Logger) *FlowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FlowHandler{orchestrator: orchestrator, logger: logger}
}

func sessionFrom(c echo.Context) models.Session {
	return models.SessionFromHeader(c.Request().Header.Get(echo.HeaderAuthorization))
}

func (h *FlowHandler) flow(c echo.Context) (*services.Flow, error) {
	return h.orchestrator.Flow(c.Request().Context(), sessionFrom(c), models.ID(c.PathParam("eventId")))
}

// GetFlow rebuilds the user's position for the event from server status.
func (h *FlowHandler) GetFlow(c echo.Context) error {
	flow, err := h.flow(c)
	if err != nil {
		return respondError(c, err)
	}

	st, err := flow.Resume(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

type registerRequest struct {
	Answers []models.Answer `json:"answers"`
}

func (h *FlowHandler) Register(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request"})
	}

	flow, err := h.flow(c)
	if err != nil {
		return respondError(c, err)
	}

	st, err := flow.Register(c.Request().Context(), req.Answers)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, st)
}

// InitiatePayment creates the payment intent and returns the checkout
// handoff, as JSON or as a ready-to-render page when the caller accepts
// HTML.
func (h *FlowHandler) InitiatePayment(c echo.Context) error {
	ctx := c.Request().Context()

	flow, err := h.flow(c)
	if err != nil {
		return respondError(c, err)
	}
	if flow.State().Step != services.StepPayment {
		if _, err := flow.Resume(ctx); err != nil {
			return respondError(c, err)
		}
	}

	checkout, err := flow.InitiatePayment(ctx)
	if err != nil {
		return respondError(c, err)
	}

	if !wantsHTML(c) {
		return c.JSON(http.StatusOK, checkout)
	}

	var buf bytes.Buffer
	if err := checkout.Render(&buf); err != nil {
		h.logger.Error("render checkout", zap.String("order_id", checkout.OrderID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, errorResponse{
			Error:     "Failed to open payment gateway. Please try again.",
			Retryable: true,
		})
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func wantsHTML(c echo.Context) bool {
	return strings.Contains(c.Request().Header.Get(echo.HeaderAccept), echo.MIMETextHTML)
}
