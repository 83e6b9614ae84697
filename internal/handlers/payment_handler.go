package handlers

import (
	"errors"
	"net/http"

	"event-portal/internal/services"
	"event-portal/models"

	"github.com/labstack/echo/v5"
	"go.uber.org/zap"
)

type PaymentHandler struct {
	reconciler *services.Reconciler
	logger     *zap.Logger
}

func NewPaymentHandler(reconciler *services.Reconciler, logger *zap.Logger) *PaymentHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentHandler{reconciler: reconciler, logger: logger}
}

type paymentResult struct {
	OrderID       string         `json:"order_id,omitempty"`
	Outcome       models.Outcome `json:"outcome"`
	Status        string         `json:"status,omitempty"`
	Title         string         `json:"title"`
	Message       string         `json:"message"`
	CanCheckAgain bool           `json:"can_check_again"`
}

var outcomeText = map[models.Outcome][2]string{
	models.OutcomeLoading:   {"Verifying payment", "Verifying payment..."},
	models.OutcomeSuccess:   {"Payment Successful!", "Your payment has been processed successfully and you are registered for the event."},
	models.OutcomeFailed:    {"Payment Failed", "There was an issue processing your payment."},
	models.OutcomeCancelled: {"Payment Cancelled", "You cancelled the payment process."},
	models.OutcomePending:   {"Payment Pending", "Your payment is still pending or was not completed. If you closed the payment window or cancelled, no money was deducted."},
	models.OutcomeAbandoned: {"Payment Not Completed", "You did not complete the payment or closed the payment window early."},
}

func newPaymentResult(w *services.Watch, outcome models.Outcome) paymentResult {
	text := outcomeText[outcome]
	return paymentResult{
		OrderID:       w.OrderID(),
		Outcome:       outcome,
		Status:        w.LastStatus(),
		Title:         text[0],
		Message:       text[1],
		CanCheckAgain: outcome == models.OutcomePending || outcome == models.OutcomeLoading,
	}
}

// viewKey identifies the page watching a payment. Signed-in users get one
// view; anonymous callers are told apart by address.
func viewKey(c echo.Context, sess models.Session) (key, subject string) {
	if sess.Authenticated() {
		return sess.Subject(), sess.Subject()
	}
	return "anon:" + c.RealIP(), ""
}

// PaymentReturn reconciles the order named on the gateway return URL and
// answers once the outcome is known or the reconcile timeout passes.
func (h *PaymentHandler) PaymentReturn(c echo.Context) error {
	ctx := c.Request().Context()
	orderID := services.OrderIDFromQuery(c.QueryParams())
	key, subject := viewKey(c, sessionFrom(c))

	w := h.reconciler.Watch(ctx, key, subject, orderID)
	outcome, err := w.Wait(ctx)
	return h.respond(c, w, outcome, err)
}

type checkAgainRequest struct {
	OrderID string `json:"order_id" query:"order_id"`
}

// CheckAgain runs one more status read for the order the view is watching.
func (h *PaymentHandler) CheckAgain(c echo.Context) error {
	ctx := c.Request().Context()

	var req checkAgainRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "Invalid request"})
	}
	if req.OrderID == "" {
		req.OrderID = services.OrderIDFromQuery(c.QueryParams())
	}
	key, subject := viewKey(c, sessionFrom(c))

	w, ok := h.reconciler.Lookup(key)
	if !ok || w.OrderID() != req.OrderID {
		// nothing to re-check in this process; reconcile from scratch
		w = h.reconciler.Watch(ctx, key, subject, req.OrderID)
		outcome, err := w.Wait(ctx)
		return h.respond(c, w, outcome, err)
	}

	outcome, err := w.CheckAgain(ctx)
	return h.respond(c, w, outcome, err)
}

func (h *PaymentHandler) respond(c echo.Context, w *services.Watch, outcome models.Outcome, err error) error {
	switch {
	case errors.Is(err, services.ErrWatchSuperseded):
		return c.JSON(http.StatusConflict, errorResponse{Error: "A newer payment is being verified."})
	case err != nil:
		// the caller went away
		h.logger.Debug("payment return abandoned", zap.String("order_id", w.OrderID()), zap.Error(err))
		return nil
	}
	return c.JSON(http.StatusOK, newPaymentResult(w, outcome))
}
