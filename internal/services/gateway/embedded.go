package gateway

import (
	"context"
	"errors"
	"fmt"

	"event-portal/internal/status"
	"event-portal/models"
)

type EmbeddedConfig struct {
	// SDK is the process-wide loader shared by every checkout.
	SDK *SDKLoader

	// ScriptPath is where the view loads the cached SDK from.
	ScriptPath string
}

// EmbeddedCheckout hands a payment session token to the gateway SDK, which
// takes over the page in place.
type EmbeddedCheckout struct {
	sdk        *SDKLoader
	scriptPath string
}

func NewEmbeddedCheckout(cfg *EmbeddedConfig) (*EmbeddedCheckout, error) {
	if cfg == nil || cfg.SDK == nil {
		return nil, errors.New("embedded checkout: sdk loader is required")
	}
	path := cfg.ScriptPath
	if path == "" {
		path = "/checkout/sdk.js"
	}
	return &EmbeddedCheckout{sdk: cfg.SDK, scriptPath: path}, nil
}

func (e *EmbeddedCheckout) Provider() models.Gateway {
	return models.GatewayCashfree
}

func (e *EmbeddedCheckout) BeginCheckout(ctx context.Context, intent *models.PaymentIntent) (*Checkout, error) {
	if intent.SessionToken == "" {
		return nil, fmt.Errorf("%w: missing payment session id for order %s", status.ErrGatewayHandoff, intent.OrderID)
	}
	if err := e.sdk.Ensure(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrGatewayHandoff, err)
	}

	return &Checkout{
		Kind:         KindEmbedded,
		Gateway:      e.Provider(),
		OrderID:      intent.OrderID,
		Mode:         intent.Environment.Mode(),
		Sandbox:      intent.Environment.Sandbox(),
		SDKURL:       e.scriptPath,
		SessionToken: intent.SessionToken,
	}, nil
}

func (e *EmbeddedCheckout) Close(ctx context.Context) error {
	return nil
}
