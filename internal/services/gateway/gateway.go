package gateway

import (
	"context"

	"event-portal/models"
)

// Kind is how the user is handed over to the gateway.
type Kind string

const (
	KindEmbedded Kind = "embedded"
	KindRedirect Kind = "redirect"
)

// Checkout is everything the view needs to hand the user to a gateway.
type Checkout struct {
	Kind    Kind           `json:"kind"`
	Gateway models.Gateway `json:"gateway"`
	OrderID string         `json:"order_id"`
	Mode    string         `json:"mode"`
	Sandbox bool           `json:"sandbox"`

	// Embedded checkout.
	SDKURL       string `json:"sdk_url,omitempty"`
	SessionToken string `json:"payment_session_id,omitempty"`

	// Redirect form.
	Action string             `json:"action,omitempty"`
	Method string             `json:"method,omitempty"`
	Fields []models.FormField `json:"fields,omitempty"`
}

// Gateway defines the common interface for all checkout integrations
type Gateway interface {
	// Provider returns the gateway tag this integration serves
	Provider() models.Gateway

	// BeginCheckout prepares the handoff for a freshly created intent.
	// Every failure wraps status.ErrGatewayHandoff.
	BeginCheckout(ctx context.Context, intent *models.PaymentIntent) (*Checkout, error)

	// Close releases anything the integration holds
	Close(ctx context.Context) error
}

// Factory creates gateway instances based on provider tag
type Factory interface {
	Create(provider models.Gateway, config any) (Gateway, error)
	SupportedProviders() []models.Gateway
}
