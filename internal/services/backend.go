package services

import (
	"context"

	"event-portal/internal/services/gateway"
	"event-portal/models"
)

// Backend is the slice of the portal REST API the orchestration core
// depends on. portal.Client implements it.
type Backend interface {
	GetEvent(ctx context.Context, sess models.Session, eventID models.ID) (*models.Event, error)
	RegisterParticipant(ctx context.Context, sess models.Session, req models.RegistrationRequest) (*models.RegistrationReceipt, error)
	RegistrationStatus(ctx context.Context, sess models.Session, eventID models.ID) (*models.RegistrationStatus, error)
	CreatePaymentIntent(ctx context.Context, sess models.Session, req models.IntentRequest) (*models.PaymentIntent, error)
	PaymentFetcher
}

// PaymentFetcher reads the authoritative status of one order.
type PaymentFetcher interface {
	PaymentStatus(ctx context.Context, orderID string) (*models.PaymentState, error)
}

// GatewayResolver finds the checkout integration for a gateway tag.
// gateway.Registry implements it.
type GatewayResolver interface {
	Get(provider models.Gateway) (gateway.Gateway, error)
}
