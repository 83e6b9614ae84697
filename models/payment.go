package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Gateway is the tag that selects which checkout integration handles an
// intent.
type Gateway string

const (
	GatewayCashfree Gateway = "cashfree" // embedded checkout
	GatewayPayU     Gateway = "payu"     // redirect form
)

type IntentStatus string

const (
	IntentInitiated IntentStatus = "initiated"
	IntentPending   IntentStatus = "pending"
	IntentSuccess   IntentStatus = "success"
	IntentFailed    IntentStatus = "failed"
	IntentCancelled IntentStatus = "cancelled"
)

// Environment is the payment environment reported by the backend. TEST
// means the gateway runs in sandbox mode.
type Environment string

func (e Environment) Sandbox() bool {
	return strings.EqualFold(strings.TrimSpace(string(e)), "TEST")
}

func (e Environment) Mode() string {
	if e.Sandbox() {
		return "sandbox"
	}
	return "production"
}

type FormField struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// PaymentIntent is the canonical intent produced right after the
// intent-creation call. Nothing past the portal client knows about the
// wire shapes it came from.
type PaymentIntent struct {
	OrderID        string          `json:"order_id"`
	Gateway        Gateway         `json:"gateway"`
	Status         IntentStatus    `json:"status"`
	Environment    Environment     `json:"environment"`
	PaymentURL     string          `json:"payment_url,omitempty"`
	SessionToken   string          `json:"payment_session_id,omitempty"`
	GatewayOrderID string          `json:"cf_order_id,omitempty"`
	Amount         decimal.Decimal `json:"order_amount"`
	Currency       string          `json:"order_currency,omitempty"`
	FormFields     []FormField     `json:"form_fields,omitempty"`
}

type IntentRequest struct {
	EventID       ID     `json:"event_id,omitempty"`
	ParticipantID ID     `json:"participant_id,omitempty"`
	ReturnURL     string `json:"return_url"`
}

// PaymentState is a single read of the payment-status endpoint. Status is
// kept raw; classification happens in the reconciler.
type PaymentState struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	CheckedAt time.Time `json:"checked_at"`
}

// Outcome is the user-facing result of reconciling a payment.
type Outcome string

const (
	OutcomeLoading   Outcome = "loading"
	OutcomeSuccess   Outcome = "success"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomePending   Outcome = "pending"
	OutcomeAbandoned Outcome = "abandoned"
)

func (o Outcome) Terminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailed || o == OutcomeCancelled
}

type PaymentNotification struct {
	Type      string    `json:"type"`
	OrderID   string    `json:"order_id"`
	Outcome   Outcome   `json:"outcome"`
	Timestamp time.Time `json:"timestamp"`
}
