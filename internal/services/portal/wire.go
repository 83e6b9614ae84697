package portal

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"event-portal/internal/status"
	"event-portal/models"

	"github.com/shopspring/decimal"
)

// questionList accepts a bare array or a paginated {"results": [...]}.
type questionList struct {
	items []models.Question
}

func (l *questionList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '[' {
		return json.Unmarshal(b, &l.items)
	}
	var page struct {
		Results []models.Question `json:"results"`
	}
	if err := json.Unmarshal(b, &page); err != nil {
		return err
	}
	l.items = page.Results
	return nil
}

type registerReply struct {
	ParticipantID   models.ID `json:"participant_id"`
	RequiresPayment bool      `json:"requires_payment"`
	Participant     *struct {
		ID models.ID `json:"id"`
	} `json:"participant"`
}

func (r *registerReply) receipt() *models.RegistrationReceipt {
	id := r.ParticipantID
	if id == "" && r.Participant != nil {
		id = r.Participant.ID
	}
	return &models.RegistrationReceipt{ParticipantID: id, RequiresPayment: r.RequiresPayment}
}

type registrationStatusReply struct {
	IsRegistered       *bool           `json:"is_registered"`
	Registered         *bool           `json:"registered"` // legacy
	RegistrationStatus string          `json:"registration_status"`
	PaymentStatus      json.RawMessage `json:"payment_status"`
	Registration       *struct {
		Hash string `json:"hash"`
	} `json:"registration"`
}

func (r *registrationStatusReply) normalize(eventID models.ID) *models.RegistrationStatus {
	s := &models.RegistrationStatus{
		EventID: eventID,
		State:   models.RegistrationState(strings.ToLower(strings.TrimSpace(r.RegistrationStatus))),
		Payment: models.PaymentFlagFrom(parseFlag(r.PaymentStatus)),
	}
	switch {
	case r.IsRegistered != nil:
		s.IsRegistered = *r.IsRegistered
	case r.Registered != nil:
		s.IsRegistered = *r.Registered
	}
	if r.Registration != nil {
		s.Hash = strings.TrimSpace(r.Registration.Hash)
	}
	return s
}

// parseFlag reads a boolean that some backend versions send as a string.
func parseFlag(raw json.RawMessage) *bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return &b
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "paid", "success", "completed":
		b = true
		return &b
	case "false", "unpaid", "failed":
		return &b
	}
	return nil
}

// gatewayPayload is the handoff payload, found under payment_data in the
// current shape and under cashfree_data in the legacy one.
type gatewayPayload struct {
	Gateway          models.Gateway             `json:"gateway"`
	OrderID          string                     `json:"order_id"`
	PaymentURL       string                     `json:"payment_url"`
	Environment      models.Environment         `json:"environment"`
	CfOrderID        models.ID                  `json:"cf_order_id"`
	PaymentSessionID string                     `json:"payment_session_id"`
	PaymentToken     string                     `json:"payment_token"`
	OrderAmount      decimal.NullDecimal        `json:"order_amount"`
	OrderCurrency    string                     `json:"order_currency"`
	FormData         map[string]json.RawMessage `json:"form_data"`
}

type intentReply struct {
	Success bool           `json:"success"`
	Error   string         `json:"error"`
	Gateway models.Gateway `json:"gateway"`
	Payment struct {
		OrderID string `json:"order_id"`
		Status  string `json:"status"`
	} `json:"payment"`
	PaymentData  *gatewayPayload `json:"payment_data"`
	CashfreeData *gatewayPayload `json:"cashfree_data"` // legacy
}

// normalize folds both response shapes into one canonical intent.
func (r *intentReply) normalize() (*models.PaymentIntent, error) {
	if !r.Success {
		msg := r.Error
		if msg == "" {
			msg = "success=false"
		}
		return nil, fmt.Errorf("%w: %s", status.ErrMalformedIntent, msg)
	}

	payload := r.PaymentData
	gateway := r.Gateway
	if payload == nil && r.CashfreeData != nil {
		payload = r.CashfreeData
		gateway = models.GatewayCashfree
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: no handoff payload", status.ErrMalformedIntent)
	}
	if payload.Gateway != "" {
		gateway = payload.Gateway
	}
	if gateway == "" {
		gateway = models.GatewayCashfree
	}

	intent := &models.PaymentIntent{
		OrderID:        firstNonEmpty(payload.OrderID, r.Payment.OrderID),
		Gateway:        models.Gateway(strings.ToLower(string(gateway))),
		Status:         models.IntentInitiated,
		Environment:    payload.Environment,
		PaymentURL:     strings.TrimSpace(payload.PaymentURL),
		SessionToken:   strings.TrimSpace(firstNonEmpty(payload.PaymentSessionID, payload.PaymentToken)),
		GatewayOrderID: payload.CfOrderID.String(),
		Currency:       payload.OrderCurrency,
		FormFields:     formFields(payload.FormData),
	}
	if payload.OrderAmount.Valid {
		intent.Amount = payload.OrderAmount.Decimal
	}
	if st := strings.ToLower(strings.TrimSpace(r.Payment.Status)); st != "" {
		intent.Status = models.IntentStatus(st)
	}
	if intent.OrderID == "" {
		return nil, fmt.Errorf("%w: missing order id", status.ErrMalformedIntent)
	}
	return intent, nil
}

// formFields flattens form_data into fields sorted by name. String values
// are unquoted; anything else keeps its JSON text.
func formFields(data map[string]json.RawMessage) []models.FormField {
	if len(data) == 0 {
		return nil
	}
	fields := make([]models.FormField, 0, len(data))
	for name, raw := range data {
		fields = append(fields, models.FormField{Name: name, Value: rawString(raw)})
	}
	sort.Slice(fields, func(i, j int) bool { return fields[i].Name < fields[j].Name })
	return fields
}

func rawString(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(raw)
}

type paymentRecord struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// paymentStatusReply accepts data.payment, the doubly wrapped
// data.data.payment, and a bare top-level payment.
type paymentStatusReply struct {
	Success bool `json:"success"`
	Data    struct {
		Payment *paymentRecord `json:"payment"`
		Data    *struct {
			Payment *paymentRecord `json:"payment"`
		} `json:"data"`
	} `json:"data"`
	Payment *paymentRecord `json:"payment"`
}

func (r *paymentStatusReply) state(orderID string) *models.PaymentState {
	rec := r.Data.Payment
	if rec == nil && r.Data.Data != nil {
		rec = r.Data.Data.Payment
	}
	if rec == nil {
		rec = r.Payment
	}

	st := &models.PaymentState{OrderID: orderID, CheckedAt: time.Now()}
	if rec != nil {
		st.Status = strings.TrimSpace(rec.Status)
		if rec.OrderID != "" {
			st.OrderID = rec.OrderID
		}
	}
	return st
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
