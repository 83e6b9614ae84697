package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ID is a backend identifier. The portal API emits numeric primary keys
// for some resources and strings for others, so both are accepted.
type ID string

func (id *ID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("models: id: %w", err)
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

type PricingMode string

const (
	PricingFree PricingMode = "free"
	PricingPaid PricingMode = "paid"
)

type QuestionType string

const (
	QuestionShortText    QuestionType = "short_text"
	QuestionLongText     QuestionType = "long_text"
	QuestionEmail        QuestionType = "email"
	QuestionPhone        QuestionType = "phone"
	QuestionNumber       QuestionType = "number"
	QuestionDate         QuestionType = "date"
	QuestionSingleChoice QuestionType = "single_choice"
	QuestionMultiChoice  QuestionType = "multi_choice"
	QuestionFile         QuestionType = "file"
)

func (t QuestionType) Valid() bool {
	switch t {
	case QuestionShortText, QuestionLongText, QuestionEmail, QuestionPhone,
		QuestionNumber, QuestionDate, QuestionSingleChoice, QuestionMultiChoice, QuestionFile:
		return true
	}
	return false
}

func (t QuestionType) IsChoice() bool {
	return t == QuestionSingleChoice || t == QuestionMultiChoice
}

type Question struct {
	ID       ID           `json:"id"`
	Label    string       `json:"label"`
	Type     QuestionType `json:"question_type"`
	Required bool         `json:"required"`
	Order    int          `json:"order"`
	HelpText string       `json:"help_text,omitempty"`
	Options  []string     `json:"options,omitempty"` // choice types only
}

type Event struct {
	ID                          ID                  `json:"id"`
	Name                        string              `json:"event_name"`
	PricingMode                 PricingMode         `json:"payment_type"`
	Price                       decimal.NullDecimal `json:"price"`
	RegistrationDeadline        *time.Time          `json:"registration_deadline,omitempty"`
	RegistrationOpen            *bool               `json:"is_registration_open,omitempty"`
	RequireRegistrationForm     bool                `json:"require_registration_form"`
	RequiresPaymentConfirmation bool                `json:"requires_payment_confirmation"`
	GatewayOption               Gateway             `json:"gateway_options,omitempty"`
	Questions                   []Question          `json:"questions,omitempty"`
}

// RequiresPayment reports whether a registration for this event passes
// through the payment step.
func (e *Event) RequiresPayment() bool {
	return e.PricingMode == PricingPaid || e.RequiresPaymentConfirmation
}

// AcceptsRegistrations is a local fast-fail only; the backend enforces the
// deadline and capacity again.
func (e *Event) AcceptsRegistrations(now time.Time) bool {
	if e.RegistrationOpen != nil && !*e.RegistrationOpen {
		return false
	}
	if e.RegistrationDeadline != nil && now.After(*e.RegistrationDeadline) {
		return false
	}
	return true
}

// SortQuestions orders questions by their display order, keeping the
// backend order for ties.
func (e *Event) SortQuestions() {
	sort.SliceStable(e.Questions, func(i, j int) bool {
		return e.Questions[i].Order < e.Questions[j].Order
	})
}
