package models

import (
	"encoding/json"
	"strings"
)

type RegistrationState string

const (
	RegistrationPending   RegistrationState = "pending"
	RegistrationConfirmed RegistrationState = "confirmed"
	RegistrationCancelled RegistrationState = "cancelled"
)

// PaymentFlag is the tri-state payment status of a registration. The
// backend sends a boolean, or nothing while the payment is unresolved.
type PaymentFlag int

const (
	PaymentUnknown PaymentFlag = iota
	PaymentSettled
	PaymentUnsettled
)

func PaymentFlagFrom(b *bool) PaymentFlag {
	switch {
	case b == nil:
		return PaymentUnknown
	case *b:
		return PaymentSettled
	default:
		return PaymentUnsettled
	}
}

// AnswerValue is a single string, or a list of strings for multi-choice
// questions. It marshals to whichever of the two shapes it was built with.
type AnswerValue struct {
	values []string
	multi  bool
}

func Text(s string) AnswerValue { return AnswerValue{values: []string{s}} }

func Choices(values ...string) AnswerValue {
	return AnswerValue{values: append([]string(nil), values...), multi: true}
}

func (v AnswerValue) Values() []string { return v.values }

func (v AnswerValue) IsEmpty() bool {
	for _, s := range v.values {
		if strings.TrimSpace(s) != "" {
			return false
		}
	}
	return true
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.multi {
		if v.values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.values)
	}
	if len(v.values) == 0 {
		return []byte(`""`), nil
	}
	return json.Marshal(v.values[0])
}

func (v *AnswerValue) UnmarshalJSON(b []byte) error {
	var list []string
	if err := json.Unmarshal(b, &list); err == nil {
		*v = Choices(list...)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	*v = Text(s)
	return nil
}

type Answer struct {
	QuestionID ID          `json:"question_id"`
	Value      AnswerValue `json:"value"`
}

type RegistrationRequest struct {
	EventID ID       `json:"event_id"`
	Answers []Answer `json:"answers,omitempty"`
}

type RegistrationReceipt struct {
	ParticipantID   ID   `json:"participant_id"`
	RequiresPayment bool `json:"requires_payment"`
}

// RegistrationStatus is the canonical registration-status view, built
// from either the current or the legacy backend field names.
type RegistrationStatus struct {
	EventID      ID                `json:"event_id"`
	IsRegistered bool              `json:"is_registered"`
	State        RegistrationState `json:"registration_status,omitempty"`
	Payment      PaymentFlag       `json:"payment_status"`
	Hash         string            `json:"hash,omitempty"`
}

// Confirmed reports whether the registration is active and confirmed. A
// registered status without an explicit state comes from the legacy
// endpoint, which only reported confirmed registrations.
func (s *RegistrationStatus) Confirmed() bool {
	if s == nil || !s.IsRegistered {
		return false
	}
	return s.State == "" || s.State == RegistrationConfirmed
}

// Active reports whether a non-cancelled registration exists.
func (s *RegistrationStatus) Active() bool {
	return s != nil && s.IsRegistered && s.State != RegistrationCancelled
}
