package status

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrValidation          = errors.New("registration: missing required answers")
	ErrUnauthenticated     = errors.New("auth: please sign in")
	ErrAlreadyRegistered   = errors.New("registration: already registered")
	ErrRegistrationClosed  = errors.New("registration: registration is closed")
	ErrEventNotFound       = errors.New("event: event not found")
	ErrParticipantUnknown  = errors.New("payment: participant id not found")
	ErrPaymentInFlight     = errors.New("payment: initiation already in progress")
	ErrPaymentNotRequired  = errors.New("payment: event does not require payment")
	ErrGatewayHandoff      = errors.New("payment: failed to open payment gateway")
	ErrUnsupportedGateway  = errors.New("payment: unsupported gateway")
	ErrMalformedIntent     = errors.New("payment: malformed intent response")
	ErrNetwork             = errors.New("network: request failed")
	ErrCredentialNotIssued = errors.New("credential: registration is not confirmed")
)

// MissingFieldsError names every required question left unanswered.
type MissingFieldsError struct {
	Labels []string
}

func (e *MissingFieldsError) Error() string {
	return "Please fill in the following required fields: " + strings.Join(e.Labels, ", ")
}

func (e *MissingFieldsError) Is(target error) bool { return target == ErrValidation }

// APIError is a non-2xx reply from the portal backend.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("portal: status %d", e.StatusCode)
	}
	return fmt.Sprintf("portal: status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthenticated:
		return e.StatusCode == http.StatusUnauthorized
	case ErrAlreadyRegistered:
		return e.StatusCode == http.StatusConflict
	case ErrEventNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrNetwork:
		return e.StatusCode >= http.StatusInternalServerError
	}
	return false
}

// UserMessage maps an error to the short message shown to users.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var missing *MissingFieldsError
	if errors.As(err, &missing) {
		return missing.Error()
	}

	switch {
	case errors.Is(err, ErrUnauthenticated):
		return "Please sign in to continue."
	case errors.Is(err, ErrAlreadyRegistered):
		return "You are already registered for this event."
	case errors.Is(err, ErrRegistrationClosed):
		return "Registration for this event is closed."
	case errors.Is(err, ErrEventNotFound):
		return "Event not found."
	case errors.Is(err, ErrParticipantUnknown):
		return "Participant ID not found. Please register first."
	case errors.Is(err, ErrPaymentInFlight):
		return "Payment is already being started."
	case errors.Is(err, ErrGatewayHandoff), errors.Is(err, ErrUnsupportedGateway), errors.Is(err, ErrMalformedIntent):
		return "Failed to open payment gateway. Please try again."
	case errors.Is(err, ErrCredentialNotIssued):
		return "Your ticket will be available once registration is confirmed."
	}

	var apiErr *APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == http.StatusForbidden:
			return "You do not have permission to perform this action."
		case apiErr.StatusCode == http.StatusTooManyRequests:
			return "Too many requests. Please try again later."
		case apiErr.StatusCode >= http.StatusInternalServerError:
			return "Server error. Please try again later."
		case apiErr.Message != "":
			return apiErr.Message
		}
	}

	if errors.Is(err, ErrNetwork) {
		return "Network error. Please check your connection."
	}
	return "Something went wrong. Please try again."
}

// Retryable reports whether the user may retry the same action.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrUnauthenticated), errors.Is(err, ErrValidation), errors.Is(err, ErrAlreadyRegistered),
		errors.Is(err, ErrRegistrationClosed), errors.Is(err, ErrEventNotFound):
		return false
	}
	return true
}
