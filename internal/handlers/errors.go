package handlers

import (
	"errors"
	"net/http"

	"event-portal/internal/status"

	"github.com/labstack/echo/v5"
)

type errorResponse struct {
	Error         string   `json:"error"`
	MissingFields []string `json:"missing_fields,omitempty"`
	Retryable     bool     `json:"retryable"`
}

// respondError writes err as the short user-facing message with the
// matching HTTP status.
func respondError(c echo.Context, err error) error {
	body := errorResponse{
		Error:     status.UserMessage(err),
		Retryable: status.Retryable(err),
	}
	var missing *status.MissingFieldsError
	if errors.As(err, &missing) {
		body.MissingFields = missing.Labels
	}
	return c.JSON(httpStatus(err), body)
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, status.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, status.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, status.ErrEventNotFound), errors.Is(err, status.ErrCredentialNotIssued):
		return http.StatusNotFound
	case errors.Is(err, status.ErrAlreadyRegistered), errors.Is(err, status.ErrPaymentInFlight),
		errors.Is(err, status.ErrPaymentNotRequired), errors.Is(err, status.ErrParticipantUnknown):
		return http.StatusConflict
	case errors.Is(err, status.ErrRegistrationClosed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, status.ErrGatewayHandoff), errors.Is(err, status.ErrUnsupportedGateway),
		errors.Is(err, status.ErrMalformedIntent):
		return http.StatusBadGateway
	}

	var apiErr *status.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.StatusCode {
		case http.StatusForbidden, http.StatusTooManyRequests:
			return apiErr.StatusCode
		}
	}
	if errors.Is(err, status.ErrNetwork) {
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
