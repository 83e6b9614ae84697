package gateway

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"event-portal/internal/status"
	"event-portal/models"
)

type RedirectConfig struct {
	// AllowedHosts limits where the form may post. Empty allows any https
	// host.
	AllowedHosts []string
}

// RedirectForm builds a hidden form that posts the intent's fields to the
// gateway's payment URL and submits itself.
type RedirectForm struct {
	allowed map[string]struct{}
}

func NewRedirectForm(cfg *RedirectConfig) *RedirectForm {
	f := &RedirectForm{allowed: make(map[string]struct{})}
	if cfg != nil {
		for _, h := range cfg.AllowedHosts {
			if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
				f.allowed[h] = struct{}{}
			}
		}
	}
	return f
}

func (f *RedirectForm) Provider() models.Gateway {
	return models.GatewayPayU
}

func (f *RedirectForm) BeginCheckout(ctx context.Context, intent *models.PaymentIntent) (*Checkout, error) {
	action, err := f.action(intent.PaymentURL)
	if err != nil {
		return nil, fmt.Errorf("%w: order %s: %v", status.ErrGatewayHandoff, intent.OrderID, err)
	}
	if len(intent.FormFields) == 0 {
		return nil, fmt.Errorf("%w: order %s: no form fields", status.ErrGatewayHandoff, intent.OrderID)
	}

	fields := make([]models.FormField, 0, len(intent.FormFields))
	for _, field := range intent.FormFields {
		if strings.TrimSpace(field.Name) == "" {
			return nil, fmt.Errorf("%w: order %s: unnamed form field", status.ErrGatewayHandoff, intent.OrderID)
		}
		fields = append(fields, field)
	}

	return &Checkout{
		Kind:    KindRedirect,
		Gateway: f.Provider(),
		OrderID: intent.OrderID,
		Mode:    intent.Environment.Mode(),
		Sandbox: intent.Environment.Sandbox(),
		Action:  action,
		Method:  "POST",
		Fields:  fields,
	}, nil
}

func (f *RedirectForm) action(raw string) (string, error) {
	if raw == "" {
		return "", fmt.Errorf("missing payment url")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("payment url: %w", err)
	}
	if u.Scheme != "https" || u.Host == "" {
		return "", fmt.Errorf("payment url %q is not an absolute https url", raw)
	}
	if len(f.allowed) > 0 {
		if _, ok := f.allowed[strings.ToLower(u.Hostname())]; !ok {
			return "", fmt.Errorf("payment host %q is not allowed", u.Hostname())
		}
	}
	return u.String(), nil
}

func (f *RedirectForm) Close(ctx context.Context) error {
	return nil
}
