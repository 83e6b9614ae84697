package portal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"event-portal/internal/status"
	"event-portal/models"
	"event-portal/utils"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const maxReplyBytes = 1 << 20

type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client talks to the portal REST backend. Every call passes the caller's
// session through; the client holds no credentials of its own.
type Client struct {
	// baseURL is the API root, e.g. https://host/api.
	baseURL string

	// hc is the http client.
	hc *http.Client

	// breaker guards the backend against request pile-ups while it is down.
	breaker *utils.CircuitBreaker

	logger *zap.Logger
}

func NewClient(c Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	return &Client{
		baseURL: c.BaseURL,
		hc: &http.Client{
			Timeout: c.Timeout,
		},
		breaker: utils.NewCircuitBreaker("portal-api",
			utils.WithFailureFilter(func(err error) bool { return errors.Is(err, status.ErrNetwork) }),
		),
		logger: logger,
	}
}

type reply struct {
	code int
	body []byte
}

// do sends one request. Transport failures and 5xx replies come back as
// errors wrapping status.ErrNetwork; other non-2xx replies come back as
// *status.APIError.
func (c *Client) do(ctx context.Context, method, path string, sess models.Session, in any, header http.Header) (*reply, error) {
	var payload []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return nil, fmt.Errorf("portal: json.Marshal: %w", err)
		}
		payload = b
	}

	res, err := c.breaker.Execute(ctx, func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return nil, fmt.Errorf("portal: http.NewReq: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if auth := sess.Authorization(); auth != "" {
			req.Header.Set("Authorization", auth)
		}
		for k, v := range header {
			req.Header[k] = v
		}

		resp, err := c.hc.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("%w: %s %s: %v", status.ErrNetwork, method, path, err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
		if err != nil {
			return nil, fmt.Errorf("%w: %s %s: read body: %v", status.ErrNetwork, method, path, err)
		}
		if resp.StatusCode >= http.StatusInternalServerError {
			return nil, &status.APIError{StatusCode: resp.StatusCode, Message: errorMessage(body)}
		}
		return &reply{code: resp.StatusCode, body: body}, nil
	})
	if err != nil {
		if errors.Is(err, utils.ErrCircuitOpen) || errors.Is(err, utils.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", status.ErrNetwork, err)
		}
		return nil, err
	}

	rep := res.(*reply)
	if rep.code >= http.StatusBadRequest {
		c.logger.Debug("portal rejected request",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", rep.code),
		)
		return rep, &status.APIError{StatusCode: rep.code, Message: errorMessage(rep.body)}
	}
	return rep, nil
}

func (c *Client) decode(rep *reply, out any, op string) error {
	if err := json.Unmarshal(rep.body, out); err != nil {
		return fmt.Errorf("%s: json.Decode: %w", op, err)
	}
	return nil
}

// GetEvent reads event metadata, fetching the question list separately
// when the event requires a form but the detail view did not embed it.
func (c *Client) GetEvent(ctx context.Context, sess models.Session, eventID models.ID) (*models.Event, error) {
	rep, err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID.String())+"/", sess, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getEvent: %w", err)
	}

	var ev models.Event
	if err := c.decode(rep, &ev, "getEvent"); err != nil {
		return nil, err
	}
	if ev.ID == "" {
		ev.ID = eventID
	}

	if ev.RequireRegistrationForm && len(ev.Questions) == 0 {
		questions, err := c.GetQuestions(ctx, sess, eventID)
		if err != nil {
			return nil, err
		}
		ev.Questions = questions
	}
	ev.SortQuestions()
	return &ev, nil
}

func (c *Client) GetQuestions(ctx context.Context, sess models.Session, eventID models.ID) ([]models.Question, error) {
	rep, err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID.String())+"/questions/", sess, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("getQuestions: %w", err)
	}

	var list questionList
	if err := c.decode(rep, &list, "getQuestions"); err != nil {
		return nil, err
	}
	return list.items, nil
}

func (c *Client) RegisterParticipant(ctx context.Context, sess models.Session, req models.RegistrationRequest) (*models.RegistrationReceipt, error) {
	rep, err := c.do(ctx, http.MethodPost, "/events/"+url.PathEscape(req.EventID.String())+"/register/", sess, req, nil)
	if err != nil {
		return nil, fmt.Errorf("registerParticipant: %w", err)
	}

	var r registerReply
	if err := c.decode(rep, &r, "registerParticipant"); err != nil {
		return nil, err
	}
	return r.receipt(), nil
}

func (c *Client) RegistrationStatus(ctx context.Context, sess models.Session, eventID models.ID) (*models.RegistrationStatus, error) {
	rep, err := c.do(ctx, http.MethodGet, "/events/"+url.PathEscape(eventID.String())+"/registration-status/", sess, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("registrationStatus: %w", err)
	}

	var r registrationStatusReply
	if err := c.decode(rep, &r, "registrationStatus"); err != nil {
		return nil, err
	}
	return r.normalize(eventID), nil
}

// CreatePaymentIntent asks the backend for a new payment intent. Each call
// carries a fresh Idempotency-Key so a transport-level retry by a proxy
// cannot mint two orders.
func (c *Client) CreatePaymentIntent(ctx context.Context, sess models.Session, req models.IntentRequest) (*models.PaymentIntent, error) {
	header := http.Header{}
	header.Set("Idempotency-Key", uuid.NewString())

	rep, err := c.do(ctx, http.MethodPost, "/payment/initiate/", sess, req, header)
	if err != nil {
		return nil, fmt.Errorf("createPaymentIntent: %w", err)
	}

	var r intentReply
	if err := c.decode(rep, &r, "createPaymentIntent"); err != nil {
		return nil, fmt.Errorf("%w: %v", status.ErrMalformedIntent, err)
	}
	intent, err := r.normalize()
	if err != nil {
		return nil, fmt.Errorf("createPaymentIntent: %w", err)
	}
	return intent, nil
}

// PaymentStatus reads the authoritative status of one order. The endpoint
// is public; the order id is the only key.
func (c *Client) PaymentStatus(ctx context.Context, orderID string) (*models.PaymentState, error) {
	rep, err := c.do(ctx, http.MethodGet, "/payment/status/"+url.PathEscape(orderID)+"/", models.Session{}, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("paymentStatus: %w", err)
	}

	var r paymentStatusReply
	if err := c.decode(rep, &r, "paymentStatus"); err != nil {
		return nil, err
	}
	return r.state(orderID), nil
}

func errorMessage(body []byte) string {
	var r struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if err := json.Unmarshal(body, &r); err != nil {
		return ""
	}
	switch {
	case r.Error != "":
		return r.Error
	case r.Message != "":
		return r.Message
	}
	return r.Detail
}
