package services

import (
	"context"
	"sync"

	"event-portal/internal/services/gateway"
	"event-portal/internal/status"
	"event-portal/models"

	"github.com/stretchr/testify/mock"
)

type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) GetEvent(ctx context.Context, sess models.Session, eventID models.ID) (*models.Event, error) {
	args := m.Called(ctx, sess, eventID)
	ev, _ := args.Get(0).(*models.Event)
	return ev, args.Error(1)
}

func (m *MockBackend) RegisterParticipant(ctx context.Context, sess models.Session, req models.RegistrationRequest) (*models.RegistrationReceipt, error) {
	args := m.Called(ctx, sess, req)
	r, _ := args.Get(0).(*models.RegistrationReceipt)
	return r, args.Error(1)
}

func (m *MockBackend) RegistrationStatus(ctx context.Context, sess models.Session, eventID models.ID) (*models.RegistrationStatus, error) {
	args := m.Called(ctx, sess, eventID)
	st, _ := args.Get(0).(*models.RegistrationStatus)
	return st, args.Error(1)
}

func (m *MockBackend) CreatePaymentIntent(ctx context.Context, sess models.Session, req models.IntentRequest) (*models.PaymentIntent, error) {
	args := m.Called(ctx, sess, req)
	in, _ := args.Get(0).(*models.PaymentIntent)
	return in, args.Error(1)
}

func (m *MockBackend) PaymentStatus(ctx context.Context, orderID string) (*models.PaymentState, error) {
	args := m.Called(ctx, orderID)
	st, _ := args.Get(0).(*models.PaymentState)
	return st, args.Error(1)
}

// scriptedFetcher answers payment-status polls from a fixed script; the
// last entry repeats.
type scriptedFetcher struct {
	mu       sync.Mutex
	statuses []string
	errs     []error
	calls    int
	block    chan struct{}
}

func (f *scriptedFetcher) PaymentStatus(ctx context.Context, orderID string) (*models.PaymentState, error) {
	f.mu.Lock()
	i := f.calls
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	s := ""
	if n := len(f.statuses); n > 0 {
		s = f.statuses[min(i, n-1)]
	}
	return &models.PaymentState{OrderID: orderID, Status: s}, nil
}

func (f *scriptedFetcher) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type stubGateway struct {
	provider models.Gateway
	err      error
}

func (g *stubGateway) Provider() models.Gateway { return g.provider }

func (g *stubGateway) BeginCheckout(ctx context.Context, intent *models.PaymentIntent) (*gateway.Checkout, error) {
	if g.err != nil {
		return nil, g.err
	}
	return &gateway.Checkout{
		Kind:    gateway.KindRedirect,
		Gateway: g.provider,
		OrderID: intent.OrderID,
		Mode:    intent.Environment.Mode(),
	}, nil
}

func (g *stubGateway) Close(ctx context.Context) error { return nil }

type stubResolver map[models.Gateway]gateway.Gateway

func (r stubResolver) Get(provider models.Gateway) (gateway.Gateway, error) {
	if g, ok := r[provider]; ok {
		return g, nil
	}
	return nil, status.ErrUnsupportedGateway
}

type recordingPublisher struct {
	mu       sync.Mutex
	channels []string
	messages []any
	err      error
}

func (p *recordingPublisher) Publish(ctx context.Context, channel string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.channels = append(p.channels, channel)
	p.messages = append(p.messages, message)
	return p.err
}

func (p *recordingPublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

var testSession = models.Session{Token: "token-abc"}

func boolPtr(b bool) *bool { return &b }

func (f *scriptedFetcher) set(statuses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = statuses
	f.calls = 0
}
