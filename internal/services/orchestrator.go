package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"event-portal/internal/services/gateway"
	"event-portal/internal/status"
	"event-portal/models"
	"event-portal/monitoring"

	"go.uber.org/zap"
)

type Step string

const (
	StepRegister Step = "register"
	StepPayment  Step = "payment"
	StepSuccess  Step = "success"
)

const flowIdleTTL = 30 * time.Minute

// FlowState is the client-visible position of one (user, event) flow.
type FlowState struct {
	EventID         models.ID                  `json:"event_id"`
	Step            Step                       `json:"step"`
	RequiresPayment bool                       `json:"requires_payment"`
	ParticipantID   models.ID                  `json:"participant_id,omitempty"`
	Questions       []models.Question          `json:"questions,omitempty"`
	Registration    *models.RegistrationStatus `json:"registration,omitempty"`
	PendingOrderID  string                     `json:"pending_order_id,omitempty"`
}

// Orchestrator owns the register -> payment -> success flows. One Flow
// exists per (session subject, event) so concurrent requests from the same
// user share its in-flight guard.
type Orchestrator struct {
	backend      Backend
	registration *RegistrationService
	cache        *StatusCache
	gateways     GatewayResolver
	returnURL    string
	monitor      *monitoring.Monitor
	logger       *zap.Logger

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewOrchestrator(backend Backend, registration *RegistrationService, cache *StatusCache, gateways GatewayResolver, returnURL string, monitor *monitoring.Monitor, logger *zap.Logger) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		backend:      backend,
		registration: registration,
		cache:        cache,
		gateways:     gateways,
		returnURL:    returnURL,
		monitor:      monitor,
		logger:       logger,
		flows:        make(map[string]*Flow),
	}
}

// Flow returns the flow for the session and event, loading the event from
// the directory the first time.
func (o *Orchestrator) Flow(ctx context.Context, sess models.Session, eventID models.ID) (*Flow, error) {
	if !sess.Authenticated() {
		return nil, status.ErrUnauthenticated
	}

	key := sess.Subject() + ":" + eventID.String()
	now := time.Now()

	o.mu.Lock()
	o.sweepLocked(now)
	if f, ok := o.flows[key]; ok {
		f.touch(sess, now)
		o.mu.Unlock()
		return f, nil
	}
	o.mu.Unlock()

	ev, err := o.backend.GetEvent(ctx, sess, eventID)
	if err != nil {
		return nil, fmt.Errorf("flow: event: %w", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	// another request may have created it while the event was loading
	if f, ok := o.flows[key]; ok {
		f.touch(sess, now)
		return f, nil
	}
	f := &Flow{o: o, sess: sess, event: ev, step: StepRegister, lastUsed: now}
	o.flows[key] = f
	return f, nil
}

func (o *Orchestrator) sweepLocked(now time.Time) {
	for key, f := range o.flows {
		f.mu.Lock()
		idle := now.Sub(f.lastUsed) > flowIdleTTL
		f.mu.Unlock()
		if idle && !f.inFlight.Load() {
			delete(o.flows, key)
		}
	}
}

// Flow is one user's progress through registering for one event. Its
// position is always rebuilt from server status on Resume; the fields here
// only carry what the server does not return, like the participant id.
type Flow struct {
	o     *Orchestrator
	event *models.Event

	inFlight atomic.Bool

	mu            sync.Mutex
	sess          models.Session
	step          Step
	participantID models.ID
	lastOrderID   string
	registration  *models.RegistrationStatus
	lastUsed      time.Time
}

func (f *Flow) touch(sess models.Session, now time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sess = sess
	f.lastUsed = now
}

func (f *Flow) Event() *models.Event { return f.event }

func (f *Flow) State() FlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stateLocked()
}

func (f *Flow) stateLocked() FlowState {
	st := FlowState{
		EventID:         f.event.ID,
		Step:            f.step,
		RequiresPayment: f.event.RequiresPayment(),
		ParticipantID:   f.participantID,
		Registration:    f.registration,
	}
	if f.step == StepRegister && f.event.RequireRegistrationForm {
		st.Questions = f.event.Questions
	}
	if f.step == StepPayment {
		st.PendingOrderID = f.lastOrderID
	}
	return st
}

// Resume rebuilds the flow position from the registration status.
func (f *Flow) Resume(ctx context.Context) (FlowState, error) {
	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()

	reg, err := f.o.cache.Load(ctx, f.o.backend, sess, f.event.ID, false)
	if err != nil {
		return f.State(), fmt.Errorf("resume: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.registration = reg
	f.step = stepFor(f.event, reg)
	return f.stateLocked(), nil
}

func stepFor(ev *models.Event, reg *models.RegistrationStatus) Step {
	switch {
	case !reg.Active():
		return StepRegister
	case !ev.RequiresPayment():
		return StepSuccess
	case reg.Payment == models.PaymentSettled, reg.State == models.RegistrationConfirmed:
		return StepSuccess
	default:
		return StepPayment
	}
}

// Register runs the registration step. An existing registration is not an
// error: the flow resumes from server status instead.
func (f *Flow) Register(ctx context.Context, answers []models.Answer) (FlowState, error) {
	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()

	res, err := f.o.registration.Register(ctx, sess, f.event, answers)
	if errors.Is(err, status.ErrAlreadyRegistered) {
		return f.Resume(ctx)
	}
	if errors.Is(err, status.ErrRegistrationClosed) || errors.Is(err, status.ErrValidation) {
		// local checks run before the server is asked; an existing
		// registration still wins over a closed event or an empty form
		if st, ok := f.resumeIfRegistered(ctx, sess); ok {
			return st, nil
		}
		return f.State(), err
	}
	if err != nil {
		return f.State(), err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.participantID = res.ParticipantID
	f.registration = nil
	if res.RequiresPayment {
		f.step = StepPayment
	} else {
		f.step = StepSuccess
	}
	return f.stateLocked(), nil
}

func (f *Flow) resumeIfRegistered(ctx context.Context, sess models.Session) (FlowState, bool) {
	reg, err := f.o.cache.Load(ctx, f.o.backend, sess, f.event.ID, true)
	if err != nil || !reg.Active() {
		return FlowState{}, false
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.registration = reg
	f.step = stepFor(f.event, reg)
	return f.stateLocked(), true
}

// InitiatePayment creates a payment intent and prepares the checkout
// handoff. A call made while another is in flight returns
// status.ErrPaymentInFlight without touching the backend. Every failure
// leaves the flow in the payment step.
func (f *Flow) InitiatePayment(ctx context.Context) (*gateway.Checkout, error) {
	if !f.inFlight.CompareAndSwap(false, true) {
		return nil, status.ErrPaymentInFlight
	}
	defer f.inFlight.Store(false)

	f.mu.Lock()
	sess, step, participantID := f.sess, f.step, f.participantID
	f.mu.Unlock()

	switch step {
	case StepSuccess:
		return nil, status.ErrPaymentNotRequired
	case StepRegister:
		return nil, status.ErrParticipantUnknown
	}

	req := models.IntentRequest{ReturnURL: f.o.returnURL}
	if f.event.PricingMode == models.PricingPaid {
		req.EventID = f.event.ID
	} else {
		if participantID == "" {
			return nil, status.ErrParticipantUnknown
		}
		req.ParticipantID = participantID
	}

	intent, err := f.o.backend.CreatePaymentIntent(ctx, sess, req)
	if err != nil {
		f.o.monitor.TrackPaymentIntent("unknown", "error")
		return nil, fmt.Errorf("initiate payment: %w", err)
	}
	f.o.monitor.TrackPaymentIntent(string(intent.Gateway), "created")

	g, err := f.o.gateways.Get(intent.Gateway)
	if err != nil {
		f.o.monitor.TrackHandoff(string(intent.Gateway), "unsupported")
		return nil, fmt.Errorf("initiate payment: %w", err)
	}

	checkout, err := g.BeginCheckout(ctx, intent)
	if err != nil {
		f.o.monitor.TrackHandoff(string(intent.Gateway), "failed")
		f.o.logger.Warn("checkout handoff failed",
			zap.String("order_id", intent.OrderID),
			zap.String("gateway", string(intent.Gateway)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("initiate payment: %w", err)
	}
	f.o.monitor.TrackHandoff(string(intent.Gateway), "ok")

	f.mu.Lock()
	f.lastOrderID = intent.OrderID
	f.mu.Unlock()

	f.o.logger.Info("checkout handoff ready",
		zap.String("event_id", f.event.ID.String()),
		zap.String("order_id", intent.OrderID),
		zap.String("gateway", string(intent.Gateway)),
		zap.String("mode", checkout.Mode),
	)
	return checkout, nil
}
