package services

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"event-portal/models"
	"event-portal/monitoring"

	"go.uber.org/zap"
)

var ErrWatchSuperseded = errors.New("reconcile: watch superseded by a newer order")

const finishedWatchTTL = 15 * time.Minute

// orderIDParams are the query parameters gateways use for the order id on
// the return URL, in lookup order.
var orderIDParams = []string{"order_id", "orderId", "referenceId"}

func OrderIDFromQuery(q url.Values) string {
	for _, name := range orderIDParams {
		if v := strings.TrimSpace(q.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// Classify maps a raw gateway status to an outcome. done is false while
// polling should continue. Unknown or missing statuses are treated like
// pending.
func Classify(raw string, timedOut bool) (outcome models.Outcome, done bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "success":
		return models.OutcomeSuccess, true
	case "failed":
		return models.OutcomeFailed, true
	case "cancelled":
		return models.OutcomeCancelled, true
	}
	if timedOut {
		return models.OutcomePending, true
	}
	return models.OutcomeLoading, false
}

type ReconcilerConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// Reconciler polls payment status after a checkout handoff. It keeps at
// most one watch per view key; starting a watch for a different order
// stops the previous one.
type Reconciler struct {
	fetcher  PaymentFetcher
	interval time.Duration
	timeout  time.Duration
	cache    *StatusCache
	notifier *Notifier
	monitor  *monitoring.Monitor
	logger   *zap.Logger

	mu      sync.Mutex
	watches map[string]*Watch
}

func NewReconciler(fetcher PaymentFetcher, cfg ReconcilerConfig, cache *StatusCache, notifier *Notifier, monitor *monitoring.Monitor, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Reconciler{
		fetcher:  fetcher,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		cache:    cache,
		notifier: notifier,
		monitor:  monitor,
		logger:   logger,
		watches:  make(map[string]*Watch),
	}
}

// Watch starts polling orderID for the view. Polling stops when ctx is
// done, when the outcome is surfaced, or when the view starts watching a
// different order. Watching the same order again returns the running
// watch.
func (r *Reconciler) Watch(ctx context.Context, viewKey, subject, orderID string) *Watch {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sweepLocked(time.Now())
	if prev, ok := r.watches[viewKey]; ok {
		if prev.orderID == orderID && prev.reusable() {
			return prev
		}
		prev.supersede()
	}

	w := r.start(ctx, viewKey, subject, orderID)
	r.watches[viewKey] = w
	return w
}

// Lookup returns the view's current watch.
func (r *Reconciler) Lookup(viewKey string) (*Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[viewKey]
	return w, ok
}

// Reconcile runs a single watch to completion outside any view.
func (r *Reconciler) Reconcile(ctx context.Context, orderID string) (models.Outcome, error) {
	w := r.start(ctx, "", "", orderID)
	return w.Wait(ctx)
}

func (r *Reconciler) sweepLocked(now time.Time) {
	for key, w := range r.watches {
		if w.finishedBefore(now.Add(-finishedWatchTTL)) {
			delete(r.watches, key)
		}
	}
}

func (r *Reconciler) start(ctx context.Context, viewKey, subject, orderID string) *Watch {
	loopCtx, cancel := context.WithCancel(ctx)
	w := &Watch{
		r:       r,
		viewKey: viewKey,
		subject: subject,
		orderID: orderID,
		started: time.Now(),
		cancel:  cancel,
		done:    make(chan struct{}),
		outcome: models.OutcomeLoading,
	}

	if orderID == "" {
		w.finish(models.OutcomeAbandoned)
		cancel()
		close(w.done)
		return w
	}

	r.monitor.WatchStarted()
	go w.loop(loopCtx)
	return w
}

// Watch is one polling loop for one order.
type Watch struct {
	r       *Reconciler
	viewKey string
	subject string
	orderID string
	started time.Time
	cancel  context.CancelFunc
	done    chan struct{}

	mu         sync.Mutex
	outcome    models.Outcome
	lastStatus string
	finishedAt time.Time
	stopped    bool
	superseded bool
}

func (w *Watch) OrderID() string { return w.orderID }

// LastStatus is the raw gateway status from the most recent successful
// poll.
func (w *Watch) LastStatus() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastStatus
}

func (w *Watch) Outcome() models.Outcome {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.outcome
}

// Done is closed when the polling loop exits.
func (w *Watch) Done() <-chan struct{} { return w.done }

// Wait blocks until the loop exits or ctx is done and returns the outcome
// seen so far.
func (w *Watch) Wait(ctx context.Context) (models.Outcome, error) {
	select {
	case <-w.done:
	case <-ctx.Done():
		return w.Outcome(), ctx.Err()
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.superseded {
		return w.outcome, ErrWatchSuperseded
	}
	return w.outcome, nil
}

// Stop ends polling. Responses that arrive afterwards are discarded.
func (w *Watch) Stop() {
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()
	w.cancel()
}

func (w *Watch) supersede() {
	w.mu.Lock()
	w.superseded = true
	w.mu.Unlock()
	w.Stop()
}

// reusable reports whether a new mount of the same view may share this
// watch: it is still polling, or it already reached a terminal outcome.
func (w *Watch) reusable() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return false
	}
	select {
	case <-w.done:
		return w.outcome.Terminal()
	default:
		return true
	}
}

func (w *Watch) finishedBefore(t time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return !w.finishedAt.IsZero() && w.finishedAt.Before(t)
}

func (w *Watch) timedOut() bool {
	return time.Since(w.started) >= w.r.timeout
}

// CheckAgain forces one extra poll. It does not restart the timeout: a
// non-terminal status before the deadline leaves the outcome loading, and
// after it the outcome stays pending. An abandoned watch is never polled.
func (w *Watch) CheckAgain(ctx context.Context) (models.Outcome, error) {
	w.mu.Lock()
	current, superseded := w.outcome, w.superseded
	w.mu.Unlock()

	switch {
	case superseded:
		return current, ErrWatchSuperseded
	case current == models.OutcomeAbandoned, current.Terminal():
		return current, nil
	}

	raw := w.poll(ctx)
	if ctx.Err() != nil {
		return current, ctx.Err()
	}

	outcome, done := Classify(raw, w.timedOut())
	if !done {
		return current, nil
	}
	if !w.apply(outcome) {
		return w.Outcome(), nil
	}
	w.r.monitor.TrackReconcile(string(outcome), time.Since(w.started))
	w.publish(outcome)
	return outcome, nil
}

func (w *Watch) loop(ctx context.Context) {
	defer close(w.done)
	defer w.r.monitor.WatchStopped()
	defer w.markExited()

	// a poll still in flight at the deadline is abandoned with it
	deadline, cancel := context.WithDeadline(ctx, w.started.Add(w.r.timeout))
	defer cancel()
	ticker := time.NewTicker(w.r.interval)
	defer ticker.Stop()

	for {
		raw := w.poll(deadline)
		if ctx.Err() != nil {
			return
		}

		if outcome, done := Classify(raw, deadline.Err() != nil || w.timedOut()); done {
			w.settle(outcome)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-deadline.Done():
			if ctx.Err() != nil {
				return
			}
			w.settle(models.OutcomePending)
			return
		case <-ticker.C:
		}
	}
}

// poll reads the status once. Fetch errors read as an unknown status.
func (w *Watch) poll(ctx context.Context) string {
	st, err := w.r.fetcher.PaymentStatus(ctx, w.orderID)
	if err != nil {
		if ctx.Err() == nil {
			w.r.monitor.TrackPoll("error")
			w.r.logger.Debug("payment status poll failed", zap.String("order_id", w.orderID), zap.Error(err))
		}
		return ""
	}
	w.r.monitor.TrackPoll("ok")

	w.mu.Lock()
	w.lastStatus = st.Status
	w.mu.Unlock()
	return st.Status
}

func (w *Watch) settle(outcome models.Outcome) {
	if !w.apply(outcome) {
		return
	}
	w.r.monitor.TrackReconcile(string(outcome), time.Since(w.started))
	w.r.logger.Info("payment reconciled",
		zap.String("order_id", w.orderID),
		zap.String("outcome", string(outcome)),
		zap.Duration("elapsed", time.Since(w.started)),
	)
	w.publish(outcome)
}

func (w *Watch) markExited() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.finishedAt.IsZero() {
		w.finishedAt = time.Now()
	}
}

// apply records the outcome unless the watch was stopped, has already
// settled on a terminal outcome, or already holds this outcome. Only a
// recorded outcome is counted and published.
func (w *Watch) apply(outcome models.Outcome) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped || w.outcome.Terminal() || w.outcome == outcome {
		return false
	}
	w.outcome = outcome
	w.finishedAt = time.Now()
	return true
}

// finish records an outcome reached without polling.
func (w *Watch) finish(outcome models.Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.outcome = outcome
	w.finishedAt = time.Now()
}

func (w *Watch) publish(outcome models.Outcome) {
	if !outcome.Terminal() || w.subject == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if outcome == models.OutcomeSuccess {
		w.r.cache.InvalidateSubject(ctx, w.subject)
	}
	w.r.notifier.PaymentOutcome(ctx, w.subject, w.orderID, outcome)
}
