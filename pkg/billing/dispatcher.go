package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
	"github.com/dmitrymomot/billing/pkg/statemachine"
)

// Persisted subscription states. Past-due and payment failures are
// notifications on top of these, not states.
const (
	StateFree   = statemachine.StringState("free")
	StateActive = statemachine.StringState("active")
)

// Outcome describes what processing an event did.
type Outcome string

const (
	OutcomeApplied   Outcome = "applied"
	OutcomeNotified  Outcome = "notified"
	OutcomeSkipped   Outcome = "skipped"
	OutcomeNotFound  Outcome = "not_found"
	OutcomeStale     Outcome = "stale"
	OutcomeIgnored   Outcome = "ignored"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeDeferred  Outcome = "deferred"
)

// DefaultPeriodFetchTimeout bounds the best-effort billing period lookup.
const DefaultPeriodFetchTimeout = 3 * time.Second

func stateOf(s *Subscription) statemachine.State {
	if s.Plan.IsPaid() {
		return StateActive
	}
	return StateFree
}

// change is the data threaded through state machine actions.
type change struct {
	sub     *Subscription
	ev      *Event
	plan    Plan
	now     time.Time
	mutated bool
	notices []Notice
	alerts  []Alert
}

func (c *change) notify(kind NoticeKind) {
	c.notices = append(c.notices, Notice{
		Kind:       kind,
		UserID:     c.sub.UserID,
		Plan:       c.sub.Plan,
		EventID:    c.ev.ID,
		OccurredAt: c.ev.OccurredAt,
	})
}

func (c *change) alert(title string) {
	c.alerts = append(c.alerts, Alert{
		Severity:  SeverityWarning,
		Title:     title,
		EventID:   c.ev.ID,
		EventType: c.ev.Type,
		UserID:    c.sub.UserID,
		At:        c.now,
	})
}

// Dispatcher applies verified, non-duplicate events to subscriptions.
type Dispatcher struct {
	store        Store
	catalog      *Catalog
	periods      Provider
	notifier     Notifier
	alerter      Alerter
	log          *slog.Logger
	now          func() time.Time
	fetchTimeout time.Duration
	machine      *statemachine.Machine
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithPeriodSource enables the billing period lookup after completed transactions.
func WithPeriodSource(p Provider) DispatcherOption {
	return func(d *Dispatcher) { d.periods = p }
}

// WithPeriodFetchTimeout bounds the billing period lookup.
func WithPeriodFetchTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.fetchTimeout = timeout
		}
	}
}

// WithNotifier sends user notices after a change is stored.
func WithNotifier(n Notifier) DispatcherOption {
	return func(d *Dispatcher) { d.notifier = n }
}

// WithAlerter raises operator alerts for past due, failed payments and lost notices.
func WithAlerter(a Alerter) DispatcherOption {
	return func(d *Dispatcher) { d.alerter = a }
}

// WithDispatcherLogger sets the logger. Nil keeps slog.Default.
func WithDispatcherLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.log = l
		}
	}
}

// WithDispatcherClock overrides time.Now.
func WithDispatcherClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// NewDispatcher panics if store or catalog is nil.
func NewDispatcher(store Store, catalog *Catalog, opts ...DispatcherOption) *Dispatcher {
	if store == nil {
		panic("billing: Store is required")
	}
	if catalog == nil {
		panic("billing: Catalog is required")
	}
	d := &Dispatcher{
		store:        store,
		catalog:      catalog,
		log:          slog.Default(),
		now:          time.Now,
		fetchTimeout: DefaultPeriodFetchTimeout,
	}
	for _, opt := range opts {
		opt(d)
	}
	d.machine = d.newMachine()
	return d
}

func (d *Dispatcher) newMachine() *statemachine.Machine {
	activates := func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
		c := data.(*change)
		return c.ev.SubscriptionID != "" && c.plan.IsPaid()
	}
	paid := func(_ context.Context, _ statemachine.State, _ statemachine.Event, data any) bool {
		return data.(*change).plan.IsPaid()
	}

	return statemachine.MustNew(
		statemachine.WithTransition(StateFree, StateActive, EventTransactionCompleted,
			statemachine.WithGuard(activates), statemachine.WithAction(d.completeTransaction)),
		statemachine.WithTransition(StateActive, StateActive, EventTransactionCompleted,
			statemachine.WithGuard(activates), statemachine.WithAction(d.completeTransaction)),
		// No remote subscription: usage reset only.
		statemachine.WithAnyState(nil, EventTransactionCompleted, statemachine.WithAction(d.completeTransaction)),

		statemachine.WithAnyState(StateActive, EventSubscriptionCreated,
			statemachine.WithGuard(paid), statemachine.WithAction(d.createSubscription)),

		statemachine.WithAnyState(StateActive, EventSubscriptionUpdated,
			statemachine.WithGuard(paid), statemachine.WithAction(d.updateSubscription)),
		statemachine.WithAnyState(StateFree, EventSubscriptionUpdated, statemachine.WithAction(d.updateSubscription)),

		statemachine.WithAnyState(StateFree, EventSubscriptionCanceled, statemachine.WithAction(d.cancelSubscription)),

		statemachine.WithAnyState(nil, EventSubscriptionPastDue, statemachine.WithAction(d.pastDue)),
		statemachine.WithAnyState(nil, EventTransactionPaymentFailed, statemachine.WithAction(d.paymentFailed)),
	)
}

func (d *Dispatcher) completeTransaction(ctx context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	if c.ev.SubscriptionID != "" && c.plan.IsPaid() {
		c.sub.ProviderSubscriptionID = c.ev.SubscriptionID
		c.sub.Plan = c.plan
		if bp, ok := d.fetchPeriod(ctx, c.ev); ok {
			c.sub.setPeriod(bp.Start, bp.End)
		}
	}
	c.sub.Usage = Usage{}
	c.mutated = true
	c.notify(NoticeSubscriptionConfirmed)
	return nil
}

// fetchPeriod never fails the transition; errors and timeouts are logged.
func (d *Dispatcher) fetchPeriod(ctx context.Context, ev *Event) (BillingPeriod, bool) {
	if d.periods == nil {
		if ev.PeriodStart != nil && ev.PeriodEnd != nil {
			return BillingPeriod{Start: *ev.PeriodStart, End: *ev.PeriodEnd}, true
		}
		return BillingPeriod{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, d.fetchTimeout)
	defer cancel()

	bp, err := d.periods.GetSubscription(ctx, ev.SubscriptionID)
	if err != nil {
		d.log.LogAttrs(ctx, slog.LevelWarn, "billing period lookup failed",
			logger.EventID(ev.ID),
			logger.SubscriptionID(ev.SubscriptionID),
			logger.Error(err),
		)
		if ev.PeriodStart != nil && ev.PeriodEnd != nil {
			return BillingPeriod{Start: *ev.PeriodStart, End: *ev.PeriodEnd}, true
		}
		return BillingPeriod{}, false
	}
	return bp, true
}

func (d *Dispatcher) createSubscription(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	c.sub.Plan = c.plan
	c.sub.ProviderSubscriptionID = c.ev.SubscriptionID
	if c.ev.CustomerID != "" && c.sub.ProviderCustomerID == "" {
		c.sub.ProviderCustomerID = c.ev.CustomerID
	}
	start, end := c.now, c.now
	if c.ev.PeriodStart != nil {
		start = *c.ev.PeriodStart
	}
	if c.ev.PeriodEnd != nil {
		end = *c.ev.PeriodEnd
	}
	c.sub.setPeriod(start, end)
	c.mutated = true
	return nil
}

func (d *Dispatcher) updateSubscription(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	c.sub.Plan = c.plan
	if !c.plan.IsPaid() {
		// Moving to free ends the remote subscription link.
		c.sub.ProviderSubscriptionID = ""
		c.sub.BillingPeriod = nil
		c.mutated = true
		return nil
	}
	if c.ev.PeriodStart != nil {
		storedStart, had := c.sub.periodStart()
		end := *c.ev.PeriodStart
		if c.ev.PeriodEnd != nil {
			end = *c.ev.PeriodEnd
		} else if c.sub.BillingPeriod != nil {
			end = c.sub.BillingPeriod.End
		}
		c.sub.setPeriod(*c.ev.PeriodStart, end)

		// A new period start means the billing period renewed.
		if !had || !storedStart.Equal(c.sub.BillingPeriod.Start) {
			c.sub.Usage = Usage{}
		}
	}
	c.mutated = true
	return nil
}

func (d *Dispatcher) cancelSubscription(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	c.sub.Plan = PlanFree
	c.sub.ProviderSubscriptionID = ""
	c.sub.BillingPeriod = nil
	c.mutated = true
	c.notify(NoticeSubscriptionCanceled)
	return nil
}

func (d *Dispatcher) pastDue(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	c.notify(NoticeSubscriptionPastDue)
	c.alert("subscription past due")
	return nil
}

func (d *Dispatcher) paymentFailed(_ context.Context, _, _ statemachine.State, _ statemachine.Event, data any) error {
	c := data.(*change)
	c.notify(NoticePaymentFailed)
	c.alert("payment failed")
	return nil
}

// Apply runs ev through the state machine. Missing business fields, lookup
// misses, stale and unknown events are logged and reported through the
// Outcome with a nil error. A non-nil error means nothing was stored.
func (d *Dispatcher) Apply(ctx context.Context, ev *Event) (Outcome, error) {
	attrs := []slog.Attr{logger.EventID(ev.ID), logger.EventType(string(ev.Type))}

	if !ev.Type.Known() {
		d.log.LogAttrs(ctx, slog.LevelInfo, "ignoring unhandled event type", attrs...)
		return OutcomeIgnored, nil
	}

	c, outcome, err := d.load(ctx, ev)
	if err != nil || c == nil {
		return outcome, err
	}
	attrs = append(attrs, logger.UserID(c.sub.UserID), logger.Plan(string(c.plan)))

	if d.isStale(c) {
		d.log.LogAttrs(ctx, slog.LevelWarn, "skipping out-of-order event",
			append(attrs, slog.Time("occurred_at", ev.OccurredAt), slog.Time("last_event_at", c.sub.LastEventAt))...)
		return OutcomeStale, nil
	}

	lookupSubID := c.sub.ProviderSubscriptionID
	from := stateOf(c.sub)
	to, err := d.machine.Fire(ctx, from, ev.Type, c)
	if err != nil {
		return "", fmt.Errorf("transition %s on %s: %w", from.Name(), ev.Type, err)
	}

	outcome = OutcomeNotified
	if c.mutated {
		c.sub.UpdatedAt = c.now
		if ev.OccurredAt.After(c.sub.LastEventAt) {
			c.sub.LastEventAt = ev.OccurredAt
		}
		if err := d.persist(ctx, ev, lookupSubID, c.sub); err != nil {
			return "", fmt.Errorf("persist subscription: %w", err)
		}
		outcome = OutcomeApplied
	}

	d.log.LogAttrs(ctx, slog.LevelInfo, "billing event applied",
		append(attrs, slog.String("from", from.Name()), slog.String("to", to.Name()))...)

	// Side effects only after the row is stored.
	d.emit(ctx, c)
	return outcome, nil
}

func (d *Dispatcher) load(ctx context.Context, ev *Event) (*change, Outcome, error) {
	now := d.now().UTC()
	attrs := []slog.Attr{logger.EventID(ev.ID), logger.EventType(string(ev.Type))}

	var (
		sub *Subscription
		err error
	)
	switch ev.Type {
	case EventTransactionCompleted, EventSubscriptionCreated:
		plan, perr := ParsePlan(ev.Plan)
		if ev.Type == EventSubscriptionCreated && !plan.IsPaid() {
			perr = ErrInvalidPlan
		}
		if ev.UserID == "" || perr != nil {
			d.log.LogAttrs(ctx, slog.LevelWarn, "event is missing user id or plan",
				append(attrs, logger.UserID(ev.UserID), logger.Plan(ev.Plan))...)
			return nil, OutcomeSkipped, nil
		}
		sub, err = d.store.GetByUserID(ctx, ev.UserID)
		if errors.Is(err, ErrNotFound) {
			sub, err = NewFreeSubscription(ev.UserID, now), nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("load subscription by user: %w", err)
		}
		return &change{sub: sub, ev: ev, plan: plan, now: now}, "", nil

	case EventSubscriptionUpdated, EventSubscriptionCanceled, EventSubscriptionPastDue:
		if ev.SubscriptionID == "" {
			d.log.LogAttrs(ctx, slog.LevelWarn, "event is missing subscription id", attrs...)
			return nil, OutcomeSkipped, nil
		}
		sub, err = d.store.GetByProviderSubscriptionID(ctx, ev.SubscriptionID)
		attrs = append(attrs, logger.SubscriptionID(ev.SubscriptionID))

	case EventTransactionPaymentFailed:
		if ev.CustomerID == "" {
			d.log.LogAttrs(ctx, slog.LevelWarn, "event is missing customer id", attrs...)
			return nil, OutcomeSkipped, nil
		}
		sub, err = d.store.GetByProviderCustomerID(ctx, ev.CustomerID)
		attrs = append(attrs, logger.CustomerID(ev.CustomerID))
	}

	if errors.Is(err, ErrNotFound) {
		d.log.LogAttrs(ctx, slog.LevelWarn, "no local subscription for event", attrs...)
		return nil, OutcomeNotFound, nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("load subscription: %w", err)
	}
	return &change{sub: sub, ev: ev, plan: d.resolveUpdatedPlan(ev, sub), now: now}, "", nil
}

// resolveUpdatedPlan picks the plan for provider-keyed events: custom data
// first, then the price reference, then the stored plan.
func (d *Dispatcher) resolveUpdatedPlan(ev *Event, sub *Subscription) Plan {
	if p, err := ParsePlan(ev.Plan); err == nil {
		return p
	}
	if p, ok := d.catalog.PlanForPriceRef(ev.PriceRef); ok {
		return p
	}
	if sub.Plan != "" {
		return sub.Plan
	}
	return PlanFree
}

// isStale skips updates older than the row's last applied event, and late
// activations that reference a subscription on a row which has since been
// canceled. Cancellations are never stale.
func (d *Dispatcher) isStale(c *change) bool {
	older := !c.ev.OccurredAt.IsZero() && !c.sub.LastEventAt.IsZero() && c.ev.OccurredAt.Before(c.sub.LastEventAt)
	switch c.ev.Type {
	case EventSubscriptionUpdated:
		return older
	case EventTransactionCompleted:
		return older && c.ev.SubscriptionID != "" && c.sub.ProviderSubscriptionID == ""
	}
	return false
}

func (d *Dispatcher) persist(ctx context.Context, ev *Event, lookupSubID string, sub *Subscription) error {
	switch ev.Type {
	case EventSubscriptionUpdated, EventSubscriptionCanceled:
		return d.store.UpdateByProviderSubscriptionID(ctx, lookupSubID, sub)
	default:
		return d.store.UpsertByUserID(ctx, sub)
	}
}

func (d *Dispatcher) emit(ctx context.Context, c *change) {
	if d.notifier != nil {
		for _, n := range c.notices {
			if err := d.notifier.Notify(ctx, n); err != nil {
				d.log.LogAttrs(ctx, slog.LevelError, "failed to send billing notice",
					logger.EventID(n.EventID), logger.UserID(n.UserID),
					slog.String("notice", string(n.Kind)), logger.Error(err))
				d.raise(ctx, Alert{
					Severity:  SeverityWarning,
					Title:     "billing notice lost",
					EventID:   c.ev.ID,
					EventType: c.ev.Type,
					UserID:    n.UserID,
					Detail:    fmt.Sprintf("%s: %v", n.Kind, err),
					At:        c.now,
				})
			}
		}
	}
	for _, a := range c.alerts {
		d.raise(ctx, a)
	}
}

func (d *Dispatcher) raise(ctx context.Context, a Alert) {
	d.log.LogAttrs(ctx, slog.LevelWarn, "billing alert: "+a.Title,
		logger.EventID(a.EventID), logger.EventType(string(a.EventType)), logger.UserID(a.UserID))
	if d.alerter == nil {
		return
	}
	if err := d.alerter.Alert(ctx, a); err != nil {
		d.log.LogAttrs(ctx, slog.LevelError, "failed to deliver billing alert",
			logger.EventID(a.EventID), logger.Error(err))
	}
}
