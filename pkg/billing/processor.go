package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/billing/pkg/logger"
)

// Result summarizes a processed webhook delivery.
type Result struct {
	EventID   string
	EventType EventType
	Outcome   Outcome
}

// Processor is the webhook pipeline: verify, parse, claim, apply. A claim is
// released when applying fails so the provider's redelivery re-drives the
// event; if the release itself fails the event goes to the retry queue.
type Processor struct {
	verifier   *Verifier
	ledger     Ledger
	dispatcher *Dispatcher
	retry      RetryScheduler
	alerter    Alerter
	archive    EventArchive
	provider   string
	log        *slog.Logger
	now        func() time.Time
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithRetryScheduler queues events whose claim could not be released.
func WithRetryScheduler(r RetryScheduler) ProcessorOption {
	return func(p *Processor) { p.retry = r }
}

// WithProcessorAlerter alerts on deferred and unrecoverable events.
func WithProcessorAlerter(a Alerter) ProcessorOption {
	return func(p *Processor) { p.alerter = a }
}

// WithEventArchive archives claimed deliveries. Archive failures are logged
// and never fail the delivery.
func WithEventArchive(a EventArchive) ProcessorOption {
	return func(p *Processor) { p.archive = a }
}

// WithProcessorLogger sets the logger. Nil keeps slog.Default.
func WithProcessorLogger(l *slog.Logger) ProcessorOption {
	return func(p *Processor) {
		if l != nil {
			p.log = l
		}
	}
}

// WithProcessorClock overrides time.Now, used for signature freshness.
func WithProcessorClock(now func() time.Time) ProcessorOption {
	return func(p *Processor) {
		if now != nil {
			p.now = now
		}
	}
}

// WithProviderTag sets the ledger provider tag. Defaults to ProviderPaddle.
func WithProviderTag(tag string) ProcessorOption {
	return func(p *Processor) {
		if tag != "" {
			p.provider = tag
		}
	}
}

// NewProcessor wires the webhook pipeline. A nil verifier disables signature
// checks and must only come from NewVerifierFromConfig outside production.
// Panics if ledger or dispatcher is nil.
func NewProcessor(verifier *Verifier, ledger Ledger, dispatcher *Dispatcher, opts ...ProcessorOption) *Processor {
	if ledger == nil {
		panic("billing: Ledger is required")
	}
	if dispatcher == nil {
		panic("billing: Dispatcher is required")
	}
	p := &Processor{
		verifier:   verifier,
		ledger:     ledger,
		dispatcher: dispatcher,
		provider:   ProviderPaddle,
		log:        slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Handle processes one delivery. Duplicates, ignored and unmatched events
// return a nil error and must be acknowledged. The returned error is a
// *SignatureError, wraps ErrValidation, or signals that the delivery must be
// answered with a non-2xx status so the provider retries.
func (p *Processor) Handle(ctx context.Context, body []byte, signature string) (Result, error) {
	if p.verifier != nil {
		if err := p.verifier.Verify(body, signature, p.now()); err != nil {
			return Result{}, err
		}
	} else {
		p.log.LogAttrs(ctx, slog.LevelWarn, "webhook signature verification is disabled, accepting unsigned event")
	}

	ev, err := ParseEvent(body)
	if err != nil {
		return Result{}, err
	}
	res := Result{EventID: ev.ID, EventType: ev.Type}
	attrs := []slog.Attr{logger.EventID(ev.ID), logger.EventType(string(ev.Type)), logger.Provider(p.provider)}

	entry := LedgerEntry{
		EventID:    ev.ID,
		Provider:   p.provider,
		EventType:  ev.Type,
		Payload:    body,
		ReceivedAt: p.now().UTC(),
	}
	claimed, err := p.ledger.RecordEventIfNew(ctx, entry)
	if err != nil {
		return res, fmt.Errorf("claim event: %w", err)
	}
	if !claimed {
		p.log.LogAttrs(ctx, slog.LevelInfo, "duplicate event delivery suppressed", attrs...)
		res.Outcome = OutcomeDuplicate
		return res, nil
	}
	if p.archive != nil {
		if err := p.archive.ArchiveEvent(ctx, entry); err != nil {
			p.log.LogAttrs(ctx, slog.LevelWarn, "failed to archive event", append(attrs, logger.Error(err))...)
		}
	}

	outcome, applyErr := p.dispatcher.Apply(ctx, ev)
	if applyErr == nil {
		res.Outcome = outcome
		return res, nil
	}
	return p.recover(ctx, ev, res, applyErr)
}

func (p *Processor) recover(ctx context.Context, ev *Event, res Result, applyErr error) (Result, error) {
	attrs := []slog.Attr{logger.EventID(ev.ID), logger.EventType(string(ev.Type)), logger.Error(applyErr)}
	// Compensation must run even when the request context is already done.
	ctx = context.WithoutCancel(ctx)

	forgetErr := p.ledger.ForgetEvent(ctx, p.provider, ev.ID)
	if forgetErr == nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to apply event, claim released for redelivery", attrs...)
		return res, applyErr
	}

	p.log.LogAttrs(ctx, slog.LevelError, "failed to apply event and to release its claim",
		append(attrs, slog.Any("release_error", forgetErr))...)

	var retryErr error
	if p.retry != nil {
		retryErr = p.retry.ScheduleApply(ctx, ApplyEventTask{Provider: p.provider, EventID: ev.ID, Payload: ev.Raw})
		if retryErr == nil {
			p.alert(ctx, ev, SeverityWarning, "event deferred to retry queue", applyErr)
			res.Outcome = OutcomeDeferred
			return res, nil
		}
	} else {
		retryErr = errors.New("no retry scheduler configured")
	}

	p.alert(ctx, ev, SeverityCritical, "event claimed but not applied", errors.Join(applyErr, forgetErr, retryErr))
	return res, errors.Join(ErrRetryUnavailable, applyErr)
}

func (p *Processor) alert(ctx context.Context, ev *Event, sev Severity, title string, cause error) {
	if p.alerter == nil {
		return
	}
	err := p.alerter.Alert(ctx, Alert{
		Severity:  sev,
		Title:     title,
		EventID:   ev.ID,
		EventType: ev.Type,
		Detail:    cause.Error(),
		At:        p.now().UTC(),
	})
	if err != nil {
		p.log.LogAttrs(ctx, slog.LevelError, "failed to deliver billing alert", logger.EventID(ev.ID), logger.Error(err))
	}
}

// Reapply applies an event from the retry queue. Its claim is already held,
// so the ledger is not consulted.
func (p *Processor) Reapply(ctx context.Context, task ApplyEventTask) error {
	ev, err := ParseEvent(task.Payload)
	if err != nil {
		return err
	}
	outcome, err := p.dispatcher.Apply(ctx, ev)
	if err != nil {
		return err
	}
	p.log.LogAttrs(ctx, slog.LevelInfo, "deferred event applied",
		logger.EventID(ev.ID), logger.EventType(string(ev.Type)), slog.String("outcome", string(outcome)))
	return nil
}
