package ledger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/azad-ai/azad_bot/internal/identity"
)

const (
	defaultClaimGrace = 24 * time.Hour
	defaultRetries    = 5
	creditStatus      = "credit"
)

// Ledger coordinates subscription and health-log state on top of a Store.
// Mutations for one identity are serialized in-process and committed with
// compare-and-swap, so writers in other processes are detected and retried.
type Ledger struct {
	store      Store
	locks      *keyedMutex
	now        func() time.Time
	claimGrace time.Duration
	retries    int
	region     string
	logger     *slog.Logger
}

// Option customizes a Ledger.
type Option func(*Ledger)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(l *Ledger) { l.now = now }
}

// WithClaimGrace sets how long an unconfirmed payment claim grants access.
func WithClaimGrace(d time.Duration) Option {
	return func(l *Ledger) {
		if d > 0 {
			l.claimGrace = d
		}
	}
}

// WithRegion sets the default region used to normalize buyer phone numbers.
func WithRegion(region string) Option {
	return func(l *Ledger) { l.region = region }
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// New builds a ledger over store.
func New(store Store, opts ...Option) *Ledger {
	l := &Ledger{
		store:      store,
		locks:      newKeyedMutex(),
		now:        time.Now,
		claimGrace: defaultClaimGrace,
		retries:    defaultRetries,
		region:     "IN",
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Now returns the ledger's notion of the current time.
func (l *Ledger) Now() time.Time {
	return l.now().UTC()
}

// Ping checks the underlying store.
func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Get returns the record for identity or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (UserRecord, error) {
	return l.store.Get(ctx, id)
}

// IsActive reports whether identity currently has access. A missing record is inactive.
func (l *Ledger) IsActive(ctx context.Context, id string) (bool, error) {
	rec, err := l.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rec.Active(l.Now()), nil
}

// Ensure creates an unsubscribed record on first contact and returns the current record.
func (l *Ledger) Ensure(ctx context.Context, id string) (UserRecord, error) {
	rec, err := l.store.Get(ctx, id)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return UserRecord{}, err
	}
	return l.update(ctx, id, func(rec *UserRecord, _ time.Time) error { return nil })
}

// RecordPayment activates identity for periodDays. The window is extended from
// the later of now and the current expiry, so late or out-of-order deliveries
// never erase paid time. A paymentKey that was already applied leaves the
// record untouched and returns ErrDuplicatePayment.
func (l *Ledger) RecordPayment(ctx context.Context, id string, periodDays int, paymentKey string) (UserRecord, error) {
	if periodDays <= 0 {
		return UserRecord{}, ErrInvalidPeriod
	}

	rec, err := l.update(ctx, id, func(rec *UserRecord, now time.Time) error {
		if rec.HasPayment(paymentKey) {
			return ErrDuplicatePayment
		}

		from := now
		if rec.State == StateActive && rec.SubscribedUntil != nil && rec.SubscribedUntil.After(from) {
			from = *rec.SubscribedUntil
		}
		until := from.Add(time.Duration(periodDays) * 24 * time.Hour)

		rec.State = StateActive
		rec.SubscribedUntil = &until
		rec.PendingUntil = nil
		rec.ClaimedAt = nil
		rec.rememberPayment(paymentKey)
		return nil
	})
	if err != nil {
		return rec, err
	}

	l.logger.Info("payment recorded",
		slog.String("identity", id),
		slog.Int("period_days", periodDays),
		slog.Time("subscribed_until", *rec.SubscribedUntil),
	)
	return rec, nil
}

// ClaimPaid records a user-asserted payment. It never confirms anything: an
// active subscriber is left as is, otherwise a single pending grant of the
// claim grace window is issued until the processor confirms the payment.
func (l *Ledger) ClaimPaid(ctx context.Context, id string) (UserRecord, error) {
	rec, err := l.update(ctx, id, func(rec *UserRecord, now time.Time) error {
		if rec.Status(now) == StateActive {
			return errNoChange
		}
		if rec.ClaimedAt != nil {
			if rec.Status(now) == StatePending {
				return ErrClaimAlreadyPending
			}
			return ErrClaimExpired
		}

		until := now.Add(l.claimGrace)
		claimed := now
		rec.State = StatePending
		rec.PendingUntil = &until
		rec.ClaimedAt = &claimed
		rec.SubscribedUntil = nil
		return nil
	})
	if err != nil {
		return rec, err
	}

	if rec.State == StatePending {
		l.logger.Warn("unconfirmed payment claim", slog.String("identity", id), slog.Time("pending_until", *rec.PendingUntil))
	}
	return rec, nil
}

// RecordBP validates a blood-pressure reading, stores it as the latest one and
// appends it to the record's bounded history.
func (l *Ledger) RecordBP(ctx context.Context, id string, systolic, diastolic int) (UserRecord, error) {
	if err := ValidateReading(systolic, diastolic); err != nil {
		return UserRecord{}, err
	}
	return l.update(ctx, id, func(rec *UserRecord, now time.Time) error {
		rec.rememberReading(BPReading{Systolic: systolic, Diastolic: diastolic, RecordedAt: now})
		return nil
	})
}

// ValidateReading checks a blood-pressure reading against the accepted bounds.
func ValidateReading(systolic, diastolic int) error {
	if systolic < MinSystolic || systolic > MaxSystolic {
		return fmt.Errorf("%w: systolic %d outside [%d,%d]", ErrInvalidReading, systolic, MinSystolic, MaxSystolic)
	}
	if diastolic < MinDiastolic || diastolic > MaxDiastolic {
		return fmt.Errorf("%w: diastolic %d outside [%d,%d]", ErrInvalidReading, diastolic, MinDiastolic, MaxDiastolic)
	}
	return nil
}

// VerifyAndApply authenticates a payment webhook and, for credited payments,
// extends the buyer's subscription by periodDays. Nothing is written unless the
// signature matches.
func (l *Ledger) VerifyAndApply(ctx context.Context, payload url.Values, signature, secret string, periodDays int) (UserRecord, error) {
	if err := Verify(payload, signature, secret); err != nil {
		return UserRecord{}, err
	}

	if !strings.EqualFold(strings.TrimSpace(payload.Get("status")), creditStatus) {
		return UserRecord{}, ErrPaymentNotCredited
	}

	id, err := identity.Normalize(payload.Get("buyer_phone"), l.region)
	if err != nil {
		return UserRecord{}, err
	}

	key := strings.TrimSpace(payload.Get("payment_id"))
	if key == "" {
		key = payloadKey(payload)
	}

	return l.RecordPayment(ctx, id, periodDays, key)
}

// StateOverride is a manual change of subscription state.
type StateOverride struct {
	State           State
	SubscribedUntil *time.Time
	PendingUntil    *time.Time
}

func (o StateOverride) apply(rec *UserRecord) error {
	switch o.State {
	case StateActive:
		if o.SubscribedUntil == nil {
			return fmt.Errorf("%w: subscribed_until is required for active", ErrInvalidOverride)
		}
		rec.SubscribedUntil, rec.PendingUntil = cloneTime(o.SubscribedUntil), nil
	case StatePending:
		if o.PendingUntil == nil {
			return fmt.Errorf("%w: pending_until is required for pending", ErrInvalidOverride)
		}
		rec.SubscribedUntil, rec.PendingUntil = nil, cloneTime(o.PendingUntil)
	case StateUnsubscribed:
		rec.SubscribedUntil, rec.PendingUntil, rec.ClaimedAt = nil, nil, nil
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInvalidOverride, o.State)
	}
	rec.State = o.State
	return nil
}

// Override manually sets the subscription state of id, creating the record if
// needed. Admin use only. Payment keys and readings are kept, and the write goes
// through the same compare-and-swap path as payments.
func (l *Ledger) Override(ctx context.Context, id string, o StateOverride) (UserRecord, error) {
	return l.update(ctx, id, func(rec *UserRecord, _ time.Time) error {
		return o.apply(rec)
	})
}

// Delete removes a record. Admin use only; bot flows never delete.
func (l *Ledger) Delete(ctx context.Context, id string) error {
	unlock := l.locks.Lock(id)
	defer unlock()
	return l.store.Delete(ctx, id)
}

// errNoChange lets a mutation skip the write and return the current record.
var errNoChange = errors.New("no change")

// update runs a read-modify-write for id. mutate receives a copy of the current
// record (or a fresh unsubscribed one) and may return errNoChange to skip the
// write, or any other error to abort. Mutation errors are returned together
// with the current record.
func (l *Ledger) update(ctx context.Context, id string, mutate func(rec *UserRecord, now time.Time) error) (UserRecord, error) {
	if id == "" {
		return UserRecord{}, identity.ErrInvalidIdentity
	}

	unlock := l.locks.Lock(id)
	defer unlock()

	var lastErr error
	for attempt := 0; attempt < l.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return UserRecord{}, err
		}

		now := l.Now()
		current, err := l.store.Get(ctx, id)
		var expected int64
		switch {
		case err == nil:
			expected = current.Version
		case errors.Is(err, ErrNotFound):
			current = UserRecord{Identity: id, State: StateUnsubscribed, CreatedAt: now}
		default:
			return UserRecord{}, fmt.Errorf("load %s: %w", id, err)
		}

		next := current.clone()
		if err := mutate(&next, now); err != nil {
			if errors.Is(err, errNoChange) {
				return current, nil
			}
			return current, err
		}
		next.UpdatedAt = now

		saved, err := l.store.CompareAndSwap(ctx, next, expected)
		if err == nil {
			return saved, nil
		}
		if !errors.Is(err, ErrVersionConflict) {
			return UserRecord{}, fmt.Errorf("save %s: %w", id, err)
		}
		lastErr = err
		l.logger.Debug("ledger write conflict, retrying", slog.String("identity", id), slog.Int("attempt", attempt+1))
	}

	return UserRecord{}, fmt.Errorf("save %s after %d attempts: %w", id, l.retries, lastErr)
}
