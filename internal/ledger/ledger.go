package ledger

import (
	"context"
	"errors"
	"slices"
	"time"
)

var (
	// ErrNotFound is returned when no record exists for an identity.
	ErrNotFound = errors.New("record not found")

	// ErrVersionConflict indicates a compare-and-swap lost against a concurrent writer.
	ErrVersionConflict = errors.New("version conflict")

	// ErrDuplicatePayment indicates the payment was already applied to the record.
	// The returned record is the current, unchanged state.
	ErrDuplicatePayment = errors.New("duplicate payment")

	// ErrPaymentNotCredited is returned for verified webhooks whose status does not confirm payment.
	ErrPaymentNotCredited = errors.New("payment not credited")

	// ErrClaimAlreadyPending is returned when a user claims payment again before the
	// previous claim was confirmed by the processor.
	ErrClaimAlreadyPending = errors.New("payment claim already pending")

	// ErrClaimExpired is returned when the single claim grace window was already
	// used up without a confirmed payment.
	ErrClaimExpired = errors.New("payment claim grace already used")

	// ErrInvalidReading indicates a blood-pressure reading outside accepted bounds.
	ErrInvalidReading = errors.New("invalid blood pressure reading")

	// ErrInvalidPeriod indicates a non-positive subscription period.
	ErrInvalidPeriod = errors.New("subscription period must be positive")

	// ErrInvalidOverride indicates a manual state change that is missing its deadline.
	ErrInvalidOverride = errors.New("invalid state override")

	errEmptyIdentity = errors.New("record has no identity")
)

// State is the persisted subscription state of a user.
type State string

const (
	StateUnsubscribed State = "unsubscribed"
	StatePending      State = "pending"
	StateActive       State = "active"
)

// Blood-pressure bounds, inclusive.
const (
	MinSystolic  = 70
	MaxSystolic  = 250
	MinDiastolic = 40
	MaxDiastolic = 150
)

// Per-record history bounds.
const (
	maxAppliedPayments = 50
	maxBPHistory       = 30
)

// BPReading is a single blood-pressure measurement.
type BPReading struct {
	Systolic   int       `json:"systolic"`
	Diastolic  int       `json:"diastolic"`
	RecordedAt time.Time `json:"recorded_at"`
}

// UserRecord is the persisted state for one identity.
type UserRecord struct {
	Identity        string      `json:"identity"`
	State           State       `json:"state"`
	SubscribedUntil *time.Time  `json:"subscribed_until,omitempty"`
	PendingUntil    *time.Time  `json:"pending_until,omitempty"`
	ClaimedAt       *time.Time  `json:"claimed_at,omitempty"`
	LastBPReading   *BPReading  `json:"last_bp_reading,omitempty"`
	BPHistory       []BPReading `json:"bp_history,omitempty"`
	AppliedPayments []string    `json:"applied_payments,omitempty"`
	Version         int64       `json:"version"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// Status returns the effective state at now. Expiry is evaluated here, on read;
// the stored state is left as written.
func (r UserRecord) Status(now time.Time) State {
	switch r.State {
	case StateActive:
		if r.SubscribedUntil != nil && r.SubscribedUntil.After(now) {
			return StateActive
		}
	case StatePending:
		if r.PendingUntil != nil && r.PendingUntil.After(now) {
			return StatePending
		}
	}
	return StateUnsubscribed
}

// Active reports whether the record grants access at now.
func (r UserRecord) Active(now time.Time) bool {
	s := r.Status(now)
	return s == StateActive || s == StatePending
}

// HasPayment reports whether key was already applied.
func (r UserRecord) HasPayment(key string) bool {
	return key != "" && slices.Contains(r.AppliedPayments, key)
}

func (r *UserRecord) rememberPayment(key string) {
	if key == "" {
		return
	}
	r.AppliedPayments = append(r.AppliedPayments, key)
	if over := len(r.AppliedPayments) - maxAppliedPayments; over > 0 {
		r.AppliedPayments = slices.Clone(r.AppliedPayments[over:])
	}
}

// rememberReading sets the latest reading and appends it to the history,
// dropping the oldest entries beyond maxBPHistory.
func (r *UserRecord) rememberReading(bp BPReading) {
	latest := bp
	r.LastBPReading = &latest
	r.BPHistory = append(r.BPHistory, bp)
	if over := len(r.BPHistory) - maxBPHistory; over > 0 {
		r.BPHistory = slices.Clone(r.BPHistory[over:])
	}
}

// RecentReadings returns up to n readings, newest first.
func (r UserRecord) RecentReadings(n int) []BPReading {
	if n > len(r.BPHistory) {
		n = len(r.BPHistory)
	}
	out := make([]BPReading, 0, n)
	for i := len(r.BPHistory) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, r.BPHistory[i])
	}
	return out
}

// clone returns a deep copy so stores never share pointers with callers.
func (r UserRecord) clone() UserRecord {
	out := r
	out.SubscribedUntil = cloneTime(r.SubscribedUntil)
	out.PendingUntil = cloneTime(r.PendingUntil)
	out.ClaimedAt = cloneTime(r.ClaimedAt)
	if r.LastBPReading != nil {
		bp := *r.LastBPReading
		out.LastBPReading = &bp
	}
	out.BPHistory = slices.Clone(r.BPHistory)
	out.AppliedPayments = slices.Clone(r.AppliedPayments)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// Store defines the contract implemented by persistence backends.
//
// CompareAndSwap writes rec only when the stored version equals expectedVersion;
// an expectedVersion of 0 means the record must not exist yet. Successful writes
// return the record with its new version.
type Store interface {
	Get(ctx context.Context, identity string) (UserRecord, error)
	Put(ctx context.Context, rec UserRecord) (UserRecord, error)
	CompareAndSwap(ctx context.Context, rec UserRecord, expectedVersion int64) (UserRecord, error)
	Delete(ctx context.Context, identity string) error
	Ping(ctx context.Context) error
}
