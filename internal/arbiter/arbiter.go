// Package arbiter provides the in-memory single-owner lease that serializes
// synthesis requests ahead of the playback pipeline.
//
// The lease never expires on its own. An owner that acquires and never
// releases keeps the lease until the process restarts.
package arbiter

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrLeaseHeld is returned by Acquire when another owner holds the lease.
	ErrLeaseHeld = errors.New("lease held by another owner")
	// ErrNotOwner is returned by Release when the caller does not own the lease.
	ErrNotOwner = errors.New("caller does not own the lease")
	// ErrEmptyOwner is returned when an owner id is blank.
	ErrEmptyOwner = errors.New("owner id cannot be empty")
)

// Lease describes the outstanding grant.
type Lease struct {
	OwnerID    string
	AcquiredAt time.Time
}

// Age reports how long the lease has been held as of now.
func (l Lease) Age(now time.Time) time.Duration {
	return now.Sub(l.AcquiredAt)
}

// Arbiter grants at most one lease at a time. It never blocks and never queues.
type Arbiter struct {
	mu           sync.Mutex
	lease        *Lease
	lastReleased string
	now          func() time.Time
}

// Option customizes an Arbiter.
type Option func(*Arbiter)

// WithClock replaces the clock used to stamp leases.
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) {
		a.now = now
	}
}

// New creates an Arbiter with no outstanding lease.
func New(opts ...Option) *Arbiter {
	arb := &Arbiter{now: time.Now}
	for _, opt := range opts {
		opt(arb)
	}

	return arb
}

// Acquire grants the lease to ownerID or fails immediately with ErrLeaseHeld.
// Acquiring again as the current owner succeeds and keeps the original timestamp.
func (a *Arbiter) Acquire(ownerID string) error {
	_, err := a.Claim(ownerID)

	return err
}

// Claim is Acquire that also reports whether this call created the lease.
// It returns false when ownerID already held it, in which case the caller
// must not release a lease it did not take.
func (a *Arbiter) Claim(ownerID string) (bool, error) {
	if ownerID == "" {
		return false, ErrEmptyOwner
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lease != nil {
		if a.lease.OwnerID == ownerID {
			return false, nil
		}

		return false, fmt.Errorf("%w: %s", ErrLeaseHeld, a.lease.OwnerID)
	}

	a.lease = &Lease{OwnerID: ownerID, AcquiredAt: a.now()}
	a.lastReleased = ""

	return true, nil
}

// Release gives the lease back. Releasing twice as the same owner is a no-op;
// releasing as anyone else fails with ErrNotOwner and leaves the lease untouched.
func (a *Arbiter) Release(ownerID string) error {
	if ownerID == "" {
		return ErrEmptyOwner
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lease == nil {
		if ownerID == a.lastReleased {
			return nil
		}

		return fmt.Errorf("%w: %s (no lease outstanding)", ErrNotOwner, ownerID)
	}

	if a.lease.OwnerID != ownerID {
		return fmt.Errorf("%w: %s (held by %s)", ErrNotOwner, ownerID, a.lease.OwnerID)
	}

	a.lease = nil
	a.lastReleased = ownerID

	return nil
}

// Holder returns the outstanding lease, if any.
func (a *Arbiter) Holder() (Lease, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.lease == nil {
		return Lease{}, false
	}

	return *a.lease, true
}
