// Package timer implements the pipeline's monotonic-clock timer service
// (§4.3): per-plugin timers flushed once per pipeline tick, in expiry order,
// before the new frame is dispatched.
package timer

import "sort"

// Timer is a single scheduled callback. Cancelled timers are idempotent;
// a timer callback may reschedule itself or any other timer without
// re-entrancy hazard (§5).
type Timer struct {
	svc      *Service
	owner    any
	name     string
	callback func(now uint64)
	expiry   uint64 // 0 means disarmed
	canceled bool
}

// Owner returns the opaque owner key the timer was created with (typically
// a plugin identity), used by Service.CancelOwner on plugin teardown.
func (t *Timer) Owner() any { return t.owner }

// Name returns the timer's name, for debugging/logging.
func (t *Timer) Name() string { return t.name }

// Set arms (or re-arms) the timer for the given absolute expiry. Set is
// idempotent: calling it again before expiry simply reschedules.
func (t *Timer) Set(expiry uint64) {
	t.expiry = expiry
	t.canceled = false
}

// Cancel disarms the timer. Cancel is idempotent; a canceled timer never
// fires again even if it had already expired but not yet been serviced.
func (t *Timer) Cancel() {
	t.expiry = 0
	t.canceled = true
}

// Armed reports whether the timer currently has a pending expiry.
func (t *Timer) Armed() bool {
	return !t.canceled && t.expiry != 0
}

// Expiry returns the timer's currently scheduled absolute expiry, or 0 if
// disarmed.
func (t *Timer) Expiry() uint64 {
	if t.canceled {
		return 0
	}
	return t.expiry
}

// Service owns every Timer created through it and fires expired ones on
// Flush, in expiry order.
type Service struct {
	timers []*Timer
}

// NewService creates an empty timer service.
func NewService() *Service {
	return &Service{}
}

// New creates a new, disarmed timer owned by owner. Call Set to arm it.
func (s *Service) New(owner any, name string, callback func(now uint64)) *Timer {
	t := &Timer{svc: s, owner: owner, name: name, callback: callback}
	s.timers = append(s.timers, t)
	return t
}

// CancelOwner cancels and removes every timer belonging to owner. Used when
// a plugin unregisters or is torn down after a bug (§4.2 "Failure
// semantics").
func (s *Service) CancelOwner(owner any) {
	kept := s.timers[:0]
	for _, t := range s.timers {
		if t.owner == owner {
			t.Cancel()
			continue
		}
		kept = append(kept, t)
	}
	s.timers = kept
}

// Flush fires every timer whose expiry is <= now, in expiry order, and
// returns how many fired. Called once per pipeline tick before the new
// frame is dispatched to plugins (§4.2 step 1). Callbacks invoked during
// Flush may arm, cancel, or reschedule any timer, including themselves,
// without re-entrancy hazard: a timer is disarmed before its callback runs,
// so one that re-arms itself, even for the same expiry, stays armed and
// fires on a later Flush.
func (s *Service) Flush(now uint64) int {
	var due []*Timer
	for _, t := range s.timers {
		if t.Armed() && t.expiry <= now {
			due = append(due, t)
		}
	}
	if len(due) == 0 {
		return 0
	}

	sort.SliceStable(due, func(i, j int) bool {
		return due[i].expiry < due[j].expiry
	})

	fired := 0
	for _, t := range due {
		if !t.Armed() || t.expiry > now {
			// Canceled or rescheduled past `now` by an earlier callback
			// in this same flush.
			continue
		}
		t.expiry = 0
		t.callback(now)
		fired++
	}
	return fired
}
