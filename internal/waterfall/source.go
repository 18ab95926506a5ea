package waterfall

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryPolicy bounds how soon a failed source may be loaded again.
// A zero Initial disables the backoff and failed sources are retried on every cycle.
type RetryPolicy struct {
	Initial time.Duration
	Max     time.Duration
}

// Source wraps one SDK handle and its current State.
// All fields except ID and handle are guarded by the owning Controller's lock.
type Source struct {
	ID     SourceID
	handle Handle

	state      State
	changed    chan struct{} // closed and replaced on every state write
	displaying bool          // claimed by Show until dismissed or display failed

	retry   *backoff.ExponentialBackOff
	retryAt time.Time
}

func newSource(id SourceID, h Handle, policy RetryPolicy) *Source {
	s := &Source{
		ID:      id,
		handle:  h,
		state:   Initial(),
		changed: make(chan struct{}),
	}
	if policy.Initial > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = policy.Initial
		if policy.Max > 0 {
			b.MaxInterval = policy.Max
		}
		b.Reset()
		s.retry = b
	}
	return s
}

// setStateLocked records st and wakes every goroutine waiting on the source.
// Caller must hold the controller lock.
func (s *Source) setStateLocked(st State, now time.Time) {
	s.state = st
	switch st.Kind() {
	case KindReady:
		if s.retry != nil {
			s.retry.Reset()
		}
		s.retryAt = time.Time{}
	case KindFailed:
		if s.retry != nil {
			s.retryAt = now.Add(s.retry.NextBackOff())
		}
	}
	close(s.changed)
	s.changed = make(chan struct{})
}

// availableLocked reports whether the source can be displayed right now.
// Caller must hold the controller lock.
func (s *Source) availableLocked() bool {
	return s.state.IsReady() && !s.displaying
}

// backingOffLocked reports whether a failed source is still inside its retry window.
// Caller must hold the controller lock.
func (s *Source) backingOffLocked(now time.Time) bool {
	return s.state.Kind() == KindFailed && now.Before(s.retryAt)
}

// SourceStatus is a point-in-time view of a Source, safe to hand to callers.
type SourceStatus struct {
	ID         SourceID   `json:"id"`
	Priority   int        `json:"priority"`
	State      string     `json:"state"`
	Displaying bool       `json:"displaying,omitempty"`
	Error      string     `json:"error,omitempty"`
	RetryAfter *time.Time `json:"retry_after,omitempty"`
}

func (s *Source) statusLocked(priority int) SourceStatus {
	st := SourceStatus{
		ID:         s.ID,
		Priority:   priority,
		State:      s.state.Kind().String(),
		Displaying: s.displaying,
	}
	if err := s.state.Err(); err != nil {
		st.Error = err.Error()
	}
	if s.state.Kind() == KindFailed && !s.retryAt.IsZero() {
		at := s.retryAt.UTC()
		st.RetryAfter = &at
	}
	return st
}
