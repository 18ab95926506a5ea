// Package adsdk provides an in-process ad-serving SDK used when no mediation
// SDK is attached, and by tests that need realistic asynchronous callbacks.
package adsdk

import (
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"ad-waterfall/internal/waterfall"

	"github.com/google/uuid"
)

var (
	// ErrNoFill is reported when a simulated load finds no ad to serve.
	ErrNoFill = errors.New("no fill")

	// ErrNotReady is reported when Display is called on a handle with no loaded ad.
	ErrNotReady = errors.New("ad not ready")
)

// Behavior scripts how one simulated source responds.
type Behavior struct {
	// Latency is the delay between RequestLoad and its callback.
	Latency time.Duration
	// FailRate is the probability, in [0,1], that a load fails with ErrNoFill.
	FailRate float64
	// DisplayDuration is how long a shown ad stays up before it is dismissed.
	DisplayDuration time.Duration
}

// Handle is the simulator's ad object for one source.
type Handle struct {
	Source waterfall.SourceID

	listener waterfall.Listener
	behavior Behavior

	// guarded by Simulator.mu
	adID        string
	showing     bool
	inFlight    int
	maxInFlight int
	loads       int
}

// Simulator implements waterfall.SDK with timers instead of a network.
// Callbacks are delivered on timer goroutines, never while mu is held.
type Simulator struct {
	mu        sync.Mutex
	rng       *rand.Rand
	def       Behavior
	overrides map[waterfall.SourceID]Behavior
	handles   map[waterfall.SourceID]*Handle
}

var _ waterfall.SDK = (*Simulator)(nil)

// NewSimulator returns a Simulator using def for every source without an override.
func NewSimulator(def Behavior, seed uint64) *Simulator {
	return &Simulator{
		rng:       rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		def:       def,
		overrides: make(map[waterfall.SourceID]Behavior),
		handles:   make(map[waterfall.SourceID]*Handle),
	}
}

// SetBehavior overrides the behaviour of one source. It must be called before
// the handle for id is created.
func (s *Simulator) SetBehavior(id waterfall.SourceID, b Behavior) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.overrides[id] = b
}

// CreateHandle implements waterfall.SDK.
func (s *Simulator) CreateHandle(id waterfall.SourceID, l waterfall.Listener) waterfall.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	b, ok := s.overrides[id]
	if !ok {
		b = s.def
	}
	h := &Handle{Source: id, listener: l, behavior: b}
	s.handles[id] = h
	return h
}

// RequestLoad implements waterfall.SDK.
func (s *Simulator) RequestLoad(wh waterfall.Handle) {
	h, ok := wh.(*Handle)
	if !ok {
		return
	}

	s.mu.Lock()
	h.loads++
	h.inFlight++
	if h.inFlight > h.maxInFlight {
		h.maxInFlight = h.inFlight
	}
	fail := s.rng.Float64() < h.behavior.FailRate
	s.mu.Unlock()

	time.AfterFunc(h.behavior.Latency, func() {
		s.mu.Lock()
		h.inFlight--
		if !fail {
			h.adID = uuid.NewString()
			h.showing = false
		}
		s.mu.Unlock()

		if fail {
			h.listener.OnLoadFailed(h.Source, ErrNoFill)
			return
		}
		h.listener.OnLoadSucceeded(h.Source, h)
	})
}

// IsReady implements waterfall.SDK.
func (s *Simulator) IsReady(wh waterfall.Handle) bool {
	h, ok := wh.(*Handle)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return h.adID != "" && !h.showing
}

// Display implements waterfall.SDK. The ad is consumed: it is dismissed after
// its display duration and the handle must be loaded again.
func (s *Simulator) Display(wh waterfall.Handle, _ waterfall.Surface) {
	h, ok := wh.(*Handle)
	if !ok {
		return
	}

	s.mu.Lock()
	if h.adID == "" || h.showing {
		s.mu.Unlock()
		go h.listener.OnDisplayFailed(h.Source, ErrNotReady)
		return
	}
	h.showing = true
	s.mu.Unlock()

	h.listener.OnDisplayed(h.Source)
	time.AfterFunc(h.behavior.DisplayDuration, func() {
		s.mu.Lock()
		h.adID = ""
		h.showing = false
		s.mu.Unlock()
		h.listener.OnDisplayDismissed(h.Source)
	})
}

// Stats reports counters for the handle of one source.
type Stats struct {
	Loads       int
	MaxInFlight int
}

// Stats returns load counters for id, or false if no handle was created for it.
func (s *Simulator) Stats(id waterfall.SourceID) (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.handles[id]
	if !ok {
		return Stats{}, false
	}
	return Stats{Loads: h.loads, MaxInFlight: h.maxInFlight}, true
}
