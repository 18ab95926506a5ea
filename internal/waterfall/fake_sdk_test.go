package waterfall

import (
	"sync"
	"testing"
	"time"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// eventually polls cond until it holds or waitFor elapses.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitFor)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(tick)
	}
}

type fakeHandle struct {
	id SourceID
}

// loadScript decides how a source answers one load request. It runs on its
// own goroutine, like an SDK callback thread.
type loadScript func(l Listener, h *fakeHandle)

func succeedAfter(d time.Duration) loadScript {
	return func(l Listener, h *fakeHandle) {
		time.Sleep(d)
		l.OnLoadSucceeded(h.id, h)
	}
}

func failAfter(d time.Duration, err error) loadScript {
	return func(l Listener, h *fakeHandle) {
		time.Sleep(d)
		l.OnLoadFailed(h.id, err)
	}
}

// hang never answers; the test drives the callback itself.
func hang(Listener, *fakeHandle) {}

type fakeSDK struct {
	mu          sync.Mutex
	listener    Listener
	handles     map[SourceID]*fakeHandle
	created     map[SourceID]int
	scripts     map[SourceID]loadScript
	loads       map[SourceID]int
	inFlight    map[SourceID]int
	maxInFlight map[SourceID]int
	notReady    map[SourceID]bool
	readyDelay  time.Duration
	displayed   []SourceID
	surfaces    []Surface
}

func newFakeSDK() *fakeSDK {
	return &fakeSDK{
		handles:     make(map[SourceID]*fakeHandle),
		created:     make(map[SourceID]int),
		scripts:     make(map[SourceID]loadScript),
		loads:       make(map[SourceID]int),
		inFlight:    make(map[SourceID]int),
		maxInFlight: make(map[SourceID]int),
		notReady:    make(map[SourceID]bool),
	}
}

func (f *fakeSDK) script(id SourceID, s loadScript) *fakeSDK {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.scripts[id] = s
	return f
}

func (f *fakeSDK) CreateHandle(id SourceID, l Listener) Handle {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listener = l
	f.created[id]++
	h := &fakeHandle{id: id}
	f.handles[id] = h
	return h
}

func (f *fakeSDK) RequestLoad(wh Handle) {
	h := wh.(*fakeHandle)
	f.mu.Lock()
	f.loads[h.id]++
	f.inFlight[h.id]++
	if f.inFlight[h.id] > f.maxInFlight[h.id] {
		f.maxInFlight[h.id] = f.inFlight[h.id]
	}
	s, l := f.scripts[h.id], f.listener
	f.mu.Unlock()

	if s == nil {
		s = hang
	}
	go func() {
		s(&inFlightListener{Listener: l, sdk: f}, h)
	}()
}

func (f *fakeSDK) IsReady(wh Handle) bool {
	h := wh.(*fakeHandle)
	f.mu.Lock()
	delay := f.readyDelay
	f.mu.Unlock()
	time.Sleep(delay)

	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.notReady[h.id]
}

func (f *fakeSDK) Display(wh Handle, s Surface) {
	h := wh.(*fakeHandle)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.displayed = append(f.displayed, h.id)
	f.surfaces = append(f.surfaces, s)
}

func (f *fakeSDK) reject(id SourceID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notReady[id] = true
}

func (f *fakeSDK) createdCount(id SourceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created[id]
}

func (f *fakeSDK) shownSurfaces() []Surface {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Surface(nil), f.surfaces...)
}

func (f *fakeSDK) loadCount(id SourceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loads[id]
}

func (f *fakeSDK) peakInFlight(id SourceID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.maxInFlight[id]
}

func (f *fakeSDK) displays() []SourceID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SourceID(nil), f.displayed...)
}

func (f *fakeSDK) handle(id SourceID) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[id]
}

// inFlightListener marks a load as finished before forwarding its callback.
type inFlightListener struct {
	Listener
	sdk *fakeSDK
}

func (l *inFlightListener) done(id SourceID) {
	l.sdk.mu.Lock()
	l.sdk.inFlight[id]--
	l.sdk.mu.Unlock()
}

func (l *inFlightListener) OnLoadSucceeded(id SourceID, h Handle) {
	l.done(id)
	l.Listener.OnLoadSucceeded(id, h)
}

func (l *inFlightListener) OnLoadFailed(id SourceID, err error) {
	l.done(id)
	l.Listener.OnLoadFailed(id, err)
}
