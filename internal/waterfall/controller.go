package waterfall

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ad-waterfall/internal/platform/metrics"

	"github.com/samber/lo"
)

// DefaultLoadTimeout is how long a load cycle waits on one source before moving on.
const DefaultLoadTimeout = 2 * time.Second

// ErrDuplicateSource is returned when the same source id is configured twice.
var ErrDuplicateSource = errors.New("duplicate ad source id")

// Options configures a Controller. The zero value is usable.
type Options struct {
	LoadTimeout time.Duration
	Retry       RetryPolicy
	// Preload starts a background load cycle as soon as the controller is built.
	Preload bool
	Logger  *slog.Logger
	// Metrics may be nil to disable metric recording (e.g. in tests).
	Metrics *metrics.Metrics
}

// Controller loads an ordered set of ad sources as a waterfall and displays the
// highest-priority ready one on request. It is safe for concurrent use; SDK
// callbacks may arrive on any goroutine.
type Controller struct {
	sdk     SDK
	sources *registry
	timeout time.Duration
	log     *slog.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// mu guards every Source's mutable fields and closed.
	mu     sync.Mutex
	closed bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

var _ Listener = (*Controller)(nil)

// NewController creates one SDK handle per id, in priority order, and returns a
// controller driving them. ids may be empty, in which case Show never succeeds.
func NewController(sdk SDK, ids []SourceID, opts Options) (*Controller, error) {
	if dups := lo.FindDuplicates(ids); len(dups) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, dups[0])
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = DefaultLoadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		sdk:     sdk,
		timeout: opts.LoadTimeout,
		log:     opts.Logger.With(slog.String("component", "waterfall")),
		metrics: opts.Metrics,
		now:     time.Now,
		ctx:     ctx,
		cancel:  cancel,
	}

	sources := make([]*Source, 0, len(ids))
	for _, id := range ids {
		sources = append(sources, newSource(id, sdk.CreateHandle(id, c), opts.Retry))
	}
	c.sources = newRegistry(sources)

	if opts.Preload {
		c.triggerAsync()
	}
	return c, nil
}

// TriggerLoadCycle walks the sources in priority order and tries to bring one of
// them to Ready. It returns once a source is Ready, every source has been tried,
// or ctx is done. Each source is waited on for at most the load timeout; a load
// that outlives its wait is not cancelled and its result is still recorded.
func (c *Controller) TriggerLoadCycle(ctx context.Context) {
	c.mu.Lock()
	allLoading := lo.EveryBy(c.sources.all(), func(s *Source) bool { return s.state.IsLoading() })
	c.mu.Unlock()
	if allLoading {
		c.log.Debug("load cycle skipped, no idle source", slog.Int("sources", c.sources.len()))
		return
	}

	for _, src := range c.sources.all() {
		if ctx.Err() != nil || c.ctx.Err() != nil {
			return
		}
		if c.step(ctx, src) {
			return
		}
	}
}

// step advances the walk by one source and reports whether the walk should stop.
func (c *Controller) step(ctx context.Context, src *Source) bool {
	c.mu.Lock()
	switch st := src.state; {
	case st.IsReady() && src.displaying:
		// On screen: consumed until its dismissal, so look further down.
		c.mu.Unlock()
		return false
	case st.IsReady():
		c.mu.Unlock()
		return true
	case st.IsLoading():
		c.mu.Unlock()
	case src.backingOffLocked(c.now()):
		retryAt := src.retryAt
		c.mu.Unlock()
		c.log.Debug("ad source backing off",
			slog.String("source", string(src.ID)),
			slog.Time("retry_at", retryAt))
		return false
	default:
		// Initial or Failed: claim the source before releasing the lock so no other
		// cycle issues a second request for it.
		src.setStateLocked(Loading(), c.now())
		c.mu.Unlock()
		c.log.Debug("requesting ad load", slog.String("source", string(src.ID)))
		if c.metrics != nil {
			c.metrics.IncLoadRequests(string(src.ID))
		}
		c.sdk.RequestLoad(src.handle)
	}
	return c.await(ctx, src).IsReady()
}

// await blocks until src leaves Loading, the load timeout elapses, or either
// ctx or the controller is done. It returns the state observed afterwards.
func (c *Controller) await(ctx context.Context, src *Source) State {
	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		st, changed := src.state, src.changed
		c.mu.Unlock()
		if !st.IsLoading() {
			return st
		}

		select {
		case <-changed:
		case <-timer.C:
			st = c.stateOf(src)
			if st.IsLoading() {
				c.log.Info("ad source load timed out",
					slog.String("source", string(src.ID)),
					slog.Duration("timeout", c.timeout))
				if c.metrics != nil {
					c.metrics.IncLoadTimeouts(string(src.ID))
				}
			}
			return st
		case <-ctx.Done():
			return c.stateOf(src)
		case <-c.ctx.Done():
			return c.stateOf(src)
		}
	}
}

func (c *Controller) stateOf(src *Source) State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return src.state
}

// triggerAsync runs a load cycle in the controller's scope without blocking.
func (c *Controller) triggerAsync() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.wg.Add(1)
	c.mu.Unlock()

	go func() {
		defer c.wg.Done()
		c.TriggerLoadCycle(c.ctx)
	}()
}

// Show displays the highest-priority ready source on surface and returns true.
// If no source is ready it starts a background load cycle and returns false;
// false means "not shown now, retry later". A source stays claimed from the
// moment it is picked until its dismissal or display failure, so concurrent
// callers never display the same ad twice.
func (c *Controller) Show(surface Surface) bool {
	for {
		src, h, ok := c.claimReady()
		if !ok {
			break
		}

		// The SDK is asked outside the lock; its callbacks take the same lock.
		if !c.sdk.IsReady(h) {
			c.releaseRejected(src)
			continue
		}
		c.sdk.Display(h, surface)
		c.log.Info("interstitial displayed",
			slog.String("source", string(src.ID)),
			slog.String("surface_id", surface.ID))
		if c.metrics != nil {
			c.metrics.IncShow(metrics.ShowShown)
		}
		return true
	}

	c.log.Debug("no ad source ready", slog.String("surface_id", surface.ID))
	if c.metrics != nil {
		c.metrics.IncShow(metrics.ShowNotReady)
	}
	c.triggerAsync()
	return false
}

// claimReady marks the highest-priority available Ready source as displaying
// and returns it with its handle.
func (c *Controller) claimReady() (*Source, Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	src, ok := lo.Find(c.sources.all(), func(s *Source) bool { return s.availableLocked() })
	if !ok {
		return nil, nil, false
	}
	src.displaying = true
	return src, src.state.Handle(), true
}

// releaseRejected drops a claimed source whose handle the SDK no longer
// considers displayable. The source goes back to Initial so the next load
// cycle reloads it instead of stopping at it.
func (c *Controller) releaseRejected(src *Source) {
	c.mu.Lock()
	src.displaying = false
	if src.state.IsReady() {
		src.setStateLocked(Initial(), c.now())
	}
	c.mu.Unlock()

	c.log.Warn("ad source ready but rejected by sdk, resetting",
		slog.String("source", string(src.ID)))
}

// OnLoadSucceeded implements Listener.
func (c *Controller) OnLoadSucceeded(id SourceID, h Handle) {
	if c.update(id, Ready(h)) && c.metrics != nil {
		c.metrics.IncLoadResult(string(id), metrics.LoadReady)
	}
}

// OnLoadFailed implements Listener.
func (c *Controller) OnLoadFailed(id SourceID, err error) {
	if err == nil {
		err = errors.New("load failed")
	}
	if c.update(id, Failed(err)) && c.metrics != nil {
		c.metrics.IncLoadResult(string(id), metrics.LoadFailed)
	}
}

// OnDisplayed implements Listener. It does not change state.
func (c *Controller) OnDisplayed(id SourceID) {
	c.displayEvent(id, "displayed")
}

// OnClicked implements Listener. It does not change state.
func (c *Controller) OnClicked(id SourceID) {
	c.displayEvent(id, "clicked")
}

// OnDisplayDismissed implements Listener. The shown ad is consumed, so the
// source goes back to Initial and a new load cycle starts right away.
func (c *Controller) OnDisplayDismissed(id SourceID) {
	c.displayEvent(id, "dismissed")
	if c.update(id, Initial()) {
		c.triggerAsync()
	}
}

// OnDisplayFailed implements Listener. A handle that failed to display is not
// trusted again: the source is reset and reloaded like after a dismissal.
func (c *Controller) OnDisplayFailed(id SourceID, err error) {
	c.displayEvent(id, "display_failed")
	if err != nil {
		c.log.Warn("interstitial display failed",
			slog.String("source", string(id)),
			slog.String("error", err.Error()))
	}
	if c.update(id, Initial()) {
		c.triggerAsync()
	}
}

func (c *Controller) displayEvent(id SourceID, event string) {
	c.log.Debug("display event", slog.String("source", string(id)), slog.String("event", event))
	if c.metrics != nil {
		c.metrics.IncDisplayEvent(string(id), event)
	}
}

// update records st for the source with the given id. Unknown ids are ignored.
func (c *Controller) update(id SourceID, st State) bool {
	src, ok := c.sources.get(id)
	if !ok {
		c.log.Warn("callback for unknown ad source",
			slog.String("source", string(id)),
			slog.String("state", st.String()))
		return false
	}

	c.mu.Lock()
	prev := src.state
	if st.Kind() == KindInitial {
		// Only display callbacks reset a source; the shown ad is gone.
		src.displaying = false
	}
	src.setStateLocked(st, c.now())
	c.mu.Unlock()

	c.log.Debug("ad source state changed",
		slog.String("source", string(id)),
		slog.String("from", prev.String()),
		slog.String("to", st.String()))
	return true
}

// Sources returns the status of every source in priority order.
func (c *Controller) Sources() []SourceStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.Map(c.sources.all(), func(s *Source, i int) SourceStatus {
		return s.statusLocked(i)
	})
}

// State returns the current state of the source with the given id.
func (c *Controller) State(id SourceID) (State, bool) {
	src, ok := c.sources.get(id)
	if !ok {
		return State{}, false
	}
	return c.stateOf(src), true
}

// ReadyCount returns the number of sources Ready and not on screen.
func (c *Controller) ReadyCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return lo.CountBy(c.sources.all(), func(s *Source) bool { return s.availableLocked() })
}

// Close stops background load cycles and waits for them to return. In-flight
// SDK loads are not cancelled; their callbacks are still recorded.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	c.wg.Wait()
}
