package adsdk

import (
	"context"
	"testing"
	"time"

	"ad-waterfall/internal/waterfall"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

func newController(t *testing.T, sim *Simulator, timeout time.Duration, ids ...waterfall.SourceID) *waterfall.Controller {
	t.Helper()
	c, err := waterfall.NewController(sim, ids, waterfall.Options{LoadTimeout: timeout})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestSimulator_waterfall_falls_through_to_filled_source(t *testing.T) {
	sim := NewSimulator(Behavior{Latency: 5 * time.Millisecond, DisplayDuration: time.Hour}, 1)
	sim.SetBehavior("never", Behavior{Latency: 5 * time.Millisecond, FailRate: 1})
	sim.SetBehavior("slow", Behavior{Latency: 300 * time.Millisecond})
	c := newController(t, sim, 50*time.Millisecond, "never", "slow", "fast")

	c.TriggerLoadCycle(context.Background())

	statuses := c.Sources()
	require.Len(t, statuses, 3)
	assert.Equal(t, "failed", statuses[0].State)
	assert.Equal(t, ErrNoFill.Error(), statuses[0].Error)
	assert.Equal(t, "loading", statuses[1].State)
	assert.Equal(t, "ready", statuses[2].State)

	assert.True(t, c.Show(waterfall.Surface{ID: "main"}))

	// The slow source answers after its wait was abandoned and is still used.
	require.Eventually(t, func() bool {
		st, _ := c.State("slow")
		return st.IsReady()
	}, waitFor, tick)
}

func TestSimulator_display_dismiss_reload(t *testing.T) {
	sim := NewSimulator(Behavior{Latency: 5 * time.Millisecond, DisplayDuration: 20 * time.Millisecond}, 2)
	c := newController(t, sim, time.Second, "a")

	c.TriggerLoadCycle(context.Background())
	require.True(t, c.Show(waterfall.Surface{ID: "main"}))

	// While the ad is up its source stays claimed.
	assert.False(t, c.Show(waterfall.Surface{ID: "main"}))

	// Dismissal resets the source and reloads it.
	require.Eventually(t, func() bool {
		stats, _ := sim.Stats("a")
		return stats.Loads >= 2
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		return c.Show(waterfall.Surface{ID: "main"})
	}, waitFor, tick)
}

func TestSimulator_display_without_ad_fails(t *testing.T) {
	sim := NewSimulator(Behavior{Latency: time.Millisecond}, 3)
	c := newController(t, sim, time.Second, "a")

	h := sim.handles["a"]
	sim.Display(h, waterfall.Surface{ID: "main"})

	// OnDisplayFailed resets the source and starts a reload.
	require.Eventually(t, func() bool {
		stats, _ := sim.Stats("a")
		return stats.Loads == 1
	}, waitFor, tick)
	require.Eventually(t, func() bool { return c.ReadyCount() == 1 }, waitFor, tick)
}

func TestSimulator_single_load_in_flight(t *testing.T) {
	sim := NewSimulator(Behavior{Latency: 10 * time.Millisecond, FailRate: 0.5}, 4)
	c := newController(t, sim, 30*time.Millisecond, "a", "b")

	for i := 0; i < 8; i++ {
		go c.TriggerLoadCycle(context.Background())
	}
	time.Sleep(200 * time.Millisecond)

	for _, id := range []waterfall.SourceID{"a", "b"} {
		stats, ok := sim.Stats(id)
		require.True(t, ok)
		assert.LessOrEqual(t, stats.MaxInFlight, 1, "source %s", id)
	}
}

func TestSimulator_foreign_handle_ignored(t *testing.T) {
	sim := NewSimulator(Behavior{}, 5)
	sim.RequestLoad("not a handle")
	sim.Display(42, waterfall.Surface{})
	assert.False(t, sim.IsReady(nil))

	_, ok := sim.Stats("missing")
	assert.False(t, ok)
}
