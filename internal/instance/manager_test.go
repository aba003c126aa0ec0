package instance

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/antiwinter/finger/internal/eventbus"
	"github.com/antiwinter/finger/internal/runtime/supervisor"
	"github.com/antiwinter/finger/internal/sandbox"
	"github.com/antiwinter/finger/internal/sched"
	"github.com/antiwinter/finger/internal/script"
	"github.com/antiwinter/finger/internal/window"
	"github.com/antiwinter/finger/pkg/logx"
)

const fixtureRoot = "testdata/bots"

type engine struct {
	mgr     *Manager
	matcher *window.Matcher
	backend *window.StubBackend
	sched   *sched.Scheduler
	bus     eventbus.Bus
}

func newEngine(t *testing.T, wins ...window.Info) *engine {
	t.Helper()

	sup := supervisor.New(context.Background(), supervisor.WithLogger(logx.Nop()))
	t.Cleanup(func() {
		sup.Cancel()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = sup.Wait(ctx)
	})

	backend := window.NewStub(logx.Nop(), wins...)
	bus := eventbus.New()
	sc := sched.New(sched.Config{
		MinCooldown:     time.Millisecond,
		MaxCooldown:     time.Minute,
		DefaultCooldown: 5 * time.Millisecond,
	}, sup, bus, logx.Nop())

	mgr := NewManager(Options{
		Loader:        script.NewLoader(logx.Nop()),
		Backend:       backend,
		Sched:         sc,
		Locks:         sandbox.NewWindowLocks(10000),
		Bus:           bus,
		Log:           logx.Nop(),
		JitterFrac:    0.30,
		LogRatePerSec: 100,
		DrainTimeout:  5 * time.Second,
	})

	matcher := window.NewMatcher(backend, mgr, mgr, bus, logx.Nop())
	mgr.BindEnabledChange(matcher.Scan)

	failures := mgr.LoadBots(fixtureRoot)
	require.Empty(t, failures, "fixture bots must all discover cleanly")

	t.Cleanup(mgr.Shutdown)

	return &engine{mgr: mgr, matcher: matcher, backend: backend, sched: sc, bus: bus}
}

func getInstance(m *Manager, id string) *Instance {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[id]
}

func actionsOf(t *testing.T, inst *Instance) []string {
	t.Helper()
	rec, ok := inst.win.(interface{ Actions() []string })
	require.True(t, ok, "stub handle must record actions")
	return rec.Actions()
}

func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func statusCount(s string) (int, bool) {
	var n int
	if _, err := fmt.Sscanf(s, "count=%d", &n); err != nil {
		return 0, false
	}
	return n, true
}

func TestBindAndTick(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})
	require.NoError(t, e.mgr.Enable("clicker"))

	inst := getInstance(e.mgr, "clicker-1")
	require.NotNil(t, inst, "matcher kick must create clicker-1")

	waitFor(t, 5*time.Second, func() bool {
		n, ok := statusCount(inst.Status())
		return ok && n >= 3
	})
	require.Equal(t, StateRunning, inst.State())

	acts := actionsOf(t, inst)
	require.Contains(t, acts, "click(0.50,0.50)", "start callback click must actuate")
	require.Contains(t, acts, "activate")
}

func TestPatternSelectsWindows(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo fighters"})
	require.NoError(t, e.mgr.Enable("nostatus"))

	// "FooBar" does not match "Foo fighters".
	require.Nil(t, getInstance(e.mgr, "nostatus-1"))

	e.backend.SetWindows(
		window.Info{ID: 1, Title: "Foo fighters"},
		window.Info{ID: 2, Title: "FooBar prime"},
	)
	e.matcher.Scan()

	inst := getInstance(e.mgr, "nostatus-2")
	require.NotNil(t, inst)

	// No get_status callback: the placeholder is reported.
	waitFor(t, 5*time.Second, func() bool { return inst.State() == StateRunning })
	require.Equal(t, "-", inst.Status())
}

func TestTwoWindowsTwoEnvironments(t *testing.T) {
	e := newEngine(t,
		window.Info{ID: 1, Title: "Foo a"},
		window.Info{ID: 2, Title: "foo b"},
	)
	require.NoError(t, e.mgr.Enable("clicker"))

	a := getInstance(e.mgr, "clicker-1")
	b := getInstance(e.mgr, "clicker-2")
	require.NotNil(t, a)
	require.NotNil(t, b)

	waitFor(t, 5*time.Second, func() bool {
		na, oka := statusCount(a.Status())
		nb, okb := statusCount(b.Status())
		return oka && okb && na >= 2 && nb >= 2
	})

	require.Len(t, e.mgr.Snapshot(), 2)
	require.Equal(t, map[window.ID]bool{1: true, 2: true}, e.mgr.Bound("clicker"))
}

func TestDisableStopsInstancesOnce(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})
	require.NoError(t, e.mgr.Enable("clicker"))

	inst := getInstance(e.mgr, "clicker-1")
	require.NotNil(t, inst)
	waitFor(t, 5*time.Second, func() bool {
		n, ok := statusCount(inst.Status())
		return ok && n >= 1
	})

	require.NoError(t, e.mgr.Disable("clicker"))

	require.Equal(t, StateStopped, inst.State())
	require.Empty(t, e.mgr.Snapshot())
	require.Empty(t, e.mgr.Bound("clicker"))
	require.Zero(t, e.sched.Count())

	stops := 0
	for _, a := range actionsOf(t, inst) {
		if a == "tap(stop)" {
			stops++
		}
	}
	require.Equal(t, 1, stops, "stop callback must run exactly once")

	// Re-enabling binds a fresh environment to the same window.
	require.NoError(t, e.mgr.Enable("clicker"))
	fresh := getInstance(e.mgr, "clicker-1")
	require.NotNil(t, fresh)
	require.NotSame(t, inst, fresh)
	waitFor(t, 5*time.Second, func() bool {
		n, ok := statusCount(fresh.Status())
		return ok && n >= 1
	})
}

func TestWindowLostDestroysInstance(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})
	require.NoError(t, e.mgr.Enable("clicker"))

	inst := getInstance(e.mgr, "clicker-1")
	require.NotNil(t, inst)
	waitFor(t, 5*time.Second, func() bool {
		n, ok := statusCount(inst.Status())
		return ok && n >= 1
	})

	e.backend.SetWindows()
	e.matcher.Scan()

	require.Nil(t, getInstance(e.mgr, "clicker-1"))
	require.Equal(t, StateStopped, inst.State())
	require.Contains(t, actionsOf(t, inst), "tap(stop)")
}

func TestFailingTickIsolatedToItsInstance(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})
	require.NoError(t, e.mgr.Enable("clicker"))
	require.NoError(t, e.mgr.Enable("faulty"))

	good := getInstance(e.mgr, "clicker-1")
	bad := getInstance(e.mgr, "faulty-1")
	require.NotNil(t, good)
	require.NotNil(t, bad)

	waitFor(t, 5*time.Second, func() bool { return bad.State() == StateFailed })
	require.Error(t, bad.LastErr())
	var rerr *RuntimeError
	require.ErrorAs(t, bad.LastErr(), &rerr)
	require.Equal(t, "tick", rerr.Callback)

	// The sibling sharing the window keeps ticking past the failure.
	n0, _ := statusCount(good.Status())
	waitFor(t, 5*time.Second, func() bool {
		n, ok := statusCount(good.Status())
		return ok && n > n0+2
	})
	require.Equal(t, StateRunning, good.State())
}

func TestTickFailureSelfHeals(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})

	events, unsub := e.bus.Subscribe(32)
	defer unsub()

	require.NoError(t, e.mgr.Enable("flaky"))
	inst := getInstance(e.mgr, "flaky-1")
	require.NotNil(t, inst)

	// First tick panics: the instance degrades but stays scheduled. The
	// failure window is one cooldown wide, so watch the bus rather than
	// polling state.
	deadline := time.After(5 * time.Second)
wait:
	for {
		select {
		case ev := <-events:
			if ev.Type == eventbus.TickError {
				break wait
			}
		case <-deadline:
			t.Fatal("no tick error published")
		}
	}

	// The next successful tick clears the failure.
	waitFor(t, 5*time.Second, func() bool { return inst.State() == StateRunning })
	require.NoError(t, inst.LastErr())
	require.Equal(t, "recovered", inst.Status())
}

func TestStartFailureParksInstance(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})
	require.NoError(t, e.mgr.Enable("badstart"))

	inst := getInstance(e.mgr, "badstart-1")
	require.NotNil(t, inst)
	require.Equal(t, StateFailed, inst.State())
	require.Error(t, inst.LastErr())
	require.Zero(t, e.sched.Count(), "a start-failed instance is never scheduled")

	// The binding holds; re-scans never auto-retry it.
	e.matcher.Scan()
	e.matcher.Scan()
	require.Same(t, inst, getInstance(e.mgr, "badstart-1"))
	require.Equal(t, "-", inst.Status())
}

func TestResetPreservesIdentityAndEnvironment(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})
	require.NoError(t, e.mgr.Enable("clicker"))

	inst := getInstance(e.mgr, "clicker-1")
	require.NotNil(t, inst)

	waitFor(t, 5*time.Second, func() bool {
		n, ok := statusCount(inst.Status())
		return ok && n >= 5
	})
	created := inst.CreatedAt()

	require.NoError(t, e.mgr.ResetInstance("clicker-1"))

	// Same instance, same environment; only the script's own state was
	// rewound by its reset callback.
	require.Same(t, inst, getInstance(e.mgr, "clicker-1"))
	require.Equal(t, created, inst.CreatedAt())
	waitFor(t, 5*time.Second, func() bool {
		n, ok := statusCount(inst.Status())
		return ok && n >= 1 && n < 5
	})
}

func TestResetUnknownInstance(t *testing.T) {
	e := newEngine(t)
	err := e.mgr.ResetInstance("nobody-9")
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "unknown instance"))
}

func TestEnableUnknownOrBrokenBot(t *testing.T) {
	e := newEngine(t)
	require.Error(t, e.mgr.Enable("missing"))

	bots := e.mgr.Bots()
	names := make([]string, 0, len(bots))
	for _, b := range bots {
		names = append(names, b.Name)
	}
	require.ElementsMatch(t, []string{"badstart", "clicker", "faulty", "flaky", "nostatus"}, names)
}

func TestReconcileAppliesConfiguredSet(t *testing.T) {
	e := newEngine(t, window.Info{ID: 1, Title: "Foo one"})

	e.mgr.Reconcile([]string{"clicker", "ghost"})
	require.NotNil(t, getInstance(e.mgr, "clicker-1"))

	e.mgr.Reconcile(nil)
	require.Empty(t, e.mgr.Snapshot())
}
