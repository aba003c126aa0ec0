// Package instance binds loaded scripts to matched windows: one instance
// per (bot, window), each with its own execution environment, capability
// frame, and lifecycle state. Failures stay inside the instance that
// raised them.
package instance

import (
	"context"
	"sync"
	"time"

	"github.com/antiwinter/finger/internal/sandbox"
	"github.com/antiwinter/finger/internal/script"
	"github.com/antiwinter/finger/internal/window"
	"github.com/antiwinter/finger/pkg/logx"
)

// statusPlaceholder is reported when the bot declares no get_status or
// returned an empty string.
const statusPlaceholder = "-"

type State int32

const (
	StateCreated State = iota
	StateRunning
	StateFailed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	}
	return "unknown"
}

// Instance is one live (bot, window) binding. The scheduler drives
// Activate/Tick/Deactivate from a single goroutine; the manager drives
// Start/StopCallback/Reset; state accessors are safe from anywhere.
type Instance struct {
	id  string
	bot string

	win    window.Handle
	info   window.Info
	script *script.Script
	frame  *sandbox.Frame
	proxy  *sandbox.WinProxy

	cancel    context.CancelFunc
	log       logx.Logger
	createdAt time.Time

	mu      sync.Mutex
	state   State
	status  string
	lastErr error
	started bool
}

func newInstance(
	id, bot string,
	win window.Handle,
	info window.Info,
	sc *script.Script,
	frame *sandbox.Frame,
	proxy *sandbox.WinProxy,
	cancel context.CancelFunc,
	log logx.Logger,
) *Instance {
	return &Instance{
		id:        id,
		bot:       bot,
		win:       win,
		info:      info,
		script:    sc,
		frame:     frame,
		proxy:     proxy,
		cancel:    cancel,
		log:       log,
		createdAt: time.Now(),
		state:     StateCreated,
		status:    statusPlaceholder,
	}
}

func (i *Instance) ID() string          { return i.id }
func (i *Instance) Bot() string         { return i.bot }
func (i *Instance) Window() window.Info { return i.info }

func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

func (i *Instance) Status() string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.status
}

func (i *Instance) LastErr() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.lastErr
}

func (i *Instance) CreatedAt() time.Time { return i.createdAt }

// Activate and Deactivate bracket each tick; the scheduler calls them so a
// tick always runs against a foregrounded window.
func (i *Instance) Activate()   { i.win.Activate() }
func (i *Instance) Deactivate() { i.win.Deactivate() }

// Start runs the optional start callback inside a capability frame. A
// failure here marks the instance Failed permanently; it is never retried.
func (i *Instance) Start() error {
	start := i.script.Descriptor.Start
	if start == nil {
		i.markRunning()
		return nil
	}

	i.frame.Enter()
	err := safeCall(i.id, "start", func() { start(i.proxy) })
	i.frame.Exit()

	if err != nil {
		i.setFailed(err)
		return err
	}
	i.markRunning()
	return nil
}

// Tick runs one tick callback and refreshes the cached status. It
// implements sched.Runner.
func (i *Instance) Tick() (int, error) {
	tick := i.script.Descriptor.Tick

	i.frame.Enter()
	defer i.frame.Exit()

	var cd int
	if err := safeCall(i.id, "tick", func() { cd = tick() }); err != nil {
		i.setFailed(err)
		return 0, err
	}

	status := statusPlaceholder
	if get := i.script.Descriptor.GetStatus; get != nil {
		var s string
		if err := safeCall(i.id, "get_status", func() { s = get() }); err != nil {
			i.setFailed(err)
			return 0, err
		}
		if s != "" {
			status = s
		}
	}

	// A successful tick clears an earlier Failed mark; the instance healed
	// itself.
	i.mu.Lock()
	i.state = StateRunning
	i.lastErr = nil
	i.status = status
	i.mu.Unlock()

	return cd, nil
}

// StopCallback runs the optional stop callback once, during teardown.
// Errors are logged, never propagated; the instance is going away anyway.
func (i *Instance) StopCallback() {
	stop := i.script.Descriptor.Stop
	if stop == nil {
		return
	}

	i.frame.Enter()
	err := safeCall(i.id, "stop", stop)
	i.frame.Exit()

	if err != nil {
		i.log.Warn("stop callback failed", logx.Err(err))
	}
}

// Reset runs the optional reset callback against the live environment. The
// environment and window binding survive; a failure is recorded for status
// reporting but does not stop scheduling.
func (i *Instance) Reset() error {
	reset := i.script.Descriptor.Reset
	if reset == nil {
		return nil
	}

	i.frame.Enter()
	err := safeCall(i.id, "reset", reset)
	i.frame.Exit()

	if err != nil {
		i.setFailed(err)
		return err
	}
	return nil
}

func (i *Instance) markRunning() {
	i.mu.Lock()
	i.state = StateRunning
	i.started = true
	i.mu.Unlock()
}

func (i *Instance) setFailed(err error) {
	i.mu.Lock()
	i.state = StateFailed
	i.lastErr = err
	i.mu.Unlock()
}

func (i *Instance) setStopped() {
	i.mu.Lock()
	i.state = StateStopped
	i.mu.Unlock()
}

func (i *Instance) hasStarted() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.started
}
