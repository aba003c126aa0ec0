package instance

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/antiwinter/finger/internal/control"
	"github.com/antiwinter/finger/internal/eventbus"
	"github.com/antiwinter/finger/internal/sandbox"
	"github.com/antiwinter/finger/internal/sched"
	"github.com/antiwinter/finger/internal/script"
	"github.com/antiwinter/finger/internal/window"
	"github.com/antiwinter/finger/pkg/logx"
)

// defaultDrainTimeout bounds how long teardown waits for an in-flight tick
// before running the stop callback anyway.
const defaultDrainTimeout = 15 * time.Second

type botEntry struct {
	meta    script.Meta
	pattern *window.Pattern
	enabled bool

	// err records a discovery or pattern failure; such a bot is listed but
	// cannot be enabled.
	err error
}

// Options wires the manager's collaborators.
type Options struct {
	Loader  *script.Loader
	Backend window.Backend
	Sched   *sched.Scheduler
	Locks   *sandbox.WindowLocks
	Bus     eventbus.Bus
	Log     logx.Logger

	JitterFrac    float64
	LogRatePerSec int
	DrainTimeout  time.Duration
}

// Manager owns the bot registry and all live instances. It is the
// matcher's Source and Sink and the control surface's Controller.
type Manager struct {
	opts Options
	log  logx.Logger

	// onEnabledChange pokes the matcher for an immediate re-scan after
	// enable/disable; set by the app during wiring.
	onEnabledChange func()

	mu        sync.Mutex
	root      string
	bots      map[string]*botEntry
	instances map[string]*Instance
}

func NewManager(opts Options) *Manager {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	return &Manager{
		opts:      opts,
		log:       opts.Log,
		bots:      map[string]*botEntry{},
		instances: map[string]*Instance{},
	}
}

// BindEnabledChange registers the callback invoked after the enabled set
// changes.
func (m *Manager) BindEnabledChange(fn func()) {
	m.mu.Lock()
	m.onEnabledChange = fn
	m.mu.Unlock()
}

// SetSandboxConfig updates capability tuning for instances created from now
// on; live instances keep the parameters they were built with.
func (m *Manager) SetSandboxConfig(jitterFrac float64, logRatePerSec int) {
	m.mu.Lock()
	m.opts.JitterFrac = jitterFrac
	m.opts.LogRatePerSec = logRatePerSec
	m.mu.Unlock()
}

// LoadBots discovers bots under root and merges them into the registry,
// preserving enabled flags across re-discovery. Bots that vanished from
// disk are disabled and their instances destroyed. Per-bot failures are
// isolated; a broken bot never blocks its siblings.
func (m *Manager) LoadBots(root string) map[string]error {
	metas, failures := m.opts.Loader.Discover(root)

	m.mu.Lock()
	m.root = root

	seen := map[string]bool{}
	for _, meta := range metas {
		seen[meta.Name] = true
		entry := m.bots[meta.Name]
		if entry == nil {
			entry = &botEntry{}
			m.bots[meta.Name] = entry
		}
		entry.meta = meta
		entry.err = nil

		pat, err := window.CompilePattern(meta.WindowPattern)
		if err != nil {
			entry.err = err
			entry.pattern = nil
			failures[meta.Name] = err
			m.log.Error("bot disabled: bad window pattern",
				logx.String("bot", meta.Name), logx.Err(err))
			m.publish(eventbus.BotLoadFailed, map[string]any{"bot": meta.Name, "err": err.Error()})
			continue
		}
		entry.pattern = pat
		m.publish(eventbus.BotLoaded, map[string]any{"bot": meta.Name, "pattern": meta.WindowPattern})
	}

	for name, err := range failures {
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		entry := m.bots[name]
		if entry == nil {
			entry = &botEntry{meta: script.Meta{Name: name}}
			m.bots[name] = entry
		}
		entry.err = err
		entry.pattern = nil
		m.log.Error("bot failed to load", logx.String("bot", name), logx.Err(err))
		m.publish(eventbus.BotLoadFailed, map[string]any{"bot": name, "err": err.Error()})
	}

	var gone []string
	for name := range m.bots {
		if !seen[name] {
			gone = append(gone, name)
		}
	}
	m.mu.Unlock()

	for _, name := range gone {
		m.log.Info("bot removed from disk", logx.String("bot", name))
		m.Disable(name)
		m.mu.Lock()
		delete(m.bots, name)
		m.mu.Unlock()
	}

	return failures
}

// EnabledPatterns implements window.Source.
func (m *Manager) EnabledPatterns() map[string]*window.Pattern {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[string]*window.Pattern{}
	for name, b := range m.bots {
		if b.enabled && b.pattern != nil {
			out[name] = b.pattern
		}
	}
	return out
}

// Bound implements window.Source.
func (m *Manager) Bound(bot string) map[window.ID]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := map[window.ID]bool{}
	for _, inst := range m.instances {
		if inst.bot == bot {
			out[inst.info.ID] = true
		}
	}
	return out
}

// WindowFound implements window.Sink: creates the instance for a fresh
// (bot, window) match.
func (m *Manager) WindowFound(bot string, win window.Info) {
	m.mu.Lock()
	entry := m.bots[bot]
	if entry == nil || !entry.enabled {
		m.mu.Unlock()
		return
	}
	id := instanceID(bot, win.ID)
	if _, exists := m.instances[id]; exists {
		m.mu.Unlock()
		return
	}
	meta := entry.meta
	m.mu.Unlock()

	m.create(id, meta, win)
}

// WindowLost implements window.Sink: tears down the instance whose window
// vanished.
func (m *Manager) WindowLost(bot string, winID window.ID) {
	m.mu.Lock()
	inst := m.instances[instanceID(bot, winID)]
	m.mu.Unlock()
	if inst == nil {
		return
	}
	m.destroy(inst, "window lost")
}

func instanceID(bot string, winID window.ID) string {
	return bot + "-" + strconv.FormatUint(uint64(winID), 10)
}

// create builds the full per-instance environment: OS handle, capability
// set, fresh script evaluation, then the optional start callback. A start
// failure leaves the instance registered as Failed and unscheduled; it is
// never auto-retried while the window binding holds.
func (m *Manager) create(id string, meta script.Meta, win window.Info) {
	m.mu.Lock()
	jitter := m.opts.JitterFrac
	logRate := m.opts.LogRatePerSec
	m.mu.Unlock()

	ilog := m.log.With(logx.String("bot", meta.Name), logx.String("instance", id))

	handle, err := m.opts.Backend.Open(win.ID)
	if err != nil {
		ilog.Warn("window open failed", logx.Err(err))
		return
	}

	funcs := sandbox.NewFuncs(ilog, jitter, logRate)

	sc, err := m.opts.Loader.Load(meta.Dir, meta.Name, funcs)
	if err != nil {
		ilog.Error("script load failed", logx.Err(err))
		m.publish(eventbus.BotLoadFailed, map[string]any{"bot": meta.Name, "err": err.Error()})
		return
	}

	frame := &sandbox.Frame{}
	ctx, cancel := context.WithCancel(context.Background())
	lock := m.opts.Locks.Acquire(win.ID)
	proxy := sandbox.NewWinProxy(ctx, id, handle, frame, lock, ilog, m.opts.Bus)

	inst := newInstance(id, meta.Name, handle, win, sc, frame, proxy, cancel, ilog)

	m.mu.Lock()
	if _, exists := m.instances[id]; exists {
		m.mu.Unlock()
		cancel()
		m.opts.Locks.Release(win.ID)
		return
	}
	m.instances[id] = inst
	m.mu.Unlock()

	ilog.Info("instance created", logx.String("title", win.Title))
	m.publish(eventbus.InstanceCreated, map[string]any{"instance": id, "win": uint64(win.ID)})

	if err := inst.Start(); err != nil {
		ilog.Error("start callback failed; instance parked as failed", logx.Err(err))
		m.publish(eventbus.InstanceFailed, map[string]any{"instance": id, "err": err.Error()})
		return
	}

	m.opts.Sched.Add(inst)
}

// destroy tears one instance down: stop scheduling, wait out any in-flight
// tick (bounded), run the stop callback, release the window lock.
func (m *Manager) destroy(inst *Instance, reason string) {
	m.mu.Lock()
	if m.instances[inst.id] != inst {
		m.mu.Unlock()
		return
	}
	delete(m.instances, inst.id)
	m.mu.Unlock()

	inst.cancel()
	if done, ok := m.opts.Sched.Remove(inst.id); ok {
		select {
		case <-done:
		case <-time.After(m.opts.DrainTimeout):
			inst.log.Warn("tick still in flight at teardown deadline")
		}
	}

	if inst.hasStarted() {
		inst.StopCallback()
	}

	m.opts.Locks.Release(inst.info.ID)
	inst.setStopped()

	inst.log.Info("instance stopped", logx.String("reason", reason))
	m.publish(eventbus.InstanceStopped, map[string]any{"instance": inst.id, "reason": reason})
}

// Enable implements control.Controller.
func (m *Manager) Enable(name string) error {
	m.mu.Lock()
	entry := m.bots[name]
	if entry == nil {
		m.mu.Unlock()
		return fmt.Errorf("unknown bot %q", name)
	}
	if entry.err != nil {
		err := entry.err
		m.mu.Unlock()
		return fmt.Errorf("bot %q cannot be enabled: %w", name, err)
	}
	already := entry.enabled
	entry.enabled = true
	kick := m.onEnabledChange
	m.mu.Unlock()

	if already {
		return nil
	}
	m.log.Info("bot enabled", logx.String("bot", name))
	m.publish(eventbus.BotEnabled, map[string]any{"bot": name})
	if kick != nil {
		kick()
	}
	return nil
}

// Disable implements control.Controller: stops binding and destroys the
// bot's live instances.
func (m *Manager) Disable(name string) error {
	m.mu.Lock()
	entry := m.bots[name]
	if entry == nil {
		m.mu.Unlock()
		return fmt.Errorf("unknown bot %q", name)
	}
	wasEnabled := entry.enabled
	entry.enabled = false

	var victims []*Instance
	for _, inst := range m.instances {
		if inst.bot == name {
			victims = append(victims, inst)
		}
	}
	m.mu.Unlock()

	for _, inst := range victims {
		m.destroy(inst, "bot disabled")
	}

	if wasEnabled {
		m.log.Info("bot disabled", logx.String("bot", name))
		m.publish(eventbus.BotDisabled, map[string]any{"bot": name})
	}
	return nil
}

// Reconcile applies a configured enabled set: listed bots are enabled,
// everything else disabled. Unknown names are logged and skipped.
func (m *Manager) Reconcile(enabled []string) {
	want := map[string]bool{}
	for _, name := range enabled {
		want[name] = true
	}

	m.mu.Lock()
	var names []string
	for name := range m.bots {
		names = append(names, name)
	}
	m.mu.Unlock()
	sort.Strings(names)

	for _, name := range names {
		if want[name] {
			if err := m.Enable(name); err != nil {
				m.log.Warn("cannot enable configured bot", logx.String("bot", name), logx.Err(err))
			}
			delete(want, name)
		} else {
			_ = m.Disable(name)
		}
	}
	for name := range want {
		m.log.Warn("configured bot not found", logx.String("bot", name))
	}
}

// ResetInstance implements control.Controller.
func (m *Manager) ResetInstance(id string) error {
	m.mu.Lock()
	inst := m.instances[id]
	m.mu.Unlock()
	if inst == nil {
		return fmt.Errorf("unknown instance %q", id)
	}
	if err := inst.Reset(); err != nil {
		m.publish(eventbus.InstanceFailed, map[string]any{"instance": id, "err": err.Error()})
		return err
	}
	m.publish(eventbus.InstanceReset, map[string]any{"instance": id})
	return nil
}

// InstanceStatus implements control.Controller.
func (m *Manager) InstanceStatus(id string) (control.InstanceStatus, error) {
	m.mu.Lock()
	inst := m.instances[id]
	m.mu.Unlock()
	if inst == nil {
		return control.InstanceStatus{}, fmt.Errorf("unknown instance %q", id)
	}
	return statusOf(inst), nil
}

// Snapshot implements control.Controller.
func (m *Manager) Snapshot() []control.InstanceStatus {
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	out := make([]control.InstanceStatus, 0, len(insts))
	for _, inst := range insts {
		out = append(out, statusOf(inst))
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}

// Bots implements control.Controller.
func (m *Manager) Bots() []control.BotStatus {
	snap := m.Snapshot()
	byBot := map[string][]control.InstanceStatus{}
	for _, st := range snap {
		byBot[st.Bot] = append(byBot[st.Bot], st)
	}

	m.mu.Lock()
	out := make([]control.BotStatus, 0, len(m.bots))
	for name, b := range m.bots {
		st := control.BotStatus{
			Name:          name,
			WindowPattern: b.meta.WindowPattern,
			Description:   b.meta.Description,
			Enabled:       b.enabled,
			Instances:     byBot[name],
		}
		if b.err != nil {
			st.LoadErr = b.err.Error()
		}
		out = append(out, st)
	}
	m.mu.Unlock()

	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

// Shutdown destroys every live instance. Stop callbacks run once each.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	insts := make([]*Instance, 0, len(m.instances))
	for _, inst := range m.instances {
		insts = append(insts, inst)
	}
	m.mu.Unlock()

	for _, inst := range insts {
		m.destroy(inst, "shutdown")
	}
}

func statusOf(inst *Instance) control.InstanceStatus {
	st := control.InstanceStatus{
		ID:          inst.ID(),
		Bot:         inst.Bot(),
		WindowID:    uint64(inst.info.ID),
		WindowTitle: inst.info.Title,
		State:       inst.State().String(),
		Status:      inst.Status(),
		StartedAt:   inst.CreatedAt(),
	}
	if err := inst.LastErr(); err != nil {
		st.LastErr = err.Error()
	}
	return st
}

func (m *Manager) publish(typ string, data map[string]any) {
	if m.opts.Bus == nil {
		return
	}
	m.opts.Bus.Publish(eventbus.Event{Type: typ, Data: data})
}
