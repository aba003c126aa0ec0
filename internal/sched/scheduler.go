// Package sched drives the independent tick loop of every live instance:
// activate window, invoke tick, deactivate, wait out the bot-declared
// cooldown. One supervisor-owned goroutine per instance makes per-instance
// tick non-overlap structural; nothing is ordered between instances.
package sched

import (
	"context"
	"sync"
	"time"

	"github.com/antiwinter/finger/internal/eventbus"
	"github.com/antiwinter/finger/internal/runtime/supervisor"
	"github.com/antiwinter/finger/pkg/logx"
)

type Config struct {
	MinCooldown     time.Duration
	MaxCooldown     time.Duration
	DefaultCooldown time.Duration

	// SettleDelay is the pause between activating a window and invoking
	// the tick.
	SettleDelay time.Duration

	// TickWarnAfter is the watchdog threshold; an overrunning tick is
	// logged and published, never killed. Zero disables the watchdog.
	TickWarnAfter time.Duration
}

// Runner is one schedulable instance. Implemented by instance.Instance.
type Runner interface {
	ID() string

	Activate()
	Deactivate()

	// Tick invokes the script's tick callback inside its capability frame
	// and refreshes the cached status. It returns the cooldown the script
	// requested in milliseconds; <=0 or an error means the scheduler's
	// default applies. Errors are already recorded on the instance.
	Tick() (cooldownMS int, err error)
}

type entry struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type Scheduler struct {
	sup *supervisor.Supervisor
	bus eventbus.Bus
	log logx.Logger

	mu      sync.Mutex
	cfg     Config
	running map[string]*entry
}

func New(cfg Config, sup *supervisor.Supervisor, bus eventbus.Bus, log logx.Logger) *Scheduler {
	return &Scheduler{
		sup:     sup,
		bus:     bus,
		log:     log,
		cfg:     normalize(cfg),
		running: map[string]*entry{},
	}
}

func normalize(cfg Config) Config {
	if cfg.DefaultCooldown <= 0 {
		cfg.DefaultCooldown = 5000 * time.Millisecond
	}
	if cfg.MinCooldown <= 0 {
		cfg.MinCooldown = 100 * time.Millisecond
	}
	if cfg.MaxCooldown < cfg.MinCooldown {
		cfg.MaxCooldown = 10 * time.Minute
	}
	return cfg
}

// SetConfig swaps timing parameters; running loops pick them up on their
// next cycle.
func (s *Scheduler) SetConfig(cfg Config) {
	cfg = normalize(cfg)
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Add registers an instance and starts its tick loop. The first tick is
// due immediately.
func (s *Scheduler) Add(r Runner) {
	id := r.ID()

	s.mu.Lock()
	if _, ok := s.running[id]; ok {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e := &entry{cancel: cancel, done: make(chan struct{})}
	s.running[id] = e
	s.mu.Unlock()

	s.sup.Go0("tick."+id, func(supCtx context.Context) {
		defer close(e.done)
		s.loop(supCtx, ctx, r)
	})
}

// Remove cancels an instance's pending timer and reports the loop's done
// channel. An in-flight tick is never interrupted; the loop exits once it
// returns and observes the cancellation.
func (s *Scheduler) Remove(id string) (done <-chan struct{}, ok bool) {
	s.mu.Lock()
	e := s.running[id]
	if e != nil {
		delete(s.running, id)
	}
	s.mu.Unlock()

	if e == nil {
		return nil, false
	}
	e.cancel()
	return e.done, true
}

// Count reports how many instance loops are registered.
func (s *Scheduler) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.running)
}

func (s *Scheduler) loop(supCtx, instCtx context.Context, r Runner) {
	id := r.ID()

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-supCtx.Done():
			return
		case <-instCtx.Done():
			return
		case <-timer.C:
		}

		cd := s.cycle(r)
		timer.Reset(cd)

		if s.log.Enabled(logx.LevelTrace) {
			s.log.Trace("tick complete", logx.String("instance", id), logx.Duration("next_in", cd))
		}
	}
}

// cycle runs one activate → tick → deactivate pass and returns the clamped
// cooldown until the next tick.
func (s *Scheduler) cycle(r Runner) time.Duration {
	cfg := s.config()
	id := r.ID()

	r.Activate()
	if cfg.SettleDelay > 0 {
		time.Sleep(cfg.SettleDelay)
	}

	var watchdog *time.Timer
	if cfg.TickWarnAfter > 0 {
		started := time.Now()
		watchdog = time.AfterFunc(cfg.TickWarnAfter, func() {
			s.log.Warn("tick overrunning",
				logx.String("instance", id),
				logx.Duration("running_for", time.Since(started)),
			)
			s.publish(eventbus.TickOverrun, id, nil)
		})
	}

	ms, err := r.Tick()

	if watchdog != nil {
		watchdog.Stop()
	}
	r.Deactivate()

	if err != nil {
		s.log.Error("tick failed", logx.String("instance", id), logx.Err(err))
		s.publish(eventbus.TickError, id, err)
		return s.clamp(cfg, 0)
	}
	return s.clamp(cfg, ms)
}

// clamp maps a script-returned cooldown to the effective wait: the default
// substitutes for absent/zero/negative values, then bounds apply.
func (s *Scheduler) clamp(cfg Config, ms int) time.Duration {
	d := time.Duration(ms) * time.Millisecond
	if ms <= 0 {
		d = cfg.DefaultCooldown
	}
	if d < cfg.MinCooldown {
		d = cfg.MinCooldown
	}
	if d > cfg.MaxCooldown {
		d = cfg.MaxCooldown
	}
	return d
}

func (s *Scheduler) publish(typ, id string, err error) {
	if s.bus == nil {
		return
	}
	data := map[string]any{"instance": id}
	if err != nil {
		data["err"] = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
