package window

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/antiwinter/finger/internal/eventbus"
	"github.com/antiwinter/finger/pkg/logx"
)

// Sink receives match events. Implemented by the instance manager.
type Sink interface {
	WindowFound(bot string, win Info)
	WindowLost(bot string, id ID)
}

// Source exposes what the matcher needs to know about bots: which are
// enabled (with compiled patterns) and which windows each already binds.
// Implemented by the instance manager.
type Source interface {
	EnabledPatterns() map[string]*Pattern
	Bound(bot string) map[ID]bool
}

// Matcher re-scans OS windows on a cron schedule and diffs the result
// against current bindings. A window bound to an instance of bot B is not
// re-matched for B, but may still match any other enabled bot.
type Matcher struct {
	backend Backend
	source  Source
	sink    Sink
	bus     eventbus.Bus
	log     logx.Logger

	mu    sync.Mutex
	sched cron.Schedule

	kick chan struct{}
}

func NewMatcher(backend Backend, source Source, sink Sink, bus eventbus.Bus, log logx.Logger) *Matcher {
	sched, _ := cron.ParseStandard("@every 2s")
	return &Matcher{
		backend: backend,
		source:  source,
		sink:    sink,
		bus:     bus,
		log:     log,
		sched:   sched,
		kick:    make(chan struct{}, 1),
	}
}

// SetSchedule installs a new re-scan schedule (cron/v3 spec).
func (m *Matcher) SetSchedule(spec string) error {
	sched, err := cron.ParseStandard(spec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.sched = sched
	m.mu.Unlock()
	m.Kick()
	return nil
}

// Kick requests an immediate scan (used right after enabling a bot).
func (m *Matcher) Kick() {
	select {
	case m.kick <- struct{}{}:
	default:
	}
}

// Run drives the periodic re-scan until ctx is done. Intended to run under
// the supervisor.
func (m *Matcher) Run(ctx context.Context) error {
	for {
		m.mu.Lock()
		next := m.sched.Next(time.Now())
		m.mu.Unlock()

		wait := time.Until(next)
		if wait < 0 {
			wait = 0
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		case <-m.kick:
			timer.Stop()
		}
		m.Scan()
	}
}

// Scan performs one enumeration + diff pass.
func (m *Matcher) Scan() {
	wins, err := m.backend.Enumerate()
	if err != nil {
		m.log.Warn("window enumeration failed", logx.Err(err))
		return
	}

	alive := make(map[ID]string, len(wins))
	for _, w := range wins {
		alive[w.ID] = w.Title
	}

	for bot, pat := range m.source.EnabledPatterns() {
		bound := m.source.Bound(bot)

		for id := range bound {
			if _, ok := alive[id]; !ok {
				m.log.Info("window lost", logx.String("bot", bot), logx.Uint64("win", uint64(id)))
				m.publish(eventbus.WindowLost, bot, id)
				m.sink.WindowLost(bot, id)
			}
		}

		for _, w := range wins {
			if bound[w.ID] {
				continue
			}
			if pat.Match(w.Title) {
				m.log.Info("window found",
					logx.String("bot", bot),
					logx.Uint64("win", uint64(w.ID)),
					logx.String("title", w.Title),
				)
				m.publish(eventbus.WindowFound, bot, w.ID)
				m.sink.WindowFound(bot, w)
			}
		}
	}
}

func (m *Matcher) publish(typ, bot string, id ID) {
	if m.bus == nil {
		return
	}
	m.bus.Publish(eventbus.Event{Type: typ, Data: map[string]any{"bot": bot, "win": uint64(id)}})
}
