// Package app assembles the engine: config, logging, window matching,
// instance management, scheduling, and the optional remote control surface.
package app

import (
	"context"
	"strings"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"github.com/antiwinter/finger/internal/config"
	"github.com/antiwinter/finger/internal/eventbus"
	"github.com/antiwinter/finger/internal/instance"
	"github.com/antiwinter/finger/internal/runtime/supervisor"
	"github.com/antiwinter/finger/internal/sandbox"
	"github.com/antiwinter/finger/internal/sched"
	"github.com/antiwinter/finger/internal/script"
	"github.com/antiwinter/finger/internal/transport/telegram"
	"github.com/antiwinter/finger/internal/window"
	"github.com/antiwinter/finger/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	logs *logx.Service
	log  logx.Logger
	bus  eventbus.Bus
	sup  *supervisor.Supervisor

	// botsRoot is fixed at Start; a changed bots.root needs a restart.
	botsRoot string

	backend window.Backend
	loader  *script.Loader
	locks   *sandbox.WindowLocks
	sched   *sched.Scheduler
	mgr     *instance.Manager
	matcher *window.Matcher
	surface *telegram.Surface
}

// New loads config and builds the passive parts of the engine. backend may
// be nil; the stub backend then stands in (no real OS windows).
func New(cfgPath string, backend window.Backend) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logs, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	if backend == nil {
		backend = window.NewStub(log.With(logx.String("comp", "window.stub")))
		log.Warn("no platform window backend; using stub")
	}

	inputRate := cfg.Sandbox.InputRatePerSec
	if inputRate <= 0 {
		inputRate = config.DefaultInputRate
	}

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		logs:    logs,
		log:     log,
		bus:     eventbus.New(),
		backend: backend,
		loader:  script.NewLoader(log.With(logx.String("comp", "loader"))),
		locks:   sandbox.NewWindowLocks(inputRate),
	}, nil
}

// Start brings the engine up: discover bots, arm the configured set, start
// the matcher, config watcher and (if configured) the Telegram surface,
// then notify systemd readiness.
func (a *App) Start(ctx context.Context) error {
	cfg := a.cfgm.Get()
	a.botsRoot = cfg.Bots.Root

	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log))

	schedCfg, err := mapSchedConfig(cfg)
	if err != nil {
		return err
	}
	a.sched = sched.New(schedCfg, a.sup, a.bus, a.log.With(logx.String("comp", "sched")))

	jitter := cfg.Sandbox.JitterFrac
	if jitter <= 0 {
		jitter = config.DefaultJitterFrac
	}
	logRate := cfg.Sandbox.LogRatePerSec
	if logRate <= 0 {
		logRate = config.DefaultLogRate
	}
	a.mgr = instance.NewManager(instance.Options{
		Loader:        a.loader,
		Backend:       a.backend,
		Sched:         a.sched,
		Locks:         a.locks,
		Bus:           a.bus,
		Log:           a.log.With(logx.String("comp", "instances")),
		JitterFrac:    jitter,
		LogRatePerSec: logRate,
	})

	a.matcher = window.NewMatcher(a.backend, a.mgr, a.mgr, a.bus,
		a.log.With(logx.String("comp", "matcher")))
	if s := strings.TrimSpace(cfg.Scan.Schedule); s != "" {
		if err := a.matcher.SetSchedule(s); err != nil {
			return err
		}
	}
	a.mgr.BindEnabledChange(a.matcher.Kick)

	if failures := a.mgr.LoadBots(cfg.Bots.Root); len(failures) > 0 {
		for name, ferr := range failures {
			a.log.Warn("bot unavailable", logx.String("bot", name), logx.Err(ferr))
		}
	}
	a.mgr.Reconcile(cfg.Bots.Enabled)

	a.sup.Go("window.matcher", a.matcher.Run)

	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.sup.Go("config.watch", a.cfgm.Watch)
	a.startReloadLoop()
	a.startEventLog()

	if strings.TrimSpace(cfg.Telegram.Token) != "" {
		if err := a.startTelegram(cfg); err != nil {
			// The engine runs fine headless; a broken control surface is
			// reported, not fatal.
			a.log.Error("telegram surface unavailable", logx.Err(err))
		}
	}

	if sent, err := daemon.SdNotify(false, daemon.SdNotifyReady); err != nil {
		a.log.Warn("systemd notify failed", logx.Err(err))
	} else if sent {
		a.log.Debug("systemd notified ready")
	}

	a.log.Info("engine started", logx.String("bots_root", cfg.Bots.Root))
	return nil
}

func (a *App) startTelegram(cfg *config.Config) error {
	pollTimeout, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return err
	}
	surface, err := telegram.New(telegram.Config{
		Token:        cfg.Telegram.Token,
		OwnerUserIDs: cfg.Telegram.OwnerUserIDs,
		PollTimeout:  pollTimeout,
	}, a.mgr, a.log.With(logx.String("comp", "telegram")))
	if err != nil {
		return err
	}
	a.surface = surface
	surface.Start(a.sup.Context(), a.sup)
	return nil
}

// startReloadLoop applies committed config changes to the live engine.
// Bots.root is fixed for the process lifetime; everything else hot-applies.
func (a *App) startReloadLoop() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-c.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyConfig(newCfg)
			}
		}
	})
}

func (a *App) applyConfig(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if s := strings.TrimSpace(cfg.Scan.Schedule); s != "" {
		if err := a.matcher.SetSchedule(s); err != nil {
			a.log.Warn("scan.schedule rejected; keeping previous", logx.Err(err))
		}
	}

	if schedCfg, err := mapSchedConfig(cfg); err != nil {
		a.log.Warn("cooldown config rejected; keeping previous", logx.Err(err))
	} else {
		a.sched.SetConfig(schedCfg)
	}

	jitter := cfg.Sandbox.JitterFrac
	if jitter <= 0 {
		jitter = config.DefaultJitterFrac
	}
	logRate := cfg.Sandbox.LogRatePerSec
	if logRate <= 0 {
		logRate = config.DefaultLogRate
	}
	a.mgr.SetSandboxConfig(jitter, logRate)

	a.mgr.Reconcile(cfg.Bots.Enabled)

	if cfg.Bots.Root != a.botsRoot {
		a.log.Warn("bots.root changed; restart required for changes to take effect")
	}

	a.log.Info("config applied")
}

// startEventLog drains the bus at debug level so every lifecycle event has
// at least one observer.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Any("data", e.Data))
			}
		}
	})
}

// Stop drains every live instance (stop callbacks run once each), then
// shuts the supervisor down.
func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	if a.mgr != nil {
		a.mgr.Shutdown()
	}

	var err error
	if a.sup != nil {
		a.sup.Cancel()
		err = a.sup.Wait(ctx)
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return err
}

// Controller exposes the management surface, for embedding fronts other
// than Telegram.
func (a *App) Controller() *instance.Manager { return a.mgr }

func mapSchedConfig(cfg *config.Config) (sched.Config, error) {
	min, err := config.ParseDurationOrDefault("cooldown.min", cfg.Cooldown.Min, config.DefaultCooldownMin)
	if err != nil {
		return sched.Config{}, err
	}
	max, err := config.ParseDurationOrDefault("cooldown.max", cfg.Cooldown.Max, config.DefaultCooldownMax)
	if err != nil {
		return sched.Config{}, err
	}
	def, err := config.ParseDurationOrDefault("cooldown.default", cfg.Cooldown.Default, config.DefaultCooldown)
	if err != nil {
		return sched.Config{}, err
	}
	// An explicit "0s" disables these two, so the default only fills in for
	// absent fields.
	settle := config.DefaultSettleDelay
	if strings.TrimSpace(cfg.Scan.SettleDelay) != "" {
		settle, err = config.ParseDurationField("scan.settle_delay", cfg.Scan.SettleDelay)
		if err != nil {
			return sched.Config{}, err
		}
	}
	warn := config.DefaultTickWarnAfter
	if strings.TrimSpace(cfg.Sandbox.TickWarnAfter) != "" {
		warn, err = config.ParseDurationField("sandbox.tick_warn_after", cfg.Sandbox.TickWarnAfter)
		if err != nil {
			return sched.Config{}, err
		}
	}
	return sched.Config{
		MinCooldown:     min,
		MaxCooldown:     max,
		DefaultCooldown: def,
		SettleDelay:     settle,
		TickWarnAfter:   warn,
	}, nil
}
