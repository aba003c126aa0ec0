// Package telegram is the optional remote control surface: a small command
// set over a Telegram bot, restricted to an owner allowlist. The engine
// runs identically without it; the adapter only talks to control.Controller.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/antiwinter/finger/internal/control"
	"github.com/antiwinter/finger/internal/runtime/supervisor"
	"github.com/antiwinter/finger/pkg/logx"
)

type Config struct {
	Token        string
	OwnerUserIDs []int64
	PollTimeout  time.Duration
}

// Surface serves /bots, /enable, /disable, /reset and /status to the
// configured owners.
type Surface struct {
	cfg  Config
	ctrl control.Controller
	log  logx.Logger
	bot  *tele.Bot
}

func New(cfg Config, ctrl control.Controller, log logx.Logger) (*Surface, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Surface{cfg: cfg, ctrl: ctrl, log: log, bot: b}
	s.registerHandlers()
	return s, nil
}

// Start runs the long poller under the supervisor until ctx is cancelled.
// Telebot's Start can exit in some failure modes; the restart loop makes
// the surface self-healing.
func (s *Surface) Start(ctx context.Context, sup *supervisor.Supervisor) {
	sup.Go0("telegram.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		s.bot.Stop()
	})
	sup.GoRestart("telegram.poll", func(c context.Context) error {
		s.log.Info("polling started")
		s.bot.Start()
		s.log.Info("polling stopped")
		if c.Err() == nil {
			// Start returned while we are still supposed to be running.
			return errors.New("poller exited unexpectedly")
		}
		return c.Err()
	})
}

// allowed enforces the owner allowlist. An empty list locks the surface
// down rather than opening it up.
func (s *Surface) allowed(c tele.Context) bool {
	sender := c.Sender()
	if sender == nil {
		return false
	}
	for _, id := range s.cfg.OwnerUserIDs {
		if id == sender.ID {
			return true
		}
	}
	s.log.Warn("command from non-owner ignored",
		logx.Int64("user", sender.ID),
		logx.String("text", c.Text()),
	)
	return false
}

func (s *Surface) handle(cmd string, fn func(c tele.Context, args []string) string) {
	s.bot.Handle(cmd, func(c tele.Context) error {
		if !s.allowed(c) {
			return nil
		}
		reply := fn(c, c.Args())
		if reply == "" {
			return nil
		}
		return c.Send(reply)
	})
}

func (s *Surface) registerHandlers() {
	s.handle("/bots", s.cmdBots)
	s.handle("/enable", s.cmdEnable)
	s.handle("/disable", s.cmdDisable)
	s.handle("/reset", s.cmdReset)
	s.handle("/status", s.cmdStatus)
	s.handle("/help", s.cmdHelp)
	s.handle("/start", s.cmdHelp)
}

func (s *Surface) cmdHelp(tele.Context, []string) string {
	return strings.Join([]string{
		"/bots - list discovered bots",
		"/enable <bot> - enable a bot",
		"/disable <bot> - disable a bot and stop its instances",
		"/reset <instance> - reset one instance",
		"/status [instance] - show instance status",
	}, "\n")
}

func (s *Surface) cmdBots(tele.Context, []string) string {
	bots := s.ctrl.Bots()
	if len(bots) == 0 {
		return "no bots discovered"
	}
	var b strings.Builder
	for _, bot := range bots {
		mark := "off"
		if bot.Enabled {
			mark = "on"
		}
		fmt.Fprintf(&b, "%s [%s] pattern=%q instances=%d", bot.Name, mark, bot.WindowPattern, len(bot.Instances))
		if bot.LoadErr != "" {
			fmt.Fprintf(&b, " error=%s", bot.LoadErr)
		}
		b.WriteByte('\n')
	}
	return strings.TrimRight(b.String(), "\n")
}

func (s *Surface) cmdEnable(_ tele.Context, args []string) string {
	if len(args) != 1 {
		return "usage: /enable <bot>"
	}
	if err := s.ctrl.Enable(args[0]); err != nil {
		return "error: " + err.Error()
	}
	return "enabled " + args[0]
}

func (s *Surface) cmdDisable(_ tele.Context, args []string) string {
	if len(args) != 1 {
		return "usage: /disable <bot>"
	}
	if err := s.ctrl.Disable(args[0]); err != nil {
		return "error: " + err.Error()
	}
	return "disabled " + args[0]
}

func (s *Surface) cmdReset(_ tele.Context, args []string) string {
	if len(args) != 1 {
		return "usage: /reset <instance>"
	}
	if err := s.ctrl.ResetInstance(args[0]); err != nil {
		return "error: " + err.Error()
	}
	return "reset " + args[0]
}

func (s *Surface) cmdStatus(_ tele.Context, args []string) string {
	if len(args) == 1 {
		st, err := s.ctrl.InstanceStatus(args[0])
		if err != nil {
			return "error: " + err.Error()
		}
		return formatStatus(st)
	}

	snap := s.ctrl.Snapshot()
	if len(snap) == 0 {
		return "no live instances"
	}
	sort.Slice(snap, func(a, b int) bool { return snap[a].ID < snap[b].ID })
	lines := make([]string, 0, len(snap))
	for _, st := range snap {
		lines = append(lines, formatStatus(st))
	}
	return strings.Join(lines, "\n")
}

func formatStatus(st control.InstanceStatus) string {
	line := fmt.Sprintf("%s state=%s status=%q win=%d %q up=%s",
		st.ID, st.State, st.Status, st.WindowID, st.WindowTitle,
		time.Since(st.StartedAt).Round(time.Second),
	)
	if st.LastErr != "" {
		line += " err=" + st.LastErr
	}
	return line
}
