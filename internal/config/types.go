package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Config is the process-level configuration. All durations are Go duration
// strings (e.g. "200ms", "5s", "10m"). None of this is part of the per-bot
// contract; bots only see the capability surface.
type Config struct {
	Bots     BotsConfig     `json:"bots"`
	Logging  LoggingConfig  `json:"logging"`
	Scan     ScanConfig     `json:"scan,omitempty"`
	Cooldown CooldownConfig `json:"cooldown,omitempty"`
	Sandbox  SandboxConfig  `json:"sandbox,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
}

type BotsConfig struct {
	// Root is the bots root folder; every subfolder containing the entry
	// unit bot.go is an independently discovered bot.
	Root string `json:"root"`

	// Enabled lists bot names ('/'-joined folder paths relative to Root)
	// armed at startup. The control surface can change the set at runtime.
	Enabled []string `json:"enabled,omitempty"`
}

type LoggingConfig struct {
	Level   string     `json:"level,omitempty"`
	Console bool       `json:"console"`
	File    FileConfig `json:"file,omitempty"`
}

type FileConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path,omitempty"`
}

// ScanConfig controls window re-scanning and activation.
type ScanConfig struct {
	// Schedule is a cron/v3 spec ("@every 2s", "*/5 * * * *", ...) driving
	// the window re-scan. Defaults to "@every 2s".
	Schedule string `json:"schedule,omitempty"`

	// SettleDelay is the pause after activating a window before the tick
	// runs, giving the OS time to raise/focus it.
	SettleDelay string `json:"settle_delay,omitempty"`
}

// CooldownConfig bounds the per-tick cooldown returned by bots.
type CooldownConfig struct {
	Min     string `json:"min,omitempty"`
	Max     string `json:"max,omitempty"`
	Default string `json:"default,omitempty"`
}

// SandboxConfig tunes the capability surface handed to scripts.
type SandboxConfig struct {
	// JitterFrac is the +/- fraction applied to F.sleep durations.
	JitterFrac float64 `json:"jitter_frac,omitempty"`

	// LogRatePerSec throttles F.log per instance.
	LogRatePerSec int `json:"log_rate_per_sec,omitempty"`

	// InputRatePerSec paces click/tap/type actuation per physical window.
	InputRatePerSec int `json:"input_rate_per_sec,omitempty"`

	// TickWarnAfter is the watchdog threshold for overrunning ticks.
	// Overruns are logged, never killed. "0s" disables the watchdog.
	TickWarnAfter string `json:"tick_warn_after,omitempty"`
}

// TelegramConfig enables the optional remote control surface. Leaving the
// token empty disables it entirely.
type TelegramConfig struct {
	Token        string  `json:"token,omitempty"`
	OwnerUserIDs []int64 `json:"owner_user_ids,omitempty"`
	PollTimeout  string  `json:"poll_timeout,omitempty"`
}

// Defaults applied when fields are omitted.
const (
	DefaultScanSchedule  = "@every 2s"
	DefaultSettleDelay   = 200 * time.Millisecond
	DefaultCooldownMin   = 100 * time.Millisecond
	DefaultCooldownMax   = 10 * time.Minute
	DefaultCooldown      = 5000 * time.Millisecond
	DefaultJitterFrac    = 0.30
	DefaultLogRate       = 20
	DefaultInputRate     = 25
	DefaultTickWarnAfter = 2 * time.Minute
)

// ParseDurationField parses one duration-string field such as cooldown.min
// or scan.settle_delay; field names the offender in errors. An absent field
// parses to zero so callers can tell "omitted" from "explicit 0s".
func ParseDurationField(field, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: %q is not a duration: %w", field, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: negative durations are not allowed", field)
	}
	return d, nil
}

// ParseDurationOrDefault substitutes def when the field is omitted or zero.
// Fields where "0s" means "disabled" must not go through here.
func ParseDurationOrDefault(field, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(field, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}

// Validate checks cross-field consistency beyond strict decoding.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Bots.Root) == "" {
		return fmt.Errorf("bots.root: must not be empty")
	}
	if s := strings.TrimSpace(c.Scan.Schedule); s != "" {
		if _, err := cron.ParseStandard(s); err != nil {
			return fmt.Errorf("scan.schedule: invalid cron spec %q: %w", s, err)
		}
	}
	if _, err := ParseDurationField("scan.settle_delay", c.Scan.SettleDelay); err != nil {
		return err
	}
	min, err := ParseDurationOrDefault("cooldown.min", c.Cooldown.Min, DefaultCooldownMin)
	if err != nil {
		return err
	}
	max, err := ParseDurationOrDefault("cooldown.max", c.Cooldown.Max, DefaultCooldownMax)
	if err != nil {
		return err
	}
	if max < min {
		return fmt.Errorf("cooldown.max: must be >= cooldown.min")
	}
	if _, err := ParseDurationField("sandbox.tick_warn_after", c.Sandbox.TickWarnAfter); err != nil {
		return err
	}
	if f := c.Sandbox.JitterFrac; f < 0 || f >= 1 {
		return fmt.Errorf("sandbox.jitter_frac: must be in [0,1)")
	}
	return nil
}
