package app

import (
	"testing"
	"time"

	"github.com/antiwinter/finger/internal/config"
)

func TestMapSchedConfigDefaults(t *testing.T) {
	t.Parallel()
	got, err := mapSchedConfig(&config.Config{})
	if err != nil {
		t.Fatalf("mapSchedConfig: %v", err)
	}
	if got.DefaultCooldown != 5000*time.Millisecond {
		t.Fatalf("DefaultCooldown = %v, want 5s", got.DefaultCooldown)
	}
	if got.MinCooldown != config.DefaultCooldownMin || got.MaxCooldown != config.DefaultCooldownMax {
		t.Fatalf("cooldown bounds = %v..%v", got.MinCooldown, got.MaxCooldown)
	}
	if got.SettleDelay != config.DefaultSettleDelay {
		t.Fatalf("SettleDelay = %v, want default", got.SettleDelay)
	}
	if got.TickWarnAfter != config.DefaultTickWarnAfter {
		t.Fatalf("TickWarnAfter = %v, want default", got.TickWarnAfter)
	}
}

func TestMapSchedConfigExplicitZeroDisables(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Scan.SettleDelay = "0s"
	cfg.Sandbox.TickWarnAfter = "0s"

	got, err := mapSchedConfig(cfg)
	if err != nil {
		t.Fatalf("mapSchedConfig: %v", err)
	}
	// "0s" is a deliberate off switch, not an omission; the defaults must
	// not sneak back in.
	if got.SettleDelay != 0 {
		t.Fatalf("SettleDelay = %v, want 0", got.SettleDelay)
	}
	if got.TickWarnAfter != 0 {
		t.Fatalf("TickWarnAfter = %v, want 0", got.TickWarnAfter)
	}
}

func TestMapSchedConfigRejectsBadDuration(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{}
	cfg.Cooldown.Default = "soon"
	if _, err := mapSchedConfig(cfg); err == nil {
		t.Fatal("bad cooldown.default accepted")
	}
}
