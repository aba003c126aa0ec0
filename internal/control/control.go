// Package control defines the host-side management surface. Adapters
// (Telegram, future CLI/API fronts) speak to the engine only through
// Controller; they never touch script environments or window handles.
package control

import "time"

// BotStatus describes one discovered bot and its live instances.
type BotStatus struct {
	Name          string
	WindowPattern string
	Description   string
	Enabled       bool

	// LoadErr is the discovery-time failure, empty for a healthy bot.
	LoadErr string

	Instances []InstanceStatus
}

// InstanceStatus is a point-in-time view of one (bot, window) binding.
type InstanceStatus struct {
	ID          string
	Bot         string
	WindowID    uint64
	WindowTitle string
	State       string
	Status      string
	LastErr     string
	StartedAt   time.Time
}

// Controller is implemented by the instance manager.
type Controller interface {
	// Bots lists every discovered bot with its instances.
	Bots() []BotStatus

	// Enable marks a bot eligible for window binding.
	Enable(name string) error

	// Disable destroys the bot's instances and stops further binding.
	Disable(name string) error

	// ResetInstance invokes the bot's reset callback on a live instance,
	// preserving its execution environment.
	ResetInstance(id string) error

	// InstanceStatus reports one instance by id.
	InstanceStatus(id string) (InstanceStatus, error)

	// Snapshot lists every live instance.
	Snapshot() []InstanceStatus
}
