// Package api defines the contract between the finger host and bot scripts.
//
// Bot scripts are Go source folders evaluated at runtime. The entry unit
// (bot.go, package bot) declares a function Bot() api.Descriptor. The host
// exports this package into each script interpreter, together with a
// per-instance value F of type Funcs.
//
// Retained script state lives in variables the returned callbacks close
// over; each instance gets its own interpreter, so state is never shared
// between two instances of the same bot.
package api

// Descriptor declares a bot's metadata and callback set.
//
// WindowPattern and Tick are required; a descriptor missing either is
// invalid and is never activated. All other callbacks are optional and may
// be left nil.
type Descriptor struct {
	// WindowPattern is a '|'-separated alternation of regular expressions.
	// A window title matches the bot if any alternative matches.
	WindowPattern string

	// Description is a short human-readable summary shown in status output.
	Description string

	// Tick is the bot's main callback, invoked once per schedule cycle.
	// It returns the cooldown in milliseconds until the next tick; a zero
	// or negative return asks the host to apply its default cooldown.
	Tick func() int

	// Start fires once, synchronously, before the first scheduled tick.
	// The handle it receives stays valid for the life of the instance but
	// only inside host-invoked callback frames.
	Start func(Window)

	// Stop fires once when the bot is disabled, its window disappears, or
	// the process shuts down.
	Stop func()

	// Reset fires on an explicit control command. The environment and the
	// window binding are preserved; Start is not re-invoked.
	Reset func()

	// GetStatus returns a short status string for display.
	GetStatus func() string
}

// Window is the per-instance capability proxy onto the matched OS window.
//
// Its operations are valid only while the owning instance's Tick, Start,
// Stop, or Reset call is the active frame the host invoked. A call from
// code that outlives that frame is rejected: logged as a warning, with no
// OS action taken.
type Window interface {
	// Click presses the primary button at a position relative to the
	// window bounds; both ratios are in [0,1].
	Click(xRatio, yRatio float64)

	// Tap presses and releases a named key ("enter", "f5", "a", ...).
	Tap(key string)

	// Type sends a text string as individual key events.
	Type(text string)

	// DecodeV2 reads the hint-v2 overlay strip from the window and returns
	// the decoded token. ok is false when no strip is present.
	DecodeV2() (s string, ok bool)
}

// Funcs is the host utility surface injected into every script as api.F.
type Funcs interface {
	// Sleep suspends the calling instance only, for roughly the given
	// number of seconds (a small random jitter is added). Other instances
	// keep their own schedules.
	Sleep(seconds float64)

	// Log writes a line to the host log, auto-prefixed with the owning
	// bot and instance identity.
	Log(msg string)
}

// F is the injected Funcs value. The host rebinds it per interpreter; the
// declaration here only fixes the symbol's type for compiled code (example
// bots in this repository compile against it).
var F Funcs = nopFuncs{}

type nopFuncs struct{}

func (nopFuncs) Sleep(float64) {}
func (nopFuncs) Log(string)    {}
