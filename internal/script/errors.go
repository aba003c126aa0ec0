package script

import "fmt"

// LoadError reports a bot folder that could not be turned into a usable
// descriptor: missing entry unit, failed top-level evaluation, or a
// descriptor missing the required fields. It disables only the offending
// bot; siblings in the same discovery pass load and run unaffected.
type LoadError struct {
	Bot    string
	Reason string
	Err    error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("load bot %s: %s: %v", e.Bot, e.Reason, e.Err)
	}
	return fmt.Sprintf("load bot %s: %s", e.Bot, e.Reason)
}

func (e *LoadError) Unwrap() error { return e.Err }
