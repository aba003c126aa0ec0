package instance

import (
	"fmt"
	"runtime/debug"
)

// RuntimeError wraps a panic raised inside a script callback. The panic is
// contained to the owning instance; the host and sibling instances keep
// running.
type RuntimeError struct {
	Instance string
	Callback string
	Panic    any
	Stack    []byte
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("instance %s: %s panicked: %v", e.Instance, e.Callback, e.Panic)
}

// safeCall runs one script callback with panic containment.
func safeCall(id, callback string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &RuntimeError{
				Instance: id,
				Callback: callback,
				Panic:    r,
				Stack:    debug.Stack(),
			}
		}
	}()
	fn()
	return nil
}
