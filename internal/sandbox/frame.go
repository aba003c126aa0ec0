// Package sandbox is the only channel through which a script affects the
// outside world. It injects exactly two capabilities into each script
// environment: F (sleep/log) and win (the window proxy), and enforces the
// handle-validity rule on the latter.
package sandbox

import "sync/atomic"

// Frame tracks whether the owning instance is currently inside a
// host-invoked callback (Tick/Start/Stop/Reset). Window capability calls
// are valid only while the frame is active; a call from code that outlives
// the frame (a goroutine the script left behind) is rejected.
type Frame struct {
	active atomic.Bool
}

func (f *Frame) Enter() { f.active.Store(true) }
func (f *Frame) Exit()  { f.active.Store(false) }

func (f *Frame) Active() bool { return f.active.Load() }
