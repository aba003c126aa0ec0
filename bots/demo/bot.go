// A demo bot: binds to Notepad-like windows and keeps them warm with a
// periodic click. Useful as a template and for exercising the engine
// against the stub backend.
package bot

import (
	"fmt"

	"github.com/antiwinter/finger/api"
)

func Bot() api.Descriptor {
	var win api.Window
	ticks := 0

	return api.Descriptor{
		WindowPattern: "Notepad|Untitled",
		Description:   "demo: clicks the window center every tick",

		Start: func(w api.Window) {
			win = w
			api.F.Log("demo bot attached")
		},

		Tick: func() int {
			ticks++
			if win != nil {
				win.Click(0.5, 0.5)
			}
			api.F.Sleep(0.1)
			return 2000
		},

		Stop: func() {
			api.F.Log(fmt.Sprintf("demo bot detaching after %d ticks", ticks))
		},

		Reset: func() {
			ticks = 0
		},

		GetStatus: func() string {
			return fmt.Sprintf("%d ticks", ticks)
		},
	}
}
