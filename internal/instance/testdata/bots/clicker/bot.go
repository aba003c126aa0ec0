package bot

import (
	"fmt"

	"github.com/antiwinter/finger/api"
)

func Bot() api.Descriptor {
	var win api.Window
	count := 0

	return api.Descriptor{
		WindowPattern: "Foo|foo",
		Description:   "clicker fixture",

		Start: func(w api.Window) {
			win = w
			win.Click(0.5, 0.5)
		},

		Tick: func() int {
			count++
			return 20
		},

		Stop: func() {
			if win != nil {
				win.Tap("stop")
			}
		},

		Reset: func() {
			count = 0
		},

		GetStatus: func() string {
			return fmt.Sprintf("count=%d", count)
		},
	}
}
