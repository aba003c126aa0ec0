package bot

import "github.com/antiwinter/finger/api"

func Bot() api.Descriptor {
	ticks := 0
	return api.Descriptor{
		WindowPattern: "Foo",
		Description:   "fails on the first tick, then recovers",
		Tick: func() int {
			ticks++
			if ticks == 1 {
				panic("warming up")
			}
			return 20
		},
		GetStatus: func() string {
			if ticks > 1 {
				return "recovered"
			}
			return "starting"
		},
	}
}
