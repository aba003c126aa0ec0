package bot

import "github.com/antiwinter/finger/api"

func Bot() api.Descriptor {
	return api.Descriptor{
		WindowPattern: "Foo",
		Description:   "start always panics",
		Start: func(api.Window) {
			panic("cannot attach")
		},
		Tick: func() int { return 0 },
	}
}
