package bot

import "github.com/antiwinter/finger/api"

func Bot() api.Descriptor {
	return api.Descriptor{
		WindowPattern: "Foo",
		Description:   "tick always panics",
		Tick: func() int {
			panic("unhandled state")
		},
	}
}
