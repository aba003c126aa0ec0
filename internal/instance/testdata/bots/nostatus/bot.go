package bot

import "github.com/antiwinter/finger/api"

func Bot() api.Descriptor {
	return api.Descriptor{
		WindowPattern: "FooBar",
		Tick:          func() int { return 1 },
	}
}
