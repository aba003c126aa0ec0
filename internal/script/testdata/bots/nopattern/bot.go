package bot

import "github.com/antiwinter/finger/api"

func Bot() api.Descriptor {
	return api.Descriptor{
		Tick: func() int { return 0 },
	}
}
