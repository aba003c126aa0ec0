package bot

import (
	"helper"

	"github.com/antiwinter/finger/api"
)

func Bot() api.Descriptor {
	return api.Descriptor{
		WindowPattern: helper.Pattern(),
		Tick:          func() int { return 0 },
	}
}
