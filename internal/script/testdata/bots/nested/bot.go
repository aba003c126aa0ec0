package bot

import (
	"helper"

	"github.com/antiwinter/finger/api"
)

func Bot() api.Descriptor {
	return api.Descriptor{
		WindowPattern: helper.Pattern(),
		Description:   "uses a package from its own folder",
		Tick:          func() int { return helper.Cooldown },
	}
}
