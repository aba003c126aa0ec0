package bot

import (
	"fmt"

	"github.com/antiwinter/finger/api"
)

func Bot() api.Descriptor {
	count := 0
	return api.Descriptor{
		WindowPattern: "Foo|foo",
		Description:   "valid fixture",
		Tick: func() int {
			count++
			api.F.Log(fmt.Sprintf("tick %d", count))
			return 2000
		},
		GetStatus: func() string {
			return fmt.Sprintf("count=%d", count)
		},
	}
}
