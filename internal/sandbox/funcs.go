package sandbox

import (
	"math/rand"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/antiwinter/finger/pkg/logx"
)

// minSleep keeps jittered sleeps from rounding down to a busy loop.
const minSleep = 10 * time.Millisecond

// Funcs is the per-instance implementation of api.Funcs, bound into the
// script interpreter as api.F.
type Funcs struct {
	log        logx.Logger
	jitterFrac float64

	// limiter throttles F.log so a runaway script loop cannot flood the
	// sinks; dropped counts are reported once the limiter reopens.
	limiter *rate.Limiter
	dropped atomic.Uint64
}

// NewFuncs builds the utility capability for one instance. log should
// already carry the bot/instance identity fields.
func NewFuncs(log logx.Logger, jitterFrac float64, logRatePerSec int) *Funcs {
	if jitterFrac < 0 || jitterFrac >= 1 {
		jitterFrac = 0.30
	}
	if logRatePerSec <= 0 {
		logRatePerSec = 20
	}
	return &Funcs{
		log:        log,
		jitterFrac: jitterFrac,
		limiter:    rate.NewLimiter(rate.Limit(logRatePerSec), logRatePerSec*2),
	}
}

// Sleep suspends the calling instance's goroutine only. The requested
// duration gets +/- jitterFrac random jitter so repeated timings don't look
// machine-regular to the target application.
func (f *Funcs) Sleep(seconds float64) {
	if seconds <= 0 {
		return
	}
	j := seconds * f.jitterFrac
	actual := seconds
	if j > 0 {
		actual += (rand.Float64()*2 - 1) * j
	}
	d := time.Duration(actual * float64(time.Second))
	if d < minSleep {
		d = minSleep
	}
	time.Sleep(d)
}

// Log routes a script message to the host log sink, identity-prefixed and
// rate-limited per instance.
func (f *Funcs) Log(msg string) {
	if !f.limiter.Allow() {
		f.dropped.Add(1)
		return
	}
	if n := f.dropped.Swap(0); n > 0 {
		f.log.Warn("script log lines dropped (rate limit)", logx.Uint64("dropped", n))
	}
	f.log.Info(msg)
}
