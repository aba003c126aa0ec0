package sandbox

import (
	"context"

	"github.com/antiwinter/finger/internal/eventbus"
	"github.com/antiwinter/finger/internal/hint"
	"github.com/antiwinter/finger/internal/window"
	"github.com/antiwinter/finger/pkg/logx"
)

// hintRect is the window region scanned for the hint-v2 overlay strip.
var hintRect = window.Rect{Left: 0, Top: 0, Width: 150, Height: 80}

// WinProxy implements api.Window for one instance. Every operation checks
// the callback frame first: a call arriving after its originating callback
// returned is logged as handle misuse and performs no OS action.
type WinProxy struct {
	instance string
	handle   window.Handle
	frame    *Frame
	lock     *WindowLock
	ctx      context.Context
	log      logx.Logger
	bus      eventbus.Bus
}

func NewWinProxy(
	ctx context.Context,
	instance string,
	handle window.Handle,
	frame *Frame,
	lock *WindowLock,
	log logx.Logger,
	bus eventbus.Bus,
) *WinProxy {
	return &WinProxy{
		instance: instance,
		handle:   handle,
		frame:    frame,
		lock:     lock,
		ctx:      ctx,
		log:      log,
		bus:      bus,
	}
}

// guard enforces the handle-validity rule. Never panics out to the caller.
func (w *WinProxy) guard(op string) bool {
	if w.frame.Active() {
		return true
	}
	w.log.Warn("window capability used outside a live callback; ignored",
		logx.String("op", op))
	if w.bus != nil {
		w.bus.Publish(eventbus.Event{
			Type: eventbus.HandleMisuse,
			Data: map[string]any{"instance": w.instance, "op": op},
		})
	}
	return false
}

func (w *WinProxy) Click(xRatio, yRatio float64) {
	if !w.guard("click") {
		return
	}
	xRatio = clamp01(xRatio)
	yRatio = clamp01(yRatio)
	w.lock.do(w.ctx, func() { w.handle.ClickRel(xRatio, yRatio) })
}

func (w *WinProxy) Tap(key string) {
	if !w.guard("tap") {
		return
	}
	w.lock.do(w.ctx, func() { w.handle.Tap(key) })
}

func (w *WinProxy) Type(text string) {
	if !w.guard("type") {
		return
	}
	w.lock.do(w.ctx, func() { w.handle.TypeText(text) })
}

func (w *WinProxy) DecodeV2() (string, bool) {
	if !w.guard("decodev2") {
		return "", false
	}
	shot, ok := w.handle.Capture(hintRect)
	if !ok {
		return "", false
	}
	return hint.DecodeV2(shot)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
