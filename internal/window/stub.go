package window

import (
	"fmt"
	"sync"

	"github.com/antiwinter/finger/pkg/logx"
)

// StubBackend is an in-memory Backend for development runs and tests. Its
// window set is mutable so tests can simulate windows opening and closing
// between re-scans.
type StubBackend struct {
	mu   sync.Mutex
	wins []Info
	log  logx.Logger
}

func NewStub(log logx.Logger, wins ...Info) *StubBackend {
	return &StubBackend{wins: append([]Info(nil), wins...), log: log}
}

// SetWindows replaces the enumerated window set.
func (s *StubBackend) SetWindows(wins ...Info) {
	s.mu.Lock()
	s.wins = append([]Info(nil), wins...)
	s.mu.Unlock()
}

func (s *StubBackend) Enumerate() ([]Info, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Info(nil), s.wins...), nil
}

func (s *StubBackend) Open(id ID) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, w := range s.wins {
		if w.ID == id {
			return &stubWindow{id: id, title: w.Title, log: s.log}, nil
		}
	}
	return nil, fmt.Errorf("stub: no window %d", id)
}

type stubWindow struct {
	id    ID
	title string
	log   logx.Logger

	mu      sync.Mutex
	actions []string
}

// Actions returns the recorded actuation log (test hook).
func (w *stubWindow) Actions() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.actions...)
}

func (w *stubWindow) record(s string) {
	w.mu.Lock()
	w.actions = append(w.actions, s)
	w.mu.Unlock()
	if !w.log.IsZero() {
		w.log.Debug("stub window op", logx.Uint64("win", uint64(w.id)), logx.String("op", s))
	}
}

func (w *stubWindow) ID() ID        { return w.id }
func (w *stubWindow) Title() string { return w.title }

func (w *stubWindow) Activate()   { w.record("activate") }
func (w *stubWindow) Deactivate() { w.record("deactivate") }

func (w *stubWindow) ClickRel(x, y float64) {
	w.record(fmt.Sprintf("click(%.2f,%.2f)", x, y))
}

func (w *stubWindow) Tap(key string) { w.record("tap(" + key + ")") }

func (w *stubWindow) TypeText(text string) { w.record("type(" + text + ")") }

func (w *stubWindow) Capture(Rect) (*Capture, bool) { return nil, false }
