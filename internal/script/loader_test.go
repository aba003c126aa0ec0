package script

import (
	"sync"
	"testing"

	"github.com/antiwinter/finger/pkg/logx"
)

const fixtureRoot = "testdata/bots"

type recorderFuncs struct {
	mu     sync.Mutex
	slept  []float64
	logged []string
}

func (r *recorderFuncs) Sleep(seconds float64) {
	r.mu.Lock()
	r.slept = append(r.slept, seconds)
	r.mu.Unlock()
}

func (r *recorderFuncs) Log(msg string) {
	r.mu.Lock()
	r.logged = append(r.logged, msg)
	r.mu.Unlock()
}

func TestDiscoverIsolatesFailures(t *testing.T) {
	t.Parallel()
	l := NewLoader(logx.Nop())

	metas, failures := l.Discover(fixtureRoot)

	got := map[string]Meta{}
	for _, m := range metas {
		got[m.Name] = m
	}

	for _, name := range []string{"valid", "nested", "nested/inner"} {
		if _, ok := got[name]; !ok {
			t.Errorf("missing bot %q in %v", name, got)
		}
	}
	if m := got["valid"]; m.WindowPattern != "Foo|foo" || !m.HasStatus || m.HasStart {
		t.Errorf("valid meta = %+v", m)
	}
	if m := got["nested"]; m.WindowPattern != "Nested" {
		t.Errorf("nested meta = %+v; intra-bot import not resolved", m)
	}

	for _, name := range []string{"broken", "nopattern", "notick", "escape"} {
		if _, ok := failures[name]; !ok {
			t.Errorf("expected failure for bot %q, got failures %v", name, failures)
		}
		if _, ok := got[name]; ok {
			t.Errorf("failed bot %q also listed as loaded", name)
		}
	}

	// Dot-directories and node_modules are never bots.
	for name := range got {
		if name == ".hidden" || name == "node_modules/junk" {
			t.Errorf("discovered excluded directory %q", name)
		}
	}
	for name := range failures {
		if name == ".hidden" || name == "node_modules/junk" {
			t.Errorf("excluded directory %q surfaced as failure", name)
		}
	}
}

func TestLoadBindsFuncs(t *testing.T) {
	t.Parallel()
	l := NewLoader(logx.Nop())
	rec := &recorderFuncs{}

	sc, err := l.Load(fixtureRoot+"/valid", "valid", rec)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cd := sc.Descriptor.Tick(); cd != 2000 {
		t.Fatalf("Tick = %d, want 2000", cd)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.logged) != 1 || rec.logged[0] != "tick 1" {
		t.Fatalf("logged = %v, want [tick 1]", rec.logged)
	}
}

func TestLoadEnvironmentsAreIsolated(t *testing.T) {
	t.Parallel()
	l := NewLoader(logx.Nop())

	a, err := l.Load(fixtureRoot+"/valid", "valid", &recorderFuncs{})
	if err != nil {
		t.Fatalf("Load a: %v", err)
	}
	b, err := l.Load(fixtureRoot+"/valid", "valid", &recorderFuncs{})
	if err != nil {
		t.Fatalf("Load b: %v", err)
	}

	a.Descriptor.Tick()
	a.Descriptor.Tick()
	b.Descriptor.Tick()

	if got := a.Descriptor.GetStatus(); got != "count=2" {
		t.Fatalf("a status = %q, want count=2", got)
	}
	if got := b.Descriptor.GetStatus(); got != "count=1" {
		t.Fatalf("b status = %q, want count=1; environments shared state", got)
	}
}

func TestLoadIntraBotImport(t *testing.T) {
	t.Parallel()
	l := NewLoader(logx.Nop())

	sc, err := l.Load(fixtureRoot+"/nested", "nested", nil)
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}
	if sc.Descriptor.WindowPattern != "Nested" {
		t.Fatalf("WindowPattern = %q, want Nested", sc.Descriptor.WindowPattern)
	}
	if cd := sc.Descriptor.Tick(); cd != 1500 {
		t.Fatalf("Tick = %d, want 1500", cd)
	}
}

func TestLoadCannotReachSiblingPackages(t *testing.T) {
	t.Parallel()
	l := NewLoader(logx.Nop())

	// escape imports "helper", which only exists inside the nested bot's
	// folder. The loader must not resolve it across bot boundaries.
	if _, err := l.Load(fixtureRoot+"/escape", "escape", nil); err == nil {
		t.Fatal("expected load failure for cross-bot import")
	}
}

func TestLoadRejectsInvalidDescriptors(t *testing.T) {
	t.Parallel()
	l := NewLoader(logx.Nop())

	tests := []struct {
		name string
		dir  string
	}{
		{name: "missing pattern", dir: fixtureRoot + "/nopattern"},
		{name: "missing tick", dir: fixtureRoot + "/notick"},
		{name: "syntax error", dir: fixtureRoot + "/broken"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Load(tt.dir, tt.name, nil)
			if err == nil {
				t.Fatal("expected error")
			}
			if _, ok := err.(*LoadError); !ok {
				t.Fatalf("expected *LoadError, got %T: %v", err, err)
			}
		})
	}
}

func TestDeriveName(t *testing.T) {
	t.Parallel()
	if got := DeriveName("testdata/bots/nested/inner", "testdata/bots"); got != "nested/inner" {
		t.Fatalf("DeriveName = %q, want nested/inner", got)
	}
}
