// Package script compiles bot folders into descriptors. Bots are Go source
// folders evaluated at runtime in per-load yaegi interpreters; one loaded
// script is one isolated execution environment.
package script

import (
	"fmt"
	"reflect"
	"runtime/debug"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"

	"github.com/antiwinter/finger/api"
	"github.com/antiwinter/finger/pkg/logx"
)

// apiImportPath is the import path scripts use for the host contract. The
// symbols are exported into the interpreter as binary types, so descriptor
// values returned by scripts convert directly to api.Descriptor.
const apiImportPath = "github.com/antiwinter/finger/api"

// entryFunc is the function the entry unit must declare: in package bot,
// func Bot() api.Descriptor.
const entryFunc = "bot.Bot"

// Meta is the side-effect-free discovery view of a bot: metadata plus
// callback presence, with the evaluation environment already discarded.
type Meta struct {
	Name          string
	Dir           string
	WindowPattern string
	Description   string
	HasStart      bool
	HasStop       bool
	HasReset      bool
	HasStatus     bool
}

// Script is one loaded execution environment: the descriptor plus the
// interpreter that owns the script's retained state. It lives exactly as
// long as its instance.
type Script struct {
	Name       string
	Dir        string
	Descriptor api.Descriptor

	// interp anchors the script's environment; the descriptor's callbacks
	// close over state inside it.
	interp *interp.Interpreter
}

type Loader struct {
	log logx.Logger
}

func NewLoader(log logx.Logger) *Loader {
	return &Loader{log: log}
}

// Discover loads every bot under root for metadata only. Start/Tick/Reset
// are never invoked; each bot's environment is discarded after reading the
// descriptor. Per-bot failures are isolated and returned keyed by name.
func (l *Loader) Discover(root string) ([]Meta, map[string]error) {
	dirs, err := FindBotDirs(root)
	if err != nil {
		return nil, map[string]error{"": fmt.Errorf("scan bots root %s: %w", root, err)}
	}

	metas := make([]Meta, 0, len(dirs))
	failures := map[string]error{}
	for _, dir := range dirs {
		name := DeriveName(dir, root)
		desc, _, err := l.eval(dir, name, nil)
		if err != nil {
			failures[name] = err
			continue
		}
		metas = append(metas, Meta{
			Name:          name,
			Dir:           dir,
			WindowPattern: desc.WindowPattern,
			Description:   desc.Description,
			HasStart:      desc.Start != nil,
			HasStop:       desc.Stop != nil,
			HasReset:      desc.Reset != nil,
			HasStatus:     desc.GetStatus != nil,
		})
	}
	return metas, failures
}

// Load builds a fresh execution environment for one instance, binding f as
// the script's api.F. It does not invoke any callback.
func (l *Loader) Load(dir, name string, f api.Funcs) (*Script, error) {
	desc, ip, err := l.eval(dir, name, f)
	if err != nil {
		return nil, err
	}
	return &Script{Name: name, Dir: dir, Descriptor: desc, interp: ip}, nil
}

func (l *Loader) eval(dir, name string, f api.Funcs) (desc api.Descriptor, ip *interp.Interpreter, err error) {
	if f == nil {
		f = nopFuncs{}
	}

	// Top-level evaluation of a hostile-enough script can panic inside the
	// interpreter; keep that contained to a LoadError.
	defer func() {
		if r := recover(); r != nil {
			l.log.Error("script evaluation panicked",
				logx.String("bot", name),
				logx.Any("panic", r),
				logx.Stack(string(debug.Stack())),
			)
			err = &LoadError{Bot: name, Reason: "evaluation panicked", Err: fmt.Errorf("%v", r)}
		}
	}()

	ip = interp.New(interp.Options{
		GoPath:               loaderGoPath,
		SourcecodeFilesystem: newScopedFS(dir),
	})
	if uerr := ip.Use(stdlib.Symbols); uerr != nil {
		return desc, nil, &LoadError{Bot: name, Reason: "interpreter setup", Err: uerr}
	}
	if uerr := ip.Use(exports(f)); uerr != nil {
		return desc, nil, &LoadError{Bot: name, Reason: "interpreter setup", Err: uerr}
	}

	if _, eerr := ip.EvalPath(EntryUnit); eerr != nil {
		return desc, nil, &LoadError{Bot: name, Reason: "entry unit " + EntryUnit, Err: eerr}
	}

	v, eerr := ip.Eval(entryFunc)
	if eerr != nil {
		return desc, nil, &LoadError{
			Bot:    name,
			Reason: "entry unit must declare func Bot() api.Descriptor in package bot",
			Err:    eerr,
		}
	}

	fn, ok := v.Interface().(func() api.Descriptor)
	if !ok {
		// Interpreted functions may surface as plain reflect funcs; fall
		// back to a checked reflect call.
		fn, ok = reflectBotFunc(v)
	}
	if !ok {
		return desc, nil, &LoadError{Bot: name, Reason: "Bot() has the wrong signature"}
	}

	desc = fn()

	if desc.WindowPattern == "" {
		return desc, nil, &LoadError{Bot: name, Reason: "descriptor missing window_pattern"}
	}
	if desc.Tick == nil {
		return desc, nil, &LoadError{Bot: name, Reason: "descriptor missing tick"}
	}
	return desc, ip, nil
}

func reflectBotFunc(v reflect.Value) (func() api.Descriptor, bool) {
	if v.Kind() != reflect.Func {
		return nil, false
	}
	t := v.Type()
	if t.NumIn() != 0 || t.NumOut() != 1 {
		return nil, false
	}
	if t.Out(0) != reflect.TypeOf(api.Descriptor{}) {
		return nil, false
	}
	return func() api.Descriptor {
		out := v.Call(nil)
		return out[0].Interface().(api.Descriptor)
	}, true
}

// exports builds the symbol table for the api package with f bound as the
// per-instance F. Discovery binds a no-op.
func exports(f api.Funcs) interp.Exports {
	return interp.Exports{
		apiImportPath + "/api": map[string]reflect.Value{
			"Descriptor": reflect.ValueOf((*api.Descriptor)(nil)),
			"Window":     reflect.ValueOf((*api.Window)(nil)),
			"Funcs":      reflect.ValueOf((*api.Funcs)(nil)),
			"F":          reflect.ValueOf(f),
		},
	}
}

type nopFuncs struct{}

func (nopFuncs) Sleep(float64) {}
func (nopFuncs) Log(string)    {}
