package script

import (
	"io/fs"
	"os"
	"path"
	"strings"
)

// loaderGoPath is the synthetic GOPATH handed to each bot interpreter.
// Import paths inside a bot resolve under <gopath>/src/<import path>; the
// scoped filesystem below maps that prefix back onto the bot's own folder,
// so "lib/colors" resolves to <bot>/lib/colors and nothing outside the
// bot's subtree is reachable.
const loaderGoPath = "go"

// scopedFS confines a bot interpreter to the bot's folder subtree. Sibling
// bots and the rest of the host filesystem do not exist from its point of
// view.
type scopedFS struct {
	inner fs.FS
}

func newScopedFS(dir string) fs.FS {
	return scopedFS{inner: os.DirFS(dir)}
}

func (s scopedFS) Open(name string) (fs.File, error) {
	name = path.Clean(name)
	switch name {
	case loaderGoPath, loaderGoPath + "/src":
		name = "."
	default:
		if p, ok := strings.CutPrefix(name, loaderGoPath+"/src/"); ok {
			name = p
		}
	}
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	return s.inner.Open(name)
}
