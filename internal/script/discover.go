package script

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// EntryUnit is the fixed-name file a folder must contain to be a bot.
const EntryUnit = "bot.go"

// FindBotDirs walks root and returns every directory containing the entry
// unit, sorted. Dot-directories and node_modules are skipped. A bot
// folder's subfolders are still walked, so nested bots are independently
// discovered.
func FindBotDirs(root string) ([]string, error) {
	var dirs []string
	err := filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		name := d.Name()
		if p != root && (strings.HasPrefix(name, ".") || name == "node_modules") {
			return filepath.SkipDir
		}
		if _, err := os.Stat(filepath.Join(p, EntryUnit)); err == nil {
			dirs = append(dirs, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(dirs)
	return dirs, nil
}

// DeriveName converts a bot directory into its canonical name: the path
// relative to the bots root, '/'-joined.
func DeriveName(dir, root string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return filepath.Base(dir)
	}
	return filepath.ToSlash(rel)
}
