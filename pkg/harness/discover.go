package harness

import (
	"fmt"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Program is one runnable test program.
type Program struct {
	// Name identifies the test in the report; it is the path as given.
	Name string
	// Command is the argv to execute.
	Command []string
}

// Discover expands files and directories into runnable programs.
// Directories are walked recursively. A file runs through the interpreter
// registered for its extension (e.g. ".js" -> "node"), otherwise directly
// when it is executable; anything else is skipped.
func Discover(paths []string, interpreters map[string]string, logger *log.Logger) ([]Program, error) {
	var programs []Program
	seen := make(map[string]bool)

	add := func(path string, info fs.FileInfo) error {
		if seen[path] {
			return nil
		}
		prog, ok, err := programFor(path, info, interpreters)
		if err != nil {
			return err
		}
		if !ok {
			if logger != nil {
				logger.Printf("harness: skipping %s: not executable and no interpreter for %q", path, filepath.Ext(path))
			}
			return nil
		}
		seen[path] = true
		programs = append(programs, prog)
		return nil
	}

	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", p, err)
		}
		if !info.IsDir() {
			if err := add(p, info); err != nil {
				return nil, err
			}
			continue
		}

		var found []string
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if path != p && strings.HasPrefix(d.Name(), ".") {
					return filepath.SkipDir
				}
				return nil
			}
			found = append(found, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", p, err)
		}
		sort.Strings(found)
		for _, path := range found {
			info, err := os.Stat(path)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", path, err)
			}
			if !info.Mode().IsRegular() {
				continue
			}
			if err := add(path, info); err != nil {
				return nil, err
			}
		}
	}

	return programs, nil
}

func programFor(path string, info fs.FileInfo, interpreters map[string]string) (Program, bool, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Program{}, false, fmt.Errorf("resolve %s: %w", path, err)
	}
	if interp := strings.Fields(interpreters[filepath.Ext(path)]); len(interp) > 0 {
		return Program{Name: path, Command: append(interp, abs)}, true, nil
	}
	if isExecutable(info) {
		return Program{Name: path, Command: []string{abs}}, true, nil
	}
	return Program{}, false, nil
}
