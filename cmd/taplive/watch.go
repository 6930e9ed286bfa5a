package main

import (
	"context"
	"io/fs"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// initWatcher creates a watcher over paths. Directories are added
// recursively, skipping hidden ones; files are watched through their
// directory. Returns nil if nothing could be watched.
func initWatcher(paths []string, logger *log.Logger) *fsnotify.Watcher {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		logger.Printf("fsnotify: failed to create watcher: %v (running once)", err)
		return nil
	}

	added := 0
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			logger.Printf("fsnotify: skipping %s: %v", p, err)
			continue
		}
		if !info.IsDir() {
			p = filepath.Dir(p)
		}
		_ = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil || !d.IsDir() {
				return nil //nolint:nilerr // unreadable entries are not watched
			}
			if path != p && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			if err := watcher.Add(path); err != nil {
				logger.Printf("fsnotify: failed to watch %s: %v", path, err)
				return nil
			}
			added++
			return nil
		})
	}

	if added == 0 {
		_ = watcher.Close() // Best effort close
		logger.Printf("fsnotify: nothing to watch (running once)")
		return nil
	}
	return watcher
}

// waitForChange blocks until a change settles (debounced) and reports
// true, or returns false when ctx is done or the watcher fails.
func waitForChange(ctx context.Context, watcher *fsnotify.Watcher, logger *log.Logger) bool {
	debounceTimer := newDebounceTimer()
	defer debounceTimer.Stop()

	for {
		select {
		case <-ctx.Done():
			return false

		case event, ok := <-watcher.Events:
			if !ok {
				return false
			}
			if event.Op == fsnotify.Chmod {
				continue
			}
			resetDebounceTimer(debounceTimer)

		case <-debounceTimer.C:
			return true

		case err, ok := <-watcher.Errors:
			if !ok {
				return false
			}
			logger.Printf("fsnotify: watcher error: %v", err)
			return false
		}
	}
}

// newDebounceTimer creates a new stopped timer for debouncing file system events.
func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

// resetDebounceTimer restarts the debounce window.
func resetDebounceTimer(timer *time.Timer) {
	const debounceDuration = 100 * time.Millisecond
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(debounceDuration)
}
