// Package watcher expands input patterns and reports writes to the matched
// files so a run can be repeated.
package watcher

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// Event represents a file change detected by the watcher.
type Event struct {
	Path string
	Op   fsnotify.Op
}

// Watcher monitors input files for changes using OS-level notifications.
type Watcher struct {
	fsw    *fsnotify.Watcher
	log    zerolog.Logger
	Events chan Event
	paths  []string
}

// New creates a Watcher for the given input names, which Expand has
// already resolved.
func New(paths []string, log zerolog.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	w := &Watcher{
		fsw:    fsw,
		log:    log,
		Events: make(chan Event, 256),
	}

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		if err := fsw.Add(abs); err != nil {
			w.log.Warn().Err(err).Str("file", abs).Msg("Cannot watch file")
			continue
		}
		w.paths = append(w.paths, abs)
	}

	return w, nil
}

// Start begins listening for file events. It blocks until the context is
// cancelled.
func (w *Watcher) Start(ctx context.Context) {
	defer w.fsw.Close()
	defer close(w.Events)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
				!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
				continue
			}
			select {
			case w.Events <- Event{Path: ev.Name, Op: ev.Op}:
			case <-ctx.Done():
				return
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Error().Err(err).Msg("Watcher error")
		}
	}
}

// Paths returns the files currently being watched.
func (w *Watcher) Paths() []string {
	return w.paths
}

// ReWatch adds a path back to the watcher after it was replaced.
func (w *Watcher) ReWatch(path string) error {
	return w.fsw.Add(path)
}

// Expand resolves patterns to input names. Recursive patterns such as
// logs/**/*.json are supported. A pattern without glob syntax, or one that
// matches nothing, is kept as given so opening it reports the problem.
func Expand(patterns []string) ([]string, error) {
	var out []string
	seen := make(map[string]bool)
	add := func(name string) {
		if !seen[name] {
			seen[name] = true
			out = append(out, name)
		}
	}

	for _, pattern := range patterns {
		if !isGlob(pattern) {
			add(pattern)
			continue
		}
		matches, err := doublestar.FilepathGlob(pattern, doublestar.WithFilesOnly(), doublestar.WithFailOnIOErrors())
		if err != nil {
			return nil, fmt.Errorf("expand %q: %w", pattern, err)
		}
		if len(matches) == 0 {
			add(pattern)
			continue
		}
		for _, m := range matches {
			add(m)
		}
	}
	return out, nil
}

func isGlob(pattern string) bool {
	return strings.ContainsAny(pattern, "*?[{")
}
