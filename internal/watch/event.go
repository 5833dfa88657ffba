// Package watch implements the development watch loop: one full build at
// startup, then incremental rebuilds driven by filesystem notifications
// under the source root.
//
// Notifications are translated into a queue of Events consumed by a single
// coordinator. Rebuilds of distinct paths fan out under a concurrency limit;
// rebuilds of the same path are serialized by an in-flight gate, with later
// events for a busy path collapsed into one follow-up run.
package watch

import (
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/fsnotify/fsnotify"
)

// Kind is the type of change observed for a path.
type Kind string

const (
	KindAdded    Kind = "added"
	KindModified Kind = "modified"
	KindRemoved  Kind = "removed"
)

// Event is one change to act on.
type Event struct {
	Path string
	Kind Kind
}

// translate maps a notification to an Event. Chmod-only notifications carry
// no content change and are dropped.
func translate(ev fsnotify.Event) (Event, bool) {
	switch {
	case ev.Op.Has(fsnotify.Remove), ev.Op.Has(fsnotify.Rename):
		return Event{Path: ev.Name, Kind: KindRemoved}, true
	case ev.Op.Has(fsnotify.Create):
		return Event{Path: ev.Name, Kind: KindAdded}, true
	case ev.Op.Has(fsnotify.Write):
		return Event{Path: ev.Name, Kind: KindModified}, true
	default:
		return Event{}, false
	}
}

// filter decides which paths under the source root are worth a rebuild.
type filter struct {
	root   string
	out    string // output root, skipped when nested under root
	ignore []string
}

func (f filter) ignored(path string) bool {
	if f.out != "" && within(f.out, path) {
		return true
	}
	base := filepath.Base(path)

	// hidden files
	if strings.HasPrefix(base, ".") {
		return true
	}

	// editor temp/swap files
	if strings.HasSuffix(base, "~") ||
		strings.HasSuffix(base, ".swp") ||
		strings.HasSuffix(base, ".swx") ||
		strings.HasSuffix(base, ".tmp") ||
		strings.HasPrefix(base, "#") && strings.HasSuffix(base, "#") {
		return true
	}

	if base == "Thumbs.db" || strings.HasPrefix(base, "tsconfig.distbuilder-") {
		return true
	}

	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return false
	}
	rel = filepath.ToSlash(rel)
	for _, seg := range strings.Split(rel, "/") {
		if seg == "node_modules" || (strings.HasPrefix(seg, ".") && seg != "." && seg != "..") {
			return true
		}
	}
	for _, pattern := range f.ignore {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// within reports whether path is dir or below it.
func within(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
