// Package watch implements the Change Observer: a dedicated goroutine that
// owns a recursive filesystem watch per registered tenant root and
// translates raw OS-level events into the replace/remove commands consumed
// by the dispatcher worker.
package watch

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"

	"github.com/curserve/memsearchd/pkg/logging"
)

// Event is an outbound command describing a single file-level change within
// a watched tenant root.
type Event struct {
	// Tenant identifies the owning tenant.
	Tenant string
	// Path is the absolute path that changed.
	Path string
	// Deleted is true for a removal, false for a create or modify.
	Deleted bool
}

// watchCommand and unwatchCommand are the two inbound command shapes an
// Observer accepts. They are unexported because the constructors Watch and
// Unwatch are the only intended producers.
type watchCommand struct {
	tenant string
	root   string
}

type unwatchCommand struct {
	tenant string
}

// bridgedEvent and bridgedError wrap fsnotify's two native channels into a
// single selectable shape, following the same bridge-task idiom the teacher
// uses to adapt non-selectable native watch primitives into its run loops.
type bridgedEvent struct{ event fsnotify.Event }
type bridgedError struct{ err error }

// Observer owns one fsnotify.Watcher and a single run loop that multiplexes
// watch/unwatch commands against bridged native events.
type Observer struct {
	logger   *logging.Logger
	watcher  *fsnotify.Watcher
	commands chan any
	bridged  chan any
	events   chan Event
	done     chan struct{}
	closeOnce sync.Once
}

// New creates and starts an Observer. The caller must call Close when done.
func New(logger *logging.Logger) (*Observer, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "unable to create filesystem watcher")
	}

	o := &Observer{
		logger:   logger,
		watcher:  watcher,
		commands: make(chan any),
		bridged:  make(chan any, 64),
		events:   make(chan Event, 64),
		done:     make(chan struct{}),
	}

	go o.bridge()
	go o.run()

	return o, nil
}

// Watch registers tenant as the owner of a recursive watch rooted at root.
// Registration failures are logged, not returned, matching the "failures are
// logged, not fatal" contract.
func (o *Observer) Watch(tenant, root string) {
	select {
	case o.commands <- watchCommand{tenant: tenant, root: root}:
	case <-o.done:
	}
}

// Unwatch unregisters every root currently attributed to tenant.
func (o *Observer) Unwatch(tenant string) {
	select {
	case o.commands <- unwatchCommand{tenant: tenant}:
	case <-o.done:
	}
}

// Events returns the channel of outbound FileChanged/FileDeleted commands.
func (o *Observer) Events() <-chan Event {
	return o.events
}

// Close terminates the observer's goroutines and the underlying watcher.
func (o *Observer) Close() error {
	o.closeOnce.Do(func() { close(o.done) })
	return o.watcher.Close()
}

// bridge forwards fsnotify's Events and Errors channels, which cannot be
// selected alongside the command channel from outside this package, into a
// single internal channel the run loop can multiplex against.
func (o *Observer) bridge() {
	for {
		select {
		case event, ok := <-o.watcher.Events:
			if !ok {
				return
			}
			select {
			case o.bridged <- bridgedEvent{event: event}:
			case <-o.done:
				return
			}
		case err, ok := <-o.watcher.Errors:
			if !ok {
				return
			}
			select {
			case o.bridged <- bridgedError{err: err}:
			case <-o.done:
				return
			}
		case <-o.done:
			return
		}
	}
}

// registration tracks the set of directories watched on behalf of a single
// tenant root, so Unwatch can unregister exactly what Watch registered.
type registration struct {
	tenant string
	dirs   map[string]bool
}

// run is the observer's single-goroutine state machine. It owns the
// watched-root table exclusively, so no locking is needed here.
func (o *Observer) run() {
	watched := make(map[string]*registration) // root -> registration

	for {
		select {
		case cmd := <-o.commands:
			switch c := cmd.(type) {
			case watchCommand:
				dirs, err := o.registerRecursive(c.root)
				if err != nil {
					if o.logger != nil {
						o.logger.Warnf("unable to watch %s: %v", c.root, err)
					}
					continue
				}
				watched[c.root] = &registration{tenant: c.tenant, dirs: dirs}
			case unwatchCommand:
				for root, reg := range watched {
					if reg.tenant == c.tenant {
						o.unregister(reg.dirs)
						delete(watched, root)
					}
				}
			}
		case b := <-o.bridged:
			switch v := b.(type) {
			case bridgedEvent:
				o.handle(v.event, watched)
			case bridgedError:
				if o.logger != nil {
					o.logger.Warnf("watch error: %v", v.err)
				}
			}
		case <-o.done:
			return
		}
	}
}

// handle maps a single fsnotify event to an outbound Event, extending the
// owning root's watch set if the event announces a new subdirectory.
func (o *Observer) handle(event fsnotify.Event, watched map[string]*registration) {
	root, reg := findOwner(watched, event.Name)
	if reg == nil {
		return
	}

	switch {
	case event.Op&fsnotify.Create != 0:
		if isDir(event.Name) {
			dirs, err := o.registerRecursive(event.Name)
			if err != nil {
				if o.logger != nil {
					o.logger.Warnf("unable to watch new directory %s: %v", event.Name, err)
				}
				return
			}
			for d := range dirs {
				reg.dirs[d] = true
			}
			return
		}
		o.emit(reg.tenant, event.Name, false)
	case event.Op&fsnotify.Write != 0:
		o.emit(reg.tenant, event.Name, false)
	case event.Op&fsnotify.Remove != 0:
		delete(reg.dirs, event.Name)
		o.emit(reg.tenant, event.Name, true)
	default:
		_ = root // Rename and Chmod are not part of the translated contract.
	}
}

// emit delivers an outbound Event, blocking until the dispatcher worker
// accepts it; the event is discarded only if the observer is closed first.
func (o *Observer) emit(tenant, path string, deleted bool) {
	select {
	case o.events <- Event{Tenant: tenant, Path: path, Deleted: deleted}:
	case <-o.done:
	}
}

// findOwner locates the unique watched root that is a path-prefix of path.
func findOwner(watched map[string]*registration, path string) (string, *registration) {
	for root, reg := range watched {
		if root == path || strings.HasPrefix(path, root+string(filepath.Separator)) {
			return root, reg
		}
	}
	return "", nil
}

// registerRecursive walks root, adding an fsnotify watch for every directory
// found (including root itself), and returns the set of directories it
// successfully registered. A failure to watch any single directory is
// skipped rather than treated as fatal for the whole walk.
func (o *Observer) registerRecursive(root string) (map[string]bool, error) {
	dirs := make(map[string]bool)

	err := filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		if watchErr := o.watcher.Add(path); watchErr == nil {
			dirs[path] = true
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "unable to walk %s", root)
	}
	if len(dirs) == 0 {
		return nil, errors.Errorf("no watchable directories under %s", root)
	}

	return dirs, nil
}

// unregister removes every directory watch in dirs, ignoring errors since
// the underlying directory may already be gone.
func (o *Observer) unregister(dirs map[string]bool) {
	for path := range dirs {
		_ = o.watcher.Remove(path)
	}
}

// isDir reports whether path currently names a directory, treating any stat
// failure as "not a directory" (the path likely vanished already).
func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
