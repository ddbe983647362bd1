// Package watcher observes filesystem source roots so that symbol files
// uploaded after a failed lookup become visible before their negative
// cache entries expire.
package watcher

import (
	"slices"
	"sync"
	"time"
	"unique"
)

// DefaultDebounceWindow is the default time window for coalescing events.
const DefaultDebounceWindow = 250 * time.Millisecond

// Debouncer coalesces rapid file system events into batched callbacks.
type Debouncer struct {
	mu       sync.Mutex
	pending  map[unique.Handle[string]]struct{}
	timer    *time.Timer
	window   time.Duration
	callback func(paths []string)
}

// NewDebouncer creates a debouncer that calls callback with the paths
// collected during each quiet window.
func NewDebouncer(window time.Duration, callback func(paths []string)) *Debouncer {
	return &Debouncer{
		pending:  make(map[unique.Handle[string]]struct{}),
		window:   window,
		callback: callback,
	}
}

// Add records path and restarts the window.
func (d *Debouncer) Add(path string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.pending[unique.Make(path)] = struct{}{}

	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.window, d.fire)
}

// Pending returns the number of paths waiting for the window to close.
func (d *Debouncer) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// drain must be called with mu held.
func (d *Debouncer) drain() []string {
	paths := make([]string, 0, len(d.pending))
	for handle := range d.pending {
		paths = append(paths, handle.Value())
	}
	d.pending = make(map[unique.Handle[string]]struct{})
	slices.Sort(paths)
	return paths
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	// Flush may have emptied the set between the timer firing and here.
	if len(d.pending) == 0 {
		d.timer = nil
		d.mu.Unlock()
		return
	}
	paths := d.drain()
	d.timer = nil
	d.mu.Unlock()

	if d.callback != nil {
		go d.callback(paths)
	}
}

// Flush runs the callback synchronously with every pending path.
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.timer != nil {
		if !d.timer.Stop() {
			// Already fired; the pending set belongs to that run.
			d.mu.Unlock()
			return
		}
		d.timer = nil
	}
	paths := d.drain()
	d.mu.Unlock()

	if len(paths) > 0 && d.callback != nil {
		d.callback(paths)
	}
}
