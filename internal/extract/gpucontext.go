package extract

import (
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"
)

// nativeContext models the pinned-thread, non-migratable native-library
// context a real GPU SIFT service would own: exclusively bound to one OS
// thread for its entire lifetime, initialized once per process and torn
// down once. It wraps govips's process-wide Startup/Shutdown lifecycle as
// a stand-in for that native context acquisition; no SIFT extraction runs
// through it (that is cpuref's job), but a real GPU extractor would
// acquire its context at the same point in the pinned stage's goroutine.
type nativeContext struct {
	mu      sync.Mutex
	started bool
}

var sharedNativeContext nativeContext

// Acquire starts the native context if it is not already running. Safe to
// call repeatedly; only the first call does work.
func (n *nativeContext) Acquire() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return
	}
	govips.Startup(&govips.Config{
		ConcurrencyLevel: 1, // the pinned stage runs on exactly one thread
	})
	n.started = true
}

// Release tears down the native context.
func (n *nativeContext) Release() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return
	}
	govips.Shutdown()
	n.started = false
}
