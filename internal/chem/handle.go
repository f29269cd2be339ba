package chem

import "sync"

// Handle owns a backend together with the function that releases it.
//
// The release function is bound when the backend is created, so the object is
// always freed by whoever allocated it: a no-op for in-process backends, the
// module's destroy symbol for backends created inside a loaded module.
type Handle struct {
	Backend

	once    sync.Once
	release func()

	mu     sync.Mutex
	closed bool
}

// NewHandle bundles b with release. A nil release is treated as a no-op.
func NewHandle(b Backend, release func()) *Handle {
	if release == nil {
		release = func() {}
	}
	return &Handle{Backend: b, release: release}
}

// Close runs the release function exactly once.
func (h *Handle) Close() error {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		h.mu.Unlock()
		h.release()
	})
	return nil
}

// Closed reports whether Close has run.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}
