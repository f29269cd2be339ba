package compute

import (
	"fmt"
	"sync"
)

// Host emulates a device in process memory. Buffers own private storage so
// a missing Upload or Download shows up as stale data, as it would on a GPU.
type Host struct {
	mu       sync.Mutex
	live     map[*hostBuffer]struct{}
	launches int
	torn     bool
}

func NewHost() *Host {
	return &Host{live: make(map[*hostBuffer]struct{})}
}

func (h *Host) Name() string     { return "host" }
func (h *Host) DeviceCount() int { return 1 }

func (h *Host) Alloc(n int) (Buffer, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.torn {
		return nil, ErrTornDown
	}
	b := &hostBuffer{host: h, data: make([]float64, n)}
	h.live[b] = struct{}{}
	return b, nil
}

func (h *Host) Launch(k Kernel, bufs ...Buffer) error {
	h.mu.Lock()
	if h.torn {
		h.mu.Unlock()
		return ErrTornDown
	}
	h.launches++
	h.mu.Unlock()

	views := make([][]float64, len(bufs))
	for i, b := range bufs {
		hb, ok := b.(*hostBuffer)
		if !ok {
			return fmt.Errorf("compute: buffer %d of type %T not allocated by host runtime", i, b)
		}
		if hb.freed() {
			return ErrFreed
		}
		views[i] = hb.data
	}
	return k(views)
}

func (h *Host) Synchronize() error { return nil }

func (h *Host) Teardown() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.torn {
		return nil
	}
	if n := len(h.live); n > 0 {
		return fmt.Errorf("compute: teardown with %d live buffers", n)
	}
	h.torn = true
	return nil
}

// Live returns the number of allocated, not yet freed buffers.
func (h *Host) Live() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.live)
}

// Launches returns the number of kernel launches.
func (h *Host) Launches() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.launches
}

// TornDown reports whether Teardown succeeded.
func (h *Host) TornDown() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.torn
}

type hostBuffer struct {
	host *Host
	data []float64
	done bool
}

func (b *hostBuffer) Len() int { return len(b.data) }

func (b *hostBuffer) Upload(src []float64) error {
	if b.freed() {
		return ErrFreed
	}
	if err := checkLen(b, len(src)); err != nil {
		return err
	}
	copy(b.data, src)
	return nil
}

func (b *hostBuffer) Download(dst []float64) error {
	if b.freed() {
		return ErrFreed
	}
	if err := checkLen(b, len(dst)); err != nil {
		return err
	}
	copy(dst, b.data)
	return nil
}

func (b *hostBuffer) Free() error {
	b.host.mu.Lock()
	defer b.host.mu.Unlock()
	if b.done {
		return ErrFreed
	}
	b.done = true
	delete(b.host.live, b)
	return nil
}

func (b *hostBuffer) freed() bool {
	b.host.mu.Lock()
	defer b.host.mu.Unlock()
	return b.done
}
