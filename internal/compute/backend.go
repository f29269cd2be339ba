package compute

import (
	"errors"
	"fmt"
)

var (
	ErrDriverUnavailable = errors.New("compute: CUDA driver not available")
	ErrNoDevice          = errors.New("compute: no CUDA device")
	ErrTornDown          = errors.New("compute: runtime torn down")
	ErrFreed             = errors.New("compute: buffer already freed")
)

// Runtime owns a device context and the buffers allocated on it.
type Runtime interface {
	Name() string
	DeviceCount() int
	Alloc(n int) (Buffer, error)
	// Launch runs k over the contents of bufs and returns once the device
	// has finished.
	Launch(k Kernel, bufs ...Buffer) error
	Synchronize() error
	// Teardown releases the context. Buffers must be freed first.
	Teardown() error
}

// Buffer is a device allocation of float64 values.
type Buffer interface {
	Len() int
	Upload(src []float64) error
	Download(dst []float64) error
	Free() error
}

// Kernel computes over one view per launched buffer, in launch order.
type Kernel func(views [][]float64) error

type Options struct {
	// Emulate selects the Host runtime regardless of installed drivers.
	Emulate bool
	// Library overrides the driver library path.
	Library string
}

// Open returns the best runtime for opts: Host when emulating, otherwise
// CUDA when a device is present.
func Open(opts Options) (Runtime, error) {
	if opts.Emulate {
		return NewHost(), nil
	}
	lib := opts.Library
	if lib == "" {
		lib = DefaultCUDALibrary
	}
	rt, err := NewCUDA(lib)
	if err != nil {
		return nil, err
	}
	if rt.DeviceCount() == 0 {
		_ = rt.Teardown()
		return nil, ErrNoDevice
	}
	return rt, nil
}

func checkLen(b Buffer, n int) error {
	if n != b.Len() {
		return fmt.Errorf("compute: length %d does not match buffer length %d", n, b.Len())
	}
	return nil
}
