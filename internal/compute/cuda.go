//go:build linux

package compute

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

const DefaultCUDALibrary = "libcuda.so.1"

const cudaSuccess = 0

// driver holds the CUDA driver entry points bound from the shared library.
type driver struct {
	cuInit           func(flags uint32) int32
	cuDeviceGetCount func(count *int32) int32
	cuDeviceGet      func(dev *int32, ordinal int32) int32
	cuCtxCreate      func(ctx *uintptr, flags uint32, dev int32) int32
	cuCtxDestroy     func(ctx uintptr) int32
	cuCtxSetCurrent  func(ctx uintptr) int32
	cuCtxSynchronize func() int32
	cuMemAlloc       func(ptr *uintptr, size uint64) int32
	cuMemFree        func(ptr uintptr) int32
	cuMemcpyHtoD     func(dst uintptr, src unsafe.Pointer, size uint64) int32
	cuMemcpyDtoH     func(dst unsafe.Pointer, src uintptr, size uint64) int32
}

func bind(lib uintptr, fptr any, name string) error {
	sym, err := purego.Dlsym(lib, name)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDriverUnavailable, name, err)
	}
	purego.RegisterFunc(fptr, sym)
	return nil
}

func loadDriver(path string) (uintptr, *driver, error) {
	lib, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrDriverUnavailable, err)
	}
	d := &driver{}
	syms := []struct {
		fptr any
		name string
	}{
		{&d.cuInit, "cuInit"},
		{&d.cuDeviceGetCount, "cuDeviceGetCount"},
		{&d.cuDeviceGet, "cuDeviceGet"},
		{&d.cuCtxCreate, "cuCtxCreate_v2"},
		{&d.cuCtxDestroy, "cuCtxDestroy_v2"},
		{&d.cuCtxSetCurrent, "cuCtxSetCurrent"},
		{&d.cuCtxSynchronize, "cuCtxSynchronize"},
		{&d.cuMemAlloc, "cuMemAlloc_v2"},
		{&d.cuMemFree, "cuMemFree_v2"},
		{&d.cuMemcpyHtoD, "cuMemcpyHtoD_v2"},
		{&d.cuMemcpyDtoH, "cuMemcpyDtoH_v2"},
	}
	for _, s := range syms {
		if err := bind(lib, s.fptr, s.name); err != nil {
			_ = purego.Dlclose(lib)
			return 0, nil, err
		}
	}
	return lib, d, nil
}

// CUDA is a runtime on device 0 of the NVIDIA driver.
type CUDA struct {
	mu      sync.Mutex
	lib     uintptr
	drv     *driver
	ctx     uintptr
	devices int
	live    int
	torn    bool
}

// NewCUDA binds the driver library at path and creates a context on the
// first device. A machine without devices yields a runtime whose
// DeviceCount is zero.
func NewCUDA(path string) (*CUDA, error) {
	lib, drv, err := loadDriver(path)
	if err != nil {
		return nil, err
	}
	c := &CUDA{lib: lib, drv: drv}
	if r := drv.cuInit(0); r != cudaSuccess {
		return c, nil
	}
	var count int32
	if r := drv.cuDeviceGetCount(&count); r != cudaSuccess || count == 0 {
		return c, nil
	}
	var dev int32
	if r := drv.cuDeviceGet(&dev, 0); r != cudaSuccess {
		_ = purego.Dlclose(lib)
		return nil, fmt.Errorf("compute: cuDeviceGet: error %d", r)
	}
	if r := drv.cuCtxCreate(&c.ctx, 0, dev); r != cudaSuccess {
		_ = purego.Dlclose(lib)
		return nil, fmt.Errorf("compute: cuCtxCreate: error %d", r)
	}
	c.devices = int(count)
	return c, nil
}

func (c *CUDA) Name() string     { return "cuda" }
func (c *CUDA) DeviceCount() int { return c.devices }

// do runs fn with the context current on a locked OS thread.
func (c *CUDA) do(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return ErrTornDown
	}
	if c.ctx == 0 {
		return ErrNoDevice
	}
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if r := c.drv.cuCtxSetCurrent(c.ctx); r != cudaSuccess {
		return fmt.Errorf("compute: cuCtxSetCurrent: error %d", r)
	}
	return fn()
}

func (c *CUDA) Alloc(n int) (Buffer, error) {
	b := &cudaBuffer{rt: c, n: n}
	err := c.do(func() error {
		if n == 0 {
			return nil
		}
		if r := c.drv.cuMemAlloc(&b.ptr, uint64(n)*8); r != cudaSuccess {
			return fmt.Errorf("compute: cuMemAlloc(%d): error %d", n, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	c.live++
	c.mu.Unlock()
	return b, nil
}

// Launch copies every buffer from device memory into host views, runs k on
// the host, and copies the views back. No device kernel is dispatched: the
// device holds the data between launches, the host does the arithmetic.
func (c *CUDA) Launch(k Kernel, bufs ...Buffer) error {
	views := make([][]float64, len(bufs))
	for i, b := range bufs {
		views[i] = make([]float64, b.Len())
		if err := b.Download(views[i]); err != nil {
			return err
		}
	}
	if err := k(views); err != nil {
		return err
	}
	for i, b := range bufs {
		if err := b.Upload(views[i]); err != nil {
			return err
		}
	}
	return c.Synchronize()
}

func (c *CUDA) Synchronize() error {
	return c.do(func() error {
		if r := c.drv.cuCtxSynchronize(); r != cudaSuccess {
			return fmt.Errorf("compute: cuCtxSynchronize: error %d", r)
		}
		return nil
	})
}

func (c *CUDA) Teardown() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.torn {
		return nil
	}
	if c.live > 0 {
		return fmt.Errorf("compute: teardown with %d live buffers", c.live)
	}
	if c.ctx != 0 {
		if r := c.drv.cuCtxDestroy(c.ctx); r != cudaSuccess {
			return fmt.Errorf("compute: cuCtxDestroy: error %d", r)
		}
	}
	c.torn = true
	return purego.Dlclose(c.lib)
}

type cudaBuffer struct {
	rt    *CUDA
	ptr   uintptr
	n     int
	freed bool
}

func (b *cudaBuffer) Len() int { return b.n }

func (b *cudaBuffer) Upload(src []float64) error {
	if err := checkLen(b, len(src)); err != nil {
		return err
	}
	return b.rt.do(func() error {
		if b.freed {
			return ErrFreed
		}
		if b.n == 0 {
			return nil
		}
		if r := b.rt.drv.cuMemcpyHtoD(b.ptr, unsafe.Pointer(&src[0]), uint64(b.n)*8); r != cudaSuccess {
			return fmt.Errorf("compute: cuMemcpyHtoD: error %d", r)
		}
		return nil
	})
}

func (b *cudaBuffer) Download(dst []float64) error {
	if err := checkLen(b, len(dst)); err != nil {
		return err
	}
	return b.rt.do(func() error {
		if b.freed {
			return ErrFreed
		}
		if b.n == 0 {
			return nil
		}
		if r := b.rt.drv.cuMemcpyDtoH(unsafe.Pointer(&dst[0]), b.ptr, uint64(b.n)*8); r != cudaSuccess {
			return fmt.Errorf("compute: cuMemcpyDtoH: error %d", r)
		}
		return nil
	})
}

func (b *cudaBuffer) Free() error {
	err := b.rt.do(func() error {
		if b.freed {
			return ErrFreed
		}
		b.freed = true
		if b.n == 0 {
			return nil
		}
		if r := b.rt.drv.cuMemFree(b.ptr); r != cudaSuccess {
			return fmt.Errorf("compute: cuMemFree: error %d", r)
		}
		return nil
	})
	if err != nil {
		return err
	}
	b.rt.mu.Lock()
	b.rt.live--
	b.rt.mu.Unlock()
	return nil
}
