//go:build !linux

package compute

const DefaultCUDALibrary = ""

// CUDA is not available on this platform.
type CUDA struct{}

func NewCUDA(string) (*CUDA, error) { return nil, ErrDriverUnavailable }

func (c *CUDA) Name() string                   { return "cuda (not available)" }
func (c *CUDA) DeviceCount() int               { return 0 }
func (c *CUDA) Alloc(int) (Buffer, error)      { return nil, ErrDriverUnavailable }
func (c *CUDA) Launch(Kernel, ...Buffer) error { return ErrDriverUnavailable }
func (c *CUDA) Synchronize() error             { return ErrDriverUnavailable }
func (c *CUDA) Teardown() error                { return nil }
