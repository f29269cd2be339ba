// Command cudasolver is the optional GPU module. Build it with
//
//	go build -buildmode=plugin -o chemsim_cuda.so ./plugins/cudasolver
//
// and place the result where the loader probes for it. The exported
// functions below are the module ABI; changing any signature is a breaking
// change for every host binary.
package main

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/compute"
	"github.com/san-kum/chemsim/internal/gpu"
	"github.com/san-kum/chemsim/internal/mechanism"
)

var (
	mu sync.Mutex
	rt compute.Runtime
)

// acquire opens the process-wide runtime on first use and after CleanUp.
func acquire() (compute.Runtime, error) {
	mu.Lock()
	defer mu.Unlock()
	if rt != nil {
		return rt, nil
	}
	r, err := compute.Open(compute.Options{
		Emulate: os.Getenv("CHEMSIM_GPU_EMULATE") == "1",
		Library: os.Getenv("CHEMSIM_CUDA_LIBRARY"),
	})
	if err != nil {
		return nil, err
	}
	zap.L().Debug("gpu runtime opened", zap.String("runtime", r.Name()), zap.Int("devices", r.DeviceCount()))
	rt = r
	return rt, nil
}

func CreateRosenbrockSolver(m *mechanism.Mechanism) (chem.Backend, error) {
	r, err := acquire()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", chem.ErrNoDevices, err)
	}
	return gpu.New(m, r, gpu.Options{})
}

func DestroySolver(b chem.Backend) {
	if g, ok := b.(*gpu.Backend); ok {
		if err := g.Close(); err != nil {
			zap.L().Warn("gpu backend close failed", zap.Error(err))
		}
	}
}

func DevicesAvailable() bool {
	r, err := acquire()
	return err == nil && r.DeviceCount() > 0
}

func CleanUp() {
	mu.Lock()
	defer mu.Unlock()
	if rt == nil {
		return
	}
	if err := rt.Teardown(); err != nil {
		zap.L().Warn("gpu runtime teardown failed", zap.Error(err))
		return
	}
	rt = nil
}

func main() {}
