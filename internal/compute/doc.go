// Package compute provides the device runtimes the GPU solver places its
// buffers on.
//
// Two runtimes are available:
//
//   - CUDA: the NVIDIA driver API, bound at run time from libcuda.so.1
//   - Host: an in-process emulation with the same buffer semantics
//
// A Runtime hands out Buffers that mirror host slices. Data moves only
// through Upload and Download, so code written against the Host runtime
// exercises the same synchronization points as a real device.
//
// Kernels are Go functions and always execute on the host. Launch on the
// CUDA runtime stages its buffers out of device memory, runs the kernel, and
// writes the results back before synchronizing:
//
//	rt, err := compute.Open(compute.Options{})
//	buf, _ := rt.Alloc(len(host))
//	_ = buf.Upload(host)
//	_ = rt.Launch(kernel, buf)
//	_ = buf.Download(host)
//	_ = buf.Free()
//	_ = rt.Teardown()
package compute
