package loader_test

import (
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/cpu"
	"github.com/san-kum/chemsim/internal/loader"
	"github.com/san-kum/chemsim/internal/mechanism"
)

// fakeModule records how the loader drives the module symbols.
type fakeModule struct {
	devices   bool
	created   atomic.Int32
	destroyed atomic.Int32
	cleanups  atomic.Int32
	symbols   map[string]any
}

func newFakeModule() *fakeModule {
	f := &fakeModule{devices: true}
	f.symbols = map[string]any{
		loader.SymbolCreate: func(m *mechanism.Mechanism) (chem.Backend, error) {
			f.created.Add(1)
			return cpu.New(m, chem.Rosenbrock, cpu.Options{})
		},
		loader.SymbolDestroy: func(chem.Backend) { f.destroyed.Add(1) },
		loader.SymbolDevices: func() bool { return f.devices },
		loader.SymbolCleanUp: func() { f.cleanups.Add(1) },
	}
	return f
}

func (f *fakeModule) Lookup(symbol string) (any, error) {
	sym, ok := f.symbols[symbol]
	if !ok {
		return nil, errors.New("symbol not found")
	}
	return sym, nil
}

func openerFor(lib loader.Library, opens *atomic.Int32) loader.Opener {
	return loader.OpenerFunc(func(string) (loader.Library, error) {
		opens.Add(1)
		return lib, nil
	})
}

func decay() *mechanism.Mechanism {
	m, ok := mechanism.Preset("decay")
	Expect(ok).To(BeTrue())
	return m
}

var _ = Describe("Loader", func() {
	var (
		mod   *fakeModule
		opens atomic.Int32
		l     *loader.Loader
	)

	BeforeEach(func() {
		mod = newFakeModule()
		opens.Store(0)
		l = loader.New(loader.Options{
			Opener: openerFor(mod, &opens),
			Paths:  []string{"/fake/chemsim_cuda.so"},
		})
	})

	Context("when no module can be opened", func() {
		BeforeEach(func() {
			l = loader.New(loader.Options{
				Opener: loader.OpenerFunc(func(path string) (loader.Library, error) {
					return nil, errors.New("no such file")
				}),
				Paths: []string{"/nowhere/a.so", "/nowhere/b.so"},
			})
		})

		It("reports the backend as unavailable", func() {
			Expect(l.IsAvailable()).To(BeFalse())
			Expect(l.HasDevices()).To(BeFalse())
			Expect(l.State()).To(Equal(loader.LoadFailed))
			Expect(l.LastError().Error()).To(ContainSubstring("/nowhere/b.so"))
		})

		It("refuses to create a solver", func() {
			h, err := l.CreateRosenbrockSolver(decay())
			Expect(h).To(BeNil())
			Expect(err).To(MatchError(ContainSubstring("not available")))
			Expect(errors.Is(err, chem.ErrBackendUnavailable)).To(BeTrue())
			Expect(chem.IsUnavailable(err)).To(BeTrue())
		})

		It("treats CleanUp as a no-op", func() {
			Expect(l.CleanUp).NotTo(Panic())
		})
	})

	Context("when a symbol is missing or mistyped", func() {
		It("marks the module as missing symbols", func() {
			delete(mod.symbols, loader.SymbolCleanUp)
			mod.symbols[loader.SymbolDevices] = func() int { return 1 }

			Expect(l.IsAvailable()).To(BeFalse())
			Expect(l.State()).To(Equal(loader.MissingSymbols))
			Expect(l.LastError().Error()).To(SatisfyAll(
				ContainSubstring(loader.SymbolCleanUp),
				ContainSubstring(loader.SymbolDevices),
			))
		})
	})

	It("loads once under concurrent first use", func() {
		var wg sync.WaitGroup
		results := make([]bool, 32)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer GinkgoRecover()
				defer wg.Done()
				results[i] = l.IsAvailable()
			}(i)
		}
		wg.Wait()

		Expect(opens.Load()).To(Equal(int32(1)))
		Expect(results).To(HaveEach(BeTrue()))
		Expect(l.State()).To(Equal(loader.Functional))
		Expect(l.Path()).To(Equal("/fake/chemsim_cuda.so"))
	})

	It("stops probing at the first module that opens", func() {
		var tried []string
		l = loader.New(loader.Options{
			Opener: loader.OpenerFunc(func(path string) (loader.Library, error) {
				tried = append(tried, path)
				if filepath.Base(path) == "second.so" {
					return mod, nil
				}
				return nil, errors.New("missing")
			}),
			Paths: []string{"/a/first.so", "/b/second.so", "/c/third.so"},
		})
		Expect(l.IsAvailable()).To(BeTrue())
		Expect(tried).To(Equal([]string{"/a/first.so", "/b/second.so"}))
	})

	It("reports no devices as an unavailable backend", func() {
		mod.devices = false
		Expect(l.IsAvailable()).To(BeTrue())
		Expect(l.HasDevices()).To(BeFalse())

		_, err := l.CreateRosenbrockSolver(decay())
		Expect(errors.Is(err, chem.ErrNoDevices)).To(BeTrue())
		Expect(errors.Is(err, chem.ErrBackendUnavailable)).To(BeTrue())
		Expect(mod.created.Load()).To(BeZero())
	})

	It("destroys module backends through the module exactly once", func() {
		h, err := l.CreateRosenbrockSolver(decay())
		Expect(err).NotTo(HaveOccurred())
		Expect(mod.created.Load()).To(Equal(int32(1)))

		st, err := h.CreateState(2)
		Expect(err).NotTo(HaveOccurred())
		_, err = h.Solve(st, 1)
		Expect(err).NotTo(HaveOccurred())

		Expect(h.Close()).To(Succeed())
		Expect(h.Close()).To(Succeed())
		Expect(h.Closed()).To(BeTrue())
		Expect(mod.destroyed.Load()).To(Equal(int32(1)))
	})

	Describe("CleanUp", func() {
		It("does nothing before the module was used", func() {
			l.CleanUp()
			Expect(l.State()).To(Equal(loader.Unattempted))
			Expect(mod.cleanups.Load()).To(BeZero())
		})

		It("waits for every module backend to be released", func() {
			a, err := l.CreateRosenbrockSolver(decay())
			Expect(err).NotTo(HaveOccurred())
			b, err := l.CreateRosenbrockSolver(decay())
			Expect(err).NotTo(HaveOccurred())

			Expect(a.Close()).To(Succeed())
			l.CleanUp()
			Expect(mod.cleanups.Load()).To(BeZero())

			Expect(b.Close()).To(Succeed())
			l.CleanUp()
			Expect(mod.cleanups.Load()).To(Equal(int32(1)))
		})

		It("is idempotent until the module is used again", func() {
			Expect(l.HasDevices()).To(BeTrue())
			l.CleanUp()
			l.CleanUp()
			Expect(mod.cleanups.Load()).To(Equal(int32(1)))

			Expect(l.HasDevices()).To(BeTrue())
			l.CleanUp()
			Expect(mod.cleanups.Load()).To(Equal(int32(2)))
		})
	})

	It("shares one default loader", func() {
		Expect(loader.Default()).To(BeIdenticalTo(loader.Default()))
	})

	It("prefers explicit paths over the environment", func() {
		GinkgoT().Setenv(loader.ModuleEnv, "/env/module.so")
		Expect(l.Candidates()).To(Equal([]string{"/fake/chemsim_cuda.so"}))

		bare := loader.New(loader.Options{Opener: openerFor(mod, &opens)})
		Expect(bare.Candidates()).To(Equal([]string{"/env/module.so"}))
	})

	It("falls back to the executable, working and system directories", func() {
		GinkgoT().Setenv(loader.ModuleEnv, "")
		paths := loader.New(loader.Options{}).Candidates()
		Expect(paths).NotTo(BeEmpty())
		Expect(paths[len(paths)-1]).To(Equal(filepath.Join(loader.SystemDir, loader.ModuleFileName)))
		for _, p := range paths {
			Expect(filepath.Base(p)).To(Equal(loader.ModuleFileName))
		}
	})

	It("reports a nonexistent module file as unavailable with the default opener", func() {
		real := loader.New(loader.Options{Paths: []string{filepath.Join(GinkgoT().TempDir(), "missing.so")}})
		Expect(real.IsAvailable()).To(BeFalse())
		Expect(real.State()).To(Equal(loader.LoadFailed))
	})
})

var _ = Describe("LoadState", func() {
	DescribeTable("String",
		func(s loader.LoadState, want string) {
			Expect(s.String()).To(Equal(want))
		},
		Entry(nil, loader.Unattempted, "unattempted"),
		Entry(nil, loader.Functional, "functional"),
		Entry(nil, loader.MissingSymbols, "missing symbols"),
		Entry(nil, loader.LoadFailed, "load failed"),
	)
})
