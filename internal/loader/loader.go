// Package loader discovers and binds the optional GPU module at run time.
//
// The module is a Go plugin exporting four functions:
//
//	CreateRosenbrockSolver func(*mechanism.Mechanism) (chem.Backend, error)
//	DestroySolver          func(chem.Backend)
//	DevicesAvailable       func() bool
//	CleanUp                func()
//
// The first query loads the module exactly once per Loader; every later
// query observes the same outcome. Binaries built without plugin support
// report the module as unavailable.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/san-kum/chemsim/internal/chem"
	"github.com/san-kum/chemsim/internal/mechanism"
)

const (
	// ModuleFileName is the file probed for in the default locations.
	ModuleFileName = "chemsim_cuda.so"
	// ModuleEnv overrides the probe locations with a single path.
	ModuleEnv = "CHEMSIM_GPU_MODULE"
	// SystemDir is the last default location probed.
	SystemDir = "/usr/local/lib/chemsim"
)

// Exported symbol names of the module.
const (
	SymbolCreate  = "CreateRosenbrockSolver"
	SymbolDestroy = "DestroySolver"
	SymbolDevices = "DevicesAvailable"
	SymbolCleanUp = "CleanUp"
)

type (
	createFunc  = func(*mechanism.Mechanism) (chem.Backend, error)
	destroyFunc = func(chem.Backend)
	devicesFunc = func() bool
	cleanUpFunc = func()
)

// LoadState is the outcome of the one-time module load.
type LoadState int

const (
	Unattempted LoadState = iota
	Loading
	Functional
	MissingSymbols
	LoadFailed
)

func (s LoadState) String() string {
	switch s {
	case Unattempted:
		return "unattempted"
	case Loading:
		return "loading"
	case Functional:
		return "functional"
	case MissingSymbols:
		return "missing symbols"
	case LoadFailed:
		return "load failed"
	}
	return fmt.Sprintf("LoadState(%d)", int(s))
}

// Library is an opened module.
type Library interface {
	Lookup(symbol string) (any, error)
}

// Opener opens a module file.
type Opener interface {
	Open(path string) (Library, error)
}

type OpenerFunc func(path string) (Library, error)

func (f OpenerFunc) Open(path string) (Library, error) { return f(path) }

type Options struct {
	// Opener defaults to the Go plugin opener.
	Opener Opener
	// Paths replaces the default probe locations.
	Paths  []string
	Logger *zap.Logger
}

// UnavailableError explains why the GPU backend cannot be used.
type UnavailableError struct {
	Reason error
}

func (e *UnavailableError) Error() string {
	if e.Reason == nil {
		return "GPU backend not available"
	}
	return "GPU backend not available: " + e.Reason.Error()
}

func (e *UnavailableError) Unwrap() []error {
	if e.Reason == nil {
		return []error{chem.ErrBackendUnavailable}
	}
	return []error{chem.ErrBackendUnavailable, e.Reason}
}

type module struct {
	create  createFunc
	destroy destroyFunc
	devices devicesFunc
	cleanUp cleanUpFunc
}

// Loader binds the GPU module on first use.
type Loader struct {
	opener Opener
	paths  []string
	log    *zap.Logger

	once sync.Once

	mu      sync.Mutex
	state   LoadState
	lastErr error
	path    string
	mod     *module
	live    int
	dirty   bool
}

func New(opts Options) *Loader {
	if opts.Opener == nil {
		opts.Opener = defaultOpener()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Loader{
		opener: opts.Opener,
		paths:  opts.Paths,
		log:    opts.Logger.Named("loader"),
	}
}

var defaultLoader = sync.OnceValue(func() *Loader {
	return New(Options{Logger: zap.L()})
})

// Default returns the process-wide loader.
func Default() *Loader { return defaultLoader() }

// Candidates lists the module paths probed in order.
func (l *Loader) Candidates() []string {
	if len(l.paths) > 0 {
		return l.paths
	}
	if p := os.Getenv(ModuleEnv); p != "" {
		return []string{p}
	}
	var out []string
	if exe, err := os.Executable(); err == nil {
		out = append(out, filepath.Join(filepath.Dir(exe), ModuleFileName))
	}
	if wd, err := os.Getwd(); err == nil {
		out = append(out, filepath.Join(wd, ModuleFileName))
	}
	return append(out, filepath.Join(SystemDir, ModuleFileName))
}

func (l *Loader) ensureLoaded() {
	l.once.Do(l.load)
}

func (l *Loader) load() {
	l.mu.Lock()
	l.state = Loading
	l.mu.Unlock()

	state, path, mod, err := l.probe()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.state, l.path, l.mod, l.lastErr = state, path, mod, err
	if err != nil {
		l.log.Debug("gpu module unavailable", zap.Stringer("state", state), zap.Error(err))
		return
	}
	l.log.Info("gpu module loaded", zap.String("path", path))
}

func (l *Loader) probe() (LoadState, string, *module, error) {
	var errs []string
	for _, path := range l.Candidates() {
		lib, err := l.opener.Open(path)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		mod, err := resolve(lib)
		if err != nil {
			return MissingSymbols, path, nil, fmt.Errorf("%s: %w", path, err)
		}
		return Functional, path, mod, nil
	}
	return LoadFailed, "", nil, fmt.Errorf("no loadable module (%s)", strings.Join(errs, "; "))
}

func resolve(lib Library) (*module, error) {
	m := &module{}
	var errs []error
	errs = append(errs, lookup(lib, SymbolCreate, &m.create))
	errs = append(errs, lookup(lib, SymbolDestroy, &m.destroy))
	errs = append(errs, lookup(lib, SymbolDevices, &m.devices))
	errs = append(errs, lookup(lib, SymbolCleanUp, &m.cleanUp))
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return m, nil
}

func lookup[F any](lib Library, name string, dst *F) error {
	sym, err := lib.Lookup(name)
	if err != nil {
		return fmt.Errorf("symbol %s: %w", name, err)
	}
	fn, ok := sym.(F)
	if !ok {
		return fmt.Errorf("symbol %s has type %T", name, sym)
	}
	*dst = fn
	return nil
}

// IsAvailable loads the module if needed and reports whether it is usable.
func (l *Loader) IsAvailable() bool {
	l.ensureLoaded()
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state == Functional
}

// HasDevices reports whether the module is usable and sees a device.
func (l *Loader) HasDevices() bool {
	if !l.IsAvailable() {
		return false
	}
	l.mu.Lock()
	l.dirty = true
	mod := l.mod
	l.mu.Unlock()
	return mod.devices()
}

// CreateRosenbrockSolver builds a CudaRosenbrock backend inside the module.
// Closing the returned handle destroys the backend through the module.
func (l *Loader) CreateRosenbrockSolver(m *mechanism.Mechanism) (*chem.Handle, error) {
	if !l.IsAvailable() {
		return nil, &UnavailableError{Reason: l.LastError()}
	}
	if !l.HasDevices() {
		return nil, &UnavailableError{Reason: chem.ErrNoDevices}
	}

	l.mu.Lock()
	mod := l.mod
	l.mu.Unlock()

	b, err := mod.create(m)
	if err != nil {
		return nil, fmt.Errorf("gpu module: create solver: %w", err)
	}

	l.mu.Lock()
	l.live++
	l.mu.Unlock()

	return chem.NewHandle(b, func() {
		mod.destroy(b)
		l.mu.Lock()
		l.live--
		l.mu.Unlock()
	}), nil
}

// CleanUp releases the module's process-wide device resources. It is a
// no-op when the module never loaded, when nothing was used since the last
// call, and while any module-created handle is still open.
func (l *Loader) CleanUp() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != Functional || !l.dirty {
		return
	}
	if l.live > 0 {
		l.log.Debug("cleanup deferred", zap.Int("live_handles", l.live))
		return
	}
	l.dirty = false
	l.mod.cleanUp()
}

func (l *Loader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// LastError returns the reason the module is unavailable, or nil.
func (l *Loader) LastError() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastErr
}

// Path returns the module file that was loaded.
func (l *Loader) Path() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.path
}
