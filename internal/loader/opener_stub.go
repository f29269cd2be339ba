//go:build !((linux || darwin || freebsd) && cgo)

package loader

import "errors"

// ErrPluginsUnsupported is reported by binaries that cannot load Go plugins.
var ErrPluginsUnsupported = errors.New("plugin loading not supported by this build")

type unsupportedOpener struct{}

func (unsupportedOpener) Open(string) (Library, error) { return nil, ErrPluginsUnsupported }

func defaultOpener() Opener { return unsupportedOpener{} }
