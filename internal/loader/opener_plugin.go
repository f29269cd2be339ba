//go:build (linux || darwin || freebsd) && cgo

package loader

import "plugin"

type pluginOpener struct{}

func (pluginOpener) Open(path string) (Library, error) {
	p, err := plugin.Open(path)
	if err != nil {
		return nil, err
	}
	return pluginLibrary{p}, nil
}

type pluginLibrary struct{ p *plugin.Plugin }

func (l pluginLibrary) Lookup(symbol string) (any, error) { return l.p.Lookup(symbol) }

func defaultOpener() Opener { return pluginOpener{} }
