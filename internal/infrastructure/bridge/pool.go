package bridge

import (
	"fmt"
	"sync"

	"github.com/reglet-dev/flowgate/internal/domain/capability"
)

// Pool hands out one Session per external plugin for the lifetime of a
// run. Sessions are created on first use.
type Pool struct {
	mu       sync.Mutex
	bundles  map[string]string
	sessions map[string]*Session
}

// NewPool indexes the bundles of the given external packages by plugin
// package id.
func NewPool(packages []capability.Package) *Pool {
	bundles := make(map[string]string)
	for _, pkg := range packages {
		src, ok := pkg.Provenance.(capability.ExternalSource)
		if !ok {
			continue
		}
		for _, fn := range pkg.Functions {
			if ext, ok := fn.Invocation.(capability.External); ok {
				bundles[ext.Descriptor.PluginID] = src.BundleText
			}
		}
	}
	return &Pool{
		bundles:  bundles,
		sessions: make(map[string]*Session),
	}
}

// Session returns the session for pluginID.
func (p *Pool) Session(pluginID string) (*Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[pluginID]; ok {
		return s, nil
	}
	bundle, ok := p.bundles[pluginID]
	if !ok {
		return nil, fmt.Errorf("no bundle loaded for plugin %s", pluginID)
	}
	s := NewSession(pluginID, bundle)
	p.sessions[pluginID] = s
	return s, nil
}

// Close closes every session created by the pool.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for id, s := range p.sessions {
		s.Close()
		delete(p.sessions, id)
	}
}
