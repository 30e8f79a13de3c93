package jsi

import (
	"sync"

	"github.com/dop251/goja"

	jsibridge "github.com/wippyai/jsibridge"
	"github.com/wippyai/jsibridge/errors"
)

var _ jsibridge.RuntimeProvider = (*Provider)(nil)
var _ jsibridge.RuntimeProvider = (*Runtime)(nil)

// Provider hands the active runtime to collaborators that need the VM.
// The runtime can be taken over once with Consume; afterwards the
// provider reports no runtime.
type Provider struct {
	mu sync.Mutex
	rt *Runtime
}

// NewProvider returns a provider for rt.
func NewProvider(rt *Runtime) *Provider {
	return &Provider{rt: rt}
}

// Runtime returns the VM, or nil once the runtime has been consumed.
func (p *Provider) Runtime() *goja.Runtime {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rt == nil {
		return nil
	}
	return p.rt.vm
}

// Bridge returns the bridge runtime without consuming it.
func (p *Provider) Bridge() (*Runtime, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rt, p.rt != nil
}

// Consume transfers ownership of the runtime to the caller.
func (p *Provider) Consume() (*Runtime, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.rt == nil {
		return nil, errors.NotInitialized(errors.PhaseAttach, "runtime provider")
	}
	rt := p.rt
	p.rt = nil
	return rt, nil
}
