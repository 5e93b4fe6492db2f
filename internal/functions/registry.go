// Package functions hosts the stateless HTTP functions: the weekly league
// trigger, the league processing entry point, the code execution proxy
// and admin secret verification.
package functions

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Procedure is a named server-side routine callable by name.
type Procedure func(ctx context.Context) (interface{}, error)

// Registry maps procedure names to their implementations.
type Registry struct {
	mu    sync.RWMutex
	procs map[string]Procedure
}

func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Procedure)}
}

// Register installs fn under name, replacing any previous registration.
func (r *Registry) Register(name string, fn Procedure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.procs[name] = fn
}

// Call runs the procedure registered under name.
func (r *Registry) Call(ctx context.Context, name string) (interface{}, error) {
	r.mu.RLock()
	fn, ok := r.procs[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("procedure %q is not registered", name)
	}
	return fn(ctx)
}

// Names lists the registered procedures.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.procs))
	for name := range r.procs {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
