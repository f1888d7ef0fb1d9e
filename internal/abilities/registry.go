// Package abilities provides the registry of named side-effecting operations
// the execution loop dispatches tasks to, plus the built-in backends.
package abilities

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
)

// ErrNotFound indicates an ability name has no registered backend.
var ErrNotFound = errors.New("ability not found")

// ExecutionError wraps a failure from an ability backend.
type ExecutionError struct {
	// Ability is the name of the ability that failed.
	Ability string
	// Err is the underlying cause.
	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("ability %q: %v", e.Ability, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Func is a single ability backend. It receives the composed instruction
// and returns a text result.
type Func func(ctx context.Context, input string) (string, error)

// Invoker is the uniform call boundary the execution loop depends on.
type Invoker interface {
	Invoke(ctx context.Context, name string, instruction string) (string, error)
}

// Registry maps ability names to their backends. It is passed into the loop
// controller at construction rather than held as a process-wide global, so
// tests can run isolated registries in parallel.
type Registry struct {
	mu        sync.RWMutex
	abilities map[string]Func
}

// NewRegistry creates an empty ability registry.
func NewRegistry() *Registry {
	return &Registry{abilities: make(map[string]Func)}
}

// Register adds an ability backend under the given name, replacing any
// previous registration.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	log.Printf("[ability] registering %s", name)
	r.abilities[name] = fn
}

// Names returns the registered ability names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.abilities))
	for name := range r.abilities {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Invoke dispatches an instruction to the named ability. It returns
// ErrNotFound when the name is unregistered and an *ExecutionError wrapping
// the cause when the backend fails.
func (r *Registry) Invoke(ctx context.Context, name string, instruction string) (string, error) {
	r.mu.RLock()
	fn, ok := r.abilities[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}

	output, err := fn(ctx, instruction)
	if err != nil {
		return "", &ExecutionError{Ability: name, Err: err}
	}
	return output, nil
}
