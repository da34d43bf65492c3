// Package registry owns the set of registered scalar functions and the
// batch evaluation engine that drives them.
//
// Functions are declared as a Function value, compiled once into an
// immutable ScalarFunction (schemas and codecs derived from the SQL type
// descriptors), and added to a Registry. Registration-time failures keep
// the function unreachable; after registration no locking is needed to
// evaluate, since compiled functions never change.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/apache/arrow-go/v18/arrow"
)

// Standard errors returned by the registry package.
var (
	// ErrConfig indicates an invalid function declaration
	// (e.g. SkipNull with a non-nullable return type).
	ErrConfig = errors.New("invalid function config")

	// ErrDuplicateFunction indicates a name collision at registration.
	ErrDuplicateFunction = errors.New("function already registered")

	// ErrNotFound indicates a lookup for an unknown function name.
	ErrNotFound = errors.New("function not found")

	// ErrEvaluation wraps failures raised while evaluating a batch,
	// annotated with the function name and, where known, the row index.
	ErrEvaluation = errors.New("function evaluation failed")
)

// Registry owns all registered functions for the server's lifetime.
type Registry struct {
	mu     sync.RWMutex
	funcs  map[string]*ScalarFunction
	logger *slog.Logger
}

// New creates an empty registry. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		funcs:  make(map[string]*ScalarFunction),
		logger: logger,
	}
}

// Add compiles the declared function and registers it under its name.
// Returns the compiled function so callers can inspect the derived schemas
// and signature.
func (r *Registry) Add(def Function) (*ScalarFunction, error) {
	fn, err := compile(def, r.logger)
	if err != nil {
		return nil, err
	}
	if err := r.AddCompiled(fn); err != nil {
		return nil, err
	}
	return fn, nil
}

// AddCompiled registers an already compiled function.
func (r *Registry) AddCompiled(fn *ScalarFunction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.funcs[fn.Name()]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFunction, fn.Name())
	}
	r.funcs[fn.Name()] = fn

	r.logger.Info("registered function",
		"name", fn.Name(),
		"signature", fn.Signature(),
	)
	return nil
}

// Lookup returns the compiled function registered under name.
func (r *Registry) Lookup(name string) (*ScalarFunction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	fn, ok := r.funcs[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return fn, nil
}

// Names returns all registered function names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DiscoverySchema returns the schema advertised for client-side validation:
// the function's input fields followed by its single output field.
func (r *Registry) DiscoverySchema(name string) (*arrow.Schema, error) {
	fn, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return fn.DiscoverySchema(), nil
}
