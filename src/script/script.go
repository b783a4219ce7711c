// Package script defines the contract task scripts implement and the
// registry the executor resolves them from. Definitions reference a
// script by identifier; the registry maps identifiers to factories.
package script

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/leeeeey/TaskCenter/src/model"
)

// ErrScriptNotFound is returned when a definition references an
// unregistered script identifier.
var ErrScriptNotFound = errors.New("script not found")

// Script is one task's executable body plus its outcome callbacks.
// RunTask failure is signalled by its error; the context is cancelled when
// the batch is abandoned past its run deadline, but scripts are not
// required to honour it mid-call.
type Script interface {
	RunTask(ctx context.Context, interval model.Interval, scriptArgs, taskTagName string) error
	RunSuccessCallback(interval model.Interval, taskBatchName string) error
	RunFailureCallback(interval model.Interval, taskBatchName string, runErr error) error
}

// Factory produces a fresh Script per batch execution, so scripts may hold
// per-run state without synchronization.
type Factory func() Script

// Registry maps script identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register binds a script identifier to a factory. Re-registering a name
// replaces the previous factory.
func (r *Registry) Register(name string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = f
}

// Resolve instantiates the script registered under name.
func (r *Registry) Resolve(name string) (Script, error) {
	r.mu.RLock()
	f, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrScriptNotFound)
	}
	return f(), nil
}

// Names returns the registered identifiers, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Base provides no-op callbacks so scripts only implement RunTask.
type Base struct{}

// RunSuccessCallback does nothing.
func (Base) RunSuccessCallback(interval model.Interval, taskBatchName string) error {
	return nil
}

// RunFailureCallback does nothing.
func (Base) RunFailureCallback(interval model.Interval, taskBatchName string, runErr error) error {
	return nil
}

// Func adapts a plain function into a Script with no-op callbacks.
type Func func(ctx context.Context, interval model.Interval, scriptArgs, taskTagName string) error

// RunTask invokes the function.
func (f Func) RunTask(ctx context.Context, interval model.Interval, scriptArgs, taskTagName string) error {
	return f(ctx, interval, scriptArgs, taskTagName)
}

// RunSuccessCallback does nothing.
func (f Func) RunSuccessCallback(interval model.Interval, taskBatchName string) error {
	return nil
}

// RunFailureCallback does nothing.
func (f Func) RunFailureCallback(interval model.Interval, taskBatchName string, runErr error) error {
	return nil
}
