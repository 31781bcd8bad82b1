// Package kernel defines the contract for the pure state-transition
// functions that own each simulated subsystem, and the registry that maps
// system names to them.
package kernel

import (
	"bytes"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// SystemState is one subsystem's state, as JSON-shaped values.
type SystemState = map[string]any

// Event is one input event handed to a kernel.
type Event = map[string]any

// Alert is a notification raised by a kernel alongside its new state.
// Merged alerts are stored in the world state as plain maps (see Map).
type Alert struct {
	System   string         `json:"system"`
	Severity string         `json:"severity,omitempty"`
	Message  string         `json:"message"`
	Data     map[string]any `json:"data,omitempty"`
}

// Map renders a as a JSON-shaped map.
func (a Alert) Map() map[string]any {
	m := map[string]any{"system": a.System, "message": a.Message}
	if a.Severity != "" {
		m["severity"] = a.Severity
	}
	if a.Data != nil {
		m["data"] = CloneState(a.Data)
	}
	return m
}

// Result is what a kernel returns. State is the subsystem's new state.
// Snapshot, when non-nil, replaces the whole world state instead.
type Result struct {
	State    SystemState `json:"state,omitempty"`
	Snapshot SystemState `json:"snapshot,omitempty"`
	Alerts   []Alert     `json:"alerts,omitempty"`
}

// Kernel is a pure state transition: it must not retain or mutate state,
// and identical inputs must give identical results.
type Kernel interface {
	Apply(state SystemState, events []Event) (Result, error)
}

// KernelFunc adapts a function to Kernel.
type KernelFunc func(state SystemState, events []Event) (Result, error)

// Apply calls f.
func (f KernelFunc) Apply(state SystemState, events []Event) (Result, error) {
	return f(state, events)
}

// Registry maps system names to kernels.
type Registry struct {
	mu      sync.RWMutex
	kernels map[string]Kernel
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{kernels: make(map[string]Kernel)}
}

// Register adds k under name. Names are unique.
func (r *Registry) Register(name string, k Kernel) error {
	if name == "" {
		return fmt.Errorf("register kernel: empty system name")
	}
	if k == nil {
		return fmt.Errorf("register kernel %q: nil kernel", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.kernels[name]; exists {
		return fmt.Errorf("register kernel %q: already registered", name)
	}
	r.kernels[name] = k
	return nil
}

// MustRegister is Register that panics on error, for static wiring.
func (r *Registry) MustRegister(name string, k Kernel) {
	if err := r.Register(name, k); err != nil {
		panic(err)
	}
}

// Lookup returns the kernel registered for name.
func (r *Registry) Lookup(name string) (Kernel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	k, ok := r.kernels[name]
	return k, ok
}

// Systems returns the registered names in sorted order.
func (r *Registry) Systems() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.kernels))
}

// CloneState returns a deep copy of s. Values that are not plain JSON
// shapes are copied through a JSON round trip.
func CloneState(s map[string]any) map[string]any {
	if s == nil {
		return nil
	}
	out := make(map[string]any, len(s))
	for k, v := range s {
		out[k] = cloneValue(v)
	}
	return out
}

// CloneEvents deep-copies an event list.
func CloneEvents(events []Event) []Event {
	if events == nil {
		return nil
	}
	out := make([]Event, len(events))
	for i, e := range events {
		out[i] = CloneState(e)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, float64, float32, int, int32, int64, uint, uint32, uint64, json.Number:
		return t
	case map[string]any:
		return CloneState(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	case []float64:
		return slices.Clone(t)
	case []int:
		return slices.Clone(t)
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, e := range t {
			out[i] = CloneState(e)
		}
		return out
	}
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return v
	}
	return out
}
