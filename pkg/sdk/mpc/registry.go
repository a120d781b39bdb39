package mpc

import (
	"sort"
	"sync"
)

// Classification tags an input as secret-shared or publicly visible to all
// nodes.
type Classification int

const (
	// Secret inputs are split into per-node shares; no node ever sees the
	// clear value. Legacy private inputs carry this classification.
	Secret Classification = iota
	// Public inputs are sent to every node in the clear.
	Public
)

func (c Classification) String() string {
	if c == Public {
		return "public"
	}
	return "secret"
}

type inputEntry struct {
	value interface{}
	class Classification
}

// InputRegistry maps input names to values with a secrecy classification.
// It is owned by the session and mutated only through the session's setter
// methods. Setting an existing name replaces both value and classification.
type InputRegistry struct {
	mu      sync.RWMutex
	entries map[string]inputEntry
}

func newInputRegistry() *InputRegistry {
	return &InputRegistry{entries: make(map[string]inputEntry)}
}

func (r *InputRegistry) set(name string, value interface{}, class Classification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[name] = inputEntry{value: value, class: class}
}

func (r *InputRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// snapshot returns independent secret and public views of the current
// registry contents. Each execution consumes one snapshot; later registry
// mutations do not affect an execution already in flight.
func (r *InputRegistry) snapshot() (secret, public map[string]interface{}) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	secret = make(map[string]interface{})
	public = make(map[string]interface{})
	for name, e := range r.entries {
		if e.class == Public {
			public[name] = e.value
		} else {
			secret[name] = e.value
		}
	}
	return secret, public
}

// names returns the registered input names partitioned by classification,
// sorted for stable output.
func (r *InputRegistry) names() (secret, public []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, e := range r.entries {
		if e.class == Public {
			public = append(public, name)
		} else {
			secret = append(secret, name)
		}
	}
	sort.Strings(secret)
	sort.Strings(public)
	return secret, public
}
