package registry

import (
	"context"
	"sync"
	"sync/atomic"
)

// Memory is an in-process Registry.
//
// Every write publishes a new immutable snapshot with a single atomic store,
// so readers never lock and always observe a complete snapshot.
type Memory struct {
	m        sync.Mutex   // serializes writers
	snapshot atomic.Value // *snapshot
}

type snapshot struct {
	generation uint64
	entries    map[Key]string
}

var emptySnapshot = &snapshot{}

// Get returns the value stored under k.
func (r *Memory) Get(_ context.Context, k Key) (string, bool, error) {
	v, ok := r.load().entries[k]
	return v, ok, nil
}

// Set stores value under k.
func (r *Memory) Set(_ context.Context, k Key, value string) error {
	r.m.Lock()
	defer r.m.Unlock()

	r.publish(func(entries map[Key]string) {
		entries[k] = value
	})

	return nil
}

// Clear removes every value in the given namespace. Values in other
// namespaces are carried over to the new snapshot unchanged.
func (r *Memory) Clear(_ context.Context, ns Namespace) error {
	r.m.Lock()
	defer r.m.Unlock()

	r.publish(func(entries map[Key]string) {
		for k := range entries {
			if k.Namespace == ns {
				delete(entries, k)
			}
		}
	})

	return nil
}

// Entries returns every value in the given namespace.
func (r *Memory) Entries(_ context.Context, ns Namespace) (map[string]string, error) {
	result := map[string]string{}

	for k, v := range r.load().entries {
		if k.Namespace == ns {
			result[k.Name] = v
		}
	}

	return result, nil
}

// Generation returns the number of snapshots published so far.
func (r *Memory) Generation() uint64 {
	return r.load().generation
}

// Len returns the number of values in the given namespace.
func (r *Memory) Len(ns Namespace) int {
	n := 0
	for k := range r.load().entries {
		if k.Namespace == ns {
			n++
		}
	}
	return n
}

func (r *Memory) load() *snapshot {
	if s, ok := r.snapshot.Load().(*snapshot); ok {
		return s
	}
	return emptySnapshot
}

// publish builds the next snapshot from a copy of the current one. The caller
// must hold r.m.
func (r *Memory) publish(mutate func(map[Key]string)) {
	current := r.load()

	entries := make(map[Key]string, len(current.entries)+1)
	for k, v := range current.entries {
		entries[k] = v
	}

	mutate(entries)

	r.snapshot.Store(&snapshot{
		generation: current.generation + 1,
		entries:    entries,
	})
}
