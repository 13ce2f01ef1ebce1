// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"sync"

	"github.com/google/uuid"
)

// RegistrationID identifies a single call to Registry.Register for later
// Unregister. Minted as a UUIDv7 so IDs sort roughly by creation time
// without a shared counter, the same way bassosimone's NewSpanID mints
// span identifiers.
type RegistrationID string

func newRegistrationID() RegistrationID {
	return RegistrationID(uuid.Must(uuid.NewV7()).String())
}

// Registration is an immutable (id, key, consumer) entry in the exact
// index. Registrations are never mutated after creation; Unregister
// removes entries from the snapshot, it never edits one in place.
type Registration struct {
	ID       RegistrationID
	Key      Key
	Consumer Consumer
}

type selectorEntry struct {
	ID       RegistrationID
	Selector Selector
}

// Registry is a concurrent key → ordered-registrations index plus a
// selector list, read without locking via copy-on-write snapshots.
//
// Writers (Register/Unregister) serialize on mu and replace the exact
// index map and selector slice wholesale; readers (Select) load the
// current snapshot pointers without ever blocking on a writer. A reader
// that started before a concurrent write either sees the registration
// fully or not at all — never partially — because maps and slices are
// replaced, not mutated in place.
type Registry struct {
	mu sync.Mutex // serializes writers only; readers never take it

	exact     atomicValue[map[Key][]Registration]
	selectors atomicValue[[]selectorEntry]

	cacheMu sync.Mutex
	cache   map[Key][]Consumer
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	r.exact.Store(map[Key][]Registration{})
	r.selectors.Store(nil)
	return r
}

// Register attaches consumer at the exact key k, appended after any
// existing registrations for k (insertion order is preserved by Select).
func (r *Registry) Register(k Key, c Consumer) RegistrationID {
	id := newRegistrationID()
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.exact.Load()
	next := make(map[Key][]Registration, len(old)+1)
	for key, regs := range old {
		next[key] = regs
	}
	next[k] = append(append([]Registration(nil), next[k]...), Registration{ID: id, Key: k, Consumer: c})
	r.exact.Store(next)
	r.invalidate()
	return id
}

// RegisterSelector appends a selector-based registration, evaluated for
// every key Select is subsequently called with.
func (r *Registry) RegisterSelector(sel Selector) RegistrationID {
	id := newRegistrationID()
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.selectors.Load()
	next := append(append([]selectorEntry(nil), old...), selectorEntry{ID: id, Selector: sel})
	r.selectors.Store(next)
	r.invalidate()
	return id
}

// Unregister removes every exact registration at key k. Reports whether
// anything was removed.
func (r *Registry) Unregister(k Key) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.exact.Load()
	if _, ok := old[k]; !ok {
		return false
	}
	next := make(map[Key][]Registration, len(old))
	for key, regs := range old {
		if key == k {
			continue
		}
		next[key] = regs
	}
	r.exact.Store(next)
	r.invalidate()
	return true
}

// UnregisterFunc removes every exact registration whose key satisfies
// pred, and every selector registration whose own Match func has the same
// code pointer as pred (the only implementation-defined equality two Go
// func values can support). Closures built from one function literal
// share a code pointer, so all selectors matched by such closures are
// removed together. Reports whether anything was removed.
func (r *Registry) UnregisterFunc(pred func(Key) bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := false

	old := r.exact.Load()
	next := make(map[Key][]Registration, len(old))
	for key, regs := range old {
		if pred(key) {
			removed = true
			continue
		}
		next[key] = regs
	}
	r.exact.Store(next)

	oldSel := r.selectors.Load()
	nextSel := make([]selectorEntry, 0, len(oldSel))
	predPtr := reflectFuncPointer(pred)
	for _, e := range oldSel {
		if predPtr != 0 && reflectFuncPointer(e.Selector.Match) == predPtr {
			removed = true
			continue
		}
		nextSel = append(nextSel, e)
	}
	r.selectors.Store(nextSel)

	if removed {
		r.invalidate()
	}
	return removed
}

// Select returns every registration currently matching k: exact matches
// first in insertion order, then every selector match's consumers (direct
// Selector.Consumer if Rewrite is nil, else the Rewriter's materialized
// consumers), in selector-registration order. Results may be served from
// a per-key cache invalidated on any Register/Unregister.
func (r *Registry) Select(k Key) []Consumer {
	r.cacheMu.Lock()
	if r.cache != nil {
		if hit, ok := r.cache[k]; ok {
			r.cacheMu.Unlock()
			return hit
		}
	}
	r.cacheMu.Unlock()

	var out []Consumer
	for _, reg := range r.exact.Load()[k] {
		out = append(out, reg.Consumer)
	}
	for _, e := range r.selectors.Load() {
		if !e.Selector.Match(k) {
			continue
		}
		if e.Selector.Rewrite != nil {
			derived := e.Selector.Rewrite(k)
			for _, c := range derived {
				out = append(out, c)
			}
			continue
		}
		if e.Selector.Consumer != nil {
			out = append(out, e.Selector.Consumer)
		}
	}

	r.cacheMu.Lock()
	if r.cache == nil {
		r.cache = make(map[Key][]Consumer)
	}
	r.cache[k] = out
	r.cacheMu.Unlock()
	return out
}

// UnregisterID removes the single registration id at exact key k, leaving
// any other registrations at k untouched. Reports whether it was found.
// Used by Pipe's Subscription.Unsubscribe, which must tear down exactly
// the registrations it created and nothing a sibling subscriber placed at
// the same key.
func (r *Registry) UnregisterID(k Key, id RegistrationID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := r.exact.Load()
	regs, ok := old[k]
	if !ok {
		return false
	}
	idx := -1
	for i, rg := range regs {
		if rg.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		return false
	}

	next := make(map[Key][]Registration, len(old))
	for key, v := range old {
		next[key] = v
	}
	newRegs := make([]Registration, 0, len(regs)-1)
	newRegs = append(newRegs, regs[:idx]...)
	newRegs = append(newRegs, regs[idx+1:]...)
	if len(newRegs) == 0 {
		delete(next, k)
	} else {
		next[k] = newRegs
	}
	r.exact.Store(next)
	r.invalidate()
	return true
}

// Len reports the total count of live exact-index registrations plus
// selector registrations. Diagnostic only; does not affect Select.
func (r *Registry) Len() int {
	n := 0
	for _, regs := range r.exact.Load() {
		n += len(regs)
	}
	return n + len(r.selectors.Load())
}

func (r *Registry) invalidate() {
	r.cacheMu.Lock()
	r.cache = nil
	r.cacheMu.Unlock()
}
