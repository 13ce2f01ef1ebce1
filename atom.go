// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"reflect"
	"sync/atomic"
)

// Atom is a single-slot compare-and-swap cell holding a value of type T.
// It is the state-holding primitive every stateful Pipe stage (map with a
// builder, scan, slide, partition, debounce, throttle) owns privately.
//
// Unlike the fixed-width counters elsewhere in this module — which use
// [code.hybscloud.com/atomix] for its explicit load/store/CAS memory
// ordering over uint64/int64/bool — Atom holds an arbitrary T. atomix's
// published API covers scalar and pointer-sized atomics only, not a
// generic CAS cell over arbitrary T, so Atom is built directly on the
// standard library's atomic.Pointer[T]: the narrowest stdlib primitive
// that gives CAS over a boxed T, with the same acquire/release semantics
// atomix documents for its own types.
type Atom[T any] struct {
	p atomic.Pointer[T]
}

// NewAtom returns an Atom initialized to init.
func NewAtom[T any](init T) *Atom[T] {
	a := &Atom[T]{}
	v := init
	a.p.Store(&v)
	return a
}

// Deref returns the current value without synchronization beyond the
// atomic load — callers get an eventually-consistent view, never a torn
// one.
func (a *Atom[T]) Deref() T {
	return *a.p.Load()
}

// Swap applies f to the current value and installs the result, retrying
// under contention until its compare-and-swap succeeds, and returns the
// value it installed. f may be called more than once if other goroutines
// swap concurrently; it must be a pure function of its argument.
func (a *Atom[T]) Swap(f func(T) T) T {
	for {
		oldPtr := a.p.Load()
		next := f(*oldPtr)
		nextPtr := &next
		if a.p.CompareAndSwap(oldPtr, nextPtr) {
			return next
		}
	}
}

// atomicValue is a minimal generic copy-on-write slot used by Registry to
// publish whole-snapshot replacements (map/slice) without ever blocking a
// reader on a writer. It is a thin rename of atomic.Pointer[T] kept local
// so Registry's intent — "swap in a new immutable snapshot" — reads
// distinctly from Atom's "transition the current value" intent, even
// though both ultimately rest on the same stdlib primitive.
type atomicValue[T any] struct {
	p atomic.Pointer[T]
}

func (v *atomicValue[T]) Load() T {
	p := v.p.Load()
	if p == nil {
		var zero T
		return zero
	}
	return *p
}

func (v *atomicValue[T]) Store(val T) {
	v.p.Store(&val)
}

// reflectFuncPointer returns the code pointer backing a func value, used
// by Registry.UnregisterFunc to test "definitional equality" between two
// predicate funcs the only way Go allows: same underlying code pointer
// (closures of one function literal compare equal regardless of captures).
// Returns 0 for a nil func.
func reflectFuncPointer(f any) uintptr {
	if f == nil {
		return 0
	}
	v := reflect.ValueOf(f)
	if v.Kind() != reflect.Func || v.IsNil() {
		return 0
	}
	return v.Pointer()
}
