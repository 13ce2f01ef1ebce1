// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"context"

	"code.hybscloud.com/atomix"
)

// Key identifies a route through the dispatcher. Application code supplies
// the Identity; the engine attaches a lineage tag whenever a pipeline stage
// clones a key for its downstream destination.
//
// Two Keys are equal (and therefore collide in the Registry's exact index)
// iff both Identity and lineage match. A freshly cloned Key always carries
// a lineage distinct from its parent and from every sibling clone, so a
// pipeline stage's destination key never shadows the key it was derived
// from. Identity must be a comparable value; using a non-comparable
// Identity panics on first exact-index insert, the same way a Go map does.
type Key struct {
	Identity any
	lineage  uint64
}

// NewKey wraps an application identity as a root Key (lineage zero).
func NewKey(identity any) Key {
	return Key{Identity: identity}
}

var keyLineage atomix.Uint64

// Clone derives a fresh destination key from k. The returned Key shares k's
// Identity but carries a lineage tag unique across the process, so it never
// compares equal to k or to any other clone. Pipeline stages call Clone
// once per materialized link and reuse the resulting value as both the
// registration key and the notify key for that link — the supplier that
// creates the key is the sole source of truth for its value.
func (k Key) Clone() Key {
	return Key{Identity: k.Identity, lineage: keyLineage.AddAcqRel(1)}
}

// SelectorFunc reports whether a Key matches a selector-based registration.
type SelectorFunc func(Key) bool

// Rewriter materializes, for a matched Key, the derived keys and consumers
// a selector registration should deliver to. Called on demand by
// Registry.Select — never eagerly, and never cached across calls with
// different source keys.
type Rewriter func(Key) map[Key]Consumer

// Selector pairs a predicate with an optional Rewriter. A Selector with a
// nil Rewriter simply attaches Consumer directly at every key it matches.
type Selector struct {
	Match    SelectorFunc
	Rewrite  Rewriter
	Consumer Consumer
}

// Consumer receives a dispatched event. Implementations must be safe to
// invoke from any worker goroutine and may themselves publish further
// events via Dispatcher.Notify, passing ctx through unchanged — ctx is how
// the dispatcher recognizes a republish issued from inside a consumer
// already running on a worker, and routes it through the depth-first,
// reentrant path instead of back through the Ring Handoff. See
// Dispatcher.Notify.
type Consumer func(ctx context.Context, k Key, v any)
