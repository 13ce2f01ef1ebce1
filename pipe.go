// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"context"
	"sync"
	"time"
)

// pipeStage is one link in a Pipe: build materializes the Consumer that
// runs at sourceKey for a given materialization, publishing downstream to
// destKey — unless terminal, in which case destKey is never used.
type pipeStage struct {
	terminal bool
	build    func(d *Dispatcher, sourceKey, destKey Key) Consumer
}

// Pipe is an immutable, persistent ordered sequence of stream suppliers.
// Every operator method returns a new Pipe extending the sequence; the
// receiver is left unchanged, so a Pipe value can be shared and extended
// from multiple call sites without surprising a sibling.
type Pipe struct {
	stages []pipeStage
}

// NewPipe returns an empty Pipe.
func NewPipe() *Pipe {
	return &Pipe{}
}

func (p *Pipe) extend(build func(d *Dispatcher, sourceKey, destKey Key) Consumer) *Pipe {
	next := make([]pipeStage, len(p.stages), len(p.stages)+1)
	copy(next, p.stages)
	next = append(next, pipeStage{build: build})
	return &Pipe{stages: next}
}

// Map publishes f(v) downstream under the stage's derived key.
func (p *Pipe) Map(f func(v any) any) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		return func(ctx context.Context, _ Key, v any) {
			d.Notify(ctx, destKey, f(v))
		}
	})
}

// MapStateful owns an Atom[S] seeded with init; on each event it computes
// f(atom, v) with read/mutate access to the atom via Atom.Swap, then
// publishes the result downstream. A free function, not a *Pipe method,
// because Go methods cannot introduce their own type parameters.
func MapStateful[S any](p *Pipe, init S, f func(atom *Atom[S], v any) any) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		atom := NewAtom(init)
		return func(ctx context.Context, _ Key, v any) {
			d.Notify(ctx, destKey, f(atom, v))
		}
	})
}

// Scan owns an Atom[S] seeded with init; on each event it computes
// s' = f(s, v), installs s' via Atom.Swap, and publishes s' downstream.
func Scan[S any](p *Pipe, init S, f func(s S, v any) S) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		atom := NewAtom(init)
		return func(ctx context.Context, _ Key, v any) {
			next := atom.Swap(func(s S) S { return f(s, v) })
			d.Notify(ctx, destKey, next)
		}
	})
}

// Filter publishes v downstream only when pred(v) holds.
func (p *Pipe) Filter(pred func(v any) bool) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		return func(ctx context.Context, _ Key, v any) {
			if pred(v) {
				d.Notify(ctx, destKey, v)
			}
		}
	})
}

// Slide owns an Atom[[]any] initialized empty. On each event it appends v,
// applies drop to the result, installs the dropped sequence, and publishes
// it downstream — a sliding window whose width and eviction policy are
// entirely up to drop.
func (p *Pipe) Slide(drop func(seq []any) []any) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		atom := NewAtom[[]any](nil)
		return func(ctx context.Context, _ Key, v any) {
			next := atom.Swap(func(seq []any) []any {
				appended := append(append([]any(nil), seq...), v)
				return drop(appended)
			})
			d.Notify(ctx, destKey, next)
		}
	})
}

// Partition owns an Atom[[]any] initialized empty. On each event it
// appends v; if emitWhenFull reports the resulting sequence full, that
// sequence is published downstream and the atom resets to empty.
// Append-test-emit-reset happens inside the Atom.Swap transition, so the
// decision is atomic with respect to concurrent events on the same key —
// the downstream publish itself is deferred until after the swap commits,
// exactly as spec.md §4.6 requires.
func (p *Pipe) Partition(emitWhenFull func(seq []any) bool) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		atom := NewAtom[[]any](nil)
		return func(ctx context.Context, _ Key, v any) {
			var toEmit []any
			atom.Swap(func(seq []any) []any {
				appended := append(append([]any(nil), seq...), v)
				if emitWhenFull(appended) {
					toEmit = appended
					return nil
				}
				toEmit = nil
				return appended
			})
			if toEmit != nil {
				d.Notify(ctx, destKey, toEmit)
			}
		}
	})
}

// Debounce owns an Atom[any] (last-seen) and a pending Timer Handle. Each
// event overwrites last-seen; if no handle is currently pending, one is
// scheduled via the Dispatcher's TimingWheel that, on firing, publishes
// last-seen downstream and clears the pending handle. Events inside the
// window update last-seen without rescheduling, so emission happens once
// per window: period after the first event that opened it, whether or
// not events are still arriving.
func (p *Pipe) Debounce(period time.Duration) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		last := NewAtom[any](nil)
		var mu sync.Mutex
		var pending *Handle
		return func(_ context.Context, _ Key, v any) {
			last.Swap(func(any) any { return v })
			mu.Lock()
			if pending == nil {
				pending = d.GetTimer().Submit(func() {
					mu.Lock()
					pending = nil
					mu.Unlock()
					d.Notify(context.Background(), destKey, last.Deref())
				}, period)
			}
			mu.Unlock()
		}
	})
}

// Throttle owns the same Atom[any]/Handle pair as Debounce but reschedules
// on every event: it cancels any pending handle, overwrites last-seen, and
// schedules a fresh firing. Emission happens once, after the stream has
// gone quiet for period; a stream that never pauses for period never
// emits. Debounce, by contrast, emits period after the first event of
// each window even while events keep arriving.
func (p *Pipe) Throttle(period time.Duration) *Pipe {
	return p.extend(func(d *Dispatcher, _, destKey Key) Consumer {
		last := NewAtom[any](nil)
		var mu sync.Mutex
		var pending *Handle
		return func(_ context.Context, _ Key, v any) {
			last.Swap(func(any) any { return v })
			mu.Lock()
			if pending != nil {
				pending.Cancel()
			}
			pending = d.GetTimer().Submit(func() {
				d.Notify(context.Background(), destKey, last.Deref())
			}, period)
			mu.Unlock()
		}
	})
}

// Consume registers a terminal consumer: it runs at the pipeline's last
// internal key and has no downstream destination.
func (p *Pipe) Consume(consumer func(k Key, v any)) *Pipe {
	next := make([]pipeStage, len(p.stages), len(p.stages)+1)
	copy(next, p.stages)
	next = append(next, pipeStage{
		terminal: true,
		build: func(_ *Dispatcher, _, _ Key) Consumer {
			return func(_ context.Context, k Key, v any) { consumer(k, v) }
		},
	})
	return &Pipe{stages: next}
}

// Subscription is the handle Pipe.Subscribe returns: it remembers every
// registration materialization created so Unsubscribe can tear down
// exactly those and nothing else sharing a stage's derived key.
type Subscription struct {
	dispatcher *Dispatcher
	ids        []RegistrationID
	keys       []Key
}

// Unsubscribe removes every registration this materialization created.
func (s *Subscription) Unsubscribe() {
	for i, id := range s.ids {
		s.dispatcher.registry.UnregisterID(s.keys[i], id)
	}
}

// Subscribe materializes the pipeline onto d starting at sourceKey: each
// link is assigned a fresh internal destination key (sourceKey.Clone(),
// carrying a unique lineage tag), and the link's consumer is registered at
// its own stage key, publishing into the next stage's key. The terminal
// stage is registered with no further destination.
func (p *Pipe) Subscribe(d *Dispatcher, sourceKey Key) *Subscription {
	ids := make([]RegistrationID, 0, len(p.stages))
	keys := make([]Key, 0, len(p.stages))

	cur := sourceKey
	for _, stage := range p.stages {
		var destKey Key
		if !stage.terminal {
			destKey = cur.Clone()
		}
		consumer := stage.build(d, cur, destKey)
		id := d.On(cur, consumer)
		ids = append(ids, id)
		keys = append(keys, cur)
		cur = destKey
	}

	return &Subscription{dispatcher: d, ids: ids, keys: keys}
}
