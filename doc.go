// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package firehose is a keyed, in-process event-dispatch engine with a
// declarative stream-pipeline composer built on top of it.
//
// Publishers emit (key, value) pairs through a Dispatcher; consumers
// register interest by exact key or by key-matching selector; the engine
// delivers each event to every matching consumer with controlled
// concurrency, bounded backpressure, and timer-driven temporal operators.
//
// # Quick Start
//
//	d := firehose.NewDispatcher(firehose.WithErrorHandler(func(err error) {
//	    log.Println(err)
//	}))
//	defer d.Shutdown()
//
//	k := firehose.NewKey("orders")
//	d.On(k, func(ctx context.Context, key firehose.Key, v any) {
//	    fmt.Println("received", v)
//	})
//	d.Notify(context.Background(), k, 42)
//
// # Pipelines
//
// A Pipe describes a chain of stream operators without touching a
// Dispatcher; Subscribe materializes it as a chain of keyed consumers:
//
//	sink := func(k firehose.Key, v any) { fmt.Println(v) }
//	p := firehose.NewPipe().
//	    Map(func(v any) any { return v.(int) + 1 }).
//	    Filter(func(v any) bool { return v.(int)%2 == 0 }).
//	    Consume(sink)
//
//	sub := p.Subscribe(d, k)
//	defer sub.Unsubscribe()
//
//	d.Notify(context.Background(), k, 3) // -> 4, even, sink sees 4
//
// Stateful operators (MapStateful, Scan) are free functions because Go
// methods cannot carry their own type parameters:
//
//	sums := firehose.Scan(firehose.NewPipe(), 0, func(s int, v any) int {
//	    return s + v.(int)
//	}).Consume(sink)
//
// # Reentrancy
//
// A Consumer that calls Dispatcher.Notify passing the same ctx it
// received runs the downstream chain synchronously, depth-first, on the
// calling worker — this is what makes a Map -> Map -> Consume chain
// observe its output in one pass rather than three round trips through
// the Ring Handoff. Pass context.Background() instead to force a
// top-level publish through the normal backpressure gate and worker pool.
//
// # Backpressure
//
// Notify parks on a bounded Ring Handoff when the worker pool is
// saturated, backing off adaptively via [code.hybscloud.com/iox]'s
// Backoff rather than a fixed sleep. Reentrant publishes bypass the gate
// entirely, which is what prevents an operator chain from deadlocking
// itself when the ring is full.
//
// # Timers
//
// Dispatcher.GetTimer lazily starts a TimingWheel (10ms tick, 512
// buckets by default) used internally by Pipe's Debounce/Throttle
// operators, and available directly for any caller that needs a
// cancellable one-shot.
//
// # Dependencies
//
// This package uses [code.hybscloud.com/atomix] for atomic primitives
// with explicit memory ordering, [code.hybscloud.com/spin] for bounded
// CAS-retry spinning, [code.hybscloud.com/iox] for semantic errors and
// adaptive backoff, and [github.com/google/uuid] for Registration and
// Timer Handle identity.
package firehose
