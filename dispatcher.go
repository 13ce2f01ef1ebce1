// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"context"
	"sync"
	"time"

	"code.hybscloud.com/atomix"
	"code.hybscloud.com/iox"
)

type reentrantKeyType struct{}

var reentrantKey reentrantKeyType

func withReentrant(ctx context.Context) context.Context {
	return context.WithValue(ctx, reentrantKey, true)
}

func isReentrant(ctx context.Context) bool {
	v, _ := ctx.Value(reentrantKey).(bool)
	return v
}

// Stats is a read-only snapshot of a Dispatcher's lifetime counters.
// Purely observational — it never changes Notify/dispatch behavior.
type Stats struct {
	Dispatched      uint64 // notify calls delivered to at least one consumer
	Dropped         uint64 // notify calls where Select returned no match
	ConsumerFailure uint64 // consumer panics routed to ErrorHandler
}

// Dispatcher is the Firehose of spec.md §4.5: it publishes events, enforces
// backpressure via its RingHandoff, routes through a shared Registry, and
// runs consumers on a fixed worker pool — except during reentrant
// dispatch, where the calling worker runs the downstream consumer
// synchronously. See Notify for how ctx carries that distinction.
type Dispatcher struct {
	registry *Registry
	ring     *RingHandoff

	errHandler ErrorHandler
	workers    int
	workerWG   sync.WaitGroup
	stopped    atomix.Bool

	wheelOnce sync.Once
	wheel     *TimingWheel
	wheelTick time.Duration
	wheelSize int

	dispatched      atomix.Uint64
	dropped         atomix.Uint64
	consumerFailure atomix.Uint64
}

// NewDispatcher starts a Dispatcher with a fresh Registry and its own
// worker pool and Ring Handoff, per the Config built from DefaultConfig
// and opts. Panics if the resulting Config has Workers < 1 or a nil
// ErrorHandler.
func NewDispatcher(opts ...Option) *Dispatcher {
	return newDispatcher(NewRegistry(), opts...)
}

func newDispatcher(reg *Registry, opts ...Option) *Dispatcher {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.Workers < 1 {
		panic("firehose: Workers must be >= 1")
	}
	if cfg.ErrorHandler == nil {
		panic("firehose: ErrorHandler is required")
	}

	d := &Dispatcher{
		registry:   reg,
		ring:       NewRingHandoff(cfg.RingCapacity),
		errHandler: cfg.ErrorHandler,
		workers:    cfg.Workers,
		wheelTick:  cfg.WheelTick,
		wheelSize:  cfg.WheelSize,
	}
	for i := 0; i < cfg.Workers; i++ {
		d.workerWG.Add(1)
		go d.workerLoop()
	}
	return d
}

func (d *Dispatcher) workerLoop() {
	defer d.workerWG.Done()
	bo := iox.Backoff{}
	for {
		t, ok := d.ring.Take()
		if !ok {
			if d.stopped.LoadAcquire() {
				return
			}
			bo.Wait()
			continue
		}
		bo.Reset()
		t()
		d.ring.ReleaseSlot()
	}
}

// Notify publishes v under key k. Every registration currently matching k
// observes (k, v) exactly once, in Registry.Select order, unless a
// consumer panics — recovered, routed to the ErrorHandler as a
// ConsumerFailure, and dispatch continues with the remaining consumers.
//
// If ctx was itself produced by a Consumer running on one of this
// Dispatcher's workers (i.e. this call is reentrant — a consumer
// publishing further events during its own invocation), Notify bypasses
// both the backpressure gate and the Ring Handoff and dispatches
// synchronously on the calling goroutine: this is what gives operator
// chains their depth-first semantics and prevents deadlock when the ring
// is saturated by a reentrant publish. Top-level callers should pass
// context.Background() (or any ctx without the dispatcher's internal
// marker) to go through the gate and worker pool normally.
func (d *Dispatcher) Notify(ctx context.Context, k Key, v any) error {
	if k.Identity == nil {
		return &PreconditionViolation{Reason: "nil key identity"}
	}
	if v == nil {
		return &PreconditionViolation{Reason: "nil value"}
	}

	if isReentrant(ctx) {
		d.dispatch(ctx, k, v)
		return nil
	}

	bo := iox.Backoff{}
	reported := false
	for !d.ring.ClaimSlot() {
		select {
		case <-ctx.Done():
			if !reported {
				reported = true
				d.errHandler(&BackpressureInterruption{Key: k})
			}
		default:
		}
		bo.Wait()
	}

	child := withReentrant(ctx)
	d.ring.Submit(func() {
		defer func() {
			if r := recover(); r != nil {
				d.errHandler(&DispatchFailure{Key: k, Cause: r})
			}
		}()
		d.dispatch(child, k, v)
	})
	return nil
}

func (d *Dispatcher) dispatch(ctx context.Context, k Key, v any) {
	consumers := d.registry.Select(k)
	if len(consumers) == 0 {
		d.dropped.AddAcqRel(1)
		return
	}
	for _, c := range consumers {
		d.invoke(ctx, c, k, v)
	}
	d.dispatched.AddAcqRel(1)
}

func (d *Dispatcher) invoke(ctx context.Context, c Consumer, k Key, v any) {
	defer func() {
		if r := recover(); r != nil {
			d.consumerFailure.AddAcqRel(1)
			d.errHandler(&ConsumerFailure{Key: k, Cause: r})
		}
	}()
	c(ctx, k, v)
}

// On registers consumer at the exact key k.
func (d *Dispatcher) On(k Key, c Consumer) RegistrationID {
	return d.registry.Register(k, c)
}

// OnSelector registers a selector-based consumer.
func (d *Dispatcher) OnSelector(sel Selector) RegistrationID {
	return d.registry.RegisterSelector(sel)
}

// Unregister removes every exact registration at key k.
func (d *Dispatcher) Unregister(k Key) bool {
	return d.registry.Unregister(k)
}

// UnregisterFunc removes every registration (exact or selector) matching
// pred, per Registry.UnregisterFunc.
func (d *Dispatcher) UnregisterFunc(pred func(Key) bool) bool {
	return d.registry.UnregisterFunc(pred)
}

// GetTimer lazily constructs and returns this Dispatcher's TimingWheel on
// first access, thread-safe across concurrent callers.
func (d *Dispatcher) GetTimer() *TimingWheel {
	d.wheelOnce.Do(func() {
		d.wheel = NewTimingWheel(d.wheelTick, d.wheelSize, d.errHandler)
	})
	return d.wheel
}

// Fork returns a new Dispatcher sharing this one's Registry but with its
// own Ring Handoff and worker pool, configured by opts over this
// Dispatcher's ErrorHandler and the library defaults for everything else
// not explicitly overridden.
func (d *Dispatcher) Fork(opts ...Option) *Dispatcher {
	merged := append([]Option{WithErrorHandler(d.errHandler)}, opts...)
	return newDispatcher(d.registry, merged...)
}

// Shutdown signals the Ring Handoff to drain and waits for in-flight
// workers to finish their current task and exit. Safe to call more than
// once; a second call simply observes workers already stopped.
func (d *Dispatcher) Shutdown() {
	d.ring.Shutdown()
	d.stopped.StoreRelease(true)
	d.workerWG.Wait()
	if d.wheel != nil {
		d.wheel.Stop()
	}
}

// Stats returns a snapshot of this Dispatcher's lifetime counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		Dispatched:      d.dispatched.LoadAcquire(),
		Dropped:         d.dropped.LoadAcquire(),
		ConsumerFailure: d.consumerFailure.LoadAcquire(),
	}
}

// Registry returns the Dispatcher's backing Registry, primarily so a
// Pipe's subscribe can register stage consumers directly.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}
