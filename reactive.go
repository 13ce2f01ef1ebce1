// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose

import (
	"context"
	"math"

	"code.hybscloud.com/atomix"
)

// KV is a (key, value) pair crossing the Reactive-Streams boundary.
type KV struct {
	K Key
	V any
}

// StreamSubscription is the pull-side handle a Publisher hands a
// Subscriber via OnSubscribe: Request signals additional demand, Cancel
// withdraws interest. Both are safe to call from any goroutine.
type StreamSubscription interface {
	Request(n int64)
	Cancel()
}

// Subscriber is a pull-based consumer of (Key, value) events, the
// external-pull side of the Reactive-Streams adapter in spec.md §4.7.
type Subscriber interface {
	OnSubscribe(sub StreamSubscription)
	OnNext(event KV)
	OnError(err error)
	OnComplete()
}

// Publisher is a source of (Key, value) events a Subscriber can attach to.
type Publisher interface {
	Subscribe(sub Subscriber)
}

// MakeSubscriber returns a Subscriber that republishes every received
// event into d via Notify, then requests one more — a bridge from an
// external pull-based source into the Dispatcher. OnError forwards to d's
// configured ErrorHandler; OnComplete cancels the upstream subscription.
func MakeSubscriber(d *Dispatcher) Subscriber {
	return &dispatchSubscriber{d: d}
}

type dispatchSubscriber struct {
	d   *Dispatcher
	sub StreamSubscription
}

func (s *dispatchSubscriber) OnSubscribe(sub StreamSubscription) {
	s.sub = sub
	sub.Request(1)
}

func (s *dispatchSubscriber) OnNext(event KV) {
	s.d.Notify(context.Background(), event.K, event.V)
	if s.sub != nil {
		s.sub.Request(1)
	}
}

func (s *dispatchSubscriber) OnError(err error) {
	if s.d.errHandler != nil {
		s.d.errHandler(err)
	}
}

func (s *dispatchSubscriber) OnComplete() {
	if s.sub != nil {
		s.sub.Cancel()
	}
}

// MakePublisher returns a Publisher that, on Subscribe, registers a
// consumer for key and forwards matching events to the subscriber while
// honouring its requested demand: a saturating counter decremented per
// delivered event and incremented by Request, with math.MaxInt64 treated
// as unbounded (the Reactive-Streams convention for Long.MAX_VALUE).
// Cancellation unregisters the consumer.
func MakePublisher(d *Dispatcher, key Key) Publisher {
	return &dispatchPublisher{d: d, key: key}
}

type dispatchPublisher struct {
	d   *Dispatcher
	key Key
}

func (p *dispatchPublisher) Subscribe(sub Subscriber) {
	var demand atomix.Int64
	var cancelled atomix.Bool

	id := p.d.On(p.key, func(_ context.Context, k Key, v any) {
		for {
			cur := demand.LoadAcquire()
			if cur <= 0 {
				return
			}
			if cur == math.MaxInt64 {
				sub.OnNext(KV{K: k, V: v})
				return
			}
			if demand.CompareAndSwapAcqRel(cur, cur-1) {
				sub.OnNext(KV{K: k, V: v})
				return
			}
		}
	})

	sub.OnSubscribe(&dispatchSubscription{
		request: func(n int64) {
			if n <= 0 {
				sub.OnError(&PreconditionViolation{Reason: "non-positive demand"})
				return
			}
			for {
				cur := demand.LoadAcquire()
				next := cur + n
				if cur > 0 && n > math.MaxInt64-cur {
					next = math.MaxInt64
				}
				if demand.CompareAndSwapAcqRel(cur, next) {
					return
				}
			}
		},
		cancel: func() {
			if cancelled.CompareAndSwapAcqRel(false, true) {
				p.d.registry.UnregisterID(p.key, id)
			}
		},
	})
}

type dispatchSubscription struct {
	request func(int64)
	cancel  func()
}

func (s *dispatchSubscription) Request(n int64) { s.request(n) }
func (s *dispatchSubscription) Cancel()         { s.cancel() }
