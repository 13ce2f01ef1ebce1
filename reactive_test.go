// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package firehose_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"code.hybscloud.com/firehose"
)

type recordingSubscriber struct {
	mu        sync.Mutex
	sub       firehose.StreamSubscription
	events    []firehose.KV
	errs      []error
	completed bool
	nextCh    chan struct{}
}

func newRecordingSubscriber() *recordingSubscriber {
	return &recordingSubscriber{nextCh: make(chan struct{}, 64)}
}

func (r *recordingSubscriber) OnSubscribe(sub firehose.StreamSubscription) {
	r.mu.Lock()
	r.sub = sub
	r.mu.Unlock()
}

func (r *recordingSubscriber) OnNext(event firehose.KV) {
	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
	r.nextCh <- struct{}{}
}

func (r *recordingSubscriber) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
}

func (r *recordingSubscriber) OnComplete() {
	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()
}

func TestPublisherDeliversWithinDemand(t *testing.T) {
	d := newTestDispatcher(t)
	k := firehose.NewKey("orders")

	sub := newRecordingSubscriber()
	firehose.MakePublisher(d, k).Subscribe(sub)

	sub.mu.Lock()
	stream := sub.sub
	sub.mu.Unlock()
	if stream == nil {
		t.Fatalf("OnSubscribe never called")
	}
	stream.Request(1)

	if err := d.Notify(context.Background(), k, 1); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-sub.nextCh:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for OnNext within demand")
	}

	// second event exceeds the single unit of demand requested: must not
	// arrive.
	if err := d.Notify(context.Background(), k, 2); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-sub.nextCh:
		t.Fatalf("OnNext delivered beyond requested demand")
	case <-time.After(100 * time.Millisecond):
	}

	sub.mu.Lock()
	n := len(sub.events)
	sub.mu.Unlock()
	if n != 1 {
		t.Fatalf("delivered %d events, want 1", n)
	}
}

func TestPublisherCancelUnregisters(t *testing.T) {
	d := newTestDispatcher(t)
	k := firehose.NewKey("orders")

	sub := newRecordingSubscriber()
	firehose.MakePublisher(d, k).Subscribe(sub)

	sub.mu.Lock()
	stream := sub.sub
	sub.mu.Unlock()
	stream.Request(10)
	stream.Cancel()

	if err := d.Notify(context.Background(), k, 1); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	select {
	case <-sub.nextCh:
		t.Fatalf("OnNext delivered after Cancel")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSubscriberBridgesToDispatcher(t *testing.T) {
	d := newTestDispatcher(t)
	k := firehose.NewKey("orders")

	var got any
	done := make(chan struct{}, 1)
	d.On(k, func(ctx context.Context, k firehose.Key, v any) {
		got = v
		done <- struct{}{}
	})

	bridge := firehose.MakeSubscriber(d)
	bridge.OnSubscribe(&fakeUpstreamSubscription{})
	bridge.OnNext(firehose.KV{K: k, V: 42})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for bridged event")
	}
	if got != 42 {
		t.Fatalf("bridged value = %v, want 42", got)
	}
}

type fakeUpstreamSubscription struct {
	requested int64
	cancelled bool
}

func (f *fakeUpstreamSubscription) Request(n int64) { f.requested += n }
func (f *fakeUpstreamSubscription) Cancel()         { f.cancelled = true }
